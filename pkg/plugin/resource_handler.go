package plugin

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/backend/resource/httpadapter"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jwriter"
)

const (
	endpointAutocomplete = "/autocomplete"
	endpointMetricFind   = "/metric-find"
	endpointSites        = "/sites"
)

// ResourceHandler serves the query editor's option lists
type ResourceHandler struct {
	datasource *Datasource
}

func newResourceHandler(ds *Datasource) backend.CallResourceHandler {
	mux := http.NewServeMux()
	h := ResourceHandler{datasource: ds}

	mux.HandleFunc(endpointAutocomplete, h.handleAutocomplete)
	mux.HandleFunc(endpointMetricFind, h.handleMetricFind)
	mux.HandleFunc(endpointSites, h.handleSites)

	return httpadapter.New(mux)
}

type autocompleteResourceRequest struct {
	Ident       string             `json:"ident"`
	RequestSpec RequestSpec        `json:"requestSpec"`
	Prefix      string             `json:"prefix"`
	Params      AutocompleteParams `json:"params"`
	ScopedVars  ScopedVars         `json:"scopedVars,omitempty"`
}

func (h *ResourceHandler) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req autocompleteResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	rs := req.ScopedVars.Interpolate(req.RequestSpec)
	choices, err := h.datasource.ContextAutocomplete(r.Context(), req.Ident, rs, req.Prefix, req.Params)
	if err != nil {
		writeAPIErrorJSON(w, err)
		return
	}
	writeResponseJSON(w, choiceList(choices))
}

func (h *ResourceHandler) handleMetricFind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var query MetricFindQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	values, err := h.datasource.MetricFindQuery(r.Context(), query)
	if err != nil {
		writeAPIErrorJSON(w, err)
		return
	}
	writeResponseJSON(w, metricFindValues(values))
}

func (h *ResourceHandler) handleSites(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	values, err := h.datasource.MetricFindQuery(r.Context(), MetricFindQuery{ObjectType: ObjectTypeSite})
	if err != nil {
		writeAPIErrorJSON(w, err)
		return
	}
	writeResponseJSON(w, metricFindValues(values))
}

type choiceList []Choice

func (c choiceList) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawByte('[')
	for i, choice := range c {
		if i > 0 {
			out.RawByte(',')
		}
		out.RawString(`{"value":`)
		if choice.Value == nil {
			out.RawString("null")
		} else {
			out.String(*choice.Value)
		}
		out.RawString(`,"label":`)
		out.String(choice.Label)
		out.RawString(`,"isDisabled":`)
		out.Bool(choice.IsDisabled)
		out.RawByte('}')
	}
	out.RawByte(']')
}

type metricFindValues []MetricFindValue

func (v metricFindValues) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawByte('[')
	for i, value := range v {
		if i > 0 {
			out.RawByte(',')
		}
		out.RawString(`{"text":`)
		out.String(value.Text)
		out.RawString(`,"value":`)
		out.String(value.Value)
		out.RawByte('}')
	}
	out.RawByte(']')
}

func writeResponseJSON(w http.ResponseWriter, data easyjson.Marshaler) {
	j, err := easyjson.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(j); err != nil {
		log.New().Error("failed to write resource response", "error", err)
	}
}

// writeAPIErrorJSON reports err as `{"error": message}` with a status matching its kind
func writeAPIErrorJSON(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case ErrorKindPrecondition, ErrorKindConfiguration:
			status = http.StatusBadRequest
		case ErrorKindApplication, ErrorKindConfigMismatch:
			status = http.StatusUnprocessableEntity
		}
	}

	out := jwriter.Writer{}
	out.RawString(`{"error":`)
	out.String(err.Error())
	out.RawByte('}')

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, writeErr := out.DumpTo(w); writeErr != nil {
		log.New().Error("failed to write resource error", "error", writeErr)
	}
}
