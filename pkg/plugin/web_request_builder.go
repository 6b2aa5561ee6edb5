package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// urlParam is one query parameter. Order is kept because the Web-API is sensitive to it in
// some versions.
type urlParam struct {
	Key   string
	Value string
}

// buildURLWithParams appends params verbatim. The Web-API does not decode percent escapes in
// every version, so values are not encoded.
func buildURLWithParams(base string, params []urlParam) string {
	if len(params) == 0 {
		return base
	}
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, p.Key+"="+p.Value)
	}
	return base + "?" + strings.Join(pairs, "&")
}

// buildRequestBody renders the form body `request=<json>` the Web-API reads
func buildRequestBody(payload any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("request=")
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(payload); err != nil {
		return nil, wrapAPIError(ErrorKindPrecondition, fmt.Sprintf("failed to encode request: %v", err), err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// webAPIURL is the webapi.py URL for action, with URL credentials when configured
func (b *WebAPIBackend) webAPIURL(action string) string {
	params := []urlParam{{Key: "action", Value: action}}
	if b.settings.LegacyURLAuth {
		params = append(params,
			urlParam{Key: "_username", Value: b.settings.Username},
			urlParam{Key: "_secret", Value: b.settings.Secret},
			urlParam{Key: "output_format", Value: "json"},
		)
	}
	return buildURLWithParams(b.settings.URL+"/check_mk/webapi.py", params)
}

// newFormRequest builds an authorized POST carrying payload as `request=<json>`
func (b *WebAPIBackend) newFormRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	body, err := buildRequestBody(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, wrapAPIError(ErrorKindTransport, msgUnreadableResponse, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	b.settings.authorize(req)
	return req, nil
}

// graphSpecification is the `[kind, spec]` pair get_graph expects
func graphSpecification(rs RequestSpec, edition Edition) []any {
	if edition == EditionRaw {
		spec := map[string]any{
			"site":                rs.Site,
			"host_name":           rs.HostName,
			"service_description": rs.Service,
			"graph_id":            rs.graphID(),
		}
		if rs.GraphType != GraphTypeMetric {
			spec["graph_index"] = 0
		}
		return []any{"template", spec}
	}

	return []any{"combined", map[string]any{
		"context":        buildContext(rs, ContextDialect210),
		"datasource":     "services",
		"single_infos":   []string{"host"},
		"graph_template": rs.graphID(),
		"presentation":   rs.Aggregation,
	}}
}

// graphRequestBody is the get_graph payload for the closed interval [from, to] in epoch seconds
func graphRequestBody(rs RequestSpec, edition Edition, from, to int64) map[string]any {
	return map[string]any{
		"specification": graphSpecification(rs, edition),
		"data_range": map[string]any{
			"time_range": []int64{from, to},
		},
	}
}

// editionProbeBody asks for graphs of a host that does not exist. Raw editions reject the
// action itself, so the answer tells the editions apart after authentication succeeded.
func editionProbeBody() map[string]any {
	return map[string]any{
		"context":      map[string]any{"host": map[string]any{"host": "ARANDOMNAME"}},
		"single_infos": []string{"host"},
		"datasource":   "services",
	}
}
