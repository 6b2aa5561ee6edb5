package plugin

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// notSupportedByEdition is the first line of the error raw editions answer combined graph
// actions with
const notSupportedByEdition = "Checkmk exception: Currently not supported with this Checkmk Edition"

// WebAPIBackend talks to the legacy webapi.py and the GUI autocompleters
type WebAPIBackend struct {
	settings  *Settings
	transport *transport
}

func newWebAPIBackend(settings *Settings, t *transport) *WebAPIBackend {
	return &WebAPIBackend{settings: settings, transport: t}
}

func (b *WebAPIBackend) Query(ctx context.Context, req QueryRequest) ([]*data.Frame, error) {
	return queryTargets(ctx, req, b.fetchGraph)
}

func (b *WebAPIBackend) fetchGraph(ctx context.Context, target GraphTarget) (*data.Frame, error) {
	from := target.TimeRange.From.Unix()
	to := target.TimeRange.To.Unix()

	log.New().Debug("Fetching graph", "backend", BackendTypeWeb, "refId", target.RefID,
		"graph", target.RequestSpec.Graph, "from", from, "to", to)

	result, err := b.call(ctx, "get_graph", graphRequestBody(target.RequestSpec, b.settings.Edition, from, to))
	if err != nil {
		return nil, err
	}
	graph, err := decodeWebAPIGraph(result)
	if err != nil {
		return nil, err
	}
	return curvesToFrame(target.RefID, graph), nil
}

// call runs a webapi.py action and returns the unwrapped result
func (b *WebAPIBackend) call(ctx context.Context, action string, payload any) ([]byte, error) {
	req, err := b.newFormRequest(ctx, b.webAPIURL(action), payload)
	if err != nil {
		return nil, err
	}
	body, _, err := b.transport.do(ctx, action, req)
	if err != nil {
		return nil, err
	}
	return decodeWebAPIEnvelope(body)
}

// autocompleterRequest posts payload to one of the GUI ajax pages
func (b *WebAPIBackend) autocompleterRequest(ctx context.Context, endpoint string, payload any) ([]byte, error) {
	var params []urlParam
	if b.settings.LegacyURLAuth {
		params = []urlParam{
			{Key: "_username", Value: b.settings.Username},
			{Key: "_secret", Value: b.settings.Secret},
		}
	}
	url := buildURLWithParams(b.settings.URL+"/check_mk/"+endpoint, params)

	req, err := b.newFormRequest(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	body, _, err := b.transport.do(ctx, strings.TrimSuffix(endpoint, ".py"), req)
	if err != nil {
		return nil, err
	}
	return decodeWebAPIEnvelope(body)
}

// contextAutocomplete queries the autocompleter ident with the filter context of rs
func (b *WebAPIBackend) contextAutocomplete(ctx context.Context, ident string, rs RequestSpec, prefix string,
	params AutocompleteParams, dialect ContextDialect) ([]Choice, error) {
	if ident == labelIdent {
		return b.labelAutocomplete(ctx, prefix, params.withDefaults(ident).World)
	}

	payload := newAutocompleteRequest(ident, prefix, params.withDefaults(ident), buildContext(rs, dialect))
	result, err := b.autocompleterRequest(ctx, autocompleteEndpoint, payload)
	if err != nil {
		return nil, err
	}
	return decodeAutocompleteChoices(result)
}

// labelAutocomplete uses the dedicated label endpoint, which answers with a flat value list
func (b *WebAPIBackend) labelAutocomplete(ctx context.Context, prefix, world string) ([]Choice, error) {
	result, err := b.autocompleterRequest(ctx, labelAutocompleteEndpoint, labelAutocompleteRequest{
		World:       world,
		SearchLabel: prefix,
	})
	if err != nil {
		return nil, err
	}
	return decodeLabelChoices(result)
}

func (b *WebAPIBackend) TestDatasource(ctx context.Context) HealthResult {
	logger := log.New()

	_, err := b.call(ctx, "get_combined_graph_identifications", editionProbeBody())
	if err == nil {
		return healthSuccess()
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == ErrorKindApplication {
		firstLine, _, _ := strings.Cut(apiErr.Message, "\n")
		if firstLine == notSupportedByEdition {
			if b.settings.Edition != EditionRaw {
				logger.Info("Edition mismatch", "declared", b.settings.Edition)
				return healthError(newAPIError(ErrorKindConfigMismatch, msgEditionMismatch))
			}
			// authentication worked and a raw edition is expected to refuse the action
			return healthSuccess()
		}
	}

	logger.Error("Health check failed", "backend", BackendTypeWeb, "error", err)
	return healthError(err)
}

func (b *WebAPIBackend) ListSites(ctx context.Context) ([]MetricFindValue, error) {
	choices, err := b.contextAutocomplete(ctx, "sites", RequestSpec{}, "", AutocompleteParams{}, ContextDialect210)
	if err != nil {
		return nil, err
	}
	return choicesToValues(choices), nil
}

func (b *WebAPIBackend) MetricFindQuery(ctx context.Context, query MetricFindQuery) ([]MetricFindValue, error) {
	var ident string
	switch query.ObjectType {
	case ObjectTypeSite:
		return b.ListSites(ctx)
	case ObjectTypeHost:
		ident = "monitored_hostname"
	case ObjectTypeService:
		ident = "monitored_service_description"
	default:
		return nil, newAPIError(ErrorKindPrecondition, fmt.Sprintf("unknown object type %q", query.ObjectType))
	}

	choices, err := b.contextAutocomplete(ctx, ident, query.Filter, "", AutocompleteParams{}, ContextDialect210)
	if err != nil {
		return nil, err
	}
	return choicesToValues(choices), nil
}
