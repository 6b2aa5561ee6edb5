package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/hashicorp/go-version"
	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
)

// minimumRestVersion is the first Checkmk version whose REST API serves graphs
var minimumRestVersion = version.Must(version.NewVersion("2.1.0"))

// RestAPIBackend talks to the REST API under /check_mk/api/1.0
type RestAPIBackend struct {
	settings  *Settings
	transport *transport
}

func newRestAPIBackend(settings *Settings, t *transport) *RestAPIBackend {
	return &RestAPIBackend{settings: settings, transport: t}
}

// problem is the RFC 7807 error document of the REST API
type problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

// restResponseError returns nil for successful JSON responses and the server message otherwise
func restResponseError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return stringBodyError(body)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var p problem
		if err := json.Unmarshal(trimmed, &p); err == nil {
			switch {
			case p.Detail != "":
				return newAPIError(ErrorKindApplication, p.Detail)
			case p.Title != "":
				return newAPIError(ErrorKindApplication, p.Title)
			}
		}
	}
	if err := stringBodyError(trimmed); err != nil {
		return err
	}
	return newAPIError(ErrorKindApplication, string(trimmed))
}

// request issues a request and returns the body of a successful response
func (b *RestAPIBackend) request(ctx context.Context, endpoint, method, u string, payload any) ([]byte, error) {
	req, err := b.newRestRequest(ctx, method, u, payload)
	if err != nil {
		return nil, err
	}
	body, status, err := b.transport.do(ctx, endpoint, req)
	if err != nil {
		return nil, err
	}
	if err := restResponseError(status, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (b *RestAPIBackend) Query(ctx context.Context, req QueryRequest) ([]*data.Frame, error) {
	return queryTargets(ctx, req, b.fetchGraph)
}

func (b *RestAPIBackend) fetchGraph(ctx context.Context, target GraphTarget) (*data.Frame, error) {
	log.New().Debug("Fetching graph", "backend", BackendTypeREST, "refId", target.RefID,
		"graph", target.RequestSpec.Graph, "edition", b.settings.Edition)

	payload := restGraphRequestBody(target.RequestSpec, b.settings.Edition, target.TimeRange.From, target.TimeRange.To)
	body, err := b.request(ctx, "metric", http.MethodPost, b.restURL(metricEndpoint(b.settings.Edition), nil), payload)
	if err != nil {
		return nil, err
	}

	graph, err := decodeRestGraph(body)
	if err != nil {
		return nil, err
	}
	return curvesToFrame(target.RefID, graph), nil
}

// restGraph is the metric response: {time_range: {start, end}, step, curves: [{title, rrd_data}]}
type restGraph graphData

func (g *restGraph) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "time_range":
			in.Delim('{')
			for !in.IsDelim('}') {
				rangeKey := in.UnsafeFieldName(false)
				in.WantColon()
				if rangeKey == "start" && !in.IsNull() {
					start, err := time.Parse(time.RFC3339, in.String())
					if err != nil {
						in.AddError(err)
					}
					g.StartTime = start.Unix()
				} else {
					in.SkipRecursive()
				}
				in.WantComma()
			}
			in.Delim('}')
		case "step":
			g.Step = int64(in.Float64())
		case "curves":
			g.Curves = decodeCurves(in, "rrd_data")
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func decodeRestGraph(body []byte) (graphData, error) {
	var graph restGraph
	if err := easyjson.Unmarshal(body, &graph); err != nil {
		return graphData{}, wrapAPIError(ErrorKindTransport, fmt.Sprintf("could not decode graph response: %v", err), err)
	}
	return graphData(graph), nil
}

type versionInfo struct {
	Edition  string `json:"edition"`
	Versions struct {
		Checkmk string `json:"checkmk"`
	} `json:"versions"`
}

func (b *RestAPIBackend) TestDatasource(ctx context.Context) HealthResult {
	logger := log.New()

	body, err := b.request(ctx, "version", http.MethodGet, b.restURL("/version", nil), nil)
	if err != nil {
		logger.Error("Health check failed", "backend", BackendTypeREST, "error", err)
		return healthError(err)
	}

	var info versionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return healthError(wrapAPIError(ErrorKindTransport, msgUnreadableResponse, err))
	}

	if err := checkServerVersion(info, b.settings.Edition); err != nil {
		logger.Info("Checkmk server rejected", "edition", info.Edition, "version", info.Versions.Checkmk, "error", err)
		return healthError(err)
	}
	logger.Info("Checkmk server detected", "edition", info.Edition, "version", info.Versions.Checkmk)
	return healthSuccess()
}

// checkServerVersion compares the server against the declared edition and the minimum
// supported version
func checkServerVersion(info versionInfo, declared Edition) error {
	if strings.EqualFold(info.Edition, "cre") && declared != EditionRaw {
		return newAPIError(ErrorKindConfigMismatch, msgEditionMismatch)
	}

	// patch and beta suffixes such as "p12" parse as pre-releases
	v, err := version.NewVersion(info.Versions.Checkmk)
	if err != nil {
		return wrapAPIError(ErrorKindApplication, fmt.Sprintf("could not parse Checkmk version %q", info.Versions.Checkmk), err)
	}
	if v.Core().LessThan(minimumRestVersion) {
		return newAPIError(ErrorKindApplication, fmt.Sprintf(
			"Checkmk version %s is not supported by the REST API backend, at least %s is required", info.Versions.Checkmk, minimumRestVersion))
	}
	return nil
}

// collection is the `{value: [...]}` document of the collection endpoints
type collection struct {
	Value []struct {
		ID         string         `json:"id"`
		Title      string         `json:"title"`
		Extensions map[string]any `json:"extensions"`
	} `json:"value"`
}

func (b *RestAPIBackend) fetchCollection(ctx context.Context, endpoint, path string, query url.Values) (collection, error) {
	var c collection
	body, err := b.request(ctx, endpoint, http.MethodGet, b.restURL(path, query), nil)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(body, &c); err != nil {
		return c, wrapAPIError(ErrorKindTransport, msgUnreadableResponse, err)
	}
	return c, nil
}

func (b *RestAPIBackend) ListSites(ctx context.Context) ([]MetricFindValue, error) {
	c, err := b.fetchCollection(ctx, "site_connection", "/domain-types/site_connection/collections/all", nil)
	if err != nil {
		return nil, err
	}
	values := make([]MetricFindValue, 0, len(c.Value))
	for _, site := range c.Value {
		text := site.Title
		if text == "" {
			text = site.ID
		}
		values = append(values, MetricFindValue{Text: text, Value: site.ID})
	}
	return values, nil
}

func (b *RestAPIBackend) MetricFindQuery(ctx context.Context, query MetricFindQuery) ([]MetricFindValue, error) {
	var (
		c      collection
		err    error
		column string
	)
	switch query.ObjectType {
	case ObjectTypeSite:
		return b.ListSites(ctx)
	case ObjectTypeHost:
		column = "name"
		c, err = b.fetchCollection(ctx, "host", "/domain-types/host/collections/all", hostCollectionQuery(query.Filter))
	case ObjectTypeService:
		column = "description"
		c, err = b.fetchCollection(ctx, "service", "/domain-types/service/collections/all", serviceCollectionQuery(query.Filter))
	default:
		return nil, newAPIError(ErrorKindPrecondition, fmt.Sprintf("unknown object type %q", query.ObjectType))
	}
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	values := make([]MetricFindValue, 0, len(c.Value))
	for _, object := range c.Value {
		name, _ := object.Extensions[column].(string)
		if name == "" {
			name = object.ID
		}
		// services of different hosts share descriptions
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		values = append(values, MetricFindValue{Text: name, Value: name})
	}
	return values, nil
}
