package plugin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/datasource"
	"github.com/grafana/grafana-plugin-sdk-go/backend/instancemgmt"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// PluginID is the id the plugin is registered with in Grafana
const PluginID = "wasilak-checkmk-datasource"

var (
	_ backend.QueryDataHandler      = (*Datasource)(nil)
	_ backend.CallResourceHandler   = (*Datasource)(nil)
	_ backend.CheckHealthHandler    = (*Datasource)(nil)
	_ instancemgmt.InstanceDisposer = (*Datasource)(nil)
)

// Datasource represents the Checkmk datasource plugin instance. Both backends are built
// up front: site listing and autocompletion always use the Web-API, variable queries
// always use the REST API.
type Datasource struct {
	settings    *Settings
	webBackend  *WebAPIBackend
	restBackend *RestAPIBackend

	queryHandler    backend.QueryDataHandler
	resourceHandler backend.CallResourceHandler
}

// NewDatasource creates a new Datasource factory function
func NewDatasource(ctx context.Context, instance backend.DataSourceInstanceSettings) (instancemgmt.Instance, error) {
	logger := log.New()

	settings, err := LoadSettings(instance)
	if err != nil {
		logger.Error("Failed to load datasource settings", "error", err)
		return nil, err
	}

	client, err := newHTTPClient(ctx, instance)
	if err != nil {
		logger.Error("Failed to create HTTP client", "error", err)
		return nil, err
	}

	ds := newDatasource(settings, client)
	logger.Info("Datasource initialized", "url", settings.URL, "edition", settings.Edition,
		"backend", settings.Backend, "legacyUrlAuth", settings.LegacyURLAuth)
	return ds, nil
}

func newDatasource(settings *Settings, client *http.Client) *Datasource {
	ds := &Datasource{
		settings:    settings,
		webBackend:  newWebAPIBackend(settings, newTransport(client, BackendTypeWeb)),
		restBackend: newRestAPIBackend(settings, newTransport(client, BackendTypeREST)),
	}

	queryTypeMux := datasource.NewQueryTypeMux()
	queryTypeMux.HandleFunc(string(GraphQueryType), ds.handleGraphQueries)
	queryTypeMux.HandleFunc(string(MetricFindQueryType), ds.handleMetricFindQueries)
	// older dashboards do not set a query type
	queryTypeMux.HandleFunc("", ds.handleGraphQueries)
	ds.queryHandler = queryTypeMux

	ds.resourceHandler = newResourceHandler(ds)
	return ds
}

// Dispose disposes of the datasource instance
func (d *Datasource) Dispose() {
	// backends hold no resources besides the shared HTTP client
}

// Backend returns the backend selected by the configuration
func (d *Datasource) Backend() Backend {
	if d.settings.Backend == BackendTypeWeb {
		return d.webBackend
	}
	return d.restBackend
}

// Query interpolates each target with its scoped variables and runs the batch on the
// selected backend
func (d *Datasource) Query(ctx context.Context, req QueryRequest) ([]*data.Frame, error) {
	targets := make([]GraphTarget, len(req.Targets))
	for i, target := range req.Targets {
		target.RequestSpec = target.ScopedVars.Interpolate(target.RequestSpec)
		targets[i] = target
	}
	return d.Backend().Query(ctx, QueryRequest{Targets: targets})
}

// MetricFindQuery resolves a variable query. Sites are listed by the Web-API, which every
// supported version offers; hosts and services by the REST API.
func (d *Datasource) MetricFindQuery(ctx context.Context, query MetricFindQuery) ([]MetricFindValue, error) {
	query.Filter = query.ScopedVars.Interpolate(query.Filter)
	if query.ObjectType == ObjectTypeSite {
		return d.webBackend.ListSites(ctx)
	}
	return d.restBackend.MetricFindQuery(ctx, query)
}

func (d *Datasource) TestDatasource(ctx context.Context) HealthResult {
	return d.Backend().TestDatasource(ctx)
}

// contextDialect is the filter encoding matching the API generation in use
func (d *Datasource) contextDialect() ContextDialect {
	if d.settings.Backend == BackendTypeREST {
		return ContextDialectLatest
	}
	return ContextDialect210
}

// ContextAutocomplete lists the options of autocompleter ident narrowed by rs
func (d *Datasource) ContextAutocomplete(ctx context.Context, ident string, rs RequestSpec, prefix string,
	params AutocompleteParams) ([]Choice, error) {
	if ident == "" {
		err := newAPIError(ErrorKindPrecondition, "autocomplete ident must not be empty")
		log.New().Error("Invalid autocomplete request", "error", err)
		return nil, err
	}
	return d.webBackend.contextAutocomplete(ctx, ident, rs, prefix, params, d.contextDialect())
}

// QueryData handles data source queries from Grafana
func (d *Datasource) QueryData(ctx context.Context, req *backend.QueryDataRequest) (*backend.QueryDataResponse, error) {
	return d.queryHandler.QueryData(ctx, req)
}

// CallResource handles the autocomplete and variable endpoints used by the query editor
func (d *Datasource) CallResource(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	return d.resourceHandler.CallResource(ctx, req, sender)
}

// CheckHealth checks the health of the datasource connection
func (d *Datasource) CheckHealth(ctx context.Context, _ *backend.CheckHealthRequest) (*backend.CheckHealthResult, error) {
	logger := log.New()
	logger.Info("CheckHealth: starting health check", "backend", d.settings.Backend, "edition", d.settings.Edition)

	result := d.TestDatasource(ctx)

	status := backend.HealthStatusOk
	if result.Status != HealthStatusSuccess {
		status = backend.HealthStatusError
	}
	details, _ := json.Marshal(map[string]string{"title": result.Title})

	logger.Info("CheckHealth: completed", "status", result.Status, "message", result.Message)
	return &backend.CheckHealthResult{
		Status:      status,
		Message:     result.Message,
		JSONDetails: details,
	}, nil
}
