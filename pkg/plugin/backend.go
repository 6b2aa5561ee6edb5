package plugin

import (
	"context"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"golang.org/x/sync/errgroup"
)

// Backend is implemented by both Checkmk API generations. The datasource picks one at
// construction time.
type Backend interface {
	// Query resolves every visible target to one frame, in input order. A single failing
	// target fails the whole call.
	Query(ctx context.Context, req QueryRequest) ([]*data.Frame, error)

	// MetricFindQuery resolves a variable query to text/value pairs
	MetricFindQuery(ctx context.Context, query MetricFindQuery) ([]MetricFindValue, error)

	// TestDatasource performs one lightweight request and classifies the outcome
	TestDatasource(ctx context.Context) HealthResult

	// ListSites enumerates the monitored sites
	ListSites(ctx context.Context) ([]MetricFindValue, error)
}

// GraphTarget is one graph query of a panel
type GraphTarget struct {
	RefID       string            `json:"refId"`
	Hide        bool              `json:"hide"`
	RequestSpec RequestSpec       `json:"requestSpec"`
	ScopedVars  ScopedVars        `json:"scopedVars,omitempty"`
	TimeRange   backend.TimeRange `json:"-"`
}

// QueryRequest is a batch of graph targets
type QueryRequest struct {
	Targets []GraphTarget
}

// visibleTargets drops hidden targets, keeping the order
func (r QueryRequest) visibleTargets() []GraphTarget {
	visible := make([]GraphTarget, 0, len(r.Targets))
	for _, target := range r.Targets {
		if !target.Hide {
			visible = append(visible, target)
		}
	}
	return visible
}

// ObjectType is what a MetricFindQuery lists
type ObjectType string

const (
	ObjectTypeSite    ObjectType = "site"
	ObjectTypeHost    ObjectType = "host"
	ObjectTypeService ObjectType = "service"
)

// MetricFindQuery is a variable query: list objects of one type matching a filter
type MetricFindQuery struct {
	ObjectType ObjectType  `json:"objectType"`
	Filter     RequestSpec `json:"filter"`
	ScopedVars ScopedVars  `json:"scopedVars,omitempty"`
}

// MetricFindValue is one variable option
type MetricFindValue struct {
	Text  string `json:"text"`
	Value string `json:"value"`
}

// HealthStatus of a connectivity test
type HealthStatus string

const (
	HealthStatusSuccess HealthStatus = "success"
	HealthStatusError   HealthStatus = "error"
)

// HealthResult is the classified outcome of TestDatasource
type HealthResult struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message"`
	Title   string       `json:"title"`
}

func healthSuccess() HealthResult {
	return HealthResult{
		Status:  HealthStatusSuccess,
		Message: "Data source is working",
		Title:   "Success",
	}
}

func healthError(err error) HealthResult {
	return HealthResult{
		Status:  HealthStatusError,
		Message: err.Error(),
		Title:   "Error",
	}
}

// graphFetcher fetches the frame of a single target whose graph is set
type graphFetcher func(ctx context.Context, target GraphTarget) (*data.Frame, error)

// queryTargets runs fetch for every visible target concurrently. Results keep the input
// order; targets without a graph get an empty frame without any request. The first error
// cancels the remaining fetches and is returned alone.
func queryTargets(ctx context.Context, req QueryRequest, fetch graphFetcher) ([]*data.Frame, error) {
	targets := req.visibleTargets()
	frames := make([]*data.Frame, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		target.RequestSpec = target.RequestSpec.WithDefaults()
		if !target.RequestSpec.HasGraph() {
			frames[i] = emptyFrame(target.RefID)
			continue
		}
		g.Go(func() error {
			frame, err := fetch(gctx, target)
			if err != nil {
				return err
			}
			frames[i] = frame
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// choicesToValues converts autocompleter choices to variable values, dropping headings
func choicesToValues(choices []Choice) []MetricFindValue {
	values := make([]MetricFindValue, 0, len(choices))
	for _, choice := range choices {
		if choice.IsDisabled {
			continue
		}
		value, err := choice.SelectedValue()
		if err != nil {
			continue
		}
		values = append(values, MetricFindValue{Text: choice.Label, Value: value})
	}
	return values
}
