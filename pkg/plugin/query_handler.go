package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// QueryHandler defines the interface for handling different types of queries
type QueryHandler interface {
	// processQuery decodes a single query and prepares it for execution
	processQuery(q backend.DataQuery) error

	// executeQueries executes all processed queries and returns the response
	executeQueries(ctx context.Context) (*backend.QueryDataResponse, error)
}

// QueryType represents the type of query being processed
type QueryType string

const (
	// GraphQueryType fetches the curves of one graph per query
	GraphQueryType QueryType = "graph"

	// MetricFindQueryType lists sites, hosts or services for template variables
	MetricFindQueryType QueryType = "metricFind"
)

var (
	_ QueryHandler = (*GraphHandler)(nil)
	_ QueryHandler = (*MetricFindHandler)(nil)
)

// runQueryHandler feeds every query of req to h. Queries that fail to decode get their own
// error response and are not executed.
func runQueryHandler(ctx context.Context, h QueryHandler, req *backend.QueryDataRequest) (*backend.QueryDataResponse, error) {
	logger := log.New()

	invalid := map[string]backend.DataResponse{}
	for _, q := range req.Queries {
		if err := h.processQuery(q); err != nil {
			logger.Error("failed to parse query", "refId", q.RefID, "error", err)
			invalid[q.RefID] = backend.ErrDataResponse(backend.StatusBadRequest, err.Error())
		}
	}

	response, err := h.executeQueries(ctx)
	if err != nil {
		return nil, err
	}
	for refID, r := range invalid {
		response.Responses[refID] = r
	}
	return response, nil
}

func (d *Datasource) handleGraphQueries(ctx context.Context, req *backend.QueryDataRequest) (*backend.QueryDataResponse, error) {
	return runQueryHandler(ctx, NewGraphHandler(d), req)
}

func (d *Datasource) handleMetricFindQueries(ctx context.Context, req *backend.QueryDataRequest) (*backend.QueryDataResponse, error) {
	return runQueryHandler(ctx, NewMetricFindHandler(d), req)
}

// GraphHandler runs graph queries as one batch
type GraphHandler struct {
	datasource *Datasource
	targets    []GraphTarget
}

func NewGraphHandler(datasource *Datasource) *GraphHandler {
	return &GraphHandler{datasource: datasource}
}

func (h *GraphHandler) processQuery(q backend.DataQuery) error {
	var target GraphTarget
	if err := json.Unmarshal(q.JSON, &target); err != nil {
		return fmt.Errorf("failed to parse query: %w", err)
	}
	target.RefID = q.RefID
	target.TimeRange = q.TimeRange
	h.targets = append(h.targets, target)
	return nil
}

// executeQueries maps the frames of the batch back to refIDs. The batch fails as a whole,
// so a single failing target marks every visible query as failed.
func (h *GraphHandler) executeQueries(ctx context.Context) (*backend.QueryDataResponse, error) {
	logger := log.New()
	response := backend.NewQueryDataResponse()

	req := QueryRequest{Targets: h.targets}
	visible := req.visibleTargets()

	frames, err := h.datasource.Query(ctx, req)
	if err != nil {
		logger.Error("query execution failed", "targets", len(visible), "error", err)
		failed := backend.ErrDataResponse(dataResponseStatus(err), err.Error())
		for _, target := range visible {
			response.Responses[target.RefID] = failed
		}
		return response, nil
	}

	for i, target := range visible {
		response.Responses[target.RefID] = backend.DataResponse{Frames: frames[i : i+1]}
	}
	return response, nil
}

// MetricFindHandler runs variable queries one by one
type MetricFindHandler struct {
	datasource *Datasource
	refIDs     []string
	queries    []MetricFindQuery
}

func NewMetricFindHandler(datasource *Datasource) *MetricFindHandler {
	return &MetricFindHandler{datasource: datasource}
}

func (h *MetricFindHandler) processQuery(q backend.DataQuery) error {
	var query MetricFindQuery
	if err := json.Unmarshal(q.JSON, &query); err != nil {
		return fmt.Errorf("failed to parse query: %w", err)
	}
	h.refIDs = append(h.refIDs, q.RefID)
	h.queries = append(h.queries, query)
	return nil
}

func (h *MetricFindHandler) executeQueries(ctx context.Context) (*backend.QueryDataResponse, error) {
	response := backend.NewQueryDataResponse()
	for i, query := range h.queries {
		refID := h.refIDs[i]
		values, err := h.datasource.MetricFindQuery(ctx, query)
		if err != nil {
			log.New().Error("metric find query failed", "refId", refID, "objectType", query.ObjectType, "error", err)
			response.Responses[refID] = backend.ErrDataResponse(dataResponseStatus(err), err.Error())
			continue
		}
		response.Responses[refID] = backend.DataResponse{Frames: []*data.Frame{metricFindFrame(refID, values)}}
	}
	return response, nil
}
