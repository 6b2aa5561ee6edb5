package plugin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const restGraphResponse = `{"time_range": {"start": "1970-01-01T00:16:40+00:00", "end": "1970-01-01T00:18:40+00:00"},
	"step": 60, "curves": [{"title": "Used memory", "rrd_data": [1, 2, 3]}]}`

func newTestRestBackend(server *fakeCheckmk, edition Edition) *RestAPIBackend {
	return newRestAPIBackend(server.settings(edition, BackendTypeREST), newTransport(server.Client(), BackendTypeREST))
}

func TestRestAPIBackend_Query(t *testing.T) {
	t.Run("raw edition addresses one service", func(t *testing.T) {
		server := newFakeCheckmk(t, func(w http.ResponseWriter, r recordedRequest) {
			writeBody(w, restGraphResponse)
		})
		b := newTestRestBackend(server, EditionRaw)

		frames, err := b.Query(context.Background(), QueryRequest{Targets: []GraphTarget{{
			RefID:       "A",
			RequestSpec: RequestSpec{Site: "s1", HostName: "h1", Service: "Memory", Graph: "mem_used", GraphType: GraphTypeMetric},
			TimeRange:   testTimeRange,
		}}})
		require.NoError(t, err)
		require.Len(t, frames, 1)
		times := frames[0].Fields[0]
		require.Equal(t, 3, times.Len())

		req := server.recorded()[0]
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/check_mk/api/1.0/domain-types/metric/actions/get/invoke", req.Path)
		assert.Equal(t, "Bearer automation s3cr3t", req.Header.Get("Authorization"))
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
		assert.JSONEq(t, `{
			"time_range": {"start": "1970-01-01T00:16:40Z", "end": "1970-01-01T00:33:20Z"},
			"reduce": "max",
			"site": "s1",
			"host_name": "h1",
			"service_description": "Memory",
			"type": "single_metric",
			"metric_id": "mem_used"
		}`, req.Body)
	})

	t.Run("other editions send a filter", func(t *testing.T) {
		server := newFakeCheckmk(t, func(w http.ResponseWriter, r recordedRequest) {
			writeBody(w, restGraphResponse)
		})
		b := newTestRestBackend(server, EditionCEE)

		_, err := b.Query(context.Background(), QueryRequest{Targets: []GraphTarget{{
			RefID:       "A",
			RequestSpec: RequestSpec{HostLabels: []string{"os:linux"}, Graph: "cpu_load"},
			TimeRange:   testTimeRange,
		}}})
		require.NoError(t, err)

		req := server.recorded()[0]
		assert.Equal(t, "/check_mk/api/1.0/domain-types/metric/actions/filter/invoke", req.Path)

		body := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
		assert.Equal(t, "predefined_graph", body["type"])
		assert.Equal(t, "cpu_load", body["graph_id"])
		assert.Equal(t, "lines", body["presentation"])
		assert.Equal(t, map[string]any{
			"host_labels": map[string]any{
				"host_labels_count":       "1",
				"host_labels_1_bool":      "and",
				"host_labels_1_vs_count":  "1",
				"host_labels_1_vs_1_bool": "and",
				"host_labels_1_vs_1_vs":   "os:linux",
			},
		}, body["filter"])
		assert.NotContains(t, body, "site")
	})

	t.Run("problem details become the error message", func(t *testing.T) {
		server := newFakeCheckmk(t, func(w http.ResponseWriter, r recordedRequest) {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"title": "Bad Request", "status": 400, "detail": "Graph not found"}`))
		})
		b := newTestRestBackend(server, EditionRaw)

		_, err := b.Query(context.Background(), QueryRequest{Targets: []GraphTarget{
			{RefID: "A", RequestSpec: RequestSpec{Graph: "nope"}, TimeRange: testTimeRange},
		}})
		require.Error(t, err)
		assert.Equal(t, "Graph not found", err.Error())
		assert.Equal(t, ErrorKindApplication, errorKindOf(err))
	})
}

func TestRestAPIBackend_TestDatasource(t *testing.T) {
	tests := []struct {
		name     string
		edition  Edition
		response string
		status   HealthStatus
		message  string
	}{
		{name: "raw server", edition: EditionRaw, response: `{"edition": "cre", "versions": {"checkmk": "2.2.0p12"}}`, status: HealthStatusSuccess, message: "Data source is working"},
		{name: "enterprise server", edition: EditionCEE, response: `{"edition": "cee", "versions": {"checkmk": "2.1.0p1"}}`, status: HealthStatusSuccess, message: "Data source is working"},
		{name: "raw server behind enterprise setting", edition: EditionCEE, response: `{"edition": "cre", "versions": {"checkmk": "2.2.0"}}`, status: HealthStatusError, message: msgEditionMismatch},
		{name: "too old", edition: EditionRaw, response: `{"edition": "cre", "versions": {"checkmk": "2.0.0p30"}}`, status: HealthStatusError,
			message: "Checkmk version 2.0.0p30 is not supported by the REST API backend, at least 2.1.0 is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newFakeCheckmk(t, func(w http.ResponseWriter, r recordedRequest) {
				writeBody(w, tt.response)
			})
			result := newTestRestBackend(server, tt.edition).TestDatasource(context.Background())
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.message, result.Message)
			assert.Equal(t, "/check_mk/api/1.0/version", server.recorded()[0].Path)
		})
	}

	t.Run("unauthorized", func(t *testing.T) {
		server := newFakeCheckmk(t, func(w http.ResponseWriter, r recordedRequest) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"title": "Unauthorized", "status": 401}`))
		})
		result := newTestRestBackend(server, EditionRaw).TestDatasource(context.Background())
		assert.Equal(t, HealthStatusError, result.Status)
		assert.Equal(t, "Unauthorized", result.Message)
	})
}

func TestRestAPIBackend_MetricFindQuery(t *testing.T) {
	t.Run("hosts", func(t *testing.T) {
		server := newFakeCheckmk(t, func(w http.ResponseWriter, r recordedRequest) {
			writeBody(w, `{"value": [{"id": "h1", "extensions": {"name": "h1"}}, {"id": "h2", "extensions": {"name": "h2"}}]}`)
		})
		values, err := newTestRestBackend(server, EditionRaw).MetricFindQuery(context.Background(), MetricFindQuery{
			ObjectType: ObjectTypeHost,
			Filter:     RequestSpec{Site: "s1", HostInGroup: &NegatableOption{Value: "linux", Negated: true}},
		})
		require.NoError(t, err)
		assert.Equal(t, []MetricFindValue{{Text: "h1", Value: "h1"}, {Text: "h2", Value: "h2"}}, values)

		req := server.recorded()[0]
		assert.Equal(t, "/check_mk/api/1.0/domain-types/host/collections/all", req.Path)
		query, err := url.ParseQuery(req.RawQuery)
		require.NoError(t, err)
		assert.Equal(t, "name", query.Get("columns"))
		assert.Equal(t, "s1", query.Get("sites"))
		assert.JSONEq(t, `{"op": "!>=", "left": "groups", "right": "linux"}`, query.Get("query"))
	})

	t.Run("services are deduplicated", func(t *testing.T) {
		server := newFakeCheckmk(t, func(w http.ResponseWriter, r recordedRequest) {
			writeBody(w, `{"value": [
				{"id": "h1-CPU", "extensions": {"description": "CPU load"}},
				{"id": "h2-CPU", "extensions": {"description": "CPU load"}},
				{"id": "h1-Mem", "extensions": {"description": "Memory"}}
			]}`)
		})
		values, err := newTestRestBackend(server, EditionRaw).MetricFindQuery(context.Background(), MetricFindQuery{
			ObjectType: ObjectTypeService,
			Filter:     RequestSpec{HostName: "h1", ServiceRegex: &NegatableOption{Value: "CPU.*"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []MetricFindValue{{Text: "CPU load", Value: "CPU load"}, {Text: "Memory", Value: "Memory"}}, values)

		query, err := url.ParseQuery(server.recorded()[0].RawQuery)
		require.NoError(t, err)
		assert.Equal(t, "description", query.Get("columns"))
		assert.Equal(t, "h1", query.Get("host_name"))
		assert.JSONEq(t, `{"op": "~", "left": "description", "right": "CPU.*"}`, query.Get("query"))
	})

	t.Run("sites", func(t *testing.T) {
		server := newFakeCheckmk(t, func(w http.ResponseWriter, r recordedRequest) {
			writeBody(w, `{"value": [{"id": "s1", "title": "Site 1"}]}`)
		})
		values, err := newTestRestBackend(server, EditionRaw).MetricFindQuery(context.Background(), MetricFindQuery{ObjectType: ObjectTypeSite})
		require.NoError(t, err)
		assert.Equal(t, []MetricFindValue{{Text: "Site 1", Value: "s1"}}, values)
		assert.Equal(t, "/check_mk/api/1.0/domain-types/site_connection/collections/all", server.recorded()[0].Path)
	})

	t.Run("unknown object type", func(t *testing.T) {
		server := newFakeCheckmk(t, func(w http.ResponseWriter, r recordedRequest) {})
		_, err := newTestRestBackend(server, EditionRaw).MetricFindQuery(context.Background(), MetricFindQuery{ObjectType: "graph"})
		require.Error(t, err)
		assert.Equal(t, ErrorKindPrecondition, errorKindOf(err))
		assert.EqualValues(t, 0, server.calls.Load())
	})
}

func TestLivestatusQuery(t *testing.T) {
	assert.Empty(t, livestatusQuery(RequestSpec{}, "", false))

	query := livestatusQuery(RequestSpec{
		HostName: "h1",
		HostTags: &HostTags{{Group: "criticality", Tag: "prod", Operator: TagOperatorIsNot}},
	}, "host_", false)
	assert.JSONEq(t, `{"op": "and", "expr": [
		{"op": "=", "left": "host_name", "right": "h1"},
		{"op": "!=", "left": "host_tags", "right": "criticality prod"}
	]}`, query)
}
