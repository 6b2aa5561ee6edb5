package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const restAPIPath = "/check_mk/api/1.0"

// restTimeRange is the RFC 3339 interval accepted and returned by the metric endpoints
type restTimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func newRestTimeRange(from, to time.Time) restTimeRange {
	return restTimeRange{
		Start: from.UTC().Format(time.RFC3339),
		End:   to.UTC().Format(time.RFC3339),
	}
}

// metricEndpoint returns the endpoint serving graphs for edition. Raw editions can only
// address a single host and service, the others accept a filter context.
func metricEndpoint(edition Edition) string {
	if edition == EditionRaw {
		return "/domain-types/metric/actions/get/invoke"
	}
	return "/domain-types/metric/actions/filter/invoke"
}

// restGraphRequestBody builds the metric request for rs over [from, to]
func restGraphRequestBody(rs RequestSpec, edition Edition, from, to time.Time) map[string]any {
	body := map[string]any{
		"time_range": newRestTimeRange(from, to),
		"reduce":     "max",
	}

	if rs.GraphType == GraphTypeMetric {
		body["type"] = "single_metric"
		body["metric_id"] = rs.Graph
	} else {
		body["type"] = "predefined_graph"
		body["graph_id"] = rs.Graph
	}

	if edition == EditionRaw {
		body["site"] = rs.Site
		body["host_name"] = rs.HostName
		body["service_description"] = rs.Service
		return body
	}

	body["filter"] = buildContext(rs, ContextDialectLatest)
	body["presentation"] = rs.Aggregation
	return body
}

// restURL joins path and an optional query to the API base
func (b *RestAPIBackend) restURL(path string, query url.Values) string {
	u := b.settings.URL + restAPIPath + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// newRestRequest builds an authorized request, payload is JSON encoded when not nil
func (b *RestAPIBackend) newRestRequest(ctx context.Context, method, u string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, wrapAPIError(ErrorKindPrecondition, fmt.Sprintf("failed to encode request: %v", err), err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, wrapAPIError(ErrorKindTransport, msgUnreadableResponse, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", b.settings.authorization())
	return req, nil
}

// livestatusExpr is one node of the query expression language of the collection endpoints
type livestatusExpr map[string]any

func livestatusFilter(op, left, right string) livestatusExpr {
	return livestatusExpr{"op": op, "left": left, "right": right}
}

// livestatusQuery translates the filters of rs into a query expression. prefix is empty for
// the host table and "host_" when host columns are addressed from the service table. It
// returns an empty string when nothing is filtered.
func livestatusQuery(rs RequestSpec, prefix string, withService bool) string {
	var exprs []livestatusExpr

	if rs.HostName != "" {
		exprs = append(exprs, livestatusFilter("=", prefix+"name", rs.HostName))
	}
	if rs.HostNameRegex.isSet() {
		exprs = append(exprs, livestatusFilter(negatedOp("~", rs.HostNameRegex.Negated), prefix+"name", rs.HostNameRegex.Value))
	}
	if rs.HostInGroup.isSet() {
		exprs = append(exprs, livestatusFilter(negatedOp(">=", rs.HostInGroup.Negated), prefix+"groups", rs.HostInGroup.Value))
	}
	for _, label := range rs.HostLabels {
		key, value, _ := strings.Cut(label, ":")
		exprs = append(exprs, livestatusFilter("=", prefix+"labels", key+" "+value))
	}
	if rs.HostTags != nil {
		for _, tag := range rs.HostTags {
			if tag.Group == "" {
				continue
			}
			exprs = append(exprs, livestatusFilter(negatedOp("=", tag.Operator == TagOperatorIsNot), prefix+"tags", tag.Group+" "+tag.Tag))
		}
	}

	if withService {
		if rs.Service != "" {
			exprs = append(exprs, livestatusFilter("=", "description", rs.Service))
		}
		if rs.ServiceRegex.isSet() {
			exprs = append(exprs, livestatusFilter(negatedOp("~", rs.ServiceRegex.Negated), "description", rs.ServiceRegex.Value))
		}
		if rs.ServiceInGroup.isSet() {
			exprs = append(exprs, livestatusFilter(negatedOp(">=", rs.ServiceInGroup.Negated), "groups", rs.ServiceInGroup.Value))
		}
	}

	var query any
	switch len(exprs) {
	case 0:
		return ""
	case 1:
		query = exprs[0]
	default:
		query = livestatusExpr{"op": "and", "expr": exprs}
	}
	encoded, _ := json.Marshal(query)
	return string(encoded)
}

func negatedOp(op string, negated bool) string {
	if negated {
		return "!" + op
	}
	return op
}

// hostCollectionQuery lists host names matching rs
func hostCollectionQuery(rs RequestSpec) url.Values {
	query := url.Values{}
	query.Set("columns", "name")
	if rs.Site != "" {
		query.Set("sites", rs.Site)
	}
	if expr := livestatusQuery(rs, "", false); expr != "" {
		query.Set("query", expr)
	}
	return query
}

// serviceCollectionQuery lists service descriptions matching rs
func serviceCollectionQuery(rs RequestSpec) url.Values {
	query := url.Values{}
	query.Set("columns", "description")
	if rs.Site != "" {
		query.Set("sites", rs.Site)
	}
	if rs.HostName != "" {
		query.Set("host_name", rs.HostName)
	}
	// host_name is a dedicated parameter here
	filter := rs
	filter.HostName = ""
	if expr := livestatusQuery(filter, "host_", true); expr != "" {
		query.Set("query", expr)
	}
	return query
}
