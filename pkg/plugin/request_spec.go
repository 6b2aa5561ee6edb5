package plugin

import (
	"encoding/json"
	"reflect"
)

// GraphType selects whether RequestSpec.Graph names a predefined graph template or a single metric
type GraphType string

const (
	GraphTypeTemplate GraphType = "template"
	GraphTypeMetric   GraphType = "metric"
)

// Aggregation describes how multiple matched curves are combined
type Aggregation string

const (
	AggregationLines   Aggregation = "lines"
	AggregationSum     Aggregation = "sum"
	AggregationAverage Aggregation = "average"
	AggregationMin     Aggregation = "min"
	AggregationMax     Aggregation = "max"
)

// Tag operators accepted in TagValue.Operator
const (
	TagOperatorIs    = "is"
	TagOperatorIsNot = "is not"
)

// NegatableOption is a filter value paired with a flag inverting its match
type NegatableOption struct {
	Value   string `json:"value"`
	Negated bool   `json:"negated"`
}

// TagValue is one host tag constraint
type TagValue struct {
	Group    string `json:"group,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Operator string `json:"operator,omitempty"`
}

// HostTags holds up to three independent tag constraints
type HostTags [3]TagValue

// RequestSpec describes which curves to fetch. Every field is optional; empty strings,
// nil pointers and nil slices mean "not set".
type RequestSpec struct {
	GraphType   GraphType   `json:"graph_type,omitempty"`
	Aggregation Aggregation `json:"aggregation,omitempty"`

	Site string `json:"site,omitempty"`

	HostName      string           `json:"host_name,omitempty"`
	HostNameRegex *NegatableOption `json:"host_name_regex,omitempty"`
	HostInGroup   *NegatableOption `json:"host_in_group,omitempty"`
	HostLabels    []string         `json:"host_labels,omitempty"`
	HostTags      *HostTags        `json:"host_tags,omitempty"`

	Service        string           `json:"service,omitempty"`
	ServiceRegex   *NegatableOption `json:"service_regex,omitempty"`
	ServiceInGroup *NegatableOption `json:"service_in_group,omitempty"`

	Graph string `json:"graph,omitempty"`
}

// DefaultRequestSpec holds the values used for fields a target leaves unset
var DefaultRequestSpec = RequestSpec{
	Aggregation: AggregationLines,
	GraphType:   GraphTypeTemplate,
}

// WithDefaults returns a copy with DefaultRequestSpec applied to unset fields
func (rs RequestSpec) WithDefaults() RequestSpec {
	if rs.Aggregation == "" {
		rs.Aggregation = DefaultRequestSpec.Aggregation
	}
	if rs.GraphType == "" {
		rs.GraphType = DefaultRequestSpec.GraphType
	}
	return rs
}

// HasGraph reports whether the graph selector is resolved
func (rs RequestSpec) HasGraph() bool {
	return rs.Graph != ""
}

// graphID returns the identifier Checkmk expects for the selected graph. Single metrics are
// addressed through their implicit "METRIC_" graph template.
func (rs RequestSpec) graphID() string {
	if rs.GraphType == GraphTypeMetric {
		return "METRIC_" + rs.Graph
	}
	return rs.Graph
}

func (o *NegatableOption) isSet() bool {
	return o != nil && o.Value != ""
}

// The DependsOn helpers list the values a derived autocomplete result depends on.
// Equal outputs mean the cached options of that level are still valid.

func DependsOnNothing() []any {
	return []any{}
}

func DependsOnSite(rs RequestSpec) []any {
	return []any{rs.Site}
}

func DependsOnHost(rs RequestSpec) []any {
	return append(DependsOnSite(rs), rs.HostName, rs.HostNameRegex, rs.HostInGroup, rs.HostTags, rs.HostLabels)
}

func DependsOnService(rs RequestSpec) []any {
	return append(DependsOnHost(rs), rs.Service, rs.ServiceRegex, rs.ServiceInGroup)
}

// DependsOn lists every field of the spec
func DependsOn(rs RequestSpec) []any {
	return append(DependsOnService(rs), rs.GraphType, rs.Aggregation, rs.Graph)
}

// DependsOnAll flattens arbitrarily nested slices and arrays into one list.
// Nil pointers are kept as-is, non-nil pointers to arrays are followed.
func DependsOnAll(values ...any) []any {
	flat := make([]any, 0, len(values))
	for _, v := range values {
		flat = flattenInto(flat, v)
	}
	return flat
}

func flattenInto(flat []any, v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() && rv.Elem().Kind() == reflect.Array {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return append(flat, v)
		}
		fallthrough
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			flat = flattenInto(flat, rv.Index(i).Interface())
		}
		return flat
	default:
		return append(flat, v)
	}
}

// DependencyKey turns a dependency list into a comparable key
func DependencyKey(values ...any) string {
	key, err := json.Marshal(DependsOnAll(values...))
	if err != nil {
		// only reachable with unsupported values such as channels
		panic(err)
	}
	return string(key)
}
