package plugin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func genNegatableOption() *rapid.Generator[*NegatableOption] {
	return rapid.Custom(func(t *rapid.T) *NegatableOption {
		if rapid.Bool().Draw(t, "unset") {
			return nil
		}
		return &NegatableOption{
			Value:   rapid.StringMatching(`[a-z0-9.*]{0,8}`).Draw(t, "value"),
			Negated: rapid.Bool().Draw(t, "negated"),
		}
	})
}

func genRequestSpec() *rapid.Generator[RequestSpec] {
	word := rapid.StringMatching(`[a-z0-9_]{0,8}`)
	return rapid.Custom(func(t *rapid.T) RequestSpec {
		rs := RequestSpec{
			GraphType:      rapid.SampledFrom([]GraphType{"", GraphTypeTemplate, GraphTypeMetric}).Draw(t, "graph_type"),
			Aggregation:    rapid.SampledFrom([]Aggregation{"", AggregationLines, AggregationSum, AggregationMax}).Draw(t, "aggregation"),
			Site:           word.Draw(t, "site"),
			HostName:       word.Draw(t, "host_name"),
			HostNameRegex:  genNegatableOption().Draw(t, "host_name_regex"),
			HostInGroup:    genNegatableOption().Draw(t, "host_in_group"),
			Service:        word.Draw(t, "service"),
			ServiceRegex:   genNegatableOption().Draw(t, "service_regex"),
			ServiceInGroup: genNegatableOption().Draw(t, "service_in_group"),
			Graph:          word.Draw(t, "graph"),
		}
		if rapid.Bool().Draw(t, "has_labels") {
			rs.HostLabels = rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,4}:[a-z]{1,4}`), 0, 3).Draw(t, "host_labels")
		}
		if rapid.Bool().Draw(t, "has_tags") {
			rs.HostTags = &HostTags{
				{Group: word.Draw(t, "group"), Tag: word.Draw(t, "tag"), Operator: TagOperatorIsNot},
			}
		}
		return rs
	})
}

func TestDependsOnHierarchy(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rs := genRequestSpec().Draw(t, "rs")

		site := DependsOnAll(DependsOnSite(rs))
		host := DependsOnAll(DependsOnHost(rs))
		service := DependsOnAll(DependsOnService(rs))

		require.GreaterOrEqual(t, len(host), len(site))
		require.GreaterOrEqual(t, len(service), len(host))
		require.Equal(t, DependencyKey(site), DependencyKey(host[:len(site)]))
		require.Equal(t, DependencyKey(host), DependencyKey(service[:len(host)]))
	})
}

func TestDependencyKeyIgnoresUnrelatedFields(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rs := genRequestSpec().Draw(t, "rs")
		changed := rs
		changed.Graph = rs.Graph + "_other"
		changed.Service = rs.Service + "_other"

		require.Equal(t, DependencyKey(DependsOnHost(rs)), DependencyKey(DependsOnHost(changed)))
		require.NotEqual(t, DependencyKey(DependsOnService(rs)), DependencyKey(DependsOnService(changed)))
	})
}

func TestDependsOnAll(t *testing.T) {
	t.Run("flattens nested lists", func(t *testing.T) {
		flat := DependsOnAll([]any{"a", []any{"b", []string{"c", "d"}}}, "e")
		assert.Equal(t, []any{"a", "b", "c", "d", "e"}, flat)
	})

	t.Run("nothing depends on nothing", func(t *testing.T) {
		assert.Empty(t, DependsOnAll(DependsOnNothing()))
	})

	t.Run("host tags are flattened into their slots", func(t *testing.T) {
		tags := &HostTags{{Group: "agent"}, {}, {}}
		flat := DependsOnAll(tags)
		require.Len(t, flat, 3)
		assert.Equal(t, TagValue{Group: "agent"}, flat[0])
	})

	t.Run("unset values stay in place", func(t *testing.T) {
		flat := DependsOnAll(DependsOnHost(RequestSpec{Site: "s1"}))
		require.Len(t, flat, 6)
		assert.Equal(t, "s1", flat[0])
	})
}

func TestRequestSpecDefaults(t *testing.T) {
	rs := RequestSpec{Graph: "cpu"}.WithDefaults()
	assert.Equal(t, AggregationLines, rs.Aggregation)
	assert.Equal(t, GraphTypeTemplate, rs.GraphType)

	kept := RequestSpec{Aggregation: AggregationSum, GraphType: GraphTypeMetric}.WithDefaults()
	assert.Equal(t, AggregationSum, kept.Aggregation)
	assert.Equal(t, GraphTypeMetric, kept.GraphType)
}

func TestGraphID(t *testing.T) {
	assert.Equal(t, "cpu_utilization", RequestSpec{Graph: "cpu_utilization", GraphType: GraphTypeTemplate}.graphID())
	assert.Equal(t, "METRIC_mem_used", RequestSpec{Graph: "mem_used", GraphType: GraphTypeMetric}.graphID())
}
