package plugin

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ContextDialect selects the filter variable encoding understood by a Checkmk version
type ContextDialect string

const (
	// ContextDialect210 is understood by Checkmk 2.1.0, which predates the label group filter
	ContextDialect210    ContextDialect = "2.1.0"
	ContextDialectLatest ContextDialect = "latest"
)

// negation renders a negated flag the way Checkmk checkbox filters expect it
func negation(negated bool) string {
	if negated {
		return "on"
	}
	return ""
}

// buildContext translates a RequestSpec into the visual filter context the Checkmk
// autocompleters and the combined graph API consume. Unset fields produce no filter.
func buildContext(rs RequestSpec, dialect ContextDialect) map[string]any {
	context := map[string]any{}

	if rs.Site != "" {
		context["siteopt"] = map[string]any{"site": rs.Site}
	}

	if rs.HostName != "" {
		context["host"] = map[string]any{"host": rs.HostName}
	}
	if rs.HostNameRegex.isSet() {
		context["hostregex"] = map[string]any{
			"host_regex":     rs.HostNameRegex.Value,
			"neg_host_regex": negation(rs.HostNameRegex.Negated),
		}
	}
	if rs.HostInGroup.isSet() {
		context["opthostgroup"] = map[string]any{
			"opthost_group":     rs.HostInGroup.Value,
			"neg_opthost_group": negation(rs.HostInGroup.Negated),
		}
	}
	if len(rs.HostLabels) > 0 {
		context["host_labels"] = hostLabelsFilter(rs.HostLabels, dialect)
	}
	if tags := hostTagsFilter(rs.HostTags); len(tags) > 0 {
		context["host_tags"] = tags
	}

	if rs.Service != "" {
		context["service"] = map[string]any{"service": rs.Service}
	}
	if rs.ServiceRegex.isSet() {
		context["serviceregex"] = map[string]any{
			"service_regex":     rs.ServiceRegex.Value,
			"neg_service_regex": negation(rs.ServiceRegex.Negated),
		}
	}
	if rs.ServiceInGroup.isSet() {
		context["optservicegroup"] = map[string]any{
			"optservice_group":     rs.ServiceInGroup.Value,
			"neg_optservice_group": negation(rs.ServiceInGroup.Negated),
		}
	}

	return context
}

func hostLabelsFilter(labels []string, dialect ContextDialect) map[string]any {
	if dialect == ContextDialect210 {
		values := make([]map[string]string, 0, len(labels))
		for _, label := range labels {
			values = append(values, map[string]string{"value": label})
		}
		encoded, _ := json.Marshal(values)
		return map[string]any{"host_label": string(encoded)}
	}

	// one AND group holding every label
	filter := map[string]any{
		"host_labels_count":      "1",
		"host_labels_1_bool":     "and",
		"host_labels_1_vs_count": strconv.Itoa(len(labels)),
	}
	for i, label := range labels {
		prefix := fmt.Sprintf("host_labels_1_vs_%d", i+1)
		filter[prefix+"_bool"] = "and"
		filter[prefix+"_vs"] = label
	}
	return filter
}

func hostTagsFilter(tags *HostTags) map[string]any {
	filter := map[string]any{}
	if tags == nil {
		return filter
	}
	for i, tag := range tags {
		if tag.Group == "" {
			continue
		}
		operator := tag.Operator
		if operator == "" {
			operator = TagOperatorIs
		}
		filter[fmt.Sprintf("host_tag_%d_grp", i)] = tag.Group
		filter[fmt.Sprintf("host_tag_%d_op", i)] = operator
		filter[fmt.Sprintf("host_tag_%d_val", i)] = tag.Tag
	}
	return filter
}
