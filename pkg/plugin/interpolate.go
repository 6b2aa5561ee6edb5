package plugin

import (
	"fmt"
	"regexp"
	"strings"
)

// ScopedVar is a template variable value sent along with a query. Value is a string or,
// for multi-value variables, a list.
type ScopedVar struct {
	Text  any `json:"text"`
	Value any `json:"value"`
}

// ScopedVars maps variable names to their current values
type ScopedVars map[string]ScopedVar

// variablePattern matches $var, ${var}, ${var:format} and [[var]]
var variablePattern = regexp.MustCompile(`\$(\w+)|\[\[(\w+?)(?::(\w+))?\]\]|\$\{(\w+)(?::([^}]+))?\}`)

// replace substitutes every known variable in s. Unknown variables are left untouched.
func (vars ScopedVars) replace(s string) string {
	if len(vars) == 0 || !strings.ContainsAny(s, "$[") {
		return s
	}
	return variablePattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := variablePattern.FindStringSubmatch(match)
		name, format := groups[1], ""
		switch {
		case groups[2] != "":
			name, format = groups[2], groups[3]
		case groups[4] != "":
			name, format = groups[4], groups[5]
		}
		v, ok := vars[name]
		if !ok {
			return match
		}
		return formatVariable(v.Value, format)
	})
}

func formatVariable(value any, format string) string {
	separator := "|"
	if format == "csv" {
		separator = ","
	}
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, separator)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, separator)
	default:
		return fmt.Sprint(v)
	}
}

func (vars ScopedVars) replaceOption(o *NegatableOption) *NegatableOption {
	if o == nil {
		return nil
	}
	return &NegatableOption{Value: vars.replace(o.Value), Negated: o.Negated}
}

// Interpolate returns a copy of rs with template variables replaced in every string field.
// rs itself is not modified.
func (vars ScopedVars) Interpolate(rs RequestSpec) RequestSpec {
	if len(vars) == 0 {
		return rs
	}

	rs.Site = vars.replace(rs.Site)
	rs.HostName = vars.replace(rs.HostName)
	rs.HostNameRegex = vars.replaceOption(rs.HostNameRegex)
	rs.HostInGroup = vars.replaceOption(rs.HostInGroup)
	if rs.HostLabels != nil {
		labels := make([]string, len(rs.HostLabels))
		for i, label := range rs.HostLabels {
			labels[i] = vars.replace(label)
		}
		rs.HostLabels = labels
	}
	if rs.HostTags != nil {
		tags := *rs.HostTags
		for i := range tags {
			tags[i].Group = vars.replace(tags[i].Group)
			tags[i].Tag = vars.replace(tags[i].Tag)
		}
		rs.HostTags = &tags
	}
	rs.Service = vars.replace(rs.Service)
	rs.ServiceRegex = vars.replaceOption(rs.ServiceRegex)
	rs.ServiceInGroup = vars.replaceOption(rs.ServiceInGroup)
	rs.Graph = vars.replace(rs.Graph)
	return rs
}
