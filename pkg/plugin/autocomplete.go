package plugin

import (
	"fmt"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
)

const (
	autocompleteEndpoint      = "ajax_vs_autocomplete.py"
	labelAutocompleteEndpoint = "ajax_autocomplete_labels.py"

	// labelIdent is served by a dedicated endpoint with its own request and response shape
	labelIdent = "label"
)

// Choice is one autocomplete option. A nil value marks a heading that can not be selected.
type Choice struct {
	Value      *string `json:"value"`
	Label      string  `json:"label"`
	IsDisabled bool    `json:"isDisabled"`
}

// SelectedValue returns the value of a selectable choice
func (c Choice) SelectedValue() (string, error) {
	if c.Value == nil {
		return "", newAPIError(ErrorKindPrecondition, fmt.Sprintf("choice %q has no value and can not be selected", c.Label))
	}
	return *c.Value, nil
}

// AutocompleteParams are forwarded to the Checkmk autocompleter next to the filter context.
// Strict is either a bool or the string "with_source".
type AutocompleteParams struct {
	Strict                   any    `json:"strict,omitempty"`
	ShowIndependentOfContext *bool  `json:"show_independent_of_context,omitempty"`
	EscapeRegex              *bool  `json:"escape_regex,omitempty"`
	World                    string `json:"world,omitempty"`
	GroupType                string `json:"group_type,omitempty"`
	GroupID                  string `json:"group_id,omitempty"`
}

// defaultAutocompleteParams returns the parameters the Checkmk GUI sends for ident
func defaultAutocompleteParams(ident string) AutocompleteParams {
	params := AutocompleteParams{Strict: true, World: "core"}
	switch ident {
	case "available_graphs", "monitored_metrics":
		params.Strict = "with_source"
	}
	return params
}

// withDefaults fills params left unset by the caller
func (p AutocompleteParams) withDefaults(ident string) AutocompleteParams {
	defaults := defaultAutocompleteParams(ident)
	if p.Strict == nil {
		p.Strict = defaults.Strict
	}
	if p.World == "" {
		p.World = defaults.World
	}
	return p
}

// autocompleteRequest is the ajax_vs_autocomplete.py payload
type autocompleteRequest struct {
	Ident  string         `json:"ident"`
	Value  string         `json:"value"`
	Params map[string]any `json:"params"`
}

func newAutocompleteRequest(ident, prefix string, params AutocompleteParams, context map[string]any) autocompleteRequest {
	merged := map[string]any{}
	if params.Strict != nil {
		merged["strict"] = params.Strict
	}
	if params.ShowIndependentOfContext != nil {
		merged["show_independent_of_context"] = *params.ShowIndependentOfContext
	}
	if params.EscapeRegex != nil {
		merged["escape_regex"] = *params.EscapeRegex
	}
	if params.World != "" {
		merged["world"] = params.World
	}
	if params.GroupType != "" {
		merged["group_type"] = params.GroupType
	}
	if params.GroupID != "" {
		merged["group_id"] = params.GroupID
	}
	merged["context"] = context
	return autocompleteRequest{Ident: ident, Value: prefix, Params: merged}
}

// labelAutocompleteRequest is the ajax_autocomplete_labels.py payload
type labelAutocompleteRequest struct {
	World       string `json:"world"`
	SearchLabel string `json:"search_label"`
}

// autocompleteChoices decodes `{choices: [[value, label], ...]}`
type autocompleteChoices []Choice

func (c *autocompleteChoices) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if key != "choices" || in.IsNull() {
			in.SkipRecursive()
			in.WantComma()
			continue
		}
		choices := make([]Choice, 0, 16)
		in.Delim('[')
		for !in.IsDelim(']') {
			choices = append(choices, decodeChoicePair(in))
			in.WantComma()
		}
		in.Delim(']')
		*c = choices
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func decodeChoicePair(in *jlexer.Lexer) Choice {
	var choice Choice
	in.Delim('[')
	for i := 0; !in.IsDelim(']'); i++ {
		switch {
		case in.IsNull():
			in.Skip()
		case i == 0:
			value := in.String()
			choice.Value = &value
		case i == 1:
			choice.Label = in.String()
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim(']')
	choice.IsDisabled = choice.Value == nil
	return choice
}

// labelChoices decodes the flat `[{value}, ...]` label list
type labelChoices []Choice

func (c *labelChoices) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	choices := make([]Choice, 0, 16)
	in.Delim('[')
	for !in.IsDelim(']') {
		in.Delim('{')
		for !in.IsDelim('}') {
			key := in.UnsafeFieldName(false)
			in.WantColon()
			if key == "value" && !in.IsNull() {
				value := in.String()
				choices = append(choices, Choice{Value: &value, Label: value})
			} else {
				in.SkipRecursive()
			}
			in.WantComma()
		}
		in.Delim('}')
		in.WantComma()
	}
	in.Delim(']')
	*c = choices
	if isTopLevel {
		in.Consumed()
	}
}

func decodeAutocompleteChoices(result []byte) ([]Choice, error) {
	var choices autocompleteChoices
	if err := easyjson.Unmarshal(result, &choices); err != nil {
		return nil, wrapAPIError(ErrorKindTransport, msgUnreadableResponse, err)
	}
	return choices, nil
}

func decodeLabelChoices(result []byte) ([]Choice, error) {
	var choices labelChoices
	if err := easyjson.Unmarshal(result, &choices); err != nil {
		return nil, wrapAPIError(ErrorKindTransport, msgUnreadableResponse, err)
	}
	return choices, nil
}
