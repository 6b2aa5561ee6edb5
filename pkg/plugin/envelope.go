package plugin

import (
	"bytes"
	"fmt"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
)

// webAPIEnvelope is the `{result_code, result}` wrapper of every Web-API and ajax response
type webAPIEnvelope struct {
	ResultCode    int
	Result        []byte
	hasResultCode bool
	hasResult     bool
}

func (e *webAPIEnvelope) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	if in.IsNull() {
		if isTopLevel {
			in.Consumed()
		}
		in.Skip()
		return
	}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "result_code":
			e.ResultCode = in.Int()
			e.hasResultCode = true
		case "result":
			e.Result = in.Raw()
			e.hasResult = true
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// stringBodyError reports bodies that are not JSON objects. Checkmk answers some failures
// (bad credentials, exceptions in old versions) with a plain or JSON encoded string whose
// text is the error message.
func stringBodyError(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return newAPIError(ErrorKindTransport, msgUnreadableResponse)
	}
	switch trimmed[0] {
	case '{', '[':
		return nil
	case '"':
		in := jlexer.Lexer{Data: trimmed}
		message := in.String()
		in.Consumed()
		if err := in.Error(); err != nil {
			return wrapAPIError(ErrorKindTransport, msgUnreadableResponse, err)
		}
		return newAPIError(ErrorKindApplication, message)
	default:
		return newAPIError(ErrorKindApplication, string(trimmed))
	}
}

// decodeWebAPIEnvelope returns the raw `result` payload of a successful response, or an
// application error carrying the server message.
func decodeWebAPIEnvelope(body []byte) ([]byte, error) {
	if err := stringBodyError(body); err != nil {
		return nil, err
	}

	var envelope webAPIEnvelope
	if err := easyjson.Unmarshal(body, &envelope); err != nil {
		return nil, wrapAPIError(ErrorKindTransport, msgUnreadableResponse, err)
	}

	if !envelope.hasResultCode || envelope.ResultCode != 0 {
		message := string(bytes.TrimSpace(body))
		if envelope.hasResult {
			message = rawMessageText(envelope.Result)
		}
		return nil, newAPIError(ErrorKindApplication, message)
	}
	return envelope.Result, nil
}

// rawMessageText renders a JSON value for an error message: strings unquoted, everything
// else as JSON text.
func rawMessageText(raw []byte) string {
	in := jlexer.Lexer{Data: raw}
	if len(raw) > 0 && raw[0] == '"' {
		text := in.String()
		if in.Error() == nil {
			return text
		}
	}
	return string(raw)
}

// curve is one named series of a graph response. Missing samples are nil.
type curve struct {
	Title  string
	Values []*float64
}

// graphData is the sampling grid shared by all curves of one graph. StartTime and Step
// are in seconds.
type graphData struct {
	StartTime int64
	Step      int64
	Curves    []curve
}

func decodeSamples(in *jlexer.Lexer) []*float64 {
	if in.IsNull() {
		in.Skip()
		return nil
	}
	values := make([]*float64, 0, 64)
	in.Delim('[')
	for !in.IsDelim(']') {
		if in.IsNull() {
			in.Skip()
			values = append(values, nil)
		} else {
			v := in.Float64()
			values = append(values, &v)
		}
		in.WantComma()
	}
	in.Delim(']')
	return values
}

// decodeCurves reads a curve list, samplesKey names the sample array of the API generation
func decodeCurves(in *jlexer.Lexer, samplesKey string) []curve {
	if in.IsNull() {
		in.Skip()
		return nil
	}
	curves := make([]curve, 0, 4)
	in.Delim('[')
	for !in.IsDelim(']') {
		var c curve
		in.Delim('{')
		for !in.IsDelim('}') {
			key := in.UnsafeFieldName(false)
			in.WantColon()
			switch {
			case key == "title":
				if in.IsNull() {
					in.Skip()
				} else {
					c.Title = in.String()
				}
			case key == samplesKey:
				c.Values = decodeSamples(in)
			default:
				in.SkipRecursive()
			}
			in.WantComma()
		}
		in.Delim('}')
		curves = append(curves, c)
		in.WantComma()
	}
	in.Delim(']')
	return curves
}

// webAPIGraph is the `get_graph` result: {start_time, end_time, step, curves: [{title, rrddata}]}
type webAPIGraph graphData

func (g *webAPIGraph) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.UnsafeFieldName(false)
		in.WantColon()
		if in.IsNull() {
			in.Skip()
			in.WantComma()
			continue
		}
		switch key {
		case "start_time":
			g.StartTime = int64(in.Float64())
		case "step":
			g.Step = int64(in.Float64())
		case "curves":
			g.Curves = decodeCurves(in, "rrddata")
		default:
			in.SkipRecursive()
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func decodeWebAPIGraph(result []byte) (graphData, error) {
	var graph webAPIGraph
	if err := easyjson.Unmarshal(result, &graph); err != nil {
		return graphData{}, wrapAPIError(ErrorKindTransport, fmt.Sprintf("could not decode graph response: %v", err), err)
	}
	return graphData(graph), nil
}
