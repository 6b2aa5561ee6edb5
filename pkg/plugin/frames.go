package plugin

import (
	"time"

	"github.com/grafana/grafana-plugin-sdk-go/data"
)

// emptyFrame is returned for targets that have nothing to fetch
func emptyFrame(refID string) *data.Frame {
	frame := data.NewFrame(refID)
	frame.RefID = refID
	return frame
}

// curvesToFrame lays the curves of one graph out as a wide time series. There is one row per
// sampling step of the longest curve; shorter curves are padded with nulls.
func curvesToFrame(refID string, graph graphData) *data.Frame {
	rows := 0
	for _, c := range graph.Curves {
		if len(c.Values) > rows {
			rows = len(c.Values)
		}
	}

	times := make([]time.Time, rows)
	for i := range times {
		times[i] = time.UnixMilli((graph.StartTime + int64(i)*graph.Step) * 1000)
	}

	frame := data.NewFrame(refID, data.NewField("Time", nil, times))
	for _, c := range graph.Curves {
		values := make([]*float64, rows)
		copy(values, c.Values)
		frame.Fields = append(frame.Fields, data.NewField(c.Title, nil, values))
	}

	frame.RefID = refID
	frame.Meta = &data.FrameMeta{
		Type: data.FrameTypeTimeSeriesWide,
	}
	return frame
}

// metricFindFrame renders variable values as the text/value frame Grafana reads for variables
func metricFindFrame(refID string, values []MetricFindValue) *data.Frame {
	texts := make([]string, 0, len(values))
	keys := make([]string, 0, len(values))
	for _, v := range values {
		texts = append(texts, v.Text)
		keys = append(keys, v.Value)
	}
	frame := data.NewFrame(refID,
		data.NewField("text", nil, texts),
		data.NewField("value", nil, keys),
	)
	frame.RefID = refID
	return frame
}
