package plugin

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/grafana/grafana-plugin-sdk-go/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func float(v float64) *float64 {
	return &v
}

func floats(values ...float64) []*float64 {
	out := make([]*float64, 0, len(values))
	for _, v := range values {
		out = append(out, float(v))
	}
	return out
}

func TestCurvesToFrame(t *testing.T) {
	t.Run("rows follow the sampling grid", func(t *testing.T) {
		frame := curvesToFrame("A", graphData{
			StartTime: 1000,
			Step:      60,
			Curves:    []curve{{Title: "CPU load", Values: floats(1, 2, 3)}},
		})

		expected := data.NewFrame("A",
			data.NewField("Time", nil, []time.Time{
				time.UnixMilli(1000000),
				time.UnixMilli(1060000),
				time.UnixMilli(1120000),
			}),
			data.NewField("CPU load", nil, floats(1, 2, 3)),
		)
		expected.RefID = "A"
		expected.Meta = &data.FrameMeta{Type: data.FrameTypeTimeSeriesWide}

		if diff := cmp.Diff(expected, frame, data.FrameTestCompareOptions()...); diff != "" {
			t.Errorf("frame mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("shorter curves are padded with nulls", func(t *testing.T) {
		frame := curvesToFrame("B", graphData{
			StartTime: 0,
			Step:      30,
			Curves: []curve{
				{Title: "in", Values: floats(1)},
				{Title: "out", Values: []*float64{float(5), nil, float(7)}},
			},
		})

		require.Len(t, frame.Fields, 3)
		rows, err := frame.RowLen()
		require.NoError(t, err)
		assert.Equal(t, 3, rows)

		in := frame.Fields[1]
		assert.Equal(t, "in", in.Name)
		assert.Equal(t, 1.0, *in.At(0).(*float64))
		assert.Nil(t, in.At(1))
		assert.Nil(t, in.At(2))

		out := frame.Fields[2]
		assert.Nil(t, out.At(1))
		assert.Equal(t, 7.0, *out.At(2).(*float64))
	})

	t.Run("timestamps are strictly ascending", func(t *testing.T) {
		frame := curvesToFrame("C", graphData{StartTime: 1700000000, Step: 300, Curves: []curve{{Title: "x", Values: floats(1, 2, 3, 4)}}})
		times := frame.Fields[0]
		for i := 1; i < times.Len(); i++ {
			assert.True(t, times.At(i).(time.Time).After(times.At(i-1).(time.Time)))
		}
	})

	t.Run("no curves give a frame without rows", func(t *testing.T) {
		frame := curvesToFrame("D", graphData{StartTime: 1000, Step: 60})
		require.Len(t, frame.Fields, 1)
		assert.Equal(t, 0, frame.Fields[0].Len())
	})
}

func TestEmptyFrame(t *testing.T) {
	frame := emptyFrame("A")
	assert.Equal(t, "A", frame.RefID)
	assert.Empty(t, frame.Fields)
}

func TestMetricFindFrame(t *testing.T) {
	frame := metricFindFrame("V", []MetricFindValue{{Text: "Site 1", Value: "s1"}, {Text: "Site 2", Value: "s2"}})
	require.Len(t, frame.Fields, 2)
	assert.Equal(t, "text", frame.Fields[0].Name)
	assert.Equal(t, "Site 2", frame.Fields[0].At(1))
	assert.Equal(t, "value", frame.Fields[1].Name)
	assert.Equal(t, "s1", frame.Fields[1].At(0))
}
