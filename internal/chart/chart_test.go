package chart

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestCountCrosstab(t *testing.T) {
	ct := CountCrosstab("Gender", "Loyalty",
		[]string{"F", "M", "F", "", "M", "F"},
		[]string{"Gold", "Star", "Star", "Gold", "", "Gold"})
	assert.Equal(t, []string{"F", "M"}, ct.Rows)
	assert.Equal(t, []string{"Gold", "Star"}, ct.Cols)
	assert.Equal(t, [][]float64{{2, 1}, {0, 1}}, ct.Counts)

	tr := ct.Transpose()
	assert.Equal(t, "Loyalty", tr.RowVar)
	assert.Equal(t, [][]float64{{2, 0}, {1, 1}}, tr.Counts)
}

func TestRenderEverySpec(t *testing.T) {
	ct := CountCrosstab("a", "b", []string{"x", "y", "x", "y"}, []string{"p", "p", "q", "q"})
	specs := []Spec{
		HistBox{Title: "Income", Variable: "Income", Values: []float64{1, 2, 2, 3, 4, 10, math.NaN()}},
		CountHist{Title: "Loyalty", Variable: "Loyalty", Levels: []string{"Aurora", "Gold"}, Counts: []float64{3, 5}},
		ScatterTrend{X: "Income", Y: "CLV", XS: []float64{1, 2, 3}, YS: []float64{2, 4, 7}, Intercept: -0.33, Slope: 2.5},
		PairedCount{Title: "a and b", Table: ct},
		SplitBox{Value: "Income", Category: "Loyalty", Groups: []Group{{Name: "Gold", Values: []float64{1, 2, 3}}, {Name: "Star", Values: []float64{2, 5, 6}}}},
		Heatmap{Columns: []string{"a", "b"}, Values: [][]float64{{1, 0.5}, {0.5, 1}}},
		StackedBar{Table: ct},
		GroupedScatter{X: "Income", Y: "CLV", Category: "Loyalty", Groups: []XYGroup{{Name: "Gold", X: []float64{1, 2}, Y: []float64{3, 4}}, {Name: "Star", X: []float64{5}, Y: []float64{1}}}},
		GroupedBox{Value: "CLV", Outer: "Education", Inner: "Loyalty", Levels: []string{"BA", "HS"}, Hues: []string{"Gold", "Star"},
			Groups: []Group{{Name: "BA", Hue: "Gold", Values: []float64{1, 2, 3}}, {Name: "HS", Hue: "Star", Values: []float64{4, 5, 6}}}},
	}
	r := DefaultRenderer()
	for _, s := range specs {
		t.Run(s.Kind(), func(t *testing.T) {
			img, err := r.Plot(s)
			require.NoError(t, err)
			assert.Equal(t, s.Kind(), img.Kind)
			assert.Equal(t, "image/png", img.ContentType())
			assert.True(t, bytes.HasPrefix(img.Data, pngMagic))
		})
	}
}

func TestRenderSVG(t *testing.T) {
	r := DefaultRenderer()
	r.Format = "svg"
	img, err := r.Plot(CountHist{Variable: "Gender", Levels: []string{"F", "M"}, Counts: []float64{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, "image/svg+xml", img.ContentType())
	assert.Contains(t, string(img.Data), "<svg")
}

func TestRenderEmptyDataFails(t *testing.T) {
	r := DefaultRenderer()
	_, err := r.Plot(HistBox{Variable: "Income", Values: []float64{math.NaN()}})
	require.ErrorIs(t, err, ErrNoData)

	_, err = r.Plot(StackedBar{Table: CountCrosstab("a", "b", nil, nil)})
	require.ErrorIs(t, err, ErrNoData)

	_, err = r.Plot(SplitBox{Groups: []Group{{Name: "Gold"}}})
	require.ErrorIs(t, err, ErrNoData)
}

func TestRenderUnknownFormat(t *testing.T) {
	r := DefaultRenderer()
	r.Format = "bmp"
	_, err := r.Plot(CountHist{Levels: []string{"F"}, Counts: []float64{1}})
	require.Error(t, err)
}

func TestRenderLabelsAndLegends(t *testing.T) {
	r := DefaultRenderer()
	r.Format = "svg"

	img, err := r.Plot(Heatmap{Columns: []string{"a", "b"}, Values: [][]float64{{1, math.NaN()}, {math.NaN(), 1}}})
	require.NoError(t, err)
	assert.Contains(t, string(img.Data), "n/a")
	assert.Contains(t, string(img.Data), "1.00")

	img, err = r.Plot(GroupedBox{Value: "CLV", Outer: "Education", Inner: "Loyalty", Levels: []string{"BA"}, Hues: []string{"Gold", "Star"},
		Groups: []Group{{Name: "BA", Hue: "Gold", Values: []float64{1, 2, 3}}, {Name: "BA", Hue: "Star", Values: []float64{4, 5, 6}}}})
	require.NoError(t, err)
	assert.Contains(t, string(img.Data), "Gold")
	assert.Contains(t, string(img.Data), "Star")
}
