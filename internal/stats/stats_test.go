package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestFormulaString(t *testing.T) {
	f := Formula{Responses: []string{"Income"}, Factors: []string{"Education", "LoyaltyStatus"}, Interaction: true}
	assert.Equal(t, "Income ~ C(Education) + C(LoyaltyStatus) + C(Education):C(LoyaltyStatus)", f.String())

	m := Formula{Responses: []string{"Income", "CLV"}, Factors: []string{"LoyaltyStatus"}}
	assert.Equal(t, "Income + CLV ~ C(LoyaltyStatus)", m.String())
}

// Balanced 2x2 design with two replicates per cell; sums of squares worked by hand.
func balanced() (Formula, Frame) {
	return Formula{Responses: []string{"y"}, Factors: []string{"a", "b"}, Interaction: true},
		Frame{
			Numeric: map[string][]float64{"y": {1, 3, 5, 7, 3, 5, 11, 13}},
			Factors: map[string][]string{
				"a": {"a1", "a1", "a1", "a1", "a2", "a2", "a2", "a2"},
				"b": {"b1", "b1", "b2", "b2", "b1", "b1", "b2", "b2"},
			},
		}
}

func TestTwoWayANOVABalanced(t *testing.T) {
	f, fr := balanced()
	tbl, err := Fitter{}.TwoWayANOVA(f, fr)
	require.NoError(t, err)
	assert.Equal(t, 8, tbl.N)
	require.Len(t, tbl.Rows, 4)

	want := []struct {
		term  string
		ss, f float64
	}{
		{"C(a)", 32, 16},
		{"C(b)", 72, 36},
		{"C(a):C(b)", 8, 4},
	}
	for _, w := range want {
		row, ok := tbl.Row(w.term)
		require.True(t, ok, w.term)
		assert.InDelta(t, w.ss, row.SumSq, 1e-9, w.term)
		assert.Equal(t, 1.0, row.DF, w.term)
		assert.InDelta(t, w.f, row.F, 1e-9, w.term)
		assert.InDelta(t, 1-distuv.F{D1: 1, D2: 4}.CDF(w.f), row.P, 1e-12, w.term)
	}
	res, ok := tbl.Row("Residual")
	require.True(t, ok)
	assert.InDelta(t, 8, res.SumSq, 1e-9)
	assert.Equal(t, 4.0, res.DF)
	assert.True(t, math.IsNaN(res.F))

	a, _ := tbl.Row("C(a)")
	assert.InDelta(t, 0.0161, a.P, 1e-3)
	assert.Contains(t, tbl.String(), "PR(>F)")
}

func TestTwoWayANOVAWithoutInteraction(t *testing.T) {
	f, fr := balanced()
	f.Interaction = false
	tbl, err := Fitter{}.TwoWayANOVA(f, fr)
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 3)
	res, _ := tbl.Row("Residual")
	assert.InDelta(t, 16, res.SumSq, 1e-9)
	assert.Equal(t, 5.0, res.DF)
}

func TestTwoWayANOVADropsIncompleteRows(t *testing.T) {
	f, fr := balanced()
	fr.Numeric["y"] = append(fr.Numeric["y"], math.NaN(), 4)
	fr.Factors["a"] = append(fr.Factors["a"], "a1", "")
	fr.Factors["b"] = append(fr.Factors["b"], "b1", "b2")
	tbl, err := Fitter{}.TwoWayANOVA(f, fr)
	require.NoError(t, err)
	assert.Equal(t, 8, tbl.N)
}

func TestTwoWayANOVAErrors(t *testing.T) {
	f, fr := balanced()
	fr.Factors["a"] = []string{"x", "x", "x", "x", "x", "x", "x", "x"}
	_, err := Fitter{}.TwoWayANOVA(f, fr)
	require.ErrorIs(t, err, ErrTooFewLevels)

	f, fr = balanced()
	for k := range fr.Numeric {
		fr.Numeric[k] = fr.Numeric[k][:4]
	}
	for k := range fr.Factors {
		fr.Factors[k] = fr.Factors[k][:4]
	}
	fr.Factors["a"] = []string{"a1", "a2", "a1", "a2"}
	_, err = Fitter{}.TwoWayANOVA(f, fr)
	require.ErrorIs(t, err, ErrTooFewObservations)

	_, err = Fitter{}.TwoWayANOVA(Formula{Responses: []string{"y"}, Factors: []string{"a"}}, fr)
	require.Error(t, err)

	f, fr = balanced()
	f.Factors[1] = "missing"
	_, err = Fitter{}.TwoWayANOVA(f, fr)
	require.Error(t, err)
}

func TestTwoWayANOVAEmptyCell(t *testing.T) {
	f := Formula{Responses: []string{"y"}, Factors: []string{"a", "b"}, Interaction: true}
	fr := Frame{
		Numeric: map[string][]float64{"y": {1, 2, 4, 5, 7, 8, 3, 4}},
		Factors: map[string][]string{
			"a": {"a1", "a1", "a1", "a1", "a2", "a2", "a2", "a2"},
			"b": {"b1", "b1", "b2", "b2", "b1", "b1", "b1", "b1"},
		},
	}
	tbl, err := Fitter{}.TwoWayANOVA(f, fr)
	require.NoError(t, err)
	ab, ok := tbl.Row("C(a):C(b)")
	require.True(t, ok)
	assert.Equal(t, 0.0, ab.DF, "empty cell leaves the interaction unidentified")
	assert.True(t, math.IsNaN(ab.F))
}

// Two groups of four points on a unit square around different centers: E = 8I and
// H = [[32 8] [8 2]], so E^-1 H has eigenvalues 4.25 and 0.
func manovaFrame() (Formula, Frame) {
	return Formula{Responses: []string{"x", "y"}, Factors: []string{"g"}},
		Frame{
			Numeric: map[string][]float64{
				"x": {0, 2, 0, 2, 4, 6, 4, 6},
				"y": {0, 0, 2, 2, 1, 1, 3, 3},
			},
			Factors: map[string][]string{"g": {"A", "A", "A", "A", "B", "B", "B", "B"}},
		}
}

func TestMANOVA(t *testing.T) {
	f, fr := manovaFrame()
	res, err := Fitter{}.MANOVA(f, fr)
	require.NoError(t, err)
	assert.Equal(t, 8, res.N)
	assert.Equal(t, []string{"A", "B"}, res.Levels)
	require.Len(t, res.Tests, 4)

	w := res.Wilks()
	assert.Equal(t, "Wilks' lambda", w.Name)
	assert.InDelta(t, 1/5.25, w.Value, 1e-9)
	assert.InDelta(t, 2, w.NumDF, 1e-12)
	assert.InDelta(t, 5, w.DenDF, 1e-12)
	assert.InDelta(t, 10.625, w.F, 1e-9)
	assert.InDelta(t, 1-distuv.F{D1: 2, D2: 5}.CDF(10.625), w.P, 1e-12)

	assert.InDelta(t, 4.25/5.25, res.Tests[1].Value, 1e-9)
	assert.InDelta(t, 4.25, res.Tests[2].Value, 1e-9)
	assert.InDelta(t, 4.25, res.Tests[3].Value, 1e-9)
	// With one hypothesis degree of freedom every approximation is exact and they agree.
	for _, tt := range res.Tests {
		assert.InDelta(t, 10.625, tt.F, 1e-9, tt.Name)
	}
	assert.Contains(t, res.String(), "Wilks' lambda")
}

func TestMANOVAErrors(t *testing.T) {
	f, fr := manovaFrame()
	fr.Factors["g"] = []string{"A", "A", "A", "A", "A", "A", "A", "A"}
	_, err := Fitter{}.MANOVA(f, fr)
	require.ErrorIs(t, err, ErrTooFewLevels)

	f, fr = manovaFrame()
	fr.Numeric["y"] = []float64{1, 1, 1, 1, 1, 1, 1, 1}
	_, err = Fitter{}.MANOVA(f, fr)
	require.ErrorIs(t, err, ErrSingular)

	f, fr = manovaFrame()
	fr.Numeric["x"] = fr.Numeric["x"][:3]
	_, err = Fitter{}.MANOVA(f, fr)
	require.Error(t, err)

	f = Formula{Responses: []string{"x", "y"}, Factors: []string{"g"}}
	fr = Frame{
		Numeric: map[string][]float64{"x": {1, 2, 3}, "y": {3, 1, 2}},
		Factors: map[string][]string{"g": {"A", "B", "B"}},
	}
	_, err = Fitter{}.MANOVA(f, fr)
	require.ErrorIs(t, err, ErrTooFewObservations)
}
