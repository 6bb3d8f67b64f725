package router

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/custlens/internal/chart"
	"github.com/KaramelBytes/custlens/internal/dataset"
	"github.com/KaramelBytes/custlens/internal/stats"
)

type fakePlotter struct {
	calls int
	specs []chart.Spec
	err   error
}

func (p *fakePlotter) Plot(spec chart.Spec) (*chart.Image, error) {
	p.calls++
	p.specs = append(p.specs, spec)
	if p.err != nil {
		return nil, p.err
	}
	return &chart.Image{Kind: spec.Kind(), Format: "png", Data: []byte(spec.Kind())}, nil
}

type fakeModeler struct {
	calls    int
	formulas []string
	err      error
}

func (m *fakeModeler) TwoWayANOVA(f stats.Formula, fr stats.Frame) (*stats.AnovaTable, error) {
	m.calls++
	m.formulas = append(m.formulas, f.String())
	if m.err != nil {
		return nil, m.err
	}
	return &stats.AnovaTable{Formula: f.String()}, nil
}

func (m *fakeModeler) MANOVA(f stats.Formula, fr stats.Frame) (*stats.ManovaResult, error) {
	m.calls++
	m.formulas = append(m.formulas, f.String())
	if m.err != nil {
		return nil, m.err
	}
	return &stats.ManovaResult{Formula: f.String()}, nil
}

func customers(t *testing.T) *dataset.Dataset {
	t.Helper()
	day := time.Date(2016, 2, 1, 0, 0, 0, 0, time.UTC)
	ds, err := dataset.New("customers",
		dataset.NumericColumn("Income", 50000, 70000, 30000, 42000, math.NaN(), 61000),
		dataset.NumericColumn("Customer Lifetime Value", 2500, 7100, 3900, 5200, 4100, 8800),
		dataset.NumericColumn("Customer-Lifetime Value", 1, 2, 3, 4, 5, 6),
		dataset.NumericColumn("EnrollmentYear", 2016, 2017, 2015, 2018, 2016, 2017),
		dataset.CategoricalColumn("Education", "Bachelor", "Bachelor", "High School", "College", "Bachelor", ""),
		dataset.CategoricalColumn("LoyaltyStatus", "Gold", "Silver", "Gold", "Star", "Star", "Gold"),
		dataset.CategoricalColumn("Gender", "female", "male", "female", "male", "female", "male"),
		dataset.CategoricalColumn("Marital Status", "Married", "Single", "Married", "Divorced", "Single", "Married"),
		dataset.DatetimeColumn("EnrollmentDateOpening", day, day, time.Time{}, day, day, day),
	)
	require.NoError(t, err)
	return ds
}

func newRouter() (*Router, *fakePlotter, *fakeModeler) {
	p, m := &fakePlotter{}, &fakeModeler{}
	return New(p, m, nil), p, m
}

func TestClassify(t *testing.T) {
	ds := customers(t)
	vars, err := Classify(ds, []string{"Income", "Gender"})
	require.NoError(t, err)
	assert.Equal(t, []Variable{{"Income", dataset.Numeric}, {"Gender", dataset.Categorical}}, vars)
	assert.Equal(t, Shape{Numeric: 1, Categorical: 1}, ShapeOf(vars))

	_, err = Classify(ds, []string{"Nope"})
	assert.Equal(t, ErrCodeUnknownColumn, Code(err))
	assert.ErrorIs(t, err, dataset.ErrUnknownColumn)

	_, err = Classify(ds, []string{"Income", "Income"})
	assert.Equal(t, ErrCodeDuplicate, Code(err))

	_, err = Classify(ds, []string{"EnrollmentDateOpening"})
	assert.Equal(t, ErrCodeUnsupportedKind, Code(err))
}

func TestDefaultTableDispatch(t *testing.T) {
	tbl := DefaultTable()
	tests := []struct {
		shape Shape
		mode  Mode
		want  RecipeID
	}{
		{Shape{1, 0}, Pairwise, HistBox},
		{Shape{0, 1}, Pairwise, CountHist},
		{Shape{2, 0}, Pairwise, ScatterTrend},
		{Shape{0, 2}, Pairwise, PairedCount},
		{Shape{1, 1}, Pairwise, SplitBox},
		{Shape{3, 0}, Pairwise, CorrHeatmap},
		{Shape{7, 0}, Pairwise, CorrHeatmap},
		{Shape{2, 1}, Pairwise, ScatterManova},
		{Shape{1, 2}, Pairwise, TwoWayAnova},
		{Shape{2, 0}, Joint, CorrHeatmap},
		{Shape{4, 0}, Joint, CorrHeatmap},
		{Shape{0, 2}, Joint, StackedBar},
		{Shape{1, 1}, Joint, SplitBox},
		{Shape{2, 1}, Joint, ScatterManova},
		{Shape{1, 2}, Joint, TwoWayAnova},
		{Shape{0, 3}, Pairwise, ""},
		{Shape{0, 3}, Joint, ""},
		{Shape{3, 1}, Pairwise, ""},
		{Shape{2, 2}, Joint, ""},
		{Shape{0, 0}, Pairwise, ""},
	}
	for _, tt := range tests {
		t.Run(tt.shape.String()+"/"+tt.mode.String(), func(t *testing.T) {
			r, ok := tbl.Lookup(tt.shape, tt.mode)
			if tt.want == "" {
				assert.False(t, ok, "got %s", r.Recipe)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, r.Recipe)
		})
	}
}

func TestOneNumericOneCategoricalIsAlwaysSplitBox(t *testing.T) {
	ds := customers(t)
	r, p, _ := newRouter()
	for _, num := range ds.NamesOfKind(dataset.Numeric) {
		for _, cat := range ds.NamesOfKind(dataset.Categorical) {
			for _, sel := range [][]string{{num, cat}, {cat, num}} {
				for _, mode := range []Mode{Pairwise, Joint} {
					out, err := r.Route(dataset.All(ds), Selection{Variables: sel, Mode: mode})
					require.NoError(t, err, sel)
					assert.Equal(t, SplitBox, out.Rule.Recipe, sel)
					assert.IsType(t, chart.SplitBox{}, out.Spec)
				}
			}
		}
	}
	assert.Equal(t, 2*2*4*4, p.calls)
}

func TestThreeCategoricalIsRejected(t *testing.T) {
	ds := customers(t)
	r, p, m := newRouter()
	for _, mode := range []Mode{Pairwise, Joint} {
		_, err := r.Route(dataset.All(ds), Selection{Variables: []string{"Education", "LoyaltyStatus", "Gender"}, Mode: mode})
		var se *SelectionError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, ErrCodeNoRecipe, se.Code)
		assert.Equal(t, MsgNoRecipe, err.Error())
		assert.Equal(t, Shape{0, 3}, se.Shape)
	}
	assert.Zero(t, p.calls)
	assert.Zero(t, m.calls)
}

func TestCollisionStopsBeforeModelFitting(t *testing.T) {
	ds := customers(t)
	r, p, m := newRouter()
	_, err := r.Route(dataset.All(ds), Selection{Variables: []string{"Customer Lifetime Value", "Customer-Lifetime Value", "LoyaltyStatus"}})
	var ce *CollisionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "CustomerLifetimeValue", ce.Identifier)
	assert.Contains(t, err.Error(), MsgAmbiguous)
	assert.True(t, IsRecoverable(err))
	assert.Zero(t, m.calls)
	assert.Zero(t, p.calls)
}

func TestCollisionIgnoredWithoutModel(t *testing.T) {
	ds := customers(t)
	r, p, _ := newRouter()
	out, err := r.Route(dataset.All(ds), Selection{Variables: []string{"Customer Lifetime Value", "Customer-Lifetime Value"}})
	require.NoError(t, err)
	assert.Equal(t, ScatterTrend, out.Rule.Recipe)
	assert.Equal(t, 1, p.calls)
}

func TestEmptySelection(t *testing.T) {
	ds := customers(t)
	r, p, _ := newRouter()
	_, err := r.Route(dataset.All(ds), Selection{})
	require.Error(t, err)
	assert.Equal(t, MsgSelectOne, err.Error())
	assert.Equal(t, ErrCodeEmptySelection, Code(err))

	_, err = r.Route(dataset.All(ds), Selection{Variables: []string{"Income"}, Mode: Joint})
	require.Error(t, err)
	assert.Equal(t, MsgSelectTwo, err.Error())
	assert.Zero(t, p.calls)
}

func TestModelErrorIsRecoveredWithoutRender(t *testing.T) {
	ds := customers(t)
	r, p, m := newRouter()
	m.err = stats.ErrSingular
	_, err := r.Route(dataset.All(ds), Selection{Variables: []string{"Income", "Education", "LoyaltyStatus"}})
	var me *ModelError
	require.ErrorAs(t, err, &me)
	assert.ErrorIs(t, err, stats.ErrSingular)
	assert.Equal(t, TwoWayAnova, me.Recipe)
	assert.True(t, IsRecoverable(err))
	assert.Equal(t, 1, m.calls)
	assert.Zero(t, p.calls)
}

func TestRenderErrorPropagates(t *testing.T) {
	ds := customers(t)
	r, p, _ := newRouter()
	boom := errors.New("boom")
	p.err = boom
	_, err := r.Route(dataset.All(ds), Selection{Variables: []string{"Income"}})
	require.ErrorIs(t, err, boom)
	assert.False(t, IsRecoverable(err))
}

func TestOneCollaboratorCallPerSelection(t *testing.T) {
	ds := customers(t)
	selections := []struct {
		sel   Selection
		model bool
	}{
		{Selection{Variables: []string{"Income"}}, false},
		{Selection{Variables: []string{"Gender"}}, false},
		{Selection{Variables: []string{"Income", "EnrollmentYear"}}, false},
		{Selection{Variables: []string{"Gender", "LoyaltyStatus"}}, false},
		{Selection{Variables: []string{"Income", "EnrollmentYear", "Customer Lifetime Value"}}, false},
		{Selection{Variables: []string{"Gender", "LoyaltyStatus"}, Mode: Joint}, false},
		{Selection{Variables: []string{"Income", "Customer Lifetime Value", "LoyaltyStatus"}}, true},
		{Selection{Variables: []string{"Customer Lifetime Value", "Education", "LoyaltyStatus"}}, true},
	}
	for _, s := range selections {
		r, p, m := newRouter()
		_, err := r.Route(dataset.All(ds), s.sel)
		require.NoError(t, err, s.sel.Variables)
		assert.Equal(t, 1, p.calls, s.sel.Variables)
		if s.model {
			assert.Equal(t, 1, m.calls, s.sel.Variables)
		} else {
			assert.Zero(t, m.calls, s.sel.Variables)
		}
	}
}

func TestModelFormulasUseSanitizedIdentifiers(t *testing.T) {
	ds := customers(t)
	r, _, m := newRouter()
	out, err := r.Route(dataset.All(ds), Selection{Variables: []string{"Customer Lifetime Value", "Education", "LoyaltyStatus"}})
	require.NoError(t, err)
	want := "CustomerLifetimeValue ~ C(Education) + C(LoyaltyStatus) + C(Education):C(LoyaltyStatus)"
	assert.Equal(t, want, out.Formula)
	assert.Equal(t, []string{want}, m.formulas)
	box := out.Spec.(chart.GroupedBox)
	assert.Equal(t, []string{"Bachelor", "College", "High School"}, box.Levels)
	assert.Equal(t, []string{"Gold", "Silver", "Star"}, box.Hues)

	out, err = r.Route(dataset.All(ds), Selection{Variables: []string{"Income", "Customer Lifetime Value", "Marital Status"}})
	require.NoError(t, err)
	assert.Equal(t, "Income + CustomerLifetimeValue ~ C(MaritalStatus)", out.Formula)
	scatter := out.Spec.(chart.GroupedScatter)
	require.Len(t, scatter.Groups, 3)
	assert.Equal(t, "Divorced", scatter.Groups[0].Name)
	// Income is null in row 4 (Single), so Single keeps one point.
	assert.Len(t, scatter.Groups[2].X, 1)
}

func TestRouteIsIdempotent(t *testing.T) {
	ds := customers(t)
	r := New(chart.DefaultRenderer(), stats.Fitter{}, nil)
	for _, sel := range []Selection{
		{Variables: []string{"Income"}},
		{Variables: []string{"Income", "Customer Lifetime Value"}},
		{Variables: []string{"Income", "Gender"}},
		{Variables: []string{"Gender", "LoyaltyStatus"}, Mode: Joint},
	} {
		a, err := r.Route(dataset.All(ds), sel)
		require.NoError(t, err, sel.Variables)
		b, err := r.Route(dataset.All(ds), sel)
		require.NoError(t, err, sel.Variables)
		// Specs carry NaN for null cells, so compare the plan and the rendered bytes.
		assert.Equal(t, a.Plan, b.Plan)
		assert.Equal(t, a.Spec.Kind(), b.Spec.Kind())
		assert.Equal(t, a.Image.Data, b.Image.Data)
	}
}

func TestScatterTrendLine(t *testing.T) {
	ds := customers(t)
	r, _, _ := newRouter()
	out, err := r.Route(dataset.All(ds), Selection{Variables: []string{"Customer-Lifetime Value", "EnrollmentYear"}})
	require.NoError(t, err)
	sc := out.Spec.(chart.ScatterTrend)
	assert.Equal(t, "Customer-Lifetime Value", sc.X)
	assert.False(t, math.IsNaN(sc.Slope))

	alpha, beta := trend([]float64{1, 2, 3, math.NaN()}, []float64{3, 5, 7, 100})
	assert.InDelta(t, 1, alpha, 1e-12)
	assert.InDelta(t, 2, beta, 1e-12)
	alpha, _ = trend([]float64{1, 1}, []float64{2, 3})
	assert.True(t, math.IsNaN(alpha))
}

func TestEndToEndSplitBoxGroups(t *testing.T) {
	ds, err := dataset.New("customers",
		dataset.NumericColumn("Income", 50000, 70000, 30000),
		dataset.CategoricalColumn("Education", "Bachelor", "Bachelor", "High School"),
		dataset.CategoricalColumn("LoyaltyStatus", "Gold", "Silver", "Gold"),
	)
	require.NoError(t, err)
	r, p, _ := newRouter()
	out, err := r.Route(dataset.All(ds), Selection{Variables: []string{"Income", "Education"}})
	require.NoError(t, err)
	assert.Equal(t, SplitBox, out.Rule.Recipe)
	assert.Equal(t, []chart.Group{
		{Name: "Bachelor", Values: []float64{50000, 70000}},
		{Name: "High School", Values: []float64{30000}},
	}, out.Groups)
	assert.Equal(t, 1, p.calls)
}

func TestFilteredViewDrivesRecipes(t *testing.T) {
	ds := customers(t)
	v, err := dataset.NewView(ds, []int{0, 2})
	require.NoError(t, err)
	r, _, _ := newRouter()
	out, err := r.Route(v, Selection{Variables: []string{"LoyaltyStatus"}})
	require.NoError(t, err)
	assert.Equal(t, chart.CountHist{Title: "LoyaltyStatus", Variable: "LoyaltyStatus", Levels: []string{"Gold"}, Counts: []float64{2}}, out.Spec)
}

func TestEmptyViewIsRecoverable(t *testing.T) {
	ds := customers(t)
	empty, err := dataset.NewView(ds, nil)
	require.NoError(t, err)
	r, p, m := newRouter()
	for _, vars := range [][]string{
		{"Income"},
		{"Gender"},
		{"Income", "Customer Lifetime Value"},
		{"Income", "Gender"},
		{"Gender", "LoyaltyStatus"},
		{"Income", "Education", "LoyaltyStatus"},
	} {
		_, err := r.Route(empty, Selection{Variables: vars})
		require.Error(t, err, vars)
		assert.Equal(t, ErrCodeNoRows, Code(err), vars)
		assert.True(t, IsRecoverable(err), vars)
		assert.Equal(t, MsgNoRows, err.Error())
	}
	assert.Zero(t, p.calls)
	assert.Zero(t, m.calls)
}

func TestNullOnlyValuesAreRecoverable(t *testing.T) {
	ds := customers(t)
	// Row 4 is the only row and its income is null.
	v, err := dataset.NewView(ds, []int{4})
	require.NoError(t, err)
	r := New(chart.DefaultRenderer(), stats.Fitter{}, nil)
	_, err = r.Route(v, Selection{Variables: []string{"Income"}})
	require.ErrorIs(t, err, chart.ErrNoData)
	assert.Equal(t, ErrCodeNoRows, Code(err))
	assert.True(t, IsRecoverable(err))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "CustomerLifetimeValue", Sanitize("Customer Lifetime Value"))
	assert.Equal(t, "ProvinceorState", Sanitize("Province or State"))
	assert.Equal(t, "Loyalty_Status2", Sanitize("Loyalty_Status-2"))
	assert.Equal(t, "", Sanitize(" - "))
	assert.Equal(t, "_2ndIncome", Sanitize("2nd Income"))
	assert.Equal(t, "_2020", Sanitize("2020"))

	_, err := CheckIdentifiers([]Variable{{Name: "(%)"}})
	var ce *CollisionError
	require.ErrorAs(t, err, &ce)
	assert.Empty(t, ce.Identifier)

	ids, err := CheckIdentifiers([]Variable{{Name: "Income"}, {Name: "Marital Status"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Income": "Income", "Marital Status": "MaritalStatus"}, ids)
}

func TestAudit(t *testing.T) {
	assert.Empty(t, DefaultTable().Audit())

	bad := Table{MaxCategorical: 2, Rules: []Rule{
		{CorrHeatmap, "", AtLeast(2), Exactly(0), AnyMode},
		{ScatterTrend, "", Exactly(2), Exactly(0), Pairwise},
		{StackedBar, "", Exactly(0), Exactly(3), Joint},
	}}
	findings := bad.Audit()
	require.Len(t, findings, 2)
	assert.Equal(t, ScatterTrend, findings[0].Recipe)
	assert.Equal(t, "shadowed by earlier rules", findings[0].Reason)
	assert.Equal(t, StackedBar, findings[1].Recipe)
	assert.Equal(t, Joint, findings[1].Mode)
	assert.Equal(t, "matches no supported shape", findings[1].Reason)
}

func TestUnsupported(t *testing.T) {
	want := []Shape{{0, 3}, {1, 3}, {2, 2}, {2, 3}, {3, 1}, {3, 2}, {3, 3}}
	assert.Equal(t, want, DefaultTable().Unsupported(Pairwise, 3))
	assert.Equal(t, want, DefaultTable().Unsupported(Joint, 3))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Joint")
	require.NoError(t, err)
	assert.Equal(t, Joint, m)
	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Pairwise, m)
	_, err = ParseMode("grid")
	assert.Error(t, err)

	var any Mode
	require.NoError(t, any.UnmarshalText([]byte(AnyMode.String())))
	assert.Equal(t, AnyMode, any)
	assert.Error(t, any.UnmarshalText([]byte("pairwise,grid")))
}

func TestTableFormatGolden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "recipe_table", []byte(DefaultTable().Format()))
}
