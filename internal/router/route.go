// Package router classifies selected variables and dispatches them to an analysis recipe.
package router

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/custlens/internal/analysis"
	"github.com/KaramelBytes/custlens/internal/chart"
	"github.com/KaramelBytes/custlens/internal/dataset"
	"github.com/KaramelBytes/custlens/internal/stats"
)

// Plotter renders chart specs.
type Plotter interface {
	Plot(spec chart.Spec) (*chart.Image, error)
}

// Modeler fits the statistical models of the model recipes.
type Modeler interface {
	TwoWayANOVA(f stats.Formula, fr stats.Frame) (*stats.AnovaTable, error)
	MANOVA(f stats.Formula, fr stats.Frame) (*stats.ManovaResult, error)
}

// Selection is the input of one panel.
type Selection struct {
	Variables []string `json:"variables"`
	Mode      Mode     `json:"mode"`
}

// Plan is the routing decision for a selection, before anything is computed.
type Plan struct {
	Rule      Rule       `json:"rule"`
	Mode      Mode       `json:"mode"`
	Shape     Shape      `json:"shape"`
	Variables []Variable `json:"variables"`
}

// Outcome is the result of a routed selection.
type Outcome struct {
	Plan
	Spec    chart.Spec           `json:"spec"`
	Image   *chart.Image         `json:"image,omitempty"`
	Groups  []chart.Group        `json:"groups,omitempty"`
	Corr    *analysis.CorrMatrix `json:"correlation,omitempty"`
	Formula string               `json:"formula,omitempty"`
	Anova   *stats.AnovaTable    `json:"anova,omitempty"`
	Manova  *stats.ManovaResult  `json:"manova,omitempty"`
}

// Router routes selections through a recipe table.
type Router struct {
	table   Table
	plotter Plotter
	modeler Modeler
	logger  *zap.Logger
}

// New returns a router over the default table.
func New(p Plotter, m Modeler, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{table: DefaultTable(), plotter: p, modeler: m, logger: logger}
}

// Table returns the recipe table.
func (r *Router) Table() Table { return r.table }

// Plan validates the selection against ds and picks its recipe.
func (r *Router) Plan(ds *dataset.Dataset, sel Selection) (*Plan, error) {
	mode := sel.Mode
	if mode == 0 {
		mode = Pairwise
	}
	if len(sel.Variables) == 0 {
		return nil, selectionErr(ErrCodeEmptySelection, MsgSelectOne)
	}
	if mode == Joint && len(sel.Variables) < 2 {
		return nil, selectionErr(ErrCodeTooFewVariables, MsgSelectTwo)
	}
	vars, err := Classify(ds, sel.Variables)
	if err != nil {
		return nil, err
	}
	shape := ShapeOf(vars)
	rule, ok := r.table.Lookup(shape, mode)
	if !ok {
		return nil, &SelectionError{Code: ErrCodeNoRecipe, Msg: MsgNoRecipe, Shape: shape}
	}
	return &Plan{Rule: rule, Mode: mode, Shape: shape, Variables: vars}, nil
}

// Route plans the selection over the view's dataset, builds the recipe's chart and model
// inputs from the view, fits the model if the recipe has one, then renders.
//
// Selection, collision and model errors are returned before anything is rendered and
// satisfy IsRecoverable, as does an empty view or a chart left with no values. Other
// rendering errors are returned wrapped.
func (r *Router) Route(v *dataset.View, sel Selection) (*Outcome, error) {
	plan, err := r.Plan(v.Dataset(), sel)
	if err != nil {
		r.logger.Debug("selection rejected", zap.Strings("variables", sel.Variables), zap.Error(err))
		return nil, err
	}
	if v.Len() == 0 {
		err := &SelectionError{Code: ErrCodeNoRows, Msg: MsgNoRows, Shape: plan.Shape}
		r.logger.Debug("selection rejected", zap.Strings("variables", sel.Variables), zap.Error(err))
		return nil, err
	}
	out := &Outcome{Plan: *plan}
	if err := r.build(v, out); err != nil {
		return nil, err
	}
	img, err := r.plotter.Plot(out.Spec)
	if errors.Is(err, chart.ErrNoData) {
		// Rows exist but every selected value in them is null.
		return nil, &SelectionError{Code: ErrCodeNoRows, Msg: MsgNoValues, Shape: plan.Shape, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", plan.Rule.Recipe, err)
	}
	out.Image = img
	r.logger.Debug("selection routed",
		zap.String("recipe", string(plan.Rule.Recipe)),
		zap.Stringer("shape", plan.Shape),
		zap.Stringer("mode", plan.Mode),
		zap.Int("rows", v.Len()))
	return out, nil
}

func (r *Router) build(v *dataset.View, out *Outcome) error {
	nums, cats := split(out.Variables)
	title := joinNames(out.Variables)
	switch out.Rule.Recipe {
	case HistBox:
		vals, err := v.Floats(nums[0])
		if err != nil {
			return err
		}
		out.Spec = chart.HistBox{Title: title, Variable: nums[0], Values: vals}
	case CountHist:
		vals, err := v.Strings(cats[0])
		if err != nil {
			return err
		}
		levels, counts := countLevels(vals)
		out.Spec = chart.CountHist{Title: title, Variable: cats[0], Levels: levels, Counts: counts}
	case ScatterTrend:
		xs, ys, err := pair(v, nums[0], nums[1])
		if err != nil {
			return err
		}
		alpha, beta := trend(xs, ys)
		out.Spec = chart.ScatterTrend{Title: title, X: nums[0], Y: nums[1], XS: xs, YS: ys, Intercept: alpha, Slope: beta}
	case PairedCount:
		ct, err := crosstab(v, cats[0], cats[1])
		if err != nil {
			return err
		}
		out.Spec = chart.PairedCount{Title: title, Table: ct}
	case SplitBox:
		groups, err := groupBy(v, nums[0], cats[0], "")
		if err != nil {
			return err
		}
		out.Groups = groups
		out.Spec = chart.SplitBox{Title: title, Value: nums[0], Category: cats[0], Groups: groups}
	case CorrHeatmap:
		m, err := analysis.Correlation(v, nums)
		if err != nil {
			return err
		}
		out.Corr = m
		out.Spec = chart.Heatmap{Title: title, Columns: m.Columns, Values: m.Values}
	case StackedBar:
		ct, err := crosstab(v, cats[0], cats[1])
		if err != nil {
			return err
		}
		out.Spec = chart.StackedBar{Title: title, Table: ct}
	case ScatterManova:
		return r.scatterManova(v, out, nums, cats, title)
	case TwoWayAnova:
		return r.twoWayAnova(v, out, nums, cats, title)
	default:
		return fmt.Errorf("recipe %q has no builder", out.Rule.Recipe)
	}
	return nil
}

func (r *Router) scatterManova(v *dataset.View, out *Outcome, nums, cats []string, title string) error {
	ids, err := CheckIdentifiers(out.Variables)
	if err != nil {
		return err
	}
	f := stats.Formula{Responses: []string{ids[nums[0]], ids[nums[1]]}, Factors: []string{ids[cats[0]]}}
	fr, err := frame(v, ids, nums, cats)
	if err != nil {
		return err
	}
	out.Formula = f.String()
	res, err := r.modeler.MANOVA(f, fr)
	if err != nil {
		r.logger.Info("model failed", zap.String("formula", out.Formula), zap.Error(err))
		return &ModelError{Recipe: out.Rule.Recipe, Formula: out.Formula, Err: err}
	}
	out.Manova = res

	levels, err := v.Levels(cats[0])
	if err != nil {
		return err
	}
	xs, _ := v.Floats(nums[0])
	ys, _ := v.Floats(nums[1])
	cs, _ := v.Strings(cats[0])
	groups := make([]chart.XYGroup, len(levels))
	index := make(map[string]int, len(levels))
	for i, l := range levels {
		groups[i].Name = l
		index[l] = i
	}
	for i := range cs {
		if cs[i] == "" || math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		g := &groups[index[cs[i]]]
		g.X = append(g.X, xs[i])
		g.Y = append(g.Y, ys[i])
	}
	out.Spec = chart.GroupedScatter{Title: title, X: nums[0], Y: nums[1], Category: cats[0], Groups: groups}
	return nil
}

func (r *Router) twoWayAnova(v *dataset.View, out *Outcome, nums, cats []string, title string) error {
	ids, err := CheckIdentifiers(out.Variables)
	if err != nil {
		return err
	}
	f := stats.Formula{Responses: []string{ids[nums[0]]}, Factors: []string{ids[cats[0]], ids[cats[1]]}, Interaction: true}
	fr, err := frame(v, ids, nums, cats)
	if err != nil {
		return err
	}
	out.Formula = f.String()
	tbl, err := r.modeler.TwoWayANOVA(f, fr)
	if err != nil {
		r.logger.Info("model failed", zap.String("formula", out.Formula), zap.Error(err))
		return &ModelError{Recipe: out.Rule.Recipe, Formula: out.Formula, Err: err}
	}
	out.Anova = tbl

	groups, err := groupBy(v, nums[0], cats[0], cats[1])
	if err != nil {
		return err
	}
	levels, _ := v.Levels(cats[0])
	hues, _ := v.Levels(cats[1])
	out.Groups = groups
	out.Spec = chart.GroupedBox{Title: title, Value: nums[0], Outer: cats[0], Inner: cats[1], Levels: levels, Hues: hues, Groups: groups}
	return nil
}

func frame(v *dataset.View, ids map[string]string, nums, cats []string) (stats.Frame, error) {
	fr := stats.Frame{Numeric: map[string][]float64{}, Factors: map[string][]string{}}
	for _, n := range nums {
		vals, err := v.Floats(n)
		if err != nil {
			return fr, err
		}
		fr.Numeric[ids[n]] = vals
	}
	for _, c := range cats {
		vals, err := v.Strings(c)
		if err != nil {
			return fr, err
		}
		fr.Factors[ids[c]] = vals
	}
	return fr, nil
}

func joinNames(vars []Variable) string {
	s := ""
	for i, v := range vars {
		if i > 0 {
			s += " × "
		}
		s += v.Name
	}
	return s
}

func countLevels(vals []string) ([]string, []float64) {
	levels := dataset.Distinct(vals)
	index := make(map[string]int, len(levels))
	for i, l := range levels {
		index[l] = i
	}
	counts := make([]float64, len(levels))
	for _, v := range vals {
		if v != "" {
			counts[index[v]]++
		}
	}
	return levels, counts
}

func pair(v *dataset.View, x, y string) ([]float64, []float64, error) {
	xs, err := v.Floats(x)
	if err != nil {
		return nil, nil, err
	}
	ys, err := v.Floats(y)
	if err != nil {
		return nil, nil, err
	}
	return xs, ys, nil
}

// trend fits y = alpha + beta*x over complete pairs. It returns NaN when the line is
// undetermined.
func trend(xs, ys []float64) (alpha, beta float64) {
	var cx, cy []float64
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) {
			continue
		}
		cx = append(cx, xs[i])
		cy = append(cy, ys[i])
	}
	if len(cx) < 2 || stat.Variance(cx, nil) == 0 {
		return math.NaN(), math.NaN()
	}
	return stat.LinearRegression(cx, cy, nil, false)
}

func crosstab(v *dataset.View, a, b string) (chart.Crosstab, error) {
	as, err := v.Strings(a)
	if err != nil {
		return chart.Crosstab{}, err
	}
	bs, err := v.Strings(b)
	if err != nil {
		return chart.Crosstab{}, err
	}
	return chart.CountCrosstab(a, b, as, bs), nil
}

// groupBy splits the numeric column by the levels of cat (and hue, when set), in sorted
// level order. Rows with a null value or a null level are left out.
func groupBy(v *dataset.View, num, cat, hue string) ([]chart.Group, error) {
	vals, err := v.Floats(num)
	if err != nil {
		return nil, err
	}
	keys, err := v.Strings(cat)
	if err != nil {
		return nil, err
	}
	hues := make([]string, len(keys))
	if hue != "" {
		if hues, err = v.Strings(hue); err != nil {
			return nil, err
		}
	}
	levels := dataset.Distinct(keys)
	hueLevels := []string{""}
	if hue != "" {
		hueLevels = dataset.Distinct(hues)
	}
	type key struct{ name, hue string }
	buckets := map[key][]float64{}
	for i := range keys {
		if keys[i] == "" || math.IsNaN(vals[i]) || (hue != "" && hues[i] == "") {
			continue
		}
		k := key{keys[i], hues[i]}
		buckets[k] = append(buckets[k], vals[i])
	}
	var out []chart.Group
	for _, l := range levels {
		for _, h := range hueLevels {
			if b, ok := buckets[key{l, h}]; ok {
				out = append(out, chart.Group{Name: l, Hue: h, Values: b})
			}
		}
	}
	return out, nil
}
