// Package dashboard wires widget state, the filtered view and the analysis panels of one
// user session.
package dashboard

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KaramelBytes/custlens/internal/analysis"
	"github.com/KaramelBytes/custlens/internal/dataset"
	"github.com/KaramelBytes/custlens/internal/filter"
	"github.com/KaramelBytes/custlens/internal/reactive"
	"github.com/KaramelBytes/custlens/internal/router"
)

// Widget names.
const (
	WidgetLoyalty   = "loyalty"
	WidgetProvince  = "province"
	WidgetGender    = "gender"
	WidgetEducation = "education"
	WidgetIncome    = "income"
	WidgetExplore   = "explore"
	WidgetFeatures  = "features"
)

var (
	// ErrUnknownWidget is returned for updates to a widget the session does not have.
	ErrUnknownWidget = errors.New("unknown widget")
	// ErrUnknownPanel is returned for a panel ID the session does not have.
	ErrUnknownPanel = errors.New("unknown panel")
)

// Options configures a session.
type Options struct {
	Columns  Columns
	Panels   []Panel
	Exclude  []string
	Describe analysis.Options
}

// DefaultOptions returns the customer dashboard layout.
func DefaultOptions() Options {
	c := DefaultColumns()
	return Options{Columns: c, Panels: DefaultPanels(c), Exclude: DefaultExclude(), Describe: analysis.DefaultOptions()}
}

// Update sets one widget. Set widgets take Values; the income slider takes Range.
type Update struct {
	Widget string        `json:"widget"`
	Values []string      `json:"values,omitempty"`
	Range  *filter.Range `json:"range,omitempty"`
}

// Widgets is a snapshot of every widget value.
type Widgets struct {
	Sets     map[string][]string `json:"sets"`
	Income   *filter.Range       `json:"income,omitempty"`
	Explore  []string            `json:"explore"`
	Features []string            `json:"features"`
}

// PanelResult is the outcome of one panel. A failed panel carries Err and never affects
// the others.
type PanelResult struct {
	Panel   Panel           `json:"panel"`
	Outcome *router.Outcome `json:"outcome,omitempty"`
	Err     error           `json:"-"`
	Message string          `json:"error,omitempty"`
}

type setWidget struct {
	column string
	value  *reactive.Var[[]string]
}

type panelState struct {
	panel Panel
	memo  *reactive.Memo[*router.Outcome]
}

// Session is one user's dashboard. All reads and updates are serialized, so at most one
// render is active per session.
type Session struct {
	ID      string
	Created time.Time

	mu     sync.Mutex
	ds     *dataset.Dataset
	router *router.Router
	logger *zap.Logger
	opt    Options

	sets     map[string]setWidget
	setOrder []string
	income   *reactive.Var[filter.Range]
	explore  *reactive.Var[[]string]
	features *reactive.Var[[]string]

	view     *reactive.Memo[*dataset.View]
	kpis     *reactive.Memo[analysis.KPIs]
	describe *reactive.Memo[*analysis.Report]
	panels   map[string]*panelState
	order    []string
}

// NewSession builds a session over ds with every widget at its default: all levels
// selected and the full income range.
func NewSession(ds *dataset.Dataset, r *router.Router, opt Options, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		ID:      uuid.NewString(),
		Created: time.Now(),
		ds:      ds,
		router:  r,
		opt:     opt,
		sets:    map[string]setWidget{},
		panels:  map[string]*panelState{},
	}
	s.logger = logger.With(zap.String("session", s.ID))

	c := opt.Columns
	for _, w := range []struct{ name, col string }{
		{WidgetLoyalty, c.Loyalty},
		{WidgetProvince, c.Province},
		{WidgetGender, c.Gender},
		{WidgetEducation, c.Education},
	} {
		if w.col == "" || !ds.Has(w.col) {
			s.logger.Warn("filter column missing, widget disabled", zap.String("widget", w.name), zap.String("column", w.col))
			continue
		}
		levels, err := filter.Options(ds, w.col)
		if err != nil {
			return nil, fmt.Errorf("widget %s: %w", w.name, err)
		}
		s.sets[w.name] = setWidget{column: w.col, value: reactive.NewVar(levels)}
		s.setOrder = append(s.setOrder, w.name)
	}
	if c.Income != "" && ds.Has(c.Income) {
		b, err := filter.Bounds(ds, c.Income)
		if err != nil {
			return nil, fmt.Errorf("widget %s: %w", WidgetIncome, err)
		}
		s.income = reactive.NewVar(b)
	}
	s.explore = reactive.NewVar([]string(nil))
	s.features = reactive.NewVar([]string(nil))

	deps := make([]reactive.Cell, 0, len(s.sets)+1)
	for _, name := range s.setOrder {
		deps = append(deps, s.sets[name].value)
	}
	if s.income != nil {
		deps = append(deps, s.income)
	}
	s.view = reactive.NewMemo(s.computeView, deps...)
	s.kpis = reactive.NewMemo(func() (analysis.KPIs, error) {
		v, err := s.view.Get()
		if err != nil {
			return analysis.KPIs{}, err
		}
		kc := analysis.KPIColumns{}
		if ds.Has(c.Province) {
			kc.Province = c.Province
		}
		if ds.Has(c.Income) {
			kc.Income = c.Income
		}
		if ds.Has(c.CLV) {
			kc.CLV = c.CLV
		}
		return analysis.ComputeKPIs(v, kc)
	}, s.view)
	s.describe = reactive.NewMemo(func() (*analysis.Report, error) {
		v, err := s.view.Get()
		if err != nil {
			return nil, err
		}
		return analysis.Describe(v, opt.Describe), nil
	}, s.view)

	s.addPanel(Panel{ID: ExplorePanel, Title: "Explore", Mode: router.Pairwise}, s.explore)
	s.addPanel(Panel{ID: FeaturesPanel, Title: "Feature set", Mode: router.Joint}, s.features)
	for _, p := range opt.Panels {
		if p.AllNumeric {
			p.Variables = ds.NamesOfKind(dataset.Numeric)
		}
		if _, dup := s.panels[p.ID]; dup {
			return nil, fmt.Errorf("duplicate panel id %q", p.ID)
		}
		s.addPanel(p, nil)
	}
	for _, col := range UnivariateColumns(ds, opt.Exclude) {
		s.addPanel(Panel{ID: UnivariatePanel + col, Title: col, Variables: []string{col}, Mode: router.Pairwise}, nil)
	}
	return s, nil
}

// UnivariateColumns lists the categorical columns not in exclude, in dataset order.
func UnivariateColumns(ds *dataset.Dataset, exclude []string) []string {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	var out []string
	for _, name := range ds.NamesOfKind(dataset.Categorical) {
		if !skip[name] {
			out = append(out, name)
		}
	}
	return out
}

// addPanel registers a panel. When vars is set the panel routes whatever the widget
// holds; otherwise it routes its fixed variables.
func (s *Session) addPanel(p Panel, vars *reactive.Var[[]string]) {
	deps := []reactive.Cell{s.view}
	if vars != nil {
		deps = append(deps, vars)
	}
	fixed := p
	memo := reactive.NewMemo(func() (*router.Outcome, error) {
		v, err := s.view.Get()
		if err != nil {
			return nil, err
		}
		sel := router.Selection{Variables: fixed.Variables, Mode: fixed.Mode}
		if vars != nil {
			sel.Variables = vars.Get()
		}
		return s.router.Route(v, sel)
	}, deps...)
	s.panels[p.ID] = &panelState{panel: p, memo: memo}
	s.order = append(s.order, p.ID)
}

func (s *Session) computeView() (*dataset.View, error) {
	var sel filter.Selection
	for _, name := range s.setOrder {
		w := s.sets[name]
		sel = sel.And(filter.InSet{Col: w.column, Values: w.value.Get()})
	}
	if s.income != nil {
		r := s.income.Get()
		sel = sel.And(filter.InRange{Col: s.opt.Columns.Income, Min: r.Min, Max: r.Max})
	}
	v, err := sel.Apply(s.ds)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("view recomputed", zap.Int("rows", v.Len()), zap.Int("total", s.ds.Len()))
	return v, nil
}

// Dataset returns the dataset the session was opened on.
func (s *Session) Dataset() *dataset.Dataset { return s.ds }

// Apply sets one widget.
func (s *Session) Apply(u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch u.Widget {
	case WidgetIncome:
		if s.income == nil {
			return fmt.Errorf("%w: %s", ErrUnknownWidget, u.Widget)
		}
		if u.Range == nil {
			return fmt.Errorf("widget %s needs a range", u.Widget)
		}
		if u.Range.Min > u.Range.Max {
			return fmt.Errorf("widget %s: min %g is above max %g", u.Widget, u.Range.Min, u.Range.Max)
		}
		s.income.Set(*u.Range)
	case WidgetExplore:
		s.explore.Set(copyStrings(u.Values))
	case WidgetFeatures:
		s.features.Set(copyStrings(u.Values))
	default:
		w, ok := s.sets[u.Widget]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownWidget, u.Widget)
		}
		w.value.Set(copyStrings(u.Values))
	}
	s.logger.Debug("widget updated", zap.String("widget", u.Widget))
	return nil
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Widgets returns the current widget values.
func (s *Session) Widgets() Widgets {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := Widgets{Sets: map[string][]string{}, Explore: s.explore.Get(), Features: s.features.Get()}
	for name, sw := range s.sets {
		w.Sets[name] = sw.value.Get()
	}
	if s.income != nil {
		r := s.income.Get()
		w.Income = &r
	}
	return w
}

// View returns the filtered view.
func (s *Session) View() (*dataset.View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Get()
}

// KPIs returns the headline metrics of the filtered view.
func (s *Session) KPIs() (analysis.KPIs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kpis.Get()
}

// Describe returns descriptive statistics of every column of the filtered view.
func (s *Session) Describe() (*analysis.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.describe.Get()
}

// PanelIDs lists the panels in display order: explore, features, presets, then the
// univariate grid.
func (s *Session) PanelIDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Panel computes one panel.
func (s *Session) Panel(id string) (PanelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps, ok := s.panels[id]
	if !ok {
		return PanelResult{}, fmt.Errorf("%w: %s", ErrUnknownPanel, id)
	}
	return s.result(ps), nil
}

// Panels computes every panel. Failures stay inside their PanelResult.
func (s *Session) Panels() []PanelResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PanelResult, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.result(s.panels[id]))
	}
	return out
}

func (s *Session) result(ps *panelState) PanelResult {
	out, err := ps.memo.Get()
	res := PanelResult{Panel: ps.panel, Outcome: out, Err: err}
	if ps.panel.ID == ExplorePanel {
		res.Panel.Variables = s.explore.Get()
	} else if ps.panel.ID == FeaturesPanel {
		res.Panel.Variables = s.features.Get()
	}
	if err != nil {
		res.Message = err.Error()
		if !router.IsRecoverable(err) {
			s.logger.Error("panel failed", zap.String("panel", ps.panel.ID), zap.Error(err))
		}
	}
	return res
}

// Runs reports how many times a panel has been computed.
func (s *Session) Runs(id string) int {
	ps, ok := s.panels[id]
	if !ok {
		return 0
	}
	return ps.memo.Runs()
}
