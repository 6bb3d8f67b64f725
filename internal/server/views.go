package server

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/KaramelBytes/custlens/internal/analysis"
	"github.com/KaramelBytes/custlens/internal/dashboard"
	"github.com/KaramelBytes/custlens/internal/router"
)

// Response bodies. Statistics may be NaN, which JSON cannot carry, so every float that
// can be undefined is sent as a nullable number.

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

type sessionView struct {
	ID      string            `json:"id"`
	Created time.Time         `json:"created"`
	Dataset string            `json:"dataset"`
	Rows    int               `json:"rows"`
	Widgets dashboard.Widgets `json:"widgets"`
	Panels  []string          `json:"panels"`
}

func newSessionView(s *dashboard.Session) sessionView {
	return sessionView{
		ID:      s.ID,
		Created: s.Created,
		Dataset: s.Dataset().Name,
		Rows:    s.Dataset().Len(),
		Widgets: s.Widgets(),
		Panels:  s.PanelIDs(),
	}
}

type kpiView struct {
	Customers       int               `json:"customers"`
	ActiveProvinces int               `json:"active_provinces"`
	AverageIncome   *string           `json:"average_income"`
	AverageCLV      *string           `json:"average_clv"`
	Display         map[string]string `json:"display"`
}

func newKPIView(k analysis.KPIs) kpiView {
	v := kpiView{Customers: k.Customers, ActiveProvinces: k.ActiveProvinces, Display: map[string]string{}}
	if k.HasIncome {
		s := k.AverageIncome.String()
		v.AverageIncome = &s
	}
	if k.HasCLV {
		s := k.AverageCLV.String()
		v.AverageCLV = &s
	}
	for _, l := range k.Lines() {
		v.Display[l[0]] = l[1]
	}
	return v
}

type describeView struct {
	Name     string     `json:"name"`
	Rows     int        `json:"rows"`
	Total    int        `json:"total"`
	Header   []string   `json:"header"`
	Table    [][]string `json:"table"`
	Warnings []string   `json:"warnings,omitempty"`
}

func newDescribeView(r *analysis.Report) describeView {
	return describeView{
		Name:     r.Name,
		Rows:     r.Rows,
		Total:    r.Total,
		Header:   analysis.DescribeHeader,
		Table:    r.Table(),
		Warnings: r.Warnings,
	}
}

type anovaRowView struct {
	Term  string   `json:"term"`
	SumSq float64  `json:"sum_sq"`
	DF    float64  `json:"df"`
	F     *float64 `json:"F"`
	P     *float64 `json:"p"`
}

type testView struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
	NumDF float64  `json:"num_df"`
	DenDF float64  `json:"den_df"`
	F     *float64 `json:"F"`
	P     *float64 `json:"p"`
}

type panelView struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Variables   []string         `json:"variables"`
	Recipe      router.RecipeID  `json:"recipe,omitempty"`
	Description string           `json:"description,omitempty"`
	Shape       *router.Shape    `json:"shape,omitempty"`
	Formula     string           `json:"formula,omitempty"`
	Anova       []anovaRowView   `json:"anova,omitempty"`
	Manova      []testView       `json:"manova,omitempty"`
	Correlation *correlationView `json:"correlation,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	Chart       string           `json:"chart,omitempty"`
	Error       *apiError        `json:"error,omitempty"`
}

type correlationView struct {
	Columns []string     `json:"columns"`
	Values  [][]*float64 `json:"values"`
}

func newPanelView(sessionID string, res dashboard.PanelResult) panelView {
	v := panelView{ID: res.Panel.ID, Title: res.Panel.Title, Variables: res.Panel.Variables}
	if v.Variables == nil {
		v.Variables = []string{}
	}
	if res.Err != nil {
		code := string(router.Code(res.Err))
		if code == "" {
			code = "internal"
		}
		v.Error = &apiError{Code: code, Message: res.Message}
		return v
	}
	out := res.Outcome
	shape := out.Shape
	v.Recipe = out.Rule.Recipe
	v.Description = out.Rule.Description
	v.Shape = &shape
	v.Formula = out.Formula
	v.Chart = fmt.Sprintf("/sessions/%s/panels/%s/chart", sessionID, url.PathEscape(res.Panel.ID))
	if out.Anova != nil {
		v.Summary = out.Anova.String()
		for _, r := range out.Anova.Rows {
			v.Anova = append(v.Anova, anovaRowView{Term: r.Term, SumSq: r.SumSq, DF: r.DF, F: finite(r.F), P: finite(r.P)})
		}
	}
	if out.Manova != nil {
		v.Summary = out.Manova.String()
		for _, t := range out.Manova.Tests {
			v.Manova = append(v.Manova, testView{Name: t.Name, Value: finite(t.Value), NumDF: t.NumDF, DenDF: t.DenDF, F: finite(t.F), P: finite(t.P)})
		}
	}
	if out.Corr != nil {
		cv := &correlationView{Columns: out.Corr.Columns, Values: make([][]*float64, len(out.Corr.Values))}
		for i, row := range out.Corr.Values {
			cv.Values[i] = make([]*float64, len(row))
			for j, x := range row {
				cv.Values[i][j] = finite(x)
			}
		}
		v.Correlation = cv
		v.Summary = out.Corr.Markdown()
	}
	return v
}

type ruleView struct {
	Index       int             `json:"index"`
	Recipe      router.RecipeID `json:"recipe"`
	Description string          `json:"description"`
	Numeric     string          `json:"numeric"`
	Categorical string          `json:"categorical"`
	Modes       router.Mode     `json:"modes"`
}

type recipesView struct {
	Rules          []ruleView          `json:"rules"`
	MaxCategorical int                 `json:"max_categorical"`
	Findings       []router.Finding    `json:"findings"`
	Unsupported    map[string][]string `json:"unsupported"`
}

func newRecipesView(t router.Table) recipesView {
	v := recipesView{MaxCategorical: t.MaxCategorical, Findings: t.Audit(), Unsupported: map[string][]string{}}
	if v.Findings == nil {
		v.Findings = []router.Finding{}
	}
	for i, r := range t.Rules {
		v.Rules = append(v.Rules, ruleView{
			Index:       i + 1,
			Recipe:      r.Recipe,
			Description: r.Description,
			Numeric:     r.Numeric.String(),
			Categorical: r.Categorical.String(),
			Modes:       r.Modes,
		})
	}
	for _, m := range []router.Mode{router.Pairwise, router.Joint} {
		shapes := []string{}
		for _, s := range t.Unsupported(m, 3) {
			shapes = append(shapes, s.String())
		}
		v.Unsupported[m.String()] = shapes
	}
	return v
}
