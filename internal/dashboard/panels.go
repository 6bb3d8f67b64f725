package dashboard

import (
	"github.com/KaramelBytes/custlens/internal/router"
)

// Columns maps the semantic roles the dashboard needs onto dataset column names.
type Columns struct {
	Loyalty   string `mapstructure:"loyalty" yaml:"loyalty"`
	Province  string `mapstructure:"province" yaml:"province"`
	Income    string `mapstructure:"income" yaml:"income"`
	CLV       string `mapstructure:"clv" yaml:"clv"`
	Gender    string `mapstructure:"gender" yaml:"gender"`
	Education string `mapstructure:"education" yaml:"education"`
	Year      string `mapstructure:"year" yaml:"year"`
}

// DefaultColumns returns the column names of the customer loyalty export.
func DefaultColumns() Columns {
	return Columns{
		Loyalty:   "LoyaltyStatus",
		Province:  "Province or State",
		Income:    "Income",
		CLV:       "Customer Lifetime Value",
		Gender:    "Gender",
		Education: "Education",
		Year:      "EnrollmentYear",
	}
}

// Panel is a fixed analysis shown on every dashboard. AllNumeric panels select every
// numeric column of the dataset.
type Panel struct {
	ID         string      `json:"id" mapstructure:"id" yaml:"id"`
	Title      string      `json:"title" mapstructure:"title" yaml:"title"`
	Variables  []string    `json:"variables,omitempty" mapstructure:"variables" yaml:"variables,omitempty"`
	Mode       router.Mode `json:"mode" mapstructure:"-" yaml:"-"`
	AllNumeric bool        `json:"all_numeric,omitempty" mapstructure:"all_numeric" yaml:"all_numeric,omitempty"`
}

// DefaultPanels returns the overview charts of the customer dashboard.
func DefaultPanels(c Columns) []Panel {
	return []Panel{
		{ID: "loyalty-distribution", Title: "Distribution of Loyalty Status", Variables: []string{c.Loyalty}, Mode: router.Pairwise},
		{ID: "gender-by-loyalty", Title: "Gender Distribution across Loyalty Tiers", Variables: []string{c.Gender, c.Loyalty}, Mode: router.Pairwise},
		// Scatter matrix of the numeric pair, colored by loyalty tier.
		{ID: "income-vs-clv", Title: "Income vs CLV by Loyalty Status", Variables: []string{c.Income, c.CLV, c.Loyalty}, Mode: router.Pairwise},
		{ID: "clv-by-education", Title: "CLV by Education Level", Variables: []string{c.CLV, c.Education, c.Loyalty}, Mode: router.Pairwise},
		{ID: "income-by-education", Title: "Income Distribution by Education Level", Variables: []string{c.Income, c.Education, c.Loyalty}, Mode: router.Pairwise},
		{ID: "enrollment-trends", Title: "Enrollment Trends", Variables: []string{c.Year, c.Loyalty}, Mode: router.Pairwise},
		{ID: "correlation", Title: "Correlation Heatmap", Mode: router.Joint, AllNumeric: true},
	}
}

// DefaultExclude lists the categorical columns left out of the univariate grid: identity,
// geography and dates.
func DefaultExclude() []string {
	return []string{
		"First Name", "Last Name", "Customer Name", "Postal Code", "City",
		"Province or State", "EnrollmentDateOpening", "CancellationDate",
	}
}

// Panel IDs of the interactive panels and the prefix of univariate grid panels.
const (
	ExplorePanel    = "explore"
	FeaturesPanel   = "features"
	UnivariatePanel = "univariate:"
)
