package analysis

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/KaramelBytes/custlens/internal/dataset"
)

// KPIColumns names the columns the headline metrics are computed from.
type KPIColumns struct {
	Province string
	Income   string
	CLV      string
}

// KPIs are the headline metrics of the filtered view.
type KPIs struct {
	Customers       int             `json:"customers"`
	ActiveProvinces int             `json:"active_provinces"`
	AverageIncome   decimal.Decimal `json:"average_income"`
	AverageCLV      decimal.Decimal `json:"average_clv"`
	// HasIncome and HasCLV are false when no non-null value contributed to the average.
	HasIncome bool `json:"has_income"`
	HasCLV    bool `json:"has_clv"`
}

// ComputeKPIs counts rows and distinct provinces and averages income and CLV, rounding
// both averages to whole currency units.
func ComputeKPIs(v *dataset.View, cols KPIColumns) (KPIs, error) {
	k := KPIs{Customers: v.Len()}
	if cols.Province != "" {
		levels, err := v.Levels(cols.Province)
		if err != nil {
			return KPIs{}, fmt.Errorf("kpi provinces: %w", err)
		}
		k.ActiveProvinces = len(levels)
	}
	var err error
	if cols.Income != "" {
		if k.AverageIncome, k.HasIncome, err = average(v, cols.Income); err != nil {
			return KPIs{}, fmt.Errorf("kpi income: %w", err)
		}
	}
	if cols.CLV != "" {
		if k.AverageCLV, k.HasCLV, err = average(v, cols.CLV); err != nil {
			return KPIs{}, fmt.Errorf("kpi clv: %w", err)
		}
	}
	return k, nil
}

func average(v *dataset.View, col string) (decimal.Decimal, bool, error) {
	vals, err := v.Floats(col)
	if err != nil {
		return decimal.Zero, false, err
	}
	sum := decimal.Zero
	n := 0
	for _, x := range Finite(vals) {
		sum = sum.Add(decimal.NewFromFloat(x))
		n++
	}
	if n == 0 {
		return decimal.Zero, false, nil
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(0), true, nil
}

var printer = message.NewPrinter(language.English)

// Money formats a whole-unit amount with thousands separators, e.g. "$50,000".
func Money(d decimal.Decimal) string {
	return printer.Sprintf("$%d", d.Round(0).IntPart())
}

// Lines renders the KPIs as label/value pairs in display order.
func (k KPIs) Lines() [][2]string {
	income, clv := "—", "—"
	if k.HasIncome {
		income = Money(k.AverageIncome)
	}
	if k.HasCLV {
		clv = Money(k.AverageCLV)
	}
	return [][2]string{
		{"Total Customers", printer.Sprintf("%d", k.Customers)},
		{"Active Provinces", printer.Sprintf("%d", k.ActiveProvinces)},
		{"Average Income", income},
		{"Average CLV", clv},
	}
}
