package stats

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// MultivariateTest is one of the four classic MANOVA statistics with its F approximation.
type MultivariateTest struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	NumDF float64 `json:"num_df"`
	DenDF float64 `json:"den_df"`
	F     float64 `json:"F"`
	P     float64 `json:"p"`
}

// ManovaResult holds the multivariate tests for one factor.
type ManovaResult struct {
	Formula string             `json:"formula"`
	Factor  string             `json:"factor"`
	N       int                `json:"n"`
	Levels  []string           `json:"levels"`
	Tests   []MultivariateTest `json:"tests"`
}

// Wilks returns the Wilks' lambda test.
func (r *ManovaResult) Wilks() MultivariateTest { return r.Tests[0] }

// MANOVA tests whether the mean vector of the responses differs across levels of a single
// factor. Tests are reported in the order Wilks' lambda, Pillai's trace, Hotelling-Lawley
// trace, Roy's greatest root.
func (Fitter) MANOVA(f Formula, fr Frame) (*ManovaResult, error) {
	if len(f.Responses) < 2 || len(f.Factors) != 1 {
		return nil, fmt.Errorf("manova needs at least two responses and one factor, got %d and %d", len(f.Responses), len(f.Factors))
	}
	ys, xs, err := fr.complete(f)
	if err != nil {
		return nil, err
	}
	lv := levels(xs, 0)
	if len(lv) < 2 {
		return nil, fmt.Errorf("%s: %w", f.Factors[0], ErrTooFewLevels)
	}
	p, g, n := len(f.Responses), len(lv), len(ys)
	dfErr := n - g
	if dfErr < p {
		return nil, fmt.Errorf("%d rows across %d groups for %d responses: %w", n, g, p, ErrTooFewObservations)
	}

	group := make(map[string]int, g)
	for i, l := range lv {
		group[l] = i
	}
	means := make([][]float64, g)
	counts := make([]float64, g)
	grand := make([]float64, p)
	for i := range means {
		means[i] = make([]float64, p)
	}
	for i, y := range ys {
		k := group[xs[i][0]]
		counts[k]++
		for j, v := range y {
			means[k][j] += v
			grand[j] += v
		}
	}
	for k := range means {
		for j := range means[k] {
			means[k][j] /= counts[k]
		}
	}
	for j := range grand {
		grand[j] /= float64(n)
	}

	e := mat.NewSymDense(p, nil)
	h := mat.NewSymDense(p, nil)
	for i, y := range ys {
		m := means[group[xs[i][0]]]
		for a := 0; a < p; a++ {
			for b := a; b < p; b++ {
				e.SetSym(a, b, e.At(a, b)+(y[a]-m[a])*(y[b]-m[b]))
			}
		}
	}
	for k, m := range means {
		for a := 0; a < p; a++ {
			for b := a; b < p; b++ {
				h.SetSym(a, b, h.At(a, b)+counts[k]*(m[a]-grand[a])*(m[b]-grand[b]))
			}
		}
	}

	eig, err := relativeEigenvalues(e, h)
	if err != nil {
		return nil, err
	}
	res := &ManovaResult{Formula: f.String(), Factor: f.Factors[0], N: n, Levels: lv}
	res.Tests = multivariateTests(eig, float64(p), float64(g-1), float64(dfErr))
	return res, nil
}

// relativeEigenvalues returns the eigenvalues of E^-1 H through the symmetric form
// E^-1/2 H E^-1/2.
func relativeEigenvalues(e, h *mat.SymDense) ([]float64, error) {
	p := e.SymmetricDim()
	var es mat.EigenSym
	if !es.Factorize(e, true) {
		return nil, ErrSingular
	}
	vals := es.Values(nil)
	var q mat.Dense
	es.VectorsTo(&q)
	top := 0.0
	for _, v := range vals {
		top = math.Max(top, math.Abs(v))
	}
	inv := mat.NewDense(p, p, nil)
	for i, v := range vals {
		if v <= top*1e-12 || v <= 0 {
			return nil, fmt.Errorf("within-group scatter: %w", ErrSingular)
		}
		inv.Set(i, i, 1/math.Sqrt(v))
	}
	var root, tmp, s mat.Dense
	root.Product(&q, inv, q.T())
	tmp.Mul(&root, h)
	s.Mul(&tmp, &root)

	sym := mat.NewSymDense(p, nil)
	for a := 0; a < p; a++ {
		for b := a; b < p; b++ {
			sym.SetSym(a, b, (s.At(a, b)+s.At(b, a))/2)
		}
	}
	var hs mat.EigenSym
	if !hs.Factorize(sym, false) {
		return nil, ErrSingular
	}
	out := hs.Values(nil)
	for i, v := range out {
		if v < 0 {
			out[i] = 0
		}
	}
	return out, nil
}

// multivariateTests computes the four statistics for p responses, q hypothesis degrees of
// freedom and v error degrees of freedom.
func multivariateTests(eig []float64, p, q, v float64) []MultivariateTest {
	wilks, pillai, hl, roy := 1.0, 0.0, 0.0, 0.0
	for _, l := range eig {
		wilks *= 1 / (1 + l)
		pillai += l / (1 + l)
		hl += l
		roy = math.Max(roy, l)
	}
	s := math.Min(p, q)
	m := (math.Abs(p-q) - 1) / 2
	nn := (v - p - 1) / 2

	// Rao's F approximation.
	t := 1.0
	if d := p*p + q*q - 5; d > 0 {
		t = math.Sqrt((p*p*q*q - 4) / d)
	}
	r := v - (p-q+1)/2
	u := (p*q - 2) / 4
	wDF1, wDF2 := p*q, r*t-2*u
	lt := math.Pow(wilks, 1/t)
	wF := (1 - lt) / lt * wDF2 / wDF1

	pDF1, pDF2 := s*(2*m+s+1), s*(2*nn+s+1)
	pF := pDF2 / pDF1 * pillai / (s - pillai)

	hDF1, hDF2 := s*(2*m+s+1), 2*(s*nn+1)
	hF := hDF2 * hl / (s * s * (2*m + s + 1))

	big := math.Max(p, q)
	rDF1, rDF2 := big, v-big+q
	rF := roy * rDF2 / rDF1

	return []MultivariateTest{
		test("Wilks' lambda", wilks, wDF1, wDF2, wF),
		test("Pillai's trace", pillai, pDF1, pDF2, pF),
		test("Hotelling-Lawley trace", hl, hDF1, hDF2, hF),
		test("Roy's greatest root", roy, rDF1, rDF2, rF),
	}
}

func test(name string, value, df1, df2, f float64) MultivariateTest {
	if math.IsInf(f, 0) {
		f = math.NaN()
	}
	return MultivariateTest{Name: name, Value: value, NumDF: df1, DenDF: df2, F: f, P: fSurvival(f, df1, df2)}
}

func (r *ManovaResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Multivariate linear model\n%s\nN = %d, levels of %s: %s\n\n", r.Formula, r.N, r.Factor, strings.Join(r.Levels, ", "))
	fmt.Fprintf(&b, "%-24s %10s %8s %10s %10s %10s\n", r.Factor, "Value", "Num DF", "Den DF", "F Value", "Pr > F")
	for _, t := range r.Tests {
		fmt.Fprintf(&b, "%-24s %10.4f %8.4f %10.4f %10s %10s\n", t.Name, t.Value, t.NumDF, t.DenDF, cell(t.F, "%.4f"), cell(t.P, "%.4g"))
	}
	return b.String()
}
