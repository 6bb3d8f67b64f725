package stats

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// fit is the least-squares fit of one design.
type fit struct {
	rss  float64
	rank int
	beta []float64
}

// leastSquares solves min ||y - X b|| through the thin SVD of X, truncating singular values
// below the usual rank tolerance. Rank-deficient designs (empty interaction cells) get the
// minimum-norm solution and their effective rank.
func leastSquares(x *mat.Dense, y []float64) (fit, error) {
	n, k := x.Dims()
	if n == 0 || k == 0 {
		return fit{}, ErrTooFewObservations
	}
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return fit{}, ErrSingular
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := float64(max(n, k)) * s[0] * 2.220446049250313e-16
	rank := 0
	for _, sv := range s {
		if sv > tol {
			rank++
		}
	}
	if rank == 0 {
		return fit{}, ErrSingular
	}

	yv := mat.NewVecDense(n, y)
	// coef = V_r * diag(1/s_r) * U_r^T * y
	w := make([]float64, rank)
	for i := 0; i < rank; i++ {
		w[i] = mat.Dot(u.ColView(i), yv) / s[i]
	}
	beta := make([]float64, k)
	for j := 0; j < k; j++ {
		for i := 0; i < rank; i++ {
			beta[j] += v.At(j, i) * w[i]
		}
	}
	var rss float64
	for i := 0; i < n; i++ {
		fitted := 0.0
		for j := 0; j < k; j++ {
			fitted += x.At(i, j) * beta[j]
		}
		d := y[i] - fitted
		rss += d * d
	}
	if rss < 0 || math.IsNaN(rss) {
		return fit{}, ErrSingular
	}
	return fit{rss: rss, rank: rank, beta: beta}, nil
}

// term is a block of design columns built from factor levels.
type term struct {
	name string
	cols func(row []string) []float64
}

// dummies returns treatment-coded indicator columns for factor j; the first level is the
// reference.
func dummies(name string, j int, lv []string) term {
	idx := make(map[string]int, len(lv))
	for i, l := range lv {
		idx[l] = i
	}
	return term{name: name, cols: func(row []string) []float64 {
		out := make([]float64, len(lv)-1)
		if i := idx[row[j]]; i > 0 {
			out[i-1] = 1
		}
		return out
	}}
}

// interact returns the pairwise products of two terms' columns.
func interact(name string, a, b term) term {
	return term{name: name, cols: func(row []string) []float64 {
		ac, bc := a.cols(row), b.cols(row)
		out := make([]float64, 0, len(ac)*len(bc))
		for _, x := range ac {
			for _, y := range bc {
				out = append(out, x*y)
			}
		}
		return out
	}}
}

// design builds an intercept plus the given terms for every row.
func design(xs [][]string, terms ...term) *mat.Dense {
	var data []float64
	k := 0
	for i, row := range xs {
		data = append(data, 1)
		for _, t := range terms {
			data = append(data, t.cols(row)...)
		}
		if i == 0 {
			k = len(data)
		}
	}
	return mat.NewDense(len(xs), k, data)
}
