package analysis

import (
	"math"
	"sort"
)

// Quantile returns the q-quantile of sorted values using linear interpolation
// between closest ranks (position q*(n-1)).
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// FiveNumber is the box-plot summary of a sample with Tukey fences at 1.5 IQR.
type FiveNumber struct {
	N          int       `json:"n"`
	Min        float64   `json:"min"`
	Q1         float64   `json:"q1"`
	Median     float64   `json:"median"`
	Q3         float64   `json:"q3"`
	Max        float64   `json:"max"`
	LowerFence float64   `json:"lower_fence"`
	UpperFence float64   `json:"upper_fence"`
	Outliers   []float64 `json:"outliers,omitempty"`
}

// Summarize computes the five-number summary of vals, ignoring NaN.
func Summarize(vals []float64) FiveNumber {
	s := Finite(vals)
	sort.Float64s(s)
	if len(s) == 0 {
		nan := math.NaN()
		return FiveNumber{Min: nan, Q1: nan, Median: nan, Q3: nan, Max: nan, LowerFence: nan, UpperFence: nan}
	}
	f := FiveNumber{
		N:      len(s),
		Min:    s[0],
		Q1:     Quantile(s, 0.25),
		Median: Quantile(s, 0.5),
		Q3:     Quantile(s, 0.75),
		Max:    s[len(s)-1],
	}
	iqr := f.Q3 - f.Q1
	f.LowerFence = f.Q1 - 1.5*iqr
	f.UpperFence = f.Q3 + 1.5*iqr
	for _, v := range s {
		if v < f.LowerFence || v > f.UpperFence {
			f.Outliers = append(f.Outliers, v)
		}
	}
	return f
}

// Finite returns a copy of vals without NaN and infinities.
func Finite(vals []float64) []float64 {
	out := make([]float64, 0, len(vals))
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = Quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = Quantile(dev, 0.5)
	return
}

// robustOutliers counts values whose robust z-score 0.6745*(x-median)/MAD exceeds thr.
func robustOutliers(vals []float64, thr float64) (count int, maxAbsZ float64) {
	median, mad := medianMAD(vals)
	if mad == 0 {
		return 0, 0
	}
	for _, v := range vals {
		az := math.Abs(0.6745 * (v - median) / mad)
		if az > thr {
			count++
		}
		if az > maxAbsZ {
			maxAbsZ = az
		}
	}
	return count, maxAbsZ
}
