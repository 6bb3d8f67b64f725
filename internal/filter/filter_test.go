package filter

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/custlens/internal/dataset"
)

func sampleDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New("customers",
		dataset.CategoricalColumn("LoyaltyStatus", "Gold", "Silver", "Gold", "Star", "", "Aurora", "Silver", "Star"),
		dataset.CategoricalColumn("Province or State", "Ontario", "Quebec", "Ontario", "Alberta", "Quebec", "Ontario", "Yukon", "Alberta"),
		dataset.NumericColumn("Income", 50000, 70000, 30000, math.NaN(), 45000, 99000, 12000, 61000),
	)
	require.NoError(t, err)
	return ds
}

func TestApplyCombinesWithAnd(t *testing.T) {
	ds := sampleDataset(t)
	sel := Selection{}.And(
		InSet{Col: "LoyaltyStatus", Values: []string{"Gold", "Silver"}},
		InRange{Col: "Income", Min: 40000, Max: 80000},
	)
	v, err := sel.Apply(ds)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, v.Rows())
}

func TestEmptySelectionKeepsAll(t *testing.T) {
	ds := sampleDataset(t)
	v, err := Selection{}.Apply(ds)
	require.NoError(t, err)
	assert.Equal(t, ds.Len(), v.Len())
}

func TestNullsNeverMatch(t *testing.T) {
	ds := sampleDataset(t)
	v, err := Selection{}.And(InRange{Col: "Income", Min: math.Inf(-1), Max: math.Inf(1)}).Apply(ds)
	require.NoError(t, err)
	assert.NotContains(t, v.Rows(), 3)

	v, err = Selection{}.And(InSet{Col: "LoyaltyStatus", Values: []string{"Gold", "Silver", "Star", "Aurora", ""}}).Apply(ds)
	require.NoError(t, err)
	assert.NotContains(t, v.Rows(), 4)
}

func TestEmptySetKeepsNothing(t *testing.T) {
	ds := sampleDataset(t)
	v, err := Selection{}.And(InSet{Col: "LoyaltyStatus"}).Apply(ds)
	require.NoError(t, err)
	assert.Equal(t, 0, v.Len())
}

func TestApplyValidatesColumns(t *testing.T) {
	ds := sampleDataset(t)
	_, err := Selection{}.And(InSet{Col: "Nope", Values: []string{"x"}}).Apply(ds)
	require.ErrorIs(t, err, dataset.ErrUnknownColumn)
	_, err = Selection{}.And(InRange{Col: "LoyaltyStatus"}).Apply(ds)
	require.Error(t, err)
}

func TestAndDoesNotAliasReceiver(t *testing.T) {
	base := Selection{}.And(InSet{Col: "LoyaltyStatus", Values: []string{"Gold"}})
	a := base.And(InRange{Col: "Income", Min: 0, Max: 1})
	b := base.And(InSet{Col: "Province or State", Values: []string{"Ontario"}})
	assert.Len(t, base.Predicates(), 1)
	assert.IsType(t, InRange{}, a.Predicates()[1])
	assert.IsType(t, InSet{}, b.Predicates()[1])
}

func TestDefaults(t *testing.T) {
	ds := sampleDataset(t)
	opts, err := Options(ds, "LoyaltyStatus")
	require.NoError(t, err)
	assert.Equal(t, []string{"Aurora", "Gold", "Silver", "Star"}, opts)

	r, err := Bounds(ds, "Income")
	require.NoError(t, err)
	assert.Equal(t, Range{Min: 12000, Max: 99000}, r)
}

// Tightening any predicate must yield a subset of the previous view.
func TestFilteredViewIsMonotoneSubset(t *testing.T) {
	ds := sampleDataset(t)
	levels, err := Options(ds, "LoyaltyStatus")
	require.NoError(t, err)
	provinces, err := Options(ds, "Province or State")
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		sel := Selection{}
		prev, err := sel.Apply(ds)
		require.NoError(t, err)
		for step := 0; step < 4; step++ {
			switch rng.Intn(3) {
			case 0:
				sel = sel.And(InSet{Col: "LoyaltyStatus", Values: pick(rng, levels)})
			case 1:
				sel = sel.And(InSet{Col: "Province or State", Values: pick(rng, provinces)})
			default:
				lo := float64(rng.Intn(100000))
				sel = sel.And(InRange{Col: "Income", Min: lo, Max: lo + float64(rng.Intn(60000))})
			}
			next, err := sel.Apply(ds)
			require.NoError(t, err)
			assert.LessOrEqual(t, next.Len(), prev.Len())
			assert.Subset(t, prev.Rows(), next.Rows())
			assertUnique(t, next.Rows())
			prev = next
		}
	}
}

func TestSpecSelectionIsDeterministic(t *testing.T) {
	sp := Spec{
		Sets:   map[string][]string{"Province or State": {"Ontario"}, "LoyaltyStatus": {"Gold"}},
		Ranges: map[string]Range{"Income": {Min: 0, Max: 60000}},
	}
	a, b := sp.Selection(), sp.Selection()
	assert.Equal(t, a, b)
	require.Len(t, a.Predicates(), 3)
	assert.Equal(t, "LoyaltyStatus", a.Predicates()[0].Column())

	v, err := a.Apply(sampleDataset(t))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, v.Rows())
}

func pick(rng *rand.Rand, from []string) []string {
	var out []string
	for _, s := range from {
		if rng.Intn(2) == 0 {
			out = append(out, s)
		}
	}
	return out
}

func assertUnique(t *testing.T, rows []int) {
	t.Helper()
	seen := map[int]bool{}
	for _, r := range rows {
		assert.False(t, seen[r], "row %d duplicated", r)
		seen[r] = true
	}
}
