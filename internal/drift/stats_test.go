package drift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKSTest_IdenticalSamples(t *testing.T) {
	sample := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	stat, p := ksTest(sample, sample)

	assert.Equal(t, 0.0, stat)
	assert.Equal(t, 1.0, p)
}

func TestKSTest_DisjointSamples(t *testing.T) {
	ref := make([]float64, 100)
	cur := make([]float64, 100)
	for i := range ref {
		ref[i] = float64(i) * 0.1
		cur[i] = float64(i)*0.1 + 100
	}

	stat, p := ksTest(ref, cur)
	assert.InDelta(t, 1.0, stat, 1e-9)
	assert.Less(t, p, 0.001)
}

func TestKSPValue_Bounds(t *testing.T) {
	assert.Equal(t, 1.0, ksPValue(0, 100, 100))

	p := ksPValue(0.05, 50, 50)
	assert.GreaterOrEqual(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)

	// larger statistic, smaller p
	assert.Greater(t, ksPValue(0.1, 200, 200), ksPValue(0.4, 200, 200))
}

func TestChiSquare_SameProportions(t *testing.T) {
	ref := map[string]int{"A": 500, "B": 300, "C": 200}
	cur := map[string]int{"A": 50, "B": 30, "C": 20}

	stat, p := chiSquareTest(ref, cur)
	assert.InDelta(t, 0, stat, 1e-9)
	assert.Greater(t, p, 0.9)
}

func TestChiSquare_ShiftedProportions(t *testing.T) {
	ref := map[string]int{"A": 500, "B": 500}
	cur := map[string]int{"A": 900, "B": 100}

	_, p := chiSquareTest(ref, cur)
	assert.Less(t, p, 0.001)
}

func TestChiSquare_UnseenCategoryRegistersDrift(t *testing.T) {
	ref := map[string]int{"A": 500, "B": 500}
	cur := map[string]int{"C": 100}

	stat, p := chiSquareTest(ref, cur)
	require.Greater(t, stat, 0.0)
	assert.Less(t, p, 0.001)
}

func TestChiSquare_SingleCategoryDegenerate(t *testing.T) {
	stat, p := chiSquareTest(map[string]int{"A": 100}, map[string]int{"A": 50})
	assert.Equal(t, 0.0, stat)
	assert.Equal(t, 1.0, p)
}

func TestHasVariance(t *testing.T) {
	assert.False(t, hasVariance(nil))
	assert.False(t, hasVariance([]float64{3}))
	assert.False(t, hasVariance([]float64{3, 3, 3}))
	assert.True(t, hasVariance([]float64{3, 3, 4}))
}
