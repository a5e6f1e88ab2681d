package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmptyAndSingle(t *testing.T) {
	require.Equal(t, []float64{}, Normalize(nil, Exponential))
	require.Equal(t, []float64{1.0}, Normalize([]float64{4.2}, Linear))
}

func TestNormalizeLinearMatchesSpecExample(t *testing.T) {
	got := Normalize([]float64{0, 1, 2, 3}, Linear)
	require.Len(t, got, 4)
	assert.InDelta(t, 1.0, got[0], 1e-9)
	assert.InDelta(t, 0.6667, got[1], 1e-3)
	assert.InDelta(t, 0.3333, got[2], 1e-3)
	assert.InDelta(t, 0.0, got[3], 1e-9)
}

func TestNormalizeExponentialStrictlyDecreasingAndTopIsOne(t *testing.T) {
	got := Normalize([]float64{0, 0.5, 1, 2, 5}, Exponential)
	assert.InDelta(t, 1.0, got[0], 1e-9)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i], got[i-1])
	}
}

func TestNormalizeAllEqualDistancesSkipsSecondPass(t *testing.T) {
	got := Normalize([]float64{3, 3, 3}, Gaussian)
	for _, v := range got {
		assert.InDelta(t, got[0], v, 1e-12)
	}
}

func TestNormalizeOutputAlwaysInUnitRange(t *testing.T) {
	for _, method := range []Method{Exponential, Inverse, Gaussian, Linear} {
		got := Normalize([]float64{0.1, 2.3, 0.5, 9.9, 1.0}, method)
		for _, v := range got {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestMethodValid(t *testing.T) {
	assert.True(t, Exponential.Valid())
	assert.False(t, Method("manhattan").Valid())
}

func TestOptimalMethod(t *testing.T) {
	assert.Equal(t, Exponential, OptimalMethod("hdbscan_knn", ""))
	assert.Equal(t, Inverse, OptimalMethod("lyrics_svd_knn", ""))
	assert.Equal(t, Linear, OptimalMethod("unknown_model", "cosine"))
}

func TestToScore100(t *testing.T) {
	assert.InDelta(t, 42.0, ToScore100(0.42), 1e-9)
}
