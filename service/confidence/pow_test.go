package confidence

import (
	"testing"

	"github.com/dabberpk/BlockchainAccessLayer/service/chain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPoWCalculator_ValidatesRatio(t *testing.T) {
	tests := []struct {
		name  string
		ratio float64
		ok    bool
	}{
		{name: "typical minority attacker", ratio: 0.1, ok: true},
		{name: "upper edge", ratio: 0.49, ok: true},
		{name: "zero", ratio: 0, ok: false},
		{name: "negative", ratio: -0.1, ok: false},
		{name: "majority attacker", ratio: 0.5, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, err := NewPoWCalculator(tt.ratio)
			if tt.ok {
				require.NoError(t, err)
				require.NotNil(t, calc)
			} else {
				require.Error(t, err)
				assert.True(t, chain.IsParameter(err))
			}
		})
	}
}

func TestDepth_ZeroConfidenceIsZeroDepth(t *testing.T) {
	calc, err := NewPoWCalculator(0.1)
	require.NoError(t, err)

	depth, err := calc.Depth(0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestDepth_GrowsWithConfidence(t *testing.T) {
	calc, err := NewPoWCalculator(0.1)
	require.NoError(t, err)

	var prev int64
	for _, confidence := range []float64{0.5, 0.9, 0.99, 0.999, 0.9999} {
		depth, err := calc.Depth(confidence)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, depth, prev, "depth must not shrink as confidence grows")
		prev = depth
	}
	assert.Greater(t, prev, int64(0))
}

func TestDepth_GrowsWithAdversaryRatio(t *testing.T) {
	weak, err := NewPoWCalculator(0.1)
	require.NoError(t, err)
	strong, err := NewPoWCalculator(0.35)
	require.NoError(t, err)

	weakDepth, err := weak.Depth(0.99)
	require.NoError(t, err)
	strongDepth, err := strong.Depth(0.99)
	require.NoError(t, err)

	assert.Greater(t, strongDepth, weakDepth)
}

func TestDepth_RejectsOutOfRangeConfidence(t *testing.T) {
	calc, err := NewPoWCalculator(0.1)
	require.NoError(t, err)

	for _, confidence := range []float64{-0.1, 1, 1.5} {
		_, err := calc.Depth(confidence)
		require.Error(t, err, "confidence %v", confidence)
		assert.True(t, chain.IsParameter(err))
	}
}

func TestDepth_IsDeterministic(t *testing.T) {
	calc, err := NewPoWCalculator(0.25)
	require.NoError(t, err)

	first, err := calc.Depth(0.995)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := calc.Depth(0.995)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
