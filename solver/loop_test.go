package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Convergence state machine
// ============================================================================

func TestConverge_ReachesTolerance(t *testing.T) {
	norm := 1.0
	iterate := func() error { norm /= 10; return nil }
	residual := func() (float64, error) { return norm, nil }

	res, err := converge(iterate, residual, 5e-7, 100, 1, false)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.Equal(t, 7, res.Iters, "1.0 decays below 5e-7 after seven decades")
	assert.LessOrEqual(t, res.Err, 5e-7)
}

func TestConverge_AtLeastOneSweep(t *testing.T) {
	// the sentinel must force a sweep even when the field is already at
	// equilibrium
	calls := 0
	iterate := func() error { calls++; return nil }
	residual := func() (float64, error) { return 0, nil }

	res, err := converge(iterate, residual, 1e-6, 100, 1, false)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, res.Converged)
}

func TestConverge_MaxedOutIsNotAnError(t *testing.T) {
	iterate := func() error { return nil }
	residual := func() (float64, error) { return 1.0, nil }

	res, err := converge(iterate, residual, 1e-6, 25, 1, false)
	require.NoError(t, err, "hitting the cap is an accepted outcome")
	assert.False(t, res.Converged)
	assert.Equal(t, 25, res.Iters)
	assert.Equal(t, 1.0, res.Err)
}

func TestConverge_NonFiniteNormIsFatal(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		iterate := func() error { return nil }
		residual := func() (float64, error) { return bad, nil }

		_, err := converge(iterate, residual, 1e-6, 100, 1, false)
		assert.ErrorIs(t, err, ErrDiverged)
	}
}

func TestConverge_CheckInterval(t *testing.T) {
	normCalls := 0
	norm := 1.0
	iterate := func() error { norm *= 0.5; return nil }
	residual := func() (float64, error) { normCalls++; return norm, nil }

	res, err := converge(iterate, residual, 1e-3, 1000, 10, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Iters%10, "loop only exits on a checkpoint")
	assert.Equal(t, res.Iters/10, normCalls)
}
