package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icetools/ptflow/utils"
)

// ============================================================================
// Device variant: the GPU kernels must reproduce the serial solver
// ============================================================================

func TestDiffusion1DDevice_MatchesSerial(t *testing.T) {
	dev, err := utils.CreateTestDevice()
	if err != nil {
		t.Skipf("no OCCA backend: %v", err)
	}
	defer dev.Free()

	cfg := DefaultConfig1D()
	cfg.Nx = 64
	dx := cfg.Lx / float64(cfg.Nx)
	cfg.Dt = dx * dx / cfg.Dcoef / 2.1
	cfg.Ttot = 5 * cfg.Dt
	cfg.Damp = 0.4
	h0 := gaussian1D(cfg)

	serial, err := NewDiffusion1D(cfg, h0)
	require.NoError(t, err)
	want, err := serial.Run()
	require.NoError(t, err)

	gpu, err := NewDiffusion1DDevice(dev, cfg, h0)
	require.NoError(t, err)
	defer gpu.Free()
	got, err := gpu.Run()
	require.NoError(t, err)

	require.Len(t, got.H, len(want.H))
	for i := range want.H {
		assert.InDelta(t, want.H[i], got.H[i], 1e-12, "cell %d", i)
	}
	assert.Equal(t, want.Diag.PhysSteps, got.Diag.PhysSteps)
	assert.Zero(t, got.Diag.MaxedSteps)
}

func TestDiffusion1DDevice_FlatFieldIsEquilibrium(t *testing.T) {
	dev, err := utils.CreateTestDevice()
	if err != nil {
		t.Skipf("no OCCA backend: %v", err)
	}
	defer dev.Free()

	cfg := DefaultConfig1D()
	cfg.Nx = 64
	dx := cfg.Lx / float64(cfg.Nx)
	cfg.Dt = dx * dx / cfg.Dcoef / 2.1
	cfg.Ttot = 3 * cfg.Dt
	cfg.Damp = 0.4

	h0 := make([]float64, cfg.Nx)
	for i := range h0 {
		h0[i] = 1.5
	}
	gpu, err := NewDiffusion1DDevice(dev, cfg, h0)
	require.NoError(t, err)
	defer gpu.Free()

	res, err := gpu.Run()
	require.NoError(t, err)
	for i, v := range res.H {
		assert.Equal(t, 1.5, v, "cell %d drifted", i)
	}
}

func TestDiffusion1DDevice_NaNInjection(t *testing.T) {
	dev, err := utils.CreateTestDevice()
	if err != nil {
		t.Skipf("no OCCA backend: %v", err)
	}
	defer dev.Free()

	cfg := DefaultConfig1D()
	cfg.Nx = 64
	dx := cfg.Lx / float64(cfg.Nx)
	cfg.Dt = dx * dx / cfg.Dcoef / 2.1
	cfg.Ttot = cfg.Dt
	h0 := gaussian1D(cfg)
	h0[cfg.Nx/2] = math.NaN()

	gpu, err := NewDiffusion1DDevice(dev, cfg, h0)
	require.NoError(t, err)
	defer gpu.Free()

	_, err = gpu.Run()
	assert.ErrorIs(t, err, ErrDiverged)
}

func TestDiffusion1DDevice_RejectsBadConfig(t *testing.T) {
	dev, err := utils.CreateTestDevice()
	if err != nil {
		t.Skipf("no OCCA backend: %v", err)
	}
	defer dev.Free()

	cfg := DefaultConfig1D()
	cfg.Tol = 0
	_, err = NewDiffusion1DDevice(dev, cfg, make([]float64, cfg.Nx))
	assert.Error(t, err)

	cfg = DefaultConfig1D()
	_, err = NewDiffusion1DDevice(dev, cfg, make([]float64, cfg.Nx-1))
	assert.Error(t, err, "mismatched initial condition")
}
