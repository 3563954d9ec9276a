package solver

import "fmt"

// Config1D configures the 1D constant-diffusivity variants (serial and
// device). The struct is copied at construction; solvers never mutate it.
type Config1D struct {
	Nx int     // grid cells
	Lx float64 // domain length

	Dcoef float64 // diffusion coefficient

	Ttot float64 // total physical time
	Dt   float64 // physical time step

	Damp   float64 // damping factor in [0,1)
	Tol    float64 // convergence tolerance on the mean L2 residual
	ItMax  int     // pseudo-iteration cap per physical step
	NCheck int     // error-check interval in pseudo-iterations

	Verbose bool
}

// DefaultConfig1D returns the canonical 1D setup: lx=10, D=1, nx=128,
// dt bounded by the explicit diffusion limit with a 2.1 safety factor,
// damping tuned to the grid resolution.
func DefaultConfig1D() Config1D {
	nx := 128
	lx, dcoef := 10.0, 1.0
	dx := lx / float64(nx)
	return Config1D{
		Nx:     nx,
		Lx:     lx,
		Dcoef:  dcoef,
		Ttot:   0.6,
		Dt:     dx * dx / dcoef / 2.1,
		Damp:   1 - 41.0/float64(nx),
		Tol:    1e-8,
		ItMax:  100000,
		NCheck: 1,
	}
}

// Validate rejects invalid configurations before any field is allocated or
// any kernel runs.
func (c Config1D) Validate() error {
	switch {
	case c.Nx < 3:
		return fmt.Errorf("solver: nx=%d, need at least 3 cells", c.Nx)
	case c.Lx <= 0:
		return fmt.Errorf("solver: non-positive domain length lx=%g", c.Lx)
	case c.Dcoef <= 0:
		return fmt.Errorf("solver: non-positive diffusion coefficient %g", c.Dcoef)
	case c.Dt <= 0 || c.Ttot <= 0:
		return fmt.Errorf("solver: non-positive time parameters dt=%g ttot=%g", c.Dt, c.Ttot)
	case c.Damp < 0 || c.Damp >= 1:
		return fmt.Errorf("solver: damping factor %g outside [0,1)", c.Damp)
	case c.Tol <= 0:
		return fmt.Errorf("solver: non-positive tolerance %g", c.Tol)
	case c.ItMax < 1:
		return fmt.Errorf("solver: iteration cap %d below 1", c.ItMax)
	case c.NCheck < 1:
		return fmt.Errorf("solver: error-check interval %d below 1", c.NCheck)
	}
	return nil
}

// Config2D configures the 2D shallow-ice variant.
type Config2D struct {
	Nx, Ny int
	Lx, Ly float64

	// Flow law: D = (a1*H^(n+2) + a2*H^n) * |grad S|^(n-1) with
	// a1 = 2/(n+2)*FlowA*(RhoG)^n (deformation) and a2 = FlowAs*(RhoG)^n
	// (sliding).
	RhoG   float64 // ice density times gravitational acceleration
	FlowA  float64 // deformation rate constant
	FlowAs float64 // sliding rate constant, zero disables sliding
	Npow   float64 // Glen's-law exponent

	// Mass balance: b = min(GradB*(S - ZELA), BMax) added to the residual.
	GradB float64 // balance rate per unit altitude
	ZELA  float64 // equilibrium-line altitude
	BMax  float64 // accumulation cap

	Ttot float64
	Dt   float64

	Damp      float64 // damping factor in [0,1)
	DtauScale float64 // pseudo-step safety factor in (0,1]
	Tol       float64
	ItMax     int
	NCheck    int

	Verbose bool
}

// Validate rejects invalid configurations eagerly.
func (c Config2D) Validate() error {
	switch {
	case c.Nx < 3 || c.Ny < 3:
		return fmt.Errorf("solver: extents %dx%d, need at least 3 cells per axis", c.Nx, c.Ny)
	case c.Lx <= 0 || c.Ly <= 0:
		return fmt.Errorf("solver: non-positive domain size %gx%g", c.Lx, c.Ly)
	case c.RhoG <= 0 || c.FlowA <= 0 || c.FlowAs < 0:
		return fmt.Errorf("solver: invalid flow-law constants rhog=%g A=%g As=%g", c.RhoG, c.FlowA, c.FlowAs)
	case c.Npow < 1:
		return fmt.Errorf("solver: flow-law exponent %g below 1", c.Npow)
	case c.Dt <= 0 || c.Ttot <= 0:
		return fmt.Errorf("solver: non-positive time parameters dt=%g ttot=%g", c.Dt, c.Ttot)
	case c.Damp < 0 || c.Damp >= 1:
		return fmt.Errorf("solver: damping factor %g outside [0,1)", c.Damp)
	case c.DtauScale <= 0 || c.DtauScale > 1:
		return fmt.Errorf("solver: pseudo-step safety factor %g outside (0,1]", c.DtauScale)
	case c.Tol <= 0:
		return fmt.Errorf("solver: non-positive tolerance %g", c.Tol)
	case c.ItMax < 1:
		return fmt.Errorf("solver: iteration cap %d below 1", c.ItMax)
	case c.NCheck < 1:
		return fmt.Errorf("solver: error-check interval %d below 1", c.NCheck)
	}
	return nil
}
