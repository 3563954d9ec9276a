package solver

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/icetools/ptflow/grid"
)

// Result1D carries the finished field of a 1D run plus diagnostics. The
// slices are detached copies; callers may hand them straight to persistence
// or plotting.
type Result1D struct {
	X    []float64
	H    []float64
	Diag Diagnostics
}

// Diffusion1D is the serial 1D constant-diffusivity variant. The three
// stencil passes run as plain loops in strict Flux -> Residual -> Update
// order; sequential execution gives the synchronization contract for free.
type Diffusion1D struct {
	cfg  Config1D
	g    grid.Grid1D
	f    *grid.Fields1D
	dtau float64
}

// NewDiffusion1D validates the configuration, allocates the fields and sets
// H from the supplied initial condition.
func NewDiffusion1D(cfg Config1D, h0 []float64) (*Diffusion1D, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := grid.NewGrid1D(cfg.Nx, cfg.Lx)
	if err != nil {
		return nil, err
	}
	f, err := grid.NewFields1D(g, h0)
	if err != nil {
		return nil, err
	}
	return &Diffusion1D{
		cfg:  cfg,
		g:    g,
		f:    f,
		dtau: pseudoStep1D(g.Dx, cfg.Dcoef, cfg.Dt),
	}, nil
}

// pseudoStep1D combines the explicit diffusion stability bound (with a 2.1
// safety factor) and the physical step into the scalar pseudo step.
func pseudoStep1D(dx, dcoef, dt float64) float64 {
	return 1.0 / (1.0/(dx*dx/dcoef/2.1) + 1.0/dt)
}

// Grid returns the grid geometry.
func (s *Diffusion1D) Grid() grid.Grid1D { return s.g }

// H returns a detached copy of the current thickness field, usable for
// inspection mid-run without aliasing solver state.
func (s *Diffusion1D) H() []float64 {
	return append([]float64(nil), s.f.H...)
}

func (s *Diffusion1D) fluxKernel() {
	for i := range s.f.QH {
		s.f.QH[i] = -s.cfg.Dcoef * (s.f.H[i+1] - s.f.H[i]) / s.g.Dx
	}
}

func (s *Diffusion1D) residualKernel() {
	for i := range s.f.ResH {
		res := -(s.f.H[i+1]-s.f.Hold[i+1])/s.cfg.Dt - (s.f.QH[i+1]-s.f.QH[i])/s.g.Dx
		s.f.ResH[i] = res
		s.f.DHdt[i] = s.cfg.Damp*s.f.DHdt[i] + res
	}
}

func (s *Diffusion1D) updateKernel() {
	// boundary cells are never written; H[0] and H[nx-1] keep their
	// initial values for the whole run
	for i := range s.f.DHdt {
		s.f.H[i+1] += s.dtau * s.f.DHdt[i]
	}
}

func (s *Diffusion1D) iterate() error {
	s.fluxKernel()
	s.residualKernel()
	s.updateKernel()
	return nil
}

func (s *Diffusion1D) residualNorm() (float64, error) {
	return floats.Norm(s.f.ResH, 2) / float64(len(s.f.ResH)), nil
}

// Run executes the physical time loop to completion and returns the final
// field. A non-finite residual norm aborts the run with ErrDiverged.
func (s *Diffusion1D) Run() (*Result1D, error) {
	nt := physSteps(s.cfg.Ttot, s.cfg.Dt)
	var diag Diagnostics
	for step := 0; step < nt; step++ {
		// the rate memory starts fresh each physical step in the 1D
		// variants; only the 2D solver carries momentum across steps
		for i := range s.f.DHdt {
			s.f.DHdt[i] = 0
		}
		res, err := converge(s.iterate, s.residualNorm,
			s.cfg.Tol, s.cfg.ItMax, s.cfg.NCheck, s.cfg.Verbose)
		if err != nil {
			return nil, fmt.Errorf("physical step %d: %w", step, err)
		}
		diag.PhysSteps++
		diag.TotalIters += res.Iters
		diag.FinalErr = res.Err
		if !res.Converged {
			diag.MaxedSteps++
		}
		s.f.Commit()
	}
	return &Result1D{
		X:    s.g.X(),
		H:    append([]float64(nil), s.f.H...),
		Diag: diag,
	}, nil
}

// physSteps converts the total time into a whole step count, tolerating
// float noise in Ttot/Dt.
func physSteps(ttot, dt float64) int {
	nt := int(math.Ceil(ttot/dt - 1e-9))
	if nt < 1 {
		nt = 1
	}
	return nt
}
