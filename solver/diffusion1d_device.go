package solver

import (
	"fmt"

	"github.com/notargets/gocca"
	"gonum.org/v1/gonum/floats"

	"github.com/icetools/ptflow/device"
	"github.com/icetools/ptflow/grid"
)

// Diffusion1DDevice is the GPU-parallel 1D variant. The three stencil
// passes are separate OCCA kernels launched in strict Flux -> Residual ->
// Update order; device.Runner.ExecuteKernel blocks on Device.Finish, which
// is the synchronization barrier between passes. All numeric parameters are
// embedded in the kernel source as literals, so a launch passes only the
// field arrays.
type Diffusion1DDevice struct {
	cfg  Config1D
	g    grid.Grid1D
	run  *device.Runner
	dtau float64

	h    []float64 // host mirror of H, refreshed at the end of the run
	resh []float64 // host mirror of ResH for the error check
	zero []float64 // interior-sized scratch for the per-step rate reset
}

// NewDiffusion1DDevice validates the configuration, allocates the device
// fields, uploads the initial condition and compiles the kernels.
func NewDiffusion1DDevice(dev *gocca.OCCADevice, cfg Config1D, h0 []float64) (*Diffusion1DDevice, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := grid.NewGrid1D(cfg.Nx, cfg.Lx)
	if err != nil {
		return nil, err
	}
	if len(h0) != g.Nx {
		return nil, fmt.Errorf("solver: initial condition has %d elements, grid has %d cells", len(h0), g.Nx)
	}

	s := &Diffusion1DDevice{
		cfg:  cfg,
		g:    g,
		run:  device.NewRunner(dev),
		dtau: pseudoStep1D(g.Dx, cfg.Dcoef, cfg.Dt),
		h:    append([]float64(nil), h0...),
		resh: make([]float64, g.Nx-2),
		zero: make([]float64, g.Nx-2),
	}

	if err := s.allocate(); err != nil {
		s.run.Free()
		return nil, err
	}
	if err := s.buildKernels(); err != nil {
		s.run.Free()
		return nil, err
	}
	return s, nil
}

func (s *Diffusion1DDevice) allocate() error {
	if err := s.run.BindArray("H", s.h); err != nil {
		return err
	}
	if err := s.run.BindArray("Hold", s.h); err != nil {
		return err
	}
	for name, n := range map[string]int{
		"qH":   s.g.Nx - 1,
		"dHdt": s.g.Nx - 2,
		"ResH": s.g.Nx - 2,
	} {
		if err := s.run.AllocArray(name, n); err != nil {
			return err
		}
	}
	return nil
}

// kernelDefines embeds the grid extents, block counts and physics constants
// as literals shared by all four kernels.
func (s *Diffusion1DDevice) kernelDefines() string {
	return fmt.Sprintf(`#define NX %d
#define NB_FACE %d
#define NB_INT %d
#define NB_FULL %d
#define DX %.17g
#define DT %.17g
#define DTAU %.17g
#define DAMP %.17g
#define DCOEF %.17g
`, s.g.Nx, blocks(s.g.Nx-1), blocks(s.g.Nx-2), blocks(s.g.Nx),
		s.g.Dx, s.cfg.Dt, s.dtau, s.cfg.Damp, s.cfg.Dcoef)
}

func blocks(n int) int {
	return (n + device.Block - 1) / device.Block
}

func (s *Diffusion1DDevice) buildKernels() error {
	defs := s.kernelDefines()

	fluxSource := defs + `
@kernel void computeFlux(const real_t* H, real_t* qH) {
	for (int b = 0; b < NB_FACE; ++b; @outer) {
		for (int t = 0; t < BLOCK; ++t; @inner) {
			const int i = b * BLOCK + t;
			if (i < NX - 1) {
				qH[i] = -DCOEF * (H[i + 1] - H[i]) / DX;
			}
		}
	}
}`

	residualSource := defs + `
@kernel void computeResidual(const real_t* H, const real_t* Hold,
                             const real_t* qH, real_t* dHdt, real_t* ResH) {
	for (int b = 0; b < NB_INT; ++b; @outer) {
		for (int t = 0; t < BLOCK; ++t; @inner) {
			const int i = b * BLOCK + t;
			if (i < NX - 2) {
				const real_t res = -(H[i + 1] - Hold[i + 1]) / DT
					- (qH[i + 1] - qH[i]) / DX;
				ResH[i] = res;
				dHdt[i] = DAMP * dHdt[i] + res;
			}
		}
	}
}`

	updateSource := defs + `
@kernel void updateH(real_t* H, const real_t* dHdt) {
	for (int b = 0; b < NB_INT; ++b; @outer) {
		for (int t = 0; t < BLOCK; ++t; @inner) {
			const int i = b * BLOCK + t;
			if (i < NX - 2) {
				H[i + 1] += DTAU * dHdt[i];
			}
		}
	}
}`

	commitSource := defs + `
@kernel void commitH(const real_t* H, real_t* Hold) {
	for (int b = 0; b < NB_FULL; ++b; @outer) {
		for (int t = 0; t < BLOCK; ++t; @inner) {
			const int i = b * BLOCK + t;
			if (i < NX) {
				Hold[i] = H[i];
			}
		}
	}
}`

	for name, source := range map[string]string{
		"computeFlux":     fluxSource,
		"computeResidual": residualSource,
		"updateH":         updateSource,
		"commitH":         commitSource,
	} {
		if _, err := s.run.BuildKernel(source, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Diffusion1DDevice) iterate() error {
	if err := s.run.ExecuteKernel("computeFlux", "H", "qH"); err != nil {
		return err
	}
	if err := s.run.ExecuteKernel("computeResidual", "H", "Hold", "qH", "dHdt", "ResH"); err != nil {
		return err
	}
	return s.run.ExecuteKernel("updateH", "H", "dHdt")
}

func (s *Diffusion1DDevice) residualNorm() (float64, error) {
	if err := s.run.CopyFromDevice("ResH", s.resh); err != nil {
		return 0, err
	}
	return floats.Norm(s.resh, 2) / float64(len(s.resh)), nil
}

// Run executes the physical time loop to completion, copies the final field
// back to the host and returns it.
func (s *Diffusion1DDevice) Run() (*Result1D, error) {
	nt := physSteps(s.cfg.Ttot, s.cfg.Dt)
	var diag Diagnostics
	for step := 0; step < nt; step++ {
		// same reset policy as the serial variant: fresh rate memory at
		// every physical-step entry
		if err := s.run.CopyToDevice("dHdt", s.zero); err != nil {
			return nil, err
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
		if err := s.run.ExecuteKernel("commitH", "H", "Hold"); err != nil {
			return nil, err
		}
	}
	if err := s.run.CopyFromDevice("H", s.h); err != nil {
		return nil, err
	}
	return &Result1D{
		X:    s.g.X(),
		H:    append([]float64(nil), s.h...),
		Diag: diag,
	}, nil
}

// Free releases the device resources. The solver must not be used
// afterwards.
func (s *Diffusion1DDevice) Free() {
	s.run.Free()
}
