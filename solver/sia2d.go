package solver

import (
	"fmt"
	"math"

	"github.com/exascience/pargo/parallel"
	"gonum.org/v1/gonum/mat"

	"github.com/icetools/ptflow/grid"
)

// epsD keeps the per-cell pseudo step finite where the diffusivity
// vanishes; epsH guards the velocity division in ice-free cells.
const (
	epsD = 1e-8
	epsH = 1e-6
)

// Result2D carries the finished fields of a 2D run. The matrices are
// detached copies sized nx x ny; masked-out cells hold exact zeros in H and
// the velocity components.
type Result2D struct {
	X, Y []float64
	H    *mat.Dense // ice thickness
	S    *mat.Dense // surface elevation
	Vx   *mat.Dense // depth-averaged velocity, x component
	Vy   *mat.Dense // depth-averaged velocity, y component
	Diag Diagnostics
}

// SIA2D is the 2D shallow-ice variant: nonlinear diffusivity from Glen's
// flow law, an altitude-dependent mass-balance source, an active-domain
// mask and a per-cell pseudo step. Every stencil pass is one parallel.Range
// over grid rows; the call returns only when all workers finished, which is
// the barrier between passes.
type SIA2D struct {
	cfg Config2D
	g   grid.Grid2D
	f   *grid.Fields2D

	a1, a2 float64 // flow-law prefactors, derived once from the config
	cfl    float64 // explicit diffusion stability bound for the pseudo step
}

// NewSIA2D validates the configuration and the input grids (bed, initial
// thickness, mask) and allocates all fields. The mask must contain only 0
// and 1 and is immutable for the lifetime of the solver.
func NewSIA2D(cfg Config2D, bed, h0, mask *mat.Dense) (*SIA2D, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := grid.NewGrid2D(cfg.Nx, cfg.Ny, cfg.Lx, cfg.Ly)
	if err != nil {
		return nil, err
	}
	f, err := grid.NewFields2D(g, bed, h0, mask)
	if err != nil {
		return nil, err
	}
	return &SIA2D{
		cfg: cfg,
		g:   g,
		f:   f,
		a1:  2.0 / (cfg.Npow + 2) * cfg.FlowA * math.Pow(cfg.RhoG, cfg.Npow),
		a2:  cfg.FlowAs * math.Pow(cfg.RhoG, cfg.Npow),
		cfl: math.Min(g.Dx*g.Dx, g.Dy*g.Dy) / 4.1,
	}, nil
}

// Grid returns the grid geometry.
func (s *SIA2D) Grid() grid.Grid2D { return s.g }

// surfaceKernel recomputes S = B + H over the full grid.
func (s *SIA2D) surfaceKernel() {
	parallel.Range(0, s.g.Nx, 0, func(low, high int) {
		for i := low; i < high; i++ {
			b := s.f.B.RawRowView(i)
			h := s.f.H.RawRowView(i)
			sr := s.f.S.RawRowView(i)
			for j := range sr {
				sr[j] = b[j] + h[j]
			}
		}
	})
}

// diffusivityKernel recomputes D from the local thickness and the surface
// gradient magnitude. D has no memory of prior values. Gradients are
// central in the interior and one-sided at the domain edges so every cell
// carries a usable diffusivity for the face averaging in the flux pass.
func (s *SIA2D) diffusivityKernel() {
	n := s.cfg.Npow
	nx, ny := s.g.Nx, s.g.Ny
	parallel.Range(0, nx, 0, func(low, high int) {
		for i := low; i < high; i++ {
			im, ip := max(i-1, 0), min(i+1, nx-1)
			d := s.f.D.RawRowView(i)
			h := s.f.H.RawRowView(i)
			su := s.f.S.RawRowView(im)
			sc := s.f.S.RawRowView(i)
			sd := s.f.S.RawRowView(ip)
			for j := 0; j < ny; j++ {
				jm, jp := max(j-1, 0), min(j+1, ny-1)
				sx := (sd[j] - su[j]) / (float64(ip-im) * s.g.Dx)
				sy := (sc[jp] - sc[jm]) / (float64(jp-jm) * s.g.Dy)
				grad := math.Sqrt(sx*sx + sy*sy)
				d[j] = (s.a1*math.Pow(h[j], n+2) + s.a2*math.Pow(h[j], n)) *
					math.Pow(grad, n-1)
			}
		}
	})
}

// pseudoStepKernel recomputes the per-cell pseudo step from the stiffest
// diffusivity in the cell's neighborhood, the stability bound and the
// physical step.
func (s *SIA2D) pseudoStepKernel() {
	parallel.Range(1, s.g.Nx-1, 0, func(low, high int) {
		for i := low; i < high; i++ {
			dtau := s.f.Dtau.RawRowView(i - 1)
			du := s.f.D.RawRowView(i - 1)
			dc := s.f.D.RawRowView(i)
			dd := s.f.D.RawRowView(i + 1)
			for j := 1; j < s.g.Ny-1; j++ {
				dmax := dc[j]
				for _, v := range [4]float64{du[j], dd[j], dc[j-1], dc[j+1]} {
					if v > dmax {
						dmax = v
					}
				}
				dtau[j-1] = s.cfg.DtauScale / (1.0/s.cfg.Dt + (dmax+epsD)/s.cfl)
			}
		}
	})
}

// fluxKernel recomputes both face-centered flux fields from the current
// surface and diffusivity. The two passes are independent; each reads S and
// D only and writes its own field.
func (s *SIA2D) fluxKernel() {
	// x faces: QHx[i][j] sits between cells (i, j+1) and (i+1, j+1)
	parallel.Range(0, s.g.Nx-1, 0, func(low, high int) {
		for i := low; i < high; i++ {
			q := s.f.QHx.RawRowView(i)
			dl := s.f.D.RawRowView(i)
			dr := s.f.D.RawRowView(i + 1)
			sl := s.f.S.RawRowView(i)
			sr := s.f.S.RawRowView(i + 1)
			for j := 0; j < s.g.Ny-2; j++ {
				dface := 0.5 * (dl[j+1] + dr[j+1])
				q[j] = -dface * (sr[j+1] - sl[j+1]) / s.g.Dx
			}
		}
	})
	// y faces: QHy[i][j] sits between cells (i+1, j) and (i+1, j+1)
	parallel.Range(0, s.g.Nx-2, 0, func(low, high int) {
		for i := low; i < high; i++ {
			q := s.f.QHy.RawRowView(i)
			d := s.f.D.RawRowView(i + 1)
			sc := s.f.S.RawRowView(i + 1)
			for j := 0; j < s.g.Ny-1; j++ {
				dface := 0.5 * (d[j] + d[j+1])
				q[j] = -dface * (sc[j+1] - sc[j]) / s.g.Dy
			}
		}
	})
}

// residualKernel recomputes the PDE residual for every interior cell, adds
// the mass-balance source and folds the result into the damped rate. The
// rate field is the solver's momentum; it is deliberately never reset
// between physical steps in this variant.
func (s *SIA2D) residualKernel() {
	parallel.Range(1, s.g.Nx-1, 0, func(low, high int) {
		for i := low; i < high; i++ {
			h := s.f.H.RawRowView(i)
			hold := s.f.Hold.RawRowView(i)
			sc := s.f.S.RawRowView(i)
			qxl := s.f.QHx.RawRowView(i - 1)
			qxr := s.f.QHx.RawRowView(i)
			qy := s.f.QHy.RawRowView(i - 1)
			res := s.f.ResH.RawRowView(i - 1)
			rate := s.f.DHdt.RawRowView(i - 1)
			for j := 1; j < s.g.Ny-1; j++ {
				divx := (qxr[j-1] - qxl[j-1]) / s.g.Dx
				divy := (qy[j] - qy[j-1]) / s.g.Dy
				mb := math.Min(s.cfg.GradB*(sc[j]-s.cfg.ZELA), s.cfg.BMax)
				r := -(h[j]-hold[j])/s.cfg.Dt - (divx + divy) + mb
				res[j-1] = r
				rate[j-1] = s.cfg.Damp*rate[j-1] + r
			}
		}
	})
}

// updateKernel advances the interior thickness by the per-cell pseudo step,
// floors it at zero and forces masked-out cells to exactly zero. Boundary
// cells are never written.
func (s *SIA2D) updateKernel() {
	parallel.Range(1, s.g.Nx-1, 0, func(low, high int) {
		for i := low; i < high; i++ {
			h := s.f.H.RawRowView(i)
			m := s.f.Mask.RawRowView(i)
			rate := s.f.DHdt.RawRowView(i - 1)
			dtau := s.f.Dtau.RawRowView(i - 1)
			for j := 1; j < s.g.Ny-1; j++ {
				v := h[j] + dtau[j-1]*rate[j-1]
				if v < 0 || m[j] == 0 {
					v = 0
				}
				h[j] = v
			}
		}
	})
}

func (s *SIA2D) iterate() error {
	s.surfaceKernel()
	s.diffusivityKernel()
	s.pseudoStepKernel()
	s.fluxKernel()
	s.residualKernel()
	s.updateKernel()
	return nil
}

func (s *SIA2D) residualNorm() (float64, error) {
	res := s.f.ResH.RawMatrix().Data
	sumsq := parallel.RangeReduceFloat64(0, len(res), 0,
		func(low, high int) (acc float64) {
			for k := low; k < high; k++ {
				acc += res[k] * res[k]
			}
			return
		},
		func(a, b float64) float64 { return a + b },
	)
	return math.Sqrt(sumsq) / float64(len(res)), nil
}

// Run executes the physical time loop to completion and returns the final
// thickness, surface and velocity fields. A non-finite residual norm aborts
// the run with ErrDiverged.
func (s *SIA2D) Run() (*Result2D, error) {
	nt := physSteps(s.cfg.Ttot, s.cfg.Dt)
	var diag Diagnostics
	for step := 0; step < nt; step++ {
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

	// refresh the derived fields once from the committed thickness before
	// producing the outputs
	s.surfaceKernel()
	s.diffusivityKernel()
	vx, vy := s.velocities()

	x, y := s.g.XY()
	outH := mat.NewDense(s.g.Nx, s.g.Ny, nil)
	outS := mat.NewDense(s.g.Nx, s.g.Ny, nil)
	outH.Copy(s.f.H)
	outS.Copy(s.f.S)
	return &Result2D{
		X: x, Y: y,
		H: outH, S: outS,
		Vx: vx, Vy: vy,
		Diag: diag,
	}, nil
}

// velocities derives the depth-averaged velocity components from the final
// diffusivity and surface gradient. Ice-free and masked-out cells stay
// zero, as do the boundary rows and columns.
func (s *SIA2D) velocities() (vx, vy *mat.Dense) {
	vx = mat.NewDense(s.g.Nx, s.g.Ny, nil)
	vy = mat.NewDense(s.g.Nx, s.g.Ny, nil)
	parallel.Range(1, s.g.Nx-1, 0, func(low, high int) {
		for i := low; i < high; i++ {
			h := s.f.H.RawRowView(i)
			m := s.f.Mask.RawRowView(i)
			d := s.f.D.RawRowView(i)
			su := s.f.S.RawRowView(i - 1)
			sc := s.f.S.RawRowView(i)
			sd := s.f.S.RawRowView(i + 1)
			vxr := vx.RawRowView(i)
			vyr := vy.RawRowView(i)
			for j := 1; j < s.g.Ny-1; j++ {
				if h[j] <= epsH || m[j] == 0 {
					continue
				}
				sx := (sd[j] - su[j]) / (2 * s.g.Dx)
				sy := (sc[j+1] - sc[j-1]) / (2 * s.g.Dy)
				vxr[j] = -d[j] * sx / h[j]
				vyr[j] = -d[j] * sy / h[j]
			}
		}
	})
	return vx, vy
}
