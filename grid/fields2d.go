package grid

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Fields2D holds the state of a 2D shallow-ice solve. Full-grid fields are
// nx x ny; flux fields are face-centered and staggered per axis; the rate,
// residual and pseudo-step fields cover the interior only.
type Fields2D struct {
	H    *mat.Dense // current thickness, nx x ny
	Hold *mat.Dense // thickness at the start of the physical step
	B    *mat.Dense // bed elevation
	S    *mat.Dense // surface elevation, B + H
	D    *mat.Dense // nonlinear diffusivity, recomputed every iteration
	Mask *mat.Dense // active-domain indicator, entries in {0,1}

	QHx *mat.Dense // x-face flux, (nx-1) x (ny-2)
	QHy *mat.Dense // y-face flux, (nx-2) x (ny-1)

	DHdt *mat.Dense // damped rate, (nx-2) x (ny-2)
	ResH *mat.Dense // instantaneous residual, (nx-2) x (ny-2)
	Dtau *mat.Dense // per-cell pseudo step, (nx-2) x (ny-2)
}

// NewFields2D allocates all fields for the given grid. The bed, initial
// thickness and mask are copied; the mask is validated to contain only 0 or
// 1 and is immutable afterwards.
func NewFields2D(g Grid2D, bed, h0, mask *mat.Dense) (*Fields2D, error) {
	inputs := []struct {
		name string
		m    *mat.Dense
	}{{"bed", bed}, {"initial thickness", h0}, {"mask", mask}}
	for _, in := range inputs {
		r, c := in.m.Dims()
		if r != g.Nx || c != g.Ny {
			return nil, fmt.Errorf("grid: %s is %dx%d, grid is %dx%d", in.name, r, c, g.Nx, g.Ny)
		}
	}
	for i := 0; i < g.Nx; i++ {
		for j := 0; j < g.Ny; j++ {
			if v := mask.At(i, j); v != 0 && v != 1 {
				return nil, fmt.Errorf("grid: mask[%d,%d]=%g, entries must be 0 or 1", i, j, v)
			}
		}
	}

	f := &Fields2D{
		H:    mat.NewDense(g.Nx, g.Ny, nil),
		Hold: mat.NewDense(g.Nx, g.Ny, nil),
		B:    mat.NewDense(g.Nx, g.Ny, nil),
		S:    mat.NewDense(g.Nx, g.Ny, nil),
		D:    mat.NewDense(g.Nx, g.Ny, nil),
		Mask: mat.NewDense(g.Nx, g.Ny, nil),
		QHx:  mat.NewDense(g.Nx-1, g.Ny-2, nil),
		QHy:  mat.NewDense(g.Nx-2, g.Ny-1, nil),
		DHdt: mat.NewDense(g.Nx-2, g.Ny-2, nil),
		ResH: mat.NewDense(g.Nx-2, g.Ny-2, nil),
		Dtau: mat.NewDense(g.Nx-2, g.Ny-2, nil),
	}
	f.H.Copy(h0)
	f.Hold.Copy(h0)
	f.B.Copy(bed)
	f.Mask.Copy(mask)
	return f, nil
}

// Commit snapshots H into Hold. Called exactly once per physical time step.
func (f *Fields2D) Commit() {
	f.Hold.Copy(f.H)
}
