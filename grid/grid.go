// Package grid owns the structured-grid geometry and the field storage for
// the pseudo-transient solvers. All fields are allocated once at
// construction; extents never change afterwards.
package grid

import "fmt"

// Grid1D describes a uniform 1D cell-centered grid.
type Grid1D struct {
	Nx int     // number of cells
	Lx float64 // domain length
	Dx float64 // cell spacing, Lx/Nx
}

// NewGrid1D validates the extents and returns the grid geometry.
func NewGrid1D(nx int, lx float64) (Grid1D, error) {
	if nx < 3 {
		return Grid1D{}, fmt.Errorf("grid: nx=%d, need at least 3 cells for an interior", nx)
	}
	if lx <= 0 {
		return Grid1D{}, fmt.Errorf("grid: non-positive domain length lx=%g", lx)
	}
	return Grid1D{Nx: nx, Lx: lx, Dx: lx / float64(nx)}, nil
}

// X returns the cell-center coordinate vector.
func (g Grid1D) X() []float64 {
	x := make([]float64, g.Nx)
	for i := range x {
		x[i] = g.Dx/2 + float64(i)*g.Dx
	}
	return x
}

// Grid2D describes a uniform 2D cell-centered grid.
type Grid2D struct {
	Nx, Ny int
	Lx, Ly float64
	Dx, Dy float64
}

// NewGrid2D validates the extents and returns the grid geometry.
func NewGrid2D(nx, ny int, lx, ly float64) (Grid2D, error) {
	if nx < 3 || ny < 3 {
		return Grid2D{}, fmt.Errorf("grid: extents %dx%d, need at least 3 cells per axis", nx, ny)
	}
	if lx <= 0 || ly <= 0 {
		return Grid2D{}, fmt.Errorf("grid: non-positive domain size %gx%g", lx, ly)
	}
	return Grid2D{
		Nx: nx, Ny: ny,
		Lx: lx, Ly: ly,
		Dx: lx / float64(nx), Dy: ly / float64(ny),
	}, nil
}

// XY returns the cell-center coordinate vectors for both axes.
func (g Grid2D) XY() (x, y []float64) {
	x = make([]float64, g.Nx)
	for i := range x {
		x[i] = g.Dx/2 + float64(i)*g.Dx
	}
	y = make([]float64, g.Ny)
	for j := range y {
		y[j] = g.Dy/2 + float64(j)*g.Dy
	}
	return x, y
}
