package grid

import "fmt"

// Fields1D holds the state of a 1D solve. Size convention: H and Hold span
// the full grid, the face-centered flux QH has one fewer element, and the
// interior-only rate and residual fields have two fewer.
type Fields1D struct {
	H    []float64 // current thickness, nx
	Hold []float64 // thickness at the start of the physical step, nx
	QH   []float64 // face flux, nx-1
	DHdt []float64 // damped rate, nx-2
	ResH []float64 // instantaneous residual, nx-2
}

// NewFields1D allocates all fields for the given grid and sets H from the
// supplied initial condition.
func NewFields1D(g Grid1D, h0 []float64) (*Fields1D, error) {
	if len(h0) != g.Nx {
		return nil, fmt.Errorf("grid: initial condition has %d elements, grid has %d cells", len(h0), g.Nx)
	}
	f := &Fields1D{
		H:    make([]float64, g.Nx),
		Hold: make([]float64, g.Nx),
		QH:   make([]float64, g.Nx-1),
		DHdt: make([]float64, g.Nx-2),
		ResH: make([]float64, g.Nx-2),
	}
	copy(f.H, h0)
	copy(f.Hold, h0)
	return f, nil
}

// Commit snapshots H into Hold. Called exactly once per physical time step,
// after the convergence loop returns.
func (f *Fields1D) Commit() {
	copy(f.Hold, f.H)
}
