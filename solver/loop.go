// Package solver implements the accelerated pseudo-transient relaxation
// engine: a dual-loop scheme where each physical time step drives the
// thickness field to a converged implicit solution through damped explicit
// pseudo-time iteration. Three variants share the engine: a serial 1D
// constant-diffusivity solver, its GPU twin built on OCCA kernels, and a
// 2D shallow-ice solver with nonlinear diffusivity, mass balance and an
// active-domain mask.
package solver

import (
	"fmt"
	"log"
	"math"
)

// Diagnostics accumulates per-run convergence bookkeeping.
type Diagnostics struct {
	PhysSteps  int     // physical time steps completed
	TotalIters int     // pseudo-iterations summed over all steps
	FinalErr   float64 // residual norm at the last error check
	MaxedSteps int     // steps that hit ItMax before reaching tolerance
}

// loopState enumerates the convergence state machine. MAXED_OUT is a
// terminal state like CONVERGED; only FATAL aborts the run.
type loopState int

const (
	stateInit loopState = iota
	stateIterate
	stateConverged
	stateMaxedOut
	stateFatal
)

// stepResult is what one physical step's relaxation hands back to the
// physical time loop.
type stepResult struct {
	Iters     int
	Err       float64
	Converged bool
}

// converge runs the pseudo-time loop for one physical step. iterate performs
// one full Flux -> Residual -> Update sweep (each pass synchronized before
// the next starts); residualNorm evaluates the mean L2 residual. The norm is
// checked every nCheck sweeps; a non-finite value is fatal, reaching itMax
// is not.
func converge(iterate func() error, residualNorm func() (float64, error),
	tol float64, itMax, nCheck int, verbose bool) (stepResult, error) {

	var res stepResult
	res.Err = 2 * tol // sentinel above tolerance, forces at least one sweep
	state := stateInit

	for {
		switch state {
		case stateInit:
			res.Iters = 0
			state = stateIterate

		case stateIterate:
			if err := iterate(); err != nil {
				return res, err
			}
			res.Iters++
			if res.Iters%nCheck == 0 {
				errNorm, err := residualNorm()
				if err != nil {
					return res, err
				}
				res.Err = errNorm
				if math.IsNaN(errNorm) || math.IsInf(errNorm, 0) {
					state = stateFatal
					continue
				}
				if verbose {
					log.Printf("iter %d, err=%1.3e", res.Iters, errNorm)
				}
			}
			switch {
			case res.Err <= tol:
				state = stateConverged
			case res.Iters >= itMax:
				state = stateMaxedOut
			}

		case stateConverged:
			res.Converged = true
			return res, nil

		case stateMaxedOut:
			if verbose {
				log.Printf("iteration cap %d reached, err=%1.3e > tol=%1.3e", itMax, res.Err, tol)
			}
			return res, nil

		case stateFatal:
			return res, fmt.Errorf("solver: %w after %d iterations", ErrDiverged, res.Iters)
		}
	}
}
