package solver

import "errors"

// ErrDiverged reports a non-finite residual norm. The run is aborted and
// the fields held by the solver must not be trusted by the caller.
var ErrDiverged = errors.New("residual norm is not finite")
