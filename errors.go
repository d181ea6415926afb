// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osqp

import "errors"

// Validation errors returned by Setup. Each is a sentinel so callers can
// errors.Is against it; a wrapped message from github.com/pkg/errors
// supplies the offending value.
var (
	ErrNonPositiveN    = errors.New("osqp: n must be positive")
	ErrNegativeM       = errors.New("osqp: m must be non-negative")
	ErrDimMismatch     = errors.New("osqp: dimension mismatch among P, q, A, lA, uA")
	ErrNonFiniteMatrix = errors.New("osqp: P or A contains a non-finite value")
	ErrBoundOrder      = errors.New("osqp: lA[i] > uA[i] for some i")
	ErrNotUpperTri     = errors.New("osqp: P must be stored as its upper triangle")
	ErrInvalidSettings = errors.New("osqp: setting out of its admitted range")
)

// ErrNumericalError names the numerical-error condition. Solve does not
// return it: a PCG breakdown ends the solve with NumericalErrorStatus as
// the returned Status. Solve never panics for this condition; the Engine
// remains inspectable and Cleanup-safe.
var ErrNumericalError = errors.New("osqp: numerical error in linear system solve")
