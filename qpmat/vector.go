// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qpmat

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// This file mirrors the shape of gonum.org/v1/gonum/floats: free functions
// over []float64 rather than a vector type, named the same way
// (Dot, AddScaled, Scale, Norm) so callers coming from that package recognize
// the contract immediately. Every operation floats already provides exactly
// (AXPY, AddScaled, Scale, MulElem, Dot, the 2-norm) is a thin wrapper over
// the real floats call, kept under this package's own names because the
// ADMM iteration's callers (engine.go, linsys/pcg.go) want the y←αx+y and
// "2-norm" vocabulary of the solver's formulas rather than floats'
// dst-first, L-parameterized one. NormInf is hand-rolled (see its doc).
// The rest is what floats does not provide: a destination-taking scale, a
// box projection, a finiteness check and zeroing.

// AXPY computes y ← alpha*x + y in place. Wraps floats.AddScaled, which
// has the same dst-accumulates-into-itself semantics under a different
// argument order (dst, alpha, s).
func AXPY(alpha float64, x, y []float64) {
	if len(x) != len(y) {
		panic(ErrShape)
	}
	floats.AddScaled(y, alpha, x)
}

// AddScaled computes dst[i] = a[i] + alpha*b[i], the three-argument form
// used when the destination is not one of the operands in place. Wraps
// floats.AddScaledTo.
func AddScaled(dst, a []float64, alpha float64, b []float64) {
	if len(dst) != len(a) || len(a) != len(b) {
		panic(ErrShape)
	}
	floats.AddScaledTo(dst, a, alpha, b)
}

// Scale multiplies every element of x by alpha in place. Wraps
// floats.Scale.
func Scale(alpha float64, x []float64) {
	floats.Scale(alpha, x)
}

// ScaleTo computes dst[i] = alpha*x[i]. floats has no destination-taking
// variant of Scale, so this stays hand-rolled.
func ScaleTo(dst []float64, alpha float64, x []float64) {
	if len(dst) != len(x) {
		panic(ErrShape)
	}
	for i, v := range x {
		dst[i] = alpha * v
	}
}

// MulElem computes dst[i] = a[i]*b[i]. Wraps floats.MulTo.
func MulElem(dst, a, b []float64) {
	if len(dst) != len(a) || len(a) != len(b) {
		panic(ErrShape)
	}
	floats.MulTo(dst, a, b)
}

// Dot returns the inner product of x and y. Wraps floats.Dot.
func Dot(x, y []float64) float64 {
	if len(x) != len(y) {
		panic(ErrShape)
	}
	return floats.Dot(x, y)
}

// NormInf returns the infinity norm (max absolute value) of x, 0 for an
// empty slice. floats.Norm(x, math.Inf(1)) is not used here: its L=+Inf
// branch returns plain Max(x) (the largest signed value, no math.Abs), not
// the largest-magnitude value a true infinity norm requires — every
// call site in this solver (residual norms, PCG stopping test) needs the
// true max-magnitude, so this stays hand-rolled rather than reusing a
// floats entry point whose L=+Inf case does not mean what its name
// suggests.
func NormInf(x []float64) float64 {
	var mx float64
	for _, v := range x {
		if a := math.Abs(v); a > mx {
			mx = a
		}
	}
	return mx
}

// Norm2 returns the Euclidean norm of x. Wraps floats.Norm(x, 2), whose
// L=2 branch does take the absolute value of each term (via math.Hypot),
// so it matches this function's contract exactly.
func Norm2(x []float64) float64 {
	return floats.Norm(x, 2)
}

// Project clips each src[i] into [lo[i], hi[i]] and writes the result to
// dst. lo[i] == math.Inf(-1) or hi[i] == math.Inf(1) disables that side.
func Project(dst, src, lo, hi []float64) {
	if len(dst) != len(src) || len(src) != len(lo) || len(lo) != len(hi) {
		panic(ErrShape)
	}
	for i, v := range src {
		if v < lo[i] {
			v = lo[i]
		}
		if v > hi[i] {
			v = hi[i]
		}
		dst[i] = v
	}
}

// AllFinite reports whether every element of x is neither NaN nor ±Inf.
func AllFinite(x []float64) bool {
	for _, v := range x {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

// Zero sets every element of x to 0.
func Zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}
