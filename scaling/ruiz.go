// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scaling implements Ruiz equilibration: it produces diagonal
// scalings D (n×n), E (m×m) and a cost scalar c such that
// P̂ = cDPD, Â = EAD, q̂ = cDq, l̂ = ElA, û = EuA have row/column
// infinity-norms close to 1 in the symmetric composite [P̂ Âᵀ; Â 0].
package scaling

import (
	"math"

	"github.com/notalltim/osqp/qpmat"
)

// Scaling holds the diagonal scale vectors and cost scalar produced by
// Compute, plus their inverses, used to unscale a solution. D, E, C are
// strictly positive and finite once Compute has run.
type Scaling struct {
	D, Dinv []float64
	E, Einv []float64
	C       float64
}

// NewIdentity returns the no-op scaling (Settings.Scaling == 0).
func NewIdentity(n, m int) *Scaling {
	s := &Scaling{
		D: onesOf(n), Dinv: onesOf(n),
		E: onesOf(m), Einv: onesOf(m),
		C: 1,
	}
	return s
}

func onesOf(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// Compute runs `iters` rounds of Ruiz equilibration over the KKT
// composite [P Aᵀ; A 0] and scales P, A, q, lA, uA in place, returning the
// Scaling record used to unscale the solution later. iters == 0 returns
// the identity scaling and leaves the problem untouched.
//
// A zero or non-finite norm is not fatal: that coordinate's update is
// skipped (multiplier = 1) and the loop continues — Compute never
// returns an error.
func Compute(p, a *qpmat.CSC, q, lA, uA []float64, iters int) *Scaling {
	n, m := p.Cols, a.Rows
	s := NewIdentity(n, m)
	if iters <= 0 {
		return s
	}

	for iter := 0; iter < iters; iter++ {
		colNorms := compositeColNorms(p, a) // length n
		rowNorms := a.RowInfNorms()         // length m

		dUpdate := reciprocalSqrt(colNorms)
		eUpdate := reciprocalSqrt(rowNorms)

		p.ScaleCols(dUpdate)
		// P is symmetric (upper-tri storage): scaling columns by d also
		// scales the implicit rows by d, so apply it a second time to
		// realize D P D rather than just P D.
		scaleUpperTriBothSides(p, dUpdate)
		a.ScaleCols(dUpdate)
		a.ScaleRows(eUpdate)
		qpmat.MulElem(q, q, dUpdate)
		qpmat.MulElem(lA, lA, eUpdate)
		qpmat.MulElem(uA, uA, eUpdate)

		qpmat.MulElem(s.D, s.D, dUpdate)
		qpmat.MulElem(s.E, s.E, eUpdate)
	}

	// Cost scaling: c = 1 / max(mean column inf-norm of P, inf-norm of q, 1).
	pColNorms := p.ColInfNormsSym()
	var meanPNorm float64
	if n > 0 {
		var sum float64
		for _, v := range pColNorms {
			sum += v
		}
		meanPNorm = sum / float64(n)
	}
	qNorm := qpmat.NormInf(q)
	denom := math.Max(meanPNorm, math.Max(qNorm, 1))
	c := 1.0
	if denom > 0 && isFinite(denom) {
		c = 1 / denom
	}
	p.ScaleAll(c)
	qpmat.Scale(c, q)
	s.C = c

	for i := range s.D {
		s.Dinv[i] = 1 / s.D[i]
	}
	for i := range s.E {
		s.Einv[i] = 1 / s.E[i]
	}
	return s
}

// scaleUpperTriBothSides applies a second diagonal scaling pass to an
// upper-triangular symmetric CSC matrix so the net effect of two calls
// (ScaleCols by d, then this) is D P D rather than P D. Off-diagonal
// entries (i,j), i<j, get an extra factor d[i]; diagonal entries already
// received d[j]*d[j] is wrong since ScaleCols only multiplied once by
// d[j] — this corrects the row-side factor d[i] for off-diagonal stored
// entries and the missing second d[j] factor for the diagonal.
func scaleUpperTriBothSides(p *qpmat.CSC, d []float64) {
	for j := 0; j < p.Cols; j++ {
		for k := p.Indptr[j]; k < p.Indptr[j+1]; k++ {
			i := p.Indices[k]
			if i == j {
				p.Values[k] *= d[j]
			} else {
				p.Values[k] *= d[i]
			}
		}
	}
}

// compositeColNorms returns, for each of the n columns, the infinity norm
// of column j across the stacked [P; A] matrix.
func compositeColNorms(p, a *qpmat.CSC) []float64 {
	pNorms := p.ColInfNormsSym()
	aNorms := a.ColInfNorms()
	out := make([]float64, len(pNorms))
	for j := range out {
		out[j] = math.Max(pNorms[j], aNorms[j])
	}
	return out
}

// reciprocalSqrt returns 1/sqrt(v[i]), guarding zero/non-finite entries
// to a multiplier of 1.
func reciprocalSqrt(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		if x == 0 || !isFinite(x) {
			out[i] = 1
			continue
		}
		out[i] = 1 / math.Sqrt(x)
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// UnscaleSolution maps a scaled solution (xHat, yHat) back to the
// original problem's variables: x = D xHat, y = (E yHat) / c.
func (s *Scaling) UnscaleSolution(x, xHat, y, yHat []float64) {
	qpmat.MulElem(x, s.D, xHat)
	qpmat.MulElem(y, s.E, yHat)
	qpmat.Scale(1/s.C, y)
}

// ScaleX maps a caller-supplied x in the original problem's units into
// the scaled units the engine iterates in: xHat = D⁻¹x.
func (s *Scaling) ScaleX(xHat, x []float64) {
	qpmat.MulElem(xHat, s.Dinv, x)
}

// ScaleY maps a caller-supplied y into scaled units: yHat = c E⁻¹ y.
func (s *Scaling) ScaleY(yHat, y []float64) {
	qpmat.MulElem(yHat, s.Einv, y)
	qpmat.Scale(s.C, yHat)
}

// ScaleWarmStart maps both halves of a warm-start iterate at once. The
// engine scales x and y independently (either may be absent from a
// WarmStart call), so this is a convenience over ScaleX and ScaleY.
func (s *Scaling) ScaleWarmStart(xHat, x, yHat, y []float64) {
	s.ScaleX(xHat, x)
	s.ScaleY(yHat, y)
}
