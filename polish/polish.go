// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package polish implements the active-set refinement stage:
// given a converged ADMM iterate, it identifies the active constraints,
// assembles the reduced KKT system for the resulting equality-constrained
// QP, solves it densely via gonum's LU factorization (the problem is
// small relative to the sparse original once reduced to the active set),
// and iteratively refines the factorized solve. The caller — package
// osqp's Engine — decides whether to commit the result.
package polish

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/notalltim/osqp/qpmat"
)

// Problem is the input to Solve: a converged ADMM iterate on the
// original, unscaled problem.
type Problem struct {
	P      *qpmat.CSC // n×n, upper triangle
	Q      []float64
	A      *qpmat.CSC // m×n
	LA, UA []float64

	X, Z, Y []float64 // converged ADMM iterate, length n, m, m

	Delta       float64 // regularization (Settings.Delta)
	RefineIters int     // Settings.PolishRefineIter
}

// Result is the refined iterate, with Y expanded back to length m: zero
// on inactive rows, the solved multiplier on active rows.
type Result struct {
	X []float64
	Y []float64
	// Z is A·X projected onto [lA, uA], so the caller's primal residual
	// ‖Ax − z‖∞ measures the polished x's constraint violation rather
	// than trivially vanishing.
	Z []float64
}

// activeRow pins constraint row `row` to `bound` (its lA value when
// lower-active, uA when upper-active) in the reduced system.
type activeRow struct {
	row   int
	bound float64
}

// Solve performs active-set identification and the reduced KKT solve.
// ok is false if the reduced system is singular to working precision (no
// safe refinement available); the caller should then treat polishing as
// unsuccessful.
func Solve(p Problem) (Result, bool) {
	n := len(p.Q)
	m := len(p.LA)

	normY := qpmat.NormInf(p.Y)
	epsAct := math.Max(1e-8, 1e-6*normY)

	// A row whose selected bound is infinite cannot be pinned to it; such
	// a row stays inactive no matter what y says.
	var active []activeRow
	for i := 0; i < m; i++ {
		switch {
		case (p.Y[i] < -epsAct || (p.Z[i]-p.LA[i]) < epsAct) && !math.IsInf(p.LA[i], -1):
			active = append(active, activeRow{row: i, bound: p.LA[i]})
		case (p.Y[i] > epsAct || (p.UA[i]-p.Z[i]) < epsAct) && !math.IsInf(p.UA[i], 1):
			active = append(active, activeRow{row: i, bound: p.UA[i]})
		}
	}

	k := len(active)
	dim := n + k

	kkt := mat.NewDense(dim, dim, nil)
	rhs := mat.NewVecDense(dim, nil)

	// P + δI block (expand the sparse upper-triangular P into dense,
	// mirroring into both triangles; small because the polish problem
	// is meant to run once, post-convergence, not per ADMM iteration).
	for j := 0; j < p.P.Cols; j++ {
		for idx := p.P.Indptr[j]; idx < p.P.Indptr[j+1]; idx++ {
			i := p.P.Indices[idx]
			v := p.P.Values[idx]
			kkt.Set(i, j, kkt.At(i, j)+v)
			if i != j {
				kkt.Set(j, i, kkt.At(j, i)+v)
			}
		}
	}
	for i := 0; i < n; i++ {
		kkt.Set(i, i, kkt.At(i, i)+p.Delta)
		rhs.SetVec(i, -p.Q[i])
	}

	// A_red^T in the top-right block, A_red in the bottom-left, -δI in
	// the bottom-right.
	if k > 0 {
		aRedCols := make([][]float64, k)
		for c, ar := range active {
			col := make([]float64, n)
			aRedCols[c] = col
			rhs.SetVec(n+c, ar.bound)
			kkt.Set(n+c, n+c, -p.Delta)
		}
		for col := 0; col < p.A.Cols; col++ {
			for idx := p.A.Indptr[col]; idx < p.A.Indptr[col+1]; idx++ {
				row := p.A.Indices[idx]
				v := p.A.Values[idx]
				for c, ar := range active {
					if ar.row == row {
						kkt.Set(col, n+c, v)
						kkt.Set(n+c, col, v)
					}
				}
			}
		}
	}

	var lu mat.LU
	lu.Factorize(kkt)

	sol := mat.NewVecDense(dim, nil)
	if err := lu.SolveVecTo(sol, false, rhs); err != nil {
		return Result{}, false
	}

	// Iterative refinement: r = rhs - K*sol against the unregularized K
	// (no ±δ on the diagonal); solve with the δ-regularized factorization
	// for dx; sol += dx. This removes the δ bias of the first solve.
	// Factorize copied kkt, so it can be edited in place here.
	for i := 0; i < n; i++ {
		kkt.Set(i, i, kkt.At(i, i)-p.Delta)
	}
	for c := 0; c < k; c++ {
		kkt.Set(n+c, n+c, 0)
	}
	resid := mat.NewVecDense(dim, nil)
	corr := mat.NewVecDense(dim, nil)
	for it := 0; it < p.RefineIters; it++ {
		resid.MulVec(kkt, sol)
		resid.SubVec(rhs, resid)
		if err := lu.SolveVecTo(corr, false, resid); err != nil {
			break
		}
		sol.AddVec(sol, corr)
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = sol.AtVec(i)
	}
	y := make([]float64, m)
	for c, ar := range active {
		y[ar.row] = sol.AtVec(n + c)
	}
	z := make([]float64, m)
	if m > 0 {
		p.A.SpMV(1, x, 0, z)
		qpmat.Project(z, z, p.LA, p.UA)
	}

	if !qpmat.AllFinite(x) || !qpmat.AllFinite(y) {
		return Result{}, false
	}

	return Result{X: x, Y: y, Z: z}, true
}
