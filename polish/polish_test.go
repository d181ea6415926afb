// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package polish

import (
	"math"
	"testing"

	"github.com/notalltim/osqp/qpmat"
)

// diagCSC builds an upper-triangular diagonal CSC matrix.
func diagCSC(diag []float64) *qpmat.CSC {
	n := len(diag)
	indptr := make([]int, n+1)
	indices := make([]int, n)
	values := make([]float64, n)
	for i := range diag {
		indptr[i] = i
		indices[i] = i
		values[i] = diag[i]
	}
	indptr[n] = n
	return qpmat.NewCSC(n, n, indptr, indices, values).MarkUpperTriangular()
}

func identityA(n int) *qpmat.CSC {
	indptr := make([]int, n+1)
	indices := make([]int, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		indptr[i] = i
		indices[i] = i
		values[i] = 1
	}
	indptr[n] = n
	return qpmat.NewCSC(n, n, indptr, indices, values)
}

// TestSolveLowerBoundActive solves minimize x^2 subject to 1 <= x <= 3,
// where the unconstrained optimum x=0 is infeasible and the ADMM iterate
// has converged to the lower-active bound x=1, y<0.
func TestSolveLowerBoundActive(t *testing.T) {
	p := Problem{
		P:           diagCSC([]float64{2}),
		Q:           []float64{0},
		A:           identityA(1),
		LA:          []float64{1},
		UA:          []float64{3},
		X:           []float64{1},
		Z:           []float64{1},
		Y:           []float64{-0.5},
		Delta:       1e-6,
		RefineIters: 3,
	}
	result, ok := Solve(p)
	if !ok {
		t.Fatalf("Solve reported failure")
	}
	if math.Abs(result.X[0]-1) > 1e-6 {
		t.Errorf("x = %v, want 1", result.X[0])
	}
	if result.Y[0] >= 0 {
		t.Errorf("y = %v, want negative (lower-active)", result.Y[0])
	}
}

// TestSolveInactive solves an unconstrained-equivalent problem where no
// row is active; the reduced system degenerates to P x = -q.
func TestSolveInactive(t *testing.T) {
	p := Problem{
		P:           diagCSC([]float64{4}),
		Q:           []float64{-8},
		A:           identityA(1),
		LA:          []float64{-10},
		UA:          []float64{10},
		X:           []float64{2},
		Z:           []float64{2},
		Y:           []float64{0},
		Delta:       1e-6,
		RefineIters: 2,
	}
	result, ok := Solve(p)
	if !ok {
		t.Fatalf("Solve reported failure")
	}
	if math.Abs(result.X[0]-2) > 1e-4 {
		t.Errorf("x = %v, want 2", result.X[0])
	}
	if len(result.Y) != 1 || result.Y[0] != 0 {
		t.Errorf("y = %v, want [0] (no active rows)", result.Y)
	}
}

// TestSolveEqualityRow checks that an equality row (lA == uA) is always
// treated as active regardless of y, producing an exact constraint.
func TestSolveEqualityRow(t *testing.T) {
	p := Problem{
		P:           diagCSC([]float64{1}),
		Q:           []float64{0},
		A:           identityA(1),
		LA:          []float64{5},
		UA:          []float64{5},
		X:           []float64{5},
		Z:           []float64{5},
		Y:           []float64{0},
		Delta:       1e-8,
		RefineIters: 3,
	}
	result, ok := Solve(p)
	if !ok {
		t.Fatalf("Solve reported failure")
	}
	if math.Abs(result.X[0]-5) > 1e-4 {
		t.Errorf("x = %v, want 5", result.X[0])
	}
}
