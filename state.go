// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osqp

// iterate holds the ADMM working state, all in
// scaled units. It is owned by Engine and never exposed directly; Engine
// exports read-only copies through Solution.
type iterate struct {
	x []float64 // length n
	z []float64 // length m
	y []float64 // length m

	xTilde []float64 // length n, x̃ from the linear system solve
	zTilde []float64 // length m, z̃ reconstructed from ν
	zPrev  []float64 // length m

	deltaX []float64 // length n, x - xPrevCheckpoint (infeasibility window)
	deltaY []float64 // length m, y - yPrevCheckpoint

	xPrevCheckpoint []float64
	yPrevCheckpoint []float64

	// ax, px, aty hold A·x, P·x and Aᵀ·y scratch for the residual and
	// infeasibility computations, reused every termination check so the
	// solve path never allocates.
	ax  []float64 // length m
	px  []float64 // length n
	aty []float64 // length n

	rhoVec    []float64 // length m
	rhoVecInv []float64 // length m
}

func newIterate(n, m int) *iterate {
	return &iterate{
		x: make([]float64, n), z: make([]float64, m), y: make([]float64, m),
		xTilde: make([]float64, n), zTilde: make([]float64, m), zPrev: make([]float64, m),
		deltaX: make([]float64, n), deltaY: make([]float64, m),
		xPrevCheckpoint: make([]float64, n), yPrevCheckpoint: make([]float64, m),
		ax: make([]float64, m), px: make([]float64, n), aty: make([]float64, n),
		rhoVec: make([]float64, m), rhoVecInv: make([]float64, m),
	}
}
