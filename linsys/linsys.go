// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linsys solves the per-iteration linear system of the ADMM core:
// given P (upper-triangular), A and the current ρ-vector, it produces x̃
// and ν satisfying the augmented KKT system
//
//	[P + σI      Aᵀ] [x̃]   [σx − q           ]
//	[A        −R⁻¹ ] [ν ] = [z − R⁻¹y         ]
//
// behind a small Backend interface: backends are polymorphic and
// self-report whether they solve the system exactly or approximately via
// Capability. There is no registry: osqp.Setup constructs the PCG backend
// shipped here directly, so using another backend means changing Setup.
package linsys

import "github.com/notalltim/osqp/qpmat"

// Capability classifies a Backend as solving the KKT system exactly
// (Direct, via factorization) or approximately (Indirect, via an iterative
// method). Only Indirect is implemented in this module; see SPEC_FULL.md
// §7 for why no direct sparse factorization backend is provided.
type Capability int

const (
	Indirect Capability = iota
	Direct
)

func (c Capability) String() string {
	if c == Direct {
		return "direct"
	}
	return "indirect"
}

// Stats reports the outcome of a single Solve call.
type Stats struct {
	Iterations   int
	ResidualNorm float64
}

// Backend is the linear-system solver contract the ADMM engine consumes:
// init, solve, update_rho, update_matrices, free. Init is called once
// per Setup (or per sparsity-changing update); Solve is called once per
// ADMM iteration.
type Backend interface {
	// Init prepares the backend to solve the system for the given P
	// (upper-triangular CSC), A, regularization sigma and per-row rho
	// vector. Init copies rho (UpdateRho replaces the copy) but keeps
	// references to P and A without copying them; their values are
	// changed afterward through UpdateMatrices, which also refreshes the
	// preconditioner.
	Init(p, a *qpmat.CSC, sigma float64, rho []float64) error

	// Solve writes x̃ into out[:n] and ν into out[n:n+m] given
	// rhs = [σx − q ; z − R⁻¹y]. tol bounds the relative residual norm the
	// backend must reach; the caller derives it from the latest scaled
	// residuals and passes it in explicitly each call.
	Solve(rhs, out []float64, tol float64) (Stats, error)

	// UpdateRho replaces the ρ-vector and refreshes any preconditioner
	// derived from it, without reallocating backend state.
	UpdateRho(rho []float64) error

	// UpdateMatrices replaces P's and A's stored values in place
	// (sparsity pattern unchanged) and refreshes the preconditioner.
	UpdateMatrices(pVals, aVals []float64) error

	// Capability reports whether this backend solves exactly or
	// approximately.
	Capability() Capability

	// Free releases backend-owned buffers. Idempotent.
	Free()
}
