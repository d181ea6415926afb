// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linsys

import (
	"math"

	"github.com/pkg/errors"

	"github.com/notalltim/osqp/qpmat"
)

// minTolFraction is the floor placed on ε_pcg: it never drops below
// 1e-12, regardless of how tight the caller's requested tolerance is.
const minTolFraction = 1e-12

// pcgAbsTol is ε_pcg_abs, the absolute-tolerance term of the stopping
// rule r ≤ tol·‖b‖ + pcgAbsTol. It is not one of Settings' tunables: it
// is fixed at a value far below eps_abs's own default (1e-3), so the
// inner solver's floor never limits the outer tolerance the caller asks
// for.
const pcgAbsTol = 1e-10

// ErrBreakdown reports that PCG exceeded its iteration cap without
// reaching even a loosened tolerance — the engine turns this into a
// NumericalError status.
var ErrBreakdown = errors.New("linsys: pcg exceeded iteration cap without converging")

// PCG is the Indirect Backend: matrix-free, Jacobi-preconditioned
// conjugate gradients on the reduced system (P + σI + AᵀRA)x̃ = b
// obtained by eliminating ν from the augmented system. Unlike
// gonum.org/v1/gonum/linsolve's CG it keeps no resumable iteration state:
// each Solve runs the whole CG loop, and only the scratch buffers and the
// previous solution (the next warm start) persist between calls. It
// operates directly on the reduced KKT system instead of a generic
// mat.Matrix operator — matrix-free SpMV
// against P and A is cheaper than materializing mat.Dense, and the
// problem (P symmetric upper-tri + A plus a diagonal R) is always SPD
// once σ > 0, so there is no need for CG's general mat.Matrix interface.
type PCG struct {
	p, a  *qpmat.CSC
	n, m  int
	sigma float64
	rho   []float64

	precon []float64 // diag(P + σI + AᵀRA), inverted lazily in solve

	// scratch, reused across Solve calls to avoid per-iteration allocation
	x, r, z, pDir, ap []float64
	rrhs2, atRrhs2, b []float64
	axt               []float64

	xPrev []float64 // warm start for the next Solve
}

var _ Backend = (*PCG)(nil)

// NewPCG constructs an uninitialized PCG backend. Call Init before Solve.
func NewPCG() *PCG { return &PCG{} }

// Capability reports Indirect: PCG solves the reduced system
// approximately, to a tolerance, never exactly.
func (c *PCG) Capability() Capability { return Indirect }

// Init implements Backend.
func (c *PCG) Init(p, a *qpmat.CSC, sigma float64, rho []float64) error {
	if !p.IsUpperTriangular() {
		return errors.New("linsys: P must be stored as its upper triangle")
	}
	if p.Rows != p.Cols {
		return errors.New("linsys: P must be square")
	}
	if a.Cols != p.Cols {
		return errors.Errorf("linsys: A has %d columns, want %d", a.Cols, p.Cols)
	}
	if len(rho) != a.Rows {
		return errors.Errorf("linsys: rho has length %d, want %d", len(rho), a.Rows)
	}
	c.p, c.a, c.sigma = p, a, sigma
	c.n, c.m = p.Cols, a.Rows
	c.rho = append([]float64(nil), rho...)

	c.x = make([]float64, c.n)
	c.r = make([]float64, c.n)
	c.z = make([]float64, c.n)
	c.pDir = make([]float64, c.n)
	c.ap = make([]float64, c.n)
	c.rrhs2 = make([]float64, c.m)
	c.atRrhs2 = make([]float64, c.n)
	c.b = make([]float64, c.n)
	c.axt = make([]float64, c.m)
	c.xPrev = make([]float64, c.n)

	c.refreshPreconditioner()
	return nil
}

// UpdateRho implements Backend.
func (c *PCG) UpdateRho(rho []float64) error {
	if len(rho) != c.m {
		return errors.Errorf("linsys: rho has length %d, want %d", len(rho), c.m)
	}
	copy(c.rho, rho)
	c.refreshPreconditioner()
	return nil
}

// UpdateMatrices implements Backend.
func (c *PCG) UpdateMatrices(pVals, aVals []float64) error {
	if pVals != nil {
		c.p.UpdateValues(pVals)
	}
	if aVals != nil {
		c.a.UpdateValues(aVals)
	}
	c.refreshPreconditioner()
	return nil
}

// Free releases backend state. Idempotent: calling it twice, or calling
// it on a zero-value PCG, is a no-op.
func (c *PCG) Free() {
	c.p, c.a, c.rho = nil, nil, nil
	c.x, c.r, c.z, c.pDir, c.ap = nil, nil, nil, nil, nil
	c.rrhs2, c.atRrhs2, c.b = nil, nil, nil
	c.axt, c.xPrev, c.precon = nil, nil, nil
}

// refreshPreconditioner recomputes diag(P + σI + AᵀRA), clamping any
// non-positive entry to σ so the Jacobi scaling stays positive.
func (c *PCG) refreshPreconditioner() {
	if c.precon == nil {
		c.precon = make([]float64, c.n)
	}
	for j := range c.precon {
		c.precon[j] = c.sigma
	}
	for j := 0; j < c.p.Cols; j++ {
		for k := c.p.Indptr[j]; k < c.p.Indptr[j+1]; k++ {
			if c.p.Indices[k] == j {
				c.precon[j] += c.p.Values[k]
			}
		}
	}
	for j := 0; j < c.a.Cols; j++ {
		for k := c.a.Indptr[j]; k < c.a.Indptr[j+1]; k++ {
			row := c.a.Indices[k]
			v := c.a.Values[k]
			c.precon[j] += c.rho[row] * v * v
		}
	}
	for j, v := range c.precon {
		if v <= 0 {
			c.precon[j] = c.sigma
		}
	}
}

// applyOperator computes dst = (P + σI + AᵀRA) * v, the reduced system's
// matrix-free action.
func (c *PCG) applyOperator(dst, v []float64) {
	c.p.SymSpMV(1, v, 0, dst)
	qpmat.AXPY(c.sigma, v, dst)
	c.a.SpMV(1, v, 0, c.axt)
	for i, rv := range c.axt {
		c.axt[i] = rv * c.rho[i]
	}
	c.a.SpMVTrans(1, c.axt, 1, dst)
}

// Solve implements Backend. rhs has length n+m: rhs[:n] = σx−q,
// rhs[n:n+m] = z − R⁻¹y. out receives x̃ in out[:n] and ν in out[n:n+m].
func (c *PCG) Solve(rhs, out []float64, tol float64) (Stats, error) {
	if len(rhs) != c.n+c.m || len(out) != c.n+c.m {
		return Stats{}, errors.New("linsys: rhs/out must have length n+m")
	}
	rhs1 := rhs[:c.n]
	rhs2 := rhs[c.n:]

	for i := range c.rrhs2 {
		c.rrhs2[i] = c.rho[i] * rhs2[i]
	}
	c.a.SpMVTrans(1, c.rrhs2, 0, c.atRrhs2)

	b := c.b
	qpmat.AddScaled(b, rhs1, 1, c.atRrhs2)

	stats, err := c.pcgSolve(b, tol)
	if err != nil {
		return stats, err
	}

	copy(out[:c.n], c.x)
	c.a.SpMV(1, c.x, 0, c.axt)
	for i := 0; i < c.m; i++ {
		out[c.n+i] = c.rho[i]*c.axt[i] - c.rrhs2[i]
	}
	copy(c.xPrev, c.x)
	return stats, nil
}

// pcgSolve runs Jacobi-preconditioned CG on (P+σI+AᵀRA) x = b, warm
// started from the previous solve's x (the reduced systems across
// consecutive ADMM iterations differ only in their RHS and, occasionally,
// ρ, so the previous x̃ is usually a good initial guess). Result is left
// in c.x.
func (c *PCG) pcgSolve(b []float64, tol float64) (Stats, error) {
	if tol < minTolFraction {
		tol = minTolFraction
	}
	normB := qpmat.Norm2(b)
	maxIter := c.n
	if maxIter < 20 {
		maxIter = 20
	}

	copy(c.x, c.xPrev)
	c.applyOperator(c.r, c.x)
	for i := range c.r {
		c.r[i] = b[i] - c.r[i]
	}
	resNorm := qpmat.Norm2(c.r)
	if resNorm <= tol*normB+pcgAbsTol {
		return Stats{Iterations: 0, ResidualNorm: resNorm}, nil
	}

	c.applyPrecon(c.z, c.r)
	copy(c.pDir, c.z)
	rz := qpmat.Dot(c.r, c.z)

	for it := 1; it <= maxIter; it++ {
		c.applyOperator(c.ap, c.pDir)
		denom := qpmat.Dot(c.pDir, c.ap)
		if denom == 0 || math.IsNaN(denom) {
			return Stats{Iterations: it, ResidualNorm: resNorm}, ErrBreakdown
		}
		alpha := rz / denom
		qpmat.AXPY(alpha, c.pDir, c.x)
		qpmat.AXPY(-alpha, c.ap, c.r)
		resNorm = qpmat.Norm2(c.r)
		if resNorm <= tol*normB+pcgAbsTol {
			return Stats{Iterations: it, ResidualNorm: resNorm}, nil
		}
		c.applyPrecon(c.z, c.r)
		rzNew := qpmat.Dot(c.r, c.z)
		beta := rzNew / rz
		for i := range c.pDir {
			c.pDir[i] = c.z[i] + beta*c.pDir[i]
		}
		rz = rzNew
	}
	if !qpmat.AllFinite(c.x) {
		return Stats{Iterations: maxIter, ResidualNorm: resNorm}, ErrBreakdown
	}
	// Loosened tolerance: accept a stall at a coarser bound rather than
	// report failure outright; breakdown is reserved for runs that miss
	// even the loosened bound.
	if resNorm <= 10*tol*normB+pcgAbsTol {
		return Stats{Iterations: maxIter, ResidualNorm: resNorm}, nil
	}
	return Stats{Iterations: maxIter, ResidualNorm: resNorm}, ErrBreakdown
}

func (c *PCG) applyPrecon(dst, src []float64) {
	for i, v := range src {
		dst[i] = v / c.precon[i]
	}
}
