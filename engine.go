// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osqp

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/notalltim/osqp/linsys"
	"github.com/notalltim/osqp/polish"
	"github.com/notalltim/osqp/qpmat"
	"github.com/notalltim/osqp/scaling"
)

// Engine owns the problem Data, Settings, Scaling, iterate state, LinSys
// backend and polish buffers. It is created by Setup (the only call
// permitted to allocate structurally), mutated by the
// Update*/WarmStart/Solve operations, and released by Cleanup.
//
// Engine is not safe for concurrent use: a solver instance is
// single-threaded and synchronous. Run separate instances on separate
// goroutines instead of sharing one.
type Engine struct {
	data     Data // original, unscaled, validated at Setup
	settings Settings

	scaledP  *qpmat.CSC
	scaledA  *qpmat.CSC
	scaledQ  []float64
	scaledLA []float64
	scaledUA []float64
	scale    *scaling.Scaling

	it      *iterate
	backend linsys.Backend

	// rhs/out are the (n+m)-length linear-system buffers reused every
	// iteration; Solve itself never allocates.
	rhs, out []float64

	epsPcg             float64
	nextHeuristicCheck int
	rhoUpdates         int

	info Info

	unscaledX, unscaledY, unscaledZ []float64

	freed bool
}

// Setup validates Data and Settings, scales the problem, and builds an
// Engine ready to Solve. It is the only function in this package
// permitted to allocate structurally.
func Setup(data Data, settings Settings) (*Engine, error) {
	start := time.Now()
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	n, m := data.N(), data.M()

	scaledP := data.P.Clone()
	var scaledA *qpmat.CSC
	if m > 0 {
		scaledA = data.A.Clone()
	} else {
		scaledA = qpmat.NewCSC(0, n, make([]int, n+1), nil, nil)
	}
	scaledQ := append([]float64(nil), data.Q...)
	scaledLA := append([]float64(nil), data.LA...)
	scaledUA := append([]float64(nil), data.UA...)

	scale := scaling.Compute(scaledP, scaledA, scaledQ, scaledLA, scaledUA, settings.Scaling)

	it := newIterate(n, m)
	initRhoVec(it.rhoVec, scaledLA, scaledUA, settings.Rho)
	invertRhoVec(it.rhoVecInv, it.rhoVec)

	backend := linsys.NewPCG()
	if err := backend.Init(scaledP, scaledA, settings.Sigma, it.rhoVec); err != nil {
		return nil, errors.Wrap(err, "osqp: setup")
	}

	e := &Engine{
		data:      data,
		settings:  settings,
		scaledP:   scaledP,
		scaledA:   scaledA,
		scaledQ:   scaledQ,
		scaledLA:  scaledLA,
		scaledUA:  scaledUA,
		scale:     scale,
		it:        it,
		backend:   backend,
		rhs:       make([]float64, n+m),
		out:       make([]float64, n+m),
		epsPcg:    0.1,
		unscaledX: make([]float64, n),
		unscaledY: make([]float64, m),
		unscaledZ: make([]float64, m),
		info:      Info{Status: Unsolved},
	}
	e.info.SetupTime = time.Since(start)
	return e, nil
}

// WarmStart sets the initial iterate from caller-supplied x0/y0. A nil
// argument leaves that half of the iterate at its current value (0 for a
// freshly set-up Engine). When x0 is given, z is reset to A*x0.
// Dimensions must match; a mismatch panics, since this is always a
// caller-construction bug, not a data validity question.
//
// The iterate this seeds only survives into the next Solve/SolveContext
// call if Settings.WarmStart is also true; otherwise SolveContext resets
// to zero before iterating and this call's effect is discarded. Call this
// after setting Settings.WarmStart = true, not instead of it.
func (e *Engine) WarmStart(x0, y0 []float64) {
	n, m := e.data.N(), e.data.M()
	if x0 != nil {
		if len(x0) != n {
			panic(qpmat.ErrShape)
		}
		e.scale.ScaleX(e.it.x, x0)
		if m > 0 {
			e.scaledA.SpMV(1, e.it.x, 0, e.it.z)
		}
	}
	if y0 != nil {
		if len(y0) != m {
			panic(qpmat.ErrShape)
		}
		e.scale.ScaleY(e.it.y, y0)
	}
}

// UpdateLinCost replaces q (values only), rescaling it with the stored
// D, c.
func (e *Engine) UpdateLinCost(qNew []float64) error {
	if len(qNew) != e.data.N() {
		return errors.Wrap(ErrDimMismatch, "update_lin_cost: length mismatch")
	}
	copy(e.data.Q, qNew)
	qpmat.MulElem(e.scaledQ, e.scale.D, qNew)
	qpmat.Scale(e.scale.C, e.scaledQ)
	return nil
}

// UpdateBounds replaces lA/uA (values only), rescaling with the stored
// E. Either argument may be nil to leave that bound unchanged.
func (e *Engine) UpdateBounds(lNew, uNew []float64) error {
	m := e.data.M()
	if lNew != nil && len(lNew) != m {
		return errors.Wrap(ErrDimMismatch, "update_bounds: lA length mismatch")
	}
	if uNew != nil && len(uNew) != m {
		return errors.Wrap(ErrDimMismatch, "update_bounds: uA length mismatch")
	}
	if lNew != nil {
		for i := 0; i < m; i++ {
			if lNew[i] > e.data.UA[i] {
				return errors.Wrap(ErrBoundOrder, "update_bounds")
			}
		}
	}
	if uNew != nil {
		for i := 0; i < m; i++ {
			if uNew[i] < e.data.LA[i] {
				return errors.Wrap(ErrBoundOrder, "update_bounds")
			}
		}
	}
	if lNew != nil {
		copy(e.data.LA, lNew)
		qpmat.MulElem(e.scaledLA, e.scale.E, lNew)
	}
	if uNew != nil {
		copy(e.data.UA, uNew)
		qpmat.MulElem(e.scaledUA, e.scale.E, uNew)
	}

	// Rows may have switched between equality and inequality; reclassify
	// their rho_vec weighting and refresh the preconditioner only if
	// something actually changed.
	changed := false
	for i := 0; i < m; i++ {
		want := e.settings.Rho
		if e.scaledUA[i]-e.scaledLA[i] <= equalityTol {
			want *= equalityRhoMultiplier
		}
		if e.it.rhoVec[i] != want {
			e.it.rhoVec[i] = want
			e.it.rhoVecInv[i] = 1 / want
			changed = true
		}
	}
	if changed {
		if err := e.backend.UpdateRho(e.it.rhoVec); err != nil {
			return errors.Wrap(err, "update_bounds")
		}
	}
	return nil
}

// UpdateRho replaces ρ uniformly across all rows (equality rows keep
// their equalityRhoMultiplier relative weighting) and refreshes the
// LinSys preconditioner.
func (e *Engine) UpdateRho(rho float64) error {
	if rho <= 0 {
		return errors.Wrap(ErrInvalidSettings, "update_rho: rho must be > 0")
	}
	e.settings.Rho = rho
	initRhoVec(e.it.rhoVec, e.scaledLA, e.scaledUA, rho)
	invertRhoVec(e.it.rhoVecInv, e.it.rhoVec)
	if err := e.backend.UpdateRho(e.it.rhoVec); err != nil {
		return errors.Wrap(err, "update_rho")
	}
	e.rhoUpdates++
	return nil
}

// UpdateSettings merges u into the Engine's current Settings, rejecting
// the change if the result fails Validate. Only the non-structural knobs
// SettingsUpdate names are exposed.
func (e *Engine) UpdateSettings(u SettingsUpdate) error {
	next, err := u.apply(e.settings)
	if err != nil {
		return err
	}
	e.settings = next
	return nil
}

// UpdateP replaces P's stored values (same sparsity pattern), rescales
// with D and c, and refreshes the LinSys preconditioner. idx, if
// non-nil, updates only those flat value indices; otherwise all of P's
// values are replaced.
func (e *Engine) UpdateP(vals []float64, idx []int) error {
	if idx == nil {
		if len(vals) != e.data.P.NNZ() {
			return errors.Wrap(ErrDimMismatch, "update_P: length mismatch")
		}
		e.data.P.UpdateValues(vals)
	} else {
		e.data.P.UpdateValuesAt(idx, vals)
	}
	copy(e.scaledP.Values, e.data.P.Values)
	rescaleUpperTri(e.scaledP, e.scale.D, e.scale.C)
	if err := e.backend.UpdateMatrices(e.scaledP.Values, nil); err != nil {
		return errors.Wrap(err, "update_P")
	}
	return nil
}

// UpdateA replaces A's stored values (same sparsity pattern), rescales
// with D and E, and refreshes the LinSys preconditioner.
func (e *Engine) UpdateA(vals []float64, idx []int) error {
	if idx == nil {
		if len(vals) != e.data.A.NNZ() {
			return errors.Wrap(ErrDimMismatch, "update_A: length mismatch")
		}
		e.data.A.UpdateValues(vals)
	} else {
		e.data.A.UpdateValuesAt(idx, vals)
	}
	copy(e.scaledA.Values, e.data.A.Values)
	e.scaledA.ScaleCols(e.scale.D)
	e.scaledA.ScaleRows(e.scale.E)
	if err := e.backend.UpdateMatrices(nil, e.scaledA.Values); err != nil {
		return errors.Wrap(err, "update_A")
	}
	return nil
}

// rescaleUpperTri applies cDPD in place to an upper-triangular P whose
// values were just refreshed from the unscaled original (mirrors
// scaling.Compute's two-sided column scaling, since CSC only exposes the
// public ScaleCols/ScaleRows/ScaleAll operations and not the scaler's
// private both-sides helper).
func rescaleUpperTri(p *qpmat.CSC, d []float64, c float64) {
	for j := 0; j < p.Cols; j++ {
		for k := p.Indptr[j]; k < p.Indptr[j+1]; k++ {
			i := p.Indices[k]
			if i == j {
				p.Values[k] *= d[j] * d[j]
			} else {
				p.Values[k] *= d[i] * d[j]
			}
		}
	}
	p.ScaleAll(c)
}

// Solve runs the ADMM iteration to termination and, if
// Settings.Polishing is set, the polishing stage afterward. It is
// equivalent to SolveContext(context.Background()).
func (e *Engine) Solve() Status {
	return e.SolveContext(context.Background())
}

// SolveContext is Solve with a cooperative cancellation hook: ctx is
// checked once per ADMM iteration; on cancellation the iterate is left
// as-is and the status becomes Interrupted. Wall-clock timeouts are the
// same mechanism — pass a context.WithTimeout/WithDeadline context.
func (e *Engine) SolveContext(ctx context.Context) Status {
	start := time.Now()
	n, m := e.data.N(), e.data.M()
	s := e.settings
	checkEvery := s.CheckTermination
	if checkEvery <= 0 {
		checkEvery = 1
	}

	rhs, out := e.rhs, e.out

	if !s.WarmStart {
		qpmat.Zero(e.it.x)
		qpmat.Zero(e.it.z)
		qpmat.Zero(e.it.y)
		qpmat.Zero(e.it.xPrevCheckpoint)
		qpmat.Zero(e.it.yPrevCheckpoint)
	}

	qpmat.Zero(e.unscaledX)
	qpmat.Zero(e.unscaledY)
	e.nextHeuristicCheck = 0

	status := MaxIterReached
	iter := 0
	for ; iter < s.MaxIter; iter++ {
		select {
		case <-ctx.Done():
			e.scale.UnscaleSolution(e.unscaledX, e.it.x, e.unscaledY, e.it.y)
			qpmat.MulElem(e.unscaledZ, e.scale.Einv, e.it.z)
			e.finishInfo(Interrupted, iter, time.Since(start))
			return Interrupted
		default:
		}

		copy(e.it.zPrev, e.it.z)

		qpmat.ScaleTo(rhs[:n], s.Sigma, e.it.x)
		qpmat.AXPY(-1, e.scaledQ, rhs[:n])
		for i := 0; i < m; i++ {
			rhs[n+i] = e.it.z[i] - e.it.rhoVecInv[i]*e.it.y[i]
		}

		_, err := e.backend.Solve(rhs, out, e.epsPcg)
		if err != nil {
			e.finishInfo(NumericalErrorStatus, iter, time.Since(start))
			return NumericalErrorStatus
		}
		copy(e.it.xTilde, out[:n])
		nu := out[n : n+m]
		for i := 0; i < m; i++ {
			e.it.zTilde[i] = e.it.z[i] + e.it.rhoVecInv[i]*(nu[i]-e.it.y[i])
		}

		alpha := s.Alpha
		for j := 0; j < n; j++ {
			e.it.x[j] = alpha*e.it.xTilde[j] + (1-alpha)*e.it.x[j]
		}
		for i := 0; i < m; i++ {
			e.it.z[i] = alpha*e.it.zTilde[i] + (1-alpha)*e.it.zPrev[i] + e.it.rhoVecInv[i]*e.it.y[i]
		}
		qpmat.Project(e.it.z, e.it.z, e.scaledLA, e.scaledUA)
		for i := 0; i < m; i++ {
			e.it.y[i] += e.it.rhoVec[i] * (alpha*e.it.zTilde[i] + (1-alpha)*e.it.zPrev[i] - e.it.z[i])
		}

		if !qpmat.AllFinite(e.it.x) || !qpmat.AllFinite(e.it.y) {
			e.finishInfo(NumericalErrorStatus, iter, time.Since(start))
			return NumericalErrorStatus
		}

		doCheck := (iter+1)%checkEvery == 0 || iter == s.MaxIter-1
		if !doCheck {
			continue
		}

		e.scale.UnscaleSolution(e.unscaledX, e.it.x, e.unscaledY, e.it.y)
		qpmat.MulElem(e.unscaledZ, e.scale.Einv, e.it.z)

		res := e.computeResiduals(e.unscaledX, e.unscaledZ, e.unscaledY, s)

		// Stand-ins for the scaled residuals, used by the PCG tolerance
		// schedule and adaptive ρ: c times the unscaled residuals, with no
		// second SpMV pass. They apply only the cost scalar c, not the D/E
		// row and column scaling, so they differ in general from the
		// residuals of the scaled problem.
		rPrimScaled := res.rPrim * e.scale.C
		rDualScaled := res.rDual * e.scale.C
		e.epsPcg = math.Max(minPcgFraction, math.Min(0.1, 0.1*math.Max(rPrimScaled, rDualScaled)/math.Max(qpmat.Norm2(rhs), 1e-12)))

		for j := range e.it.deltaX {
			e.it.deltaX[j] = e.unscaledX[j] - e.it.xPrevCheckpoint[j]
		}
		for i := range e.it.deltaY {
			e.it.deltaY[i] = e.unscaledY[i] - e.it.yPrevCheckpoint[i]
		}

		if res.converged() {
			status = Solved
			e.finishSolve(status, res, iter+1, time.Since(start), s)
			return status
		}
		if e.primalInfeasible(e.it.deltaY, s.EpsPrimInf) {
			status = PrimalInfeasible
			e.finishSolve(status, res, iter+1, time.Since(start), s)
			return status
		}
		if e.dualInfeasible(e.it.deltaX, s.EpsDualInf) {
			status = DualInfeasible
			e.finishSolve(status, res, iter+1, time.Since(start), s)
			return status
		}

		copy(e.it.xPrevCheckpoint, e.unscaledX)
		copy(e.it.yPrevCheckpoint, e.unscaledY)

		if s.AdaptiveRho && rhoTriggerDue(iter+1, s.AdaptiveRhoInterval, &e.nextHeuristicCheck) {
			newRho := adaptRho(e.settings.Rho, rPrimScaled, rDualScaled, res.normAx, res.normZ, res.normPx, res.normAty, res.normQ)
			if shouldUpdateRho(e.settings.Rho, newRho, s.AdaptiveRhoTolerance) {
				if err := e.UpdateRho(newRho); err != nil {
					e.finishInfo(NumericalErrorStatus, iter+1, time.Since(start))
					return NumericalErrorStatus
				}
			}
		}
	}

	e.scale.UnscaleSolution(e.unscaledX, e.it.x, e.unscaledY, e.it.y)
	qpmat.MulElem(e.unscaledZ, e.scale.Einv, e.it.z)
	res := e.computeResiduals(e.unscaledX, e.unscaledZ, e.unscaledY, s)
	switch {
	case res.inaccurate():
		status = SolvedInaccurate
	case e.primalInfeasible(e.it.deltaY, 10*s.EpsPrimInf):
		status = PrimalInfeasibleInaccurate
	case e.dualInfeasible(e.it.deltaX, 10*s.EpsDualInf):
		status = DualInfeasibleInaccurate
	default:
		status = MaxIterReached
	}
	e.finishSolve(status, res, s.MaxIter, time.Since(start), s)
	return status
}

const minPcgFraction = 1e-12

func (e *Engine) finishInfo(status Status, iters int, dur time.Duration) {
	e.info.Status = status
	e.info.Iterations = iters
	e.info.SolveTime = dur
	e.info.RunTime = e.info.SetupTime + dur
	e.info.RhoUpdates = e.rhoUpdates
}

func (e *Engine) finishSolve(status Status, res residuals, iters int, dur time.Duration, s Settings) {
	e.info.Status = status
	e.info.Iterations = iters
	e.info.PrimalResidual = res.rPrim
	e.info.DualResidual = res.rDual
	e.info.SolveTime = dur
	e.info.RhoUpdates = e.rhoUpdates
	e.info.ObjectiveValue = e.objectiveValue(status)

	if status == Solved || status == SolvedInaccurate {
		if s.Polishing {
			e.polish()
		}
	}
	e.info.RunTime = e.info.SetupTime + e.info.SolveTime + e.info.PolishTime
}

// objectiveValue computes ½xᵀPx + qᵀx on the unscaled solution, NaN on
// infeasible statuses.
func (e *Engine) objectiveValue(status Status) float64 {
	if status == PrimalInfeasible || status == PrimalInfeasibleInaccurate ||
		status == DualInfeasible || status == DualInfeasibleInaccurate {
		return math.NaN()
	}
	px := e.it.px
	e.data.P.SymSpMV(1, e.unscaledX, 0, px)
	return 0.5*qpmat.Dot(e.unscaledX, px) + qpmat.Dot(e.data.Q, e.unscaledX)
}

// polish runs the active-set polishing stage and commits the refined
// iterate if it does not degrade residuals.
func (e *Engine) polish() {
	start := time.Now()
	defer func() { e.info.PolishTime = time.Since(start) }()

	result, ok := polish.Solve(polish.Problem{
		P:           e.data.P,
		Q:           e.data.Q,
		A:           e.data.A,
		LA:          e.data.LA,
		UA:          e.data.UA,
		X:           e.unscaledX,
		Z:           e.unscaledZ,
		Y:           e.unscaledY,
		Delta:       e.settings.Delta,
		RefineIters: e.settings.PolishRefineIter,
	})
	if !ok {
		e.info.PolishStatus = PolishUnsuccessful
		return
	}

	preRes := e.computeResiduals(e.unscaledX, e.unscaledZ, e.unscaledY, e.settings)
	postRes := e.computeResiduals(result.X, result.Z, result.Y, e.settings)

	if postRes.rPrim <= preRes.rPrim && postRes.rDual <= preRes.rDual {
		copy(e.unscaledX, result.X)
		copy(e.unscaledY, result.Y)
		copy(e.unscaledZ, result.Z)
		e.info.PolishStatus = PolishSuccessful
		e.info.PrimalResidual = postRes.rPrim
		e.info.DualResidual = postRes.rDual
		e.info.ObjectiveValue = e.objectiveValue(e.info.Status)
	} else {
		e.info.PolishStatus = PolishUnsuccessful
	}
}

// Polish runs the polishing stage standalone, for a caller that solved
// with Settings.Polishing off and wants it applied after the fact. It is
// a no-op (returns immediately) unless the engine's Status is Solved or
// SolvedInaccurate.
func (e *Engine) Polish() {
	if e.info.Status != Solved && e.info.Status != SolvedInaccurate {
		return
	}
	e.polish()
}

// Solution returns the current primal/dual iterate and Info. The
// returned slices are copies; mutating them does not affect the Engine.
func (e *Engine) Solution() ([]float64, []float64, Info) {
	x := append([]float64(nil), e.unscaledX...)
	y := append([]float64(nil), e.unscaledY...)
	return x, y, e.info
}

// Cleanup releases all Engine-owned resources. Idempotent: calling it
// more than once, or on an Engine that never solved, is safe.
func (e *Engine) Cleanup() {
	if e.freed {
		return
	}
	e.backend.Free()
	e.freed = true
}
