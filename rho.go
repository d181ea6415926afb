// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osqp

import "math"

const (
	rhoMin = 1e-6
	rhoMax = 1e6

	// equalityRhoMultiplier weights rows whose bounds are numerically
	// equal (lA_i == uA_i) more heavily in rho_vec, so the ADMM step
	// drives those rows to the constraint faster than a general
	// inequality row. Kept as an unexported constant rather than a
	// Settings field: it's a fixed ratio, not something callers need to
	// tune per problem.
	equalityRhoMultiplier = 1e3

	equalityTol = 1e-10
)

// initRhoVec fills rhoVec with Settings.Rho everywhere, except rows whose
// bounds are (numerically) equal, which get Settings.Rho *
// equalityRhoMultiplier.
func initRhoVec(rhoVec []float64, lA, uA []float64, rho float64) {
	for i := range rhoVec {
		if uA[i]-lA[i] <= equalityTol {
			rhoVec[i] = rho * equalityRhoMultiplier
		} else {
			rhoVec[i] = rho
		}
	}
}

func invertRhoVec(inv, rhoVec []float64) {
	for i, r := range rhoVec {
		inv[i] = 1 / r
	}
}

// adaptRho computes a candidate new ρ from the ratio of scaled primal to
// scaled dual residual (relative to the magnitudes that normalize them),
// clamped to [rhoMin, rhoMax]. normAx, normZ, normPx, normAty, normQ are
// the unscaled infinity norms the engine already has on hand from its
// residual computation.
func adaptRho(rho, rPrimScaled, rDualScaled, normAx, normZ, normPx, normAty, normQ float64) float64 {
	primDenom := math.Max(normAx, normZ)
	dualDenom := math.Max(normPx, math.Max(normAty, normQ))
	if primDenom == 0 {
		primDenom = 1
	}
	if dualDenom == 0 {
		dualDenom = 1
	}
	ratio := (rPrimScaled / primDenom) / math.Max(rDualScaled/dualDenom, 1e-300)
	if ratio <= 0 || math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return rho
	}
	newRho := rho * math.Sqrt(ratio)
	if newRho < rhoMin {
		newRho = rhoMin
	}
	if newRho > rhoMax {
		newRho = rhoMax
	}
	return newRho
}

// shouldUpdateRho reports whether the candidate is far enough from the
// current ρ to be worth a preconditioner refresh: ρ_new/ρ > tolerance or
// ρ/ρ_new > tolerance.
func shouldUpdateRho(rho, newRho, tolerance float64) bool {
	if rho <= 0 || newRho <= 0 {
		return false
	}
	return newRho/rho > tolerance || rho/newRho > tolerance
}

// rhoTriggerDue reports whether the iteration that has just completed
// (iter counts completed iterations, from 1) should check for a ρ
// update: either the fixed interval has elapsed, or (interval == 0) an
// iteration-count heuristic fires — first check at iteration 25, then at
// 50, 100, 200, doubling each time. This is scale-free: it depends only
// on iteration count, never on wall-clock time.
func rhoTriggerDue(iter, interval int, nextHeuristicCheck *int) bool {
	if interval > 0 {
		return iter > 0 && iter%interval == 0
	}
	if *nextHeuristicCheck == 0 {
		*nextHeuristicCheck = 25
	}
	if iter >= *nextHeuristicCheck {
		*nextHeuristicCheck *= 2
		return true
	}
	return false
}
