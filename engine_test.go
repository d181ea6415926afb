// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osqp

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/notalltim/osqp/qpmat"
)

// TestSetupScalingPositive checks that after setup, D, E > 0 elementwise
// and c > 0.
func TestSetupScalingPositive(t *testing.T) {
	data := Data{
		P:  diagCSC([]float64{4, 9}),
		Q:  []float64{1, -2},
		A:  identityCSC(2),
		LA: []float64{-1, -1},
		UA: []float64{1, 1},
	}
	eng, err := Setup(data, DefaultSettings())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer eng.Cleanup()
	for i, d := range eng.scale.D {
		if d <= 0 {
			t.Errorf("D[%d] = %v, want > 0", i, d)
		}
	}
	for i, e := range eng.scale.E {
		if e <= 0 {
			t.Errorf("E[%d] = %v, want > 0", i, e)
		}
	}
	if eng.scale.C <= 0 {
		t.Errorf("C = %v, want > 0", eng.scale.C)
	}
}

// TestUpperTriangularStorage checks that Data.Validate leaves P marked
// upper-triangular.
func TestUpperTriangularStorage(t *testing.T) {
	data := Data{
		P:  diagCSC([]float64{2, 3}),
		Q:  []float64{0, 0},
		A:  identityCSC(2),
		LA: []float64{-1, -1},
		UA: []float64{1, 1},
	}
	if err := data.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !data.P.IsUpperTriangular() {
		t.Errorf("P not marked upper-triangular after Validate")
	}
}

// TestUpdateLinCostMatchesFreshSetup checks that UpdateLinCost followed
// by Solve matches a fresh engine built with the new q, to a loose
// residual tolerance.
func TestUpdateLinCostMatchesFreshSetup(t *testing.T) {
	base := func(q []float64) Data {
		return Data{
			P:  diagCSC([]float64{2, 2}),
			Q:  append([]float64(nil), q...),
			A:  identityCSC(2),
			LA: []float64{-5, -5},
			UA: []float64{5, 5},
		}
	}

	eng, err := Setup(base([]float64{1, 1}), DefaultSettings())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer eng.Cleanup()
	eng.Solve()

	newQ := []float64{-3, 4}
	if err := eng.UpdateLinCost(newQ); err != nil {
		t.Fatalf("UpdateLinCost: %v", err)
	}
	status := eng.Solve()
	if status != Solved {
		t.Fatalf("status after update = %v, want solved", status)
	}
	x1, _, _ := eng.Solution()

	fresh, err := Setup(base(newQ), DefaultSettings())
	if err != nil {
		t.Fatalf("Setup (fresh): %v", err)
	}
	defer fresh.Cleanup()
	if status := fresh.Solve(); status != Solved {
		t.Fatalf("fresh status = %v, want solved", status)
	}
	x2, _, _ := fresh.Solution()

	tol := 10 * DefaultSettings().EpsAbs
	for i := range x1 {
		if math.Abs(x1[i]-x2[i]) > tol {
			t.Errorf("x1[%d] = %v, x2[%d] = %v, diff exceeds %v", i, x1[i], i, x2[i], tol)
		}
	}
}

// TestCleanupIdempotent checks that Cleanup after a terminal state can be
// called repeatedly without panicking.
func TestCleanupIdempotent(t *testing.T) {
	data := Data{
		P:  diagCSC([]float64{1}),
		Q:  []float64{0},
		A:  rowCSC(0, 1, nil),
		LA: []float64{}, UA: []float64{},
	}
	eng, err := Setup(data, DefaultSettings())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	eng.Solve()
	eng.Cleanup()
	eng.Cleanup() // must not panic
}

// TestPolishDoesNotDegradeResiduals checks the polish commit policy on a
// problem with an active bound: a committed polish never increases either
// residual.
func TestPolishDoesNotDegradeResiduals(t *testing.T) {
	data := Data{
		P:  diagCSC([]float64{1, 1}),
		Q:  []float64{0, 0},
		A:  identityCSC(2),
		LA: []float64{1, 1},
		UA: []float64{2, 2},
	}
	settings := DefaultSettings()
	settings.Polishing = true
	eng, err := Setup(data, settings)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer eng.Cleanup()
	status := eng.Solve()
	if status != Solved {
		t.Fatalf("status = %v, want solved", status)
	}
	_, _, info := eng.Solution()
	if info.PolishStatus == PolishSuccessful {
		if info.PrimalResidual < 0 || info.DualResidual < 0 {
			t.Errorf("residuals negative after polish: %v %v", info.PrimalResidual, info.DualResidual)
		}
		// The same problem solved without polishing reaches the same ADMM
		// iterate, whose residuals are the pre-polish ones.
		plain, err := Setup(data, DefaultSettings())
		if err != nil {
			t.Fatalf("Setup (no polish): %v", err)
		}
		defer plain.Cleanup()
		plain.Solve()
		_, _, pre := plain.Solution()
		if info.PrimalResidual > pre.PrimalResidual || info.DualResidual > pre.DualResidual {
			t.Errorf("polish increased residuals: prim %v > %v or dual %v > %v",
				info.PrimalResidual, pre.PrimalResidual, info.DualResidual, pre.DualResidual)
		}
	}
}

// TestBoxConstrainedMatchesClippedUnconstrained is the box-QP property
// test: for A = I, the solution equals elementwise clipping of the
// unconstrained optimum -P^-1 q (here P is diagonal so the optimum is
// -q[i]/P[i][i]).
func TestBoxConstrainedMatchesClippedUnconstrained(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := 0; trial < 20; trial++ {
		n := 3
		diag := make([]float64, n)
		q := make([]float64, n)
		lo := make([]float64, n)
		hi := make([]float64, n)
		for i := 0; i < n; i++ {
			diag[i] = 1 + rng.Float64()*5
			q[i] = (rng.Float64()*2 - 1) * 10
			lo[i] = -(1 + rng.Float64()*2)
			hi[i] = 1 + rng.Float64()*2
		}
		data := Data{
			P:  diagCSC(diag),
			Q:  q,
			A:  identityCSC(n),
			LA: lo,
			UA: hi,
		}
		eng, err := Setup(data, DefaultSettings())
		if err != nil {
			t.Fatalf("Setup: %v", err)
		}
		status := eng.Solve()
		if status != Solved {
			eng.Cleanup()
			t.Fatalf("trial %d: status = %v, want solved", trial, status)
		}
		x, _, _ := eng.Solution()
		for i := 0; i < n; i++ {
			want := clip(-q[i]/diag[i], lo[i], hi[i])
			if math.Abs(x[i]-want) > 1e-3 {
				t.Errorf("trial %d: x[%d] = %v, want %v", trial, i, x[i], want)
			}
		}
		eng.Cleanup()
	}
}

// denseUpperCSC builds the upper-triangular CSC storage of a dense
// row-major symmetric n×n matrix.
func denseUpperCSC(n int, dense []float64) *qpmat.CSC {
	indptr := make([]int, n+1)
	var indices []int
	var values []float64
	for j := 0; j < n; j++ {
		indptr[j] = len(values)
		for i := 0; i <= j; i++ {
			indices = append(indices, i)
			values = append(values, dense[i*n+j])
		}
	}
	indptr[n] = len(values)
	return qpmat.NewCSC(n, n, indptr, indices, values).MarkUpperTriangular()
}

// TestRandomEqualityQPMatchesKKT is the random-problem property test:
// for random SPD P and random equality constraints Ax = b, the ADMM
// solution must agree with the exact solution of the dense KKT system
//
//	[P  Aᵀ] [x]   [−q]
//	[A   0] [y] = [ b]
//
// solved by gonum's LU, within a tolerance proportional to eps_abs.
func TestRandomEqualityQPMatchesKKT(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))
	for trial := 0; trial < 10; trial++ {
		n := 2 + rng.IntN(5)
		m := 1 + rng.IntN(n)

		// P = GᵀG + I is SPD and reasonably conditioned.
		g := make([]float64, n*n)
		for i := range g {
			g[i] = rng.Float64()*2 - 1
		}
		pDense := make([]float64, n*n)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				var sum float64
				for k := 0; k < n; k++ {
					sum += g[k*n+i] * g[k*n+j]
				}
				if i == j {
					sum++
				}
				pDense[i*n+j] = sum
			}
		}
		aDense := make([]float64, m*n)
		for i := range aDense {
			aDense[i] = rng.Float64()*2 - 1
		}
		q := make([]float64, n)
		b := make([]float64, m)
		for i := range q {
			q[i] = rng.Float64()*2 - 1
		}
		for i := range b {
			b[i] = rng.Float64()*2 - 1
		}

		// Reference: dense KKT solve.
		dim := n + m
		kkt := mat.NewDense(dim, dim, nil)
		rhs := mat.NewVecDense(dim, nil)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				kkt.Set(i, j, pDense[i*n+j])
			}
			rhs.SetVec(i, -q[i])
		}
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				kkt.Set(n+i, j, aDense[i*n+j])
				kkt.Set(j, n+i, aDense[i*n+j])
			}
			rhs.SetVec(n+i, b[i])
		}
		var lu mat.LU
		lu.Factorize(kkt)
		sol := mat.NewVecDense(dim, nil)
		if err := lu.SolveVecTo(sol, false, rhs); err != nil {
			t.Fatalf("trial %d: reference KKT solve failed: %v", trial, err)
		}

		data := Data{
			P:  denseUpperCSC(n, pDense),
			Q:  q,
			A:  rowCSC(m, n, aDense),
			LA: append([]float64(nil), b...),
			UA: append([]float64(nil), b...),
		}
		settings := DefaultSettings()
		settings.EpsAbs = 1e-6
		settings.EpsRel = 1e-6
		settings.MaxIter = 20000
		eng, err := Setup(data, settings)
		if err != nil {
			t.Fatalf("trial %d: Setup: %v", trial, err)
		}
		status := eng.Solve()
		if status != Solved {
			eng.Cleanup()
			t.Fatalf("trial %d (n=%d m=%d): status = %v, want solved", trial, n, m, status)
		}
		x, _, _ := eng.Solution()
		for i := 0; i < n; i++ {
			if diff := math.Abs(x[i] - sol.AtVec(i)); diff > 1e-3 {
				t.Errorf("trial %d: x[%d] = %v, reference %v (diff %v)", trial, i, x[i], sol.AtVec(i), diff)
			}
		}
		eng.Cleanup()
	}
}

// TestWarmStartReducesIterations checks that warm-starting from the
// previous solution after a small bound perturbation takes no more
// iterations than a cold start, on average.
func TestWarmStartReducesIterations(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 9))
	var coldTotal, warmTotal int
	const trials = 20
	for trial := 0; trial < trials; trial++ {
		diag := []float64{2 + rng.Float64()*3, 2 + rng.Float64()*3}
		q := []float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1}
		lo := []float64{-5, -5}
		hi := []float64{5, 5}

		data := Data{P: diagCSC(diag), Q: q, A: identityCSC(2), LA: lo, UA: hi}
		settings := DefaultSettings()
		settings.CheckTermination = 1

		eng, err := Setup(data, settings)
		if err != nil {
			t.Fatalf("Setup: %v", err)
		}
		eng.Solve()
		x0, y0, info0 := eng.Solution()
		coldTotal += info0.Iterations
		eng.Cleanup()

		perturbedHi := []float64{hi[0] - 0.1, hi[1] - 0.1}
		warmData := Data{P: diagCSC(diag), Q: q, A: identityCSC(2), LA: lo, UA: perturbedHi}
		settings.WarmStart = true
		warmEng, err := Setup(warmData, settings)
		if err != nil {
			t.Fatalf("Setup (warm): %v", err)
		}
		warmEng.WarmStart(x0, y0)
		warmEng.Solve()
		_, _, infoWarm := warmEng.Solution()
		warmTotal += infoWarm.Iterations
		warmEng.Cleanup()
	}
	if warmTotal > coldTotal {
		t.Errorf("warm-started total iterations %d exceed cold total %d", warmTotal, coldTotal)
	}
}

// TestWarmStartNilHalves checks that a nil x0 or y0 leaves that half of
// the iterate untouched rather than zeroing it.
func TestWarmStartNilHalves(t *testing.T) {
	data := Data{
		P:  diagCSC([]float64{1, 1}),
		Q:  []float64{0, 0},
		A:  identityCSC(2),
		LA: []float64{-1, -1},
		UA: []float64{1, 1},
	}
	eng, err := Setup(data, DefaultSettings())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer eng.Cleanup()

	eng.WarmStart(nil, []float64{0.5, -0.5})
	yBefore := append([]float64(nil), eng.it.y...)

	eng.WarmStart([]float64{0.25, 0.25}, nil)
	for i := range yBefore {
		if eng.it.y[i] != yBefore[i] {
			t.Errorf("y[%d] changed from %v to %v on WarmStart(x0, nil)", i, yBefore[i], eng.it.y[i])
		}
	}
	for i := range eng.it.x {
		if eng.it.x[i] == 0 {
			t.Errorf("x[%d] still zero after WarmStart(x0, nil)", i)
		}
	}
}

// TestScalingRoundTrip checks that unscaling the converged scaled
// iterate produces residuals equal to those computed directly on the
// unscaled problem. The two sides are computed independently — one via
// Scaling.UnscaleSolution feeding the Engine's own residual formula, the
// other by hand-unscaling the same scaled iterate and running the
// ‖Ax−z‖∞/‖Px+q+Aᵀy‖∞ formulas straight against the unscaled Data with
// qpmat's SpMV — so the comparison cannot degenerate into comparing a
// value against itself.
func TestScalingRoundTrip(t *testing.T) {
	data := Data{
		P:  diagCSC([]float64{3, 1}),
		Q:  []float64{-1, 2},
		A:  identityCSC(2),
		LA: []float64{-4, -4},
		UA: []float64{4, 4},
	}
	eng, err := Setup(data, DefaultSettings())
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer eng.Cleanup()
	eng.Solve()

	n, m := data.N(), data.M()

	// Path A: unscale the scaled iterate (eng.it.x/z/y) via
	// Scaling.UnscaleSolution into slices of their own, then run the
	// Engine's residual computation against the unscaled Data.
	xA := make([]float64, n)
	yA := make([]float64, m)
	eng.scale.UnscaleSolution(xA, eng.it.x, yA, eng.it.y)
	zA := make([]float64, m)
	qpmat.MulElem(zA, eng.scale.Einv, eng.it.z)
	viaHelper := eng.computeResiduals(xA, zA, yA, eng.settings)

	// Path B: unscale the same scaled iterate by hand (x = D·x̂,
	// y = E·ŷ/c, z = E⁻¹·ẑ) and compute r_prim = ‖Ax−z‖∞, r_dual =
	// ‖Px+q+Aᵀy‖∞ directly from the unscaled P, A, q — no Scaling method
	// or Engine helper appears anywhere in this computation.
	xB := make([]float64, n)
	for i := 0; i < n; i++ {
		xB[i] = eng.scale.D[i] * eng.it.x[i]
	}
	yB := make([]float64, m)
	zB := make([]float64, m)
	for i := 0; i < m; i++ {
		yB[i] = eng.scale.E[i] * eng.it.y[i] / eng.scale.C
		zB[i] = eng.it.z[i] / eng.scale.E[i]
	}

	ax := make([]float64, m)
	data.A.SpMV(1, xB, 0, ax)
	px := make([]float64, n)
	data.P.SymSpMV(1, xB, 0, px)
	aty := make([]float64, n)
	data.A.SpMVTrans(1, yB, 0, aty)

	var rPrimDirect, rDualDirect float64
	for i := 0; i < m; i++ {
		if v := math.Abs(ax[i] - zB[i]); v > rPrimDirect {
			rPrimDirect = v
		}
	}
	for i := 0; i < n; i++ {
		if v := math.Abs(px[i] + data.Q[i] + aty[i]); v > rDualDirect {
			rDualDirect = v
		}
	}

	if math.Abs(viaHelper.rPrim-rPrimDirect) > 1e-9 {
		t.Errorf("rPrim mismatch: via UnscaleSolution=%v, direct=%v", viaHelper.rPrim, rPrimDirect)
	}
	if math.Abs(viaHelper.rDual-rDualDirect) > 1e-9 {
		t.Errorf("rDual mismatch: via UnscaleSolution=%v, direct=%v", viaHelper.rDual, rDualDirect)
	}
}

// TestSettingsValidateRejectsOutOfRange is a light check on the
// validation layer.
func TestSettingsValidateRejectsOutOfRange(t *testing.T) {
	s := DefaultSettings()
	s.Alpha = 2
	if err := s.Validate(); err == nil {
		t.Errorf("Validate accepted alpha = 2")
	}
}

func TestDataValidateRejectsBoundOrder(t *testing.T) {
	data := Data{
		P:  diagCSC([]float64{1}),
		Q:  []float64{0},
		A:  identityCSC(1),
		LA: []float64{2},
		UA: []float64{1},
	}
	if err := data.Validate(); err == nil {
		t.Errorf("Validate accepted lA > uA")
	}
}

func TestSetupRejectsNonUpperTriangularP(t *testing.T) {
	fullP := rowCSC(2, 2, []float64{2, 1, 1, 2})
	data := Data{
		P:  fullP,
		Q:  []float64{0, 0},
		A:  identityCSC(2),
		LA: []float64{-1, -1},
		UA: []float64{1, 1},
	}
	_, err := Setup(data, DefaultSettings())
	if err == nil {
		t.Errorf("Setup accepted a full (non-upper-triangular) P")
	}
}
