// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package osqp solves convex quadratic programs
//
//	minimize    ½ xᵀPx + qᵀx
//	subject to  lA ≤ Ax ≤ uA
//
// by operator splitting (ADMM). It is warm-startable, matrix-free apart
// from the sparse P and A it is given, and deterministic at a fixed
// Settings value.
//
// A typical use:
//
//	data := osqp.Data{P: p, Q: q, A: a, LA: lA, UA: uA}
//	eng, err := osqp.Setup(data, osqp.DefaultSettings())
//	if err != nil {
//		// invalid input
//	}
//	defer eng.Cleanup()
//	status := eng.Solve()
//	x, y, info := eng.Solution()
//
// Setup is the only call that allocates structurally; the ADMM iteration
// reuses buffers allocated there, matching the embedded/control-style
// workloads this solver targets. The optional polishing stage, which runs
// once after convergence, assembles its reduced dense KKT system on the
// fly.
package osqp
