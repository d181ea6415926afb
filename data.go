// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osqp

import (
	"math"

	"github.com/pkg/errors"

	"github.com/notalltim/osqp/qpmat"
)

// Data describes the problem:
//
//	minimize    ½ xᵀPx + qᵀx
//	subject to  lA ≤ Ax ≤ uA
//
// P must be supplied as its upper triangle (row ≤ col); Setup validates
// this and returns ErrNotUpperTri rather than silently symmetrizing,
// since a caller handing in a full symmetric CSC matrix by mistake would
// otherwise double-count off-diagonal terms. A caller that does hold a
// full symmetric CSC matrix should pass it through qpmat.UpperTriangleOf
// first.
type Data struct {
	P      *qpmat.CSC // n×n, upper triangle only
	Q      []float64  // length n
	A      *qpmat.CSC // m×n
	LA, UA []float64  // length m; LA[i] <= UA[i]; ±Inf allowed
}

// N and M report the problem's dimensions.
func (d Data) N() int { return len(d.Q) }
func (d Data) M() int { return len(d.LA) }

// Validate checks Data for the conditions Setup must reject:
// non-positive n, negative m, dimension mismatches, non-finite P/A
// entries, lA[i] > uA[i], and non-upper-triangular P.
func (d Data) Validate() error {
	n := len(d.Q)
	if n <= 0 {
		return ErrNonPositiveN
	}
	m := len(d.LA)
	if m < 0 {
		return ErrNegativeM
	}
	if len(d.UA) != m {
		return errors.Wrap(ErrDimMismatch, "len(uA) != len(lA)")
	}
	if d.P == nil || d.P.Rows != n || d.P.Cols != n {
		return errors.Wrap(ErrDimMismatch, "P must be n×n")
	}
	if m > 0 {
		if d.A == nil || d.A.Rows != m || d.A.Cols != n {
			return errors.Wrap(ErrDimMismatch, "A must be m×n")
		}
	} else if d.A != nil && (d.A.Rows != 0 || d.A.Cols != n) {
		return errors.Wrap(ErrDimMismatch, "A must be 0×n when m == 0")
	}
	if err := d.P.Validate(); err != nil {
		return errors.Wrap(ErrNonFiniteMatrix, "P: "+err.Error())
	}
	if !d.P.IsUpperTriangular() {
		for j := 0; j < d.P.Cols; j++ {
			for k := d.P.Indptr[j]; k < d.P.Indptr[j+1]; k++ {
				if d.P.Indices[k] > j {
					return ErrNotUpperTri
				}
			}
		}
		d.P.MarkUpperTriangular()
	}
	if d.A != nil {
		if err := d.A.Validate(); err != nil {
			return errors.Wrap(ErrNonFiniteMatrix, "A: "+err.Error())
		}
	}
	if !qpmat.AllFinite(d.Q) {
		return errors.Wrap(ErrNonFiniteMatrix, "q contains a non-finite value")
	}
	for i := 0; i < m; i++ {
		if math.IsNaN(d.LA[i]) || math.IsNaN(d.UA[i]) {
			return errors.Wrap(ErrNonFiniteMatrix, "lA/uA contains NaN")
		}
		if d.LA[i] > d.UA[i] {
			return errors.Wrapf(ErrBoundOrder, "row %d: lA=%v > uA=%v", i, d.LA[i], d.UA[i])
		}
	}
	return nil
}
