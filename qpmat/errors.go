// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qpmat

import "errors"

// ErrShape signifies a dimension mismatch between operands of a linear
// algebra operation. It is a programmer error — a valid caller never
// triggers it — and is always delivered as a panic, mirroring the
// gonum.org/v1/gonum/mat convention for mat.Dense.
var ErrShape = errors.New("qpmat: dimension mismatch")

// ErrBadCSC signifies that a CSC matrix fails its structural invariants
// (non-decreasing column pointers, strictly increasing row indices within
// a column, in-range row indices, finite values). NewCSC and the
// upper-triangle checks deliver it as a panic; (*CSC).Validate returns it
// as an error instead, so Setup can reject caller-supplied data.
var ErrBadCSC = errors.New("qpmat: malformed CSC matrix")
