// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package qpmat provides the matrix-free linear-algebra primitives the
// solver core needs: dense vector arithmetic and a compressed-sparse-column
// (CSC) matrix with the handful of operations (SpMV, norms, triangle
// extraction) the ADMM iteration and its PCG subproblem use. It never
// materializes a dense n×n or m×n matrix; P and A stay sparse throughout.
package qpmat

import "math"

// CSC is a compressed-sparse-column matrix. Entries within a
// column appear with strictly increasing row indices. A CSC built to
// represent a symmetric matrix (P in this solver) stores only its upper
// triangle: entries with Row ≤ column index.
//
// CSC is built once by NewCSC and its sparsity pattern (Indptr/Indices)
// never changes afterward. Values are changed in place only by
// UpdateValues/UpdateValuesAt and by ScaleCols/ScaleRows/ScaleAll — the
// same fixed-pattern contract osqp.(*Engine).UpdateP/UpdateA rely on.
type CSC struct {
	Rows, Cols int
	// Indptr has length Cols+1. Column j occupies Indices/Values
	// [Indptr[j], Indptr[j+1]).
	Indptr []int
	// Indices holds row indices, strictly increasing within each column.
	Indices []int
	Values  []float64
	// upperTri records whether this CSC is known to store only the upper
	// triangle of a symmetric matrix (set by MarkUpperTriangular or
	// UpperTriangleOf). SymSpMV requires it.
	upperTri bool
}

// NewCSC builds a CSC matrix from its three array representation. It
// panics with ErrBadCSC if the arrays fail the structural invariants:
// Indptr of length cols+1 and non-decreasing, Indices strictly
// increasing within a column and in [0, rows).
func NewCSC(rows, cols int, indptr, indices []int, values []float64) *CSC {
	m := &CSC{Rows: rows, Cols: cols, Indptr: indptr, Indices: indices, Values: values}
	if err := m.Validate(); err != nil {
		panic(err)
	}
	return m
}

// Validate checks the structural invariants of m without panicking,
// returning ErrBadCSC on the first violation found. Setup uses this to
// turn a malformed caller-supplied matrix into an InvalidInput error
// instead of a panic — see osqp.Setup.
func (m *CSC) Validate() error {
	if m.Rows < 0 || m.Cols < 0 {
		return ErrBadCSC
	}
	if len(m.Indptr) != m.Cols+1 {
		return ErrBadCSC
	}
	if len(m.Indices) != len(m.Values) {
		return ErrBadCSC
	}
	if m.Indptr[0] != 0 {
		return ErrBadCSC
	}
	for j := 0; j < m.Cols; j++ {
		if m.Indptr[j] > m.Indptr[j+1] {
			return ErrBadCSC
		}
	}
	if m.Indptr[m.Cols] != len(m.Indices) {
		return ErrBadCSC
	}
	for j := 0; j < m.Cols; j++ {
		prev := -1
		for k := m.Indptr[j]; k < m.Indptr[j+1]; k++ {
			r := m.Indices[k]
			if r <= prev || r < 0 || r >= m.Rows {
				return ErrBadCSC
			}
			if !isFinite(m.Values[k]) {
				return ErrBadCSC
			}
			prev = r
		}
	}
	return nil
}

// MarkUpperTriangular records that m stores only the upper triangle
// (Row ≤ column) of a symmetric matrix, enabling SymSpMV. It panics if any
// stored entry violates Row ≤ col.
func (m *CSC) MarkUpperTriangular() *CSC {
	for j := 0; j < m.Cols; j++ {
		for k := m.Indptr[j]; k < m.Indptr[j+1]; k++ {
			if m.Indices[k] > j {
				panic(ErrBadCSC)
			}
		}
	}
	m.upperTri = true
	return m
}

// IsUpperTriangular reports whether m was marked via MarkUpperTriangular
// or UpperTriangleOf.
func (m *CSC) IsUpperTriangular() bool { return m.upperTri }

// NNZ returns the number of stored entries.
func (m *CSC) NNZ() int { return len(m.Values) }

// UpdateValues replaces m's stored values in place, preserving Indptr and
// Indices. len(vals) must equal m.NNZ(); this is the value-only update
// osqp.(*Engine).UpdateP and UpdateA use, which never change sparsity.
func (m *CSC) UpdateValues(vals []float64) {
	if len(vals) != len(m.Values) {
		panic(ErrShape)
	}
	copy(m.Values, vals)
}

// UpdateValuesAt replaces the values at the given flat indices into the
// Values array, leaving the rest untouched — the sparse-index variant
// backing Engine.UpdateP/UpdateA.
func (m *CSC) UpdateValuesAt(idx []int, vals []float64) {
	if len(idx) != len(vals) {
		panic(ErrShape)
	}
	for i, k := range idx {
		if k < 0 || k >= len(m.Values) {
			panic(ErrShape)
		}
		m.Values[k] = vals[i]
	}
}

// SpMV computes y ← alpha*M*x + beta*y. M is treated as a general
// (possibly rectangular) matrix regardless of upperTri.
func (m *CSC) SpMV(alpha float64, x []float64, beta float64, y []float64) {
	if len(x) != m.Cols || len(y) != m.Rows {
		panic(ErrShape)
	}
	if beta == 0 {
		for i := range y {
			y[i] = 0
		}
	} else if beta != 1 {
		for i := range y {
			y[i] *= beta
		}
	}
	if alpha == 0 {
		return
	}
	for j := 0; j < m.Cols; j++ {
		xj := alpha * x[j]
		if xj == 0 {
			continue
		}
		for k := m.Indptr[j]; k < m.Indptr[j+1]; k++ {
			y[m.Indices[k]] += m.Values[k] * xj
		}
	}
}

// SpMVTrans computes y ← alpha*Mᵀ*x + beta*y without forming the
// transpose, used for Aᵀy in the dual residual and in AᵀΔy infeasibility
// checks.
func (m *CSC) SpMVTrans(alpha float64, x []float64, beta float64, y []float64) {
	if len(x) != m.Rows || len(y) != m.Cols {
		panic(ErrShape)
	}
	if beta == 0 {
		for i := range y {
			y[i] = 0
		}
	} else if beta != 1 {
		for i := range y {
			y[i] *= beta
		}
	}
	if alpha == 0 {
		return
	}
	for j := 0; j < m.Cols; j++ {
		var sum float64
		for k := m.Indptr[j]; k < m.Indptr[j+1]; k++ {
			sum += m.Values[k] * x[m.Indices[k]]
		}
		y[j] += alpha * sum
	}
}

// SymSpMV computes y ← alpha*P*x + beta*y where P is symmetric and stored
// as its upper triangle (m.upperTri must be true). Off-diagonal entries
// contribute to both y[row] and y[col]; diagonal entries contribute once.
func (m *CSC) SymSpMV(alpha float64, x []float64, beta float64, y []float64) {
	if !m.upperTri {
		panic(ErrBadCSC)
	}
	if m.Rows != m.Cols || len(x) != m.Cols || len(y) != m.Rows {
		panic(ErrShape)
	}
	if beta == 0 {
		for i := range y {
			y[i] = 0
		}
	} else if beta != 1 {
		for i := range y {
			y[i] *= beta
		}
	}
	if alpha == 0 {
		return
	}
	for j := 0; j < m.Cols; j++ {
		xj := x[j]
		for k := m.Indptr[j]; k < m.Indptr[j+1]; k++ {
			i := m.Indices[k]
			v := m.Values[k]
			y[i] += alpha * v * xj
			if i != j {
				y[j] += alpha * v * x[i]
			}
		}
	}
}

// ColInfNorms returns, for each column, the infinity norm (max absolute
// value) of its stored entries. Used by the Ruiz scaler.
func (m *CSC) ColInfNorms() []float64 {
	norms := make([]float64, m.Cols)
	for j := 0; j < m.Cols; j++ {
		var mx float64
		for k := m.Indptr[j]; k < m.Indptr[j+1]; k++ {
			if v := math.Abs(m.Values[k]); v > mx {
				mx = v
			}
		}
		norms[j] = mx
	}
	return norms
}

// ColInfNormsSym is ColInfNorms for an upper-triangular symmetric store:
// each stored (i,j) entry contributes to both column i's and column j's
// norm, since the full symmetric matrix has a mirrored entry at (j,i).
func (m *CSC) ColInfNormsSym() []float64 {
	if !m.upperTri {
		panic(ErrBadCSC)
	}
	norms := make([]float64, m.Cols)
	for j := 0; j < m.Cols; j++ {
		for k := m.Indptr[j]; k < m.Indptr[j+1]; k++ {
			i := m.Indices[k]
			v := math.Abs(m.Values[k])
			if v > norms[j] {
				norms[j] = v
			}
			if i != j && v > norms[i] {
				norms[i] = v
			}
		}
	}
	return norms
}

// RowInfNorms returns, for each row, the infinity norm of its entries.
// CSC has no native row iteration, so this accumulates a running max per
// row while walking columns — the standard CSC row-reduction idiom.
func (m *CSC) RowInfNorms() []float64 {
	norms := make([]float64, m.Rows)
	for j := 0; j < m.Cols; j++ {
		for k := m.Indptr[j]; k < m.Indptr[j+1]; k++ {
			i := m.Indices[k]
			if v := math.Abs(m.Values[k]); v > norms[i] {
				norms[i] = v
			}
		}
	}
	return norms
}

// ScaleCols multiplies column j of m by d[j] in place, used by the Ruiz
// scaler (P ← P D, A ← A D).
func (m *CSC) ScaleCols(d []float64) {
	if len(d) != m.Cols {
		panic(ErrShape)
	}
	for j := 0; j < m.Cols; j++ {
		dj := d[j]
		for k := m.Indptr[j]; k < m.Indptr[j+1]; k++ {
			m.Values[k] *= dj
		}
	}
}

// ScaleRows multiplies row i of m by e[i] in place, used by the Ruiz
// scaler (A ← E A).
func (m *CSC) ScaleRows(e []float64) {
	if len(e) != m.Rows {
		panic(ErrShape)
	}
	for j := 0; j < m.Cols; j++ {
		for k := m.Indptr[j]; k < m.Indptr[j+1]; k++ {
			m.Values[k] *= e[m.Indices[k]]
		}
	}
}

// ScaleAll multiplies every stored value by c, used by the Ruiz scaler's
// cost-scaling step (P, q ← c P, c q).
func (m *CSC) ScaleAll(c float64) {
	for i := range m.Values {
		m.Values[i] *= c
	}
}

// UpperTriangleOf extracts the upper triangle (row ≤ col) of a general
// CSC matrix that may store a full symmetric matrix, for callers that
// hold such a matrix and need the upper-triangle-only storage P requires.
func UpperTriangleOf(full *CSC) *CSC {
	if full.Rows != full.Cols {
		panic(ErrShape)
	}
	n := full.Rows
	indptr := make([]int, n+1)
	var indices []int
	var values []float64
	for j := 0; j < n; j++ {
		indptr[j] = len(indices)
		for k := full.Indptr[j]; k < full.Indptr[j+1]; k++ {
			i := full.Indices[k]
			if i <= j {
				indices = append(indices, i)
				values = append(values, full.Values[k])
			}
		}
	}
	indptr[n] = len(indices)
	out := &CSC{Rows: n, Cols: n, Indptr: indptr, Indices: indices, Values: values}
	out.upperTri = true
	return out
}

// Clone returns a deep copy of m.
func (m *CSC) Clone() *CSC {
	out := &CSC{
		Rows:     m.Rows,
		Cols:     m.Cols,
		Indptr:   append([]int(nil), m.Indptr...),
		Indices:  append([]int(nil), m.Indices...),
		Values:   append([]float64(nil), m.Values...),
		upperTri: m.upperTri,
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
