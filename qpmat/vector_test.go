// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package qpmat

import (
	"math"
	"testing"
)

func TestAXPY(t *testing.T) {
	t.Parallel()
	x := []float64{1, 2, 3}
	y := []float64{1, 1, 1}
	AXPY(2, x, y)
	want := []float64{3, 5, 7}
	for i := range y {
		if y[i] != want[i] {
			t.Errorf("y[%d] = %v, want %v", i, y[i], want[i])
		}
	}
}

func TestDotNorm(t *testing.T) {
	t.Parallel()
	x := []float64{3, 4}
	if got := Norm2(x); got != 5 {
		t.Errorf("Norm2 = %v, want 5", got)
	}
	if got := NormInf([]float64{-3, 2, -7}); got != 7 {
		t.Errorf("NormInf = %v, want 7", got)
	}
	if got := Dot([]float64{1, 2}, []float64{3, 4}); got != 11 {
		t.Errorf("Dot = %v, want 11", got)
	}
}

func TestScaleTo(t *testing.T) {
	t.Parallel()
	dst := make([]float64, 3)
	ScaleTo(dst, 2, []float64{1, -2, 3})
	want := []float64{2, -4, 6}
	for i := range dst {
		if dst[i] != want[i] {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestProject(t *testing.T) {
	t.Parallel()
	dst := make([]float64, 3)
	Project(dst, []float64{-5, 0, 5}, []float64{-1, math.Inf(-1), 0}, []float64{1, 0, math.Inf(1)})
	want := []float64{-1, 0, 5}
	for i := range dst {
		if dst[i] != want[i] {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestAllFinite(t *testing.T) {
	t.Parallel()
	if !AllFinite([]float64{1, 2, 3}) {
		t.Error("expected finite")
	}
	if AllFinite([]float64{1, math.NaN()}) {
		t.Error("expected not finite")
	}
	if AllFinite([]float64{math.Inf(1)}) {
		t.Error("expected not finite")
	}
}

func TestShapePanics(t *testing.T) {
	t.Parallel()
	cases := []func(){
		func() { AXPY(1, make([]float64, 2), make([]float64, 3)) },
		func() { Dot(make([]float64, 2), make([]float64, 3)) },
		func() { MulElem(make([]float64, 2), make([]float64, 2), make([]float64, 3)) },
	}
	for i, f := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("case %d: expected panic", i)
				}
			}()
			f()
		}()
	}
}
