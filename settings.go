// Copyright ©2024 The OSQP-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osqp

import "github.com/pkg/errors"

// Settings configures the solver. DefaultSettings
// returns the documented defaults; callers typically start there and
// override only the fields they need, mirroring
// gonum.org/v1/gonum/optimize's *Settings constructor pattern.
type Settings struct {
	Sigma float64 // > 0, default 1e-6
	Rho   float64 // > 0, default 0.1

	MaxIter int // >= 1, default 4000

	EpsAbs float64 // >= 0, default 1e-3 (EpsAbs or EpsRel must be > 0)
	EpsRel float64 // >= 0, default 1e-3

	EpsPrimInf float64 // > 0, default 1e-4
	EpsDualInf float64 // > 0, default 1e-4

	Alpha float64 // in (0, 2), default 1.6 (over-relaxation)

	Scaling int // iterations of Ruiz equilibration; 0 disables, default 10

	AdaptiveRho          bool    // default true
	AdaptiveRhoInterval  int     // >= 0; 0 = heuristic
	AdaptiveRhoTolerance float64 // >= 1, default 5

	// WarmStart controls what SolveContext starts from, default false. When
	// false, every Solve/SolveContext call resets x, z, y to zero before
	// iterating, discarding both the previous solve's ending iterate and
	// anything set by a prior call to (*Engine).WarmStart. Set it true to
	// keep that iterate as the next solve's starting point instead — the
	// usual setting for a sequence of closely related QPs (e.g. an MPC
	// loop) where each solve should pick up where the last one left off.
	WarmStart bool

	Polishing        bool
	Delta            float64 // > 0, polish regularization, default 1e-6
	PolishRefineIter int     // >= 0, default 3

	Verbose bool // no-op placeholder; this package never prints

	CheckTermination int // >= 0; 0 = every iteration
}

// DefaultSettings returns Settings populated with the documented
// defaults.
func DefaultSettings() Settings {
	return Settings{
		Sigma:                1e-6,
		Rho:                  0.1,
		MaxIter:              4000,
		EpsAbs:               1e-3,
		EpsRel:               1e-3,
		EpsPrimInf:           1e-4,
		EpsDualInf:           1e-4,
		Alpha:                1.6,
		Scaling:              10,
		AdaptiveRho:          true,
		AdaptiveRhoInterval:  0,
		AdaptiveRhoTolerance: 5,
		WarmStart:            false,
		Polishing:            false,
		Delta:                1e-6,
		PolishRefineIter:     3,
		Verbose:              false,
		CheckTermination:     25,
	}
}

// Validate checks Settings against each field's admitted range,
// returning an error wrapped with the offending field rather than
// panicking: settings arrive from a caller, so like dimension mismatches
// they are InvalidInput, not a programmer-error panic.
func (s Settings) Validate() error {
	switch {
	case s.Sigma <= 0:
		return errors.Wrap(ErrInvalidSettings, "sigma must be > 0")
	case s.Rho <= 0:
		return errors.Wrap(ErrInvalidSettings, "rho must be > 0")
	case s.MaxIter < 1:
		return errors.Wrap(ErrInvalidSettings, "max_iter must be >= 1")
	case s.EpsAbs < 0:
		return errors.Wrap(ErrInvalidSettings, "eps_abs must be >= 0")
	case s.EpsRel < 0:
		return errors.Wrap(ErrInvalidSettings, "eps_rel must be >= 0")
	case s.EpsAbs == 0 && s.EpsRel == 0:
		return errors.Wrap(ErrInvalidSettings, "at least one of eps_abs, eps_rel must be > 0")
	case s.EpsPrimInf <= 0:
		return errors.Wrap(ErrInvalidSettings, "eps_prim_inf must be > 0")
	case s.EpsDualInf <= 0:
		return errors.Wrap(ErrInvalidSettings, "eps_dual_inf must be > 0")
	case s.Alpha <= 0 || s.Alpha >= 2:
		return errors.Wrap(ErrInvalidSettings, "alpha must be in (0, 2)")
	case s.Scaling < 0:
		return errors.Wrap(ErrInvalidSettings, "scaling must be >= 0")
	case s.AdaptiveRhoInterval < 0:
		return errors.Wrap(ErrInvalidSettings, "adaptive_rho_interval must be >= 0")
	case s.AdaptiveRhoTolerance < 1:
		return errors.Wrap(ErrInvalidSettings, "adaptive_rho_tolerance must be >= 1")
	case s.Delta <= 0:
		return errors.Wrap(ErrInvalidSettings, "delta must be > 0")
	case s.PolishRefineIter < 0:
		return errors.Wrap(ErrInvalidSettings, "polish_refine_iter must be >= 0")
	case s.CheckTermination < 0:
		return errors.Wrap(ErrInvalidSettings, "check_termination must be >= 0")
	}
	return nil
}

// SettingsUpdate names the Settings fields UpdateSettings is allowed to
// change mid-lifecycle — the non-structural knobs.
// Scaling and Sigma affect quantities fixed at Setup (the scaled
// problem, the preconditioner basis) and so are excluded; WarmStart is
// read fresh at the top of every SolveContext call and so is included.
type SettingsUpdate struct {
	MaxIter              *int
	EpsAbs               *float64
	EpsRel               *float64
	EpsPrimInf           *float64
	EpsDualInf           *float64
	Alpha                *float64
	AdaptiveRho          *bool
	AdaptiveRhoInterval  *int
	AdaptiveRhoTolerance *float64
	WarmStart            *bool
	Polishing            *bool
	Delta                *float64
	PolishRefineIter     *int
	Verbose              *bool
	CheckTermination     *int
}

// apply merges u into s, validating the result.
func (u SettingsUpdate) apply(s Settings) (Settings, error) {
	if u.MaxIter != nil {
		s.MaxIter = *u.MaxIter
	}
	if u.EpsAbs != nil {
		s.EpsAbs = *u.EpsAbs
	}
	if u.EpsRel != nil {
		s.EpsRel = *u.EpsRel
	}
	if u.EpsPrimInf != nil {
		s.EpsPrimInf = *u.EpsPrimInf
	}
	if u.EpsDualInf != nil {
		s.EpsDualInf = *u.EpsDualInf
	}
	if u.Alpha != nil {
		s.Alpha = *u.Alpha
	}
	if u.AdaptiveRho != nil {
		s.AdaptiveRho = *u.AdaptiveRho
	}
	if u.AdaptiveRhoInterval != nil {
		s.AdaptiveRhoInterval = *u.AdaptiveRhoInterval
	}
	if u.AdaptiveRhoTolerance != nil {
		s.AdaptiveRhoTolerance = *u.AdaptiveRhoTolerance
	}
	if u.WarmStart != nil {
		s.WarmStart = *u.WarmStart
	}
	if u.Polishing != nil {
		s.Polishing = *u.Polishing
	}
	if u.Delta != nil {
		s.Delta = *u.Delta
	}
	if u.PolishRefineIter != nil {
		s.PolishRefineIter = *u.PolishRefineIter
	}
	if u.Verbose != nil {
		s.Verbose = *u.Verbose
	}
	if u.CheckTermination != nil {
		s.CheckTermination = *u.CheckTermination
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}
