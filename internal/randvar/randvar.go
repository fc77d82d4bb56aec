// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package randvar provides random variables for benchmark workloads, such as
// the size of generated values.
package randvar

import (
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/rand"
)

// Static is a random variable that always returns the same value.
type Static struct {
	v uint64
}

// NewStatic returns a variable that always returns v.
func NewStatic(v uint64) *Static {
	return &Static{v: v}
}

// Uint64 returns the static value.
func (s *Static) Uint64() uint64 { return s.v }

// Max returns the static value.
func (s *Static) Max() uint64 { return s.v }

// Uniform draws from the uniform distribution over [min, max]. It is safe for
// concurrent use.
type Uniform struct {
	min, max uint64
	mu       struct {
		sync.Mutex
		rng *rand.Rand
	}
}

// NewUniform returns a uniform variable over [min, max] drawing from rng.
func NewUniform(rng *rand.Rand, min, max uint64) *Uniform {
	g := &Uniform{min: min, max: max}
	g.mu.rng = rng
	return g
}

// Uint64 returns a draw.
func (g *Uniform) Uint64() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mu.rng.Uint64n(g.max-g.min+1) + g.min
}

// Max returns the largest value the variable returns.
func (g *Uniform) Max() uint64 { return g.max }

// Static and Uniform implement Var.
var (
	_ Var = (*Static)(nil)
	_ Var = (*Uniform)(nil)
)

// Var is a random variable with a known upper bound.
type Var interface {
	Uint64() uint64
	Max() uint64
}

// Parse parses a variable given as a flag value. The accepted forms are N for
// a static value and uniform:MIN-MAX.
func Parse(spec string, rng *rand.Rand) (Var, error) {
	kind, args, ok := strings.Cut(spec, ":")
	if !ok {
		v, err := strconv.ParseUint(spec, 10, 64)
		if err != nil {
			return nil, errors.Newf("invalid static value %q", spec)
		}
		return NewStatic(v), nil
	}
	switch kind {
	case "uniform":
		lo, hi, ok := strings.Cut(args, "-")
		if !ok {
			return nil, errors.Newf("invalid uniform bounds %q, expected MIN-MAX", args)
		}
		min, err := strconv.ParseUint(lo, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "uniform min")
		}
		max, err := strconv.ParseUint(hi, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "uniform max")
		}
		if min > max {
			return nil, errors.Newf("uniform min %d exceeds max %d", min, max)
		}
		return NewUniform(rng, min, max), nil
	}
	return nil, errors.Newf("unknown random variable %q", kind)
}
