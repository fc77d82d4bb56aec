// Copyright 2023 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package rate throttles byte streams to a fixed bandwidth.
package rate // import "github.com/cockroachdb/chunkwire/internal/rate"

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/tokenbucket"
)

// A Limiter admits bytes at a fixed bandwidth using a token bucket that holds
// one second's worth of bytes and starts full. A request larger than the
// bucket puts it into debt, which delays the requests that follow.
//
// Limiter is safe for concurrent use.
type Limiter struct {
	bandwidth int64
	after     func(d time.Duration) <-chan time.Time
	// waited accumulates the nanoseconds callers spent blocked in WaitN.
	waited atomic.Int64
	mu     struct {
		sync.Mutex
		tb tokenbucket.TokenBucket
	}
}

// NewLimiter returns a limiter admitting bytesPerSecond bytes per second.
func NewLimiter(bytesPerSecond int64) *Limiter {
	return newLimiter(bytesPerSecond, nil, time.After)
}

func newLimiter(
	bytesPerSecond int64, now func() time.Time, after func(d time.Duration) <-chan time.Time,
) *Limiter {
	l := &Limiter{bandwidth: bytesPerSecond, after: after}
	rate := tokenbucket.TokensPerSecond(bytesPerSecond)
	burst := tokenbucket.Tokens(bytesPerSecond)
	if now != nil {
		l.mu.tb.InitWithNowFn(rate, burst, now)
	} else {
		l.mu.tb.Init(rate, burst)
	}
	return l
}

// Bandwidth returns the configured bytes per second.
func (l *Limiter) Bandwidth() int64 {
	return l.bandwidth
}

// WaitN blocks until n bytes are admitted or ctx is done.
func (l *Limiter) WaitN(ctx context.Context, n int64) error {
	for {
		l.mu.Lock()
		ok, d := l.mu.tb.TryToFulfill(tokenbucket.Tokens(n))
		l.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-l.after(d):
			l.waited.Add(int64(d))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Waited returns the total time callers have spent throttled.
func (l *Limiter) Waited() time.Duration {
	return time.Duration(l.waited.Load())
}
