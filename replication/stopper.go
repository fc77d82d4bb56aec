// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package replication

import (
	"context"
	"sync"
	"time"
)

// stopper ties the goroutines of a session to the session's context.
type stopper struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newStopper() *stopper {
	ctx, cancel := context.WithCancel(context.Background())
	return &stopper{ctx: ctx, cancel: cancel}
}

func (s *stopper) runAsync(f func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

// quiesce cancels the session context. It does not wait.
func (s *stopper) quiesce() {
	s.cancel()
}

func (s *stopper) wait() {
	s.wg.Wait()
}

// timeSource abstracts time.Now and time.NewTicker for testing.
type timeSource interface {
	now() time.Time
	newTicker(d time.Duration) ticker
}

type ticker interface {
	stop()
	ch() <-chan time.Time
}

type defaultTime struct{}

var _ timeSource = defaultTime{}

func (defaultTime) now() time.Time {
	return time.Now()
}

func (defaultTime) newTicker(d time.Duration) ticker {
	return (*defaultTicker)(time.NewTicker(d))
}

type defaultTicker time.Ticker

func (t *defaultTicker) stop() {
	(*time.Ticker)(t).Stop()
}

func (t *defaultTicker) ch() <-chan time.Time {
	return (*time.Ticker)(t).C
}

// mailbox is the unbounded message queue of the writer's actor goroutine.
// Posting never blocks; messages posted after close are dropped.
type mailbox struct {
	mu struct {
		sync.Mutex
		queue  []func()
		closed bool
	}
	notify chan struct{}
}

func (m *mailbox) init() {
	m.notify = make(chan struct{}, 1)
}

// post enqueues fn and reports whether it was accepted.
func (m *mailbox) post(fn func()) bool {
	m.mu.Lock()
	if m.mu.closed {
		m.mu.Unlock()
		return false
	}
	m.mu.queue = append(m.mu.queue, fn)
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns every queued message.
func (m *mailbox) take() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.mu.queue
	m.mu.queue = nil
	return q
}

// close drops every queued message and rejects future posts.
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mu.closed = true
	m.mu.queue = nil
}
