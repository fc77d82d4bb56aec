// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package arena provides a chunked, growable pool used to back batches of
// rows. Memory handed out by a Pool is never moved, so slices obtained from it
// stay valid until the pool is reset.
package arena

import "github.com/cockroachdb/chunkwire/internal/invariants"

// DefaultChunkSize is the number of elements in a regular chunk.
const DefaultChunkSize = 64 << 10

// Pool allocates slices of T out of fixed-size chunks. Allocations larger than
// a quarter of the chunk size get a dedicated chunk so that they don't waste
// the tail of the current one.
//
// Pool is not safe for concurrent use.
type Pool[T any] struct {
	chunkSize int
	// chunks[0:active] are in use; cur is a suffix view of chunks[active-1].
	chunks [][]T
	active int
	cur    []T
	large  [][]T
	size   int
}

// New returns a pool that allocates chunks of chunkSize elements.
func New[T any](chunkSize int) *Pool[T] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Pool[T]{chunkSize: chunkSize}
}

// Alloc returns a zeroed slice of n elements whose capacity is exactly n.
func (p *Pool[T]) Alloc(n int) []T {
	if n == 0 {
		return []T{}
	}
	p.size += n
	if n > p.chunkSize/4 {
		b := make([]T, n)
		p.large = append(p.large, b)
		return b[:n:n]
	}
	if len(p.cur) < n {
		p.nextChunk()
	}
	b := p.cur[:n:n]
	p.cur = p.cur[n:]
	clear(b)
	return b
}

func (p *Pool[T]) nextChunk() {
	if p.active < len(p.chunks) {
		p.cur = p.chunks[p.active]
	} else {
		c := make([]T, p.chunkSize)
		p.chunks = append(p.chunks, c)
		p.cur = c
	}
	p.active++
}

// Size returns the number of elements handed out since the last Reset.
func (p *Pool[T]) Size() int {
	return p.size
}

// Capacity returns the number of elements the pool currently holds, including
// the unused tails of its chunks.
func (p *Pool[T]) Capacity() int {
	c := len(p.chunks) * p.chunkSize
	for _, b := range p.large {
		c += len(b)
	}
	return c
}

// Reset makes all of the pool's memory available for reuse. Slices returned
// by earlier calls to Alloc must not be used afterwards. Regular chunks are
// retained; dedicated large allocations are released.
func (p *Pool[T]) Reset() {
	p.active = 0
	p.cur = nil
	p.large = nil
	p.size = 0
	if invariants.Enabled && len(p.chunks) > 0 {
		// Poison reused memory so that stale references show up quickly.
		for _, c := range p.chunks {
			clear(c)
		}
	}
}

// Purge releases all memory held by the pool.
func (p *Pool[T]) Purge() {
	p.Reset()
	p.chunks = nil
}
