// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package master records the placement of closed chunks.
package master

import (
	"context"
	"slices"
	"sync"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
)

// ErrAlreadyConfirmed is returned when a chunk is confirmed twice with
// different placements. Repeating an identical confirmation is not an error.
var ErrAlreadyConfirmed = errors.New("master: chunk already confirmed with a different placement")

// Confirmer receives the placement of every chunk a writer closes.
type Confirmer interface {
	ConfirmChunk(ctx context.Context, c base.Confirmation) error
}

// sameConfirmation reports whether two confirmations describe the same
// placement.
func sameConfirmation(a, b base.Confirmation) bool {
	return a.ChunkID == b.ChunkID &&
		slices.Equal(a.Replicas, b.Replicas) &&
		slices.Equal(a.Nodes, b.Nodes) &&
		a.Info == b.Info
}

func checkConfirmation(c base.Confirmation) error {
	if c.ChunkID.IsZero() {
		return errors.New("master: confirmation without a chunk id")
	}
	if len(c.Replicas) == 0 {
		return errors.Newf("master: chunk %s confirmed without replicas", c.ChunkID)
	}
	if len(c.Nodes) != 0 && len(c.Nodes) != len(c.Replicas) {
		return errors.Newf("master: chunk %s has %d replicas but %d nodes",
			c.ChunkID, errors.Safe(len(c.Replicas)), errors.Safe(len(c.Nodes)))
	}
	return nil
}

// MemConfirmer keeps confirmations in memory.
type MemConfirmer struct {
	mu     sync.Mutex
	chunks map[base.ChunkID]base.Confirmation
	order  []base.ChunkID
}

var _ Confirmer = (*MemConfirmer)(nil)

// NewMemConfirmer returns an empty in-memory confirmer.
func NewMemConfirmer() *MemConfirmer {
	return &MemConfirmer{chunks: map[base.ChunkID]base.Confirmation{}}
}

// ConfirmChunk implements Confirmer.
func (m *MemConfirmer) ConfirmChunk(ctx context.Context, c base.Confirmation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkConfirmation(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.chunks[c.ChunkID]; ok {
		if sameConfirmation(prev, c) {
			return nil
		}
		return errors.Wrapf(ErrAlreadyConfirmed, "chunk %s", c.ChunkID)
	}
	c.Replicas = slices.Clone(c.Replicas)
	c.Nodes = slices.Clone(c.Nodes)
	m.chunks[c.ChunkID] = c
	m.order = append(m.order, c.ChunkID)
	return nil
}

// Lookup returns the confirmation recorded for the chunk.
func (m *MemConfirmer) Lookup(id base.ChunkID) (base.Confirmation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chunks[id]
	return c, ok
}

// Confirmations returns every recorded confirmation in the order the chunks
// were confirmed.
func (m *MemConfirmer) Confirmations() []base.Confirmation {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]base.Confirmation, len(m.order))
	for i, id := range m.order {
		res[i] = m.chunks[id]
	}
	return res
}
