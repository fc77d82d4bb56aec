// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package chunkstore provides the object stores storage nodes persist finished
// chunks into: an in-memory store for tests and single-process clusters, and
// S3 and MinIO backed stores.
package chunkstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
)

// ErrNotFound is returned (possibly wrapped) when an object does not exist.
var ErrNotFound = errors.New("chunkstore: object not found")

// IsNotFound returns true if the error indicates a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is a flat namespace of immutable objects.
type Store interface {
	// Put writes the object, replacing any previous object with the same name.
	Put(ctx context.Context, name string, data []byte) error
	// Get returns the contents of the object.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all objects with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ChunkPrefix is the name prefix shared by all chunk objects.
const ChunkPrefix = "chunks/"

// ChunkObjectName returns the name under which a chunk is stored.
func ChunkObjectName(id base.ChunkID) string {
	return ChunkPrefix + id.String()
}

// MemStore is an in-memory Store. It is safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	objects swiss.Map[string, []byte]
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	s := &MemStore{}
	s.objects.Init(16)
	return s
}

// Put implements Store.
func (s *MemStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects.Put(name, append([]byte(nil), data...))
	return nil
}

// Get implements Store.
func (s *MemStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects.Get(name)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "get %q", name)
	}
	return append([]byte(nil), data...), nil
}

// Delete implements Store.
func (s *MemStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects.Delete(name)
	return nil
}

// List implements Store.
func (s *MemStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	s.objects.All(func(name string, _ []byte) bool {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return true
	})
	sort.Strings(names)
	return names, nil
}

// Len returns the number of stored objects.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects.Len()
}

// trimRoot strips the store's root prefix (and the separator following it)
// from an object key.
func trimRoot(key, root string) string {
	key = strings.TrimPrefix(key, root)
	return strings.TrimPrefix(key, "/")
}
