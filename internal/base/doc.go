// Copyright 2024 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package base defines fundamental types used across chunkwire: error markers,
// the Logger interface, and the identifiers and summaries exchanged between
// the chunk writer, the storage nodes and the master.
package base
