// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package chunkwire

import (
	"context"
	"encoding/binary"
	"slices"

	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/chunkwire/master"
	"github.com/cockroachdb/chunkwire/row"
	"github.com/cockroachdb/chunkwire/wire"
	"github.com/cockroachdb/errors"
)

var (
	// ErrTableWriterClosed is returned by operations on a closed TableWriter.
	ErrTableWriterClosed = errors.New("chunkwire: table writer is closed")
	// ErrTableWriterCanceled is returned after Cancel.
	ErrTableWriterCanceled = errors.New("chunkwire: table writer canceled")
	// ErrUnsortedRows is returned for a row whose key orders before the key of
	// the previous row.
	ErrUnsortedRows = errors.New("chunkwire: rows are not sorted")
)

// TableWriter writes a sorted stream of rows as a sequence of chunks. Rows are
// packed into compressed, checksummed rowset blocks which are streamed to the
// current chunk. Once the chunk is large enough it is closed, its placement is
// confirmed to the master and the following rows go to a new chunk.
//
// A TableWriter is not safe for concurrent use. The first error is sticky: the
// current chunk is canceled and every later call returns the error.
type TableWriter struct {
	opts      *Options
	factory   ChunkWriterFactory
	confirmer master.Confirmer

	rowset *wire.RowsetWriter

	// lastKey is the key of the last written row.
	lastKey row.OwningRow
	// blockFirstKey is the key of the first row of the pending block.
	blockFirstKey row.OwningRow

	// The chunk being written; nil between chunks.
	cur       ChunkWriter
	meta      base.ChunkMeta
	minKey    row.OwningRow
	maxKey    row.OwningRow
	indexSize int64

	chunks []base.Confirmation
	err    error
	closed bool
}

// NewTableWriter returns a writer creating chunks through factory and
// confirming them to confirmer.
func NewTableWriter(
	factory ChunkWriterFactory, confirmer master.Confirmer, opts *Options,
) (*TableWriter, error) {
	opts = opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &TableWriter{
		opts:      opts,
		factory:   factory,
		confirmer: confirmer,
		rowset: wire.NewRowsetWriter(wire.RowsetWriterOptions{
			BlockSize:   opts.BlockSize,
			Compression: opts.Compression,
			Checksum:    opts.ChecksumType,
		}),
	}, nil
}

// Chunks returns the confirmations of the chunks closed so far.
func (w *TableWriter) Chunks() []base.Confirmation {
	return slices.Clone(w.chunks)
}

func (w *TableWriter) checkWritable() error {
	switch {
	case w.err != nil:
		return w.err
	case w.closed:
		return ErrTableWriterClosed
	}
	return nil
}

// WriteRows writes rows in order.
func (w *TableWriter) WriteRows(ctx context.Context, rows []row.Row) error {
	for _, r := range rows {
		if err := w.WriteRow(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// WriteRow validates r and appends it to the table. The row is copied; the
// caller may reuse its memory once WriteRow returns.
func (w *TableWriter) WriteRow(ctx context.Context, r row.Row) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	// Invalid rows are rejected without failing the writer.
	if err := w.validateRow(r); err != nil {
		return err
	}
	if k := w.opts.KeyColumnCount; k > 0 {
		key := r.Prefix(k)
		if !w.lastKey.IsNull() {
			c, err := row.CompareRows(w.lastKey.Row(), key, k)
			if err != nil {
				return err
			}
			if c > 0 {
				return errors.Wrapf(ErrUnsortedRows, "key %s follows %s", key, w.lastKey)
			}
		}
		w.lastKey = row.MakeOwningRow(key)
		if w.rowset.Rows() == 0 {
			w.blockFirstKey = w.lastKey
		}
	}
	w.rowset.WriteRow(r)
	if w.rowset.ShouldFlush() {
		if err := w.flushBlock(ctx); err != nil {
			return w.fail(err)
		}
	}
	return nil
}

func (w *TableWriter) validateRow(r row.Row) error {
	k := w.opts.KeyColumnCount
	if len(w.opts.Schema.Columns) > 0 && k > 0 {
		return row.ValidateServerDataRow(r, k, w.opts.Schema, nil)
	}
	if r.IsNull() {
		return base.InvalidValuef("row cannot be null")
	}
	if err := row.ValidateRowValueCount(r.Len()); err != nil {
		return err
	}
	if r.Len() < k {
		return base.InvalidValuef("too few values in row: actual %d, expected at least %d",
			errors.Safe(r.Len()), errors.Safe(k))
	}
	for i, v := range r.Values() {
		validate := row.ValidateDataValue
		if i < k {
			validate = row.ValidateKeyValue
		}
		if err := validate(v); err != nil {
			return errors.Wrapf(err, "column id %d", errors.Safe(v.ID))
		}
	}
	return row.ValidateRowWeight(r)
}

// openChunk starts a new chunk.
func (w *TableWriter) openChunk(ctx context.Context) error {
	cw, err := w.factory.NewChunkWriter(ctx)
	if err != nil {
		return err
	}
	if err := cw.Open(ctx); err != nil {
		cw.Cancel()
		return err
	}
	w.cur = cw
	w.meta = base.ChunkMeta{
		Codec:    w.opts.Compression.String(),
		Checksum: w.opts.ChecksumType.String(),
	}
	w.minKey, w.maxKey = row.OwningRow{}, row.OwningRow{}
	w.indexSize = 0
	return nil
}

// flushBlock writes the pending rows as one block of the current chunk and
// closes the chunk once it is full.
func (w *TableWriter) flushBlock(ctx context.Context) error {
	if w.cur == nil {
		if err := w.openChunk(ctx); err != nil {
			return err
		}
	}
	block, stats := w.rowset.FinishBlock()
	if err := w.cur.WriteBlock(ctx, block); err != nil {
		return err
	}

	var lastKey []byte
	if w.opts.KeyColumnCount > 0 {
		w.minKey = row.ChooseMinKey(w.minKey, w.blockFirstKey)
		w.maxKey = row.ChooseMaxKey(w.maxKey, w.lastKey)
		lastKey = wire.EncodeRow(w.lastKey.Row())
	}
	w.meta.RowCount += int64(stats.Rows)
	w.meta.BlockCount++
	w.meta.UncompressedSize += stats.UncompressedSize
	w.meta.CompressedSize += stats.CompressedSize
	w.meta.BlockRowCounts = append(w.meta.BlockRowCounts, int64(stats.Rows))
	w.meta.BlockLastKeys = append(w.meta.BlockLastKeys, lastKey)
	w.indexSize += int64(uvarintLen(uint64(stats.Rows)) + uvarintLen(uint64(len(lastKey))) + len(lastKey))

	if w.meta.CompressedSize >= w.opts.DesiredChunkSize || w.indexSize >= w.opts.MaxMetaSize {
		return w.finishChunk(ctx)
	}
	return nil
}

func uvarintLen(v uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], v)
}

// finishChunk closes the current chunk and confirms it.
func (w *TableWriter) finishChunk(ctx context.Context) error {
	if !w.minKey.IsNull() {
		w.meta.MinKey = wire.EncodeRow(w.minKey.Row())
		w.meta.MaxKey = wire.EncodeRow(w.maxKey.Row())
	}
	cw := w.cur
	if err := cw.Close(ctx, w.meta); err != nil {
		return err
	}
	conf, err := cw.Confirmation()
	if err != nil {
		return err
	}
	// Reap the writer's goroutines.
	cw.Cancel()
	w.cur = nil
	if err := w.confirmer.ConfirmChunk(ctx, conf); err != nil {
		return errors.Wrapf(err, "chunkwire: confirming chunk %s", conf.ChunkID)
	}
	w.chunks = append(w.chunks, conf)
	w.opts.Logger.Infof("chunk %s closed on %d nodes: %s", conf.ChunkID, len(conf.Replicas), conf.Meta)
	return nil
}

// Close flushes the pending rows, closes the current chunk and releases the
// writer's resources. Closing a writer that wrote no rows creates no chunk.
func (w *TableWriter) Close(ctx context.Context) error {
	if err := w.checkWritable(); err != nil {
		return err
	}
	w.closed = true
	defer w.rowset.Close()
	if w.rowset.Rows() > 0 {
		if err := w.flushBlock(ctx); err != nil {
			return w.fail(err)
		}
	}
	if w.cur != nil {
		if err := w.finishChunk(ctx); err != nil {
			return w.fail(err)
		}
	}
	return nil
}

// Cancel abandons the current chunk. Chunks that were already confirmed are
// left in place.
func (w *TableWriter) Cancel() {
	if w.err == nil {
		w.err = ErrTableWriterCanceled
	}
	w.cancelChunk()
	if !w.closed {
		w.closed = true
		w.rowset.Close()
	}
}

func (w *TableWriter) cancelChunk() {
	if w.cur != nil {
		w.cur.Cancel()
		w.cur = nil
	}
}

// fail records err as the sticky error and abandons the current chunk.
func (w *TableWriter) fail(err error) error {
	w.err = err
	w.cancelChunk()
	return err
}
