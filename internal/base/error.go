// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import "github.com/cockroachdb/errors"

// ErrCorruption is a marker to indicate that encoded data (a row, a rowset
// block, a stored chunk) isn't in the expected format.
var ErrCorruption = errors.New("chunkwire: corruption")

// ErrLimitExceeded marks errors returned when a row, key or value exceeds one
// of the static size or count limits.
var ErrLimitExceeded = errors.New("chunkwire: limit exceeded")

// ErrInvalidValue marks errors returned when a value does not satisfy the
// constraints of the column it is written to.
var ErrInvalidValue = errors.New("chunkwire: invalid value")

// ErrIncomparableType marks errors returned when a composite (any) value is
// ordered against a non-sentinel value.
var ErrIncomparableType = errors.New("chunkwire: incomparable type")

// MarkCorruptionError marks given error as a corruption error.
func MarkCorruptionError(err error) error {
	if errors.Is(err, ErrCorruption) {
		return err
	}
	return errors.Mark(err, ErrCorruption)
}

// IsCorruptionError returns true if the given error indicates corruption.
func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// CorruptionErrorf formats according to a format specifier and returns
// the string as an error value that is marked as a corruption error.
func CorruptionErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrCorruption)
}

// LimitExceededf returns an error marked with ErrLimitExceeded.
func LimitExceededf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrLimitExceeded)
}

// InvalidValuef returns an error marked with ErrInvalidValue.
func InvalidValuef(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidValue)
}
