// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package wire

import "github.com/cockroachdb/redact"

// Command tags a request or an entry in a write batch.
type Command uint64

// The command values are part of the wire format.
const (
	CommandLookupRows Command = 1
	CommandWriteRow   Command = 100
	CommandDeleteRow  Command = 101
)

// String implements fmt.Stringer.
func (c Command) String() string {
	return redact.StringWithoutMarkers(c)
}

// SafeFormat implements redact.SafeFormatter.
func (c Command) SafeFormat(w redact.SafePrinter, _ rune) {
	switch c {
	case CommandLookupRows:
		w.Print(redact.SafeString("lookup-rows"))
	case CommandWriteRow:
		w.Print(redact.SafeString("write-row"))
	case CommandDeleteRow:
		w.Print(redact.SafeString("delete-row"))
	default:
		w.Printf("command(%d)", redact.Safe(uint64(c)))
	}
}

// IsValid returns true for the known commands.
func (c Command) IsValid() bool {
	switch c {
	case CommandLookupRows, CommandWriteRow, CommandDeleteRow:
		return true
	}
	return false
}
