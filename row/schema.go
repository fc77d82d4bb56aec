// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import (
	"fmt"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
)

// SortOrder describes whether a column is part of the sorted key.
type SortOrder int8

const (
	Unsorted SortOrder = iota
	Ascending
)

// String implements fmt.Stringer.
func (o SortOrder) String() string {
	switch o {
	case Unsorted:
		return "unsorted"
	case Ascending:
		return "ascending"
	}
	return fmt.Sprintf("sort_order(%d)", int8(o))
}

// ParseSortOrder parses the name returned by SortOrder.String.
func ParseSortOrder(s string) (SortOrder, error) {
	switch s {
	case "unsorted", "":
		return Unsorted, nil
	case "ascending":
		return Ascending, nil
	}
	return 0, errors.Newf("unknown sort order %q", s)
}

// ColumnSchema describes a single table column.
type ColumnSchema struct {
	Name      string
	Type      ValueType
	SortOrder SortOrder
	// Expression is non-empty for computed columns, whose values are derived
	// by the server and must never be supplied by clients.
	Expression string
	// Aggregate names the aggregation function for aggregating columns.
	Aggregate string
}

// Schema is an ordered list of columns. Key columns form a prefix of the
// schema.
type Schema struct {
	Columns []ColumnSchema
}

// KeyColumnCount returns the number of leading sorted columns.
func (s Schema) KeyColumnCount() int {
	n := 0
	for n < len(s.Columns) && s.Columns[n].SortOrder != Unsorted {
		n++
	}
	return n
}

// FindColumn returns the index of the named column.
func (s Schema) FindColumn(name string) (int, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// Validate checks that column names are unique and non-empty, key columns form
// a prefix and have key types, and the column count is within limits.
func (s Schema) Validate() error {
	if len(s.Columns) > MaxValuesPerRow {
		return errors.Newf("too many columns in schema: actual %d, limit %d",
			errors.Safe(len(s.Columns)), errors.Safe(MaxValuesPerRow))
	}
	keyColumnCount := s.KeyColumnCount()
	if keyColumnCount > MaxKeyColumnCount {
		return errors.Newf("too many key columns in schema: actual %d, limit %d",
			errors.Safe(keyColumnCount), errors.Safe(MaxKeyColumnCount))
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for i, c := range s.Columns {
		if c.Name == "" {
			return errors.Newf("column %d has an empty name", errors.Safe(i))
		}
		if _, ok := seen[c.Name]; ok {
			return errors.Newf("duplicate column %q in schema", c.Name)
		}
		seen[c.Name] = struct{}{}
		if !c.Type.IsDataType() || c.Type == TypeNull {
			return errors.Newf("column %q has invalid type %s", c.Name, c.Type)
		}
		if i < keyColumnCount && !c.Type.IsKeyType() {
			return errors.Newf("key column %q has type %s which cannot be ordered", c.Name, c.Type)
		}
		if i >= keyColumnCount && c.SortOrder != Unsorted {
			return errors.Newf("key column %q does not form a prefix of the schema", c.Name)
		}
	}
	return nil
}

// NameTable maps column names to dense ids. Ids are assigned in registration
// order.
type NameTable struct {
	ids   swiss.Map[string, int]
	names []string
}

// NewNameTable returns an empty name table.
func NewNameTable() *NameTable {
	t := &NameTable{}
	t.ids.Init(16)
	return t
}

// NameTableFromSchema returns a name table in which every column's id is its
// position in the schema.
func NameTableFromSchema(s Schema) *NameTable {
	t := NewNameTable()
	for _, c := range s.Columns {
		t.RegisterName(c.Name)
	}
	return t
}

// FindID returns the id registered for the name.
func (t *NameTable) FindID(name string) (int, bool) {
	return t.ids.Get(name)
}

// GetID returns the id registered for the name or an error.
func (t *NameTable) GetID(name string) (int, error) {
	id, ok := t.ids.Get(name)
	if !ok {
		return 0, errors.Newf("no such column %q", name)
	}
	return id, nil
}

// RegisterName registers a new name and returns its id. Registering a name
// twice is a programming error.
func (t *NameTable) RegisterName(name string) int {
	if _, ok := t.ids.Get(name); ok {
		panic(errors.AssertionFailedf("column %q is already registered", name))
	}
	if len(t.names) > math.MaxUint16 {
		panic(errors.AssertionFailedf("name table is full"))
	}
	id := len(t.names)
	t.ids.Put(name, id)
	t.names = append(t.names, name)
	return id
}

// GetIDOrRegister returns the id of the name, registering it if needed.
func (t *NameTable) GetIDOrRegister(name string) int {
	if id, ok := t.ids.Get(name); ok {
		return id
	}
	return t.RegisterName(name)
}

// Name returns the name registered for the id.
func (t *NameTable) Name(id int) string {
	return t.names[id]
}

// Len returns the number of registered names.
func (t *NameTable) Len() int {
	return len(t.names)
}

// IDMapping translates column ids of one name table into ids (schema
// positions) of another. A negative entry means the column has no counterpart.
type IDMapping []int

// BuildIDMapping maps every name of the name table onto the schema.
func BuildIDMapping(t *NameTable, s Schema) IDMapping {
	m := make(IDMapping, t.Len())
	for id := range m {
		pos, ok := s.FindColumn(t.Name(id))
		if !ok {
			pos = -1
		}
		m[id] = pos
	}
	return m
}

// Map returns the mapped id, or -1 if the id is out of range or unmapped.
func (m IDMapping) Map(id uint16) int {
	if int(id) >= len(m) {
		return -1
	}
	return m[id]
}
