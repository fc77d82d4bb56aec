// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import (
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/chunkwire/internal/base"
	"github.com/cockroachdb/errors"
)

// Static limits on rows and values. They bound both legitimate and malicious
// inputs, and are enforced on every ingestion path.
const (
	MaxValuesPerRow      = 1024
	MaxKeyColumnCount    = 32
	MaxRowsPerRowset     = 1024 * 1024
	MaxStringValueLength = 1 << 20
	MaxRowWeightLimit    = 128 << 20
)

// ValidateRowValueCount checks the number of values in a row.
func ValidateRowValueCount(count int) error {
	if count < 0 {
		return base.LimitExceededf("negative number of values in row: %d", errors.Safe(count))
	}
	if count > MaxValuesPerRow {
		return base.LimitExceededf("too many values in row: actual %d, limit %d",
			errors.Safe(count), errors.Safe(MaxValuesPerRow))
	}
	return nil
}

// ValidateKeyColumnCount checks the number of key columns. A key has at least
// one column.
func ValidateKeyColumnCount(count int) error {
	if count <= 0 {
		return base.LimitExceededf("non-positive number of key columns: %d", errors.Safe(count))
	}
	if count > MaxKeyColumnCount {
		return base.LimitExceededf("too many key columns: actual %d, limit %d",
			errors.Safe(count), errors.Safe(MaxKeyColumnCount))
	}
	return nil
}

// ValidateRowCount checks the number of rows in a rowset.
func ValidateRowCount(count int) error {
	if count < 0 {
		return base.LimitExceededf("negative number of rows in rowset: %d", errors.Safe(count))
	}
	if count > MaxRowsPerRowset {
		return base.LimitExceededf("too many rows in rowset: actual %d, limit %d",
			errors.Safe(count), errors.Safe(MaxRowsPerRowset))
	}
	return nil
}

// ValidateStaticValue checks the constraints every stored value satisfies
// regardless of schema: a data type (or null), bounded string length and no
// NaN doubles.
func ValidateStaticValue(v Value) error {
	if !v.Type.IsDataType() {
		return base.InvalidValuef("invalid value type %s", v.Type)
	}
	switch v.Type {
	case TypeString, TypeAny:
		if len(v.data) > MaxStringValueLength {
			return base.LimitExceededf("value is too long: length %d, limit %d",
				errors.Safe(len(v.data)), errors.Safe(MaxStringValueLength))
		}
	case TypeDouble:
		if math.IsNaN(v.Double()) {
			return base.InvalidValuef("value of type double is NaN")
		}
	}
	return nil
}

// ValidateDataValue checks a non-key value.
func ValidateDataValue(v Value) error {
	return ValidateStaticValue(v)
}

// ValidateKeyValue checks a key value. Composite values are not allowed in
// keys.
func ValidateKeyValue(v Value) error {
	if err := ValidateStaticValue(v); err != nil {
		return err
	}
	if !v.Type.IsKeyType() {
		return base.InvalidValuef("invalid key value type %s", v.Type)
	}
	return nil
}

// ValidateRowWeight checks a row against the row weight limit.
func ValidateRowWeight(r Row) error {
	if w := r.DataWeight(); w > MaxRowWeightLimit {
		return base.LimitExceededf("row weight is too large: actual %d, limit %d",
			errors.Safe(w), errors.Safe(MaxRowWeightLimit))
	}
	return nil
}

// validateSchemaKeyColumns checks keyColumnCount and that the schema has a
// column for every key position.
func validateSchemaKeyColumns(keyColumnCount int, s Schema) error {
	if err := ValidateKeyColumnCount(keyColumnCount); err != nil {
		return err
	}
	if keyColumnCount > len(s.Columns) {
		return base.InvalidValuef("key column count %d exceeds schema column count %d",
			errors.Safe(keyColumnCount), errors.Safe(len(s.Columns)))
	}
	return nil
}

func validateValueType(v Value, s Schema, schemaID int) error {
	col := &s.Columns[schemaID]
	if v.Type != TypeNull && v.Type != col.Type {
		return base.InvalidValuef("invalid type of column %q: expected %s or %s but got %s",
			col.Name, col.Type, TypeNull, v.Type)
	}
	return nil
}

func wrapColumn(err error, s Schema, schemaID int) error {
	return errors.Wrapf(err, "column %q", s.Columns[schemaID].Name)
}

// mapID translates a value's id through the mapping (nil means identity) and
// checks that it names a schema column.
func mapID(v Value, s Schema, idMapping IDMapping) (int, error) {
	id := int(v.ID)
	if idMapping != nil {
		id = idMapping.Map(v.ID)
	}
	if id < 0 || id >= len(s.Columns) {
		return 0, base.InvalidValuef("unexpected column id %d", errors.Safe(v.ID))
	}
	return id, nil
}

// ValidateServerKey checks a key built by the server: exactly keyColumnCount
// values carrying ids 0..keyColumnCount-1 in order, each a valid key value of
// the column's type.
func ValidateServerKey(key Row, keyColumnCount int, s Schema) error {
	if key.IsNull() {
		return base.InvalidValuef("key cannot be null")
	}
	if err := validateSchemaKeyColumns(keyColumnCount, s); err != nil {
		return err
	}
	if key.Len() != keyColumnCount {
		return base.InvalidValuef("invalid number of key components: expected %d, actual %d",
			errors.Safe(keyColumnCount), errors.Safe(key.Len()))
	}
	for i, v := range key.values {
		if int(v.ID) != i {
			return base.InvalidValuef("invalid key component id: expected %d, actual %d",
				errors.Safe(i), errors.Safe(v.ID))
		}
		if err := ValidateKeyValue(v); err != nil {
			return wrapColumn(err, s, i)
		}
		if err := validateValueType(v, s, i); err != nil {
			return err
		}
	}
	return nil
}

// ValidateServerDataRow checks a row built by the server. The key columns must
// come first, in order, with ids 0..keyColumnCount-1. Non-key values must name
// non-key schema columns and match their type; null is always accepted. When
// idMapping is non-nil, non-key ids are translated through it before the
// schema lookup.
func ValidateServerDataRow(r Row, keyColumnCount int, s Schema, idMapping IDMapping) error {
	if r.IsNull() {
		return base.InvalidValuef("row cannot be null")
	}
	if err := ValidateRowValueCount(r.Len()); err != nil {
		return err
	}
	if err := validateSchemaKeyColumns(keyColumnCount, s); err != nil {
		return err
	}
	if r.Len() < keyColumnCount {
		return base.InvalidValuef("too few values in row: actual %d, expected at least %d",
			errors.Safe(r.Len()), errors.Safe(keyColumnCount))
	}
	for i, v := range r.values {
		if i < keyColumnCount {
			if int(v.ID) != i {
				return base.InvalidValuef("invalid key component id: expected %d, actual %d",
					errors.Safe(i), errors.Safe(v.ID))
			}
			if err := ValidateKeyValue(v); err != nil {
				return wrapColumn(err, s, i)
			}
			if err := validateValueType(v, s, i); err != nil {
				return err
			}
			continue
		}
		id, err := mapID(v, s, idMapping)
		if err != nil {
			return err
		}
		if id < keyColumnCount {
			return base.InvalidValuef("key column %q appears among data values", s.Columns[id].Name)
		}
		if err := ValidateDataValue(v); err != nil {
			return wrapColumn(err, s, id)
		}
		if err := validateValueType(v, s, id); err != nil {
			return err
		}
	}
	return ValidateRowWeight(r)
}

// ValidateClientKey checks a key supplied by a client. Client ids are
// arbitrary and are always translated through idMapping. Every key column must
// be present exactly once and no other column may appear.
func ValidateClientKey(key Row, s Schema, idMapping IDMapping) error {
	if key.IsNull() {
		return base.InvalidValuef("key cannot be null")
	}
	if idMapping == nil {
		return errors.AssertionFailedf("client keys require an id mapping")
	}
	keyColumnCount := s.KeyColumnCount()
	if err := ValidateKeyColumnCount(keyColumnCount); err != nil {
		return err
	}
	if err := ValidateRowValueCount(key.Len()); err != nil {
		return err
	}
	var seen bitset.BitSet
	for _, v := range key.values {
		id, err := mapID(v, s, idMapping)
		if err != nil {
			return err
		}
		if id >= keyColumnCount {
			return base.InvalidValuef("non-key column %q in key", s.Columns[id].Name)
		}
		if s.Columns[id].Expression != "" {
			return base.InvalidValuef("column %q is computed automatically and should not be provided by user",
				s.Columns[id].Name)
		}
		if seen.Test(uint(id)) {
			return base.InvalidValuef("duplicate key component %q", s.Columns[id].Name)
		}
		seen.Set(uint(id))
		if err := ValidateKeyValue(v); err != nil {
			return wrapColumn(err, s, id)
		}
		if err := validateValueType(v, s, id); err != nil {
			return err
		}
	}
	return checkKeyColumnsPresent(&seen, s, keyColumnCount)
}

// ValidateClientDataRow checks a row supplied by a client. On top of the rules
// of ValidateClientKey for key columns, data values must match their column
// type and computed columns must not be supplied at all.
func ValidateClientDataRow(r Row, s Schema, idMapping IDMapping) error {
	if r.IsNull() {
		return base.InvalidValuef("row cannot be null")
	}
	if idMapping == nil {
		return errors.AssertionFailedf("client rows require an id mapping")
	}
	keyColumnCount := s.KeyColumnCount()
	if err := ValidateRowValueCount(r.Len()); err != nil {
		return err
	}
	var seenKeys bitset.BitSet
	for _, v := range r.values {
		id, err := mapID(v, s, idMapping)
		if err != nil {
			return err
		}
		col := &s.Columns[id]
		if col.Expression != "" {
			return base.InvalidValuef("column %q is computed automatically and should not be provided by user",
				col.Name)
		}
		if id < keyColumnCount {
			if seenKeys.Test(uint(id)) {
				return base.InvalidValuef("duplicate key component %q", col.Name)
			}
			seenKeys.Set(uint(id))
			if err := ValidateKeyValue(v); err != nil {
				return wrapColumn(err, s, id)
			}
		} else if err := ValidateDataValue(v); err != nil {
			return wrapColumn(err, s, id)
		}
		if err := validateValueType(v, s, id); err != nil {
			return err
		}
	}
	if err := checkKeyColumnsPresent(&seenKeys, s, keyColumnCount); err != nil {
		return err
	}
	return ValidateRowWeight(r)
}

func checkKeyColumnsPresent(seen *bitset.BitSet, s Schema, keyColumnCount int) error {
	for i := 0; i < keyColumnCount; i++ {
		if s.Columns[i].Expression != "" {
			continue
		}
		if !seen.Test(uint(i)) {
			return base.InvalidValuef("missing key column %q", s.Columns[i].Name)
		}
	}
	return nil
}
