// Copyright 2025 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package row

import (
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// String renders the value as id#type[:payload], with a trailing '!' for
// aggregate values, e.g. 0#int64:5, 1#string:"abc", 2#null.
func (v Value) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(int(v.ID)))
	sb.WriteByte('#')
	sb.WriteString(v.Type.String())
	switch v.Type {
	case TypeInt64:
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatInt(v.Int64(), 10))
	case TypeUint64:
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(v.Uint64(), 10))
	case TypeDouble:
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatFloat(v.Double(), 'g', -1, 64))
	case TypeBoolean:
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatBool(v.Boolean()))
	case TypeString, TypeAny:
		sb.WriteByte(':')
		sb.WriteString(strconv.Quote(string(v.data)))
	}
	if v.Aggregate {
		sb.WriteByte('!')
	}
	return sb.String()
}

// String renders the row as a bracketed, space-separated list of values, or
// <null> for the null row.
func (r Row) String() string {
	if r.IsNull() {
		return "<null>"
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range r.values {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(v.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

var typesByName = func() map[string]ValueType {
	m := make(map[string]ValueType, len(typeNames))
	for t, name := range typeNames {
		m[name] = t
	}
	return m
}()

// ParseValueType parses the name returned by ValueType.String.
func ParseValueType(s string) (ValueType, error) {
	t, ok := typesByName[s]
	if !ok {
		return 0, errors.Newf("unknown value type %q", s)
	}
	return t, nil
}

// ParseValue parses the output of Value.String. The id prefix is optional and
// defaults to 0.
func ParseValue(s string) (Value, error) {
	p := parser{s: s}
	v, err := p.value(0)
	if err != nil {
		return Value{}, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return Value{}, p.errorf("trailing characters")
	}
	return v, nil
}

// ParseRow parses the output of Row.String. Values without an id prefix get
// their position as id. The surrounding brackets are optional.
func ParseRow(s string) (OwningRow, error) {
	s = strings.TrimSpace(s)
	if s == "<null>" {
		return OwningRow{}, nil
	}
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return OwningRow{}, errors.Newf("unbalanced brackets in row %q", s)
		}
		s = s[1 : len(s)-1]
	}
	p := parser{s: s}
	b := NewOwningRowBuilder(4)
	for {
		p.skipSpace()
		if p.pos == len(p.s) {
			break
		}
		v, err := p.value(b.Len())
		if err != nil {
			return OwningRow{}, err
		}
		b.AddValue(v)
	}
	return b.Finish(), nil
}

type parser struct {
	s   string
	pos int
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return errors.Wrapf(errors.Newf(format, args...), "parsing %q at offset %d", p.s, errors.Safe(p.pos))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t' || p.s[p.pos] == '\n') {
		p.pos++
	}
}

func (p *parser) scan(pred func(c byte) bool) string {
	start := p.pos
	for p.pos < len(p.s) && pred(p.s[p.pos]) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWord(c byte) bool { return c >= 'a' && c <= 'z' || isDigit(c) }

func isPayload(c byte) bool {
	return c != ' ' && c != '\t' && c != '\n' && c != '!'
}

func (p *parser) value(defaultID int) (Value, error) {
	p.skipSpace()
	id := defaultID
	start := p.pos
	if digits := p.scan(isDigit); digits != "" && p.pos < len(p.s) && p.s[p.pos] == '#' {
		n, err := strconv.ParseUint(digits, 10, 16)
		if err != nil {
			return Value{}, p.errorf("invalid column id %q", digits)
		}
		id = int(n)
		p.pos++
	} else {
		p.pos = start
	}
	if id > math.MaxUint16 {
		return Value{}, p.errorf("column id %d out of range", errors.Safe(id))
	}
	name := p.scan(isWord)
	typ, ok := typesByName[name]
	if !ok {
		return Value{}, p.errorf("unknown value type %q", name)
	}
	v := Value{ID: uint16(id), Type: typ}
	if !typ.IsSentinel() {
		if p.pos == len(p.s) || p.s[p.pos] != ':' {
			return Value{}, p.errorf("missing payload for %s", typ)
		}
		p.pos++
		if err := p.payload(&v); err != nil {
			return Value{}, err
		}
	}
	if p.pos < len(p.s) && p.s[p.pos] == '!' {
		v.Aggregate = true
		p.pos++
	}
	return v, nil
}

func (p *parser) payload(v *Value) error {
	if v.Type.IsStringLike() {
		quoted, err := strconv.QuotedPrefix(p.s[p.pos:])
		if err != nil {
			return p.errorf("expected quoted string")
		}
		unquoted, err := strconv.Unquote(quoted)
		if err != nil {
			return p.errorf("invalid quoted string %s", quoted)
		}
		p.pos += len(quoted)
		v.data = []byte(unquoted)
		return nil
	}
	tok := p.scan(isPayload)
	var err error
	switch v.Type {
	case TypeInt64:
		var n int64
		n, err = strconv.ParseInt(tok, 10, 64)
		*v = Int64Value(n, v.ID)
	case TypeUint64:
		var n uint64
		n, err = strconv.ParseUint(tok, 10, 64)
		*v = Uint64Value(n, v.ID)
	case TypeDouble:
		var f float64
		f, err = strconv.ParseFloat(tok, 64)
		*v = DoubleValue(f, v.ID)
	case TypeBoolean:
		var b bool
		b, err = strconv.ParseBool(tok)
		*v = BooleanValue(b, v.ID)
	}
	if err != nil {
		return p.errorf("invalid %s payload %q", v.Type, tok)
	}
	return nil
}
