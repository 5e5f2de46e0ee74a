// Package meta holds the tagged-union metadata value attached to candidates.
// Backends report heterogeneous metadata; fusion's post-filters and facet
// aggregation must pattern-match it safely, so an untyped blob is not allowed.
package meta

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// Canonical metadata keys populated by backend adapters.
const (
	KeySource    = "source"
	KeyTags      = "tags"
	KeyCategory  = "category"
	KeyPublished = "published_at"
)

// Kind discriminates the value variants.
type Kind uint8

// Value kinds.
const (
	KindString Kind = iota + 1
	KindNumber
	KindTime
	KindStrings
	// KindBytes is the opaque fallback for backend-specific payloads
	// that no filter or facet needs to interpret.
	KindBytes
)

// Value is an immutable tagged union of the metadata types a backend may report.
type Value struct {
	kind Kind
	str  string
	num  float64
	ts   time.Time
	list []string
	raw  []byte
}

// String creates a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number creates a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Time creates a timestamp value.
func Time(t time.Time) Value { return Value{kind: KindTime, ts: t} }

// Strings creates a string-list value.
func Strings(list ...string) Value {
	cp := make([]string, len(list))
	copy(cp, list)
	return Value{kind: KindStrings, list: cp}
}

// Bytes creates an opaque byte value.
func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, raw: cp}
}

// Kind returns the value discriminator (zero for an absent value).
func (v Value) Kind() Kind { return v.kind }

// Str returns the string variant.
func (v Value) Str() (string, bool) { return v.str, v.kind == KindString }

// Num returns the numeric variant.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Time returns the timestamp variant.
func (v Value) Time() (time.Time, bool) { return v.ts, v.kind == KindTime }

// List returns the string-list variant.
func (v Value) List() ([]string, bool) { return v.list, v.kind == KindStrings }

// Raw returns the opaque-bytes variant.
func (v Value) Raw() ([]byte, bool) { return v.raw, v.kind == KindBytes }

// Contains reports whether the value matches s: equality for strings,
// membership for string lists. Other kinds never match.
func (v Value) Contains(s string) bool {
	switch v.kind {
	case KindString:
		return v.str == s
	case KindStrings:
		for _, item := range v.list {
			if item == s {
				return true
			}
		}
	}
	return false
}

// MarshalJSON renders the native variant; bytes are base64-encoded.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindTime:
		return json.Marshal(v.ts)
	case KindStrings:
		return json.Marshal(v.list)
	case KindBytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.raw))
	}
	return []byte("null"), nil
}
