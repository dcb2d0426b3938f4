// Package codec converts MongoDB document values to and from the JSON form
// stored in backup files.
//
// Values with a native JSON representation (strings, booleans, null, 32-bit
// integers, non-integral doubles) are written as-is. Everything else is
// written as a tagged object:
//
//	{"$kind": "id", "$value": "65a1f0c2e4b0a1b2c3d4e5f6"}
//	{"$kind": "datetime", "$value": "2025-01-02T03:04:05.678Z"}
//	{"$kind": "binary", "$value": "AAEC", "$subtype": 0}
//
// A document that itself has a "$kind" field is wrapped so it cannot be
// mistaken for a tag:
//
//	{"$kind": "document", "$value": {"$kind": "widget"}}
//
// Datetimes outside years 0000-9999 have no ISO-8601 form and carry the
// milliseconds since the epoch as a JSON number instead.
//
// Decoding reverses the mapping. An object carrying "$kind" is always treated
// as tagged; an unknown kind or a malformed "$value" is a format error.
package codec

import (
	"strings"

	"mongowiz/src/apperr"
)

// Kind identifies the type carried by a tagged value.
type Kind string

const (
	KindID        Kind = "id"
	KindDatetime  Kind = "datetime"
	KindBinary    Kind = "binary"
	KindInt64     Kind = "int64"
	KindDouble    Kind = "double"
	KindDecimal   Kind = "decimal"
	KindTimestamp Kind = "timestamp"
	KindRegex     Kind = "regex"
	KindMinKey    Kind = "minKey"
	KindMaxKey    Kind = "maxKey"
	KindDocument  Kind = "document"
)

// Reserved keys of a tagged object.
const (
	KindKey    = "$kind"
	ValueKey   = "$value"
	SubtypeKey = "$subtype"
)

// datetimeLayout is ISO-8601 in UTC with millisecond precision, matching
// the resolution of BSON datetimes.
const datetimeLayout = "2006-01-02T15:04:05.000Z"

func (k Kind) valid() bool {
	switch k {
	case KindID, KindDatetime, KindBinary, KindInt64, KindDouble, KindDecimal,
		KindTimestamp, KindRegex, KindMinKey, KindMaxKey, KindDocument:
		return true
	}
	return false
}

func fieldPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func fieldError(path, format string, args ...any) error {
	if path == "" {
		return apperr.Formatf("document: "+format, args...)
	}
	args = append([]any{path}, args...)
	return apperr.Formatf("field %q: "+format, args...)
}

// hasKey reports whether a parsed object contains key.
func (o Object) hasKey(key string) bool {
	for _, m := range o {
		if m.Key == key {
			return true
		}
	}
	return false
}

// Keys returns the member keys in document order.
func (o Object) Keys() []string {
	keys := make([]string, len(o))
	for i, m := range o {
		keys[i] = m.Key
	}
	return keys
}

func (o Object) String() string {
	return "{" + strings.Join(o.Keys(), ",") + "}"
}
