// Package schema defines the cube's dimension, measure and aggregation
// metadata (spec.md §3): the types every other component (predicate
// evaluation, chunk encoding, the aggregation engine, the planner) shares.
//
// Field values travel through the system as `any`, the same way the
// teacher's internal/cache layer stores arbitrary values behind a typed
// accessor (see internal/cache/cache.go's Get/Set over interface{}); a
// FieldType supplies the comparator, hash and codec hooks a bare `any`
// cannot.
package schema

import (
	"hash/fnv"
	"sort"
)

// FieldType describes how a dimension or measure's values compare, hash,
// and round-trip through the buf codec.
type FieldType struct {
	Name string

	// Compare returns <0, 0, >0 for a<b, a==b, a>b. Values must have
	// already been normalised to this type's native Go representation.
	Compare func(a, b any) int

	// Hash returns a stable hash of v, used by chunk index range summaries
	// and by In-predicate set membership fast paths.
	Hash func(v any) uint64

	// Encode/Decode read and write a single value via a buf.Writer/Reader.
	// Declared here as function values (rather than importing internal/buf,
	// which would create an import cycle with internal/buf's own tests)
	// and wired up in internal/chunkio using concrete Writer/Reader types.
	Encode func(w Writer, v any) error
	Decode func(r Reader) (any, error)
}

// Writer and Reader are the minimal primitive-write/read surfaces a
// FieldType's Encode/Decode need; internal/buf.Writer and internal/buf.Reader
// satisfy these.
type Writer interface {
	WriteI64(int64)
	WriteF64(float64)
	WriteUTF8(string)
	WriteBool(bool)
}

type Reader interface {
	ReadI64() (int64, error)
	ReadF64() (float64, error)
	ReadUTF8() (string, error)
	ReadBool() (bool, error)
}

func compareInt64(a, b any) int {
	ai, bi := a.(int64), b.(int64)
	switch {
	case ai < bi:
		return -1
	case ai > bi:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b any) int {
	af, bf := a.(float64), b.(float64)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func compareString(a, b any) int {
	as, bs := a.(string), b.(string)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b any) int {
	ab, bb := a.(bool), b.(bool)
	if ab == bb {
		return 0
	}
	if !ab && bb {
		return -1
	}
	return 1
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// Int64Type is a signed 64-bit integer field, used for timestamps, counts,
// and numeric dimensions.
var Int64Type = &FieldType{
	Name:    "int64",
	Compare: compareInt64,
	Hash:    func(v any) uint64 { return uint64(v.(int64)) },
	Encode:  func(w Writer, v any) error { w.WriteI64(v.(int64)); return nil },
	Decode: func(r Reader) (any, error) {
		v, err := r.ReadI64()
		return v, err
	},
}

// Float64Type is an IEEE-754 double field, used for numeric measures.
var Float64Type = &FieldType{
	Name:    "float64",
	Compare: compareFloat64,
	Hash:    func(v any) uint64 { return uint64(v.(float64) * 1000) },
	Encode:  func(w Writer, v any) error { w.WriteF64(v.(float64)); return nil },
	Decode: func(r Reader) (any, error) {
		v, err := r.ReadF64()
		return v, err
	},
}

// StringType is a UTF-8 text field, used for categorical dimensions.
var StringType = &FieldType{
	Name:    "string",
	Compare: compareString,
	Hash:    func(v any) uint64 { return hashString(v.(string)) },
	Encode:  func(w Writer, v any) error { w.WriteUTF8(v.(string)); return nil },
	Decode: func(r Reader) (any, error) {
		v, err := r.ReadUTF8()
		return v, err
	},
}

// BoolType is a flag field.
var BoolType = &FieldType{
	Name:    "bool",
	Compare: compareBool,
	Hash: func(v any) uint64 {
		if v.(bool) {
			return 1
		}
		return 0
	},
	Encode:  func(w Writer, v any) error { w.WriteBool(v.(bool)); return nil },
	Decode: func(r Reader) (any, error) {
		v, err := r.ReadBool()
		return v, err
	},
}

// registry indexes the built-in field types by name for config-driven
// schema construction (e.g. loaded from a metastore row or a YAML file).
var registry = map[string]*FieldType{
	Int64Type.Name:   Int64Type,
	Float64Type.Name: Float64Type,
	StringType.Name:  StringType,
	BoolType.Name:    BoolType,
}

// Lookup returns the named built-in field type.
func Lookup(name string) (*FieldType, bool) {
	ft, ok := registry[name]
	return ft, ok
}

// SortedNames returns every registered field type name in sorted order, used
// by cmd/cubectl's schema-describe output.
func SortedNames() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
