package key

import (
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

type qualifierKind uint8

const (
	noQualifier qualifierKind = iota
	markerQualifier
	valueQualifier
)

// Qualifier distinguishes bindings of the same type. It is either none, a
// marker type compared by type identity, or a comparable value compared by
// equality.
type Qualifier struct {
	kind   qualifierKind
	marker reflect.Type
	value  any
}

// None is the absent qualifier.
var None Qualifier

// Marker returns a qualifier compared by type identity.
func Marker(t reflect.Type) Qualifier {
	if t == nil {
		return None
	}
	return Qualifier{kind: markerQualifier, marker: t}
}

// MarkerOf returns the marker qualifier of M.
func MarkerOf[M any]() Qualifier {
	return Marker(reflect.TypeOf((*M)(nil)).Elem())
}

// Value returns a qualifier compared by value. v must be comparable. A
// zero-valued struct carries nothing beyond its type, so it becomes the
// marker qualifier of that type.
func Value(v any) Qualifier {
	if v == nil {
		return None
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().Comparable() {
		panic(fmt.Sprintf("key: qualifier of type %T is not comparable", v))
	}
	if rv.Kind() == reflect.Struct && rv.IsZero() {
		return Marker(rv.Type())
	}
	return Qualifier{kind: valueQualifier, value: v}
}

// Name is the value of a Named qualifier.
type Name string

func (n Name) String() string { return fmt.Sprintf("@Named(%q)", string(n)) }

// Named returns the value qualifier for a name.
func Named(name string) Qualifier {
	return Value(Name(name))
}

// PropertyPath is the value of a property qualifier.
type PropertyPath string

func (p PropertyPath) String() string { return fmt.Sprintf("@Property(%q)", string(p)) }

// Property returns the value qualifier for a property path.
func Property(path string) Qualifier {
	return Value(PropertyPath(path))
}

func (q Qualifier) IsNone() bool   { return q.kind == noQualifier }
func (q Qualifier) IsMarker() bool { return q.kind == markerQualifier }
func (q Qualifier) IsValue() bool  { return q.kind == valueQualifier }

// MarkerType returns the marker type, or nil.
func (q Qualifier) MarkerType() reflect.Type { return q.marker }

// Value returns the qualifier value, or nil.
func (q Qualifier) Value() any { return q.value }

// Name returns the name of a Named qualifier.
func (q Qualifier) Name() (string, bool) {
	n, ok := q.value.(Name)
	return string(n), ok
}

// PropertyPath returns the path of a property qualifier.
func (q Qualifier) PropertyPath() (string, bool) {
	p, ok := q.value.(PropertyPath)
	return string(p), ok
}

func (q Qualifier) String() string {
	switch q.kind {
	case markerQualifier:
		return "@" + q.marker.String()
	case valueQualifier:
		if s, ok := q.value.(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("@%T(%v)", q.value, q.value)
	}
	return ""
}

func (q Qualifier) hash() uint64 {
	switch q.kind {
	case markerQualifier:
		return xxhash.Sum64String("m:" + q.marker.PkgPath() + "." + q.marker.String())
	case valueQualifier:
		return xxhash.Sum64String(fmt.Sprintf("v:%T:%#v", q.value, q.value))
	}
	return 0
}
