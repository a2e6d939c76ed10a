// Package key defines the identity of a binding: a type reference plus an
// optional qualifier.
package key

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"

	"github.com/toutaio/toutago-trew-dependency-injector/typeref"
)

// Key identifies a binding. Keys are comparable and can be used directly
// as map keys.
type Key struct {
	typ       *typeref.Type
	qualifier Qualifier
}

// New creates a key for t qualified by q.
func New(t *typeref.Type, q Qualifier) Key {
	if t == nil {
		panic("key: nil type")
	}
	return Key{typ: t, qualifier: q}
}

// Of returns the unqualified key of a reflected type.
func Of(rt reflect.Type) Key {
	return New(typeref.Of(rt), None)
}

// For returns the unqualified key of T.
func For[T any]() Key {
	return Of(reflect.TypeOf((*T)(nil)).Elem())
}

// Token returns the key of a type token. A nil pointer to an interface,
// such as (*Logger)(nil), stands for the interface itself; any other value
// stands for its own dynamic type.
func Token(token any) Key {
	if token == nil {
		panic("key: nil token")
	}
	rt := reflect.TypeOf(token)
	if rt.Kind() == reflect.Pointer && rt.Elem().Kind() == reflect.Interface {
		rt = rt.Elem()
	}
	return Of(rt)
}

func (k Key) Type() *typeref.Type   { return k.typ }
func (k Key) Qualifier() Qualifier  { return k.qualifier }
func (k Key) IsZero() bool          { return k.typ == nil }
func (k Key) RequiresContext() bool { return k.typ.RequiresContext() }
func (k Key) IsPureRawType() bool   { return k.typ.IsPureRawType() }

// Reflect returns the Go type of the key, or nil when the type has none.
func (k Key) Reflect() reflect.Type {
	if k.typ == nil {
		return nil
	}
	return k.typ.Reflect()
}

// Raw returns the key of the raw type with the same qualifier.
func (k Key) Raw() Key {
	return Key{typ: k.typ.Raw(), qualifier: k.qualifier}
}

// Qualified returns a copy of the key with the given qualifier.
func (k Key) Qualified(q Qualifier) Key {
	return Key{typ: k.typ, qualifier: q}
}

// Named is shorthand for Qualified(Named(name)).
func (k Key) Named(name string) Key {
	return k.Qualified(Named(name))
}

// Unqualified drops the qualifier.
func (k Key) Unqualified() Key {
	return Key{typ: k.typ}
}

func (k Key) Equal(o Key) bool { return k == o }

// Hash combines the type and qualifier hashes. Equal keys have equal hashes.
func (k Key) Hash() uint64 {
	d := xxhash.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], k.typ.Hash())
	_, _ = d.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], k.qualifier.hash())
	_, _ = d.Write(buf[:])
	return d.Sum64()
}

func (k Key) String() string {
	if k.typ == nil {
		return "<zero key>"
	}
	switch k.qualifier.kind {
	case markerQualifier:
		return fmt.Sprintf("%s marked with %s", k.typ, k.qualifier)
	case valueQualifier:
		return fmt.Sprintf("%s annotated with %s", k.typ, k.qualifier)
	}
	return k.typ.String()
}

// Injected is a key as seen from an injection point.
type Injected struct {
	Key      Key
	Optional bool
	Assisted bool
}

func (k Injected) String() string {
	s := "(required) "
	if k.Optional {
		s = "(optional) "
	}
	if k.Assisted {
		s += "(assisted) "
	}
	return s + k.Key.String()
}
