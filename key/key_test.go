package key

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toutaio/toutago-trew-dependency-injector/typeref"
)

type greeter interface{ Greet() string }

type primary struct{}

type tagged struct{ Level int }

type list[E any] struct{}

func (list[E]) TypeArguments() []reflect.Type {
	return []reflect.Type{reflect.TypeOf((*E)(nil)).Elem()}
}

func TestKey_StructuralEquality(t *testing.T) {
	a := For[list[string]]()
	b := Of(reflect.TypeOf(list[string]{}))
	c := New(typeref.Parameterize(a.Type().Raw(), typeref.Of(reflect.TypeOf(""))), None)

	assert.Equal(t, a, b)
	assert.True(t, a == c)
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, a.Hash(), c.Hash())

	m := map[Key]int{a: 1}
	assert.Equal(t, 1, m[c])
}

func TestKey_QualifiersDistinguish(t *testing.T) {
	plain := For[string]()
	named := plain.Named("x")
	otherName := plain.Named("y")
	marked := plain.Qualified(MarkerOf[primary]())

	assert.NotEqual(t, plain, named)
	assert.NotEqual(t, named, otherName)
	assert.NotEqual(t, plain, marked)
	assert.NotEqual(t, named, marked)
	assert.Equal(t, named, For[string]().Named("x"))
	assert.Equal(t, named.Hash(), For[string]().Named("x").Hash())
	assert.Equal(t, plain, named.Unqualified())
}

func TestValue_ZeroStructBecomesMarker(t *testing.T) {
	q := Value(primary{})

	assert.True(t, q.IsMarker())
	assert.Equal(t, MarkerOf[primary](), q)

	v := Value(tagged{Level: 2})
	assert.True(t, v.IsValue())
	assert.Equal(t, Value(tagged{Level: 2}), v)
	assert.NotEqual(t, Value(tagged{Level: 3}), v)
}

func TestValue_RejectsUncomparable(t *testing.T) {
	assert.Panics(t, func() { Value([]string{"a"}) })
	assert.Equal(t, None, Value(nil))
}

func TestToken(t *testing.T) {
	assert.Equal(t, For[greeter](), Token((*greeter)(nil)))
	assert.Equal(t, For[*primary](), Token(&primary{}))
	assert.Equal(t, For[int](), Token(0))
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "string", For[string]().String())
	assert.Equal(t, `string annotated with @Named("db")`, For[string]().Named("db").String())
	assert.Equal(t, "string marked with @key.primary", For[string]().Qualified(MarkerOf[primary]()).String())
	assert.Equal(t, `string annotated with @Property("a.b")`, For[string]().Qualified(Property("a.b")).String())
}

func TestKey_RawKeepsQualifier(t *testing.T) {
	k := For[list[int]]().Named("n")

	raw := k.Raw()

	require.True(t, raw.IsPureRawType())
	assert.False(t, k.IsPureRawType())
	assert.Equal(t, k.Qualifier(), raw.Qualifier())
}

func TestQualifierAccessors(t *testing.T) {
	name, ok := Named("x").Name()
	assert.True(t, ok)
	assert.Equal(t, "x", name)

	path, ok := Property("server.port").PropertyPath()
	assert.True(t, ok)
	assert.Equal(t, "server.port", path)

	_, ok = None.Name()
	assert.False(t, ok)
}

func TestInjected_String(t *testing.T) {
	k := For[string]()

	assert.Equal(t, "(required) string", Injected{Key: k}.String())
	assert.Equal(t, "(optional) string", Injected{Key: k, Optional: true}.String())
	assert.Equal(t, "(required) (assisted) string", Injected{Key: k, Assisted: true}.String())
}
