// Package typeref models Go types as interned structural nodes.
//
// A node is one of five kinds: a class (a plain Go type or a declared
// generic family), a parameterized type, an array, a wildcard or a type
// variable. Nodes are interned, so two structurally equal nodes are the same
// pointer and can be compared with ==. This makes them safe to embed in map
// keys.
//
// Go resolves the type parameters of generic code at compile time, so a
// reflected field of Box[string] already has the type string. Families and
// variables exist for the cases reflection cannot express on its own:
// matching every Box[X] against one raw binding, and resolving the
// variables of a declared family against a concrete context.
package typeref

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// Kind identifies the shape of a Type.
type Kind uint8

const (
	Class Kind = iota
	Parameterized
	Array
	Wildcard
	Variable
)

var kindNames = [...]string{"class", "parameterized", "array", "wildcard", "variable"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Parameterizable is implemented by instantiations of generic Go types that
// want to be modelled as a parameterized type of a shared family. The method
// is called on the zero value, so it must use a value receiver and must not
// read the receiver.
//
//	type Box[T any] struct{ Value T }
//
//	func (Box[T]) TypeArguments() []reflect.Type {
//	    return []reflect.Type{reflect.TypeOf((*T)(nil)).Elem()}
//	}
type Parameterizable interface {
	TypeArguments() []reflect.Type
}

// Type is an interned type node. The zero value is not usable; nodes are
// obtained from Of, Family, Parameterize, ArrayOf, the wildcard
// constructors and FuncVar.
type Type struct {
	id   uint64
	kind Kind

	// Class
	rt reflect.Type

	// Class (family) and Variable
	pkg    string
	name   string
	params []*Type
	supers atomic.Pointer[[]*Type]

	// Parameterized
	raw   *Type
	owner *Type
	args  []*Type

	// Array
	elem *Type

	// Wildcard
	upper *Type
	lower *Type

	// Variable
	declarer *Type
	fn       string
	index    int

	requiresContext bool
	str             string
	hash            uint64
}

var (
	nextID    atomic.Uint64
	classes   sync.Map // reflect.Type -> *Type
	nodes     sync.Map // signature -> *Type
	families  sync.Map // pkg.name -> *Type
	instances sync.Map // *Type -> reflect.Type
	extendMu  sync.Mutex

	anyType             = reflect.TypeOf((*any)(nil)).Elem()
	parameterizableType = reflect.TypeOf((*Parameterizable)(nil)).Elem()
)

func newNode(kind Kind) *Type {
	return &Type{id: nextID.Add(1), kind: kind}
}

func (t *Type) seal() *Type {
	t.str = t.format()
	t.hash = xxhash.Sum64String(t.kind.String() + ":" + t.str)
	return t
}

func intern(signature string, t *Type) *Type {
	actual, _ := nodes.LoadOrStore(signature, t.seal())
	return actual.(*Type)
}

// Of returns the node for a reflected Go type.
//
// Unnamed slices become Array nodes. Instantiations implementing
// Parameterizable become Parameterized nodes of the family derived from
// their package path and base name. Every other type is a Class node.
func Of(rt reflect.Type) *Type {
	if rt == nil {
		panic("typeref: nil reflect.Type")
	}
	if t, ok := classes.Load(rt); ok {
		return t.(*Type)
	}

	var t *Type
	if rt.Kind() == reflect.Slice && rt.Name() == "" {
		t = ArrayOf(Of(rt.Elem()))
	} else if args, ok := typeArguments(rt); ok {
		nodes := make([]*Type, len(args))
		for i, arg := range args {
			nodes[i] = Of(arg)
		}
		t = Parameterize(familyOf(rt, len(args)), nodes...)
	} else {
		t = newNode(Class)
		t.rt = rt
		t.seal()
	}

	if t.kind != Class {
		instances.LoadOrStore(t, rt)
	}
	actual, _ := classes.LoadOrStore(rt, t)
	return actual.(*Type)
}

// Any returns the node of the empty interface.
func Any() *Type {
	return Of(anyType)
}

func typeArguments(rt reflect.Type) ([]reflect.Type, bool) {
	if rt.Name() == "" || rt.Kind() == reflect.Interface || rt.Kind() == reflect.Pointer {
		return nil, false
	}
	if !rt.Implements(parameterizableType) {
		return nil, false
	}
	args := reflect.Zero(rt).Interface().(Parameterizable).TypeArguments()
	return args, len(args) > 0
}

func familyOf(rt reflect.Type, arity int) *Type {
	name := rt.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	params := make([]string, arity)
	for i := range params {
		params[i] = fmt.Sprintf("T%d", i+1)
	}
	return declareFamily(rt.PkgPath(), name, params)
}

// Family declares, or returns the existing, generic family pkg.name with the
// given type variables. Redeclaring a family with a different arity panics.
func Family(pkg, name string, params ...string) *Type {
	if name == "" || len(params) == 0 {
		panic("typeref: a family needs a name and at least one type variable")
	}
	return declareFamily(pkg, name, params)
}

func declareFamily(pkg, name string, params []string) *Type {
	id := pkg + "." + name
	if f, ok := families.Load(id); ok {
		return checkArity(f.(*Type), len(params))
	}

	f := newNode(Class)
	f.pkg = pkg
	f.name = name
	f.params = make([]*Type, len(params))
	for i, p := range params {
		v := newNode(Variable)
		v.name = p
		v.declarer = f
		v.index = i
		v.requiresContext = true
		f.params[i] = v.seal()
	}
	f.seal()

	actual, loaded := families.LoadOrStore(id, f)
	if loaded {
		return checkArity(actual.(*Type), len(params))
	}
	return f
}

func checkArity(f *Type, arity int) *Type {
	if len(f.params) != arity {
		panic(fmt.Sprintf("typeref: family %s.%s declared with %d type variables, got %d",
			f.pkg, f.name, len(f.params), arity))
	}
	return f
}

// Parameterize returns raw[args...]. raw must be a family and the argument
// count must match its type variables.
func Parameterize(raw *Type, args ...*Type) *Type {
	return ParameterizeIn(nil, raw, args...)
}

// ParameterizeIn is Parameterize with an owner type.
func ParameterizeIn(owner, raw *Type, args ...*Type) *Type {
	if !raw.IsFamily() {
		panic(fmt.Sprintf("typeref: %v is not a generic family", raw))
	}
	if len(args) != len(raw.params) {
		panic(fmt.Sprintf("typeref: %s expects %d type arguments, got %d", raw, len(raw.params), len(args)))
	}

	var sig strings.Builder
	fmt.Fprintf(&sig, "p:%d:%d", raw.id, owner.identity())
	t := newNode(Parameterized)
	t.raw = raw
	t.owner = owner
	t.args = make([]*Type, len(args))
	t.requiresContext = owner.RequiresContext()
	for i, arg := range args {
		if arg == nil {
			panic("typeref: nil type argument")
		}
		fmt.Fprintf(&sig, ":%d", arg.id)
		t.args[i] = arg
		t.requiresContext = t.requiresContext || arg.requiresContext
	}
	return intern(sig.String(), t)
}

// ArrayOf returns the array (slice) node with the given component.
func ArrayOf(elem *Type) *Type {
	if elem == nil {
		panic("typeref: nil array component")
	}
	t := newNode(Array)
	t.elem = elem
	t.requiresContext = elem.requiresContext
	return intern(fmt.Sprintf("a:%d", elem.id), t)
}

// Unbounded returns the wildcard "?".
func Unbounded() *Type {
	return wildcard(Any(), nil)
}

// UpperBounded returns "? extends bound".
func UpperBounded(bound *Type) *Type {
	return wildcard(bound, nil)
}

// LowerBounded returns "? super bound".
func LowerBounded(bound *Type) *Type {
	return wildcard(Any(), bound)
}

func wildcard(upper, lower *Type) *Type {
	if upper == nil {
		panic("typeref: wildcard without upper bound")
	}
	t := newNode(Wildcard)
	t.upper = upper
	t.lower = lower
	t.requiresContext = upper.requiresContext || lower.RequiresContext()
	return intern(fmt.Sprintf("w:%d:%d", upper.id, lower.identity()), t)
}

// FuncVar returns a type variable declared by a function rather than a
// family. Such variables never resolve.
func FuncVar(fn, name string) *Type {
	t := newNode(Variable)
	t.fn = fn
	t.name = name
	t.requiresContext = true
	return intern(fmt.Sprintf("v:%s:%s", fn, name), t)
}

// Extends records supertypes of a family. It returns the family.
func (t *Type) Extends(supers ...*Type) *Type {
	if !t.IsFamily() {
		panic(fmt.Sprintf("typeref: only families declare supertypes, got %v", t))
	}
	extendMu.Lock()
	defer extendMu.Unlock()

	var current []*Type
	if p := t.supers.Load(); p != nil {
		current = *p
	}
	next := append(append([]*Type(nil), current...), supers...)
	for _, s := range supers {
		if s == nil || (s.kind != Class && s.kind != Parameterized) {
			panic(fmt.Sprintf("typeref: invalid supertype %v", s))
		}
	}
	t.supers.Store(&next)
	return t
}

func (t *Type) identity() uint64 {
	if t == nil {
		return 0
	}
	return t.id
}

func (t *Type) Kind() Kind { return t.kind }

// Name is the family or variable name, or the reflected type name.
func (t *Type) Name() string {
	if t.rt != nil {
		return t.rt.Name()
	}
	return t.name
}

// PkgPath is the package of a family or of a reflected type.
func (t *Type) PkgPath() string {
	if t.rt != nil {
		return t.rt.PkgPath()
	}
	return t.pkg
}

// Reflect returns the Go type the node stands for, or nil when there is
// none (families, variables, wildcards, parameterizations never observed
// through Of).
func (t *Type) Reflect() reflect.Type {
	switch t.kind {
	case Class:
		return t.rt
	case Parameterized:
		if rt, ok := instances.Load(t); ok {
			return rt.(reflect.Type)
		}
	case Array:
		if rt, ok := instances.Load(t); ok {
			return rt.(reflect.Type)
		}
		if elem := t.elem.Reflect(); elem != nil {
			return reflect.SliceOf(elem)
		}
	}
	return nil
}

// Raw returns the erased form of the type.
func (t *Type) Raw() *Type {
	switch t.kind {
	case Parameterized:
		return t.raw
	case Array:
		if raw := t.elem.Raw(); raw != t.elem {
			return ArrayOf(raw)
		}
	case Wildcard:
		return t.upper.Raw()
	case Variable:
		return Any()
	}
	return t
}

// IsPureRawType reports whether the type is its own raw type.
func (t *Type) IsPureRawType() bool { return t.Raw() == t }

// IsFamily reports whether the node is a generic family.
func (t *Type) IsFamily() bool {
	return t != nil && t.kind == Class && t.rt == nil && len(t.params) > 0
}

// RequiresContext reports whether the type still contains type variables.
func (t *Type) RequiresContext() bool { return t != nil && t.requiresContext }

func (t *Type) Owner() *Type    { return t.owner }
func (t *Type) Elem() *Type     { return t.elem }
func (t *Type) Upper() *Type    { return t.upper }
func (t *Type) Lower() *Type    { return t.lower }
func (t *Type) Declarer() *Type { return t.declarer }
func (t *Type) Index() int      { return t.index }

// Args returns the type arguments of a parameterized type.
func (t *Type) Args() []*Type { return append([]*Type(nil), t.args...) }

// Params returns the type variables of a family.
func (t *Type) Params() []*Type { return append([]*Type(nil), t.params...) }

// Supertypes returns the declared supertypes of a family, or the embedded
// struct types of a struct (or pointer to struct) class. A parameterized
// type reports the unsubstituted supertypes of its raw family.
func (t *Type) Supertypes() []*Type {
	switch t.kind {
	case Parameterized:
		return t.raw.Supertypes()
	case Class:
		if t.rt == nil {
			if p := t.supers.Load(); p != nil {
				return append([]*Type(nil), (*p)...)
			}
			return nil
		}
		st := t.rt
		if st.Kind() == reflect.Pointer {
			st = st.Elem()
		}
		if st.Kind() != reflect.Struct {
			return nil
		}
		var supers []*Type
		for i := 0; i < st.NumField(); i++ {
			if f := st.Field(i); f.Anonymous && f.Type.Kind() == reflect.Struct {
				supers = append(supers, Of(f.Type))
			}
		}
		return supers
	}
	return nil
}

// Equal reports structural equality, which for interned nodes is identity.
func (t *Type) Equal(o *Type) bool { return t == o }

// Hash is stable for equal nodes.
func (t *Type) Hash() uint64 { return t.hash }

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.str
}

func (t *Type) format() string {
	switch t.kind {
	case Class:
		if t.rt != nil {
			return t.rt.String()
		}
		return t.name
	case Parameterized:
		var b strings.Builder
		if t.owner != nil {
			b.WriteString(t.owner.String())
			b.WriteByte('.')
		}
		b.WriteString(t.raw.name)
		b.WriteByte('[')
		for i, arg := range t.args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(arg.String())
		}
		b.WriteByte(']')
		return b.String()
	case Array:
		return "[]" + t.elem.String()
	case Wildcard:
		if t.lower != nil {
			return "? super " + t.lower.String()
		}
		if t.upper.rt == anyType {
			return "?"
		}
		return "? extends " + t.upper.String()
	case Variable:
		return t.name
	}
	return "?"
}
