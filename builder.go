package trew

import (
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

// BindingBuilder binds one key. Every To* method stores the binding; the
// qualifier methods return a new builder for the qualified key.
//
// Example:
//
//	trew.Bind[Logger](b).To(key.For[*ConsoleLogger]()).Singleton()
//	trew.Bind[string](b).Named("greeting").ToInstance("hello")
type BindingBuilder[T any] struct {
	b   *binder
	key key.Key
}

// Bind starts a binding of the unqualified key of T.
func Bind[T any](b Binder) *BindingBuilder[T] {
	return &BindingBuilder[T]{b: b.impl(), key: key.For[T]()}
}

// BindTo links I to the implementation T.
func BindTo[I, T any](b Binder) ScopedBindingBuilder {
	return Bind[I](b).To(key.For[T]())
}

// Key returns the key being bound.
func (bb *BindingBuilder[T]) Key() key.Key { return bb.key }

// Named qualifies the key with a name.
func (bb *BindingBuilder[T]) Named(name string) *BindingBuilder[T] {
	return bb.Qualified(key.Named(name))
}

// MarkedWith qualifies the key with a marker. A zero struct value stands
// for its type; any other comparable value is compared by value.
func (bb *BindingBuilder[T]) MarkedWith(marker any) *BindingBuilder[T] {
	return bb.Qualified(key.Value(marker))
}

// Qualified qualifies the key with q.
func (bb *BindingBuilder[T]) Qualified(q key.Qualifier) *BindingBuilder[T] {
	return &BindingBuilder[T]{b: bb.b, key: bb.key.Qualified(q)}
}

// To links the key to target.
func (bb *BindingBuilder[T]) To(target key.Key) ScopedBindingBuilder {
	if err := assignable(target.Reflect(), bb.key.Reflect()); err != nil {
		bb.b.attach(&KeyError{Key: bb.key, Op: fmt.Sprintf("link %s to", target), Err: err})
		return bb.scoped()
	}
	return bb.bound(newLinkedProvider(bb.key, target))
}

// ToType links the key to the unqualified key of rt.
func (bb *BindingBuilder[T]) ToType(rt reflect.Type) ScopedBindingBuilder {
	return bb.To(key.Of(rt))
}

// ToInstance binds the key to v. The members of a struct pointer are
// injected once the injector is created.
func (bb *BindingBuilder[T]) ToInstance(v T) {
	if isAbsent(v) {
		bb.b.attach(&KeyError{Key: bb.key, Op: "bind", Err: ErrNilInstance})
		return
	}
	if err := assignable(reflect.TypeOf(v), bb.key.Reflect()); err != nil {
		bb.b.attach(&KeyError{Key: bb.key, Op: "bind instance to", Err: err})
		return
	}
	if bb.b.bind(bb.key, newInstanceProvider(v)) {
		bb.b.addPending(v)
	}
}

// ToProvider binds the key to p. A struct pointer provider has its own
// members injected before its first use.
func (bb *BindingBuilder[T]) ToProvider(p Provider[T]) ScopedBindingBuilder {
	if p == nil {
		bb.b.attach(&KeyError{Key: bb.key, Op: "bind", Err: ErrNilInstance})
		return bb.scoped()
	}
	return bb.bound(newDelegatingProvider(p, func() (any, error) {
		v, err := p.Get()
		return v, err
	}))
}

// ToProviderFunc binds the key to fn.
func (bb *BindingBuilder[T]) ToProviderFunc(fn func() (T, error)) ScopedBindingBuilder {
	if fn == nil {
		bb.b.attach(&KeyError{Key: bb.key, Op: "bind", Err: ErrNilInstance})
		return bb.scoped()
	}
	return bb.ToProvider(ProviderFunc[T](fn))
}

// ToProviderType binds the key to a provider obtained from the injector.
// The provider type must have a Get() X or Get() (X, error) method.
func (bb *BindingBuilder[T]) ToProviderType(rt reflect.Type) ScopedBindingBuilder {
	return bb.bound(newProviderTypeProvider(bb.key, key.Of(rt)))
}

// ToGenericProvider binds a raw generic key to gp, which then serves every
// parameterization of it.
func (bb *BindingBuilder[T]) ToGenericProvider(gp GenericProvider) ScopedBindingBuilder {
	if gp == nil {
		bb.b.attach(&KeyError{Key: bb.key, Op: "bind", Err: ErrNilInstance})
		return bb.scoped()
	}
	return bb.bound(newGenericProvider(gp, nil))
}

// ToFactory binds the func type factory as an assisted factory of the key.
// paramTags qualify the factory parameters, in order.
//
//	type PaymentFactory func(amount int) *Payment
//	trew.Bind[*Payment](b).ToFactory(reflect.TypeOf(PaymentFactory(nil)))
func (bb *BindingBuilder[T]) ToFactory(factory reflect.Type, paramTags ...string) {
	bb.b.bind(bb.key, newFactoryProvider(bb.key, factory, paramTags))
}

// In scopes the binding. An unbound key is bound to itself first.
func (bb *BindingBuilder[T]) In(sc Scope) {
	bb.scoped().In(sc)
}

// Singleton is In(Singleton).
func (bb *BindingBuilder[T]) Singleton() {
	bb.In(Singleton)
}

// bound stores p under the key. A rejected binding leaves nothing to scope.
func (bb *BindingBuilder[T]) bound(p provider) ScopedBindingBuilder {
	if !bb.b.bind(bb.key, p) {
		return ScopedBindingBuilder{b: bb.b}
	}
	return bb.scoped()
}

func (bb *BindingBuilder[T]) scoped() ScopedBindingBuilder {
	b, k := bb.b, bb.key
	return ScopedBindingBuilder{b: b, apply: func(sc Scope) error { return b.scope(k, sc) }}
}

// ScopedBindingBuilder scopes a binding that was just stored.
type ScopedBindingBuilder struct {
	b     *binder
	apply func(Scope) error
}

// In scopes the binding.
func (s ScopedBindingBuilder) In(sc Scope) {
	if s.apply == nil {
		return
	}
	if err := s.apply(sc); err != nil {
		s.b.attach(err)
	}
}

// Singleton is In(Singleton).
func (s ScopedBindingBuilder) Singleton() {
	s.In(Singleton)
}

// assignable checks that values of from can be stored as to. Unknown Go
// types are not checked.
func assignable(from, to reflect.Type) error {
	if from == nil || to == nil || from.AssignableTo(to) {
		return nil
	}
	return fmt.Errorf("%w: %v to %v", ErrTypeMismatch, from, to)
}

// valueOf converts a produced value for assignment to rt. Absent values
// become the zero value of rt.
func valueOf(v any, rt reflect.Type) (reflect.Value, error) {
	if isAbsent(v) {
		return reflect.Zero(rt), nil
	}
	rv := reflect.ValueOf(v)
	if err := assignable(rv.Type(), rt); err != nil {
		return reflect.Value{}, err
	}
	return rv, nil
}
