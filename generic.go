package trew

import (
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
	"github.com/toutaio/toutago-trew-dependency-injector/typeref"
)

// GenericProvider produces values for every parameterization of a raw
// generic key. match is the fully resolved key being requested.
type GenericProvider interface {
	Get(match key.Key) (any, error)
}

// GenericProviderFunc adapts a function to GenericProvider.
type GenericProviderFunc func(match key.Key) (any, error)

// Get calls f.
func (f GenericProviderFunc) Get(match key.Key) (any, error) { return f(match) }

// genericProvider is bound under a raw key. It never serves the raw key
// itself, only synthetic providers for its parameterizations.
type genericProvider struct {
	baseProvider
	delegate GenericProvider
	scope    Scope
}

func newGenericProvider(delegate GenericProvider, sc Scope) *genericProvider {
	return &genericProvider{delegate: delegate, scope: sc}
}

func (p *genericProvider) kind() providerKind { return kindGeneric }
func (p *genericProvider) unwrap() provider   { return p }

func (p *genericProvider) onBind(b *binder, k key.Key) bool {
	if !k.IsPureRawType() {
		b.attach(&KeyError{Key: k, Op: "bind generic provider to", Err: ErrRawGenericKey})
		return false
	}
	return true
}

func (p *genericProvider) inject(s *ProvisionStack, inj *Injector) {
	p.runInjection(s, func() {
		if isStructPointer(p.delegate) {
			inj.injectMembers(s, key.Of(reflect.TypeOf(p.delegate)), p.delegate)
		}
	})
}

func (p *genericProvider) get(_ *ProvisionStack, match key.Key) any {
	panic(fmt.Sprintf("trew: %s cannot provide its raw key %s", p, match))
}

func (p *genericProvider) withScope(match key.Key, sc Scope) (provider, error) {
	if !match.IsPureRawType() {
		if isUnscoped(sc) {
			sc = p.scope
		}
		return newSyntheticProvider(p.delegate, match, sc), nil
	}
	if isUnscoped(sc) || sameScope(sc, p.scope) {
		return p, nil
	}
	if !isUnscoped(p.scope) {
		return nil, ErrAlreadyScoped
	}
	scoped := newGenericProvider(p.delegate, sc)
	if p.isInjected() {
		scoped.markInjected()
	}
	return scoped, nil
}

// synthesize returns the provider of one parameterization.
func (p *genericProvider) synthesize(match key.Key) provider {
	return newSyntheticProvider(p.delegate, match, p.scope)
}

func (p *genericProvider) String() string {
	return fmt.Sprintf("generic(%T)", p.delegate)
}

// syntheticProvider serves one parameterization of a generic provider.
type syntheticProvider struct {
	baseProvider
	delegate GenericProvider
	key      key.Key
	scope    Scope
	scoped   Supplier
}

func newSyntheticProvider(delegate GenericProvider, match key.Key, sc Scope) *syntheticProvider {
	if sc == nil {
		sc = NoScope
	}
	p := &syntheticProvider{delegate: delegate, key: match, scope: sc}
	p.scoped = sc.Scope(match, func(s *ProvisionStack) any {
		return callProvider(s, match, func() (any, error) { return delegate.Get(match) })
	})
	p.markInjected()
	return p
}

func (p *syntheticProvider) kind() providerKind                { return kindSynthetic }
func (p *syntheticProvider) unwrap() provider                  { return p }
func (p *syntheticProvider) inject(*ProvisionStack, *Injector) {}

func (p *syntheticProvider) get(s *ProvisionStack, _ key.Key) any {
	return p.scoped(s)
}

func (p *syntheticProvider) withScope(_ key.Key, sc Scope) (provider, error) {
	if isUnscoped(sc) || sameScope(sc, p.scope) {
		return p, nil
	}
	if !isUnscoped(p.scope) {
		return nil, ErrAlreadyScoped
	}
	return newSyntheticProvider(p.delegate, p.key, sc), nil
}

func (p *syntheticProvider) String() string {
	return fmt.Sprintf("synthetic(%s) from generic(%T)", p.key, p.delegate)
}

// TypeLiteral is an injectable value that carries the type reference of T.
//
//	type Repository[T any] struct {
//	    Entity trew.TypeLiteral[T] `inject:""`
//	}
type TypeLiteral[T any] struct{}

// TypeArguments implements typeref.Parameterizable.
func (TypeLiteral[T]) TypeArguments() []reflect.Type {
	return []reflect.Type{reflect.TypeOf((*T)(nil)).Elem()}
}

// Type returns the type reference of T.
func (TypeLiteral[T]) Type() *typeref.Type {
	return typeref.Of(reflect.TypeOf((*T)(nil)).Elem())
}

func (l TypeLiteral[T]) String() string {
	return fmt.Sprintf("TypeLiteral[%s]", l.Type())
}

// typeLiteralKey is the raw key served by the default generic provider.
var typeLiteralKey = key.Of(reflect.TypeOf(TypeLiteral[any]{})).Raw()

// typeLiteralProvider returns the zero TypeLiteral of the requested
// parameterization, which already knows its type argument.
type typeLiteralProvider struct{}

func (typeLiteralProvider) Get(match key.Key) (any, error) {
	rt := match.Reflect()
	if rt == nil {
		return nil, fmt.Errorf("no Go type is known for %s", match)
	}
	return reflect.Zero(rt).Interface(), nil
}
