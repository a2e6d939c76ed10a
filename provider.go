package trew

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

// Provider produces values of T. User providers bound with ToProvider or
// ToProviderType implement it.
type Provider[T any] interface {
	Get() (T, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc[T any] func() (T, error)

// Get calls f.
func (f ProviderFunc[T]) Get() (T, error) { return f() }

type providerKind uint8

const (
	kindInstance providerKind = iota
	kindLinked
	kindProviderType
	kindDelegating
	kindScoped
	kindGeneric
	kindSynthetic
	kindCollection
	kindMap
	kindMethod
	kindFactory
	kindProxiedFactory
)

var providerKindNames = [...]string{
	"instance", "linked", "provider-type", "delegating", "scoped", "generic",
	"synthetic", "collection", "map", "method", "factory", "proxied-factory",
}

func (k providerKind) String() string {
	if int(k) < len(providerKindNames) {
		return providerKindNames[k]
	}
	return fmt.Sprintf("provider(%d)", k)
}

// provider is the capability set shared by every binding kind.
//
// A provider is cheap to construct. Its dependencies are resolved in a
// separate injection phase that runs at most once; callers check
// isInjected before calling inject.
type provider interface {
	kind() providerKind
	get(s *ProvisionStack, match key.Key) any
	inject(s *ProvisionStack, inj *Injector)
	isInjected() bool
	// onBind runs before the provider is stored. Returning false means the
	// provider must not be stored under k.
	onBind(b *binder, k key.Key) bool
	withScope(match key.Key, sc Scope) (provider, error)
	// unwrap returns the unscoped form of the provider.
	unwrap() provider
	String() string
}

// baseProvider tracks the injection phase with double-checked locking. The
// stack running the phase is remembered so that a re-entrant call from the
// same resolution returns instead of deadlocking.
type baseProvider struct {
	mu    sync.Mutex
	done  atomic.Bool
	owner atomic.Pointer[ProvisionStack]
}

func (p *baseProvider) isInjected() bool { return p.done.Load() }

func (p *baseProvider) markInjected() { p.done.Store(true) }

func (p *baseProvider) onBind(*binder, key.Key) bool { return true }

func (p *baseProvider) runInjection(s *ProvisionStack, phase func()) {
	if p.done.Load() || (s != nil && p.owner.Load() == s) {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done.Load() {
		return
	}
	p.owner.Store(s)
	defer p.owner.Store(nil)

	phase()
	p.done.Store(true)
}

// instanceProvider returns a value created outside the container.
type instanceProvider struct {
	baseProvider
	value any
}

func newInstanceProvider(v any) *instanceProvider {
	p := &instanceProvider{value: v}
	p.markInjected()
	return p
}

func (p *instanceProvider) kind() providerKind                { return kindInstance }
func (p *instanceProvider) get(*ProvisionStack, key.Key) any  { return p.value }
func (p *instanceProvider) inject(*ProvisionStack, *Injector) {}
func (p *instanceProvider) unwrap() provider                  { return p }
func (p *instanceProvider) String() string                    { return fmt.Sprintf("instance(%T)", p.value) }

func (p *instanceProvider) withScope(_ key.Key, sc Scope) (provider, error) {
	if sc == nil || sc == NoScope || sc == Singleton {
		return p, nil
	}
	return nil, ErrInstanceScoped
}

// linkedProvider resolves another key. A link to itself bypasses explicit
// bindings so that it falls through to construction.
type linkedProvider struct {
	baseProvider
	key       key.Key
	target    key.Key
	autoBound bool
	injector  *Injector
}

func newLinkedProvider(k, target key.Key) *linkedProvider {
	return &linkedProvider{key: k, target: target, autoBound: k == target}
}

func (p *linkedProvider) kind() providerKind { return kindLinked }
func (p *linkedProvider) unwrap() provider   { return p }

func (p *linkedProvider) inject(s *ProvisionStack, inj *Injector) {
	p.runInjection(s, func() { p.injector = inj })
}

func (p *linkedProvider) get(s *ProvisionStack, _ key.Key) any {
	return p.injector.getInstance(s, p.target, !p.autoBound)
}

func (p *linkedProvider) withScope(match key.Key, sc Scope) (provider, error) {
	return scopeProvider(p, match, sc), nil
}

func (p *linkedProvider) String() string {
	if p.autoBound {
		return fmt.Sprintf("self-link(%s)", p.key)
	}
	return fmt.Sprintf("link(%s -> %s)", p.key, p.target)
}

// providerTypeProvider obtains a user provider from the container during
// its injection phase and delegates to it afterwards.
type providerTypeProvider struct {
	baseProvider
	key         key.Key
	providerKey key.Key
	delegate    func() (any, error)
}

func newProviderTypeProvider(k, providerKey key.Key) *providerTypeProvider {
	return &providerTypeProvider{key: k, providerKey: providerKey}
}

func (p *providerTypeProvider) kind() providerKind { return kindProviderType }
func (p *providerTypeProvider) unwrap() provider   { return p }

func (p *providerTypeProvider) inject(s *ProvisionStack, inj *Injector) {
	p.runInjection(s, func() {
		v := inj.getInstance(s, p.providerKey, true)
		if isAbsent(v) {
			s.attach(&KeyError{Key: p.key, Op: "obtain provider for", Err: fmt.Errorf("provider type %s produced no value", p.providerKey)})
			return
		}
		fn, err := providerFuncOf(v)
		if err != nil {
			s.attach(&KeyError{Key: p.key, Op: "obtain provider for", Err: err})
			return
		}
		p.delegate = fn
	})
}

func (p *providerTypeProvider) get(s *ProvisionStack, match key.Key) any {
	if p.delegate == nil {
		s.attach(&KeyError{Key: match, Op: "provide", Err: fmt.Errorf("provider type %s is unavailable", p.providerKey)})
		return nil
	}
	return callProvider(s, match, p.delegate)
}

func (p *providerTypeProvider) withScope(match key.Key, sc Scope) (provider, error) {
	return scopeProvider(p, match, sc), nil
}

func (p *providerTypeProvider) String() string {
	return fmt.Sprintf("provider-type(%s)", p.providerKey)
}

// delegatingProvider wraps a user provider value. When the value is a
// struct pointer its own members are injected during the injection phase.
type delegatingProvider struct {
	baseProvider
	source any
	fn     func() (any, error)
}

func newDelegatingProvider(source any, fn func() (any, error)) *delegatingProvider {
	return &delegatingProvider{source: source, fn: fn}
}

func (p *delegatingProvider) kind() providerKind { return kindDelegating }
func (p *delegatingProvider) unwrap() provider   { return p }

func (p *delegatingProvider) inject(s *ProvisionStack, inj *Injector) {
	p.runInjection(s, func() {
		if isStructPointer(p.source) {
			inj.injectMembers(s, key.Of(reflect.TypeOf(p.source)), p.source)
		}
	})
}

func (p *delegatingProvider) get(s *ProvisionStack, match key.Key) any {
	return callProvider(s, match, p.fn)
}

func (p *delegatingProvider) withScope(match key.Key, sc Scope) (provider, error) {
	return scopeProvider(p, match, sc), nil
}

func (p *delegatingProvider) String() string {
	return fmt.Sprintf("provider(%T)", p.source)
}

func callProvider(s *ProvisionStack, match key.Key, fn func() (any, error)) any {
	v, err := fn()
	if err != nil {
		s.attach(&ProvisionError{Key: match, Cause: err})
		return nil
	}
	if isAbsent(v) {
		return nil
	}
	return v
}

// providerFuncOf adapts any value with a Get() T or Get() (T, error)
// method.
func providerFuncOf(v any) (func() (any, error), error) {
	if p, ok := v.(Provider[any]); ok {
		return p.Get, nil
	}

	method := reflect.ValueOf(v).MethodByName("Get")
	if !method.IsValid() {
		return nil, fmt.Errorf("%T has no Get method", v)
	}
	mt := method.Type()
	if mt.NumIn() != 0 || mt.NumOut() < 1 || mt.NumOut() > 2 ||
		mt.Out(0) == errorType || (mt.NumOut() == 2 && mt.Out(1) != errorType) {
		return nil, fmt.Errorf("%T.Get must have the signature func() T or func() (T, error), got %v", v, mt)
	}

	return func() (any, error) {
		results := method.Call(nil)
		if len(results) == 2 && !results[1].IsNil() {
			return nil, results[1].Interface().(error)
		}
		return results[0].Interface(), nil
	}, nil
}

// isAbsent reports whether v stands for "no value": nil, or a nil pointer,
// interface, map, func or chan.
func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}

func isStructPointer(v any) bool {
	if v == nil {
		return false
	}
	rt := reflect.TypeOf(v)
	return rt.Kind() == reflect.Pointer && rt.Elem().Kind() == reflect.Struct && !reflect.ValueOf(v).IsNil()
}
