package trew

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

// Supplier produces a value in the course of one resolution.
type Supplier func(s *ProvisionStack) any

// Scope decides how long the values of a key live. Scope is called once per
// binding, when the binding is scoped, and returns the supplier used from
// then on.
//
// Example:
//
//	type requestScope struct{ values sync.Map }
//
//	func (r *requestScope) Scope(k key.Key, unscoped trew.Supplier) trew.Supplier {
//	    return func(s *trew.ProvisionStack) any {
//	        if v, ok := r.values.Load(k); ok {
//	            return v
//	        }
//	        v, _ := r.values.LoadOrStore(k, unscoped(s))
//	        return v
//	    }
//	}
type Scope interface {
	Scope(k key.Key, unscoped Supplier) Supplier
	String() string
}

type noScope struct{}

func (noScope) Scope(_ key.Key, unscoped Supplier) Supplier { return unscoped }
func (noScope) String() string                              { return "NoScope" }

// NoScope produces a new value on every request.
var NoScope Scope = noScope{}

// AsSingleton, embedded in a struct, makes the type a singleton when it is
// bound just in time.
//
//	type Clock struct {
//	    trew.AsSingleton
//	}
type AsSingleton struct{}

// Disposable is implemented by singletons that hold resources. Close calls
// Dispose on every created singleton, in reverse creation order.
//
// Example:
//
//	type DatabaseConnection struct{ conn *sql.DB }
//
//	func (d *DatabaseConnection) Dispose() error {
//	    return d.conn.Close()
//	}
type Disposable interface {
	Dispose() error
}

// sameScope compares scopes without panicking on uncomparable dynamic types.
func sameScope(a, b Scope) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

func isUnscoped(sc Scope) bool { return sc == nil || sc == NoScope }

// scopeProvider returns p in scope sc. NoScope leaves p unchanged.
func scopeProvider(p provider, match key.Key, sc Scope) provider {
	if isUnscoped(sc) {
		return p
	}
	return newScopedProvider(p, match, sc)
}

// scopedProvider routes an unscoped provider through a scope.
type scopedProvider struct {
	baseProvider
	unscoped provider
	scope    Scope
	scoped   Supplier
}

func newScopedProvider(unscoped provider, match key.Key, sc Scope) *scopedProvider {
	return &scopedProvider{
		unscoped: unscoped,
		scope:    sc,
		scoped: sc.Scope(match, func(s *ProvisionStack) any {
			return unscoped.get(s, match)
		}),
	}
}

func (p *scopedProvider) kind() providerKind { return kindScoped }
func (p *scopedProvider) unwrap() provider   { return p.unscoped }

func (p *scopedProvider) inject(s *ProvisionStack, inj *Injector) {
	p.runInjection(s, func() {
		if !p.unscoped.isInjected() {
			p.unscoped.inject(s, inj)
		}
		if isStructPointer(p.scope) {
			inj.injectMembers(s, key.Of(reflect.TypeOf(p.scope)), p.scope)
		}
	})
}

func (p *scopedProvider) get(s *ProvisionStack, _ key.Key) any {
	return p.scoped(s)
}

func (p *scopedProvider) withScope(_ key.Key, sc Scope) (provider, error) {
	if isUnscoped(sc) || sameScope(sc, p.scope) {
		return p, nil
	}
	return nil, ErrAlreadyScoped
}

func (p *scopedProvider) String() string {
	return fmt.Sprintf("%s in %s", p.unscoped, p.scope)
}

// scopeRegistry maps the marker types and names that select a scope.
type scopeRegistry struct {
	markers map[reflect.Type]Scope
	names   map[string]Scope
	scanned sync.Map // reflect.Type -> scanResult
}

type scanResult struct {
	scope Scope
	err   error
}

func newScopeRegistry() *scopeRegistry {
	return &scopeRegistry{
		markers: map[reflect.Type]Scope{reflect.TypeOf(AsSingleton{}): Singleton},
		names:   map[string]Scope{"singleton": Singleton},
	}
}

// scan returns the scope selected by the markers embedded in rt, or nil.
// Results are memoized per type.
func (r *scopeRegistry) scan(rt reflect.Type) (Scope, error) {
	if rt == nil {
		return nil, nil
	}
	if res, ok := r.scanned.Load(rt); ok {
		return res.(scanResult).scope, res.(scanResult).err
	}
	sc, err := r.scanMarkers(rt)
	r.scanned.Store(rt, scanResult{scope: sc, err: err})
	return sc, err
}

func (r *scopeRegistry) scanMarkers(rt reflect.Type) (Scope, error) {
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil, nil
	}

	var found Scope
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.Anonymous {
			continue
		}
		sc, ok := r.markers[field.Type]
		if !ok {
			continue
		}
		if found != nil && !sameScope(found, sc) {
			return nil, fmt.Errorf("%v embeds more than one scope marker", rt)
		}
		found = sc
	}
	return found, nil
}

// named returns the scope registered under name. Names are matched case
// insensitively.
func (r *scopeRegistry) named(name string) (Scope, bool) {
	sc, ok := r.names[strings.ToLower(name)]
	return sc, ok
}
