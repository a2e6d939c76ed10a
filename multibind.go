package trew

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
	"github.com/toutaio/toutago-trew-dependency-injector/typeref"
)

// elementID qualifies the key of one multibinding contribution.
type elementID struct {
	Aggregate string
	Index     int
}

func (e elementID) String() string {
	return fmt.Sprintf("@Element(%s #%d)", e.Aggregate, e.Index)
}

type element struct {
	key      key.Key
	provider provider
	mapKey   reflect.Value
}

// elementList holds the contributions of a multibinding in order.
type elementList struct {
	mu       sync.RWMutex
	owner    key.Key
	elemType reflect.Type
	elements []element
}

func (l *elementList) add(mapKey reflect.Value, build func(elemKey key.Key) provider) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := len(l.elements)
	elemKey := key.New(typeref.Of(l.elemType), key.Value(elementID{Aggregate: l.owner.String(), Index: i}))
	l.elements = append(l.elements, element{key: elemKey, provider: build(elemKey), mapKey: mapKey})
	return i
}

func (l *elementList) scopeElement(i int, sc Scope) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := &l.elements[i]
	scoped, err := e.provider.withScope(e.key, sc)
	if err != nil {
		return &KeyError{Key: e.key, Op: fmt.Sprintf("scope %s in", sc), Err: err}
	}
	e.provider = scoped
	return nil
}

func (l *elementList) snapshot() []element {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]element(nil), l.elements...)
}

func (l *elementList) injectElements(s *ProvisionStack, inj *Injector) {
	for _, e := range l.snapshot() {
		if !e.provider.isInjected() {
			e.provider.inject(s, inj)
		}
	}
}

// value returns the element value ready to be stored, or false after
// attaching an error.
func (l *elementList) value(s *ProvisionStack, e element) (reflect.Value, bool) {
	rv, err := valueOf(e.provider.get(s, e.key), l.elemType)
	if err != nil {
		s.attach(&KeyError{Key: e.key, Op: "collect", Err: err})
		return reflect.Value{}, false
	}
	return rv, true
}

// collectionProvider builds a fresh []E or map[E]struct{} on every get.
type collectionProvider struct {
	baseProvider
	elementList
	rt  reflect.Type
	set bool
}

func newCollectionProvider(k key.Key, rt reflect.Type, set bool) *collectionProvider {
	p := &collectionProvider{rt: rt, set: set}
	p.elementList.owner = k
	p.elemType = rt.Elem()
	if set {
		p.elemType = rt.Key()
	}
	return p
}

func (p *collectionProvider) kind() providerKind { return kindCollection }
func (p *collectionProvider) unwrap() provider   { return p }

func (p *collectionProvider) inject(s *ProvisionStack, inj *Injector) {
	p.runInjection(s, func() { p.injectElements(s, inj) })
}

func (p *collectionProvider) get(s *ProvisionStack, _ key.Key) any {
	elements := p.snapshot()
	if p.set {
		out := reflect.MakeMapWithSize(p.rt, len(elements))
		present := reflect.ValueOf(struct{}{})
		for _, e := range elements {
			if rv, ok := p.value(s, e); ok {
				out.SetMapIndex(rv, present)
			}
		}
		return out.Interface()
	}

	out := reflect.MakeSlice(p.rt, 0, len(elements))
	for _, e := range elements {
		if rv, ok := p.value(s, e); ok {
			out = reflect.Append(out, rv)
		}
	}
	return out.Interface()
}

func (p *collectionProvider) withScope(match key.Key, sc Scope) (provider, error) {
	return scopeProvider(p, match, sc), nil
}

func (p *collectionProvider) String() string {
	kind := "slice"
	if p.set {
		kind = "set"
	}
	return fmt.Sprintf("multibinding(%s of %d %v)", kind, len(p.snapshot()), p.elemType)
}

// mapProvider builds a fresh map[K]V on every get. Later contributions win
// over earlier ones with the same map key.
type mapProvider struct {
	baseProvider
	elementList
	rt reflect.Type
}

func newMapProvider(k key.Key, rt reflect.Type) *mapProvider {
	p := &mapProvider{rt: rt}
	p.elementList.owner = k
	p.elemType = rt.Elem()
	return p
}

func (p *mapProvider) kind() providerKind { return kindMap }
func (p *mapProvider) unwrap() provider   { return p }

func (p *mapProvider) inject(s *ProvisionStack, inj *Injector) {
	p.runInjection(s, func() { p.injectElements(s, inj) })
}

func (p *mapProvider) get(s *ProvisionStack, _ key.Key) any {
	elements := p.snapshot()
	out := reflect.MakeMapWithSize(p.rt, len(elements))
	for _, e := range elements {
		if rv, ok := p.value(s, e); ok {
			out.SetMapIndex(e.mapKey, rv)
		}
	}
	return out.Interface()
}

func (p *mapProvider) withScope(match key.Key, sc Scope) (provider, error) {
	return scopeProvider(p, match, sc), nil
}

func (p *mapProvider) String() string {
	return fmt.Sprintf("multibinding(map of %d %v)", len(p.snapshot()), p.rt)
}

// aggregate returns the element list of the multibinding at k, creating it
// when k is unbound. It returns nil after attaching ErrNotMultibinding when
// k holds another kind of binding.
func (b *binder) aggregate(k key.Key, create func() provider, want providerKind) *elementList {
	checkKey(k)

	var list *elementList
	b.table.Update(k, func(current provider, exists bool) provider {
		if !exists {
			current = create()
		}
		agg := current.unwrap()
		switch {
		case agg.kind() != want:
		case want == kindMap:
			list = &agg.(*mapProvider).elementList
		default:
			list = &agg.(*collectionProvider).elementList
		}
		return current
	})

	if list == nil {
		b.attach(&KeyError{Key: k, Op: "multibind", Err: ErrNotMultibinding})
	}
	return list
}

// contribute adds one element built by build and returns its scope
// builder.
func (b *binder) contribute(list *elementList, mapKey reflect.Value, build func(elemKey key.Key) provider) ScopedBindingBuilder {
	if list == nil {
		return ScopedBindingBuilder{b: b}
	}
	i := list.add(mapKey, build)
	return ScopedBindingBuilder{b: b, apply: func(sc Scope) error { return list.scopeElement(i, sc) }}
}

// MultiBindingBuilder starts contributions to the multibinding of the
// elements E.
//
// Example:
//
//	trew.MultiBind[Plugin](b).AsSlice().To(key.For[*AuthPlugin]())
//	trew.MultiBind[Plugin](b).AsSlice().ToInstance(&CachePlugin{})
//
//	plugins, _ := trew.Get[[]Plugin](inj)
type MultiBindingBuilder[E any] struct {
	b         *binder
	elem      reflect.Type
	qualifier key.Qualifier
}

// MultiBind starts a contribution to the multibinding of E.
func MultiBind[E any](b Binder) *MultiBindingBuilder[E] {
	return &MultiBindingBuilder[E]{b: b.impl(), elem: reflect.TypeOf((*E)(nil)).Elem(), qualifier: key.None}
}

// Named qualifies the aggregate key with a name.
func (m *MultiBindingBuilder[E]) Named(name string) *MultiBindingBuilder[E] {
	return m.Qualified(key.Named(name))
}

// MarkedWith qualifies the aggregate key with a marker.
func (m *MultiBindingBuilder[E]) MarkedWith(marker any) *MultiBindingBuilder[E] {
	return m.Qualified(key.Value(marker))
}

// Qualified qualifies the aggregate key with q.
func (m *MultiBindingBuilder[E]) Qualified(q key.Qualifier) *MultiBindingBuilder[E] {
	return &MultiBindingBuilder[E]{b: m.b, elem: m.elem, qualifier: q}
}

// AsSlice contributes to the []E multibinding.
func (m *MultiBindingBuilder[E]) AsSlice() *CollectionBuilder[E] {
	if m.elem == nil {
		return &CollectionBuilder[E]{b: m.b}
	}
	rt := reflect.SliceOf(m.elem)
	k := key.New(typeref.Of(rt), m.qualifier)
	list := m.b.aggregate(k, func() provider { return newCollectionProvider(k, rt, false) }, kindCollection)
	return &CollectionBuilder[E]{b: m.b, key: k, list: list}
}

// AsSet contributes to the map[E]struct{} multibinding. E must be
// comparable.
func (m *MultiBindingBuilder[E]) AsSet() *CollectionBuilder[E] {
	if m.elem == nil {
		return &CollectionBuilder[E]{b: m.b}
	}
	if !m.elem.Comparable() {
		m.b.attach(fmt.Errorf("trew: cannot multibind a set of %v: the type is not comparable", m.elem))
		return &CollectionBuilder[E]{b: m.b}
	}
	rt := reflect.MapOf(m.elem, reflect.TypeOf(struct{}{}))
	k := key.New(typeref.Of(rt), m.qualifier)
	list := m.b.aggregate(k, func() provider { return newCollectionProvider(k, rt, true) }, kindCollection)
	return &CollectionBuilder[E]{b: m.b, key: k, list: list}
}

// CollectionBuilder adds elements to a slice or set multibinding.
type CollectionBuilder[E any] struct {
	b    *binder
	key  key.Key
	list *elementList
}

// Key returns the aggregate key.
func (c *CollectionBuilder[E]) Key() key.Key { return c.key }

// To contributes the value of target.
func (c *CollectionBuilder[E]) To(target key.Key) ScopedBindingBuilder {
	return contributeLink(c.b, c.list, reflect.Value{}, target)
}

// ToType contributes the value of the unqualified key of rt.
func (c *CollectionBuilder[E]) ToType(rt reflect.Type) ScopedBindingBuilder {
	return c.To(key.Of(rt))
}

// ToInstance contributes v.
func (c *CollectionBuilder[E]) ToInstance(v E) ScopedBindingBuilder {
	return contributeInstance(c.b, c.list, reflect.Value{}, v)
}

// ToProvider contributes the values of p.
func (c *CollectionBuilder[E]) ToProvider(p Provider[E]) ScopedBindingBuilder {
	return contributeProvider(c.b, c.list, reflect.Value{}, p)
}

// ToProviderFunc contributes the values of fn.
func (c *CollectionBuilder[E]) ToProviderFunc(fn func() (E, error)) ScopedBindingBuilder {
	return c.ToProvider(ProviderFunc[E](fn))
}

// MapBuilder adds entries to a map[K]V multibinding.
//
//	trew.MultiBindMap[string, Handler](b).Bind("users").ToInstance(usersHandler)
type MapBuilder[K comparable, V any] struct {
	b         *binder
	qualifier key.Qualifier
}

// MultiBindMap starts a contribution to the map[K]V multibinding.
func MultiBindMap[K comparable, V any](b Binder) *MapBuilder[K, V] {
	return &MapBuilder[K, V]{b: b.impl(), qualifier: key.None}
}

// Named qualifies the aggregate key with a name.
func (m *MapBuilder[K, V]) Named(name string) *MapBuilder[K, V] {
	return &MapBuilder[K, V]{b: m.b, qualifier: key.Named(name)}
}

// Qualified qualifies the aggregate key with q.
func (m *MapBuilder[K, V]) Qualified(q key.Qualifier) *MapBuilder[K, V] {
	return &MapBuilder[K, V]{b: m.b, qualifier: q}
}

// Key returns the aggregate key.
func (m *MapBuilder[K, V]) Key() key.Key {
	return key.New(typeref.Of(reflect.TypeOf((map[K]V)(nil))), m.qualifier)
}

// Bind starts the entry of mapKey.
func (m *MapBuilder[K, V]) Bind(mapKey K) *MapEntryBuilder[V] {
	k := m.Key()
	rt := k.Reflect()
	list := m.b.aggregate(k, func() provider { return newMapProvider(k, rt) }, kindMap)
	return &MapEntryBuilder[V]{b: m.b, list: list, mapKey: reflect.ValueOf(&mapKey).Elem()}
}

// MapEntryBuilder binds the value of one map entry.
type MapEntryBuilder[V any] struct {
	b      *binder
	list   *elementList
	mapKey reflect.Value
}

// To binds the entry to the value of target.
func (e *MapEntryBuilder[V]) To(target key.Key) ScopedBindingBuilder {
	return contributeLink(e.b, e.list, e.mapKey, target)
}

// ToInstance binds the entry to v.
func (e *MapEntryBuilder[V]) ToInstance(v V) ScopedBindingBuilder {
	return contributeInstance(e.b, e.list, e.mapKey, v)
}

// ToProvider binds the entry to the values of p.
func (e *MapEntryBuilder[V]) ToProvider(p Provider[V]) ScopedBindingBuilder {
	return contributeProvider(e.b, e.list, e.mapKey, p)
}

// ToProviderFunc binds the entry to the values of fn.
func (e *MapEntryBuilder[V]) ToProviderFunc(fn func() (V, error)) ScopedBindingBuilder {
	return e.ToProvider(ProviderFunc[V](fn))
}

func contributeLink(b *binder, list *elementList, mapKey reflect.Value, target key.Key) ScopedBindingBuilder {
	if list != nil {
		if err := assignable(target.Reflect(), list.elemType); err != nil {
			b.attach(&KeyError{Key: list.owner, Op: fmt.Sprintf("contribute %s to", target), Err: err})
			return ScopedBindingBuilder{b: b}
		}
	}
	return b.contribute(list, mapKey, func(elemKey key.Key) provider {
		return newLinkedProvider(elemKey, target)
	})
}

func contributeInstance(b *binder, list *elementList, mapKey reflect.Value, v any) ScopedBindingBuilder {
	if isAbsent(v) {
		if list != nil {
			b.attach(&KeyError{Key: list.owner, Op: "contribute to", Err: ErrNilInstance})
		}
		return ScopedBindingBuilder{b: b}
	}
	if list != nil {
		if err := assignable(reflect.TypeOf(v), list.elemType); err != nil {
			b.attach(&KeyError{Key: list.owner, Op: "contribute instance to", Err: err})
			return ScopedBindingBuilder{b: b}
		}
	}
	b.addPending(v)
	return b.contribute(list, mapKey, func(key.Key) provider {
		return newInstanceProvider(v)
	})
}

func contributeProvider[T any](b *binder, list *elementList, mapKey reflect.Value, p Provider[T]) ScopedBindingBuilder {
	if p == nil {
		if list != nil {
			b.attach(&KeyError{Key: list.owner, Op: "contribute to", Err: ErrNilInstance})
		}
		return ScopedBindingBuilder{b: b}
	}
	return b.contribute(list, mapKey, func(key.Key) provider {
		return newDelegatingProvider(p, func() (any, error) {
			v, err := p.Get()
			return v, err
		})
	})
}
