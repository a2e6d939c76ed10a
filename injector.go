package trew

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
	"github.com/toutaio/toutago-trew-dependency-injector/registry"
)

var injectorKey = key.For[*Injector]()

// Injector resolves object graphs from the bindings of its modules. It is
// safe for concurrent use; every root call owns its own ProvisionStack.
type Injector struct {
	id      uuid.UUID
	log     *zap.Logger
	metrics *metrics

	binder  *binder
	table   *registry.Table[key.Key, provider]
	members *memberResolver
	scopes  *scopeRegistry
	modules []Module

	mu          sync.Mutex
	disposables []trackedSingleton
	closed      atomic.Bool
}

type trackedSingleton struct {
	key   key.Key
	value Disposable
}

// New creates an injector, installs its modules, injects the members of
// instance bindings and boots the Bootable modules. Configuration errors
// are returned together as a *BindingError.
//
// Example:
//
//	inj, err := trew.New(
//	    trew.WithModules(AppModule{}),
//	    trew.WithLogger(logger),
//	)
func New(opts ...Option) (*Injector, error) {
	inj := &Injector{
		id:      uuid.New(),
		log:     zap.NewNop(),
		members: newMemberResolver(),
		scopes:  newScopeRegistry(),
	}

	for _, opt := range opts {
		if err := opt(inj); err != nil {
			return nil, fmt.Errorf("trew: option: %w", err)
		}
	}
	inj.log = inj.log.With(zap.String("injector", inj.id.String()))

	inj.binder = newBinder(inj)
	inj.table = inj.binder.table
	inj.binder.Install(inj.modules...)

	if err := inj.binder.ReportAttachedErrors(); err != nil {
		inj.metrics.attachedErrors(len(inj.binder.errors()))
		return nil, err
	}

	var pendingErrs []error
	for _, v := range inj.binder.pending {
		if err := inj.InjectMembers(v); err != nil {
			pendingErrs = append(pendingErrs, err)
		}
	}
	if len(pendingErrs) > 0 {
		return nil, &BindingError{Errors: pendingErrs}
	}

	var bootErr error
	for _, boot := range inj.binder.bootables {
		bootErr = multierr.Append(bootErr, boot.Boot(inj))
	}
	if bootErr != nil {
		return nil, fmt.Errorf("trew: boot: %w", bootErr)
	}

	generic := inj.table.Select(func(_ key.Key, p provider) bool { return p.kind() == kindGeneric })
	inj.log.Debug("injector created",
		zap.Int("bindings", inj.table.Len()),
		zap.Int("generic_providers", len(generic)),
	)
	return inj, nil
}

// MustNew is like New but panics on error.
func MustNew(opts ...Option) *Injector {
	inj, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return inj
}

// ID returns the identity of the injector, also used as the "injector"
// log field and metric label.
func (inj *Injector) ID() uuid.UUID { return inj.id }

// Keys returns the bound keys in binding order, including the bindings
// created just in time.
func (inj *Injector) Keys() []key.Key { return inj.table.Keys() }

// GetInstance resolves k. A binding that legitimately produces no value
// returns nil without error.
func (inj *Injector) GetInstance(k key.Key) (any, error) {
	if inj.closed.Load() {
		return nil, ErrClosed
	}

	s := newProvisionStack(inj)
	v := inj.getInstance(s, k, true)
	if err := inj.finish(s, k.String()); err != nil {
		return nil, err
	}
	if isAbsent(v) {
		return nil, nil
	}
	return v, nil
}

// Get resolves the unqualified key of T.
//
//	svc, err := trew.Get[*UserService](inj)
func Get[T any](inj *Injector) (T, error) {
	return getAs[T](inj, key.For[T]())
}

// GetNamed resolves T qualified with name.
func GetNamed[T any](inj *Injector, name string) (T, error) {
	return getAs[T](inj, key.For[T]().Named(name))
}

// GetQualified resolves T qualified with q.
func GetQualified[T any](inj *Injector, q key.Qualifier) (T, error) {
	return getAs[T](inj, key.For[T]().Qualified(q))
}

// MustGet is like Get but panics on error.
func MustGet[T any](inj *Injector) T {
	v, err := Get[T](inj)
	if err != nil {
		panic(err)
	}
	return v
}

func getAs[T any](inj *Injector, k key.Key) (T, error) {
	var zero T
	v, err := inj.GetInstance(k)
	if err != nil || v == nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &KeyError{Key: k, Op: "get", Err: fmt.Errorf("%w: got %T", ErrTypeMismatch, v)}
	}
	return t, nil
}

// GetProvider returns a provider of k, or nil when k has no explicit
// binding.
func (inj *Injector) GetProvider(k key.Key) Provider[any] {
	if !inj.isBound(k) {
		return nil
	}
	return ProviderFunc[any](func() (any, error) { return inj.GetInstance(k) })
}

// ProviderOf returns a provider of T, or nil when T has no explicit binding.
func ProviderOf[T any](inj *Injector) Provider[T] {
	if !inj.isBound(key.For[T]()) {
		return nil
	}
	return ProviderFunc[T](func() (T, error) { return Get[T](inj) })
}

func (inj *Injector) isBound(k key.Key) bool {
	if inj.table.Has(k) {
		return true
	}
	if k.IsZero() || k.IsPureRawType() {
		return false
	}
	raw, ok := inj.table.Lookup(k.Raw())
	return ok && raw.kind() == kindGeneric
}

// InjectMembers injects the fields and methods of an existing struct
// pointer.
func (inj *Injector) InjectMembers(ptr any) error {
	if !isStructPointer(ptr) {
		return fmt.Errorf("trew: InjectMembers requires a non-nil struct pointer, got %T", ptr)
	}
	if inj.closed.Load() {
		return ErrClosed
	}

	s := newProvisionStack(inj)
	k := key.Of(reflect.TypeOf(ptr))
	inj.injectMembers(s, k, ptr)
	return inj.finish(s, k.String())
}

// Close disposes the created singletons that implement Disposable, in
// reverse creation order. Later calls do nothing.
func (inj *Injector) Close() error {
	if !inj.closed.CompareAndSwap(false, true) {
		return nil
	}

	inj.mu.Lock()
	tracked := inj.disposables
	inj.disposables = nil
	inj.mu.Unlock()

	var err error
	for i := len(tracked) - 1; i >= 0; i-- {
		t := tracked[i]
		if disposeErr := t.value.Dispose(); disposeErr != nil {
			err = multierr.Append(err, fmt.Errorf("dispose %s: %w", t.key, disposeErr))
			continue
		}
		inj.log.Debug("singleton disposed", zap.Stringer("key", t.key))
	}
	return err
}

// track remembers a created singleton for Close.
func (inj *Injector) track(k key.Key, v any) {
	d, ok := v.(Disposable)
	if !ok {
		return
	}
	inj.mu.Lock()
	defer inj.mu.Unlock()

	inj.disposables = append(inj.disposables, trackedSingleton{key: k, value: d})
}

// finish closes a root resolution.
func (inj *Injector) finish(s *ProvisionStack, what string) error {
	if !s.hasErrors() {
		inj.metrics.resolved(true)
		return nil
	}

	errs := s.errors()
	inj.metrics.resolved(false)
	inj.metrics.attachedErrors(len(errs))
	inj.log.Debug("resolution failed", zap.String("root", what), zap.Int("errors", len(errs)))
	return &InjectionError{Errors: errs}
}

// getValue resolves an injection point. The errors raised while resolving
// an optional point are dropped; a partly built value is kept.
func (inj *Injector) getValue(s *ProvisionStack, ik key.Injected) any {
	snapshot := s.snapshot()
	v := inj.getInstance(s, ik.Key, true)
	if ik.Optional {
		s.rollback(snapshot)
	}
	return v
}

// getInstance is the resolution loop. useExplicit is false for self-links,
// which must construct instead of looking themselves up again.
func (inj *Injector) getInstance(s *ProvisionStack, k key.Key, useExplicit bool) any {
	checkKey(k)

	if k == injectorKey {
		return inj
	}
	if s.Has(k) {
		return s.Get(k)
	}
	if path, ok := k.Qualifier().PropertyPath(); ok {
		return inj.property(s, k, path)
	}

	if useExplicit {
		inj.bindJustInTime(s, k)
		if p := inj.providerFor(s, k); p != nil {
			if !p.isInjected() {
				p.inject(s, inj)
			}
			return p.get(s, k)
		}
	}
	return inj.constructKey(s, k)
}

// bindJustInTime binds an unbound key from the declarations of its type:
// ImplementedBy, ProvidedBy, or an embedded scope marker.
func (inj *Injector) bindJustInTime(s *ProvisionStack, k key.Key) {
	if inj.table.Has(k) {
		return
	}
	rt := k.Unqualified().Reflect()
	if rt == nil {
		return
	}

	var (
		p    provider
		kind string
	)
	if impl, ok := implementationOf(rt); ok {
		p, kind = newLinkedProvider(k, key.Of(impl)), "implemented-by"
	} else if prov, ok := providerTypeOf(rt); ok {
		p, kind = newProviderTypeProvider(k, key.Of(prov)), "provided-by"
	} else if rt.Kind() != reflect.Interface {
		sc, err := inj.scopes.scan(rt)
		if err != nil {
			s.attach(&KeyError{Key: k, Op: "scope", Err: err})
			return
		}
		if sc == nil {
			return
		}
		p, kind = newScopedProvider(newLinkedProvider(k, k), k, sc), "scoped"
	} else {
		return
	}

	if _, stored := inj.table.PutIfAbsent(k, p); stored {
		inj.metrics.jitBinding(kind)
		inj.log.Debug("just-in-time binding", zap.Stringer("key", k), zap.String("kind", kind))
	}
}

// providerFor returns the provider bound to k. A parameterized key without
// a binding of its own is served by the generic provider of its raw key.
func (inj *Injector) providerFor(s *ProvisionStack, k key.Key) provider {
	if p, ok := inj.table.Lookup(k); ok {
		return p
	}
	if k.IsPureRawType() {
		return nil
	}

	raw, ok := inj.table.Lookup(k.Raw())
	if !ok || raw.kind() != kindGeneric {
		return nil
	}
	generic := raw.(*genericProvider)
	if !generic.isInjected() {
		generic.inject(s, inj)
	}

	p, stored := inj.table.PutIfAbsent(k, generic.synthesize(k))
	if stored {
		inj.metrics.jitBinding("generic")
		inj.log.Debug("generic provider synthesized", zap.Stringer("key", k), zap.Stringer("raw", k.Raw()))
	}
	return p
}

func (inj *Injector) constructKey(s *ProvisionStack, k key.Key) any {
	rt := k.Reflect()
	if rt == nil {
		s.attach(&KeyError{Key: k, Op: "construct", Err: errors.New("no Go type is known for the key")})
		return nil
	}
	c, err := inj.members.constructor(rt, false)
	if err != nil {
		s.attach(err)
		return nil
	}
	return inj.construct(s, k, c, nil)
}

// construct invokes c with resolved arguments and injects the members of
// the result. supply, when set, gives the assisted arguments.
func (inj *Injector) construct(s *ProvisionStack, k key.Key, c *constructorInfo, supply func(key.Injected) (any, bool)) any {
	if !s.enterConstructor(k) {
		s.attach(&CircularDependencyError{Path: s.constructorCycle(k)})
		return nil
	}
	args, ok := inj.arguments(s, c, supply)
	s.leaveConstructor(k)
	if !ok {
		return nil
	}

	v, err := c.invoke(args)
	if err != nil {
		s.attach(&ProvisionError{Key: k, Cause: err})
		return nil
	}
	if isAbsent(v) {
		return nil
	}
	return inj.injectMembers(s, k, v)
}

func (inj *Injector) arguments(s *ProvisionStack, c *constructorInfo, supply func(key.Injected) (any, bool)) ([]reflect.Value, bool) {
	if len(c.params) == 0 {
		return nil, true
	}

	ft := c.fn.Type()
	args := make([]reflect.Value, len(c.params))
	ok := true
	for i, param := range c.params {
		var v any
		switch supplied, found := supplyArg(supply, param); {
		case found:
			v = supplied
		case param.Assisted:
			s.attach(&MemberError{Kind: "parameter", Index: i, Declaring: c.typ, Key: param.Key})
			ok = false
			continue
		default:
			v = inj.getValue(s, param)
			if isAbsent(v) && !param.Optional {
				s.attach(&MemberError{Kind: "parameter", Index: i, Declaring: c.typ, Key: param.Key})
				ok = false
				continue
			}
		}

		rv, err := valueOf(v, ft.In(i))
		if err != nil {
			s.attach(&KeyError{Key: param.Key, Op: fmt.Sprintf("pass parameter %d of %v", i, ft), Err: err})
			ok = false
			continue
		}
		args[i] = rv
	}
	return args, ok
}

func supplyArg(supply func(key.Injected) (any, bool), param key.Injected) (any, bool) {
	if supply == nil || !param.Assisted {
		return nil, false
	}
	return supply(param)
}

// injectMembers injects the fields, then the methods, of v with k on the
// stack. Struct values are injected into a copy, which is returned.
func (inj *Injector) injectMembers(s *ProvisionStack, k key.Key, v any) any {
	sol := inj.members.members(reflect.TypeOf(v))
	s.attach(sol.errs...)
	if len(sol.fields) == 0 && len(sol.methods) == 0 {
		return v
	}

	rv := reflect.ValueOf(v)
	var self reflect.Value
	if rv.Kind() == reflect.Struct {
		self = reflect.New(rv.Type())
		self.Elem().Set(rv)
	} else {
		if rv.IsNil() {
			return v
		}
		self = rv
	}
	target := self.Elem()

	// A cycle back to a struct value sees v as it was before injection.
	s.push(k, v)
	defer s.pop()

	for _, f := range sol.fields {
		value := inj.getValue(s, f.key)
		if isAbsent(value) {
			if !f.key.Optional {
				s.attach(&MemberError{Kind: "field", Name: f.name, Declaring: f.declaring, Key: f.key.Key})
			}
			continue
		}
		field := target.FieldByIndex(f.index)
		fv, err := valueOf(value, field.Type())
		if err != nil {
			s.attach(&KeyError{Key: f.key.Key, Op: fmt.Sprintf("assign field %s of %v", f.name, f.declaring), Err: err})
			continue
		}
		field.Set(fv)
	}

	for _, m := range sol.methods {
		inj.callMethod(s, k, self.Method(m.index), m)
	}

	if rv.Kind() == reflect.Struct {
		return target.Interface()
	}
	return v
}

func (inj *Injector) callMethod(s *ProvisionStack, k key.Key, method reflect.Value, m methodPoint) {
	mt := method.Type()
	args := make([]reflect.Value, len(m.params))
	for i, param := range m.params {
		value := inj.getValue(s, param)
		if isAbsent(value) && !param.Optional {
			s.attach(&MemberError{Kind: "method", Name: m.name, Index: i, Declaring: m.declaring, Key: param.Key})
			return
		}
		rv, err := valueOf(value, mt.In(i))
		if err != nil {
			s.attach(&KeyError{Key: param.Key, Op: fmt.Sprintf("pass parameter %d of %v.%s", i, m.declaring, m.name), Err: err})
			return
		}
		args[i] = rv
	}

	out := method.Call(args)
	if m.returnsError && !out[0].IsNil() {
		s.attach(&ProvisionError{Key: k, Cause: fmt.Errorf("%s: %w", m.name, out[0].Interface().(error))})
	}
}
