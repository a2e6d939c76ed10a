package trew

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
	"github.com/toutaio/toutago-trew-dependency-injector/registry"
)

// Binder collects the bindings of an injector. Modules receive it in
// Configure; it must not be used after New returns.
//
// Configuration errors do not stop the binder. They are attached and
// reported together by New.
type Binder interface {
	// Bind starts a binding of k.
	Bind(k key.Key) *BindingBuilder[any]

	// MultiBind starts a contribution to the multibinding whose elements
	// have key k.
	MultiBind(k key.Key) *MultiBindingBuilder[any]

	// Install configures the given modules. A module value whose type was
	// already installed is skipped.
	Install(modules ...Module)

	// RegisterConstructor registers fn as the constructor of the type it
	// returns.
	RegisterConstructor(fn any, opts ...ConstructorOption)

	// UnsafeBind stores p under k, replacing any binding already there.
	UnsafeBind(k key.Key, p Provider[any])

	// Attach records configuration errors.
	Attach(errs ...error)

	// ReportAttachedErrors returns a *BindingError holding every attached
	// error, or nil.
	ReportAttachedErrors() error

	impl() *binder
}

type binder struct {
	mu  sync.Mutex
	log errorLog

	inj       *Injector
	table     *registry.Table[key.Key, provider]
	installed map[reflect.Type]bool
	pending   []any
	bootables []Bootable
}

func newBinder(inj *Injector) *binder {
	b := &binder{
		inj:       inj,
		table:     registry.New[key.Key, provider](),
		installed: make(map[reflect.Type]bool),
	}
	// TypeLiteral[T] is always injectable
	b.unsafeBind(typeLiteralKey, newGenericProvider(typeLiteralProvider{}, Singleton))
	return b
}

func (b *binder) impl() *binder { return b }

func (b *binder) attach(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.log.attach(errs...)
}

func (b *binder) errors() []error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.log.errors()
}

func (b *binder) Attach(errs ...error) { b.attach(errs...) }

func (b *binder) ReportAttachedErrors() error {
	if errs := b.errors(); len(errs) > 0 {
		return &BindingError{Errors: errs}
	}
	return nil
}

func (b *binder) Bind(k key.Key) *BindingBuilder[any] {
	return &BindingBuilder[any]{b: b, key: k}
}

func (b *binder) MultiBind(k key.Key) *MultiBindingBuilder[any] {
	m := &MultiBindingBuilder[any]{b: b, elem: k.Reflect(), qualifier: k.Qualifier()}
	if m.elem == nil {
		b.attach(&KeyError{Key: k, Op: "multibind", Err: fmt.Errorf("no Go type is known for the element key")})
	}
	return m
}

func (b *binder) Install(modules ...Module) {
	for _, m := range modules {
		b.install(m)
	}
}

func (b *binder) install(m Module) {
	if m == nil {
		return
	}

	mt := reflect.TypeOf(m)
	if c, ok := m.(ConditionalModule); ok && !c.ShouldInstall() {
		b.inj.log.Debug("module not installed", zap.Stringer("module", mt))
		return
	}
	if mt.Kind() != reflect.Func {
		if b.installed[mt] {
			b.inj.log.Debug("module already installed", zap.Stringer("module", mt))
			return
		}
		b.installed[mt] = true
	}

	m.Configure(b)
	b.bindProviderMethods(m)
	if boot, ok := m.(Bootable); ok {
		b.bootables = append(b.bootables, boot)
	}
	b.inj.log.Debug("module installed", zap.Stringer("module", mt))
}

func (b *binder) RegisterConstructor(fn any, opts ...ConstructorOption) {
	var cfg constructorConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	info, err := b.inj.members.parseConstructor(fn, cfg)
	if err != nil {
		b.attach(err)
		return
	}
	if !info.assisted {
		for i, param := range info.params {
			if param.Assisted {
				b.attach(fmt.Errorf("%w: parameter %d of %v is assisted but the constructor is not registered with Assisted()",
					ErrInvalidConstructor, i, info.fn.Type()))
				return
			}
		}
	}
	b.attach(b.inj.members.register(info))
}

func (b *binder) UnsafeBind(k key.Key, p Provider[any]) {
	if p == nil {
		b.attach(&KeyError{Key: k, Op: "bind", Err: ErrNilInstance})
		return
	}
	b.unsafeBind(k, newDelegatingProvider(p, p.Get))
}

// unsafeBind stores p under k if p accepts the binding.
func (b *binder) unsafeBind(k key.Key, p provider) {
	checkKey(k)
	if p.onBind(b, k) {
		b.table.Put(k, p)
	}
}

// bind stores p under k unless k is already bound.
func (b *binder) bind(k key.Key, p provider) bool {
	checkKey(k)
	if b.table.Has(k) {
		b.attach(&KeyError{Key: k, Op: "bind", Err: ErrKeyAlreadyBound})
		return false
	}
	if !p.onBind(b, k) {
		return false
	}
	if err := b.table.Register(k, p); err != nil {
		b.attach(&KeyError{Key: k, Op: "bind", Err: ErrKeyAlreadyBound})
		return false
	}
	return true
}

// scope puts the binding of k in sc. An unbound key is bound to itself
// first.
func (b *binder) scope(k key.Key, sc Scope) error {
	checkKey(k)

	var err error
	b.table.Update(k, func(current provider, exists bool) provider {
		if !exists {
			current = newLinkedProvider(k, k)
		}
		scoped, scopeErr := current.withScope(k, sc)
		if scopeErr != nil {
			err = &KeyError{Key: k, Op: fmt.Sprintf("scope %s in", sc), Err: scopeErr}
			return current
		}
		return scoped
	})
	return err
}

// addPending queues an instance whose members are injected once the
// injector is ready.
func (b *binder) addPending(v any) {
	if isStructPointer(v) {
		b.pending = append(b.pending, v)
	}
}

func checkKey(k key.Key) {
	if k.IsZero() {
		panic("trew: use of the zero key")
	}
	if k.RequiresContext() {
		panic(fmt.Sprintf("trew: key %s requires a context to be resolved", k))
	}
}
