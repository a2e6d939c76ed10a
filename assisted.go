package trew

import (
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
	"github.com/toutaio/toutago-trew-dependency-injector/typeref"
)

// factoryProvider validates an assisted factory binding. It is never
// stored: on success it binds the generated factory under the key of the
// func type instead.
type factoryProvider struct {
	baseProvider
	target  key.Key
	factory reflect.Type
	tags    []string
}

func newFactoryProvider(target key.Key, factory reflect.Type, tags []string) *factoryProvider {
	p := &factoryProvider{target: target, factory: factory, tags: tags}
	p.markInjected()
	return p
}

func (p *factoryProvider) kind() providerKind                { return kindFactory }
func (p *factoryProvider) unwrap() provider                  { return p }
func (p *factoryProvider) inject(*ProvisionStack, *Injector) {}

func (p *factoryProvider) get(_ *ProvisionStack, match key.Key) any {
	panic(fmt.Sprintf("trew: factory binding of %s cannot provide %s", p.target, match))
}

func (p *factoryProvider) withScope(key.Key, Scope) (provider, error) {
	return nil, fmt.Errorf("factory bindings cannot be scoped")
}

func (p *factoryProvider) String() string {
	return fmt.Sprintf("factory(%v for %s)", p.factory, p.target)
}

func (p *factoryProvider) onBind(b *binder, _ key.Key) bool {
	fail := func(format string, args ...any) bool {
		b.attach(&FactoryError{Factory: p.factory, Target: p.target, Reason: fmt.Sprintf(format, args...)})
		return false
	}

	rt := p.target.Reflect()
	if rt == nil {
		return fail("cannot resolve constructor marked as assisted")
	}
	ctor, err := b.inj.members.constructor(rt, true)
	if err != nil {
		return fail("cannot resolve constructor marked as assisted")
	}

	if p.factory == nil || p.factory.Kind() != reflect.Func {
		return fail("factory must be a func type")
	}
	ft := p.factory
	context := typeref.Of(ft)

	returnsError := ft.NumOut() == 2 && ft.Out(1) == errorType
	if ft.NumOut() < 1 || ft.NumOut() > 2 || (ft.NumOut() == 2 && !returnsError) ||
		typeref.Resolve(context, typeref.Of(ft.Out(0))) != p.target.Type() {
		return fail("factory must return %s, optionally followed by error", p.target.Type())
	}
	if ft.IsVariadic() || len(p.tags) > ft.NumIn() {
		return fail("factory parameters do not match its tags")
	}

	given := make(map[key.Key]int, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		tag := ""
		if i < len(p.tags) {
			tag = p.tags[i]
		}
		opts, err := parseInjectTag(tag)
		if err != nil {
			return fail("parameter %d: %v", i, err)
		}
		injected, err := b.inj.members.injectedKey(context, ft.In(i), opts)
		if err != nil {
			return fail("parameter %d: %v", i, err)
		}
		if _, dup := given[injected.Key]; dup {
			return fail("factory has two equal assisted values, consider using qualifiers")
		}
		given[injected.Key] = i
	}

	assisted := make(map[key.Key]int, len(ctor.params))
	for i, param := range ctor.params {
		if !param.Assisted {
			continue
		}
		if _, dup := assisted[param.Key]; dup {
			return fail("constructor has two equal assisted keys: %s", param.Key)
		}
		assisted[param.Key] = i
	}
	for _, param := range ctor.params {
		if _, ok := given[param.Key]; param.Assisted && !ok {
			return fail("constructor requires assist for %s and factory doesn't give it", param.Key)
		}
	}
	if len(assisted) != len(given) {
		return fail("assists mismatch, constructor has %d values and factory %d values", len(assisted), len(given))
	}

	b.unsafeBind(key.Of(ft), &proxiedFactoryProvider{
		factory:      ft,
		target:       p.target,
		ctor:         ctor,
		args:         given,
		returnsError: returnsError,
	})
	return false
}

// proxiedFactoryProvider serves the generated implementation of a factory
// func type.
type proxiedFactoryProvider struct {
	baseProvider
	factory      reflect.Type
	target       key.Key
	ctor         *constructorInfo
	args         map[key.Key]int
	returnsError bool
	fn           reflect.Value
}

func (p *proxiedFactoryProvider) kind() providerKind { return kindProxiedFactory }
func (p *proxiedFactoryProvider) unwrap() provider   { return p }

func (p *proxiedFactoryProvider) inject(s *ProvisionStack, inj *Injector) {
	p.runInjection(s, func() {
		p.fn = reflect.MakeFunc(p.factory, func(args []reflect.Value) []reflect.Value {
			return p.call(inj, args)
		})
	})
}

func (p *proxiedFactoryProvider) get(*ProvisionStack, key.Key) any {
	return p.fn.Interface()
}

func (p *proxiedFactoryProvider) withScope(match key.Key, sc Scope) (provider, error) {
	return scopeProvider(p, match, sc), nil
}

func (p *proxiedFactoryProvider) String() string {
	return fmt.Sprintf("%v trew-generated implementation", p.factory)
}

// call runs one factory invocation as its own root resolution.
func (p *proxiedFactoryProvider) call(inj *Injector, args []reflect.Value) []reflect.Value {
	s := newProvisionStack(inj)
	v := inj.construct(s, p.target, p.ctor, func(param key.Injected) (any, bool) {
		i, ok := p.args[param.Key]
		if !ok {
			return nil, false
		}
		return args[i].Interface(), true
	})

	err := inj.finish(s, p.target.String())
	out := reflect.Zero(p.factory.Out(0))
	if err == nil {
		rv, convErr := valueOf(v, p.factory.Out(0))
		if convErr != nil {
			err = &KeyError{Key: p.target, Op: "return", Err: convErr}
		} else {
			out = rv
		}
	}

	if !p.returnsError {
		if err != nil {
			panic(err)
		}
		return []reflect.Value{out}
	}

	errValue := reflect.Zero(errorType)
	if err != nil {
		errValue = reflect.ValueOf(&err).Elem()
	}
	return []reflect.Value{out, errValue}
}
