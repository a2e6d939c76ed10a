package trew

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
	"github.com/toutaio/toutago-trew-dependency-injector/typeref"
)

// Module groups related bindings.
//
// Besides Configure, every exported method whose name starts with Provide
// becomes a binding of its result type. Its parameters are resolved by the
// injector on each call. Result qualifiers and scopes, and parameter tags,
// come from MethodTags when the module implements TaggedMethods.
//
// Example:
//
//	type DatabaseModule struct{}
//
//	func (DatabaseModule) Configure(b trew.Binder) {
//	    trew.Bind[Repository](b).To(key.For[*SQLRepository]())
//	}
//
//	func (DatabaseModule) ProvideDB(cfg *Config) (*sql.DB, error) {
//	    return sql.Open("postgres", cfg.DSN)
//	}
//
//	func (DatabaseModule) MethodTags() map[string]trew.MethodTag {
//	    return map[string]trew.MethodTag{"ProvideDB": {Result: "singleton"}}
//	}
type Module interface {
	Configure(b Binder)
}

// ModuleFunc adapts a function to Module. Function modules are never
// deduplicated.
type ModuleFunc func(b Binder)

// Configure calls f.
func (f ModuleFunc) Configure(b Binder) { f(b) }

// Bootable is implemented by modules that need a boot phase. Boot runs
// after every module is installed and every instance binding is injected.
//
// Example:
//
//	func (m *DatabaseModule) Boot(inj *trew.Injector) error {
//	    db, err := trew.Get[*sql.DB](inj)
//	    if err != nil {
//	        return err
//	    }
//	    return db.Ping()
//	}
type Bootable interface {
	Boot(inj *Injector) error
}

// ConditionalModule is installed only when ShouldInstall reports true.
type ConditionalModule interface {
	Module
	ShouldInstall() bool
}

// bindProviderMethods binds the Provide* methods of m.
func (b *binder) bindProviderMethods(m Module) {
	mv := reflect.ValueOf(m)
	mt := mv.Type()

	var tags map[string]MethodTag
	if tagged, ok := m.(TaggedMethods); ok {
		tags = tagged.MethodTags()
	}

	context := typeref.Of(mt)
	seen := make(map[key.Key]string)

	for i := 0; i < mt.NumMethod(); i++ {
		method := mt.Method(i)
		if !strings.HasPrefix(method.Name, "Provide") {
			continue
		}

		p, sc, err := b.methodProvider(context, mt, method.Name, mv.Method(i), tags[method.Name])
		if err != nil {
			b.attach(fmt.Errorf("provider method %s of %v: %w", method.Name, mt, err))
			continue
		}
		if other, dup := seen[p.key]; dup {
			b.attach(&KeyError{
				Key: p.key,
				Op:  fmt.Sprintf("bind provider methods %s and %s of %v to", other, method.Name, mt),
				Err: ErrDuplicateProviderMethod,
			})
			continue
		}
		seen[p.key] = method.Name

		if b.bind(p.key, p) && sc != nil {
			b.attach(b.scope(p.key, sc))
		}
	}
}

func (b *binder) methodProvider(context *typeref.Type, mt reflect.Type, name string, fn reflect.Value, tag MethodTag) (*methodProvider, Scope, error) {
	ft := fn.Type()
	if ft.IsVariadic() {
		return nil, nil, fmt.Errorf("cannot be variadic")
	}
	returnsError := ft.NumOut() == 2 && ft.Out(1) == errorType
	if ft.NumOut() < 1 || ft.NumOut() > 2 || ft.Out(0) == errorType || (ft.NumOut() == 2 && !returnsError) {
		return nil, nil, fmt.Errorf("must return T or (T, error), got %v", ft)
	}

	opts, err := parseInjectTag(tag.Result)
	if err != nil {
		return nil, nil, err
	}
	if opts.optional || opts.assisted || opts.skip {
		return nil, nil, fmt.Errorf("result tag %q may only qualify or scope the result", tag.Result)
	}

	var sc Scope
	if opts.scope != "" {
		var ok bool
		if sc, ok = b.inj.scopes.named(opts.scope); !ok {
			return nil, nil, fmt.Errorf("unknown scope %q", opts.scope)
		}
	}

	result, err := b.inj.members.injectedKey(context, ft.Out(0), opts)
	if err != nil {
		return nil, nil, err
	}

	p := &methodProvider{
		key:          result.Key,
		module:       mt,
		name:         name,
		fn:           fn,
		returnsError: returnsError,
		params:       make([]key.Injected, ft.NumIn()),
	}
	for i := range p.params {
		paramTag := ""
		if i < len(tag.Params) {
			paramTag = tag.Params[i]
		}
		popts, err := parseInjectTag(paramTag)
		if err == nil && (popts.assisted || popts.skip) {
			err = fmt.Errorf("tag %q is not allowed on a parameter", paramTag)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		if p.params[i], err = b.inj.members.injectedKey(context, ft.In(i), popts); err != nil {
			return nil, nil, fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return p, sc, nil
}

// methodProvider calls a module provider method with resolved arguments.
type methodProvider struct {
	baseProvider
	key          key.Key
	module       reflect.Type
	name         string
	fn           reflect.Value
	params       []key.Injected
	returnsError bool
	injector     *Injector
}

func (p *methodProvider) kind() providerKind { return kindMethod }
func (p *methodProvider) unwrap() provider   { return p }

func (p *methodProvider) inject(s *ProvisionStack, inj *Injector) {
	p.runInjection(s, func() { p.injector = inj })
}

func (p *methodProvider) get(s *ProvisionStack, match key.Key) any {
	ft := p.fn.Type()
	args := make([]reflect.Value, len(p.params))
	ok := true
	for i, param := range p.params {
		v := p.injector.getValue(s, param)
		if isAbsent(v) && !param.Optional {
			s.attach(&MemberError{Kind: "method", Name: p.name, Index: i, Declaring: p.module, Key: param.Key})
			ok = false
			continue
		}
		rv, err := valueOf(v, ft.In(i))
		if err != nil {
			s.attach(&KeyError{Key: param.Key, Op: "pass to " + p.name, Err: err})
			ok = false
			continue
		}
		args[i] = rv
	}
	if !ok {
		return nil
	}

	results := p.fn.Call(args)
	if p.returnsError && !results[1].IsNil() {
		s.attach(&ProvisionError{Key: match, Cause: results[1].Interface().(error)})
		return nil
	}
	if v := results[0].Interface(); !isAbsent(v) {
		return v
	}
	return nil
}

func (p *methodProvider) withScope(match key.Key, sc Scope) (provider, error) {
	return scopeProvider(p, match, sc), nil
}

func (p *methodProvider) String() string {
	return fmt.Sprintf("%v.%s", p.module, p.name)
}
