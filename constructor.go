package trew

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
	"github.com/toutaio/toutago-trew-dependency-injector/typeref"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ErrInvalidConstructor is attached when a registered constructor does not
// have a supported shape.
var ErrInvalidConstructor = errors.New("invalid constructor")

// ConstructorOption configures a registered constructor.
type ConstructorOption func(*constructorConfig)

type constructorConfig struct {
	tags     []string
	assisted bool
}

// ParamTags sets the inject tag of each constructor parameter, in order.
// Missing tags default to a required, unqualified key.
//
//	b.RegisterConstructor(NewServer, trew.ParamTags("name=addr", "optional"))
func ParamTags(tags ...string) ConstructorOption {
	return func(c *constructorConfig) {
		c.tags = append(c.tags, tags...)
	}
}

// Assisted marks the constructor as the target of a factory binding.
// Parameters tagged `assist` are supplied by the factory caller.
func Assisted() ConstructorOption {
	return func(c *constructorConfig) {
		c.assisted = true
	}
}

// constructorInfo holds metadata about a constructor function.
type constructorInfo struct {
	fn           reflect.Value // invalid for the default constructor
	typ          reflect.Type  // Produced type
	params       []key.Injected
	returnsError bool
	assisted     bool
}

// parseConstructor analyzes a constructor function.
// Valid signatures:
//   - func(...) T
//   - func(...) (T, error)
func (r *memberResolver) parseConstructor(fn any, cfg constructorConfig) (*constructorInfo, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: constructor cannot be nil", ErrInvalidConstructor)
	}

	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: constructor must be a function, got %v", ErrInvalidConstructor, fnType)
	}
	if fnType.IsVariadic() {
		return nil, fmt.Errorf("%w: constructor %v cannot be variadic", ErrInvalidConstructor, fnType)
	}

	numOut := fnType.NumOut()
	if numOut < 1 || numOut > 2 {
		return nil, fmt.Errorf("%w: constructor %v must return 1 or 2 values, got %d",
			ErrInvalidConstructor, fnType, numOut)
	}
	if fnType.Out(0) == errorType {
		return nil, fmt.Errorf("%w: constructor %v must return a value before the error", ErrInvalidConstructor, fnType)
	}
	if numOut == 2 && fnType.Out(1) != errorType {
		return nil, fmt.Errorf("%w: second return value of %v must be error", ErrInvalidConstructor, fnType)
	}
	if len(cfg.tags) > fnType.NumIn() {
		return nil, fmt.Errorf("%w: constructor %v has %d parameters but %d tags",
			ErrInvalidConstructor, fnType, fnType.NumIn(), len(cfg.tags))
	}

	info := &constructorInfo{
		fn:           fnValue,
		typ:          fnType.Out(0),
		returnsError: numOut == 2,
		assisted:     cfg.assisted,
		params:       make([]key.Injected, fnType.NumIn()),
	}

	context := typeref.Of(info.typ)
	for i := range info.params {
		tag := ""
		if i < len(cfg.tags) {
			tag = cfg.tags[i]
		}
		opts, err := parseInjectTag(tag)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %d of %v: %v", ErrInvalidConstructor, i, fnType, err)
		}
		if opts.skip {
			return nil, fmt.Errorf("%w: parameter %d of %v cannot be skipped", ErrInvalidConstructor, i, fnType)
		}
		injected, err := r.injectedKey(context, fnType.In(i), opts)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %d of %v: %v", ErrInvalidConstructor, i, fnType, err)
		}
		info.params[i] = injected
	}

	return info, nil
}

// invoke calls the constructor with already resolved arguments.
func (c *constructorInfo) invoke(args []reflect.Value) (any, error) {
	if !c.fn.IsValid() {
		return newDefault(c.typ), nil
	}

	results := c.fn.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

func newDefault(typ reflect.Type) any {
	if typ.Kind() == reflect.Pointer {
		return reflect.New(typ.Elem()).Interface()
	}
	return reflect.New(typ).Elem().Interface()
}

func hasDefaultConstructor(typ reflect.Type) bool {
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return typ.Kind() == reflect.Struct
}
