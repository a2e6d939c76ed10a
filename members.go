package trew

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
	"github.com/toutaio/toutago-trew-dependency-injector/typeref"
)

// InjectAll, embedded in a struct, makes every exported field injectable
// unless it is tagged `inject:"-"`.
type InjectAll struct{}

var injectAllType = reflect.TypeOf(InjectAll{})

// MethodTag carries the inject tags of a method: Result applies to the
// value returned by a provider method, Params to each parameter in order.
type MethodTag struct {
	Result string
	Params []string
}

// TaggedMethods is implemented by types whose Inject* methods, or by
// modules whose Provide* methods, need tags. The method is called on a
// fresh zero value.
type TaggedMethods interface {
	MethodTags() map[string]MethodTag
}

// fieldPoint is an injectable struct field.
type fieldPoint struct {
	index     []int
	name      string
	declaring reflect.Type
	key       key.Injected
}

// methodPoint is an injectable method of the pointer method set.
type methodPoint struct {
	index        int
	name         string
	declaring    reflect.Type
	params       []key.Injected
	returnsError bool
}

// solution is the memoized member metadata of one struct type.
type solution struct {
	fields  []fieldPoint
	methods []methodPoint
	errs    []error
}

var emptySolution = &solution{}

// memberResolver caches constructors and injectable members per type.
// Each injector owns one.
type memberResolver struct {
	mu        sync.RWMutex
	solutions map[reflect.Type]*solution
	injectors map[reflect.Type]*constructorInfo
	assisted  map[reflect.Type]*constructorInfo
	defaults  map[reflect.Type]*constructorInfo
	markers   map[string]reflect.Type
}

func newMemberResolver() *memberResolver {
	return &memberResolver{
		solutions: make(map[reflect.Type]*solution),
		injectors: make(map[reflect.Type]*constructorInfo),
		assisted:  make(map[reflect.Type]*constructorInfo),
		defaults:  make(map[reflect.Type]*constructorInfo),
		markers:   make(map[string]reflect.Type),
	}
}

func (r *memberResolver) registerMarker(name string, marker reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.markers[name] = marker
}

func (r *memberResolver) register(c *constructorInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.injectors
	if c.assisted {
		table = r.assisted
	}
	if _, exists := table[c.typ]; exists {
		return &KeyError{Key: key.Of(c.typ), Op: "register constructor for", Err: ErrDuplicateConstructor}
	}
	table[c.typ] = c
	return nil
}

// constructor returns the registered constructor of typ. Without one, a
// struct or pointer-to-struct type falls back to its zero-argument default;
// assisted lookups never fall back.
func (r *memberResolver) constructor(typ reflect.Type, assisted bool) (*constructorInfo, error) {
	r.mu.RLock()
	c, ok := r.injectors[typ]
	if assisted {
		c, ok = r.assisted[typ]
	} else if !ok {
		c, ok = r.defaults[typ]
	}
	r.mu.RUnlock()

	if ok {
		return c, nil
	}
	if assisted || !hasDefaultConstructor(typ) {
		return nil, &ConstructorNotFoundError{Type: typ, Assisted: assisted}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.defaults[typ]; ok {
		return c, nil
	}
	c = &constructorInfo{typ: typ}
	r.defaults[typ] = c
	return c, nil
}

// members returns the injectable fields and methods of typ, which may be a
// struct or a pointer to one.
func (r *memberResolver) members(typ reflect.Type) *solution {
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return emptySolution
	}

	// Fast path: check cache with read lock
	r.mu.RLock()
	sol, exists := r.solutions[typ]
	r.mu.RUnlock()

	if exists {
		return sol
	}

	// Computed outside the lock: tags may name markers, which need r.mu
	computed := r.resolve(typ)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if sol, exists := r.solutions[typ]; exists {
		return sol
	}
	r.solutions[typ] = computed
	return computed
}

func (r *memberResolver) resolve(st reflect.Type) *solution {
	sol := &solution{}
	context := typeref.Of(reflect.PointerTo(st))
	r.collectFields(context, st, nil, false, sol, 0)
	r.collectMethods(context, st, sol)
	return sol
}

// collectFields walks st before its embedded structs, the way a subclass
// comes before its superclass.
func (r *memberResolver) collectFields(context *typeref.Type, st reflect.Type, prefix []int, injectAll bool, sol *solution, depth int) {
	if depth > 16 {
		return
	}
	injectAll = injectAll || embeds(st, injectAllType)

	var embedded []reflect.StructField
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		field.Index = append(append([]int(nil), prefix...), i)
		tag, tagged := field.Tag.Lookup("inject")

		if field.Anonymous && !tagged {
			if field.Type.Kind() == reflect.Struct {
				embedded = append(embedded, field)
			}
			continue
		}
		if !field.IsExported() || (!tagged && !injectAll) {
			continue
		}

		opts, err := parseInjectTag(tag)
		if err != nil {
			sol.errs = append(sol.errs, fmt.Errorf("field %s of %v: %w", field.Name, st, err))
			continue
		}
		if opts.skip {
			continue
		}
		if opts.assisted {
			sol.errs = append(sol.errs, fmt.Errorf("field %s of %v: only constructor parameters can be assisted", field.Name, st))
			continue
		}

		injected, err := r.injectedKey(context, field.Type, opts)
		if err != nil {
			sol.errs = append(sol.errs, fmt.Errorf("field %s of %v: %w", field.Name, st, err))
			continue
		}
		sol.fields = append(sol.fields, fieldPoint{
			index:     field.Index,
			name:      field.Name,
			declaring: st,
			key:       injected,
		})
	}

	for _, field := range embedded {
		r.collectFields(context, field.Type, field.Index, injectAll, sol, depth+1)
	}
}

func (r *memberResolver) collectMethods(context *typeref.Type, st reflect.Type, sol *solution) {
	ptr := reflect.PointerTo(st)

	var tags map[string]MethodTag
	if tagged, ok := reflect.New(st).Interface().(TaggedMethods); ok {
		tags = tagged.MethodTags()
	}

	for i := 0; i < ptr.NumMethod(); i++ {
		method := ptr.Method(i)
		if !strings.HasPrefix(method.Name, "Inject") {
			continue
		}

		fnType := method.Type
		returnsError := fnType.NumOut() == 1 && fnType.Out(0) == errorType
		if fnType.NumOut() > 0 && !returnsError {
			sol.errs = append(sol.errs, fmt.Errorf("injectable method %s of %v must return nothing or an error", method.Name, st))
			continue
		}

		point := methodPoint{
			index:        method.Index,
			name:         method.Name,
			declaring:    st,
			returnsError: returnsError,
		}
		paramTags := tags[method.Name].Params
		ok := true
		// In(0) is the receiver
		for p := 1; p < fnType.NumIn(); p++ {
			tag := ""
			if p-1 < len(paramTags) {
				tag = paramTags[p-1]
			}
			opts, err := parseInjectTag(tag)
			if err == nil && opts.assisted {
				err = fmt.Errorf("only constructor parameters can be assisted")
			}
			if err == nil {
				var injected key.Injected
				injected, err = r.injectedKey(context, fnType.In(p), opts)
				point.params = append(point.params, injected)
			}
			if err != nil {
				sol.errs = append(sol.errs, fmt.Errorf("parameter %d of method %s of %v: %w", p-1, method.Name, st, err))
				ok = false
				break
			}
		}
		if ok {
			sol.methods = append(sol.methods, point)
		}
	}
}

// injectedKey builds the key of an injection point declared with type typ
// inside context.
func (r *memberResolver) injectedKey(context *typeref.Type, typ reflect.Type, opts tagOptions) (key.Injected, error) {
	q, err := r.qualifier(opts)
	if err != nil {
		return key.Injected{}, err
	}

	resolved := typeref.Resolve(context, typeref.Of(typ))
	if resolved.RequiresContext() {
		return key.Injected{}, fmt.Errorf("type %s cannot be resolved in %s", resolved, context)
	}

	return key.Injected{
		Key:      key.New(resolved, q),
		Optional: opts.optional,
		Assisted: opts.assisted,
	}, nil
}

func (r *memberResolver) qualifier(opts tagOptions) (key.Qualifier, error) {
	switch {
	case opts.property != "":
		return key.Property(opts.property), nil
	case opts.name != "":
		return key.Named(opts.name), nil
	case opts.marker != "":
		r.mu.RLock()
		marker, ok := r.markers[opts.marker]
		r.mu.RUnlock()
		if !ok {
			return key.None, fmt.Errorf("unknown qualifier marker %q", opts.marker)
		}
		return key.Marker(marker), nil
	}
	return key.None, nil
}

// embeds reports whether st has an anonymous field of type marker.
func embeds(st reflect.Type, marker reflect.Type) bool {
	for i := 0; i < st.NumField(); i++ {
		if f := st.Field(i); f.Anonymous && f.Type == marker {
			return true
		}
	}
	return false
}
