package trew

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

type widget struct {
	id int
}

type widgetUser struct {
	Widget *widget `inject:""`
}

type countingProvider struct {
	Tag      string `inject:"name=tag"`
	injected int
	created  int
}

func (p *countingProvider) InjectCount() { p.injected++ }

func (p *countingProvider) Get() (*widget, error) {
	p.created++
	return &widget{id: p.created}, nil
}

type recordingScope struct {
	mu     sync.Mutex
	values map[key.Key]any
}

func newRecordingScope() *recordingScope {
	return &recordingScope{values: make(map[key.Key]any)}
}

func (r *recordingScope) Scope(k key.Key, unscoped Supplier) Supplier {
	return func(s *ProvisionStack) any {
		r.mu.Lock()
		v, ok := r.values[k]
		r.mu.Unlock()
		if ok {
			return v
		}

		v = unscoped(s)
		r.mu.Lock()
		defer r.mu.Unlock()
		r.values[k] = v
		return v
	}
}

func (r *recordingScope) String() string { return "RecordingScope" }

type singletonClock struct {
	AsSingleton
	started int
}

type requestScoped struct{}

type requestHandler struct {
	requestScoped
	id int
}

type confusedScopes struct {
	AsSingleton
	requestScoped
}

type resource struct {
	name string
	log  *[]string
	err  error
}

func (r *resource) Dispose() error {
	*r.log = append(*r.log, r.name)
	return r.err
}

func TestSingleton_SameInstance(t *testing.T) {
	prov := &countingProvider{}
	inj := newTestInjector(t, func(b Binder) {
		Bind[string](b).Named("tag").ToInstance("blue")
		Bind[*widget](b).ToProvider(prov).Singleton()
	})

	w1, err := Get[*widget](inj)
	require.NoError(t, err)
	w2, err := Get[*widget](inj)
	require.NoError(t, err)
	user, err := Get[*widgetUser](inj)
	require.NoError(t, err)

	assert.Same(t, w1, w2)
	assert.Same(t, w1, user.Widget)
	assert.Equal(t, 1, prov.created)
}

func TestProvider_InjectionPhaseRunsOnce(t *testing.T) {
	prov := &countingProvider{}
	inj := newTestInjector(t, func(b Binder) {
		Bind[string](b).Named("tag").ToInstance("blue")
		Bind[*widget](b).ToProvider(prov)
	})

	for i := 0; i < 3; i++ {
		_, err := Get[*widget](inj)
		require.NoError(t, err)
	}

	assert.Equal(t, "blue", prov.Tag)
	assert.Equal(t, 1, prov.injected)
	assert.Equal(t, 3, prov.created, "unscoped providers are called on every request")
}

func TestNoScope_NewInstanceEachTime(t *testing.T) {
	inj := newTestInjector(t, func(b Binder) {
		Bind[*widget](b).ToProviderFunc(func() (*widget, error) { return &widget{id: 1}, nil }).In(NoScope)
	})

	w1, err := Get[*widget](inj)
	require.NoError(t, err)
	w2, err := Get[*widget](inj)
	require.NoError(t, err)

	assert.NotSame(t, w1, w2)
}

func TestSingleton_SelfLinkOfUnboundKey(t *testing.T) {
	inj := newTestInjector(t, func(b Binder) {
		Bind[*widget](b).Singleton()
	})

	w1, err := Get[*widget](inj)
	require.NoError(t, err)
	w2, err := Get[*widget](inj)
	require.NoError(t, err)

	assert.Same(t, w1, w2)
}

func TestSingleton_FailureIsNotMemoized(t *testing.T) {
	calls := 0
	inj := newTestInjector(t, func(b Binder) {
		Bind[*widget](b).ToProviderFunc(func() (*widget, error) {
			calls++
			if calls == 1 {
				return nil, errors.New("not yet")
			}
			return &widget{id: calls}, nil
		}).Singleton()
	})

	_, err := Get[*widget](inj)
	require.Error(t, err)

	w1, err := Get[*widget](inj)
	require.NoError(t, err)
	w2, err := Get[*widget](inj)
	require.NoError(t, err)

	assert.Same(t, w1, w2)
	assert.Equal(t, 2, calls)
}

func TestScope_SameScopeTwiceIsAllowed(t *testing.T) {
	_, err := New(WithModules(ModuleFunc(func(b Binder) {
		Bind[*widget](b).ToProviderFunc(func() (*widget, error) { return &widget{}, nil }).Singleton()
		Bind[*widget](b).Singleton()
	})))

	assert.NoError(t, err)
}

func TestScope_RescopingFails(t *testing.T) {
	_, err := New(WithModules(ModuleFunc(func(b Binder) {
		Bind[*widget](b).ToProviderFunc(func() (*widget, error) { return &widget{}, nil }).Singleton()
		Bind[*widget](b).In(newRecordingScope())
	})))

	assert.ErrorIs(t, err, ErrAlreadyScoped)
}

func TestScope_InstanceBindings(t *testing.T) {
	t.Run("singleton is a no-op", func(t *testing.T) {
		_, err := New(WithModules(ModuleFunc(func(b Binder) {
			Bind[string](b).ToInstance("x")
			Bind[string](b).Singleton()
		})))
		assert.NoError(t, err)
	})

	t.Run("other scopes fail", func(t *testing.T) {
		_, err := New(WithModules(ModuleFunc(func(b Binder) {
			Bind[string](b).ToInstance("x")
			Bind[string](b).In(newRecordingScope())
		})))
		assert.ErrorIs(t, err, ErrInstanceScoped)
	})
}

func TestScope_Custom(t *testing.T) {
	sc := newRecordingScope()
	inj := newTestInjector(t, func(b Binder) {
		Bind[*widget](b).ToProviderFunc(func() (*widget, error) { return &widget{id: 7}, nil }).In(sc)
	})

	w1, err := Get[*widget](inj)
	require.NoError(t, err)
	w2, err := Get[*widget](inj)
	require.NoError(t, err)

	assert.Same(t, w1, w2)
	assert.Same(t, w1, sc.values[key.For[*widget]()])
}

func TestAsSingleton_JustInTime(t *testing.T) {
	inj := newTestInjector(t, func(Binder) {})

	c1, err := Get[*singletonClock](inj)
	require.NoError(t, err)
	c2, err := Get[*singletonClock](inj)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Contains(t, inj.Keys(), key.For[*singletonClock]())
}

func TestWithScopeMarker(t *testing.T) {
	sc := newRecordingScope()
	inj, err := New(WithScopeMarker(requestScoped{}, sc))
	require.NoError(t, err)

	h1, err := Get[*requestHandler](inj)
	require.NoError(t, err)
	h2, err := Get[*requestHandler](inj)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Contains(t, sc.values, key.For[*requestHandler]())
}

func TestWithScopeMarker_Invalid(t *testing.T) {
	_, err := New(WithScopeMarker(&requestScoped{}, newRecordingScope()))
	assert.Error(t, err)

	_, err = New(WithScopeMarker(requestScoped{}, nil))
	assert.Error(t, err)
}

func TestScanMarkers_Conflict(t *testing.T) {
	inj, err := New(WithScopeMarker(requestScoped{}, newRecordingScope()))
	require.NoError(t, err)

	_, err = Get[*confusedScopes](inj)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one scope marker")
}

func TestClose_DisposesInReverseOrder(t *testing.T) {
	var log []string
	inj := newTestInjector(t, func(b Binder) {
		for _, name := range []string{"db", "cache", "broken"} {
			name := name
			r := &resource{name: name, log: &log}
			if name == "broken" {
				r.err = errors.New("boom")
			}
			Bind[*resource](b).Named(name).ToProviderFunc(func() (*resource, error) { return r, nil }).Singleton()
		}
	})

	for _, name := range []string{"cache", "db", "broken"} {
		_, err := GetNamed[*resource](inj, name)
		require.NoError(t, err)
	}

	err := inj.Close()

	assert.Equal(t, []string{"broken", "db", "cache"}, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSameScope(t *testing.T) {
	sc := newRecordingScope()

	assert.True(t, sameScope(Singleton, Singleton))
	assert.True(t, sameScope(sc, sc))
	assert.False(t, sameScope(sc, newRecordingScope()))
	assert.False(t, sameScope(Singleton, NoScope))
	assert.False(t, sameScope(Singleton, nil))
	assert.True(t, sameScope(nil, nil))
}

func TestBind_RejectedBindingIsNotScoped(t *testing.T) {
	inj := &Injector{log: zap.NewNop(), members: newMemberResolver(), scopes: newScopeRegistry()}
	b := newBinder(inj)

	Bind[greeter](b).To(key.For[*englishGreeter]())
	Bind[greeter](b).To(key.For[*englishGreeter]()).Singleton()

	errs := b.errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrKeyAlreadyBound)

	p, ok := b.table.Lookup(key.For[greeter]())
	require.True(t, ok)
	assert.Equal(t, kindLinked, p.kind())
}
