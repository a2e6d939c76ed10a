package trew

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	inj, err := New(WithMetrics(reg), WithModules(ModuleFunc(func(b Binder) {
		BindTo[greeter, *englishGreeter](b)
	})))
	require.NoError(t, err)

	_, err = Get[greeter](inj)
	require.NoError(t, err)
	_, err = Get[*singletonClock](inj)
	require.NoError(t, err)
	_, err = Get[*requiredHolder](inj)
	require.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(inj.metrics.resolutions.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(inj.metrics.resolutions.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(inj.metrics.jit.WithLabelValues("scoped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(inj.metrics.attached))
	assert.Equal(t, float64(len(inj.Keys())), testutil.ToFloat64(inj.metrics.bindings))
}

func TestMetrics_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := New(WithMetrics(reg))
	require.NoError(t, err)
	second, err := New(WithMetrics(reg))
	require.NoError(t, err)

	_, err = Get[*widget](first)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(first.metrics.resolutions.WithLabelValues("success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(second.metrics.resolutions.WithLabelValues("success")))

	count, err := testutil.GatherAndCount(reg, "trew_bindings")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per injector")
}

func TestMetrics_ConfigurationErrors(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := New(WithMetrics(reg), WithModules(ModuleFunc(func(b Binder) {
		Bind[string](b).ToInstance("a")
		Bind[string](b).ToInstance("b")
	})))
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "trew_attached_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_Disabled(t *testing.T) {
	inj := newTestInjector(t, func(Binder) {})

	assert.Nil(t, inj.metrics)
	assert.NotPanics(t, func() { _, _ = Get[*widget](inj) })
}

func TestWithMetrics_NilRegisterer(t *testing.T) {
	_, err := New(WithMetrics(nil))

	assert.Error(t, err)
}
