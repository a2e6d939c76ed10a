package trew

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "trew"

// metrics holds the collectors of one injector. A nil *metrics records
// nothing.
type metrics struct {
	resolutions *prometheus.CounterVec
	jit         *prometheus.CounterVec
	attached    prometheus.Counter
	bindings    prometheus.GaugeFunc
}

func newMetrics(reg prometheus.Registerer, inj *Injector) (*metrics, error) {
	labels := prometheus.Labels{"injector": inj.id.String()}

	m := &metrics{
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   metricsNamespace,
				Name:        "resolutions_total",
				Help:        "Root resolutions by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		jit: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   metricsNamespace,
				Name:        "jit_bindings_total",
				Help:        "Bindings created just in time, by kind",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		attached: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "attached_errors_total",
			Help:        "Errors attached to failed resolutions and configurations",
			ConstLabels: labels,
		}),
		bindings: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace:   metricsNamespace,
				Name:        "bindings",
				Help:        "Keys currently bound",
				ConstLabels: labels,
			},
			func() float64 {
				if inj.table == nil {
					return 0
				}
				return float64(inj.table.Len())
			},
		),
	}

	var err error
	if m.resolutions, err = register(reg, m.resolutions); err != nil {
		return nil, err
	}
	if m.jit, err = register(reg, m.jit); err != nil {
		return nil, err
	}
	if m.attached, err = register(reg, m.attached); err != nil {
		return nil, err
	}
	if m.bindings, err = register(reg, m.bindings); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c, reusing the collector already registered under
// the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) resolved(ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

func (m *metrics) jitBinding(kind string) {
	if m == nil {
		return
	}
	m.jit.WithLabelValues(kind).Inc()
}

func (m *metrics) attachedErrors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.attached.Add(float64(n))
}
