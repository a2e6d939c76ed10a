package trew

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures an injector.
type Option func(*Injector) error

// WithModules installs modules, in order.
func WithModules(modules ...Module) Option {
	return func(inj *Injector) error {
		inj.modules = append(inj.modules, modules...)
		return nil
	}
}

// WithLogger sets the logger. Injectors log at debug level only; the
// default logger discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(inj *Injector) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		inj.log = logger
		return nil
	}
}

// WithMetrics registers the injector collectors with reg. Every series
// carries an "injector" label with the injector ID.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(inj *Injector) error {
		if reg == nil {
			return errors.New("registerer cannot be nil")
		}
		m, err := newMetrics(reg, inj)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		inj.metrics = m
		return nil
	}
}

// WithScopeMarker makes the struct type of marker select sc when it is
// embedded in a type bound just in time.
//
//	type RequestScoped struct{}
//
//	trew.WithScopeMarker(RequestScoped{}, requestScope)
func WithScopeMarker(marker any, sc Scope) Option {
	return func(inj *Injector) error {
		rt, err := markerType(marker)
		if err != nil {
			return err
		}
		if sc == nil {
			return errors.New("scope cannot be nil")
		}
		inj.scopes.markers[rt] = sc
		return nil
	}
}

// WithNamedScope makes sc available to provider method tags as
// `scope=name`.
func WithNamedScope(name string, sc Scope) Option {
	return func(inj *Injector) error {
		if name == "" || sc == nil {
			return errors.New("named scope needs a name and a scope")
		}
		inj.scopes.names[strings.ToLower(name)] = sc
		return nil
	}
}

// WithQualifierMarker makes the struct type of marker available to inject
// tags as `marker=name`.
//
//	type Primary struct{}
//
//	trew.WithQualifierMarker("primary", Primary{})
func WithQualifierMarker(name string, marker any) Option {
	return func(inj *Injector) error {
		rt, err := markerType(marker)
		if err != nil {
			return err
		}
		if name == "" {
			return errors.New("qualifier marker needs a name")
		}
		inj.members.registerMarker(name, rt)
		return nil
	}
}

func markerType(marker any) (reflect.Type, error) {
	if marker == nil {
		return nil, errors.New("marker cannot be nil")
	}
	rt := reflect.TypeOf(marker)
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("marker must be a struct value, got %v", rt)
	}
	return rt, nil
}
