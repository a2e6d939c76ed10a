package trew

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

var (
	// ErrKeyAlreadyBound is attached when a key receives a second target.
	ErrKeyAlreadyBound = errors.New("key is already bound")

	// ErrAlreadyScoped is attached when a scoped provider is scoped with a
	// different scope.
	ErrAlreadyScoped = errors.New("cannot scope the provider again")

	// ErrInstanceScoped is attached when an instance binding is given a
	// scope other than Singleton.
	ErrInstanceScoped = errors.New("instance providers cannot be scoped")

	// ErrNotMultibinding is attached when a multibinding targets a key that
	// already holds a regular binding.
	ErrNotMultibinding = errors.New("key is already bound and it isn't a multibinding")

	// ErrRawGenericKey is attached when a generic provider is bound to a
	// parameterized key.
	ErrRawGenericKey = errors.New("generic providers must be bound to the raw type, not a parameterized type")

	// ErrDuplicateProviderMethod is attached when two provider methods of a
	// module return the same key.
	ErrDuplicateProviderMethod = errors.New("module has two or more provider methods with the same return key")

	// ErrDuplicateConstructor is attached when a type registers two
	// constructors of the same kind.
	ErrDuplicateConstructor = errors.New("type already has a registered constructor")

	// ErrNoPropertyHolder is attached when a property is requested and no
	// PropertyHolder is bound.
	ErrNoPropertyHolder = errors.New("there is no PropertyHolder bound")

	// ErrPropertyNotFound is attached when the bound PropertyHolder has no
	// value for a path.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrTypeMismatch is returned when a produced value cannot be assigned
	// to the requested type.
	ErrTypeMismatch = errors.New("value is not assignable to the requested type")

	// ErrNilInstance is attached when an instance binding receives nil.
	ErrNilInstance = errors.New("cannot bind a nil instance")

	// ErrClosed is returned by operations on a closed injector.
	ErrClosed = errors.New("injector is closed")
)

// KeyError reports a failed operation on a key.
type KeyError struct {
	Key key.Key
	Op  string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}

// MemberError reports an injection point whose required key produced no
// value. Kind is "field", "method" or "parameter".
type MemberError struct {
	Kind      string
	Name      string
	Index     int
	Declaring reflect.Type
	Key       key.Key
}

func (e *MemberError) Error() string {
	switch e.Kind {
	case "field":
		return fmt.Sprintf("cannot inject field %s of %v: cannot get value for required key %s",
			e.Name, e.Declaring, e.Key)
	case "method":
		return fmt.Sprintf("cannot inject method %s of %v: cannot get value for required parameter (index %d) %s",
			e.Name, e.Declaring, e.Index, e.Key)
	}
	return fmt.Sprintf("cannot instantiate %v: cannot get value for required parameter (index %d) %s",
		e.Declaring, e.Index, e.Key)
}

// ConstructorNotFoundError is attached when a type has no usable
// constructor.
type ConstructorNotFoundError struct {
	Type     reflect.Type
	Assisted bool
}

func (e *ConstructorNotFoundError) Error() string {
	if e.Assisted {
		return fmt.Sprintf("cannot resolve constructor marked as assisted for type %v", e.Type)
	}
	return fmt.Sprintf("no constructor found for type %v", e.Type)
}

// CircularDependencyError indicates that a constructor depends, directly or
// not, on the value it is about to produce.
type CircularDependencyError struct {
	Path []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Path) == 0 {
		return "circular dependency detected"
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

// ProvisionError wraps an error returned by user code (a constructor, a
// provider or a provider method) while producing a key.
type ProvisionError struct {
	Key   key.Key
	Cause error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("failed to provide %s: %v", e.Key, e.Cause)
}

func (e *ProvisionError) Unwrap() error {
	return e.Cause
}

// FactoryError reports a factory binding that does not match the assisted
// constructor of its target.
type FactoryError struct {
	Factory reflect.Type
	Target  key.Key
	Reason  string
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("invalid factory %v for %s: %s", e.Factory, e.Target, e.Reason)
}

// InjectionError aggregates the errors attached during one root resolution.
type InjectionError struct {
	Errors []error
}

func (e *InjectionError) Error() string {
	return formatErrors("injection failed", e.Errors)
}

func (e *InjectionError) Unwrap() []error {
	return e.Errors
}

// BindingError aggregates the configuration errors attached to a binder.
type BindingError struct {
	Errors []error
}

func (e *BindingError) Error() string {
	return formatErrors("binding failed", e.Errors)
}

func (e *BindingError) Unwrap() []error {
	return e.Errors
}

func formatErrors(head string, errs []error) string {
	if len(errs) == 0 {
		return head
	}
	if len(errs) == 1 {
		return fmt.Sprintf("%s: %v", head, errs[0])
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s with %d errors:\n", head, len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d) %v\n", i+1, err))
	}
	return b.String()
}
