package trew

import (
	"fmt"
	"reflect"
	"sync"
)

// Declarations made with ImplementedBy and ProvidedBy apply to every
// injector of the process. They are consulted only for keys without an
// explicit binding.
var declarations = struct {
	mu            sync.RWMutex
	implementedBy map[reflect.Type]reflect.Type
	providedBy    map[reflect.Type]reflect.Type
}{
	implementedBy: make(map[reflect.Type]reflect.Type),
	providedBy:    make(map[reflect.Type]reflect.Type),
}

// ImplementedBy declares T as the default implementation of I. It is meant
// to be called from a package-level declaration:
//
//	var _ = trew.ImplementedBy[Clock, *systemClock]()
func ImplementedBy[I, T any]() struct{} {
	iface := reflect.TypeOf((*I)(nil)).Elem()
	impl := reflect.TypeOf((*T)(nil)).Elem()
	if iface == impl || !impl.AssignableTo(iface) {
		panic(fmt.Sprintf("trew: %v cannot implement %v", impl, iface))
	}

	declarations.mu.Lock()
	defer declarations.mu.Unlock()

	declarations.implementedBy[iface] = impl
	return struct{}{}
}

// ProvidedBy declares P as the default provider of T. P must have a
// Get() T or Get() (T, error) method and is itself resolved by the
// injector.
//
//	var _ = trew.ProvidedBy[*Config, *configProvider]()
func ProvidedBy[T, P any]() struct{} {
	target := reflect.TypeOf((*T)(nil)).Elem()
	prov := reflect.TypeOf((*P)(nil)).Elem()

	declarations.mu.Lock()
	defer declarations.mu.Unlock()

	declarations.providedBy[target] = prov
	return struct{}{}
}

func implementationOf(rt reflect.Type) (reflect.Type, bool) {
	declarations.mu.RLock()
	defer declarations.mu.RUnlock()

	impl, ok := declarations.implementedBy[rt]
	return impl, ok
}

func providerTypeOf(rt reflect.Type) (reflect.Type, bool) {
	declarations.mu.RLock()
	defer declarations.mu.RUnlock()

	prov, ok := declarations.providedBy[rt]
	return prov, ok
}
