package trew

import (
	"sync"
	"sync/atomic"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

type singletonScope struct{}

// Singleton memoizes the first value produced for a key. Absent values and
// values produced by a failed resolution are not memoized.
var Singleton Scope = singletonScope{}

func (singletonScope) String() string { return "Singleton" }

func (singletonScope) Scope(k key.Key, unscoped Supplier) Supplier {
	m := &singletonSupplier{key: k, unscoped: unscoped}
	return m.get
}

type singletonBox struct {
	value any
}

// singletonSupplier holds one singleton value.
type singletonSupplier struct {
	key      key.Key
	unscoped Supplier

	mu       sync.Mutex
	instance atomic.Pointer[singletonBox]
	owner    atomic.Pointer[ProvisionStack]
}

func (m *singletonSupplier) get(s *ProvisionStack) any {
	// Fast path: already created
	if b := m.instance.Load(); b != nil {
		return b.value
	}
	// Re-entry from the resolution that is creating the value
	if s != nil && m.owner.Load() == s {
		return m.unscoped(s)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring the lock
	if b := m.instance.Load(); b != nil {
		return b.value
	}

	m.owner.Store(s)
	defer m.owner.Store(nil)

	before := 0
	if s != nil {
		before = s.errorCount()
	}
	v := m.unscoped(s)
	if isAbsent(v) {
		return nil
	}
	if s != nil && s.errorCount() > before {
		return v
	}

	if m.instance.Load() == nil {
		m.instance.Store(&singletonBox{value: v})
		if s != nil && s.injector != nil {
			s.injector.track(m.key, v)
		}
	}
	return m.instance.Load().value
}
