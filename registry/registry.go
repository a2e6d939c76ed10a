// Package registry provides thread-safe storage and retrieval of bindings.
package registry

import (
	"fmt"
	"sync"
)

// Table is a goroutine-safe map that remembers insertion order. Every
// operation on a single key is atomic; entries are never removed.
type Table[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
	order   []K
}

// New creates an empty table.
func New[K comparable, V any]() *Table[K, V] {
	return &Table[K, V]{
		entries: make(map[K]V),
	}
}

// Register stores v under k.
// Returns an AlreadyExistsError if k is already present.
func (t *Table[K, V]) Register(k K, v V) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[k]; exists {
		return &AlreadyExistsError{Key: k}
	}
	t.store(k, v)
	return nil
}

// Put stores v under k, replacing any previous value.
func (t *Table[K, V]) Put(k K, v V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.store(k, v)
}

// PutIfAbsent stores v unless k is present. It returns the value held
// after the call and whether v was the one stored.
func (t *Table[K, V]) PutIfAbsent(k K, v V) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, exists := t.entries[k]; exists {
		return existing, false
	}
	t.store(k, v)
	return v, true
}

// Update replaces the value of k with fn(current, exists) atomically.
// fn runs under the table lock and must not call back into the table.
func (t *Table[K, V]) Update(k K, fn func(current V, exists bool) V) V {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, exists := t.entries[k]
	next := fn(current, exists)
	t.store(k, next)
	return next
}

func (t *Table[K, V]) store(k K, v V) {
	if _, exists := t.entries[k]; !exists {
		t.order = append(t.order, k)
	}
	t.entries[k] = v
}

// Lookup returns the value stored under k.
func (t *Table[K, V]) Lookup(k K) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, exists := t.entries[k]
	return v, exists
}

// Has reports whether k is present.
func (t *Table[K, V]) Has(k K) bool {
	_, exists := t.Lookup(k)
	return exists
}

// Len returns the number of entries.
func (t *Table[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

// Keys returns every key in insertion order.
func (t *Table[K, V]) Keys() []K {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]K(nil), t.order...)
}

// Select returns, in insertion order, the keys whose entries match pred.
// pred runs on a snapshot, outside the lock.
func (t *Table[K, V]) Select(pred func(K, V) bool) []K {
	t.mu.RLock()
	keys := append([]K(nil), t.order...)
	values := make([]V, len(keys))
	for i, k := range keys {
		values[i] = t.entries[k]
	}
	t.mu.RUnlock()

	var result []K
	for i, k := range keys {
		if pred(k, values[i]) {
			result = append(result, k)
		}
	}
	return result
}

// AlreadyExistsError is returned when registering a duplicate key.
type AlreadyExistsError struct {
	Key any
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("binding already exists for %v", e.Key)
}
