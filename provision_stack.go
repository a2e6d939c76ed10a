package trew

import (
	"fmt"
	"strings"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

// errorLog collects errors in attachment order. Snapshots are lengths, so
// rolling back drops everything attached after the snapshot.
type errorLog struct {
	errs []error
}

func (l *errorLog) attach(errs ...error) {
	for _, err := range errs {
		if err != nil {
			l.errs = append(l.errs, err)
		}
	}
}

func (l *errorLog) snapshot() int { return len(l.errs) }

func (l *errorLog) rollback(snapshot int) {
	if snapshot < len(l.errs) {
		l.errs = l.errs[:snapshot]
	}
}

func (l *errorLog) errorCount() int { return len(l.errs) }

func (l *errorLog) hasErrors() bool { return len(l.errs) > 0 }

func (l *errorLog) errors() []error { return append([]error(nil), l.errs...) }

type stackEntry struct {
	key   key.Key
	value any
}

// ProvisionStack is the state of one root resolution: the keys whose
// members are being injected, mapped to their in-progress instances, and
// the errors attached so far. A stack belongs to the goroutine that
// started the root call and is never shared.
type ProvisionStack struct {
	errorLog

	injector     *Injector
	entries      []stackEntry
	values       map[key.Key]any
	constructing []key.Key
}

func newProvisionStack(inj *Injector) *ProvisionStack {
	return &ProvisionStack{
		injector: inj,
		values:   make(map[key.Key]any),
	}
}

// Has reports whether k is being injected.
func (s *ProvisionStack) Has(k key.Key) bool {
	_, ok := s.values[k]
	return ok
}

// Get returns the in-progress instance of k.
func (s *ProvisionStack) Get(k key.Key) any {
	return s.values[k]
}

// Len returns the depth of the stack.
func (s *ProvisionStack) Len() int { return len(s.entries) }

// Attach records an error against the current resolution.
func (s *ProvisionStack) Attach(err error) { s.attach(err) }

func (s *ProvisionStack) push(k key.Key, v any) {
	s.values[k] = v
	s.entries = append(s.entries, stackEntry{key: k, value: v})
}

func (s *ProvisionStack) pop() {
	if len(s.entries) == 0 {
		return
	}
	top := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	delete(s.values, top.key)
	// an outer frame may still hold the same key
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].key == top.key {
			s.values[top.key] = s.entries[i].value
			break
		}
	}
}

// enterConstructor marks k as resolving its constructor arguments. It
// returns false when k is already in that state.
func (s *ProvisionStack) enterConstructor(k key.Key) bool {
	for _, c := range s.constructing {
		if c == k {
			return false
		}
	}
	s.constructing = append(s.constructing, k)
	return true
}

func (s *ProvisionStack) leaveConstructor(k key.Key) {
	for i := len(s.constructing) - 1; i >= 0; i-- {
		if s.constructing[i] == k {
			s.constructing = append(s.constructing[:i], s.constructing[i+1:]...)
			return
		}
	}
}

func (s *ProvisionStack) constructorCycle(k key.Key) []string {
	var path []string
	start := -1
	for i, c := range s.constructing {
		if c == k {
			start = i
			break
		}
	}
	if start < 0 {
		return []string{k.String()}
	}
	for _, c := range s.constructing[start:] {
		path = append(path, c.String())
	}
	return append(path, k.String())
}

func (s *ProvisionStack) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("(%d errors) ", s.errorCount()))
	for i := len(s.entries) - 1; i >= 0; i-- {
		b.WriteString(s.entries[i].key.String())
		if i > 0 {
			b.WriteString(" -> ")
		}
	}
	return b.String()
}
