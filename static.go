package trew

import (
	"fmt"
	"reflect"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
	"github.com/toutaio/toutago-trew-dependency-injector/typeref"
)

// StaticMember is a package-level variable to inject, created by Static.
type StaticMember struct {
	target reflect.Value
	tag    string
}

// Static describes the variable behind ptr with an optional inject tag.
// Static variables are only assigned by InjectStaticMembers.
//
//	var defaultClock Clock
//
//	inj.InjectStaticMembers(trew.Static(&defaultClock))
func Static(ptr any, tag ...string) StaticMember {
	m := StaticMember{tag: ""}
	if len(tag) > 0 {
		m.tag = tag[0]
	}
	if rv := reflect.ValueOf(ptr); rv.Kind() == reflect.Pointer && !rv.IsNil() {
		m.target = rv
	}
	return m
}

// InjectStaticMembers assigns each static member from the injector in one
// root resolution.
func (inj *Injector) InjectStaticMembers(members ...StaticMember) error {
	if inj.closed.Load() {
		return ErrClosed
	}

	s := newProvisionStack(inj)
	for i, m := range members {
		if !m.target.IsValid() {
			s.attach(fmt.Errorf("static member %d: not a non-nil pointer", i))
			continue
		}
		elem := m.target.Elem()

		opts, err := parseInjectTag(m.tag)
		if err == nil && (opts.assisted || opts.skip) {
			err = fmt.Errorf("tag %q is not allowed on a static member", m.tag)
		}
		var ik key.Injected
		if err == nil {
			ik, err = inj.members.injectedKey(typeref.Of(elem.Type()), elem.Type(), opts)
		}
		if err != nil {
			s.attach(fmt.Errorf("static member %d: %w", i, err))
			continue
		}

		v := inj.getValue(s, ik)
		if isAbsent(v) {
			if !ik.Optional {
				s.attach(&MemberError{Kind: "field", Name: fmt.Sprintf("static member %d", i), Declaring: m.target.Type(), Key: ik.Key})
			}
			continue
		}
		rv, err := valueOf(v, elem.Type())
		if err != nil {
			s.attach(&KeyError{Key: ik.Key, Op: fmt.Sprintf("assign static member %d", i), Err: err})
			continue
		}
		elem.Set(rv)
	}
	return inj.finish(s, "static members")
}
