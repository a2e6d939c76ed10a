package trew

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

type auditBase struct {
	Auditor string `inject:"name=auditor"`
}

type auditedService struct {
	auditBase
	Name string `inject:"name=service"`
}

type everything struct {
	InjectAll
	Greeter greeter
	Name    string `inject:"name=service"`
	Ignored string `inject:"-"`
	hidden  string
}

type primary struct{}

type primaryUser struct {
	DB string `inject:"marker=primary"`
}

type unknownMarker struct {
	DB string `inject:"marker=secondary"`
}

type assistedField struct {
	Amount int `inject:"assist"`
}

type badMethod struct{}

func (*badMethod) InjectValue() int { return 0 }

type namesReceiver struct {
	first, second string
}

func (r *namesReceiver) InjectNames(first, second string) {
	r.first, r.second = first, second
}

func (*namesReceiver) MethodTags() map[string]MethodTag {
	return map[string]MethodTag{"InjectNames": {Params: []string{"name=first", "name=second"}}}
}

type failingMethod struct{}

func (*failingMethod) InjectCheck() error { return errors.New("check failed") }

func fieldNames(sol *solution) []string {
	names := make([]string, len(sol.fields))
	for i, f := range sol.fields {
		names[i] = f.name
	}
	return names
}

func TestMembers_EmbeddedFieldsComeLast(t *testing.T) {
	sol := newMemberResolver().members(reflect.TypeOf(&auditedService{}))

	require.Empty(t, sol.errs)
	assert.Equal(t, []string{"Name", "Auditor"}, fieldNames(sol))
	assert.Equal(t, reflect.TypeOf(auditBase{}), sol.fields[1].declaring)
}

func TestMembers_InjectAll(t *testing.T) {
	sol := newMemberResolver().members(reflect.TypeOf(everything{}))

	require.Empty(t, sol.errs)
	assert.Equal(t, []string{"Greeter", "Name"}, fieldNames(sol))
	assert.Equal(t, key.For[string]().Named("service"), sol.fields[1].key.Key)
}

func TestMembers_Cached(t *testing.T) {
	r := newMemberResolver()

	assert.Same(t, r.members(reflect.TypeOf(&auditedService{})), r.members(reflect.TypeOf(auditedService{})))
	assert.Same(t, emptySolution, r.members(reflect.TypeOf(0)))
}

func TestMembers_Errors(t *testing.T) {
	r := newMemberResolver()

	assert.Len(t, r.members(reflect.TypeOf(assistedField{})).errs, 1)
	assert.Len(t, r.members(reflect.TypeOf(badMethod{})).errs, 1)
	assert.Len(t, r.members(reflect.TypeOf(unknownMarker{})).errs, 1)
}

func TestInjectMembers_Embedded(t *testing.T) {
	inj := newTestInjector(t, func(b Binder) {
		Bind[string](b).Named("auditor").ToInstance("alice")
		Bind[string](b).Named("service").ToInstance("billing")
	})

	svc, err := Get[*auditedService](inj)

	require.NoError(t, err)
	assert.Equal(t, "alice", svc.Auditor)
	assert.Equal(t, "billing", svc.Name)
}

func TestInjectMembers_QualifierMarker(t *testing.T) {
	inj, err := New(
		WithQualifierMarker("primary", primary{}),
		WithModules(ModuleFunc(func(b Binder) {
			Bind[string](b).MarkedWith(primary{}).ToInstance("main-db")
		})),
	)
	require.NoError(t, err)

	u, err := Get[*primaryUser](inj)
	require.NoError(t, err)
	assert.Equal(t, "main-db", u.DB)

	v, err := GetQualified[string](inj, key.MarkerOf[primary]())
	require.NoError(t, err)
	assert.Equal(t, "main-db", v)
}

func TestInjectMembers_TaggedMethodParams(t *testing.T) {
	inj := newTestInjector(t, func(b Binder) {
		Bind[string](b).Named("first").ToInstance("one")
		Bind[string](b).Named("second").ToInstance("two")
	})

	r, err := Get[*namesReceiver](inj)

	require.NoError(t, err)
	assert.Equal(t, "one", r.first)
	assert.Equal(t, "two", r.second)
}

func TestInjectMembers_MethodError(t *testing.T) {
	inj := newTestInjector(t, func(Binder) {})

	_, err := Get[*failingMethod](inj)

	var provision *ProvisionError
	require.ErrorAs(t, err, &provision)
	assert.EqualError(t, provision.Cause, "InjectCheck: check failed")
}
