package trew

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toutaio/toutago-trew-dependency-injector/key"
)

func TestMemberError_Error(t *testing.T) {
	holder := reflect.TypeOf(requiredHolder{})
	k := key.For[missingDep]()

	tests := []struct {
		name string
		err  *MemberError
		want string
	}{
		{
			name: "field",
			err:  &MemberError{Kind: "field", Name: "Dep", Declaring: holder, Key: k},
			want: "cannot inject field Dep of trew.requiredHolder: cannot get value for required key trew.missingDep",
		},
		{
			name: "method",
			err:  &MemberError{Kind: "method", Name: "InjectDep", Index: 1, Declaring: holder, Key: k},
			want: "cannot inject method InjectDep of trew.requiredHolder: cannot get value for required parameter (index 1) trew.missingDep",
		},
		{
			name: "parameter",
			err:  &MemberError{Kind: "parameter", Index: 0, Declaring: holder, Key: k},
			want: "cannot instantiate trew.requiredHolder: cannot get value for required parameter (index 0) trew.missingDep",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.want)
		})
	}
}

func TestKeyError(t *testing.T) {
	err := &KeyError{Key: key.For[string]().Named("db"), Op: "bind", Err: ErrKeyAlreadyBound}

	assert.EqualError(t, err, `bind string annotated with @Named("db"): key is already bound`)
	assert.ErrorIs(t, err, ErrKeyAlreadyBound)
}

func TestCircularDependencyError(t *testing.T) {
	assert.EqualError(t, &CircularDependencyError{}, "circular dependency detected")
	assert.EqualError(t, &CircularDependencyError{Path: []string{"A", "B", "A"}},
		"circular dependency detected: A -> B -> A")
}

func TestConstructorNotFoundError(t *testing.T) {
	rt := reflect.TypeOf(&payment{})

	assert.EqualError(t, &ConstructorNotFoundError{Type: rt}, "no constructor found for type *trew.payment")
	assert.EqualError(t, &ConstructorNotFoundError{Type: rt, Assisted: true},
		"cannot resolve constructor marked as assisted for type *trew.payment")
}

func TestProvisionError(t *testing.T) {
	cause := errors.New("boom")
	err := &ProvisionError{Key: key.For[*payment](), Cause: cause}

	assert.EqualError(t, err, "failed to provide *trew.payment: boom")
	assert.ErrorIs(t, err, cause)
}

func TestAggregateErrors(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")

	assert.EqualError(t, &InjectionError{}, "injection failed")
	assert.EqualError(t, &InjectionError{Errors: []error{first}}, "injection failed: first")
	assert.EqualError(t, &BindingError{Errors: []error{first, second}},
		"binding failed with 2 errors:\n  1) first\n  2) second\n")

	err := &BindingError{Errors: []error{first, &KeyError{Op: "bind", Key: key.For[int](), Err: ErrNilInstance}}}
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, ErrNilInstance)

	var keyErr *KeyError
	assert.ErrorAs(t, err, &keyErr)
	assert.Equal(t, key.For[int](), keyErr.Key)
}
