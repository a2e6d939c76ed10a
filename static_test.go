package trew

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	staticGreeting string
	staticGreeter  greeter
	staticOptional missingDep
)

func TestInjectStaticMembers(t *testing.T) {
	t.Cleanup(func() {
		staticGreeting, staticGreeter, staticOptional = "", nil, nil
	})
	inj := newTestInjector(t, func(b Binder) {
		Bind[string](b).Named("greeting").ToInstance("static hello")
		BindTo[greeter, *englishGreeter](b)
	})

	err := inj.InjectStaticMembers(
		Static(&staticGreeting, "name=greeting"),
		Static(&staticGreeter),
		Static(&staticOptional, "optional"),
	)

	require.NoError(t, err)
	assert.Equal(t, "static hello", staticGreeting)
	assert.Equal(t, "hello", staticGreeter.Greet())
	assert.Nil(t, staticOptional)
}

func TestInjectStaticMembers_Errors(t *testing.T) {
	inj := newTestInjector(t, func(Binder) {})

	err := inj.InjectStaticMembers(
		Static(staticGreeting),
		Static(&staticGreeting, "assist"),
		Static(&staticOptional),
	)

	var injErr *InjectionError
	require.ErrorAs(t, err, &injErr)
	assert.Len(t, injErr.Errors, 4, "two invalid members, then a missing constructor and the missing member")

	var member *MemberError
	require.ErrorAs(t, err, &member)
	assert.Equal(t, "static member 2", member.Name)
}
