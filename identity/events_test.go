package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcherOrder(t *testing.T) {
	var calls []string
	dispatcher := &Dispatcher{}
	dispatcher.Subscribe(RoleListenerFunc(func(*ResolvingRolesEvent) {
		calls = append(calls, "first")
	}))
	dispatcher.Subscribe(RoleListenerFunc(func(*ResolvingRolesEvent) {
		calls = append(calls, "second")
	}))
	dispatcher.Subscribe(nil) // ignored

	dispatcher.Dispatch(&ResolvingRolesEvent{resolver: newRoleResolver()})

	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestDispatcherSharedResolver(t *testing.T) {
	dispatcher := &Dispatcher{}
	dispatcher.Subscribe(RoleListenerFunc(func(e *ResolvingRolesEvent) {
		e.RoleResolver().AddRoles(StringRole("ROLE_A"))
	}))
	dispatcher.Subscribe(RoleListenerFunc(func(e *ResolvingRolesEvent) {
		// Sees what earlier listeners granted through the same resolver.
		assert.Len(t, e.RoleResolver().Roles(), 1)
		e.RoleResolver().AddRoles(StringRole("ROLE_B"))
	}))

	event := &ResolvingRolesEvent{resolver: newRoleResolver()}
	dispatcher.Dispatch(event)

	assert.Len(t, event.RoleResolver().Roles(), 2)
}

func TestDispatcherNoListeners(t *testing.T) {
	dispatcher := &Dispatcher{}
	assert.NotPanics(t, func() {
		dispatcher.Dispatch(&ResolvingRolesEvent{resolver: newRoleResolver()})
	})
}
