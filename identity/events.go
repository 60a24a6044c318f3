package identity

import (
	"sync"

	"github.com/dirauth/ldapident/directory"
)

// ResolvingRolesEvent is published after a user's account and groups are
// fetched and before the resulting roles are stored on the record.
// Listeners grant roles through the event's RoleResolver.
type ResolvingRolesEvent struct {
	Connection Connection
	User       DirectoryUser
	Account    *directory.AccountEntry
	Groups     []*directory.GroupEntry

	resolver *RoleResolver
}

// RoleResolver returns the role collector shared by all listeners of
// this event.
func (e *ResolvingRolesEvent) RoleResolver() *RoleResolver {
	return e.resolver
}

// RoleListener reacts to role resolution for one user load or refresh.
type RoleListener interface {
	OnResolvingRoles(event *ResolvingRolesEvent)
}

// RoleListenerFunc adapts a function to the RoleListener interface.
type RoleListenerFunc func(event *ResolvingRolesEvent)

func (f RoleListenerFunc) OnResolvingRoles(event *ResolvingRolesEvent) { f(event) }

// Dispatcher fans a role-resolution event out to its listeners,
// synchronously and in subscription order. Each registry connection owns
// one dispatcher.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []RoleListener
}

// Subscribe registers a listener. Listeners run in the order they were
// added.
func (d *Dispatcher) Subscribe(listener RoleListener) {
	if listener == nil {
		return
	}
	d.mu.Lock()
	d.listeners = append(d.listeners, listener)
	d.mu.Unlock()
}

// Dispatch delivers the event to every listener before returning.
func (d *Dispatcher) Dispatch(event *ResolvingRolesEvent) {
	d.mu.RLock()
	listeners := make([]RoleListener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	for _, listener := range listeners {
		listener.OnResolvingRoles(event)
	}
}
