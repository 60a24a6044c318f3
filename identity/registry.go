package identity

import (
	"context"
	"sync"

	"github.com/dirauth/ldapident/directory"
)

// Connection is the directory surface the identity layer consumes.
// *directory.Connection satisfies it; tests substitute fakes.
type Connection interface {
	Config() *directory.Config
	FindAccountByUsername(ctx context.Context, username string) (*directory.AccountEntry, error)
	FindGroupsForAccount(ctx context.Context, account *directory.AccountEntry) ([]*directory.GroupEntry, error)
	Bind(ctx context.Context, username, password string) error
	Disconnect()
}

// ConnectionFactory builds a connection on first use.
type ConnectionFactory func() (Connection, error)

type registryEntry struct {
	once       sync.Once
	factory    ConnectionFactory
	conn       Connection
	err        error
	dispatcher *Dispatcher
}

// Registry holds the configured directory connections in registration
// order. Connections are constructed lazily, at most once each, and
// every connection carries its own role-resolution dispatcher.
type Registry struct {
	mu      sync.RWMutex
	names   []string
	entries map[string]*registryEntry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Register adds a named connection factory. Registering a name twice
// replaces the factory but keeps the original position and dispatcher.
func (r *Registry) Register(name string, factory ConnectionFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[name]; ok {
		entry.factory = factory
		return
	}
	r.names = append(r.names, name)
	r.entries[name] = &registryEntry{
		factory:    factory,
		dispatcher: &Dispatcher{},
	}
}

// Connection returns the named connection, building it on first request.
// The empty name selects the default connection. Construction failure is
// remembered and returned on every subsequent request.
func (r *Registry) Connection(name string) (Connection, error) {
	entry, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	entry.once.Do(func() {
		entry.conn, entry.err = entry.factory()
	})
	return entry.conn, entry.err
}

// Dispatcher returns the role-resolution dispatcher of the named
// connection. The empty name selects the default connection.
func (r *Registry) Dispatcher(name string) (*Dispatcher, error) {
	entry, err := r.entry(name)
	if err != nil {
		return nil, err
	}
	return entry.dispatcher, nil
}

// ConnectionNames lists the registered names in registration order.
func (r *Registry) ConnectionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// DefaultConnectionName returns the first registered name, or "" when
// the registry is empty.
func (r *Registry) DefaultConnectionName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.names) == 0 {
		return ""
	}
	return r.names[0]
}

// Connections materializes every registered connection, in order. The
// first construction failure aborts the walk.
func (r *Registry) Connections() ([]Connection, error) {
	names := r.ConnectionNames()
	conns := make([]Connection, 0, len(names))
	for _, name := range names {
		conn, err := r.Connection(name)
		if err != nil {
			return nil, err
		}
		conns = append(conns, conn)
	}
	return conns, nil
}

func (r *Registry) entry(name string) (*registryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		if len(r.names) == 0 {
			return nil, &UnknownConnectionError{Name: name}
		}
		name = r.names[0]
	}
	entry, ok := r.entries[name]
	if !ok {
		return nil, &UnknownConnectionError{Name: name}
	}
	return entry, nil
}
