/*
Package identity builds user records, roles and authentication on top of
the directory layer.

A Registry holds named directory connections in registration order, each
with its own role-resolution Dispatcher. The UserProvider walks those
connections to load a record by username, resolves the account's groups
and fires one ResolvingRolesEvent on the matching connection's
dispatcher; listeners grant roles through the event's RoleResolver. The
Authenticator then verifies presented credentials with a directory bind
on the connection whose search base covers the record's DN.

	registry := identity.NewRegistry()
	registry.Register("corp", func() (identity.Connection, error) {
		return directory.NewConnection(cfg, logger), nil
	})

	resolver, _ := identity.NewDefaultRoleResolver(true, rules)
	dispatcher, _ := registry.Dispatcher("corp")
	dispatcher.Subscribe(resolver)

	provider := identity.NewUserProvider(registry, identity.ProviderConfig{})
	user, err := provider.LoadByUsername(ctx, "jdoe")

Refreshing a record is throttled: Refresh answers from the cached
record until the configured request-count or age policy triggers a
reload.
*/
package identity
