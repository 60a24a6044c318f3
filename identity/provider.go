package identity

import (
	"context"
	"errors"
	"time"

	"github.com/dirauth/ldapident/directory"
)

// ProviderConfig configures a UserProvider.
type ProviderConfig struct {
	// Connections limits the provider to a subset of the registry, in
	// the given order. Empty means every registered connection.
	Connections []string

	// NewUser builds an empty user record for population. Defaults to
	// NewLdapUser.
	NewUser func() DirectoryUser

	// Supports reports whether a record type belongs to this provider.
	// Defaults to accepting *LdapUser.
	Supports func(user any) bool

	// UsernameForm selects the canonical representation stored on
	// loaded records. Empty uses each connection's configured form.
	UsernameForm directory.NameForm

	// RefreshEveryRequests reloads a record once this many refresh
	// requests accumulated since the last reload. Zero disables the
	// request-count policy.
	RefreshEveryRequests int

	// RefreshAfter reloads a record once this much time passed since
	// the last reload. Zero disables the time policy.
	RefreshAfter time.Duration

	// AlwaysRefresh reloads on every request, overriding both policies.
	AlwaysRefresh bool

	Logger directory.Logger
}

// UserProvider loads and refreshes directory-backed user records across
// the registry's connections.
type UserProvider struct {
	registry *Registry
	cfg      ProviderConfig

	now func() time.Time
}

// NewUserProvider builds a provider over the registry. AlwaysRefresh
// collapses to a request-count threshold of one.
func NewUserProvider(registry *Registry, cfg ProviderConfig) *UserProvider {
	if cfg.NewUser == nil {
		cfg.NewUser = func() DirectoryUser { return NewLdapUser() }
	}
	if cfg.Supports == nil {
		cfg.Supports = func(user any) bool {
			_, ok := user.(*LdapUser)
			return ok
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = directory.NopLogger{}
	}
	if cfg.AlwaysRefresh {
		cfg.RefreshEveryRequests = 1
		cfg.RefreshAfter = 0
	}
	return &UserProvider{
		registry: registry,
		cfg:      cfg,
		now:      time.Now,
	}
}

// LoadByUsername searches the configured connections in order and
// returns a populated record from the first one that knows the
// username. Exactly one role-resolution event fires, on the matching
// connection's dispatcher. A miss on every connection yields
// *UserNotFoundError.
func (p *UserProvider) LoadByUsername(ctx context.Context, username string) (DirectoryUser, error) {
	names := p.connectionNames()

	for _, name := range names {
		conn, err := p.registry.Connection(name)
		if err != nil {
			return nil, err
		}

		account, err := conn.FindAccountByUsername(ctx, username)
		if errors.Is(err, directory.ErrNoSuchAccount) {
			p.cfg.Logger.Debug("username not found on connection", map[string]any{
				"username":   username,
				"connection": name,
			})
			continue
		}
		if err != nil {
			return nil, err
		}

		user := p.cfg.NewUser()
		if err := p.populate(ctx, name, conn, user, account); err != nil {
			return nil, err
		}
		return user, nil
	}

	return nil, &UserNotFoundError{Username: username, Connections: names}
}

// Refresh returns the record to use for the current request: the cached
// record while the throttle holds, or a freshly loaded one once a
// policy triggers. With no policy configured the cached record is
// always returned.
func (p *UserProvider) Refresh(ctx context.Context, user any) (DirectoryUser, error) {
	du, ok := user.(DirectoryUser)
	if !ok || !p.cfg.Supports(user) {
		return nil, &UnsupportedUserError{User: user}
	}

	info := du.RefreshInfo()
	info.SkippedRefreshRequests++

	if !p.shouldReload(info) {
		return du, nil
	}

	fresh, err := p.LoadByUsername(ctx, du.GetUsername())
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// Supports reports whether the record belongs to this provider.
func (p *UserProvider) Supports(user any) bool {
	return p.cfg.Supports(user)
}

func (p *UserProvider) shouldReload(info *RefreshInfo) bool {
	if p.cfg.RefreshEveryRequests > 0 && p.cfg.RefreshEveryRequests <= info.SkippedRefreshRequests {
		return true
	}
	if p.cfg.RefreshAfter > 0 && p.now().Sub(info.LastRefresh) >= p.cfg.RefreshAfter {
		return true
	}
	return false
}

// populate fills the record from the account entry, resolves groups,
// runs role resolution and stamps the refresh info.
func (p *UserProvider) populate(ctx context.Context, connName string, conn Connection, user DirectoryUser, account *directory.AccountEntry) error {
	cfg := conn.Config()

	canonical, err := cfg.CanonicalAccountName(account, p.cfg.UsernameForm)
	if err != nil {
		return err
	}

	user.SetUsername(canonical)
	user.SetDN(account.DN)
	user.SetUniqueID(account.UniqueID)
	user.SetFirstName(account.FirstName)
	user.SetLastName(account.LastName)
	user.SetDisplayName(account.DisplayName)
	user.SetEmail(account.Email)
	user.SetPicture(account.Picture)

	groups, err := conn.FindGroupsForAccount(ctx, account)
	if err != nil {
		return err
	}

	dispatcher, err := p.registry.Dispatcher(connName)
	if err != nil {
		return err
	}

	resolver := newRoleResolver()
	// Roles already on the record (a factory may pre-seed them) stay
	// and take part in deduplication.
	resolver.AddRoles(user.GetRoles()...)

	event := &ResolvingRolesEvent{
		Connection: conn,
		User:       user,
		Account:    account,
		Groups:     groups,
		resolver:   resolver,
	}
	dispatcher.Dispatch(event)
	user.SetRoles(resolver.Roles())

	user.RefreshInfo().MarkRefreshed(p.now())

	p.cfg.Logger.Debug("user record populated", map[string]any{
		"username":   canonical,
		"connection": connName,
		"groups":     len(groups),
		"roles":      len(user.GetRoles()),
	})
	return nil
}

func (p *UserProvider) connectionNames() []string {
	if len(p.cfg.Connections) > 0 {
		return p.cfg.Connections
	}
	return p.registry.ConnectionNames()
}
