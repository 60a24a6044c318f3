package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirauth/ldapident/directory"
)

func providerFixture(t *testing.T) (*Registry, *fakeConnection, *fakeConnection) {
	t.Helper()

	corp := newFakeConnection("DC=corp,DC=example,DC=com")
	lab := newFakeConnection("DC=lab,DC=example,DC=com")

	registry := NewRegistry()
	registry.Register("corp", func() (Connection, error) { return corp, nil })
	registry.Register("lab", func() (Connection, error) { return lab, nil })

	return registry, corp, lab
}

func TestLoadByUsername(t *testing.T) {
	registry, corp, _ := providerFixture(t)
	corp.addAccount(&directory.AccountEntry{
		DN:          "CN=John Smith,OU=users,DC=corp,DC=example,DC=com",
		UniqueID:    "11111111-2222-3333-4444-555555555555",
		Username:    "jsmith",
		FirstName:   "John",
		LastName:    "Smith",
		DisplayName: "John Smith",
		Email:       "jsmith@example.com",
		Picture:     []byte{0x01},
	})

	provider := NewUserProvider(registry, ProviderConfig{})

	user, err := provider.LoadByUsername(context.Background(), "jsmith")
	require.NoError(t, err)

	assert.Equal(t, "jsmith", user.GetUsername())
	assert.Equal(t, "CN=John Smith,OU=users,DC=corp,DC=example,DC=com", user.GetDN())
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", user.GetUniqueID())
	assert.Equal(t, "John", user.GetFirstName())
	assert.Equal(t, "Smith", user.GetLastName())
	assert.Equal(t, "John Smith", user.GetDisplayName())
	assert.Equal(t, "jsmith@example.com", user.GetEmail())
	assert.Equal(t, []byte{0x01}, user.GetPicture())
	assert.Zero(t, user.RefreshInfo().SkippedRefreshRequests)
	assert.False(t, user.RefreshInfo().LastRefresh.IsZero())
}

func TestLoadByUsernameWalksConnectionsInOrder(t *testing.T) {
	registry, corp, lab := providerFixture(t)
	lab.addAccount(&directory.AccountEntry{
		DN:       "CN=jane,OU=users,DC=lab,DC=example,DC=com",
		Username: "jane",
	})

	provider := NewUserProvider(registry, ProviderConfig{})

	user, err := provider.LoadByUsername(context.Background(), "jane")
	require.NoError(t, err)
	assert.Equal(t, "jane", user.GetUsername())

	// The first connection was asked and missed before the second hit.
	assert.Equal(t, []string{"jane"}, corp.lookups)
	assert.Equal(t, []string{"jane"}, lab.lookups)
}

func TestLoadByUsernameNotFound(t *testing.T) {
	registry, _, _ := providerFixture(t)
	provider := NewUserProvider(registry, ProviderConfig{})

	_, err := provider.LoadByUsername(context.Background(), "ghost")

	var notFound *UserNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Username)
	assert.Equal(t, []string{"corp", "lab"}, notFound.Connections)
	assert.Contains(t, err.Error(), "corp, lab")
}

func TestLoadByUsernameDispatchesOneEvent(t *testing.T) {
	registry, corp, lab := providerFixture(t)
	account := &directory.AccountEntry{
		DN:       "CN=jane,OU=users,DC=lab,DC=example,DC=com",
		Username: "jane",
	}
	group := &directory.GroupEntry{DN: "CN=Ops,OU=groups,DC=lab,DC=example,DC=com", Name: "Ops"}
	lab.addAccount(account, group)

	var corpEvents, labEvents int
	corpDisp, err := registry.Dispatcher("corp")
	require.NoError(t, err)
	corpDisp.Subscribe(RoleListenerFunc(func(*ResolvingRolesEvent) { corpEvents++ }))

	labDisp, err := registry.Dispatcher("lab")
	require.NoError(t, err)
	labDisp.Subscribe(RoleListenerFunc(func(e *ResolvingRolesEvent) {
		labEvents++
		assert.Same(t, account, e.Account)
		require.Len(t, e.Groups, 1)
		assert.Same(t, group, e.Groups[0])
		e.RoleResolver().AddGeneratedRole(e.Groups[0])
	}))

	provider := NewUserProvider(registry, ProviderConfig{})
	user, err := provider.LoadByUsername(context.Background(), "jane")
	require.NoError(t, err)

	// Exactly one event, on the matching connection's dispatcher. The
	// first connection was still searched.
	assert.Equal(t, []string{"jane"}, corp.lookups)
	assert.Zero(t, corpEvents)
	assert.Equal(t, 1, labEvents)

	roles := user.GetRoles()
	require.Len(t, roles, 1)
	assert.Equal(t, "ROLE_OPS", roles[0].RoleName())
}

func TestLoadByUsernameConnectionSubset(t *testing.T) {
	registry, corp, lab := providerFixture(t)
	corp.addAccount(&directory.AccountEntry{
		DN:       "CN=jane,OU=users,DC=corp,DC=example,DC=com",
		Username: "jane",
	})

	provider := NewUserProvider(registry, ProviderConfig{Connections: []string{"lab"}})

	_, err := provider.LoadByUsername(context.Background(), "jane")
	var notFound *UserNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"lab"}, notFound.Connections)
	assert.Empty(t, corp.lookups)
	assert.Equal(t, []string{"jane"}, lab.lookups)
}

func TestLoadByUsernameCanonicalForm(t *testing.T) {
	registry, corp, _ := providerFixture(t)
	corp.cfg.DomainNameShort = "corp"
	corp.addAccount(&directory.AccountEntry{
		DN:       "CN=jane,OU=users,DC=corp,DC=example,DC=com",
		Username: "jane",
	})

	provider := NewUserProvider(registry, ProviderConfig{UsernameForm: directory.FormBackslash})

	user, err := provider.LoadByUsername(context.Background(), "jane")
	require.NoError(t, err)
	assert.Equal(t, `CORP\jane`, user.GetUsername())
}

func TestLoadByUsernameKeepsFactorySeededRoles(t *testing.T) {
	registry, corp, _ := providerFixture(t)
	account := &directory.AccountEntry{
		DN:       "CN=jane,OU=users,DC=corp,DC=example,DC=com",
		Username: "jane",
	}
	group := &directory.GroupEntry{DN: "CN=Ops,OU=groups,DC=corp,DC=example,DC=com", Name: "Ops"}
	corp.addAccount(account, group)

	dispatcher, err := registry.Dispatcher("corp")
	require.NoError(t, err)
	dispatcher.Subscribe(RoleListenerFunc(func(e *ResolvingRolesEvent) {
		// Granting a role the record already carries must not duplicate it.
		e.RoleResolver().AddRoles(StringRole("ROLE_BASE"))
		e.RoleResolver().AddGeneratedRole(e.Groups[0])
	}))

	provider := NewUserProvider(registry, ProviderConfig{
		NewUser: func() DirectoryUser {
			u := NewLdapUser()
			u.Roles = []Role{StringRole("ROLE_BASE")}
			return u
		},
	})

	user, err := provider.LoadByUsername(context.Background(), "jane")
	require.NoError(t, err)

	roles := user.GetRoles()
	require.Len(t, roles, 2)
	assert.Equal(t, "ROLE_BASE", roles[0].RoleName())
	assert.Equal(t, "ROLE_OPS", roles[1].RoleName())
}

func TestRefreshThrottleByRequestCount(t *testing.T) {
	registry, corp, _ := providerFixture(t)
	corp.addAccount(&directory.AccountEntry{
		DN:       "CN=jane,OU=users,DC=corp,DC=example,DC=com",
		Username: "jane",
	})

	provider := NewUserProvider(registry, ProviderConfig{RefreshEveryRequests: 3})

	user, err := provider.LoadByUsername(context.Background(), "jane")
	require.NoError(t, err)
	require.Equal(t, []string{"jane"}, corp.lookups)

	// Two requests are answered from the cached record.
	for i := 1; i <= 2; i++ {
		got, err := provider.Refresh(context.Background(), user)
		require.NoError(t, err)
		assert.Same(t, user, got)
		assert.Equal(t, i, got.(*LdapUser).RefreshInfo().SkippedRefreshRequests)
	}
	assert.Len(t, corp.lookups, 1)

	// The third request crosses the threshold and reloads.
	got, err := provider.Refresh(context.Background(), user)
	require.NoError(t, err)
	assert.NotSame(t, user, got)
	assert.Len(t, corp.lookups, 2)
	assert.Zero(t, got.(*LdapUser).RefreshInfo().SkippedRefreshRequests)
}

func TestRefreshThrottleByAge(t *testing.T) {
	registry, corp, _ := providerFixture(t)
	corp.addAccount(&directory.AccountEntry{
		DN:       "CN=jane,OU=users,DC=corp,DC=example,DC=com",
		Username: "jane",
	})

	provider := NewUserProvider(registry, ProviderConfig{RefreshAfter: 10 * time.Minute})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	provider.now = func() time.Time { return now }

	user, err := provider.LoadByUsername(context.Background(), "jane")
	require.NoError(t, err)

	// Young record, no reload.
	now = now.Add(5 * time.Minute)
	got, err := provider.Refresh(context.Background(), user)
	require.NoError(t, err)
	assert.Same(t, user, got)
	assert.Len(t, corp.lookups, 1)

	// Old enough, reloaded with a fresh timestamp.
	now = now.Add(6 * time.Minute)
	got, err = provider.Refresh(context.Background(), user)
	require.NoError(t, err)
	assert.NotSame(t, user, got)
	assert.Len(t, corp.lookups, 2)
	assert.Equal(t, now, got.(*LdapUser).RefreshInfo().LastRefresh)
}

func TestRefreshAlways(t *testing.T) {
	registry, corp, _ := providerFixture(t)
	corp.addAccount(&directory.AccountEntry{
		DN:       "CN=jane,OU=users,DC=corp,DC=example,DC=com",
		Username: "jane",
	})

	provider := NewUserProvider(registry, ProviderConfig{AlwaysRefresh: true})

	user, err := provider.LoadByUsername(context.Background(), "jane")
	require.NoError(t, err)

	got, err := provider.Refresh(context.Background(), user)
	require.NoError(t, err)
	assert.NotSame(t, user, got)
	assert.Len(t, corp.lookups, 2)
}

func TestRefreshWithoutPolicyKeepsCachedRecord(t *testing.T) {
	registry, corp, _ := providerFixture(t)
	corp.addAccount(&directory.AccountEntry{
		DN:       "CN=jane,OU=users,DC=corp,DC=example,DC=com",
		Username: "jane",
	})

	provider := NewUserProvider(registry, ProviderConfig{})

	user, err := provider.LoadByUsername(context.Background(), "jane")
	require.NoError(t, err)

	for range 5 {
		got, err := provider.Refresh(context.Background(), user)
		require.NoError(t, err)
		assert.Same(t, user, got)
	}
	assert.Len(t, corp.lookups, 1)
}

func TestRefreshUnsupportedUser(t *testing.T) {
	registry, _, _ := providerFixture(t)
	provider := NewUserProvider(registry, ProviderConfig{})

	_, err := provider.Refresh(context.Background(), "not a user")

	var unsupported *UnsupportedUserError
	require.ErrorAs(t, err, &unsupported)
	assert.False(t, provider.Supports("not a user"))
	assert.True(t, provider.Supports(NewLdapUser()))
}
