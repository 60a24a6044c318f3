package identity

import (
	"context"

	"github.com/dirauth/ldapident/directory"
)

// fakeConnection satisfies Connection for provider and authenticator
// tests without a live directory.
type fakeConnection struct {
	cfg *directory.Config

	accounts map[string]*directory.AccountEntry
	groups   map[string][]*directory.GroupEntry

	findErr error
	bindErr error

	lookups     []string
	binds       [][2]string
	disconnects int
}

func newFakeConnection(baseDN string) *fakeConnection {
	cfg := directory.DefaultConfig()
	cfg.BaseDN = baseDN
	return &fakeConnection{
		cfg:      cfg,
		accounts: make(map[string]*directory.AccountEntry),
		groups:   make(map[string][]*directory.GroupEntry),
	}
}

func (f *fakeConnection) Config() *directory.Config { return f.cfg }

func (f *fakeConnection) FindAccountByUsername(_ context.Context, username string) (*directory.AccountEntry, error) {
	f.lookups = append(f.lookups, username)
	if f.findErr != nil {
		return nil, f.findErr
	}
	account, ok := f.accounts[username]
	if !ok {
		return nil, directory.ErrNoSuchAccount
	}
	return account, nil
}

func (f *fakeConnection) FindGroupsForAccount(_ context.Context, account *directory.AccountEntry) ([]*directory.GroupEntry, error) {
	return f.groups[account.DN], nil
}

func (f *fakeConnection) Bind(_ context.Context, username, password string) error {
	f.binds = append(f.binds, [2]string{username, password})
	return f.bindErr
}

func (f *fakeConnection) Disconnect() { f.disconnects++ }

func (f *fakeConnection) addAccount(account *directory.AccountEntry, groups ...*directory.GroupEntry) {
	f.accounts[account.Username] = account
	f.groups[account.DN] = groups
}
