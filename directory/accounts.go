package directory

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// AccountRepository finds account entries on one connection.
type AccountRepository struct {
	conn *Connection
}

// FindByUsername returns the account entry matching the username, or
// ErrNoSuchAccount. More than one match is a directory integrity error.
func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (*AccountEntry, error) {
	if username == "" {
		return nil, ErrNoSuchAccount
	}

	cfg := r.conn.Config()
	filter := fmt.Sprintf("(&%s(%s=%s))",
		accountObjectFilter(cfg),
		cfg.Account.UsernameAttr,
		ldap.EscapeFilter(username))

	entries, err := r.conn.Search(ctx, cfg.AccountSearchDN(), filter, r.attributes(cfg), 2)
	if err != nil {
		return nil, err
	}

	switch len(entries) {
	case 0:
		return nil, ErrNoSuchAccount
	case 1:
		return accountFromEntry(cfg, entries[0])
	default:
		return nil, NewDirectoryError("account lookup",
			fmt.Errorf("username %q matches %d entries", username, len(entries)))
	}
}

func (r *AccountRepository) attributes(cfg *Config) []string {
	attrs := make([]string, 0, 8)
	for _, attr := range []string{
		cfg.Account.UsernameAttr,
		cfg.Account.UniqueIDAttr,
		cfg.Account.FirstNameAttr,
		cfg.Account.LastNameAttr,
		cfg.Account.DisplayNameAttr,
		cfg.Account.EmailAttr,
		cfg.Account.PictureAttr,
		cfg.Membership.AccountMembershipAttr,
	} {
		if attr != "" && !contains(attrs, attr) {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

func accountObjectFilter(cfg *Config) string {
	if cfg.Account.ObjectFilter != "" {
		return cfg.Account.ObjectFilter
	}
	if cfg.Account.ObjectClass != "" {
		return fmt.Sprintf("(objectClass=%s)", ldap.EscapeFilter(cfg.Account.ObjectClass))
	}
	return "(objectClass=*)"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
