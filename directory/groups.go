package directory

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// GroupRepository resolves group membership for account entries on one
// connection.
type GroupRepository struct {
	conn *Connection
}

// FindGroupsForAccount returns the groups the account belongs to, in a
// stable order. Depending on the membership schema this either follows
// the account's membership attribute (e.g. memberOf) or searches group
// objects whose members attribute names the account.
func (r *GroupRepository) FindGroupsForAccount(ctx context.Context, account *AccountEntry) ([]*GroupEntry, error) {
	if account == nil {
		return nil, fmt.Errorf("account entry cannot be nil")
	}

	cfg := r.conn.Config()
	if cfg.Membership.UseAttributeFromAccount && cfg.Membership.AccountMembershipAttr != "" {
		return r.groupsFromAccountAttribute(ctx, cfg, account)
	}
	return r.groupsFromMemberSearch(ctx, cfg, account)
}

// groupsFromAccountAttribute resolves each membership attribute value to
// a group entry. Values that no longer resolve (stale memberOf) are
// skipped. Order follows the attribute order.
func (r *GroupRepository) groupsFromAccountAttribute(ctx context.Context, cfg *Config, account *AccountEntry) ([]*GroupEntry, error) {
	groups := make([]*GroupEntry, 0, len(account.MemberOf))

	for _, value := range account.MemberOf {
		var (
			entry *ldap.Entry
			err   error
		)
		switch cfg.Membership.AccountMembershipMapping {
		case MapByName:
			entry, err = r.groupByName(ctx, cfg, value)
		default: // MapByDN
			entry, err = r.conn.searchBase(ctx, value, groupObjectFilter(cfg), r.attributes(cfg))
		}
		if err != nil {
			if IsNotFoundError(err) {
				continue
			}
			return nil, err
		}
		if entry == nil {
			continue
		}
		groups = append(groups, groupFromEntry(cfg, entry))
	}

	return groups, nil
}

// groupsFromMemberSearch finds groups whose members attribute carries
// the account's DN, username or unique ID.
func (r *GroupRepository) groupsFromMemberSearch(ctx context.Context, cfg *Config, account *AccountEntry) ([]*GroupEntry, error) {
	var memberValue string
	switch cfg.Membership.GroupMembersMapping {
	case MapByUsername:
		memberValue = account.Username
	case MapByUniqueID:
		memberValue = account.UniqueID
	default: // MapByDN
		memberValue = account.DN
	}
	if memberValue == "" {
		return nil, nil
	}

	filter := fmt.Sprintf("(&%s(%s=%s))",
		groupObjectFilter(cfg),
		cfg.Membership.GroupMembersAttr,
		ldap.EscapeFilter(memberValue))

	entries, err := r.conn.Search(ctx, cfg.GroupSearchDN(), filter, r.attributes(cfg), 0)
	if err != nil {
		return nil, err
	}

	groups := make([]*GroupEntry, 0, len(entries))
	for _, entry := range entries {
		groups = append(groups, groupFromEntry(cfg, entry))
	}
	return groups, nil
}

func (r *GroupRepository) groupByName(ctx context.Context, cfg *Config, name string) (*ldap.Entry, error) {
	filter := fmt.Sprintf("(&%s(%s=%s))",
		groupObjectFilter(cfg),
		cfg.Group.NameAttr,
		ldap.EscapeFilter(name))

	entries, err := r.conn.Search(ctx, cfg.GroupSearchDN(), filter, r.attributes(cfg), 1)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

func (r *GroupRepository) attributes(cfg *Config) []string {
	attrs := []string{cfg.Group.NameAttr}
	if cfg.Group.DescriptionAttr != "" {
		attrs = append(attrs, cfg.Group.DescriptionAttr)
	}
	return attrs
}

func groupObjectFilter(cfg *Config) string {
	if cfg.Group.ObjectFilter != "" {
		return cfg.Group.ObjectFilter
	}
	if cfg.Group.ObjectClass != "" {
		return fmt.Sprintf("(objectClass=%s)", ldap.EscapeFilter(cfg.Group.ObjectClass))
	}
	return "(objectClass=*)"
}
