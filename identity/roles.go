package identity

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dirauth/ldapident/directory"
)

// Role is one granted authorization. Roles compare by their role string;
// two roles with the same RoleName are the same grant regardless of how
// they were produced.
type Role interface {
	RoleName() string
}

// StringRole is a plain role string.
type StringRole string

func (r StringRole) RoleName() string { return string(r) }

// GroupMemberRole is a role granted because of membership in a specific
// directory group. It carries the group context alongside the role
// string.
type GroupMemberRole struct {
	Role             string
	GroupDN          string
	GroupName        string
	GroupDescription string
}

func (r *GroupMemberRole) RoleName() string { return r.Role }

// NewGroupMemberRole builds a structured role from a group entry.
func NewGroupMemberRole(role string, group *directory.GroupEntry) *GroupMemberRole {
	r := &GroupMemberRole{Role: role}
	if group != nil {
		r.GroupDN = group.DN
		r.GroupName = group.Name
		r.GroupDescription = group.Description
	}
	return r
}

var roleNameCleaner = regexp.MustCompile(`[^A-Z0-9]+`)

// GenerateRoleName derives a role string from a group name: uppercase,
// runs of non-alphanumerics collapsed to single underscores, prefixed
// with ROLE_.
func GenerateRoleName(groupName string) string {
	name := roleNameCleaner.ReplaceAllString(strings.ToUpper(groupName), "_")
	name = strings.Trim(name, "_")
	return "ROLE_" + name
}

// RoleResolver collects roles for one user during role resolution. It
// deduplicates by role string and remembers which groups have already
// contributed roles, so later stages can skip them.
type RoleResolver struct {
	roles    []Role
	seen     map[string]struct{}
	resolved map[string]struct{}
}

func newRoleResolver() *RoleResolver {
	return &RoleResolver{
		seen:     make(map[string]struct{}),
		resolved: make(map[string]struct{}),
	}
}

// AddRoles appends roles, skipping any whose role string was already
// added.
func (r *RoleResolver) AddRoles(roles ...Role) {
	for _, role := range roles {
		if role == nil {
			continue
		}
		name := role.RoleName()
		if _, dup := r.seen[name]; dup {
			continue
		}
		r.seen[name] = struct{}{}
		r.roles = append(r.roles, role)
	}
}

// AddRoleNames grants plain role strings. When a group is given, the
// roles are recorded as group-member roles and the group is marked
// resolved.
func (r *RoleResolver) AddRoleNames(group *directory.GroupEntry, names ...string) {
	for _, name := range names {
		if group != nil {
			r.AddRoles(NewGroupMemberRole(name, group))
		} else {
			r.AddRoles(StringRole(name))
		}
	}
	if group != nil {
		r.MarkResolved(group)
	}
}

// AddGeneratedRole grants the automatically derived role for a group and
// marks the group resolved.
func (r *RoleResolver) AddGeneratedRole(group *directory.GroupEntry) {
	if group == nil {
		return
	}
	r.AddRoles(NewGroupMemberRole(GenerateRoleName(group.Name), group))
	r.MarkResolved(group)
}

// HasGroupBeenResolved reports whether any earlier stage already granted
// roles for this group.
func (r *RoleResolver) HasGroupBeenResolved(group *directory.GroupEntry) bool {
	if group == nil {
		return false
	}
	_, ok := r.resolved[groupKey(group)]
	return ok
}

// MarkResolved records that the group contributed roles, without adding
// any.
func (r *RoleResolver) MarkResolved(group *directory.GroupEntry) {
	if group == nil {
		return
	}
	r.resolved[groupKey(group)] = struct{}{}
}

// Roles returns the collected roles in insertion order.
func (r *RoleResolver) Roles() []Role {
	return r.roles
}

// groupKey identifies a group across separately fetched entry values.
// Groups are keyed by normalized DN, falling back to name for entries
// without one.
func groupKey(group *directory.GroupEntry) string {
	if group.DN != "" {
		if dn, err := directory.NormalizeDN(group.DN); err == nil {
			return strings.ToLower(dn)
		}
		return strings.ToLower(group.DN)
	}
	return "name:" + strings.ToLower(group.Name)
}

// RoleRule maps groups matching a pattern to a fixed set of roles. An
// empty pattern matches every group. Patterns are case-insensitive
// regular expressions matched against the group name.
type RoleRule struct {
	GroupPattern string
	Roles        []string
}

type compiledRule struct {
	pattern *regexp.Regexp
	roles   []string
}

// DefaultRoleResolver is the stock role-resolution listener: it applies
// pattern rules in order, then optionally generates a role per remaining
// group.
type DefaultRoleResolver struct {
	automatic bool
	rules     []compiledRule
}

// NewDefaultRoleResolver compiles the rule patterns. With automatic set,
// groups not consumed by any rule each yield a generated ROLE_ name.
func NewDefaultRoleResolver(automatic bool, rules []RoleRule) (*DefaultRoleResolver, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		var re *regexp.Regexp
		if rule.GroupPattern != "" {
			var err error
			re, err = regexp.Compile("(?i)" + rule.GroupPattern)
			if err != nil {
				return nil, fmt.Errorf("invalid group pattern %q: %w", rule.GroupPattern, err)
			}
		}
		compiled = append(compiled, compiledRule{pattern: re, roles: rule.Roles})
	}
	return &DefaultRoleResolver{automatic: automatic, rules: compiled}, nil
}

// OnResolvingRoles implements RoleListener. Pattern rules run first in
// configured order, then wildcard rules grant their roles untagged, then
// automatic generation covers the groups no pattern rule consumed.
func (d *DefaultRoleResolver) OnResolvingRoles(event *ResolvingRolesEvent) {
	resolver := event.RoleResolver()

	for _, rule := range d.rules {
		if rule.pattern == nil {
			continue
		}
		for _, group := range event.Groups {
			if rule.pattern.MatchString(group.Name) {
				resolver.AddRoleNames(group, rule.roles...)
			}
		}
	}

	for _, rule := range d.rules {
		if rule.pattern != nil {
			continue
		}
		resolver.AddRoleNames(nil, rule.roles...)
	}

	if !d.automatic {
		return
	}
	for _, group := range event.Groups {
		if resolver.HasGroupBeenResolved(group) {
			continue
		}
		resolver.AddGeneratedRole(group)
	}
}
