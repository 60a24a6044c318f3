package identity

import (
	"time"
)

// Principal is the minimal identity surface an authentication token can
// carry.
type Principal interface {
	GetUsername() string
}

// DirectoryUser is a user record backed by a directory account entry.
// Implementations own the persistence shape; the provider only relies on
// this surface to populate and refresh records.
type DirectoryUser interface {
	Principal

	GetDN() string
	SetDN(dn string)

	GetUniqueID() string
	SetUniqueID(id string)

	SetUsername(username string)

	GetRoles() []Role
	SetRoles(roles []Role)

	GetFirstName() string
	SetFirstName(name string)

	GetLastName() string
	SetLastName(name string)

	GetDisplayName() string
	SetDisplayName(name string)

	GetEmail() string
	SetEmail(email string)

	GetPicture() []byte
	SetPicture(data []byte)

	RefreshInfo() *RefreshInfo
}

// RefreshInfo tracks how fresh a user record is and how many refresh
// requests were answered from the cached state since the last reload.
type RefreshInfo struct {
	LastRefresh            time.Time
	SkippedRefreshRequests int
}

// MarkRefreshed records a completed reload and resets the skip counter.
func (i *RefreshInfo) MarkRefreshed(now time.Time) {
	i.LastRefresh = now
	i.SkippedRefreshRequests = 0
}

// LdapUser is the default DirectoryUser implementation.
type LdapUser struct {
	DN          string
	UniqueID    string
	Username    string
	FirstName   string
	LastName    string
	DisplayName string
	Email       string
	Picture     []byte
	Roles       []Role

	// Refresh is exported so serialized records keep their throttle
	// state across requests.
	Refresh RefreshInfo
}

// NewLdapUser returns an empty user record ready for population.
func NewLdapUser() *LdapUser {
	return &LdapUser{}
}

func (u *LdapUser) GetUsername() string         { return u.Username }
func (u *LdapUser) SetUsername(username string) { u.Username = username }

func (u *LdapUser) GetDN() string   { return u.DN }
func (u *LdapUser) SetDN(dn string) { u.DN = dn }

func (u *LdapUser) GetUniqueID() string   { return u.UniqueID }
func (u *LdapUser) SetUniqueID(id string) { u.UniqueID = id }

func (u *LdapUser) GetRoles() []Role      { return u.Roles }
func (u *LdapUser) SetRoles(roles []Role) { u.Roles = roles }

func (u *LdapUser) GetFirstName() string     { return u.FirstName }
func (u *LdapUser) SetFirstName(name string) { u.FirstName = name }

func (u *LdapUser) GetLastName() string     { return u.LastName }
func (u *LdapUser) SetLastName(name string) { u.LastName = name }

func (u *LdapUser) GetDisplayName() string     { return u.DisplayName }
func (u *LdapUser) SetDisplayName(name string) { u.DisplayName = name }

func (u *LdapUser) GetEmail() string      { return u.Email }
func (u *LdapUser) SetEmail(email string) { u.Email = email }

func (u *LdapUser) GetPicture() []byte     { return u.Picture }
func (u *LdapUser) SetPicture(data []byte) { u.Picture = data }

func (u *LdapUser) RefreshInfo() *RefreshInfo { return &u.Refresh }

// RoleNames returns the plain role strings, in role order.
func (u *LdapUser) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		names = append(names, role.RoleName())
	}
	return names
}
