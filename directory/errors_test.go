package directory

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDirectoryErrorFromLDAPError(t *testing.T) {
	tests := []struct {
		name     string
		code     uint16
		category ErrorCategory
	}{
		{name: "invalid credentials", code: ldap.LDAPResultInvalidCredentials, category: ErrorCategoryAuthentication},
		{name: "insufficient access", code: ldap.LDAPResultInsufficientAccessRights, category: ErrorCategoryPermission},
		{name: "no such object", code: ldap.LDAPResultNoSuchObject, category: ErrorCategoryNotFound},
		{name: "entry exists", code: ldap.LDAPResultEntryAlreadyExists, category: ErrorCategoryConflict},
		{name: "invalid DN syntax", code: ldap.LDAPResultInvalidDNSyntax, category: ErrorCategoryValidation},
		{name: "server down", code: ldap.LDAPResultServerDown, category: ErrorCategoryServer},
		{name: "protocol error", code: ldap.LDAPResultProtocolError, category: ErrorCategoryConnection},
		{name: "unmapped code", code: ldap.LDAPResultOther, category: ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cause := ldap.NewError(tt.code, fmt.Errorf("server said no"))
			err := NewDirectoryError("bind", cause)

			require.NotNil(t, err)
			assert.Equal(t, "bind", err.Operation)
			assert.Equal(t, tt.code, err.LDAPCode)
			assert.Equal(t, tt.category, err.Category)
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestNewDirectoryErrorGeneric(t *testing.T) {
	err := NewDirectoryError("search", fmt.Errorf("network unreachable"))
	assert.Equal(t, ErrorCategoryConnection, err.Category)
	assert.Zero(t, err.LDAPCode)

	err = NewDirectoryError("bind", fmt.Errorf("wrong password"))
	assert.Equal(t, ErrorCategoryAuthentication, err.Category)

	assert.Nil(t, NewDirectoryError("noop", nil))
}

func TestWrapErrorIdempotent(t *testing.T) {
	inner := NewDirectoryError("bind", fmt.Errorf("wrong password"))
	wrapped := WrapError("authenticate", inner)

	var dirErr *DirectoryError
	require.ErrorAs(t, wrapped, &dirErr)
	// The original operation wins; wrapping does not stack.
	assert.Equal(t, "bind", dirErr.Operation)
	assert.Same(t, inner, dirErr)
}

func TestErrorCategoryOf(t *testing.T) {
	assert.Equal(t, ErrorCategoryUnknown, ErrorCategoryOf(nil))

	raw := ldap.NewError(ldap.LDAPResultInvalidCredentials, fmt.Errorf("bad"))
	assert.Equal(t, ErrorCategoryAuthentication, ErrorCategoryOf(raw))

	wrapped := fmt.Errorf("outer: %w", NewDirectoryError("bind", raw))
	assert.Equal(t, ErrorCategoryAuthentication, ErrorCategoryOf(wrapped))
}

func TestIsAuthenticationError(t *testing.T) {
	raw := ldap.NewError(ldap.LDAPResultInvalidCredentials, fmt.Errorf("bad"))
	assert.True(t, IsAuthenticationError(NewDirectoryError("bind", raw)))
	assert.False(t, IsAuthenticationError(fmt.Errorf("disk full")))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, IsNotFoundError(ErrNoSuchAccount))
	assert.True(t, IsNotFoundError(fmt.Errorf("lookup: %w", ErrNoSuchAccount)))

	raw := ldap.NewError(ldap.LDAPResultNoSuchObject, fmt.Errorf("missing"))
	assert.True(t, IsNotFoundError(NewDirectoryError("read", raw)))

	assert.False(t, IsNotFoundError(errors.New("other")))
}

func TestDirectoryErrorMessage(t *testing.T) {
	raw := ldap.NewError(ldap.LDAPResultInvalidCredentials, fmt.Errorf("80090308: LdapErr"))
	err := NewDirectoryError("bind", raw)
	err.DN = "CN=john,DC=example,DC=com"

	msg := err.Error()
	assert.Contains(t, msg, "bind")
	assert.Contains(t, msg, "code 49")
	assert.Contains(t, msg, "CN=john,DC=example,DC=com")
}
