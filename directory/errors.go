package directory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrNoSuchAccount is returned by account lookups that match no entry.
var ErrNoSuchAccount = errors.New("no such account")

// ErrorCategory classifies directory errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryConflict       ErrorCategory = "conflict"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// DirectoryError carries structured context for a failed directory
// operation: what was attempted, the LDAP result code when the server
// produced one, and the classified category.
type DirectoryError struct {
	Operation string
	Category  ErrorCategory
	LDAPCode  uint16
	ServerMsg string
	DN        string
	Cause     error
}

func (e *DirectoryError) Error() string {
	var parts []string

	if e.LDAPCode > 0 {
		parts = append(parts, fmt.Sprintf("directory %s failed (code %d)", e.Operation, e.LDAPCode))
	} else {
		parts = append(parts, fmt.Sprintf("directory %s failed", e.Operation))
	}
	if e.ServerMsg != "" {
		parts = append(parts, "server: "+e.ServerMsg)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	if e.DN != "" {
		parts = append(parts, "DN: "+e.DN)
	}

	return strings.Join(parts, " - ")
}

func (e *DirectoryError) Unwrap() error {
	return e.Cause
}

// NewDirectoryError wraps an underlying error with operation context,
// extracting result code and category from go-ldap errors.
func NewDirectoryError(operation string, err error) *DirectoryError {
	if err == nil {
		return nil
	}

	dirErr := &DirectoryError{
		Operation: operation,
		Cause:     err,
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		dirErr.LDAPCode = ldapErr.ResultCode
		dirErr.Category = categorizeCode(ldapErr.ResultCode)
		if ldapErr.Err != nil {
			dirErr.ServerMsg = ldapErr.Err.Error()
		}
	} else {
		dirErr.Category = categorizeGeneric(err)
	}

	return dirErr
}

// WrapError wraps err with operation context unless it already carries a
// DirectoryError.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var dirErr *DirectoryError
	if errors.As(err, &dirErr) {
		if dirErr.Operation == "" {
			dirErr.Operation = operation
		}
		return err
	}

	return NewDirectoryError(operation, err)
}

func categorizeCode(code uint16) ErrorCategory {
	switch code {
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired:
		return ErrorCategoryAuthentication

	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	case ldap.LDAPResultNoSuchObject,
		ldap.LDAPResultNoSuchAttribute,
		ldap.LDAPResultUndefinedAttributeType:
		return ErrorCategoryNotFound

	case ldap.LDAPResultEntryAlreadyExists,
		ldap.LDAPResultAttributeOrValueExists:
		return ErrorCategoryConflict

	case ldap.LDAPResultInvalidAttributeSyntax,
		ldap.LDAPResultConstraintViolation,
		ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultFilterError:
		return ErrorCategoryValidation

	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded:
		return ErrorCategoryServer

	case ldap.LDAPResultConnectError,
		ldap.LDAPResultProtocolError:
		return ErrorCategoryConnection

	default:
		return ErrorCategoryUnknown
	}
}

func categorizeGeneric(err error) ErrorCategory {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "connection"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "broken pipe"):
		return ErrorCategoryConnection
	case strings.Contains(msg, "credentials"),
		strings.Contains(msg, "password"),
		strings.Contains(msg, "authentication"):
		return ErrorCategoryAuthentication
	case strings.Contains(msg, "permission"),
		strings.Contains(msg, "denied"):
		return ErrorCategoryPermission
	default:
		return ErrorCategoryUnknown
	}
}

// ErrorCategoryOf classifies any error, wrapped or raw.
func ErrorCategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var dirErr *DirectoryError
	if errors.As(err, &dirErr) {
		return dirErr.Category
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return categorizeCode(ldapErr.ResultCode)
	}

	return categorizeGeneric(err)
}

// IsAuthenticationError reports whether err indicates rejected
// credentials rather than an operational failure.
func IsAuthenticationError(err error) bool {
	return ErrorCategoryOf(err) == ErrorCategoryAuthentication
}

// IsNotFoundError reports whether err indicates a missing entry.
func IsNotFoundError(err error) bool {
	if errors.Is(err, ErrNoSuchAccount) {
		return true
	}
	return ErrorCategoryOf(err) == ErrorCategoryNotFound
}
