package identity

import (
	"fmt"
	"strings"
)

// UnknownConnectionError reports a request for a connection name the
// registry never registered.
type UnknownConnectionError struct {
	Name string
}

func (e *UnknownConnectionError) Error() string {
	return fmt.Sprintf("directory connection named %q does not exist", e.Name)
}

// UserNotFoundError reports that no configured connection matched the
// username. The searched connection names are part of the message.
type UserNotFoundError struct {
	Username    string
	Connections []string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("could not find username %q on directory connections %s",
		e.Username, strings.Join(e.Connections, ", "))
}

// UnsupportedUserError reports a record type the provider does not own.
type UnsupportedUserError struct {
	User any
}

func (e *UnsupportedUserError) Error() string {
	return fmt.Sprintf("user records of type %T are not supported by this provider", e.User)
}

// BadCredentialsError is the single failure kind for credential
// verification. Its Error() string is deliberately opaque; the detailed
// reason stays on the value for internal diagnostics only.
type BadCredentialsError struct {
	Reason string
	Cause  error
}

func (e *BadCredentialsError) Error() string {
	return "presented credentials are invalid"
}

func (e *BadCredentialsError) Unwrap() error {
	return e.Cause
}

// Diagnostic returns the internal reason, never shown to end users.
func (e *BadCredentialsError) Diagnostic() string {
	if e.Cause != nil {
		return e.Reason + ": " + e.Cause.Error()
	}
	return e.Reason
}

func badCredentials(reason string, cause error) *BadCredentialsError {
	return &BadCredentialsError{Reason: reason, Cause: cause}
}
