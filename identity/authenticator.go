package identity

import (
	"context"

	"github.com/dirauth/ldapident/directory"
)

// PasswordChecker verifies credentials for records that are not
// directory-backed, letting the authenticator fall back to another
// credential store.
type PasswordChecker interface {
	CheckPassword(user Principal, password string) error
}

// Token carries what the caller presented for authentication: an
// optional already-resolved user and the plain credentials.
type Token struct {
	// User is the record attached to the token, if any. A DirectoryUser
	// here means a prior authentication is being revalidated.
	User any

	// Credentials is the presented plain-text password.
	Credentials string
}

// Authenticator verifies presented credentials against the directory.
// The loaded user's DN decides which registry connection performs the
// bind.
type Authenticator struct {
	registry *Registry
	fallback PasswordChecker
	log      directory.Logger
}

// NewAuthenticator builds an authenticator over the registry. The
// fallback checker may be nil; without one, tokens carrying a
// non-directory user are rejected.
func NewAuthenticator(registry *Registry, fallback PasswordChecker, log directory.Logger) *Authenticator {
	if log == nil {
		log = directory.NopLogger{}
	}
	return &Authenticator{registry: registry, fallback: fallback, log: log}
}

// CheckAuthentication verifies the token against the loaded user
// record. A record that is not directory-backed is handed to the
// fallback checker. Every failure surfaces as *BadCredentialsError with
// an opaque message; the detailed reason stays on the value.
func (a *Authenticator) CheckAuthentication(ctx context.Context, loadedUser any, token Token) error {
	user, ok := loadedUser.(DirectoryUser)
	if !ok {
		principal, ok := loadedUser.(Principal)
		if !ok {
			return badCredentials("loaded record is not an authenticatable principal", nil)
		}
		if a.fallback == nil {
			return badCredentials("loaded record is not directory-backed and no fallback checker is configured", nil)
		}
		if err := a.fallback.CheckPassword(principal, token.Credentials); err != nil {
			return badCredentials("fallback password check failed", err)
		}
		return nil
	}

	switch tokenUser := token.User.(type) {
	case DirectoryUser:
		// Revalidation of a directory-backed session. The token's
		// record must denote the same directory entry as the loaded
		// one.
		if directory.EqualDN(tokenUser.GetDN(), user.GetDN()) {
			return nil
		}
		return badCredentials("token user and loaded record map to different directory entries", nil)

	case Principal:
		if a.fallback == nil {
			return badCredentials("token user is not directory-backed and no fallback checker is configured", nil)
		}
		if err := a.fallback.CheckPassword(tokenUser, token.Credentials); err != nil {
			return badCredentials("fallback password check failed", err)
		}
		return nil

	case nil:
		return a.bindCheck(ctx, user, token.Credentials)

	default:
		return badCredentials("token carries an unsupported user type", nil)
	}
}

// bindCheck verifies the password with a directory bind on the
// connection whose search base covers the user's DN.
func (a *Authenticator) bindCheck(ctx context.Context, user DirectoryUser, password string) error {
	if password == "" {
		return badCredentials("the presented password cannot be empty", nil)
	}

	name, conn, err := a.connectionForUser(user)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	bindName := user.GetUsername()
	if conn.Config().BindRequiresDN {
		bindName = user.GetDN()
	}

	if err := conn.Bind(ctx, bindName, password); err != nil {
		a.log.Debug("directory bind rejected credentials", map[string]any{
			"username":   user.GetUsername(),
			"connection": name,
		})
		return badCredentials("directory bind failed", err)
	}
	return nil
}

// connectionForUser picks the first registered connection whose account
// search base is an ancestor of the user's DN.
func (a *Authenticator) connectionForUser(user DirectoryUser) (string, Connection, error) {
	dn := user.GetDN()
	if dn == "" {
		return "", nil, badCredentials("loaded record carries no DN", nil)
	}

	for _, name := range a.registry.ConnectionNames() {
		conn, err := a.registry.Connection(name)
		if err != nil {
			return "", nil, err
		}
		base := conn.Config().AccountSearchDN()
		if base == "" {
			continue
		}
		if directory.IsDescendantOf(dn, base) {
			return name, conn, nil
		}
	}

	return "", nil, badCredentials("no configured connection covers the user's DN", nil)
}
