package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/go-ldap/ldap/v3"
)

// Connection is the handle for a single configured directory. It owns a
// lazily established search session (bound with the service credentials)
// and, during credential verification, a dedicated bind connection that
// is always released through Disconnect.
type Connection struct {
	cfg *Config
	log Logger

	mu       sync.Mutex
	session  *ldap.Conn // search session, service-bound
	bindConn *ldap.Conn // verification bind, short-lived
}

// NewConnection creates a connection handle. Nothing is dialed until the
// first search or bind. A nil logger disables logging.
func NewConnection(cfg *Config, log Logger) *Connection {
	if log == nil {
		log = NopLogger{}
	}
	return &Connection{cfg: cfg, log: log}
}

// Config exposes the connection's immutable configuration.
func (c *Connection) Config() *Config {
	return c.cfg
}

func (c *Connection) dial(ctx context.Context) (*ldap.Conn, error) {
	dialer := &net.Dialer{Timeout: c.cfg.Timeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	tlsConfig := &tls.Config{
		ServerName:         c.cfg.Host,
		InsecureSkipVerify: c.cfg.SkipTLSVerify,
		MinVersion:         tls.VersionTLS12,
	}

	var (
		conn *ldap.Conn
		err  error
	)
	if c.cfg.UseSSL {
		conn, err = ldap.DialURL(c.cfg.URL(),
			ldap.DialWithDialer(dialer),
			ldap.DialWithTLSConfig(tlsConfig))
	} else {
		conn, err = ldap.DialURL(c.cfg.URL(), ldap.DialWithDialer(dialer))
	}
	if err != nil {
		return nil, NewDirectoryError("dial", err)
	}

	if c.cfg.UseStartTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, NewDirectoryError("starttls", err)
		}
	}

	conn.SetTimeout(c.cfg.Timeout)
	return conn, nil
}

// ensureSession returns the service-bound search session, establishing
// it on first use. Callers hold c.mu.
func (c *Connection) ensureSession(ctx context.Context) (*ldap.Conn, error) {
	if c.session != nil {
		return c.session, nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	switch {
	case c.cfg.Kerberos.Realm != "":
		if err := c.kerberosBind(conn); err != nil {
			conn.Close()
			return nil, err
		}
	case c.cfg.BindUser != "":
		if err := conn.Bind(c.cfg.BindUser, c.cfg.BindPassword); err != nil {
			conn.Close()
			return nil, NewDirectoryError("service bind", err)
		}
	default:
		if err := conn.UnauthenticatedBind(""); err != nil {
			conn.Close()
			return nil, NewDirectoryError("anonymous bind", err)
		}
	}

	c.log.Debug("directory session established", map[string]any{
		"host": c.cfg.Host,
		"port": c.cfg.Port,
	})
	c.session = conn
	return conn, nil
}

// Search runs a subtree search on the service session.
func (c *Connection) Search(ctx context.Context, baseDN, filter string, attrs []string, sizeLimit int) ([]*ldap.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		sizeLimit,
		int(c.cfg.Timeout.Seconds()),
		false,
		filter,
		attrs,
		nil,
	)

	result, err := session.Search(req)
	if err != nil {
		// A dead session is discarded so the next call redials.
		if ldap.IsErrorWithCode(err, ldap.LDAPResultServerDown) {
			c.session.Close()
			c.session = nil
		}
		return nil, WrapError("search", err)
	}

	return result.Entries, nil
}

// searchBase reads a single entry by DN.
func (c *Connection) searchBase(ctx context.Context, dn, filter string, attrs []string) (*ldap.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1,
		int(c.cfg.Timeout.Seconds()),
		false,
		filter,
		attrs,
		nil,
	)

	result, err := session.Search(req)
	if err != nil {
		return nil, WrapError("read", err)
	}
	if len(result.Entries) == 0 {
		return nil, nil
	}
	return result.Entries[0], nil
}

// Bind verifies credentials by binding as the given identity on a
// dedicated connection. The connection stays open so the caller decides
// when to Disconnect; Disconnect must run on every exit path.
func (c *Connection) Bind(ctx context.Context, username, password string) error {
	if password == "" && !c.cfg.AllowEmptyPassword {
		return NewDirectoryError("bind", fmt.Errorf("empty password rejected"))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bindConn == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			return err
		}
		c.bindConn = conn
	}

	if err := c.bindConn.Bind(username, password); err != nil {
		c.log.Debug("verification bind rejected", map[string]any{
			"host":     c.cfg.Host,
			"username": username,
		})
		return NewDirectoryError("bind", err)
	}

	c.log.Debug("verification bind accepted", map[string]any{
		"host":     c.cfg.Host,
		"username": username,
	})
	return nil
}

// Disconnect releases the verification bind connection and the search
// session. Safe to call repeatedly and on error paths.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bindConn != nil {
		c.bindConn.Close()
		c.bindConn = nil
	}
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
}

// Accounts returns the account repository for this connection.
func (c *Connection) Accounts() *AccountRepository {
	return &AccountRepository{conn: c}
}

// Groups returns the group repository for this connection.
func (c *Connection) Groups() *GroupRepository {
	return &GroupRepository{conn: c}
}

// FindAccountByUsername looks an account up by username.
func (c *Connection) FindAccountByUsername(ctx context.Context, username string) (*AccountEntry, error) {
	return c.Accounts().FindByUsername(ctx, username)
}

// FindGroupsForAccount resolves the account's group memberships.
func (c *Connection) FindGroupsForAccount(ctx context.Context, account *AccountEntry) ([]*GroupEntry, error) {
	return c.Groups().FindGroupsForAccount(ctx, account)
}
