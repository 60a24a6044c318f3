package directory

import (
	"fmt"
	"os"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

// kerberosBind performs a GSSAPI service bind on the search session.
// Credential selection order: explicit ccache, keytab, password.
func (c *Connection) kerberosBind(conn *ldap.Conn) error {
	client, err := c.gssapiClient()
	if err != nil {
		return NewDirectoryError("kerberos bind", err)
	}
	defer func() {
		_ = client.DeleteSecContext()
	}()

	spn := c.cfg.Kerberos.SPN
	if spn == "" {
		spn = "ldap/" + c.cfg.Host
	}

	if err := conn.GSSAPIBind(client, spn, ""); err != nil {
		return NewDirectoryError("kerberos bind", err)
	}

	c.log.Debug("kerberos service bind established", map[string]any{
		"host": c.cfg.Host,
		"spn":  spn,
	})
	return nil
}

func (c *Connection) gssapiClient() (ldap.GSSAPIClient, error) {
	krb := c.cfg.Kerberos

	krb5conf := krb.ConfigPath
	if krb5conf == "" {
		krb5conf = "/etc/krb5.conf"
	}
	if !fileExists(krb5conf) {
		return nil, fmt.Errorf("kerberos configuration file not found at %s", krb5conf)
	}

	switch {
	case krb.CCache != "" && fileExists(krb.CCache):
		return gssapi.NewClientFromCCache(krb.CCache, krb5conf, krb5client.DisablePAFXFAST(true))
	case krb.Keytab != "" && fileExists(krb.Keytab):
		return gssapi.NewClientWithKeytab(c.cfg.BindUser, krb.Realm, krb.Keytab, krb5conf, krb5client.DisablePAFXFAST(true))
	case c.cfg.BindUser != "" && c.cfg.BindPassword != "":
		return gssapi.NewClientWithPassword(c.cfg.BindUser, krb.Realm, c.cfg.BindPassword, krb5conf, krb5client.DisablePAFXFAST(true))
	default:
		return nil, fmt.Errorf("no usable kerberos credentials (ccache, keytab or password)")
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
