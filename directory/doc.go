/*
Package directory implements the LDAP collaborator layer of the library:
connection handles, per-connection configuration with vendor presets,
account and group repositories, distinguished-name value handling,
canonical account-name forms and structured directory errors.

# Connections

A Connection wraps one configured directory. The search session is
established lazily and bound with the configured service credentials
(simple bind, Kerberos/GSSAPI, or anonymous). Credential verification
uses a dedicated bind connection:

	conn := directory.NewConnection(cfg, logger)
	err := conn.Bind(ctx, username, password)
	conn.Disconnect() // required on every path

# Configuration

Config carries transport settings and the schema mapping used to read
account and group entries. Vendor presets fill schema attribute names
for common servers:

	cfg := directory.DefaultConfig()
	cfg.Host = "dc01.example.com"
	cfg.BaseDN = "DC=example,DC=com"
	_ = cfg.ApplyVendorDefaults("activeDirectory")

FromEnv builds a Config from prefixed environment variables.

# Errors

Operational failures surface as *DirectoryError with the attempted
operation, the LDAP result code when available, and a category usable
for branching (IsAuthenticationError, IsNotFoundError). Account lookups
that simply miss return ErrNoSuchAccount.
*/
package directory
