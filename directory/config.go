package directory

import (
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/kelseyhightower/envconfig"
)

// NameForm selects the representation used as the externally visible
// account name.
type NameForm string

const (
	FormDN        NameForm = "dn"        // full distinguished name
	FormUsername  NameForm = "username"  // bare username, domain stripped
	FormBackslash NameForm = "backslash" // SHORT\username
	FormPrincipal NameForm = "principal" // username@domain
)

// ParseNameForm parses a canonical account-name form from its
// configuration string.
func ParseNameForm(s string) (NameForm, error) {
	switch NameForm(strings.ToLower(strings.TrimSpace(s))) {
	case FormDN:
		return FormDN, nil
	case FormUsername, "":
		return FormUsername, nil
	case FormBackslash:
		return FormBackslash, nil
	case FormPrincipal:
		return FormPrincipal, nil
	}
	return "", fmt.Errorf("unknown account canonical form %q", s)
}

// MappingType defines how a membership attribute value maps back to an
// account or group.
type MappingType string

const (
	MapByDN       MappingType = "dn"
	MapByUsername MappingType = "username"
	MapByUniqueID MappingType = "uniqueID"
	MapByName     MappingType = "name"
)

// AccountSchema describes how account objects are located and which
// attributes populate an AccountEntry.
type AccountSchema struct {
	AdditionalDN    string `envconfig:"ADDITIONAL_DN"`
	ObjectClass     string `envconfig:"OBJECT_CLASS"`
	ObjectFilter    string `envconfig:"OBJECT_FILTER"`
	UsernameAttr    string `envconfig:"USERNAME_ATTRIBUTE"`
	UniqueIDAttr    string `envconfig:"UNIQUE_ID_ATTRIBUTE"`
	FirstNameAttr   string `envconfig:"FIRST_NAME_ATTRIBUTE"`
	LastNameAttr    string `envconfig:"LAST_NAME_ATTRIBUTE"`
	DisplayNameAttr string `envconfig:"DISPLAY_NAME_ATTRIBUTE"`
	EmailAttr       string `envconfig:"EMAIL_ATTRIBUTE"`
	PictureAttr     string `envconfig:"PICTURE_ATTRIBUTE"`
}

// GroupSchema describes how group objects are located and read.
type GroupSchema struct {
	AdditionalDN    string `envconfig:"ADDITIONAL_DN"`
	ObjectClass     string `envconfig:"OBJECT_CLASS"`
	ObjectFilter    string `envconfig:"OBJECT_FILTER"`
	NameAttr        string `envconfig:"NAME_ATTRIBUTE"`
	DescriptionAttr string `envconfig:"DESCRIPTION_ATTRIBUTE"`
}

// MembershipSchema describes how account/group membership is discovered.
type MembershipSchema struct {
	GroupMembersAttr         string      `envconfig:"GROUP_MEMBERS_ATTRIBUTE"`
	GroupMembersMapping      MappingType `envconfig:"GROUP_MEMBERS_MAPPING"`
	AccountMembershipAttr    string      `envconfig:"ACCOUNT_MEMBERSHIP_ATTRIBUTE"`
	AccountMembershipMapping MappingType `envconfig:"ACCOUNT_MEMBERSHIP_MAPPING"`
	UseAttributeFromGroup    bool        `envconfig:"USE_ATTRIBUTE_FROM_GROUP"`
	UseAttributeFromAccount  bool        `envconfig:"USE_ATTRIBUTE_FROM_ACCOUNT"`
}

// KerberosConfig holds settings for a GSSAPI service bind. A non-empty
// Realm switches the search session from simple to Kerberos binding.
type KerberosConfig struct {
	Realm      string `envconfig:"REALM"`
	Keytab     string `envconfig:"KEYTAB"`
	CCache     string `envconfig:"CCACHE"`
	ConfigPath string `envconfig:"CONFIG"`
	SPN        string `envconfig:"SPN"`
}

// Config is the immutable configuration of a single directory connection.
type Config struct {
	Host          string        `default:"localhost" envconfig:"HOST"`
	Port          int           `default:"389" envconfig:"PORT"`
	UseSSL        bool          `envconfig:"USE_SSL"`
	UseStartTLS   bool          `envconfig:"USE_START_TLS"`
	SkipTLSVerify bool          `envconfig:"SKIP_TLS_VERIFY"`
	Timeout       time.Duration `default:"30s" envconfig:"TIMEOUT"`

	// Service credentials used for the search session. Empty BindUser
	// means an anonymous session (or Kerberos when configured).
	BindUser     string `envconfig:"BIND_USER"`
	BindPassword string `envconfig:"BIND_PASSWORD"`

	BaseDN          string `envconfig:"BASE_DN"`
	DomainName      string `envconfig:"DOMAIN_NAME"`
	DomainNameShort string `envconfig:"DOMAIN_NAME_SHORT"`

	TryUsernameSplit     bool     `default:"true" envconfig:"TRY_USERNAME_SPLIT"`
	BindRequiresDN       bool     `envconfig:"BIND_REQUIRES_DN"`
	AllowEmptyPassword   bool     `envconfig:"ALLOW_EMPTY_PASSWORD"`
	AccountCanonicalForm NameForm `default:"username" envconfig:"ACCOUNT_CANONICAL_FORM"`

	Vendor string `envconfig:"VENDOR"`

	Kerberos   KerberosConfig   `envconfig:"KERBEROS"`
	Account    AccountSchema    `envconfig:"ACCOUNT"`
	Group      GroupSchema      `envconfig:"GROUP"`
	Membership MembershipSchema `envconfig:"MEMBERSHIP"`
}

// DefaultConfig returns a Config with struct-tag defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Only reachable with a broken struct tag.
		panic(err)
	}
	return cfg
}

// FromEnv builds a Config from environment variables under the given
// prefix (e.g. prefix "LDAP" reads LDAP_HOST, LDAP_BASE_DN, ...),
// applies struct defaults to anything unset, then vendor defaults.
func FromEnv(prefix string) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(prefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process directory configuration: %w", err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, err
	}
	if cfg.Vendor != "" {
		if err := cfg.ApplyVendorDefaults(cfg.Vendor); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings required by every connection.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("directory host must not be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("directory port %d out of range", c.Port)
	}
	if c.UseSSL && c.UseStartTLS {
		return fmt.Errorf("use_ssl and use_start_tls are mutually exclusive")
	}
	if c.BaseDN == "" {
		return fmt.Errorf("base DN must not be empty")
	}
	if _, err := ParseNameForm(string(c.AccountCanonicalForm)); err != nil {
		return err
	}
	return nil
}

// AccountSearchDN returns the DN accounts are searched under: the
// account additional DN when set, otherwise the base DN.
func (c *Config) AccountSearchDN() string {
	if c.Account.AdditionalDN != "" {
		return joinDN(c.Account.AdditionalDN, c.BaseDN)
	}
	return c.BaseDN
}

// GroupSearchDN returns the DN groups are searched under.
func (c *Config) GroupSearchDN() string {
	if c.Group.AdditionalDN != "" {
		return joinDN(c.Group.AdditionalDN, c.BaseDN)
	}
	return c.BaseDN
}

func joinDN(prefix, base string) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ",")
	if base == "" {
		return prefix
	}
	return prefix + "," + base
}

// URL returns the dial URL for this connection.
func (c *Config) URL() string {
	scheme := "ldap"
	if c.UseSSL {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}
