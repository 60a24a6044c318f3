package directory

import (
	"fmt"
	"strings"
)

// CanonicalAccountName maps an account entry to the configured external
// username representation.
func (c *Config) CanonicalAccountName(account *AccountEntry, form NameForm) (string, error) {
	if account == nil {
		return "", fmt.Errorf("account entry cannot be nil")
	}
	if form == "" {
		form = c.AccountCanonicalForm
	}

	switch form {
	case FormDN:
		if account.DN == "" {
			return "", fmt.Errorf("account %q has no DN", account.Username)
		}
		return account.DN, nil

	case FormUsername, "":
		return c.splitUsername(account.Username), nil

	case FormBackslash:
		short := c.DomainNameShort
		if short == "" {
			return "", fmt.Errorf("backslash canonical form requires domain_name_short")
		}
		return strings.ToUpper(short) + `\` + c.splitUsername(account.Username), nil

	case FormPrincipal:
		if c.DomainName == "" {
			return "", fmt.Errorf("principal canonical form requires domain_name")
		}
		return c.splitUsername(account.Username) + "@" + c.DomainName, nil

	default:
		return "", fmt.Errorf("unknown account canonical form %q", form)
	}
}

// splitUsername strips any DOMAIN\ prefix or @domain suffix from a raw
// account name when username splitting is enabled.
func (c *Config) splitUsername(username string) string {
	if !c.TryUsernameSplit {
		return username
	}
	if i := strings.Index(username, `\`); i >= 0 {
		return username[i+1:]
	}
	if i := strings.Index(username, "@"); i >= 0 {
		return username[:i]
	}
	return username
}
