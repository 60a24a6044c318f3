package directory

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// NormalizeDN parses a distinguished name per RFC 4514 and reconstructs
// it with uppercase attribute type descriptors and no insignificant
// whitespace, so two spellings of the same DN compare equal as strings
// (modulo value case, which EqualDN folds).
//
// Input:  "cn=john, ou=users,dc=example,dc=com"
// Output: "CN=john,OU=users,DC=example,DC=com"
func NormalizeDN(dn string) (string, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return "", nil
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	return reconstructDN(parsed), nil
}

func reconstructDN(parsed *ldap.DN) string {
	rdns := make([]string, 0, len(parsed.RDNs))

	for _, rdn := range parsed.RDNs {
		attrs := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			attrs = append(attrs, strings.ToUpper(attr.Type)+"="+attr.Value)
		}
		// Multi-valued RDN components join with "+".
		rdns = append(rdns, strings.Join(attrs, "+"))
	}

	return strings.Join(rdns, ",")
}

// EqualDN reports whether two DNs identify the same entry, compared by
// normalized, case-folded string equality.
func EqualDN(a, b string) bool {
	na, err := NormalizeDN(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeDN(b)
	if err != nil {
		return false
	}
	return strings.EqualFold(na, nb)
}

// IsDescendantOf reports whether candidate sits at or below ancestor in
// the directory tree. The ancestor itself counts, so an entry located
// directly at a search base still maps to that base.
func IsDescendantOf(candidate, ancestor string) bool {
	if candidate == "" || ancestor == "" {
		return false
	}

	parsedCandidate, err := ldap.ParseDN(candidate)
	if err != nil {
		return false
	}
	parsedAncestor, err := ldap.ParseDN(ancestor)
	if err != nil {
		return false
	}

	if len(parsedCandidate.RDNs) < len(parsedAncestor.RDNs) {
		return false
	}

	// Compare the ancestor-length suffix of the candidate.
	suffix := &ldap.DN{
		RDNs: parsedCandidate.RDNs[len(parsedCandidate.RDNs)-len(parsedAncestor.RDNs):],
	}

	return strings.EqualFold(reconstructDN(suffix), reconstructDN(parsedAncestor))
}

// ExtractRDNValue returns the value of the first RDN component carrying
// the given attribute type, e.g. the "CN" of a user DN.
func ExtractRDNValue(dn, attrType string) (string, error) {
	if dn == "" {
		return "", fmt.Errorf("DN cannot be empty")
	}

	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return "", fmt.Errorf("invalid DN syntax: %w", err)
	}

	want := strings.ToUpper(attrType)
	for _, rdn := range parsed.RDNs {
		for _, attr := range rdn.Attributes {
			if strings.ToUpper(attr.Type) == want {
				return attr.Value, nil
			}
		}
	}

	return "", fmt.Errorf("attribute type %q not found in DN %q", attrType, dn)
}
