package directory

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/go-objectsid"
	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// AccountEntry is a read-only, directory-sourced account record. It is
// produced fresh per lookup and never cached.
type AccountEntry struct {
	DN          string
	UniqueID    string
	Username    string
	FirstName   string
	LastName    string
	DisplayName string
	Email       string
	Picture     []byte

	// MemberOf carries the raw account membership attribute values, used
	// by the group repository when membership is read from the account.
	MemberOf []string
}

// GroupEntry is a read-only, directory-sourced group record. Membership
// is supplied externally; the entry itself carries none.
type GroupEntry struct {
	DN          string
	Name        string
	Description string
}

func accountFromEntry(cfg *Config, entry *ldap.Entry) (*AccountEntry, error) {
	schema := cfg.Account

	account := &AccountEntry{
		DN:          entry.DN,
		Username:    entry.GetAttributeValue(schema.UsernameAttr),
		FirstName:   entry.GetAttributeValue(schema.FirstNameAttr),
		LastName:    entry.GetAttributeValue(schema.LastNameAttr),
		DisplayName: entry.GetAttributeValue(schema.DisplayNameAttr),
		Email:       entry.GetAttributeValue(schema.EmailAttr),
	}

	if account.Username == "" {
		return nil, fmt.Errorf("account entry %s has no %s value", entry.DN, schema.UsernameAttr)
	}

	if schema.UniqueIDAttr != "" {
		id, err := decodeUniqueID(schema.UniqueIDAttr, entry)
		if err != nil {
			return nil, fmt.Errorf("account entry %s: %w", entry.DN, err)
		}
		account.UniqueID = id
	}

	if schema.PictureAttr != "" {
		if raw := entry.GetRawAttributeValue(schema.PictureAttr); len(raw) > 0 {
			account.Picture = raw
		}
	}

	if attr := cfg.Membership.AccountMembershipAttr; attr != "" {
		account.MemberOf = entry.GetAttributeValues(attr)
	}

	return account, nil
}

func groupFromEntry(cfg *Config, entry *ldap.Entry) *GroupEntry {
	group := &GroupEntry{
		DN:          entry.DN,
		Name:        entry.GetAttributeValue(cfg.Group.NameAttr),
		Description: entry.GetAttributeValue(cfg.Group.DescriptionAttr),
	}
	if group.Name == "" {
		// Fall back to the leading RDN so a misconfigured name attribute
		// still yields a usable group name.
		if value, err := ExtractRDNValue(entry.DN, "cn"); err == nil {
			group.Name = value
		}
	}
	return group
}

// decodeUniqueID turns the configured unique-ID attribute into a stable
// string. Binary objectGUID values use Active Directory's mixed-endian
// layout; objectSid values are binary security identifiers; everything
// else is taken as text.
func decodeUniqueID(attr string, entry *ldap.Entry) (string, error) {
	raw := entry.GetRawAttributeValue(attr)
	if len(raw) == 0 {
		return "", nil
	}

	switch strings.ToLower(attr) {
	case "objectguid":
		return decodeGUID(raw)
	case "objectsid":
		return decodeSID(raw)
	default:
		return string(raw), nil
	}
}

func decodeGUID(raw []byte) (string, error) {
	if len(raw) != 16 {
		// Some test fixtures and non-AD servers store the GUID as text.
		if s := strings.TrimSpace(string(raw)); s != "" {
			if parsed, err := uuid.Parse(s); err == nil {
				return parsed.String(), nil
			}
		}
		return "", fmt.Errorf("objectGUID has %d bytes, want 16", len(raw))
	}

	// AD stores the first three GUID fields little-endian.
	reordered := make([]byte, 16)
	reordered[0], reordered[1], reordered[2], reordered[3] = raw[3], raw[2], raw[1], raw[0]
	reordered[4], reordered[5] = raw[5], raw[4]
	reordered[6], reordered[7] = raw[7], raw[6]
	copy(reordered[8:], raw[8:])

	parsed, err := uuid.FromBytes(reordered)
	if err != nil {
		return "", fmt.Errorf("failed to decode objectGUID %s: %w", hex.EncodeToString(raw), err)
	}
	return parsed.String(), nil
}

func decodeSID(raw []byte) (string, error) {
	if len(raw) < 8 {
		return "", fmt.Errorf("objectSid has %d bytes, want at least 8", len(raw))
	}
	sid := objectsid.Decode(raw)
	return sid.String(), nil
}
