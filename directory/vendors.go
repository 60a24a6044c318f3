package directory

import (
	"fmt"
	"sort"
)

// vendorDefaults captures the per-vendor parameter presets. Explicit
// configuration always wins; a preset only fills fields left empty.
type vendorDefaults struct {
	BindRequiresDN       bool
	AccountCanonicalForm NameForm
	AllowEmptyPassword   bool
	Account              AccountSchema
	Group                GroupSchema
	Membership           MembershipSchema
}

var supportedVendors = map[string]vendorDefaults{
	"activeDirectory": {
		BindRequiresDN:       false,
		AccountCanonicalForm: FormBackslash,
		Account: AccountSchema{
			ObjectClass:     "user",
			ObjectFilter:    "(&(objectCategory=Person)(sAMAccountName=*))",
			UsernameAttr:    "sAMAccountName",
			UniqueIDAttr:    "objectGUID",
			FirstNameAttr:   "givenName",
			LastNameAttr:    "sn",
			DisplayNameAttr: "displayName",
			EmailAttr:       "mail",
			PictureAttr:     "thumbnailPhoto",
		},
		Group: GroupSchema{
			ObjectClass:     "group",
			ObjectFilter:    "(objectCategory=Group)",
			NameAttr:        "cn",
			DescriptionAttr: "description",
		},
		Membership: MembershipSchema{
			GroupMembersAttr:         "member",
			GroupMembersMapping:      MapByDN,
			AccountMembershipAttr:    "memberOf",
			AccountMembershipMapping: MapByDN,
			UseAttributeFromGroup:    false,
			UseAttributeFromAccount:  true,
		},
	},
	"openLDAP": {
		BindRequiresDN:       true,
		AccountCanonicalForm: FormDN,
		Account: AccountSchema{
			ObjectClass:     "inetOrgPerson",
			ObjectFilter:    "(objectClass=inetOrgPerson)",
			UsernameAttr:    "uid",
			UniqueIDAttr:    "entryUUID",
			FirstNameAttr:   "givenName",
			LastNameAttr:    "sn",
			DisplayNameAttr: "displayName",
			EmailAttr:       "mail",
			PictureAttr:     "jpegPhoto",
		},
		Group: GroupSchema{
			ObjectClass:     "groupOfNames",
			ObjectFilter:    "(objectClass=groupOfNames)",
			NameAttr:        "cn",
			DescriptionAttr: "description",
		},
		Membership: MembershipSchema{
			GroupMembersAttr:         "member",
			GroupMembersMapping:      MapByDN,
			AccountMembershipAttr:    "memberOf",
			AccountMembershipMapping: MapByDN,
			UseAttributeFromGroup:    true,
			UseAttributeFromAccount:  false,
		},
	},
	"apacheDS": {
		BindRequiresDN:       true,
		AccountCanonicalForm: FormDN,
		Account: AccountSchema{
			ObjectClass:     "inetorgperson",
			ObjectFilter:    "(objectclass=inetorgperson)",
			UsernameAttr:    "cn",
			UniqueIDAttr:    "entryUUID",
			FirstNameAttr:   "givenName",
			LastNameAttr:    "sn",
			DisplayNameAttr: "displayName",
			EmailAttr:       "mail",
			PictureAttr:     "jpegPhoto",
		},
		Group: GroupSchema{
			ObjectClass:     "groupOfUniqueNames",
			ObjectFilter:    "(objectclass=groupOfUniqueNames)",
			NameAttr:        "cn",
			DescriptionAttr: "description",
		},
		Membership: MembershipSchema{
			GroupMembersAttr:         "uniqueMember",
			GroupMembersMapping:      MapByDN,
			AccountMembershipAttr:    "memberOf",
			AccountMembershipMapping: MapByDN,
			UseAttributeFromGroup:    true,
			UseAttributeFromAccount:  false,
		},
	},
	"appleOpenDirectory": {
		BindRequiresDN:       true,
		AccountCanonicalForm: FormDN,
		Account: AccountSchema{
			ObjectClass:     "posixAccount",
			ObjectFilter:    "(objectclass=posixAccount)",
			UsernameAttr:    "cn",
			UniqueIDAttr:    "entryUUID",
			FirstNameAttr:   "givenName",
			LastNameAttr:    "sn",
			DisplayNameAttr: "displayName",
			EmailAttr:       "mail",
			PictureAttr:     "jpegPhoto",
		},
		Group: GroupSchema{
			ObjectClass:     "posixGroup",
			ObjectFilter:    "(objectclass=posixGroup)",
			NameAttr:        "cn",
			DescriptionAttr: "description",
		},
		Membership: MembershipSchema{
			GroupMembersAttr:         "memberUid",
			GroupMembersMapping:      MapByUsername,
			AccountMembershipAttr:    "memberOf",
			AccountMembershipMapping: MapByDN,
			UseAttributeFromGroup:    true,
			UseAttributeFromAccount:  false,
		},
	},
}

// SupportedVendors lists the vendor preset names.
func SupportedVendors() []string {
	names := make([]string, 0, len(supportedVendors))
	for name := range supportedVendors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyVendorDefaults fills schema and binding parameters from the named
// vendor preset. Fields already set explicitly are left untouched.
func (c *Config) ApplyVendorDefaults(vendor string) error {
	v, ok := supportedVendors[vendor]
	if !ok {
		return fmt.Errorf("unsupported directory vendor %q (supported: %v)", vendor, SupportedVendors())
	}

	c.Vendor = vendor
	if c.AccountCanonicalForm == "" || c.AccountCanonicalForm == FormUsername {
		c.AccountCanonicalForm = v.AccountCanonicalForm
	}
	if v.BindRequiresDN {
		c.BindRequiresDN = true
	}

	fillString(&c.Account.ObjectClass, v.Account.ObjectClass)
	fillString(&c.Account.ObjectFilter, v.Account.ObjectFilter)
	fillString(&c.Account.UsernameAttr, v.Account.UsernameAttr)
	fillString(&c.Account.UniqueIDAttr, v.Account.UniqueIDAttr)
	fillString(&c.Account.FirstNameAttr, v.Account.FirstNameAttr)
	fillString(&c.Account.LastNameAttr, v.Account.LastNameAttr)
	fillString(&c.Account.DisplayNameAttr, v.Account.DisplayNameAttr)
	fillString(&c.Account.EmailAttr, v.Account.EmailAttr)
	fillString(&c.Account.PictureAttr, v.Account.PictureAttr)

	fillString(&c.Group.ObjectClass, v.Group.ObjectClass)
	fillString(&c.Group.ObjectFilter, v.Group.ObjectFilter)
	fillString(&c.Group.NameAttr, v.Group.NameAttr)
	fillString(&c.Group.DescriptionAttr, v.Group.DescriptionAttr)

	fillString(&c.Membership.GroupMembersAttr, v.Membership.GroupMembersAttr)
	fillString(&c.Membership.AccountMembershipAttr, v.Membership.AccountMembershipAttr)
	if c.Membership.GroupMembersMapping == "" {
		c.Membership.GroupMembersMapping = v.Membership.GroupMembersMapping
	}
	if c.Membership.AccountMembershipMapping == "" {
		c.Membership.AccountMembershipMapping = v.Membership.AccountMembershipMapping
	}
	c.Membership.UseAttributeFromGroup = c.Membership.UseAttributeFromGroup || v.Membership.UseAttributeFromGroup
	c.Membership.UseAttributeFromAccount = c.Membership.UseAttributeFromAccount || v.Membership.UseAttributeFromAccount

	return nil
}

func fillString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}
