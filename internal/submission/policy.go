package submission

import "strings"

// OrgPolicy decides which orgs may file real reports.
type OrgPolicy interface {
	// Denied reports whether submissions for orgID should be accepted but
	// never sent, as for demo accounts.
	Denied(orgID string) bool
}

// DenyList is an OrgPolicy that denies a fixed set of org IDs.
type DenyList map[string]struct{}

// NewDenyList returns a DenyList of ids, ignoring blanks.
func NewDenyList(ids ...string) DenyList {
	d := make(DenyList, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			d[id] = struct{}{}
		}
	}
	return d
}

// ParseDenyList parses a comma-separated list of org IDs.
func ParseDenyList(s string) DenyList {
	return NewDenyList(strings.Split(s, ",")...)
}

func (d DenyList) Denied(orgID string) bool {
	_, ok := d[orgID]
	return ok
}
