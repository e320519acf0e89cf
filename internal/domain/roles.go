package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Role is a user role code as issued by the backend.
type Role string

// Known role codes.
const (
	RoleInitiativeLead Role = "IL"
	RoleSiteTSDLead    Role = "STLD"
	RoleSiteHead       Role = "SH"
	RoleHeadOfDept     Role = "HOD"
	RoleCorporateTSD   Role = "CTSD"
	RoleFinance        Role = "F&A"
	RoleViewer         Role = "VIEWER"
)

// KnownRoles lists every role code in display order.
var KnownRoles = []Role{
	RoleInitiativeLead,
	RoleSiteTSDLead,
	RoleSiteHead,
	RoleHeadOfDept,
	RoleCorporateTSD,
	RoleFinance,
	RoleViewer,
}

// ParseRole normalises a role code. Unknown codes are returned upper-cased so
// they still compare predictably.
func ParseRole(value string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(value)))
}

// UnmarshalJSON normalises through ParseRole.
func (r *Role) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("domain: decode role: %w", err)
	}
	*r = ParseRole(raw)
	return nil
}

// Known reports whether the role is one of the defined codes.
func (r Role) Known() bool {
	for _, known := range KnownRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Corporate roles see initiatives across every site.
func (r Role) Corporate() bool {
	return r == RoleCorporateTSD || r == RoleViewer || r == RoleFinance
}

func (r Role) String() string { return string(r) }
