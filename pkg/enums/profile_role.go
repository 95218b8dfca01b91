package enums

import "fmt"

// ProfileRole distinguishes shoppers from staff.
type ProfileRole string

const (
	ProfileRoleCustomer ProfileRole = "customer"
	ProfileRoleAdmin    ProfileRole = "admin"
)

// String implements fmt.Stringer.
func (r ProfileRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ProfileRole.
func (r ProfileRole) IsValid() bool {
	return r == ProfileRoleCustomer || r == ProfileRoleAdmin
}

// ParseProfileRole converts raw input into a ProfileRole.
func ParseProfileRole(value string) (ProfileRole, error) {
	role := ProfileRole(value)
	if !role.IsValid() {
		return "", fmt.Errorf("invalid profile role %q", value)
	}
	return role, nil
}
