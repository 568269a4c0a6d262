package enums

import "fmt"

// UserRole is the staff role used by the ownership policy.
type UserRole string

const (
	UserRoleAdmin         UserRole = "admin"
	UserRoleManager       UserRole = "manager"
	UserRoleSalesRep      UserRole = "sales_rep"
	UserRoleDeliveryAgent UserRole = "delivery_agent"
	UserRoleAccountant    UserRole = "accountant"
)

var validUserRoles = []UserRole{
	UserRoleAdmin,
	UserRoleManager,
	UserRoleSalesRep,
	UserRoleDeliveryAgent,
	UserRoleAccountant,
}

// String implements fmt.Stringer.
func (r UserRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known UserRole.
func (r UserRole) IsValid() bool {
	for _, candidate := range validUserRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseUserRole converts raw input into a UserRole.
func ParseUserRole(value string) (UserRole, error) {
	for _, candidate := range validUserRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid user role %q", value)
}
