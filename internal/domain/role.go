package domain

// Role constants define the allowed user roles.
const (
	RoleApprentice     = "apprentice"
	RoleInstructor     = "instructor"
	RoleAdministrative = "administrative"
	RoleAdmin          = "admin"
)

// ValidRoles returns the set of valid user roles.
func ValidRoles() []string {
	return []string{RoleApprentice, RoleInstructor, RoleAdministrative, RoleAdmin}
}

// IsValidRole checks whether the given role string is a valid user role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// CanManageUsers reports whether role may create, edit and deactivate other
// accounts.
func CanManageUsers(role string) bool {
	return role == RoleAdmin || role == RoleAdministrative
}

// ManagingRoles lists the roles for which CanManageUsers is true.
func ManagingRoles() []string {
	return []string{RoleAdmin, RoleAdministrative}
}
