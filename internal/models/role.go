package models

// UserRole is carried in the verified access token and drives route access.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStaff      UserRole = "STAFF"
	RoleStudent    UserRole = "STUDENT"
)

// Approver reports whether the role may answer approval requests.
func (r UserRole) Approver() bool {
	switch r {
	case RoleTeacher, RoleStaff, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}
