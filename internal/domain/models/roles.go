package models

// Roles known to the school context. Any other role value is treated as
// a single-school user.
const (
	RoleAdmin      = "admin"
	RolePrincipal  = "principal"
	RoleTeacher    = "teacher"
	RoleSuperAdmin = "superadmin"
)
