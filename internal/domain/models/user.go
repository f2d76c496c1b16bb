package models

// User is the authenticated caller. It is read-only to this service.
type User struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	SchoolID string `json:"schoolId,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}
