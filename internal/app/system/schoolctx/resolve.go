// Package schoolctx resolves which school the current user's work is
// scoped to and carries that resolution through the request context.
package schoolctx

import "github.com/dalemusser/schoolctx/internal/app/policy"

// Inputs are everything the effective school depends on.
type Inputs struct {
	Role             string
	SelectedSchoolID string
	CurrentSchoolID  string
	DefaultSchoolID  string
	UserSchoolID     string
}

// Resolve derives the effective school id.
//
//   - roles outside the switch set use their own school
//   - cross-school roles (admin, superadmin by default) prefer the explicit
//     selection, then the server's current school, then the first
//     available school, then their own school
//   - other switch roles (principal, teacher) prefer the server's current
//     school, then their own; the explicit selection is not consulted
func Resolve(p policy.RolePolicy, in Inputs) string {
	switch {
	case !p.CanSwitch(in.Role):
		return in.UserSchoolID
	case p.HonorsSelection(in.Role):
		return firstNonEmpty(in.SelectedSchoolID, in.CurrentSchoolID, in.DefaultSchoolID, in.UserSchoolID)
	default:
		return firstNonEmpty(in.CurrentSchoolID, in.UserSchoolID)
	}
}

func firstNonEmpty(ids ...string) string {
	for _, id := range ids {
		if id != "" {
			return id
		}
	}
	return ""
}
