// Package policy decides which roles take part in school switching.
package policy

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/dalemusser/schoolctx/internal/domain/models"
	"gopkg.in/yaml.v3"
)

// RolePolicy lists the roles that may switch schools and, among them,
// the roles whose explicit selection is honored over the server's
// current school.
type RolePolicy struct {
	SwitchRoles      []string `yaml:"switch_roles"`
	CrossSchoolRoles []string `yaml:"cross_school_roles"`
}

// Default is admin, principal, teacher and superadmin switching, with
// only admin and superadmin working outside their own assignment.
func Default() RolePolicy {
	return RolePolicy{
		SwitchRoles:      []string{models.RoleAdmin, models.RolePrincipal, models.RoleTeacher, models.RoleSuperAdmin},
		CrossSchoolRoles: []string{models.RoleAdmin, models.RoleSuperAdmin},
	}
}

// CanSwitch reports whether role consults the switching data at all.
func (p RolePolicy) CanSwitch(role string) bool {
	return slices.Contains(p.SwitchRoles, role)
}

// HonorsSelection reports whether role's explicit selection wins.
func (p RolePolicy) HonorsSelection(role string) bool {
	return p.CanSwitch(role) && slices.Contains(p.CrossSchoolRoles, role)
}

// Load reads a YAML policy file. An empty path returns Default.
//
// A missing switch_roles keeps the default switch roles. A missing
// cross_school_roles keeps those default cross-school roles that are
// also switch roles, so a file naming only switch_roles stays valid.
// Roles given explicitly in cross_school_roles must all be switch roles.
func Load(path string) (RolePolicy, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("policy: read %s: %w", path, err)
	}
	var file RolePolicy
	if err := yaml.Unmarshal(b, &file); err != nil {
		return Default(), fmt.Errorf("policy: parse %s: %w", path, err)
	}

	p := Default()
	if file.SwitchRoles != nil {
		p.SwitchRoles = normalize(file.SwitchRoles)
	}
	if file.CrossSchoolRoles == nil {
		p.CrossSchoolRoles = slices.DeleteFunc(normalize(p.CrossSchoolRoles), func(r string) bool {
			return !slices.Contains(p.SwitchRoles, r)
		})
		return p, nil
	}
	p.CrossSchoolRoles = normalize(file.CrossSchoolRoles)
	for _, r := range p.CrossSchoolRoles {
		if !slices.Contains(p.SwitchRoles, r) {
			return Default(), fmt.Errorf("policy: cross-school role %q is not a switch role", r)
		}
	}
	return p, nil
}

// normalize lowercases and trims roles, dropping blanks and duplicates.
func normalize(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}
