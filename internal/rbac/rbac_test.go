package rbac_test

import (
	"errors"
	"testing"

	"key-service/internal/rbac"
	"key-service/internal/rbac/presets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChecker(t *testing.T) *rbac.Checker {
	t.Helper()
	rc, err := rbac.New(presets.KeyHandover())
	require.NoError(t, err)
	return rc
}

func TestIsRoleElevated(t *testing.T) {
	checker := newChecker(t)

	tests := []struct {
		name     string
		role1    rbac.Role
		role2    rbac.Role
		expected bool
	}{
		{"Admin >= Security", presets.RoleAdmin, presets.RoleSecurity, true},
		{"Security >= Member", presets.RoleSecurity, presets.RoleMember, true},
		{"Member < Security", presets.RoleMember, presets.RoleSecurity, false},
		{"Member >= Member", presets.RoleMember, presets.RoleMember, true},
		{"Unknown role", rbac.Role("janitor"), presets.RoleMember, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.IsRoleElevated(tt.role1, tt.role2))
		})
	}
}

func TestAuthorizeUsers(t *testing.T) {
	checker := newChecker(t)

	tests := []struct {
		name     string
		role     rbac.Role
		resource rbac.Resource
		action   rbac.Action
		allowed  bool
	}{
		{"member requests", presets.RoleMember, presets.ResourceAssignment, presets.ActionRequest, true},
		{"member proves", presets.RoleMember, presets.ResourceAssignment, presets.ActionProve, true},
		{"member shares", presets.RoleMember, presets.ResourceDelegation, presets.ActionShare, true},
		{"member cannot verify handover", presets.RoleMember, presets.ResourceAssignment, presets.ActionHandover, false},
		{"member cannot force return", presets.RoleMember, presets.ResourceAssignment, presets.ActionManage, false},
		{"member cannot send reminders", presets.RoleMember, presets.ResourceReminder, presets.ActionManage, false},
		{"security verifies handover", presets.RoleSecurity, presets.ResourceAssignment, presets.ActionHandover, true},
		{"security approves", presets.RoleSecurity, presets.ResourceAssignment, presets.ActionApprove, true},
		{"security cannot change key status", presets.RoleSecurity, presets.ResourceKey, presets.ActionManage, false},
		{"admin manages keys", presets.RoleAdmin, presets.ResourceKey, presets.ActionManage, true},
		{"admin ends any delegation", presets.RoleAdmin, presets.ResourceDelegation, presets.ActionManage, true},
		{"empty role", "", presets.ResourceKey, presets.ActionRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checker.Authorize(&rbac.AuthSubject{Type: rbac.AuthTypeJWT, UserRole: tt.role}, tt.resource, tt.action)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, rbac.ErrDenied)
		})
	}
}

func TestAuthorizeStations(t *testing.T) {
	checker := newChecker(t)
	station := &rbac.AuthSubject{Type: rbac.AuthTypeStation, Permissions: []rbac.Permission{presets.PermissionHandover}}

	assert.NoError(t, checker.Authorize(station, presets.ResourceAssignment, presets.ActionHandover))
	assert.ErrorIs(t, checker.Authorize(station, presets.ResourceAssignment, presets.ActionRequest), rbac.ErrDenied)
	assert.ErrorIs(t, checker.Authorize(station, presets.ResourceKey, presets.ActionHandover), rbac.ErrDenied)

	bare := &rbac.AuthSubject{Type: rbac.AuthTypeStation}
	assert.ErrorIs(t, checker.Authorize(bare, presets.ResourceAssignment, presets.ActionHandover), rbac.ErrDenied)

	assert.True(t, errors.Is(checker.Authorize(nil, presets.ResourceKey, presets.ActionRead), rbac.ErrNilSubject))
}

func TestRequireRole(t *testing.T) {
	checker := newChecker(t)

	assert.NoError(t, checker.RequireRole(&rbac.AuthSubject{Type: rbac.AuthTypeJWT, UserRole: presets.RoleAdmin}, presets.RoleSecurity))
	assert.ErrorIs(t, checker.RequireRole(&rbac.AuthSubject{Type: rbac.AuthTypeJWT, UserRole: presets.RoleMember}, presets.RoleSecurity), rbac.ErrDenied)
	assert.ErrorIs(t, checker.RequireRole(&rbac.AuthSubject{Type: rbac.AuthTypeStation}, presets.RoleMember), rbac.ErrDenied)
}

func TestValidateRoleAndPermissions(t *testing.T) {
	checker := newChecker(t)

	role, err := checker.ValidateRole("security")
	require.NoError(t, err)
	assert.Equal(t, presets.RoleSecurity, role)

	_, err = checker.ValidateRole("owner")
	assert.ErrorIs(t, err, rbac.ErrInvalidRole)

	assert.NoError(t, checker.ValidatePermissions([]rbac.Permission{presets.PermissionHandover}))
	assert.ErrorIs(t, checker.ValidatePermissions(nil), rbac.ErrInvalidPermission)
	assert.ErrorIs(t, checker.ValidatePermissions([]rbac.Permission{"launch"}), rbac.ErrInvalidPermission)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*rbac.Config)
	}{
		{"no roles", func(c *rbac.Config) { c.Roles = nil }},
		{"duplicate role level", func(c *rbac.Config) {
			c.Roles = append(c.Roles, rbac.RoleDefinition{Name: "auditor", Level: 1})
		}},
		{"duplicate resource", func(c *rbac.Config) { c.Resources = append(c.Resources, presets.ResourceKey) }},
		{"capability for unknown role", func(c *rbac.Config) {
			c.Capabilities["ghost"] = map[rbac.Resource][]rbac.Action{presets.ResourceKey: {presets.ActionRead}}
		}},
		{"capability with unknown action", func(c *rbac.Config) {
			c.Capabilities[presets.RoleMember][presets.ResourceKey] = []rbac.Action{"teleport"}
		}},
		{"mapping to unknown permission", func(c *rbac.Config) {
			c.PermissionToActionMap = append(c.PermissionToActionMap, rbac.PermissionMapping{Permission: "x", Action: presets.ActionRead})
		}},
		{"station scope unknown resource", func(c *rbac.Config) {
			c.StationScope = &rbac.StationScope{AllowedResources: []rbac.Resource{"vault"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := presets.KeyHandover()
			tt.mutate(&cfg)
			_, err := rbac.New(cfg)
			assert.Error(t, err)
			assert.Panics(t, func() { rbac.MustNew(cfg) })
		})
	}
}
