package presets

import "key-service/internal/rbac"

const (
	RoleAdmin    rbac.Role = "admin"
	RoleSecurity rbac.Role = "security"
	RoleMember   rbac.Role = "member"

	PermissionHandover rbac.Permission = "handover"

	ResourceKey         rbac.Resource = "key"
	ResourceAssignment  rbac.Resource = "assignment"
	ResourceDelegation  rbac.Resource = "delegation"
	ResourceReminder    rbac.Resource = "reminder"
	ResourceTransaction rbac.Resource = "transaction"

	ActionRead     rbac.Action = "read"
	ActionRequest  rbac.Action = "request"
	ActionProve    rbac.Action = "prove"
	ActionApprove  rbac.Action = "approve"
	ActionHandover rbac.Action = "handover"
	ActionShare    rbac.Action = "share"
	ActionManage   rbac.Action = "manage"
)

// KeyHandover returns the RBAC configuration for the key handover service.
// Members request, prove and share; security staff verify handovers at the
// desk; admins manage keys and override assignments. Stations may only
// perform handovers.
func KeyHandover() rbac.Config {
	return rbac.Config{
		Roles: []rbac.RoleDefinition{
			{Name: RoleAdmin, Level: 3},
			{Name: RoleSecurity, Level: 2},
			{Name: RoleMember, Level: 1},
		},
		Permissions: []rbac.Permission{PermissionHandover},
		Resources: []rbac.Resource{
			ResourceKey,
			ResourceAssignment,
			ResourceDelegation,
			ResourceReminder,
			ResourceTransaction,
		},
		Actions: []rbac.Action{
			ActionRead,
			ActionRequest,
			ActionProve,
			ActionApprove,
			ActionHandover,
			ActionShare,
			ActionManage,
		},
		Capabilities: map[rbac.Role]map[rbac.Resource][]rbac.Action{
			RoleAdmin: {
				ResourceKey:         {ActionRead, ActionManage},
				ResourceAssignment:  {ActionRead, ActionRequest, ActionProve, ActionApprove, ActionHandover, ActionManage},
				ResourceDelegation:  {ActionRead, ActionShare, ActionManage},
				ResourceReminder:    {ActionManage},
				ResourceTransaction: {ActionRead, ActionManage},
			},
			RoleSecurity: {
				ResourceKey:         {ActionRead},
				ResourceAssignment:  {ActionRead, ActionRequest, ActionProve, ActionApprove, ActionHandover},
				ResourceDelegation:  {ActionRead, ActionShare},
				ResourceReminder:    {ActionManage},
				ResourceTransaction: {ActionRead},
			},
			RoleMember: {
				ResourceKey:        {ActionRead},
				ResourceAssignment: {ActionRead, ActionRequest, ActionProve},
				ResourceDelegation: {ActionRead, ActionShare},
			},
		},
		PermissionToActionMap: []rbac.PermissionMapping{
			{Permission: PermissionHandover, Action: ActionHandover},
		},
		StationScope: &rbac.StationScope{
			AllowedResources: []rbac.Resource{ResourceAssignment},
		},
	}
}
