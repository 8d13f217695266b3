package rbac

import (
	"fmt"
	"slices"
)

// Checker provides authorization checking based on a validated Config
type Checker struct {
	roleIndex        map[Role]int
	capabilities     map[Role]map[Resource]map[Action]bool
	actionToPerm     map[Action]Permission
	validPerms       map[Permission]bool
	stationResources map[Resource]bool
}

// New creates a Checker from a validated Config
func New(cfg Config) (*Checker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return build(cfg), nil
}

// MustNew creates a Checker and panics on invalid config
func MustNew(cfg Config) *Checker {
	rc, err := New(cfg)
	if err != nil {
		panic(fmt.Sprintf(errMustNewPanicFmt, err))
	}
	return rc
}

func build(cfg Config) *Checker {
	rc := &Checker{
		roleIndex:    make(map[Role]int, len(cfg.Roles)),
		capabilities: make(map[Role]map[Resource]map[Action]bool, len(cfg.Capabilities)),
		actionToPerm: make(map[Action]Permission, len(cfg.PermissionToActionMap)),
		validPerms:   make(map[Permission]bool, len(cfg.Permissions)),
	}
	for _, rd := range cfg.Roles {
		rc.roleIndex[rd.Name] = rd.Level
	}
	for role, resources := range cfg.Capabilities {
		rc.capabilities[role] = make(map[Resource]map[Action]bool, len(resources))
		for res, actions := range resources {
			rc.capabilities[role][res] = make(map[Action]bool, len(actions))
			for _, act := range actions {
				rc.capabilities[role][res][act] = true
			}
		}
	}
	for _, pm := range cfg.PermissionToActionMap {
		rc.actionToPerm[pm.Action] = pm.Permission
	}
	for _, p := range cfg.Permissions {
		rc.validPerms[p] = true
	}
	if cfg.StationScope != nil {
		rc.stationResources = make(map[Resource]bool, len(cfg.StationScope.AllowedResources))
		for _, res := range cfg.StationScope.AllowedResources {
			rc.stationResources[res] = true
		}
	}
	return rc
}

// Authorize checks if the subject can perform an action on a resource
func (rc *Checker) Authorize(subject *AuthSubject, resource Resource, action Action) error {
	if subject == nil {
		return fmt.Errorf(errDeniedNilSubjectFmt, ErrDenied, ErrNilSubject)
	}

	switch subject.Type {
	case AuthTypeJWT:
		return rc.authorizeUserRole(subject.UserRole, resource, action)
	case AuthTypeStation:
		return rc.authorizeStation(subject.Permissions, resource, action)
	default:
		return fmt.Errorf(errDeniedUnknownAuthTypeFmt, ErrDenied, subject.Type)
	}
}

// IsAuthorized returns a boolean version of Authorize
func (rc *Checker) IsAuthorized(subject *AuthSubject, resource Resource, action Action) bool {
	return rc.Authorize(subject, resource, action) == nil
}

// RequireRole checks if the subject has at least the minimum required role
func (rc *Checker) RequireRole(subject *AuthSubject, minRole Role) error {
	if subject == nil {
		return fmt.Errorf(errDeniedNilSubjectFmt, ErrDenied, ErrNilSubject)
	}
	if subject.Type != AuthTypeJWT {
		return fmt.Errorf(errDeniedRoleCheckRequiresJWT, ErrDenied)
	}
	if !rc.IsRoleElevated(subject.UserRole, minRole) {
		return fmt.Errorf(errDeniedMinRoleRequiredFmt, ErrDenied, minRole, subject.UserRole)
	}
	return nil
}

func (rc *Checker) authorizeUserRole(role Role, resource Resource, action Action) error {
	if role == "" {
		return fmt.Errorf(errDeniedUserRoleEmpty, ErrDenied)
	}
	if !rc.capabilities[role][resource][action] {
		return fmt.Errorf(errDeniedRoleCannotPerformActionFmt, ErrDenied, role, action, resource)
	}
	return nil
}

func (rc *Checker) authorizeStation(permissions []Permission, resource Resource, action Action) error {
	if rc.stationResources == nil {
		return fmt.Errorf(errDeniedStationAccessNotConfigured, ErrDenied)
	}
	if !rc.stationResources[resource] {
		return fmt.Errorf(errDeniedStationResourceNotAllowedFmt, ErrDenied, resource)
	}

	required, ok := rc.actionToPerm[action]
	if !ok {
		return fmt.Errorf(errDeniedStationActionNotSupportedFmt, ErrDenied, action)
	}
	if !slices.Contains(permissions, required) {
		return fmt.Errorf(errDeniedStationPermissionMissingFmt, ErrDenied, required, action)
	}
	return nil
}

// IsRoleElevated checks if role1 has equal or higher privilege than role2
func (rc *Checker) IsRoleElevated(role1, role2 Role) bool {
	level1, exists1 := rc.roleIndex[role1]
	level2, exists2 := rc.roleIndex[role2]
	if !exists1 || !exists2 {
		return false
	}
	return level1 >= level2
}

// ValidateRole validates a role string against configured roles
func (rc *Checker) ValidateRole(role string) (Role, error) {
	r := Role(role)
	if _, ok := rc.roleIndex[r]; ok {
		return r, nil
	}
	return "", fmt.Errorf(errInvalidRoleFmt, ErrInvalidRole, role)
}

// ValidatePermissions validates a station's permission list
func (rc *Checker) ValidatePermissions(permissions []Permission) error {
	if len(permissions) == 0 {
		return fmt.Errorf(errInvalidPermissionsEmpty, ErrInvalidPermission)
	}
	for _, perm := range permissions {
		if !rc.validPerms[perm] {
			return fmt.Errorf(errInvalidPermissionFmt, ErrInvalidPermission, perm)
		}
	}
	return nil
}
