package rbac

import (
	"errors"
	"fmt"
)

// Config holds all RBAC configuration
type Config struct {
	Roles                 []RoleDefinition
	Permissions           []Permission
	Resources             []Resource
	Actions               []Action
	Capabilities          map[Role]map[Resource][]Action
	PermissionToActionMap []PermissionMapping
	StationScope          *StationScope
}

// Validate checks internal consistency of the Config
func (c *Config) Validate() error {
	switch {
	case len(c.Roles) == 0:
		return errors.New(errConfigRolesEmpty)
	case len(c.Permissions) == 0:
		return errors.New(errConfigPermissionsEmpty)
	case len(c.Resources) == 0:
		return errors.New(errConfigResourcesEmpty)
	case len(c.Actions) == 0:
		return errors.New(errConfigActionsEmpty)
	case len(c.Capabilities) == 0:
		return errors.New(errConfigCapabilitiesEmpty)
	case len(c.PermissionToActionMap) == 0:
		return errors.New(errConfigPermissionToActionMapEmpty)
	}

	roleNames, err := c.validateRoles()
	if err != nil {
		return err
	}
	permSet, err := uniqueSet(c.Permissions, errConfigPermissionEmpty, errConfigDuplicatePermissionFmt)
	if err != nil {
		return err
	}
	resSet, err := uniqueSet(c.Resources, errConfigResourceEmpty, errConfigDuplicateResourceFmt)
	if err != nil {
		return err
	}
	actSet, err := uniqueSet(c.Actions, errConfigActionEmpty, errConfigDuplicateActionFmt)
	if err != nil {
		return err
	}

	for role, resources := range c.Capabilities {
		if !roleNames[role] {
			return fmt.Errorf(errConfigCapabilityUnknownRoleFmt, role)
		}
		for res, actions := range resources {
			if !resSet[res] {
				return fmt.Errorf(errConfigCapabilityUnknownResourceFmt, role, res)
			}
			for _, act := range actions {
				if !actSet[act] {
					return fmt.Errorf(errConfigCapabilityUnknownActionFmt, role, res, act)
				}
			}
		}
	}

	mappedPerms := make(map[Permission]bool, len(c.PermissionToActionMap))
	mappedActions := make(map[Action]bool, len(c.PermissionToActionMap))
	for _, pm := range c.PermissionToActionMap {
		if !permSet[pm.Permission] {
			return fmt.Errorf(errConfigMappingUnknownPermissionFmt, pm.Permission)
		}
		if !actSet[pm.Action] {
			return fmt.Errorf(errConfigMappingUnknownActionFmt, pm.Action)
		}
		if mappedPerms[pm.Permission] {
			return fmt.Errorf(errConfigMappingDuplicatePermissionFmt, pm.Permission)
		}
		if mappedActions[pm.Action] {
			return fmt.Errorf(errConfigMappingDuplicateActionFmt, pm.Action)
		}
		mappedPerms[pm.Permission] = true
		mappedActions[pm.Action] = true
	}

	if c.StationScope != nil {
		for _, res := range c.StationScope.AllowedResources {
			if !resSet[res] {
				return fmt.Errorf(errConfigStationScopeUnknownFmt, res)
			}
		}
	}

	return nil
}

func (c *Config) validateRoles() (map[Role]bool, error) {
	names := make(map[Role]bool, len(c.Roles))
	levels := make(map[int]Role, len(c.Roles))
	for _, rd := range c.Roles {
		if rd.Name == "" {
			return nil, errors.New(errConfigRoleNameEmpty)
		}
		if names[rd.Name] {
			return nil, fmt.Errorf(errConfigDuplicateRoleNameFmt, rd.Name)
		}
		if existing, dup := levels[rd.Level]; dup {
			return nil, fmt.Errorf(errConfigDuplicateRoleLevelFmt, rd.Level, existing, rd.Name)
		}
		names[rd.Name] = true
		levels[rd.Level] = rd.Name
	}
	return names, nil
}

func uniqueSet[T ~string](values []T, emptyMsg, duplicateFmt string) (map[T]bool, error) {
	set := make(map[T]bool, len(values))
	for _, v := range values {
		if v == "" {
			return nil, errors.New(emptyMsg)
		}
		if set[v] {
			return nil, fmt.Errorf(duplicateFmt, v)
		}
		set[v] = true
	}
	return set, nil
}
