// Package rbac decides which clients may call the management endpoints.
package rbac

import "slices"

// Roles a client can hold.
const (
	RoleManager = "ROLE_MANAGER"
	RoleAuditor = "ROLE_AUDITOR"
)

// Client management
const (
	PermClientsCreate = "clients:create"
	PermClientsRead   = "clients:read"
	PermClientsUpdate = "clients:update"
)

// Scope management
const (
	PermScopesCreate = "scopes:create"
	PermScopesRead   = "scopes:read"
	PermScopesUpdate = "scopes:update"
	PermScopesDelete = "scopes:delete"
)

// RoleToPermissionsMap maps roles to their granted permissions.
var RoleToPermissionsMap = map[string][]string{
	RoleAuditor: {
		PermClientsRead,
		PermScopesRead,
	},
	RoleManager: {
		PermClientsCreate,
		PermClientsRead,
		PermClientsUpdate,
		PermScopesCreate,
		PermScopesRead,
		PermScopesUpdate,
		PermScopesDelete,
	},
}

// HasPermission checks if a list of roles grants a specific permission.
func HasPermission(roles []string, requiredPermission string) bool {
	for _, role := range roles {
		if slices.Contains(RoleToPermissionsMap[role], requiredPermission) {
			return true
		}
	}
	return false
}

// Policy assigns roles to client ids.
type Policy struct {
	roles map[string][]string
}

// NewPolicy grants RoleManager to managers and RoleAuditor to auditors.
func NewPolicy(managers, auditors []string) *Policy {
	p := &Policy{roles: make(map[string][]string)}
	for _, id := range managers {
		p.grant(id, RoleManager)
	}
	for _, id := range auditors {
		p.grant(id, RoleAuditor)
	}
	return p
}

func (p *Policy) grant(clientID, role string) {
	if clientID == "" || slices.Contains(p.roles[clientID], role) {
		return
	}
	p.roles[clientID] = append(p.roles[clientID], role)
}

// RolesOf returns the roles held by clientID.
func (p *Policy) RolesOf(clientID string) []string {
	return slices.Clone(p.roles[clientID])
}

// Allows reports whether clientID holds a role granting permission.
func (p *Policy) Allows(clientID, permission string) bool {
	return HasPermission(p.roles[clientID], permission)
}
