package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission([]string{RoleManager}, PermScopesDelete))
	assert.True(t, HasPermission([]string{RoleAuditor}, PermScopesRead))
	assert.False(t, HasPermission([]string{RoleAuditor}, PermScopesCreate))
	assert.True(t, HasPermission([]string{RoleAuditor}, PermClientsRead))
	assert.False(t, HasPermission([]string{RoleAuditor}, PermClientsUpdate))
	assert.True(t, HasPermission([]string{RoleManager}, PermClientsUpdate))
	assert.False(t, HasPermission([]string{"ROLE_UNKNOWN"}, PermScopesRead))
	assert.False(t, HasPermission(nil, PermClientsCreate))
}

func TestPolicy(t *testing.T) {
	p := NewPolicy([]string{"admin", ""}, []string{"auditor", "admin"})

	assert.ElementsMatch(t, []string{RoleManager, RoleAuditor}, p.RolesOf("admin"))
	assert.Equal(t, []string{RoleAuditor}, p.RolesOf("auditor"))
	assert.Empty(t, p.RolesOf(""))

	assert.True(t, p.Allows("admin", PermClientsCreate))
	assert.True(t, p.Allows("auditor", PermScopesRead))
	assert.False(t, p.Allows("auditor", PermScopesUpdate))
	assert.False(t, p.Allows("stranger", PermScopesRead))
}
