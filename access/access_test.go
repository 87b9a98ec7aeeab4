package access_test

import (
	"path/filepath"
	"testing"

	. "github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/database"
	"github.com/modix-panel/modix/database/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEngine(t *testing.T) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.InitDB(dbPath))
	t.Cleanup(func() { database.CloseDB() })

	return &Engine{
		DB:             database.GetDB(),
		RootPrincipals: func() []string { return []string{"root"} },
	}
}

func createUser(t *testing.T, username string) *model.User {
	t.Helper()
	user := &model.User{Username: username, Password: "x", Active: true}
	require.NoError(t, database.GetDB().Create(user).Error)
	return user
}

func createRole(t *testing.T, name string, level int) *model.Role {
	t.Helper()
	role := &model.Role{Name: name, HierarchyLevel: level}
	require.NoError(t, database.GetDB().Create(role).Error)
	return role
}

func grantRole(t *testing.T, user *model.User, role *model.Role, scope string, containerID *int) {
	t.Helper()
	grant := &model.RoleGrant{UserId: user.Id, RoleId: role.Id, Scope: scope, ContainerId: containerID}
	require.NoError(t, database.GetDB().Create(grant).Error)
}

func grantPerm(t *testing.T, subjectType string, subjectID int, permission, value, scope string, containerID *int) {
	t.Helper()
	grant := &model.PermissionGrant{
		SubjectType: subjectType,
		SubjectId:   subjectID,
		Permission:  permission,
		Value:       value,
		Scope:       scope,
		ContainerId: containerID,
	}
	require.NoError(t, database.GetDB().Create(grant).Error)
}

func TestResolveRootShortCircuit(t *testing.T) {
	engine := setupEngine(t)
	root := createUser(t, "root")

	// An explicit deny must not matter for a root principal.
	grantPerm(t, model.SubjectUser, root.Id, PermUserDelete, model.ValueDeny, model.ScopeGlobal, nil)

	decision, err := engine.Resolve(root, PermUserDelete, nil)
	require.NoError(t, err)
	assert.Equal(t, Allow, decision)
}

func TestResolveUnsetByDefault(t *testing.T) {
	engine := setupEngine(t)
	user := createUser(t, "alice")

	decision, err := engine.Resolve(user, PermDashboardAccess, nil)
	require.NoError(t, err)
	assert.Equal(t, Unset, decision)
}

func TestResolveUserGrantBeatsRoleGrant(t *testing.T) {
	engine := setupEngine(t)
	user := createUser(t, "alice")
	role := createRole(t, "admin", 90)
	grantRole(t, user, role, model.ScopeGlobal, nil)

	grantPerm(t, model.SubjectRole, role.Id, PermUserEdit, model.ValueAllow, model.ScopeGlobal, nil)
	grantPerm(t, model.SubjectUser, user.Id, PermUserEdit, model.ValueDeny, model.ScopeGlobal, nil)

	decision, err := engine.Resolve(user, PermUserEdit, nil)
	require.NoError(t, err)
	assert.Equal(t, Deny, decision)
}

func TestResolveContainerScopeBeatsGlobal(t *testing.T) {
	engine := setupEngine(t)
	user := createUser(t, "alice")
	container := &model.Container{DockerId: "abc123", Name: "minecraft"}
	require.NoError(t, database.GetDB().Create(container).Error)

	grantPerm(t, model.SubjectUser, user.Id, PermTerminalAccess, model.ValueDeny, model.ScopeGlobal, nil)
	grantPerm(t, model.SubjectUser, user.Id, PermTerminalAccess, model.ValueAllow, model.ScopeContainer, &container.Id)

	decision, err := engine.Resolve(user, PermTerminalAccess, &container.Id)
	require.NoError(t, err)
	assert.Equal(t, Allow, decision)

	// Without the container context only the global deny applies.
	decision, err = engine.Resolve(user, PermTerminalAccess, nil)
	require.NoError(t, err)
	assert.Equal(t, Deny, decision)
}

func TestResolveRoleHierarchyOrder(t *testing.T) {
	engine := setupEngine(t)
	user := createUser(t, "alice")

	junior := createRole(t, "viewer", 10)
	senior := createRole(t, "admin", 90)
	grantRole(t, user, junior, model.ScopeGlobal, nil)
	grantRole(t, user, senior, model.ScopeGlobal, nil)

	grantPerm(t, model.SubjectRole, junior.Id, PermLogsView, model.ValueDeny, model.ScopeGlobal, nil)
	grantPerm(t, model.SubjectRole, senior.Id, PermLogsView, model.ValueAllow, model.ScopeGlobal, nil)

	decision, err := engine.Resolve(user, PermLogsView, nil)
	require.NoError(t, err)
	assert.Equal(t, Allow, decision)
}

func TestResolveRoleTieBreakByName(t *testing.T) {
	engine := setupEngine(t)
	user := createUser(t, "alice")

	// Same hierarchy level; the name that sorts first wins.
	alpha := createRole(t, "alpha", 50)
	zeta := createRole(t, "zeta", 50)
	grantRole(t, user, alpha, model.ScopeGlobal, nil)
	grantRole(t, user, zeta, model.ScopeGlobal, nil)

	grantPerm(t, model.SubjectRole, alpha.Id, PermFileRead, model.ValueDeny, model.ScopeGlobal, nil)
	grantPerm(t, model.SubjectRole, zeta.Id, PermFileRead, model.ValueAllow, model.ScopeGlobal, nil)

	decision, err := engine.Resolve(user, PermFileRead, nil)
	require.NoError(t, err)
	assert.Equal(t, Deny, decision)
}

func TestResolveContainerRoleGrant(t *testing.T) {
	engine := setupEngine(t)
	user := createUser(t, "alice")
	container := &model.Container{DockerId: "def456", Name: "valheim"}
	require.NoError(t, database.GetDB().Create(container).Error)

	operator := createRole(t, "operator", 70)
	grantRole(t, user, operator, model.ScopeContainer, &container.Id)
	grantPerm(t, model.SubjectRole, operator.Id, PermContainerManage, model.ValueAllow, model.ScopeContainer, &container.Id)

	decision, err := engine.Resolve(user, PermContainerManage, &container.Id)
	require.NoError(t, err)
	assert.Equal(t, Allow, decision)

	// The container-scoped role grant carries nothing globally.
	decision, err = engine.Resolve(user, PermContainerManage, nil)
	require.NoError(t, err)
	assert.Equal(t, Unset, decision)
}

func TestValidPermission(t *testing.T) {
	assert.True(t, ValidPermission(PermDashboardAccess))
	assert.True(t, ValidPermission(PermContainerManage))
	assert.False(t, ValidPermission("made_up_permission"))
	assert.False(t, ValidPermission(""))

	assert.Len(t, AllPermissions(), 22)
	assert.True(t, ContainerScoped(PermTerminalAccess))
	assert.False(t, ContainerScoped(PermUserCreate))
}
