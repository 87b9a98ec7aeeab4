package service

import (
	"path/filepath"
	"testing"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/database"
	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/util/crypto"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.InitDB(dbPath))
	t.Cleanup(func() { database.CloseDB() })
}

func TestUserServiceCreateAndGet(t *testing.T) {
	setup(t)
	s := UserService{}

	user, err := s.CreateUser("alice", "pw123", "alice@example.com", nil)
	require.NoError(t, err)
	assert.True(t, user.Active)
	assert.NotEqual(t, "pw123", user.Password)

	got, err := s.GetUser(user.Id)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	byName, err := s.GetUserByName("alice")
	require.NoError(t, err)
	assert.Equal(t, user.Id, byName.Id)

	_, err = s.GetUser(9999)
	require.Error(t, err)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestUserServiceCreateDuplicate(t *testing.T) {
	setup(t)
	s := UserService{}

	_, err := s.CreateUser("alice", "pw", "", nil)
	require.NoError(t, err)

	_, err = s.CreateUser("alice", "other", "", nil)
	require.Error(t, err)
	assert.Equal(t, common.KindConflict, common.KindOf(err))
}

func TestUserServiceCreateWithUnknownRole(t *testing.T) {
	setup(t)
	s := UserService{}

	_, err := s.CreateUser("alice", "pw", "", []string{"NoSuchRole"})
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidArgument, common.KindOf(err))

	// The transaction rolled back, no half-created user remains.
	_, err = s.GetUserByName("alice")
	require.Error(t, err)
}

func TestCheckUserBcrypt(t *testing.T) {
	setup(t)
	s := UserService{}

	_, err := s.CreateUser("alice", "pw123", "", nil)
	require.NoError(t, err)

	assert.NotNil(t, s.CheckUser("alice", "pw123"))
	assert.Nil(t, s.CheckUser("alice", "wrong"))
	assert.Nil(t, s.CheckUser("nobody", "pw123"))
}

func TestCheckUserRejectsInactive(t *testing.T) {
	setup(t)
	s := UserService{}

	user, err := s.CreateUser("alice", "pw123", "", nil)
	require.NoError(t, err)
	require.NoError(t, s.DeactivateUser(user.Id))

	assert.Nil(t, s.CheckUser("alice", "pw123"))
}

func TestCheckUserRehashesLegacyPlaintext(t *testing.T) {
	setup(t)
	s := UserService{}

	// A record imported from an older store with a plaintext credential.
	legacy := &model.User{Username: "old", Password: "plain-secret", Active: true}
	require.NoError(t, database.GetDB().Create(legacy).Error)

	assert.Nil(t, s.CheckUser("old", "wrong"))

	user := s.CheckUser("old", "plain-secret")
	require.NotNil(t, user)
	assert.True(t, crypto.IsBcryptHash(user.Password))

	// The store now holds the hash and the old byte-wise match is gone.
	stored, err := s.GetUserByName("old")
	require.NoError(t, err)
	assert.True(t, crypto.IsBcryptHash(stored.Password))
	assert.NotNil(t, s.CheckUser("old", "plain-secret"))
}

func TestGrantRoleValidation(t *testing.T) {
	setup(t)
	s := UserService{}

	user, err := s.CreateUser("alice", "pw", "", nil)
	require.NoError(t, err)
	role := &model.Role{Name: "Operator", HierarchyLevel: 70}
	require.NoError(t, database.GetDB().Create(role).Error)

	require.NoError(t, s.GrantRole(user.Id, "Operator", "", nil))

	err = s.GrantRole(user.Id, "Operator", model.ScopeGlobal, nil)
	require.Error(t, err)
	assert.Equal(t, common.KindConflict, common.KindOf(err))

	err = s.GrantRole(user.Id, "NoSuchRole", "", nil)
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidArgument, common.KindOf(err))

	// Container scope needs an existing container.
	err = s.GrantRole(user.Id, "Operator", model.ScopeContainer, nil)
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidArgument, common.KindOf(err))

	missing := 424242
	err = s.GrantRole(user.Id, "Operator", model.ScopeContainer, &missing)
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidArgument, common.KindOf(err))
}

func TestGrantPermissionValidation(t *testing.T) {
	setup(t)
	s := UserService{}

	user, err := s.CreateUser("alice", "pw", "", nil)
	require.NoError(t, err)

	require.NoError(t, s.GrantPermission(user.Id, access.PermLogsView, model.ValueAllow, "", nil))

	err = s.GrantPermission(user.Id, access.PermLogsView, model.ValueAllow, model.ScopeGlobal, nil)
	require.Error(t, err)
	assert.Equal(t, common.KindConflict, common.KindOf(err))

	err = s.GrantPermission(user.Id, "bogus_permission", model.ValueAllow, "", nil)
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidArgument, common.KindOf(err))

	err = s.GrantPermission(user.Id, access.PermLogsView, "maybe", "", nil)
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidArgument, common.KindOf(err))

	container := model.Container{DockerId: "cafebabe", Name: "srv"}
	require.NoError(t, database.GetDB().Create(&container).Error)
	err = s.GrantPermission(user.Id, access.PermUserEdit, model.ValueAllow, model.ScopeContainer, &container.Id)
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidArgument, common.KindOf(err))
}

func TestAuthServiceUniformFailure(t *testing.T) {
	setup(t)
	users := UserService{}
	_, err := users.CreateUser("alice", "pw123", "", nil)
	require.NoError(t, err)

	auth := &AuthService{UserService: users, AuditService: AuditService{}, Tokens: nil}

	// Wrong password and unknown user read identically.
	_, _, errWrongPw := auth.Login("alice", "nope")
	_, _, errNoUser := auth.Login("nobody", "nope")
	require.Error(t, errWrongPw)
	require.Error(t, errNoUser)
	assert.Equal(t, errWrongPw.Error(), errNoUser.Error())
	assert.Equal(t, common.KindUnauthorized, common.KindOf(errWrongPw))
	assert.Equal(t, common.KindUnauthorized, common.KindOf(errNoUser))
}
