// Package service implements the business logic behind the web
// controllers: identity administration, authentication, auditing and
// host status sampling.
package service

import (
	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/database"
	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/util/crypto"

	"gorm.io/gorm"
)

type UserService struct{}

func (s *UserService) GetUser(id int) (*model.User, error) {
	db := database.GetDB()

	user := &model.User{}
	err := db.First(user, id).Error
	if database.IsNotFound(err) {
		return nil, common.New(common.KindNotFound, "user %d does not exist", id)
	}
	if err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "load user %d", id)
	}
	return user, nil
}

func (s *UserService) GetUserByName(username string) (*model.User, error) {
	db := database.GetDB()

	user := &model.User{}
	err := db.Where("username = ?", username).First(user).Error
	if database.IsNotFound(err) {
		return nil, common.New(common.KindNotFound, "user %s does not exist", username)
	}
	if err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "load user %s", username)
	}
	return user, nil
}

func (s *UserService) GetUsers() ([]model.User, error) {
	db := database.GetDB()

	var users []model.User
	if err := db.Order("id").Find(&users).Error; err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "list users")
	}
	return users, nil
}

// CreateUser creates the user and its initial grants in one transaction.
func (s *UserService) CreateUser(username, password, email string, roleNames []string) (*model.User, error) {
	if username == "" || password == "" {
		return nil, common.New(common.KindInvalidArgument, "username and password are required")
	}

	hash, err := crypto.HashPasswordAsBcrypt(password)
	if err != nil {
		return nil, common.Wrap(common.KindInternal, err, "hash password")
	}

	db := database.GetDB()
	user := &model.User{Username: username, Password: hash, Email: email, Active: true}

	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		tx.Model(&model.User{}).Where("username = ?", username).Count(&count)
		if count > 0 {
			return common.New(common.KindConflict, "username %s is already taken", username)
		}
		if err := tx.Create(user).Error; err != nil {
			return common.Wrap(common.KindInfrastructure, err, "create user %s", username)
		}
		for _, roleName := range roleNames {
			var role model.Role
			if err := tx.Where("name = ?", roleName).First(&role).Error; err != nil {
				return common.New(common.KindInvalidArgument, "unknown role %s", roleName)
			}
			grant := model.RoleGrant{UserId: user.Id, RoleId: role.Id, Scope: model.ScopeGlobal}
			if err := tx.Create(&grant).Error; err != nil {
				return common.Wrap(common.KindInfrastructure, err, "grant role %s", roleName)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser updates username/email and optionally replaces the
// credential.
func (s *UserService) UpdateUser(id int, username, password, email string) error {
	user, err := s.GetUser(id)
	if err != nil {
		return err
	}

	updates := map[string]any{}
	if username != "" && username != user.Username {
		updates["username"] = username
	}
	if email != "" {
		updates["email"] = email
	}
	if password != "" {
		hash, err := crypto.HashPasswordAsBcrypt(password)
		if err != nil {
			return common.Wrap(common.KindInternal, err, "hash password")
		}
		updates["password"] = hash
	}
	if len(updates) == 0 {
		return nil
	}

	db := database.GetDB()
	if err := db.Model(&model.User{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return common.Wrap(common.KindInfrastructure, err, "update user %d", id)
	}
	return nil
}

// DeactivateUser flags the user inactive. Users are never hard-deleted
// by default so grants and audit records keep their subject.
func (s *UserService) DeactivateUser(id int) error {
	if _, err := s.GetUser(id); err != nil {
		return err
	}

	db := database.GetDB()
	err := db.Model(&model.User{}).Where("id = ?", id).Update("active", false).Error
	if err != nil {
		return common.Wrap(common.KindInfrastructure, err, "deactivate user %d", id)
	}
	return nil
}

// CheckUser verifies a credential pair. Legacy plaintext records that
// match byte-wise are rehashed atomically before the login succeeds.
// Callers get nil on any mismatch without learning which field failed.
func (s *UserService) CheckUser(username, password string) *model.User {
	db := database.GetDB()

	user := &model.User{}
	err := db.Where("username = ? AND active = ?", username, true).First(user).Error
	if err != nil {
		if !database.IsNotFound(err) {
			logger.Warning("check user err:", err)
		}
		return nil
	}

	if !crypto.IsBcryptHash(user.Password) {
		if user.Password != password {
			return nil
		}
		hash, err := crypto.HashPasswordAsBcrypt(password)
		if err != nil {
			logger.Warning("rehash legacy credential err:", err)
			return nil
		}
		err = db.Model(&model.User{}).
			Where("id = ? AND password = ?", user.Id, user.Password).
			Update("password", hash).Error
		if err != nil {
			logger.Warning("store rehashed credential err:", err)
			return nil
		}
		user.Password = hash
		return user
	}

	if !crypto.CheckPasswordHash(user.Password, password) {
		return nil
	}
	return user
}

// GrantRole assigns a role to the user at the requested scope.
func (s *UserService) GrantRole(userID int, roleName, scope string, containerID *int) error {
	db := database.GetDB()

	if _, err := s.GetUser(userID); err != nil {
		return err
	}
	var role model.Role
	if err := db.Where("name = ?", roleName).First(&role).Error; err != nil {
		return common.New(common.KindInvalidArgument, "unknown role %s", roleName)
	}
	if scope == "" {
		scope = model.ScopeGlobal
	}
	if scope == model.ScopeContainer {
		if containerID == nil {
			return common.New(common.KindInvalidArgument, "container scope needs a container id")
		}
		var count int64
		db.Model(&model.Container{}).Where("id = ?", *containerID).Count(&count)
		if count == 0 {
			return common.New(common.KindInvalidArgument, "container %d does not exist", *containerID)
		}
	}

	var count int64
	q := db.Model(&model.RoleGrant{}).
		Where("user_id = ? AND role_id = ? AND scope = ?", userID, role.Id, scope)
	if containerID != nil {
		q = q.Where("container_id = ?", *containerID)
	}
	q.Count(&count)
	if count > 0 {
		return common.New(common.KindConflict, "role %s is already granted", roleName)
	}

	grant := model.RoleGrant{UserId: userID, RoleId: role.Id, Scope: scope, ContainerId: containerID}
	if err := db.Create(&grant).Error; err != nil {
		return common.Wrap(common.KindInfrastructure, err, "grant role %s", roleName)
	}
	return nil
}

// GrantPermission attaches an explicit user permission grant. The
// permission name must be in the closed enumeration.
func (s *UserService) GrantPermission(userID int, permission, value, scope string, containerID *int) error {
	return grantPermission(model.SubjectUser, userID, permission, value, scope, containerID)
}

func grantPermission(subjectType string, subjectID int, permission, value, scope string, containerID *int) error {
	if !access.ValidPermission(permission) {
		return common.New(common.KindInvalidArgument, "unknown permission %s", permission)
	}
	if value != model.ValueAllow && value != model.ValueDeny {
		return common.New(common.KindInvalidArgument, "grant value must be allow or deny")
	}
	if scope == "" {
		scope = model.ScopeGlobal
	}
	if scope != model.ScopeGlobal && scope != model.ScopeContainer {
		return common.New(common.KindInvalidArgument, "unknown scope %s", scope)
	}
	if scope == model.ScopeContainer && !access.ContainerScoped(permission) {
		return common.New(common.KindInvalidArgument, "permission %s cannot be scoped to a container", permission)
	}

	db := database.GetDB()
	if scope == model.ScopeContainer {
		if containerID == nil {
			return common.New(common.KindInvalidArgument, "container scope needs a container id")
		}
		var count int64
		db.Model(&model.Container{}).Where("id = ?", *containerID).Count(&count)
		if count == 0 {
			return common.New(common.KindInvalidArgument, "container %d does not exist", *containerID)
		}
	}

	grant := model.PermissionGrant{
		SubjectType: subjectType,
		SubjectId:   subjectID,
		Permission:  permission,
		Value:       value,
		Scope:       scope,
		ContainerId: containerID,
	}

	return db.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&model.PermissionGrant{}).
			Where("subject_type = ? AND subject_id = ? AND permission = ? AND scope = ?",
				subjectType, subjectID, permission, scope)
		if containerID != nil {
			q = q.Where("container_id = ?", *containerID)
		}
		var count int64
		q.Count(&count)
		if count > 0 {
			return common.New(common.KindConflict, "permission %s is already granted at this scope", permission)
		}
		if err := tx.Create(&grant).Error; err != nil {
			return common.Wrap(common.KindInfrastructure, err, "grant permission %s", permission)
		}
		return nil
	})
}
