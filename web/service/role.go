package service

import (
	"github.com/modix-panel/modix/database"
	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/util/common"

	"gorm.io/gorm"
)

type RoleService struct{}

func (s *RoleService) GetRole(id int) (*model.Role, error) {
	db := database.GetDB()

	role := &model.Role{}
	err := db.First(role, id).Error
	if database.IsNotFound(err) {
		return nil, common.New(common.KindNotFound, "role %d does not exist", id)
	}
	if err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "load role %d", id)
	}
	return role, nil
}

func (s *RoleService) GetRoles() ([]model.Role, error) {
	db := database.GetDB()

	var roles []model.Role
	if err := db.Order("hierarchy_level DESC, name").Find(&roles).Error; err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "list roles")
	}
	return roles, nil
}

func (s *RoleService) CreateRole(name string, hierarchy int, description string) (*model.Role, error) {
	if name == "" {
		return nil, common.New(common.KindInvalidArgument, "role name is required")
	}
	if hierarchy < 0 {
		return nil, common.New(common.KindInvalidArgument, "hierarchy level must be non-negative")
	}

	db := database.GetDB()
	role := &model.Role{Name: name, HierarchyLevel: hierarchy, Description: description}

	err := db.Transaction(func(tx *gorm.DB) error {
		var count int64
		tx.Model(&model.Role{}).Where("name = ?", name).Count(&count)
		if count > 0 {
			return common.New(common.KindConflict, "role %s already exists", name)
		}
		return tx.Create(role).Error
	})
	if err != nil {
		if common.KindOf(err) == common.KindConflict {
			return nil, err
		}
		return nil, common.Wrap(common.KindInfrastructure, err, "create role %s", name)
	}
	return role, nil
}

func (s *RoleService) UpdateRole(id int, name string, hierarchy *int, description *string) error {
	if _, err := s.GetRole(id); err != nil {
		return err
	}

	updates := map[string]any{}
	if name != "" {
		updates["name"] = name
	}
	if hierarchy != nil {
		if *hierarchy < 0 {
			return common.New(common.KindInvalidArgument, "hierarchy level must be non-negative")
		}
		updates["hierarchy_level"] = *hierarchy
	}
	if description != nil {
		updates["description"] = *description
	}
	if len(updates) == 0 {
		return nil
	}

	db := database.GetDB()
	if err := db.Model(&model.Role{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return common.Wrap(common.KindInfrastructure, err, "update role %d", id)
	}
	return nil
}

// DeleteRole removes the role together with its grants in one
// transaction.
func (s *RoleService) DeleteRole(id int) error {
	if _, err := s.GetRole(id); err != nil {
		return err
	}

	db := database.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&model.RoleGrant{}).Error; err != nil {
			return common.Wrap(common.KindInfrastructure, err, "delete role grants")
		}
		if err := tx.Where("subject_type = ? AND subject_id = ?", model.SubjectRole, id).
			Delete(&model.PermissionGrant{}).Error; err != nil {
			return common.Wrap(common.KindInfrastructure, err, "delete role permissions")
		}
		if err := tx.Delete(&model.Role{}, id).Error; err != nil {
			return common.Wrap(common.KindInfrastructure, err, "delete role %d", id)
		}
		return nil
	})
}

// GetRolePermissions lists the permission grants attached to a role.
func (s *RoleService) GetRolePermissions(id int) ([]model.PermissionGrant, error) {
	if _, err := s.GetRole(id); err != nil {
		return nil, err
	}

	db := database.GetDB()
	var grants []model.PermissionGrant
	err := db.Where("subject_type = ? AND subject_id = ?", model.SubjectRole, id).
		Order("permission").Find(&grants).Error
	if err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "list role permissions")
	}
	return grants, nil
}

// GrantPermission attaches a permission grant to the role.
func (s *RoleService) GrantPermission(roleID int, permission, value, scope string, containerID *int) error {
	if _, err := s.GetRole(roleID); err != nil {
		return err
	}
	return grantPermission(model.SubjectRole, roleID, permission, value, scope, containerID)
}
