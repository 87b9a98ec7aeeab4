package service

import (
	"os"
	"path/filepath"

	"github.com/modix-panel/modix/config"
	"github.com/modix-panel/modix/database"
	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/util/common"

	"gorm.io/gorm"
)

// ContainerService manages registered workload records. Registration
// links a runtime workload to the grant graph and creates its
// placeholder data directory.
type ContainerService struct{}

func (s *ContainerService) GetContainer(id int) (*model.Container, error) {
	db := database.GetDB()

	container := &model.Container{}
	err := db.First(container, id).Error
	if database.IsNotFound(err) {
		return nil, common.New(common.KindNotFound, "container %d does not exist", id)
	}
	if err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "load container %d", id)
	}
	return container, nil
}

func (s *ContainerService) GetContainerByDockerId(dockerID string) (*model.Container, error) {
	db := database.GetDB()

	container := &model.Container{}
	err := db.Where("docker_id = ?", dockerID).First(container).Error
	if database.IsNotFound(err) {
		return nil, common.New(common.KindNotFound, "container %s is not registered", dockerID)
	}
	if err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "load container %s", dockerID)
	}
	return container, nil
}

func (s *ContainerService) GetContainers() ([]model.Container, error) {
	db := database.GetDB()

	var containers []model.Container
	if err := db.Order("id").Find(&containers).Error; err != nil {
		return nil, common.Wrap(common.KindInfrastructure, err, "list containers")
	}
	return containers, nil
}

// Register records a workload and creates its placeholder directory.
func (s *ContainerService) Register(dockerID, name, description string) (*model.Container, error) {
	if dockerID == "" {
		return nil, common.New(common.KindInvalidArgument, "runtime identifier is required")
	}

	db := database.GetDB()
	container := &model.Container{DockerId: dockerID, Name: name, Description: description}

	err := db.Transaction(func(tx *gorm.DB) error {
		var count int64
		tx.Model(&model.Container{}).Where("docker_id = ?", dockerID).Count(&count)
		if count > 0 {
			return common.New(common.KindConflict, "container %s is already registered", dockerID)
		}
		if err := tx.Create(container).Error; err != nil {
			return common.Wrap(common.KindInfrastructure, err, "register container %s", dockerID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(config.GetDataRootPath(), dockerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warningf("create placeholder directory %s: %v", dir, err)
	}
	return container, nil
}

func (s *ContainerService) Update(id int, name, description string) error {
	if _, err := s.GetContainer(id); err != nil {
		return err
	}

	updates := map[string]any{}
	if name != "" {
		updates["name"] = name
	}
	if description != "" {
		updates["description"] = description
	}
	if len(updates) == 0 {
		return nil
	}

	db := database.GetDB()
	if err := db.Model(&model.Container{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return common.Wrap(common.KindInfrastructure, err, "update container %d", id)
	}
	return nil
}

// Unregister removes the record and cascades to its container-scoped
// grants in one transaction.
func (s *ContainerService) Unregister(id int) error {
	if _, err := s.GetContainer(id); err != nil {
		return err
	}

	db := database.GetDB()
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("scope = ? AND container_id = ?", model.ScopeContainer, id).
			Delete(&model.PermissionGrant{}).Error; err != nil {
			return common.Wrap(common.KindInfrastructure, err, "cascade permission grants")
		}
		if err := tx.Where("scope = ? AND container_id = ?", model.ScopeContainer, id).
			Delete(&model.RoleGrant{}).Error; err != nil {
			return common.Wrap(common.KindInfrastructure, err, "cascade role grants")
		}
		if err := tx.Delete(&model.Container{}, id).Error; err != nil {
			return common.Wrap(common.KindInfrastructure, err, "unregister container %d", id)
		}
		return nil
	})
}
