package database

import (
	"os"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/util/crypto"
	"github.com/modix-panel/modix/util/random"

	"github.com/pelletier/go-toml/v2"
	"gorm.io/gorm"
)

// Seed is the declarative configuration read at startup. It carries the
// signing secret, root principals, role templates, extra users and
// feature flags.
type Seed struct {
	Secret       string `toml:"secret"`
	TokenMinutes int    `toml:"token_minutes"`
	EnableRootFS bool   `toml:"enable_root_fs"`

	Root  SeedRoot   `toml:"root"`
	Roles []SeedRole `toml:"roles"`
	Users []SeedUser `toml:"users"`
}

type SeedRoot struct {
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	Extra    []string `toml:"extra"`
}

type SeedRole struct {
	Name        string `toml:"name"`
	Hierarchy   int    `toml:"hierarchy"`
	Description string `toml:"description"`
}

type SeedUser struct {
	Username    string           `toml:"username"`
	Password    string           `toml:"password"`
	Email       string           `toml:"email"`
	Roles       []string         `toml:"roles"`
	Permissions []SeedPermission `toml:"permissions"`
}

type SeedPermission struct {
	Name  string `toml:"name"`
	Value string `toml:"value"`
	Scope string `toml:"scope"`
}

// Template roles seeded when absent. They hold no implicit privilege,
// only what their grants enumerate.
var templateRoles = []SeedRole{
	{Name: "Owner", Hierarchy: 100, Description: "Full panel ownership"},
	{Name: "Admin", Hierarchy: 90, Description: "Panel administration"},
	{Name: "Operator", Hierarchy: 70, Description: "Workload operation"},
	{Name: "Moderator", Hierarchy: 50, Description: "Workload moderation"},
	{Name: "Viewer", Hierarchy: 10, Description: "Read-only access"},
}

// LoadSeed parses the seed file and applies defaults.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.Wrap(common.KindInvalidArgument, err, "read seed file %s", path)
	}

	seed := &Seed{}
	if err := toml.Unmarshal(data, seed); err != nil {
		return nil, common.Wrap(common.KindInvalidArgument, err, "parse seed file %s", path)
	}

	if seed.Secret == "" {
		return nil, common.New(common.KindInvalidArgument, "seed file %s carries no signing secret", path)
	}
	if seed.Root.Username == "" {
		seed.Root.Username = "root"
	}
	if seed.TokenMinutes < 60 || seed.TokenMinutes > 720 {
		seed.TokenMinutes = 120
	}
	return seed, nil
}

// RootPrincipals returns the login names that short-circuit permission
// resolution to allow.
func (s *Seed) RootPrincipals() []string {
	out := make([]string, 0, 1+len(s.Root.Extra))
	out = append(out, s.Root.Username)
	out = append(out, s.Root.Extra...)
	return out
}

// Bootstrap applies the seed to the store. It only inserts missing
// records and updates changed templates; records present in the store
// but absent from the seed are never deleted or downgraded. Running it
// twice on the same seed is a no-op.
func Bootstrap(seed *Seed) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := seedRoles(tx, seed); err != nil {
			return err
		}
		if err := seedUser(tx, SeedUser{
			Username: seed.Root.Username,
			Password: seed.Root.Password,
		}); err != nil {
			return err
		}
		for _, u := range seed.Users {
			if err := seedUser(tx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

func seedRoles(tx *gorm.DB, seed *Seed) error {
	templates := append([]SeedRole{}, templateRoles...)
	templates = append(templates, seed.Roles...)

	for _, t := range templates {
		var role model.Role
		err := tx.Where("name = ?", t.Name).First(&role).Error
		if err == gorm.ErrRecordNotFound {
			role = model.Role{Name: t.Name, HierarchyLevel: t.Hierarchy, Description: t.Description}
			if err := tx.Create(&role).Error; err != nil {
				return common.Wrap(common.KindInfrastructure, err, "seed role %s", t.Name)
			}
			continue
		}
		if err != nil {
			return common.Wrap(common.KindInfrastructure, err, "seed role %s", t.Name)
		}

		updates := map[string]any{}
		if role.Description != t.Description {
			updates["description"] = t.Description
		}
		// Raise to the template level if the template grew, but never
		// downgrade a manually raised hierarchy.
		if t.Hierarchy > role.HierarchyLevel {
			updates["hierarchy_level"] = t.Hierarchy
		}
		if len(updates) > 0 {
			if err := tx.Model(&role).Updates(updates).Error; err != nil {
				return common.Wrap(common.KindInfrastructure, err, "update role %s", t.Name)
			}
		}
	}
	return nil
}

func seedUser(tx *gorm.DB, su SeedUser) error {
	if su.Username == "" {
		return nil
	}

	var user model.User
	err := tx.Where("username = ?", su.Username).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		password := su.Password
		if password == "" {
			password = random.Seq(10)
			logger.Warningf("seed user %s has no password, generated: %s", su.Username, password)
		}
		hash, hashErr := crypto.HashPasswordAsBcrypt(password)
		if hashErr != nil {
			return common.Wrap(common.KindInternal, hashErr, "hash seed password")
		}
		user = model.User{Username: su.Username, Password: hash, Email: su.Email, Active: true}
		if err := tx.Create(&user).Error; err != nil {
			return common.Wrap(common.KindInfrastructure, err, "seed user %s", su.Username)
		}
	} else if err != nil {
		return common.Wrap(common.KindInfrastructure, err, "seed user %s", su.Username)
	}

	for _, roleName := range su.Roles {
		var role model.Role
		if err := tx.Where("name = ?", roleName).First(&role).Error; err != nil {
			return common.Wrap(common.KindInvalidArgument, err, "seed user %s references unknown role %s", su.Username, roleName)
		}
		var count int64
		tx.Model(&model.RoleGrant{}).
			Where("user_id = ? AND role_id = ? AND scope = ?", user.Id, role.Id, model.ScopeGlobal).
			Count(&count)
		if count == 0 {
			grant := model.RoleGrant{UserId: user.Id, RoleId: role.Id, Scope: model.ScopeGlobal}
			if err := tx.Create(&grant).Error; err != nil {
				return common.Wrap(common.KindInfrastructure, err, "seed role grant for %s", su.Username)
			}
		}
	}

	for _, p := range su.Permissions {
		if !access.ValidPermission(p.Name) {
			return common.New(common.KindInvalidArgument, "seed user %s grants unknown permission %s", su.Username, p.Name)
		}
		scope := p.Scope
		if scope == "" {
			scope = model.ScopeGlobal
		}
		// The seed file has no way to reference a container, so only
		// global grants can be declared in it.
		if scope != model.ScopeGlobal {
			return common.New(common.KindInvalidArgument, "seed user %s grants %s at unsupported scope %s", su.Username, p.Name, scope)
		}
		value := p.Value
		if value == "" {
			value = model.ValueAllow
		}
		var count int64
		tx.Model(&model.PermissionGrant{}).
			Where("subject_type = ? AND subject_id = ? AND permission = ? AND scope = ?",
				model.SubjectUser, user.Id, p.Name, scope).
			Count(&count)
		if count == 0 {
			grant := model.PermissionGrant{
				SubjectType: model.SubjectUser,
				SubjectId:   user.Id,
				Permission:  p.Name,
				Value:       value,
				Scope:       scope,
			}
			if err := tx.Create(&grant).Error; err != nil {
				return common.Wrap(common.KindInfrastructure, err, "seed permission grant for %s", su.Username)
			}
		}
	}
	return nil
}
