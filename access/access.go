// Package access answers "may user U perform action A on container C?".
// It is a pure resolver over the identity store; converting Unset to a
// denial is the caller's policy decision.
package access

import (
	"sort"

	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/util/common"

	"gorm.io/gorm"
)

// Decision is the outcome of a resolution.
type Decision int

const (
	Unset Decision = iota
	Allow
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return "unset"
	}
}

func decisionOf(value string) Decision {
	if value == model.ValueAllow {
		return Allow
	}
	return Deny
}

// Engine resolves permissions against the identity store. RootPrincipals
// is consulted on every resolution so config reloads take effect without
// a restart; root privilege is a runtime short-circuit, never persisted.
type Engine struct {
	DB             *gorm.DB
	RootPrincipals func() []string
}

// Resolve walks the grant tiers in order: root short-circuit, explicit
// user grants (container scope over global), then role grants ordered by
// hierarchy level descending with ties broken by role name. The first
// matching grant wins.
func (e *Engine) Resolve(user *model.User, permission string, containerID *int) (Decision, error) {
	if e.RootPrincipals != nil {
		for _, name := range e.RootPrincipals() {
			if name == user.Username {
				return Allow, nil
			}
		}
	}

	// One session per resolution: a consistent snapshot for all reads.
	tx := e.DB.Session(&gorm.Session{})

	if d, ok, err := e.userGrant(tx, user.Id, permission, containerID); err != nil {
		return Unset, common.Wrap(common.KindInfrastructure, err, "resolve user grants")
	} else if ok {
		return d, nil
	}

	d, ok, err := e.roleGrant(tx, user.Id, permission, containerID)
	if err != nil {
		return Unset, common.Wrap(common.KindInfrastructure, err, "resolve role grants")
	}
	if ok {
		return d, nil
	}
	return Unset, nil
}

func (e *Engine) userGrant(tx *gorm.DB, userID int, permission string, containerID *int) (Decision, bool, error) {
	var grants []model.PermissionGrant
	err := tx.Where("subject_type = ? AND subject_id = ? AND permission = ?",
		model.SubjectUser, userID, permission).Find(&grants).Error
	if err != nil {
		return Unset, false, err
	}

	if containerID != nil {
		for _, g := range grants {
			if g.Scope == model.ScopeContainer && g.ContainerId != nil && *g.ContainerId == *containerID {
				return decisionOf(g.Value), true, nil
			}
		}
	}
	for _, g := range grants {
		if g.Scope == model.ScopeGlobal {
			return decisionOf(g.Value), true, nil
		}
	}
	return Unset, false, nil
}

type rankedRoleGrant struct {
	grant model.RoleGrant
	role  model.Role
}

func (e *Engine) roleGrant(tx *gorm.DB, userID int, permission string, containerID *int) (Decision, bool, error) {
	var roleGrants []model.RoleGrant
	if err := tx.Where("user_id = ?", userID).Find(&roleGrants).Error; err != nil {
		return Unset, false, err
	}
	if len(roleGrants) == 0 {
		return Unset, false, nil
	}

	ranked := make([]rankedRoleGrant, 0, len(roleGrants))
	for _, rg := range roleGrants {
		var role model.Role
		if err := tx.First(&role, rg.RoleId).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				continue
			}
			return Unset, false, err
		}
		ranked = append(ranked, rankedRoleGrant{grant: rg, role: role})
	}

	// Higher hierarchy wins; equal levels break by name for determinism.
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].role.HierarchyLevel != ranked[j].role.HierarchyLevel {
			return ranked[i].role.HierarchyLevel > ranked[j].role.HierarchyLevel
		}
		return ranked[i].role.Name < ranked[j].role.Name
	})

	for _, rr := range ranked {
		switch {
		case containerID != nil && rr.grant.Scope == model.ScopeContainer &&
			rr.grant.ContainerId != nil && *rr.grant.ContainerId == *containerID:
			d, ok, err := e.rolePermission(tx, rr.role.Id, permission, model.ScopeContainer, containerID)
			if err != nil {
				return Unset, false, err
			}
			if ok {
				return d, true, nil
			}
		case rr.grant.Scope == model.ScopeGlobal:
			d, ok, err := e.rolePermission(tx, rr.role.Id, permission, model.ScopeGlobal, nil)
			if err != nil {
				return Unset, false, err
			}
			if ok {
				return d, true, nil
			}
		}
	}
	return Unset, false, nil
}

func (e *Engine) rolePermission(tx *gorm.DB, roleID int, permission, scope string, containerID *int) (Decision, bool, error) {
	q := tx.Where("subject_type = ? AND subject_id = ? AND permission = ? AND scope = ?",
		model.SubjectRole, roleID, permission, scope)
	if containerID != nil {
		q = q.Where("container_id = ?", *containerID)
	}

	var grant model.PermissionGrant
	err := q.First(&grant).Error
	if err == gorm.ErrRecordNotFound {
		return Unset, false, nil
	}
	if err != nil {
		return Unset, false, err
	}
	return decisionOf(grant.Value), true, nil
}
