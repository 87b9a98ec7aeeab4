package controller

import (
	"net/http"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/web/middleware"
	"github.com/modix-panel/modix/web/service"

	"github.com/gin-gonic/gin"
)

type RoleController struct {
	roleService *service.RoleService
}

func NewRoleController(g *gin.RouterGroup, gate *middleware.Gate, roleService *service.RoleService) *RoleController {
	r := &RoleController{roleService: roleService}

	g.GET("/roles", gate.RequirePermission(access.PermRoleEdit), r.list)
	g.POST("/roles", gate.RequirePermission(access.PermRoleCreate), r.create)
	g.POST("/roles/:id", gate.RequirePermission(access.PermRoleEdit), r.update)
	g.DELETE("/roles/:id", gate.RequirePermission(access.PermRoleDelete), r.remove)
	g.GET("/roles/:id/permissions", gate.RequirePermission(access.PermRoleEdit), r.permissions)
	g.POST("/roles/:id/permissions", gate.RequirePermission(access.PermManagePermissions), r.grantPermission)
	g.GET("/permissions", gate.RequirePermission(access.PermSchemas), r.schema)
	return r
}

func (r *RoleController) list(c *gin.Context) {
	roles, err := r.roleService.GetRoles()
	jsonObj(c, roles, err)
}

type roleForm struct {
	Name        string  `json:"name"`
	Hierarchy   *int    `json:"hierarchy"`
	Description *string `json:"description"`
}

func (r *RoleController) create(c *gin.Context) {
	var form roleForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid role request")
		return
	}
	hierarchy := 0
	if form.Hierarchy != nil {
		hierarchy = *form.Hierarchy
	}
	description := ""
	if form.Description != nil {
		description = *form.Description
	}
	role, err := r.roleService.CreateRole(form.Name, hierarchy, description)
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	jsonMsgObj(c, "role created", role, nil)
}

func (r *RoleController) update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var form roleForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid role request")
		return
	}
	jsonMsg(c, "role updated", r.roleService.UpdateRole(id, form.Name, form.Hierarchy, form.Description))
}

func (r *RoleController) remove(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	jsonMsg(c, "role deleted", r.roleService.DeleteRole(id))
}

func (r *RoleController) permissions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	grants, err := r.roleService.GetRolePermissions(id)
	jsonObj(c, grants, err)
}

func (r *RoleController) grantPermission(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var form permissionGrantForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid grant request")
		return
	}
	jsonMsg(c, "permission granted",
		r.roleService.GrantPermission(id, form.Permission, form.Value, form.Scope, form.ContainerId))
}

// schema lists the closed permission enumeration clients build grant
// editors from.
func (r *RoleController) schema(c *gin.Context) {
	jsonObj(c, access.AllPermissions(), nil)
}
