package controller

import (
	"net/http"
	"strconv"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/web/middleware"
	"github.com/modix-panel/modix/web/service"
	"github.com/modix-panel/modix/web/session"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	userService *service.UserService
	tokens      *session.Manager
}

func NewUserController(g *gin.RouterGroup, gate *middleware.Gate,
	userService *service.UserService, tokens *session.Manager,
) *UserController {
	u := &UserController{userService: userService, tokens: tokens}

	g.GET("/users", gate.RequirePermission(access.PermUserEdit), u.list)
	g.GET("/users/:id", gate.RequirePermission(access.PermUserEdit), u.get)
	g.POST("/users", gate.RequirePermission(access.PermUserCreate), u.create)
	g.POST("/users/:id", gate.RequirePermission(access.PermUserEdit), u.update)
	g.DELETE("/users/:id", gate.RequirePermission(access.PermUserDelete), u.deactivate)
	g.POST("/users/:id/roles", gate.RequirePermission(access.PermManagePermissions), u.grantRole)
	g.POST("/users/:id/permissions", gate.RequirePermission(access.PermManagePermissions), u.grantPermission)
	return u
}

func pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid id")
		return 0, false
	}
	return id, true
}

func (u *UserController) list(c *gin.Context) {
	users, err := u.userService.GetUsers()
	jsonObj(c, users, err)
}

func (u *UserController) get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	user, err := u.userService.GetUser(id)
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	jsonObj(c, summarize(user), nil)
}

type userForm struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func (u *UserController) create(c *gin.Context) {
	var form userForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid user request")
		return
	}
	user, err := u.userService.CreateUser(form.Username, form.Password, form.Email, form.Roles)
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	jsonMsgObj(c, "user created", summarize(user), nil)
}

func (u *UserController) update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var form userForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid user request")
		return
	}
	err := u.userService.UpdateUser(id, form.Username, form.Password, form.Email)
	if err == nil {
		// Identity changed; cached tokens for the subject are stale.
		u.tokens.InvalidateUser(id)
	}
	jsonMsg(c, "user updated", err)
}

func (u *UserController) deactivate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	err := u.userService.DeactivateUser(id)
	if err == nil {
		u.tokens.InvalidateUser(id)
	}
	jsonMsg(c, "user deactivated", err)
}

type roleGrantForm struct {
	Role        string `json:"role"`
	Scope       string `json:"scope"`
	ContainerId *int   `json:"containerId"`
}

func (u *UserController) grantRole(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var form roleGrantForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid grant request")
		return
	}
	jsonMsg(c, "role granted", u.userService.GrantRole(id, form.Role, form.Scope, form.ContainerId))
}

type permissionGrantForm struct {
	Permission  string `json:"permission"`
	Value       string `json:"value"`
	Scope       string `json:"scope"`
	ContainerId *int   `json:"containerId"`
}

func (u *UserController) grantPermission(c *gin.Context) {
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
		u.userService.GrantPermission(id, form.Permission, form.Value, form.Scope, form.ContainerId))
}
