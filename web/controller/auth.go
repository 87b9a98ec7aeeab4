package controller

import (
	"net/http"

	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/web/entity"
	"github.com/modix-panel/modix/web/service"
	"github.com/modix-panel/modix/web/session"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	authService *service.AuthService
}

// NewAuthController registers the unauthenticated login route.
func NewAuthController(g *gin.RouterGroup, authService *service.AuthService) *AuthController {
	a := &AuthController{authService: authService}
	g.POST("/login", a.login)
	return a
}

type loginForm struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *AuthController) login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid login request")
		return
	}

	token, user, err := a.authService.Login(form.Username, form.Password)
	if err != nil {
		jsonMsg(c, "", err)
		return
	}

	jsonObj(c, entity.LoginResult{Token: token, User: summarize(user)}, nil)
}

// Me returns the authenticated subject. Registered behind the token
// gate so session.GetLoginUser is always set.
func Me(c *gin.Context) {
	user := session.GetLoginUser(c)
	jsonObj(c, summarize(user), nil)
}

func summarize(user *model.User) entity.UserSummary {
	return entity.UserSummary{
		Id:       user.Id,
		Username: user.Username,
		Email:    user.Email,
		Active:   user.Active,
	}
}
