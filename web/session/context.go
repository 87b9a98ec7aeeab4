package session

import (
	"github.com/modix-panel/modix/database/model"

	"github.com/gin-gonic/gin"
)

const loginUser = "LOGIN_USER"

// SetLoginUser stores the authenticated subject on the request context.
func SetLoginUser(c *gin.Context, user *model.User) {
	c.Set(loginUser, user)
}

// GetLoginUser returns the authenticated subject, nil when the request
// carried no valid credential.
func GetLoginUser(c *gin.Context) *model.User {
	if obj, ok := c.Get(loginUser); ok {
		if user, ok := obj.(*model.User); ok {
			return user
		}
	}
	return nil
}

func IsLogin(c *gin.Context) bool {
	return GetLoginUser(c) != nil
}
