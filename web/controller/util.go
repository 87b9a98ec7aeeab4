// Package controller wires the HTTP surface: request parsing, the
// service calls behind each route and the response envelope.
package controller

import (
	"net/http"

	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/web/entity"
	"github.com/modix-panel/modix/web/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func jsonMsg(c *gin.Context, msg string, err error) {
	jsonMsgObj(c, msg, nil, err)
}

func jsonObj(c *gin.Context, obj any, err error) {
	jsonMsgObj(c, "", obj, err)
}

func jsonMsgObj(c *gin.Context, msg string, obj any, err error) {
	m := entity.Msg{Obj: obj}
	if err == nil {
		m.Success = true
		if msg != "" {
			m.Msg = msg
		}
		c.JSON(http.StatusOK, m)
		return
	}
	m.Success = false
	if common.KindOf(err) == common.KindInternal {
		// Internal details stay in the log; the client only gets a
		// correlation id to quote.
		ref := uuid.NewString()
		logger.Errorf("%s %s: internal error %s: %v", c.Request.Method, c.FullPath(), ref, err)
		m.Msg = "internal error, reference " + ref
		c.JSON(http.StatusInternalServerError, m)
		return
	}
	m.Msg = err.Error()
	logger.Debugf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(middleware.StatusOf(err), m)
}

func pureJsonMsg(c *gin.Context, statusCode int, success bool, msg string) {
	c.JSON(statusCode, entity.Msg{Success: success, Msg: msg})
}
