package controller

import (
	"strconv"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/web/middleware"
	"github.com/modix-panel/modix/web/service"

	"github.com/gin-gonic/gin"
)

type AuditController struct {
	auditService *service.AuditService
}

func NewAuditController(g *gin.RouterGroup, gate *middleware.Gate, auditService *service.AuditService) *AuditController {
	a := &AuditController{auditService: auditService}
	g.GET("/audit", gate.RequirePermission(access.PermManagePermissions), a.recent)
	return a
}

func (a *AuditController) recent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := a.auditService.GetRecent(limit)
	jsonObj(c, entries, err)
}
