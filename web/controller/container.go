package controller

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/web/middleware"
	"github.com/modix-panel/modix/web/service"
	"github.com/modix-panel/modix/workload"

	"github.com/gin-gonic/gin"
)

// stopGrace is the default grace window before a stop escalates.
const stopGrace = 10 * time.Second

// ContainerController serves the workload registry and the runtime
// control routes.
type ContainerController struct {
	containerService *service.ContainerService
	driver           workload.Driver
}

func NewContainerController(g *gin.RouterGroup, gate *middleware.Gate,
	containerService *service.ContainerService, driver workload.Driver,
) *ContainerController {
	cc := &ContainerController{containerService: containerService, driver: driver}

	g.GET("/containers", gate.RequirePermission(access.PermGetContainers), cc.listRegistered)
	g.POST("/containers/create", gate.RequirePermission(access.PermServerCreate), cc.create)
	g.POST("/containers/:id/edit", gate.RequirePermission(access.PermServerEdit), cc.edit)
	g.DELETE("/containers/:id", gate.RequirePermission(access.PermServerDelete), cc.remove)

	g.GET("/docker/containers", gate.RequirePermission(access.PermGetContainers), cc.listRuntime)
	g.GET("/docker/:id/inspect", gate.RequireContainerPermission(access.PermGetContainers, "id"), cc.inspect)
	g.GET("/docker/:id/top", gate.RequireContainerPermission(access.PermMetricsView, "id"), cc.top)
	g.GET("/docker/:id/stats", gate.RequireContainerPermission(access.PermMetricsView, "id"), cc.stats)
	g.GET("/docker/:id/processes", gate.RequireContainerPermission(access.PermMetricsView, "id"), cc.processes)
	g.POST("/docker/:id/start", gate.RequireContainerPermission(access.PermContainerManage, "id"), cc.start)
	g.POST("/docker/:id/stop", gate.RequireContainerPermission(access.PermContainerManage, "id"), cc.stop)
	g.POST("/docker/:id/restart", gate.RequireContainerPermission(access.PermContainerManage, "id"), cc.restart)

	g.POST("/terminal/:id/exec", gate.RequireContainerPermission(access.PermTerminalExec, "id"), cc.exec)
	return cc
}

func (cc *ContainerController) listRegistered(c *gin.Context) {
	containers, err := cc.containerService.GetContainers()
	jsonObj(c, containers, err)
}

type createForm struct {
	workload.Spec
	Description string `json:"description"`
}

// create provisions a runtime workload and registers it in one request.
// The runtime create runs first so a provisioning failure leaves no
// registry record behind.
func (cc *ContainerController) create(c *gin.Context) {
	var form createForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid create request")
		return
	}

	id, err := cc.driver.Create(c.Request.Context(), &form.Spec)
	if err != nil {
		jsonMsg(c, "", err)
		return
	}

	container, err := cc.containerService.Register(id, form.Name, form.Description)
	if err != nil {
		logger.Warningf("workload %s created but not registered: %v", id, err)
		jsonMsg(c, "", err)
		return
	}
	jsonMsgObj(c, "workload created", container, nil)
}

func (cc *ContainerController) edit(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var form struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid edit request")
		return
	}
	jsonMsg(c, "workload updated", cc.containerService.Update(id, form.Name, form.Description))
}

// remove unregisters the workload; with ?purge=true the runtime
// container is removed as well.
func (cc *ContainerController) remove(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	container, err := cc.containerService.GetContainer(id)
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	if err := cc.containerService.Unregister(id); err != nil {
		jsonMsg(c, "", err)
		return
	}
	if c.Query("purge") == "true" {
		if err := cc.driver.Remove(c.Request.Context(), container.DockerId, true); err != nil {
			jsonMsg(c, "", err)
			return
		}
	}
	jsonMsg(c, "workload removed", nil)
}

func (cc *ContainerController) listRuntime(c *gin.Context) {
	list, err := cc.driver.List(c.Request.Context())
	jsonObj(c, list, err)
}

func (cc *ContainerController) inspect(c *gin.Context) {
	detail, err := cc.driver.Inspect(c.Request.Context(), c.Param("id"))
	jsonObj(c, detail, err)
}

func (cc *ContainerController) top(c *gin.Context) {
	table, err := cc.driver.Processes(c.Request.Context(), c.Param("id"))
	jsonObj(c, table, err)
}

func (cc *ContainerController) processes(c *gin.Context) {
	table, err := cc.driver.Processes(c.Request.Context(), c.Param("id"))
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	lines := make([]string, 0, 32)
	for _, line := range strings.Split(table, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	jsonObj(c, lines, nil)
}

func (cc *ContainerController) stats(c *gin.Context) {
	sample, err := cc.driver.Stats(c.Request.Context(), c.Param("id"))
	jsonObj(c, sample, err)
}

func (cc *ContainerController) start(c *gin.Context) {
	jsonMsg(c, "workload started", cc.driver.Start(c.Request.Context(), c.Param("id")))
}

func (cc *ContainerController) stop(c *gin.Context) {
	jsonMsg(c, "workload stopped", cc.driver.Stop(c.Request.Context(), c.Param("id"), stopGrace))
}

func (cc *ContainerController) restart(c *gin.Context) {
	jsonMsg(c, "workload restarted", cc.driver.Restart(c.Request.Context(), c.Param("id")))
}

// exec runs a one-shot command inside a running workload. The command
// comes from the query string and is split on whitespace; no shell is
// interposed.
func (cc *ContainerController) exec(c *gin.Context) {
	command := c.Query("command")
	argv := strings.Fields(command)
	if len(argv) == 0 {
		pureJsonMsg(c, http.StatusBadRequest, false, "command is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), workload.LifecycleTimeout)
	defer cancel()

	result, err := cc.driver.Exec(ctx, c.Param("id"), argv)
	jsonObj(c, result, err)
}
