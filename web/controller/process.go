package controller

import (
	"io"
	"net/http"
	"strconv"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/web/middleware"
	"github.com/modix-panel/modix/web/stream"
	"github.com/modix-panel/modix/workload"
	"github.com/modix-panel/modix/workload/process"

	"github.com/gin-gonic/gin"
)

// ProcessController drives supervised bare-metal workloads. These have
// no runtime registry entry, so their routes are guarded by the global
// scope of the container permissions.
type ProcessController struct {
	registry *process.Registry
}

func NewProcessController(g *gin.RouterGroup, gate *middleware.Gate, registry *process.Registry) *ProcessController {
	p := &ProcessController{registry: registry}

	g.GET("/process", gate.RequirePermission(access.PermGetContainers), p.list)
	g.POST("/process", gate.RequirePermission(access.PermServerCreate), p.register)
	g.DELETE("/process/:title", gate.RequirePermission(access.PermServerDelete), p.unregister)
	g.POST("/process/:title/start", gate.RequirePermission(access.PermContainerManage), p.start)
	g.POST("/process/:title/stop", gate.RequirePermission(access.PermContainerManage), p.stop)
	g.GET("/process/:title/logs", gate.RequirePermission(access.PermLogsView), p.logs)
	g.GET("/process/:title/stats", gate.RequirePermission(access.PermMetricsView), p.stats)
	g.GET("/ws/process/:title", gate.RequirePermission(access.PermTerminalAccess), p.terminal)
	return p
}

func (pc *ProcessController) list(c *gin.Context) {
	summaries := make([]workload.Summary, 0)
	for _, title := range pc.registry.Titles() {
		if proc, err := pc.registry.Get(title); err == nil {
			summaries = append(summaries, proc.Summary())
		}
	}
	jsonObj(c, summaries, nil)
}

type processForm struct {
	Title  string   `json:"title"`
	Binary string   `json:"binary"`
	Args   []string `json:"args"`
	Dir    string   `json:"dir"`
}

func (pc *ProcessController) register(c *gin.Context) {
	var form processForm
	if err := c.ShouldBind(&form); err != nil {
		pureJsonMsg(c, http.StatusBadRequest, false, "invalid process request")
		return
	}
	if form.Title == "" || form.Binary == "" {
		pureJsonMsg(c, http.StatusBadRequest, false, "title and binary are required")
		return
	}
	proc, err := pc.registry.Register(form.Title, form.Binary, form.Args, form.Dir)
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	jsonMsgObj(c, "process registered", proc.Summary(), nil)
}

func (pc *ProcessController) unregister(c *gin.Context) {
	jsonMsg(c, "process unregistered", pc.registry.Unregister(c.Param("title")))
}

func (pc *ProcessController) start(c *gin.Context) {
	proc, err := pc.registry.Get(c.Param("title"))
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	jsonMsg(c, "process started", proc.Start())
}

func (pc *ProcessController) stop(c *gin.Context) {
	proc, err := pc.registry.Get(c.Param("title"))
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	jsonMsg(c, "process stopped", proc.Stop(stopGrace))
}

// logs returns the recent tail as plain text.
func (pc *ProcessController) logs(c *gin.Context) {
	proc, err := pc.registry.Get(c.Param("title"))
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	tail, _ := strconv.Atoi(c.DefaultQuery("tail", "100"))

	reader, err := proc.Logs(tail, false)
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	defer reader.Close()
	c.DataFromReader(http.StatusOK, -1, "text/plain; charset=utf-8", reader, nil)
}

func (pc *ProcessController) stats(c *gin.Context) {
	proc, err := pc.registry.Get(c.Param("title"))
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	sample, err := proc.Stats()
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	jsonObj(c, gin.H{"sample": sample, "uptime": proc.Uptime()}, nil)
}

// terminal bridges the websocket onto the process stdio, same session
// semantics as the container terminal.
func (pc *ProcessController) terminal(c *gin.Context) {
	title := c.Param("title")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debugf("process terminal %s: upgrade failed: %v", title, err)
		return
	}

	proc, err := pc.registry.Get(title)
	if err == nil {
		var channel io.ReadWriteCloser
		channel, err = proc.Attach()
		if err == nil {
			stream.Bridge(c.Request.Context(), &stream.WSPeer{Conn: conn}, channel, stream.DefaultShutdownWindow)
			return
		}
	}
	wsError(conn, err.Error())
	_ = conn.Close()
}
