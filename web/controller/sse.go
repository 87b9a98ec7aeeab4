package controller

import (
	"io"
	"net/http"
	"time"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/web/middleware"
	"github.com/modix-panel/modix/web/stream"

	"github.com/gin-gonic/gin"
	"go.uber.org/atomic"
)

// StreamController serves the server-sent event feeds: panel logs,
// workload log follow and periodic host status.
type StreamController struct {
	hub    *stream.Hub
	status *stream.Broadcaster
}

func NewStreamController(g *gin.RouterGroup, gate *middleware.Gate,
	hub *stream.Hub, status *stream.Broadcaster,
) *StreamController {
	s := &StreamController{hub: hub, status: status}

	g.GET("/server-logs-stream", gate.RequirePermission(access.PermDashboardAccess), s.serverLogs)
	g.GET("/server-status-stream", gate.RequirePermission(access.PermDashboardAccess), s.serverStatus)
	g.GET("/terminal/log-stream",
		gate.RequireContainerPermissionQuery(access.PermLogsView, "id"), s.workloadLogs)
	return s
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
}

// serverLogs pushes the panel logger ring buffer: a backlog first, then
// new entries as they appear. Entry sequence numbers let clients detect
// gaps across reconnects.
func (s *StreamController) serverLogs(c *gin.Context) {
	sseHeaders(c)

	since := int64(0)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-ticker.C:
		}
		for _, entry := range logger.GetLogsSince(since) {
			since = entry.Seq
			c.SSEvent("log", entry)
		}
		return true
	})
}

// workloadLogs follows one workload's log channel, one event per line.
func (s *StreamController) workloadLogs(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		pureJsonMsg(c, http.StatusBadRequest, false, "id is required")
		return
	}

	lines, cancel, err := s.hub.Subscribe(id)
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	defer cancel()

	sseHeaders(c)
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			c.SSEvent("log", line)
			return true
		}
	})
}

// serverStatus relays the periodic host samples published by the status
// job.
func (s *StreamController) serverStatus(c *gin.Context) {
	sseHeaders(c)

	samples, cancel := s.status.Subscribe()
	defer cancel()

	var seq atomic.Int64
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case sample, ok := <-samples:
			if !ok {
				return false
			}
			c.SSEvent("status", gin.H{"seq": seq.Inc(), "status": sample})
			return true
		}
	})
}
