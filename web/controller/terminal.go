package controller

import (
	"net/http"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/logger"
	"github.com/modix-panel/modix/web/middleware"
	"github.com/modix-panel/modix/web/stream"
	"github.com/modix-panel/modix/workload"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsError sends one JSON error frame before the connection closes.
func wsError(conn *websocket.Conn, msg string) {
	_ = conn.WriteJSON(gin.H{"error": msg})
}

// TerminalController serves the interactive terminal and the live log
// feed over websockets.
type TerminalController struct {
	driver workload.Driver
	hub    *stream.Hub
}

func NewTerminalController(g *gin.RouterGroup, gate *middleware.Gate,
	driver workload.Driver, hub *stream.Hub,
) *TerminalController {
	t := &TerminalController{driver: driver, hub: hub}

	g.GET("/ws/terminal/:id", gate.RequireContainerPermission(access.PermTerminalAccess, "id"), t.terminal)
	g.GET("/ws/terminal/:id/logs", gate.RequireContainerPermission(access.PermLogsView, "id"), t.logs)
	return t
}

// terminal attaches the websocket to the workload's stdio. A workload
// that is not running gets one error frame and a close, never a
// half-open session.
func (t *TerminalController) terminal(c *gin.Context) {
	id := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debugf("terminal %s: upgrade failed: %v", id, err)
		return
	}

	channel, err := t.driver.Attach(c.Request.Context(), id)
	if err != nil {
		wsError(conn, err.Error())
		_ = conn.Close()
		return
	}

	stream.Bridge(c.Request.Context(), &stream.WSPeer{Conn: conn}, channel, stream.DefaultShutdownWindow)
}

// logs fans the workload's log follow out to the websocket through the
// shared hub.
func (t *TerminalController) logs(c *gin.Context) {
	id := c.Param("id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Debugf("terminal logs %s: upgrade failed: %v", id, err)
		return
	}
	defer conn.Close()

	lines, cancel, err := t.hub.Subscribe(id)
	if err != nil {
		wsError(conn, err.Error())
		return
	}
	defer cancel()

	// Drain the read side so client closes are noticed while we only
	// push.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := conn.WriteJSON(line); err != nil {
				return
			}
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
