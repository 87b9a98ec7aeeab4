package controller

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/workload"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type attachRefusingDriver struct{ workload.Driver }

func (attachRefusingDriver) Attach(_ context.Context, id string) (io.ReadWriteCloser, error) {
	return nil, common.New(common.KindConflict, "container %s is not running", id)
}

// A terminal open against a stopped workload gets exactly one JSON
// error frame before the close.
func TestTerminalRefusalSendsJSONErrorFrame(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	tc := &TerminalController{driver: attachRefusingDriver{}}
	engine.GET("/ws/terminal/:id", tc.terminal)

	srv := httptest.NewServer(engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/terminal/abc"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame map[string]string
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Contains(t, frame["error"], "is not running")
}
