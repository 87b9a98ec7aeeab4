package controller

import (
	"io"
	"net/http"
	"strconv"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/web/middleware"
	"github.com/modix-panel/modix/workload/locator"

	"github.com/gin-gonic/gin"
)

// maxUploadSize caps file writes through the panel.
const maxUploadSize = 64 << 20

// FtpController is the file manager surface. Every path is resolved
// through the locator, so a request can only ever touch the workload's
// own mounts.
type FtpController struct {
	locator *locator.Locator
}

func NewFtpController(g *gin.RouterGroup, gate *middleware.Gate, loc *locator.Locator) *FtpController {
	f := &FtpController{locator: loc}

	g.GET("/ftp/:id/*path", gate.RequireContainerPermission(access.PermFileRead, "id"), f.read)
	g.POST("/ftp/:id/*path", gate.RequireContainerPermission(access.PermFileWrite, "id"), f.write)
	g.DELETE("/ftp/:id/*path", gate.RequireContainerPermission(access.PermFileDelete, "id"), f.remove)
	return f
}

// read lists a directory as JSON or streams a file body.
func (f *FtpController) read(c *gin.Context) {
	id, userPath := c.Param("id"), c.Param("path")

	file, info, err := f.locator.Open(c.Request.Context(), id, userPath)
	if err != nil {
		jsonMsg(c, "", err)
		return
	}
	defer file.Close()

	if info.IsDir() {
		entries, err := f.locator.List(c.Request.Context(), id, userPath)
		jsonObj(c, entries, err)
		return
	}

	c.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(info.Name()))
	c.DataFromReader(http.StatusOK, info.Size(), "application/octet-stream", file, nil)
}

// write replaces the target atomically with the raw request body.
func (f *FtpController) write(c *gin.Context) {
	id, userPath := c.Param("id"), c.Param("path")

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)
	defer body.Close()

	err := f.locator.Write(c.Request.Context(), id, userPath, io.Reader(body))
	jsonMsg(c, "file written", err)
}

func (f *FtpController) remove(c *gin.Context) {
	id, userPath := c.Param("id"), c.Param("path")
	recursive := c.Query("recursive") == "true"

	err := f.locator.Delete(c.Request.Context(), id, userPath, recursive)
	jsonMsg(c, "deleted", err)
}
