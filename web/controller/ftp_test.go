package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/modix-panel/modix/access"
	"github.com/modix-panel/modix/database"
	"github.com/modix-panel/modix/database/model"
	"github.com/modix-panel/modix/web/middleware"
	"github.com/modix-panel/modix/web/service"
	"github.com/modix-panel/modix/web/session"
	"github.com/modix-panel/modix/workload"
	"github.com/modix-panel/modix/workload/locator"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mountInspector struct{ mount string }

func (m mountInspector) Inspect(_ context.Context, _ string) (*workload.Detail, error) {
	return &workload.Detail{
		Mounts: []workload.Mount{{Source: m.mount, Destination: "/data"}},
	}, nil
}

// A global file read grant alone opens the file manager read route; no
// second permission is stacked in front of it.
func TestFileReadGrantAloneAllowsFtpGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.InitDB(dbPath))
	t.Cleanup(func() { database.CloseDB() })

	user := &model.User{Username: "viewer", Active: true}
	require.NoError(t, database.GetDB().Create(user).Error)
	grant := &model.PermissionGrant{
		SubjectType: model.SubjectUser,
		SubjectId:   user.Id,
		Permission:  access.PermFileRead,
		Value:       model.ValueAllow,
		Scope:       model.ScopeGlobal,
	}
	require.NoError(t, database.GetDB().Create(grant).Error)

	gate := &middleware.Gate{
		Engine: &access.Engine{
			DB:             database.GetDB(),
			RootPrincipals: func() []string { return nil },
		},
		Audit:      &service.AuditService{},
		Containers: &service.ContainerService{},
	}

	mount := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(mount, "motd.txt"), []byte("hi"), 0o644))
	loc := &locator.Locator{Inspector: mountInspector{mount: mount}}

	engine := gin.New()
	engine.Use(func(c *gin.Context) { session.SetLoginUser(c, user) })
	NewFtpController(engine.Group(""), gate, loc)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ftp/w1/motd.txt", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hi", w.Body.String())
}
