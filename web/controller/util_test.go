package controller

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/web/entity"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordedContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
	return c, w
}

func TestJsonMsgHidesInternalDetails(t *testing.T) {
	c, w := recordedContext(t)

	jsonMsg(c, "", common.New(common.KindInternal, "bcrypt: cost out of range"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var m entity.Msg
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.False(t, m.Success)
	assert.NotContains(t, m.Msg, "bcrypt")

	// The client only gets a parseable correlation id to quote.
	ref := strings.TrimPrefix(m.Msg, "internal error, reference ")
	_, err := uuid.Parse(ref)
	assert.NoError(t, err)
}

func TestJsonMsgKeepsTypedErrorMessages(t *testing.T) {
	c, w := recordedContext(t)

	jsonMsg(c, "", common.New(common.KindNotFound, "user 7 does not exist"))

	assert.Equal(t, http.StatusNotFound, w.Code)

	var m entity.Msg
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, "user 7 does not exist", m.Msg)
}
