package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerhouse-manager/internal/apperr"
)

func TestFromError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err     error
		status  int
		code    int
		message string
	}{
		{apperr.Validation("name is required"), http.StatusBadRequest, CodeBadRequest, "name is required"},
		{apperr.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials, "invalid credentials"},
		{apperr.Forbidden("admin only"), http.StatusForbidden, CodeForbidden, "admin only"},
		{apperr.NotFound("no such powerhouse"), http.StatusNotFound, CodeNotFound, "no such powerhouse"},
		{apperr.Unavailable("load", errors.New("conn refused")), http.StatusServiceUnavailable, CodeStoreUnavailable, "store unavailable"},
		{errors.New("panic-ish"), http.StatusInternalServerError, CodeInternalError, "internal error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		FromError(c, tc.err)

		assert.Equal(t, tc.status, w.Code)
		var body Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Code)
		assert.Equal(t, tc.message, body.Message)
	}
}

func TestSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Success(c, gin.H{"ok": true})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":0,"message":"success","data":{"ok":true}}`, w.Body.String())
}
