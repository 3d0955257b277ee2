package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerhouse-manager/internal/blob"
	"powerhouse-manager/internal/cache"
	"powerhouse-manager/internal/config"
	"powerhouse-manager/internal/metrics"
	"powerhouse-manager/internal/model"
	"powerhouse-manager/internal/repository"
	"powerhouse-manager/pkg/response"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Mode: "release"},
		Store:     config.StoreConfig{Driver: "memory"},
		JWT:       config.JWTConfig{Secret: "test-secret", AccessExpire: time.Hour},
		Blob:      config.BlobConfig{Driver: "memory", BackupKeep: 10},
		Bootstrap: config.BootstrapConfig{AdminUsername: "admin", AdminPassword: "admin123"},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t, testConfig())
}

func newTestServerWith(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := New(Deps{
		Config:  cfg,
		Store:   repository.NewMemoryStore(),
		Cache:   cache.NewMemoryCache(time.Minute),
		Blob:    blob.NewMemoryStore(),
		Metrics: metrics.New(),
	})
	require.NoError(t, srv.Bootstrap(context.Background()))
	return srv
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, h http.Handler, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func login(t *testing.T, h http.Handler, username, password string) string {
	t.Helper()
	w, env := do(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var data struct {
		Success bool       `json:"success"`
		Token   string     `json:"token"`
		User    model.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.True(t, data.Success)
	return data.Token
}

func TestBootstrapAdminLogin(t *testing.T) {
	srv := newTestServer(t)

	w, env := do(t, srv.Router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, w.Code)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, true, data["success"])
	assert.Equal(t, true, data["must_change_password"])
	assert.Equal(t, "admin", data["user"].(map[string]interface{})["role"])
	assert.NotContains(t, w.Body.String(), "password_hash")
}

func TestLoginFailureIsGeneric(t *testing.T) {
	srv := newTestServer(t)

	for _, creds := range []map[string]string{
		{"username": "admin", "password": "wrong"},
		{"username": "ghost", "password": "admin123"},
	} {
		w, env := do(t, srv.Router, http.MethodPost, "/api/v1/auth/login", "", creds)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, response.CodeInvalidCredentials, env.Code)
		assert.Equal(t, "invalid credentials", env.Message)
		assert.JSONEq(t, `{"success":false}`, string(env.Data))
	}

	w, env := do(t, srv.Router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeBadRequest, env.Code)
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	w, env := do(t, srv.Router, http.MethodGet, "/api/v1/snapshot", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.CodeUnauthorized, env.Code)

	w, _ = do(t, srv.Router, http.MethodGet, "/api/v1/snapshot", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv.Router, "admin", "admin123")

	w, _ := do(t, srv.Router, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, srv.Router, http.MethodGet, "/api/v1/snapshot", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReplaceRejectsMalformedPayload(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv.Router, "admin", "admin123")

	for _, body := range []string{
		`{"users": {}, "powerhouses": []}`,
		`{"users": []}`,
		`not json`,
	} {
		w, env := do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", token, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, response.CodeBadRequest, env.Code)
	}

	w, env := do(t, srv.Router, http.MethodGet, "/api/v1/snapshot", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap model.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Len(t, snap.Users, 1, "nothing was written")
}

func TestReplaceBodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxBodyBytes = 256
	srv := newTestServerWith(t, cfg)
	token := login(t, srv.Router, "admin", "admin123")

	big := `{"users":[{"username":"admin","role":"admin"}],"powerhouses":[{"name":"` +
		strings.Repeat("x", 512) + `","feeders":[],"accounts":[]}]}`
	w, env := do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", token, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, response.CodeBodyTooLarge, env.Code)

	small := `{"users":[{"username":"admin","role":"admin"}],"powerhouses":[]}`
	w, _ = do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", token, small)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestDeletedUserTokenRejected(t *testing.T) {
	srv := newTestServer(t)
	adminToken := login(t, srv.Router, "admin", "admin123")

	withBob := model.Snapshot{
		Users: []model.User{
			{Username: "admin", Role: model.RoleAdmin},
			{Username: "bob", Password: "pw1", Role: model.RoleUser, Powerhouse: "Central"},
		},
		Powerhouses: []model.Powerhouse{{Name: "Central", Feeders: []model.Feeder{}, Accounts: []model.Account{}}},
	}
	w, _ := do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", adminToken, withBob)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	bobToken := login(t, srv.Router, "bob", "pw1")

	withCarol := withBob
	withCarol.Users = []model.User{
		{Username: "admin", Role: model.RoleAdmin},
		{Username: "carol", Password: "pw2", Role: model.RoleUser, Powerhouse: "Central"},
	}
	w, _ = do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", adminToken, withCarol)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = do(t, srv.Router, http.MethodGet, "/api/v1/snapshot", bobToken, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestCentralScenario 管理员建站并分配用户，用户录入账户，导出 CSV
func TestCentralScenario(t *testing.T) {
	srv := newTestServer(t)
	adminToken := login(t, srv.Router, "admin", "admin123")

	snap := model.Snapshot{
		Users: []model.User{
			{Username: "admin", Role: model.RoleAdmin},
			{Username: "bob", Password: "pw1", Role: model.RoleUser, Powerhouse: "Central"},
		},
		Powerhouses: []model.Powerhouse{{
			Name: "Central",
			Feeders: []model.Feeder{{Name: "F1", Transformers: []model.Transformer{{
				Name: "T1", Poles: []model.Pole{{Name: "P1"}},
			}}}},
			Accounts: []model.Account{},
		}},
	}
	w, env := do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", adminToken, snap)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"ok":true}`, string(env.Data))

	bobToken := login(t, srv.Router, "bob", "pw1")
	w, env = do(t, srv.Router, http.MethodGet, "/api/v1/snapshot", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var view model.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Powerhouses, 1)
	require.Len(t, view.Users, 1)

	view.Powerhouses[0].Accounts = append(view.Powerhouses[0].Accounts, model.Account{
		ID: "A1", Name: "Alice", Phone: "123", Powerhouse: "Central", Feeder: "F1", Transformer: "T1", Pole: "P1",
	})
	w, _ = do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", bobToken, view)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, env = do(t, srv.Router, http.MethodGet, "/api/v1/accounts/search/Central/A1", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"found":true`)

	w, _ = do(t, srv.Router, http.MethodGet, "/api/v1/accounts/export", bobToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = do(t, srv.Router, http.MethodGet, "/api/v1/accounts/export", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="accounts.csv"`, w.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, w.Body.String(), "Central,F1,T1,P1,A1,Alice,123,\"\"\n")

	w, env = do(t, srv.Router, http.MethodPost, "/api/v1/accounts/export/archive", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "exports/")
}

func TestSearchScopedToPowerhouse(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv.Router, "admin", "admin123")

	snap := model.Snapshot{
		Users: []model.User{{Username: "admin", Role: model.RoleAdmin}},
		Powerhouses: []model.Powerhouse{
			{Name: "P1", Feeders: []model.Feeder{}, Accounts: []model.Account{}},
			{Name: "P2", Feeders: []model.Feeder{}, Accounts: []model.Account{{ID: "A100", Name: "x", Phone: "1", Powerhouse: "P2"}}},
		},
	}
	w, _ := do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", token, snap)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, srv.Router, http.MethodGet, "/api/v1/accounts/search/P1/A100", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"found":false}`, string(env.Data))
}

func TestAdminRoutesForbiddenForUsers(t *testing.T) {
	srv := newTestServer(t)
	adminToken := login(t, srv.Router, "admin", "admin123")

	snap := model.Snapshot{
		Users: []model.User{
			{Username: "admin", Role: model.RoleAdmin},
			{Username: "bob", Password: "pw1", Role: model.RoleUser, Powerhouse: "Central"},
		},
		Powerhouses: []model.Powerhouse{{Name: "Central"}},
	}
	w, _ := do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", adminToken, snap)
	require.Equal(t, http.StatusOK, w.Code)

	bobToken := login(t, srv.Router, "bob", "pw1")
	for _, path := range []string{"/api/v1/users", "/api/v1/backups", "/api/v1/accounts/export"} {
		w, env := do(t, srv.Router, http.MethodGet, path, bobToken, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
		assert.Equal(t, response.CodeForbidden, env.Code)
	}

	w, env := do(t, srv.Router, http.MethodGet, "/api/v1/users", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(env.Data), "password")

	w, env = do(t, srv.Router, http.MethodGet, "/api/v1/powerhouses", bobToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), "Central")
}

func TestBackupRestoreRoutes(t *testing.T) {
	srv := newTestServer(t)
	token := login(t, srv.Router, "admin", "admin123")

	snap := model.Snapshot{
		Users:       []model.User{{Username: "admin", Role: model.RoleAdmin}},
		Powerhouses: []model.Powerhouse{{Name: "Central"}},
	}
	w, _ := do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", token, snap)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := do(t, srv.Router, http.MethodGet, "/api/v1/backups", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []blob.Info
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)

	w, _ = do(t, srv.Router, http.MethodPost, "/api/v1/backups/restore", token, map[string]string{"key": list[0].Key})
	require.Equal(t, http.StatusOK, w.Code)

	w, env = do(t, srv.Router, http.MethodGet, "/api/v1/powerhouses", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	w, _ := do(t, srv.Router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, srv.Router, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "phm_http_request_duration_seconds")
}

func TestChangeFeed(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, srv.Hub.Start(ctx))

	ts := httptest.NewServer(srv.Router)
	defer ts.Close()
	token := login(t, srv.Router, "admin", "admin123")

	_, resp, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/changes", nil)
	require.Error(t, err, "token required")
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/changes?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello.Type)

	require.Eventually(t, func() bool { return srv.Hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	snap := model.Snapshot{
		Users:       []model.User{{Username: "admin", Role: model.RoleAdmin}},
		Powerhouses: []model.Powerhouse{{Name: "Central"}},
	}
	w, _ := do(t, srv.Router, http.MethodPut, "/api/v1/snapshot", token, snap)
	require.Equal(t, http.StatusOK, w.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type    string            `json:"type"`
		Payload model.ChangeEvent `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot:replaced", msg.Type)
	assert.Equal(t, "admin", msg.Payload.Actor)
	assert.Equal(t, 1, msg.Payload.Powerhouses)
}
