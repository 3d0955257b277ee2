package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerhouse-manager/internal/model"
)

func TestDefaults(t *testing.T) {
	require.NoError(t, Init(t.TempDir()))
	assert.Equal(t, "http://localhost:8080", GetServerURL())
	assert.Equal(t, "ws://localhost:8080", WSURL())
	assert.False(t, IsLoggedIn())
}

func TestSessionPersists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Init(dir))

	require.NoError(t, SetServerURL("https://grid.example.com/"))
	require.NoError(t, SaveSession("tok", model.User{Username: "bob", Role: model.RoleUser, Powerhouse: "Central"}))
	_, err := os.Stat(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	require.NoError(t, Init(dir))
	assert.True(t, IsLoggedIn())
	assert.Equal(t, "https://grid.example.com", GetServerURL())
	assert.Equal(t, "wss://grid.example.com", WSURL())
	assert.Equal(t, model.User{Username: "bob", Role: model.RoleUser, Powerhouse: "Central"}, SessionUser())

	require.NoError(t, ClearSession())
	require.NoError(t, Init(dir))
	assert.False(t, IsLoggedIn())
	assert.Equal(t, "https://grid.example.com", GetServerURL())
}

func TestSetServerURLRejectsScheme(t *testing.T) {
	require.NoError(t, Init(t.TempDir()))
	assert.Error(t, SetServerURL("grid.example.com"))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PHCTL_SERVER_URL", "http://10.0.0.5:9000")
	require.NoError(t, Init(t.TempDir()))
	assert.Equal(t, "http://10.0.0.5:9000", GetServerURL())
}
