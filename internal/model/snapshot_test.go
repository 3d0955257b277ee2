package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerhouse-manager/internal/apperr"
)

func TestDecodeSnapshotRejectsNonArrays(t *testing.T) {
	for _, body := range []string{
		`{"users": {}, "powerhouses": []}`,
		`{"users": [], "powerhouses": "x"}`,
		`{"users": []}`,
		`{"powerhouses": []}`,
		`{"users": null, "powerhouses": []}`,
		`[1,2]`,
		`not json`,
	} {
		_, err := DecodeSnapshot([]byte(body))
		assert.True(t, apperr.IsValidation(err), body)
	}
}

func TestDecodeSnapshot(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{
		"users": [{"username":"bob","password":"pw1","role":"user","powerhouse":"Central"}],
		"powerhouses": [{"name":"Central","feeders":[{"name":"F1","transformers":[]}],"accounts":[]}]
	}`))
	require.NoError(t, err)
	require.Len(t, snap.Users, 1)
	assert.Equal(t, RoleUser, snap.Users[0].Role)
	assert.Equal(t, "pw1", snap.Users[0].Password)
	assert.Equal(t, "F1", snap.Powerhouses[0].Feeders[0].Name)
}

func TestCloneIsDeep(t *testing.T) {
	snap := &Snapshot{Powerhouses: []Powerhouse{{
		Name:     "Central",
		Feeders:  []Feeder{{Name: "F1", Transformers: []Transformer{{Name: "T1", Poles: []Pole{{Name: "P1"}}}}}},
		Accounts: []Account{{ID: "A1", Powerhouse: "Central"}},
	}}}
	cp := snap.Clone()
	cp.Powerhouses[0].Feeders[0].Transformers[0].Poles[0].Name = "P9"
	cp.Powerhouses[0].Accounts[0].Name = "changed"

	assert.Equal(t, "P1", snap.Powerhouses[0].Feeders[0].Transformers[0].Poles[0].Name)
	assert.Empty(t, snap.Powerhouses[0].Accounts[0].Name)
}

func TestNormalize(t *testing.T) {
	p := Powerhouse{Name: "X", Feeders: []Feeder{{Name: "F", Transformers: []Transformer{{Name: "T"}}}}}
	p.Normalize()
	assert.NotNil(t, p.Accounts)
	assert.NotNil(t, p.Feeders[0].Transformers[0].Poles)
}

func TestStoredUserPublicDropsHash(t *testing.T) {
	u := StoredUser{Username: "admin", PasswordHash: "$2a$10$x", Role: RoleAdmin, MustChangePassword: true}
	pub := u.Public()
	assert.Empty(t, pub.Password)
	assert.True(t, pub.MustChangePassword)
	assert.True(t, pub.IsAdmin())
}
