package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"powerhouse-manager/internal/model"
)

func TestTree(t *testing.T) {
	phs := []model.Powerhouse{{
		Name: "Central",
		Feeders: []model.Feeder{
			{Name: "F1", Transformers: []model.Transformer{{Name: "T1", Poles: []model.Pole{{Name: "P1"}, {Name: "P2"}}}}},
			{Name: "F2", Transformers: []model.Transformer{}},
		},
		Accounts: []model.Account{{ID: "A1", Powerhouse: "Central", Feeder: "F1", Transformer: "T1", Pole: "P1"}},
	}}

	var buf bytes.Buffer
	Tree(&buf, phs)
	want := "Central (1 accounts)\n" +
		"├── F1\n" +
		"│   └── T1\n" +
		"│       ├── P1 (1)\n" +
		"│       └── P2 (0)\n" +
		"└── F2\n"
	assert.Equal(t, want, buf.String())
}

func TestTreeEmpty(t *testing.T) {
	var buf bytes.Buffer
	Tree(&buf, nil)
	assert.Equal(t, "(no powerhouses)\n", buf.String())
}

func TestUsers(t *testing.T) {
	var buf bytes.Buffer
	Users(&buf, []model.User{
		{Username: "admin", Role: model.RoleAdmin},
		{Username: "bob", Role: model.RoleUser, Powerhouse: "Central"},
	})
	assert.Equal(t, "USERNAME  ROLE   POWERHOUSE\nadmin     admin  -\nbob       user   Central\n", buf.String())
}
