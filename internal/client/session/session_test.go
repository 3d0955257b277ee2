package session

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/hierarchy"
	"powerhouse-manager/internal/model"
)

// fakeBackend 模拟服务端：去重用户、按名称排序、读取时去掉密码
type fakeBackend struct {
	snap        model.Snapshot
	replaces    int
	loads       int
	failReplace error
	failLoad    error
	pushed      *model.Snapshot
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{snap: model.Snapshot{
		Users:       []model.User{{Username: "admin", Role: model.RoleAdmin}},
		Powerhouses: []model.Powerhouse{},
	}}
}

func (b *fakeBackend) LoadAll(ctx context.Context) (*model.Snapshot, error) {
	b.loads++
	if b.failLoad != nil {
		return nil, b.failLoad
	}
	out := b.snap.Clone()
	for i := range out.Users {
		out.Users[i].Password = ""
	}
	return out, nil
}

func (b *fakeBackend) ReplaceAll(ctx context.Context, snap *model.Snapshot) error {
	b.replaces++
	b.pushed = snap.Clone()
	if b.failReplace != nil {
		return b.failReplace
	}
	next := snap.Clone()
	seen := map[string]bool{}
	users := next.Users[:0]
	for _, u := range next.Users {
		if seen[u.Username] {
			continue
		}
		seen[u.Username] = true
		users = append(users, u)
	}
	next.Users = users
	sort.Slice(next.Users, func(i, j int) bool { return next.Users[i].Username < next.Users[j].Username })
	sort.Slice(next.Powerhouses, func(i, j int) bool { return next.Powerhouses[i].Name < next.Powerhouses[j].Name })
	b.snap = *next
	return nil
}

var adminUser = model.User{Username: "admin", Role: model.RoleAdmin}

func path(parts ...string) hierarchy.Path {
	var p hierarchy.Path
	for i, name := range parts {
		p = p.With(hierarchy.Level(i), name)
	}
	return p
}

// buildCentral Central/F1/T1/P1，用户 bob
func buildCentral(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.AddPowerhouse(ctx, "Central", "bob", "pw1"))
	require.NoError(t, s.AddNode(ctx, hierarchy.LevelFeeder, path("Central"), "F1"))
	require.NoError(t, s.AddNode(ctx, hierarchy.LevelTransformer, path("Central", "F1"), "T1"))
	require.NoError(t, s.AddNode(ctx, hierarchy.LevelPole, path("Central", "F1", "T1"), "P1"))
}

func TestOpenLoadsSnapshot(t *testing.T) {
	b := newFakeBackend()
	s, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)
	assert.Equal(t, 1, b.loads)
	assert.Len(t, s.Users(), 1)
	assert.Empty(t, s.Powerhouses())

	b.failLoad = apperr.Unavailable("load", errors.New("down"))
	_, err = Open(context.Background(), b, adminUser)
	assert.True(t, apperr.IsStoreUnavailable(err))
}

func TestMutatePushesThenReloads(t *testing.T) {
	b := newFakeBackend()
	s, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)

	buildCentral(t, s)
	assert.Equal(t, 4, b.replaces)
	assert.Equal(t, 5, b.loads, "every push is followed by a reload")

	phs := s.Powerhouses()
	require.Len(t, phs, 1)
	assert.Equal(t, "P1", phs[0].Feeders[0].Transformers[0].Poles[0].Name)

	users := s.Users()
	require.Len(t, users, 2)
	assert.Empty(t, users[1].Password, "state comes from the reload, not the local copy")
}

func TestRoundTripFidelity(t *testing.T) {
	b := newFakeBackend()
	s, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)
	buildCentral(t, s)

	_, err = s.UpsertAccount(context.Background(), "A1", "Central", hierarchy.AccountFields{
		Name: "Alice", Phone: "123", Feeder: "F1", Transformer: "T1", Pole: "P1",
	})
	require.NoError(t, err)

	// 推送的电站与重新加载后的电站结构一致（包括 UID）
	assert.Equal(t, b.pushed.Powerhouses, s.Powerhouses())
}

func TestFailedPushKeepsPreviousState(t *testing.T) {
	b := newFakeBackend()
	s, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)
	buildCentral(t, s)
	before := s.Powerhouses()

	b.failReplace = apperr.Unavailable("replace", errors.New("down"))
	err = s.AddNode(context.Background(), hierarchy.LevelFeeder, path("Central"), "F2")
	assert.True(t, apperr.IsStoreUnavailable(err))
	assert.Equal(t, before, s.Powerhouses())

	b.failReplace = nil
	b.failLoad = errors.New("reload failed")
	err = s.AddNode(context.Background(), hierarchy.LevelFeeder, path("Central"), "F2")
	assert.Error(t, err)
	assert.Equal(t, before, s.Powerhouses(), "unconfirmed push is not shown")

	b.failLoad = nil
	require.NoError(t, s.Refresh(context.Background()))
	assert.Len(t, s.Powerhouses()[0].Feeders, 2, "refresh shows server truth")
}

func TestInvalidMutationSendsNothing(t *testing.T) {
	b := newFakeBackend()
	s, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)
	buildCentral(t, s)
	replaces := b.replaces

	ctx := context.Background()
	assert.True(t, apperr.IsValidation(s.AddNode(ctx, hierarchy.LevelFeeder, path("Central"), "   ")))
	assert.True(t, apperr.IsValidation(s.AddNode(ctx, hierarchy.LevelFeeder, path("Central"), "F1")))
	assert.True(t, apperr.IsNotFound(s.AddNode(ctx, hierarchy.LevelFeeder, path("Nowhere"), "F9")))
	assert.True(t, apperr.IsValidation(s.AddPowerhouse(ctx, "North", "bob", "pw")))
	assert.True(t, apperr.IsValidation(s.AddPowerhouse(ctx, "North", "", "pw")))
	_, err = s.UpsertAccount(ctx, "A1", "Central", hierarchy.AccountFields{Name: "x", Phone: "1", Feeder: "F1"})
	assert.True(t, apperr.IsValidation(err))
	assert.Equal(t, replaces, b.replaces)
}

func TestUpsertTwiceUpdatesInPlace(t *testing.T) {
	b := newFakeBackend()
	s, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)
	buildCentral(t, s)
	ctx := context.Background()

	fields := hierarchy.AccountFields{Name: "Alice", Phone: "123", Feeder: "F1", Transformer: "T1", Pole: "P1"}
	outcome, err := s.UpsertAccount(ctx, "A1", "Central", fields)
	require.NoError(t, err)
	assert.Equal(t, hierarchy.Created, outcome)

	fields.Name = "Alicia"
	outcome, err = s.UpsertAccount(ctx, "A1", "Central", fields)
	require.NoError(t, err)
	assert.Equal(t, hierarchy.Updated, outcome)

	accounts := s.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "Alicia", accounts[0].Name)
}

func TestRenameCascades(t *testing.T) {
	b := newFakeBackend()
	s, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)
	buildCentral(t, s)
	ctx := context.Background()
	_, err = s.UpsertAccount(ctx, "A1", "Central", hierarchy.AccountFields{Name: "Alice", Phone: "123", Feeder: "F1", Transformer: "T1", Pole: "P1"})
	require.NoError(t, err)

	require.NoError(t, s.RenameNode(ctx, hierarchy.LevelPole, path("Central", "F1", "T1", "P1"), "P1-north"))
	require.NoError(t, s.RenameNode(ctx, hierarchy.LevelFeeder, path("Central", "F1"), "Feeder-1"))
	require.NoError(t, s.RenameNode(ctx, hierarchy.LevelPowerhouse, path("Central"), "Main"))

	acc, ok := s.FindAccount("Main", "A1")
	require.True(t, ok)
	assert.Equal(t, "Main", acc.Powerhouse)
	assert.Equal(t, "Feeder-1", acc.Feeder)
	assert.Equal(t, "T1", acc.Transformer)
	assert.Equal(t, "P1-north", acc.Pole)

	var bob model.User
	for _, u := range s.Users() {
		if u.Username == "bob" {
			bob = u
		}
	}
	assert.Equal(t, "Main", bob.Powerhouse)
}

func TestDeleteCascades(t *testing.T) {
	b := newFakeBackend()
	s, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)
	buildCentral(t, s)
	ctx := context.Background()
	require.NoError(t, s.AddNode(ctx, hierarchy.LevelPole, path("Central", "F1", "T1"), "P2"))
	for _, id := range []string{"A1", "A2"} {
		pole := "P1"
		if id == "A2" {
			pole = "P2"
		}
		_, err := s.UpsertAccount(ctx, id, "Central", hierarchy.AccountFields{Name: id, Phone: "1", Feeder: "F1", Transformer: "T1", Pole: pole})
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteNode(ctx, hierarchy.LevelPole, path("Central", "F1", "T1", "P2")))
	accounts := s.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "A1", accounts[0].ID)

	require.NoError(t, s.AddPowerhouse(ctx, "P1", "carol", "pw"))
	require.NoError(t, s.DeleteNode(ctx, hierarchy.LevelPowerhouse, path("Central")))
	assert.Empty(t, s.Accounts())
	for _, u := range s.Users() {
		assert.NotEqual(t, "bob", u.Username)
	}
	require.Len(t, s.Powerhouses(), 1)
	assert.Equal(t, "P1", s.Powerhouses()[0].Name)
}

func TestUserPasswordAndDelete(t *testing.T) {
	b := newFakeBackend()
	s, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)
	buildCentral(t, s)
	ctx := context.Background()

	require.NoError(t, s.SetPassword(ctx, "bob", "pw2"))
	assert.Equal(t, "pw2", b.pushed.Users[1].Password)
	assert.True(t, apperr.IsNotFound(s.SetPassword(ctx, "ghost", "x")))

	assert.True(t, apperr.IsNotFound(s.DeleteUser(ctx, "bob", "Other")))
	assert.True(t, apperr.IsValidation(s.DeleteUser(ctx, "admin", "")))
	require.NoError(t, s.DeleteUser(ctx, "bob", "Central"))
	assert.Len(t, s.Users(), 1)
}

func TestUserRoleScope(t *testing.T) {
	b := newFakeBackend()
	admin, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)
	buildCentral(t, admin)
	require.NoError(t, admin.AddPowerhouse(context.Background(), "North", "nina", "pw"))

	bob := model.User{Username: "bob", Role: model.RoleUser, Powerhouse: "Central"}
	s, err := Open(context.Background(), b, bob)
	require.NoError(t, err)
	ctx := context.Background()

	require.Len(t, s.Powerhouses(), 1)
	assert.Equal(t, "Central", s.Powerhouses()[0].Name)
	require.Len(t, s.Users(), 1)

	replaces := b.replaces
	assert.True(t, apperr.IsForbidden(s.AddNode(ctx, hierarchy.LevelFeeder, path("Central"), "F2")))
	assert.True(t, apperr.IsForbidden(s.AddPowerhouse(ctx, "X", "x", "x")))
	assert.True(t, apperr.IsForbidden(s.SetPassword(ctx, "bob", "x")))
	_, err = s.UpsertAccount(ctx, "A1", "North", hierarchy.AccountFields{Name: "x", Phone: "1", Feeder: "F1", Transformer: "T1", Pole: "P1"})
	assert.True(t, apperr.IsForbidden(err))
	assert.Equal(t, replaces, b.replaces, "forbidden actions never reach the backend")

	outcome, err := s.UpsertAccount(ctx, "A1", "Central", hierarchy.AccountFields{Name: "Alice", Phone: "123", Feeder: "F1", Transformer: "T1", Pole: "P1"})
	require.NoError(t, err)
	assert.Equal(t, hierarchy.Created, outcome)
}

func TestReloadFollowsServerUser(t *testing.T) {
	b := newFakeBackend()
	admin, err := Open(context.Background(), b, adminUser)
	require.NoError(t, err)
	buildCentral(t, admin)

	s, err := Open(context.Background(), b, model.User{Username: "bob", Role: model.RoleUser, Powerhouse: "Central"})
	require.NoError(t, err)

	require.NoError(t, admin.RenameNode(context.Background(), hierarchy.LevelPowerhouse, path("Central"), "North"))
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, "North", s.User().Powerhouse)
	require.Len(t, s.Powerhouses(), 1)
	assert.Equal(t, "North", s.Powerhouses()[0].Name)
}

func TestClosedSession(t *testing.T) {
	s, err := Open(context.Background(), newFakeBackend(), adminUser)
	require.NoError(t, err)
	s.Close()
	assert.ErrorIs(t, s.Refresh(context.Background()), ErrClosed)
	assert.ErrorIs(t, s.AddPowerhouse(context.Background(), "X", "x", "x"), ErrClosed)
	assert.Nil(t, s.Powerhouses())
}
