package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/cache"
	"powerhouse-manager/internal/metrics"
	"powerhouse-manager/internal/model"
	"powerhouse-manager/internal/repository"
	"powerhouse-manager/pkg/util"
)

// SnapshotService 全量快照的读写
// 所有写操作（替换、引导管理员、恢复备份）串行执行，关闭删除与插入之间的读窗口
type SnapshotService struct {
	store   repository.SnapshotStore
	cache   cache.Cache
	backups *BackupService
	metrics *metrics.Metrics

	mu  sync.Mutex
	now func() time.Time

	// fillMu 保证缓存回填与失效按 generation 顺序发生
	fillMu     sync.Mutex
	generation uint64
}

// NewSnapshotService 创建 SnapshotService 实例
func NewSnapshotService(
	store repository.SnapshotStore,
	c cache.Cache,
	backups *BackupService,
	m *metrics.Metrics,
) *SnapshotService {
	return &SnapshotService{
		store:   store,
		cache:   c,
		backups: backups,
		metrics: m,
		now:     time.Now,
	}
}

// loadStored 先读缓存，未命中再读存储并回填
// 读取期间有写入提交时不回填，缓存中不会出现比存储旧的数据
func (s *SnapshotService) loadStored(ctx context.Context) (*model.StoredSnapshot, error) {
	if snap, ok := s.cache.GetSnapshot(ctx); ok {
		s.metrics.SnapshotLoaded("cache")
		return snap, nil
	}

	s.fillMu.Lock()
	gen := s.generation
	s.fillMu.Unlock()

	snap, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.SnapshotLoaded("store")

	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	if gen != s.generation {
		log.Debug().Msg("skip cache fill, snapshot replaced during read")
		return snap, nil
	}
	if err := s.cache.SetSnapshot(ctx, snap); err != nil {
		log.Warn().Err(err).Msg("cache snapshot failed")
	}
	return snap, nil
}

// invalidate 存储写入之后调用：推进 generation 并清除缓存
func (s *SnapshotService) invalidate(ctx context.Context) {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.generation++
	if err := s.cache.InvalidateSnapshot(ctx); err != nil {
		log.Warn().Err(err).Msg("invalidate snapshot cache failed")
	}
}

// LoadAll 读取当前用户可见的全量快照
// 参数:
//   - ctx: 上下文
//   - actor: 当前用户
//
// 返回:
//   - *model.Snapshot: 管理员得到全部数据；普通用户只得到自己的用户记录和所属电站
//   - error: 存储不可用时返回 StoreUnavailable
func (s *SnapshotService) LoadAll(ctx context.Context, actor Actor) (*model.Snapshot, error) {
	stored, err := s.loadStored(ctx)
	if err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return stored.Public(), nil
	}
	return scopedView(stored, actor), nil
}

// scopedView 普通用户的视图
func scopedView(stored *model.StoredSnapshot, actor Actor) *model.Snapshot {
	view := &model.Snapshot{Users: []model.User{}, Powerhouses: []model.Powerhouse{}}
	if u, ok := stored.FindUser(actor.Username); ok {
		view.Users = append(view.Users, u.Public())
	}
	for _, p := range stored.Powerhouses {
		if p.Name == actor.Powerhouse {
			view.Powerhouses = append(view.Powerhouses, p.Clone())
		}
	}
	return view
}

// ReplaceAll 用提交的快照整体替换存储中的数据
// 参数:
//   - ctx: 上下文
//   - actor: 当前用户
//   - snap: 客户端提交的快照（users 中的 password 为可选的新明文密码）
//
// 返回:
//   - error: 格式错误返回 Validation，越权返回 Forbidden，存储不可用返回 StoreUnavailable
func (s *SnapshotService) ReplaceAll(ctx context.Context, actor Actor, snap *model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.replaceLocked(ctx, actor, snap)
	s.metrics.SnapshotReplaced(replaceResult(err))
	return err
}

func replaceResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperr.IsValidation(err):
		return "validation"
	case apperr.IsForbidden(err):
		return "forbidden"
	default:
		return "error"
	}
}

func (s *SnapshotService) replaceLocked(ctx context.Context, actor Actor, snap *model.Snapshot) error {
	if snap == nil || snap.Users == nil || snap.Powerhouses == nil {
		return apperr.Validation("users and powerhouses must be arrays")
	}

	// 替换前读取存储的最新版本，不走缓存
	current, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}

	var next *model.StoredSnapshot
	if actor.IsAdmin() {
		next, err = mergeAdmin(current, snap)
	} else {
		next, err = mergeScoped(current, actor, snap)
	}
	if err != nil {
		return err
	}
	return s.commit(ctx, actor.Username, "replace", current, next)
}

// commit 备份旧数据，写入新数据，然后失效缓存并广播变更
func (s *SnapshotService) commit(ctx context.Context, actor, reason string, current, next *model.StoredSnapshot) error {
	if _, err := s.backups.Save(ctx, current, actor, reason); err != nil {
		log.Warn().Err(err).Str("actor", actor).Msg("pre-replace backup failed")
	}

	if err := s.store.ReplaceAll(ctx, next.Users, next.Powerhouses); err != nil {
		return err
	}
	s.invalidate(ctx)

	ev := model.ChangeEvent{
		Revision:    util.NewUID(),
		Actor:       actor,
		Users:       len(next.Users),
		Powerhouses: len(next.Powerhouses),
		Accounts:    countAccounts(next.Powerhouses),
		At:          s.now().UTC(),
	}
	if err := s.cache.PublishChange(ctx, ev); err != nil {
		log.Warn().Err(err).Msg("publish change event failed")
	}

	log.Info().
		Str("actor", actor).
		Str("reason", reason).
		Str("revision", ev.Revision).
		Int("users", ev.Users).
		Int("powerhouses", ev.Powerhouses).
		Int("accounts", ev.Accounts).
		Msg("snapshot replaced")
	return nil
}

func countAccounts(phs []model.Powerhouse) int {
	n := 0
	for _, p := range phs {
		n += len(p.Accounts)
	}
	return n
}

// mergeAdmin 管理员提交：合并凭据后整体替换
//   - 携带 password 的用户重新计算哈希并清除改密标记
//   - 未携带 password 的已有用户沿用存储中的哈希
//   - 新用户必须携带 password
//   - user 角色必须归属提交中存在的电站，admin 不归属电站
//   - 至少保留一个管理员
func mergeAdmin(current *model.StoredSnapshot, snap *model.Snapshot) (*model.StoredSnapshot, error) {
	names := make(map[string]bool, len(snap.Powerhouses))
	for _, p := range snap.Powerhouses {
		names[p.Name] = true
	}

	users := make([]model.StoredUser, 0, len(snap.Users))
	seen := make(map[string]bool, len(snap.Users))
	admins := 0
	for _, u := range snap.Users {
		if u.Username == "" || seen[u.Username] {
			continue
		}
		seen[u.Username] = true

		if !u.Role.Valid() {
			return nil, apperr.Validation("user %q has invalid role %q", u.Username, u.Role)
		}
		su := model.StoredUser{Username: u.Username, Role: u.Role, Powerhouse: u.Powerhouse}
		switch u.Role {
		case model.RoleAdmin:
			su.Powerhouse = ""
			admins++
		case model.RoleUser:
			if !names[u.Powerhouse] {
				return nil, apperr.Validation("user %q references unknown powerhouse %q", u.Username, u.Powerhouse)
			}
		}

		if u.Password != "" {
			hash, err := util.HashPassword(u.Password)
			if err != nil {
				return nil, err
			}
			su.PasswordHash = hash
		} else if old, ok := current.FindUser(u.Username); ok {
			su.PasswordHash = old.PasswordHash
			su.MustChangePassword = old.MustChangePassword
		} else {
			return nil, apperr.Validation("new user %q requires a password", u.Username)
		}
		users = append(users, su)
	}
	if admins == 0 {
		return nil, apperr.Validation("at least one admin user is required")
	}

	return &model.StoredSnapshot{Users: users, Powerhouses: model.ClonePowerhouses(snap.Powerhouses)}, nil
}

// mergeScoped 普通用户提交：只允许修改自己电站下的账户
// 提交内容必须是 LoadAll 返回的作用域视图，层级结构与用户记录保持不变
func mergeScoped(current *model.StoredSnapshot, actor Actor, snap *model.Snapshot) (*model.StoredSnapshot, error) {
	for _, u := range snap.Users {
		if u.Username != actor.Username || u.Password != "" ||
			u.Role != actor.Role || u.Powerhouse != actor.Powerhouse {
			return nil, apperr.Forbidden("users can only be changed by an admin")
		}
	}
	if len(snap.Powerhouses) != 1 || snap.Powerhouses[0].Name != actor.Powerhouse {
		return nil, apperr.Forbidden("user %q may only submit powerhouse %q", actor.Username, actor.Powerhouse)
	}
	submitted := snap.Powerhouses[0]

	next := current.Clone()
	idx := -1
	for i, p := range next.Powerhouses {
		if p.Name == actor.Powerhouse {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, apperr.NotFound("powerhouse %q not found", actor.Powerhouse)
	}
	if !sameStructure(next.Powerhouses[idx], submitted) {
		return nil, apperr.Forbidden("hierarchy can only be changed by an admin")
	}

	poles := polePaths(next.Powerhouses[idx])
	accounts := make([]model.Account, 0, len(submitted.Accounts))
	for _, a := range submitted.Accounts {
		if a.Powerhouse == "" {
			a.Powerhouse = actor.Powerhouse
		}
		if a.Powerhouse != actor.Powerhouse {
			return nil, apperr.Forbidden("account %q belongs to another powerhouse", a.ID)
		}
		if !poles[[3]string{a.Feeder, a.Transformer, a.Pole}] {
			return nil, apperr.Validation("account %q: pole %s/%s/%s does not exist in %s",
				a.ID, a.Feeder, a.Transformer, a.Pole, actor.Powerhouse)
		}
		accounts = append(accounts, a)
	}
	next.Powerhouses[idx].Accounts = accounts
	return next, nil
}

// polePaths 电站内所有 (feeder, transformer, pole) 名称路径
func polePaths(p model.Powerhouse) map[[3]string]bool {
	out := make(map[[3]string]bool)
	for _, f := range p.Feeders {
		for _, t := range f.Transformers {
			for _, pl := range t.Poles {
				out[[3]string{f.Name, t.Name, pl.Name}] = true
			}
		}
	}
	return out
}

// sameStructure 按名称比较两棵层级树
func sameStructure(a, b model.Powerhouse) bool {
	if len(a.Feeders) != len(b.Feeders) {
		return false
	}
	for i, f := range a.Feeders {
		g := b.Feeders[i]
		if f.Name != g.Name || len(f.Transformers) != len(g.Transformers) {
			return false
		}
		for j, t := range f.Transformers {
			u := g.Transformers[j]
			if t.Name != u.Name || len(t.Poles) != len(u.Poles) {
				return false
			}
			for k, p := range t.Poles {
				if p.Name != u.Poles[k].Name {
					return false
				}
			}
		}
	}
	return true
}

// EnsureAdmin 引导管理员账号
// 不存在同名用户时创建一个需要修改初始密码的管理员
// 参数:
//   - ctx: 上下文
//   - username: 管理员用户名
//   - password: 初始密码
//
// 返回:
//   - bool: 是否新建
//   - error: 存储不可用时返回错误，调用方应视为启动失败
func (s *SnapshotService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.LoadAll(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := current.FindUser(username); ok {
		return false, nil
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		return false, err
	}
	next := current.Clone()
	next.Users = append(next.Users, model.StoredUser{
		Username:           username,
		PasswordHash:       hash,
		Role:               model.RoleAdmin,
		MustChangePassword: true,
	})
	if err := s.store.ReplaceAll(ctx, next.Users, next.Powerhouses); err != nil {
		return false, err
	}
	s.invalidate(ctx)
	log.Warn().Str("username", username).Msg("bootstrap admin created with default password, change it after first login")
	return true, nil
}

// Restore 用一份备份整体替换当前数据，当前数据先备份
func (s *SnapshotService) Restore(ctx context.Context, actor Actor, key string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	backup, err := s.backups.Load(ctx, key)
	if err != nil {
		return err
	}
	current, err := s.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	err = s.commit(ctx, actor.Username, "restore "+key, current, backup)
	s.metrics.SnapshotReplaced(replaceResult(err))
	return err
}

// Users 用户列表（无凭据）
func (s *SnapshotService) Users(ctx context.Context, actor Actor) ([]model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	stored, err := s.loadStored(ctx)
	if err != nil {
		return nil, err
	}
	return model.PublicUsers(stored.Users), nil
}

// Powerhouses 当前用户可见的电站列表
func (s *SnapshotService) Powerhouses(ctx context.Context, actor Actor) ([]model.Powerhouse, error) {
	snap, err := s.LoadAll(ctx, actor)
	if err != nil {
		return nil, err
	}
	return snap.Powerhouses, nil
}

// Ping 检查存储是否可达
func (s *SnapshotService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
