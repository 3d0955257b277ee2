// Package session 实现客户端的同步控制器
//
// Session 是一次登录的上下文：持有登录用户（决定可见范围）、工作副本（用户列表和层级树）
// 以及后端。每次修改都按两阶段进行：
//
//  1. 在工作副本的深拷贝上执行修改，并重建各电站的内嵌账户
//  2. 整体推送（ReplaceAll），然后无条件重新加载（LoadAll）并替换工作副本
//
// 任一步失败时，之前的工作副本保持不变，调用方看到的永远是最近一次成功加载的服务端数据。
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/hierarchy"
	"powerhouse-manager/internal/model"
)

// ErrClosed 会话已关闭
var ErrClosed = errors.New("session is closed")

// Backend 会话依赖的快照存储
// api.Client 实现了该接口
type Backend interface {
	LoadAll(ctx context.Context) (*model.Snapshot, error)
	ReplaceAll(ctx context.Context, snap *model.Snapshot) error
}

// WorkingCopy 可修改的工作副本
type WorkingCopy struct {
	Users []model.User
	Tree  *hierarchy.Tree
}

func (w *WorkingCopy) clone() *WorkingCopy {
	return &WorkingCopy{
		Users: append([]model.User(nil), w.Users...),
		Tree:  w.Tree.Clone(),
	}
}

// Snapshot 重建内嵌账户后生成待推送的快照
func (w *WorkingCopy) Snapshot() *model.Snapshot {
	users := w.Users
	if users == nil {
		users = []model.User{}
	}
	return &model.Snapshot{Users: users, Powerhouses: w.Tree.Embed()}
}

// Session 一次登录的会话上下文
type Session struct {
	mu      sync.Mutex
	backend Backend
	user    model.User
	current *WorkingCopy
	closed  bool
}

// Open 创建会话并执行首次加载
// 参数:
//   - ctx: 上下文
//   - backend: 快照存储
//   - user: 登录返回的用户，决定可见范围和权限
//
// 返回:
//   - *Session: 会话
//   - error: 首次加载失败（如存储不可用）
func Open(ctx context.Context, backend Backend, user model.User) (*Session, error) {
	s := &Session{backend: backend, user: user}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close 丢弃会话状态
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.current = nil
}

// Refresh 重新加载并整体替换工作副本
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.reloadLocked(ctx)
}

func (s *Session) reloadLocked(ctx context.Context) error {
	snap, err := s.backend.LoadAll(ctx)
	if err != nil {
		return err
	}
	s.current = &WorkingCopy{
		Users: append([]model.User(nil), snap.Users...),
		Tree:  hierarchy.New(snap.Powerhouses),
	}
	// 角色和所属电站以服务端为准，管理员改名或改角色后随重新加载生效
	for _, u := range snap.Users {
		if u.Username == s.user.Username {
			s.user.Role = u.Role
			s.user.Powerhouse = u.Powerhouse
			break
		}
	}
	return nil
}

// Mutate 两阶段修改
// fn 在工作副本的深拷贝上执行；fn 返回错误时不会产生任何网络请求
func (s *Session) Mutate(ctx context.Context, fn func(w *WorkingCopy) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	next := s.current.clone()
	if err := fn(next); err != nil {
		return err
	}

	if err := s.backend.ReplaceAll(ctx, next.Snapshot()); err != nil {
		return err
	}
	// 推送成功与否以重新加载的结果为准
	if err := s.reloadLocked(ctx); err != nil {
		log.Warn().Err(err).Msg("reload after push failed, keeping previous state")
		return err
	}
	return nil
}

// --- 读取 ---

// User 登录用户，角色和所属电站取最近一次加载的结果
func (s *Session) User() model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Users 用户列表（普通用户只看到自己）
func (s *Session) Users() []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	var out []model.User
	for _, u := range s.current.Users {
		if s.user.IsAdmin() || u.Username == s.user.Username {
			out = append(out, u)
		}
	}
	return out
}

// Powerhouses 可见的电站（含内嵌账户）
func (s *Session) Powerhouses() []model.Powerhouse {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	var out []model.Powerhouse
	for _, p := range s.current.Tree.Embed() {
		if s.canSee(p.Name) {
			out = append(out, p)
		}
	}
	return out
}

// Accounts 可见的账户
func (s *Session) Accounts() []model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	var out []model.Account
	for _, a := range s.current.Tree.Accounts() {
		if s.canSee(a.Powerhouse) {
			out = append(out, a)
		}
	}
	return out
}

// FindAccount 在工作副本中按 (powerhouse, id) 查找
func (s *Session) FindAccount(powerhouse, id string) (model.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || !s.canSee(powerhouse) {
		return model.Account{}, false
	}
	return s.current.Tree.FindAccount(powerhouse, id)
}

func (s *Session) canSee(powerhouse string) bool {
	return canSee(s.user, powerhouse)
}

func canSee(u model.User, powerhouse string) bool {
	return u.IsAdmin() || u.Powerhouse == powerhouse
}

func (s *Session) requireAdmin(action string) error {
	if !s.User().IsAdmin() {
		return apperr.Forbidden("%s requires the admin role", action)
	}
	return nil
}
