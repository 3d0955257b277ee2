package session

import (
	"context"
	"strings"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/hierarchy"
	"powerhouse-manager/internal/model"
)

// AddPowerhouse 新建电站并为其创建一个 user 角色的账号
func (s *Session) AddPowerhouse(ctx context.Context, name, username, password string) error {
	if err := s.requireAdmin("adding a powerhouse"); err != nil {
		return err
	}
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return apperr.Validation("powerhouse name, username and password are required")
	}
	return s.Mutate(ctx, func(w *WorkingCopy) error {
		for _, u := range w.Users {
			if u.Username == username {
				return apperr.Validation("user %q already exists", username)
			}
		}
		if _, err := w.Tree.AddNode(hierarchy.LevelPowerhouse, hierarchy.Path{}, name); err != nil {
			return err
		}
		w.Users = append(w.Users, model.User{
			Username:   username,
			Password:   password,
			Role:       model.RoleUser,
			Powerhouse: strings.TrimSpace(name),
		})
		return nil
	})
}

// AddNode 在 parent 下新增馈线、变压器或电杆
func (s *Session) AddNode(ctx context.Context, level hierarchy.Level, parent hierarchy.Path, name string) error {
	if level == hierarchy.LevelPowerhouse {
		return apperr.Validation("use AddPowerhouse to create a powerhouse")
	}
	if err := s.requireAdmin("changing the hierarchy"); err != nil {
		return err
	}
	return s.Mutate(ctx, func(w *WorkingCopy) error {
		_, err := w.Tree.AddNode(level, parent, name)
		return err
	})
}

// RenameNode 重命名任意层级的节点
// 账户和用户上的名称引用按 UID 一次性更新
func (s *Session) RenameNode(ctx context.Context, level hierarchy.Level, path hierarchy.Path, newName string) error {
	if err := s.requireAdmin("changing the hierarchy"); err != nil {
		return err
	}
	return s.Mutate(ctx, func(w *WorkingCopy) error {
		bindings := w.Tree.Bind()
		owners := bindUsers(w)

		if err := w.Tree.RenameNode(level, path, newName); err != nil {
			return err
		}

		w.Tree.Rebind(bindings)
		rebindUsers(w, owners)
		return nil
	})
}

// DeleteNode 删除节点及其子树
// 被删除电杆上的账户一并删除；删除电站时还会删除该电站的全部用户和账户
func (s *Session) DeleteNode(ctx context.Context, level hierarchy.Level, path hierarchy.Path) error {
	if err := s.requireAdmin("changing the hierarchy"); err != nil {
		return err
	}
	return s.Mutate(ctx, func(w *WorkingCopy) error {
		bindings := w.Tree.Bind()
		if err := w.Tree.DeleteNode(level, path); err != nil {
			return err
		}
		w.Tree.Prune(bindings)

		if level == hierarchy.LevelPowerhouse {
			w.Tree.RemoveAccounts(path.Powerhouse)
			kept := w.Users[:0]
			for _, u := range w.Users {
				if u.Powerhouse != path.Powerhouse {
					kept = append(kept, u)
				}
			}
			w.Users = kept
		}
		return nil
	})
}

// UpsertAccount 新增或更新账户
// 普通用户只能操作自己所属电站
// 返回:
//   - hierarchy.Outcome: Created 或 Updated
//   - error: 参数错误、越权或推送失败
func (s *Session) UpsertAccount(ctx context.Context, id, powerhouse string, f hierarchy.AccountFields) (hierarchy.Outcome, error) {
	if u := s.User(); !canSee(u, powerhouse) {
		return "", apperr.Forbidden("user %q cannot edit accounts of powerhouse %q", u.Username, powerhouse)
	}
	var outcome hierarchy.Outcome
	err := s.Mutate(ctx, func(w *WorkingCopy) error {
		var err error
		outcome, err = w.Tree.UpsertAccount(id, powerhouse, f)
		return err
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// SetPassword 修改用户密码（管理员）
func (s *Session) SetPassword(ctx context.Context, username, password string) error {
	if err := s.requireAdmin("changing passwords"); err != nil {
		return err
	}
	if strings.TrimSpace(password) == "" {
		return apperr.Validation("password must not be empty")
	}
	return s.Mutate(ctx, func(w *WorkingCopy) error {
		for i := range w.Users {
			if w.Users[i].Username == username {
				w.Users[i].Password = password
				return nil
			}
		}
		return apperr.NotFound("user %q not found", username)
	})
}

// DeleteUser 删除用户，按 (username, powerhouse) 匹配
func (s *Session) DeleteUser(ctx context.Context, username, powerhouse string) error {
	if err := s.requireAdmin("deleting users"); err != nil {
		return err
	}
	if username == s.User().Username {
		return apperr.Validation("cannot delete the logged-in user")
	}
	return s.Mutate(ctx, func(w *WorkingCopy) error {
		for i, u := range w.Users {
			if u.Username == username && u.Powerhouse == powerhouse {
				w.Users = append(w.Users[:i], w.Users[i+1:]...)
				return nil
			}
		}
		return apperr.NotFound("user %q of powerhouse %q not found", username, powerhouse)
	})
}

// bindUsers 记录每个用户所属电站的 UID
func bindUsers(w *WorkingCopy) []string {
	owners := make([]string, len(w.Users))
	for i, u := range w.Users {
		if u.Powerhouse == "" {
			continue
		}
		if uid, err := w.Tree.NodeUID(hierarchy.LevelPowerhouse, hierarchy.Path{Powerhouse: u.Powerhouse}); err == nil {
			owners[i] = uid
		}
	}
	return owners
}

func rebindUsers(w *WorkingCopy, owners []string) {
	for i, uid := range owners {
		if uid == "" {
			continue
		}
		if path, _, ok := w.Tree.Locate(uid); ok {
			w.Users[i].Powerhouse = path.Powerhouse
		}
	}
}
