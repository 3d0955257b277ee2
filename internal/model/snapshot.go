package model

import (
	"bytes"
	"encoding/json"
	"time"

	"powerhouse-manager/internal/apperr"
)

// Snapshot 全量数据集（传输形态）
type Snapshot struct {
	Users       []User       `json:"users"`
	Powerhouses []Powerhouse `json:"powerhouses"`
}

// Clone 深拷贝
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		Users:       append(make([]User, 0, len(s.Users)), s.Users...),
		Powerhouses: ClonePowerhouses(s.Powerhouses),
	}
}

// Accounts 展开所有电站内嵌的账户
func (s *Snapshot) Accounts() []Account {
	var out []Account
	for _, p := range s.Powerhouses {
		out = append(out, p.Accounts...)
	}
	return out
}

// StoredSnapshot 全量数据集（持久化形态，含密码哈希）
type StoredSnapshot struct {
	Users       []StoredUser `json:"users"`
	Powerhouses []Powerhouse `json:"powerhouses"`
}

// Clone 深拷贝
func (s *StoredSnapshot) Clone() *StoredSnapshot {
	return &StoredSnapshot{
		Users:       append(make([]StoredUser, 0, len(s.Users)), s.Users...),
		Powerhouses: ClonePowerhouses(s.Powerhouses),
	}
}

// Public 去掉凭据
func (s *StoredSnapshot) Public() *Snapshot {
	return &Snapshot{Users: PublicUsers(s.Users), Powerhouses: ClonePowerhouses(s.Powerhouses)}
}

// FindUser 按用户名查找
func (s *StoredSnapshot) FindUser(username string) (StoredUser, bool) {
	for _, u := range s.Users {
		if u.Username == username {
			return u, true
		}
	}
	return StoredUser{}, false
}

// DecodeSnapshot 解析客户端提交的全量快照
// users 和 powerhouses 必须都是 JSON 数组，否则返回参数错误，不做任何写入
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var raw struct {
		Users       json.RawMessage `json:"users"`
		Powerhouses json.RawMessage `json:"powerhouses"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Validation("malformed snapshot payload")
	}
	if !isArray(raw.Users) || !isArray(raw.Powerhouses) {
		return nil, apperr.Validation("users and powerhouses must be arrays")
	}
	snap := &Snapshot{}
	if err := json.Unmarshal(raw.Users, &snap.Users); err != nil {
		return nil, apperr.Validation("malformed users: %v", err)
	}
	if err := json.Unmarshal(raw.Powerhouses, &snap.Powerhouses); err != nil {
		return nil, apperr.Validation("malformed powerhouses: %v", err)
	}
	return snap, nil
}

func isArray(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '['
}

// ChangeEvent 全量替换成功后广播的变更事件
type ChangeEvent struct {
	Revision    string    `json:"revision"`
	Actor       string    `json:"actor"`
	Users       int       `json:"users"`
	Powerhouses int       `json:"powerhouses"`
	Accounts    int       `json:"accounts"`
	At          time.Time `json:"at"`
}
