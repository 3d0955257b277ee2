// Package model 定义电站层级、账户和用户的数据结构
// 同一套结构既用于 HTTP 传输，也作为各存储驱动的序列化格式
package model

// Role 用户角色
type Role string

const (
	// RoleAdmin 管理员，可操作全部电站
	RoleAdmin Role = "admin"
	// RoleUser 电站用户，只能看到自己所属的电站
	RoleUser Role = "user"
)

// Valid 角色是否合法
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User 传输层的用户
// Password 只写：客户端提交新密码时携带，服务端返回时永远为空
type User struct {
	// Username 用户名，全局唯一
	Username string `json:"username"`

	// Password 明文新密码，仅在创建用户或修改密码时由客户端填写
	Password string `json:"password,omitempty"`

	Role Role `json:"role"`

	// Powerhouse 所属电站名称，管理员为空
	Powerhouse string `json:"powerhouse,omitempty"`

	// MustChangePassword 是否需要修改初始密码（如引导创建的 admin）
	MustChangePassword bool `json:"must_change_password,omitempty"`
}

// IsAdmin 是否为管理员
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// StoredUser 持久化的用户
// 只保存 bcrypt 哈希，从不保存明文
type StoredUser struct {
	Username           string `json:"username"`
	PasswordHash       string `json:"password_hash"`
	Role               Role   `json:"role"`
	Powerhouse         string `json:"powerhouse,omitempty"`
	MustChangePassword bool   `json:"must_change_password,omitempty"`
}

// Public 去掉凭据后返回给客户端的视图
func (u StoredUser) Public() User {
	return User{
		Username:           u.Username,
		Role:               u.Role,
		Powerhouse:         u.Powerhouse,
		MustChangePassword: u.MustChangePassword,
	}
}

// PublicUsers 批量转换
func PublicUsers(users []StoredUser) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out
}
