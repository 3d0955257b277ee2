// Package util 提供通用工具函数
package util

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword 使用 bcrypt 哈希密码
// 参数:
//   - password: 明文密码
//
// 返回:
//   - string: 密码哈希值
//   - error: 哈希错误（如密码超过 72 字节）
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword 验证密码是否匹配
// hash 为空时直接返回 false
func CheckPassword(password, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DummyHash 用于用户不存在时仍执行一次 bcrypt 比较
// 保证两种登录失败的耗时接近
var DummyHash = mustHash("phm-placeholder-password")

func mustHash(password string) string {
	h, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	return h
}

// NewUID 生成层级节点的稳定标识（UUID v4）
func NewUID() string {
	return uuid.NewString()
}

// GenerateUUID 生成不含连字符的 UUID，用于对象键等
func GenerateUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// TrimAll 对每个字符串去除首尾空白
func TrimAll(values ...*string) {
	for _, v := range values {
		*v = strings.TrimSpace(*v)
	}
}
