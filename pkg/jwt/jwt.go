// Package jwt 提供 JWT Token 的生成和验证功能
package jwt

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")     // Token 无效
	ErrExpiredToken = errors.New("token has expired") // Token 已过期
)

const issuer = "powerhouse-manager"

// UserClaims 用户 JWT 的声明
// Role 与 Powerhouse 决定该会话能看到和修改的范围
type UserClaims struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	Powerhouse string `json:"powerhouse,omitempty"`
	jwt.RegisteredClaims
}

// JWTService 提供 JWT 相关操作
type JWTService struct {
	secret       []byte
	accessExpire time.Duration
	now          func() time.Time
}

// NewJWTService 创建 JWTService 实例
// 参数:
//   - secret: 签名密钥
//   - accessExpire: Access Token 过期时间
func NewJWTService(secret string, accessExpire time.Duration) *JWTService {
	return &JWTService{
		secret:       []byte(secret),
		accessExpire: accessExpire,
		now:          time.Now,
	}
}

// GenerateAccessToken 生成 Access Token
// 返回:
//   - string: JWT Token 字符串
//   - time.Time: 过期时间
//   - error: 签名错误
func (s *JWTService) GenerateAccessToken(username, role, powerhouse string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessExpire)
	claims := UserClaims{
		Username:   username,
		Role:       role,
		Powerhouse: powerhouse,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   "access",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken 验证用户 Token
// 只接受 HMAC 签名、本服务签发的 access token
func (s *JWTService) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 确保使用的是我们期望的算法（HMAC）
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.Subject != "access" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GetAccessExpire 获取 Access Token 过期时间
func (s *JWTService) GetAccessExpire() time.Duration {
	return s.accessExpire
}

// RemainingTTL 返回 token 剩余有效期，用于黑名单过期时间
func (c *UserClaims) RemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	d := c.ExpiresAt.Time.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Fingerprint 计算 token 的 sha256 摘要
// 黑名单只保存摘要，不保存原始 token
func Fingerprint(tokenString string) string {
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}
