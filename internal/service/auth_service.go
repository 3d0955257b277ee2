package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/cache"
	"powerhouse-manager/internal/metrics"
	"powerhouse-manager/internal/model"
	"powerhouse-manager/pkg/jwt"
	"powerhouse-manager/pkg/util"
)

// AuthService 认证服务
// 处理登录、登出和 token 校验
type AuthService struct {
	snapshots  *SnapshotService // 用户记录来自全量快照
	cache      cache.Cache      // token 黑名单
	jwtService *jwt.JWTService
	metrics    *metrics.Metrics
}

// NewAuthService 创建 AuthService 实例
func NewAuthService(
	snapshots *SnapshotService,
	c cache.Cache,
	jwtService *jwt.JWTService,
	m *metrics.Metrics,
) *AuthService {
	return &AuthService{
		snapshots:  snapshots,
		cache:      c,
		jwtService: jwtService,
		metrics:    m,
	}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // 用户名
	Password string `json:"password" binding:"required"` // 密码
}

// LoginResponse 登录响应
type LoginResponse struct {
	Success            bool        `json:"success"`
	User               *model.User `json:"user"`
	Token              string      `json:"token"`
	ExpiresIn          int64       `json:"expires_in"` // 过期时间（秒）
	MustChangePassword bool        `json:"must_change_password"`
}

// Login 用户登录
// 参数:
//   - ctx: 上下文
//   - req: 登录请求
//
// 返回:
//   - *LoginResponse: 登录成功返回用户信息和 token
//   - error: 用户不存在和密码错误都返回 apperr.ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	stored, err := s.snapshots.loadStored(ctx)
	if err != nil {
		return nil, err
	}

	user, ok := stored.FindUser(req.Username)
	hash := user.PasswordHash
	if !ok {
		// 用户不存在时也做一次比较
		hash = util.DummyHash
	}
	if !util.CheckPassword(req.Password, hash) || !ok {
		s.metrics.Login(false)
		log.Info().Str("username", req.Username).Msg("login rejected")
		return nil, apperr.ErrInvalidCredentials
	}

	token, expiresAt, err := s.jwtService.GenerateAccessToken(user.Username, string(user.Role), user.Powerhouse)
	if err != nil {
		return nil, err
	}
	s.metrics.Login(true)

	public := user.Public()
	return &LoginResponse{
		Success:            true,
		User:               &public,
		Token:              token,
		ExpiresIn:          int64(time.Until(expiresAt).Seconds()),
		MustChangePassword: user.MustChangePassword,
	}, nil
}

// Logout 用户登出
// 把 token 摘要加入黑名单直到其自然过期
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.jwtService.ValidateToken(token)
	if err != nil {
		// 已失效的 token 无需拉黑
		return nil
	}
	return s.cache.BlacklistToken(ctx, jwt.Fingerprint(token), claims.ExpiresAt.Time)
}

// Authenticate 校验 token 并返回对应的 Actor
// 参数:
//   - ctx: 上下文
//   - token: Bearer token
//
// 返回:
//   - Actor: 当前存储中的身份；角色和所属电站以存储为准，token 中的声明只用于签发时的展示
//   - error: token 无效、过期、已登出或用户已被删除；存储不可用时返回 StoreUnavailable
func (s *AuthService) Authenticate(ctx context.Context, token string) (Actor, error) {
	claims, err := s.jwtService.ValidateToken(token)
	if err != nil {
		return Actor{}, err
	}
	if s.cache.IsTokenBlacklisted(ctx, jwt.Fingerprint(token)) {
		return Actor{}, jwt.ErrInvalidToken
	}

	stored, err := s.snapshots.loadStored(ctx)
	if err != nil {
		return Actor{}, err
	}
	u, ok := stored.FindUser(claims.Username)
	if !ok {
		return Actor{}, jwt.ErrInvalidToken
	}
	return Actor{
		Username:   u.Username,
		Role:       u.Role,
		Powerhouse: u.Powerhouse,
	}, nil
}
