// Package config 管理 phctl 客户端配置
// 配置和登录凭证保存在 ~/.phctl/config.yaml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"powerhouse-manager/internal/model"
)

const defaultServerURL = "http://localhost:8080"

// Config 客户端配置结构
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Session SessionConfig `mapstructure:"session"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	URL string `mapstructure:"url"` // HTTP API 地址
}

// SessionConfig 最近一次登录的凭证
type SessionConfig struct {
	Token      string `mapstructure:"token"`
	Username   string `mapstructure:"username"`
	Role       string `mapstructure:"role"`
	Powerhouse string `mapstructure:"powerhouse"`
}

var (
	mu  sync.RWMutex
	v   *viper.Viper
	cfg *Config
)

// Init 初始化配置
// 参数:
//   - dir: 配置目录，为空时使用 PHCTL_HOME 或 ~/.phctl
//
// 返回:
//   - error: 目录无法创建或配置文件损坏
func Init(dir string) error {
	if dir == "" {
		dir = os.Getenv("PHCTL_HOME")
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		dir = filepath.Join(home, ".phctl")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	nv := viper.New()
	nv.SetConfigFile(filepath.Join(dir, "config.yaml"))
	nv.SetConfigType("yaml")
	nv.SetEnvPrefix("PHCTL")
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()

	nv.SetDefault("server.url", defaultServerURL)
	nv.SetDefault("session.token", "")
	nv.SetDefault("session.username", "")
	nv.SetDefault("session.role", "")
	nv.SetDefault("session.powerhouse", "")

	if err := nv.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	c := &Config{}
	if err := nv.Unmarshal(c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	mu.Lock()
	v, cfg = nv, c
	mu.Unlock()
	return nil
}

// Get 获取配置副本
func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	if cfg == nil {
		return Config{Server: ServerConfig{URL: defaultServerURL}}
	}
	return *cfg
}

// GetServerURL 获取服务器地址
func GetServerURL() string {
	return Get().Server.URL
}

// SetServerURL 设置并保存服务器地址
func SetServerURL(url string) error {
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("server url must start with http:// or https://: %q", url)
	}
	return update(func(c *Config) {
		c.Server.URL = url
	}, map[string]any{"server.url": url})
}

// WSURL 由 HTTP 地址推导出 WebSocket 地址（http -> ws, https -> wss）
func WSURL() string {
	url := GetServerURL()
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	return "ws://" + strings.TrimPrefix(url, "http://")
}

// SaveSession 保存登录凭证
func SaveSession(token string, user model.User) error {
	return update(func(c *Config) {
		c.Session = SessionConfig{
			Token:      token,
			Username:   user.Username,
			Role:       string(user.Role),
			Powerhouse: user.Powerhouse,
		}
	}, map[string]any{
		"session.token":      token,
		"session.username":   user.Username,
		"session.role":       string(user.Role),
		"session.powerhouse": user.Powerhouse,
	})
}

// ClearSession 清除本地凭证
func ClearSession() error {
	return update(func(c *Config) {
		c.Session = SessionConfig{}
	}, map[string]any{
		"session.token":      "",
		"session.username":   "",
		"session.role":       "",
		"session.powerhouse": "",
	})
}

// IsLoggedIn 检查是否已登录
func IsLoggedIn() bool {
	return Get().Session.Token != ""
}

// SessionUser 返回保存的登录用户
func SessionUser() model.User {
	s := Get().Session
	return model.User{Username: s.Username, Role: model.Role(s.Role), Powerhouse: s.Powerhouse}
}

func update(apply func(c *Config), keys map[string]any) error {
	mu.Lock()
	defer mu.Unlock()
	if v == nil || cfg == nil {
		return errors.New("config is not initialized")
	}
	for k, val := range keys {
		v.Set(k, val)
	}
	apply(cfg)
	return v.WriteConfig()
}
