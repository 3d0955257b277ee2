// Package config 负责加载和管理服务端配置
// 使用 viper 支持 YAML 配置文件和环境变量覆盖，启动前先用 godotenv 读取 .env
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是应用程序的根配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`    // 服务器配置
	Store     StoreConfig     `mapstructure:"store"`     // 快照存储配置
	Redis     RedisConfig     `mapstructure:"redis"`     // Redis 配置
	JWT       JWTConfig       `mapstructure:"jwt"`       // JWT 配置
	Log       LogConfig       `mapstructure:"log"`       // 日志配置
	Blob      BlobConfig      `mapstructure:"blob"`      // 备份 / 导出对象存储
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"` // 初始管理员
}

// ServerConfig 服务器相关配置
type ServerConfig struct {
	Port int      `mapstructure:"port"` // 监听端口，默认 8080
	Mode string   `mapstructure:"mode"` // 运行模式: debug / release
	CORS []string `mapstructure:"cors"` // CORS 允许的域名
	// MaxBodyBytes 快照提交的请求体上限，0 表示不限制
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// StoreConfig 快照存储配置
type StoreConfig struct {
	Driver   string         `mapstructure:"driver"` // memory / mysql / postgres / sqlite
	DSN      string         `mapstructure:"dsn"`    // postgres 连接串或 sqlite 文件路径
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// MySQLConfig MySQL 数据库连接配置
type MySQLConfig struct {
	Host         string `mapstructure:"host"`           // 数据库主机地址
	Port         int    `mapstructure:"port"`           // 数据库端口
	Username     string `mapstructure:"username"`       // 数据库用户名
	Password     string `mapstructure:"password"`       // 数据库密码
	Database     string `mapstructure:"database"`       // 数据库名称
	Charset      string `mapstructure:"charset"`        // 字符集
	MaxIdleConns int    `mapstructure:"max_idle_conns"` // 最大空闲连接数
	MaxOpenConns int    `mapstructure:"max_open_conns"` // 最大打开连接数
	MaxLifetime  int    `mapstructure:"max_lifetime"`   // 连接最大生命周期（秒）
}

// DSN 拼接 go-sql-driver 格式的连接串
func (m MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		m.Username, m.Password, m.Host, m.Port, m.Database, m.Charset)
}

// PostgresConfig pgxpool 连接池配置
type PostgresConfig struct {
	MaxConns int32 `mapstructure:"max_conns"`
	MinConns int32 `mapstructure:"min_conns"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`      // 未启用时使用空实现
	Host        string        `mapstructure:"host"`         // Redis 主机地址
	Port        int           `mapstructure:"port"`         // Redis 端口
	Username    string        `mapstructure:"username"`     // Redis 用户名
	Password    string        `mapstructure:"password"`     // Redis 密码
	DB          int           `mapstructure:"db"`           // 数据库索引 (0-15)
	PoolSize    int           `mapstructure:"pool_size"`    // 连接池大小
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"` // 快照缓存有效期
}

// Addr 返回 host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret       string        `mapstructure:"secret"`        // JWT 签名密钥
	AccessExpire time.Duration `mapstructure:"access_expire"` // Access Token 过期时间
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug/info/warn/error
	Format string `mapstructure:"format"` // 日志格式: json/text
}

// BlobConfig 对象存储配置
type BlobConfig struct {
	Driver     string   `mapstructure:"driver"`      // none / fs / s3 / memory
	FSRoot     string   `mapstructure:"fs_root"`     // fs 驱动的根目录
	S3         S3Config `mapstructure:"s3"`          // s3 驱动配置
	BackupKeep int      `mapstructure:"backup_keep"` // 保留的备份份数，0 表示不清理
}

// S3Config S3 兼容存储配置
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`   // MinIO 等自建服务的地址
	PathStyle bool   `mapstructure:"path_style"` // 使用 path-style 寻址

	// 为空时使用 AWS 默认凭据链
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// BootstrapConfig 初始管理员配置
type BootstrapConfig struct {
	AdminUsername string `mapstructure:"admin_username"`
	AdminPassword string `mapstructure:"admin_password"`
}

// Load 从指定路径加载配置文件
// 参数:
//   - configPath: 配置文件目录路径 (如 "./configs")
//
// 返回:
//   - *Config: 配置对象
//   - error: 如果加载或校验失败则返回错误
func Load(configPath string) (*Config, error) {
	// 先把 .env 注入进程环境，已存在的环境变量不会被覆盖
	if err := loadDotEnv(".env", filepath.Join(configPath, ".env")); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	// 将环境变量中的 _ 映射到配置的 .
	// 例如: STORE_DRIVER -> store.driver
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVariables(v)
	setDefaults(v)

	// 读取配置文件（如果不存在则使用默认值和环境变量）
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查互相依赖的配置项
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "mysql":
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Blob.Driver {
	case "", "none", "memory", "fs", "s3":
	default:
		return fmt.Errorf("unknown blob.driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		return errors.New("blob.s3.bucket is required for the s3 driver")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret must not be empty")
	}
	if c.JWT.AccessExpire <= 0 {
		return errors.New("jwt.access_expire must be positive")
	}
	if c.Bootstrap.AdminUsername == "" || c.Bootstrap.AdminPassword == "" {
		return errors.New("bootstrap admin credentials must not be empty")
	}
	return nil
}

func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// bindEnvVariables 绑定环境变量到配置项
func bindEnvVariables(v *viper.Viper) {
	// 服务器配置
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.max_body_bytes", "SERVER_MAX_BODY_BYTES")

	// 存储配置
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("store.dsn", "STORE_DSN", "DATABASE_URL")
	v.BindEnv("store.mysql.host", "MYSQL_HOST")
	v.BindEnv("store.mysql.port", "MYSQL_PORT")
	v.BindEnv("store.mysql.username", "MYSQL_USERNAME")
	v.BindEnv("store.mysql.password", "MYSQL_PASSWORD")
	v.BindEnv("store.mysql.database", "MYSQL_DATABASE")

	// Redis 配置
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.username", "REDIS_USERNAME")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// JWT 配置
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// 对象存储
	v.BindEnv("blob.driver", "BLOB_DRIVER")
	v.BindEnv("blob.fs_root", "BLOB_FS_ROOT")
	v.BindEnv("blob.s3.bucket", "BLOB_S3_BUCKET")
	v.BindEnv("blob.s3.region", "BLOB_S3_REGION", "AWS_REGION")
	v.BindEnv("blob.s3.endpoint", "BLOB_S3_ENDPOINT")
	v.BindEnv("blob.s3.path_style", "BLOB_S3_PATH_STYLE")
	v.BindEnv("blob.s3.access_key_id", "BLOB_S3_ACCESS_KEY_ID")
	v.BindEnv("blob.s3.secret_access_key", "BLOB_S3_SECRET_ACCESS_KEY")

	// 初始管理员
	v.BindEnv("bootstrap.admin_password", "ADMIN_BOOTSTRAP_PASSWORD")
}

// setDefaults 设置配置项的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_bytes", 32<<20)
	v.SetDefault("server.cors", []string{"http://localhost:3000"})

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "data/powerhouse.db")
	v.SetDefault("store.mysql.host", "localhost")
	v.SetDefault("store.mysql.port", 3306)
	v.SetDefault("store.mysql.database", "powerhouse")
	v.SetDefault("store.mysql.charset", "utf8mb4")
	v.SetDefault("store.mysql.max_idle_conns", 10)
	v.SetDefault("store.mysql.max_open_conns", 100)
	v.SetDefault("store.mysql.max_lifetime", 3600)
	v.SetDefault("store.postgres.max_conns", 20)
	v.SetDefault("store.postgres.min_conns", 2)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.snapshot_ttl", "5m")

	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.access_expire", "24h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("blob.driver", "none")
	v.SetDefault("blob.fs_root", "data/blobs")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.backup_keep", 20)

	v.SetDefault("bootstrap.admin_username", "admin")
	v.SetDefault("bootstrap.admin_password", "admin123")
}
