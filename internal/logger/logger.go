// Package logger 根据 log 配置初始化全局 zerolog 日志
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"powerhouse-manager/internal/config"
)

// Setup 配置全局日志级别和输出格式
// 参数:
//   - cfg: 日志配置，format 为 text 时输出便于阅读的控制台格式
//   - out: 输出目标，nil 表示 stderr
func Setup(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "text") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// ParseLevel 解析日志级别，无法识别时使用 info
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
