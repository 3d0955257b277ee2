// Package cmd 实现 phctl 命令
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"powerhouse-manager/internal/apperr"
	"powerhouse-manager/internal/client/api"
	"powerhouse-manager/internal/client/config"
	"powerhouse-manager/internal/client/session"
	serverconfig "powerhouse-manager/internal/config"
	"powerhouse-manager/internal/hierarchy"
	"powerhouse-manager/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "phctl",
	Short: "phctl - 电站 / 馈线 / 变压器 / 电杆及用户账户管理客户端",
	Long: `phctl 是电站层级管理服务的命令行客户端。

每次修改都会把完整快照推送到服务端，然后重新加载，
终端上看到的始终是服务端确认过的数据。

首次使用请运行 'phctl login'。`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute 执行根命令
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("server", "s", "", "服务器地址 (默认: http://localhost:8080)")
	rootCmd.PersistentFlags().String("config-dir", "", "配置目录 (默认: ~/.phctl)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "输出调试日志")
}

func initConfig(cmd *cobra.Command, args []string) error {
	level := "warn"
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logger.Setup(serverconfig.LogConfig{Level: level, Format: "text"}, os.Stderr)

	dir, _ := cmd.Flags().GetString("config-dir")
	if err := config.Init(dir); err != nil {
		return err
	}
	// 指定了服务器地址时更新配置
	if server, _ := cmd.Flags().GetString("server"); server != "" {
		return config.SetServerURL(server)
	}
	return nil
}

// exitCode 按错误类型区分退出码，便于脚本判断
func exitCode(err error) int {
	switch {
	case apperr.IsValidation(err):
		return 2
	case apperr.IsAuth(err), apperr.IsForbidden(err):
		return 3
	case apperr.IsNotFound(err):
		return 4
	case apperr.IsStoreUnavailable(err):
		return 5
	default:
		return 1
	}
}

// newClient 使用保存的 token 创建 API 客户端
func newClient() (*api.Client, error) {
	if !config.IsLoggedIn() {
		return nil, errors.New("not logged in, run 'phctl login' first")
	}
	c := api.NewClient(config.GetServerURL())
	c.SetToken(config.Get().Session.Token)
	return c, nil
}

// openSession 登录后的会话，执行首次加载
func openSession(ctx context.Context) (*session.Session, error) {
	c, err := newClient()
	if err != nil {
		return nil, err
	}
	s, err := session.Open(ctx, c, config.SessionUser())
	if apperr.IsAuth(err) {
		return nil, fmt.Errorf("%w (session expired? run 'phctl login')", err)
	}
	return s, err
}

// parsePath 解析 "电站/馈线/变压器/电杆" 形式的路径
// 参数:
//   - level: 路径应到达的层级
//   - s: 以 / 分隔的名称
func parsePath(level hierarchy.Level, s string) (hierarchy.Path, error) {
	parts := strings.Split(s, "/")
	if len(parts) != int(level)+1 {
		return hierarchy.Path{}, apperr.Validation("%s path must have %d segment(s), got %q", level, int(level)+1, s)
	}
	var p hierarchy.Path
	for i, name := range parts {
		name = strings.TrimSpace(name)
		if name == "" {
			return hierarchy.Path{}, apperr.Validation("empty segment in path %q", s)
		}
		p = p.With(hierarchy.Level(i), name)
	}
	return p, nil
}
