package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"powerhouse-manager/internal/client/api"
	"powerhouse-manager/internal/client/config"
)

var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "登录并保存凭证",
	Long: `使用用户名和密码登录，token 保存在本地配置中。

未提供密码时会在终端中隐藏输入。`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "登出并清除本地凭证",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "显示服务器地址和登录状态",
	Args:  cobra.NoArgs,
	Run:   runStatus,
}

func init() {
	loginCmd.Flags().StringP("password", "p", "", "密码（不推荐在命令行中明文传入）")
	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	var username string
	if len(args) == 1 {
		username = strings.TrimSpace(args[0])
	} else {
		var err error
		if username, err = promptLine("Username: "); err != nil {
			return err
		}
	}
	if username == "" {
		return errors.New("username must not be empty")
	}

	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		var err error
		if password, err = promptPassword("Password: "); err != nil {
			return err
		}
	}

	client := api.NewClient(config.GetServerURL())
	res, err := client.Login(cmd.Context(), username, password)
	if err != nil {
		return err
	}
	if err := config.SaveSession(res.Token, res.User); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	fmt.Printf("✓ Logged in as %s (%s)", res.User.Username, res.User.Role)
	if res.User.Powerhouse != "" {
		fmt.Printf(", powerhouse %s", res.User.Powerhouse)
	}
	fmt.Println()
	if res.MustChangePassword {
		fmt.Fprintf(os.Stderr, "! The password of %s is still the initial one, change it with 'phctl user passwd %s'\n",
			res.User.Username, res.User.Username)
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if !config.IsLoggedIn() {
		fmt.Println("Not logged in")
		return nil
	}
	// 服务端吊销失败不影响清除本地凭证
	if client, err := newClient(); err == nil {
		if err := client.Logout(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "! Server logout failed: %v\n", err)
		}
	}
	if err := config.ClearSession(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	fmt.Println("✓ Logged out")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) {
	fmt.Printf("Server:  %s\n", config.GetServerURL())
	if !config.IsLoggedIn() {
		fmt.Println("Session: not logged in (run 'phctl login')")
		return
	}
	u := config.SessionUser()
	fmt.Printf("Session: %s (%s)\n", u.Username, u.Role)
	if u.Powerhouse != "" {
		fmt.Printf("Powerhouse: %s\n", u.Powerhouse)
	}
}

// stdin 所有提示共用的输入缓冲
var stdin = bufio.NewReader(os.Stdin)

// promptLine 从标准输入读取一行
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword 隐藏输入读取密码；标准输入不是终端时按普通行读取
func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(prompt)
	}
	fmt.Print(prompt)
	data, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimSpace(string(data))
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	return password, nil
}
