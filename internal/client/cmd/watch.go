package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"powerhouse-manager/internal/client/config"
	"powerhouse-manager/internal/client/render"
	"powerhouse-manager/internal/client/watch"
	"powerhouse-manager/internal/model"
	feed "powerhouse-manager/internal/websocket"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "实时显示其他客户端的修改",
	Long: `订阅服务端的变更推送，每次快照被替换时输出一行摘要。

每次变更后重新加载会话，加上 --tree 时打印层级树。按 Ctrl+C 退出。`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Bool("tree", false, "每次变更后重新打印层级树")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !config.IsLoggedIn() {
		return fmt.Errorf("not logged in, run 'phctl login' first")
	}
	showTree, _ := cmd.Flags().GetBool("tree")
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	w := watch.New(config.GetServerURL(), config.Get().Session.Token)
	onHello := func(h feed.HelloPayload) {
		fmt.Printf("Watching %s as %s (%s), Ctrl+C to stop\n", config.GetServerURL(), h.Username, h.Role)
	}
	onChange := func(ev model.ChangeEvent) {
		fmt.Printf("[%s] %s replaced the snapshot: %d users, %d powerhouses, %d accounts\n",
			ev.At.Local().Format(time.TimeOnly), ev.Actor, ev.Users, ev.Powerhouses, ev.Accounts)
		if err := s.Refresh(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "! reload failed: %v\n", err)
			return
		}
		if showTree {
			render.Tree(os.Stdout, s.Powerhouses())
		}
	}
	return w.Run(ctx, onHello, onChange)
}
