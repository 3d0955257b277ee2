package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"powerhouse-manager/internal/client/render"
	"powerhouse-manager/internal/hierarchy"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "显示可见的电站层级",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		render.Tree(os.Stdout, s.Powerhouses())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(treeCmd)
	rootCmd.AddCommand(newPowerhouseCmd())
	for _, level := range []hierarchy.Level{hierarchy.LevelFeeder, hierarchy.LevelTransformer, hierarchy.LevelPole} {
		rootCmd.AddCommand(newNodeCmd(level))
	}
}

// pathExample 返回某一层级的路径示例，如 Central/F1
func pathExample(level hierarchy.Level) string {
	names := []string{"Central", "F1", "T1", "P1"}
	return strings.Join(names[:int(level)+1], "/")
}

// newNodeCmd 生成馈线、变压器、电杆共用的 add / rename / delete 命令
func newNodeCmd(level hierarchy.Level) *cobra.Command {
	parent := level - 1
	cmd := &cobra.Command{
		Use:   level.String(),
		Short: fmt.Sprintf("管理%s节点", level),
	}

	cmd.AddCommand(&cobra.Command{
		Use:     fmt.Sprintf("add <%s-path> <name>", parent),
		Short:   fmt.Sprintf("在 %s 下新增 %s", parent, level),
		Example: fmt.Sprintf("  phctl %s add %s %s", level, pathExample(parent), strings.ToUpper(level.String()[:1])+"2"),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePath(parent, args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.AddNode(cmd.Context(), level, p, args[1]); err != nil {
				return err
			}
			fmt.Printf("✓ Added %s %s/%s\n", level, p.String(), strings.TrimSpace(args[1]))
			return nil
		},
	})
	cmd.AddCommand(newRenameCmd(level), newDeleteCmd(level))
	return cmd
}

func newRenameCmd(level hierarchy.Level) *cobra.Command {
	return &cobra.Command{
		Use:     fmt.Sprintf("rename <%s-path> <new-name>", level),
		Short:   fmt.Sprintf("重命名 %s，账户和用户上的引用随之更新", level),
		Example: fmt.Sprintf("  phctl %s rename %s NewName", level, pathExample(level)),
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePath(level, args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.RenameNode(cmd.Context(), level, p, args[1]); err != nil {
				return err
			}
			fmt.Printf("✓ Renamed %s %s to %s\n", level, p.String(), strings.TrimSpace(args[1]))
			return nil
		},
	}
}

func newDeleteCmd(level hierarchy.Level) *cobra.Command {
	cmd := &cobra.Command{
		Use:     fmt.Sprintf("delete <%s-path>", level),
		Short:   fmt.Sprintf("删除 %s 及其子树，挂接的账户一并删除", level),
		Example: fmt.Sprintf("  phctl %s delete %s --yes", level, pathExample(level)),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parsePath(level, args[0])
			if err != nil {
				return err
			}
			if !confirmed(cmd, fmt.Sprintf("Delete %s %s and everything under it?", level, p.String())) {
				fmt.Println("Aborted")
				return nil
			}
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.DeleteNode(cmd.Context(), level, p); err != nil {
				return err
			}
			fmt.Printf("✓ Deleted %s %s\n", level, p.String())
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "不再确认")
	return cmd
}

func newPowerhouseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "powerhouse",
		Short: "管理电站（仅管理员）",
	}

	add := &cobra.Command{
		Use:     "add <name>",
		Short:   "新建电站并为其创建一个普通用户",
		Example: "  phctl powerhouse add Central --user bob",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("user")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				var err error
				if password, err = promptPassword(fmt.Sprintf("Password for %s: ", username)); err != nil {
					return err
				}
			}
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.AddPowerhouse(cmd.Context(), args[0], username, password); err != nil {
				return err
			}
			fmt.Printf("✓ Added powerhouse %s with user %s\n", strings.TrimSpace(args[0]), username)
			return nil
		},
	}
	add.Flags().StringP("user", "u", "", "电站用户名")
	add.Flags().StringP("password", "p", "", "电站用户密码（缺省时提示输入）")
	add.MarkFlagRequired("user")

	list := &cobra.Command{
		Use:   "list",
		Short: "列出可见的电站",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			for _, p := range s.Powerhouses() {
				fmt.Printf("%s\t%d feeders\t%d accounts\n", p.Name, len(p.Feeders), len(p.Accounts))
			}
			return nil
		},
	}

	cmd.AddCommand(add, list, newRenameCmd(hierarchy.LevelPowerhouse), newDeleteCmd(hierarchy.LevelPowerhouse))
	return cmd
}

// confirmed 有 --yes 时直接确认，否则询问
func confirmed(cmd *cobra.Command, question string) bool {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true
	}
	answer, err := promptLine(question + " [y/N]: ")
	if err != nil {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}
