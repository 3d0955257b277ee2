package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"powerhouse-manager/internal/client/render"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "管理用户",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出用户（普通用户只看到自己）",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		render.Users(os.Stdout, s.Users())
		return nil
	},
}

var userPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "修改用户密码（仅管理员）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			first, err := promptPassword("New password: ")
			if err != nil {
				return err
			}
			again, err := promptPassword("Repeat password: ")
			if err != nil {
				return err
			}
			if first != again {
				return fmt.Errorf("passwords do not match")
			}
			password = first
		}
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.SetPassword(cmd.Context(), args[0], password); err != nil {
			return err
		}
		fmt.Printf("✓ Password of %s changed\n", args[0])
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "删除用户（仅管理员）",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		powerhouse, _ := cmd.Flags().GetString("powerhouse")
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.DeleteUser(cmd.Context(), args[0], powerhouse); err != nil {
			return err
		}
		fmt.Printf("✓ Deleted user %s\n", args[0])
		return nil
	},
}

func init() {
	userPasswdCmd.Flags().StringP("password", "p", "", "新密码（缺省时提示输入）")
	userDeleteCmd.Flags().String("powerhouse", "", "用户所属电站（管理员为空）")
	userCmd.AddCommand(userListCmd, userPasswdCmd, userDeleteCmd)
	rootCmd.AddCommand(userCmd)
}
