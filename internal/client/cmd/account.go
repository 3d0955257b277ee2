package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"powerhouse-manager/internal/client/config"
	"powerhouse-manager/internal/client/render"
	"powerhouse-manager/internal/hierarchy"
	"powerhouse-manager/internal/model"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "管理电杆上挂接的用户账户",
}

var accountUpsertCmd = &cobra.Command{
	Use:   "upsert <id>",
	Short: "新增或更新账户，按 (电站, ID) 匹配",
	Example: `  phctl account upsert A1 --powerhouse Central --name Alice --phone 123 \
      --feeder F1 --transformer T1 --pole P1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		var f hierarchy.AccountFields
		f.Name, _ = flags.GetString("name")
		f.Phone, _ = flags.GetString("phone")
		f.Feeder, _ = flags.GetString("feeder")
		f.Transformer, _ = flags.GetString("transformer")
		f.Pole, _ = flags.GetString("pole")
		f.Remark, _ = flags.GetString("remark")

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		outcome, err := s.UpsertAccount(cmd.Context(), args[0], powerhouseFlag(cmd), f)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Account %s %s\n", args[0], outcome)
		return nil
	},
}

var accountSearchCmd = &cobra.Command{
	Use:   "search <id>",
	Short: "在电站内按 ID 查询账户",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		powerhouse := powerhouseFlag(cmd)
		res, err := client.SearchAccount(cmd.Context(), powerhouse, args[0])
		if err != nil {
			return err
		}
		if !res.Found {
			fmt.Printf("No account %s in %s\n", args[0], powerhouse)
			return nil
		}
		render.Account(os.Stdout, *res.Account)
		return nil
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出可见的账户",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()
		powerhouse, _ := cmd.Flags().GetString("powerhouse")
		var out []model.Account
		for _, a := range s.Accounts() {
			if powerhouse == "" || a.Powerhouse == powerhouse {
				out = append(out, a)
			}
		}
		render.Accounts(os.Stdout, out)
		return nil
	},
}

// powerhouseFlag --powerhouse 缺省时使用登录用户所属的电站
func powerhouseFlag(cmd *cobra.Command) string {
	if ph, _ := cmd.Flags().GetString("powerhouse"); ph != "" {
		return ph
	}
	return config.SessionUser().Powerhouse
}

func init() {
	f := accountUpsertCmd.Flags()
	f.String("powerhouse", "", "所属电站（普通用户缺省为自己的电站）")
	f.String("name", "", "户名")
	f.String("phone", "", "电话")
	f.String("feeder", "", "馈线")
	f.String("transformer", "", "变压器")
	f.String("pole", "", "电杆")
	f.String("remark", "", "备注")

	accountSearchCmd.Flags().String("powerhouse", "", "所属电站（普通用户缺省为自己的电站）")
	accountListCmd.Flags().String("powerhouse", "", "只列出该电站的账户")

	accountCmd.AddCommand(accountUpsertCmd, accountSearchCmd, accountListCmd)
	rootCmd.AddCommand(accountCmd)
}
