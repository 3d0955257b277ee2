package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "查看和恢复服务端备份（仅管理员）",
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出备份，最新的在前",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		list, err := client.ListBackups(cmd.Context())
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tTIME\tACTOR\tREASON")
		for _, b := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Key, b.LastModified.Local().Format(time.DateTime),
				b.Metadata["actor"], b.Metadata["reason"])
		}
		return tw.Flush()
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <key>",
	Short: "用备份替换服务端全部数据",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirmed(cmd, fmt.Sprintf("Replace all data with %s?", args[0])) {
			fmt.Println("Aborted")
			return nil
		}
		client, err := newClient()
		if err != nil {
			return err
		}
		if err := client.RestoreBackup(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Restored %s\n", args[0])
		return nil
	},
}

func init() {
	backupRestoreCmd.Flags().BoolP("yes", "y", false, "不再确认")
	backupCmd.AddCommand(backupListCmd, backupRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
