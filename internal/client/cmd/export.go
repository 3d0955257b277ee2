package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "导出全部账户为 CSV（仅管理员）",
	Long: `导出全部账户为 CSV。

默认输出到标准输出；-o 写入文件；--archive 由服务端写入对象存储并返回下载链接。`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "输出文件")
	exportCmd.Flags().Bool("archive", false, "归档到服务端对象存储")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	if archive, _ := cmd.Flags().GetBool("archive"); archive {
		info, err := client.ArchiveCSV(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("✓ Archived %s (%d bytes)\n", info.Key, info.Size)
		if info.URL != "" {
			fmt.Printf("  %s\n", info.URL)
		}
		return nil
	}

	// 先完整下载，失败时不会留下半个文件
	var buf bytes.Buffer
	if err := client.ExportCSV(cmd.Context(), &buf); err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		_, err := io.Copy(os.Stdout, &buf)
		return err
	}
	if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "✓ Exported to %s\n", output)
	return nil
}
