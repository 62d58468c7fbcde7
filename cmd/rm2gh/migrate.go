package main

import (
	"github.com/spf13/cobra"

	"redminetogithub/services"
	"redminetogithub/utils"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "イシューを移行する",
	Long: `Redmineのイシューを1件ずつGitHubのインポートAPIで作成します。

移行済みのイシューがない場合は、最初にGitHubのマイルストーンを削除して
Redmineのバージョンから作り直します。--dry-run を指定すると、送信する
ペイロードをYAMLで標準出力に書き出し、GitHub・S3・Redmineへの書き込みや
移行記録の更新は行いません。`,
	Example: `  # すべての対象イシューを移行
  rm2gh migrate

  # 最初の5件だけ内容を確認
  rm2gh migrate --dry-run --max-issues 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("dry-run") {
			cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
		}
		if cmd.Flags().Changed("max-issues") {
			cfg.MaxIssues, _ = cmd.Flags().GetInt("max-issues")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx := cmd.Context()
		c, err := newClients(ctx, cfg)
		if err != nil {
			return err
		}

		ledger, err := services.OpenLedger(cfg)
		if err != nil {
			return err
		}
		defer ledger.Close()

		migration, err := services.NewMigrationService(cfg, c.redmine, c.lookup, c.github, c.storage, ledger)
		if err != nil {
			return err
		}

		stats, err := migration.Run(ctx)
		if err != nil {
			return err
		}

		if cfg.DryRun {
			utils.LogInfo("ドライラン完了: %d 件のペイロードを出力しました", stats.Migrated)
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "ペイロードを出力するだけで書き込みを行わない")
	migrateCmd.Flags().Int("max-issues", 0, "新たに移行するイシューの最大数 (0は無制限)")
}
