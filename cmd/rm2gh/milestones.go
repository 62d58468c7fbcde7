package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"redminetogithub/services"
)

var milestonesCmd = &cobra.Command{
	Use:   "milestones",
	Short: "マイルストーンを作り直す",
	Long: `GitHubの既存のマイルストーンをすべて削除し、Redmineのバージョンから作り直します。

移行済みのイシューのマイルストーン参照が外れるため、移行済みのイシューが
ある場合は --force を指定しない限り実行しません。`,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		if err := ledger.Load(ctx); err != nil {
			return err
		}

		force, _ := cmd.Flags().GetBool("force")
		if ledger.Len() > 0 && !force {
			return errMigrationStarted(ledger.Len())
		}

		migration, err := services.NewMigrationService(cfg, c.redmine, c.lookup, c.github, c.storage, ledger)
		if err != nil {
			return err
		}
		return migration.SyncMilestones(ctx)
	},
}

func init() {
	milestonesCmd.Flags().Bool("force", false, "移行済みのイシューがあっても実行する")
}

func errMigrationStarted(n int) error {
	return fmt.Errorf("移行済みのイシューが %d 件あります。作り直す場合は --force を指定してください", n)
}
