package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"redminetogithub/config"
	"redminetogithub/telemetry"
	"redminetogithub/utils"
)

const version = "1.0.0"

var (
	configPath string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "rm2gh",
	Short: "Redmine → GitHub イシュー移行ツール",
	Long: `RedmineのイシューをジャーナルやファイルとともにGitHubへ移行します。

設定は .env、設定ファイル (rm2gh.yaml)、環境変数の順に読み込まれ、
環境変数が最も優先されます。移行済みのイシューは LEDGER_PATH に記録され、
再実行時にはスキップされます。`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.SetVerbose(verbose)

		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		return telemetry.Init(cmd.Context(), telemetry.Options{
			Enabled:     cfg.OTelEnabled,
			Stdout:      cfg.OTelStdout,
			ServiceName: "rm2gh",
			Version:     version,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "設定ファイルのパス (デフォルト: "+config.DefaultConfigFile+" が存在すれば使用)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "デバッグログを出力する")
	rootCmd.Version = version

	rootCmd.AddCommand(migrateCmd, milestonesCmd, redirectsCmd, authCheckCmd)
}

func main() {
	// SIGINT/SIGTERMでコンテキストをキャンセルし、処理中のイシューの後で停止する
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		utils.LogError("%v", err)
		stop()
		os.Exit(1)
	}
}
