package main

import (
	"errors"

	"github.com/spf13/cobra"

	"redminetogithub/api"
	"redminetogithub/utils"
)

var authCheckCmd = &cobra.Command{
	Use:   "auth-check",
	Short: "RedmineとGitHubの認証情報を確認する",
	Long: `RedmineとGitHubのAPIに接続し、認証情報が正しく設定されているかを確認します。
認証が成功すれば、migrate も正常に動作する可能性が高いです。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if cfg.RedmineURL == "" || cfg.GitHubToken == "" {
			return errors.New("REDMINE_URL と GITHUB_TOKEN を設定してください")
		}

		utils.LogInfo("Redmine APIの認証を確認しています...")
		if err := api.NewRedmineClient(cfg).CheckAuth(ctx); err != nil {
			utils.LogError("認証情報を確認してください。")
			return err
		}
		utils.LogInfo("Redmine認証成功！ 接続先: %s", cfg.RedmineURL)

		github, err := api.NewGitHubClient(cfg)
		if err != nil {
			return err
		}

		utils.LogInfo("GitHub APIの認証を確認しています...")
		login, err := github.CheckAuth(ctx)
		if err != nil {
			utils.LogError("認証情報を確認してください。")
			return err
		}
		utils.LogInfo("GitHub認証成功！ ユーザー: %s", login)
		return nil
	},
}
