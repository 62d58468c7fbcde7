package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"redminetogithub/api"
	"redminetogithub/services"
	"redminetogithub/utils"
)

var redirectsCmd = &cobra.Command{
	Use:   "redirects",
	Short: "nginxのリダイレクト設定を出力する",
	Long: `GitHub上の移行済みイシュー（タイトルに RM-<id> を含むもの）から、
Redmineの /issues/<id> を新しいURLへ転送するnginxのrewriteルールを
標準出力に書き出します。`,
	Example: `  rm2gh redirects > redmine-redirects.conf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.GitHubOwner == "" || cfg.GitHubRepo == "" {
			return errors.New("GITHUB_OWNER と GITHUB_REPO を設定してください")
		}

		github, err := api.NewGitHubClient(cfg)
		if err != nil {
			return err
		}

		n, err := services.GenerateRedirects(cmd.Context(), github, os.Stdout)
		if err != nil {
			return err
		}
		utils.LogInfo("リダイレクトを %d 件出力しました", n)
		return nil
	},
}
