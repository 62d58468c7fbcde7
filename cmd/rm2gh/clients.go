package main

import (
	"context"
	"fmt"

	"redminetogithub/api"
	"redminetogithub/config"
)

// clients はコマンドで使用するAPIクライアントです
type clients struct {
	redmine *api.RedmineClient
	lookup  *api.RedmineLookup
	github  *api.GitHubClient
	storage *api.S3Storage
}

func newClients(ctx context.Context, cfg *config.Config) (*clients, error) {
	redmine := api.NewRedmineClient(cfg)

	github, err := api.NewGitHubClient(cfg)
	if err != nil {
		return nil, err
	}

	storage, err := api.NewS3Storage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ストレージ初期化エラー: %w", err)
	}

	return &clients{
		redmine: redmine,
		lookup:  api.NewRedmineLookup(redmine),
		github:  github,
		storage: storage,
	}, nil
}
