package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/google/go-github/v57/github"

	"redminetogithub/config"
	"redminetogithub/models"
)

// importMediaType はイシューインポートAPI（プレビュー）のメディアタイプです
const importMediaType = "application/vnd.github.golden-comet-preview+json"

const githubPageSize = 100

// GitHubClient はGitHub APIとのやり取りを処理します
type GitHubClient struct {
	config *config.Config
	client *github.Client
}

// NewGitHubClient は新しいGitHubクライアントを作成します
func NewGitHubClient(cfg *config.Config) (*GitHubClient, error) {
	client := github.NewClient(&http.Client{Timeout: cfg.HTTPTimeout}).WithAuthToken(cfg.GitHubToken)

	if cfg.GitHubAPIURL != "" {
		var err error
		client, err = client.WithEnterpriseURLs(cfg.GitHubAPIURL, cfg.GitHubAPIURL)
		if err != nil {
			return nil, fmt.Errorf("GitHub APIのURLが不正です: %w", err)
		}
	}

	return &GitHubClient{config: cfg, client: client}, nil
}

type importResponse struct {
	ID       int             `json:"id"`
	Status   string          `json:"status"`
	URL      string          `json:"url"`
	IssueURL string          `json:"issue_url"`
	Errors   json.RawMessage `json:"errors,omitempty"`
}

// CheckAuth はGitHub認証をチェックします
func (g *GitHubClient) CheckAuth(ctx context.Context) (string, error) {
	user, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("GitHub認証失敗: %w", err)
	}
	return user.GetLogin(), nil
}

// SubmitImport はイシューインポートジョブを登録します
func (g *GitHubClient) SubmitImport(ctx context.Context, payload *models.TargetIssuePayload) (models.ImportJob, error) {
	u := fmt.Sprintf("repos/%s/%s/import/issues", g.config.GitHubOwner, g.config.GitHubRepo)

	req, err := g.client.NewRequest(http.MethodPost, u, payload)
	if err != nil {
		return models.ImportJob{}, fmt.Errorf("リクエスト作成エラー: %w", err)
	}
	req.Header.Set("Accept", importMediaType)

	result, err := g.doImport(ctx, req)
	if err != nil {
		return models.ImportJob{}, fmt.Errorf("インポート登録失敗: %w", err)
	}
	if result.URL == "" {
		return models.ImportJob{}, errors.New("インポートジョブのURLが返されませんでした")
	}

	return models.ImportJob{ID: result.ID, URL: result.URL}, nil
}

// ImportStatus はインポートジョブの状態を取得します
func (g *GitHubClient) ImportStatus(ctx context.Context, job models.ImportJob) (models.ImportResult, error) {
	req, err := g.client.NewRequest(http.MethodGet, job.URL, nil)
	if err != nil {
		return models.ImportResult{}, fmt.Errorf("リクエスト作成エラー: %w", err)
	}
	req.Header.Set("Accept", importMediaType)

	result, err := g.doImport(ctx, req)
	if err != nil {
		return models.ImportResult{}, fmt.Errorf("インポート状態取得失敗: %w", err)
	}

	status := models.ImportResult{
		Status:   models.ImportStatus(result.Status),
		IssueURL: result.IssueURL,
	}
	if len(result.Errors) > 0 && string(result.Errors) != "null" {
		status.Errors = string(result.Errors)
	}
	return status, nil
}

// インポートAPIは202を返すため、go-githubのAcceptedErrorから本文を取り出す
func (g *GitHubClient) doImport(ctx context.Context, req *http.Request) (*importResponse, error) {
	var result importResponse
	_, err := g.client.Do(ctx, req, &result)

	var accepted *github.AcceptedError
	if errors.As(err, &accepted) {
		if err := json.Unmarshal(accepted.Raw, &result); err != nil {
			return nil, fmt.Errorf("レスポンス解析エラー: %w", err)
		}
		return &result, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// IssueNumberFromURL はインポート完了時のissue_urlからイシュー番号を取り出します
func IssueNumberFromURL(issueURL string) (int, error) {
	u, err := url.Parse(issueURL)
	if err != nil {
		return 0, fmt.Errorf("issue_url が不正です: %w", err)
	}
	number, err := strconv.Atoi(path.Base(u.Path))
	if err != nil || number <= 0 {
		return 0, fmt.Errorf("issue_url からイシュー番号を取得できません: %q", issueURL)
	}
	return number, nil
}

// ListMilestones はすべてのマイルストーンを取得します
func (g *GitHubClient) ListMilestones(ctx context.Context) ([]models.Milestone, error) {
	var result []models.Milestone
	opts := &github.MilestoneListOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: githubPageSize},
	}

	for {
		milestones, resp, err := g.client.Issues.ListMilestones(ctx, g.config.GitHubOwner, g.config.GitHubRepo, opts)
		if err != nil {
			return nil, fmt.Errorf("マイルストーン一覧取得エラー: %w", err)
		}
		for _, m := range milestones {
			result = append(result, models.Milestone{
				Number: m.GetNumber(),
				Title:  m.GetTitle(),
				State:  m.GetState(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return result, nil
}

// CreateMilestone はマイルストーンを作成します
func (g *GitHubClient) CreateMilestone(ctx context.Context, title, state, description string, dueOn *time.Time) (models.Milestone, error) {
	milestone := &github.Milestone{
		Title:       github.String(title),
		State:       github.String(state),
		Description: github.String(description),
	}
	if dueOn != nil {
		milestone.DueOn = &github.Timestamp{Time: *dueOn}
	}

	created, _, err := g.client.Issues.CreateMilestone(ctx, g.config.GitHubOwner, g.config.GitHubRepo, milestone)
	if err != nil {
		return models.Milestone{}, fmt.Errorf("マイルストーン作成エラー (%s): %w", title, err)
	}

	return models.Milestone{
		Number: created.GetNumber(),
		Title:  created.GetTitle(),
		State:  created.GetState(),
	}, nil
}

// DeleteMilestone はマイルストーンを削除します
func (g *GitHubClient) DeleteMilestone(ctx context.Context, number int) error {
	if _, err := g.client.Issues.DeleteMilestone(ctx, g.config.GitHubOwner, g.config.GitHubRepo, number); err != nil {
		return fmt.Errorf("マイルストーン %d 削除エラー: %w", number, err)
	}
	return nil
}

// ListLabels はすべてのラベル名を取得します
func (g *GitHubClient) ListLabels(ctx context.Context) ([]string, error) {
	var result []string
	opts := &github.ListOptions{PerPage: githubPageSize}

	for {
		labels, resp, err := g.client.Issues.ListLabels(ctx, g.config.GitHubOwner, g.config.GitHubRepo, opts)
		if err != nil {
			return nil, fmt.Errorf("ラベル一覧取得エラー: %w", err)
		}
		for _, l := range labels {
			result = append(result, l.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return result, nil
}

// DeleteLabel はラベルを削除します
func (g *GitHubClient) DeleteLabel(ctx context.Context, name string) error {
	if _, err := g.client.Issues.DeleteLabel(ctx, g.config.GitHubOwner, g.config.GitHubRepo, name); err != nil {
		return fmt.Errorf("ラベル %q 削除エラー: %w", name, err)
	}
	return nil
}

// CreateComment はイシューにコメントを追加します
func (g *GitHubClient) CreateComment(ctx context.Context, number int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := g.client.Issues.CreateComment(ctx, g.config.GitHubOwner, g.config.GitHubRepo, number, comment); err != nil {
		return fmt.Errorf("イシュー %d へのコメント追加エラー: %w", number, err)
	}
	return nil
}

// CloseIssue はイシューをクローズします
func (g *GitHubClient) CloseIssue(ctx context.Context, number int) error {
	req := &github.IssueRequest{State: github.String("closed")}
	if _, _, err := g.client.Issues.Edit(ctx, g.config.GitHubOwner, g.config.GitHubRepo, number, req); err != nil {
		return fmt.Errorf("イシュー %d クローズエラー: %w", number, err)
	}
	return nil
}

// IssueHTMLURL はイシューのWeb上のURLを取得します
func (g *GitHubClient) IssueHTMLURL(ctx context.Context, number int) (string, error) {
	issue, _, err := g.client.Issues.Get(ctx, g.config.GitHubOwner, g.config.GitHubRepo, number)
	if err != nil {
		return "", fmt.Errorf("イシュー %d 取得エラー: %w", number, err)
	}
	return issue.GetHTMLURL(), nil
}

// ListIssues はプルリクエストを除くすべてのイシューを取得します
func (g *GitHubClient) ListIssues(ctx context.Context) ([]models.TargetIssue, error) {
	var result []models.TargetIssue
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: githubPageSize},
	}

	for {
		issues, resp, err := g.client.Issues.ListByRepo(ctx, g.config.GitHubOwner, g.config.GitHubRepo, opts)
		if err != nil {
			return nil, fmt.Errorf("イシュー一覧取得エラー: %w", err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			result = append(result, models.TargetIssue{
				Number:  issue.GetNumber(),
				Title:   issue.GetTitle(),
				HTMLURL: issue.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return result, nil
}
