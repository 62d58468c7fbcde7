package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"redminetogithub/config"
	"redminetogithub/models"
)

// ErrNotFound はRedmine上に対象が存在しない（または参照権限がない）ことを表します
var ErrNotFound = errors.New("対象が見つかりません")

// redminePageSize は一覧取得時の1ページあたりの件数です
const redminePageSize = 100

// RedmineClient はRedmine REST APIとのやり取りを処理します
type RedmineClient struct {
	config *config.Config
	client *http.Client

	// NewBackOff は一時的なエラーのリトライ間隔を返します（テストで差し替え可能）
	NewBackOff func() backoff.BackOff
}

// NewRedmineClient は新しいRedmineクライアントを作成します
func NewRedmineClient(cfg *config.Config) *RedmineClient {
	return &RedmineClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		NewBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = time.Minute
			return bo
		},
	}
}

type redmineRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type redmineIssue struct {
	ID           int                  `json:"id"`
	Subject      string               `json:"subject"`
	Description  string               `json:"description"`
	Tracker      *redmineRef          `json:"tracker"`
	Status       *redmineRef          `json:"status"`
	Author       *redmineRef          `json:"author"`
	AssignedTo   *redmineRef          `json:"assigned_to"`
	FixedVersion *redmineRef          `json:"fixed_version"`
	CreatedOn    time.Time            `json:"created_on"`
	ClosedOn     *time.Time           `json:"closed_on"`
	CustomFields []redmineCustomField `json:"custom_fields"`
	Journals     []redmineJournal     `json:"journals"`
	Attachments  []redmineAttachment  `json:"attachments"`
}

type redmineCustomField struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type redmineJournal struct {
	ID        int             `json:"id"`
	User      *redmineRef     `json:"user"`
	Notes     string          `json:"notes"`
	CreatedOn time.Time       `json:"created_on"`
	Details   []redmineDetail `json:"details"`
}

type redmineDetail struct {
	Property string  `json:"property"`
	Name     string  `json:"name"`
	OldValue *string `json:"old_value"`
	NewValue *string `json:"new_value"`
}

type redmineAttachment struct {
	ID          int         `json:"id"`
	Filename    string      `json:"filename"`
	ContentType string      `json:"content_type"`
	Description string      `json:"description"`
	ContentURL  string      `json:"content_url"`
	Author      *redmineRef `json:"author"`
	CreatedOn   time.Time   `json:"created_on"`
}

type redmineVersion struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
}

// IssueURL はRedmine上のイシューのパーマリンクを返します
func (r *RedmineClient) IssueURL(issueID int) string {
	return fmt.Sprintf("%s/issues/%d", r.config.RedmineURL, issueID)
}

// CheckAuth はRedmine認証をチェックします
func (r *RedmineClient) CheckAuth(ctx context.Context) error {
	var result struct {
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	}
	if err := r.getJSON(ctx, "/users/current.json", nil, &result); err != nil {
		return fmt.Errorf("Redmine認証失敗: %w", err)
	}
	return nil
}

// ListIssueIDs はプロジェクトのイシューIDをID順に取得します
func (r *RedmineClient) ListIssueIDs(ctx context.Context, statusID string) ([]int, error) {
	var ids []int
	offset := 0

	for {
		params := url.Values{}
		params.Set("project_id", r.config.RedmineProject)
		params.Set("status_id", statusID)
		params.Set("sort", "id")
		params.Set("limit", strconv.Itoa(redminePageSize))
		params.Set("offset", strconv.Itoa(offset))

		var page struct {
			Issues     []redmineIssue `json:"issues"`
			TotalCount int            `json:"total_count"`
		}
		if err := r.getJSON(ctx, "/issues.json", params, &page); err != nil {
			return nil, fmt.Errorf("イシュー一覧取得エラー: %w", err)
		}

		for _, issue := range page.Issues {
			ids = append(ids, issue.ID)
		}

		offset += len(page.Issues)
		if len(page.Issues) == 0 || offset >= page.TotalCount {
			break
		}
	}

	return ids, nil
}

// GetIssue はジャーナルと添付ファイルを含むイシューを取得します
func (r *RedmineClient) GetIssue(ctx context.Context, issueID int) (*models.SourceIssue, error) {
	params := url.Values{}
	params.Set("include", "journals,attachments")

	var result struct {
		Issue redmineIssue `json:"issue"`
	}
	if err := r.getJSON(ctx, fmt.Sprintf("/issues/%d.json", issueID), params, &result); err != nil {
		return nil, fmt.Errorf("イシュー %d 取得エラー: %w", issueID, err)
	}

	return convertIssue(result.Issue), nil
}

// ListVersions はプロジェクトのバージョン一覧を取得します
func (r *RedmineClient) ListVersions(ctx context.Context) ([]models.Version, error) {
	var result struct {
		Versions []redmineVersion `json:"versions"`
	}
	path := fmt.Sprintf("/projects/%s/versions.json", url.PathEscape(r.config.RedmineProject))
	if err := r.getJSON(ctx, path, nil, &result); err != nil {
		return nil, fmt.Errorf("バージョン一覧取得エラー: %w", err)
	}

	versions := make([]models.Version, 0, len(result.Versions))
	for _, v := range result.Versions {
		versions = append(versions, models.Version{
			ID:          v.ID,
			Name:        v.Name,
			Status:      v.Status,
			Description: v.Description,
			DueDate:     v.DueDate,
		})
	}
	return versions, nil
}

// DownloadAttachment は添付ファイルの本体を取得します
func (r *RedmineClient) DownloadAttachment(ctx context.Context, attachment models.Attachment) ([]byte, error) {
	contentURL := attachment.ContentURL
	if contentURL == "" {
		contentURL = fmt.Sprintf("%s/attachments/download/%d/%s",
			r.config.RedmineURL, attachment.ID, url.PathEscape(attachment.Filename))
	}

	body, err := r.do(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return nil, fmt.Errorf("添付ファイル %d ダウンロードエラー: %w", attachment.ID, err)
	}
	return body, nil
}

// AddNote はイシューに注記を追加します
func (r *RedmineClient) AddNote(ctx context.Context, issueID int, note string) error {
	payload := map[string]interface{}{
		"issue": map[string]string{"notes": note},
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("JSONエンコードエラー: %w", err)
	}

	u := fmt.Sprintf("%s/issues/%d.json", r.config.RedmineURL, issueID)
	if _, err := r.do(ctx, http.MethodPut, u, payloadBytes); err != nil {
		return fmt.Errorf("イシュー %d への注記追加エラー: %w", issueID, err)
	}
	return nil
}

func (r *RedmineClient) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := r.config.RedmineURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	body, err := r.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンス解析エラー: %w", err)
	}
	return nil
}

// do はリクエストを送信し、一時的なエラー（ネットワーク、5xx、429）はバックオフ付きでリトライします
func (r *RedmineClient) do(ctx context.Context, method, u string, payload []byte) ([]byte, error) {
	var body []byte

	operation := func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("リクエスト作成エラー: %w", err))
		}
		req.Header.Set("X-Redmine-API-Key", r.config.RedmineToken)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := r.client.Do(req)
		if err != nil {
			return fmt.Errorf("リクエスト送信エラー: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("レスポンス読み込みエラー: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
			return backoff.Permanent(fmt.Errorf("%s %s (status %d): %w", method, u, resp.StatusCode, ErrNotFound))
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("一時的なエラー (status %d): %s", resp.StatusCode, truncate(string(respBody), 200))
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("APIエラー (status %d): %s", resp.StatusCode, truncate(string(respBody), 200)))
		}

		body = respBody
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(r.NewBackOff(), ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func convertIssue(src redmineIssue) *models.SourceIssue {
	issue := &models.SourceIssue{
		ID:          src.ID,
		Subject:     src.Subject,
		Description: src.Description,
		CreatedOn:   src.CreatedOn,
		ClosedOn:    src.ClosedOn,
		Author:      refName(src.Author),
		Tracker:     refName(src.Tracker),
		Status:      refName(src.Status),
		AssignedTo:  refName(src.AssignedTo),
		Version:     refName(src.FixedVersion),
	}

	for _, cf := range src.CustomFields {
		issue.CustomFields = append(issue.CustomFields, models.CustomFieldValue{
			ID:    cf.ID,
			Name:  cf.Name,
			Value: customFieldValue(cf.Value),
		})
	}

	for _, j := range src.Journals {
		journal := models.Journal{
			ID:        j.ID,
			User:      refName(j.User),
			CreatedOn: j.CreatedOn,
			Notes:     j.Notes,
		}
		for _, d := range j.Details {
			journal.Changes = append(journal.Changes, models.ParseChange(d.Property, d.Name, d.OldValue, d.NewValue))
		}
		issue.Journals = append(issue.Journals, journal)
	}

	for _, a := range src.Attachments {
		issue.Attachments = append(issue.Attachments, models.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Author:      refName(a.Author),
			CreatedOn:   a.CreatedOn,
			Description: a.Description,
			ContentURL:  a.ContentURL,
		})
	}

	return issue
}

func refName(ref *redmineRef) string {
	if ref == nil {
		return ""
	}
	return ref.Name
}

// 複数値のカスタムフィールドは配列で返されるのでカンマ区切りにまとめる
func customFieldValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}

	var multi []string
	if err := json.Unmarshal(raw, &multi); err == nil {
		return strings.Join(multi, ", ")
	}

	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
