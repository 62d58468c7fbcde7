package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Redmine API設定
	RedmineURL     string
	RedmineToken   string
	RedmineProject string
	IssueStatus    string
	MaxIssues      int

	// GitHub API設定
	GitHubToken  string
	GitHubOwner  string
	GitHubRepo   string
	GitHubAPIURL string

	// 添付ファイル保存先 (S3互換ストレージ)
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3Prefix          string
	S3PublicURL       string
	S3AccessKey       string
	S3SecretKey       string
	UploadAttachments bool

	// 移行済みイシューの記録
	LedgerBackend string
	LedgerPath    string

	// インポートジョブのポーリング設定
	PollStep     time.Duration
	PollMaxWait  time.Duration
	MaxResubmits int

	// 移行内容の設定
	Linkback          bool
	ResetLabels       bool
	CustomFieldLabels []string
	AssigneeMap       map[string]string

	DryRun      bool
	HTTPTimeout time.Duration

	// テレメトリ
	OTelEnabled bool
	OTelStdout  bool
}

// StatusFilter はISSUE_STATUSの値からRedmineのstatus_idフィルタへのマッピングです
var StatusFilter = map[string]string{
	"open":   "open",
	"closed": "closed",
	"all":    "*",
	"*":      "*",
}

// DefaultConfigFile は--config未指定時に読み込む設定ファイルです
const DefaultConfigFile = "rm2gh.yaml"

var defaults = map[string]any{
	"issue_status":       "open",
	"max_issues":         0,
	"github_api_url":     "",
	"s3_region":          "us-east-1",
	"s3_prefix":          "redmine",
	"upload_attachments": true,
	"ledger_backend":     "file",
	"ledger_path":        "migrated.txt",
	"poll_step":          "2s",
	"poll_max_wait":      "20s",
	"max_resubmits":      0,
	"linkback":           true,
	"reset_labels":       false,
	"dry_run":            false,
	"http_timeout":       "30s",
	"otel_enabled":       false,
	"otel_stdout":        false,
}

// LoadConfig は.env、設定ファイル、環境変数から設定を読み込みます。
// 優先順位は 環境変数 > 設定ファイル > デフォルト値 です
func LoadConfig(configPath string) (*Config, error) {
	// .envファイルを読み込む
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configPath == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			configPath = DefaultConfigFile
		}
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("設定ファイル読み込みエラー (%s): %w", configPath, err)
		}
	}

	// AutomaticEnvはGet時にしか環境変数を見ないため、ファイルにないキーも明示的にバインドする
	for _, key := range []string{
		"redmine_url", "redmine_token", "redmine_project",
		"github_token", "github_owner", "github_repo",
		"s3_bucket", "s3_endpoint", "s3_public_url",
		"s3_access_key_id", "s3_secret_access_key",
		"custom_field_labels", "assignee_map",
	} {
		_ = v.BindEnv(key)
	}

	config := &Config{
		RedmineURL:        strings.TrimRight(v.GetString("redmine_url"), "/"),
		RedmineToken:      v.GetString("redmine_token"),
		RedmineProject:    v.GetString("redmine_project"),
		IssueStatus:       strings.ToLower(v.GetString("issue_status")),
		MaxIssues:         v.GetInt("max_issues"),
		GitHubToken:       v.GetString("github_token"),
		GitHubOwner:       v.GetString("github_owner"),
		GitHubRepo:        v.GetString("github_repo"),
		GitHubAPIURL:      v.GetString("github_api_url"),
		S3Bucket:          v.GetString("s3_bucket"),
		S3Region:          v.GetString("s3_region"),
		S3Endpoint:        v.GetString("s3_endpoint"),
		S3Prefix:          strings.Trim(v.GetString("s3_prefix"), "/"),
		S3PublicURL:       strings.TrimRight(v.GetString("s3_public_url"), "/"),
		S3AccessKey:       v.GetString("s3_access_key_id"),
		S3SecretKey:       v.GetString("s3_secret_access_key"),
		UploadAttachments: v.GetBool("upload_attachments"),
		LedgerBackend:     strings.ToLower(v.GetString("ledger_backend")),
		LedgerPath:        v.GetString("ledger_path"),
		PollStep:          v.GetDuration("poll_step"),
		PollMaxWait:       v.GetDuration("poll_max_wait"),
		MaxResubmits:      v.GetInt("max_resubmits"),
		Linkback:          v.GetBool("linkback"),
		ResetLabels:       v.GetBool("reset_labels"),
		CustomFieldLabels: getStringList(v, "custom_field_labels"),
		AssigneeMap:       getStringMap(v, "assignee_map"),
		DryRun:            v.GetBool("dry_run"),
		HTTPTimeout:       v.GetDuration("http_timeout"),
		OTelEnabled:       v.GetBool("otel_enabled"),
		OTelStdout:        v.GetBool("otel_stdout"),
	}

	return config, nil
}

// Validate は必須項目と値の範囲をチェックします
func (c *Config) Validate() error {
	var missing []string
	required := map[string]string{
		"REDMINE_URL":     c.RedmineURL,
		"REDMINE_TOKEN":   c.RedmineToken,
		"REDMINE_PROJECT": c.RedmineProject,
		"GITHUB_TOKEN":    c.GitHubToken,
		"GITHUB_OWNER":    c.GitHubOwner,
		"GITHUB_REPO":     c.GitHubRepo,
	}
	if c.UploadsEnabled() {
		required["S3_BUCKET"] = c.S3Bucket
	}
	for key, value := range required {
		if value == "" {
			missing = append(missing, key)
		}
	}
	// アップロードしない場合も、リンク先を組み立てるためにどちらかが必要
	if !c.DryRun && !c.UploadAttachments && c.S3Bucket == "" && c.S3PublicURL == "" {
		missing = append(missing, "S3_BUCKET または S3_PUBLIC_URL")
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("必須の設定がありません: %s", strings.Join(missing, ", "))
	}

	if _, ok := StatusFilter[c.IssueStatus]; !ok {
		return fmt.Errorf("ISSUE_STATUS が不正です: %q (open, closed, all のいずれか)", c.IssueStatus)
	}
	if c.LedgerBackend != "file" && c.LedgerBackend != "sqlite" {
		return fmt.Errorf("LEDGER_BACKEND が不正です: %q (file, sqlite のいずれか)", c.LedgerBackend)
	}
	if c.PollStep <= 0 || c.PollMaxWait <= 0 {
		return errors.New("POLL_STEP と POLL_MAX_WAIT は正の値である必要があります")
	}
	if c.PollStep > c.PollMaxWait {
		return fmt.Errorf("POLL_STEP (%s) は POLL_MAX_WAIT (%s) 以下である必要があります", c.PollStep, c.PollMaxWait)
	}
	if c.MaxIssues < 0 || c.MaxResubmits < 0 {
		return errors.New("MAX_ISSUES と MAX_RESUBMITS は0以上である必要があります")
	}

	return nil
}

// UploadsEnabled は添付ファイルを実際にストレージへ書き込むかどうかを返します
func (c *Config) UploadsEnabled() bool {
	return c.UploadAttachments && !c.DryRun
}

// RedmineStatusID はイシュー一覧取得時のstatus_idフィルタを返します
func (c *Config) RedmineStatusID() string {
	if id, ok := StatusFilter[c.IssueStatus]; ok {
		return id
	}
	return "*"
}

// 環境変数ではカンマ区切り、設定ファイルではリストで指定できる
func getStringList(v *viper.Viper, key string) []string {
	var items []string
	switch raw := v.Get(key).(type) {
	case nil:
		return nil
	case string:
		items = strings.Split(raw, ",")
	default:
		items = v.GetStringSlice(key)
	}

	result := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}
	return result
}

// 環境変数では "redmine:github,..." 形式、設定ファイルではマップで指定できる
func getStringMap(v *viper.Viper, key string) map[string]string {
	result := make(map[string]string)
	raw, ok := v.Get(key).(string)
	if !ok {
		// viperはキーを小文字化する
		for k, value := range v.GetStringMapString(key) {
			result[strings.ToLower(k)] = value
		}
		return result
	}

	for _, pair := range strings.Split(raw, ",") {
		from, to, found := strings.Cut(pair, ":")
		if !found {
			continue
		}
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if from != "" && to != "" {
			result[strings.ToLower(from)] = to
		}
	}
	return result
}
