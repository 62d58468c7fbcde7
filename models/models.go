package models

import "time"

// SourceIssue はRedmineのイシュー（移行元）を表します
type SourceIssue struct {
	ID           int
	Subject      string
	Author       string // 取得できない場合は空
	CreatedOn    time.Time
	Description  string
	Tracker      string
	Status       string
	AssignedTo   string // 担当者の表示名（未設定の場合は空）
	Version      string // 対象バージョン名（未設定の場合は空）
	ClosedOn     *time.Time
	CustomFields []CustomFieldValue
	Journals     []Journal
	Attachments  []Attachment
}

// IsClosed は移行元でクローズ済みかどうかを返します
func (i *SourceIssue) IsClosed() bool {
	return i.ClosedOn != nil
}

// CustomFieldValue はカスタムフィールドの値です
type CustomFieldValue struct {
	ID    int
	Name  string
	Value string
}

// Journal はイシューの変更履歴（コメント＋フィールド変更）です
type Journal struct {
	ID        int
	User      string
	CreatedOn time.Time
	Notes     string
	Changes   []Change
}

// Attachment は添付ファイルを表します。本体はContentURLから必要時に取得します
type Attachment struct {
	ID          int
	Filename    string
	ContentType string // 不明な場合は空
	Author      string
	CreatedOn   time.Time
	Description string
	ContentURL  string
}

// Version はRedmineのバージョン（移行元マイルストーン）です
type Version struct {
	ID          int
	Name        string
	Status      string // open, locked, closed
	Description string
	DueDate     string // YYYY-MM-DD、未設定の場合は空
}

// Milestone はGitHubのマイルストーン（移行先）です
type Milestone struct {
	Number int
	Title  string
	State  string
}

// CommentEventKind はマージ済みコメントの発生元です
type CommentEventKind int

const (
	JournalEvent CommentEventKind = iota
	AttachmentEvent
)

// CommentEvent はジャーナルと添付ファイルをマージした1件分のイベントです
type CommentEvent struct {
	Kind       CommentEventKind
	CreatedOn  time.Time
	Journal    *Journal
	Attachment *Attachment
}

// TargetIssuePayload はGitHubインポートAPIに送信するペイロードです
type TargetIssuePayload struct {
	Issue    ImportIssue `json:"issue" yaml:"issue"`
	Comments []Comment   `json:"comments" yaml:"comments"`
}

// ImportIssue はインポート対象のイシュー本体です
type ImportIssue struct {
	Title     string    `json:"title" yaml:"title"`
	Body      string    `json:"body" yaml:"body"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Assignee  *string   `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Milestone *int      `json:"milestone,omitempty" yaml:"milestone,omitempty"`
	Labels    []string  `json:"labels" yaml:"labels"`
}

// Comment はインポート時に付与するコメントです
type Comment struct {
	Body      string    `json:"body" yaml:"body"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ImportStatus はインポートジョブの状態です
type ImportStatus string

const (
	ImportPending  ImportStatus = "pending"
	ImportImported ImportStatus = "imported"
	ImportFailed   ImportStatus = "failed"
)

// ImportJob はインポートジョブの参照です
type ImportJob struct {
	ID  int
	URL string
}

// ImportResult はインポートジョブのポーリング結果です
type ImportResult struct {
	Status   ImportStatus
	IssueURL string
	Errors   string
}

// TargetIssue はリダイレクト生成に使う移行先イシューの情報です
type TargetIssue struct {
	Number  int
	Title   string
	HTMLURL string
}
