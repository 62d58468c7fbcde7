package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"redminetogithub/config"
	"redminetogithub/models"
)

// sourceTokenPattern はタイトル中の移行元参照トークンです
var sourceTokenPattern = regexp.MustCompile(`\bRM-(\d+)\b`)

// SourceToken は移行元イシューへの参照トークンを返します
func SourceToken(issueID int) string {
	return fmt.Sprintf("RM-%d", issueID)
}

// ParseSourceToken はタイトルから移行元イシューIDを取り出します
func ParseSourceToken(title string) (int, bool) {
	m := sourceTokenPattern.FindStringSubmatch(title)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// IssueTitle は "<トラッカー> RM-<id>: <件名>" 形式のタイトルを返します
func IssueTitle(issue *models.SourceIssue) string {
	title := fmt.Sprintf("%s: %s", SourceToken(issue.ID), issue.Subject)
	if tracker := strings.TrimSpace(issue.Tracker); tracker != "" {
		title = tracker + " " + title
	}
	return title
}

// MilestoneSource は移行先の既存マイルストーンを取得します
type MilestoneSource interface {
	ListMilestones(ctx context.Context) ([]models.Milestone, error)
}

// PayloadBuilder はインポートAPIに送るペイロードを組み立てます
type PayloadBuilder struct {
	config     *config.Config
	issueURL   func(issueID int) string
	milestones MilestoneSource
	labels     *LabelResolver

	milestoneByTitle map[string]int
}

// NewPayloadBuilder は新しいビルダーを作成します
func NewPayloadBuilder(cfg *config.Config, issueURL func(int) string, milestones MilestoneSource, labels *LabelResolver) *PayloadBuilder {
	return &PayloadBuilder{
		config:     cfg,
		issueURL:   issueURL,
		milestones: milestones,
		labels:     labels,
	}
}

// Build はイシューとレンダリング済みコメントからペイロードを作成します
func (b *PayloadBuilder) Build(ctx context.Context, issue *models.SourceIssue, comments []models.Comment) (*models.TargetIssuePayload, error) {
	labels, err := b.labels.Resolve(ctx, titleCase(issue.Tracker), b.customFieldLabels(issue))
	if err != nil {
		return nil, err
	}

	milestone, err := b.milestone(ctx, issue.Version)
	if err != nil {
		return nil, err
	}

	if comments == nil {
		comments = []models.Comment{}
	}

	return &models.TargetIssuePayload{
		Issue: models.ImportIssue{
			Title:     IssueTitle(issue),
			Body:      b.body(issue),
			CreatedAt: issue.CreatedOn.UTC(),
			Assignee:  b.assignee(issue.AssignedTo),
			Milestone: milestone,
			Labels:    labels,
		},
		Comments: comments,
	}, nil
}

func (b *PayloadBuilder) body(issue *models.SourceIssue) string {
	return fmt.Sprintf("***Issue migrated from Redmine: %s***\n*Originally created by %s at %s UTC.*\n\n%s",
		b.issueURL(issue.ID), authorOrPlaceholder(issue.Author), formatSourceTime(issue.CreatedOn), issue.Description)
}

// customFieldLabels は設定されたカスタムフィールドの値をラベル候補として返します
func (b *PayloadBuilder) customFieldLabels(issue *models.SourceIssue) []string {
	var names []string
	for _, field := range b.config.CustomFieldLabels {
		for _, cf := range issue.CustomFields {
			if strings.EqualFold(cf.Name, field) && strings.TrimSpace(cf.Value) != "" {
				names = append(names, cf.Value)
			}
		}
	}
	return names
}

// milestone はバージョン名と完全一致するマイルストーン番号を返します。作成はしません
func (b *PayloadBuilder) milestone(ctx context.Context, version string) (*int, error) {
	if version == "" {
		return nil, nil
	}

	if b.milestoneByTitle == nil {
		milestones, err := b.milestones.ListMilestones(ctx)
		if err != nil {
			return nil, fmt.Errorf("マイルストーン一覧取得エラー: %w", err)
		}
		b.milestoneByTitle = make(map[string]int, len(milestones))
		for _, m := range milestones {
			b.milestoneByTitle[m.Title] = m.Number
		}
	}

	number, ok := b.milestoneByTitle[version]
	if !ok {
		return nil, nil
	}
	return &number, nil
}

func (b *PayloadBuilder) assignee(login string) *string {
	if login == "" {
		return nil
	}
	mapped, ok := b.config.AssigneeMap[strings.ToLower(login)]
	if !ok || mapped == "" {
		return nil
	}
	return &mapped
}

// ResetMilestones はマイルストーンのキャッシュを破棄します（同期後に使用）
func (b *PayloadBuilder) ResetMilestones() {
	b.milestoneByTitle = nil
}
