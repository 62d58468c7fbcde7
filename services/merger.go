package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"redminetogithub/models"
)

// sourceTimeLayout はコメントヘッダに表示する日時の形式です
const sourceTimeLayout = "2006-01-02 15:04:05"

// MergeComments はジャーナルと添付ファイルを時刻順の1つのイベント列にまとめます。
// 同時刻の場合は元の順序を保ち、ジャーナルが添付ファイルより先になります
func MergeComments(journals []models.Journal, attachments []models.Attachment) []models.CommentEvent {
	events := make([]models.CommentEvent, 0, len(journals)+len(attachments))
	for i := range journals {
		events = append(events, models.CommentEvent{
			Kind:      models.JournalEvent,
			CreatedOn: journals[i].CreatedOn,
			Journal:   &journals[i],
		})
	}
	for i := range attachments {
		events = append(events, models.CommentEvent{
			Kind:       models.AttachmentEvent,
			CreatedOn:  attachments[i].CreatedOn,
			Attachment: &attachments[i],
		})
	}

	sort.SliceStable(events, func(a, b int) bool {
		return events[a].CreatedOn.Before(events[b].CreatedOn)
	})
	return events
}

// CommentRenderer はマージ済みイベントをインポート用のコメントに変換します
type CommentRenderer struct {
	issueURL  func(issueID int) string
	changelog *ChangelogFormatter
	relocator *AttachmentRelocator
}

// NewCommentRenderer は新しいレンダラを作成します
func NewCommentRenderer(issueURL func(int) string, changelog *ChangelogFormatter, relocator *AttachmentRelocator) *CommentRenderer {
	return &CommentRenderer{
		issueURL:  issueURL,
		changelog: changelog,
		relocator: relocator,
	}
}

// Render は各イベントに1から始まる通し番号を振ってコメントを作成します
func (c *CommentRenderer) Render(ctx context.Context, issue *models.SourceIssue, events []models.CommentEvent) ([]models.Comment, error) {
	comments := make([]models.Comment, 0, len(events))

	for i, event := range events {
		var author, body string

		switch event.Kind {
		case models.JournalEvent:
			author = event.Journal.User
			body = c.journalBody(ctx, issue, event.Journal)
		case models.AttachmentEvent:
			author = event.Attachment.Author
			relocated, err := c.relocator.Relocate(ctx, issue.ID, *event.Attachment)
			if err != nil {
				return nil, fmt.Errorf("添付ファイル %d の移行に失敗: %w", event.Attachment.ID, err)
			}
			body = relocated
		}

		header := fmt.Sprintf("***Comment migrated from Redmine: %s#note-%d***\n*Originally created by %s at %s UTC.*",
			c.issueURL(issue.ID), i+1, authorOrPlaceholder(author), formatSourceTime(event.CreatedOn))

		comments = append(comments, models.Comment{
			Body:      strings.TrimRight(header+"\n\n"+body, "\n"),
			CreatedAt: event.CreatedOn.UTC(),
		})
	}

	return comments, nil
}

func (c *CommentRenderer) journalBody(ctx context.Context, issue *models.SourceIssue, journal *models.Journal) string {
	parts := make([]string, 0, 2)
	if notes := strings.TrimSpace(journal.Notes); notes != "" {
		parts = append(parts, notes)
	}
	if table := c.changelog.Format(ctx, issue, journal.Changes); table != "" {
		parts = append(parts, table)
	}
	return strings.Join(parts, "\n\n")
}

func authorOrPlaceholder(author string) string {
	if strings.TrimSpace(author) == "" {
		return unknownValue
	}
	return author
}

func formatSourceTime(t time.Time) string {
	return t.UTC().Format(sourceTimeLayout)
}
