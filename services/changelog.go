package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"redminetogithub/api"
	"redminetogithub/models"
	"redminetogithub/utils"
)

const unknownValue = "Unknown"

// Lookup はRedmineのIDから表示名を解決します。
// 見つからない場合は api.ErrNotFound をラップしたエラーを返します
type Lookup interface {
	UserName(ctx context.Context, id int) (string, error)
	VersionName(ctx context.Context, id int) (string, error)
	StatusName(ctx context.Context, id int) (string, error)
	PriorityName(ctx context.Context, id int) (string, error)
	TrackerName(ctx context.Context, id int) (string, error)
	CustomFieldName(ctx context.Context, id int) (string, error)
}

type resolveFunc func(ctx context.Context, id int) (string, error)

// ChangelogFormatter はジャーナルのフィールド変更をMarkdownの表に変換します
type ChangelogFormatter struct {
	lookup Lookup
	fields map[string]fieldRef
}

type fieldRef struct {
	label   string
	resolve resolveFunc
}

// NewChangelogFormatter は新しいフォーマッタを作成します
func NewChangelogFormatter(lookup Lookup) *ChangelogFormatter {
	return &ChangelogFormatter{
		lookup: lookup,
		fields: map[string]fieldRef{
			"assigned_to_id":   {label: "Assignee", resolve: lookup.UserName},
			"fixed_version_id": {label: "Target version", resolve: lookup.VersionName},
			"priority_id":      {label: "Priority", resolve: lookup.PriorityName},
			"status_id":        {label: "Status", resolve: lookup.StatusName},
			"tracker_id":       {label: "Tracker", resolve: lookup.TrackerName},
		},
	}
}

// Format は変更一覧を表にします。変更がない場合は空文字を返します
func (f *ChangelogFormatter) Format(ctx context.Context, issue *models.SourceIssue, changes []models.Change) string {
	if len(changes) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("| Property | Old value | New value |\n")
	sb.WriteString("|---|---|---|\n")

	for _, change := range changes {
		property, oldValue, newValue := f.row(ctx, issue, change)
		fmt.Fprintf(&sb, "| %s | %s | %s |\n", escapeCell(property), escapeCell(oldValue), escapeCell(newValue))
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

func (f *ChangelogFormatter) row(ctx context.Context, issue *models.SourceIssue, change models.Change) (string, string, string) {
	switch change.Kind {
	case models.AttributeChange:
		if ref, ok := f.fields[change.Name]; ok {
			return ref.label, f.resolve(ctx, ref.resolve, change.Old), f.resolve(ctx, ref.resolve, change.New)
		}
		return humanize(change.Name), change.OldValue(), change.NewValue()

	case models.CustomFieldChange:
		return f.customFieldName(ctx, issue, change.Name), change.OldValue(), change.NewValue()

	case models.AttachmentChange:
		return "Attachment added", "", change.NewValue()

	case models.RelationChange:
		return "Relation " + strings.ToLower(humanize(change.Name)), relationRef(change.Old), relationRef(change.New)

	default:
		return strings.TrimSpace(change.Property + " " + change.Name), change.OldValue(), change.NewValue()
	}
}

// resolve はIDを表示名に変換します。解決できない場合は "Unknown" になります
func (f *ChangelogFormatter) resolve(ctx context.Context, fn resolveFunc, value *string) string {
	if value == nil || *value == "" {
		return ""
	}

	id, err := strconv.Atoi(*value)
	if err != nil {
		return unknownValue
	}

	name, err := fn(ctx, id)
	if err != nil {
		if !errors.Is(err, api.ErrNotFound) {
			utils.LogWarn("名前の解決に失敗しました (id=%d): %v", id, err)
		}
		return unknownValue
	}
	return name
}

func (f *ChangelogFormatter) customFieldName(ctx context.Context, issue *models.SourceIssue, name string) string {
	id, err := strconv.Atoi(name)
	if err != nil {
		return "Unknown custom field"
	}

	for _, cf := range issue.CustomFields {
		if cf.ID == id && cf.Name != "" {
			return cf.Name
		}
	}

	resolved, err := f.lookup.CustomFieldName(ctx, id)
	if err != nil {
		if !errors.Is(err, api.ErrNotFound) {
			utils.LogWarn("カスタムフィールド名の解決に失敗しました (id=%d): %v", id, err)
		}
		return "Unknown custom field"
	}
	return resolved
}

func relationRef(value *string) string {
	if value == nil || *value == "" {
		return ""
	}
	id, err := strconv.Atoi(*value)
	if err != nil {
		return *value
	}
	return SourceToken(id)
}

// humanize は "done_ratio" や "start-date" のようなフィールド名を "Done Ratio" の形式にします
func humanize(name string) string {
	name = strings.TrimSuffix(name, "_id")
	name = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
	return titleCase(strings.Join(strings.Fields(name), " "))
}

func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "<br>")
	return strings.ReplaceAll(s, "\n", "<br>")
}
