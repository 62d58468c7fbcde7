package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const lookupCacheSize = 1024

// RedmineLookup はID→表示名の解決を行い、結果をキャッシュします。
// 見つからない場合は ErrNotFound を返し、それ以外のエラーは一時的なものとして扱います
type RedmineLookup struct {
	client *RedmineClient

	users    *lru.Cache[int, string]
	versions *lru.Cache[int, string]

	statuses     map[int]string
	priorities   map[int]string
	trackers     map[int]string
	customFields map[int]string
}

// NewRedmineLookup は新しいルックアップを作成します
func NewRedmineLookup(client *RedmineClient) *RedmineLookup {
	users, _ := lru.New[int, string](lookupCacheSize)
	versions, _ := lru.New[int, string](lookupCacheSize)

	return &RedmineLookup{
		client:   client,
		users:    users,
		versions: versions,
	}
}

// UserName はユーザーIDから表示名を取得します
func (l *RedmineLookup) UserName(ctx context.Context, id int) (string, error) {
	if name, ok := l.users.Get(id); ok {
		return name, nil
	}

	var result struct {
		User struct {
			Login     string `json:"login"`
			Firstname string `json:"firstname"`
			Lastname  string `json:"lastname"`
		} `json:"user"`
	}
	if err := l.client.getJSON(ctx, fmt.Sprintf("/users/%d.json", id), nil, &result); err != nil {
		return "", err
	}

	name := strings.TrimSpace(result.User.Firstname + " " + result.User.Lastname)
	if name == "" {
		name = result.User.Login
	}
	l.users.Add(id, name)
	return name, nil
}

// VersionName はバージョンIDから名前を取得します
func (l *RedmineLookup) VersionName(ctx context.Context, id int) (string, error) {
	if name, ok := l.versions.Get(id); ok {
		return name, nil
	}

	var result struct {
		Version redmineVersion `json:"version"`
	}
	if err := l.client.getJSON(ctx, fmt.Sprintf("/versions/%d.json", id), nil, &result); err != nil {
		return "", err
	}

	l.versions.Add(id, result.Version.Name)
	return result.Version.Name, nil
}

// StatusName はステータスIDから名前を取得します
func (l *RedmineLookup) StatusName(ctx context.Context, id int) (string, error) {
	if err := l.loadRefs(ctx, &l.statuses, "/issue_statuses.json", "issue_statuses"); err != nil {
		return "", err
	}
	return lookupIn(l.statuses, "status", id)
}

// PriorityName は優先度IDから名前を取得します
func (l *RedmineLookup) PriorityName(ctx context.Context, id int) (string, error) {
	if err := l.loadRefs(ctx, &l.priorities, "/enumerations/issue_priorities.json", "issue_priorities"); err != nil {
		return "", err
	}
	return lookupIn(l.priorities, "priority", id)
}

// TrackerName はトラッカーIDから名前を取得します
func (l *RedmineLookup) TrackerName(ctx context.Context, id int) (string, error) {
	if err := l.loadRefs(ctx, &l.trackers, "/trackers.json", "trackers"); err != nil {
		return "", err
	}
	return lookupIn(l.trackers, "tracker", id)
}

// CustomFieldName はカスタムフィールドIDから名前を取得します（管理者権限が必要）
func (l *RedmineLookup) CustomFieldName(ctx context.Context, id int) (string, error) {
	if err := l.loadRefs(ctx, &l.customFields, "/custom_fields.json", "custom_fields"); err != nil {
		return "", err
	}
	return lookupIn(l.customFields, "custom field", id)
}

// loadRefs は一覧を初回のみ取得します。参照権限がない場合は空の一覧として扱います
func (l *RedmineLookup) loadRefs(ctx context.Context, dst *map[int]string, path, key string) error {
	if *dst != nil {
		return nil
	}

	var result map[string]json.RawMessage
	err := l.client.getJSON(ctx, path, nil, &result)
	if errors.Is(err, ErrNotFound) {
		*dst = map[int]string{}
		return nil
	}
	if err != nil {
		return err
	}

	var refs []redmineRef
	if raw, ok := result[key]; ok {
		if err := json.Unmarshal(raw, &refs); err != nil {
			return fmt.Errorf("レスポンス解析エラー: %w", err)
		}
	}
	*dst = refMap(refs)
	return nil
}

func refMap(refs []redmineRef) map[int]string {
	m := make(map[int]string, len(refs))
	for _, ref := range refs {
		m[ref.ID] = ref.Name
	}
	return m
}

func lookupIn(m map[int]string, kind string, id int) (string, error) {
	name, ok := m[id]
	if !ok {
		return "", fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return name, nil
}
