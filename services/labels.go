package services

import (
	"context"
	"fmt"
	"strings"
)

// LabelSource は移行先の既存ラベルを取得します
type LabelSource interface {
	ListLabels(ctx context.Context) ([]string, error)
}

// LabelResolver はラベル名を移行先の既存ラベルの表記に揃えます。
// 既存ラベルの一覧は初回のみ取得します
type LabelResolver struct {
	source   LabelSource
	existing map[string]string
}

// NewLabelResolver は新しいリゾルバを作成します
func NewLabelResolver(source LabelSource) *LabelResolver {
	return &LabelResolver{source: source}
}

// Resolve は tracker を先頭に、values を既存ラベルの表記に揃えて返します。
// tracker の表記は変更しません。空の名前と重複（大文字小文字を区別しない）は除きます
func (r *LabelResolver) Resolve(ctx context.Context, tracker string, values []string) ([]string, error) {
	if r.existing == nil {
		labels, err := r.source.ListLabels(ctx)
		if err != nil {
			return nil, fmt.Errorf("ラベル一覧取得エラー: %w", err)
		}
		r.existing = make(map[string]string, len(labels))
		for _, label := range labels {
			r.existing[strings.ToLower(label)] = label
		}
	}

	result := make([]string, 0, len(values)+1)
	seen := make(map[string]bool, len(values)+1)
	if tracker = strings.TrimSpace(tracker); tracker != "" {
		result = append(result, tracker)
		seen[strings.ToLower(tracker)] = true
	}
	for _, name := range values {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		if existing, ok := r.existing[key]; ok {
			name = existing
		}
		result = append(result, name)
	}
	return result, nil
}

// Reset はキャッシュを破棄します（ラベル削除後に使用）
func (r *LabelResolver) Reset() {
	r.existing = nil
}
