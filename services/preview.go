package services

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"redminetogithub/models"
)

// previewDocument はドライラン時に出力する1件分の内容です
type previewDocument struct {
	SourceID int                        `yaml:"source_id"`
	Closed   bool                       `yaml:"closed"`
	Payload  *models.TargetIssuePayload `yaml:"payload"`
}

// WritePreview はペイロードをYAMLドキュメントとして書き出します
func WritePreview(w io.Writer, issue *models.SourceIssue, payload *models.TargetIssuePayload) error {
	doc := previewDocument{
		SourceID: issue.ID,
		Closed:   issue.IsClosed(),
		Payload:  payload,
	}

	if _, err := io.WriteString(w, "---\n"); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("プレビュー出力エラー: %w", err)
	}
	return enc.Close()
}
