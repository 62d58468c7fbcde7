package services

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"redminetogithub/models"
	"redminetogithub/utils"
)

// Storage は添付ファイルの保存先です
type Storage interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	PublicURL(key string) string
}

// AttachmentSource は添付ファイルの本体を取得します
type AttachmentSource interface {
	DownloadAttachment(ctx context.Context, attachment models.Attachment) ([]byte, error)
}

// AttachmentRelocator は添付ファイルをストレージに移し、コメント用の参照を作成します
type AttachmentRelocator struct {
	source  AttachmentSource
	storage Storage
	prefix  string
	enabled bool
}

// NewAttachmentRelocator は新しいリロケータを作成します。
// enabled が false の場合はリンクのみ生成し、ダウンロードもアップロードも行いません
func NewAttachmentRelocator(source AttachmentSource, storage Storage, prefix string, enabled bool) *AttachmentRelocator {
	return &AttachmentRelocator{
		source:  source,
		storage: storage,
		prefix:  strings.Trim(prefix, "/"),
		enabled: enabled,
	}
}

// StorageKey は保存先のキーを返します。同じ入力に対して常に同じキーになります
func (r *AttachmentRelocator) StorageKey(issueID int, attachment models.Attachment) string {
	key := fmt.Sprintf("%d/%d-%s", issueID, attachment.ID, sanitizeFilename(attachment.Filename))
	if r.prefix == "" {
		return key
	}
	return r.prefix + "/" + key
}

// Relocate は添付ファイルをアップロードし、コメント本文を返します
func (r *AttachmentRelocator) Relocate(ctx context.Context, issueID int, attachment models.Attachment) (string, error) {
	key := r.StorageKey(issueID, attachment)

	if r.enabled {
		data, err := r.source.DownloadAttachment(ctx, attachment)
		if err != nil {
			return "", err
		}
		if err := r.storage.PutObject(ctx, key, data, attachment.ContentType); err != nil {
			return "", err
		}
		utils.LogDebug("添付ファイルをアップロードしました: %s (%d bytes)", key, len(data))
	}

	return renderAttachment(attachment, r.storage.PublicURL(key)), nil
}

func renderAttachment(attachment models.Attachment, url string) string {
	name := sanitizeFilename(attachment.Filename)

	var body string
	if strings.HasPrefix(attachment.ContentType, "image/") {
		body = fmt.Sprintf("![%s](%s)", name, url)
	} else {
		body = fmt.Sprintf("[%s](%s)", name, url)
	}

	if desc := strings.TrimSpace(attachment.Description); desc != "" {
		body += "\n\n" + desc
	}
	return body
}

// sanitizeFilename は空白文字を "_" に置き換えます
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, name)
}
