package api

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"redminetogithub/config"
)

// S3Storage は添付ファイルをS3互換ストレージに保存します
type S3Storage struct {
	config *config.Config
	client *s3.Client
}

// NewS3Storage は新しいS3ストレージクライアントを作成します。
// S3_ENDPOINT が指定された場合はパススタイルでアクセスします（MinIOなど）
func NewS3Storage(ctx context.Context, cfg *config.Config) (*S3Storage, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("AWS設定読み込みエラー: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Storage{config: cfg, client: client}, nil
}

// PutObject はオブジェクトを公開読み取り可能な状態でアップロードします。
// 同じキーへの再アップロードは上書きになります
func (s *S3Storage) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
		ACL:    types.ObjectCannedACLPublicRead,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("アップロード失敗 (%s): %w", key, err)
	}
	return nil
}

// PublicURL はキーに対応する公開URLを返します
func (s *S3Storage) PublicURL(key string) string {
	escaped := escapeKey(key)

	switch {
	case s.config.S3PublicURL != "":
		return s.config.S3PublicURL + "/" + escaped
	case s.config.S3Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.config.S3Endpoint, "/"), s.config.S3Bucket, escaped)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.config.S3Bucket, s.config.S3Region, escaped)
	}
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
