package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"redminetogithub/config"
	"redminetogithub/models"
	"redminetogithub/telemetry"
	"redminetogithub/utils"
)

// SourceTracker は移行元（Redmine）の操作です
type SourceTracker interface {
	AttachmentSource
	IssueURL(issueID int) string
	ListIssueIDs(ctx context.Context, statusID string) ([]int, error)
	GetIssue(ctx context.Context, issueID int) (*models.SourceIssue, error)
	ListVersions(ctx context.Context) ([]models.Version, error)
	AddNote(ctx context.Context, issueID int, note string) error
}

// TargetTracker は移行先（GitHub）の操作です
type TargetTracker interface {
	ImportClient
	MilestoneClient
	LabelClient
	CreateComment(ctx context.Context, number int, body string) error
	CloseIssue(ctx context.Context, number int) error
	IssueHTMLURL(ctx context.Context, number int) (string, error)
}

// MigrationStats は1回の実行結果です
type MigrationStats struct {
	Migrated int
	Skipped  int
}

// MigrationService はRedmineからGitHubへのイシュー移行を処理します
type MigrationService struct {
	config *config.Config
	source SourceTracker
	target TargetTracker
	ledger Ledger

	renderer   *CommentRenderer
	builder    *PayloadBuilder
	labels     *LabelResolver
	importer   *ImportSubmitter
	milestones *MilestoneSynchronizer
	counters   *telemetry.Counters
	tracer     trace.Tracer

	// out はドライラン時のプレビュー出力先です
	out io.Writer
}

// NewMigrationService は新しい移行サービスを作成します
func NewMigrationService(cfg *config.Config, source SourceTracker, lookup Lookup, target TargetTracker, storage Storage, ledger Ledger) (*MigrationService, error) {
	counters, err := telemetry.NewCounters(telemetry.Meter(""))
	if err != nil {
		return nil, fmt.Errorf("メトリクス初期化エラー: %w", err)
	}

	if !cfg.DryRun && !cfg.UploadAttachments {
		utils.LogWarn("UPLOAD_ATTACHMENTS が無効です。添付ファイルのリンク先 (%s) に事前にアップロードしておく必要があります", storage.PublicURL(cfg.S3Prefix))
	}
	relocator := NewAttachmentRelocator(source, storage, cfg.S3Prefix, cfg.UploadsEnabled())
	labels := NewLabelResolver(target)

	m := &MigrationService{
		config:     cfg,
		source:     source,
		target:     target,
		ledger:     ledger,
		renderer:   NewCommentRenderer(source.IssueURL, NewChangelogFormatter(lookup), relocator),
		builder:    NewPayloadBuilder(cfg, source.IssueURL, target, labels),
		labels:     labels,
		importer:   NewImportSubmitter(target, cfg.PollStep, cfg.PollMaxWait, cfg.MaxResubmits),
		milestones: NewMilestoneSynchronizer(target),
		counters:   counters,
		tracer:     telemetry.Tracer(""),
		out:        os.Stdout,
	}
	m.importer.onResubmit = func() {
		m.counters.Resubmits.Add(context.Background(), 1)
	}
	return m, nil
}

// SetOutput はドライラン時のプレビュー出力先を変更します
func (m *MigrationService) SetOutput(w io.Writer) {
	m.out = w
}

// Run は移行処理全体を実行します。いずれかのイシューでエラーが発生した場合は中断します
func (m *MigrationService) Run(ctx context.Context) (MigrationStats, error) {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "移行処理全体")

	runID := uuid.NewString()
	ctx, span := m.tracer.Start(ctx, "migrate.run", trace.WithAttributes(
		attribute.String("rm2gh.run_id", runID),
		attribute.Bool("rm2gh.dry_run", m.config.DryRun),
	))
	defer span.End()

	var stats MigrationStats
	utils.LogInfo("移行を開始します (run=%s, project=%s, repo=%s/%s)",
		runID, m.config.RedmineProject, m.config.GitHubOwner, m.config.GitHubRepo)

	if err := m.ledger.Load(ctx); err != nil {
		return stats, err
	}
	utils.LogInfo("移行済みイシュー: %d 件", m.ledger.Len())

	// 移行済みのイシューがマイルストーンを参照しているため、初回のみ作り直す
	if m.ledger.Len() == 0 {
		if m.config.DryRun {
			utils.LogInfo("ドライランのためマイルストーンの同期をスキップします")
		} else if err := m.SyncMilestones(ctx); err != nil {
			return stats, err
		}
	}

	ids, err := m.source.ListIssueIDs(ctx, m.config.RedmineStatusID())
	if err != nil {
		return stats, err
	}
	utils.LogInfo("移行対象のイシュー: %d 件 (status=%s)", len(ids), m.config.IssueStatus)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if m.config.MaxIssues > 0 && stats.Migrated >= m.config.MaxIssues {
			utils.LogInfo("MAX_ISSUES (%d) に達したため終了します", m.config.MaxIssues)
			break
		}
		if m.ledger.Contains(id) {
			utils.LogDebug("イシュー %d は移行済みです", id)
			stats.Skipped++
			m.counters.Skipped.Add(ctx, 1)
			continue
		}

		if err := m.migrateIssue(ctx, id); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return stats, fmt.Errorf("イシュー %d の移行に失敗: %w", id, err)
		}
		stats.Migrated++
		m.counters.Migrated.Add(ctx, 1)
	}

	utils.LogInfo("移行処理が完了しました: 移行=%d, スキップ=%d", stats.Migrated, stats.Skipped)
	return stats, nil
}

// SyncMilestones はバージョンからマイルストーンを作り直します。
// RESET_LABELS が有効な場合は既存ラベルも削除します
func (m *MigrationService) SyncMilestones(ctx context.Context) error {
	versions, err := m.source.ListVersions(ctx)
	if err != nil {
		return err
	}
	if _, err := m.milestones.Sync(ctx, versions); err != nil {
		return fmt.Errorf("マイルストーン同期エラー: %w", err)
	}
	m.builder.ResetMilestones()

	if m.config.ResetLabels {
		if err := ResetLabels(ctx, m.target); err != nil {
			return err
		}
		m.labels.Reset()
	}
	return nil
}

// migrateIssue は1件のイシューを移行します。移行記録は全ての処理が成功した後に書き込みます
func (m *MigrationService) migrateIssue(ctx context.Context, issueID int) error {
	ctx, span := m.tracer.Start(ctx, "migrate.issue", trace.WithAttributes(attribute.Int("rm2gh.issue_id", issueID)))
	defer span.End()

	issue, err := m.source.GetIssue(ctx, issueID)
	if err != nil {
		return err
	}

	events := MergeComments(issue.Journals, issue.Attachments)
	comments, err := m.renderer.Render(ctx, issue, events)
	if err != nil {
		return err
	}

	payload, err := m.builder.Build(ctx, issue, comments)
	if err != nil {
		return err
	}

	if m.config.DryRun {
		return WritePreview(m.out, issue, payload)
	}

	number, err := m.importer.Import(ctx, payload)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("rm2gh.target_number", number))

	if issue.IsClosed() {
		note := fmt.Sprintf("*Issue closed in Redmine at %s UTC.*", formatSourceTime(*issue.ClosedOn))
		if err := m.target.CreateComment(ctx, number, note); err != nil {
			return err
		}
		if err := m.target.CloseIssue(ctx, number); err != nil {
			return err
		}
	}

	htmlURL, err := m.target.IssueHTMLURL(ctx, number)
	if err != nil {
		return err
	}

	if m.config.Linkback {
		note := fmt.Sprintf("This issue has been migrated to GitHub: %s", htmlURL)
		if err := m.source.AddNote(ctx, issueID, note); err != nil {
			return err
		}
	}

	if err := m.ledger.Record(ctx, issueID); err != nil {
		return err
	}

	utils.LogInfo("移行しました: %s -> %s", m.source.IssueURL(issueID), htmlURL)
	return nil
}
