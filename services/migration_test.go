package services

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"redminetogithub/config"
	"redminetogithub/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		RedmineProject:    "widgets",
		GitHubOwner:       "acme",
		GitHubRepo:        "widgets",
		IssueStatus:       "all",
		S3Prefix:          "redmine",
		UploadAttachments: true,
		LedgerPath:        filepath.Join(t.TempDir(), "migrated.txt"),
		PollStep:          time.Millisecond,
		PollMaxWait:       10 * time.Millisecond,
		Linkback:          true,
	}
}

// closedIssue42 はジャーナル1件（New→Resolved）と、その後の添付ファイル1件を持つクローズ済みイシューです
func closedIssue42() *models.SourceIssue {
	closedOn := at(60)
	return &models.SourceIssue{
		ID:        42,
		Subject:   "Crash on save",
		Tracker:   "Bug",
		Author:    "Alice Smith",
		CreatedOn: baseTime,
		ClosedOn:  &closedOn,
		Version:   "1.0",
		Journals: []models.Journal{{
			ID:        1,
			User:      "Alice Smith",
			CreatedOn: at(10),
			Changes:   []models.Change{models.ParseChange("attr", "status_id", strPtr("1"), strPtr("3"))},
		}},
		Attachments: []models.Attachment{{
			ID:          9,
			Filename:    "diagram.png",
			ContentType: "image/png",
			Author:      "Alice Smith",
			CreatedOn:   at(20),
		}},
	}
}

func newTestMigration(t *testing.T, cfg *config.Config, source *fakeSource, target *fakeTarget, storage *fakeStorage) (*MigrationService, *FileLedger) {
	t.Helper()
	ledger := NewFileLedger(cfg.LedgerPath)
	t.Cleanup(func() { ledger.Close() })

	m, err := NewMigrationService(cfg, source, newTestLookup(), target, storage, &callLogLedger{Ledger: ledger, calls: &target.calls})
	require.NoError(t, err)
	return m, ledger
}

func TestMigrateClosedIssue(t *testing.T) {
	cfg := testConfig(t)
	source := newFakeSource(closedIssue42())
	source.versions = []models.Version{{Name: "1.0", Status: "closed"}}
	target := newFakeTarget()
	target.milestones = []models.Milestone{{Number: 1, Title: "legacy"}}
	storage := &fakeStorage{}

	m, ledger := newTestMigration(t, cfg, source, target, storage)
	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MigrationStats{Migrated: 1}, stats)

	// 初回の移行ではマイルストーンを作り直す
	require.Len(t, target.milestones, 1)
	assert.Equal(t, "1.0", target.milestones[0].Title)

	require.Len(t, target.imports, 1)
	payload := target.imports[0]
	assert.Equal(t, "Bug RM-42: Crash on save", payload.Issue.Title)
	require.NotNil(t, payload.Issue.Milestone)
	assert.Equal(t, target.milestones[0].Number, *payload.Issue.Milestone)

	require.Len(t, payload.Comments, 2)
	assert.Contains(t, payload.Comments[0].Body, "#note-1***")
	assert.Contains(t, payload.Comments[0].Body, "| Status | New | Resolved |")
	assert.Contains(t, payload.Comments[1].Body, "#note-2***")
	assert.Contains(t, payload.Comments[1].Body, "![diagram.png](https://files.example.com/redmine/42/9-diagram.png)")
	assert.Equal(t, []string{"redmine/42/9-diagram.png"}, storage.puts)

	// 作成後すぐにクローズし、全て成功した後に記録する
	assert.Equal(t, []string{
		"delete milestone 1",
		"create milestone 1.0",
		"import #1",
		"comment #1",
		"close #1",
		"record 42",
	}, target.calls)
	assert.True(t, target.closed[1])
	assert.Contains(t, target.comments[1][0], "Issue closed in Redmine at 2020-01-02 04:04:05 UTC")

	assert.Equal(t, []string{"This issue has been migrated to GitHub: https://github.com/acme/widgets/issues/1"}, source.notes[42])
	assert.True(t, ledger.Contains(42))
}

func TestRunTwiceIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	open := &models.SourceIssue{ID: 7, Subject: "open one", Tracker: "Feature", CreatedOn: baseTime}
	source := newFakeSource(closedIssue42(), open)
	target := newFakeTarget()

	m, _ := newTestMigration(t, cfg, source, target, &fakeStorage{})
	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Migrated)
	assert.False(t, target.closed[1], "open issue is not closed")

	// 新しいプロセスを想定し、同じ記録ファイルから再実行する
	again, _ := newTestMigration(t, cfg, source, target, &fakeStorage{})
	stats, err = again.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MigrationStats{Migrated: 0, Skipped: 2}, stats)
	assert.Len(t, target.imports, 2)
}

func TestMaxIssuesCountsNewlyMigrated(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxIssues = 1
	source := newFakeSource(
		&models.SourceIssue{ID: 1, Subject: "a", CreatedOn: baseTime},
		&models.SourceIssue{ID: 2, Subject: "b", CreatedOn: baseTime},
		&models.SourceIssue{ID: 3, Subject: "c", CreatedOn: baseTime},
	)
	target := newFakeTarget()

	m, ledger := newTestMigration(t, cfg, source, target, &fakeStorage{})
	require.NoError(t, ledger.Record(context.Background(), 1))

	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MigrationStats{Migrated: 1, Skipped: 1}, stats)
	require.Len(t, target.imports, 1)
	assert.Contains(t, target.imports[0].Issue.Title, "RM-2")
}

func TestImportFailureAbortsWithoutRecording(t *testing.T) {
	cfg := testConfig(t)
	source := newFakeSource(closedIssue42())
	target := newFakeTarget()

	ledger := NewFileLedger(cfg.LedgerPath)
	defer ledger.Close()
	failing := &failingImportTarget{fakeTarget: target}
	m, err := NewMigrationService(cfg, source, newTestLookup(), failing, &fakeStorage{}, ledger)
	require.NoError(t, err)

	_, err = m.Run(context.Background())
	require.ErrorIs(t, err, ErrImportFailed)
	assert.False(t, ledger.Contains(42))
	assert.Empty(t, source.notes)
}

type failingImportTarget struct {
	*fakeTarget
}

func (f *failingImportTarget) ImportStatus(_ context.Context, _ models.ImportJob) (models.ImportResult, error) {
	return models.ImportResult{Status: models.ImportFailed, Errors: "bad payload"}, nil
}

func TestDryRunWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	source := newFakeSource(closedIssue42())
	target := newFakeTarget()
	target.milestones = []models.Milestone{{Number: 5, Title: "1.0"}}
	storage := &fakeStorage{}

	m, ledger := newTestMigration(t, cfg, source, target, storage)
	var out bytes.Buffer
	m.SetOutput(&out)

	stats, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Migrated)

	assert.Empty(t, target.imports)
	assert.Empty(t, target.calls)
	assert.Empty(t, storage.puts)
	assert.Equal(t, 0, source.downloads)
	assert.Empty(t, source.notes)
	assert.Equal(t, 0, ledger.Len())

	var doc struct {
		SourceID int  `yaml:"source_id"`
		Closed   bool `yaml:"closed"`
		Payload  struct {
			Issue struct {
				Title     string   `yaml:"title"`
				Milestone int      `yaml:"milestone"`
				Labels    []string `yaml:"labels"`
			} `yaml:"issue"`
			Comments []struct {
				Body string `yaml:"body"`
			} `yaml:"comments"`
		} `yaml:"payload"`
	}
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, 42, doc.SourceID)
	assert.True(t, doc.Closed)
	assert.Equal(t, "Bug RM-42: Crash on save", doc.Payload.Issue.Title)
	assert.Equal(t, 5, doc.Payload.Issue.Milestone)
	assert.Equal(t, []string{"Bug"}, doc.Payload.Issue.Labels)
	assert.Len(t, doc.Payload.Comments, 2)
}

func TestRunCanceled(t *testing.T) {
	cfg := testConfig(t)
	source := newFakeSource(closedIssue42())
	target := newFakeTarget()

	m, ledger := newTestMigration(t, cfg, source, target, &fakeStorage{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, ledger.Len())
}
