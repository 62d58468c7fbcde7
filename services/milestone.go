package services

import (
	"context"
	"fmt"
	"time"

	"redminetogithub/models"
	"redminetogithub/utils"
)

// MilestoneClient は移行先のマイルストーン操作です
type MilestoneClient interface {
	ListMilestones(ctx context.Context) ([]models.Milestone, error)
	CreateMilestone(ctx context.Context, title, state, description string, dueOn *time.Time) (models.Milestone, error)
	DeleteMilestone(ctx context.Context, number int) error
}

// LabelClient は移行先のラベル操作です
type LabelClient interface {
	ListLabels(ctx context.Context) ([]string, error)
	DeleteLabel(ctx context.Context, name string) error
}

// MilestoneSynchronizer は移行先のマイルストーンを移行元のバージョンで作り直します。
// 既に移行済みのイシューがマイルストーンを参照しているため、最初の移行時にのみ使用します
type MilestoneSynchronizer struct {
	client MilestoneClient
}

// NewMilestoneSynchronizer は新しいシンクロナイザを作成します
func NewMilestoneSynchronizer(client MilestoneClient) *MilestoneSynchronizer {
	return &MilestoneSynchronizer{client: client}
}

// Sync は既存のマイルストーンをすべて削除し、バージョンごとに作成します。
// 個別の削除・作成の失敗はログに記録して続行します
func (s *MilestoneSynchronizer) Sync(ctx context.Context, versions []models.Version) (int, error) {
	existing, err := s.client.ListMilestones(ctx)
	if err != nil {
		return 0, err
	}

	for _, m := range existing {
		if err := s.client.DeleteMilestone(ctx, m.Number); err != nil {
			utils.LogError("マイルストーン削除に失敗しました: %v", err)
		}
	}
	utils.LogInfo("既存のマイルストーンを削除しました: %d 件", len(existing))

	created := 0
	for _, v := range versions {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		_, err := s.client.CreateMilestone(ctx, v.Name, milestoneState(v.Status), v.Description, dueOn(v))
		if err != nil {
			utils.LogError("マイルストーン作成に失敗しました: %v", err)
			continue
		}
		created++
	}
	utils.LogInfo("マイルストーンを作成しました: %d/%d 件", created, len(versions))

	return created, nil
}

// milestoneState はRedmineのバージョン状態をマイルストーンの状態に変換します（lockedはopen扱い）
func milestoneState(status string) string {
	if status == "closed" {
		return "closed"
	}
	return "open"
}

// dueOn は期日をUTCの0時として返します
func dueOn(v models.Version) *time.Time {
	if v.DueDate == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02", v.DueDate, time.UTC)
	if err != nil {
		utils.LogWarn("バージョン %q の期日が不正です: %q", v.Name, v.DueDate)
		return nil
	}
	return &t
}

// ResetLabels は移行先の既存ラベルをすべて削除します。失敗はログに記録して続行します
func ResetLabels(ctx context.Context, client LabelClient) error {
	labels, err := client.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("ラベル一覧取得エラー: %w", err)
	}

	for _, name := range labels {
		if err := client.DeleteLabel(ctx, name); err != nil {
			utils.LogError("ラベル削除に失敗しました: %v", err)
		}
	}
	utils.LogInfo("既存のラベルを削除しました: %d 件", len(labels))
	return nil
}
