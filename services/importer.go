package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"redminetogithub/api"
	"redminetogithub/models"
	"redminetogithub/utils"
)

var (
	// ErrImportFailed はインポートジョブが failed になったことを表します。移行全体を中断します
	ErrImportFailed = errors.New("インポートジョブが失敗しました")
	// ErrTooManyResubmits は再登録回数の上限に達したことを表します
	ErrTooManyResubmits = errors.New("インポートジョブの再登録回数が上限に達しました")

	errStillPending = errors.New("インポートジョブが処理中です")
)

// ImportClient は非同期インポートAPIです
type ImportClient interface {
	SubmitImport(ctx context.Context, payload *models.TargetIssuePayload) (models.ImportJob, error)
	ImportStatus(ctx context.Context, job models.ImportJob) (models.ImportResult, error)
}

// ImportSubmitter はペイロードを登録し、完了するまでポーリングします。
// 待ち時間の合計が上限に達しても処理中の場合は、ジョブを破棄して再登録します
type ImportSubmitter struct {
	client       ImportClient
	step         time.Duration
	maxWait      time.Duration
	maxResubmits int

	// timer はテストで差し替えます（nilの場合は実時間）
	timer backoff.Timer
	// onResubmit は再登録のたびに呼ばれます
	onResubmit func()
}

// NewImportSubmitter は新しいサブミッタを作成します。maxResubmits が0の場合は無制限です
func NewImportSubmitter(client ImportClient, step, maxWait time.Duration, maxResubmits int) *ImportSubmitter {
	return &ImportSubmitter{
		client:       client,
		step:         step,
		maxWait:      maxWait,
		maxResubmits: maxResubmits,
	}
}

// Import はインポートを実行し、作成されたイシュー番号を返します
func (s *ImportSubmitter) Import(ctx context.Context, payload *models.TargetIssuePayload) (int, error) {
	for attempt := 0; ; attempt++ {
		if s.maxResubmits > 0 && attempt > s.maxResubmits {
			return 0, fmt.Errorf("%w (%d 回)", ErrTooManyResubmits, s.maxResubmits)
		}

		job, err := s.client.SubmitImport(ctx, payload)
		if err != nil {
			return 0, err
		}
		utils.LogDebug("インポートジョブを登録しました: id=%d", job.ID)

		number, err := s.poll(ctx, job)
		if errors.Is(err, errStillPending) {
			utils.LogWarn("インポートジョブ %d が %s 以内に完了しませんでした。再登録します", job.ID, s.maxWait)
			if s.onResubmit != nil {
				s.onResubmit()
			}
			continue
		}
		return number, err
	}
}

// poll はジョブが終了状態になるか待ち時間の上限に達するまでポーリングします
func (s *ImportSubmitter) poll(ctx context.Context, job models.ImportJob) (int, error) {
	var number int

	operation := func() error {
		result, err := s.client.ImportStatus(ctx, job)
		if err != nil {
			return backoff.Permanent(err)
		}

		switch result.Status {
		case models.ImportImported:
			n, err := api.IssueNumberFromURL(result.IssueURL)
			if err != nil {
				return backoff.Permanent(err)
			}
			number = n
			return nil
		case models.ImportFailed:
			return backoff.Permanent(fmt.Errorf("%w (job %d): %s", ErrImportFailed, job.ID, result.Errors))
		default:
			return errStillPending
		}
	}

	notify := func(_ error, wait time.Duration) {
		utils.LogDebug("インポートジョブ %d は処理中です。%s 後に再確認します", job.ID, wait)
	}

	b := backoff.WithContext(newLinearBackOff(s.step, s.maxWait), ctx)
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, s.timer); err != nil {
		return 0, err
	}
	return number, nil
}

// linearBackOff は待ち時間を step, 2*step, 3*step... と増やし、
// 待ち時間の合計が max を超える場合は Stop を返します
type linearBackOff struct {
	step    time.Duration
	max     time.Duration
	attempt int
	elapsed time.Duration
}

func newLinearBackOff(step, max time.Duration) *linearBackOff {
	return &linearBackOff{step: step, max: max}
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	wait := time.Duration(b.attempt) * b.step
	if b.elapsed+wait > b.max {
		return backoff.Stop
	}
	b.elapsed += wait
	return wait
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
	b.elapsed = 0
}
