// Package closer は投票の時限クローズ処理を提供する。
// 投票ごとのワンショットタイマー、期限超過分を拾うスイープ、
// ストア障害時のリトライ/バックオフ戦略を含む。
package closer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/pollup/internal/model"
)

// PollCloser はクローズ処理が必要とするストア操作のインターフェース。
// repository.PollRepositoryの部分集合として定義する。
type PollCloser interface {
	// ListDueForClose はclose_dateを過ぎてもまだopenのままの投票を返す。
	ListDueForClose(ctx context.Context) ([]*model.Poll, error)
	// Close は投票をclosedに遷移させる。冪等。遷移が起きた場合のみtrueを返す。
	Close(ctx context.Context, pollID string) (bool, error)
}

// Metrics はクローズ処理のメトリクス記録インターフェース。
type Metrics interface {
	RecordPollClosed()
	RecordCloseRetry()
}

// Scheduler は投票ごとのワンショットクローズタイマーと、
// 期限超過した投票を拾う定期スイープを管理する。
//
// タイマーはプロセス内にのみ存在するため、再起動で失われる。
// スイープが共有ストア越しに期限超過のopen投票を再発見することで、
// at-least-onceのクローズ配送を保証する。クローズ自体は冪等なUPDATEであり、
// タイマーとスイープの二重発火は無害。
type Scheduler struct {
	repo           PollCloser
	logger         *slog.Logger
	metrics        Metrics
	retry          RetryConfig
	maxConcurrency int

	mu     sync.Mutex
	timers map[string]*time.Timer

	// baseCtx はタイマー発火時のクローズ処理に使う。Startで設定される。
	baseCtx context.Context
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	repo PollCloser,
	logger *slog.Logger,
	metrics Metrics,
	retry RetryConfig,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		repo:           repo,
		logger:         logger,
		metrics:        metrics,
		retry:          retry,
		maxConcurrency: maxConcurrency,
		timers:         make(map[string]*time.Timer),
		baseCtx:        context.Background(),
	}
}

// ScheduleClose は指定時刻に投票をクローズするワンショットタイマーを登録する。
// closeAtが既に過去の場合は即座に発火する。登録済みのクローズの取り消しは
// 提供しない（投票の再オープンや締切変更は存在しない）。
func (s *Scheduler) ScheduleClose(pollID string, closeAt time.Time) {
	delay := time.Until(closeAt)
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 同一投票の再登録時は旧タイマーを止めてから差し替える
	if old, ok := s.timers[pollID]; ok {
		old.Stop()
	}
	s.timers[pollID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, pollID)
		ctx := s.baseCtx
		s.mu.Unlock()

		s.closeWithRetry(ctx, pollID)
	})

	s.logger.Info("クローズジョブを登録しました",
		slog.String("poll_id", pollID),
		slog.Time("close_at", closeAt),
	)
}

// Start は定期スイープでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("クローズスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行（前回稼働中に期限到来した投票を拾う）
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("クローズスイープの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			s.logger.Info("クローズスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("クローズスイープの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は期限超過したopen投票を1回取得し、並列でクローズを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	polls, err := s.repo.ListDueForClose(ctx)
	if err != nil {
		return err
	}

	if len(polls) == 0 {
		return nil
	}

	s.logger.Info("クローズスイープを開始します",
		slog.Int("poll_count", len(polls)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, poll := range polls {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(p *model.Poll) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			s.closeWithRetry(ctx, p.ID)
		}(poll)
	}

	wg.Wait()
	return nil
}

// Stop は登録済みのワンショットタイマーをすべて停止する。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
}

// closeWithRetry は投票のクローズを実行する。ストアに到達できない場合は
// 指数バックオフで再試行し、失敗を黙って破棄しない。
// 試行回数を使い切った場合もエラーログを残し、スイープに委ねる。
func (s *Scheduler) closeWithRetry(ctx context.Context, pollID string) {
	for attempt := 0; attempt < s.retry.MaxAttempts; attempt++ {
		closed, err := s.repo.Close(ctx, pollID)
		if err == nil {
			if closed {
				s.metrics.RecordPollClosed()
				s.logger.Info("投票をクローズしました",
					slog.String("poll_id", pollID),
				)
			}
			// closed=falseは既にクローズ済み。二重発火の無害な帰結。
			return
		}

		s.metrics.RecordCloseRetry()
		delay := s.retry.Backoff(attempt)
		s.logger.Warn("投票のクローズに失敗しました。再試行します",
			slog.String("poll_id", pollID),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}

	s.logger.Error("投票のクローズを断念しました。スイープによる回収を待ちます",
		slog.String("poll_id", pollID),
		slog.Int("attempts", s.retry.MaxAttempts),
	)
}
