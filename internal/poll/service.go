// Package poll は投票の作成・取得・一覧のドメインロジックを提供する。
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/pollup/internal/model"
	"github.com/hitoshi/pollup/internal/repository"
)

// CloseScheduler は締切ジョブの登録インターフェース。
// worker/closeのSchedulerが実装する。サービスはスケジューラの実体を知らない。
type CloseScheduler interface {
	// ScheduleClose は指定時刻に投票をクローズするワンショットジョブを登録する。
	ScheduleClose(pollID string, closeAt time.Time)
}

// Metrics は投票作成のメトリクス記録インターフェース。
type Metrics interface {
	RecordPollCreated()
}

// Service は投票管理のサービス層。
type Service struct {
	pollRepo   repository.PollRepository
	optionRepo repository.OptionRepository
	scheduler  CloseScheduler
	metrics    Metrics
	now        func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	pollRepo repository.PollRepository,
	optionRepo repository.OptionRepository,
	scheduler CloseScheduler,
	metrics Metrics,
) *Service {
	return &Service{
		pollRepo:   pollRepo,
		optionRepo: optionRepo,
		scheduler:  scheduler,
		metrics:    metrics,
		now:        time.Now,
	}
}

// CreatePoll は投票と選択肢、ゼロ初期化された集計行を作成し、
// 締切時刻のクローズジョブをスケジュールする。
// タイトルまたは選択肢が空の場合、締切が過去の場合はバリデーションエラーを返す。
func (s *Service) CreatePoll(ctx context.Context, userID, title string, optionNames []string, closeAt time.Time) (*model.Poll, error) {
	if title == "" {
		return nil, model.NewValidationError("title")
	}
	if len(optionNames) == 0 {
		return nil, model.NewValidationError("options")
	}
	for _, name := range optionNames {
		if name == "" {
			return nil, model.NewValidationError("options")
		}
	}
	if !closeAt.After(s.now()) {
		return nil, model.NewInvalidCloseDateError()
	}

	now := s.now()
	poll := &model.Poll{
		ID:           uuid.NewString(),
		Title:        title,
		Status:       model.PollStatusOpen,
		CloseDate:    closeAt,
		VotingMethod: model.VotingMethodPlurality,
		CreatedBy:    userID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.pollRepo.CreateWithOptions(ctx, poll, optionNames); err != nil {
		return nil, fmt.Errorf("投票の作成に失敗しました: %w", err)
	}

	// 作成がコミットされてからクローズジョブを登録する
	s.scheduler.ScheduleClose(poll.ID, closeAt)
	s.metrics.RecordPollCreated()

	return poll, nil
}

// ListOpenPolls は受付中の投票を作成日時の新しい順に集計付きで返す。
func (s *Service) ListOpenPolls(ctx context.Context) ([]model.PollResult, error) {
	results, err := s.pollRepo.ListOpenResults(ctx)
	if err != nil {
		return nil, fmt.Errorf("投票一覧の取得に失敗しました: %w", err)
	}
	return results, nil
}

// GetPollByTitle はタイトル完全一致の投票を集計付きで返す。open/closedを問わない。
func (s *Service) GetPollByTitle(ctx context.Context, title string) (*model.PollResult, error) {
	result, err := s.pollRepo.ResultByTitle(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("投票の取得に失敗しました: %w", err)
	}
	if result == nil {
		return nil, model.NewPollNotFoundError(title)
	}
	return result, nil
}

// ListAllOptionNames は作成されたすべての選択肢を返す。クライアントの補完用途。
func (s *Service) ListAllOptionNames(ctx context.Context) ([]model.Option, error) {
	options, err := s.optionRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("選択肢一覧の取得に失敗しました: %w", err)
	}
	return options, nil
}
