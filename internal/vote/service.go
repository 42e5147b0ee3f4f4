// Package vote は投票受付のドメインロジックを提供する。
// 1ユーザー1票の保証と締め切り済み投票の拒否を担う。
package vote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/pollup/internal/model"
	"github.com/hitoshi/pollup/internal/repository"
)

// Metrics は投票受付のメトリクス記録インターフェース。
type Metrics interface {
	RecordVoteAccepted()
	RecordVoteRejected(reason string)
	RecordVoteLatency(duration time.Duration)
}

// Service は投票受付のサービス層。
type Service struct {
	pollRepo   repository.PollRepository
	optionRepo repository.OptionRepository
	voteRepo   repository.VoteRepository
	metrics    Metrics
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	pollRepo repository.PollRepository,
	optionRepo repository.OptionRepository,
	voteRepo repository.VoteRepository,
	metrics Metrics,
) *Service {
	return &Service{
		pollRepo:   pollRepo,
		optionRepo: optionRepo,
		voteRepo:   voteRepo,
		metrics:    metrics,
	}
}

// CastVote はuserIDの1票をpollTitleの投票のoptionNameに記録する。
//
// 事前チェック（投票の存在・状態、選択肢の所属）の後、記録本体は
// リポジトリの単一トランザクションに委ねる。事前チェックは競合下では
// 追い越される可能性があるため、最終判定はトランザクション内の再確認と
// (poll, user)一意制約が行う。ここでの結果は常にどちらかに倒れ、
// 部分状態は残らない。
func (s *Service) CastVote(ctx context.Context, userID, pollTitle, optionName string) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordVoteLatency(time.Since(start))
	}()

	if pollTitle == "" {
		s.metrics.RecordVoteRejected("validation")
		return model.NewValidationError("poll_title")
	}
	if optionName == "" {
		s.metrics.RecordVoteRejected("validation")
		return model.NewValidationError("option")
	}

	poll, err := s.pollRepo.FindByTitle(ctx, pollTitle)
	if err != nil {
		return fmt.Errorf("投票の検索に失敗しました: %w", err)
	}
	if poll == nil {
		s.metrics.RecordVoteRejected("poll_not_found")
		return model.NewPollNotFoundError(pollTitle)
	}
	if poll.Status != model.PollStatusOpen {
		s.metrics.RecordVoteRejected("poll_closed")
		return model.NewPollClosedError(pollTitle)
	}

	option, err := s.optionRepo.FindByPollAndName(ctx, poll.ID, optionName)
	if err != nil {
		return fmt.Errorf("選択肢の検索に失敗しました: %w", err)
	}
	if option == nil {
		s.metrics.RecordVoteRejected("option_not_found")
		return model.NewOptionNotFoundError(optionName)
	}

	if err := s.voteRepo.CastVote(ctx, poll.ID, userID, option.ID); err != nil {
		switch {
		case errors.Is(err, repository.ErrPollClosed):
			// 事前チェック後、コミット前にクローズワーカーが先行した場合
			s.metrics.RecordVoteRejected("poll_closed")
			return model.NewPollClosedError(pollTitle)
		case errors.Is(err, repository.ErrDuplicateVote):
			s.metrics.RecordVoteRejected("duplicate")
			return model.NewDuplicateVoteError()
		case errors.Is(err, repository.ErrVoteRecordNotFound):
			s.metrics.RecordVoteRejected("option_not_found")
			return model.NewOptionNotFoundError(optionName)
		default:
			return fmt.Errorf("投票の記録に失敗しました: %w", err)
		}
	}

	s.metrics.RecordVoteAccepted()
	return nil
}
