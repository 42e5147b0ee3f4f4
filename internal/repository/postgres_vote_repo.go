package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/pollup/internal/model"
	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresVoteRepo はPostgreSQLを使用した投票記録リポジトリ。
type PostgresVoteRepo struct {
	db *sql.DB
}

// NewPostgresVoteRepo はPostgresVoteRepoを生成する。
func NewPostgresVoteRepo(db *sql.DB) *PostgresVoteRepo {
	return &PostgresVoteRepo{db: db}
}

// CastVote は1票を単一トランザクションで記録する。
//
// 投票行をFOR SHAREでロックしてopenを再確認することで、クローズワーカーの
// UPDATEとの直列化を行う。ロック中にクローズがコミットされることはなく、
// クローズ後にこのトランザクションが覗き見たstatusがopenのまま残ることもない。
// 二重投票は(poll_id, user_id)の一意制約で検出する。アプリ側の事前チェックは
// 競合下では不十分であり、最終的な防壁は制約側にある。
func (r *PostgresVoteRepo) CastVote(ctx context.Context, pollID, userID, optionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. 投票行をロックしてopenを再確認
	var status model.PollStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM polls WHERE id = $1 FOR SHARE`,
		pollID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return ErrPollClosed
	}
	if err != nil {
		return fmt.Errorf("投票状態の確認に失敗しました: %w", err)
	}
	if status != model.PollStatusOpen {
		return ErrPollClosed
	}

	// 2. eligibility行を挿入。一意制約違反は二重投票。
	_, err = tx.ExecContext(ctx,
		`INSERT INTO vote_eligibility (id, poll_id, user_id, option_id)
		 VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), pollID, userID, optionID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateVote
		}
		return fmt.Errorf("投票記録の作成に失敗しました: %w", err)
	}

	// 3. 集計行をインクリメント
	result, err := tx.ExecContext(ctx,
		`UPDATE vote_records SET vote_count = vote_count + 1
		 WHERE poll_id = $1 AND option_id = $2`,
		pollID, optionID,
	)
	if err != nil {
		return fmt.Errorf("得票数の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// eligibilityの挿入ごとロールバックされる
		return ErrVoteRecordNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CountEligibilityByPoll は指定投票のeligibility行数を返す。
func (r *PostgresVoteRepo) CountEligibilityByPoll(ctx context.Context, pollID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vote_eligibility WHERE poll_id = $1`,
		pollID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("投票記録数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ VoteRepository = (*PostgresVoteRepo)(nil)
