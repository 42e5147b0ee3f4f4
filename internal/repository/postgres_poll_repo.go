package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/hitoshi/pollup/internal/model"
)

// PostgresPollRepo はPostgreSQLを使用した投票リポジトリ。
type PostgresPollRepo struct {
	db *sql.DB
}

// NewPostgresPollRepo はPostgresPollRepoを生成する。
func NewPostgresPollRepo(db *sql.DB) *PostgresPollRepo {
	return &PostgresPollRepo{db: db}
}

// CreateWithOptions は投票・選択肢・ゼロ初期化された集計行を同一トランザクションで作成する。
func (r *PostgresPollRepo) CreateWithOptions(ctx context.Context, poll *model.Poll, optionNames []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 投票を作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO polls (id, title, status, close_date, voting_method, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		poll.ID, poll.Title, poll.Status, poll.CloseDate, poll.VotingMethod,
		poll.CreatedBy, poll.CreatedAt, poll.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("投票の作成に失敗しました: %w", err)
	}

	for _, name := range optionNames {
		// 選択肢は表示名で共有される。既存行があれば再利用し、なければ作成する。
		_, err = tx.ExecContext(ctx,
			`INSERT INTO options (id, name) VALUES ($1, $2)
			 ON CONFLICT (name) DO NOTHING`,
			uuid.NewString(), name,
		)
		if err != nil {
			return fmt.Errorf("選択肢の作成に失敗しました: %w", err)
		}

		var optionID string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM options WHERE name = $1`,
			name,
		).Scan(&optionID)
		if err != nil {
			return fmt.Errorf("選択肢の取得に失敗しました: %w", err)
		}

		// ゼロ初期化された集計行
		_, err = tx.ExecContext(ctx,
			`INSERT INTO vote_records (id, poll_id, option_id, vote_count)
			 VALUES ($1, $2, $3, 0)`,
			uuid.NewString(), poll.ID, optionID,
		)
		if err != nil {
			return fmt.Errorf("集計行の作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByTitle はタイトル完全一致で投票を検索する。見つからない場合はnilを返す。
func (r *PostgresPollRepo) FindByTitle(ctx context.Context, title string) (*model.Poll, error) {
	poll := &model.Poll{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, status, close_date, voting_method, created_by, created_at, updated_at
		 FROM polls WHERE title = $1
		 ORDER BY created_at DESC LIMIT 1`,
		title,
	).Scan(&poll.ID, &poll.Title, &poll.Status, &poll.CloseDate, &poll.VotingMethod,
		&poll.CreatedBy, &poll.CreatedAt, &poll.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("投票の検索に失敗しました: %w", err)
	}

	return poll, nil
}

// resultQuery は投票と選択肢・得票数を結合して取得する集計クエリの共通部。
// 合計得票数と勝者の算出はこのクエリの結果を畳み込む単一の経路に限る。
const resultQuery = `
	SELECT p.id, p.title, p.status, p.close_date, p.voting_method,
	       p.created_by, p.created_at, p.updated_at,
	       o.name, vr.vote_count
	FROM polls p
	JOIN vote_records vr ON vr.poll_id = p.id
	JOIN options o ON o.id = vr.option_id`

// ListOpenResults はstatus=openの投票を作成日時の新しい順に、集計付きで返す。
func (r *PostgresPollRepo) ListOpenResults(ctx context.Context) ([]model.PollResult, error) {
	rows, err := r.db.QueryContext(ctx,
		resultQuery+`
		 WHERE p.status = 'open'
		 ORDER BY p.created_at DESC, p.id ASC, o.created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("投票一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

// ResultByTitle はタイトル完全一致の投票を集計付きで返す。見つからない場合はnilを返す。
func (r *PostgresPollRepo) ResultByTitle(ctx context.Context, title string) (*model.PollResult, error) {
	rows, err := r.db.QueryContext(ctx,
		resultQuery+`
		 WHERE p.title = $1
		 ORDER BY p.created_at DESC, p.id ASC, o.created_at ASC`,
		title,
	)
	if err != nil {
		return nil, fmt.Errorf("投票の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	results, err := scanResults(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// scanResults は集計クエリの行を投票ごとに畳み込み、合計得票数と勝者を算出する。
// 勝者は最大得票の選択肢。同数の場合は選択肢の作成順で先のものを採用する
// （実装定義のタイブレークであり、安定性は保証しない）。
func scanResults(rows *sql.Rows) ([]model.PollResult, error) {
	var results []model.PollResult
	index := map[string]int{}

	for rows.Next() {
		var p model.Poll
		var opt model.OptionResult
		if err := rows.Scan(&p.ID, &p.Title, &p.Status, &p.CloseDate, &p.VotingMethod,
			&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt,
			&opt.Name, &opt.VoteCount); err != nil {
			return nil, fmt.Errorf("集計行の読み取りに失敗しました: %w", err)
		}

		i, ok := index[p.ID]
		if !ok {
			results = append(results, model.PollResult{Poll: p})
			i = len(results) - 1
			index[p.ID] = i
		}

		pr := &results[i]
		pr.Options = append(pr.Options, opt)
		pr.TotalVoteCount += opt.VoteCount
		if pr.Winner == "" || opt.VoteCount > maxCount(pr) {
			pr.Winner = opt.Name
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("集計結果の走査に失敗しました: %w", err)
	}

	return results, nil
}

// maxCount は現在の勝者の得票数を返す。
func maxCount(pr *model.PollResult) int {
	for _, opt := range pr.Options {
		if opt.Name == pr.Winner {
			return opt.VoteCount
		}
	}
	return 0
}

// ListDueForClose はclose_dateを過ぎてもまだopenのままの投票を返す。
func (r *PostgresPollRepo) ListDueForClose(ctx context.Context) ([]*model.Poll, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, status, close_date, voting_method, created_by, created_at, updated_at
		 FROM polls
		 WHERE status = 'open' AND close_date <= NOW()
		 ORDER BY close_date ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("期限到来投票の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var polls []*model.Poll
	for rows.Next() {
		poll := &model.Poll{}
		if err := rows.Scan(&poll.ID, &poll.Title, &poll.Status, &poll.CloseDate, &poll.VotingMethod,
			&poll.CreatedBy, &poll.CreatedAt, &poll.UpdatedAt); err != nil {
			return nil, fmt.Errorf("投票行の読み取りに失敗しました: %w", err)
		}
		polls = append(polls, poll)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("期限到来投票の走査に失敗しました: %w", err)
	}

	return polls, nil
}

// Close は投票をclosedに遷移させる。冪等であり、遷移が起きた場合のみtrueを返す。
// status = 'open' 条件付きUPDATEのため、二重発火してもエラーにならない。
func (r *PostgresPollRepo) Close(ctx context.Context, pollID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE polls SET status = 'closed', updated_at = NOW()
		 WHERE id = $1 AND status = 'open'`,
		pollID,
	)
	if err != nil {
		return false, fmt.Errorf("投票のクローズに失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ PollRepository = (*PostgresPollRepo)(nil)
