package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/pollup/internal/model"
)

// PostgresOptionRepo はPostgreSQLを使用した選択肢リポジトリ。
type PostgresOptionRepo struct {
	db *sql.DB
}

// NewPostgresOptionRepo はPostgresOptionRepoを生成する。
func NewPostgresOptionRepo(db *sql.DB) *PostgresOptionRepo {
	return &PostgresOptionRepo{db: db}
}

// ListAll は作成されたすべての選択肢を名前順に返す。
func (r *PostgresOptionRepo) ListAll(ctx context.Context) ([]model.Option, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM options ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("選択肢一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var options []model.Option
	for rows.Next() {
		var opt model.Option
		if err := rows.Scan(&opt.ID, &opt.Name, &opt.CreatedAt); err != nil {
			return nil, fmt.Errorf("選択肢行の読み取りに失敗しました: %w", err)
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("選択肢一覧の走査に失敗しました: %w", err)
	}

	return options, nil
}

// FindByPollAndName は指定投票の選択肢集合から表示名完全一致で選択肢を検索する。
// 集計行の存在で投票への所属を判定する。見つからない場合はnilを返す。
func (r *PostgresOptionRepo) FindByPollAndName(ctx context.Context, pollID, name string) (*model.Option, error) {
	opt := &model.Option{}
	err := r.db.QueryRowContext(ctx,
		`SELECT o.id, o.name, o.created_at
		 FROM options o
		 JOIN vote_records vr ON vr.option_id = o.id
		 WHERE vr.poll_id = $1 AND o.name = $2`,
		pollID, name,
	).Scan(&opt.ID, &opt.Name, &opt.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("選択肢の検索に失敗しました: %w", err)
	}

	return opt, nil
}

// compile-time interface check
var _ OptionRepository = (*PostgresOptionRepo)(nil)
