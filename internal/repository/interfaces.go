// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/pollup/internal/model"
)

// リポジトリ層のセンチネルエラー。サービス層でAPIエラーに変換する。
var (
	// ErrPollClosed は締め切り済みの投票への書き込みを示す。
	ErrPollClosed = errors.New("poll is closed")
	// ErrDuplicateVote は(poll, user)の一意制約違反を示す。
	ErrDuplicateVote = errors.New("duplicate vote")
	// ErrVoteRecordNotFound は投票×選択肢の集計行が存在しないことを示す。
	ErrVoteRecordNotFound = errors.New("vote record not found")
)

// PollRepository は投票データの永続化インターフェース。
type PollRepository interface {
	// CreateWithOptions は投票・選択肢・ゼロ初期化された集計行を同一トランザクションで作成する。
	// 選択肢は表示名の完全一致で既存行を再利用し、なければ新規作成する。
	CreateWithOptions(ctx context.Context, poll *model.Poll, optionNames []string) error

	// FindByTitle はタイトル完全一致で投票を検索する。open/closedを問わない。
	// 見つからない場合はnilを返す。
	FindByTitle(ctx context.Context, title string) (*model.Poll, error)

	// ListOpenResults はstatus=openの投票を作成日時の新しい順に、集計付きで返す。
	// 合計得票数と勝者はこのクエリを唯一の集計経路として算出される。
	ListOpenResults(ctx context.Context) ([]model.PollResult, error)

	// ResultByTitle はタイトル完全一致の投票を集計付きで返す。open/closedを問わない。
	// 見つからない場合はnilを返す。
	ResultByTitle(ctx context.Context, title string) (*model.PollResult, error)

	// ListDueForClose はclose_dateを過ぎてもまだopenのままの投票を返す。
	// クローズワーカーのスイープで使用する。
	ListDueForClose(ctx context.Context) ([]*model.Poll, error)

	// Close は投票をclosedに遷移させる。冪等であり、既にclosedの場合は
	// 何もせずfalseを返す。遷移が起きた場合のみtrueを返す。
	Close(ctx context.Context, pollID string) (bool, error)
}

// OptionRepository は選択肢データの永続化インターフェース。
type OptionRepository interface {
	// ListAll は作成されたすべての選択肢を名前順に返す。投票によるフィルタは行わない。
	ListAll(ctx context.Context) ([]model.Option, error)

	// FindByPollAndName は指定投票の選択肢集合から表示名完全一致で選択肢を検索する。
	// その投票に属さない選択肢は対象外。見つからない場合はnilを返す。
	FindByPollAndName(ctx context.Context, pollID, name string) (*model.Option, error)
}

// VoteRepository は投票記録の永続化インターフェース。
type VoteRepository interface {
	// CastVote は1票を記録する。単一トランザクションで以下を行う:
	// 投票行をロックしてopenを再確認し、eligibility行を挿入し、集計行をインクリメントする。
	// 途中で失敗した場合は全体がロールバックされ、部分状態は残らない。
	// 投票が締め切り済みの場合はErrPollClosed、既に投票済みの場合はErrDuplicateVote、
	// 集計行が存在しない場合はErrVoteRecordNotFoundを返す。
	CastVote(ctx context.Context, pollID, userID, optionID string) error

	// CountEligibilityByPoll は指定投票のeligibility行数を返す。
	// 集計行の合計との保存則検証に使用する。
	CountEligibilityByPoll(ctx context.Context, pollID string) (int, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名完全一致でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// 投票エンドポイントの呼び出し元識別に使用する。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}
