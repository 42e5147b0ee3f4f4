// Package model はドメインモデルを定義する。
package model

import "time"

// PollStatus は投票の受付状態を表す。
type PollStatus string

const (
	// PollStatusOpen は投票受付中の状態。
	PollStatusOpen PollStatus = "open"
	// PollStatusClosed は締め切り後の状態。closedは終端状態であり、openに戻ることはない。
	PollStatusClosed PollStatus = "closed"
)

// VotingMethod は集計方式を表す。現在は単純多数決のみ実装されている。
type VotingMethod int

const (
	// VotingMethodPlurality は単純多数決（最多得票の選択肢が勝者）。
	VotingMethodPlurality VotingMethod = 0
)

// Poll は投票を表す。
// statusの変更はクローズワーカーによるopen→closedの一方向遷移のみ。
type Poll struct {
	ID           string
	Title        string
	Status       PollStatus
	CloseDate    time.Time
	VotingMethod VotingMethod
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Option は選択肢を表す。
// 選択肢は表示名でグローバルに一意であり、複数の投票から参照で共有される。
type Option struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// VoteRecord は投票×選択肢ごとの得票集計行を表す。
// VoteCountは単調非減少であり、投票がopenの間のみインクリメントされる。
type VoteRecord struct {
	ID        string
	PollID    string
	OptionID  string
	VoteCount int
}

// VoteEligibility はユーザーがその投票に既に票を投じたことを示すマーカー行。
// (PollID, UserID)の組につき最大1行。この一意性が二重投票を防ぐ。
type VoteEligibility struct {
	ID        string
	PollID    string
	UserID    string
	OptionID  string
	CreatedAt time.Time
}

// OptionResult は投票結果表示用の選択肢と得票数の組。
type OptionResult struct {
	Name      string
	VoteCount int
}

// PollResult は集計済みの投票情報を表す。
// TotalVoteCountとWinnerはストアの単一の集約クエリで算出される。
type PollResult struct {
	Poll
	Options        []OptionResult
	TotalVoteCount int
	Winner         string
}
