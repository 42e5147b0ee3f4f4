// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, poll, vote, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodePollNotFound   = "POLL_NOT_FOUND"
	ErrCodePollClosed     = "POLL_CLOSED"
	ErrCodeOptionNotFound = "OPTION_NOT_FOUND"
	ErrCodeDuplicateVote  = "DUPLICATE_VOTE"
)

// NewValidationError は入力欠落・空値のエラーを生成する。
// fieldには問題のあったフィールド名を指定する。
func NewValidationError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s の値が空です。", field),
		Category: "validation",
		Action:   "すべての項目を入力してから再度お試しください。",
	}
}

// NewInvalidCloseDateError は過去の締切日時に対するエラーを生成する。
func NewInvalidCloseDateError() *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "close_date が過去の日時です。",
		Category: "validation",
		Action:   "締切日時には未来の日時を指定してください。",
	}
}

// NewPollNotFoundError は投票未検出エラーを生成する。
func NewPollNotFoundError(title string) *APIError {
	return &APIError{
		Code:     ErrCodePollNotFound,
		Message:  fmt.Sprintf("指定された投票が見つかりません: %s", title),
		Category: "poll",
		Action:   "投票のタイトルを確認してください。",
	}
}

// NewPollClosedError は締め切り済み投票への操作エラーを生成する。
func NewPollClosedError(title string) *APIError {
	return &APIError{
		Code:     ErrCodePollClosed,
		Message:  fmt.Sprintf("この投票は締め切られました: %s", title),
		Category: "poll",
		Action:   "受付中の投票一覧から選び直してください。",
	}
}

// NewOptionNotFoundError は選択肢未検出エラーを生成する。
func NewOptionNotFoundError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeOptionNotFound,
		Message:  fmt.Sprintf("指定された選択肢はこの投票にありません: %s", name),
		Category: "vote",
		Action:   "投票の選択肢一覧を確認してください。",
	}
}

// NewDuplicateVoteError は二重投票エラーを生成する。
func NewDuplicateVoteError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateVote,
		Message:  "この投票には既に票を投じています。複数回の投票はできません。",
		Category: "vote",
		Action:   "ひとつの投票につき投票できるのは1回のみです。",
	}
}
