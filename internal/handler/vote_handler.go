package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/pollup/internal/middleware"
)

// VoteServiceInterface は投票受付ハンドラーが必要とするサービスインターフェース。
type VoteServiceInterface interface {
	// CastVote はuserIDの1票を指定投票の指定選択肢に記録する。
	CastVote(ctx context.Context, userID, pollTitle, optionName string) error
}

// VoteHandler は投票受付のHTTPハンドラー。
type VoteHandler struct {
	service VoteServiceInterface
}

// NewVoteHandler はVoteHandlerを生成する。
func NewVoteHandler(service VoteServiceInterface) *VoteHandler {
	return &VoteHandler{service: service}
}

// castVoteRequest は投票リクエストのボディ。
type castVoteRequest struct {
	PollTitle string `json:"poll_title"`
	Option    string `json:"option"`
}

// CastVote は1票の投票を処理する。投票者はセッションから識別する。
// PATCH /api/poll/vote
func (h *VoteHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := h.service.CastVote(r.Context(), userID, req.PollTitle, req.Option); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "投票ありがとうございました。"})
}
