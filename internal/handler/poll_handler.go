package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/pollup/internal/middleware"
	"github.com/hitoshi/pollup/internal/model"
)

// PollServiceInterface は投票ハンドラーが必要とするサービスインターフェース。
type PollServiceInterface interface {
	// CreatePoll は投票を作成し、締切ジョブをスケジュールする。
	CreatePoll(ctx context.Context, userID, title string, optionNames []string, closeAt time.Time) (*model.Poll, error)
	// ListOpenPolls は受付中の投票を集計付きで返す。
	ListOpenPolls(ctx context.Context) ([]model.PollResult, error)
	// GetPollByTitle はタイトル完全一致の投票を集計付きで返す。
	GetPollByTitle(ctx context.Context, title string) (*model.PollResult, error)
	// ListAllOptionNames は作成されたすべての選択肢を返す。
	ListAllOptionNames(ctx context.Context) ([]model.Option, error)
}

// PollHandler は投票管理のHTTPハンドラー。
type PollHandler struct {
	service PollServiceInterface
}

// NewPollHandler はPollHandlerを生成する。
func NewPollHandler(service PollServiceInterface) *PollHandler {
	return &PollHandler{service: service}
}

// createPollRequest は投票作成リクエストのボディ。
// close_dateはUNIXタイムスタンプ（秒）。
type createPollRequest struct {
	Title     string   `json:"title"`
	Options   []string `json:"options"`
	CloseDate int64    `json:"close_date"`
}

// optionJSON は選択肢と得票数のレスポンス表現。
type optionJSON struct {
	Name      string `json:"name"`
	VoteCount int    `json:"vote_count"`
}

// pollJSON は集計付き投票のレスポンス表現。
type pollJSON struct {
	Title          string       `json:"title"`
	Options        []optionJSON `json:"options"`
	CloseDate      time.Time    `json:"close_date"`
	Status         string       `json:"status"`
	VotingMethod   int          `json:"voting_method"`
	TotalVoteCount int          `json:"total_vote_count"`
	Winner         string       `json:"winner"`
}

// pollsResponse は投票一覧のレスポンス。
type pollsResponse struct {
	Polls []pollJSON `json:"Polls"`
}

// optionListItem は選択肢一覧のレスポンス要素。
type optionListItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// toPollJSON はドメインの集計結果をレスポンス表現に変換する。
func toPollJSON(result *model.PollResult) pollJSON {
	options := make([]optionJSON, len(result.Options))
	for i, opt := range result.Options {
		options[i] = optionJSON{Name: opt.Name, VoteCount: opt.VoteCount}
	}
	return pollJSON{
		Title:          result.Title,
		Options:        options,
		CloseDate:      result.CloseDate,
		Status:         string(result.Status),
		VotingMethod:   int(result.VotingMethod),
		TotalVoteCount: result.TotalVoteCount,
		Winner:         result.Winner,
	}
}

// ListPolls は受付中の投票一覧を返す。
// GET /api/polls
func (h *PollHandler) ListPolls(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.ListOpenPolls(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	polls := make([]pollJSON, len(results))
	for i := range results {
		polls[i] = toPollJSON(&results[i])
	}
	writeJSON(w, http.StatusOK, pollsResponse{Polls: polls})
}

// CreatePoll は投票の作成を処理する。
// POST /api/polls
func (h *PollHandler) CreatePoll(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if req.CloseDate == 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("close_date"))
		return
	}

	closeAt := time.Unix(req.CloseDate, 0)
	if _, err := h.service.CreatePoll(r.Context(), userID, req.Title, req.Options, closeAt); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "投票を作成しました。"})
}

// ListOptions はすべての選択肢を返す。クライアントの補完用途。
// GET /api/polls/options
func (h *PollHandler) ListOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.service.ListAllOptionNames(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items := make([]optionListItem, len(options))
	for i, opt := range options {
		items[i] = optionListItem{ID: opt.ID, Name: opt.Name}
	}
	writeJSON(w, http.StatusOK, items)
}

// GetPoll はタイトル指定で投票を取得する。open/closedを問わない。
// GET /api/poll/{name}
func (h *PollHandler) GetPoll(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	result, err := h.service.GetPollByTitle(r.Context(), name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pollsResponse{Polls: []pollJSON{toPollJSON(result)}})
}
