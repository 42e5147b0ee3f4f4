package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/pollup/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	SessionSecret     string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// サービス
	PollService PollServiceInterface
	VoteService VoteServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → (Session → RateLimit)
//
// 閲覧系のルート（一覧・取得・選択肢）は認証不要。
// 書き込み系のルート（作成・投票）はセッション認証とレート制限を必須とする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	pollHandler := NewPollHandler(deps.PollService)
	voteHandler := NewVoteHandler(deps.VoteService)

	// ヘルスチェック（DB疎通確認込み）
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// --- 認証不要のルート（閲覧系） ---
	r.Get("/api/polls", pollHandler.ListPolls)
	r.Get("/api/polls/options", pollHandler.ListOptions)
	r.Get("/api/poll/{name}", pollHandler.GetPoll)

	// --- 認証が必要なルート（書き込み系） ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.SessionSecret))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/polls", pollHandler.CreatePoll)

		// 投票には専用のレート制限を追加
		r.With(deps.RateLimiter.VoteMiddleware()).Patch("/api/poll/vote", voteHandler.CastVote)
	})

	return r
}
