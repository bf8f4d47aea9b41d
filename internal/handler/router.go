package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/libman/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBがこれを満たす。
type HealthChecker interface {
	Ping() error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	HTTPMetrics       middleware.HTTPMetricsRecorder

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ドメインサービス
	AuthService    AuthServiceInterface
	CatalogService CatalogServiceInterface
	LendingService LendingServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics
//	→（認証ルート）AuthRateLimit
//	→（保護ルート）JWT認証 → GeneralRateLimit →（管理者ルート）RequireAdmin
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}

	authHandler := NewAuthHandler(deps.AuthService)
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	lendingHandler := NewLendingHandler(deps.LendingService)

	// --- 認証不要のルート ---

	// 登録・ログイン（送信元IP単位のレート制限を適用）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// 運用エンドポイント
	r.Get("/health", newHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: JWT認証 → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 蔵書検索（全ロール）
		r.Get("/books/search", catalogHandler.SearchBooks)

		// 利用者向け貸出操作・照会
		r.Route("/student", func(r chi.Router) {
			r.Get("/issued", lendingHandler.ListOutstanding)
			r.Get("/history", lendingHandler.ListHistory)
			r.Post("/issue/{book_id}", lendingHandler.IssueBook)
			r.Post("/return/{book_id}", lendingHandler.ReturnBook)
		})

		// 管理者向け蔵書管理・レポート
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NewRequireAdminMiddleware())

			r.Post("/book", catalogHandler.AddBook)
			r.Get("/books", catalogHandler.ListBooks)
			r.Delete("/book/{id}", catalogHandler.DeleteBook)
			r.Patch("/book/{id}/reduce", catalogHandler.ReduceCopies)

			r.Get("/issued", lendingHandler.ListCurrentlyIssued)
			r.Get("/history", lendingHandler.ListAllHistory)
		})
	})

	return r
}

// newHealthHandler はDB接続を確認するヘルスチェックハンドラーを返す。
func newHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.Ping(); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
