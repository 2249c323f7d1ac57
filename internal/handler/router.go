package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/miniproj/internal/metrics"
	"github.com/hitoshi/miniproj/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	TokenVerifier     middleware.TokenVerifier

	// メトリクス。Gathererがnilの場合は/metricsを公開しない
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	// ヘルスチェック
	Store StoreStatus

	// 認証
	LoginService LoginServiceInterface

	// プロジェクト
	ProjectService ProjectServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Logging → HTTPStatus → Recovery → SecurityHeaders → CORS → Token
//
// /health と /metrics と /login はTokenミドルウェアの外に配置する。
// 期限切れのトークンを持つクライアントも再ログインできる。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.NewHTTPStatusMiddleware(collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- 認証不要のルート ---
	r.Get("/health", NewHealthHandler(deps.Store, nil))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	loginHandler := NewLoginHandler(deps.LoginService)
	r.Post("/login", loginHandler.Login)

	projectHandler := NewProjectHandler(deps.ProjectService)

	// --- トークンを解釈するルート ---
	// Authorizationヘッダーは任意。指定された場合のみ検証する
	r.Group(func(r chi.Router) {
		if deps.TokenVerifier != nil {
			r.Use(middleware.NewTokenMiddleware(deps.TokenVerifier))
		}

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", projectHandler.CreateProject)
			r.Post("/query", projectHandler.QueryProjects)
			r.Post("/update", projectHandler.UpdateProject)
			r.Post("/delete", projectHandler.DeleteProject)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"code":    "ROUTE_NOT_FOUND",
			"message": "指定されたエンドポイントは存在しません。",
		})
	})

	return r
}
