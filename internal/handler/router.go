package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wihy/healthfeed/internal/metrics"
	"github.com/wihy/healthfeed/internal/middleware"
)

// Pinger はヘルスチェックで疎通確認する依存を表す。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Controller        RSSControllerInterface
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	MetricsGatherer   prometheus.Gatherer
	DB                Pinger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging
//
// レート制限は/api配下のみに適用する。/healthと/metricsは
// 監視系からの高頻度アクセスを想定して制限の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	rssHandler := NewRSSHandler(deps.Controller, deps.Logger)

	// ヘルスチェック
	r.Get("/health", newHealthHandler(deps.DB))

	// Prometheusスクレイプ
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.Middleware())

		r.Route("/api/rss", func(r chi.Router) {
			// 読み取り
			r.Get("/feeds", rssHandler.GetFeeds)
			r.Get("/articles", rssHandler.GetArticles)
			r.Get("/categories", rssHandler.GetCategories)

			// 取り込みトリガー
			r.Post("/fetch", rssHandler.PostFetch)
			r.Post("/ingest", rssHandler.PostIngest)
			r.Post("/seed", rssHandler.PostSeed)
		})
	})

	return r
}

// newHealthHandler はDB疎通を含むヘルスチェックハンドラーを返す。
func newHealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
	}
}
