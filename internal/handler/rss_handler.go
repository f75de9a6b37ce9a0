// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/wihy/healthfeed/internal/ingest"
	"github.com/wihy/healthfeed/internal/store"
)

// RSSControllerInterface はRSSハンドラーが必要とするサービスインターフェース。
type RSSControllerInterface interface {
	ListFeeds(ctx context.Context, filter store.FeedFilter) (*ingest.FeedsResponse, error)
	ListArticles(ctx context.Context, filter store.ArticleFilter) (*ingest.ArticlesResponse, error)
	Categories(ctx context.Context) (*ingest.CategoriesResponse, error)
	TriggerPolling(ctx context.Context) (*ingest.ActionResponse, error)
	IngestArticles(ctx context.Context) (*ingest.ActionResponse, error)
	SeedFeeds(ctx context.Context) (*ingest.SeedResponse, error)
}

// RSSHandler はフィード・記事読み取りと取り込みトリガーのHTTPハンドラー。
type RSSHandler struct {
	controller RSSControllerInterface
	logger     *slog.Logger
}

// NewRSSHandler はRSSHandlerを生成する。
func NewRSSHandler(controller RSSControllerInterface, logger *slog.Logger) *RSSHandler {
	return &RSSHandler{
		controller: controller,
		logger:     logger,
	}
}

// failureResponse は失敗時の統一レスポンス。
type failureResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// GetFeeds はフィード一覧を返す。
// GET /api/rss/feeds?limit=&category=&country=&only_active=
func (h *RSSHandler) GetFeeds(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := store.FeedFilter{
		Limit:    parseIntParam(query.Get("limit")),
		Category: query.Get("category"),
		Country:  query.Get("country"),
		// only_active=false が明示された場合のみ無効フィードも含める
		OnlyActive: query.Get("only_active") != "false",
	}

	resp, err := h.controller.ListFeeds(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, "フィード一覧の取得に失敗しました", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetArticles は記事一覧を返す。
// GET /api/rss/articles?limit=&category=&country=&feed_id=&flat=
func (h *RSSHandler) GetArticles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := store.ArticleFilter{
		Limit:    parseIntParam(query.Get("limit")),
		Category: query.Get("category"),
		Country:  query.Get("country"),
		FeedID:   query.Get("feed_id"),
		Flat:     query.Get("flat") == "true",
	}

	resp, err := h.controller.ListArticles(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, "記事一覧の取得に失敗しました", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetCategories はカテゴリ・国別の集計を返す。
// GET /api/rss/categories
func (h *RSSHandler) GetCategories(w http.ResponseWriter, r *http.Request) {
	resp, err := h.controller.Categories(r.Context())
	if err != nil {
		h.writeError(w, r, "カテゴリ集計の取得に失敗しました", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// PostFetch はポーリングサイクルを1回実行する。
// POST /api/rss/fetch
func (h *RSSHandler) PostFetch(w http.ResponseWriter, r *http.Request) {
	resp, err := h.controller.TriggerPolling(r.Context())
	if err != nil {
		h.writeError(w, r, "ポーリングの実行に失敗しました", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// PostIngest は記事の取り込みを1回実行する。
// POST /api/rss/ingest
func (h *RSSHandler) PostIngest(w http.ResponseWriter, r *http.Request) {
	resp, err := h.controller.IngestArticles(r.Context())
	if err != nil {
		h.writeError(w, r, "記事取り込みの実行に失敗しました", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// PostSeed はキュレーション済みカタログを投入する。
// POST /api/rss/seed
func (h *RSSHandler) PostSeed(w http.ResponseWriter, r *http.Request) {
	resp, err := h.controller.SeedFeeds(r.Context())
	if err != nil {
		h.writeError(w, r, "フィードカタログの投入に失敗しました", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeError は失敗時の統一レスポンスを書き込み、エラーをログに記録する。
// 内部エラーの詳細はレスポンスに含めない。
func (h *RSSHandler) writeError(w http.ResponseWriter, r *http.Request, message string, err error) {
	h.logger.Error(message,
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeJSON(w, http.StatusInternalServerError, failureResponse{
		Success: false,
		Message: message,
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// parseIntParam はクエリパラメータを整数にパースする。不正な値は0を返す。
func parseIntParam(value string) int {
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
