// Package ingest はフィード取り込みのサービス層を提供する。
//
// ストア・スケジューラとHTTPハンドラーの間に位置し、コールドスタート時の
// 自動シード、クライアント向けの派生フィールド付与、統一レスポンス形式の
// 組み立てを担う。
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wihy/healthfeed/internal/model"
	"github.com/wihy/healthfeed/internal/scheduler"
	"github.com/wihy/healthfeed/internal/store"
)

// Poller はオンデマンドのポーリング実行インターフェース。
type Poller interface {
	// PollOnce は1ポーリングサイクルを実行する。
	// 実行中の場合はscheduler.ErrPollInProgressを返す。
	PollOnce(ctx context.Context) (*model.PollStats, error)
}

// FeedsResponse はフィード一覧のレスポンス。
type FeedsResponse struct {
	Success bool           `json:"success"`
	Feeds   []EnhancedFeed `json:"feeds"`
	Count   int            `json:"count"`
}

// ArticlesResponse は記事一覧のレスポンス。
// 記事が0件の場合のみDebugに診断情報が入る。
type ArticlesResponse struct {
	Success  bool              `json:"success"`
	Articles []EnhancedArticle `json:"articles"`
	Count    int               `json:"count"`
	Debug    *DebugInfo        `json:"debug,omitempty"`
}

// DebugInfo は記事が空の場合の診断情報。
type DebugInfo struct {
	Message     string                `json:"message"`
	Stats       []model.CategoryStats `json:"stats"`
	RecentFeeds []model.RecentFeed    `json:"recent_feeds"`
}

// CategoriesResponse はカテゴリ・国別集計のレスポンス。
type CategoriesResponse struct {
	Success    bool                    `json:"success"`
	Categories []model.CategorySummary `json:"categories"`
	Countries  []model.CategorySummary `json:"countries"`
}

// ActionResponse はトリガー系操作の統一レスポンス。
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SeedResponse はシード投入のレスポンス。
type SeedResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	FeedsAdded    int    `json:"feeds_added"`
	ExistingFeeds int    `json:"existing_feeds"`
}

// Controller はフィード取り込みのサービス層。
type Controller struct {
	store  store.FeedStore
	poller Poller
	logger *slog.Logger

	// initFn は最初の操作時に1回だけ実行される初期化関数（スキーマ確認、
	// スケジューラ起動など）。失敗した場合は次の操作で再試行される。
	initFn      func(context.Context) error
	initMu      sync.Mutex
	initialized bool

	// now はテストで固定するための時刻関数
	now func() time.Time
}

// NewController はControllerの新しいインスタンスを生成する。
func NewController(feedStore store.FeedStore, poller Poller, logger *slog.Logger) *Controller {
	return &Controller{
		store:  feedStore,
		poller: poller,
		logger: logger,
		now:    time.Now,
	}
}

// SetInitializer は最初の操作時に1回だけ実行する初期化関数を設定する。
// 成功後の操作では再実行されない。失敗した場合は次の操作で再試行される。
func (c *Controller) SetInitializer(fn func(context.Context) error) {
	c.initFn = fn
}

// ensureInitialized は初期化関数を成功するまで1回だけ実行する。
func (c *Controller) ensureInitialized(ctx context.Context) error {
	if c.initFn == nil {
		return nil
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.initFn(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// ListFeeds は条件に一致するフィードを派生フィールド付きで返す。
func (c *Controller) ListFeeds(ctx context.Context, filter store.FeedFilter) (*FeedsResponse, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	feeds, err := c.store.GetFeeds(ctx, filter)
	if err != nil {
		return nil, err
	}

	enhanced := make([]EnhancedFeed, 0, len(feeds))
	for _, feed := range feeds {
		enhanced = append(enhanced, enhanceFeed(feed, c.articleCount(feed)))
	}

	return &FeedsResponse{
		Success: true,
		Feeds:   enhanced,
		Count:   len(enhanced),
	}, nil
}

// articleCount は記事バッチの件数を安全に数える。パース不能な場合は0。
func (c *Controller) articleCount(feed *model.Feed) int {
	if len(feed.LatestArticles) == 0 {
		return 0
	}
	var batch []json.RawMessage
	if err := json.Unmarshal(feed.LatestArticles, &batch); err != nil {
		c.logger.Warn("記事バッチの件数取得に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return len(batch)
}

// ListArticles は条件に一致する記事を派生フィールド付きで返す。
// フィードが1件も登録されていない場合はカタログをシードして1巡ポーリングする。
// 記事が0件の場合は診断情報を添付する。
func (c *Controller) ListArticles(ctx context.Context, filter store.ArticleFilter) (*ArticlesResponse, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	count, err := c.store.FeedCount(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		c.logger.Info("フィード未登録のためカタログをシードします")
		if _, err := c.store.SeedCuratedFeeds(ctx); err != nil {
			return nil, err
		}
		if _, err := c.poller.PollOnce(ctx); err != nil && !errors.Is(err, scheduler.ErrPollInProgress) {
			return nil, err
		}
	}

	articles, err := c.store.GetArticles(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := c.now()
	enhanced := make([]EnhancedArticle, 0, len(articles))
	for _, article := range articles {
		enhanced = append(enhanced, enhanceArticle(article, now))
	}

	resp := &ArticlesResponse{
		Success:  true,
		Articles: enhanced,
		Count:    len(enhanced),
	}

	if len(enhanced) == 0 {
		stats, err := c.store.FeedStats(ctx)
		if err != nil {
			return nil, err
		}
		resp.Debug = &DebugInfo{
			Message:     "No articles available yet. Feeds may still be polling.",
			Stats:       stats.Stats,
			RecentFeeds: stats.Recent,
		}
	}

	return resp, nil
}

// Categories はカテゴリ別・国別のフィード集計を返す。
func (c *Controller) Categories(ctx context.Context) (*CategoriesResponse, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	categories, countries, err := c.store.GetCategoriesAndCountries(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []model.CategorySummary{}
	}
	if countries == nil {
		countries = []model.CategorySummary{}
	}

	return &CategoriesResponse{
		Success:    true,
		Categories: categories,
		Countries:  countries,
	}, nil
}

// TriggerPolling はポーリングサイクルを1回実行する。
// 既に実行中の場合もエラーにはせず、その旨のメッセージを返す。
func (c *Controller) TriggerPolling(ctx context.Context) (*ActionResponse, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	if _, err := c.poller.PollOnce(ctx); err != nil {
		if errors.Is(err, scheduler.ErrPollInProgress) {
			return &ActionResponse{Success: true, Message: "Polling already in progress"}, nil
		}
		return nil, err
	}
	return &ActionResponse{Success: true, Message: "Polling started"}, nil
}

// IngestArticles は記事の取り込みを1回実行する。
func (c *Controller) IngestArticles(ctx context.Context) (*ActionResponse, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	if _, err := c.poller.PollOnce(ctx); err != nil {
		if errors.Is(err, scheduler.ErrPollInProgress) {
			return &ActionResponse{Success: true, Message: "Article ingestion already in progress"}, nil
		}
		return nil, err
	}
	return &ActionResponse{Success: true, Message: "Article ingestion triggered"}, nil
}

// SeedFeeds はキュレーション済みカタログを投入し、1巡ポーリングする。
func (c *Controller) SeedFeeds(ctx context.Context) (*SeedResponse, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	result, err := c.store.SeedCuratedFeeds(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := c.poller.PollOnce(ctx); err != nil && !errors.Is(err, scheduler.ErrPollInProgress) {
		return nil, err
	}

	return &SeedResponse{
		Success:       true,
		Message:       "Curated feeds seeded",
		FeedsAdded:    result.FeedsAdded,
		ExistingFeeds: result.ExistingFeeds,
	}, nil
}
