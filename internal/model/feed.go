// Package model はドメインモデルを定義する。
package model

import "time"

// Feed は登録済みのRSS/Atomフィードソースを表す。
// 1フィード = 1行で、最新の記事バッチはLatestArticlesにJSONとして保持される。
type Feed struct {
	ID           string
	FeedURL      string
	URLHash      string
	Category     string
	CountryCode  string
	Title        string
	Description  string
	Link         string
	ImageURL     string
	ThumbnailURL string
	// ETag / LastModified は条件付きGET用に予約されたカラム。
	// 現行のポーリングでは送信していないが、スキーマ互換のため保持する。
	ETag         string
	LastModified string
	LastStatus   *int
	LastChecked  *time.Time
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastFetched  *time.Time
	FetchCount   int
	// LatestArticles は直近の成功パースで取得した記事バッチのJSON。
	// パース不能な場合は未設定として扱う（読み取り側で0件にdegradeする）。
	LatestArticles []byte
}

// FeedHealth はlast_statusから導出されるフィードの健全性バケット。
type FeedHealth string

const (
	// FeedHealthHealthy は2xxステータス。
	FeedHealthHealthy FeedHealth = "healthy"
	// FeedHealthWarning は3xx〜4xxステータス。
	FeedHealthWarning FeedHealth = "warning"
	// FeedHealthError は5xxステータス。
	FeedHealthError FeedHealth = "error"
	// FeedHealthUnknown はステータス未記録（まだ一度もポーリングされていない）。
	FeedHealthUnknown FeedHealth = "unknown"
)

// DeriveFeedHealth はHTTPステータスコードを健全性バケットに分類する。
func DeriveFeedHealth(status *int) FeedHealth {
	if status == nil || *status == 0 {
		return FeedHealthUnknown
	}
	switch {
	case *status >= 200 && *status < 300:
		return FeedHealthHealthy
	case *status >= 300 && *status < 500:
		return FeedHealthWarning
	default:
		return FeedHealthError
	}
}

// CategorySummary はカテゴリまたは国コードごとのフィード集計。
type CategorySummary struct {
	Name            string `json:"name"`
	FeedCount       int    `json:"feed_count"`
	ActiveFeedCount int    `json:"active_feed_count"`
}

// CategoryStats はカテゴリ別のフィード統計。空レスポンス時の診断情報に使う。
type CategoryStats struct {
	Category          string `json:"category"`
	TotalFeeds        int    `json:"total_feeds"`
	ActiveFeeds       int    `json:"active_feeds"`
	FeedsWithArticles int    `json:"feeds_with_articles"`
}

// RecentFeed は直近にチェックされたフィードの概要。診断情報に使う。
type RecentFeed struct {
	FeedID      string     `json:"feed_id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	LastChecked *time.Time `json:"last_checked"`
	LastStatus  *int       `json:"last_status"`
	FetchCount  int        `json:"fetch_count"`
}

// FeedStats はフィード統計のまとまり。
type FeedStats struct {
	Stats  []CategoryStats `json:"stats"`
	Recent []RecentFeed    `json:"recent"`
}
