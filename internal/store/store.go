// Package store はフィードと記事バッチの永続化層を提供する。
//
// 1フィード = 1行のモデルで、最新の記事バッチはlatest_articlesカラムに
// JSONBとして保持される。記事は個別の行を持たず、バッチ全体が
// ポーリングのたびに置き換えられる。
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/wihy/healthfeed/internal/model"
)

const (
	// defaultFeedLimit / maxFeedLimit はフィード一覧のデフォルト件数と上限。
	defaultFeedLimit = 100
	maxFeedLimit     = 1000

	// defaultArticleLimit / maxArticleLimit は記事一覧のデフォルト件数と上限。
	defaultArticleLimit = 50
	maxArticleLimit     = 500
)

// FeedFilter はフィード一覧の絞り込み条件。
type FeedFilter struct {
	Limit      int
	Category   string
	Country    string
	OnlyActive bool
}

// ArticleFilter は記事一覧の絞り込み条件。
type ArticleFilter struct {
	Limit    int
	Category string
	Country  string
	FeedID   string
	// Flat がtrueの場合はDB側でJSONバッチを展開して射影する。
	// falseの場合はフィード行を読み出してアプリ側でマージ・ソートする。
	Flat bool
}

// FeedUpdate は成功パース後のフィード更新ペイロード。
// メタデータフィールドは空の場合既存値が維持される（部分更新）。
type FeedUpdate struct {
	Articles        []model.Article
	FeedTitle       string
	FeedDescription string
	FeedLink        string
	FeedImage       string
	FeedThumbnail   string
	ETag            string
	LastModified    string
	Status          int
}

// FeedStore はフィード永続化のインターフェースを定義する。
type FeedStore interface {
	// GetFeeds は条件に一致するフィードを取得する。
	GetFeeds(ctx context.Context, filter FeedFilter) ([]*model.Feed, error)

	// GetArticles は条件に一致する記事を取得する。
	GetArticles(ctx context.Context, filter ArticleFilter) ([]model.StoredArticle, error)

	// GetCategoriesAndCountries はカテゴリ別・国別のフィード集計を返す。
	GetCategoriesAndCountries(ctx context.Context) (categories, countries []model.CategorySummary, err error)

	// UpdateFeedWithArticles は記事バッチとフィードメタデータを更新する。
	// 「フィードが存在しない」「ID不正」は想定内の結果としてUpdateOutcomeで返し、
	// errorはインフラ障害のみを表す。
	UpdateFeedWithArticles(ctx context.Context, feedID string, update FeedUpdate) (model.UpdateOutcome, error)

	// MarkFeedChecked はチェック日時とステータスのみを記録する（一時的な失敗時）。
	MarkFeedChecked(ctx context.Context, feedID string, status int) error

	// DeactivateFeed はフィードを無効化する（恒久的な失敗時）。
	DeactivateFeed(ctx context.Context, feedID string, status int) error

	// ListActiveForPolling は有効なフィードを古い順（未チェック優先）で返す。
	ListActiveForPolling(ctx context.Context) ([]*model.Feed, error)

	// FeedCount は登録フィードの総数を返す。
	FeedCount(ctx context.Context) (int, error)

	// FeedStats はカテゴリ別統計と直近チェックされたフィードの概要を返す。
	FeedStats(ctx context.Context) (*model.FeedStats, error)

	// SeedCuratedFeeds はキュレーション済みカタログを冪等に投入する。
	SeedCuratedFeeds(ctx context.Context) (model.SeedResult, error)
}

// clampFeedLimit はフィード一覧の件数をデフォルト値と上限に収める。
func clampFeedLimit(limit int) int {
	if limit <= 0 {
		return defaultFeedLimit
	}
	if limit > maxFeedLimit {
		return maxFeedLimit
	}
	return limit
}

// clampArticleLimit は記事一覧の件数をデフォルト値と上限に収める。
func clampArticleLimit(limit int) int {
	if limit <= 0 {
		return defaultArticleLimit
	}
	if limit > maxArticleLimit {
		return maxArticleLimit
	}
	return limit
}

// CanonicalFeedURL はフィードURLを正規形に変換する。
// スキームとホストを小文字化し、フラグメントを除去する。
// パースできないURLは前後の空白のみ除去して返す。
func CanonicalFeedURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return trimmed
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	return parsed.String()
}

// HashFeedURL は正規化済みURLのSHA-256ハッシュを16進文字列で返す。
// url_hashカラムの一意インデックスのキーとして使用する。
func HashFeedURL(rawURL string) string {
	sum := sha256.Sum256([]byte(CanonicalFeedURL(rawURL)))
	return hex.EncodeToString(sum[:])
}
