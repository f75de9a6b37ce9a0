package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/wihy/healthfeed/internal/model"
)

// PostgresFeedStore はPostgreSQLを使用したフィードストア。
type PostgresFeedStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresFeedStore はPostgresFeedStoreを生成する。
func NewPostgresFeedStore(db *sql.DB, logger *slog.Logger) *PostgresFeedStore {
	return &PostgresFeedStore{db: db, logger: logger}
}

// feedColumns はフィード行の読み出しカラム。scanFeedと対応する。
const feedColumns = `id, feed_url, url_hash, category, country_code, feed_title,
	feed_description, feed_link, image_url, thumbnail_url, etag, last_modified,
	last_status, last_checked, is_active, created_at, updated_at, last_fetched,
	fetch_count, latest_articles`

// rowScanner はsql.Rowとsql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFeed は1行をmodel.Feedに読み出す。feedColumnsの並びと対応する。
func scanFeed(row rowScanner) (*model.Feed, error) {
	feed := &model.Feed{}
	var category, country, title, description, link, imageURL, thumbnailURL, etag, lastModified sql.NullString
	var lastStatus sql.NullInt64
	var lastChecked, lastFetched sql.NullTime
	var latestArticles []byte

	if err := row.Scan(
		&feed.ID, &feed.FeedURL, &feed.URLHash, &category, &country, &title,
		&description, &link, &imageURL, &thumbnailURL, &etag, &lastModified,
		&lastStatus, &lastChecked, &feed.IsActive, &feed.CreatedAt, &feed.UpdatedAt,
		&lastFetched, &feed.FetchCount, &latestArticles,
	); err != nil {
		return nil, err
	}

	feed.Category = nullStringValue(category)
	feed.CountryCode = nullStringValue(country)
	feed.Title = nullStringValue(title)
	feed.Description = nullStringValue(description)
	feed.Link = nullStringValue(link)
	feed.ImageURL = nullStringValue(imageURL)
	feed.ThumbnailURL = nullStringValue(thumbnailURL)
	feed.ETag = nullStringValue(etag)
	feed.LastModified = nullStringValue(lastModified)
	feed.LastStatus = nullIntValue(lastStatus)
	feed.LastChecked = nullTimeValue(lastChecked)
	feed.LastFetched = nullTimeValue(lastFetched)
	feed.LatestArticles = latestArticles

	return feed, nil
}

// GetFeeds は条件に一致するフィードを取得する。
// 直近チェック順（未チェックは末尾）、同着は作成順の新しい方を優先する。
func (s *PostgresFeedStore) GetFeeds(ctx context.Context, filter FeedFilter) ([]*model.Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feedColumns+`
		 FROM rss_feeds
		 WHERE ($2 = FALSE OR is_active = TRUE)
		   AND ($3::text IS NULL OR category = $3)
		   AND ($4::text IS NULL OR country_code = $4)
		 ORDER BY last_checked DESC NULLS LAST, created_at DESC
		 LIMIT $1`,
		clampFeedLimit(filter.Limit), filter.OnlyActive,
		nullString(filter.Category), nullString(filter.Country),
	)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("フィード行の読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィード一覧の走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// GetArticles は条件に一致する記事を取得する。
// フラットモードはDB側でJSONBバッチを展開し、デフォルトモードは
// フィード行を読み出してアプリ側でマージ・ソートする。
func (s *PostgresFeedStore) GetArticles(ctx context.Context, filter ArticleFilter) ([]model.StoredArticle, error) {
	limit := clampArticleLimit(filter.Limit)

	if filter.Flat {
		return s.getFlatArticles(ctx, filter, limit)
	}

	feeds, err := s.GetFeeds(ctx, FeedFilter{
		Category:   filter.Category,
		Country:    filter.Country,
		OnlyActive: true,
	})
	if err != nil {
		return nil, err
	}

	return s.mergeFeedArticles(feeds, limit), nil
}

// mergeFeedArticles は各フィードの記事バッチを結合し、公開日時の降順に並べる。
// パースできないバッチは警告ログを出して読み飛ばす（0件にdegrade）。
func (s *PostgresFeedStore) mergeFeedArticles(feeds []*model.Feed, limit int) []model.StoredArticle {
	var articles []model.StoredArticle

	for _, feed := range feeds {
		if len(feed.LatestArticles) == 0 {
			continue
		}

		var batch []model.Article
		if err := json.Unmarshal(feed.LatestArticles, &batch); err != nil {
			s.logger.Warn("保存済み記事バッチのパースに失敗しました",
				slog.String("feed_id", feed.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		for _, article := range batch {
			articles = append(articles, model.StoredArticle{
				Article:          article,
				FeedID:           feed.ID,
				FeedTitle:        feed.Title,
				FeedURL:          feed.FeedURL,
				FeedCategory:     feed.Category,
				FeedCountry:      feed.CountryCode,
				FeedImageURL:     feed.ImageURL,
				FeedThumbnailURL: feed.ThumbnailURL,
			})
		}
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedOrExtracted().After(articles[j].PublishedOrExtracted())
	})

	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles
}

// getFlatArticles はJSONBバッチをDB側で展開し、記事単位で射影する。
// タイトルを持たない不完全な要素は除外する。
func (s *PostgresFeedStore) getFlatArticles(ctx context.Context, filter ArticleFilter, limit int) ([]model.StoredArticle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id, COALESCE(f.feed_title, ''), f.feed_url,
		        COALESCE(f.category, ''), COALESCE(f.country_code, ''),
		        COALESCE(f.image_url, ''), COALESCE(f.thumbnail_url, ''),
		        a.value
		 FROM rss_feeds f
		 CROSS JOIN LATERAL jsonb_array_elements(f.latest_articles) AS a(value)
		 WHERE f.is_active = TRUE
		   AND f.latest_articles IS NOT NULL
		   AND jsonb_typeof(f.latest_articles) = 'array'
		   AND ($2::text IS NULL OR f.category = $2)
		   AND ($3::text IS NULL OR f.country_code = $3)
		   AND ($4::uuid IS NULL OR f.id = $4::uuid)
		   AND a.value ->> 'title' IS NOT NULL
		 ORDER BY a.value ->> 'extracted_at' DESC NULLS LAST, f.last_checked DESC
		 LIMIT $1`,
		limit, nullString(filter.Category), nullString(filter.Country), nullString(filter.FeedID),
	)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []model.StoredArticle
	for rows.Next() {
		var stored model.StoredArticle
		var raw []byte

		if err := rows.Scan(
			&stored.FeedID, &stored.FeedTitle, &stored.FeedURL,
			&stored.FeedCategory, &stored.FeedCountry,
			&stored.FeedImageURL, &stored.FeedThumbnailURL,
			&raw,
		); err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}

		if err := json.Unmarshal(raw, &stored.Article); err != nil {
			s.logger.Warn("記事要素のパースに失敗しました",
				slog.String("feed_id", stored.FeedID),
				slog.String("error", err.Error()),
			)
			continue
		}

		articles = append(articles, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}

	return articles, nil
}

// GetCategoriesAndCountries はカテゴリ別・国別のフィード集計を返す。
func (s *PostgresFeedStore) GetCategoriesAndCountries(ctx context.Context) ([]model.CategorySummary, []model.CategorySummary, error) {
	categories, err := s.groupSummary(ctx, "category")
	if err != nil {
		return nil, nil, err
	}
	countries, err := s.groupSummary(ctx, "country_code")
	if err != nil {
		return nil, nil, err
	}
	return categories, countries, nil
}

// groupSummary は指定カラムでグループ化したフィード集計を返す。
// column はコード内の固定値のみが渡される。
func (s *PostgresFeedStore) groupSummary(ctx context.Context, column string) ([]model.CategorySummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`,
		        COUNT(*),
		        SUM(CASE WHEN is_active THEN 1 ELSE 0 END)
		 FROM rss_feeds
		 WHERE `+column+` IS NOT NULL AND `+column+` != ''
		 GROUP BY `+column+`
		 ORDER BY `+column,
	)
	if err != nil {
		return nil, fmt.Errorf("フィード集計の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var summaries []model.CategorySummary
	for rows.Next() {
		var summary model.CategorySummary
		if err := rows.Scan(&summary.Name, &summary.FeedCount, &summary.ActiveFeedCount); err != nil {
			return nil, fmt.Errorf("フィード集計の読み取りに失敗しました: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィード集計の走査に失敗しました: %w", err)
	}

	return summaries, nil
}

// UpdateFeedWithArticles は記事バッチとフィードメタデータを更新する。
// 記事バッチは全量置換。メタデータはCOALESCEによる部分更新で、
// 空フィールドは既存値が維持される。fetch_countはインクリメントされる。
func (s *PostgresFeedStore) UpdateFeedWithArticles(ctx context.Context, feedID string, update FeedUpdate) (model.UpdateOutcome, error) {
	if _, err := uuid.Parse(feedID); err != nil {
		return model.UpdateOutcome{Success: false, Error: "invalid feed id"}, nil
	}

	var articlesJSON []byte
	if len(update.Articles) > 0 {
		data, err := json.Marshal(update.Articles)
		if err != nil {
			return model.UpdateOutcome{Success: false, Error: "invalid articles payload"}, nil
		}
		articlesJSON = data
	}

	status := update.Status
	if status == 0 {
		status = 200
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE rss_feeds SET
		    latest_articles = $2,
		    feed_title = COALESCE($3, feed_title),
		    feed_description = COALESCE($4, feed_description),
		    feed_link = COALESCE($5, feed_link),
		    image_url = COALESCE($6, image_url),
		    thumbnail_url = COALESCE($7, thumbnail_url),
		    etag = $8,
		    last_modified = $9,
		    last_status = $10,
		    last_fetched = now(),
		    fetch_count = COALESCE(fetch_count, 0) + 1,
		    updated_at = now(),
		    last_checked = now()
		 WHERE id = $1`,
		feedID, articlesJSON,
		nullString(update.FeedTitle), nullString(update.FeedDescription),
		nullString(update.FeedLink), nullString(update.FeedImage),
		nullString(update.FeedThumbnail),
		nullString(update.ETag), nullString(update.LastModified),
		status,
	)
	if err != nil {
		return model.UpdateOutcome{}, fmt.Errorf("フィードの更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return model.UpdateOutcome{}, fmt.Errorf("更新行数の取得に失敗しました: %w", err)
	}
	if affected == 0 {
		return model.UpdateOutcome{Success: false, Error: "feed not found"}, nil
	}

	return model.UpdateOutcome{Success: true, RowsAffected: int(affected)}, nil
}

// MarkFeedChecked はチェック日時とステータスのみを記録する。
// 一時的な失敗時に使用し、記事バッチと有効フラグには触れない。
func (s *PostgresFeedStore) MarkFeedChecked(ctx context.Context, feedID string, status int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rss_feeds SET
		    last_checked = now(),
		    last_status = $2,
		    updated_at = now()
		 WHERE id = $1`,
		feedID, status,
	)
	if err != nil {
		return fmt.Errorf("チェック状態の記録に失敗しました: %w", err)
	}
	return nil
}

// DeactivateFeed はフィードを無効化する。恒久的な失敗時に使用する。
// 無効化されたフィードはポーリング対象と読み取りAPIの両方から外れる。
func (s *PostgresFeedStore) DeactivateFeed(ctx context.Context, feedID string, status int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE rss_feeds SET
		    is_active = FALSE,
		    last_checked = now(),
		    last_status = $2,
		    updated_at = now()
		 WHERE id = $1`,
		feedID, status,
	)
	if err != nil {
		return fmt.Errorf("フィードの無効化に失敗しました: %w", err)
	}
	return nil
}

// ListActiveForPolling は有効なフィードを古い順で返す。
// 一度もチェックされていないフィード（last_checked NULL）が先頭に来る。
func (s *PostgresFeedStore) ListActiveForPolling(ctx context.Context) ([]*model.Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feedColumns+`
		 FROM rss_feeds
		 WHERE is_active = TRUE
		 ORDER BY last_checked ASC NULLS FIRST`,
	)
	if err != nil {
		return nil, fmt.Errorf("ポーリング対象フィードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("ポーリング対象フィードの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ポーリング対象フィードの走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// FeedCount は登録フィードの総数を返す。
func (s *PostgresFeedStore) FeedCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rss_feeds`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("フィード総数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// FeedStats はカテゴリ別統計と直近チェックされたフィードの概要を返す。
// 記事一覧が空の場合の診断情報として使用する。
func (s *PostgresFeedStore) FeedStats(ctx context.Context) (*model.FeedStats, error) {
	statsRows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(category, ''),
		        COUNT(*),
		        SUM(CASE WHEN is_active THEN 1 ELSE 0 END),
		        SUM(CASE WHEN latest_articles IS NOT NULL THEN 1 ELSE 0 END)
		 FROM rss_feeds
		 GROUP BY category
		 ORDER BY category`,
	)
	if err != nil {
		return nil, fmt.Errorf("フィード統計の取得に失敗しました: %w", err)
	}
	defer statsRows.Close()

	stats := &model.FeedStats{}
	for statsRows.Next() {
		var cs model.CategoryStats
		if err := statsRows.Scan(&cs.Category, &cs.TotalFeeds, &cs.ActiveFeeds, &cs.FeedsWithArticles); err != nil {
			return nil, fmt.Errorf("フィード統計の読み取りに失敗しました: %w", err)
		}
		stats.Stats = append(stats.Stats, cs)
	}
	if err := statsRows.Err(); err != nil {
		return nil, fmt.Errorf("フィード統計の走査に失敗しました: %w", err)
	}

	recentRows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(feed_title, ''), COALESCE(category, ''),
		        last_checked, last_status, fetch_count
		 FROM rss_feeds
		 ORDER BY last_checked DESC NULLS LAST, updated_at DESC
		 LIMIT 10`,
	)
	if err != nil {
		return nil, fmt.Errorf("直近フィードの取得に失敗しました: %w", err)
	}
	defer recentRows.Close()

	for recentRows.Next() {
		var rf model.RecentFeed
		var lastChecked sql.NullTime
		var lastStatus sql.NullInt64

		if err := recentRows.Scan(&rf.FeedID, &rf.Title, &rf.Category, &lastChecked, &lastStatus, &rf.FetchCount); err != nil {
			return nil, fmt.Errorf("直近フィードの読み取りに失敗しました: %w", err)
		}
		rf.LastChecked = nullTimeValue(lastChecked)
		rf.LastStatus = nullIntValue(lastStatus)
		stats.Recent = append(stats.Recent, rf)
	}
	if err := recentRows.Err(); err != nil {
		return nil, fmt.Errorf("直近フィードの走査に失敗しました: %w", err)
	}

	return stats, nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullIntValue はsql.NullInt64から*intを取得する。
func nullIntValue(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// nullTimeValue はsql.NullTimeから*time.Timeを取得する。
func nullTimeValue(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// compile-time interface check
var _ FeedStore = (*PostgresFeedStore)(nil)
