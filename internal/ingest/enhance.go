package ingest

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wihy/healthfeed/internal/model"
)

// EnhancedArticle はクライアント向けに派生フィールドを付与した記事。
type EnhancedArticle struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Summary            string   `json:"summary"`
	Link               string   `json:"link"`
	Content            string   `json:"content"`
	Thumbnail          string   `json:"thumbnail"`
	ImageURL           string   `json:"image_url"`
	HasImage           bool     `json:"has_image"`
	Author             string   `json:"author"`
	PublishedDate      string   `json:"published_date"`
	PublishedTimestamp int64    `json:"published_timestamp"`
	TimeAgo            string   `json:"time_ago"`
	Category           string   `json:"category"`
	Tags               []string `json:"tags"`
	Source             string   `json:"source"`
	SourceURL          string   `json:"source_url"`
	FeedID             string   `json:"feed_id"`
	FeedTitle          string   `json:"feed_title"`
	FeedCategory       string   `json:"feed_category"`
	FeedCountry        string   `json:"feed_country"`
	FeedImage          string   `json:"feed_image"`
	FeedThumbnail      string   `json:"feed_thumbnail"`
	GUID               string   `json:"guid"`
	ExtractedAt        string   `json:"extracted_at"`
	IsRecent           bool     `json:"is_recent"`
	ReadingTime        int      `json:"reading_time"`
	WordCount          int      `json:"word_count"`
	HasContent         bool     `json:"has_content"`
	HasAuthor          bool     `json:"has_author"`
	IsValidLink        bool     `json:"is_valid_link"`
	Domain             string   `json:"domain"`
	ContentQuality     string   `json:"content_quality"`
	Completeness       string   `json:"completeness"`
}

// EnhancedFeed はクライアント向けに派生フィールドを付与したフィード。
type EnhancedFeed struct {
	FeedID       string           `json:"feed_id"`
	FeedTitle    string           `json:"feed_title"`
	FeedURL      string           `json:"feed_url"`
	Category     string           `json:"category"`
	CountryCode  string           `json:"country_code"`
	ImageURL     string           `json:"image_url"`
	ThumbnailURL string           `json:"thumbnail_url"`
	LastChecked  *time.Time       `json:"last_checked"`
	UpdatedAt    time.Time        `json:"updated_at"`
	LastStatus   *int             `json:"last_status"`
	FetchCount   int              `json:"fetch_count"`
	ArticleCount int              `json:"article_count"`
	LastUpdated  *time.Time       `json:"last_updated"`
	Status       model.FeedHealth `json:"status"`
}

// enhanceArticle は保存済み記事にクライアント向けの派生フィールドを付与する。
func enhanceArticle(stored model.StoredArticle, now time.Time) EnhancedArticle {
	a := stored.Article

	id := a.GUID
	if id == "" {
		id = fmt.Sprintf("%s_%s", stored.FeedID, a.Title)
	}

	title := a.Title
	if title == "" {
		title = "Untitled"
	}

	content := a.ContentEncoded
	if content == "" {
		content = a.Description
	}

	thumbnail := a.MediaThumbURL
	if thumbnail == "" {
		thumbnail = stored.FeedImageURL
	}

	imageURL := firstNonEmpty(a.MediaThumbURL, a.MediaURL, stored.FeedImageURL)

	source := a.Source
	if source == "" {
		source = stored.FeedTitle
	}
	sourceURL := a.SourceURL
	if sourceURL == "" {
		sourceURL = stored.FeedURL
	}

	category := a.Category
	if category == "" {
		category = stored.FeedCategory
	}

	published := a.PublishedOrExtracted()
	publishedDate := a.PubDate
	if publishedDate == "" {
		publishedDate = a.ExtractedAt
	}

	var publishedTimestamp int64
	timeAgoLabel := "Unknown"
	recent := false
	if !published.IsZero() {
		publishedTimestamp = published.UnixMilli()
		timeAgoLabel = timeAgo(published, now)
		recent = now.Sub(published) <= 24*time.Hour
	}

	hasContent := a.ContentEncoded != "" || a.Description != ""
	hasAuthor := a.Author != ""

	return EnhancedArticle{
		ID:                 id,
		Title:              title,
		Description:        a.Description,
		Summary:            a.Summary,
		Link:               a.Link,
		Content:            content,
		Thumbnail:          thumbnail,
		ImageURL:           imageURL,
		HasImage:           imageURL != "",
		Author:             a.Author,
		PublishedDate:      publishedDate,
		PublishedTimestamp: publishedTimestamp,
		TimeAgo:            timeAgoLabel,
		Category:           category,
		Tags:               extractTags(a.Tags, category),
		Source:             source,
		SourceURL:          sourceURL,
		FeedID:             stored.FeedID,
		FeedTitle:          stored.FeedTitle,
		FeedCategory:       stored.FeedCategory,
		FeedCountry:        stored.FeedCountry,
		FeedImage:          stored.FeedImageURL,
		FeedThumbnail:      stored.FeedThumbnailURL,
		GUID:               a.GUID,
		ExtractedAt:        a.ExtractedAt,
		IsRecent:           recent,
		ReadingTime:        a.ReadingTime,
		WordCount:          a.WordCount,
		HasContent:         hasContent,
		HasAuthor:          hasAuthor,
		IsValidLink:        isValidURL(a.Link),
		Domain:             extractDomain(a.Link),
		ContentQuality:     assessContentQuality(a, imageURL),
		Completeness:       assessCompleteness(a),
	}
}

// enhanceFeed はフィード行にクライアント向けの派生フィールドを付与する。
func enhanceFeed(feed *model.Feed, articleCount int) EnhancedFeed {
	lastUpdated := feed.LastChecked
	if lastUpdated == nil {
		u := feed.UpdatedAt
		lastUpdated = &u
	}

	return EnhancedFeed{
		FeedID:       feed.ID,
		FeedTitle:    feed.Title,
		FeedURL:      feed.FeedURL,
		Category:     feed.Category,
		CountryCode:  feed.CountryCode,
		ImageURL:     feed.ImageURL,
		ThumbnailURL: feed.ThumbnailURL,
		LastChecked:  feed.LastChecked,
		UpdatedAt:    feed.UpdatedAt,
		LastStatus:   feed.LastStatus,
		FetchCount:   feed.FetchCount,
		ArticleCount: articleCount,
		LastUpdated:  lastUpdated,
		Status:       model.DeriveFeedHealth(feed.LastStatus),
	}
}

// timeAgo は経過時間を人間可読なラベルに変換する。
func timeAgo(t, now time.Time) string {
	diff := now.Sub(t)
	hours := int(diff.Hours())
	days := hours / 24

	switch {
	case hours < 1:
		return "Less than 1 hour ago"
	case hours < 24:
		return fmt.Sprintf("%d hours ago", hours)
	case days < 7:
		return fmt.Sprintf("%d days ago", days)
	case days < 30:
		return fmt.Sprintf("%d weeks ago", days/7)
	default:
		return fmt.Sprintf("%d months ago", days/30)
	}
}

// extractTags はタグを最大5件に整形する。保存済みタグを優先し、
// 無ければカテゴリ文字列をカンマ区切りで分解する。
func extractTags(tags []string, category string) []string {
	var cleaned []string
	source := tags
	if len(source) == 0 && category != "" {
		source = strings.Split(category, ",")
	}

	for _, tag := range source {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		cleaned = append(cleaned, tag)
		if len(cleaned) == 5 {
			break
		}
	}

	if cleaned == nil {
		return []string{}
	}
	return cleaned
}

// isValidURL は文字列が絶対URLとしてパース可能かを判定する。
func isValidURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	parsed, err := url.Parse(rawURL)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}

// extractDomain はリンクのホスト名を返す。パースできない場合は空。
func extractDomain(rawURL string) string {
	if !isValidURL(rawURL) {
		return ""
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// assessContentQuality は4項目（本文・画像・著者・200語超）のスコアで
// 品質をlow/medium/highに分類する。
func assessContentQuality(a model.Article, imageURL string) string {
	score := 0
	if a.ContentEncoded != "" || a.Description != "" {
		score++
	}
	if imageURL != "" {
		score++
	}
	if a.Author != "" {
		score++
	}
	if a.WordCount > 200 {
		score++
	}

	switch {
	case score >= 3:
		return "high"
	case score == 2:
		return "medium"
	default:
		return "low"
	}
}

// assessCompleteness は5つの基本フィールドの充足率で
// complete/partial/missingに分類する。
func assessCompleteness(a model.Article) string {
	fields := []string{a.Title, a.Description, a.Link, a.Author, a.PubDate}
	filled := 0
	for _, f := range fields {
		if f != "" {
			filled++
		}
	}

	ratio := float64(filled) / float64(len(fields))
	switch {
	case ratio == 1:
		return "complete"
	case ratio >= 0.6:
		return "partial"
	default:
		return "missing"
	}
}

// firstNonEmpty は最初の非空文字列を返す。
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
