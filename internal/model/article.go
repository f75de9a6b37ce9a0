// Package model はドメインモデルを定義する。
package model

import "time"

// Article はフィードドキュメントの1パースで抽出された記事を表す。
// 独立した永続IDは持たず、所属フィードの現行バッチと同じ寿命を持つ。
// JSONタグは保存形式（latest_articlesカラム）と読み取りAPIの両方で共有する。
type Article struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Summary     string   `json:"summary"`
	Link        string   `json:"link"`
	Author      string   `json:"author"`
	PubDate     string   `json:"pub_date"`
	GUID        string   `json:"guid"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags"`
	Source      string   `json:"source"`
	SourceURL   string   `json:"source_url"`

	MediaThumbURL    string `json:"media_thumb_url"`
	MediaURL         string `json:"media_url"`
	MediaType        string `json:"media_type"`
	MediaDescription string `json:"media_description"`

	ContentEncoded string `json:"content_encoded"`

	WordCount     int    `json:"word_count"`
	ReadingTime   int    `json:"reading_time"`
	ExtractedAt   string `json:"extracted_at"`
	HasMedia      bool   `json:"has_media"`
	HasAuthor     bool   `json:"has_author"`
	HasContent    bool   `json:"has_content"`
	ContentLength int    `json:"content_length"`
	FeedFormat    string `json:"feed_format"`
}

// PublishedOrExtracted は公開日時を返す。未設定の場合は抽出日時にフォールバックする。
// どちらもパースできない場合はゼロ値を返す。
func (a *Article) PublishedOrExtracted() time.Time {
	if t, ok := parseArticleTime(a.PubDate); ok {
		return t
	}
	if t, ok := parseArticleTime(a.ExtractedAt); ok {
		return t
	}
	return time.Time{}
}

// parseArticleTime は記事の日時文字列をパースする。
// 保存時はRFC3339で書き込むが、フィード由来のRFC1123形式も受け付ける。
func parseArticleTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StoredArticle はフラット読み取りで記事と所属フィードの情報を結合したレコード。
type StoredArticle struct {
	Article
	FeedID           string `json:"feed_id"`
	FeedTitle        string `json:"feed_title"`
	FeedURL          string `json:"feed_url"`
	FeedCategory     string `json:"feed_category"`
	FeedCountry      string `json:"feed_country"`
	FeedImageURL     string `json:"feed_image_url"`
	FeedThumbnailURL string `json:"feed_thumbnail_url"`
}

// ParseResult はFeedParserの結果を表す。
// 失敗時もエラーを返さず、分類済みのステータスとフラグで表現する。
type ParseResult struct {
	Success bool

	// 成功時のフィールド
	FeedTitle       string
	FeedDescription string
	FeedLink        string
	FeedImage       string
	FeedThumbnail   string
	Articles        []Article
	TotalItems      int
	ProcessedItems  int
	FeedFormat      string

	// Status はHTTPステータスまたはエラーメッセージから導出した粗いコード。
	Status int

	// 失敗時のフィールド
	Error string
	// ShouldDeactivate は恒久的な失敗（404/401/403、unsupported等）を示す。
	ShouldDeactivate bool
}
