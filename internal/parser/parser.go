// Package parser はRSS/Atomフィードの取得とパース、記事の正規化を行う。
//
// フィードドキュメントの方言差（RSS 2.0 / Atom / 各種拡張名前空間）を吸収し、
// 正規化されたArticleのバッチを生成する。失敗はエラーとして返さず、
// 分類済みのParseResultで表現する。
package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/wihy/healthfeed/internal/model"
	"github.com/wihy/healthfeed/internal/security"
)

const (
	// maxArticlesPerFeed は1フィードあたりの記事バッチの上限。
	maxArticlesPerFeed = 25
	// summaryLength は要約の最大文字数。
	summaryLength = 200
	// wordsPerMinute は読了時間の推定に使う読速度。
	wordsPerMinute = 200

	userAgent = "healthfeed/1.0 (+https://github.com/wihy/healthfeed)"
)

// wordPattern は語数カウント用のパターン。単語境界で区切られた連続語文字にマッチする。
var wordPattern = regexp.MustCompile(`\b\w+\b`)

// FeedParser はフィードの取得・パース・記事正規化を行うサービス。
type FeedParser struct {
	guard     security.SSRFGuardService
	extractor security.TextExtractorService
	client    *http.Client
	logger    *slog.Logger
	maxBody   int64

	// now はテストで固定するための時刻関数
	now func() time.Time
}

// NewFeedParser はFeedParserの新しいインスタンスを生成する。
// HTTPクライアントはSSRF防止機能付きのものを内部で生成する。
func NewFeedParser(guard security.SSRFGuardService, extractor security.TextExtractorService, timeout time.Duration, maxBody int64, logger *slog.Logger) *FeedParser {
	return &FeedParser{
		guard:     guard,
		extractor: extractor,
		client:    guard.NewSafeClient(timeout, maxBody),
		logger:    logger,
		maxBody:   maxBody,
		now:       time.Now,
	}
}

// FetchAndParse はフィードURLを取得してパースし、正規化済みの記事バッチを返す。
// 失敗時もエラーではなくSuccess=falseのParseResultを返す。StatusとShouldDeactivateは
// 失敗メッセージから分類される。
func (p *FeedParser) FetchAndParse(ctx context.Context, feedURL string) *model.ParseResult {
	if err := p.guard.ValidateURL(feedURL); err != nil {
		return p.failure(feedURL, fmt.Sprintf("invalid url rejected before fetch: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return p.failure(feedURL, fmt.Sprintf("invalid url: %v", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return p.failure(feedURL, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return p.failure(feedURL, fmt.Sprintf("unexpected status %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, p.maxBody))
	if err != nil {
		return p.failure(feedURL, fmt.Sprintf("unsupported or malformed feed document: %v", err))
	}

	return p.buildResult(feedURL, feed)
}

// failure は失敗メッセージを分類してParseResultを組み立てる。
func (p *FeedParser) failure(feedURL, message string) *model.ParseResult {
	status := DeriveStatusCode(message)
	deactivate := ShouldDeactivateFeed(status, message)

	p.logger.Warn("フィードの取得に失敗しました",
		slog.String("feed_url", feedURL),
		slog.Int("status", status),
		slog.Bool("deactivate", deactivate),
		slog.String("error", message),
	)

	return &model.ParseResult{
		Success:          false,
		Status:           status,
		Error:            message,
		ShouldDeactivate: deactivate,
	}
}

// buildResult はパース済みフィードから正規化済みの記事バッチを組み立てる。
// タイトルとリンクの両方が欠けた不完全アイテムはスキップされる。
func (p *FeedParser) buildResult(feedURL string, feed *gofeed.Feed) *model.ParseResult {
	feedTitle := p.extractor.ExtractText(feed.Title)
	feedFormat := strings.ToUpper(feed.FeedType)
	feedImage, feedThumbnail := extractFeedImage(feed)

	items := feed.Items
	if len(items) > maxArticlesPerFeed {
		items = items[:maxArticlesPerFeed]
	}

	articles := make([]model.Article, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		article, ok := p.transformItem(item, feedTitle, feed.Link, feedFormat)
		if !ok {
			continue
		}
		articles = append(articles, article)
	}

	p.logger.Info("フィードをパースしました",
		slog.String("feed_url", feedURL),
		slog.String("feed_title", feedTitle),
		slog.Int("total_items", len(feed.Items)),
		slog.Int("retained", len(articles)),
	)

	return &model.ParseResult{
		Success:         true,
		FeedTitle:       feedTitle,
		FeedDescription: p.extractor.ExtractText(feed.Description),
		FeedLink:        strings.TrimSpace(feed.Link),
		FeedImage:       feedImage,
		FeedThumbnail:   feedThumbnail,
		Articles:        articles,
		TotalItems:      len(feed.Items),
		ProcessedItems:  len(articles),
		FeedFormat:      feedFormat,
		Status:          200,
	}
}

// transformItem は1アイテムを正規化済みのArticleに変換する。
// タイトルまたはリンクが欠けている場合はfalseを返してスキップさせる。
func (p *FeedParser) transformItem(item *gofeed.Item, feedTitle, feedLink, feedFormat string) (model.Article, bool) {
	title := p.extractor.ExtractText(item.Title)
	link := strings.TrimSpace(item.Link)
	if link == "" && isHTTPURL(item.GUID) {
		// 一部のフィードはlinkを省略しGUIDにパーマリンクを入れる
		link = strings.TrimSpace(item.GUID)
	}
	if title == "" || link == "" {
		return model.Article{}, false
	}

	description := p.extractor.ExtractText(item.Description)
	if description == "" {
		description = p.extractor.ExtractText(item.Content)
	}
	content := p.extractor.ExtractText(item.Content)

	guid := strings.TrimSpace(item.GUID)
	if guid == "" {
		guid = link
	}

	categories := extractCategories(item)
	category := ""
	if len(categories) > 0 {
		category = categories[0]
	}

	media := extractMedia(item)

	wordCount := countWords(description + " " + content)

	return model.Article{
		Title:       title,
		Description: description,
		Summary:     summarize(description),
		Link:        link,
		Author:      extractAuthor(item),
		PubDate:     p.publishedAt(item),
		GUID:        guid,
		Category:    category,
		Tags:        categories,
		Source:      feedTitle,
		SourceURL:   strings.TrimSpace(feedLink),

		MediaThumbURL:    media.Thumbnail,
		MediaURL:         media.MainImage,
		MediaType:        media.Type,
		MediaDescription: media.Description,

		ContentEncoded: content,

		WordCount:     wordCount,
		ReadingTime:   readingTime(wordCount),
		ExtractedAt:   p.now().UTC().Format(time.RFC3339),
		HasMedia:      media.Thumbnail != "" || media.MainImage != "",
		HasAuthor:     extractAuthor(item) != "",
		HasContent:    content != "",
		ContentLength: len(content),
		FeedFormat:    feedFormat,
	}, true
}

// publishedAt は公開日時をRFC3339で返す。パース済みの日時を優先し、
// なければフィード記載の生文字列を保持する。どちらも無ければ空。
func (p *FeedParser) publishedAt(item *gofeed.Item) string {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	}
	if s := strings.TrimSpace(item.Published); s != "" {
		return s
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	return ""
}

// summarize は説明文を要約長に切り詰める。切り詰めた場合は省略記号を付ける。
func summarize(text string) string {
	runes := []rune(text)
	if len(runes) <= summaryLength {
		return text
	}
	return strings.TrimSpace(string(runes[:summaryLength])) + "..."
}

// countWords はテキストの語数を数える。
func countWords(text string) int {
	return len(wordPattern.FindAllString(text, -1))
}

// readingTime は語数から読了時間（分）を推定する。最小1分。
func readingTime(wordCount int) int {
	minutes := int(math.Ceil(float64(wordCount) / wordsPerMinute))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// isHTTPURL は文字列がhttp(s)のURLらしいかを判定する。
func isHTTPURL(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
