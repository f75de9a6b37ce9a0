package parser

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wihy/healthfeed/internal/security"
)

// permissiveGuard はテスト用のSSRFガード。httptestのループバックアドレスを通す。
type permissiveGuard struct{}

func (permissiveGuard) NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (permissiveGuard) ValidateURL(rawURL string) error { return nil }

func newTestParser(t *testing.T) *FeedParser {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p := NewFeedParser(permissiveGuard{}, security.NewTextExtractor(), 5*time.Second, 5*1024*1024, logger)
	p.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:media="http://search.yahoo.com/mrss/">
  <channel>
    <title>Health &amp; Nutrition News</title>
    <description>Daily coverage of nutrition research</description>
    <link>https://news.example.com</link>
    <image>
      <url>https://news.example.com/logo.png</url>
      <title>Health &amp; Nutrition News</title>
    </image>
    <item>
      <title>Vitamin D and immunity</title>
      <link>https://news.example.com/articles/vitamin-d</link>
      <guid>https://news.example.com/articles/vitamin-d</guid>
      <description>&lt;p&gt;A new study links vitamin D levels to immune response.&lt;/p&gt;</description>
      <dc:creator>Jane Doe</dc:creator>
      <category>Nutrition</category>
      <category>Research</category>
      <pubDate>Mon, 26 May 2025 09:30:00 +0000</pubDate>
      <media:thumbnail url="https://cdn.example.com/vitamin-d-thumb.jpg"/>
    </item>
    <item>
      <title>Missing link item</title>
      <description>This item has no link and no permalink guid.</description>
    </item>
    <item>
      <title>Fiber intake trends</title>
      <link>https://news.example.com/articles/fiber</link>
      <description>Fiber consumption is rising across age groups.</description>
      <enclosure url="https://cdn.example.com/fiber.jpg" type="image/jpeg" length="12345"/>
    </item>
  </channel>
</rss>`

func serveFeed(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAndParse_Success(t *testing.T) {
	srv := serveFeed(t, http.StatusOK, sampleRSS)
	p := newTestParser(t)

	result := p.FetchAndParse(context.Background(), srv.URL)

	if !result.Success {
		t.Fatalf("Success = false, error = %q", result.Error)
	}
	if result.Status != 200 {
		t.Errorf("Status = %d, want 200", result.Status)
	}
	if result.FeedTitle != "Health & Nutrition News" {
		t.Errorf("FeedTitle = %q", result.FeedTitle)
	}
	if result.FeedImage != "https://news.example.com/logo.png" {
		t.Errorf("FeedImage = %q", result.FeedImage)
	}
	if result.FeedFormat != "RSS" {
		t.Errorf("FeedFormat = %q, want RSS", result.FeedFormat)
	}
	// 3アイテム中リンク欠落の1件がスキップされる
	if result.TotalItems != 3 {
		t.Errorf("TotalItems = %d, want 3", result.TotalItems)
	}
	if len(result.Articles) != 2 {
		t.Fatalf("len(Articles) = %d, want 2", len(result.Articles))
	}
	if result.ProcessedItems != 2 {
		t.Errorf("ProcessedItems = %d, want 2", result.ProcessedItems)
	}

	first := result.Articles[0]
	if first.Title != "Vitamin D and immunity" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Description != "A new study links vitamin D levels to immune response." {
		t.Errorf("Description = %q", first.Description)
	}
	if first.Author != "Jane Doe" {
		t.Errorf("Author = %q, want dc:creator value", first.Author)
	}
	if first.Category != "Nutrition" {
		t.Errorf("Category = %q", first.Category)
	}
	if len(first.Tags) != 2 {
		t.Errorf("Tags = %v", first.Tags)
	}
	if first.PubDate != "2025-05-26T09:30:00Z" {
		t.Errorf("PubDate = %q", first.PubDate)
	}
	if first.MediaThumbURL != "https://cdn.example.com/vitamin-d-thumb.jpg" {
		t.Errorf("MediaThumbURL = %q", first.MediaThumbURL)
	}
	if !first.HasMedia || !first.HasAuthor {
		t.Errorf("HasMedia = %v, HasAuthor = %v", first.HasMedia, first.HasAuthor)
	}
	if first.Source != "Health & Nutrition News" {
		t.Errorf("Source = %q", first.Source)
	}
	if first.ExtractedAt != "2025-06-01T12:00:00Z" {
		t.Errorf("ExtractedAt = %q", first.ExtractedAt)
	}
	if first.WordCount == 0 || first.ReadingTime < 1 {
		t.Errorf("WordCount = %d, ReadingTime = %d", first.WordCount, first.ReadingTime)
	}

	second := result.Articles[1]
	if second.Link != "https://news.example.com/articles/fiber" {
		t.Errorf("second Link = %q", second.Link)
	}
	// GUID欠落時はリンクへフォールバック
	if second.GUID != second.Link {
		t.Errorf("second GUID = %q, want link fallback", second.GUID)
	}
	if second.MediaURL != "https://cdn.example.com/fiber.jpg" {
		t.Errorf("second MediaURL = %q", second.MediaURL)
	}
}

func TestFetchAndParse_CapsArticleCount(t *testing.T) {
	var body string
	body = `<?xml version="1.0"?><rss version="2.0"><channel><title>Big Feed</title>`
	for i := 0; i < 40; i++ {
		body += `<item><title>Item</title><link>https://example.com/a</link></item>`
	}
	body += `</channel></rss>`

	srv := serveFeed(t, http.StatusOK, body)
	p := newTestParser(t)

	result := p.FetchAndParse(context.Background(), srv.URL)
	if !result.Success {
		t.Fatalf("Success = false, error = %q", result.Error)
	}
	if result.TotalItems != 40 {
		t.Errorf("TotalItems = %d, want 40", result.TotalItems)
	}
	if len(result.Articles) != maxArticlesPerFeed {
		t.Errorf("len(Articles) = %d, want %d", len(result.Articles), maxArticlesPerFeed)
	}
}

func TestFetchAndParse_HTTPErrors(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		wantStatus     int
		wantDeactivate bool
	}{
		{"not found", http.StatusNotFound, 404, true},
		{"forbidden", http.StatusForbidden, 403, true},
		{"unauthorized", http.StatusUnauthorized, 401, true},
		{"server error", http.StatusServiceUnavailable, 500, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveFeed(t, tt.status, "gone")
			p := newTestParser(t)

			result := p.FetchAndParse(context.Background(), srv.URL)
			if result.Success {
				t.Fatal("Success = true, want failure")
			}
			if result.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", result.Status, tt.wantStatus)
			}
			if result.ShouldDeactivate != tt.wantDeactivate {
				t.Errorf("ShouldDeactivate = %v, want %v", result.ShouldDeactivate, tt.wantDeactivate)
			}
			if result.Error == "" {
				t.Error("Error message is empty")
			}
		})
	}
}

func TestFetchAndParse_MalformedDocument(t *testing.T) {
	srv := serveFeed(t, http.StatusOK, "<html><body>not a feed</body></html>")
	p := newTestParser(t)

	result := p.FetchAndParse(context.Background(), srv.URL)
	if result.Success {
		t.Fatal("Success = true, want failure")
	}
	// 非フィードドキュメントは恒久的な失敗として無効化対象になる
	if !result.ShouldDeactivate {
		t.Error("ShouldDeactivate = false, want true for unsupported document")
	}
}

func TestFetchAndParse_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	p := newTestParser(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := p.FetchAndParse(ctx, srv.URL)
	if result.Success {
		t.Fatal("Success = true, want failure")
	}
	if result.Status != 408 {
		t.Errorf("Status = %d, want 408", result.Status)
	}
	if result.ShouldDeactivate {
		t.Error("ShouldDeactivate = true, timeout should be transient")
	}
}

func TestSummarize(t *testing.T) {
	short := "short text"
	if got := summarize(short); got != short {
		t.Errorf("summarize(short) = %q", got)
	}

	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}
	got := summarize(long)
	if len([]rune(got)) != summaryLength+3 {
		t.Errorf("len(summarize(long)) = %d, want %d", len([]rune(got)), summaryLength+3)
	}
	if got[len(got)-3:] != "..." {
		t.Errorf("summary does not end with ellipsis: %q", got)
	}
}

func TestReadingTime(t *testing.T) {
	tests := []struct {
		words int
		want  int
	}{
		{0, 1},
		{1, 1},
		{200, 1},
		{201, 2},
		{450, 3},
	}

	for _, tt := range tests {
		if got := readingTime(tt.words); got != tt.want {
			t.Errorf("readingTime(%d) = %d, want %d", tt.words, got, tt.want)
		}
	}
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"hello, world!", 2},
		{"a b  c", 3},
	}

	for _, tt := range tests {
		if got := countWords(tt.text); got != tt.want {
			t.Errorf("countWords(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
