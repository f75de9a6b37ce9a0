package ingest

import (
	"testing"
	"time"

	"github.com/wihy/healthfeed/internal/model"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTimeAgo(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"just now", testNow.Add(-30 * time.Minute), "Less than 1 hour ago"},
		{"hours", testNow.Add(-5 * time.Hour), "5 hours ago"},
		{"days", testNow.Add(-3 * 24 * time.Hour), "3 days ago"},
		{"weeks", testNow.Add(-10 * 24 * time.Hour), "1 weeks ago"},
		{"months", testNow.Add(-65 * 24 * time.Hour), "2 months ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := timeAgo(tt.at, testNow); got != tt.want {
				t.Errorf("timeAgo() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractTags(t *testing.T) {
	t.Run("stored tags capped at five", func(t *testing.T) {
		tags := []string{"a", "b", "c", "d", "e", "f", "g"}
		got := extractTags(tags, "")
		if len(got) != 5 {
			t.Errorf("len = %d, want 5", len(got))
		}
	})

	t.Run("category string fallback", func(t *testing.T) {
		got := extractTags(nil, "Nutrition, Diet , ,Research")
		want := []string{"Nutrition", "Diet", "Research"}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("tag[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("empty yields empty slice", func(t *testing.T) {
		got := extractTags(nil, "")
		if got == nil || len(got) != 0 {
			t.Errorf("got %v, want empty non-nil slice", got)
		}
	})
}

func TestAssessContentQuality(t *testing.T) {
	tests := []struct {
		name     string
		article  model.Article
		imageURL string
		want     string
	}{
		{
			name: "all four signals",
			article: model.Article{
				ContentEncoded: "body",
				Author:         "someone",
				WordCount:      300,
			},
			imageURL: "https://example.com/x.jpg",
			want:     "high",
		},
		{
			name: "three signals",
			article: model.Article{
				Description: "desc",
				Author:      "someone",
				WordCount:   250,
			},
			want: "high",
		},
		{
			name: "two signals",
			article: model.Article{
				Description: "desc",
				Author:      "someone",
			},
			want: "medium",
		},
		{
			name:    "single signal",
			article: model.Article{Description: "desc"},
			want:    "low",
		},
		{
			name: "nothing",
			want: "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := assessContentQuality(tt.article, tt.imageURL); got != tt.want {
				t.Errorf("assessContentQuality() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAssessCompleteness(t *testing.T) {
	full := model.Article{
		Title:       "t",
		Description: "d",
		Link:        "https://example.com",
		Author:      "a",
		PubDate:     "2025-05-01T00:00:00Z",
	}
	if got := assessCompleteness(full); got != "complete" {
		t.Errorf("complete case = %q", got)
	}

	partial := model.Article{
		Title:       "t",
		Description: "d",
		Link:        "https://example.com",
	}
	if got := assessCompleteness(partial); got != "partial" {
		t.Errorf("partial case = %q", got)
	}

	sparse := model.Article{Title: "t"}
	if got := assessCompleteness(sparse); got != "missing" {
		t.Errorf("missing case = %q", got)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://news.example.com/articles/1", "news.example.com"},
		{"http://example.com", "example.com"},
		{"not a url", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := extractDomain(tt.in); got != tt.want {
			t.Errorf("extractDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnhanceArticle(t *testing.T) {
	stored := model.StoredArticle{
		Article: model.Article{
			Title:         "Vitamin D study",
			Description:   "desc",
			Summary:       "summary",
			Link:          "https://news.example.com/a/1",
			Author:        "Jane Doe",
			PubDate:       testNow.Add(-2 * time.Hour).Format(time.RFC3339),
			GUID:          "guid-1",
			Category:      "Nutrition",
			Tags:          []string{"Nutrition", "Research"},
			WordCount:     420,
			ReadingTime:   3,
			ExtractedAt:   testNow.Format(time.RFC3339),
			MediaThumbURL: "https://cdn.example.com/thumb.jpg",
		},
		FeedID:       "feed-1",
		FeedTitle:    "Feed One",
		FeedURL:      "https://news.example.com/rss",
		FeedCategory: "Nutrition & Diet",
		FeedCountry:  "US",
		FeedImageURL: "https://news.example.com/logo.png",
	}

	got := enhanceArticle(stored, testNow)

	if got.ID != "guid-1" {
		t.Errorf("ID = %q", got.ID)
	}
	if got.TimeAgo != "2 hours ago" {
		t.Errorf("TimeAgo = %q", got.TimeAgo)
	}
	if !got.IsRecent {
		t.Error("IsRecent = false, want true for 2h old article")
	}
	if got.Thumbnail != "https://cdn.example.com/thumb.jpg" {
		t.Errorf("Thumbnail = %q", got.Thumbnail)
	}
	if got.Domain != "news.example.com" {
		t.Errorf("Domain = %q", got.Domain)
	}
	if !got.IsValidLink {
		t.Error("IsValidLink = false")
	}
	if got.ContentQuality != "high" {
		t.Errorf("ContentQuality = %q", got.ContentQuality)
	}
	if got.Completeness != "complete" {
		t.Errorf("Completeness = %q", got.Completeness)
	}
	if got.PublishedTimestamp == 0 {
		t.Error("PublishedTimestamp = 0")
	}
}

func TestEnhanceArticle_Fallbacks(t *testing.T) {
	stored := model.StoredArticle{
		Article: model.Article{
			Link: "https://example.com/a",
		},
		FeedID:       "feed-9",
		FeedTitle:    "Fallback Feed",
		FeedURL:      "https://example.com/rss",
		FeedImageURL: "https://example.com/logo.png",
	}

	got := enhanceArticle(stored, testNow)

	if got.Title != "Untitled" {
		t.Errorf("Title = %q, want Untitled", got.Title)
	}
	if got.ID != "feed-9_" {
		t.Errorf("ID = %q, want feed id fallback", got.ID)
	}
	if got.Thumbnail != "https://example.com/logo.png" {
		t.Errorf("Thumbnail = %q, want feed image fallback", got.Thumbnail)
	}
	if got.Source != "Fallback Feed" {
		t.Errorf("Source = %q", got.Source)
	}
	if got.SourceURL != "https://example.com/rss" {
		t.Errorf("SourceURL = %q", got.SourceURL)
	}
	if got.TimeAgo != "Unknown" {
		t.Errorf("TimeAgo = %q, want Unknown without dates", got.TimeAgo)
	}
	if got.IsRecent {
		t.Error("IsRecent = true, want false without dates")
	}
}

func TestEnhanceFeed(t *testing.T) {
	status := 200
	checked := testNow.Add(-time.Hour)
	feed := &model.Feed{
		ID:          "feed-1",
		Title:       "Feed One",
		FeedURL:     "https://example.com/rss",
		Category:    "Public Health",
		LastStatus:  &status,
		LastChecked: &checked,
		UpdatedAt:   testNow,
		FetchCount:  7,
	}

	got := enhanceFeed(feed, 12)

	if got.Status != model.FeedHealthHealthy {
		t.Errorf("Status = %q, want healthy", got.Status)
	}
	if got.ArticleCount != 12 {
		t.Errorf("ArticleCount = %d", got.ArticleCount)
	}
	if got.LastUpdated == nil || !got.LastUpdated.Equal(checked) {
		t.Errorf("LastUpdated = %v, want last_checked", got.LastUpdated)
	}
}

func TestEnhanceFeed_UnknownStatus(t *testing.T) {
	feed := &model.Feed{ID: "feed-2", UpdatedAt: testNow}

	got := enhanceFeed(feed, 0)

	if got.Status != model.FeedHealthUnknown {
		t.Errorf("Status = %q, want unknown", got.Status)
	}
	// last_checked未設定時はupdated_atへフォールバック
	if got.LastUpdated == nil || !got.LastUpdated.Equal(testNow) {
		t.Errorf("LastUpdated = %v, want updated_at fallback", got.LastUpdated)
	}
}
