package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CollectorはMetricsCollectorインターフェースを満たすことを検証
func TestCollector_ImplementsInterface(t *testing.T) {
	var _ MetricsCollector = (*Collector)(nil)
}

func TestCollector_RecordsAndExposes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPollSuccess("feed-1")
	c.RecordPollSuccess("feed-2")
	c.RecordPollFailure("feed-3", 404)
	c.RecordFeedDeactivated("feed-3")
	c.RecordPollLatency(120 * time.Millisecond)
	c.RecordArticlesFetched(25)
	c.RecordPollCycle(3*time.Second, 35)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	wants := []string{
		"healthfeed_poll_success_total 2",
		`healthfeed_poll_fail_total{status_code="404"} 1`,
		"healthfeed_feed_deactivated_total 1",
		"healthfeed_articles_fetched_total 25",
		"healthfeed_poll_cycle_feeds 35",
	}
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}
