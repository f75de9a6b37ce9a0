package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})
}

func TestRecoveryMiddleware_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	handler := NewRecoveryMiddleware(discardLogger())(panicking)

	req := httptest.NewRequest(http.MethodGet, "/api/rss/feeds", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestLoggingMiddleware_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := NewLoggingMiddleware(logger)(notFound)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if entry["status"] != float64(404) {
		t.Errorf("status = %v, want 404", entry["status"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN for 4xx", entry["level"])
	}
	if entry["method"] != http.MethodGet {
		t.Errorf("method = %v", entry["method"])
	}
}

func TestCORSMiddleware(t *testing.T) {
	handler := NewCORSMiddleware("http://localhost:3000")(okHandler())

	t.Run("sets origin header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/rss/feeds", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Allow-Origin = %q", got)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("preflight returns 204", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/rss/feeds", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Error("preflight response must have empty body")
		}
	})
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := NewSecurityHeadersMiddleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	wants := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, want := range wants {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	config := RateLimiterConfig{
		Rate:            1,
		Burst:           3,
		CleanupInterval: time.Minute,
	}
	rl := NewRateLimiter(config, discardLogger())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/rss/articles", nil)
		req.RemoteAddr = "203.0.113.10:54321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/rss/articles", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("429 body is not JSON: %v", err)
	}
	if body["success"] != false {
		t.Errorf("success = %v, want false", body["success"])
	}
}

func TestRateLimiter_KeysByClientIP(t *testing.T) {
	config := RateLimiterConfig{
		Rate:            1,
		Burst:           1,
		CleanupInterval: time.Minute,
	}
	rl := NewRateLimiter(config, discardLogger())
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/api/rss/articles", nil)
	first.RemoteAddr = "203.0.113.10:1111"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first client status = %d", rec.Code)
	}

	// 別IPは独立したバケットを持つ
	second := httptest.NewRequest(http.MethodGet, "/api/rss/articles", nil)
	second.RemoteAddr = "203.0.113.20:2222"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusOK {
		t.Errorf("second client status = %d, want 200", rec.Code)
	}

	if rl.LimiterCount() != 2 {
		t.Errorf("LimiterCount = %d, want 2", rl.LimiterCount())
	}

	// 同一IPの2回目はバースト超過
	again := httptest.NewRequest(http.MethodGet, "/api/rss/articles", nil)
	again.RemoteAddr = "203.0.113.10:3333"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, again)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("same client second request status = %d, want 429", rec.Code)
	}
}

func TestNewRateLimiterConfig(t *testing.T) {
	config := NewRateLimiterConfig(120)
	if config.Burst != 120 {
		t.Errorf("Burst = %d, want 120", config.Burst)
	}
	if config.Rate != 2 {
		t.Errorf("Rate = %v, want 2 req/sec", config.Rate)
	}

	fallback := NewRateLimiterConfig(0)
	if fallback.Burst != 120 {
		t.Errorf("fallback Burst = %d, want 120", fallback.Burst)
	}
}
