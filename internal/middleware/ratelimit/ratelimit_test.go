package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 1, Burst: 2})
	defer rl.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.1.1.1") || !rl.Allow("1.1.1.1") {
		t.Fatal("burst requests should be allowed")
	}
	if rl.Allow("1.1.1.1") {
		t.Error("third request within a second should be limited")
	}
	if !rl.Allow("2.2.2.2") {
		t.Error("clients are limited independently")
	}

	now = now.Add(time.Second)
	if !rl.Allow("1.1.1.1") {
		t.Error("a token should be back after one second")
	}
}

func TestLimiter_ZeroRateDisables(t *testing.T) {
	rl := NewLimiter(Config{Burst: 1})
	defer rl.Stop()
	for i := 0; i < 100; i++ {
		if !rl.Allow("1.1.1.1") {
			t.Fatalf("request %d limited with limiting disabled", i)
		}
	}
	if d := rl.RetryAfter("1.1.1.1"); d != 0 {
		t.Errorf("RetryAfter() = %v, want 0", d)
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 1, Burst: 1, IdleTimeout: time.Minute})
	defer rl.Stop()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.Allow("1.1.1.1")
	now = now.Add(30 * time.Second)
	rl.Allow("2.2.2.2")

	now = now.Add(45 * time.Second)
	rl.cleanupStaleEntries()
	if got := rl.ActiveClients(); got != 1 {
		t.Errorf("ActiveClients() = %d, want 1", got)
	}
}

func TestLimiter_Middleware(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerSecond: 0.5, Burst: 1})
	defer rl.Stop()

	limited := 0
	h := rl.Middleware(
		func(*http.Request) string { return "1.1.1.1" },
		func(w http.ResponseWriter, r *http.Request) {
			limited++
			w.WriteHeader(http.StatusTooManyRequests)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if limited != 1 {
		t.Errorf("onLimit called %d times, want 1", limited)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header should be set")
	}
}
