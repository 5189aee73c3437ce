package trace

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"insight/internal/log"
)

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Format: log.FormatJSON, Output: &buf})
	m := NewMiddleware(func(*http.Request) string { return "10.0.0.1" }, logger)

	var seen string
	h := log.Middleware(logger)(m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		log.FromContext(r.Context()).InfoContext(r.Context(), "inside handler")
		w.WriteHeader(http.StatusNotFound)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dashboard/api/view?department=Retail", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a uuid: %v", seen, err)
	}
	if got := rec.Header().Get(HeaderRequestID); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Errorf("TotalRequests = %d, want 1", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected start, handler and end log lines, got %d:\n%s", len(lines), buf.String())
	}
	var inside, end map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &inside); err != nil {
		t.Fatal(err)
	}
	if inside[log.FieldRequestID] != seen {
		t.Errorf("handler log request_id = %v, want %s", inside[log.FieldRequestID], seen)
	}
	if err := json.Unmarshal([]byte(lines[2]), &end); err != nil {
		t.Fatal(err)
	}
	if end[log.FieldRequestID] != seen || end[log.FieldComponent] != log.ComponentTrace {
		t.Errorf("end log = %v", end)
	}
	if end["level"] != "WARN" {
		t.Errorf("404 should log at WARN, got %v", end["level"])
	}
	if end[log.FieldStatusCode] != float64(http.StatusNotFound) {
		t.Errorf("status_code = %v", end[log.FieldStatusCode])
	}
	if end[log.FieldClientIP] != "10.0.0.1" {
		t.Errorf("client_ip = %v", end[log.FieldClientIP])
	}
}

func TestRequestIDFromHeader(t *testing.T) {
	id := uuid.NewString()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, id)
	if got := RequestIDFromHeader(r); got != id {
		t.Errorf("RequestIDFromHeader() = %q, want incoming %q", got, id)
	}

	r.Header.Set(HeaderRequestID, "<script>")
	if got := RequestIDFromHeader(r); got == "<script>" {
		t.Error("malformed incoming ids must be replaced")
	}
}
