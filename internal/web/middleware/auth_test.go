package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireToken(t *testing.T) {
	protected := RequireToken("s3cret")(okHandler())

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer s3cret", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "Basic s3cret", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("DELETE", "/api/v1/identities/alice", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			protected.ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Errorf("Status = %d, want %d", w.Code, tc.want)
			}
			if tc.want == http.StatusUnauthorized {
				var body map[string]string
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("expected JSON error body: %v", err)
				}
				if body["error"] != "unauthorized" {
					t.Errorf("error = %q, want unauthorized", body["error"])
				}
			}
		})
	}
}

func TestRequireToken_EmptyDisablesCheck(t *testing.T) {
	w := httptest.NewRecorder()
	RequireToken("")(okHandler()).ServeHTTP(w, httptest.NewRequest("POST", "/", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRateLimit(t *testing.T) {
	limited := RateLimit(1)(okHandler())

	first := httptest.NewRecorder()
	limited.ServeHTTP(first, httptest.NewRequest("POST", "/api/v1/verify", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", first.Code, http.StatusOK)
	}

	second := httptest.NewRecorder()
	limited.ServeHTTP(second, httptest.NewRequest("POST", "/api/v1/verify", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", second.Code, http.StatusTooManyRequests)
	}
	if second.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", second.Header().Get("Retry-After"))
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	unlimited := RateLimit(0)(okHandler())
	for i := range 20 {
		w := httptest.NewRecorder()
		unlimited.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/verify", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := chiMiddleware.RequestID(RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) {
		t.Errorf("status field = %v, want %d", fields["status"], http.StatusTeapot)
	}
	if fields["bytes"] != int64(len("short and stout")) {
		t.Errorf("bytes field = %v", fields["bytes"])
	}
	if fields["path"] != "/api/v1/health" {
		t.Errorf("path field = %v", fields["path"])
	}
	if fields["request_id"] == "" {
		t.Error("expected a request id")
	}
	if _, ok := fields["duration"].(time.Duration); !ok {
		t.Errorf("duration field has type %T", fields["duration"])
	}
}
