package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fluxstudio/internal/console"
	"fluxstudio/internal/domain"
	"fluxstudio/internal/http/handlers"
	"fluxstudio/internal/infra"
	"fluxstudio/internal/tracker"
)

type nopUpstream struct{}

func (nopUpstream) Submit(context.Context, domain.GenerationRequest) ([]byte, error) {
	return []byte(`{"id":"abc"}`), nil
}

func (nopUpstream) Poll(context.Context, domain.JobHandle) ([]byte, error) {
	return []byte(`{"status":"Pending"}`), nil
}

func (nopUpstream) CheckPollingURL(string) error { return nil }

func newTestRouter(cfg *infra.Config) http.Handler {
	session := console.NewSession(nopUpstream{}, tracker.Options{}, nil)
	app := handlers.NewApp(cfg, nil, nopUpstream{}, session)
	return NewRouter(app)
}

func TestRouterRoutes(t *testing.T) {
	router := newTestRouter(&infra.Config{DefaultLocale: "en"})
	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/v1/healthz", http.StatusOK},
		{http.MethodGet, "/v1/openapi.json", http.StatusOK},
		{http.MethodGet, "/v1/docs", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/", http.StatusOK},
		{http.MethodGet, "/console/state", http.StatusOK},
		{http.MethodGet, "/api/poll?id=abc", http.StatusOK},
		{http.MethodGet, "/api/poll", http.StatusBadRequest},
		{http.MethodGet, "/api/generate", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Fatalf("missing request id header")
			}
		})
	}
}

func TestRouterRateLimitsProxy(t *testing.T) {
	router := newTestRouter(&infra.Config{RateLimitPerMin: 1})

	call := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(`{"prompt":"x"}`))
		req.RemoteAddr = "203.0.113.9:5000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}
	if got := call(); got != http.StatusOK {
		t.Fatalf("first call = %d, want 200", got)
	}
	if got := call(); got != http.StatusTooManyRequests {
		t.Fatalf("second call = %d, want 429", got)
	}
}

func TestRouterNegotiatesLocale(t *testing.T) {
	router := newTestRouter(&infra.Config{DefaultLocale: "pt-BR"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if got := rec.Header().Get("Content-Language"); got != "pt-BR" {
		t.Fatalf("Content-Language = %q, want pt-BR", got)
	}
}
