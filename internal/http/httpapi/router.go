package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"fluxstudio/internal/http/handlers"
	"fluxstudio/internal/infra"
	"fluxstudio/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	cfg := app.Config
	if cfg == nil {
		cfg = &infra.Config{}
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(*app.Logger),
		chimw.Recoverer,
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.I18N(cfg.DefaultLocale),
	)

	// Health & docs
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Method(http.MethodGet, "/metrics", app.Metrics())

	// Proxies
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))
		r.Post("/generate", app.Generate)
		r.Get("/poll", app.Poll)
	})

	// Console
	r.Get("/", app.ConsolePage)
	r.Route("/console", func(r chi.Router) {
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/generate", app.ConsoleGenerate)
		r.Post("/reset", app.ConsoleReset)
		r.Get("/state", app.ConsoleState)
	})

	return r
}
