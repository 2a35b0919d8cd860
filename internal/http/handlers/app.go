package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"fluxstudio/internal/console"
	"fluxstudio/internal/domain"
	"fluxstudio/internal/infra"
	"fluxstudio/internal/inputimage"
	"fluxstudio/internal/metrics"
)

// Upstream is the subset of the FLUX client the proxies need.
type Upstream interface {
	Submit(ctx context.Context, req domain.GenerationRequest) ([]byte, error)
	Poll(ctx context.Context, h domain.JobHandle) ([]byte, error)
	CheckPollingURL(raw string) error
}

type App struct {
	Config  *infra.Config
	Logger  *infra.Logger
	BFL     Upstream
	Console *console.Session
	Images  inputimage.Options
}

func NewApp(cfg *infra.Config, logger *infra.Logger, upstream Upstream, session *console.Session) *App {
	if logger == nil {
		logger = infra.NopLogger()
	}
	app := &App{Config: cfg, Logger: logger, BFL: upstream, Console: session}
	if cfg != nil {
		app.Images = inputimage.Options{
			MaxBytes:      cfg.MaxUploadBytes,
			MaxMegapixels: cfg.MaxInputMegapixels,
		}
	}
	return app
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, message string) {
	a.json(w, code, map[string]string{"error": message})
}

func (a *App) maxBodyBytes() int64 {
	const fallback = 16 << 20
	if a.Images.MaxBytes <= 0 {
		return fallback
	}
	// base64 inflates the payload by a third; leave room for the JSON around it.
	return a.Images.MaxBytes*4/3 + 64<<10
}

// relay writes an upstream answer back to the caller: the raw body on
// success, an {error} envelope otherwise.
func (a *App) relay(w http.ResponseWriter, endpoint string, body []byte, err error) {
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		metrics.ProxyRequestsTotal.WithLabelValues(endpoint, "200").Inc()
		return
	}

	var httpErr *domain.HTTPError
	switch {
	case errors.As(err, &httpErr):
		a.fail(w, endpoint, httpErr.Status, "upstream: "+strconv.Itoa(httpErr.Status)+" "+httpErr.Message)
	case errors.Is(err, domain.ErrTransport):
		a.Logger.Error().Err(err).Str("endpoint", endpoint).Msg("upstream unreachable")
		a.fail(w, endpoint, http.StatusBadGateway, "upstream unreachable")
	default:
		a.Logger.Error().Err(err).Str("endpoint", endpoint).Msg("proxy failure")
		a.fail(w, endpoint, http.StatusInternalServerError, "internal error")
	}
}

func (a *App) fail(w http.ResponseWriter, endpoint string, code int, message string) {
	metrics.ProxyRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	a.error(w, code, message)
}
