package handlers

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fluxstudio/internal/console"
	"fluxstudio/internal/domain"
	"fluxstudio/internal/i18n"
	"fluxstudio/internal/inputimage"
	"fluxstudio/internal/middleware"
)

//go:embed templates/console.html
var templateFS embed.FS

var consoleTemplate = template.Must(template.New("console.html").Funcs(template.FuncMap{
	"clock": func(t time.Time) string { return t.Format("15:04:05") },
}).ParseFS(templateFS, "templates/console.html"))

type consoleView struct {
	Lang         string
	L            map[string]string
	Snapshot     console.Snapshot
	AspectRatios []domain.AspectRatio
	Formats      []domain.OutputFormat
	SafetyLevels []int
	Sync         bool
	FormError    string
}

func (a *App) consoleLabels(r *http.Request) map[string]string {
	p := middleware.PrinterFromContext(r.Context())
	keys := map[string]string{
		"Title":      i18n.LabelTitle,
		"Input":      i18n.LabelInput,
		"Result":     i18n.LabelResult,
		"Prompt":     i18n.LabelPrompt,
		"Image":      i18n.LabelImage,
		"Seed":       i18n.LabelSeed,
		"Aspect":     i18n.LabelAspect,
		"Format":     i18n.LabelFormat,
		"Upsampling": i18n.LabelUpsampling,
		"Safety":     i18n.LabelSafety,
		"Sync":       i18n.LabelSync,
		"Generate":   i18n.LabelGenerate,
		"Reset":      i18n.LabelReset,
		"Logs":       i18n.LabelLogs,
		"Running":    i18n.LabelRunning,
		"Idle":       i18n.LabelIdle,
		"Status":     i18n.LabelStatus,
		"Error":      i18n.LabelError,
		"OpenImage":  i18n.LabelOpenImage,
		"Random":     i18n.LabelRandom,
	}
	out := make(map[string]string, len(keys))
	for name, key := range keys {
		out[name] = p.Sprintf(key)
	}
	return out
}

func (a *App) renderConsole(w http.ResponseWriter, r *http.Request, code int, formErr string) {
	levels := make([]int, 0, domain.MaxSafetyTolerance-domain.MinSafetyTolerance+1)
	for i := domain.MinSafetyTolerance; i <= domain.MaxSafetyTolerance; i++ {
		levels = append(levels, i)
	}
	view := consoleView{
		Lang:         middleware.LocaleFromContext(r.Context()).String(),
		L:            a.consoleLabels(r),
		Snapshot:     a.Console.Snapshot(),
		AspectRatios: domain.AspectRatios,
		Formats:      []domain.OutputFormat{domain.FormatJPEG, domain.FormatPNG},
		SafetyLevels: levels,
		Sync:         a.Config != nil && a.Config.SyncMode,
		FormError:    formErr,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := consoleTemplate.Execute(w, view); err != nil {
		a.Logger.Error().Err(err).Msg("render console")
	}
}

// ConsolePage renders the generation form together with the current run.
func (a *App) ConsolePage(w http.ResponseWriter, r *http.Request) {
	a.renderConsole(w, r, http.StatusOK, "")
}

// ConsoleGenerate starts a run from the multipart form, replacing any run in
// progress.
func (a *App) ConsoleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxBodyBytes())
	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		a.consoleError(w, r, http.StatusBadRequest, "invalid form: "+err.Error())
		return
	}

	req, err := requestFromForm(r)
	if err != nil {
		a.consoleError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if file, _, err := r.FormFile("image"); err == nil {
		data, readErr := io.ReadAll(file)
		_ = file.Close()
		if readErr != nil {
			a.consoleError(w, r, http.StatusBadRequest, "invalid image upload")
			return
		}
		if len(data) > 0 {
			img, err := inputimage.Normalize(data, a.Images)
			if err != nil {
				code := http.StatusBadRequest
				if errors.Is(err, inputimage.ErrTooLarge) {
					code = http.StatusRequestEntityTooLarge
				}
				a.consoleError(w, r, code, err.Error())
				return
			}
			req.InputImage = img.Base64
		}
	}

	runID, err := a.Console.Start(req, console.StartOptions{
		Locale:      middleware.LocaleFromContext(r.Context()),
		Synchronous: formBool(r, "sync"),
	})
	if err != nil {
		a.consoleError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if wantsJSON(r) {
		a.json(w, http.StatusAccepted, map[string]string{"run_id": runID})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ConsoleReset cancels the current run and clears the slot.
func (a *App) ConsoleReset(w http.ResponseWriter, r *http.Request) {
	a.Console.Reset()
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// ConsoleState returns the current run as JSON.
func (a *App) ConsoleState(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Console.Snapshot())
}

func (a *App) consoleError(w http.ResponseWriter, r *http.Request, code int, message string) {
	if wantsJSON(r) {
		a.error(w, code, message)
		return
	}
	a.renderConsole(w, r, code, message)
}

func requestFromForm(r *http.Request) (domain.GenerationRequest, error) {
	req := domain.GenerationRequest{
		Prompt:           r.FormValue("prompt"),
		AspectRatio:      domain.AspectRatio(r.FormValue("aspect_ratio")),
		OutputFormat:     domain.OutputFormat(r.FormValue("output_format")),
		PromptUpsampling: formBool(r, "prompt_upsampling"),
	}
	if raw := strings.TrimSpace(r.FormValue("seed")); raw != "" {
		seed, err := strconv.Atoi(raw)
		if err != nil {
			return req, errors.New("seed must be a whole number")
		}
		req.Seed = &seed
	}
	if raw := strings.TrimSpace(r.FormValue("safety_tolerance")); raw != "" {
		tolerance, err := strconv.Atoi(raw)
		if err != nil {
			return req, errors.New("safety_tolerance must be a whole number")
		}
		req.SafetyTolerance = &tolerance
	}
	return req, nil
}

func formBool(r *http.Request, key string) bool {
	switch strings.ToLower(strings.TrimSpace(r.FormValue(key))) {
	case "1", "on", "true", "yes":
		return true
	}
	return false
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
