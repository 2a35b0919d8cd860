package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"fluxstudio/internal/domain"
	"fluxstudio/internal/inputimage"
)

// Generate forwards a generation request to the FLUX API and relays the
// submit response unchanged.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req domain.GenerationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, a.maxBodyBytes())).Decode(&req); err != nil {
		a.fail(w, "generate", http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		a.fail(w, "generate", http.StatusBadRequest, err.Error())
		return
	}
	if req.InputImage != "" {
		img, err := inputimage.FromBase64(req.InputImage, a.Images)
		if err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, inputimage.ErrTooLarge) {
				code = http.StatusRequestEntityTooLarge
			}
			a.fail(w, "generate", code, err.Error())
			return
		}
		req.InputImage = img.Base64
	}

	a.Logger.Info().Str("summary", req.Summary()).Msg("forwarding generation request")
	body, err := a.BFL.Submit(r.Context(), req)
	a.relay(w, "generate", body, err)
}
