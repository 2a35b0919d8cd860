package handlers

import (
	"net/http"

	"fluxstudio/internal/domain"
)

// Poll relays the status document of a job identified by ?id= or
// ?polling_url= (aliases taskId and pollUrl).
func (a *App) Poll(w http.ResponseWriter, r *http.Request) {
	h, ok := domain.HandleFromQuery(r.URL.Query())
	if !ok {
		a.fail(w, "poll", http.StatusBadRequest, "id or polling_url is required")
		return
	}
	if pollingURL := h.PollingURL(); pollingURL != "" {
		if err := a.BFL.CheckPollingURL(pollingURL); err != nil {
			a.Logger.Warn().Err(err).Msg("rejected polling url")
			a.fail(w, "poll", http.StatusBadRequest, "polling_url is not allowed")
			return
		}
	}
	body, err := a.BFL.Poll(r.Context(), h)
	a.relay(w, "poll", body, err)
}
