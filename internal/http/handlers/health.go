package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if a.Console != nil {
		resp["console"] = string(a.Console.Snapshot().State)
	}
	a.json(w, http.StatusOK, resp)
}
