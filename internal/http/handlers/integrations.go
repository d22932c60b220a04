package handlers

import (
	"net/http"

	"studio/internal/domain"
	"studio/internal/integrations"

	"github.com/go-chi/chi/v5"
)

type connectRequest struct {
	RedirectURL string `json:"redirect_url"`
}

type integrationView struct {
	domain.Integration
	DisplayName string `json:"display_name"`
}

func (a *App) IntegrationsList(w http.ResponseWriter, r *http.Request) {
	list, err := a.Integrations.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]integrationView, 0, len(list))
	for _, in := range list {
		items = append(items, integrationView{Integration: in, DisplayName: integrations.DisplayName(in.Platform)})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// IntegrationConnect returns the OAuth URL the user should be sent to.
func (a *App) IntegrationConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !a.decode(w, r, &req) {
		return
	}
	platform := chi.URLParam(r, "platform")
	authURL, err := a.Integrations.Connect(r.Context(), platform, req.RedirectURL)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"platform": platform, "auth_url": authURL})
}

func (a *App) IntegrationDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := a.Integrations.Disconnect(r.Context(), chi.URLParam(r, "platform")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
