package handlers

import (
	"net/http"
	"strings"

	"studio/internal/campaign"
	"studio/internal/middleware"
)

type campaignResponse struct {
	State *campaign.State `json:"state"`
	Error *errorDetail    `json:"error,omitempty"`
}

// CampaignsRun runs or resumes the content wizard. On failure the state
// reached so far is returned next to the error so the client can resume.
func (a *App) CampaignsRun(w http.ResponseWriter, r *http.Request) {
	var req campaign.Request
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Locale) == "" {
		req.Locale = middleware.LocaleFromContext(r.Context())
	}
	keepWriting(w)

	state, err := a.Campaigns.Run(r.Context(), req)
	if err == nil {
		a.json(w, http.StatusOK, campaignResponse{State: state})
		return
	}
	if state == nil {
		a.fail(w, r, err)
		return
	}
	status, detail := a.classify(r, err)
	a.json(w, status, campaignResponse{State: state, Error: &detail})
}
