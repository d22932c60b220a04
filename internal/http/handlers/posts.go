package handlers

import (
	"net/http"

	"studio/internal/domain"
	"studio/internal/publish"
)

type postRequest struct {
	ConnectionIDs []string         `json:"connection_ids"`
	Platforms     []string         `json:"platforms"`
	Caption       string           `json:"caption"`
	ArtifactURL   string           `json:"artifact_url"`
	MediaType     domain.AssetKind `json:"media_type"`
}

// PostsCreate publishes an artifact. Connection ids may be given directly or
// resolved from the active integrations for the listed platforms.
func (a *App) PostsCreate(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if !a.decode(w, r, &req) {
		return
	}
	ids := req.ConnectionIDs
	if len(ids) == 0 && len(req.Platforms) > 0 && a.Integrations != nil {
		resolved, err := a.Integrations.ActiveConnectionIDs(r.Context(), req.Platforms...)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		ids = resolved
	}
	keepWriting(w)

	result, err := a.Publisher.Publish(r.Context(), publish.Request{
		ConnectionIDs: ids,
		Caption:       req.Caption,
		ArtifactURL:   req.ArtifactURL,
		MediaType:     req.MediaType,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, result)
}
