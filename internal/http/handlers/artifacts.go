package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"studio/internal/domain"

	"github.com/go-chi/chi/v5"
)

type artifactPutRequest struct {
	Data string `json:"data"`
}

type artifactGenerateRequest struct {
	Prompt      string `json:"prompt"`
	Model       string `json:"model"`
	Resolution  string `json:"resolution"`
	AspectRatio string `json:"aspect_ratio"`
	Locale      string `json:"locale"`
}

type artifactResponse struct {
	Artifact *domain.CachedArtifact `json:"artifact"`
	Created  bool                   `json:"created"`
}

func (a *App) ArtifactsList(w http.ResponseWriter, r *http.Request) {
	items, err := a.Artifacts.List(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.CachedArtifact{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) ArtifactGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	artifact, err := a.Artifacts.Get(r.Context(), key)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if artifact == nil {
		a.error(w, http.StatusNotFound, "not_found", fmt.Sprintf("no cached artifact for %q", key))
		return
	}
	a.json(w, http.StatusOK, artifact)
}

func (a *App) ArtifactPut(w http.ResponseWriter, r *http.Request) {
	var req artifactPutRequest
	if !a.decode(w, r, &req) {
		return
	}
	artifact, err := a.Artifacts.Set(r.Context(), chi.URLParam(r, "key"), req.Data)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, artifact)
}

func (a *App) ArtifactDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Artifacts.Clear(r.Context(), chi.URLParam(r, "key")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) ArtifactsClear(w http.ResponseWriter, r *http.Request) {
	if err := a.Artifacts.ClearAll(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArtifactGenerate returns the cached image for key, generating it first when
// the cache has none.
func (a *App) ArtifactGenerate(w http.ResponseWriter, r *http.Request) {
	var req artifactGenerateRequest
	if !a.decode(w, r, &req) {
		return
	}
	genReq, err := jobCreateRequest{
		Kind:        string(domain.JobKindImage),
		Prompt:      req.Prompt,
		Model:       req.Model,
		Resolution:  req.Resolution,
		AspectRatio: req.AspectRatio,
		Locale:      req.Locale,
	}.toDomain(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	keepWriting(w)

	artifact, created, err := a.Artifacts.GetOrCreate(r.Context(), chi.URLParam(r, "key"), func(ctx context.Context) (string, error) {
		job, err := a.Jobs.Generate(ctx, genReq)
		if err != nil {
			return "", err
		}
		return job.ArtifactURL(), nil
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	a.json(w, code, artifactResponse{Artifact: artifact, Created: created})
}

func (a *App) ArtifactsExport(w http.ResponseWriter, r *http.Request) {
	keepWriting(w)
	archive, count, err := a.Exporter.Export(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=artifacts-%s.zip", a.now().UTC().Format("20060102")))
	w.Header().Set("X-Artifact-Count", strconv.Itoa(count))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
