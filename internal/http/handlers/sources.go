package handlers

import (
	"errors"
	"net/http"

	"studio/internal/brand"
	"studio/internal/domain"

	"github.com/go-chi/chi/v5"
)

type websiteRequest struct {
	URL string `json:"url"`
}

type competitorRequest struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (a *App) SourcesList(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseSourceKind(r.URL.Query().Get("kind"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items, err := a.Sources.List(r.Context(), kind)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.BrandContextSource{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// SourcesUploadDocument accepts a multipart upload in the "file" field.
func (a *App) SourcesUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, brand.MaxDocumentSize+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", "document too large")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "file field required")
		return
	}
	defer file.Close()

	source, err := a.Sources.AddDocument(r.Context(), header.Filename, file)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, source)
}

func (a *App) SourcesAddWebsite(w http.ResponseWriter, r *http.Request) {
	var req websiteRequest
	if !a.decode(w, r, &req) {
		return
	}
	source, err := a.Sources.AddWebsite(r.Context(), req.URL)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, source)
}

func (a *App) SourcesAddCompetitor(w http.ResponseWriter, r *http.Request) {
	var req competitorRequest
	if !a.decode(w, r, &req) {
		return
	}
	source, err := a.Sources.AddCompetitor(r.Context(), req.Name, req.URL)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, source)
}

func (a *App) SourceDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.Sources.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) SourcesContext(w http.ResponseWriter, r *http.Request) {
	summary, err := a.Sources.Context(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{"context": summary})
}
