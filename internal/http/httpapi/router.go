package httpapi

import (
	"net/http"
	"time"

	"studio/internal/http/handlers"
	mw "studio/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	var (
		origins   []string
		rateLimit int
		secret    string
		locales   []string
	)
	if cfg := app.Config; cfg != nil {
		origins = cfg.CORSAllowedOrigins
		rateLimit = cfg.RateLimitPerMin
		secret = cfg.JWTSecret
		locales = append([]string{cfg.DefaultLocale}, cfg.SupportedLocales...)
	}

	r.Use(
		mw.RequestID,
		middleware.RealIP,
		mw.Logger(app.Logger),
		middleware.Recoverer,
		mw.CORS(origins),
		mw.RateLimit(rateLimit, time.Minute),
		mw.I18N(mw.NewLocales(locales...), app.CountryLookup),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(mw.AuthJWT(secret))

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.JobsCreate)
			r.Get("/", app.JobsList)
			r.Get("/{job_id}", app.JobStatus)
			r.Delete("/{job_id}", app.JobStop)
		})

		r.Route("/v1/artifacts", func(r chi.Router) {
			r.Get("/", app.ArtifactsList)
			r.Delete("/", app.ArtifactsClear)
			r.Get("/export", app.ArtifactsExport)
			r.Get("/{key}", app.ArtifactGet)
			r.Put("/{key}", app.ArtifactPut)
			r.Delete("/{key}", app.ArtifactDelete)
			r.Post("/{key}/generate", app.ArtifactGenerate)
		})

		r.Post("/v1/posts", app.PostsCreate)

		r.Route("/v1/sources", func(r chi.Router) {
			r.Get("/", app.SourcesList)
			r.Get("/context", app.SourcesContext)
			r.Post("/documents", app.SourcesUploadDocument)
			r.Post("/websites", app.SourcesAddWebsite)
			r.Post("/competitors", app.SourcesAddCompetitor)
			r.Delete("/{id}", app.SourceDelete)
		})

		r.Route("/v1/integrations", func(r chi.Router) {
			r.Get("/", app.IntegrationsList)
			r.Post("/{platform}/connect", app.IntegrationConnect)
			r.Delete("/{platform}", app.IntegrationDisconnect)
		})

		r.Post("/v1/campaigns", app.CampaignsRun)
	})

	return r
}
