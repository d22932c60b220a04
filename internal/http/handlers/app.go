package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"studio/internal/cache"
	"studio/internal/campaign"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/middleware"
	"studio/internal/publish"

	"github.com/rs/zerolog"
)

// JobService submits and tracks generation jobs.
type JobService interface {
	Create(ctx context.Context, req domain.GenerationRequest) (domain.GenerationJob, error)
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationJob, error)
	Get(ctx context.Context, jobID string) (*domain.GenerationJob, error)
	List(ctx context.Context) ([]domain.GenerationJob, error)
	Polling(jobID string) bool
	Stop(jobID string) bool
}

// ArtifactCache stores finished artifacts by key.
type ArtifactCache interface {
	Get(ctx context.Context, key string) (*domain.CachedArtifact, error)
	Set(ctx context.Context, key, data string) (*domain.CachedArtifact, error)
	Clear(ctx context.Context, key string) error
	ClearAll(ctx context.Context) error
	List(ctx context.Context) ([]domain.CachedArtifact, error)
	GetOrCreate(ctx context.Context, key string, generate cache.GenerateFunc) (*domain.CachedArtifact, bool, error)
}

// ArtifactExporter bundles cached artifacts into a zip archive.
type ArtifactExporter interface {
	Export(ctx context.Context) ([]byte, int, error)
}

type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (*publish.Result, error)
}

type SourceRegistry interface {
	AddDocument(ctx context.Context, name string, content io.Reader) (*domain.BrandContextSource, error)
	AddWebsite(ctx context.Context, rawURL string) (*domain.BrandContextSource, error)
	AddCompetitor(ctx context.Context, name, rawURL string) (*domain.BrandContextSource, error)
	List(ctx context.Context, kind domain.SourceKind) ([]domain.BrandContextSource, error)
	Remove(ctx context.Context, id string) error
	Context(ctx context.Context) (string, error)
}

type IntegrationService interface {
	List(ctx context.Context) ([]domain.Integration, error)
	Connect(ctx context.Context, platform, redirectURL string) (string, error)
	Disconnect(ctx context.Context, platform string) error
	ActiveConnectionIDs(ctx context.Context, platforms ...string) ([]string, error)
}

type CampaignRunner interface {
	Run(ctx context.Context, req campaign.Request) (*campaign.State, error)
}

// App holds the services the studio API is built on.
type App struct {
	Config        *infra.Config
	Logger        zerolog.Logger
	Jobs          JobService
	Artifacts     ArtifactCache
	Exporter      ArtifactExporter
	Publisher     Publisher
	Sources       SourceRegistry
	Integrations  IntegrationService
	Campaigns     CampaignRunner
	CountryLookup middleware.CountryLookup
	Now           func() time.Time
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, errorBody{Error: errorDetail{Code: errCode, Message: message}})
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// maxJSONBody caps request bodies other than document uploads.
const maxJSONBody = 1 << 20

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large")
			return false
		}
		a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("invalid payload: %v", err))
		return false
	}
	return true
}

func (a *App) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

// keepWriting lifts the server write deadline for handlers that wait on
// long-running backend calls.
func keepWriting(w http.ResponseWriter) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
}
