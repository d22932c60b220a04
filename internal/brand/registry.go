// Package brand registers documents, websites and competitors with the
// backend and keeps a local record of them for brand-context summaries.
package brand

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"studio/internal/backend"
	"studio/internal/domain"
	"studio/internal/infra"
)

// MaxDocumentSize caps a single uploaded document.
const MaxDocumentSize = 10 << 20

const maxImportFileSize = 1 << 20

// Client is the backend surface the registry depends on.
type Client interface {
	UploadDocument(ctx context.Context, filename string, content io.Reader) (*backend.ResourceResponse, error)
	ScrapeWebsite(ctx context.Context, siteURL string) (*backend.ResourceResponse, error)
	AddCompetitor(ctx context.Context, name, siteURL string) (*backend.ResourceResponse, error)
	DeleteSource(ctx context.Context, kind domain.SourceKind, resourceID string) error
	BrandContext(ctx context.Context, resourceIDs []string) (string, error)
}

// Options configures a Registry.
type Options struct {
	Logger *infra.Logger
	Now    func() time.Time
	NewID  func() string
}

type Registry struct {
	client Client
	repo   domain.SourceRepository
	logger *infra.Logger
	now    func() time.Time
	newID  func() string
}

func NewRegistry(client Client, repo domain.SourceRepository, opts Options) *Registry {
	r := &Registry{
		client: client,
		repo:   repo,
		logger: infra.LoggerOrNop(opts.Logger),
		now:    opts.Now,
		newID:  opts.NewID,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// AddDocument uploads a document and records it.
func (r *Registry) AddDocument(ctx context.Context, name string, content io.Reader) (*domain.BrandContextSource, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: document name is required", domain.ErrInvalidInput)
	}
	if content == nil {
		return nil, fmt.Errorf("%w: document content is required", domain.ErrInvalidInput)
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("brand: read document: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: document is empty", domain.ErrInvalidInput)
	}
	if len(data) > MaxDocumentSize {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", domain.ErrInvalidInput, MaxDocumentSize)
	}
	resp, err := r.client.UploadDocument(ctx, name, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return r.record(ctx, domain.BrandContextSource{Kind: domain.SourceKindDocument, Name: name, ResourceID: resp.ResourceID})
}

// AddWebsite registers a website for scraping. The same site cannot be added
// twice.
func (r *Registry) AddWebsite(ctx context.Context, rawURL string) (*domain.BrandContextSource, error) {
	siteURL, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if err := r.ensureUnique(ctx, domain.SourceKindWebsite, "", siteURL); err != nil {
		return nil, err
	}
	resp, err := r.client.ScrapeWebsite(ctx, siteURL)
	if err != nil {
		return nil, err
	}
	return r.record(ctx, domain.BrandContextSource{Kind: domain.SourceKindWebsite, Name: hostOf(siteURL), URL: siteURL, ResourceID: resp.ResourceID})
}

// AddCompetitor registers a competitor by name with an optional site.
func (r *Registry) AddCompetitor(ctx context.Context, name, rawURL string) (*domain.BrandContextSource, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: competitor name is required", domain.ErrInvalidInput)
	}
	siteURL := ""
	if strings.TrimSpace(rawURL) != "" {
		normalized, err := NormalizeURL(rawURL)
		if err != nil {
			return nil, err
		}
		siteURL = normalized
	}
	if err := r.ensureUnique(ctx, domain.SourceKindCompetitor, name, siteURL); err != nil {
		return nil, err
	}
	resp, err := r.client.AddCompetitor(ctx, name, siteURL)
	if err != nil {
		return nil, err
	}
	return r.record(ctx, domain.BrandContextSource{Kind: domain.SourceKindCompetitor, Name: name, URL: siteURL, ResourceID: resp.ResourceID})
}

// ImportDirectory uploads every readable text file directly inside dir.
// Binary and oversized files are skipped.
func (r *Registry) ImportDirectory(ctx context.Context, dir string) ([]domain.BrandContextSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("brand: read dir: %w", err)
	}
	var added []domain.BrandContextSource
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return added, err
		}
		if info.Size() == 0 || info.Size() > maxImportFileSize {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return added, err
		}
		if !utf8.Valid(data) || bytes.IndexByte(data, 0) >= 0 {
			r.logger.Debug().Str("file", entry.Name()).Msg("brand: skipped non-text file")
			continue
		}
		source, err := r.AddDocument(ctx, entry.Name(), bytes.NewReader(data))
		if err != nil {
			return added, err
		}
		added = append(added, *source)
	}
	return added, nil
}

// List returns registered sources, optionally filtered by kind.
func (r *Registry) List(ctx context.Context, kind domain.SourceKind) ([]domain.BrandContextSource, error) {
	all, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		return all, nil
	}
	out := make([]domain.BrandContextSource, 0, len(all))
	for _, s := range all {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out, nil
}

// Remove deletes a source. The remote delete is best effort; the local record
// is always removed.
func (r *Registry) Remove(ctx context.Context, id string) error {
	source, err := r.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if source.ResourceID != "" {
		if err := r.client.DeleteSource(ctx, source.Kind, source.ResourceID); err != nil {
			r.logger.Warn().Err(err).Str("source_id", id).Str("resource_id", source.ResourceID).Msg("brand: remote delete failed")
		}
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("brand: delete %s: %w", id, err)
	}
	r.logger.Info().Str("source_id", id).Str("kind", string(source.Kind)).Msg("brand: source removed")
	return nil
}

// Context returns the backend's brand summary for every registered source.
// With no sources it returns an empty summary without calling the backend.
func (r *Registry) Context(ctx context.Context) (string, error) {
	sources, err := r.repo.List(ctx)
	if err != nil {
		return "", err
	}
	ids := make([]string, 0, len(sources))
	for _, s := range sources {
		if s.ResourceID != "" {
			ids = append(ids, s.ResourceID)
		}
	}
	if len(ids) == 0 {
		return "", nil
	}
	return r.client.BrandContext(ctx, ids)
}

func (r *Registry) record(ctx context.Context, source domain.BrandContextSource) (*domain.BrandContextSource, error) {
	source.ID = r.newID()
	source.AddedAt = r.now().UTC()
	if err := r.repo.Save(ctx, source); err != nil {
		return nil, fmt.Errorf("brand: save source: %w", err)
	}
	r.logger.Info().Str("source_id", source.ID).Str("kind", string(source.Kind)).Str("resource_id", source.ResourceID).Msg("brand: source added")
	return &source, nil
}

func (r *Registry) ensureUnique(ctx context.Context, kind domain.SourceKind, name, siteURL string) error {
	existing, err := r.List(ctx, kind)
	if err != nil {
		return err
	}
	for _, s := range existing {
		if siteURL != "" && s.URL == siteURL {
			return fmt.Errorf("%w: %s already registered", domain.ErrDuplicateOperation, siteURL)
		}
		if name != "" && strings.EqualFold(s.Name, name) {
			return fmt.Errorf("%w: %s already registered", domain.ErrDuplicateOperation, name)
		}
	}
	return nil
}

// NormalizeURL adds a missing https scheme, lowercases the host and trims
// trailing slashes.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", domain.ErrInvalidInput)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: invalid url: %v", domain.ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: url must be http or https", domain.ErrInvalidInput)
	}
	if u.Host == "" || strings.ContainsAny(u.Host, " ") {
		return "", fmt.Errorf("%w: url host is required", domain.ErrInvalidInput)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String(), nil
}

func hostOf(siteURL string) string {
	u, err := url.Parse(siteURL)
	if err != nil {
		return siteURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}

