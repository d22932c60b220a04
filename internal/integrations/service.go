// Package integrations mirrors the OAuth connections owned by the backend.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/kv"
)

const snapshotKey = "snapshot"

// KnownPlatforms are listed even when the backend does not report them.
var KnownPlatforms = []string{domain.PlatformNotion, domain.PlatformGoogleDrive, domain.PlatformLinkedIn}

// Client is the backend surface the service depends on.
type Client interface {
	ListIntegrations(ctx context.Context) ([]domain.Integration, error)
	ConnectIntegration(ctx context.Context, platform, redirectURL string) (string, error)
	DisconnectIntegration(ctx context.Context, platform string) error
}

// Snapshot is the last integration list fetched from the backend.
type Snapshot struct {
	Integrations []domain.Integration `json:"integrations"`
	FetchedAt    time.Time            `json:"fetched_at"`
}

// Options configures a Service.
type Options struct {
	Logger *infra.Logger
	Now    func() time.Time
}

type Service struct {
	client Client
	store  *kv.Store
	logger *infra.Logger
	now    func() time.Time
}

func NewService(client Client, backend kv.Backend, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		client: client,
		store:  kv.NewStore(backend, kv.NamespaceIntegrations),
		logger: infra.LoggerOrNop(opts.Logger),
		now:    now,
	}
}

// List refreshes the integration list from the backend and stores the
// snapshot. Known platforms missing from the response are listed inactive.
func (s *Service) List(ctx context.Context) ([]domain.Integration, error) {
	remote, err := s.client.ListIntegrations(ctx)
	if err != nil {
		return nil, err
	}
	merged := merge(remote)
	snap := Snapshot{Integrations: merged, FetchedAt: s.now().UTC()}
	if err := s.store.SetJSON(ctx, snapshotKey, snap); err != nil {
		s.logger.Warn().Err(err).Msg("integrations: store snapshot failed")
	}
	return merged, nil
}

// Cached returns the last stored snapshot without a network call.
func (s *Service) Cached(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := s.store.GetJSON(ctx, snapshotKey, &snap); err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return &Snapshot{Integrations: merge(nil)}, nil
		}
		return nil, err
	}
	return &snap, nil
}

// Connect starts an OAuth flow and returns the URL the user must visit.
func (s *Service) Connect(ctx context.Context, platform, redirectURL string) (string, error) {
	platform, err := normalizePlatform(platform)
	if err != nil {
		return "", err
	}
	if redirectURL = strings.TrimSpace(redirectURL); redirectURL != "" {
		if u, err := url.Parse(redirectURL); err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("%w: redirect_url must be absolute", domain.ErrInvalidInput)
		}
	}
	authURL, err := s.client.ConnectIntegration(ctx, platform, redirectURL)
	if err != nil {
		return "", err
	}
	s.logger.Info().Str("platform", platform).Msg("integrations: connect started")
	return authURL, nil
}

// Disconnect revokes an integration and refreshes the snapshot.
func (s *Service) Disconnect(ctx context.Context, platform string) error {
	platform, err := normalizePlatform(platform)
	if err != nil {
		return err
	}
	if err := s.client.DisconnectIntegration(ctx, platform); err != nil {
		return err
	}
	s.logger.Info().Str("platform", platform).Msg("integrations: disconnected")
	if _, err := s.List(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("integrations: refresh after disconnect failed")
	}
	return nil
}

// ActiveConnectionIDs returns connection ids of active integrations, limited
// to platforms when any are given. It uses the stored snapshot.
func (s *Service) ActiveConnectionIDs(ctx context.Context, platforms ...string) ([]string, error) {
	snap, err := s.Cached(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(platforms))
	for _, p := range platforms {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			want[p] = struct{}{}
		}
	}
	var ids []string
	for _, in := range snap.Integrations {
		if !in.IsActive || in.ConnectionID == "" {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[in.Platform]; !ok {
				continue
			}
		}
		ids = append(ids, in.ConnectionID)
	}
	return ids, nil
}

// DisplayName renders a platform id for people, e.g. "google_drive" as
// "Google Drive".
func DisplayName(platform string) string {
	switch platform {
	case domain.PlatformLinkedIn:
		return "LinkedIn"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(platform, "_", " "))
}

func merge(remote []domain.Integration) []domain.Integration {
	byPlatform := make(map[string]domain.Integration, len(remote)+len(KnownPlatforms))
	for _, p := range KnownPlatforms {
		byPlatform[p] = domain.Integration{Platform: p}
	}
	for _, in := range remote {
		in.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
		if in.Platform == "" {
			continue
		}
		byPlatform[in.Platform] = in
	}
	out := make([]domain.Integration, 0, len(byPlatform))
	for _, in := range byPlatform {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

func normalizePlatform(platform string) (string, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return "", fmt.Errorf("%w: platform is required", domain.ErrInvalidInput)
	}
	for _, r := range platform {
		if !(r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return "", fmt.Errorf("%w: invalid platform %q", domain.ErrInvalidInput, platform)
		}
	}
	return platform, nil
}
