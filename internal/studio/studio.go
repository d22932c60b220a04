// Package studio assembles the content studio from configuration. The api,
// worker and studioctl binaries all build on it.
package studio

import (
	"context"
	"fmt"
	"net/http"

	"studio/internal/backend"
	"studio/internal/brand"
	"studio/internal/cache"
	"studio/internal/campaign"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/integrations"
	"studio/internal/jobs"
	"studio/internal/kv"
	"studio/internal/publish"
	"studio/internal/storage"
)

// Options tunes how the studio is assembled.
type Options struct {
	// ArchiveOnComplete archives every artifact as soon as its job completes.
	ArchiveOnComplete bool
	HTTPClient        *http.Client
}

// Studio holds every wired component.
type Studio struct {
	Config       *infra.Config
	Logger       *infra.Logger
	Store        kv.Backend
	Credentials  *credentials.Store
	Client       *backend.Client
	Jobs         *jobs.Service
	Tracker      *jobs.Tracker
	Cache        *cache.Cache
	Publisher    *publish.Publisher
	Sources      *brand.Registry
	Integrations *integrations.Service
	Campaigns    *campaign.Wizard
	Archiver     *storage.JobArchiver
	Exporter     *storage.Exporter

	closeStore func()
}

// New opens the store and wires every component against the backend
// configured in cfg.
func New(ctx context.Context, cfg *infra.Config, logger *infra.Logger, opts Options) (*Studio, error) {
	logger = infra.LoggerOrNop(logger)

	store, closeStore, err := kv.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &Studio{Config: cfg, Logger: logger, Store: store, closeStore: closeStore}

	s.Credentials = credentials.NewStore(store)
	token, err := s.Credentials.Resolve(ctx, cfg.BackendAPIToken)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Client, err = backend.NewClient(backend.Options{
		BaseURL:        cfg.BackendBaseURL,
		APIToken:       token,
		HTTPClient:     opts.HTTPClient,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("studio: backend client: %w", err)
	}

	archive, err := newArchiver(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	downloader := storage.NewDownloader(opts.HTTPClient)
	s.Archiver = storage.NewJobArchiver(downloader, archive, store, logger)

	trackerOpts := jobs.TrackerOptions{Logger: logger}
	if opts.ArchiveOnComplete {
		trackerOpts.OnComplete = s.Archiver.OnComplete
	}
	submitter := jobs.NewSubmitter(s.Client, jobs.SubmitterOptions{
		VideoTimeout:  cfg.VideoSubmitTimeout,
		ImageTimeout:  cfg.ImageSubmitTimeout,
		DefaultLocale: cfg.DefaultLocale,
		Logger:        logger,
	})
	poller := jobs.NewPoller(s.Client, jobs.PollerOptions{
		Interval: cfg.PollInterval,
		Deadline: cfg.PollTimeout,
		Logger:   logger,
	})
	s.Tracker = jobs.NewTracker(poller, jobs.NewKVRepository(store), trackerOpts)
	s.Jobs = jobs.NewService(submitter, s.Tracker)

	s.Cache = cache.New(store, cache.Options{Logger: logger})
	s.Exporter = storage.NewExporter(s.Cache, downloader, logger)
	s.Publisher = publish.NewPublisher(s.Client, publish.Options{Timeout: cfg.PostTimeout, Logger: logger})
	s.Sources = brand.NewRegistry(s.Client, brand.NewKVRepository(store), brand.Options{Logger: logger})
	s.Integrations = integrations.NewService(s.Client, store, integrations.Options{Logger: logger})
	s.Campaigns = campaign.NewWizard(campaign.Dependencies{
		Copy:      s.Client,
		Brand:     s.Sources,
		Artifacts: s.Cache,
		Images:    s.Jobs,
		Poster:    s.Publisher,
		Logger:    logger,
	})
	return s, nil
}

func newArchiver(ctx context.Context, cfg *infra.Config) (storage.Archiver, error) {
	if cfg.S3Enabled() {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("studio: s3 archive: %w", err)
		}
		return store, nil
	}
	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("studio: file archive: %w", err)
	}
	return store, nil
}

// Close stops polling and releases the store.
func (s *Studio) Close() {
	if s.Tracker != nil {
		s.Tracker.Close()
	}
	if s.closeStore != nil {
		s.closeStore()
		s.closeStore = nil
	}
}
