package storage

import (
	"context"
	"fmt"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/pkg/zip"
)

// ArtifactLister lists cached artifacts.
type ArtifactLister interface {
	List(ctx context.Context) ([]domain.CachedArtifact, error)
}

// Exporter bundles every cached artifact into one zip archive.
type Exporter struct {
	artifacts ArtifactLister
	fetcher   Fetcher
	logger    *infra.Logger
}

func NewExporter(artifacts ArtifactLister, fetcher Fetcher, logger *infra.Logger) *Exporter {
	return &Exporter{artifacts: artifacts, fetcher: fetcher, logger: infra.LoggerOrNop(logger)}
}

// Export returns the zip bytes and the number of artifacts included. An
// artifact that can't be fetched is skipped and only its source is listed in
// the manifest.
func (e *Exporter) Export(ctx context.Context) ([]byte, int, error) {
	cached, err := e.artifacts.List(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list artifacts: %w", err)
	}

	assets := make([]zip.Asset, 0, len(cached))
	included := 0
	for _, art := range cached {
		asset := zip.Asset{Filename: art.Key, Modified: art.Timestamp}
		if !art.IsDataURI() {
			asset.Source = art.Data
		}
		data, mimeType, err := e.fetcher.Fetch(ctx, art.Data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			e.logger.Warn().Err(err).Str("key", art.Key).Msg("export: skip artifact")
			assets = append(assets, asset)
			continue
		}
		asset.Filename = art.Key + ExtensionFor(mimeType)
		asset.MIME = mimeType
		asset.Data = data
		assets = append(assets, asset)
		included++
	}

	out, err := zip.ArchiveAssets(assets)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: build export: %w", err)
	}
	return out, included, nil
}
