// Package storage archives finished artifacts and bundles them for export.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"studio/internal/cache"
)

// Archiver persists artifact bytes under key and returns where they landed.
type Archiver interface {
	Write(ctx context.Context, key string, data []byte, mime string) (string, error)
}

// MaxDownloadSize caps a single artifact download.
const MaxDownloadSize = 512 << 20

// ErrTooLarge is returned when an artifact exceeds MaxDownloadSize.
var ErrTooLarge = errors.New("storage: artifact exceeds size limit")

// Downloader resolves an artifact reference to bytes.
type Downloader struct {
	client *http.Client
}

// NewDownloader returns a Downloader using client, or a client with a
// five-minute timeout when nil.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Downloader{client: client}
}

// Fetch returns the payload and mime type of ref, which may be a data URI or
// an http(s) URL.
func (d *Downloader) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "data:") {
		return cache.DecodeDataURI(ref)
	}
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return nil, "", fmt.Errorf("storage: unsupported artifact reference %q", ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("storage: build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("storage: download artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("storage: download artifact: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("storage: read artifact: %w", err)
	}
	if len(data) > MaxDownloadSize {
		return nil, "", ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(req.URL.Path)); byExt != "" {
			contentType = byExt
		}
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// ExtensionFor picks a file extension for a mime type.
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
