package domain

import (
	"strings"
	"time"
)

// AssetKind enumerates artifact media types.
type AssetKind string

const (
	AssetKindImage AssetKind = "image"
	AssetKindVideo AssetKind = "video"
)

// CachedArtifact is a finished artifact stored to avoid billable regeneration.
// Data is either a URL or a data URI.
type CachedArtifact struct {
	Key       string    `json:"key"`
	Data      string    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// IsDataURI reports whether the artifact is inlined rather than referenced.
func (a CachedArtifact) IsDataURI() bool {
	return strings.HasPrefix(strings.TrimSpace(a.Data), "data:")
}

var videoExtensions = []string{".mp4", ".mov", ".webm", ".m4v"}

// DetectAssetKind infers the media type of an artifact reference.
func DetectAssetKind(ref string) AssetKind {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if strings.HasPrefix(ref, "data:video/") {
		return AssetKindVideo
	}
	if strings.HasPrefix(ref, "data:") {
		return AssetKindImage
	}
	if idx := strings.IndexAny(ref, "?#"); idx >= 0 {
		ref = ref[:idx]
	}
	for _, ext := range videoExtensions {
		if strings.HasSuffix(ref, ext) {
			return AssetKindVideo
		}
	}
	return AssetKindImage
}
