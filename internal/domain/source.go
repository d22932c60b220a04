package domain

import (
	"fmt"
	"strings"
	"time"
)

// SourceKind enumerates inputs to brand-context summarization.
type SourceKind string

const (
	SourceKindDocument   SourceKind = "document"
	SourceKindWebsite    SourceKind = "website"
	SourceKindCompetitor SourceKind = "competitor"
)

// ParseSourceKind validates a kind filter. Empty input returns "".
func ParseSourceKind(raw string) (SourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return "", nil
	case string(SourceKindDocument), "documents":
		return SourceKindDocument, nil
	case string(SourceKindWebsite), "websites":
		return SourceKindWebsite, nil
	case string(SourceKindCompetitor), "competitors":
		return SourceKindCompetitor, nil
	default:
		return "", fmt.Errorf("%w: unsupported source kind %q", ErrInvalidInput, raw)
	}
}

// BrandContextSource is a document, website or competitor registered as input
// to brand-context summarization.
type BrandContextSource struct {
	ID         string     `json:"id"`
	Kind       SourceKind `json:"kind"`
	Name       string     `json:"name,omitempty"`
	URL        string     `json:"url,omitempty"`
	ResourceID string     `json:"resource_id"`
	AddedAt    time.Time  `json:"added_at"`
}
