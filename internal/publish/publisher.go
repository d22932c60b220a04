// Package publish posts finished artifacts to connected social accounts.
package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio/internal/backend"
	"studio/internal/domain"
	"studio/internal/infra"
)

const defaultPostTimeout = time.Minute

// ErrPublishFailed is wrapped by every *Error.
var ErrPublishFailed = errors.New("publish failed")

// Error carries the first failure reported for a post.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return ErrPublishFailed }

// Poster is the backend call the publisher depends on.
type Poster interface {
	Post(ctx context.Context, req backend.PostRequest, timeout time.Duration) (*backend.PostResponse, error)
}

// Request describes one post. MediaType is inferred from ArtifactURL when empty.
type Request struct {
	ConnectionIDs []string         `json:"connection_ids"`
	Caption       string           `json:"caption"`
	ArtifactURL   string           `json:"artifact_url"`
	MediaType     domain.AssetKind `json:"media_type,omitempty"`
}

// Result is a successful post.
type Result struct {
	Success  bool                 `json:"success"`
	PostURLs []string             `json:"post_urls"`
	Posts    []backend.PostedItem `json:"posts,omitempty"`
}

// Options configures a Publisher.
type Options struct {
	Timeout time.Duration
	Logger  *infra.Logger
}

type Publisher struct {
	poster  Poster
	timeout time.Duration
	logger  *infra.Logger
}

func NewPublisher(poster Poster, opts Options) *Publisher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultPostTimeout
	}
	return &Publisher{poster: poster, timeout: timeout, logger: infra.LoggerOrNop(opts.Logger)}
}

// Publish sends one post request. It is never retried.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	ids := uniqueIDs(req.ConnectionIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one connection is required", domain.ErrInvalidInput)
	}
	artifact := strings.TrimSpace(req.ArtifactURL)
	if artifact == "" {
		return nil, fmt.Errorf("%w: artifact is required", domain.ErrInvalidInput)
	}
	kind := req.MediaType
	if kind == "" {
		kind = domain.DetectAssetKind(artifact)
	}

	payload := backend.PostRequest{ConnectionIDs: ids, Caption: strings.TrimSpace(req.Caption)}
	switch kind {
	case domain.AssetKindVideo:
		payload.VideoURL = artifact
	case domain.AssetKindImage:
		payload.ImageURL = artifact
	default:
		return nil, fmt.Errorf("%w: unsupported media type %q", domain.ErrInvalidInput, kind)
	}

	resp, err := p.poster.Post(ctx, payload, p.timeout)
	if err != nil {
		if backend.IsStillProcessing(err) {
			p.logger.Warn().Int("connections", len(ids)).Msg("publish: post timed out, it may still go out")
		}
		return nil, err
	}
	if msg := firstError(resp); msg != "" {
		p.logger.Warn().Str("error", msg).Msg("publish: post rejected")
		return nil, &Error{Message: msg}
	}

	result := &Result{Success: true, Posts: resp.Posts}
	for _, post := range resp.Posts {
		if u := strings.TrimSpace(post.PostURL); u != "" {
			result.PostURLs = append(result.PostURLs, u)
		}
	}
	p.logger.Info().Int("posts", len(resp.Posts)).Str("media", string(kind)).Msg("publish: posted")
	return result, nil
}

func firstError(resp *backend.PostResponse) string {
	if resp == nil {
		return "empty response from server"
	}
	if msg := strings.TrimSpace(resp.Error); msg != "" {
		return msg
	}
	for _, post := range resp.Posts {
		if msg := strings.TrimSpace(post.Error); msg != "" {
			return msg
		}
	}
	if !resp.Success {
		return "post was not accepted"
	}
	return ""
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
