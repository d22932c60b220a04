package backend

import (
	"fmt"
	"math"
	"strings"

	"studio/internal/domain"
)

// GenerateRequest is the body of POST /api/{videos|images}/generate.
type GenerateRequest struct {
	Prompt      string `json:"prompt"`
	Duration    int    `json:"duration,omitempty"`
	Model       string `json:"model"`
	Resolution  string `json:"resolution,omitempty"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// GenerateResponse acknowledges a submitted job.
type GenerateResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

func (r *GenerateResponse) validate() error {
	if strings.TrimSpace(r.JobID) == "" {
		return fmt.Errorf("%w: missing job_id", ErrInvalidResponse)
	}
	if r.Status == "" {
		return nil
	}
	if _, err := domain.ParseJobStatus(r.Status); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// InitialStatus returns the acknowledged status, queued when omitted.
func (r *GenerateResponse) InitialStatus() domain.JobStatus {
	status, err := domain.ParseJobStatus(r.Status)
	if err != nil {
		return domain.JobStatusQueued
	}
	return status
}

// StatusResponse is the body of GET /api/{videos|images}/status/{job_id}.
type StatusResponse struct {
	Status   string  `json:"status"`
	Progress float64 `json:"progress"`
	VideoURL string  `json:"video_url,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
	Error    string  `json:"error,omitempty"`
}

func (r *StatusResponse) validate() error {
	if _, err := domain.ParseJobStatus(r.Status); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

// Update converts the response into a job observation.
func (r *StatusResponse) Update() (domain.JobUpdate, error) {
	status, err := domain.ParseJobStatus(r.Status)
	if err != nil {
		return domain.JobUpdate{}, err
	}
	return domain.JobUpdate{
		Status:   status,
		Progress: int(math.Round(r.Progress)),
		VideoURL: strings.TrimSpace(r.VideoURL),
		ImageURL: strings.TrimSpace(r.ImageURL),
		Error:    strings.TrimSpace(r.Error),
	}, nil
}

// PostRequest is the body of POST /api/social/post.
type PostRequest struct {
	ConnectionIDs []string `json:"connection_ids"`
	Caption       string   `json:"caption"`
	ImageURL      string   `json:"image_url,omitempty"`
	VideoURL      string   `json:"video_url,omitempty"`
}

// PostedItem is the per-connection outcome of a post.
type PostedItem struct {
	Platform string `json:"platform"`
	PostURL  string `json:"post_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PostResponse reports the outcome of a social post.
type PostResponse struct {
	Success bool         `json:"success"`
	Posts   []PostedItem `json:"posts,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// ResourceResponse carries the id the backend assigned to a brand source.
type ResourceResponse struct {
	ResourceID string `json:"resource_id"`
}

func (r *ResourceResponse) validate() error {
	if strings.TrimSpace(r.ResourceID) == "" {
		return fmt.Errorf("%w: missing resource_id", ErrInvalidResponse)
	}
	return nil
}

type websiteRequest struct {
	URL string `json:"url"`
}

type competitorRequest struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

type contextRequest struct {
	ResourceIDs []string `json:"resource_ids"`
}

type contextResponse struct {
	Summary string `json:"summary"`
}

type integrationsResponse struct {
	Integrations []domain.Integration `json:"integrations"`
}

type connectRequest struct {
	RedirectURL string `json:"redirect_url,omitempty"`
}

type connectResponse struct {
	AuthURL string `json:"auth_url"`
}

func (r *connectResponse) validate() error {
	if strings.TrimSpace(r.AuthURL) == "" {
		return fmt.Errorf("%w: missing auth_url", ErrInvalidResponse)
	}
	return nil
}

// CopyRequest is the body of POST /api/content/generate.
type CopyRequest struct {
	Step         string `json:"step"`
	Topic        string `json:"topic"`
	BrandContext string `json:"brand_context,omitempty"`
	Previous     string `json:"previous,omitempty"`
	Locale       string `json:"locale,omitempty"`
}

type copyResponse struct {
	Text string `json:"text"`
}

type validator interface {
	validate() error
}
