package domain

import (
	"fmt"
	"strings"
	"time"
)

// JobKind enumerates the media a generation job produces.
type JobKind string

const (
	JobKindVideo JobKind = "video"
	JobKindImage JobKind = "image"
)

// ParseJobKind normalizes free-form input into a supported kind.
func ParseJobKind(raw string) (JobKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(JobKindVideo):
		return JobKindVideo, nil
	case string(JobKindImage):
		return JobKindImage, nil
	default:
		return "", fmt.Errorf("%w: unsupported job kind %q", ErrInvalidInput, raw)
	}
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// ParseJobStatus maps a backend status string onto the lifecycle. Unknown
// values are rejected rather than guessed.
func ParseJobStatus(raw string) (JobStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "pending":
		return JobStatusQueued, nil
	case "in_progress", "processing", "running":
		return JobStatusInProgress, nil
	case "completed", "succeeded":
		return JobStatusCompleted, nil
	case "failed":
		return JobStatusFailed, nil
	default:
		return "", fmt.Errorf("%w: unknown job status %q", ErrInvalidInput, raw)
	}
}

func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusInProgress:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a job may move from s to next. Staying in
// the same non-terminal state is allowed so progress can be updated.
func (s JobStatus) CanTransition(next JobStatus) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	if s.Terminal() {
		return false
	}
	return next.rank() >= s.rank()
}

// GenerationRequest carries the parameters of a submit call.
type GenerationRequest struct {
	Kind        JobKind `json:"kind"`
	Prompt      string  `json:"prompt"`
	Duration    int     `json:"duration,omitempty"`
	Model       string  `json:"model,omitempty"`
	Resolution  string  `json:"resolution,omitempty"`
	AspectRatio string  `json:"aspect_ratio,omitempty"`
	Locale      string  `json:"locale,omitempty"`
}

// GenerationJob tracks an asynchronous image or video generation.
type GenerationJob struct {
	JobID     string    `json:"job_id"`
	Kind      JobKind   `json:"kind"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	VideoURL  string    `json:"video_url,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	Error     string    `json:"error,omitempty"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobUpdate is a single status observation returned by a poll.
type JobUpdate struct {
	Status   JobStatus
	Progress int
	VideoURL string
	ImageURL string
	Error    string
}

// ArtifactURL returns the finished artifact reference, if any.
func (j GenerationJob) ArtifactURL() string {
	if j.Kind == JobKindImage && j.ImageURL != "" {
		return j.ImageURL
	}
	if j.VideoURL != "" {
		return j.VideoURL
	}
	return j.ImageURL
}

// Apply replaces the job state with the observed update. Backward moves and
// updates after a terminal state return ErrInvalidTransition and leave the job
// untouched.
func (j *GenerationJob) Apply(u JobUpdate, at time.Time) error {
	if !j.Status.CanTransition(u.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, u.Status)
	}
	j.Status = u.Status
	j.Progress = clampProgress(u.Progress)
	if u.Status == JobStatusCompleted {
		j.Progress = 100
	}
	if u.VideoURL != "" {
		j.VideoURL = u.VideoURL
	}
	if u.ImageURL != "" {
		j.ImageURL = u.ImageURL
	}
	if u.Error != "" {
		j.Error = u.Error
	}
	if u.Status == JobStatusFailed && j.Error == "" {
		j.Error = "generation failed"
	}
	j.UpdatedAt = at
	return nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
