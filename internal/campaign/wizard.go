// Package campaign runs the multi-step content wizard: copy generation,
// a cached hero image and an optional social post.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio/internal/backend"
	"studio/internal/cache"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/publish"
)

// Step names one stage of a campaign.
type Step string

const (
	StepBrainstorm Step = "brainstorm"
	StepOutline    Step = "outline"
	StepDraft      Step = "draft"
	StepReview     Step = "review"
	StepImage      Step = "image"
	StepPost       Step = "post"
)

// Steps lists the stages in execution order.
var Steps = []Step{StepBrainstorm, StepOutline, StepDraft, StepReview, StepImage, StepPost}

func (s Step) isText() bool {
	switch s {
	case StepBrainstorm, StepOutline, StepDraft, StepReview:
		return true
	}
	return false
}

// CopyWriter generates text for a step.
type CopyWriter interface {
	GenerateCopy(ctx context.Context, req backend.CopyRequest) (string, error)
}

// BrandSummarizer returns the brand context fed into every text step.
type BrandSummarizer interface {
	Context(ctx context.Context) (string, error)
}

// Artifacts caches generated images.
type Artifacts interface {
	GetOrCreate(ctx context.Context, key string, generate cache.GenerateFunc) (*domain.CachedArtifact, bool, error)
}

// ImageGenerator submits an image job and waits for its artifact.
type ImageGenerator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationJob, error)
}

// Poster publishes the finished campaign.
type Poster interface {
	Publish(ctx context.Context, req publish.Request) (*publish.Result, error)
}

// Request starts or resumes a campaign. When Previous is set, steps it already
// completed are not run again.
type Request struct {
	Key           string   `json:"key"`
	Topic         string   `json:"topic"`
	Locale        string   `json:"locale,omitempty"`
	ImagePrompt   string   `json:"image_prompt,omitempty"`
	ConnectionIDs []string `json:"connection_ids,omitempty"`
	Previous      *State   `json:"previous,omitempty"`
}

// State is everything a run has produced so far.
type State struct {
	Key          string          `json:"key"`
	Topic        string          `json:"topic"`
	Locale       string          `json:"locale,omitempty"`
	BrandContext string          `json:"brand_context,omitempty"`
	Outputs      map[Step]string `json:"outputs"`
	Completed    []Step          `json:"completed"`
	Skipped      []Step          `json:"skipped,omitempty"`
	ImageURL     string          `json:"image_url,omitempty"`
	ImageCached  bool            `json:"image_cached,omitempty"`
	PostURLs     []string        `json:"post_urls,omitempty"`
	FailedStep   Step            `json:"failed_step,omitempty"`
	Error        string          `json:"error,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (s *State) done(step Step) bool {
	for _, c := range s.Completed {
		if c == step {
			return true
		}
	}
	return false
}

func (s *State) complete(step Step, at time.Time) {
	if !s.done(step) {
		s.Completed = append(s.Completed, step)
	}
	s.UpdatedAt = at
}

// errSkipped marks a step that had nothing to do on this run. It is left
// incomplete so a later run can still perform it.
var errSkipped = errors.New("campaign: step skipped")

// Done reports whether every step has completed.
func (s *State) Done() bool {
	for _, step := range Steps {
		if !s.done(step) {
			return false
		}
	}
	return true
}

// Dependencies wires the wizard to the rest of the studio. Brand and Poster
// are optional.
type Dependencies struct {
	Copy      CopyWriter
	Brand     BrandSummarizer
	Artifacts Artifacts
	Images    ImageGenerator
	Poster    Poster
	Logger    *infra.Logger
	Now       func() time.Time
}

type Wizard struct {
	deps   Dependencies
	logger *infra.Logger
	now    func() time.Time
}

func NewWizard(deps Dependencies) *Wizard {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Wizard{deps: deps, logger: infra.LoggerOrNop(deps.Logger), now: now}
}

// Run executes the remaining steps in order. Each step waits for the previous
// one. The first error stops the run; the returned state keeps everything
// produced before it so the run can be retried from the failed step.
func (w *Wizard) Run(ctx context.Context, req Request) (*State, error) {
	st, err := w.initState(req)
	if err != nil {
		return nil, err
	}
	st.FailedStep, st.Error = "", ""
	st.Skipped = nil

	for _, step := range Steps {
		if st.done(step) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return w.fail(st, step, err)
		}
		var stepErr error
		switch {
		case step.isText():
			stepErr = w.runText(ctx, st, step)
		case step == StepImage:
			stepErr = w.runImage(ctx, st, req)
		case step == StepPost:
			stepErr = w.runPost(ctx, st, req)
		}
		if errors.Is(stepErr, errSkipped) {
			st.Skipped = append(st.Skipped, step)
			continue
		}
		if stepErr != nil {
			return w.fail(st, step, stepErr)
		}
		st.complete(step, w.now().UTC())
		w.logger.Debug().Str("campaign", st.Key).Str("step", string(step)).Msg("campaign: step completed")
	}
	w.logger.Info().Str("campaign", st.Key).Msg("campaign: completed")
	return st, nil
}

func (w *Wizard) initState(req Request) (*State, error) {
	if req.Previous != nil {
		st := *req.Previous
		st.Outputs = make(map[Step]string, len(req.Previous.Outputs))
		for k, v := range req.Previous.Outputs {
			st.Outputs[k] = v
		}
		st.Completed = append([]Step(nil), req.Previous.Completed...)
		if st.Key == "" {
			st.Key = strings.TrimSpace(req.Key)
		}
		if st.Topic == "" {
			st.Topic = strings.TrimSpace(req.Topic)
		}
		if st.Locale == "" {
			st.Locale = strings.TrimSpace(req.Locale)
		}
		if st.Key == "" || st.Topic == "" {
			return nil, fmt.Errorf("%w: key and topic are required", domain.ErrInvalidInput)
		}
		return &st, nil
	}
	key := strings.TrimSpace(req.Key)
	topic := strings.TrimSpace(req.Topic)
	if key == "" {
		return nil, fmt.Errorf("%w: campaign key is required", domain.ErrInvalidInput)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", domain.ErrInvalidInput)
	}
	return &State{Key: key, Topic: topic, Locale: strings.TrimSpace(req.Locale), Outputs: map[Step]string{}}, nil
}

func (w *Wizard) fail(st *State, step Step, err error) (*State, error) {
	st.FailedStep = step
	st.Error = err.Error()
	st.UpdatedAt = w.now().UTC()
	w.logger.Warn().Err(err).Str("campaign", st.Key).Str("step", string(step)).Msg("campaign: step failed")
	return st, fmt.Errorf("campaign: %s: %w", step, err)
}

func (w *Wizard) runText(ctx context.Context, st *State, step Step) error {
	if step == StepBrainstorm && st.BrandContext == "" && w.deps.Brand != nil {
		summary, err := w.deps.Brand.Context(ctx)
		if err != nil {
			return err
		}
		st.BrandContext = summary
	}
	text, err := w.deps.Copy.GenerateCopy(ctx, backend.CopyRequest{
		Step:         string(step),
		Topic:        st.Topic,
		BrandContext: st.BrandContext,
		Previous:     previousText(st, step),
		Locale:       st.Locale,
	})
	if err != nil {
		return err
	}
	st.Outputs[step] = text
	return nil
}

func previousText(st *State, step Step) string {
	var prev string
	for _, s := range Steps {
		if s == step {
			return prev
		}
		if s.isText() {
			prev = st.Outputs[s]
		}
	}
	return prev
}

func (w *Wizard) runImage(ctx context.Context, st *State, req Request) error {
	prompt := strings.TrimSpace(req.ImagePrompt)
	if prompt == "" {
		prompt = "Hero image for: " + st.Topic
		if outline := st.Outputs[StepOutline]; outline != "" {
			prompt += "\n\n" + outline
		}
	}
	artifact, created, err := w.deps.Artifacts.GetOrCreate(ctx, st.Key, func(ctx context.Context) (string, error) {
		job, err := w.deps.Images.Generate(ctx, domain.GenerationRequest{Kind: domain.JobKindImage, Prompt: prompt, Locale: st.Locale})
		if err != nil {
			return "", err
		}
		return job.ArtifactURL(), nil
	})
	if err != nil {
		return err
	}
	st.ImageURL = artifact.Data
	st.ImageCached = !created
	st.Outputs[StepImage] = artifact.Data
	return nil
}

func (w *Wizard) runPost(ctx context.Context, st *State, req Request) error {
	if len(req.ConnectionIDs) == 0 || w.deps.Poster == nil {
		w.logger.Debug().Str("campaign", st.Key).Msg("campaign: no connections, skipping post")
		return errSkipped
	}
	caption := st.Outputs[StepReview]
	if caption == "" {
		caption = st.Outputs[StepDraft]
	}
	res, err := w.deps.Poster.Publish(ctx, publish.Request{
		ConnectionIDs: req.ConnectionIDs,
		Caption:       caption,
		ArtifactURL:   st.ImageURL,
	})
	if err != nil {
		return err
	}
	st.PostURLs = res.PostURLs
	st.Outputs[StepPost] = strings.Join(res.PostURLs, "\n")
	return nil
}
