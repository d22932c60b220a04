package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"studio/internal/backend"
	"studio/internal/domain"
	"studio/internal/kv"
)

type statusStep struct {
	resp *backend.StatusResponse
	err  error
}

type fakeBackend struct {
	mu             sync.Mutex
	submitResp     *backend.GenerateResponse
	submitErr      error
	submitted      []backend.GenerateRequest
	submitTimeouts []time.Duration
	steps          []statusStep
	statusCalls    int
}

func (f *fakeBackend) SubmitJob(_ context.Context, _ domain.JobKind, req backend.GenerateRequest, timeout time.Duration) (*backend.GenerateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	f.submitTimeouts = append(f.submitTimeouts, timeout)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResp, nil
}

func (f *fakeBackend) JobStatus(_ context.Context, _ domain.JobKind, _ string, _ time.Duration) (*backend.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.statusCalls
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	f.statusCalls++
	step := f.steps[idx]
	return step.resp, step.err
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

func status(s string, progress float64) statusStep {
	return statusStep{resp: &backend.StatusResponse{Status: s, Progress: progress}}
}

func fastPoller(client Backend) *Poller {
	return NewPoller(client, PollerOptions{Interval: 2 * time.Millisecond})
}

func TestSubmitAppliesDefaults(t *testing.T) {
	fb := &fakeBackend{submitResp: &backend.GenerateResponse{JobID: "abc", Status: "queued"}}
	s := NewSubmitter(fb, SubmitterOptions{})

	job, err := s.Submit(context.Background(), domain.GenerationRequest{Prompt: "  waves  "})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	want := []backend.GenerateRequest{{Prompt: "waves", Duration: 8, Model: "veo-3", Resolution: "720p", AspectRatio: "16:9", Locale: "en"}}
	if diff := cmp.Diff(want, fb.submitted); diff != "" {
		t.Fatalf("submitted mismatch (-want +got):\n%s", diff)
	}
	if fb.submitTimeouts[0] != 10*time.Minute {
		t.Fatalf("video timeout = %v, want 10m", fb.submitTimeouts[0])
	}
	if job.JobID != "abc" || job.Status != domain.JobStatusQueued || job.Model != "veo-3" || job.Kind != domain.JobKindVideo {
		t.Fatalf("job = %+v", job)
	}
}

func TestSubmitImageUsesImageTimeout(t *testing.T) {
	fb := &fakeBackend{submitResp: &backend.GenerateResponse{JobID: "img-1"}}
	s := NewSubmitter(fb, SubmitterOptions{ImageTimeout: 90 * time.Second})
	job, err := s.Submit(context.Background(), domain.GenerationRequest{Kind: domain.JobKindImage, Prompt: "logo", Duration: 5})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if fb.submitTimeouts[0] != 90*time.Second {
		t.Fatalf("timeout = %v", fb.submitTimeouts[0])
	}
	if fb.submitted[0].Duration != 0 {
		t.Fatalf("image submit should not carry duration: %+v", fb.submitted[0])
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("omitted status should default to queued, got %q", job.Status)
	}
}

func TestSubmitUsesPreferredLocale(t *testing.T) {
	fb := &fakeBackend{submitResp: &backend.GenerateResponse{JobID: "loc"}}
	s := NewSubmitter(fb, SubmitterOptions{DefaultLocale: "id"})
	if _, err := s.Submit(context.Background(), domain.GenerationRequest{Prompt: "pasar malam"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Submit(context.Background(), domain.GenerationRequest{Prompt: "night market", Locale: "en"}); err != nil {
		t.Fatal(err)
	}
	if fb.submitted[0].Locale != "id" || fb.submitted[1].Locale != "en" {
		t.Fatalf("locales = %q, %q; want id, en", fb.submitted[0].Locale, fb.submitted[1].Locale)
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	fb := &fakeBackend{}
	s := NewSubmitter(fb, SubmitterOptions{})
	_, err := s.Submit(context.Background(), domain.GenerationRequest{Prompt: " "})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(fb.submitted) != 0 {
		t.Fatalf("invalid request must not reach the backend")
	}
}

func TestSubmitTimeoutIsNotFailure(t *testing.T) {
	fb := &fakeBackend{submitErr: backend.ErrTimeout}
	s := NewSubmitter(fb, SubmitterOptions{})
	_, err := s.Submit(context.Background(), domain.GenerationRequest{Prompt: "drone shot"})
	if !backend.IsStillProcessing(err) {
		t.Fatalf("err = %v, want still processing", err)
	}
	if errors.Is(err, domain.ErrJobFailed) {
		t.Fatalf("timeout must not be reported as a failed job")
	}
	if len(fb.submitted) != 1 {
		t.Fatalf("submit must not be retried, calls = %d", len(fb.submitted))
	}
}

func TestSubmitAndPollVideoScenario(t *testing.T) {
	var statusCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/videos/generate":
			var body backend.GenerateRequest
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Duration != 8 || body.Model != "veo-3" || body.Locale != "id" {
				t.Errorf("submit body = %+v", body)
			}
			_, _ = io.WriteString(w, `{"job_id":"abc","status":"queued"}`)
		case "/api/videos/status/abc":
			if statusCalls.Add(1) == 1 {
				_, _ = io.WriteString(w, `{"status":"in_progress","progress":40}`)
				return
			}
			_, _ = io.WriteString(w, `{"status":"completed","progress":100,"video_url":"https://cdn.example.com/abc.mp4"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client, err := backend.NewClient(backend.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	job, err := NewSubmitter(client, SubmitterOptions{}).Submit(context.Background(), domain.GenerationRequest{
		Kind: domain.JobKindVideo, Prompt: "coffee pour", Duration: 8, Model: "veo-3", Locale: "id",
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if job.JobID != "abc" || job.Status != domain.JobStatusQueued {
		t.Fatalf("submitted job = %+v", job)
	}

	var seen []domain.JobStatus
	var progress []int
	final, err := fastPoller(client).Poll(context.Background(), job, func(j domain.GenerationJob) {
		seen = append(seen, j.Status)
		progress = append(progress, j.Progress)
	})
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if final.Status != domain.JobStatusCompleted || final.VideoURL != "https://cdn.example.com/abc.mp4" {
		t.Fatalf("final = %+v", final)
	}
	if diff := cmp.Diff([]domain.JobStatus{domain.JobStatusInProgress, domain.JobStatusCompleted}, seen); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{40, 100}, progress); diff != "" {
		t.Fatalf("progress (-want +got):\n%s", diff)
	}

	time.Sleep(20 * time.Millisecond)
	if got := statusCalls.Load(); got != 2 {
		t.Fatalf("status calls = %d, want 2 (no polling after terminal)", got)
	}
}

func TestPollFailedReturnsJobError(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{
		status("in_progress", 10),
		{resp: &backend.StatusResponse{Status: "failed", Error: "content policy violation"}},
	}}
	final, err := fastPoller(fb).Poll(context.Background(), domain.GenerationJob{JobID: "j1", Status: domain.JobStatusQueued}, nil)
	var jobErr *domain.JobError
	if !errors.As(err, &jobErr) || jobErr.Message != "content policy violation" {
		t.Fatalf("err = %v, want JobError", err)
	}
	if final.Status != domain.JobStatusFailed {
		t.Fatalf("final status = %q", final.Status)
	}
	if fb.calls() != 2 {
		t.Fatalf("calls = %d, want 2", fb.calls())
	}
}

func TestPollTimeoutKeepsPolling(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{
		{err: backend.ErrTimeout},
		{err: backend.ErrTimeout},
		{resp: &backend.StatusResponse{Status: "completed", ImageURL: "https://cdn.example.com/x.png"}},
	}}
	final, err := fastPoller(fb).Poll(context.Background(), domain.GenerationJob{JobID: "j2", Kind: domain.JobKindImage, Status: domain.JobStatusQueued}, nil)
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if final.ArtifactURL() != "https://cdn.example.com/x.png" {
		t.Fatalf("artifact = %q", final.ArtifactURL())
	}
	if fb.calls() != 3 {
		t.Fatalf("calls = %d, want 3", fb.calls())
	}
}

func TestPollUnreachableStopsImmediately(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{{err: backend.ErrUnreachable}}}
	final, err := fastPoller(fb).Poll(context.Background(), domain.GenerationJob{JobID: "j3", Status: domain.JobStatusInProgress, Progress: 30}, nil)
	if !backend.IsUnreachable(err) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if final.Status != domain.JobStatusInProgress || final.Progress != 30 {
		t.Fatalf("last known state lost: %+v", final)
	}
	if fb.calls() != 1 {
		t.Fatalf("calls = %d, want 1", fb.calls())
	}
}

func TestPollIgnoresBackwardStatus(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{
		status("in_progress", 50),
		status("queued", 0),
		status("completed", 100),
	}}
	var seen []domain.JobStatus
	final, err := fastPoller(fb).Poll(context.Background(), domain.GenerationJob{JobID: "j4", Status: domain.JobStatusQueued}, func(j domain.GenerationJob) {
		seen = append(seen, j.Status)
	})
	if err != nil {
		t.Fatalf("Poll error: %v", err)
	}
	if diff := cmp.Diff([]domain.JobStatus{domain.JobStatusInProgress, domain.JobStatusCompleted}, seen); diff != "" {
		t.Fatalf("statuses (-want +got):\n%s", diff)
	}
	if final.Status != domain.JobStatusCompleted {
		t.Fatalf("final = %+v", final)
	}
}

func TestPollDeadlineIsStillProcessing(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{status("in_progress", 20)}}
	p := NewPoller(fb, PollerOptions{Interval: 2 * time.Millisecond, Deadline: 25 * time.Millisecond})
	final, err := p.Poll(context.Background(), domain.GenerationJob{JobID: "j5", Status: domain.JobStatusQueued}, nil)
	if !backend.IsStillProcessing(err) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if final.Status != domain.JobStatusInProgress {
		t.Fatalf("final = %+v", final)
	}
}

func TestPollCancelledByContext(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{status("in_progress", 20)}}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	_, err := fastPoller(fb).Poll(ctx, domain.GenerationJob{JobID: "j6", Status: domain.JobStatusQueued}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
}

func TestPollTerminalJobMakesNoRequest(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{status("in_progress", 0)}}
	_, err := fastPoller(fb).Poll(context.Background(), domain.GenerationJob{JobID: "j7", Status: domain.JobStatusCompleted}, nil)
	if err != nil || fb.calls() != 0 {
		t.Fatalf("err = %v calls = %d, want no request", err, fb.calls())
	}
}

func newTracker(fb *fakeBackend, onComplete CompleteFunc) (*Tracker, *KVRepository) {
	repo := NewKVRepository(kv.NewMemoryBackend())
	return NewTracker(fastPoller(fb), repo, TrackerOptions{OnComplete: onComplete}), repo
}

func TestTrackerPersistsSnapshotsAndCompletes(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{
		status("in_progress", 40),
		{resp: &backend.StatusResponse{Status: "completed", VideoURL: "https://cdn.example.com/abc.mp4"}},
	}}
	completed := make(chan domain.GenerationJob, 1)
	tracker, repo := newTracker(fb, func(_ context.Context, job domain.GenerationJob) { completed <- job })
	defer tracker.Close()

	ctx := context.Background()
	if err := tracker.Track(ctx, domain.GenerationJob{JobID: "abc", Kind: domain.JobKindVideo, Status: domain.JobStatusQueued}); err != nil {
		t.Fatalf("Track error: %v", err)
	}
	final, err := tracker.Wait(ctx, "abc")
	if err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if final.Status != domain.JobStatusCompleted {
		t.Fatalf("final = %+v", final)
	}
	select {
	case job := <-completed:
		if job.VideoURL == "" {
			t.Fatalf("completion hook got %+v", job)
		}
	case <-time.After(time.Second):
		t.Fatalf("OnComplete was not called")
	}
	stored, err := repo.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("repo.Get error: %v", err)
	}
	if stored.Status != domain.JobStatusCompleted || stored.Progress != 100 {
		t.Fatalf("stored = %+v", stored)
	}
	if tracker.Polling("abc") {
		t.Fatalf("poller should be gone after completion")
	}
}

func TestTrackerStop(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{status("in_progress", 10)}}
	tracker, repo := newTracker(fb, nil)
	defer tracker.Close()

	ctx := context.Background()
	if err := tracker.Track(ctx, domain.GenerationJob{JobID: "slow", Status: domain.JobStatusQueued}); err != nil {
		t.Fatal(err)
	}
	if err := tracker.Track(ctx, domain.GenerationJob{JobID: "slow", Status: domain.JobStatusQueued}); err != nil {
		t.Fatalf("second Track should be a no-op: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if !tracker.Stop("slow") {
		t.Fatalf("Stop returned false for running job")
	}
	if tracker.Polling("slow") {
		t.Fatalf("poller still running after Stop")
	}
	calls := fb.calls()
	time.Sleep(10 * time.Millisecond)
	if fb.calls() != calls {
		t.Fatalf("requests issued after Stop")
	}
	stored, err := repo.Get(ctx, "slow")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status.Terminal() {
		t.Fatalf("stopped job should remain non-terminal: %+v", stored)
	}
	if tracker.Stop("slow") {
		t.Fatalf("Stop on idle job should return false")
	}
}

func TestTrackerTerminalJobIsStoredNotPolled(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{status("in_progress", 0)}}
	tracker, _ := newTracker(fb, nil)
	defer tracker.Close()

	ctx := context.Background()
	err := tracker.Track(ctx, domain.GenerationJob{JobID: "done", Status: domain.JobStatusFailed, Error: "quota"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = tracker.Wait(ctx, "done")
	if !errors.Is(err, domain.ErrJobFailed) {
		t.Fatalf("Wait err = %v, want ErrJobFailed", err)
	}
	if fb.calls() != 0 {
		t.Fatalf("terminal job polled %d times", fb.calls())
	}
}

func TestTrackerResume(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{{resp: &backend.StatusResponse{Status: "completed", ImageURL: "https://cdn.example.com/r.png"}}}}
	tracker, repo := newTracker(fb, nil)
	defer tracker.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	for _, job := range []domain.GenerationJob{
		{JobID: "pending", Kind: domain.JobKindImage, Status: domain.JobStatusInProgress, CreatedAt: now},
		{JobID: "finished", Kind: domain.JobKindImage, Status: domain.JobStatusCompleted, CreatedAt: now.Add(-time.Hour)},
	} {
		if err := repo.Save(ctx, job); err != nil {
			t.Fatal(err)
		}
	}

	n, err := tracker.Resume(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Resume = %d, %v; want 1", n, err)
	}
	final, err := tracker.Wait(ctx, "pending")
	if err != nil || final.Status != domain.JobStatusCompleted {
		t.Fatalf("resumed job = %+v, %v", final, err)
	}

	jobs, err := tracker.List(ctx)
	if err != nil || len(jobs) != 2 || jobs[0].JobID != "pending" {
		t.Fatalf("List = %+v, %v", jobs, err)
	}
}

func TestTrackerWaitAfterPollerExitKeepsError(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{{err: backend.ErrUnreachable}}}
	tracker, repo := newTracker(fb, nil)
	defer tracker.Close()

	ctx := context.Background()
	if err := tracker.Track(ctx, domain.GenerationJob{JobID: "gone", Status: domain.JobStatusQueued}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for tracker.Polling("gone") {
		if time.Now().After(deadline) {
			t.Fatalf("poller did not exit")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := tracker.Wait(ctx, "gone")
	if !backend.IsUnreachable(err) {
		t.Fatalf("Wait err = %v, want ErrUnreachable", err)
	}
	stored, err := repo.Get(ctx, "gone")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status.Terminal() {
		t.Fatalf("unreachable backend must not finish the job: %+v", stored)
	}
}

func TestTrackerWaitAfterStopReturnsSnapshot(t *testing.T) {
	fb := &fakeBackend{steps: []statusStep{status("in_progress", 10)}}
	tracker, _ := newTracker(fb, nil)
	defer tracker.Close()

	ctx := context.Background()
	if err := tracker.Track(ctx, domain.GenerationJob{JobID: "halt", Status: domain.JobStatusQueued}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	tracker.Stop("halt")

	job, err := tracker.Wait(ctx, "halt")
	if err != nil {
		t.Fatalf("Wait err = %v, want stored snapshot", err)
	}
	if job.JobID != "halt" || job.Status.Terminal() {
		t.Fatalf("job = %+v", job)
	}
}

func TestTrackerClosedRejectsTrack(t *testing.T) {
	tracker, _ := newTracker(&fakeBackend{steps: []statusStep{status("queued", 0)}}, nil)
	tracker.Close()
	err := tracker.Track(context.Background(), domain.GenerationJob{JobID: "late", Status: domain.JobStatusQueued})
	if !errors.Is(err, ErrTrackerClosed) {
		t.Fatalf("err = %v, want ErrTrackerClosed", err)
	}
}

func TestServiceGenerateWaitsForArtifact(t *testing.T) {
	fb := &fakeBackend{
		submitResp: &backend.GenerateResponse{JobID: "img-7", Status: "queued"},
		steps: []statusStep{
			status("in_progress", 50),
			{resp: &backend.StatusResponse{Status: "completed", ImageURL: "https://cdn.example.com/7.png"}},
		},
	}
	tracker, _ := newTracker(fb, nil)
	defer tracker.Close()
	svc := NewService(NewSubmitter(fb, SubmitterOptions{}), tracker)

	job, err := svc.Generate(context.Background(), domain.GenerationRequest{Kind: domain.JobKindImage, Prompt: "banner"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if job.ImageURL != "https://cdn.example.com/7.png" {
		t.Fatalf("job = %+v", job)
	}
}

func TestServiceGenerateReportsFailure(t *testing.T) {
	fb := &fakeBackend{
		submitResp: &backend.GenerateResponse{JobID: "img-8"},
		steps:      []statusStep{{resp: &backend.StatusResponse{Status: "failed", Error: "nsfw"}}},
	}
	tracker, _ := newTracker(fb, nil)
	defer tracker.Close()
	svc := NewService(NewSubmitter(fb, SubmitterOptions{}), tracker)

	_, err := svc.Generate(context.Background(), domain.GenerationRequest{Kind: domain.JobKindImage, Prompt: "banner"})
	if !errors.Is(err, domain.ErrJobFailed) {
		t.Fatalf("err = %v, want ErrJobFailed", err)
	}
}

func TestServiceGenerateReportsPollError(t *testing.T) {
	fb := &fakeBackend{
		submitResp: &backend.GenerateResponse{JobID: "img-9"},
		steps:      []statusStep{{err: backend.ErrUnreachable}},
	}
	tracker, _ := newTracker(fb, nil)
	defer tracker.Close()
	svc := NewService(NewSubmitter(fb, SubmitterOptions{}), tracker)

	_, err := svc.Generate(context.Background(), domain.GenerationRequest{Kind: domain.JobKindImage, Prompt: "banner"})
	if !backend.IsUnreachable(err) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if errors.Is(err, backend.ErrInvalidResponse) {
		t.Fatalf("poll error must not be reported as an invalid response")
	}
}
