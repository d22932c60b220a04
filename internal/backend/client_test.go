package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"studio/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{BaseURL: srv.URL + "/", APIToken: "tok", RequestTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client
}

func TestSubmitJobSendsTypedPayload(t *testing.T) {
	var got GenerateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/videos/generate" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"job_id":"abc","status":"queued"}`)
	})

	resp, err := client.SubmitJob(context.Background(), domain.JobKindVideo, GenerateRequest{
		Prompt: "sunrise over dunes", Duration: 8, Model: "veo-3",
	}, 0)
	if err != nil {
		t.Fatalf("SubmitJob error: %v", err)
	}
	want := GenerateRequest{Prompt: "sunrise over dunes", Duration: 8, Model: "veo-3"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
	if resp.JobID != "abc" || resp.InitialStatus() != domain.JobStatusQueued {
		t.Fatalf("response = %+v", resp)
	}
}

func TestSubmitJobRejectsMissingJobID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"queued"}`)
	})
	_, err := client.SubmitJob(context.Background(), domain.JobKindImage, GenerateRequest{Prompt: "x", Model: "m"}, 0)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
}

func TestJobStatusDecodesUpdate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/images/status/job-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"status":"completed","progress":99.6,"image_url":" https://cdn.example.com/1.png "}`)
	})
	resp, err := client.JobStatus(context.Background(), domain.JobKindImage, "job-1", 0)
	if err != nil {
		t.Fatalf("JobStatus error: %v", err)
	}
	update, err := resp.Update()
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	want := domain.JobUpdate{Status: domain.JobStatusCompleted, Progress: 100, ImageURL: "https://cdn.example.com/1.png"}
	if diff := cmp.Diff(want, update); diff != "" {
		t.Fatalf("update mismatch (-want +got):\n%s", diff)
	}
}

func TestJobStatusRejectsUnknownStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"almost"}`)
	})
	_, err := client.JobStatus(context.Background(), domain.JobKindVideo, "abc", 0)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
}

func TestAPIErrorMessageVerbatim(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string error", http.StatusPaymentRequired, `{"error":"Insufficient credits for veo-3"}`, "Insufficient credits for veo-3"},
		{"nested error", http.StatusBadRequest, `{"error":{"code":"bad_prompt","message":"Prompt rejected"}}`, "Prompt rejected"},
		{"message field", http.StatusConflict, `{"message":"Already posted"}`, "Already posted"},
		{"detail field", http.StatusUnprocessableEntity, `{"detail":"duration must be <= 20"}`, "duration must be <= 20"},
		{"plain text", http.StatusBadGateway, `upstream down`, "Bad Gateway"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := client.Post(context.Background(), PostRequest{ConnectionIDs: []string{"c1"}}, 0)
			apiErr, ok := AsAPIError(err)
			if !ok {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Error() != tc.want || apiErr.StatusCode != tc.status {
				t.Fatalf("APIError = %d %q, want %d %q", apiErr.StatusCode, apiErr.Error(), tc.status, tc.want)
			}
		})
	}
}

func TestTimeoutIsStillProcessing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	_, err := client.SubmitJob(context.Background(), domain.JobKindVideo, GenerateRequest{Prompt: "x", Model: "veo-3"}, 50*time.Millisecond)
	if !errors.Is(err, ErrTimeout) || !IsStillProcessing(err) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if !strings.Contains(err.Error(), "may still be processing") {
		t.Fatalf("timeout message = %q", err.Error())
	}
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client, err := NewClient(Options{BaseURL: base})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	_, err = client.ListIntegrations(context.Background())
	if !IsUnreachable(err) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	if !strings.HasPrefix(err.Error(), "unable to reach server") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestCanceledContextPassesThrough(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := client.JobStatus(ctx, domain.JobKindVideo, "abc", time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestUploadDocumentMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/brand/documents" {
			t.Errorf("path = %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "brand.pdf" || string(data) != "%PDF-1.7" {
			t.Errorf("file = %s %q", header.Filename, data)
		}
		_, _ = io.WriteString(w, `{"resource_id":"doc-9"}`)
	})
	resp, err := client.UploadDocument(context.Background(), "brand.pdf", strings.NewReader("%PDF-1.7"))
	if err != nil {
		t.Fatalf("UploadDocument error: %v", err)
	}
	if resp.ResourceID != "doc-9" {
		t.Fatalf("resource id = %q", resp.ResourceID)
	}
}

func TestBrandAndIntegrationEndpoints(t *testing.T) {
	var calls []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch r.URL.Path {
		case "/api/brand/websites", "/api/brand/competitors":
			_, _ = io.WriteString(w, `{"resource_id":"r1"}`)
		case "/api/brand/context":
			var body struct {
				ResourceIDs []string `json:"resource_ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if len(body.ResourceIDs) != 2 {
				t.Errorf("resource_ids = %v", body.ResourceIDs)
			}
			_, _ = io.WriteString(w, `{"summary":" Bold, friendly. "}`)
		case "/api/integrations":
			_, _ = io.WriteString(w, `{"integrations":[{"platform":"linkedin","is_active":true,"connection_id":"c-1"}]}`)
		case "/api/integrations/notion/connect":
			_, _ = io.WriteString(w, `{"auth_url":"https://auth.example.com/notion"}`)
		case "/api/content/generate":
			_, _ = io.WriteString(w, `{"text":"Outline"}`)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	if _, err := client.ScrapeWebsite(ctx, "https://acme.test"); err != nil {
		t.Fatal(err)
	}
	if _, err := client.AddCompetitor(ctx, "Rival", "https://rival.test"); err != nil {
		t.Fatal(err)
	}
	if err := client.DeleteSource(ctx, domain.SourceKindWebsite, "r1"); err != nil {
		t.Fatal(err)
	}
	summary, err := client.BrandContext(ctx, []string{"r1", "r2"})
	if err != nil || summary != "Bold, friendly." {
		t.Fatalf("BrandContext = %q, %v", summary, err)
	}
	integrations, err := client.ListIntegrations(ctx)
	if err != nil || len(integrations) != 1 || integrations[0].ConnectionID != "c-1" {
		t.Fatalf("ListIntegrations = %+v, %v", integrations, err)
	}
	authURL, err := client.ConnectIntegration(ctx, domain.PlatformNotion, "https://studio.test/cb")
	if err != nil || authURL != "https://auth.example.com/notion" {
		t.Fatalf("ConnectIntegration = %q, %v", authURL, err)
	}
	if err := client.DisconnectIntegration(ctx, domain.PlatformNotion); err != nil {
		t.Fatal(err)
	}
	text, err := client.GenerateCopy(ctx, CopyRequest{Step: "outline", Topic: "launch"})
	if err != nil || text != "Outline" {
		t.Fatalf("GenerateCopy = %q, %v", text, err)
	}

	want := []string{
		"POST /api/brand/websites",
		"POST /api/brand/competitors",
		"DELETE /api/brand/websites/r1",
		"POST /api/brand/context",
		"GET /api/integrations",
		"POST /api/integrations/notion/connect",
		"DELETE /api/integrations/notion",
		"POST /api/content/generate",
	}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestLocaleIsSentInRequestBodies(t *testing.T) {
	bodies := map[string]map[string]any{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode %s: %v", r.URL.Path, err)
		}
		bodies[r.URL.Path] = body
		switch r.URL.Path {
		case "/api/images/generate":
			_, _ = io.WriteString(w, `{"job_id":"img-1"}`)
		case "/api/content/generate":
			_, _ = io.WriteString(w, `{"text":"Halo"}`)
		}
	})
	ctx := context.Background()

	if _, err := client.SubmitJob(ctx, domain.JobKindImage, GenerateRequest{Prompt: "banner", Model: "imagen", Locale: "id"}, 0); err != nil {
		t.Fatalf("SubmitJob error: %v", err)
	}
	if _, err := client.GenerateCopy(ctx, CopyRequest{Step: "outline", Topic: "launch", Locale: "id"}); err != nil {
		t.Fatalf("GenerateCopy error: %v", err)
	}
	for _, path := range []string{"/api/images/generate", "/api/content/generate"} {
		if got := bodies[path]["locale"]; got != "id" {
			t.Fatalf("%s locale = %v, want id", path, got)
		}
	}

	if _, err := client.GenerateCopy(ctx, CopyRequest{Step: "outline", Topic: "launch"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := bodies["/api/content/generate"]["locale"]; ok {
		t.Fatalf("empty locale should be omitted: %v", bodies["/api/content/generate"])
	}
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	if _, err := NewClient(Options{}); !errors.Is(err, ErrMissingBaseURL) {
		t.Fatalf("err = %v, want ErrMissingBaseURL", err)
	}
	if _, err := NewClient(Options{BaseURL: "not a url"}); err == nil {
		t.Fatalf("expected error for relative base url")
	}
}
