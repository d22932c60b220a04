// Package backend is the typed HTTP client for the content backend that owns
// generation, posting, brand context and OAuth integrations.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
)

// ErrMissingBaseURL indicates the client was configured without a backend.
var ErrMissingBaseURL = errors.New("backend: base url is required")

const defaultRequestTimeout = time.Minute

// Options configures the backend client.
type Options struct {
	BaseURL        string
	APIToken       string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs calls against the content backend. Calls are never retried.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *infra.Logger
	timeout    time.Duration
}

// NewClient constructs a client with defaults applied.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend: invalid base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL:    baseURL,
		apiToken:   strings.TrimSpace(opts.APIToken),
		httpClient: httpClient,
		logger:     infra.LoggerOrNop(opts.Logger),
		timeout:    timeout,
	}, nil
}

// BaseURL returns the configured backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func kindPath(kind domain.JobKind) (string, error) {
	switch kind {
	case domain.JobKindVideo:
		return "videos", nil
	case domain.JobKindImage:
		return "images", nil
	default:
		return "", fmt.Errorf("%w: unsupported job kind %q", domain.ErrInvalidInput, kind)
	}
}

func sourcePath(kind domain.SourceKind) (string, error) {
	switch kind {
	case domain.SourceKindDocument:
		return "documents", nil
	case domain.SourceKindWebsite:
		return "websites", nil
	case domain.SourceKindCompetitor:
		return "competitors", nil
	default:
		return "", fmt.Errorf("%w: unsupported source kind %q", domain.ErrInvalidInput, kind)
	}
}

// SubmitJob issues exactly one generation request.
func (c *Client) SubmitJob(ctx context.Context, kind domain.JobKind, req GenerateRequest, timeout time.Duration) (*GenerateResponse, error) {
	segment, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	var out GenerateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/"+segment+"/generate", req, &out, timeout); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobStatus fetches the current status of a job.
func (c *Client) JobStatus(ctx context.Context, kind domain.JobKind, jobID string, timeout time.Duration) (*StatusResponse, error) {
	segment, err := kindPath(kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}
	var out StatusResponse
	path := "/api/" + segment + "/status/" + url.PathEscape(jobID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out, timeout); err != nil {
		return nil, err
	}
	return &out, nil
}

// Post publishes an artifact to the given connections.
func (c *Client) Post(ctx context.Context, req PostRequest, timeout time.Duration) (*PostResponse, error) {
	var out PostResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/social/post", req, &out, timeout); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadDocument sends a document as multipart field "file".
func (c *Client) UploadDocument(ctx context.Context, filename string, content io.Reader) (*ResourceResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("backend: build multipart: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("backend: read document: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("backend: build multipart: %w", err)
	}
	var out ResourceResponse
	if err := c.do(ctx, http.MethodPost, "/api/brand/documents", w.FormDataContentType(), &buf, &out, 0); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScrapeWebsite registers a website for scraping.
func (c *Client) ScrapeWebsite(ctx context.Context, siteURL string) (*ResourceResponse, error) {
	var out ResourceResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/brand/websites", websiteRequest{URL: siteURL}, &out, 0); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddCompetitor registers a competitor.
func (c *Client) AddCompetitor(ctx context.Context, name, siteURL string) (*ResourceResponse, error) {
	var out ResourceResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/brand/competitors", competitorRequest{Name: name, URL: siteURL}, &out, 0); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSource removes a brand source on the backend.
func (c *Client) DeleteSource(ctx context.Context, kind domain.SourceKind, resourceID string) error {
	segment, err := sourcePath(kind)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/brand/"+segment+"/"+url.PathEscape(resourceID), nil, nil, 0)
}

// BrandContext asks the backend to summarise the given sources.
func (c *Client) BrandContext(ctx context.Context, resourceIDs []string) (string, error) {
	if resourceIDs == nil {
		resourceIDs = []string{}
	}
	var out contextResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/brand/context", contextRequest{ResourceIDs: resourceIDs}, &out, 0); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Summary), nil
}

// ListIntegrations returns the integrations known to the backend.
func (c *Client) ListIntegrations(ctx context.Context) ([]domain.Integration, error) {
	var out integrationsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/integrations", nil, &out, 0); err != nil {
		return nil, err
	}
	return out.Integrations, nil
}

// ConnectIntegration starts an OAuth flow and returns the authorization URL.
func (c *Client) ConnectIntegration(ctx context.Context, platform, redirectURL string) (string, error) {
	var out connectResponse
	path := "/api/integrations/" + url.PathEscape(platform) + "/connect"
	if err := c.doJSON(ctx, http.MethodPost, path, connectRequest{RedirectURL: redirectURL}, &out, 0); err != nil {
		return "", err
	}
	return out.AuthURL, nil
}

// DisconnectIntegration revokes an integration.
func (c *Client) DisconnectIntegration(ctx context.Context, platform string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/integrations/"+url.PathEscape(platform), nil, nil, 0)
}

// GenerateCopy produces text for one step of a content campaign.
func (c *Client) GenerateCopy(ctx context.Context, req CopyRequest) (string, error) {
	var out copyResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/content/generate", req, &out, 0); err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrInvalidResponse)
	}
	return text, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, timeout time.Duration) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("backend: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, body, out, timeout)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		classified := classifyTransport(ctx, err)
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Dur("took", time.Since(start)).Msg("backend: request failed")
		return classified
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return classifyTransport(ctx, err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend: request")

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		if v, ok := out.(validator); ok {
			return v.validate()
		}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidResponse, path, err)
	}
	if v, ok := out.(validator); ok {
		return v.validate()
	}
	return nil
}
