package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skypro1111/storyreel/internal/attachment"
	"github.com/skypro1111/storyreel/internal/style"
)

// UnreachableMessage is shown to the user when the service cannot be contacted
const UnreachableMessage = "Unable to reach the pipeline service. Is it running?"

// GenericFailureMessage is used when the service fails without a detail
const GenericFailureMessage = "Pipeline failed."

var (
	// ErrNetwork means no response was received from the service
	ErrNetwork = errors.New("pipeline service unreachable")

	// ErrPipeline means the service answered with a non-success status
	ErrPipeline = errors.New("pipeline failed")

	// ErrMalformedResponse means a success response violated the response contract
	ErrMalformedResponse = errors.New("malformed pipeline response")
)

// PipelineError is a non-success answer from the service
type PipelineError struct {
	StatusCode int
	Detail     string // empty when the body carried no string detail
}

func (e *PipelineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("HTTP error %d", e.StatusCode)
}

func (e *PipelineError) Unwrap() error {
	return ErrPipeline
}

// Message returns the text to show the user
func (e *PipelineError) Message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return GenericFailureMessage
}

// Config contains pipeline client configuration
type Config struct {
	BaseURL         string
	RequestTimeout  time.Duration // logs, styles
	GenerateTimeout time.Duration // zero waits as long as the context allows
	UserAgent       string
}

// Client talks to the story video generation service
type Client struct {
	config     Config
	httpClient *http.Client

	// Statistics
	generateRequests uint64
	logRequests      uint64
	failedRequests   uint64

	mu sync.RWMutex
}

// Submission is the payload of one generation request
type Submission struct {
	RunID      string
	Text       string
	SourceFile *attachment.File
	Photo      *attachment.File
	Voice      *attachment.File
	Style      string
	SceneCount int
}

// GenerateResponse is the success answer of the generate endpoint
type GenerateResponse struct {
	VideoURL string `json:"video_url"`
	RunID    string `json:"run_id,omitempty"`
}

// StylesResponse is the answer of the styles endpoint
type StylesResponse struct {
	Default string        `json:"default"`
	Styles  []style.Style `json:"styles"`
}

// ClientStats represents client statistics
type ClientStats struct {
	GenerateRequests uint64 `json:"generate_requests"`
	LogRequests      uint64 `json:"log_requests"`
	FailedRequests   uint64 `json:"failed_requests"`
}

// NewClient creates a new pipeline HTTP client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	u, err := url.Parse(config.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", config.BaseURL)
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 10 * time.Second
	}

	if config.UserAgent == "" {
		config.UserAgent = "storyreel/1.0"
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
	}, nil
}

// BaseURL returns the service base address
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Generate submits a run and waits for the service to answer. The service
// answers once the remote pipeline has finished.
func (c *Client) Generate(ctx context.Context, sub *Submission) (*GenerateResponse, error) {
	c.increment(&c.generateRequests)

	if c.config.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.GenerateTimeout)
		defer cancel()
	}

	body, contentType, err := createMultipartRequest(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/generate", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.increment(&c.failedRequests)
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.increment(&c.failedRequests)
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.increment(&c.failedRequests)
		return nil, &PipelineError{StatusCode: resp.StatusCode, Detail: parseDetail(respBody)}
	}

	var raw map[string]any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		c.increment(&c.failedRequests)
		return nil, fmt.Errorf("%w: failed to parse response JSON: %w", ErrMalformedResponse, err)
	}

	videoURL, _ := raw["video_url"].(string)
	if videoURL == "" {
		c.increment(&c.failedRequests)
		return nil, fmt.Errorf("%w: response has no video_url", ErrMalformedResponse)
	}
	runID, _ := raw["run_id"].(string)

	return &GenerateResponse{VideoURL: videoURL, RunID: runID}, nil
}

// FetchLog returns the current log text of a run. ok is false when the
// response carried no string log, which callers treat as "no update".
func (c *Client) FetchLog(ctx context.Context, runID string) (log string, ok bool, err error) {
	c.increment(&c.logRequests)

	body, err := c.get(ctx, "/logs/"+url.PathEscape(runID))
	if err != nil {
		return "", false, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", false, fmt.Errorf("%w: failed to parse log JSON: %w", ErrMalformedResponse, err)
	}

	log, ok = raw["log"].(string)
	return log, ok, nil
}

// Styles returns the style catalog advertised by the service
func (c *Client) Styles(ctx context.Context) (*StylesResponse, error) {
	body, err := c.get(ctx, "/styles")
	if err != nil {
		return nil, err
	}

	var styles StylesResponse
	if err := json.Unmarshal(body, &styles); err != nil {
		return nil, fmt.Errorf("%w: failed to parse styles JSON: %w", ErrMalformedResponse, err)
	}
	if len(styles.Styles) == 0 {
		return nil, fmt.Errorf("%w: styles list is empty", ErrMalformedResponse)
	}

	return &styles, nil
}

// DownloadVideo streams the video at videoURL into w. Relative URLs are
// resolved against the base URL.
func (c *Client) DownloadVideo(ctx context.Context, videoURL string, w io.Writer) (int64, error) {
	target, err := c.resolve(videoURL)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return 0, &PipelineError{StatusCode: resp.StatusCode, Detail: parseDetail(body)}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to write video: %w", err)
	}
	return n, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.increment(&c.failedRequests)
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.increment(&c.failedRequests)
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.increment(&c.failedRequests)
		return nil, &PipelineError{StatusCode: resp.StatusCode, Detail: parseDetail(body)}
	}

	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
}

func (c *Client) resolve(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid video URL %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	base, err := url.Parse(c.config.BaseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.config.BaseURL, err)
	}
	return base.ResolveReference(u).String(), nil
}

// parseDetail extracts a string "detail" field from a JSON error body
func parseDetail(body []byte) string {
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	detail, _ := payload.Detail.(string)
	return strings.TrimSpace(detail)
}

// createMultipartRequest creates a multipart/form-data request body. Exactly
// one of file and text is written; the source file wins when both are set.
func createMultipartRequest(sub *Submission) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if sub.SourceFile != nil {
		if err := writeFilePart(writer, "file", sub.SourceFile); err != nil {
			return nil, "", err
		}
	} else if err := writer.WriteField("text", sub.Text); err != nil {
		return nil, "", fmt.Errorf("failed to write field text: %w", err)
	}

	if err := writeFilePart(writer, "photo", sub.Photo); err != nil {
		return nil, "", err
	}
	if err := writeFilePart(writer, "voice", sub.Voice); err != nil {
		return nil, "", err
	}

	fields := [][2]string{{"run_id", sub.RunID}}
	if sub.Style != "" {
		fields = append(fields, [2]string{"style", sub.Style})
	}
	if sub.SceneCount > 0 {
		fields = append(fields, [2]string{"number_of_scenes", strconv.Itoa(sub.SceneCount)})
	}

	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", f[0], err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFilePart(writer *multipart.Writer, field string, f *attachment.File) error {
	if f == nil {
		return fmt.Errorf("missing %s file", field)
	}

	contentType := f.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(f.Name)))
	h.Set("Content-Type", contentType)

	part, err := writer.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create form file %s: %w", field, err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return fmt.Errorf("failed to write %s data: %w", field, err)
	}
	return nil
}

func (c *Client) increment(counter *uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*counter++
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		GenerateRequests: c.generateRequests,
		LogRequests:      c.logRequests,
		FailedRequests:   c.failedRequests,
	}
}
