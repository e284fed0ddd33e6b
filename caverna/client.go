package caverna

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
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const (
	// BaseURL is the production API base URL
	BaseURL = "https://pergunte-ao-capitao.perfilsouiuri.workers.dev"

	// DefaultTimeout for request/response calls (uploads included)
	DefaultTimeout = 2 * time.Minute

	// DefaultHealthCacheTTL is how long a health answer is reused
	DefaultHealthCacheTTL = 30 * time.Second

	// RequestIDHeader carries a per-request correlation id
	RequestIDHeader = "X-Request-ID"

	healthCacheKey = "health"
)

var (
	// ErrEmptyQuestion is returned when a blank question would be sent
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrEmptySessionID is returned when a stream is requested without a session
	ErrEmptySessionID = errors.New("session id is empty")
)

// Client is the "Pergunte ao Capitão" API client
type Client struct {
	baseURL    string
	httpClient *http.Client

	// streamClient has no timeout; push streams live as long as the job
	streamClient *http.Client

	logger zerolog.Logger
	health *cache.Cache
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL; invalid URLs are ignored
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return
		}
		if parsed.Host == "" {
			return
		}
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client for request/response calls
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the structured logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "caverna").Logger()
	}
}

// WithHealthCacheTTL sets how long health answers are cached; zero disables caching
func WithHealthCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl <= 0 {
			c.health = nil
			return
		}
		c.health = cache.New(ttl, 2*ttl)
	}
}

// NewClient creates a new API client
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL: BaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		streamClient: &http.Client{},
		logger:       zerolog.Nop(),
		health:       cache.New(DefaultHealthCacheTTL, 2*DefaultHealthCacheTTL),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	// Streams share the transport but never the timeout.
	c.streamClient.Transport = c.httpClient.Transport

	return c, nil
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UploadQuestion posts a media file to /upload-question. The service answers
// either with the final QuestionResponse or with a session id to follow on
// the processing stream.
func (c *Client) UploadQuestion(ctx context.Context, filename, contentType string, media io.Reader) (*UploadOutcome, error) {
	if media == nil {
		return nil, fmt.Errorf("media reader is required")
	}
	if filename == "" {
		filename = "question"
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, media); err != nil {
		return nil, fmt.Errorf("failed to copy file to form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/upload-question", writer.FormDataContentType(), body)
	if err != nil {
		return nil, err
	}

	return decodeUploadOutcome(respBody)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// decodeUploadOutcome tells the two upload answer shapes apart
func decodeUploadOutcome(body []byte) (*UploadOutcome, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if _, ok := fields["session_id"]; ok {
		var ack UploadResult
		if err := json.Unmarshal(body, &ack); err != nil {
			return nil, fmt.Errorf("failed to parse upload acknowledgement: %w", err)
		}
		if !ack.Success || ack.SessionID == "" {
			return nil, ackError(ack)
		}
		return &UploadOutcome{SessionID: ack.SessionID}, nil
	}

	if raw, ok := fields["success"]; ok && string(raw) == "false" {
		var ack UploadResult
		_ = json.Unmarshal(body, &ack)
		return nil, ackError(ack)
	}

	// Some deployments wrap the answer as {success, data}.
	if data, ok := fields["data"]; ok {
		body = data
	}

	result, err := decodeQuestionResponse(body)
	if err != nil {
		return nil, err
	}
	return &UploadOutcome{Result: result}, nil
}

func ackError(ack UploadResult) error {
	switch {
	case ack.Error != "":
		return fmt.Errorf("upload rejected: %s", ack.Error)
	case ack.Message != "":
		return fmt.Errorf("upload rejected: %s", ack.Message)
	default:
		return fmt.Errorf("upload rejected without a session id")
	}
}

func decodeQuestionResponse(body []byte) (*QuestionResponse, error) {
	var result QuestionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if strings.TrimSpace(result.Response) == "" {
		return nil, fmt.Errorf("service returned an empty response")
	}
	return &result, nil
}

// TestResponse posts a raw text question to /test-response. It is always
// synchronous: no session and no stream are involved.
func (c *Client) TestResponse(ctx context.Context, question string) (*QuestionResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, fmt.Errorf("failed to encode question: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/test-response", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	return decodeQuestionResponse(respBody)
}

// Health queries /health. Answers are cached for the configured TTL.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	if c.health != nil {
		if cached, ok := c.health.Get(healthCacheKey); ok {
			return cached.(*HealthStatus), nil
		}
	}

	respBody, err := c.do(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return nil, err
	}

	var status HealthStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to parse health: %w", err)
	}
	_ = json.Unmarshal(respBody, &status.Raw)
	if status.Status == "" {
		// A 2xx without a status field still means the worker answered.
		status.Status = "ok"
	}

	if c.health != nil {
		c.health.SetDefault(healthCacheKey, &status)
	}
	return &status, nil
}

// InvalidateHealth drops the cached health answer
func (c *Client) InvalidateHealth() {
	if c.health != nil {
		c.health.Delete(healthCacheKey)
	}
}

// CacheStats queries /cache-stats
func (c *Client) CacheStats(ctx context.Context) (*CacheStats, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/cache-stats", "", nil)
	if err != nil {
		return nil, err
	}

	var stats CacheStats
	if err := json.Unmarshal(respBody, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse cache stats: %w", err)
	}
	_ = json.Unmarshal(respBody, &stats.Raw)
	return &stats, nil
}

// SimilarQuestions posts a question to /similar-questions
func (c *Client) SimilarQuestions(ctx context.Context, question string) ([]SimilarQuestion, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return nil, fmt.Errorf("failed to encode question: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/similar-questions", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	// The list is returned either bare or under a "similar" key.
	var list []SimilarQuestion
	if err := json.Unmarshal(respBody, &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Similar []SimilarQuestion `json:"similar"`
		Data    []SimilarQuestion `json:"data"`
	}
	if err := json.Unmarshal(respBody, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to parse similar questions: %w", err)
	}
	if wrapped.Similar != nil {
		return wrapped.Similar, nil
	}
	return wrapped.Data, nil
}

// DownloadMedia copies a generated audio/video file into w
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string, w io.Writer) (int64, error) {
	target, err := c.resolve(mediaURL)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &APIError{StatusCode: resp.StatusCode, Message: "media download failed"}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to download media: %w", err)
	}
	return n, nil
}

// resolve turns a path or absolute URL into an absolute URL against baseURL
func (c *Client) resolve(ref string) (string, error) {
	base, err := url.Parse(c.baseURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", ref, err)
	}
	return base.ResolveReference(parsed).String(), nil
}

// do executes a request/response call and returns the body of a 2xx answer
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	log := c.logger.With().Str("method", method).Str("path", path).Str("request_id", requestID).Logger()
	log.Debug().Msg("request")
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Debug().
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Int("bytes", len(respBody)).
		Msg("response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			var alt struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(respBody, &alt) == nil && alt.Error != "" {
				apiErr.Message = alt.Error
			} else {
				apiErr.Message = strings.TrimSpace(string(truncate(respBody, 200)))
			}
		}
		apiErr.StatusCode = resp.StatusCode
		return nil, apiErr
	}

	return respBody, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
