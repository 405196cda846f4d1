package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prilive-com/enflux/internal/httpclient"
	"github.com/prilive-com/enflux/internal/scrub"
	"github.com/prilive-com/enflux/source"
)

const (
	maxResponseSize = 10 << 20 // 10MB

	defaultUserAgent = "enflux/1.0"

	defaultProbeTimeout = 10 * time.Second
)

// Client fetches data from HTTP API sources. It implements source.Fetcher
// and source.Prober. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	maxBytes   int64
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxResponseSize overrides the response size cap.
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) { c.maxBytes = n }
}

// New creates an HTTP source client.
func New(opts ...Option) *Client {
	c := &Client{
		userAgent: defaultUserAgent,
		maxBytes:  maxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = httpclient.NewDefault()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Fetch performs one GET against the source. The failover manager owns
// retries, rate limiting and the circuit breaker; this method only maps a
// single HTTP exchange into the shared error taxonomy.
func (c *Client) Fetch(ctx context.Context, cfg *source.Config, req *source.Request) (*source.Result, error) {
	u, err := buildURL(cfg.BaseURL, req.Parameters)
	if err != nil {
		return nil, source.NewSourceError(cfg.ID, 0, fmt.Sprintf("bad base url: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("enflux: failed to create request: %w", err)
	}
	c.setHeaders(httpReq, cfg)

	resp, err := httpclient.DoJSON(ctx, c.httpClient, httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// Let the caller classify deadline vs cancellation.
			return nil, ctxErr
		}
		return nil, fmt.Errorf("enflux: request failed: %w", scrub.CredentialFromError(err, cfg.Credential))
	}
	defer resp.Body.Close()

	// Read maxBytes+1 to detect overflow without a false positive.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("enflux: failed to read response: %w", scrub.CredentialFromError(err, cfg.Credential))
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: source %s", source.ErrResponseTooLarge, cfg.ID)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(cfg, resp, body)
	}

	return &source.Result{
		Data:   payload(resp.Header.Get("Content-Type"), body),
		Format: formatFor(resp.Header.Get("Content-Type")),
	}, nil
}

// Probe checks the source's health endpoint without fetching data.
// Any 2xx or 3xx status counts as healthy.
func (c *Client) Probe(ctx context.Context, cfg *source.Config) error {
	endpoint := cfg.Health.Endpoint
	if endpoint == "" {
		endpoint = cfg.BaseURL
	}

	timeout := cfg.Health.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("enflux: failed to create probe request: %w", err)
	}
	c.setHeaders(req, cfg)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("enflux: probe failed: %w", scrub.CredentialFromError(err, cfg.Credential))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 400 {
		return source.NewSourceError(cfg.ID, resp.StatusCode, "health check failed")
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, cfg *source.Config) {
	req.Header.Set("User-Agent", c.userAgent)
	if !cfg.Credential.IsEmpty() {
		req.Header.Set("Authorization", "Bearer "+cfg.Credential.Value())
	}
}

// statusError maps a non-200 response into the error taxonomy.
func (c *Client) statusError(cfg *source.Config, resp *http.Response, body []byte) error {
	msg := snippet(body)

	if resp.StatusCode == http.StatusTooManyRequests {
		srcErr := source.NewSourceError(cfg.ID, resp.StatusCode, msg)
		if after := retryAfter(resp); after > 0 {
			srcErr.RetryAfter = after
		}
		return srcErr
	}

	c.logger.Debug("upstream error",
		"source", cfg.ID,
		"status", resp.StatusCode,
	)
	return source.NewSourceError(cfg.ID, resp.StatusCode, msg)
}

// retryAfter parses the Retry-After header (seconds form only).
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func buildURL(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// payload returns the body as raw JSON when the upstream spoke JSON, and as
// a JSON-encoded string otherwise (CSV, XML, plain text).
func payload(contentType string, body []byte) json.RawMessage {
	if formatFor(contentType) == "json" && json.Valid(body) {
		return json.RawMessage(body)
	}
	encoded, err := json.Marshal(string(body))
	if err != nil {
		return json.RawMessage(`""`)
	}
	return json.RawMessage(encoded)
}

func formatFor(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "raw"
	}
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return "json"
	case mt == "text/csv":
		return "csv"
	case mt == "application/xml" || mt == "text/xml" || strings.HasSuffix(mt, "+xml"):
		return "xml"
	default:
		return "raw"
	}
}

// snippet trims an error body for diagnostics without dumping payloads
// into logs.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "upstream returned an error"
	}
	return s
}

var (
	_ source.Fetcher = (*Client)(nil)
	_ source.Prober  = (*Client)(nil)
)
