// Package bfl talks to the Black Forest Labs FLUX API. Response bodies are
// returned verbatim so the proxies can relay them unchanged.
package bfl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"fluxstudio/internal/domain"
	"fluxstudio/internal/infra"
	"fluxstudio/internal/metrics"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("bfl: api key is required")

// ErrPollingURLNotAllowed is returned for polling URLs outside the allowed hosts.
var ErrPollingURLNotAllowed = errors.New("bfl: polling url not allowed")

const (
	maxResponseBytes = 4 << 20
	maxRedirects     = 5
)

// Options configures the FLUX API client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	PollHosts      []string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the FLUX API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	pollHosts  []string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.bfl.ai"
	}
	model := strings.Trim(strings.TrimSpace(opts.Model), "/")
	if model == "" {
		model = "flux-kontext-pro"
	}
	var hosts []string
	for _, h := range opts.PollHosts {
		if h = strings.ToLower(strings.Trim(strings.TrimSpace(h), ".")); h != "" {
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 {
		hosts = []string{"bfl.ai"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	c := &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		model:     model,
		pollHosts: hosts,
		logger:    logger,
	}
	// Copy so a caller-supplied client keeps its own redirect policy.
	guarded := *httpClient
	guarded.CheckRedirect = c.checkRedirect
	c.httpClient = &guarded
	return c, nil
}

// checkRedirect keeps the x-key header from following a redirect to a host
// outside the base URL and the polling allowlist.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("bfl: stopped after %d redirects", maxRedirects)
	}
	if base, err := url.Parse(c.baseURL); err == nil && strings.EqualFold(base.Host, req.URL.Host) && base.Scheme == req.URL.Scheme {
		return nil
	}
	return c.CheckPollingURL(req.URL.String())
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Submit posts a generation request and returns the raw response body. A
// non-2xx answer yields *domain.HTTPError, a network failure
// *domain.TransportError.
func (c *Client) Submit(ctx context.Context, req domain.GenerationRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("bfl: encode request: %w", err)
	}
	endpoint := c.baseURL + "/v1/" + c.model
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bfl: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	raw, err := c.do(httpReq, "submit")
	if err != nil {
		return raw, err
	}
	c.logger.Debug().
		Str("model", c.model).
		RawJSON("response", compactJSON(raw)).
		Msg("bfl: submitted generation request")
	return raw, nil
}

// Poll fetches the status document for h.
func (c *Client) Poll(ctx context.Context, h domain.JobHandle) ([]byte, error) {
	if pollingURL := h.PollingURL(); pollingURL != "" {
		if err := c.CheckPollingURL(pollingURL); err != nil {
			return nil, err
		}
	}
	statusURL, err := h.StatusURL(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("bfl: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bfl: build request: %w", err)
	}
	raw, err := c.do(httpReq, "poll")
	if err != nil {
		return raw, err
	}
	c.logger.Debug().Str("handle", h.String()).Msg("bfl: polled job status")
	return raw, nil
}

// CheckPollingURL rejects URLs the credential must not be sent to: the host
// must equal or be a subdomain of an allowed host, and the scheme must be
// https except on loopback.
func (c *Client) CheckPollingURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("%w: %q", ErrPollingURLNotAllowed, raw)
	}
	host := strings.ToLower(parsed.Hostname())
	switch parsed.Scheme {
	case "https":
	case "http":
		if !isLoopback(host) {
			return fmt.Errorf("%w: insecure scheme", ErrPollingURLNotAllowed)
		}
	default:
		return fmt.Errorf("%w: scheme %q", ErrPollingURLNotAllowed, parsed.Scheme)
	}
	for _, allowed := range c.pollHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q", ErrPollingURLNotAllowed, host)
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.UpstreamDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(op, "transport").Inc()
		return nil, &domain.TransportError{Op: "bfl: " + op, Err: err}
	}
	defer resp.Body.Close()
	metrics.UpstreamRequestsTotal.WithLabelValues(op, metrics.OutcomeClass(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &domain.TransportError{Op: "bfl: read " + op + " response", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := domain.ErrorMessage(raw)
		if msg == "" {
			msg = strings.TrimSpace(http.StatusText(resp.StatusCode))
		}
		c.logger.Warn().
			Str("op", op).
			Int("status", resp.StatusCode).
			Str("body", truncate(string(raw), 512)).
			Msg("bfl: upstream error")
		return raw, &domain.HTTPError{Status: resp.StatusCode, Message: msg}
	}
	return raw, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func compactJSON(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		quoted, _ := json.Marshal(truncate(string(raw), 512))
		return quoted
	}
	return buf.Bytes()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
