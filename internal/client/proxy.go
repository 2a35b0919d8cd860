// Package client calls the submit and poll proxy endpoints of a running
// fluxstudio server. ProxyClient satisfies tracker.Backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fluxstudio/internal/domain"
	"fluxstudio/internal/infra"
)

const (
	GeneratePath = "/api/generate"
	PollPath     = "/api/poll"

	maxBodyBytes  = 4 << 20
	maxImageBytes = 64 << 20
)

// Options configures a ProxyClient.
type Options struct {
	BaseURL    string
	Locale     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *infra.Logger
}

// ProxyClient is an HTTP client for the proxy endpoints.
type ProxyClient struct {
	baseURL    string
	locale     string
	httpClient *http.Client
	logger     *infra.Logger
}

// New validates opts and returns a client.
func New(opts Options) (*ProxyClient, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("client: base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("client: invalid base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &ProxyClient{baseURL: base, locale: strings.TrimSpace(opts.Locale), httpClient: httpClient, logger: logger}, nil
}

// Submit posts req to the submit proxy.
func (c *ProxyClient) Submit(ctx context.Context, req domain.GenerationRequest) ([]byte, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("client: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+GeneratePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, "submit")
}

// Poll asks the poll proxy for the status of h.
func (c *ProxyClient) Poll(ctx context.Context, h domain.JobHandle) ([]byte, error) {
	if h.IsZero() {
		return nil, errors.New("client: empty job handle")
	}
	endpoint := c.baseURL + PollPath + "?" + h.Query().Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	return c.do(httpReq, "poll")
}

// Download fetches a generated image and returns its bytes and content type.
func (c *ProxyClient) Download(ctx context.Context, imageURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", fmt.Errorf("client: invalid image url: %s", imageURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("client: build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &domain.TransportError{Op: "client: download", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", &domain.HTTPError{Status: resp.StatusCode, Message: "download failed"}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", &domain.TransportError{Op: "client: read image", Err: err}
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

func (c *ProxyClient) do(req *http.Request, op string) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	if c.locale != "" {
		req.Header.Set("Accept-Language", c.locale)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: "client: " + op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.TransportError{Op: "client: read " + op + " response", Err: err}
	}
	c.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Msg("client: proxy call")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := domain.ErrorMessage(raw)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return raw, &domain.HTTPError{Status: resp.StatusCode, Message: msg}
	}
	return raw, nil
}
