// Package parser is the HTTP client for the course-document parse
// service. It submits document bytes or structured bodies and returns
// the parsed timeline payload.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/courseflow/courseflow/pkg/observability/logger"
)

const (
	defaultRequestTimeout    = 60 * time.Second
	defaultRequestsPerSecond = 5.0
	maxErrorBodyBytes        = 4 << 10
)

// StatusError reports a non-2xx response from the parse service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("parse service returned %d: %s", e.Code, e.Body)
}

// IsRejection reports whether err is a parse-service response that will
// not succeed on retry: the service understood the request and refused
// the document. Server errors, timeouts, and throttling responses are
// not rejections.
func IsRejection(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return statusErr.Code >= 400 && statusErr.Code < 500
}

// Config configures the parse service client.
type Config struct {
	BaseURL           string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

func (c *Config) normalize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = defaultRequestsPerSecond
	}
}

// Client calls the parse service. Requests are throttled by a shared
// rate limiter so a burst of workers cannot overwhelm the service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        logger.Logger
}

// NewClient validates the config and returns a ready client.
func NewClient(cfg Config, log logger.Logger) (*Client, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.normalize()
	if cfg.BaseURL == "" {
		return nil, errors.New("parse service base url is required")
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:        log,
	}, nil
}

// ParseFile submits the document bytes as a multipart upload and
// returns the parsed timeline payload.
func (c *Client) ParseFile(ctx context.Context, filename string, data []byte) (json.RawMessage, error) {
	if len(data) == 0 {
		return nil, errors.New("document is empty")
	}
	if strings.TrimSpace(filename) == "" {
		filename = "document"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart request failed: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("build multipart request failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build multipart request failed: %w", err)
	}

	return c.post(ctx, "/api/parse/file", writer.FormDataContentType(), &body)
}

// ParseBody submits an inline structured payload and returns the parsed
// timeline payload.
func (c *Client) ParseBody(ctx context.Context, content json.RawMessage) (json.RawMessage, error) {
	if len(content) == 0 {
		return nil, errors.New("content is empty")
	}
	return c.post(ctx, "/api/parse/body", "application/json", bytes.NewReader(content))
}

// HealthCheck probes the parse service health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("parse service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("parse service request failed: %w", err)
	}
	defer resp.Body.Close()

	c.log.Debug("parse service request", "path", path, "status", resp.StatusCode, "duration", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read parse service response failed: %w", err)
	}
	if !json.Valid(payload) {
		return nil, errors.New("parse service returned malformed JSON")
	}
	return json.RawMessage(payload), nil
}

func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
