// Package transport performs single page fetches and classifies failures
// into the harvest error taxonomy.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	errs "commentharvest/pkg/errors"
	"commentharvest/pkg/logger"
)

// DefaultMaxBodySize caps how much of a response body is read
const DefaultMaxBodySize = 8 << 20

// Fetcher issues one page request and returns the raw body
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) ([]byte, error)
}

// Client is the HTTP transport shared by both platform sources
type Client struct {
	httpClient  *http.Client
	headers     map[string]string
	timeout     time.Duration
	maxBodySize int64
	logger      logger.Logger
}

// NewClient creates a transport that bounds every call by timeout
func NewClient(timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{},
		headers: map[string]string{
			"Accept":          "application/json, text/plain, */*",
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
			"Pragma":          "no-cache",
		},
		timeout:     timeout,
		maxBodySize: DefaultMaxBodySize,
		logger:      log,
	}
}

// SetHeader sets a default header sent with every request
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetHeaders sets multiple default headers at once
func (c *Client) SetHeaders(headers map[string]string) {
	for key, value := range headers {
		c.headers[key] = value
	}
}

// SetHTTPClient replaces the underlying http.Client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// Fetch performs req and returns its body for a 2xx response. Any other
// outcome is a classified *errors.Error, except cancellation of ctx which
// is returned as ctx.Err().
func (c *Client) Fetch(ctx context.Context, req *http.Request) ([]byte, error) {
	parent := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req = req.WithContext(ctx)

	// Request-specific headers win over defaults
	for key, value := range c.headers {
		if req.Header.Get(key) == "" {
			req.Header.Set(key, value)
		}
	}

	target := req.URL.Redacted()
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if parentErr := parent.Err(); parentErr != nil {
			return nil, parentErr
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      target,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, 0, err, "network error")
	}
	defer resp.Body.Close()

	logger.LogRequest(c.logger, req.Method, target, resp.StatusCode, duration)

	if err := c.checkResponseStatus(resp); err != nil {
		// Drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		if parentErr := parent.Err(); parentErr != nil {
			return nil, parentErr
		}
		return nil, errs.Wrap(errs.ErrorTypeNetwork, resp.StatusCode, err, "failed to read response body")
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, errs.New(errs.ErrorTypeParsing, resp.StatusCode, "response body exceeds %d bytes", c.maxBodySize)
	}

	return body, nil
}

// checkResponseStatus maps an HTTP status to the failure taxonomy
func (c *Client) checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.New(errs.ErrorTypeAuth, code, "session rejected")
	case code == http.StatusTooManyRequests:
		e := errs.New(errs.ErrorTypeRateLimit, code, "rate limit exceeded")
		e.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		if e.RetryAfter > 0 {
			logger.LogRateLimit(c.logger, resp.Request.URL.Host, e.RetryAfter)
		}
		return e
	case code >= 500:
		return errs.New(errs.ErrorTypeServerError, code, "server error")
	case code == http.StatusNotFound:
		return errs.New(errs.ErrorTypeNotFound, code, "resource not found")
	case code >= 400:
		return errs.New(errs.ErrorTypeBadRequest, code, "request rejected")
	default:
		return errs.New(errs.ErrorTypeUnknown, code, "unexpected status code: %d", code)
	}
}

// ParseRetryAfter reads a Retry-After header given either as seconds or
// as an HTTP date. It returns 0 when the header is absent or unusable.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// NewGetRequest builds a GET request with the given headers
func NewGetRequest(rawURL string, headers map[string]string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return req, nil
}
