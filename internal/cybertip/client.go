// Package cybertip is the transport client for the CyberTipline reporting
// web service. Every call is Basic-authenticated with the organization's
// credentials, retried under retry.Default, and answered with an XML body.
package cybertip

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/endharassment/cybertip-reporter/internal/retry"
	"golang.org/x/time/rate"
)

// Base URLs of the two protocol environments.
const (
	TestBaseURL       = "https://exttest.cybertip.org/ispws"
	ProductionBaseURL = "https://report.cybertip.org/ispws"
)

// Route is a path on the reporting web service.
type Route string

const (
	RouteSubmit   Route = "/submit"
	RouteUpload   Route = "/upload"
	RouteFileInfo Route = "/fileinfo"
	RouteFinish   Route = "/finish"
)

// maxResponseBytes bounds how much of a response body we buffer.
const maxResponseBytes = 1 << 20 // 1 MiB

var (
	// ErrStreamConsumed is returned when a streamed upload failed after part
	// of its source had been read, so the transport could not replay it.
	ErrStreamConsumed = errors.New("streamed body partially consumed; cannot retry")
	ErrRequestFailed  = errors.New("cybertip request failed")
)

// Credentials are the organization's reporting web service login.
type Credentials struct {
	Username string
	Password string
}

// Config holds transport configuration. Zero values fall back to defaults.
type Config struct {
	ProductionBaseURL string
	TestBaseURL       string
	HTTPClient        *http.Client
	Retry             retry.Policy
	// RequestsPerSecond limits outbound calls across all submissions sharing
	// this client. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
}

// Client sends requests to the reporting web service.
type Client struct {
	prodURL string
	testURL string
	http    *http.Client
	retry   retry.Policy
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient returns a Client for cfg.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		prodURL: strings.TrimSuffix(cfg.ProductionBaseURL, "/"),
		testURL: strings.TrimSuffix(cfg.TestBaseURL, "/"),
		http:    cfg.HTTPClient,
		retry:   cfg.Retry,
		logger:  logger,
	}
	if c.prodURL == "" {
		c.prodURL = ProductionBaseURL
	}
	if c.testURL == "" {
		c.testURL = TestBaseURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 5 * time.Minute}
	}
	if c.retry.MaxAttempts == 0 {
		c.retry = retry.Default
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Response is a successful (2xx) reply from the web service.
type Response struct {
	StatusCode int
	Body       []byte
}

// Send posts body to route in the environment selected by isTest. Non-2xx
// responses and transport errors are retried. A StreamBody is sent exactly
// once; the caller owns retrying it from a fresh source.
func (c *Client) Send(ctx context.Context, creds Credentials, body Body, route Route, isTest bool) (*Response, error) {
	url := c.prodURL + string(route)
	if isTest {
		url = c.testURL + string(route)
	}

	var resp *Response
	attempt := 0
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		attempt++
		r, err := c.do(ctx, creds, body, url)
		if err == nil {
			resp = r
			return nil
		}
		c.logger.Debug("cybertip request attempt failed",
			"route", string(route),
			"attempt", attempt,
			"error", err,
		)
		if sb, ok := body.(*StreamBody); ok {
			if sb.Consumed() > 0 {
				return retry.Permanent(fmt.Errorf("%w: %w", ErrStreamConsumed, err))
			}
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", http.MethodPost, route, err)
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, creds Credentials, body Body, url string) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case XMLBody:
		reader = bytes.NewReader(b)
		contentType = "text/xml"
	case FormBody:
		r, ct, err := b.encode()
		if err != nil {
			return nil, retry.Permanent(err)
		}
		reader, contentType = r, ct
	case *StreamBody:
		pr, ct, done := b.pipe()
		defer func() {
			pr.Close()
			<-done
		}()
		reader, contentType = pr, ct
	default:
		return nil, retry.Permanent(fmt.Errorf("unsupported body type %T", body))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth(creds.Username, creds.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}
