// Package lookup queries the AcoustID web service for recordings matching a
// Chromaprint fingerprint.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/himanishpuri/AcousticID/pkg/apperr"
	"github.com/himanishpuri/AcousticID/pkg/models"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.acoustid.org/v2/lookup"
	DefaultTimeout = 10 * time.Second

	// MetaFields is the extended metadata requested on every lookup.
	MetaFields = "recordings recordingids releaseids releases tracks"

	// AcoustID allows three requests per second per client key.
	requestsPerSecond = 3
	requestBurst      = 1

	maxResponseBytes = 8 << 20
	userAgent        = "AcousticID/1.0"
)

// Client issues a single lookup per call: no retries, no backoff.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit overrides the client-side request rate. A zero limit
// disables limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if limit == 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("acoustid API key is required")
	}

	c := &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second/requestsPerSecond), requestBurst),
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, err := url.Parse(c.baseURL); err != nil {
		return nil, fmt.Errorf("invalid lookup URL %q: %w", c.baseURL, err)
	}
	return c, nil
}

// Lookup sends fp to the identification service. A response with status "ok"
// is returned even when it has no results. A status "error" response becomes
// a service-reported LookupFailed carrying the service's message; transport
// problems become plain LookupFailed errors.
func (c *Client) Lookup(ctx context.Context, fp models.FingerprintResult) (*Response, error) {
	// The rate limiter wait counts against the lookup timeout too.
	if c.httpClient.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transportError(fmt.Errorf("waiting for rate limiter: %w", err))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.requestURL(fp), nil)
	if err != nil {
		return nil, transportError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(fmt.Errorf("acoustid request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(fmt.Errorf("reading acoustid response: %w", err))
	}

	var out Response
	decodeErr := json.Unmarshal(body, &out)

	// AcoustID reports invalid input as status "error", usually with a 400.
	// The service's own message wins over the transport status.
	if decodeErr == nil && out.Status == "error" {
		msg := "identification service reported an error"
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		e := &apperr.Error{Kind: apperr.LookupFailed, Message: msg, ServiceReported: true}
		if out.Error != nil {
			e.Err = out.Error
		}
		return nil, e
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transportError(fmt.Errorf("acoustid returned status %d", resp.StatusCode))
	}
	if decodeErr != nil {
		return nil, transportError(fmt.Errorf("failed to decode acoustid response: %w", decodeErr))
	}
	if out.Status != "ok" {
		return nil, transportError(fmt.Errorf("acoustid returned status %q", out.Status))
	}

	out.Raw = json.RawMessage(body)
	return &out, nil
}

func (c *Client) requestURL(fp models.FingerprintResult) string {
	params := url.Values{
		"client":      {c.apiKey},
		"meta":        {MetaFields},
		"duration":    {strconv.Itoa(int(math.Round(fp.DurationSeconds)))},
		"fingerprint": {fp.Fingerprint},
		"format":      {"json"},
	}
	return c.baseURL + "?" + params.Encode()
}

func transportError(err error) error {
	return apperr.Wrap(apperr.LookupFailed, "Identification service unavailable", err)
}
