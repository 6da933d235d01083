// Package arcgis queries ArcGIS FeatureServer layers for districts and
// charging stations.
package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/time/rate"

	"github.com/knifflig/ChargeApp/internal/domain"
	"github.com/knifflig/ChargeApp/internal/observability"
)

const (
	// maxPages bounds how far a query follows exceededTransferLimit.
	maxPages   = 50
	maxBackoff = 5 * time.Second
)

// Querier runs FeatureServer queries.
type Querier interface {
	Query(ctx context.Context, q Query) ([]Feature, error)
	ObjectIDs(ctx context.Context, q Query) ([]int64, error)
}

// Options tunes a Client.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	// RateLimit is the maximum requests per second; zero disables limiting.
	RateLimit float64
}

// Client queries one FeatureServer layer endpoint.
type Client struct {
	source     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a client for the layer query URL. source labels metrics
// and errors ("regions", "stations").
func NewClient(source, baseURL string, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Client{
		source:  source,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter:    limiter,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		logger:     logger,
		metrics:    metrics,
	}
}

// Query returns every feature matching q, following exceededTransferLimit
// with resultOffset when the server truncates a page.
func (c *Client) Query(ctx context.Context, q Query) ([]Feature, error) {
	var all []Feature
	for page := 1; ; page++ {
		resp, err := c.fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Features...)
		if !resp.ExceededTransferLimit || len(resp.Features) == 0 {
			return all, nil
		}
		if page >= maxPages {
			c.logger.Warn("feature query truncated", "source", c.source, "features", len(all))
			return all, nil
		}
		q.Offset += len(resp.Features)
	}
}

// ObjectIDs returns the object ids matching q.
func (c *Client) ObjectIDs(ctx context.Context, q Query) ([]int64, error) {
	q.IDsOnly = true
	q.ReturnGeometry = false
	resp, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}
	return resp.ObjectIDs, nil
}

// fetch runs one request with bounded retries on temporary failures.
func (c *Client) fetch(ctx context.Context, q Query) (queryResponse, error) {
	fullURL := c.baseURL + "?" + q.Values().Encode()
	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return queryResponse{}, &domain.FetchError{Source: c.source, URL: c.baseURL, Err: err}
		}
		resp, err := c.doRequest(ctx, fullURL)
		if err == nil {
			return resp, nil
		}

		var fe *domain.FetchError
		permanent := errors.As(err, &fe) && !fe.Temporary()
		if permanent || attempt >= c.maxRetries || ctx.Err() != nil {
			return queryResponse{}, err
		}
		c.logger.Warn("feature query failed, retrying",
			"source", c.source, "attempt", attempt+1, "backoff", backoff, "error", err)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return queryResponse{}, err
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (queryResponse, error) {
	start := time.Now()
	resp, err := c.roundTrip(ctx, fullURL)
	c.metrics.APIDuration.WithLabelValues(c.source).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.APIRequests.WithLabelValues(c.source, "error").Inc()
		return queryResponse{}, err
	}
	c.metrics.APIRequests.WithLabelValues(c.source, "success").Inc()
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, fullURL string) (queryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return queryResponse{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return queryResponse{}, &domain.FetchError{Source: c.source, URL: c.baseURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return queryResponse{}, &domain.FetchError{Source: c.source, URL: c.baseURL, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return queryResponse{}, &domain.FetchError{
			Source:     c.source,
			URL:        c.baseURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status: %s", truncate(body, 256)),
		}
	}

	// Attribute names carry umlauts; compose them so decoding matches struct tags.
	body = norm.NFC.Bytes(body)

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return queryResponse{}, &domain.FetchError{
			Source:     c.source,
			URL:        c.baseURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}
	if qr.Error != nil {
		return queryResponse{}, &domain.FetchError{
			Source:     c.source,
			URL:        c.baseURL,
			StatusCode: qr.Error.Code,
			Payload:    true,
			Err:        errors.New(qr.Error.message()),
		}
	}
	return qr, nil
}

func (e *apiError) message() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
