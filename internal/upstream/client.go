package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/resilient-orders/internal/failure"
	"github.com/angeloszaimis/resilient-orders/internal/order"
)

const (
	// RequestIDHeader carries the per-attempt correlation id.
	RequestIDHeader = "X-Request-Id"

	ewmaAlpha       = 0.2
	maxPayloadBytes = 10 << 20
)

// Client performs single GET requests against the orders endpoint.
// It never retries, delays or caches.
type Client struct {
	url        *url.URL
	httpClient *http.Client
	logger     *slog.Logger

	mutex            sync.Mutex
	ewmaResponseTime time.Duration
	hasEWMA          bool
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the given absolute http(s) URL.
func New(rawURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url %q must use http or https scheme", rawURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream url %q must have a host", rawURL)
	}

	c := &Client{
		url:        u,
		httpClient: &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// URL returns the endpoint this client talks to.
func (c *Client) URL() *url.URL {
	return c.url
}

// Attempt sends one request and decodes the response.
//
// Failures are classified as failure.Network, failure.Server or
// failure.Decode. If ctx ends first, ctx.Err() is returned unclassified.
func (c *Client) Attempt(ctx context.Context) ([]order.Order, error) {
	requestID := uuid.NewString()
	logger := c.logger.With(slog.String("request_id", requestID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Debug("Upstream unreachable", slog.Any("err", err))
		return nil, failure.Network(err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxPayloadBytes))
	duration := time.Since(start)
	c.recordResponse(duration)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Debug("Upstream body read failed", slog.Any("err", err))
		return nil, failure.Network(err)
	}

	logger.Debug("Upstream responded",
		slog.Int("status", res.StatusCode),
		slog.Duration("duration", duration))

	if res.StatusCode != http.StatusOK {
		return nil, failure.Server(res.StatusCode)
	}

	orders, err := order.Decode(body)
	if err != nil {
		return nil, failure.Decode(err)
	}

	return orders, nil
}

// CloseIdleConnections releases pooled keep-alive connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// recordResponse updates the exponentially weighted moving average (EWMA)
// response time using the latest request duration.
func (c *Client) recordResponse(duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.hasEWMA {
		c.ewmaResponseTime = duration
		c.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	c.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(c.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the smoothed upstream response time, or 0 before the
// first response.
func (c *Client) EWMATime() time.Duration {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.hasEWMA {
		return 0
	}

	return c.ewmaResponseTime
}
