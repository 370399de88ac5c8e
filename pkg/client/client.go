// Package client provides the HTTP client for the remote analysis API.
// Each Fetch is exactly one network call bounded by a timeout; retrying is
// left to the orchestrator.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/eld-analysis/pkg/analysis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for remote API calls.
var (
	remoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eld_remote_requests_total",
		Help: "Total analysis API requests by status",
	}, []string{"status"})

	remoteRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "eld_remote_request_duration_seconds",
		Help:    "Analysis API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	remoteErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eld_remote_errors_total",
		Help: "Total analysis API errors by class",
	}, []string{"class"})
)

// maxErrorBody caps how much of a failed response body is kept.
const maxErrorBody = 4 << 10

// Client fetches per-company analysis documents.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the analysis API, e.g. "https://monitor.example.com/api"
	BaseURL string

	// Token is sent as a bearer token when set
	Token string

	// UserAgent header
	UserAgent string

	// Timeout bounds a single fetch, including reading the body
	Timeout time.Duration
}

// DefaultConfig returns the default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "eld-analysis/0.1.0",
		Timeout:   120 * time.Second,
	}
}

// New creates a new analysis API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https (got %q)", base.Scheme)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	return &Client{
		httpClient: &http.Client{},
		baseURL:    base,
		config:     cfg,
		logger:     log.With().Str("component", "remote-client").Logger(),
	}, nil
}

// Fetch retrieves the analysis document of one company within tenant.
// Any non-2xx status, timeout, transport or decode problem is returned as
// an *APIError.
func (c *Client) Fetch(ctx context.Context, tenant, entityID string) (*analysis.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	startTime := time.Now()
	defer func() {
		remoteRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(tenant, entityID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	c.logger.Debug().
		Str("tenant", tenant).
		Str("entity_id", entityID).
		Msg("Fetching analysis")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(tenant, entityID, &APIError{
			ErrorClass: classifyError(nil, err),
			Message:    "request failed",
			Err:        err,
		})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, c.fail(tenant, entityID, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: classifyError(resp, nil),
			Message:    resp.Status,
			Body:       string(body),
		})
	}

	var doc analysis.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		class := ErrorClassDecode
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			class = ErrorClassTimeout
		}
		return nil, c.fail(tenant, entityID, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    "decode analysis document",
			Err:        err,
		})
	}

	remoteRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	return &doc, nil
}

// fail records metrics and logs for a failed fetch and returns err.
func (c *Client) fail(tenant, entityID string, err *APIError) error {
	status := string(err.ErrorClass)
	if err.StatusCode > 0 {
		status = strconv.Itoa(err.StatusCode)
	}
	remoteRequestsTotal.WithLabelValues(status).Inc()
	remoteErrorsTotal.WithLabelValues(string(err.ErrorClass)).Inc()

	c.logger.Warn().
		Err(err).
		Str("tenant", tenant).
		Str("entity_id", entityID).
		Int("status_code", err.StatusCode).
		Str("error_class", string(err.ErrorClass)).
		Msg("Analysis fetch failed")
	return err
}

// endpoint builds {base}/origins/{tenant}/companies/{entityID}/analysis.
func (c *Client) endpoint(tenant, entityID string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/origins/" + url.PathEscape(tenant) +
		"/companies/" + url.PathEscape(entityID) + "/analysis"
	return u.String()
}

// classifyError categorizes a failed call for observability.
func classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return ErrorClassTimeout
		}
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassUnexpected
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
