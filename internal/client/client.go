// Package client is the HTTP wrapper every Codeyard API call goes through.
//
// It attaches the bearer token, classifies failures into *APIError and
// recovers from expired access tokens through a RefreshCoordinator: a 401 on
// any non-credential endpoint parks the request until a single refresh
// settles, then replays it once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/duynhne/codeyard/config"
	"github.com/duynhne/codeyard/internal/core/domain"
	"github.com/duynhne/codeyard/internal/core/session"
	"github.com/duynhne/codeyard/internal/logger"
	"github.com/duynhne/codeyard/middleware"
)

// Credential-issuing endpoints. A 401 from these is a real answer, never a
// reason to refresh.
const (
	LoginPath    = "/auth/login/"
	RegisterPath = "/auth/register/"
	RefreshPath  = "/auth/refresh/"
	LogoutPath   = "/auth/logout/"
)

const (
	RequestIDHeader = "X-Request-ID"
	maxBodySize     = 4 << 20
)

// Request describes one API call. Path is relative to the base URL and keeps
// the API's trailing slash, e.g. "/solutions/5/publish/".
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

type response struct {
	status int
	body   []byte
}

// Client is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	session   *session.Store
	limiter   *rate.Limiter
	metrics   *Metrics
	refresher *RefreshCoordinator
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is added
// when the given client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records into m instead of the default registry.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLimiter replaces the client-side rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// New creates a client for cfg.API bound to store.
func New(cfg *config.Config, store *session.Store, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(cfg.API.BaseURL, "/"),
		session: store,
		http:    &http.Client{Timeout: cfg.GetAPITimeoutDuration()},
	}
	if cfg.API.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.API.RequestsPerSecond), max(cfg.API.Burst, 1))
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = DefaultMetrics()
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	c.refresher = NewRefreshCoordinator(store, c.exchangeRefresh, cfg.GetRefreshTimeoutDuration(), c.metrics)
	return c, nil
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *session.Store {
	return c.session
}

// Coordinator exposes the refresh coordinator.
func (c *Client) Coordinator() *RefreshCoordinator {
	return c.refresher
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

// Do sends req and decodes a successful JSON response into out (which may be
// nil). Failures are returned as *APIError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	ctx, span := middleware.StartSpan(ctx, "client.request", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("api.path", req.Path),
	))
	defer span.End()

	token := c.session.AccessToken()
	resp, err := c.send(ctx, req, token)
	if err == nil && resp.status == http.StatusUnauthorized && refreshable(req.Path) {
		span.AddEvent("token.expired")
		done, aerr := c.refresher.AwaitTurn(ctx, token)
		if aerr != nil {
			err = c.awaitError(req, resp, aerr)
		} else {
			c.metrics.Retries.Inc()
			span.AddEvent("request.retry")
			resp, err = c.send(ctx, req, c.session.AccessToken())
		}
		done()
	}
	if err == nil {
		err = decode(req, resp, out)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(Classify(err)))
		return err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.status))
	return nil
}

func (c *Client) awaitError(req Request, resp *response, err error) error {
	switch {
	case errors.Is(err, ErrNoSession):
		return statusError(req.Method, req.Path, resp.status, resp.body)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return transportError(req.Method, req.Path, err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return &APIError{
			Kind:   apiErr.Kind,
			Status: apiErr.Status,
			Method: req.Method,
			Path:   req.Path,
			Detail: apiErr.Detail,
			Fields: apiErr.Fields,
			Err:    err,
		}
	}
	return &APIError{Kind: KindUnauthenticated, Status: resp.status, Method: req.Method, Path: req.Path, Err: err}
}

// Refresh refreshes the access token through the coordinator, so it never
// races a refresh triggered by an intercepted 401.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refresher.Refresh(ctx)
}

// exchangeRefresh exchanges the refresh cookie for a new access token. It
// never attaches a bearer token and is never intercepted.
func (c *Client) exchangeRefresh(ctx context.Context) (string, error) {
	req := Request{Method: http.MethodPost, Path: RefreshPath}
	resp, err := c.send(ctx, req, "")
	if err != nil {
		return "", err
	}
	var tok domain.TokenResponse
	if err := decode(req, resp, &tok); err != nil {
		return "", err
	}
	return tok.Access, nil
}

func (c *Client) send(ctx context.Context, req Request, token string) (*response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transportError(req.Method, req.Path, err)
		}
	}

	httpReq, err := c.newRequest(ctx, req, token)
	if err != nil {
		return nil, &APIError{Kind: KindUnexpected, Method: req.Method, Path: req.Path, Err: err}
	}

	log := logger.FromContext(ctx).With().
		Str("method", req.Method).
		Str("path", req.Path).
		Str("request_id", httpReq.Header.Get(RequestIDHeader)).
		Logger()

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	duration := time.Since(start)
	c.metrics.RequestDuration.WithLabelValues(req.Method).Observe(duration.Seconds())
	if err != nil {
		c.metrics.Requests.WithLabelValues(req.Method, "error").Inc()
		log.Warn().Err(err).Dur("duration", duration).Msg("API request failed")
		return nil, transportError(req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		c.metrics.Requests.WithLabelValues(req.Method, "error").Inc()
		return nil, transportError(req.Method, req.Path, fmt.Errorf("read response body: %w", err))
	}

	c.metrics.Requests.WithLabelValues(req.Method, strconv.Itoa(httpResp.StatusCode)).Inc()
	log.Debug().Int("status", httpResp.StatusCode).Dur("duration", duration).Msg("API request")
	return &response{status: httpResp.StatusCode, body: body}, nil
}

func (c *Client) newRequest(ctx context.Context, req Request, token string) (*http.Request, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set(RequestIDHeader, uuid.NewString())
	middleware.InjectTraceContext(ctx, propagation.HeaderCarrier(httpReq.Header))
	return httpReq, nil
}

func decode(req Request, resp *response, out any) error {
	if resp.status < 200 || resp.status >= 300 {
		return statusError(req.Method, req.Path, resp.status, resp.body)
	}
	if out == nil || resp.status == http.StatusNoContent || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &APIError{
			Kind:   KindUnexpected,
			Status: resp.status,
			Method: req.Method,
			Path:   req.Path,
			Err:    fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

func refreshable(path string) bool {
	switch path {
	case LoginPath, RegisterPath, RefreshPath:
		return false
	}
	return true
}
