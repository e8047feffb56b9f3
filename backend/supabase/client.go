// Package supabase talks to a hosted Supabase project: GoTrue for auth and
// PostgREST for data.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/movie-ratings/backend"
	apperrors "github.com/jrsteele09/movie-ratings/internal/errors"
	"github.com/jrsteele09/movie-ratings/internal/telemetry"
	"github.com/jrsteele09/movie-ratings/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	authPath = "/auth/v1"
	restPath = "/rest/v1"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// Config identifies the project.
type Config struct {
	URL        string // project URL, e.g. https://xyz.supabase.co
	AnonKey    string
	ServiceKey string // optional, bypasses row level security
	JWKSURL    string // optional, enables access token signature checks
	Timeout    time.Duration
}

// Client is the shared HTTP plumbing of the auth and data clients.
type Client struct {
	cfg     Config
	baseURL *url.URL
	http    *http.Client
	keys    *oidc.RemoteKeySet
	logger  zerolog.Logger
	nowTime func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithNowTime sets the clock used for token expiry (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// New validates cfg and creates a Client
func New(cfg Config, options ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("[supabase.New] project URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("[supabase.New] anon key is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("[supabase.New] invalid project URL %q", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &Client{
		cfg:     cfg,
		baseURL: base,
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  log.Logger,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	if cfg.JWKSURL != "" {
		c.keys = oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), c.http), cfg.JWKSURL)
	}
	return c, nil
}

// Auth returns the GoTrue client
func (c *Client) Auth() *Auth {
	return &Auth{client: c}
}

// Data returns the PostgREST client acting as the session in each request context
func (c *Client) Data() *REST {
	return &REST{client: c}
}

// ServiceData returns a PostgREST client authorized with the service key
func (c *Client) ServiceData() (*REST, error) {
	if c.cfg.ServiceKey == "" {
		return nil, errors.New("[ServiceData] service key is not configured")
	}
	return &REST{client: c, service: true}, nil
}

// SessionStore returns the session store of one browser session
func (c *Client) SessionStore(repo sessions.Repo, key string) backend.SessionStore {
	return sessions.NewStore(c.Auth(), repo, key, sessions.WithStoreLogger(c.logger))
}

type request struct {
	service   string // span prefix, gotrue or postgrest
	operation string
	method    string
	path      string
	query     url.Values
	body      any
	bearer    string
	headers   map[string]string
}

// do sends req and decodes a successful JSON response into dest.
func (c *Client) do(ctx context.Context, req request, dest any, mapError func(status int, body []byte) error) (err error) {
	ctx, span := telemetry.StartBackendSpan(ctx, req.service, req.operation)
	defer func() { telemetry.EndSpan(span, err) }()

	u := *c.baseURL
	u.Path += req.path
	u.RawQuery = req.query.Encode()

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return apperrors.Wrapf(apperrors.ErrInternal, "encode %s body: %v", req.operation, err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrInternal, "build %s request: %v", req.operation, err)
	}
	httpReq.Header.Set("apikey", c.cfg.AnonKey)
	bearer := req.bearer
	if bearer == "" {
		bearer = c.cfg.AnonKey
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrTransport, "%s %s: %v", req.method, req.path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		mapped := mapError(resp.StatusCode, raw)
		c.logger.Debug().
			Str("operation", req.operation).
			Int("status", resp.StatusCode).
			Err(mapped).
			Msg("backend request failed")
		return mapped
	}

	if dest == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.Wrapf(apperrors.ErrInternal, "decode %s response: %v", req.operation, err)
	}
	return nil
}

// statusError maps the status classes both services share
func statusError(status int, message string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return apperrors.Wrapf(apperrors.ErrDenied, "%s", message)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return apperrors.Wrapf(apperrors.ErrTransport, "status %d: %s", status, message)
	default:
		return apperrors.Wrapf(apperrors.ErrInternal, "status %d: %s", status, message)
	}
}

func describe(parts ...string) string {
	for _, p := range parts {
		if p != "" {
			return p
		}
	}
	return "unknown error"
}

func bearerFor(ctx context.Context) string {
	if session := backend.SessionFromContext(ctx); session != nil {
		return session.AccessToken
	}
	return ""
}

func quoteTable(table string) string {
	return restPath + "/" + url.PathEscape(table)
}
