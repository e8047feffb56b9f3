package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/movie-ratings/auth"
	"github.com/jrsteele09/movie-ratings/backend"
	"github.com/jrsteele09/movie-ratings/internal/config"
	"github.com/jrsteele09/movie-ratings/internal/telemetry"
	"github.com/jrsteele09/movie-ratings/movies"
	"github.com/jrsteele09/movie-ratings/sessions"
	"github.com/jrsteele09/movie-ratings/users"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultAwaitTimeout = 3 * time.Second

// Backend bundles the hosted backend capabilities the server uses.
type Backend struct {
	// NewSessionStore returns the session store of one browser session
	NewSessionStore func(repo sessions.Repo, key string) backend.SessionStore
	// Data acts as the session attached to each request context
	Data backend.DataClient
}

type Server struct {
	env          string // Environment (e.g., "DEV", "PROD")
	mux          *http.ServeMux
	handler      http.Handler
	routes       []string
	config       config.Config
	catalog      *movies.Catalog
	profiles     users.ProfileRepo
	browsers     *sessionRegistry
	registry     *prometheus.Registry
	metrics      *telemetry.Metrics
	pages        *renderer
	logger       zerolog.Logger
	nowTime      func() time.Time
	awaitTimeout time.Duration
	cancel       context.CancelFunc
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithNowTime sets the clock used for idle session expiry (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

// WithRegistry serves metrics from registry instead of a private one
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = registry
	}
}

// WithAwaitTimeout bounds how long a request waits for the auth state to settle
func WithAwaitTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.awaitTimeout = timeout
	}
}

func New(cfg config.Config, be Backend, repo sessions.Repo, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[Server New] config is required")
	}
	if be.NewSessionStore == nil || be.Data == nil {
		return nil, errors.New("[Server New] backend session store and data client are required")
	}
	if repo == nil {
		return nil, errors.New("[Server New] session repo is required")
	}

	s := &Server{
		env:          cfg.GetEnv(),
		mux:          http.NewServeMux(),
		config:       cfg,
		catalog:      movies.NewCatalog(be.Data),
		profiles:     users.NewDataRepo(be.Data),
		logger:       log.Logger,
		nowTime:      time.Now,
		awaitTimeout: defaultAwaitTimeout,
	}
	for _, opt := range options {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	s.metrics = telemetry.NewMetrics(s.registry)

	pages, err := newRenderer()
	if err != nil {
		return nil, errors.Wrap(err, "[Server New] parse templates")
	}
	s.pages = pages

	resolver := users.NewResolver(s.profiles,
		users.WithLogger(s.logger),
		users.WithResolutionCounter(s.metrics.RoleResolutionsTotal))
	s.browsers = newSessionRegistry(func(id string) (*browserSession, error) {
		store := be.NewSessionStore(repo, id)
		coordinator, err := auth.NewCoordinator(store, resolver,
			auth.WithLogger(s.logger.With().Str("browser_session", shortID(id)).Logger()),
			auth.WithMetrics(s.metrics),
			auth.WithRoleUpdater(s.profiles))
		if err != nil {
			return nil, err
		}
		return &browserSession{id: id, store: store, coordinator: coordinator}, nil
	}, cfg.GetSessionIdleTimeout(), s.nowTime, s.metrics.ActiveSessions, s.logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.browsers.run(ctx)

	s.initRoutes()
	s.logRoutes()

	s.handler = s.mux
	if key := cfg.GetCSRFKey(); key != "" {
		s.handler = s.csrfProtect([]byte(key))(s.mux)
	}
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops the idle sweeper and closes every browser session's coordinator
func (s *Server) Close() {
	s.cancel()
	s.browsers.close()
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	s.logger.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
