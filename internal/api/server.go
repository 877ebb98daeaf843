package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/netutil"

	"grimm.is/rnsgate/internal/auth"
	"grimm.is/rnsgate/internal/config"
	"grimm.is/rnsgate/internal/ctlplane"
	"grimm.is/rnsgate/internal/i18n"
	"grimm.is/rnsgate/internal/logging"
	"grimm.is/rnsgate/internal/metrics"
	"grimm.is/rnsgate/internal/ratelimit"
)

const apiPrefix = "/api/reticulum"

// ServerConfig holds HTTP server limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration // Slowloris prevention
	ReadTimeout       time.Duration // Body read limit
	WriteTimeout      time.Duration // Must outlast the longest probe
	IdleTimeout       time.Duration // Keep-alive timeout
	MaxHeaderBytes    int           // Header size limit
	MaxBodyBytes      int64         // Request body size limit
	MaxConnections    int           // Concurrent connections, 0 for unlimited
	AuthFailures      int           // Failed logins per client and window, 0 for unlimited
	AuthWindow        time.Duration
}

// DefaultServerConfig returns the default server limits.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second, // rnprobe may take 65s
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
		MaxBodyBytes:      1 << 20, // 1MB
		MaxConnections:    config.DefaultMaxConnections,
		AuthFailures:      10,
		AuthWindow:        5 * time.Minute,
	}
}

// Server handles API requests.
type Server struct {
	store    config.Store
	client   ctlplane.ControlPlaneClient // nil until the control plane is configured
	authMw   *auth.Middleware
	logger   *logging.Logger
	metrics  *metrics.Registry
	gatherer prometheus.Gatherer
	ws       *WSManager
	failures *ratelimit.Limiter
	cfg      *ServerConfig

	mux *http.ServeMux
}

// ServerOptions holds dependencies for the API server
type ServerOptions struct {
	Store          config.Store
	Client         ctlplane.ControlPlaneClient
	Keys           *auth.KeyStore
	RequireAuth    bool
	Logger         *logging.Logger
	Metrics        *metrics.Registry   // Optional: defaults to the global registry
	Gatherer       prometheus.Gatherer // Optional: served on /metrics
	StreamInterval time.Duration       // Optional: status stream period
	Config         *ServerConfig       // Optional: defaults to DefaultServerConfig
}

// NewServer creates a new API server with the provided options
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("api: settings store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	logger = logger.WithComponent("api")

	keys := opts.Keys
	if keys == nil {
		keys = auth.NewKeyStore(nil)
	}
	if opts.RequireAuth && keys.Len() == 0 {
		logger.Warn("Authentication is required but no API keys are configured; all requests will be rejected")
	}

	s := &Server{
		store:    opts.Store,
		client:   opts.Client,
		authMw:   auth.NewMiddleware(keys, opts.RequireAuth, logger),
		logger:   logger,
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
		cfg:      opts.Config,
	}
	if s.metrics == nil {
		s.metrics = metrics.Get()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.cfg == nil {
		s.cfg = DefaultServerConfig()
	}
	if opts.RequireAuth && s.cfg.AuthFailures > 0 {
		if s.cfg.AuthWindow <= 0 {
			s.cfg.AuthWindow = 5 * time.Minute
		}
		s.failures = ratelimit.NewLimiter(s.cfg.AuthFailures, s.cfg.AuthWindow, nil)
		s.authMw.LimitFailures(s.failures)
	}
	if s.client != nil {
		s.ws = NewWSManager(s.serviceStatus, opts.StreamInterval, logger)
	}

	s.initRoutes()
	return s, nil
}

// initRoutes initializes the HTTP router. Settings and command endpoints
// accept every method; handlers decide what a non-POST request means.
func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	s.mux = mux

	// Public endpoints
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Service
	mux.Handle(apiPrefix+"/service/status", s.protect(s.handleServiceStatus))
	mux.Handle(apiPrefix+"/service/reconfigure", s.protect(s.requireControlPlane(s.handleReconfigure)))
	mux.Handle(apiPrefix+"/service/start", s.protect(s.requireControlPlane(s.serviceAction(ctlplane.ServiceStart))))
	mux.Handle(apiPrefix+"/service/stop", s.protect(s.requireControlPlane(s.serviceAction(ctlplane.ServiceStop))))
	mux.Handle(apiPrefix+"/service/restart", s.protect(s.requireControlPlane(s.serviceAction(ctlplane.ServiceRestart))))
	mux.Handle("GET "+apiPrefix+"/service/pending", s.protect(s.requireControlPlane(s.handlePending)))
	mux.Handle("GET "+apiPrefix+"/service/audit", s.protect(s.requireControlPlane(s.handleAudit)))
	mux.Handle("GET "+apiPrefix+"/service/stream", s.protect(s.requireControlPlane(s.handleStatusWS)))

	// Settings
	mux.Handle(apiPrefix+"/settings/get", s.protect(s.getSection("reticulum", config.NodeGeneral)))
	mux.Handle(apiPrefix+"/settings/set", s.protect(s.setSection("reticulum", config.NodeGeneral)))
	mux.Handle(apiPrefix+"/settings/getPropagation", s.protect(s.getSection("propagation", config.NodePropagation)))
	mux.Handle(apiPrefix+"/settings/setPropagation", s.protect(s.setSection("propagation", config.NodePropagation)))
	mux.Handle(apiPrefix+"/settings/searchInterface", s.protect(s.handleSearchInterface))
	mux.Handle(apiPrefix+"/settings/getInterface", s.protect(s.handleGetInterface))
	mux.Handle(apiPrefix+"/settings/getInterface/{uuid}", s.protect(s.handleGetInterface))
	mux.Handle(apiPrefix+"/settings/addInterface", s.protect(s.handleAddInterface))
	mux.Handle(apiPrefix+"/settings/setInterface/{uuid}", s.protect(s.handleSetInterface))
	mux.Handle(apiPrefix+"/settings/delInterface/{uuid}", s.protect(s.handleDelInterface))
	mux.Handle(apiPrefix+"/settings/toggleInterface/{uuid}", s.protect(s.handleToggleInterface))
	mux.Handle(apiPrefix+"/settings/toggleInterface/{uuid}/{enabled}", s.protect(s.handleToggleInterface))

	// Utilities
	mux.Handle(apiPrefix+"/utilities/rnstatus", s.protect(s.requireControlPlane(s.handleUtilRNStatus)))
	mux.Handle(apiPrefix+"/utilities/rnid", s.protect(s.requireControlPlane(s.handleUtilRNID)))
	mux.Handle(apiPrefix+"/utilities/rnpath", s.protect(s.requireControlPlane(s.handleUtilRNPath)))
	mux.Handle(apiPrefix+"/utilities/rnprobe", s.protect(s.requireControlPlane(s.handleUtilRNProbe)))
	mux.Handle(apiPrefix+"/utilities/rnodeconfig", s.protect(s.requireControlPlane(s.handleUtilRNodeConfig)))
	mux.Handle(apiPrefix+"/utilities/rncp", s.protect(s.requireControlPlane(s.utility(ctlplane.RNCPHelp()))))
	mux.Handle(apiPrefix+"/utilities/rnx", s.protect(s.requireControlPlane(s.utility(ctlplane.RNXHelp()))))

	// Diagnostics
	for endpoint, sub := range diagnosticEndpoints {
		mux.Handle(apiPrefix+"/diagnostics/"+endpoint, s.protect(s.requireControlPlane(s.diagnostic(sub))))
	}
}

// protect requires a valid API key when authentication is enabled.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	return s.authMw.RequireKey(h)
}

// requireControlPlane ensures the control plane client is available
func (s *Server) requireControlPlane(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.client == nil {
			WriteErrorCtx(w, r, http.StatusServiceUnavailable, i18n.MsgControlPlaneDown)
			return
		}
		next(w, r)
	}
}

// run sends cmd to the control plane on behalf of the request's caller.
// Transport and command errors are logged and read as empty output.
func (s *Server) run(ctx context.Context, cmd ctlplane.Command) string {
	ctx = ctlplane.WithCaller(ctx, auth.CallerFromContext(ctx))
	out, err := s.client.Run(ctx, cmd)
	if err != nil {
		s.logger.Warn("Command failed", "command", cmd.String(), "error", err)
		return ""
	}
	return out
}

// loadSettings loads the settings tree, answering 500 on failure.
func (s *Server) loadSettings(w http.ResponseWriter, r *http.Request) (*config.Settings, bool) {
	settings, err := s.store.Load()
	if err != nil {
		s.logger.Error("Failed to load settings", "error", err)
		WriteErrorCtx(w, r, http.StatusInternalServerError, i18n.MsgSettingsLoad, err)
		return nil, false
	}
	return settings, true
}

// params reads the request parameters, answering 400 on a malformed body.
func (s *Server) params(w http.ResponseWriter, r *http.Request, withQuery bool) (params, bool) {
	p, err := readParams(r, withQuery)
	if err != nil {
		WriteErrorCtx(w, r, http.StatusBadRequest, i18n.MsgInvalidBody, err)
		return nil, false
	}
	return p, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.client == nil {
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, i18n.MsgControlPlaneDown)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	reply, err := s.client.Ping(ctx)
	if err != nil {
		WriteErrorCtx(w, r, http.StatusServiceUnavailable, i18n.MsgConnectFailed, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"control_plane": map[string]any{
			"version": reply.Version,
			"started": reply.Started,
			"pid":     reply.PID,
		},
	})
}

// NotifySettingsChanged tells stream clients subscribed to "settings" to
// reload, and pushes a fresh status to everyone.
func (s *Server) NotifySettingsChanged() {
	if s.ws == nil {
		return
	}
	s.ws.Publish("settings", map[string]int64{"changed": time.Now().Unix()})
	s.ws.TriggerStatusUpdate()
}

func (s *Server) triggerStatus() {
	if s.ws != nil {
		s.ws.TriggerStatusUpdate()
	}
}

// Handler returns the HTTP handler with the middleware chain applied.
//
//	AccessLog -> body limit -> i18n -> Mux (auth per route)
func (s *Server) Handler() http.Handler {
	return AccessLogger(s.logger, s.metrics)(s.limitBody(i18n.Middleware(s.mux)))
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && s.cfg.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// Serve answers requests on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}

	if s.ws != nil {
		s.ws.Start(ctx)
	}
	if s.failures != nil {
		s.failures.StartCleanup(ctx, s.cfg.AuthWindow, s.cfg.AuthWindow)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.logger.Info("API server listening", "addr", addr, "max_connections", s.cfg.MaxConnections)
	return s.Serve(ctx, ln)
}
