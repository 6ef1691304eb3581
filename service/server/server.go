package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solboard/service/config"
	"github.com/brojonat/solboard/service/dashboard"
	"github.com/brojonat/solboard/service/metrics"
	"github.com/brojonat/solboard/service/wallet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the dashboard.
type Server struct {
	addr      string
	cfg       *config.Config
	dash      *dashboard.Dashboard
	keypair   wallet.Wallet
	stream    *ActivityStream
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
	buildInfo BuildInfo
}

// BuildInfo is reported by the version endpoint.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// New creates a new HTTP server with the given dependencies.
// The keypair is connected when a session request names no address; it may be nil.
// The stream is optional - if nil, the SSE endpoint won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, dash *dashboard.Dashboard, keypair wallet.Wallet, stream *ActivityStream, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		dash:      dash,
		keypair:   keypair,
		stream:    stream,
		metrics:   m,
		logger:    logger,
		buildInfo: BuildInfo{Version: "dev"},
	}
}

// WithBuildInfo sets the version reported by GET /version.
func (s *Server) WithBuildInfo(info BuildInfo) *Server {
	s.buildInfo = info
	return s
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, pattern)(h))
	}

	// Session
	route("GET /api/v1/session", handleGetSession(s.dash))
	route("POST /api/v1/session", handleConnect(s.dash, s.keypair, s.logger))
	route("DELETE /api/v1/session", handleDisconnect(s.dash))

	// Account snapshot
	route("GET /api/v1/balance", handleBalance(s.dash, s.logger))
	route("GET /api/v1/tokens", handleTokens(s.dash, s.logger))

	// Activity feed
	route("GET /api/v1/activity", handleActivity(s.dash, s.logger))
	route("POST /api/v1/activity/more", handleActivityPage(s.dash.LoadMoreActivity, s.logger))
	route("POST /api/v1/activity/reset", handleActivityPage(s.dash.ResetActivity, s.logger))

	// Message authentication
	route("GET /api/v1/message", handleMessageState(s.dash))
	route("POST /api/v1/message/sign", handleSign(s.dash, s.logger))
	route("POST /api/v1/message/verify", handleVerify(s.dash, s.logger))

	// Funds
	route("POST /api/v1/airdrop", handleAirdrop(s.dash, s.logger))
	route("POST /api/v1/transfer", handleTransfer(s.dash, s.logger))
	route("GET /api/v1/transfer/notice", handleNotice(s.dash))

	if s.stream != nil {
		route("GET /api/v1/stream/activity", handleStreamActivity(s.stream, s.dash, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("NATS not configured, streaming endpoint disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.buildInfo, http.StatusOK)
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	// Transfers wait for confirmation inside the request.
	writeTimeout := 15 * time.Second
	if s.cfg != nil && s.cfg.ConfirmTimeout > 0 {
		writeTimeout += s.cfg.ConfirmTimeout
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close the stream first (disconnects all SSE clients)
	if s.stream != nil {
		s.stream.Close()
	}
	s.dash.Close()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
