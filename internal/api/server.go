package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Source is the read boundary of the monitoring pipeline.
type Source interface {
	GetCurrentSnapshot() *monitoring.Snapshot
	GetHistoricalSnapshots(d time.Duration) []*monitoring.Snapshot
	GetTrend(d time.Duration, metricPath string) monitoring.TrendResult
	GetActiveAlerts() []monitoring.AlertRecord
	AcknowledgeAlert(ruleID string) error
	Status() monitoring.Status
	Config() monitoring.Config
}

// Server provides the HTTP read API and the Prometheus endpoint
type Server struct {
	logger   *zap.Logger
	config   Config
	source   Source
	gatherer prometheus.Gatherer
	router   *mux.Router
	limiter  *IPRateLimiter

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Config defines API server configuration
type Config struct {
	Enabled      bool
	ListenAddr   string
	RateLimit    float64
	RateBurst    int
	EnableGzip   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Response represents API response format
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Time    time.Time   `json:"time"`
}

// NewServer creates a new API server. A nil gatherer disables /metrics.
func NewServer(config Config, logger *zap.Logger, source Source, gatherer prometheus.Gatherer) (*Server, error) {
	if !config.Enabled {
		return nil, errors.New("API server disabled")
	}
	if source == nil {
		return nil, errors.New("API server requires a data source")
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 30 * time.Second
	}

	s := &Server{
		logger:   logger,
		config:   config,
		source:   source,
		gatherer: gatherer,
	}
	if config.RateLimit > 0 {
		s.limiter = NewIPRateLimiter(config.RateLimit, config.RateBurst)
	}

	s.setupRoutes()
	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.config.EnableGzip {
		h = gzhttp.GzipHandler(h)
	}
	return h
}

// Start binds the listen address and serves in the background
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("API server already started")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("Starting API server", zap.String("listen_addr", ln.Addr().String()))

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully stops the API server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	s.logger.Info("Shutting down API server")
	return srv.Shutdown(ctx)
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
	s.router.Use(s.loggingMiddleware)
	if s.limiter != nil {
		s.router.Use(s.rateLimitMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	api.HandleFunc("/snapshots/current", s.handleCurrentSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/snapshots", s.handleSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/trend", s.handleTrend).Methods(http.MethodGet)
	api.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}/ack", s.handleAcknowledge).Methods(http.MethodPost)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{
			ErrorLog: zap.NewStdLog(s.logger),
		})).Methods(http.MethodGet)
	}
}

// sendJSON sends JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
		status = http.StatusInternalServerError
		body, _ = json.Marshal(Response{Success: false, Error: "failed to encode response", Time: time.Now()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (s *Server) sendData(w http.ResponseWriter, data interface{}) {
	s.sendJSON(w, http.StatusOK, Response{Success: true, Data: data, Time: time.Now()})
}

// sendError sends error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, Response{Success: false, Error: message, Time: time.Now()})
}
