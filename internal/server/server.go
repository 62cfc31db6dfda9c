// Package server exposes the chat and parameter operations over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/afinia/internal/orchestrator"
	"github.com/danielpatrickdp/afinia/internal/params"
	"github.com/danielpatrickdp/afinia/internal/update"
)

// Service is the subset of the orchestrator the handlers need.
type Service interface {
	Turn(ctx context.Context, req orchestrator.TurnRequest) (orchestrator.TurnResult, error)
	Parameters(ctx context.Context, userID string) (params.Set, error)
	SaveParameters(ctx context.Context, userID string, raw map[string]any) (params.Set, error)
}

// Config controls the HTTP listener.
type Config struct {
	Addr         string        `mapstructure:"addr" toml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" toml:"max_body_bytes"`
}

// DefaultConfig listens on :3000 like the original deployment.
func DefaultConfig() Config {
	return Config{
		Addr:         ":3000",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

// Server routes requests to a Service.
type Server struct {
	svc    Service
	config Config
	mode   update.Mode
	logger *zap.Logger
	mux    *http.ServeMux
}

// New builds the router. mode selects the schema served at /v1/schema/scores.
func New(svc Service, config Config, mode update.Mode, logger *zap.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, config: config, mode: mode, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleRoot)

	s.mux.HandleFunc("GET /v1/users/{userID}/parameters", s.handleGetParameters)
	s.mux.HandleFunc("PUT /v1/users/{userID}/parameters", s.handlePutParameters)
	s.mux.HandleFunc("POST /v1/chat", s.handleChat)
	s.mux.HandleFunc("GET /v1/schema/scores", s.handleSchema)

	// Routes kept for the existing frontend.
	s.mux.HandleFunc("GET /parametros", s.handleLegacyGetParameters)
	s.mux.HandleFunc("POST /guardar-parametros", s.handleLegacySaveParameters)
	s.mux.HandleFunc("POST /chat", s.handleLegacyChat)
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

// Serve runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", zap.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errc
		return nil
	}
}

// #region middleware
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// #endregion middleware
