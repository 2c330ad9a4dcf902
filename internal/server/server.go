package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kiln/internal/config"
	"kiln/internal/job"
	"kiln/internal/logging"
	"kiln/internal/resultcache"
)

// Server serves job results over HTTP.
type Server struct {
	engine *job.Engine
	cache  *resultcache.Manager
	prefix string
	verify bool
	bind   string
	logger *slog.Logger

	listener net.Listener
	server   *http.Server
}

// New builds a Server. cache may be nil.
func New(cfg *config.Config, engine *job.Engine, cache *resultcache.Manager, logger *slog.Logger) *Server {
	s := &Server{
		engine: engine,
		cache:  cache,
		prefix: normalizePrefix(cfg.Server.URLPrefix),
		verify: cfg.Server.VerifyURLs,
		bind:   strings.TrimSpace(cfg.Server.Bind),
		logger: logging.NewComponentLogger(logger, "server"),
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router serving job URLs under the configured prefix.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	for _, pattern := range []string{s.prefix + "/{token}", s.prefix + "/{token}/{name}"} {
		r.Get(pattern, s.handleJob)
		r.Head(pattern, s.handleJob)
	}
	return r
}

// Start listens on the configured bind address and serves until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("server: bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "http server error", "server_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the bind address and port availability"),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("http server listening",
		logging.String("address", listener.Addr().String()),
		logging.String("prefix", s.prefix),
		logging.Bool("verify_urls", s.verify),
	)
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("request served",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", ww.Status()),
			logging.Int("bytes", ww.BytesWritten()),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}
