package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"support-console/internal/console"
	"support-console/internal/queue"
	"support-console/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
)

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	console             *console.Console
	events              *websocket.Handler
	allowedOrigins      []string
	logger              *slog.Logger
	routeRegistrars     []RouteRegistrar
	metrics             *metrics
}

type Options struct {
	ListenAddr     string
	Queue          *queue.RequestQueueManager
	Console        *console.Console
	Events         *websocket.Handler
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewAPIServer(opts Options, registrars ...RouteRegistrar) *APIServer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &APIServer{
		listenAddr:          opts.ListenAddr,
		requestQueueManager: opts.Queue,
		console:             opts.Console,
		events:              opts.Events,
		allowedOrigins:      opts.AllowedOrigins,
		logger:              opts.Logger,
		routeRegistrars:     registrars,
		metrics:             newMetrics(prometheus.DefaultRegisterer, opts.ListenAddr, opts.Queue),
	}
}

// Handler assembles every registered route behind the metrics wrapper.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())
	return s.metrics.instrument(mux)
}

// Run serves until ctx ends, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.listenAddr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *APIServer) Console() *console.Console {
	return s.console
}

func (s *APIServer) Events() *websocket.Handler {
	return s.events
}

func (s *APIServer) Logger() *slog.Logger {
	return s.logger
}
