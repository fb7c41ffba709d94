package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/limitwatch/limitwatch/internal/config"
)

type Server struct {
	handler *Handler
	server  *http.Server
	logger  *slog.Logger
}

// NewServer binds handler to the configured host and port. A positive
// customPort overrides cfg.Port.
func NewServer(cfg config.WebConfig, handler *Handler, customPort int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	handler.SetupRoutes(mux)

	port := cfg.Port
	if customPort > 0 {
		port = customPort
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprint(port))
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		handler: handler,
		server:  httpServer,
		logger:  logger,
	}
}

// Start serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting web server", "url", "http://"+s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run starts the server and the websocket feed, shutting both down when ctx
// is cancelled.
func (s *Server) Run(ctx context.Context) error {
	feedCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.handler.Run(feedCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down web server")
	return s.server.Shutdown(ctx)
}

func (s *Server) GetAddress() string {
	return s.server.Addr
}
