// Package api provides the HTTP and gRPC server for the stratlab platform,
// exposing backtest execution, stored runs and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"

	"stratlab/internal/config"
	"stratlab/internal/httpapi"
	"stratlab/internal/service"
	"stratlab/internal/telemetry"
)

// Server is the main API server that hosts HTTP and gRPC endpoints.
type Server struct {
	httpAddr    string
	grpcAddr    string
	metricsAddr string

	http    *http.Server
	metrics *http.Server
	grpc    *grpc.Server
	log     *slog.Logger
}

// NewServer creates a Server configured from cfg. /metrics is served on the
// HTTP port unless cfg.Server.MetricsPort is set. A zero GRPCPort disables
// gRPC.
func NewServer(cfg *config.Config, svc *service.Backtests, version string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		httpAddr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		log:      log.With("component", "api"),
	}

	mux := http.NewServeMux()
	httpapi.NewBacktestServer(svc, version, log).RegisterRoutes(mux)
	if cfg.Server.MetricsPort > 0 {
		s.metricsAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
		mm := http.NewServeMux()
		mm.Handle("GET /metrics", telemetry.Handler())
		s.metrics = &http.Server{Addr: s.metricsAddr, Handler: mm, ReadHeaderTimeout: 5 * time.Second}
	} else {
		mux.Handle("GET /metrics", telemetry.Handler())
	}
	s.http = &http.Server{Addr: s.httpAddr, Handler: httpapi.CORS(mux), ReadHeaderTimeout: 5 * time.Second}

	if cfg.Server.GRPCPort > 0 {
		s.grpcAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
		s.grpc = grpc.NewServer()
		s.grpc.RegisterService(&BacktestServiceDesc, NewBacktestService(svc))
	}
	return s
}

// HTTPHandler returns the handler served on the HTTP port.
func (s *Server) HTTPHandler() http.Handler { return s.http.Handler }

// URL returns the base URL of the HTTP listener.
func (s *Server) URL() string { return "http://" + s.httpAddr }

// GRPCServer returns the gRPC server, or nil when gRPC is disabled.
func (s *Server) GRPCServer() *grpc.Server { return s.grpc }

// ListenAndServe starts the HTTP and gRPC listeners and blocks until the
// context is cancelled or a fatal error occurs. On cancellation the servers
// are shut down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 3)

	go func() {
		s.log.Info("http listening", "addr", s.httpAddr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()
	if s.metrics != nil {
		go func() {
			s.log.Info("metrics listening", "addr", s.metricsAddr)
			if err := s.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics: %w", err)
			}
		}()
	}
	if s.grpc != nil {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			s.log.Info("grpc listening", "addr", s.grpcAddr)
			if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = s.Shutdown(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown performs a graceful shutdown of the HTTP and gRPC servers.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.grpc != nil {
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpc.Stop()
		}
	}
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.log.Info("server stopped")
	return errors.Join(errs...)
}
