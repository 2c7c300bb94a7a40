// Package httpserver wires the entity API and admin endpoints onto their
// listeners and manages their lifecycle.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/travels/internal/config"
	derrors "git.home.luguber.info/inful/travels/internal/foundation/errors"
	"git.home.luguber.info/inful/travels/internal/metrics"
	"git.home.luguber.info/inful/travels/internal/server/handlers"
	smw "git.home.luguber.info/inful/travels/internal/server/middleware"
	"git.home.luguber.info/inful/travels/internal/store"
)

// Options carries the collaborators the servers expose.
type Options struct {
	Store    *store.Store
	Recorder metrics.Recorder
	Registry *prom.Registry
	Sink     handlers.MutationSink
	Daemon   handlers.DaemonInterface
	Audit    handlers.AuditReader
}

// Server manages the API and admin HTTP servers.
type Server struct {
	apiServer    *http.Server
	adminServer  *http.Server
	apiAddr      string
	adminAddr    string
	cfg          *config.Config
	opts         Options
	errorAdapter *derrors.HTTPErrorAdapter

	apiHandlers        *handlers.APIHandlers
	monitoringHandlers *handlers.MonitoringHandlers

	// middleware chain shared by both servers
	mchain func(http.Handler) http.Handler
}

// New constructs a new HTTP server wiring instance.
func New(cfg *config.Config, opts Options) *Server {
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}

	s := &Server{
		cfg:          cfg,
		opts:         opts,
		errorAdapter: derrors.NewHTTPErrorAdapter(slog.Default()),
	}

	s.apiHandlers = handlers.NewAPIHandlers(opts.Store, s.errorAdapter, opts.Recorder, opts.Sink, cfg.KeepAlive)
	s.monitoringHandlers = handlers.NewMonitoringHandlers(opts.Daemon, opts.Audit)
	s.mchain = smw.Chain(slog.Default(), s.errorAdapter, opts.Recorder)

	return s
}

// Start binds and starts both servers. Ports are pre-bound so startup
// fails fast with aggregate errors instead of logging independent
// 'address already in use' lines after partial initialization.
func (s *Server) Start(ctx context.Context) error {
	type preBind struct {
		name string
		addr string
		ln   net.Listener
	}
	binds := []preBind{
		{name: "api", addr: s.cfg.Bind},
		{name: "admin", addr: fmt.Sprintf(":%d", s.cfg.AdminPort)},
	}

	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		ln, err := lc.Listen(ctx, "tcp", binds[i].addr)
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s address %s: %w", binds[i].name, binds[i].addr, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(bindErrs...))
	}

	s.apiServer = &http.Server{
		Handler:           s.mchain(s.apiHandlers),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.apiServer.SetKeepAlivesEnabled(s.cfg.KeepAlive)

	s.adminServer = &http.Server{
		Handler:           s.mchain(s.adminMux()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.apiAddr = binds[0].ln.Addr().String()
	s.adminAddr = binds[1].ln.Addr().String()

	s.startServerWithListener("api", s.apiServer, binds[0].ln)
	s.startServerWithListener("admin", s.adminServer, binds[1].ln)

	slog.Info("HTTP servers started",
		slog.String("api_addr", s.apiAddr),
		slog.String("admin_addr", s.adminAddr))
	return nil
}

// APIAddr returns the bound API listen address. Valid after Start.
func (s *Server) APIAddr() string { return s.apiAddr }

// AdminAddr returns the bound admin listen address. Valid after Start.
func (s *Server) AdminAddr() string { return s.adminAddr }

// adminMux routes the admin endpoints.
func (s *Server) adminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.monitoringHandlers.HandleHealthCheck)
	mux.HandleFunc("/status", s.monitoringHandlers.HandleStatus)
	mux.HandleFunc("/audit", s.monitoringHandlers.HandleAudit)
	mux.Handle("/metrics", metrics.HTTPHandler(s.opts.Registry))
	return mux
}

// Stop gracefully shuts down both servers, admin first so the health
// endpoint disappears before in-flight API requests are drained.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error

	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}

	if s.apiServer != nil {
		if err := s.apiServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	slog.Info("HTTP servers stopped")
	return nil
}

// startServerWithListener launches an http.Server on a pre-bound listener.
// It standardizes goroutine startup and error logging across server types.
func (s *Server) startServerWithListener(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s server error", kind), "error", err)
		}
	}()
}
