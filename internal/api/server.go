// Package api exposes the on-demand operations (message generation,
// exports) over a small HTTP server. The app's backend callables map
// onto these endpoints; identity arrives as the X-User-ID header set
// by the auth proxy in front of this service.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"notlarim/internal/export"
	"notlarim/internal/msggen"
	"notlarim/pkg/logx"
)

// Config controls the HTTP API server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - A non-loopback bind without Token refuses to start.
type Config struct {
	Enabled bool
	Addr    string
	Token   string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Generator produces a message for one event + rule set pair.
type Generator interface {
	Generate(ctx context.Context, req msggen.Request) (*msggen.Result, error)
}

// Exporter runs the two export targets.
type Exporter interface {
	ToSheets(ctx context.Context, userID string) (*export.SheetsResult, error)
	ToDrive(ctx context.Context, userID string) (*export.DriveResult, error)
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	generator Generator
	exporter  Exporter

	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, gen Generator, exp Exporter, log logx.Logger) *Service {
	return &Service{cfg: cfg, generator: gen, exporter: exp, log: log}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return nil
	}
	if !s.cfg.Enabled {
		return nil
	}

	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	// Refuse accidental public exposure without auth.
	if strings.TrimSpace(s.cfg.Token) == "" && !isLoopbackAddr(addr) {
		return errors.New("api: non-loopback addr requires a token")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.ln = ln
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server stopped with error", logx.Err(err))
		}
	}()

	s.log.Info("api started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", strings.TrimSpace(s.cfg.Token) != ""))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("api stopped")
}

// Addr returns the bound address, or "" when not running. Handy for
// tests that bind port 0.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Service) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /v1/messages/generate", s.withAuth(s.handleGenerate))
	mux.HandleFunc("POST /v1/export/sheets", s.withAuth(s.handleExportSheets))
	mux.HandleFunc("POST /v1/export/drive", s.withAuth(s.handleExportDrive))
	return mux
}

func (s *Service) withAuth(h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(s.cfg.Token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) &&
			strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
