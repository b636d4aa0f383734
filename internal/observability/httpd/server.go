// Package httpd serves the optional diagnostics endpoint of a run.
//
// Routes:
//   - GET /healthz       supervisor snapshot, 503 once the run recorded a fatal error
//   - GET /metrics       Prometheus exposition
//   - GET /debug/tasks   repeater snapshots
//   - /debug/pprof/...   runtime profiles (opt-in)
package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	logx "dittoload/pkg/logx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const DefaultAddr = "127.0.0.1:9090"

type Config struct {
	Addr  string
	Pprof bool
}

// Sources supplies the data behind the routes. Nil funcs and handlers are
// served as 404.
type Sources struct {
	Health  func() (payload any, healthy bool)
	Tasks   func() any
	Metrics http.Handler
}

type Server struct {
	cfg Config
	src Sources
	log logx.Logger

	// Bound reports the listening address once Serve is up.
	Bound chan string
}

func New(cfg Config, src Sources, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{cfg: cfg, src: src, log: log, Bound: make(chan string, 1)}
}

// Router builds the chi router; exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if s.src.Health == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		payload, healthy := s.src.Health()
		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, payload)
	})
	if s.src.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.src.Metrics)
	}
	if s.src.Tasks != nil {
		r.Get("/debug/tasks", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, s.src.Tasks())
		})
	}
	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Serve listens and serves until ctx is done. It is meant to run under
// supervisor.GoRestart: a nil return ends the loop, an error restarts it.
func (s *Server) Serve(ctx context.Context) error {
	addr := s.cfg.Addr
	if !isLoopbackAddr(addr) {
		s.log.Warn("diagnostics endpoint bound to a non-loopback address", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	bound := ln.Addr().String()
	select {
	case s.Bound <- bound:
	default:
	}
	s.log.Info("diagnostics listening", logx.String("addr", bound), logx.Bool("pprof", s.cfg.Pprof))

	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("diagnostics server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
