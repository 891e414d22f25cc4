// Package agent runs the background refresh service behind a unix socket
// so widgets, the dashboard, and one-shot CLI calls can share one poller
// instead of each hitting the usage API on their own schedule.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/usagebar/usagebar/internal/anthropic"
	"github.com/usagebar/usagebar/internal/config"
	"github.com/usagebar/usagebar/internal/core"
	"github.com/usagebar/usagebar/internal/keyring"
	"github.com/usagebar/usagebar/internal/service"
	"github.com/usagebar/usagebar/internal/version"
)

const maxRequestBody = 4 << 10

// Server owns the refresh service and exposes its state over HTTP on a
// unix socket.
type Server struct {
	cfg Config
	svc *service.Service

	logMu     sync.Mutex
	lastLogAt map[string]time.Time
}

// RunServer starts an agent and blocks until SIGINT or SIGTERM.
func RunServer(cfg Config) error {
	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := startServer(ctx, cfg)
	if err != nil {
		return err
	}

	<-ctx.Done()
	srv.infof("agent_stop", "reason=signal")
	srv.svc.Shutdown()
	return nil
}

func startServer(ctx context.Context, cfg Config) (*Server, error) {
	if strings.TrimSpace(cfg.SocketPath) == "" {
		socketPath, err := DefaultSocketPath()
		if err != nil {
			return nil, err
		}
		cfg.SocketPath = socketPath
	}
	if cfg.Interval <= 0 {
		cfg.Interval = service.DefaultRefreshInterval
	}

	srv := &Server{
		cfg: cfg,
		svc: service.New(service.Options{
			Store:    keyring.NewStore(),
			Client:   anthropic.NewClient(),
			Prefs:    config.NewFileStore(cfg.ConfigPath),
			Interval: cfg.Interval,
		}),
		lastLogAt: map[string]time.Time{},
	}

	srv.infof("agent_start", "socket=%s interval=%s version=%s", cfg.SocketPath, cfg.Interval, version.Version)

	if err := srv.startSocketServer(ctx); err != nil {
		return nil, err
	}

	srv.svc.Start(ctx)
	go srv.logStates(ctx)
	srv.watchConfig(ctx)

	return srv, nil
}

// watchConfig reapplies the preferred source when the config file changes,
// so `usagebar source` and hand edits take effect without restarting the
// agent. Changes made through the socket rewrite the same file; reapplying
// an unchanged preference is a no-op.
func (s *Server) watchConfig(ctx context.Context) {
	configPath := strings.TrimSpace(s.cfg.ConfigPath)
	if configPath == "" {
		configPath = config.ConfigPath()
	}
	stop, err := config.Watch(configPath, func(loaded config.Config) {
		source, parseErr := core.ParseTokenSource(loaded.PreferredSource)
		if parseErr != nil {
			return
		}
		s.infof("config_reloaded", "preferred_source=%s", source)
		s.svc.ApplyPreferredSource(ctx, source)
	})
	if err != nil {
		s.warnf("config_watch_failed", "path=%s error=%v", configPath, err)
		return
	}
	go func() {
		<-ctx.Done()
		_ = stop()
	}()
}

// logStates mirrors service publications into the agent log, throttled so
// a flapping network does not flood journald.
func (s *Server) logStates(ctx context.Context) {
	states, cancel := s.svc.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			if st.LastError != nil {
				if s.shouldLog("state_error", 30*time.Second) {
					s.warnf("refresh_error", "kind=%s message=%q", st.LastError.Kind, st.LastError.Message)
				}
				continue
			}
			if s.shouldLog("state_update", 30*time.Second) {
				s.infof("state_update", "source=%s buckets=%d", st.ActiveSource, len(st.Snapshot.Buckets))
			}
		}
	}
}

func (s *Server) startSocketServer(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.SocketPath), 0o755); err != nil {
		return fmt.Errorf("create agent socket dir: %w", err)
	}
	if err := EnsureSocketPathAvailable(s.cfg.SocketPath); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen on agent socket: %w", err)
	}
	// The socket can set manual tokens, so keep it owner-only.
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		s.warnf("socket_chmod_failed", "path=%s error=%v", s.cfg.SocketPath, err)
	}
	s.infof("socket_listening", "path=%s", s.cfg.SocketPath)

	server := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		// A manual refresh holds the request open through a full fetch,
		// which with the auth retry can take two client timeouts.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  20 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		_ = listener.Close()
		_ = os.Remove(s.cfg.SocketPath)
	}()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.warnf("socket_server_error", "error=%v", err)
		}
	}()

	return nil
}

// EnsureSocketPathAvailable verifies nothing is using socketPath. A stale
// socket left behind by a crashed agent is removed; a live one or a
// non-socket file is an error.
func EnsureSocketPathAvailable(socketPath string) error {
	info, err := os.Stat(socketPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat agent socket: %w", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("socket path %s already exists and is not a socket; remove it and retry", socketPath)
	}

	conn, err := net.DialTimeout("unix", socketPath, 450*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("usagebar agent already running on %s", socketPath)
	}

	if err := os.Remove(socketPath); err != nil {
		return fmt.Errorf("remove stale agent socket: %w", err)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/state", s.handleState)
	mux.HandleFunc("/v1/refresh", s.handleRefresh)
	mux.HandleFunc("/v1/source", s.handleSource)
	mux.HandleFunc("/v1/token", s.handleToken)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:       "ok",
		AgentVersion: version.Version,
		APIVersion:   APIVersion,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.svc.State())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	started := time.Now()
	s.svc.Refresh(r.Context())
	s.infof("manual_refresh", "duration=%s", time.Since(started).Round(time.Millisecond))
	writeJSON(w, http.StatusOK, s.svc.State())
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req SourceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "decode source request: "+err.Error())
		return
	}
	source, err := core.ParseTokenSource(req.Source)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.SetPreferredSource(r.Context(), source); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "persist preferred source: "+err.Error())
		return
	}
	s.infof("source_changed", "source=%s", source)
	writeJSON(w, http.StatusOK, s.svc.State())
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req TokenRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "decode token request: "+err.Error())
			return
		}
		if err := s.svc.SetManualToken(r.Context(), req.Token); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.infof("manual_token_set", "source=%s", core.SourceManual)
		writeJSON(w, http.StatusOK, s.svc.State())
	case http.MethodDelete:
		if err := s.svc.ClearManualToken(r.Context()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.infof("manual_token_cleared", "source=%s", core.SourceManual)
		writeJSON(w, http.StatusOK, s.svc.State())
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("agent level=warn event=write_response_failed error=%v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) infof(event, format string, args ...any) {
	log.Printf("agent level=info event=%s %s", event, fmt.Sprintf(format, args...))
}

func (s *Server) warnf(event, format string, args ...any) {
	log.Printf("agent level=warn event=%s %s", event, fmt.Sprintf(format, args...))
}

// shouldLog rate-limits recurring log events per key.
func (s *Server) shouldLog(key string, interval time.Duration) bool {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	now := time.Now()
	if last, ok := s.lastLogAt[key]; ok && now.Sub(last) < interval {
		return false
	}
	s.lastLogAt[key] = now
	return true
}
