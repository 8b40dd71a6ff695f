package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	yserrors "github.com/yaml/yamlscript-go/errors"
	"github.com/yaml/yamlscript-go/mode"
	"github.com/yaml/yamlscript-go/ys"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for YAMLScript evaluation",
	Long: `Start an HTTP server that provides REST endpoints for evaluation.

Endpoints:
  POST   /load                 Evaluate source on the shared isolate
  POST   /compile              Compile source to Clojure
  POST   /sessions             Create session with its own isolate, returns {"session_id":"..."}
  POST   /sessions/{id}/load   Evaluate in session
  DELETE /sessions/{id}        Close session
  GET    /health               Health check
  GET    /metrics              Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Duration("session-ttl", 15*time.Minute, "Close sessions idle for this long")
	serveCmd.Flags().Int("max-sessions", 64, "Maximum number of open sessions")
	serveCmd.Flags().Int64("max-body", 1024*1024, "Max request body size")
	rootCmd.AddCommand(serveCmd)
}

type sessionManager struct {
	sessions map[string]*serverSession
	mu       sync.RWMutex
	ttl      time.Duration
	max      int
	pending  int
	stop     chan struct{}
	stopOnce sync.Once
}

type serverSession struct {
	runtime  *ys.Runtime
	lastUsed time.Time
}

var errTooManySessions = errors.New("too many sessions")

func newSessionManager(ttl time.Duration, max int) *sessionManager {
	sm := &sessionManager{
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
		max:      max,
		stop:     make(chan struct{}),
	}
	go sm.cleanup()
	return sm
}

func (sm *sessionManager) create(open func() (*ys.Runtime, error)) (string, error) {
	// Sessions still opening hold a slot so the cap covers them too.
	sm.mu.Lock()
	if sm.max > 0 && len(sm.sessions)+sm.pending >= sm.max {
		sm.mu.Unlock()
		return "", errTooManySessions
	}
	sm.pending++
	sm.mu.Unlock()

	rt, err := open()
	if err != nil {
		sm.mu.Lock()
		sm.pending--
		sm.mu.Unlock()
		return "", err
	}

	id := uuid.New().String()
	sm.mu.Lock()
	sm.pending--
	sm.sessions[id] = &serverSession{
		runtime:  rt,
		lastUsed: time.Now(),
	}
	sm.mu.Unlock()
	return id, nil
}

func (sm *sessionManager) get(id string) (*ys.Runtime, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ss, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	ss.lastUsed = time.Now()
	return ss.runtime, true
}

func (sm *sessionManager) close(id string) bool {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
	if ok {
		ss.runtime.Close()
	}
	return ok
}

func (sm *sessionManager) count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *sessionManager) expire(now time.Time) int {
	var expired []*ys.Runtime
	sm.mu.Lock()
	for id, ss := range sm.sessions {
		if now.Sub(ss.lastUsed) > sm.ttl {
			expired = append(expired, ss.runtime)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, rt := range expired {
		rt.Close()
	}
	return len(expired)
}

func (sm *sessionManager) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-sm.stop:
			return
		case now := <-ticker.C:
			sm.expire(now)
		}
	}
}

func (sm *sessionManager) closeAll() {
	sm.stopOnce.Do(func() { close(sm.stop) })

	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*serverSession)
	sm.mu.Unlock()

	for _, ss := range all {
		ss.runtime.Close()
	}
}

type loadRequest struct {
	Code string `json:"code" validate:"required"`
	Mode string `json:"mode,omitempty" validate:"omitempty,oneof=bare code data"`
}

type loadResponse struct {
	Data       any   `json:"data"`
	DurationMs int64 `json:"duration_ms"`
}

type compileResponse struct {
	Clojure    string `json:"clojure"`
	DurationMs int64  `json:"duration_ms"`
}

type errorResponse struct {
	Error  string                `json:"error"`
	Kind   string                `json:"kind,omitempty"`
	Engine *yserrors.EngineError `json:"engine,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

type server struct {
	open     func() (*ys.Runtime, error)
	shared   *ys.Runtime
	sessions *sessionManager
	metrics  *ys.Metrics
	validate *validator.Validate
	maxBody  int64
	log      *zap.Logger
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	ttl, _ := cmd.Flags().GetDuration("session-ttl")
	maxSessions, _ := cmd.Flags().GetInt("max-sessions")
	maxBody, _ := cmd.Flags().GetInt64("max-body")

	metrics, err := ys.NewMetrics("yamlscript")
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	opts := append(runtimeOpts(cmd), ys.WithMetrics(metrics))
	open := func() (*ys.Runtime, error) {
		return newRuntime(opts...)
	}

	srv, err := newServer(open, metrics, ttl, maxSessions, maxBody, ys.Logger())
	if err != nil {
		return err
	}
	defer srv.close()

	addr := fmt.Sprintf(":%d", port)
	srv.log.Info("listening", zap.String("addr", addr), zap.String("library", srv.shared.LibraryPath()))
	fmt.Fprintf(cmd.ErrOrStderr(), "ys server listening on %s\n", addr)
	return http.ListenAndServe(addr, srv.handler())
}

func newServer(open func() (*ys.Runtime, error), metrics *ys.Metrics, ttl time.Duration, maxSessions int, maxBody int64, log *zap.Logger) (*server, error) {
	shared, err := open()
	if err != nil {
		return nil, err
	}
	return &server{
		open:     open,
		shared:   shared,
		sessions: newSessionManager(ttl, maxSessions),
		metrics:  metrics,
		validate: validator.New(),
		maxBody:  maxBody,
		log:      log,
	}, nil
}

func (s *server) close() {
	s.sessions.closeAll()
	s.shared.Close()
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/load", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.load(w, r, s.shared)
	})

	mux.HandleFunc("/compile", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		req, ok := s.decode(w, r)
		if !ok {
			return
		}

		start := time.Now()
		clj, err := s.shared.Compile(wrap(req))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, compileResponse{Clojure: clj, DurationMs: time.Since(start).Milliseconds()})
	})

	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		sessionID, err := s.sessions.create(s.open)
		if errors.Is(err, errTooManySessions) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.log.Debug("session created", zap.String("session_id", sessionID))
		writeJSON(w, http.StatusOK, createSessionResponse{SessionID: sessionID})
	})

	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/sessions/")
		parts := strings.SplitN(path, "/", 2)
		sessionID := parts[0]

		if sessionID == "" {
			http.Error(w, "session_id required", http.StatusBadRequest)
			return
		}

		if r.Method == http.MethodDelete && len(parts) == 1 {
			if s.sessions.close(sessionID) {
				s.log.Debug("session closed", zap.String("session_id", sessionID))
				w.WriteHeader(http.StatusNoContent)
			} else {
				http.Error(w, "session not found", http.StatusNotFound)
			}
			return
		}

		if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "load" {
			rt, ok := s.sessions.get(sessionID)
			if !ok {
				http.Error(w, "session not found", http.StatusNotFound)
				return
			}
			s.load(w, r, rt)
			return
		}

		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", s.metrics.Handler())

	return mux
}

func (s *server) load(w http.ResponseWriter, r *http.Request, rt *ys.Runtime) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}

	start := time.Now()
	v, err := rt.Load(wrap(req))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loadResponse{Data: v, DurationMs: time.Since(start).Milliseconds()})
}

func (s *server) decode(w http.ResponseWriter, r *http.Request) (loadRequest, bool) {
	var req loadRequest
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && err != io.EOF {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, false
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func wrap(req loadRequest) string {
	m := mode.Bare
	if req.Mode != "" {
		// Validated by oneof.
		m, _ = mode.Parse(req.Mode)
	}
	return m.Wrap(req.Code)
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error(), Kind: string(yserrors.KindOf(err))}
	if ee, ok := yserrors.AsEngine(err); ok {
		resp.Engine = ee
	}

	status := http.StatusInternalServerError
	switch {
	case yserrors.IsKind(err, yserrors.KindEngine):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, yserrors.ErrNilByte):
		status = http.StatusBadRequest
	case errors.Is(err, yserrors.ErrUnsupported):
		status = http.StatusNotImplemented
	default:
		s.log.Warn("request failed", zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
