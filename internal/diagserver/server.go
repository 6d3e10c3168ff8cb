// Package diagserver serves health, metrics, diagnostics and message ingest
// over HTTP.
package diagserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/andrewgari/starbunk-js-sub002/dispatch"
	"github.com/andrewgari/starbunk-js-sub002/identity"
	"github.com/andrewgari/starbunk-js-sub002/internal/ingest"
	"github.com/andrewgari/starbunk-js-sub002/replybot"
	"github.com/gorilla/mux"
)

type BreakerSource interface {
	CircuitBreakerStatus() map[string]dispatch.BreakerState
}

type IdentityCache interface {
	Stats() identity.Stats
	ClearCache()
	ClearForIdentity(memberID string) int
}

type Enqueuer interface {
	TryEnqueue(msg replybot.Message) error
}

type Options struct {
	Breakers BreakerSource
	Identity IdentityCache
	Ingest   Enqueuer
	Metrics  http.Handler
	// AuthToken guards every endpoint except /healthz and /metrics when set.
	AuthToken string
	Logger    *slog.Logger
}

type server struct {
	opts   Options
	logger *slog.Logger
}

func NewRouter(opts Options) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{opts: opts, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics).Methods(http.MethodGet)
	}

	debug := r.PathPrefix("/debug").Subrouter()
	debug.Use(s.requireAuth)
	debug.HandleFunc("/breakers", s.breakers).Methods(http.MethodGet)
	debug.HandleFunc("/identity-cache", s.identityStats).Methods(http.MethodGet)
	debug.HandleFunc("/identity-cache", s.clearIdentity).Methods(http.MethodDelete)
	debug.HandleFunc("/identity-cache/{id}", s.clearIdentityFor).Methods(http.MethodDelete)
	debug.HandleFunc("/mode", s.debugMode).Methods(http.MethodGet, http.MethodPut)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.requireAuth)
	v1.HandleFunc("/messages", s.ingestMessage).Methods(http.MethodPost)
	return r
}

// Serve runs handler on listen until ctx is done.
func Serve(ctx context.Context, logger *slog.Logger, listen string, handler http.Handler) error {
	listen = strings.TrimSpace(listen)
	if listen == "" {
		return fmt.Errorf("listen address is required")
	}
	srv := &http.Server{
		Addr:              listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_start", "addr", listen)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		logger.Info("server_stopped", "addr", listen)
		return err
	}
}

func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := strings.TrimSpace(s.opts.AuthToken); token != "" && !checkAuth(r, token) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"time": time.Now().Format(time.RFC3339Nano),
	})
}

func (s *server) breakers(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Breakers == nil {
		http.Error(w, "processor is not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Breakers.CircuitBreakerStatus())
}

func (s *server) identityStats(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Identity == nil {
		http.Error(w, "identity service is not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Identity.Stats())
}

func (s *server) clearIdentity(w http.ResponseWriter, _ *http.Request) {
	if s.opts.Identity == nil {
		http.Error(w, "identity service is not configured", http.StatusServiceUnavailable)
		return
	}
	s.opts.Identity.ClearCache()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (s *server) clearIdentityFor(w http.ResponseWriter, r *http.Request) {
	if s.opts.Identity == nil {
		http.Error(w, "identity service is not configured", http.StatusServiceUnavailable)
		return
	}
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	n := s.opts.Identity.ClearForIdentity(id)
	writeJSON(w, http.StatusOK, map[string]any{"member_id": id, "removed": n})
}

type debugModeBody struct {
	Enabled     bool   `json:"enabled"`
	TestPersona string `json:"test_persona,omitempty"`
}

func (s *server) debugMode(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		var body debugModeBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		replybot.SetDebugMode(body.Enabled)
		replybot.SetTestPersona(body.TestPersona)
		s.logger.Info("debug_mode_changed", "enabled", body.Enabled, "test_persona", body.TestPersona)
	}
	writeJSON(w, http.StatusOK, debugModeBody{Enabled: replybot.DebugMode(), TestPersona: replybot.TestPersona()})
}

func (s *server) ingestMessage(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ingest == nil {
		http.Error(w, "ingest is not configured", http.StatusServiceUnavailable)
		return
	}
	var msg replybot.Message
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&msg); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(msg.ChannelID) == "" {
		http.Error(w, "missing channel_id", http.StatusBadRequest)
		return
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	if err := s.opts.Ingest.TryEnqueue(msg); err != nil {
		status := http.StatusServiceUnavailable
		if !errors.Is(err, ingest.ErrQueueFull) && !errors.Is(err, ingest.ErrQueueClosed) {
			status = http.StatusInternalServerError
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": true, "message_id": msg.ID})
}

func checkAuth(r *http.Request, token string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	want := "Bearer " + strings.TrimSpace(token)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
