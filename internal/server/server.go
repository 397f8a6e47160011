// Package server exposes read-only snapshots of the stores and the
// save/reload/reset intents over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/mestouches/internal/codec"
	"github.com/roach88/mestouches/internal/diag"
	"github.com/roach88/mestouches/internal/store"
	"github.com/roach88/mestouches/internal/tracker"
)

// shutdownTimeout bounds the graceful shutdown of the listener.
const shutdownTimeout = 5 * time.Second

// Server serves the snapshot API of one tracker.
type Server struct {
	tracker *tracker.Tracker
	logger  *slog.Logger
	router  *chi.Mux
}

// New builds the router for t.
func New(t *tracker.Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{tracker: t, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/keystream", s.handleKeystream)
		r.Get("/pointer", s.handlePointer)
		r.Get("/sessions", s.handleSessions)
		r.Get("/diagnostics", s.handleDiagnostics)
		r.Post("/stores/{kind}/{action}", s.handleStoreAction)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("snapshot API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("snapshot API: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("snapshot API shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type health struct {
	Status    string `json:"status"`
	Session   string `json:"session"`
	Installed bool   `json:"installed"`
	Pending   int    `json:"pending"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, health{
		Status:    "ok",
		Session:   s.tracker.SessionID(),
		Installed: s.tracker.Installed(),
		Pending:   s.tracker.Queue().Len(),
	})
}

type keystreamView struct {
	Available bool             `json:"available"`
	Stats     store.Stats      `json:"stats"`
	Events    int              `json:"events"`
	Keys      []store.KeyCount `json:"keys"`
}

func (s *Server) handleKeystream(w http.ResponseWriter, r *http.Request) {
	k := s.tracker.Keystream()
	v := keystreamView{Stats: k.Stats(), Keys: k.Ranked()}
	v.Available = k.View(func(st *codec.Keystream) { v.Events = len(st.Entries) })
	writeJSON(w, http.StatusOK, v)
}

type pointerView struct {
	Available bool                `json:"available"`
	Stats     store.Stats         `json:"stats"`
	Clicks    int                 `json:"clicks"`
	Buttons   []buttonView        `json:"buttons"`
	Displays  []store.DisplayHits `json:"displays"`
}

type buttonView struct {
	Button string `json:"button"`
	Count  uint32 `json:"count"`
}

func (s *Server) handlePointer(w http.ResponseWriter, r *http.Request) {
	p := s.tracker.Pointer()
	v := pointerView{Stats: p.Stats(), Displays: p.Hits()}
	for _, b := range p.Buttons() {
		v.Buttons = append(v.Buttons, buttonView{Button: b.Button.String(), Count: b.Count})
	}
	v.Available = p.View(func(st *codec.Pointer) { v.Clicks = len(st.Clicks) })
	writeJSON(w, http.StatusOK, v)
}

type sessionsView struct {
	Available bool                 `json:"available"`
	Stats     store.Stats          `json:"stats"`
	Sessions  int                  `json:"sessions"`
	Subjects  []store.SubjectUsage `json:"subjects"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	st := s.tracker.Sessions()
	v := sessionsView{Stats: st.Stats(), Subjects: st.Subjects()}
	v.Available = st.View(func(ss *codec.Sessions) { v.Sessions = len(ss.Entries) })
	writeJSON(w, http.StatusOK, v)
}

type diagnosticsView struct {
	Evicted int          `json:"evicted"`
	Entries []diag.Entry `json:"entries"`
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	d := s.tracker.Diag()
	writeJSON(w, http.StatusOK, diagnosticsView{Evicted: d.Evicted(), Entries: d.Entries()})
}

type actionResult struct {
	Store     string `json:"store"`
	Action    string `json:"action"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleStoreAction(w http.ResponseWriter, r *http.Request) {
	kind, err := codec.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, actionResult{Error: err.Error()})
		return
	}
	action := chi.URLParam(r, "action")

	var run func(codec.Kind) error
	switch action {
	case "save":
		run = s.tracker.Save
	case "reload":
		run = s.tracker.Reload
	case "reset":
		run = s.tracker.ResetEverything
	default:
		writeJSON(w, http.StatusNotFound, actionResult{
			Store:  kind.String(),
			Action: action,
			Error:  "unknown action",
		})
		return
	}

	res := actionResult{Store: kind.String(), Action: action}
	status := http.StatusOK
	if err := run(kind); err != nil {
		res.Error = err.Error()
		status = http.StatusConflict
		s.logger.Warn("store action failed", "store", res.Store, "action", action, "error", err)
	}
	st, _ := s.tracker.Store(kind)
	res.Available = st.Available()
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}
