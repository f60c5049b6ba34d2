// Package server exposes the workflow over HTTP: start runs, watch their
// transcripts, cancel them, and publish an approved artifact. A small
// embedded page provides the browser UI; the JSON API under /api drives
// everything.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"pagewright/internal/conversation"
	"pagewright/internal/driver"
	"pagewright/internal/publish"
	"pagewright/internal/store"
)

//go:embed web/index.html
var webFS embed.FS

// DriverFactory builds a fresh driver for one run, wired to the given turn
// callback. Each run gets its own driver so callbacks never cross runs.
type DriverFactory func(cb driver.TurnCallback) *driver.Driver

// Server routes workflow runs over HTTP. Construct with [New].
type Server struct {
	newDriver DriverFactory
	gate      *publish.Gate
	archive   *store.Store
	registry  *registry
	log       *zap.Logger
	markdown  goldmark.Markdown
}

// New creates a server. archive may be nil to disable persistence; a nil
// logger is replaced with a no-op logger.
func New(factory DriverFactory, gate *publish.Gate, archive *store.Store, log *zap.Logger) (*Server, error) {
	if factory == nil {
		return nil, errors.New("driver factory required")
	}
	if gate == nil {
		return nil, errors.New("publish gate required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		newDriver: factory,
		gate:      gate,
		archive:   archive,
		registry:  newRegistry(),
		log:       log,
		markdown:  goldmark.New(),
	}, nil
}

// Routes returns the HTTP handler for the full API plus the embedded UI.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRunByID)
	mux.HandleFunc("/", s.handleIndex)
	return s.logMiddleware(mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		http.Error(w, "ui unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// --- Run collection ---

type createRunRequest struct {
	Request string `json:"request"`
}

type runSummary struct {
	ID        string         `json:"id"`
	Request   string         `json:"request"`
	Outcome   driver.Outcome `json:"outcome"`
	Published bool           `json:"published"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createRun(w, r)
	case http.MethodGet:
		s.listRuns(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.Request = strings.TrimSpace(req.Request)
	if req.Request == "" {
		http.Error(w, "request text is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	handle := s.registry.add(req.Request, cancel)
	d := s.newDriver(handle.appendMessage)

	s.log.Info("run started",
		zap.String("id", handle.id),
		zap.String("request", req.Request))

	go func() {
		defer cancel()
		state := d.Run(ctx, req.Request)
		handle.finish(state)
		s.log.Info("run finished",
			zap.String("id", handle.id),
			zap.String("outcome", string(state.Outcome)),
			zap.Int("turns", state.TurnCount))
		s.archiveRun(handle, state)
	}()

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, runSummary{ID: handle.id, Request: req.Request, Outcome: driver.OutcomePending})
}

// archiveRun persists a finished run; failures are logged, not surfaced,
// since the run itself succeeded.
func (s *Server) archiveRun(handle *runHandle, state *driver.WorkflowState) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := s.archive.SaveRun(ctx, &store.Run{
		ID:            handle.id,
		Request:       handle.request,
		Outcome:       state.Outcome,
		TurnCount:     state.TurnCount,
		FailureReason: state.FailureReason,
		History:       state.History,
	})
	if err != nil {
		s.log.Error("failed to archive run",
			zap.String("id", handle.id),
			zap.Error(err))
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	seen := make(map[string]bool)
	var out []runSummary

	for _, h := range s.registry.all() {
		outcome, _, _ := h.snapshot()
		out = append(out, runSummary{ID: h.id, Request: h.request, Outcome: outcome})
		seen[h.id] = true
	}

	if s.archive != nil {
		archived, err := s.archive.ListRuns(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		for _, run := range archived {
			if seen[run.ID] {
				continue
			}
			out = append(out, runSummary{
				ID:        run.ID,
				Request:   run.Request,
				Outcome:   run.Outcome,
				Published: run.Published,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, out)
}

// --- Single run ---

type messageView struct {
	Speaker  string `json:"speaker"`
	Text     string `json:"text"`
	HTML     string `json:"html"`
	Sequence int    `json:"sequence"`
}

type runDetail struct {
	ID            string         `json:"id"`
	Request       string         `json:"request"`
	Outcome       driver.Outcome `json:"outcome"`
	FailureReason string         `json:"failureReason,omitempty"`
	Canceled      bool           `json:"canceled,omitempty"`
	Messages      []messageView  `json:"messages"`
}

type publishRequest struct {
	Decision string `json:"decision"`
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getRun(w, r, id)
	case action == "cancel" && r.Method == http.MethodPost:
		s.cancelRun(w, r, id)
	case action == "publish" && r.Method == http.MethodPost:
		s.publishRun(w, r, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request, id string) {
	if h, ok := s.registry.get(id); ok {
		outcome, history, canceled := h.snapshot()
		writeJSON(w, runDetail{
			ID:            h.id,
			Request:       h.request,
			Outcome:       outcome,
			FailureReason: h.failureReason(),
			Canceled:      canceled,
			Messages:      s.renderMessages(history),
		})
		return
	}

	if s.archive != nil {
		run, err := s.archive.GetRun(r.Context(), id)
		if err == nil {
			writeJSON(w, runDetail{
				ID:            run.ID,
				Request:       run.Request,
				Outcome:       run.Outcome,
				FailureReason: run.FailureReason,
				Messages:      s.renderMessages(run.History),
			})
			return
		}
		if !errors.Is(err, store.ErrRunNotFound) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	http.Error(w, "run not found", http.StatusNotFound)
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request, id string) {
	h, ok := s.registry.get(id)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	outcome, _, _ := h.snapshot()
	if outcome.Terminal() {
		http.Error(w, "run already finished", http.StatusConflict)
		return
	}
	h.markCanceled()
	h.cancel()
	s.log.Info("run cancel requested", zap.String("id", id))
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "canceling"})
}

func (s *Server) publishRun(w http.ResponseWriter, r *http.Request, id string) {
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	history, outcome, ok := s.lookupHistory(r.Context(), id)
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if outcome != driver.OutcomeReadyForApproval {
		http.Error(w, "run is not awaiting approval", http.StatusConflict)
		return
	}

	receipt, err := s.gate.Publish(r.Context(), history, req.Decision)
	var notApproved *publish.NotApprovedError
	switch {
	case errors.As(err, &notApproved):
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, map[string]string{
			"error": "not approved",
			"input": notApproved.Input,
		})
		return
	case errors.Is(err, publish.ErrNoArtifact):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if s.archive != nil {
		if err := s.archive.MarkPublished(r.Context(), id); err != nil && !errors.Is(err, store.ErrRunNotFound) {
			s.log.Error("failed to mark run published",
				zap.String("id", id),
				zap.Error(err))
		}
	}
	writeJSON(w, receipt)
}

// lookupHistory finds the run's transcript and outcome in the live
// registry first, then the archive.
func (s *Server) lookupHistory(ctx context.Context, id string) (conversation.History, driver.Outcome, bool) {
	if h, ok := s.registry.get(id); ok {
		outcome, history, _ := h.snapshot()
		return history, outcome, true
	}
	if s.archive != nil {
		run, err := s.archive.GetRun(ctx, id)
		if err == nil {
			return run.History, run.Outcome, true
		}
	}
	return nil, "", false
}

// renderMessages converts transcript markdown to HTML for the UI.
func (s *Server) renderMessages(h conversation.History) []messageView {
	out := make([]messageView, 0, len(h))
	for _, m := range h {
		var buf bytes.Buffer
		html := ""
		if err := s.markdown.Convert([]byte(m.Text), &buf); err == nil {
			html = buf.String()
		}
		out = append(out, messageView{
			Speaker:  string(m.Speaker),
			Text:     m.Text,
			HTML:     html,
			Sequence: m.Sequence,
		})
	}
	return out
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}
