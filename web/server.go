// ABOUTME: HTTP server exposing the run index and run attributes as JSON.
// ABOUTME: Backs the `guild view` CLI mode with a chi router.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/cjbayron/guildai/index"
	"github.com/cjbayron/guildai/run"
)

// Server serves read-only run metadata: list and detail views over the
// index, with raw attributes read from the run directories.
type Server struct {
	index   *index.Index
	runsDir string
	router  chi.Router
}

// NewServer builds a server over the given index and runs directory.
func NewServer(ix *index.Index, runsDir string) *Server {
	s := &Server{index: ix, runsDir: runsDir}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}", s.handleGetRun)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler, delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type runSummary struct {
	RunID      string `json:"run_id"`
	OpRef      string `json:"opref"`
	Started    int64  `json:"started"`
	Stopped    *int64 `json:"stopped,omitempty"`
	ExitStatus *int64 `json:"exit_status,omitempty"`
	Completed  bool   `json:"completed"`
}

type runDetail struct {
	runSummary
	Attrs map[string]any `json:"attrs,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	rows, err := s.index.List()
	if err != nil {
		slog.Error("list runs failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
		return
	}
	summaries := make([]runSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, summarize(row))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	row, err := s.index.Get(id)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		slog.Error("get run failed", "run", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get run failed"})
		return
	}
	detail := runDetail{runSummary: summarize(row)}
	rec := run.New(row.RunID, filepath.Join(s.runsDir, row.RunID))
	if attrs, err := rec.Attrs(); err == nil {
		detail.Attrs = attrs
	} else {
		slog.Warn("read run attrs failed", "run", id, "error", err)
	}
	writeJSON(w, http.StatusOK, detail)
}

func summarize(row index.RunRow) runSummary {
	return runSummary{
		RunID:      row.RunID,
		OpRef:      row.OpRef,
		Started:    row.Started,
		Stopped:    row.Stopped,
		ExitStatus: row.ExitStatus,
		Completed:  row.Completed(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}
