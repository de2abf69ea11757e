// Package api exposes the pipeline controller over HTTP. Runs are
// requested with a case document, watched through a websocket event
// stream and stopped on demand.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sourceplane/cfdcase/internal/loader"
	"github.com/sourceplane/cfdcase/internal/model"
	"github.com/sourceplane/cfdcase/internal/pipeline"
	"github.com/sourceplane/cfdcase/internal/validate"
)

// maxCaseBytes bounds the size of a posted case document
const maxCaseBytes = 1 << 20

// caseMediaTypes are the accepted content types of a posted case. Form and
// text/plain bodies are refused so a plain HTML form cannot start a run.
var caseMediaTypes = map[string]bool{
	"application/json":   true,
	"application/yaml":   true,
	"application/x-yaml": true,
	"text/yaml":          true,
	"text/x-yaml":        true,
}

// Pipeline is the part of the controller the server drives
type Pipeline interface {
	RequestRun(cfg model.CaseConfig, dir string) (string, error)
	RequestStop(runID string) error
	QueryState(runID string) (pipeline.Snapshot, error)
	Subscribe(runID string) (<-chan pipeline.Event, func(), error)
	Runs() []string
}

type Server struct {
	Logger   *slog.Logger
	Pipeline Pipeline
	// CaseRoot confines case directories; relative surface files in posted
	// cases resolve against it too
	CaseRoot string
	// Gatherer, when set, is served on /metrics
	Gatherer prometheus.Gatherer
}

// CreateRunResponse is returned by POST /v1/runs
type CreateRunResponse struct {
	RunID   string `json:"runId"`
	CaseDir string `json:"caseDir"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error      string               `json:"error"`
	Violations []validate.Violation `json:"violations,omitempty"`
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	mux.HandleFunc("POST /v1/runs", s.handleCreateRun)
	mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /v1/runs/{id}/stop", s.handleStopRun)
	mux.HandleFunc("GET /v1/runs/{id}/events", s.handleRunEvents)

	var h http.Handler = mux
	h = SameOriginMiddleware(s.logger())(h)
	h = LoggingMiddleware(s.logger())(h)
	h = RecoverMiddleware(s.logger())(h)
	return h
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	ids := s.Pipeline.Runs()
	sort.Strings(ids)
	snaps := make([]pipeline.Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Pipeline.QueryState(id)
		if err != nil {
			continue
		}
		snaps = append(snaps, snap)
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleCreateRun accepts a case document (YAML or JSON) and starts a run
// in the directory named by the dir query parameter, or the case name
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !caseMediaTypes[mediaType] {
		writeError(w, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type %q: post the case as YAML or JSON", r.Header.Get("Content-Type")))
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCaseBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}

	base, err := filepath.Abs(s.CaseRoot)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	cfg, err := loader.DecodeCase(data, base)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if surface := cfg.Mesh.SurfaceFile; surface != "" && !within(base, surface) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("surface file %q is outside the case root", surface))
		return
	}

	dir, err := s.caseDir(r.URL.Query().Get("dir"), cfg.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, err := s.Pipeline.RequestRun(cfg, dir)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, pipeline.ErrShutdown) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err)
		return
	}
	s.logger().Info("run created", "run_id", id, "dir", dir)
	writeJSON(w, http.StatusCreated, CreateRunResponse{RunID: id, CaseDir: dir})
}

// caseDir resolves the requested case directory under CaseRoot
func (s *Server) caseDir(requested, name string) (string, error) {
	if requested == "" {
		requested = name
	}
	if s.CaseRoot == "" {
		return filepath.Abs(requested)
	}
	if filepath.IsAbs(requested) {
		return "", fmt.Errorf("case directory %q must be relative to the case root", requested)
	}
	root, err := filepath.Abs(s.CaseRoot)
	if err != nil {
		return "", fmt.Errorf("failed to resolve case root: %w", err)
	}
	dir := filepath.Join(root, requested)
	if dir == root || !within(root, dir) {
		return "", fmt.Errorf("case directory %q escapes the case root", requested)
	}
	return dir, nil
}

// within reports whether path lies under root once symlinks that exist
// are resolved
func within(root, path string) bool {
	if r, err := filepath.EvalSymlinks(root); err == nil {
		if p, err := filepath.EvalSymlinks(path); err == nil {
			root, path = r, p
		}
	}
	rel, err := filepath.Rel(root, path)
	return err == nil && filepath.IsLocal(rel)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Pipeline.QueryState(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Pipeline.RequestStop(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	snap, err := s.Pipeline.QueryState(id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func statusFor(err error) int {
	if pipeline.IsNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var verr *validate.ValidationError
	if errors.As(err, &verr) {
		resp.Error = "invalid case"
		resp.Violations = verr.Violations
	}
	writeJSON(w, status, resp)
}
