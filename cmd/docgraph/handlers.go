package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brunobiangulo/docgraph"
	"github.com/brunobiangulo/docgraph/cypher"
	"github.com/brunobiangulo/docgraph/sink"
	"github.com/brunobiangulo/docgraph/store"
)

const maxUploadBytes = 100 << 20

type handler struct {
	pipeline *docgraph.Pipeline
	source   docgraph.TextSource
	sink     sink.Sink
	store    *store.Store // optional, enables GET /runs
	docRoot  string       // directory {"path"} requests may read from; empty disables them
}

func (h *handler) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", h.handleRun)
	mux.HandleFunc("POST /compile", h.handleCompile)
	mux.HandleFunc("GET /runs", h.handleRuns)
	mux.HandleFunc("GET /health", h.handleHealth)
	return mux
}

type runResponse struct {
	docgraph.Result
	Error string `json:"error,omitempty"`
}

// POST /run
// Accepts a multipart upload in "file", or JSON with "text" or "path".
func (h *handler) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	if err := r.ParseMultipartForm(maxUploadBytes); err == nil {
		file, header, err := r.FormFile("file")
		if err == nil {
			defer file.Close()

			// Keep only the extension; the parser registry dispatches on it.
			tmp, err := os.CreateTemp("", "docgraph-upload-*"+filepath.Ext(filepath.Base(header.Filename)))
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to process file")
				slog.Error("http: creating temp file", "error", err)
				return
			}
			defer os.Remove(tmp.Name())
			if _, err := io.Copy(tmp, file); err != nil {
				tmp.Close()
				writeError(w, http.StatusInternalServerError, "failed to save file")
				slog.Error("http: saving upload", "error", err)
				return
			}
			tmp.Close()

			h.writeResult(w, h.pipeline.RunDocument(ctx, h.source, tmp.Name(), h.sink))
			return
		}
	}

	var req struct {
		Text string `json:"text"`
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'text' or 'path'")
		return
	}

	switch {
	case req.Text != "":
		h.writeResult(w, h.pipeline.Run(ctx, req.Text, h.sink))
	case req.Path != "":
		if h.docRoot == "" {
			writeError(w, http.StatusForbidden, "path requests are disabled; start serve with --doc-root")
			return
		}
		absPath, err := confine(h.docRoot, req.Path)
		if err != nil {
			writeError(w, http.StatusForbidden, "path is outside the document root")
			return
		}
		info, err := os.Stat(absPath)
		if err != nil || info.IsDir() {
			writeError(w, http.StatusBadRequest, "path must be an existing file")
			return
		}
		h.writeResult(w, h.pipeline.RunDocument(ctx, h.source, absPath, h.sink))
	default:
		writeError(w, http.StatusBadRequest, "text or path is required")
	}
}

// confine resolves p against root, following symlinks, and fails when the
// result lies outside root.
func confine(root, p string) (string, error) {
	root, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", p, root)
	}
	return resolved, nil
}

func (h *handler) writeResult(w http.ResponseWriter, res docgraph.Result) {
	writeJSON(w, statusCode(res.Status), runResponse{Result: res, Error: res.ErrorMessage()})
}

// statusCode maps a run status onto an HTTP status.
func statusCode(s docgraph.Status) int {
	switch s {
	case docgraph.StatusOK, docgraph.StatusNoTriples:
		return http.StatusOK
	case docgraph.StatusSourceReadFailed:
		return http.StatusUnprocessableEntity
	case docgraph.StatusSinkRejected:
		return http.StatusBadGateway
	case docgraph.StatusSinkUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// POST /compile
func (h *handler) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	stmts, res := h.pipeline.Compile(req.Text)

	type statement struct {
		Query  string         `json:"query"`
		Params map[string]any `json:"params"`
	}
	out := make([]statement, len(stmts))
	for i, s := range stmts {
		out[i] = statement{Query: s.Query(), Params: s.Params()}
	}
	var script bytes.Buffer
	if err := cypher.WriteScript(&script, stmts); err != nil {
		writeError(w, http.StatusInternalServerError, "rendering script failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"result":     runResponse{Result: res, Error: res.ErrorMessage()},
		"statements": out,
		"script":     script.String(),
	})
}

// GET /runs?limit=N
func (h *handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "run log requires the sqlite sink")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.store.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		slog.Error("http: listing runs", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
