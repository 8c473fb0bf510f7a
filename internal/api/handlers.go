package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dgallion1/medrag/internal/corpus"
	"github.com/dgallion1/medrag/internal/llm"
	"github.com/dgallion1/medrag/internal/parser"
	"github.com/dgallion1/medrag/internal/store"
)

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type queryResponse struct {
	Answer    string          `json:"answer"`
	Sources   []corpus.Source `json:"sources"`
	SessionID string          `json:"session_id"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		jsonError(w, "query is required", http.StatusBadRequest)
		return
	}

	answer, sessionID, err := s.system.Ask(r.Context(), req.SessionID, req.Query)
	if err != nil {
		s.log.Error("query failed", "error", err)
		switch {
		case errors.Is(err, llm.ErrGeneration):
			jsonError(w, "answer generation failed", http.StatusBadGateway)
		case errors.Is(err, store.ErrUnavailable):
			jsonError(w, "search backend unavailable", http.StatusServiceUnavailable)
		default:
			jsonError(w, "query failed", http.StatusInternalServerError)
		}
		return
	}

	sources := answer.Sources
	if sources == nil {
		sources = []corpus.Source{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Answer:    answer.Text,
		Sources:   sources,
		SessionID: sessionID,
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	if !parser.IsSupportedExtension(filename) {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest)
		return
	}

	report, err := s.system.Ingest(r.Context(), file, filename)
	if err != nil {
		s.log.Error("ingest failed", "file", filename, "error", err)
		switch {
		case errors.Is(err, parser.ErrMalformed):
			jsonError(w, "document could not be parsed", http.StatusUnprocessableEntity)
		case errors.Is(err, store.ErrUnavailable):
			jsonError(w, "search backend unavailable", http.StatusServiceUnavailable)
		default:
			jsonError(w, "ingest failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"title":       report.Title,
		"chunk_count": report.ChunkCount,
		"was_new":     report.WasNew,
		"skipped":     report.Skipped,
	})
}

func (s *Server) handlePapers(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.system.Analytics(r.Context())
	if err != nil {
		s.log.Error("analytics failed", "error", err)
		jsonError(w, "search backend unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.claude == nil || s.claude.Stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model": s.claude.Model(),
		"stats": s.claude.Stats.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
