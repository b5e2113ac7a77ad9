package main

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/himanishpuri/AcousticID/pkg/acousticid"
	"github.com/himanishpuri/AcousticID/pkg/apperr"
	"github.com/himanishpuri/AcousticID/pkg/logger"
	"github.com/himanishpuri/AcousticID/pkg/models"
)

// multipartOverhead is allowed on top of the file ceiling for boundaries and
// part headers.
const multipartOverhead = 1 << 20

// Field names the raw endpoint reads the upload from.
var rawUploadFields = []string{"audioFile"}

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service acousticid.Service
	config  *ServerConfig
	log     acousticid.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	UploadDir      string
	MaxUploadBytes int64
	DBPath         string
	AllowedOrigins []string
	// DebugErrors adds the underlying cause of pipeline failures to responses.
	DebugErrors bool
}

// NewServer creates a new server instance
func NewServer(service acousticid.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes a {error} response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "AcousticID backend is running")
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   time.Now().Format(time.RFC3339),
	})
}

// handleAnalyze handles POST /v1/analyze, /api/analyze and /fingerprint.
// The first file part is used, whatever its field name.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	upload, err := s.readUpload(w, r, nil)
	if err != nil {
		s.respondAnalyzeError(w, err)
		return
	}

	candidates, err := s.service.Analyze(r.Context(), upload)
	if err != nil {
		s.respondAnalyzeError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, candidates)
}

// respondAnalyzeError renders failures for the normalized contract:
// 400 {error}, otherwise {error, message}.
func (s *Server) respondAnalyzeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	if status == http.StatusBadRequest {
		s.respondError(w, status, apperr.MessageOf(err))
		return
	}

	resp := ErrorResponse{Message: apperr.MessageOf(err)}
	if kind == apperr.PayloadTooLarge {
		resp.Error = "File too large"
	} else {
		resp.Error = "Failed to process audio file"
		if s.config.DebugErrors {
			resp.Details = apperr.Cause(err)
		}
	}
	s.respondJSON(w, status, resp)
}

// handleAnalyzeRaw handles POST /v1/analyze/raw and /analyze. The lookup
// service's response is returned untouched under "result".
func (s *Server) handleAnalyzeRaw(w http.ResponseWriter, r *http.Request) {
	upload, err := s.readUpload(w, r, rawUploadFields)
	if err != nil {
		s.respondRawError(w, err)
		return
	}

	raw, err := s.service.AnalyzeRaw(r.Context(), upload)
	if err != nil {
		s.respondRawError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, RawResultResponse{Result: raw})
}

// respondRawError renders failures for the raw contract. An error reported by
// the lookup service itself (an invalid fingerprint, say) is the caller's
// problem and maps to 400.
func (s *Server) respondRawError(w http.ResponseWriter, err error) {
	e, ok := apperr.As(err)
	if ok && e.Kind == apperr.LookupFailed && e.ServiceReported {
		s.respondError(w, http.StatusBadRequest, e.Message)
		return
	}

	status := apperr.KindOf(err).HTTPStatus()
	resp := ErrorResponse{Error: apperr.MessageOf(err)}
	if status == http.StatusInternalServerError && s.config.DebugErrors {
		resp.Details = apperr.Cause(err)
	}
	s.respondJSON(w, status, resp)
}

// readUpload streams the request body and stops at the first file part whose
// field name is in fields (any field when fields is empty). The part is handed
// to the service unread; a nil upload means no file was found.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request, fields []string) (*models.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		s.log.Debugf("Request is not multipart: %v", err)
		return nil, nil
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, apperr.Wrap(apperr.PayloadTooLarge, "Request body too large", err)
			}
			return nil, apperr.Wrap(apperr.BadRequest, "Malformed multipart body", err)
		}

		if part.FileName() == "" || !acceptsField(fields, part) {
			continue
		}

		return &models.Upload{
			FieldName: part.FormName(),
			Filename:  part.FileName(),
			MimeType:  part.Header.Get("Content-Type"),
			Body:      part,
		}, nil
	}
}

func acceptsField(fields []string, part *multipart.Part) bool {
	if len(fields) == 0 {
		return true
	}
	for _, f := range fields {
		if part.FormName() == f {
			return true
		}
	}
	return false
}

// handleListAnalyses handles GET /api/analyses?limit=N
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.service.ListAnalyses(limit)
	if err != nil {
		s.respondHistoryError(w, err, "")
		return
	}
	if records == nil {
		records = []models.AnalysisRecord{}
	}

	s.respondJSON(w, http.StatusOK, ListAnalysesResponse{
		Analyses: records,
		Count:    len(records),
	})
}

// handleGetAnalysis handles GET /api/analyses/{id}
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := s.service.GetAnalysis(id)
	if err != nil {
		s.respondHistoryError(w, err, id)
		return
	}

	s.respondJSON(w, http.StatusOK, record)
}

// handleDeleteAnalysis handles DELETE /api/analyses/{id}
func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.service.DeleteAnalysis(id); err != nil {
		s.respondHistoryError(w, err, id)
		return
	}

	s.log.Infof("Deleted analysis %s", id)
	s.respondJSON(w, http.StatusOK, DeleteAnalysisResponse{
		Message: "Analysis deleted successfully",
		ID:      id,
	})
}

func (s *Server) respondHistoryError(w http.ResponseWriter, err error, id string) {
	switch {
	case errors.Is(err, acousticid.ErrHistoryDisabled):
		s.respondError(w, http.StatusNotFound, "Analysis history is disabled")
	case errors.Is(err, acousticid.ErrAnalysisNotFound):
		s.respondError(w, http.StatusNotFound, "Analysis "+id+" not found")
	default:
		s.log.Errorf("History query failed: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to read analysis history")
	}
}
