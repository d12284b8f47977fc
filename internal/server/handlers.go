package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/ragbot-go/internal/apperr"
	"github.com/54b3r/ragbot-go/internal/logging"
)

// maxJSONBytes caps JSON request bodies.
const maxJSONBytes = 64 << 10

// handleChat handles POST /api/chat. It answers one question for a tenant
// and returns the session id so the client can continue the conversation.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.metrics.chatInFlight.Inc()
	defer s.metrics.chatInFlight.Dec()

	outcome := "error"
	defer func() {
		s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	var req chatRequest
	if err := decodeJSON(w, r, maxJSONBytes, &req); err != nil {
		outcome = "invalid"
		writeError(w, r, err)
		return
	}
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		outcome = "invalid"
		writeError(w, r, apperr.Validation("tenantId is required"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		outcome = "invalid"
		writeError(w, r, apperr.Validation("message is required"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(
		slog.String("tenant", req.TenantID),
		slog.String("session", req.SessionID),
	))

	reply, err := s.backend.Query(ctx, req.TenantID, req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		writeError(w, r, err)
		return
	}

	outcome = "ok"
	writeJSON(w, r, http.StatusOK, chatResponse{SessionID: req.SessionID, Reply: reply})
}

// handleUpload handles POST /api/files. The multipart form carries the PDF
// in the "file" field; an optional "tenant" field trains that tenant on the
// uploaded file in the same request.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, r, apperr.Validation("invalid upload: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, apperr.Validation("file field is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		writeError(w, r, apperr.Validation("read upload: %v", err))
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		writeError(w, r, apperr.Validation("file exceeds %d bytes", s.cfg.MaxUploadBytes))
		return
	}

	key, err := s.backend.Upload(r.Context(), filepath.Base(header.Filename), data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := uploadResponse{Filename: key}
	if tenant := strings.TrimSpace(r.FormValue("tenant")); tenant != "" {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.TrainTimeout)
		defer cancel()
		res, err := s.backend.Train(ctx, tenant, key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Training = res
	}

	writeJSON(w, r, http.StatusCreated, resp)
}

// handleListFiles handles GET /api/files.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.backend.Files(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, filesResponse{Files: files})
}

// handleDownload handles GET /api/files/{filename}.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	data, err := s.backend.Download(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logging.FromContext(r.Context()).Warn("download write error", slog.Any("error", err))
	}
}

// handleDeleteFile handles DELETE /api/files/{filename}. The document is
// removed from every tenant and the stored file is deleted.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.DeleteDocument(r.Context(), "", r.PathValue("filename"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleTrain handles POST /api/train/{filename}?tenant=<tenant>.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	tenant := strings.TrimSpace(r.URL.Query().Get("tenant"))
	if tenant == "" {
		writeError(w, r, apperr.Validation("tenant query parameter is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.TrainTimeout)
	defer cancel()

	res, err := s.backend.Train(ctx, tenant, r.PathValue("filename"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleDocuments handles GET /api/tenants/{tenant}/documents.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	docs, err := s.backend.Documents(r.Context(), tenant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, documentsResponse{TenantID: tenant, Documents: docs})
}

// handleDeleteDocument handles DELETE /api/tenants/{tenant}/documents/{filename}.
// Only the tenant's vectors are removed; the stored file is kept.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	tenant := strings.TrimSpace(r.PathValue("tenant"))
	if tenant == "" {
		writeError(w, r, apperr.Validation("tenant is required"))
		return
	}
	res, err := s.backend.DeleteDocument(r.Context(), tenant, r.PathValue("filename"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleGetPrompt handles GET /api/tenants/{tenant}/prompt.
func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")
	prompt, custom, err := s.backend.Prompt(r.Context(), tenant)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, promptResponse{TenantID: tenant, Prompt: prompt, Custom: custom})
}

// handlePutPrompt handles PUT /api/tenants/{tenant}/prompt.
func (s *Server) handlePutPrompt(w http.ResponseWriter, r *http.Request) {
	tenant := r.PathValue("tenant")

	var req promptRequest
	if err := decodeJSON(w, r, maxJSONBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.backend.SetPrompt(r.Context(), tenant, req.Prompt); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, promptResponse{TenantID: tenant, Prompt: req.Prompt, Custom: true})
}

// handleDeletePrompt handles DELETE /api/tenants/{tenant}/prompt.
func (s *Server) handleDeletePrompt(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeletePrompt(r.Context(), r.PathValue("tenant")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
