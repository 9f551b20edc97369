package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/domain"
	"github.com/vertextoedge/sharelink/internal/domain/vo"
	"github.com/vertextoedge/sharelink/internal/service/sharing"
)

// ShareHandler serves the public share link endpoints
type ShareHandler struct {
	sharing *sharing.Service
	logger  *zap.Logger
}

// NewShareHandler creates a new ShareHandler
func NewShareHandler(svc *sharing.Service, logger *zap.Logger) *ShareHandler {
	return &ShareHandler{
		sharing: svc,
		logger:  logger,
	}
}

type linkStatusResponse struct {
	Available         bool       `json:"available"`
	Permission        string     `json:"permission"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	RemainingAccesses *int64     `json:"remaining_accesses,omitempty"`
}

type filePreviewResponse struct {
	Name         string     `json:"name"`
	ContentType  string     `json:"content_type"`
	Size         int64      `json:"size"`
	ModifiedAt   *time.Time `json:"modified_at,omitempty"`
	Permission   string     `json:"permission"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Downloadable bool       `json:"downloadable"`
}

// HandleStatus reports whether a link is usable: GET /s/{token}.
// It changes nothing and logs nothing to the audit trail.
func (h *ShareHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	result, err := h.sharing.PeekAccess(r.Context(), token)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	if !result.Granted {
		writeDenial(w, result.Reason)
		return
	}

	resp := linkStatusResponse{
		Available:  true,
		Permission: string(result.Share.Permission),
		ExpiresAt:  result.Share.ExpiresAt,
	}
	if remaining, limited := result.Share.RemainingAccesses(); limited {
		resp.RemainingAccesses = &remaining
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleView commits a VIEW access and returns the file preview:
// GET /s/{token}/view
func (h *ShareHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	share, ok := h.access(w, r, domain.AccessView)
	if !ok {
		return
	}

	meta, err := h.sharing.GetFileMetadata(r.Context(), share)
	if err != nil {
		h.logger.Warn("shared file metadata unavailable",
			zap.Int64("share_id", share.ID),
			zap.Int64("file_id", share.FileID),
			zap.Error(err))
		writeError(w, asUnavailable(err), h.logger)
		return
	}

	writeJSON(w, http.StatusOK, filePreviewResponse{
		Name:         meta.Name,
		ContentType:  contentTypeOf(meta),
		Size:         meta.Size,
		ModifiedAt:   meta.ModifiedAt,
		Permission:   string(share.Permission),
		ExpiresAt:    share.ExpiresAt,
		Downloadable: share.Permission.Allows(domain.AccessDownload),
	})
}

// HandleDownload commits a DOWNLOAD access and streams the file:
// GET /s/{token}/download
func (h *ShareHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	share, ok := h.access(w, r, domain.AccessDownload)
	if !ok {
		return
	}

	meta, err := h.sharing.GetFileMetadata(r.Context(), share)
	if err != nil {
		h.logger.Warn("shared file metadata unavailable",
			zap.Int64("share_id", share.ID),
			zap.Int64("file_id", share.FileID),
			zap.Error(err))
		writeError(w, asUnavailable(err), h.logger)
		return
	}

	content, err := h.sharing.OpenContent(r.Context(), share)
	if err != nil {
		h.logger.Error("failed to open shared file",
			zap.Int64("share_id", share.ID),
			zap.Int64("file_id", share.FileID),
			zap.Error(err))
		writeError(w, asUnavailable(err), h.logger)
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", contentTypeOf(meta))
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": meta.Name}))
	w.Header().Set("Cache-Control", "no-store")

	written, err := io.Copy(w, content)
	if err != nil {
		h.logger.Error("failed to stream shared file",
			zap.Int64("share_id", share.ID),
			zap.Int64("written", written),
			zap.Error(err))
		return
	}

	h.logger.Info("shared file served",
		zap.Int64("share_id", share.ID),
		zap.Int64("file_id", share.FileID),
		zap.Int64("size", written))
}

// access runs one access attempt and writes the denial response if refused
func (h *ShareHandler) access(w http.ResponseWriter, r *http.Request, accessType domain.AccessType) (*domain.Share, bool) {
	token := chi.URLParam(r, "token")

	result, err := h.sharing.Access(r.Context(), sharing.AccessRequest{
		Token:      token,
		AccessType: accessType,
		ClientIP:   clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		writeError(w, err, h.logger)
		return nil, false
	}
	if !result.Granted {
		h.logger.Info("share access denied",
			zap.String("token", vo.MaskToken(token)),
			zap.String("access_type", string(accessType)),
			zap.String("reason", string(result.Reason)))
		writeDenial(w, result.Reason)
		return nil, false
	}
	return result.Share, true
}

// asUnavailable hides a missing backing file behind the generic denial
func asUnavailable(err error) error {
	if domain.IsNotFound(err) {
		return fmt.Errorf("%w: %w", domain.ErrShareNotFound, err)
	}
	return err
}

func contentTypeOf(meta *domain.FileMetadata) string {
	if meta.ContentType != "" {
		return meta.ContentType
	}
	if ct := mime.TypeByExtension(filepath.Ext(meta.Name)); ct != "" {
		return ct
	}
	return meta.GetContentType()
}
