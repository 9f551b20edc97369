package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vertextoedge/sharelink/internal/domain"
	"github.com/vertextoedge/sharelink/internal/service/notifier"
	"github.com/vertextoedge/sharelink/internal/service/sharing"
)

// OwnerHandler serves the authenticated share management API
type OwnerHandler struct {
	sharing  *sharing.Service
	notifier *notifier.Service
	baseURL  string
	logger   *zap.Logger
}

// NewOwnerHandler creates a new OwnerHandler. notifier may be nil, in which
// case recipients are rejected.
func NewOwnerHandler(svc *sharing.Service, n *notifier.Service, baseURL string, logger *zap.Logger) *OwnerHandler {
	return &OwnerHandler{
		sharing:  svc,
		notifier: n,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

type createShareBody struct {
	FileID     int64      `json:"file_id"`
	Permission string     `json:"permission"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	MaxAccess  *int64     `json:"max_access,omitempty"`
	Recipients []string   `json:"recipients,omitempty"`
}

type notifyBody struct {
	Recipients []string `json:"recipients"`
}

type shareResponse struct {
	ID                 int64                       `json:"id"`
	Token              string                      `json:"token"`
	Link               string                      `json:"link"`
	FileID             int64                       `json:"file_id"`
	Permission         string                      `json:"permission"`
	CreatedAt          time.Time                   `json:"created_at"`
	ExpiresAt          *time.Time                  `json:"expires_at,omitempty"`
	Active             bool                        `json:"active"`
	AccessCount        int64                       `json:"access_count"`
	MaxAccess          *int64                      `json:"max_access,omitempty"`
	DeactivatedAt      *time.Time                  `json:"deactivated_at,omitempty"`
	DeactivationReason string                      `json:"deactivation_reason,omitempty"`
	Notifications      []domain.NotificationResult `json:"notifications,omitempty"`
}

type notifyResponse struct {
	Results []domain.NotificationResult `json:"results"`
}

func (h *OwnerHandler) toResponse(s *domain.Share) shareResponse {
	return shareResponse{
		ID:                 s.ID,
		Token:              s.Token,
		Link:               h.baseURL + "/s/" + s.Token,
		FileID:             s.FileID,
		Permission:         string(s.Permission),
		CreatedAt:          s.CreatedAt,
		ExpiresAt:          s.ExpiresAt,
		Active:             s.Active,
		AccessCount:        s.AccessCount,
		MaxAccess:          s.MaxAccess,
		DeactivatedAt:      s.DeactivatedAt,
		DeactivationReason: string(s.DeactivationReason),
	}
}

// HandleCreate creates a share and optionally notifies recipients:
// POST /api/shares
func (h *OwnerHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())

	var body createShareBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err, h.logger)
		return
	}
	if len(body.Recipients) > 0 && h.notifier == nil {
		writeErrorMessage(w, http.StatusBadRequest, "notifications are not configured")
		return
	}

	permission, err := domain.ParsePermission(body.Permission)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	share, err := h.sharing.CreateShare(r.Context(), sharing.CreateShareRequest{
		FileID:     body.FileID,
		OwnerID:    ownerID,
		Permission: permission,
		ExpiresAt:  body.ExpiresAt,
		MaxAccess:  body.MaxAccess,
	})
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	resp := h.toResponse(share)
	if len(body.Recipients) > 0 {
		// the share exists either way; notification problems are reported per recipient
		results, err := h.notifier.Notify(r.Context(), share.ID, body.Recipients)
		if err != nil {
			h.logger.Warn("notification at creation failed",
				zap.Int64("share_id", share.ID),
				zap.Error(err))
			results = make([]domain.NotificationResult, 0, len(body.Recipients))
			for _, rcpt := range body.Recipients {
				results = append(results, domain.NotificationResult{Recipient: rcpt, Error: err.Error()})
			}
		}
		resp.Notifications = results
	}

	writeJSON(w, http.StatusCreated, resp)
}

// HandleList lists the caller's shares: GET /api/shares
func (h *OwnerHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())

	shares, err := h.sharing.ListShares(r.Context(), ownerID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}

	resp := make([]shareResponse, 0, len(shares))
	for _, s := range shares {
		resp = append(resp, h.toResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGet returns one of the caller's shares: GET /api/shares/{id}
func (h *OwnerHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())
	shareID, ok := shareIDParam(w, r)
	if !ok {
		return
	}

	share, err := h.sharing.GetShare(r.Context(), shareID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	if !share.IsOwnedBy(ownerID) {
		writeError(w, domain.ErrNotOwner, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(share))
}

// HandleRevoke revokes a share: DELETE /api/shares/{id}
func (h *OwnerHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())
	shareID, ok := shareIDParam(w, r)
	if !ok {
		return
	}

	if err := h.sharing.Revoke(r.Context(), shareID, ownerID); err != nil {
		writeError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAnalytics returns per-share usage: GET /api/shares/{id}/analytics
func (h *OwnerHandler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())
	shareID, ok := shareIDParam(w, r)
	if !ok {
		return
	}

	summary, err := h.sharing.GetAnalytics(r.Context(), shareID, ownerID)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleNotify emails the link to recipients:
// POST /api/shares/{id}/notifications
func (h *OwnerHandler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := ownerFromContext(r.Context())
	shareID, ok := shareIDParam(w, r)
	if !ok {
		return
	}
	if h.notifier == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "notifications are not configured")
		return
	}

	var body notifyBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, err, h.logger)
		return
	}

	results, err := h.notifier.NotifyAsOwner(r.Context(), shareID, ownerID, body.Recipients)
	if err != nil {
		writeError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, notifyResponse{Results: results})
}

func shareIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorMessage(w, http.StatusBadRequest, "invalid share id")
		return 0, false
	}
	return id, true
}
