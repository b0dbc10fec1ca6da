// Package rest serves the notification history API of the development server.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/webitel/im-live-notify/internal/domain/model"
	"github.com/webitel/im-live-notify/internal/server/auth"
	"github.com/webitel/im-live-notify/internal/server/ingest"
	"github.com/webitel/im-live-notify/internal/server/store"
)

const defaultLimit = 20

// Store is the history persistence behind the API.
type Store interface {
	List(ctx context.Context, userID, cursor string, limit int) (model.Page, error)
	MarkRead(ctx context.Context, userID string, id model.ID) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	DeleteRead(ctx context.Context, userID string) (int, error)
}

var _ Store = (*store.SQLiteStore)(nil)

type Handler struct {
	store      Store
	dispatcher ingest.Dispatcher
	logger     *slog.Logger
}

func NewHandler(s Store, d ingest.Dispatcher, logger *slog.Logger) *Handler {
	return &Handler{store: s, dispatcher: d, logger: logger}
}

// Register mounts the API under base, e.g. /api/notifications.
func (h *Handler) Register(r chi.Router, base string) {
	base = strings.TrimSuffix(base, "/")

	r.Get(base, h.list)
	r.Post(base, h.create)
	r.Post(base+"/read-all", h.markAllRead)
	r.Delete(base+"/read", h.deleteRead)
	r.Post(base+"/{id}/read", h.markRead)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	page, err := h.store.List(r.Context(), userID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		h.fail(w, "LIST_FAILED", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type createRequest struct {
	UserID  string                 `json:"user_id"`
	Type    model.NotificationType `json:"type"`
	Target  model.Target           `json:"target"`
	Message string                 `json:"message"`
}

// create publishes a notification to the ingest topic; persistence and the
// live push happen asynchronously.
func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserID(r.Context())

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.UserID == "" {
		req.UserID = caller
	}
	if req.Type == "" {
		req.Type = model.TypeGeneric
	}

	n := &model.Notification{
		ID:        model.ID(uuid.NewString()),
		Type:      req.Type,
		UserID:    req.UserID,
		Target:    req.Target,
		Message:   req.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.dispatcher.Dispatch(r.Context(), n); err != nil {
		h.fail(w, "DISPATCH_FAILED", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": n.ID.String()})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	err := h.store.MarkRead(r.Context(), userID, model.ID(chi.URLParam(r, "id")))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		h.fail(w, "MARK_READ_FAILED", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	if _, err := h.store.MarkAllRead(r.Context(), userID); err != nil {
		h.fail(w, "MARK_ALL_READ_FAILED", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())

	n, err := h.store.DeleteRead(r.Context(), userID)
	if err != nil {
		h.fail(w, "DELETE_READ_FAILED", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h *Handler) fail(w http.ResponseWriter, tag string, err error) {
	h.logger.Error(tag, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
