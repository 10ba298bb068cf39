package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/costboard/domain/snapshot"
	"github.com/artpar/costboard/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// SnapshotManager closes periods and lists stored snapshots.
type SnapshotManager interface {
	Close(ctx context.Context) (snapshot.Snapshot, error)
	List(ctx context.Context) ([]snapshot.Snapshot, error)
}

// AdminHandler serves operator endpoints guarded by an admin token.
type AdminHandler struct {
	snapshots SnapshotManager
	hasher    ports.Hasher
	tokenHash []byte
	logger    zerolog.Logger
}

// NewAdminHandler creates an admin handler. With an empty tokenHash every
// request is rejected.
func NewAdminHandler(snapshots SnapshotManager, hasher ports.Hasher, tokenHash string, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		snapshots: snapshots,
		hasher:    hasher,
		tokenHash: []byte(tokenHash),
		logger:    logger.With().Str("handler", "admin").Logger(),
	}
}

// Routes returns the admin router.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requireToken)
	r.Post("/snapshots", h.CloseSnapshot)
	r.Get("/snapshots", h.ListSnapshots)
	return r
}

// SnapshotView is snapshot metadata without the payload.
type SnapshotView struct {
	ID           int64     `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	Timezone     string    `json:"timezone"`
	PayloadBytes int       `json:"payloadBytes"`
}

func toSnapshotView(s snapshot.Snapshot) SnapshotView {
	return SnapshotView{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		Timezone:     s.Timezone,
		PayloadBytes: len(s.Payload),
	}
}

// CloseSnapshot handles POST /admin/snapshots.
func (h *AdminHandler) CloseSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.snapshots.Close(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("close period failed")
		writeError(w, http.StatusInternalServerError, "snapshot_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotView(snap))
}

// ListSnapshots handles GET /admin/snapshots.
func (h *AdminHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.snapshots.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list snapshots failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "list snapshots failed")
		return
	}

	views := make([]SnapshotView, len(snaps))
	for i, s := range snaps {
		views[i] = toSnapshotView(s)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshots": views})
}

func (h *AdminHandler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractAdminToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_admin_token", "an admin token is required")
			return
		}
		if !h.hasher.Compare(h.tokenHash, token) {
			h.logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("rejected admin token")
			writeError(w, http.StatusUnauthorized, "invalid_admin_token", "admin token not recognised")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAdminToken(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get("X-Admin-Token")); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}
