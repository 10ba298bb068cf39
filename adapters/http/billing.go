package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/costboard/app"
	"github.com/artpar/costboard/domain/billing"
	"github.com/artpar/costboard/domain/period"
	"github.com/artpar/costboard/ports"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// BillingQuerier is the read side of the billing service.
type BillingQuerier interface {
	Periods(ctx context.Context) ([]period.Period, error)
	PeriodSummary(ctx context.Context, index int, selfID string) (app.Summary, error)
	UserDetail(ctx context.Context, index int, selfID string) (app.UserDetail, error)
}

// BillingHandler serves period listings, summaries and per-user details.
type BillingHandler struct {
	billing  BillingQuerier
	identity ports.IdentityResolver
	logger   zerolog.Logger
}

// NewBillingHandler creates a billing handler. identity may be nil, in which
// case every caller is anonymous.
func NewBillingHandler(billing BillingQuerier, identity ports.IdentityResolver, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{
		billing:  billing,
		identity: identity,
		logger:   logger.With().Str("handler", "billing").Logger(),
	}
}

// Routes returns the billing API router.
func (h *BillingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/periods", h.ListPeriods)
	r.Get("/periods/{index}", h.GetSummary)
	r.Get("/periods/{index}/me", h.GetMe)
	return r
}

// PeriodView is the wire form of a billing period.
type PeriodView struct {
	Index           int        `json:"index"`
	StartAt         *time.Time `json:"startAt"`
	EndAt           *time.Time `json:"endAt"`
	IsCurrent       bool       `json:"isCurrent"`
	StartSnapshotID *int64     `json:"startSnapshotId,omitempty"`
	EndSnapshotID   *int64     `json:"endSnapshotId,omitempty"`
}

// TotalsView is the wire form of summary totals.
type TotalsView struct {
	TotalCost float64 `json:"totalCost"`
	UserCount int     `json:"userCount"`
}

// SummaryView is the wire form of a period summary.
type SummaryView struct {
	Period  PeriodView        `json:"period"`
	Ranking []billing.Ranking `json:"ranking"`
	Totals  TotalsView        `json:"totals"`
}

// UserDetailView is the wire form of the caller's own entry.
type UserDetailView struct {
	Period    PeriodView      `json:"period"`
	Entry     billing.Ranking `json:"entry"`
	TotalCost float64         `json:"totalCost"`
	Rank      int             `json:"rank"`
}

func toPeriodView(p period.Period) PeriodView {
	return PeriodView{
		Index:           p.Index,
		StartAt:         p.StartAt,
		EndAt:           p.EndAt,
		IsCurrent:       p.IsCurrent,
		StartSnapshotID: p.StartSnapshotID,
		EndSnapshotID:   p.EndSnapshotID,
	}
}

// ListPeriods handles GET /api/periods.
func (h *BillingHandler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.billing.Periods(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	views := make([]PeriodView, len(periods))
	for i, p := range periods {
		views[i] = toPeriodView(p)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"periods": views})
}

// GetSummary handles GET /api/periods/{index}. Identity is optional.
func (h *BillingHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}

	selfID, ok := h.resolveIdentity(w, r)
	if !ok {
		return
	}

	sum, err := h.billing.PeriodSummary(r.Context(), index, selfID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	ranking := sum.Ranking
	if ranking == nil {
		ranking = []billing.Ranking{}
	}
	writeJSON(w, http.StatusOK, SummaryView{
		Period:  toPeriodView(sum.Period),
		Ranking: ranking,
		Totals: TotalsView{
			TotalCost: sum.Totals.TotalCost,
			UserCount: sum.Totals.UserCount,
		},
	})
}

// GetMe handles GET /api/periods/{index}/me. Identity is required.
func (h *BillingHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}

	selfID, ok := h.resolveIdentity(w, r)
	if !ok {
		return
	}
	if selfID == "" {
		writeError(w, http.StatusUnauthorized, "missing_api_key", "an API key is required")
		return
	}

	detail, err := h.billing.UserDetail(r.Context(), index, selfID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, UserDetailView{
		Period:    toPeriodView(detail.Period),
		Entry:     detail.Entry,
		TotalCost: detail.TotalCost,
		Rank:      detail.Rank,
	})
}

// resolveIdentity maps the request's API key to a user ID.
// An absent key yields "" and ok; an unknown key is rejected with 401.
func (h *BillingHandler) resolveIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := extractAPIKey(r)
	if key == "" || h.identity == nil {
		return "", true
	}

	userID, err := h.identity.Resolve(r.Context(), key)
	switch {
	case err == nil:
		return userID, true
	case errors.Is(err, ports.ErrNotFound):
		writeError(w, http.StatusUnauthorized, "invalid_api_key", "API key not recognised")
	default:
		h.logger.Error().Err(err).Msg("identity resolution failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "identity resolution failed")
	}
	return "", false
}

func (h *BillingHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, app.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}

	h.logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Msg("billing query failed")
	writeError(w, http.StatusInternalServerError, "internal_error", "billing query failed")
}

func parseIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_period", "period index must be an integer, got "+strconv.Quote(raw))
		return 0, false
	}
	return index, true
}

// extractAPIKey extracts the API key from the request.
// Supports: Authorization header (Bearer token) and X-API-Key header.
func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
