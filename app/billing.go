// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/costboard/domain/billing"
	"github.com/artpar/costboard/domain/period"
	"github.com/artpar/costboard/domain/snapshot"
	"github.com/artpar/costboard/domain/usage"
	"github.com/artpar/costboard/ports"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned for unknown periods and absent users.
var ErrNotFound = ports.ErrNotFound

// Metrics receives service-level observations.
type Metrics interface {
	ObserveQuery(operation, outcome string)
	ObserveFetch(d time.Duration, err error)
	SnapshotStored(at time.Time, users int)
	SnapshotFailed()
}

type nopMetrics struct{}

func (nopMetrics) ObserveQuery(string, string)       {}
func (nopMetrics) ObserveFetch(time.Duration, error) {}
func (nopMetrics) SnapshotStored(time.Time, int)     {}
func (nopMetrics) SnapshotFailed()                   {}

// Totals aggregates a period summary.
type Totals struct {
	TotalCost float64
	UserCount int
}

// Summary is the ranking of all users for one period.
type Summary struct {
	Period  period.Period
	Ranking []billing.Ranking
	Totals  Totals
}

// UserDetail is the caller's own entry in a period.
type UserDetail struct {
	Period    period.Period
	Entry     billing.Ranking
	TotalCost float64
	// Rank is the 1-based position in the ranking.
	Rank int
}

// BillingService answers period, summary and per-user queries.
// It holds no state between calls; each call re-reads the snapshot log.
type BillingService struct {
	snapshots ports.SnapshotStore
	source    ports.UsageSource
	clock     ports.Clock
	logger    zerolog.Logger
	metrics   Metrics
}

// NewBillingService creates a new billing service. m may be nil.
func NewBillingService(
	snapshots ports.SnapshotStore,
	source ports.UsageSource,
	clock ports.Clock,
	logger zerolog.Logger,
	m Metrics,
) *BillingService {
	if m == nil {
		m = nopMetrics{}
	}
	return &BillingService{
		snapshots: snapshots,
		source:    source,
		clock:     clock,
		logger:    logger.With().Str("service", "billing").Logger(),
		metrics:   m,
	}
}

// Periods returns every billing period, oldest first.
func (s *BillingService) Periods(ctx context.Context) ([]period.Period, error) {
	periods, _, err := s.load(ctx)
	s.metrics.ObserveQuery("periods", outcome(err))
	return periods, err
}

// PeriodSummary ranks all users by their cost within the period.
// selfID may be empty for anonymous callers.
func (s *BillingService) PeriodSummary(ctx context.Context, index int, selfID string) (Summary, error) {
	sum, err := s.summary(ctx, index, selfID)
	s.metrics.ObserveQuery("summary", outcome(err))
	return sum, err
}

// UserDetail returns selfID's entry in the period.
func (s *BillingService) UserDetail(ctx context.Context, index int, selfID string) (UserDetail, error) {
	detail, err := s.userDetail(ctx, index, selfID)
	s.metrics.ObserveQuery("user_detail", outcome(err))
	return detail, err
}

func (s *BillingService) userDetail(ctx context.Context, index int, selfID string) (UserDetail, error) {
	if selfID == "" {
		return UserDetail{}, fmt.Errorf("user detail without identity: %w", ErrNotFound)
	}

	sum, err := s.summary(ctx, index, selfID)
	if err != nil {
		return UserDetail{}, err
	}

	entry, rank, ok := billing.FindMe(sum.Ranking)
	if !ok {
		return UserDetail{}, fmt.Errorf("user %s in period %d: %w", selfID, index, ErrNotFound)
	}

	return UserDetail{
		Period:    sum.Period,
		Entry:     entry,
		TotalCost: sum.Totals.TotalCost,
		Rank:      rank,
	}, nil
}

func (s *BillingService) summary(ctx context.Context, index int, selfID string) (Summary, error) {
	periods, snaps, err := s.load(ctx)
	if err != nil {
		return Summary{}, err
	}

	p, ok := period.Find(periods, index)
	if !ok {
		return Summary{}, fmt.Errorf("period %d: %w", index, ErrNotFound)
	}

	start, end, err := s.resolve(ctx, p, snaps)
	if err != nil {
		return Summary{}, err
	}

	res := billing.ComputeDelta(start, end, selfID)

	if p.EndAt == nil {
		now := s.clock.Now()
		p.EndAt = &now
	}

	s.logger.Debug().
		Int("period", p.Index).
		Bool("current", p.IsCurrent).
		Int("users", len(res.Ranking)).
		Float64("total_cost", res.TotalCost).
		Msg("period summary computed")

	return Summary{
		Period:  p,
		Ranking: res.Ranking,
		Totals: Totals{
			TotalCost: res.TotalCost,
			UserCount: billing.CountPositive(res.Ranking),
		},
	}, nil
}

func (s *BillingService) load(ctx context.Context) ([]period.Period, map[int64]snapshot.Snapshot, error) {
	list, err := s.snapshots.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list snapshots: %w", err)
	}

	byID := make(map[int64]snapshot.Snapshot, len(list))
	for _, snap := range list {
		byID[snap.ID] = snap
	}
	return period.Derive(list), byID, nil
}

// resolve picks the start and end datasets for p.
// Only an open-ended period reads the live usage source.
func (s *BillingService) resolve(ctx context.Context, p period.Period, snaps map[int64]snapshot.Snapshot) (start, end []usage.Record, err error) {
	if p.StartSnapshotID != nil {
		start, err = s.payload(ctx, *p.StartSnapshotID, snaps)
		if err != nil {
			return nil, nil, err
		}
	}

	if p.EndSnapshotID != nil {
		end, err = s.payload(ctx, *p.EndSnapshotID, snaps)
		if err != nil {
			return nil, nil, err
		}
		return start, end, nil
	}

	end, err = s.live(ctx)
	if err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func (s *BillingService) payload(ctx context.Context, id int64, snaps map[int64]snapshot.Snapshot) ([]usage.Record, error) {
	snap, ok := snaps[id]
	if !ok {
		var err error
		snap, err = s.snapshots.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load snapshot %d: %w", id, err)
		}
	}
	return snap.Records()
}

func (s *BillingService) live(ctx context.Context) ([]usage.Record, error) {
	started := time.Now()
	records, err := s.source.CurrentUsage(ctx)
	s.metrics.ObserveFetch(time.Since(started), err)
	if err != nil {
		return nil, fmt.Errorf("fetch live usage: %w", err)
	}
	return records, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
