package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/artpar/costboard/domain/snapshot"
	"github.com/artpar/costboard/ports"
	"github.com/rs/zerolog"
)

// SnapshotService closes billing periods by persisting live usage.
type SnapshotService struct {
	snapshots ports.SnapshotStore
	source    ports.UsageSource
	ids       ports.IDGenerator
	logger    zerolog.Logger
	metrics   Metrics
	timezone  string
	after     func(context.Context) error

	mu       sync.Mutex
	closing  sync.Mutex
	interval time.Duration
	active   bool // Start was called and Stop has not been
	stopCh   chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// SnapshotServiceConfig contains configuration for SnapshotService.
type SnapshotServiceConfig struct {
	Timezone string        // Recorded alongside each snapshot
	Interval time.Duration // Zero disables the background loop

	// AfterClose runs after each stored snapshot. A failure is logged only.
	AfterClose func(context.Context) error
}

// NewSnapshotService creates a new snapshot service. m may be nil.
func NewSnapshotService(
	snapshots ports.SnapshotStore,
	source ports.UsageSource,
	ids ports.IDGenerator,
	logger zerolog.Logger,
	m Metrics,
	cfg SnapshotServiceConfig,
) *SnapshotService {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &SnapshotService{
		snapshots: snapshots,
		source:    source,
		ids:       ids,
		logger:    logger.With().Str("service", "snapshot").Logger(),
		metrics:   m,
		timezone:  cfg.Timezone,
		interval:  cfg.Interval,
		after:     cfg.AfterClose,
	}
}

// Close takes a snapshot of live usage, ending the current period.
// Concurrent calls are serialized so each produces its own snapshot.
func (s *SnapshotService) Close(ctx context.Context) (snapshot.Snapshot, error) {
	s.closing.Lock()
	defer s.closing.Unlock()

	runID := s.ids.New()
	log := s.logger.With().Str("run_id", runID).Logger()

	started := time.Now()
	records, err := s.source.CurrentUsage(ctx)
	s.metrics.ObserveFetch(time.Since(started), err)
	if err != nil {
		s.metrics.SnapshotFailed()
		log.Error().Err(err).Msg("snapshot aborted: usage fetch failed")
		return snapshot.Snapshot{}, fmt.Errorf("fetch live usage: %w", err)
	}

	payload, err := snapshot.EncodePayload(records)
	if err != nil {
		s.metrics.SnapshotFailed()
		return snapshot.Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}

	id, err := s.snapshots.Append(ctx, payload, s.timezone)
	if err != nil {
		s.metrics.SnapshotFailed()
		log.Error().Err(err).Msg("snapshot aborted: append failed")
		return snapshot.Snapshot{}, fmt.Errorf("append snapshot: %w", err)
	}

	snap, err := s.snapshots.GetByID(ctx, id)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("read back snapshot %d: %w", id, err)
	}

	s.metrics.SnapshotStored(snap.CreatedAt, len(records))
	log.Info().
		Int64("snapshot_id", snap.ID).
		Int("users", len(records)).
		Time("created_at", snap.CreatedAt).
		Msg("period closed")

	if s.after != nil {
		if err := s.after(ctx); err != nil {
			log.Warn().Err(err).Msg("post-close hook failed")
		}
	}

	return snap, nil
}

// List returns all snapshots, oldest first.
func (s *SnapshotService) List(ctx context.Context) ([]snapshot.Snapshot, error) {
	snaps, err := s.snapshots.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snaps, nil
}

// Start enables scheduling. The loop runs while the interval is positive;
// SetInterval may enable it later.
func (s *SnapshotService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = true
	s.startLocked()
}

func (s *SnapshotService) startLocked() {
	if s.stopCh != nil || s.interval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopCh = make(chan struct{})
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx, s.interval, s.stopCh)

	s.logger.Info().Dur("interval", s.interval).Msg("scheduled snapshots enabled")
}

// Stop disables scheduling, cancels an in-flight scheduled snapshot and
// waits for the loop to exit.
func (s *SnapshotService) Stop() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
	s.halt()
}

func (s *SnapshotService) halt() {
	s.mu.Lock()
	stopCh, cancel := s.stopCh, s.cancel
	s.stopCh, s.cancel = nil, nil
	s.mu.Unlock()

	if stopCh == nil {
		return
	}
	cancel()
	close(stopCh)
	s.wg.Wait()
}

// SetInterval changes the loop interval. The loop is restarted only when
// scheduling is enabled; before Start the new value just waits.
func (s *SnapshotService) SetInterval(d time.Duration) {
	s.mu.Lock()
	changed := s.interval != d
	s.interval = d
	active := s.active
	s.mu.Unlock()

	if !changed || !active {
		return
	}
	s.halt()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.startLocked()
	}
}

func (s *SnapshotService) loop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
			if _, err := s.Close(runCtx); err != nil {
				s.logger.Error().Err(err).Msg("scheduled snapshot failed")
			}
			cancel()
		}
	}
}
