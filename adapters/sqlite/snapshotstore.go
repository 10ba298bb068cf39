package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/artpar/costboard/domain/snapshot"
	"github.com/artpar/costboard/ports"
)

// Fixed-width so that lexical order in SQLite matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SnapshotStore implements ports.SnapshotStore using SQLite.
type SnapshotStore struct {
	db    *DB
	clock ports.Clock
}

// NewSnapshotStore creates a new SQLite snapshot store.
func NewSnapshotStore(db *DB, clock ports.Clock) *SnapshotStore {
	return &SnapshotStore{db: db, clock: clock}
}

// Append stores a new snapshot stamped with the current time.
func (s *SnapshotStore) Append(ctx context.Context, payload []byte, timezone string) (int64, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	createdAt := s.clock.Now().UTC().Format(timeLayout)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (created_at, timezone, payload)
		VALUES (?, ?, ?)
	`, createdAt, timezone, string(payload))
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("snapshot id: %w", err)
	}
	return id, nil
}

// List returns all snapshots, oldest first. Ordering is settled on the parsed
// timestamps since imported RFC3339 rows do not sort lexically against
// timeLayout rows.
func (s *SnapshotStore) List(ctx context.Context) ([]snapshot.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, timezone, payload
		FROM snapshots
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []snapshot.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	sort.SliceStable(snaps, func(i, j int) bool {
		if !snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
		}
		return snaps[i].ID < snaps[j].ID
	})
	return snaps, nil
}

// GetByID retrieves a snapshot by ID.
func (s *SnapshotStore) GetByID(ctx context.Context, id int64) (snapshot.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, timezone, payload
		FROM snapshots
		WHERE id = ?
	`, id)
	return scanSnapshot(row)
}

// Latest returns the most recent snapshot, in List order.
func (s *SnapshotStore) Latest(ctx context.Context) (snapshot.Snapshot, error) {
	snaps, err := s.List(ctx)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	if len(snaps) == 0 {
		return snapshot.Snapshot{}, ports.ErrNotFound
	}
	return snaps[len(snaps)-1], nil
}

// Count returns the number of stored snapshots.
func (s *SnapshotStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (snapshot.Snapshot, error) {
	var (
		snap      snapshot.Snapshot
		createdAt string
		payload   string
	)
	err := row.Scan(&snap.ID, &createdAt, &snap.Timezone, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, ports.ErrNotFound
	}
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		// Only rows imported from older stores carry plain RFC3339.
		snap.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
	}
	snap.CreatedAt = snap.CreatedAt.UTC()
	snap.Payload = []byte(payload)

	return snap, nil
}

// Ensure interface compliance.
var _ ports.SnapshotStore = (*SnapshotStore)(nil)
