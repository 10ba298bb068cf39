// Package ports holds the interfaces the app layer depends on.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/costboard/domain/snapshot"
	"github.com/artpar/costboard/domain/usage"
)

// ErrNotFound reports a missing snapshot or an unknown credential.
var ErrNotFound = errors.New("not found")

// Clock is the time source for snapshot stamps and period bounds.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers for snapshot jobs.
type IDGenerator interface {
	New() string
}

// Hasher checks presented secrets against stored hashes.
type Hasher interface {
	Hash(plaintext string) ([]byte, error)
	Compare(hash []byte, plaintext string) bool
}

// SnapshotStore is the append-only log of usage snapshots.
//
// List and Latest order by creation time, then by id.
type SnapshotStore interface {
	Append(ctx context.Context, payload []byte, timezone string) (int64, error)
	List(ctx context.Context) ([]snapshot.Snapshot, error)
	// GetByID and Latest return ErrNotFound when nothing matches.
	GetByID(ctx context.Context, id int64) (snapshot.Snapshot, error)
	Latest(ctx context.Context) (snapshot.Snapshot, error)
}

// UsageSource reports live cumulative usage for every user.
// Retries, if any, happen inside the implementation.
type UsageSource interface {
	CurrentUsage(ctx context.Context) ([]usage.Record, error)
}

// IdentityResolver maps an API key to a user id, or ErrNotFound.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}
