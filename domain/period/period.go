// Package period derives billing periods from an ordered snapshot list.
// All functions are pure - no side effects.
package period

import (
	"time"

	"github.com/artpar/costboard/domain/snapshot"
)

// Period is the span between two consecutive snapshots (value type).
//
// Period 0 starts at the beginning of time. The last period is the current
// one: it starts at the latest snapshot and has no end.
type Period struct {
	Index           int
	StartSnapshotID *int64
	EndSnapshotID   *int64
	StartAt         *time.Time
	EndAt           *time.Time
	IsCurrent       bool
}

// IsFirst reports whether p has no start boundary.
func (p Period) IsFirst() bool {
	return p.Index == 0
}

// Derive builds the period list for snapshots ordered by creation time.
// N snapshots produce N+1 periods; only the last one is current.
func Derive(snapshots []snapshot.Snapshot) []Period {
	n := len(snapshots)
	if n == 0 {
		return []Period{{Index: 0, IsCurrent: true}}
	}

	periods := make([]Period, 0, n+1)

	periods = append(periods, Period{
		Index:         0,
		EndSnapshotID: idPtr(snapshots[0].ID),
		EndAt:         timePtr(snapshots[0].CreatedAt),
	})

	for i := 1; i < n; i++ {
		periods = append(periods, Period{
			Index:           i,
			StartSnapshotID: idPtr(snapshots[i-1].ID),
			EndSnapshotID:   idPtr(snapshots[i].ID),
			StartAt:         timePtr(snapshots[i-1].CreatedAt),
			EndAt:           timePtr(snapshots[i].CreatedAt),
		})
	}

	last := snapshots[n-1]
	periods = append(periods, Period{
		Index:           n,
		StartSnapshotID: idPtr(last.ID),
		StartAt:         timePtr(last.CreatedAt),
		IsCurrent:       true,
	})

	return periods
}

// Find returns the period with the given index.
func Find(periods []Period, index int) (Period, bool) {
	for _, p := range periods {
		if p.Index == index {
			return p, true
		}
	}
	return Period{}, false
}

// Current returns the open-ended period.
func Current(periods []Period) (Period, bool) {
	for _, p := range periods {
		if p.IsCurrent {
			return p, true
		}
	}
	return Period{}, false
}

func idPtr(id int64) *int64 {
	return &id
}

func timePtr(t time.Time) *time.Time {
	return &t
}
