package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/costboard/adapters/clock"
	"github.com/artpar/costboard/adapters/memory"
	"github.com/artpar/costboard/domain/snapshot"
	"github.com/artpar/costboard/domain/usage"
	"github.com/artpar/costboard/ports"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

// SnapshotStore tests

func TestSnapshotStore_Append(t *testing.T) {
	clk := clock.NewFake(baseTime)
	store := memory.NewSnapshotStore(clk)
	ctx := context.Background()

	id1, err := store.Append(ctx, []byte("[]"), "")
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	clk.Advance(time.Hour)
	id2, _ := store.Append(ctx, []byte("[]"), "Europe/Berlin")

	if id2 <= id1 {
		t.Errorf("ids not increasing: %d, %d", id1, id2)
	}

	got, err := store.GetByID(ctx, id1)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", got.Timezone)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if latest.ID != id2 {
		t.Errorf("Latest.ID = %d, want %d", latest.ID, id2)
	}
}

func TestSnapshotStore_PayloadCopied(t *testing.T) {
	store := memory.NewSnapshotStore(clock.NewFake(baseTime))
	ctx := context.Background()

	payload := []byte("[]")
	id, _ := store.Append(ctx, payload, "UTC")
	payload[0] = 'x'

	got, _ := store.GetByID(ctx, id)
	if string(got.Payload) != "[]" {
		t.Errorf("Payload = %s, want []", got.Payload)
	}
}

func TestSnapshotStore_ListOrdersSeeded(t *testing.T) {
	store := memory.NewSnapshotStore(clock.NewFake(baseTime))

	store.Seed(snapshot.Snapshot{ID: 7, CreatedAt: baseTime.Add(2 * time.Hour)})
	store.Seed(snapshot.Snapshot{ID: 3, CreatedAt: baseTime})
	store.Seed(snapshot.Snapshot{ID: 5, CreatedAt: baseTime})

	snaps, _ := store.List(context.Background())
	want := []int64{3, 5, 7}
	for i, id := range want {
		if snaps[i].ID != id {
			t.Errorf("snaps[%d].ID = %d, want %d", i, snaps[i].ID, id)
		}
	}

	id, _ := store.Append(context.Background(), []byte("[]"), "UTC")
	if id != 8 {
		t.Errorf("next id = %d, want 8", id)
	}
}

func TestSnapshotStore_NotFound(t *testing.T) {
	store := memory.NewSnapshotStore(clock.NewFake(baseTime))
	ctx := context.Background()

	if _, err := store.GetByID(ctx, 1); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetByID err = %v, want ErrNotFound", err)
	}
	if _, err := store.Latest(ctx); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Latest err = %v, want ErrNotFound", err)
	}
}

// UsageSource tests

func TestUsageSource(t *testing.T) {
	src := memory.NewUsageSource(usage.NewRecord("u1", "alice", usage.Totals{Cost: 1}))
	ctx := context.Background()

	got, err := src.CurrentUsage(ctx)
	if err != nil {
		t.Fatalf("CurrentUsage failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "u1" {
		t.Errorf("records = %+v", got)
	}

	boom := errors.New("upstream down")
	src.SetErr(boom)
	if _, err := src.CurrentUsage(ctx); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}

	src.SetErr(nil)
	src.Set()
	got, _ = src.CurrentUsage(ctx)
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}

	if src.Calls() != 3 {
		t.Errorf("Calls = %d, want 3", src.Calls())
	}
}
