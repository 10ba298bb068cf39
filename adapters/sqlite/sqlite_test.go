package sqlite_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/artpar/costboard/adapters/clock"
	"github.com/artpar/costboard/adapters/sqlite"
	"github.com/artpar/costboard/domain/snapshot"
	"github.com/artpar/costboard/ports"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*sqlite.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "costboard-test-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := sqlite.Open(path)
	if err != nil {
		os.Remove(path)
		t.Fatalf("open database: %v", err)
	}

	if err := db.Migrate(context.Background()); err != nil {
		db.Close()
		os.Remove(path)
		t.Fatalf("migrate: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(path)
		os.Remove(path + "-wal")
		os.Remove(path + "-shm")
	}

	return db, cleanup
}

func TestMigrate_Idempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check: %v", err)
	}

	v, err := db.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != 1 {
		t.Errorf("schema version = %d, want 1", v)
	}
}

func TestOpen_MemoryDatabase(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if v, err := db.SchemaVersion(context.Background()); err != nil || v != 0 {
		t.Errorf("fresh schema version = %d, %v; want 0", v, err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := sqlite.NewSnapshotStore(db, clock.NewFake(baseTime))
	if _, err := store.Append(context.Background(), []byte("[]"), "UTC"); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestSnapshotStore_AppendAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	clk := clock.NewFake(baseTime)
	store := sqlite.NewSnapshotStore(db, clk)
	ctx := context.Background()

	payload := []byte(`[{"id":"u1","name":"alice","usage":{"total":{"cost":3.5}}}]`)
	id, err := store.Append(ctx, payload, "Asia/Shanghai")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d, want positive", id)
	}

	got, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != id {
		t.Errorf("ID = %d, want %d", got.ID, id)
	}
	if !got.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
	}
	if got.Timezone != "Asia/Shanghai" {
		t.Errorf("Timezone = %q", got.Timezone)
	}
	if string(got.Payload) != string(payload) {
		t.Errorf("Payload = %s", got.Payload)
	}

	records, err := got.Records()
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 1 || records[0].Totals().Cost != 3.5 {
		t.Errorf("records = %+v", records)
	}
}

func TestSnapshotStore_DefaultTimezone(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewSnapshotStore(db, clock.NewFake(baseTime))
	id, err := store.Append(context.Background(), []byte("[]"), "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	got, _ := store.GetByID(context.Background(), id)
	if got.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", got.Timezone)
	}
}

func TestSnapshotStore_ListOrdered(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	clk := clock.NewFake(baseTime)
	store := sqlite.NewSnapshotStore(db, clk)
	ctx := context.Background()

	// Sub-second and whole-second timestamps must still sort chronologically.
	steps := []time.Duration{0, 500 * time.Millisecond, 500 * time.Millisecond, 24 * time.Hour}
	var ids []int64
	for _, d := range steps {
		clk.Advance(d)
		id, err := store.Append(ctx, []byte("[]"), "UTC")
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, id)
	}

	snaps, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != len(ids) {
		t.Fatalf("len = %d, want %d", len(snaps), len(ids))
	}
	for i, s := range snaps {
		if s.ID != ids[i] {
			t.Errorf("snaps[%d].ID = %d, want %d", i, s.ID, ids[i])
		}
		if i > 0 && s.CreatedAt.Before(snaps[i-1].CreatedAt) {
			t.Errorf("snaps[%d] out of order", i)
		}
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != ids[len(ids)-1] {
		t.Errorf("Latest.ID = %d, want %d", latest.ID, ids[len(ids)-1])
	}

	n, err := store.Count(ctx)
	if err != nil || n != len(ids) {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestSnapshotStore_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := sqlite.NewSnapshotStore(db, clock.NewFake(baseTime))
	ctx := context.Background()

	if _, err := store.GetByID(ctx, 42); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("GetByID err = %v, want ErrNotFound", err)
	}
	if _, err := store.Latest(ctx); !errors.Is(err, ports.ErrNotFound) {
		t.Errorf("Latest err = %v, want ErrNotFound", err)
	}

	snaps, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("len = %d, want 0", len(snaps))
	}
}

func TestSnapshotStore_DoubleEncodedRowsDecode(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// Older writers stored the array as a JSON string.
	_, err := db.Exec(`INSERT INTO snapshots (created_at, timezone, payload) VALUES (?, ?, ?)`,
		"2023-12-01T00:00:00Z", "UTC", `"[{\"id\":\"u1\",\"usage\":{\"total\":{\"cost\":1}}}]"`)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	store := sqlite.NewSnapshotStore(db, clock.NewFake(baseTime))
	snaps, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("len = %d, want 1", len(snaps))
	}

	records, err := snapshot.DecodePayload(snaps[0].Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].ID != "u1" {
		t.Errorf("records = %+v", records)
	}
}

func TestSnapshotStore_ImportedRFC3339RowsOrderChronologically(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	// Imported at 12:00:00 exactly; lexically it sorts after the native
	// 12:00:00.500 row below.
	res, err := db.Exec(`INSERT INTO snapshots (created_at, timezone, payload) VALUES (?, ?, ?)`,
		"2024-01-15T12:00:00Z", "UTC", "[]")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	imported, _ := res.LastInsertId()

	clk := clock.NewFake(baseTime.Add(500 * time.Millisecond))
	store := sqlite.NewSnapshotStore(db, clk)
	native, err := store.Append(context.Background(), []byte("[]"), "UTC")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	snaps, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(snaps) != 2 || snaps[0].ID != imported || snaps[1].ID != native {
		t.Fatalf("order = %+v, want imported %d then native %d", snaps, imported, native)
	}

	latest, err := store.Latest(context.Background())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != native {
		t.Errorf("Latest.ID = %d, want %d", latest.ID, native)
	}
}
