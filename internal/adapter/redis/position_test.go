package redisadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/geo"
	"github.com/Temutjin2k/dispatch-core/pkg/redis"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

func newUUID(t *testing.T) uuid.UUID {
	t.Helper()
	id, err := uuid.New()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	return id
}

func record(t *testing.T, driverID uuid.UUID, lat, lng float64) models.PositionRecord {
	t.Helper()
	cell, err := geo.CellOf(lat, lng)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}
	return models.PositionRecord{
		DriverID:    driverID,
		UserID:      driverID,
		Location:    models.GeoPoint{Lng: lng, Lat: lat},
		Cell:        cell,
		LastSeenAt:  time.Now().UTC(),
		IsOnline:    true,
		IsAvailable: true,
		Connected:   true,
	}
}

func TestPositionStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore(redis.NewInMem(), 5*time.Minute)

	driverID := newUUID(t)
	rec := record(t, driverID, 43.238949, 76.889709)

	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.Get(ctx, driverID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DriverID != driverID || got.Cell != rec.Cell {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	members, err := store.MembersOfCells(ctx, []geo.Cell{rec.Cell})
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0] != driverID {
		t.Fatalf("cell membership: got %v, want [%v]", members, driverID)
	}

	dirty, err := store.ActiveDirty(ctx)
	if err != nil {
		t.Fatalf("active dirty: %v", err)
	}
	if len(dirty) != 1 || dirty[0] != driverID {
		t.Fatalf("upsert must mark the driver dirty: %v", dirty)
	}
}

func TestPositionStore_GetMissing(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore(redis.NewInMem(), 5*time.Minute)

	if _, err := store.Get(ctx, newUUID(t)); !errors.Is(err, types.ErrDriverNotFound) {
		t.Fatalf("missing record: got %v, want ErrDriverNotFound", err)
	}
}

func TestPositionStore_CellTransition(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore(redis.NewInMem(), 5*time.Minute)

	driverID := newUUID(t)
	recA := record(t, driverID, 43.238949, 76.889709)
	// ~2km north lands in a different res-9 cell.
	recB := record(t, driverID, 43.256949, 76.889709)
	if recA.Cell == recB.Cell {
		t.Fatal("test points must map to different cells")
	}

	if err := store.Upsert(ctx, recA); err != nil {
		t.Fatalf("upsert A: %v", err)
	}
	if err := store.Upsert(ctx, recB); err != nil {
		t.Fatalf("upsert B: %v", err)
	}

	// The driver must appear only in the new cell.
	oldMembers, _ := store.MembersOfCells(ctx, []geo.Cell{recA.Cell})
	if len(oldMembers) != 0 {
		t.Fatalf("stale membership in old cell: %v", oldMembers)
	}
	newMembers, _ := store.MembersOfCells(ctx, []geo.Cell{recB.Cell})
	if len(newMembers) != 1 || newMembers[0] != driverID {
		t.Fatalf("new cell membership: %v", newMembers)
	}
}

func TestPositionStore_TTLExpiryRemovesFromIndex(t *testing.T) {
	ctx := context.Background()
	mem := redis.NewInMem()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })

	store := NewPositionStore(mem, time.Minute)

	driverID := newUUID(t)
	rec := record(t, driverID, 43.238949, 76.889709)
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now = now.Add(2 * time.Minute)

	if _, err := store.Get(ctx, driverID); !errors.Is(err, types.ErrDriverNotFound) {
		t.Fatalf("expired record: got %v, want ErrDriverNotFound", err)
	}
	members, _ := store.MembersOfCells(ctx, []geo.Cell{rec.Cell})
	if len(members) != 0 {
		t.Fatalf("expired driver still in cell set: %v", members)
	}
}

func TestPositionStore_SetConnectionKeepsTTL(t *testing.T) {
	ctx := context.Background()
	mem := redis.NewInMem()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })

	store := NewPositionStore(mem, time.Minute)

	driverID := newUUID(t)
	if err := store.Upsert(ctx, record(t, driverID, 43.238949, 76.889709)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	now = now.Add(50 * time.Second)
	if err := store.SetConnection(ctx, driverID, false); err != nil {
		t.Fatalf("set connection: %v", err)
	}

	got, err := store.Get(ctx, driverID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Connected {
		t.Fatal("connection flag not cleared")
	}

	// A connection flip must not extend liveness: 20s later the
	// original TTL has elapsed and the record is gone.
	now = now.Add(20 * time.Second)
	if _, err := store.Get(ctx, driverID); !errors.Is(err, types.ErrDriverNotFound) {
		t.Fatalf("record must expire on the original TTL: got %v", err)
	}
}

func TestPositionStore_ClearOnDisconnectPreservesPosition(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore(redis.NewInMem(), 5*time.Minute)

	driverID := newUUID(t)
	rec := record(t, driverID, 43.238949, 76.889709)
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := store.ClearOnDisconnect(ctx, driverID); err != nil {
		t.Fatalf("clear: %v", err)
	}

	got, err := store.Get(ctx, driverID)
	if err != nil {
		t.Fatalf("position must survive a disconnect: %v", err)
	}
	if got.Connected {
		t.Fatal("connected flag must be cleared")
	}
	members, _ := store.MembersOfCells(ctx, []geo.Cell{rec.Cell})
	if len(members) != 1 {
		t.Fatalf("cell membership must survive a disconnect: %v", members)
	}
}

func TestPositionStore_ClearOnDisconnectAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore(redis.NewInMem(), 5*time.Minute)

	// Nothing to clear is not an error.
	if err := store.ClearOnDisconnect(ctx, newUUID(t)); err != nil {
		t.Fatalf("clear of absent record: %v", err)
	}
}

func TestPositionStore_DirtySnapshotAndMerge(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore(redis.NewInMem(), 5*time.Minute)

	d1 := newUUID(t)
	d2 := newUUID(t)
	if err := store.Upsert(ctx, record(t, d1, 43.238949, 76.889709)); err != nil {
		t.Fatalf("upsert d1: %v", err)
	}
	if err := store.Upsert(ctx, record(t, d2, 43.256949, 76.889709)); err != nil {
		t.Fatalf("upsert d2: %v", err)
	}

	snap, err := store.SnapshotDirty(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap) != 2 {
		t.Fatalf("snapshot size: got %d, want 2", len(snap))
	}

	// Active is now empty; a concurrent update lands in the new set.
	active, _ := store.ActiveDirty(ctx)
	if len(active) != 0 {
		t.Fatalf("active must be empty after snapshot: %v", active)
	}
	d3 := newUUID(t)
	if err := store.Upsert(ctx, record(t, d3, 43.20, 76.90)); err != nil {
		t.Fatalf("upsert d3: %v", err)
	}

	// d1 failed to persist; it goes back to active alongside d3.
	if err := store.MergeBack(ctx, []uuid.UUID{d1}); err != nil {
		t.Fatalf("merge back: %v", err)
	}
	active, _ = store.ActiveDirty(ctx)
	if len(active) != 2 {
		t.Fatalf("active after merge: got %v, want d1+d3", active)
	}
	if proc, _ := store.Processing(ctx); len(proc) != 0 {
		t.Fatalf("processing must be cleared: %v", proc)
	}
}

func TestPositionStore_SnapshotEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore(redis.NewInMem(), 5*time.Minute)

	snap, err := store.SnapshotDirty(ctx)
	if err != nil {
		t.Fatalf("empty snapshot: %v", err)
	}
	if len(snap) != 0 {
		t.Fatalf("empty snapshot: got %v", snap)
	}
}

func TestPositionStore_RecoverProcessing(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore(redis.NewInMem(), 5*time.Minute)

	d1 := newUUID(t)
	if err := store.Upsert(ctx, record(t, d1, 43.238949, 76.889709)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := store.SnapshotDirty(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// Simulates a restart with a leftover processing set.
	if err := store.RecoverProcessing(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}
	active, _ := store.ActiveDirty(ctx)
	if len(active) != 1 || active[0] != d1 {
		t.Fatalf("leftover must return to active: %v", active)
	}
	if proc, _ := store.Processing(ctx); len(proc) != 0 {
		t.Fatalf("processing must be empty after recovery: %v", proc)
	}
}

func TestPositionStore_UpsertSameCellTwice(t *testing.T) {
	ctx := context.Background()
	store := NewPositionStore(redis.NewInMem(), 5*time.Minute)

	driverID := newUUID(t)
	rec := record(t, driverID, 43.238949, 76.889709)

	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert 1: %v", err)
	}
	rec.LastSeenAt = rec.LastSeenAt.Add(time.Second)
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert 2: %v", err)
	}

	members, _ := store.MembersOfCells(ctx, []geo.Cell{rec.Cell})
	if len(members) != 1 {
		t.Fatalf("membership must stay a set: %v", members)
	}
	dirty, _ := store.ActiveDirty(ctx)
	if len(dirty) != 1 {
		t.Fatalf("dirty set must dedupe: %v", dirty)
	}
}
