// Package redisadapter holds the ephemeral side of the dispatch core:
// driver position records, cell membership sets and the dirty sets the
// sync worker migrates, all with TTL attached in the same write.
package redisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/geo"
	"github.com/Temutjin2k/dispatch-core/pkg/redis"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

const (
	posKeyPrefix  = "dispatch:driver:pos:"
	cellKeyPrefix = "dispatch:cell:"
	curCellPrefix = "dispatch:driver:cell:"

	activeDirtyKey = "dispatch:dirty:active"
	processingKey  = "dispatch:dirty:processing"
)

// PositionStore keeps the short-TTL spatial index of drivers.
type PositionStore struct {
	client redis.Client
	ttl    time.Duration
}

func NewPositionStore(client redis.Client, positionTTL time.Duration) *PositionStore {
	return &PositionStore{
		client: client,
		ttl:    positionTTL,
	}
}

func posKey(id uuid.UUID) string      { return posKeyPrefix + id.String() }
func curCellKey(id uuid.UUID) string  { return curCellPrefix + id.String() }
func cellKey(cell geo.Cell) string    { return cellKeyPrefix + cell.String() }
func cellKeyRaw(cellHex string) string { return cellKeyPrefix + cellHex }

// Upsert writes the position record and moves the driver's cell
// membership when the cell changed. The transient double membership
// between SRem and SAdd is bounded by one store round-trip and is
// tolerated by the query side. Every upsert marks the driver dirty.
func (s *PositionStore) Upsert(ctx context.Context, rec models.PositionRecord) error {
	const op = "PositionStore.Upsert"

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	// Move cell membership before the record write, so a reader that
	// sees the new record never sees a missing membership.
	prev, err := s.client.Get(ctx, curCellKey(rec.DriverID))
	if err != nil && !errors.Is(err, redis.ErrKeyNotFound) {
		return transient(op, err)
	}
	prevCell := string(prev)
	newCell := rec.Cell.String()

	if prevCell != "" && prevCell != newCell {
		if err := s.client.SRem(ctx, cellKeyRaw(prevCell), rec.DriverID.String()); err != nil {
			return transient(op, err)
		}
	}

	if err := s.client.SAdd(ctx, cellKey(rec.Cell), rec.DriverID.String()); err != nil {
		return transient(op, err)
	}
	if err := s.client.Expire(ctx, cellKey(rec.Cell), s.ttl); err != nil {
		return transient(op, err)
	}
	if err := s.client.Set(ctx, curCellKey(rec.DriverID), []byte(newCell), s.ttl); err != nil {
		return transient(op, err)
	}

	if err := s.client.Set(ctx, posKey(rec.DriverID), data, s.ttl); err != nil {
		return transient(op, err)
	}

	// Idempotent add; the sync worker drains this set.
	if err := s.client.SAdd(ctx, activeDirtyKey, rec.DriverID.String()); err != nil {
		return transient(op, err)
	}

	return nil
}

// Get returns the position record, or types.ErrDriverNotFound when the
// record is absent or expired.
func (s *PositionStore) Get(ctx context.Context, driverID uuid.UUID) (*models.PositionRecord, error) {
	const op = "PositionStore.Get"

	data, err := s.client.Get(ctx, posKey(driverID))
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return nil, types.ErrDriverNotFound
		}
		return nil, transient(op, err)
	}

	var rec models.PositionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &rec, nil
}

// MembersOfCells returns the union of current members of the given cells.
func (s *PositionStore) MembersOfCells(ctx context.Context, cells []geo.Cell) ([]uuid.UUID, error) {
	const op = "PositionStore.MembersOfCells"

	if len(cells) == 0 {
		return nil, nil
	}

	keys := make([]string, len(cells))
	for i, c := range cells {
		keys[i] = cellKey(c)
	}

	members, err := s.client.SUnion(ctx, keys...)
	if err != nil {
		return nil, transient(op, err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SetConnection flips only the connection flag. The write keeps the
// record's TTL floor: a connection change is not a liveness signal.
func (s *PositionStore) SetConnection(ctx context.Context, driverID uuid.UUID, connected bool) error {
	return s.mutate(ctx, "PositionStore.SetConnection", driverID, func(rec *models.PositionRecord) {
		rec.Connected = connected
	})
}

// SetAvailability flips the availability flag without touching the TTL.
func (s *PositionStore) SetAvailability(ctx context.Context, driverID uuid.UUID, available bool) error {
	return s.mutate(ctx, "PositionStore.SetAvailability", driverID, func(rec *models.PositionRecord) {
		rec.IsAvailable = available
	})
}

// ClearOnDisconnect drops the connection flag but preserves the
// position, so a driver that reconnects inside the TTL keeps its spot
// in the index.
func (s *PositionStore) ClearOnDisconnect(ctx context.Context, driverID uuid.UUID) error {
	err := s.SetConnection(ctx, driverID, false)
	if errors.Is(err, types.ErrDriverNotFound) {
		// Record already expired; nothing to preserve.
		return nil
	}
	return err
}

func (s *PositionStore) mutate(ctx context.Context, op string, driverID uuid.UUID, fn func(*models.PositionRecord)) error {
	rec, err := s.Get(ctx, driverID)
	if err != nil {
		return err
	}

	fn(rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, posKey(driverID), data, redis.KeepTTL); err != nil {
		return transient(op, err)
	}
	return nil
}

// --- dirty sets (sync worker) ---

// SnapshotDirty atomically moves the active set into processing and
// returns its members. Concurrent upserts land in a fresh active set.
// An empty active set yields an empty snapshot.
func (s *PositionStore) SnapshotDirty(ctx context.Context) ([]uuid.UUID, error) {
	const op = "PositionStore.SnapshotDirty"

	if err := s.client.Rename(ctx, activeDirtyKey, processingKey); err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, transient(op, err)
	}
	return s.Processing(ctx)
}

// Processing lists the driver ids currently in the processing set.
func (s *PositionStore) Processing(ctx context.Context) ([]uuid.UUID, error) {
	const op = "PositionStore.Processing"

	members, err := s.client.SMembers(ctx, processingKey)
	if err != nil {
		return nil, transient(op, err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ClearProcessing removes the processing set after an all-success run.
func (s *PositionStore) ClearProcessing(ctx context.Context) error {
	const op = "PositionStore.ClearProcessing"
	if err := s.client.Del(ctx, processingKey); err != nil {
		return transient(op, err)
	}
	return nil
}

// MergeBack returns failed ids to the active set and drops processing.
// SAdd is a no-op for ids whose newer update already re-entered active,
// which is exactly the "newer value wins" policy: the position record
// itself always holds the latest value.
func (s *PositionStore) MergeBack(ctx context.Context, failed []uuid.UUID) error {
	const op = "PositionStore.MergeBack"

	if len(failed) > 0 {
		members := make([]string, len(failed))
		for i, id := range failed {
			members[i] = id.String()
		}
		if err := s.client.SAdd(ctx, activeDirtyKey, members...); err != nil {
			return transient(op, err)
		}
	}
	return s.ClearProcessing(ctx)
}

// RecoverProcessing merges a leftover processing set (from a crashed
// run) back into active. Called once on worker start.
func (s *PositionStore) RecoverProcessing(ctx context.Context) error {
	leftover, err := s.Processing(ctx)
	if err != nil {
		return err
	}
	if len(leftover) == 0 {
		return nil
	}
	return s.MergeBack(ctx, leftover)
}

// ActiveDirty lists the active dirty set (introspection and tests).
func (s *PositionStore) ActiveDirty(ctx context.Context) ([]uuid.UUID, error) {
	const op = "PositionStore.ActiveDirty"

	members, err := s.client.SMembers(ctx, activeDirtyKey)
	if err != nil {
		return nil, transient(op, err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if id, err := uuid.Parse(m); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// transient tags a store failure as retryable for upstream policy.
func transient(op string, err error) error {
	return fmt.Errorf("%s: %s: %w", op, err, types.ErrTransientStore)
}
