// Package locationsync migrates ephemeral driver positions into the
// durable store on a cron cadence, tolerating partial failure without
// losing updates.
package locationsync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/geo"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/metrics"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

const serviceName = "location-sync"

type PositionStore interface {
	Get(ctx context.Context, driverID uuid.UUID) (*models.PositionRecord, error)
	SnapshotDirty(ctx context.Context) ([]uuid.UUID, error)
	MergeBack(ctx context.Context, failed []uuid.UUID) error
	ClearProcessing(ctx context.Context) error
	RecoverProcessing(ctx context.Context) error
}

type DriverRepo interface {
	UpdatePosition(ctx context.Context, driverID uuid.UUID, loc models.GeoPoint, cell geo.Cell, seenAt time.Time) error
}

// Status is the introspection view for the admin surface.
type Status struct {
	Running       bool `json:"running"`
	CadenceActive bool `json:"cadence_active"`
}

// RunReport summarises one completed run.
type RunReport struct {
	Snapshot  int `json:"snapshot"`
	Persisted int `json:"persisted"`
	Dropped   int `json:"dropped"`
	Failed    int `json:"failed"`
}

type Worker struct {
	positions PositionStore
	drivers   DriverRepo

	cronSpec string
	cron     *cron.Cron
	entryID  cron.EntryID

	// running is the single-in-flight guard; overlapping triggers are
	// suppressed, never queued.
	running atomic.Bool

	log logger.Logger
}

func NewWorker(positions PositionStore, drivers DriverRepo, cronSpec string, log logger.Logger) *Worker {
	return &Worker{
		positions: positions,
		drivers:   drivers,
		cronSpec:  cronSpec,
		log:       log,
	}
}

// Start recovers any processing set left by a crashed run, then begins
// the cadence.
func (w *Worker) Start(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, types.ActionSyncRun)

	if err := w.positions.RecoverProcessing(ctx); err != nil {
		return wrap.Error(ctx, err)
	}

	w.cron = cron.New()
	entryID, err := w.cron.AddFunc(w.cronSpec, func() {
		if _, err := w.RunOnce(context.Background()); err != nil && !errors.Is(err, types.ErrSyncInProgress) {
			w.log.Error(ctx, "scheduled sync run failed", err)
		}
	})
	if err != nil {
		return wrap.Error(ctx, err)
	}
	w.entryID = entryID
	w.cron.Start()

	w.log.Info(ctx, "location sync started", "cadence", w.cronSpec)
	return nil
}

// Stop halts the cadence and waits for an in-flight run to finish.
func (w *Worker) Stop() {
	if w.cron == nil {
		return
	}
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
}

// TriggerNow runs the sync outside the cadence. It honours the overlap
// guard: a run already in flight returns ErrSyncInProgress.
func (w *Worker) TriggerNow(ctx context.Context) (RunReport, error) {
	return w.RunOnce(ctx)
}

// Status reports whether a run is in flight and whether the cadence is
// scheduled.
func (w *Worker) Status() Status {
	return Status{
		Running:       w.running.Load(),
		CadenceActive: w.cron != nil && w.cron.Entry(w.entryID).Valid(),
	}
}

// RunOnce executes the five-phase sync: snapshot, gather, persist,
// reconcile; fatal recovery is handled at Start.
func (w *Worker) RunOnce(ctx context.Context) (RunReport, error) {
	if !w.running.CompareAndSwap(false, true) {
		return RunReport{}, types.ErrSyncInProgress
	}
	defer w.running.Store(false)

	ctx = wrap.WithAction(ctx, types.ActionSyncRun)
	started := time.Now()

	// Phase 1: snapshot. Concurrent upserts land in a fresh active set.
	snapshot, err := w.positions.SnapshotDirty(ctx)
	if err != nil {
		return RunReport{}, wrap.Error(ctx, err)
	}
	if len(snapshot) == 0 {
		return RunReport{}, nil
	}

	report := RunReport{Snapshot: len(snapshot)}
	var failed []uuid.UUID

	for _, driverID := range snapshot {
		// Phase 2: gather. A record that expired between snapshot and
		// read carries nothing worth persisting.
		rec, err := w.positions.Get(ctx, driverID)
		if err != nil {
			if errors.Is(err, types.ErrDriverNotFound) {
				report.Dropped++
				continue
			}
			failed = append(failed, driverID)
			continue
		}

		// Phase 3: persist, one idempotent update per driver.
		if err := w.drivers.UpdatePosition(ctx, driverID, rec.Location, rec.Cell, rec.LastSeenAt); err != nil {
			w.log.Warn(ctx, "durable position write failed", "driver_id", driverID, "err", err.Error())
			metrics.SyncDriversPersisted.WithLabelValues(serviceName, "error").Inc()
			failed = append(failed, driverID)
			continue
		}
		metrics.SyncDriversPersisted.WithLabelValues(serviceName, "success").Inc()
		report.Persisted++
	}
	report.Failed = len(failed)

	// Phase 4: reconcile. All-success clears processing; any failure
	// merges the failed ids back into active for the next run.
	if len(failed) == 0 {
		err = w.positions.ClearProcessing(ctx)
	} else {
		err = w.positions.MergeBack(ctx, failed)
	}
	if err != nil {
		// Processing survives; startup recovery or the next snapshot's
		// merge picks it up. Nothing is lost.
		return report, wrap.Error(ctx, err)
	}

	metrics.RecordSyncRun(serviceName, report.Failed, time.Since(started))
	w.log.Info(ctx, "sync run complete",
		"snapshot", report.Snapshot,
		"persisted", report.Persisted,
		"dropped", report.Dropped,
		"failed", report.Failed,
	)
	return report, nil
}
