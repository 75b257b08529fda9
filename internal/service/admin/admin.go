// Package admin covers the operator surface: driver verification,
// blocking, audit trail and sync worker control.
package admin

import (
	"context"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/service/locationsync"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/trm"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

// Audit actions recorded on driver flag flips.
const (
	AuditVerified   = "verified"
	AuditUnverified = "unverified"
	AuditBlocked    = "blocked"
	AuditUnblocked  = "unblocked"
)

type AdminService struct {
	drivers   DriverRepo
	audit     AuditRepo
	txManager trm.TxManager
	sync      SyncControl
	now       clock
	l         logger.Logger
}

func NewAdminService(drivers DriverRepo, audit AuditRepo, txManager trm.TxManager, sync SyncControl, l logger.Logger) *AdminService {
	return &AdminService{
		drivers:   drivers,
		audit:     audit,
		txManager: txManager,
		sync:      sync,
		now:       time.Now,
		l:         l,
	}
}

// PendingVerifications lists drivers awaiting review.
func (s *AdminService) PendingVerifications(ctx context.Context, limit int) ([]models.Driver, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.drivers.ListPendingVerifications(ctx, limit)
}

// SetVerified flips the verification flag and writes the audit row in
// one transaction.
func (s *AdminService) SetVerified(ctx context.Context, adminID, driverID uuid.UUID, verified bool) error {
	ctx = wrap.WithAction(ctx, "admin_set_verified")
	ctx = wrap.WithUserID(ctx, adminID.String())

	action := AuditVerified
	if !verified {
		action = AuditUnverified
	}

	err := s.flagFlip(ctx, adminID, driverID, action, func(txCtx context.Context) error {
		return s.drivers.SetVerified(txCtx, driverID, verified)
	})
	if err != nil {
		return wrap.Error(ctx, err)
	}

	s.l.Info(ctx, "driver verification updated", "driver_id", driverID, "verified", verified)
	return nil
}

// SetBlocked flips the block flag and writes the audit row in one
// transaction. A blocked driver disappears from dispatch on the next
// search; its ephemeral record ages out on its own.
func (s *AdminService) SetBlocked(ctx context.Context, adminID, driverID uuid.UUID, blocked bool) error {
	ctx = wrap.WithAction(ctx, "admin_set_blocked")
	ctx = wrap.WithUserID(ctx, adminID.String())

	action := AuditBlocked
	if !blocked {
		action = AuditUnblocked
	}

	err := s.flagFlip(ctx, adminID, driverID, action, func(txCtx context.Context) error {
		return s.drivers.SetBlocked(txCtx, driverID, blocked)
	})
	if err != nil {
		return wrap.Error(ctx, err)
	}

	s.l.Info(ctx, "driver block updated", "driver_id", driverID, "blocked", blocked)
	return nil
}

func (s *AdminService) flagFlip(ctx context.Context, adminID, driverID uuid.UUID, action string, flip func(context.Context) error) error {
	return s.txManager.Do(ctx, func(txCtx context.Context) error {
		if err := flip(txCtx); err != nil {
			return err
		}

		evID, err := uuid.New()
		if err != nil {
			return err
		}
		return s.audit.InsertVerificationEvent(txCtx, models.VerificationEvent{
			ID:        evID,
			DriverID:  driverID,
			AdminID:   adminID,
			Action:    action,
			CreatedAt: s.now().UTC(),
		})
	})
}

// AuditTrail returns the recorded flag flips for one driver.
func (s *AdminService) AuditTrail(ctx context.Context, driverID uuid.UUID, limit int) ([]models.VerificationEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if _, err := s.drivers.GetByID(ctx, driverID); err != nil {
		return nil, wrap.Error(ctx, err)
	}
	return s.audit.ListByDriver(ctx, driverID, limit)
}

// TriggerSync runs the location sync outside its cadence.
func (s *AdminService) TriggerSync(ctx context.Context) (locationsync.RunReport, error) {
	ctx = wrap.WithAction(ctx, "admin_trigger_sync")

	report, err := s.sync.TriggerNow(ctx)
	if err != nil {
		if err == types.ErrSyncInProgress {
			return locationsync.RunReport{}, err
		}
		return locationsync.RunReport{}, wrap.Error(ctx, err)
	}
	return report, nil
}

// SyncStatus reports the worker state.
func (s *AdminService) SyncStatus() locationsync.Status {
	return s.sync.Status()
}
