package admin

import (
	"context"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/service/locationsync"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

type DriverRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error)
	ListPendingVerifications(ctx context.Context, limit int) ([]models.Driver, error)
	SetVerified(ctx context.Context, driverID uuid.UUID, verified bool) error
	SetBlocked(ctx context.Context, driverID uuid.UUID, blocked bool) error
}

type AuditRepo interface {
	InsertVerificationEvent(ctx context.Context, ev models.VerificationEvent) error
	ListByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.VerificationEvent, error)
}

// SyncControl is the worker's admin surface.
type SyncControl interface {
	TriggerNow(ctx context.Context) (locationsync.RunReport, error)
	Status() locationsync.Status
}

// clock is swapped in tests.
type clock func() time.Time
