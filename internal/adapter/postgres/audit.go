package postgres

import (
	"context"
	"fmt"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	pkgpostgres "github.com/Temutjin2k/dispatch-core/pkg/postgres"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepo записывает админские действия над водителями.
type AuditRepo struct {
	db *pgxpool.Pool
}

func NewAuditRepo(db *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{
		db: db,
	}
}

// InsertVerificationEvent writes one audit row. Runs inside the same
// transaction as the flag flip when the ctx carries one.
func (r *AuditRepo) InsertVerificationEvent(ctx context.Context, ev models.VerificationEvent) error {
	const op = "AuditRepo.InsertVerificationEvent"
	query := `
		INSERT INTO driver_verification_events(id, driver_id, admin_id, action, created_at)
		VALUES($1, $2, $3, $4, $5)`

	if _, err := TxorDB(ctx, r.db).Exec(ctx, query,
		ev.ID,
		ev.DriverID,
		ev.AdminID,
		ev.Action,
		ev.CreatedAt,
	); err != nil {
		if pkgpostgres.IsForeignKeyViolation(err) {
			return fmt.Errorf("%s: %w", op, types.ErrDriverNotFound)
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// ListByDriver returns the audit trail for one driver, newest first.
func (r *AuditRepo) ListByDriver(ctx context.Context, driverID uuid.UUID, limit int) ([]models.VerificationEvent, error) {
	const op = "AuditRepo.ListByDriver"
	query := `
		SELECT id, driver_id, admin_id, action, created_at
		FROM driver_verification_events
		WHERE driver_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := TxorDB(ctx, r.db).Query(ctx, query, driverID, limit)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var events []models.VerificationEvent
	for rows.Next() {
		var ev models.VerificationEvent
		if err := rows.Scan(&ev.ID, &ev.DriverID, &ev.AdminID, &ev.Action, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}
