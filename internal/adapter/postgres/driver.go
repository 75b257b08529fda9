package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/geo"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DriverRepo struct {
	db *pgxpool.Pool
}

func NewDriverRepo(db *pgxpool.Pool) *DriverRepo {
	return &DriverRepo{
		db: db,
	}
}

const driverColumns = `
	id, user_id, name, license_number, vehicle_attrs, rating, rides_total,
	is_verified, is_blocked, last_latitude, last_longitude, last_cell,
	last_seen_at, created_at`

func (r *DriverRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error) {
	const op = "DriverRepo.GetByID"
	query := `
		SELECT` + driverColumns + `
		FROM drivers
		WHERE id = $1`

	driver, err := scanDriver(TxorDB(ctx, r.db).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrDriverNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return driver, nil
}

// FindByUser resolves the driver record behind a user account.
func (r *DriverRepo) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Driver, error) {
	const op = "DriverRepo.FindByUser"
	query := `
		SELECT` + driverColumns + `
		FROM drivers
		WHERE user_id = $1`

	driver, err := scanDriver(TxorDB(ctx, r.db).QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.ErrDriverNotFound
		}
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return driver, nil
}

// UpdatePosition writes the durable snapshot of a driver's last known
// position. Idempotent and monotonic: an older snapshot never
// overwrites a newer one, so sync retries are safe in any order.
func (r *DriverRepo) UpdatePosition(ctx context.Context, driverID uuid.UUID, loc models.GeoPoint, cell geo.Cell, seenAt time.Time) error {
	const op = "DriverRepo.UpdatePosition"
	query := `
		UPDATE drivers
		SET last_latitude = $2,
		    last_longitude = $3,
		    last_cell = $4,
		    last_seen_at = $5
		WHERE id = $1
		  AND (last_seen_at IS NULL OR last_seen_at <= $5)`

	tag, err := TxorDB(ctx, r.db).Exec(ctx, query, driverID, loc.Lat, loc.Lng, cell.String(), seenAt)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		// Either the driver row is gone or a newer snapshot is already
		// in place. Both are fine for a retried write.
		return nil
	}
	return nil
}

// ListPendingVerifications returns unverified, unblocked drivers in
// registration order.
func (r *DriverRepo) ListPendingVerifications(ctx context.Context, limit int) ([]models.Driver, error) {
	const op = "DriverRepo.ListPendingVerifications"
	query := `
		SELECT` + driverColumns + `
		FROM drivers
		WHERE is_verified = FALSE AND is_blocked = FALSE
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := TxorDB(ctx, r.db).Query(ctx, query, limit)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return nil, wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	defer rows.Close()

	var drivers []models.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		drivers = append(drivers, *driver)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return drivers, nil
}

// SetVerified flips the verification flag.
func (r *DriverRepo) SetVerified(ctx context.Context, driverID uuid.UUID, verified bool) error {
	const op = "DriverRepo.SetVerified"
	query := `
		UPDATE drivers
		SET is_verified = $2
		WHERE id = $1`

	tag, err := TxorDB(ctx, r.db).Exec(ctx, query, driverID, verified)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDriverNotFound
	}
	return nil
}

// SetBlocked flips the block flag. A blocked driver keeps its row but
// never appears in dispatch results.
func (r *DriverRepo) SetBlocked(ctx context.Context, driverID uuid.UUID, blocked bool) error {
	const op = "DriverRepo.SetBlocked"
	query := `
		UPDATE drivers
		SET is_blocked = $2
		WHERE id = $1`

	tag, err := TxorDB(ctx, r.db).Exec(ctx, query, driverID, blocked)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionDatabaseTransactionFailed)
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	if tag.RowsAffected() == 0 {
		return types.ErrDriverNotFound
	}
	return nil
}

// scanDriver reads one driver row from either pgx.Row or pgx.Rows.
func scanDriver(row pgx.Row) (*models.Driver, error) {
	var (
		d        models.Driver
		lat, lng *float64
		cellHex  *string
	)

	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.Name,
		&d.LicenseNumber,
		&d.Vehicle,
		&d.Rating,
		&d.RidesTotal,
		&d.IsVerified,
		&d.IsBlocked,
		&lat,
		&lng,
		&cellHex,
		&d.LastSeenAt,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}

	if lat != nil && lng != nil {
		d.LastLocation = &models.GeoPoint{Lng: *lng, Lat: *lat}
	}
	if cellHex != nil && *cellHex != "" {
		cell, err := geo.ParseCell(*cellHex)
		if err != nil {
			return nil, err
		}
		d.LastCell = &cell
	}
	return &d, nil
}
