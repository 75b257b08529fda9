package nearby

import (
	"context"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/geo"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

type PositionStore interface {
	Get(ctx context.Context, driverID uuid.UUID) (*models.PositionRecord, error)
	MembersOfCells(ctx context.Context, cells []geo.Cell) ([]uuid.UUID, error)
}

type DriverRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error)
}

// Router is the external routing collaborator. Best-effort: failures
// fall back to the straight-line heuristic.
type Router interface {
	Route(ctx context.Context, from, to models.GeoPoint) (models.Route, error)
}
