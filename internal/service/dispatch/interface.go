package dispatch

import (
	"context"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

type OfferStore interface {
	Create(ctx context.Context, offer *models.Offer) error
	Get(ctx context.Context, offerID uuid.UUID) (*models.Offer, error)
	ClaimWinner(ctx context.Context, offerID uuid.UUID, claimant string) (holder string, won bool, err error)
	CloseNoWinner() string
	Winner(ctx context.Context, offerID uuid.UUID) (*uuid.UUID, error)
	UpdateRecipients(ctx context.Context, offer *models.Offer) error
	SaveTerminal(ctx context.Context, offer *models.Offer) error
}

type PositionStore interface {
	Get(ctx context.Context, driverID uuid.UUID) (*models.PositionRecord, error)
	SetAvailability(ctx context.Context, driverID uuid.UUID, available bool) error
}

type DriverRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Driver, error)
}

// Notifier is the egress side: best-effort delivery of dispatch events
// to a client's live channel. Delivery failures never roll back state.
type Notifier interface {
	Reachable(id uuid.UUID) bool

	RideRequest(ctx context.Context, driverID uuid.UUID, offer *models.Offer) error
	RideRequestCancelled(ctx context.Context, driverID uuid.UUID, offerID uuid.UUID, reason string) error
	AcceptSuccess(ctx context.Context, driverID uuid.UUID, offer *models.Offer) error
	AcceptFailed(ctx context.Context, driverID uuid.UUID, offerID uuid.UUID, reason string) error

	RideAccepted(ctx context.Context, riderID uuid.UUID, offerID uuid.UUID, driverID uuid.UUID, driverName string) error
	RideRequestExpired(ctx context.Context, riderID uuid.UUID, offerID uuid.UUID) error
	RideRequestFailed(ctx context.Context, riderID uuid.UUID, offerID uuid.UUID, message string) error
}

// MatchPublisher hands accepted matches to the ride-lifecycle
// collaborator.
type MatchPublisher interface {
	PublishRideMatched(ctx context.Context, msg models.RideMatchedMessage) error
}
