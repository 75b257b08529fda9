package wshandler

import (
	"context"
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/adapter/ws/dto"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
	ws "github.com/Temutjin2k/dispatch-core/pkg/wsHub"
)

// Egress delivers dispatch outcomes to live client channels. Delivery
// is fire-and-forget: an unreachable client loses the notification,
// offer state stays authoritative.
type Egress struct {
	connections *ws.ConnectionHub
	now         func() time.Time
}

func NewEgress(connections *ws.ConnectionHub) *Egress {
	return &Egress{
		connections: connections,
		now:         time.Now,
	}
}

// Reachable reports whether the entity has a live channel right now.
func (e *Egress) Reachable(id uuid.UUID) bool {
	return e.connections.Reachable(id)
}

func (e *Egress) RideRequest(ctx context.Context, driverID uuid.UUID, offer *models.Offer) error {
	const op = "Egress.RideRequest"
	ctx = wrap.WithOfferID(ctx, offer.ID.String())

	push := dto.Push{
		Event: types.EventRideRequest,
		Data: dto.RideRequestPush{
			RequestID:   offer.ID,
			Pickup:      offer.Pickup,
			Destination: offer.Destination,
			Fare:        offer.Fare,
			DistanceKm:  offer.DistanceKm,
			ExpiresIn:   offer.ExpiresIn(e.now().UTC()),
		},
	}
	if err := e.connections.SendTo(driverID, push); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (e *Egress) RideRequestCancelled(ctx context.Context, driverID uuid.UUID, offerID uuid.UUID, reason string) error {
	const op = "Egress.RideRequestCancelled"

	push := dto.Push{
		Event: types.EventRideRequestCancelled,
		Data:  dto.RequestCancelledPush{RequestID: offerID, Reason: reason},
	}
	if err := e.connections.SendTo(driverID, push); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (e *Egress) AcceptSuccess(ctx context.Context, driverID uuid.UUID, offer *models.Offer) error {
	const op = "Egress.AcceptSuccess"

	push := dto.Push{
		Event: types.EventRideAcceptSuccess,
		Data:  dto.AcceptSuccessPush{RequestID: offer.ID, RideDetails: offer},
	}
	if err := e.connections.SendTo(driverID, push); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (e *Egress) AcceptFailed(ctx context.Context, driverID uuid.UUID, offerID uuid.UUID, reason string) error {
	const op = "Egress.AcceptFailed"

	push := dto.Push{
		Event: types.EventRideAcceptFailed,
		Data:  dto.AcceptFailedPush{RequestID: offerID, Message: failureMessage(reason)},
	}
	if err := e.connections.SendTo(driverID, push); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (e *Egress) RideAccepted(ctx context.Context, riderID uuid.UUID, offerID uuid.UUID, driverID uuid.UUID, driverName string) error {
	const op = "Egress.RideAccepted"

	push := dto.Push{
		Event: types.EventRideAccepted,
		Data: dto.RideAcceptedPush{
			RequestID:  offerID,
			DriverID:   driverID,
			DriverName: driverName,
			Message:    "driver accepted your ride request",
		},
	}
	if err := e.connections.SendTo(riderID, push); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (e *Egress) RideRequestExpired(ctx context.Context, riderID uuid.UUID, offerID uuid.UUID) error {
	const op = "Egress.RideRequestExpired"

	push := dto.Push{
		Event: types.EventRideRequestExpired,
		Data: dto.RequestExpiredPush{
			RequestID: offerID,
			Message:   "no driver accepted the ride request in time",
		},
	}
	if err := e.connections.SendTo(riderID, push); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

func (e *Egress) RideRequestFailed(ctx context.Context, riderID uuid.UUID, offerID uuid.UUID, message string) error {
	const op = "Egress.RideRequestFailed"

	push := dto.Push{
		Event: types.EventRideRequestFailed,
		Data:  dto.RequestFailedPush{RequestID: offerID, Message: message},
	}
	if err := e.connections.SendTo(riderID, push); err != nil {
		return wrap.Error(ctx, fmt.Errorf("%s: %w", op, err))
	}
	return nil
}

// failureMessage translates an accept failure reason into the
// plain-text message drivers see.
func failureMessage(reason string) string {
	switch reason {
	case types.ReasonTaken:
		return "ride request already accepted by another driver"
	case types.ReasonExpiredOrGone:
		return "ride request expired or no longer exists"
	case types.ReasonSystemUnavailable:
		return "system temporarily unavailable, try again"
	default:
		return reason
	}
}
