package models

import (
	"slices"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

// Offer is an open invitation from a rider to a bounded set of drivers.
// Once it reaches ACCEPTED or EXPIRED it is immutable.
type Offer struct {
	ID          uuid.UUID        `json:"id"`
	RiderID     uuid.UUID        `json:"rider_id"`
	Pickup      GeoPoint         `json:"pickup"`
	Destination GeoPoint         `json:"destination"`
	Fare        float64          `json:"fare"`
	DistanceKm  float64          `json:"distance_km"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Recipients  []uuid.UUID      `json:"recipients"`
	Winner      *uuid.UUID       `json:"winner,omitempty"`
	State       types.OfferState `json:"state"`
}

// HasRecipient reports whether the driver was part of the fan-out.
func (o *Offer) HasRecipient(driverID uuid.UUID) bool {
	return slices.Contains(o.Recipients, driverID)
}

// RemoveRecipient drops a driver from the recipient set. It does not
// change the offer state: a rejection by the last remaining recipient
// still leaves the rider's timer running.
func (o *Offer) RemoveRecipient(driverID uuid.UUID) {
	o.Recipients = slices.DeleteFunc(o.Recipients, func(id uuid.UUID) bool {
		return id == driverID
	})
}

// ExpiresIn returns whole seconds until expiry, never negative.
func (o *Offer) ExpiresIn(now time.Time) int {
	d := o.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d.Seconds())
}
