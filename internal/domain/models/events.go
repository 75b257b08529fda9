package models

import (
	"time"

	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

// RideMatchedMessage is the handoff published to the ride-lifecycle
// collaborator once an offer reaches ACCEPTED. Everything after the
// match (trip execution, billing) happens on the other side of the broker.
type RideMatchedMessage struct {
	OfferID       uuid.UUID `json:"offer_id"`
	RiderID       uuid.UUID `json:"rider_id"`
	DriverID      uuid.UUID `json:"driver_id"`
	DriverName    string    `json:"driver_name"`
	Pickup        GeoPoint  `json:"pickup"`
	Destination   GeoPoint  `json:"destination"`
	Fare          float64   `json:"fare"`
	DistanceKm    float64   `json:"distance_km"`
	MatchedAt     time.Time `json:"matched_at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// VerificationEvent is the audit row written when an admin flips a
// driver's verification or block flag.
type VerificationEvent struct {
	ID        uuid.UUID `json:"id"`
	DriverID  uuid.UUID `json:"driver_id"`
	AdminID   uuid.UUID `json:"admin_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}
