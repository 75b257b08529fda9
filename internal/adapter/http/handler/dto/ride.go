package dto

import (
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
	"github.com/Temutjin2k/dispatch-core/pkg/validator"
)

type CreateRideRequest struct {
	PickupLatitude       float64 `json:"pickup_latitude"`
	PickupLongitude      float64 `json:"pickup_longitude"`
	DestinationLatitude  float64 `json:"destination_latitude"`
	DestinationLongitude float64 `json:"destination_longitude"`
}

func (r *CreateRideRequest) Validate(v *validator.Validator) {
	v.Check(r.PickupLatitude >= -90 && r.PickupLatitude <= 90, "pickup_latitude", "must be between -90 and 90")
	v.Check(r.PickupLongitude >= -180 && r.PickupLongitude <= 180, "pickup_longitude", "must be between -180 and 180")
	v.Check(r.DestinationLatitude >= -90 && r.DestinationLatitude <= 90, "destination_latitude", "must be between -90 and 90")
	v.Check(r.DestinationLongitude >= -180 && r.DestinationLongitude <= 180, "destination_longitude", "must be between -180 and 180")
	v.Check(r.PickupLatitude != r.DestinationLatitude || r.PickupLongitude != r.DestinationLongitude,
		"destination", "must differ from pickup")
}

func (r *CreateRideRequest) Pickup() models.GeoPoint {
	return models.NewGeoPoint(r.PickupLongitude, r.PickupLatitude)
}

func (r *CreateRideRequest) Destination() models.GeoPoint {
	return models.NewGeoPoint(r.DestinationLongitude, r.DestinationLatitude)
}

type CreateRideResponse struct {
	RequestID       uuid.UUID `json:"request_id"`
	Status          string    `json:"status"`
	EstimatedFare   float64   `json:"estimated_fare"`
	DistanceKm      float64   `json:"distance_km"`
	DriversNotified int       `json:"drivers_notified"`
	ExpiresAt       time.Time `json:"expires_at"`
}

type VerifyDriverRequest struct {
	Verified bool `json:"verified"`
}

type BlockDriverRequest struct {
	Blocked bool `json:"blocked"`
}
