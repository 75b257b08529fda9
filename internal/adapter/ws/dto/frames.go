// Package dto holds the wire frames of the bidirectional client
// protocol. Field names follow the client convention (camelCase),
// not the internal snake_case.
package dto

import (
	"encoding/json"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

// Frame is the inbound envelope. Data stays raw until the event is
// demultiplexed.
type Frame struct {
	Event types.WireEvent `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Push is the outbound envelope.
type Push struct {
	Event types.WireEvent `json:"event"`
	Data  any             `json:"data"`
}

// --- inbound payloads ---

type RegisterReq struct {
	Role        string           `json:"role"`
	Coordinates *models.GeoPoint `json:"coordinates,omitempty"`
}

type LocationUpdateReq struct {
	Coordinates models.GeoPoint `json:"coordinates"`
}

// OfferActionReq carries ride:accept and ride:reject.
type OfferActionReq struct {
	RequestID uuid.UUID `json:"requestId"`
}

// --- outbound payloads ---

type RegisteredResp struct {
	Success   bool   `json:"success"`
	ChannelID string `json:"channelId"`
}

type RideRequestPush struct {
	RequestID   uuid.UUID       `json:"requestId"`
	Pickup      models.GeoPoint `json:"pickup"`
	Destination models.GeoPoint `json:"destination"`
	Fare        float64         `json:"fare"`
	DistanceKm  float64         `json:"distanceKm"`
	ExpiresIn   int             `json:"expiresIn"`
}

type RequestCancelledPush struct {
	RequestID uuid.UUID `json:"requestId"`
	Reason    string    `json:"reason"`
}

type RequestExpiredPush struct {
	RequestID uuid.UUID `json:"requestId"`
	Message   string    `json:"message"`
}

type RequestFailedPush struct {
	RequestID uuid.UUID `json:"requestId"`
	Message   string    `json:"message"`
}

type RideAcceptedPush struct {
	RequestID  uuid.UUID `json:"requestId"`
	DriverID   uuid.UUID `json:"driverId"`
	DriverName string    `json:"driverName"`
	Message    string    `json:"message"`
}

type AcceptSuccessPush struct {
	RequestID   uuid.UUID     `json:"requestId"`
	RideDetails *models.Offer `json:"rideDetails"`
}

type AcceptFailedPush struct {
	RequestID uuid.UUID `json:"requestId"`
	Message   string    `json:"message"`
}
