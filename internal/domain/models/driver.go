package models

import (
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/geo"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

// PositionRecord is the ephemeral, TTL-bound view of a driver.
// It is authoritative for liveness: a driver that stops sending
// updates disappears from every index when the record expires.
type PositionRecord struct {
	DriverID    uuid.UUID `json:"driver_id"`
	UserID      uuid.UUID `json:"user_id"`
	Location    GeoPoint  `json:"coordinates"`
	Cell        geo.Cell  `json:"cell"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	IsOnline    bool      `json:"is_online"`
	IsAvailable bool      `json:"is_available"`

	// Connected mirrors whether a live channel exists for the driver.
	// A driver may have a known position but no channel (reconnect window).
	Connected bool `json:"connected"`
}

// Vehicle attrs stored on the durable driver record.
type Vehicle struct {
	Make  string `json:"make"`
	Model string `json:"model"`
	Type  string `json:"type"`
	Year  int    `json:"year"`
	Plate string `json:"plate"`
}

// Driver is the long-lived driver entity in the durable store.
type Driver struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Name          string     `json:"name"`
	LicenseNumber string     `json:"license_number"`
	Vehicle       Vehicle    `json:"vehicle"`
	Rating        float64    `json:"rating"`
	RidesTotal    int64      `json:"rides_total"`
	IsVerified    bool       `json:"is_verified"`
	IsBlocked     bool       `json:"is_blocked"`
	LastLocation  *GeoPoint  `json:"last_location,omitempty"`
	LastCell      *geo.Cell  `json:"last_cell,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Candidate is one ranked result of a nearby-driver query.
type Candidate struct {
	DriverID       uuid.UUID `json:"driver_id"`
	Name           string    `json:"name"`
	Location       GeoPoint  `json:"coordinates"`
	StraightLineKm float64   `json:"straight_line_km"`
	EtaMinutes     int       `json:"eta_minutes"`
	RouteMeters    *float64  `json:"route_meters,omitempty"`
}

// NearbyResult carries the ranked candidates plus how far the ring
// expansion had to look.
type NearbyResult struct {
	Candidates   []Candidate `json:"candidates"`
	SearchRadius int         `json:"search_radius"`
}
