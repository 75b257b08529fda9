package models

import (
	"encoding/json"
	"fmt"
)

// GeoPoint is a WGS84 coordinate. On the wire it is the GeoJSON-style
// [lng, lat] pair used by the client protocol.
type GeoPoint struct {
	Lng float64
	Lat float64
}

func NewGeoPoint(lng, lat float64) GeoPoint {
	return GeoPoint{Lng: lng, Lat: lat}
}

func (p GeoPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lng, p.Lat})
}

func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("coordinates must be [lng, lat], got %d values", len(pair))
	}
	p.Lng, p.Lat = pair[0], pair[1]
	return nil
}

// Valid reports whether the point is inside the WGS84 envelope.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Route is the answer of the external routing collaborator.
type Route struct {
	DurationSec    float64 `json:"duration_sec"`
	DistanceMeters float64 `json:"distance_meters"`
}
