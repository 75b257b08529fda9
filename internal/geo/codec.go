// Package geo is the geospatial cell codec: pure mappings between
// coordinates, H3 cells and ring neighbourhoods. It keeps no state, so
// server and clients that run the same algorithm at the same resolution
// land on the same cell for the same coordinates.
package geo

import (
	"fmt"
	"math"

	h3 "github.com/uber/h3-go/v4"
)

// Resolution is fixed for the whole system. At resolution 9 a cell edge
// is roughly 150-175m, so ring 0/1 already covers the typical pickup.
const Resolution = 9

// EdgeKm is the approximate cell edge length at Resolution, used by
// callers to reason about ring distances.
const EdgeKm = 0.174

// Cell is an opaque 64-bit H3 cell id. Equality and neighbour
// enumeration are the only operations the system needs.
type Cell uint64

// String returns the canonical hex form, used in store keys.
func (c Cell) String() string {
	return h3.Cell(c).String()
}

// ParseCell parses the canonical hex form back into a cell.
func ParseCell(s string) (Cell, error) {
	cell := h3.Cell(h3.IndexFromString(s))
	if !cell.IsValid() {
		return 0, fmt.Errorf("parse cell %q: not a valid cell index", s)
	}
	return Cell(cell), nil
}

// CellOf maps a coordinate to its cell at the fixed resolution.
func CellOf(lat, lng float64) (Cell, error) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), Resolution)
	if err != nil {
		return 0, fmt.Errorf("cell for (%f, %f): %w", lat, lng, err)
	}
	return Cell(cell), nil
}

// Neighbours returns every cell within graph distance k of c, the cell
// itself included (k=0 is just c, k=1 adds the six adjacent, ...).
func Neighbours(c Cell, k int) ([]Cell, error) {
	if k < 0 {
		return nil, fmt.Errorf("negative ring distance %d", k)
	}
	disk, err := h3.GridDisk(h3.Cell(c), k)
	if err != nil {
		return nil, fmt.Errorf("grid disk k=%d: %w", k, err)
	}
	return fromH3(disk), nil
}

// RingAt returns only the hollow ring at exactly graph distance k,
// so an expanding search never rescans inner rings.
func RingAt(c Cell, k int) ([]Cell, error) {
	if k < 0 {
		return nil, fmt.Errorf("negative ring distance %d", k)
	}
	if k == 0 {
		return []Cell{c}, nil
	}
	disks, err := h3.GridDiskDistances(h3.Cell(c), k)
	if err != nil {
		return nil, fmt.Errorf("grid ring k=%d: %w", k, err)
	}
	if len(disks) <= k {
		return nil, nil
	}
	return fromH3(disks[k]), nil
}

func fromH3(in []h3.Cell) []Cell {
	out := make([]Cell, 0, len(in))
	for _, c := range in {
		if c == 0 {
			continue
		}
		out = append(out, Cell(c))
	}
	return out
}

const earthRadiusKm = 6371.0

// Haversine returns the straight-line distance between two coordinates
// in kilometers.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180.0
	dLng := (lng2 - lng1) * math.Pi / 180.0

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180.0)*math.Cos(lat2*math.Pi/180.0)*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
