// Package nearby implements the expanding-ring driver search over the
// spatial index.
package nearby

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/geo"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

// Constraints bound one search.
type Constraints struct {
	MaxRings      int
	MinCount      int
	OnlyOnline    bool
	OnlyAvailable bool
	OnlyVerified  bool
	OnlyUnblocked bool
}

// DefaultConstraints mirror what dispatch fan-out needs.
func DefaultConstraints(maxRings int) Constraints {
	return Constraints{
		MaxRings:      maxRings,
		MinCount:      1,
		OnlyOnline:    true,
		OnlyAvailable: true,
		OnlyVerified:  true,
		OnlyUnblocked: true,
	}
}

type Service struct {
	positions PositionStore
	drivers   DriverRepo
	router    Router

	routingTimeout  time.Duration
	assumedSpeedKmh float64

	log logger.Logger
}

func New(positions PositionStore, drivers DriverRepo, router Router, routingTimeout time.Duration, assumedSpeedKmh float64, log logger.Logger) *Service {
	return &Service{
		positions:       positions,
		drivers:         drivers,
		router:          router,
		routingTimeout:  routingTimeout,
		assumedSpeedKmh: assumedSpeedKmh,
		log:             log,
	}
}

// FindNearby runs the expanding-ring search around (lat, lng). Rings
// are scanned hollow, one graph distance at a time, so no cell is read
// twice. The first ring that yields MinCount survivors wins.
func (s *Service) FindNearby(ctx context.Context, lat, lng float64, c Constraints) (*models.NearbyResult, error) {
	ctx = wrap.WithAction(ctx, "find_nearby_drivers")

	center, err := geo.CellOf(lat, lng)
	if err != nil {
		return nil, wrap.Error(ctx, err)
	}
	pickup := models.GeoPoint{Lng: lng, Lat: lat}

	seen := make(map[uuid.UUID]struct{})
	// Durable lookups are cached for the whole query: a driver seen in
	// ring k is not re-fetched when a later ring rescans the id.
	durable := make(map[uuid.UUID]*models.Driver)

	var survivors []models.Candidate

	for k := 0; k <= c.MaxRings; k++ {
		ring, err := geo.RingAt(center, k)
		if err != nil {
			return nil, wrap.Error(ctx, err)
		}

		ids, err := s.positions.MembersOfCells(ctx, ring)
		if err != nil {
			return nil, wrap.Error(ctx, err)
		}

		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			cand, ok := s.qualify(ctx, id, pickup, c, durable)
			if !ok {
				continue
			}
			survivors = append(survivors, cand)
		}

		if len(survivors) >= c.MinCount {
			sortCandidates(survivors)
			return &models.NearbyResult{
				Candidates:   survivors,
				SearchRadius: k,
			}, nil
		}
	}

	sortCandidates(survivors)
	return &models.NearbyResult{
		Candidates:   survivors,
		SearchRadius: c.MaxRings,
	}, nil
}

// qualify loads both views of the driver and applies the status
// filters. A driver whose position record expired since the cell scan
// is silently dropped.
func (s *Service) qualify(ctx context.Context, id uuid.UUID, pickup models.GeoPoint, c Constraints, durable map[uuid.UUID]*models.Driver) (models.Candidate, bool) {
	rec, err := s.positions.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, types.ErrDriverNotFound) {
			s.log.Warn(ctx, "position read failed during search", "driver_id", id, "err", err.Error())
		}
		return models.Candidate{}, false
	}

	if c.OnlyOnline && !rec.IsOnline {
		return models.Candidate{}, false
	}
	if c.OnlyAvailable && !rec.IsAvailable {
		return models.Candidate{}, false
	}

	driver, ok := durable[id]
	if !ok {
		driver, err = s.drivers.GetByID(ctx, id)
		if err != nil {
			if !errors.Is(err, types.ErrDriverNotFound) {
				s.log.Warn(ctx, "durable read failed during search", "driver_id", id, "err", err.Error())
			}
			return models.Candidate{}, false
		}
		durable[id] = driver
	}

	if c.OnlyVerified && !driver.IsVerified {
		return models.Candidate{}, false
	}
	if c.OnlyUnblocked && driver.IsBlocked {
		return models.Candidate{}, false
	}

	return s.annotate(ctx, driver, rec, pickup), true
}

// annotate computes the ranking signals. Routing is best-effort with a
// per-call timeout; on failure the ETA falls back to the straight-line
// heuristic at the assumed average speed.
func (s *Service) annotate(ctx context.Context, driver *models.Driver, rec *models.PositionRecord, pickup models.GeoPoint) models.Candidate {
	straightKm := geo.Haversine(rec.Location.Lat, rec.Location.Lng, pickup.Lat, pickup.Lng)

	cand := models.Candidate{
		DriverID:       driver.ID,
		Name:           driver.Name,
		Location:       rec.Location,
		StraightLineKm: straightKm,
		EtaMinutes:     fallbackEta(straightKm, s.assumedSpeedKmh),
	}

	if s.router != nil {
		routeCtx, cancel := context.WithTimeout(ctx, s.routingTimeout)
		defer cancel()

		route, err := s.router.Route(routeCtx, rec.Location, pickup)
		if err == nil {
			cand.EtaMinutes = int(math.Round(route.DurationSec / 60))
			meters := route.DistanceMeters
			cand.RouteMeters = &meters
		}
		// routing_unavailable is not an error here: the fallback ETA
		// is already in place.
	}

	return cand
}

func fallbackEta(straightKm, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = 30
	}
	return int(math.Round(straightKm / speedKmh * 60))
}

func sortCandidates(cands []models.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].EtaMinutes != cands[j].EtaMinutes {
			return cands[i].EtaMinutes < cands[j].EtaMinutes
		}
		return cands[i].StraightLineKm < cands[j].StraightLineKm
	})
}
