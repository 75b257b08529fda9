package handler

import (
	"context"
	"math"
	"net/http"

	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/handler/dto"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/internal/geo"
	"github.com/Temutjin2k/dispatch-core/internal/service/nearby"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
	"github.com/Temutjin2k/dispatch-core/pkg/validator"
)

// maxFanout bounds how many drivers one request is dispatched to.
const maxFanout = 5

// Fare model: flat base plus a per-km rate, in tenge.
const (
	baseFare  = 500.0
	farePerKm = 120.0
)

type DispatchService interface {
	OpenOffer(ctx context.Context, riderID uuid.UUID, pickup, destination models.GeoPoint, fare, distanceKm float64, candidates []uuid.UUID) (*models.Offer, error)
	Cancel(ctx context.Context, offerID, riderID uuid.UUID) error
	GetOffer(ctx context.Context, offerID uuid.UUID) (*models.Offer, error)
}

type NearbyService interface {
	FindNearby(ctx context.Context, lat, lng float64, c nearby.Constraints) (*models.NearbyResult, error)
}

type Ride struct {
	dispatch DispatchService
	nearby   NearbyService
	maxRings int
	l        logger.Logger
}

func NewRide(dispatch DispatchService, nearbySvc NearbyService, maxRings int, l logger.Logger) *Ride {
	return &Ride{
		dispatch: dispatch,
		nearby:   nearbySvc,
		maxRings: maxRings,
		l:        l,
	}
}

// CreateRide godoc
// @Summary      Request a ride
// @Description  Finds nearby drivers and opens a dispatch offer. The outcome arrives asynchronously on the rider's WebSocket channel.
// @Tags         Rides
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateRideRequest true "Pickup and destination"
// @Success      201  {object}  dto.CreateRideResponse
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /rides [post]
func (h *Ride) CreateRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "create_ride")
	rider := models.UserFromContext(ctx)

	var req dto.CreateRideRequest
	if err := readJSON(w, r, &req); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read request JSON data", err)
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	req.Validate(v)
	if !v.Valid() {
		h.l.Warn(ctx, "invalid request data")
		failedValidationResponse(w, v.Errors)
		return
	}

	pickup, destination := req.Pickup(), req.Destination()

	found, err := h.nearby.FindNearby(ctx, pickup.Lat, pickup.Lng, nearby.DefaultConstraints(h.maxRings))
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "nearby search failed", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}
	if len(found.Candidates) == 0 {
		errorResponse(w, http.StatusNotFound, types.ErrNoCandidates.Error())
		return
	}

	candidates := make([]uuid.UUID, 0, maxFanout)
	for _, c := range found.Candidates {
		candidates = append(candidates, c.DriverID)
		if len(candidates) == maxFanout {
			break
		}
	}

	distanceKm := geo.Haversine(pickup.Lat, pickup.Lng, destination.Lat, destination.Lng)
	fare := estimateFare(distanceKm)

	offer, err := h.dispatch.OpenOffer(ctx, rider.ID, pickup, destination, fare, distanceKm, candidates)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to open offer", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	resp := dto.CreateRideResponse{
		RequestID:       offer.ID,
		Status:          offer.State.String(),
		EstimatedFare:   offer.Fare,
		DistanceKm:      offer.DistanceKm,
		DriversNotified: len(offer.Recipients),
		ExpiresAt:       offer.ExpiresAt,
	}
	if err := writeJSON(w, http.StatusCreated, envelope{"ride_request": resp}, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "ride request dispatched", "request_id", offer.ID, "drivers_notified", len(offer.Recipients))
}

// CancelRide godoc
// @Summary      Cancel a ride request
// @Description  Withdraws an open dispatch offer. Fails once a driver has accepted.
// @Tags         Rides
// @Produce      json
// @Param        ride_id path string true "Ride request ID"
// @Success      200  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Security     BearerAuth
// @Router       /rides/{ride_id}/cancel [post]
func (h *Ride) CancelRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "cancel_ride")
	rider := models.UserFromContext(ctx)

	offerID, err := pathUUID(r, "ride_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	ctx = wrap.WithOfferID(ctx, offerID.String())

	if err := h.dispatch.Cancel(ctx, offerID, rider.ID); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to cancel ride request", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"status": "cancelled"}, nil); err != nil {
		internalErrorResponse(w, err.Error())
		return
	}

	h.l.Info(ctx, "ride request cancelled")
}

// GetRide godoc
// @Summary      Ride request state
// @Description  Returns the current offer state. Lets a rider reconcile after a reconnect.
// @Tags         Rides
// @Produce      json
// @Param        ride_id path string true "Ride request ID"
// @Success      200  {object}  models.Offer
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /rides/{ride_id} [get]
func (h *Ride) GetRide(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "get_ride")
	user := models.UserFromContext(ctx)

	offerID, err := pathUUID(r, "ride_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}
	ctx = wrap.WithOfferID(ctx, offerID.String())

	offer, err := h.dispatch.GetOffer(ctx, offerID)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	// Riders only see their own requests.
	if user.HasRole(types.RiderRole) && offer.RiderID != user.ID {
		errorResponse(w, http.StatusNotFound, types.ErrOfferNotFound.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"ride_request": offer}, nil); err != nil {
		internalErrorResponse(w, err.Error())
		return
	}
}

func estimateFare(distanceKm float64) float64 {
	return math.Round(baseFare + farePerKm*distanceKm)
}
