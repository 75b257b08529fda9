package handler

import (
	"net/http"

	"github.com/Temutjin2k/dispatch-core/internal/service/nearby"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/validator"
)

type Driver struct {
	nearby   NearbyService
	maxRings int
	l        logger.Logger
}

func NewDriver(nearbySvc NearbyService, maxRings int, l logger.Logger) *Driver {
	return &Driver{
		nearby:   nearbySvc,
		maxRings: maxRings,
		l:        l,
	}
}

// Nearby godoc
// @Summary      Nearby drivers
// @Description  Ranked list of online, available drivers around a point, expanding ring by ring.
// @Tags         Drivers
// @Produce      json
// @Param        lat query number true "Latitude"
// @Param        lng query number true "Longitude"
// @Param        min_count query int false "Stop expanding once this many candidates are found"
// @Success      200  {object}  models.NearbyResult
// @Security     BearerAuth
// @Router       /drivers/nearby [get]
func (h *Driver) Nearby(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "nearby_drivers")

	v := validator.New()
	qs := r.URL.Query()

	lat, _ := readFloat(qs, "lat", v)
	lng, _ := readFloat(qs, "lng", v)
	minCount := readInt(qs, "min_count", 0, v)

	v.Check(lat >= -90 && lat <= 90, "lat", "must be between -90 and 90")
	v.Check(lng >= -180 && lng <= 180, "lng", "must be between -180 and 180")
	v.Check(minCount >= 0 && minCount <= 50, "min_count", "must be between 0 and 50")

	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	constraints := nearby.DefaultConstraints(h.maxRings)
	if minCount > 0 {
		constraints.MinCount = minCount
	}

	result, err := h.nearby.FindNearby(ctx, lat, lng, constraints)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "nearby search failed", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{
		"candidates":    result.Candidates,
		"search_radius": result.SearchRadius,
	}, nil); err != nil {
		internalErrorResponse(w, err.Error())
		return
	}
}
