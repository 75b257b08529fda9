package handler

import (
	"context"
	"net/http"

	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/handler/dto"
	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/service/locationsync"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
	"github.com/Temutjin2k/dispatch-core/pkg/validator"
)

type AdminService interface {
	PendingVerifications(ctx context.Context, limit int) ([]models.Driver, error)
	SetVerified(ctx context.Context, adminID, driverID uuid.UUID, verified bool) error
	SetBlocked(ctx context.Context, adminID, driverID uuid.UUID, blocked bool) error
	AuditTrail(ctx context.Context, driverID uuid.UUID, limit int) ([]models.VerificationEvent, error)
	TriggerSync(ctx context.Context) (locationsync.RunReport, error)
	SyncStatus() locationsync.Status
}

type Admin struct {
	s AdminService
	l logger.Logger
}

func NewAdmin(s AdminService, l logger.Logger) *Admin {
	return &Admin{
		s: s,
		l: l,
	}
}

// PendingDrivers godoc
// @Summary      Drivers awaiting verification
// @Tags         Admin
// @Produce      json
// @Param        limit query int false "Max rows"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /admin/drivers/pending [get]
func (h *Admin) PendingDrivers(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_pending_drivers")

	v := validator.New()
	limit := readInt(r.URL.Query(), "limit", 20, v)
	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	drivers, err := h.s.PendingVerifications(ctx, limit)
	if err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to list pending drivers", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"drivers": drivers}, nil); err != nil {
		internalErrorResponse(w, err.Error())
		return
	}
}

// VerifyDriver godoc
// @Summary      Set driver verification
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        driver_id path string true "Driver ID"
// @Param        request body dto.VerifyDriverRequest true "Verification flag"
// @Success      200  {object}  map[string]string
// @Security     BearerAuth
// @Router       /admin/drivers/{driver_id}/verify [post]
func (h *Admin) VerifyDriver(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_verify_driver")

	driverID, err := pathUUID(r, "driver_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	var req dto.VerifyDriverRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	admin := models.UserFromContext(ctx)
	if err := h.s.SetVerified(ctx, admin.ID, driverID, req.Verified); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to set verification", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"status": "updated"}, nil); err != nil {
		internalErrorResponse(w, err.Error())
		return
	}
}

// BlockDriver godoc
// @Summary      Set driver block flag
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        driver_id path string true "Driver ID"
// @Param        request body dto.BlockDriverRequest true "Block flag"
// @Success      200  {object}  map[string]string
// @Security     BearerAuth
// @Router       /admin/drivers/{driver_id}/block [post]
func (h *Admin) BlockDriver(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_block_driver")

	driverID, err := pathUUID(r, "driver_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	var req dto.BlockDriverRequest
	if err := readJSON(w, r, &req); err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	admin := models.UserFromContext(ctx)
	if err := h.s.SetBlocked(ctx, admin.ID, driverID, req.Blocked); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to set block flag", err)
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"status": "updated"}, nil); err != nil {
		internalErrorResponse(w, err.Error())
		return
	}
}

// DriverAudit godoc
// @Summary      Verification audit trail for a driver
// @Tags         Admin
// @Produce      json
// @Param        driver_id path string true "Driver ID"
// @Param        limit query int false "Max rows"
// @Success      200  {object}  map[string]any
// @Security     BearerAuth
// @Router       /admin/drivers/{driver_id}/audit [get]
func (h *Admin) DriverAudit(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_driver_audit")

	driverID, err := pathUUID(r, "driver_id")
	if err != nil {
		badRequestResponse(w, err.Error())
		return
	}

	v := validator.New()
	limit := readInt(r.URL.Query(), "limit", 20, v)
	if !v.Valid() {
		failedValidationResponse(w, v.Errors)
		return
	}

	events, err := h.s.AuditTrail(ctx, driverID, limit)
	if err != nil {
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"events": events}, nil); err != nil {
		internalErrorResponse(w, err.Error())
		return
	}
}

// TriggerSync godoc
// @Summary      Run the location sync now
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  locationsync.RunReport
// @Failure      409  {object}  map[string]string
// @Security     BearerAuth
// @Router       /admin/sync/trigger [post]
func (h *Admin) TriggerSync(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "admin_trigger_sync")

	report, err := h.s.TriggerSync(ctx)
	if err != nil {
		h.l.Warn(ctx, "manual sync trigger failed", "err", err.Error())
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusOK, envelope{"report": report}, nil); err != nil {
		internalErrorResponse(w, err.Error())
		return
	}
}

// SyncStatus godoc
// @Summary      Location sync worker status
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  locationsync.Status
// @Security     BearerAuth
// @Router       /admin/sync/status [get]
func (h *Admin) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if err := writeJSON(w, http.StatusOK, envelope{"sync": h.s.SyncStatus()}, nil); err != nil {
		internalErrorResponse(w, err.Error())
		return
	}
}
