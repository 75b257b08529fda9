package server

import (
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// setupRoutes - setups http routes
func (a *API) setupRoutes() {
	// System
	a.mux.HandleFunc("GET /health", a.routes.health.HealthCheck)
	a.mux.Handle("/metrics", promhttp.Handler())
	a.mux.HandleFunc("/swagger/", httpSwagger.Handler())

	// Bidirectional channel for drivers and riders
	a.mux.HandleFunc("GET /ws", a.gateway.HandleWS)

	// Ride requests (dispatch offers)
	a.mux.Handle("POST /rides", a.m.RequireRoles(a.routes.ride.CreateRide, types.RiderRole))
	a.mux.Handle("POST /rides/{ride_id}/cancel", a.m.RequireRoles(a.routes.ride.CancelRide, types.RiderRole))
	a.mux.Handle("GET /rides/{ride_id}", a.m.RequireRoles(a.routes.ride.GetRide, types.RiderRole, types.AdminRole))

	// Nearby query
	a.mux.Handle("GET /drivers/nearby", a.m.RequireRoles(a.routes.driver.Nearby, types.RiderRole, types.AdminRole))

	// Admin surface
	a.mux.Handle("GET /admin/drivers/pending", a.m.RequireRoles(a.routes.admin.PendingDrivers, types.AdminRole))
	a.mux.Handle("POST /admin/drivers/{driver_id}/verify", a.m.RequireRoles(a.routes.admin.VerifyDriver, types.AdminRole))
	a.mux.Handle("POST /admin/drivers/{driver_id}/block", a.m.RequireRoles(a.routes.admin.BlockDriver, types.AdminRole))
	a.mux.Handle("GET /admin/drivers/{driver_id}/audit", a.m.RequireRoles(a.routes.admin.DriverAudit, types.AdminRole))
	a.mux.Handle("POST /admin/sync/trigger", a.m.RequireRoles(a.routes.admin.TriggerSync, types.AdminRole))
	a.mux.Handle("GET /admin/sync/status", a.m.RequireRoles(a.routes.admin.SyncStatus, types.AdminRole))
}
