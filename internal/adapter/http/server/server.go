package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Temutjin2k/dispatch-core/config"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/handler"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/middleware"
	wshandler "github.com/Temutjin2k/dispatch-core/internal/adapter/ws"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
)

const (
	serverIPAddress = "%s:%s"
	serviceName     = "dispatch-core"
)

type API struct {
	mux     *http.ServeMux
	server  *http.Server
	routes  *handlers
	gateway *wshandler.Gateway
	m       *middleware.Middleware

	addr string
	log  logger.Logger
}

type handlers struct {
	health *handler.Health
	ride   *handler.Ride
	driver *handler.Driver
	admin  *handler.Admin
}

func New(
	cfg config.Config,
	dispatchService handler.DispatchService,
	nearbyService handler.NearbyService,
	adminService handler.AdminService,
	tokens middleware.AuthService,
	gateway *wshandler.Gateway,
	probes map[string]handler.Probe,
	log logger.Logger,
) (*API, error) {
	if tokens == nil {
		return nil, errors.New("token service is required")
	}

	routes := &handlers{
		health: handler.NewHealth(serviceName, probes, log),
		ride:   handler.NewRide(dispatchService, nearbyService, cfg.Dispatch.MaxRings, log),
		driver: handler.NewDriver(nearbyService, cfg.Dispatch.MaxRings, log),
		admin:  handler.NewAdmin(adminService, log),
	}

	api := &API{
		mux:     http.NewServeMux(),
		routes:  routes,
		gateway: gateway,
		m:       middleware.NewMiddleware(tokens, log),
		addr:    fmt.Sprintf(serverIPAddress, "0.0.0.0", cfg.Server.Port),
		log:     log,
	}

	api.setupRoutes()

	api.server = &http.Server{
		Addr:    api.addr,
		Handler: api.withMiddleware(),
	}

	return api, nil
}

func (a *API) Run(ctx context.Context, errCh chan<- error) {
	go func() {
		ctx = wrap.WithAction(ctx, "http_server_start")
		a.log.Info(ctx, "started http server", "address", a.addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start HTTP server: %w", err)
			return
		}
	}()
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}

// withMiddleware applies middlewares to the mux
func (a *API) withMiddleware() http.Handler {
	return a.m.Recover(a.m.RequestID(a.m.Metrics(serviceName)(a.m.Logging(a.m.Auth(a.mux)))))
}
