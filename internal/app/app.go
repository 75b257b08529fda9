// Package app wires the dispatch core together: storage, broker,
// services, the websocket gateway and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Temutjin2k/dispatch-core/config"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/handler"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/http/server"
	repo "github.com/Temutjin2k/dispatch-core/internal/adapter/postgres"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/rabbit"
	redisadapter "github.com/Temutjin2k/dispatch-core/internal/adapter/redis"
	"github.com/Temutjin2k/dispatch-core/internal/adapter/routing"
	wshandler "github.com/Temutjin2k/dispatch-core/internal/adapter/ws"
	"github.com/Temutjin2k/dispatch-core/internal/geo"
	"github.com/Temutjin2k/dispatch-core/internal/service/admin"
	"github.com/Temutjin2k/dispatch-core/internal/service/auth"
	"github.com/Temutjin2k/dispatch-core/internal/service/dispatch"
	"github.com/Temutjin2k/dispatch-core/internal/service/locationsync"
	"github.com/Temutjin2k/dispatch-core/internal/service/nearby"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/Temutjin2k/dispatch-core/pkg/postgres"
	pkgrabbit "github.com/Temutjin2k/dispatch-core/pkg/rabbit"
	"github.com/Temutjin2k/dispatch-core/pkg/redis"
	"github.com/Temutjin2k/dispatch-core/pkg/trm"
	ws "github.com/Temutjin2k/dispatch-core/pkg/wsHub"
)

type App struct {
	postgresDB  *postgres.PostgreDB
	redisClient redis.Client
	rabbitMQ    *pkgrabbit.RabbitMQ

	connections *ws.ConnectionHub
	dispatchSvc *dispatch.Service
	syncWorker  *locationsync.Worker
	httpServer  *server.API

	cfg config.Config
	log logger.Logger
}

func NewApplication(ctx context.Context, cfg config.Config, log logger.Logger) (*App, error) {
	// Drivers and the server must land on the same cell for the same
	// coordinates, so the codec resolution is compiled in. A config that
	// asks for anything else is a deployment mistake.
	if cfg.Dispatch.CellResolution != geo.Resolution {
		return nil, fmt.Errorf("unsupported cell resolution %d, codec is built for %d", cfg.Dispatch.CellResolution, geo.Resolution)
	}

	postgresDB, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		log.Error(ctx, "failed to setup database", err)
		return nil, err
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error(ctx, "failed to setup redis", err)
		return nil, err
	}

	rabbitMQ, err := pkgrabbit.New(ctx, cfg.RabbitMQ.GetDSN(), log)
	if err != nil {
		log.Error(ctx, "failed to setup rabbitmq", err)
		return nil, err
	}

	// Adapters
	driverRepo := repo.NewDriverRepo(postgresDB.Pool)
	auditRepo := repo.NewAuditRepo(postgresDB.Pool)
	positionStore := redisadapter.NewPositionStore(redisClient, cfg.Dispatch.PositionTTL())
	offerStore := redisadapter.NewOfferStore(redisClient)
	router := routing.New(cfg.Routing.BaseURL, cfg.Dispatch.RoutingTimeout())

	producer, err := rabbit.NewDispatchProducer(rabbitMQ, log)
	if err != nil {
		log.Error(ctx, "failed to setup dispatch producer", err)
		return nil, err
	}

	// Connection registry and egress
	connections := ws.NewConnHub(log)
	egress := wshandler.NewEgress(connections)

	// Services
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, log)
	nearbySvc := nearby.New(positionStore, driverRepo, router, cfg.Dispatch.RoutingTimeout(), cfg.Dispatch.AssumedSpeedKmh, log)
	dispatchSvc := dispatch.New(offerStore, positionStore, driverRepo, egress, producer, cfg.Dispatch.OfferTTL(), log)
	syncWorker := locationsync.NewWorker(positionStore, driverRepo, cfg.Dispatch.SyncCadence, log)
	adminSvc := admin.NewAdminService(driverRepo, auditRepo, trm.New(postgresDB.Pool), syncWorker, log)

	// Ingress
	gateway := wshandler.NewGateway(connections, tokens, driverRepo, positionStore, dispatchSvc, log)

	probes := map[string]handler.Probe{
		"postgres": postgresDB.Pool.Ping,
		"redis":    redisClient.Ping,
		"rabbitmq": func(pctx context.Context) error { return rabbitMQ.EnsureConnection(pctx) },
	}

	httpServer, err := server.New(cfg, dispatchSvc, nearbySvc, adminSvc, tokens, gateway, probes, log)
	if err != nil {
		log.Error(ctx, "failed to setup http server", err)
		return nil, err
	}

	return &App{
		postgresDB:  postgresDB,
		redisClient: redisClient,
		rabbitMQ:    rabbitMQ,
		connections: connections,
		dispatchSvc: dispatchSvc,
		syncWorker:  syncWorker,
		httpServer:  httpServer,
		cfg:         cfg,
		log:         log,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	if err := a.syncWorker.Start(ctx); err != nil {
		return err
	}

	a.httpServer.Run(ctx, errCh)
	defer func() {
		a.close(ctx)
		a.log.Info(ctx, "dispatch core closed")
	}()

	// Waiting signal
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info(ctx, "dispatch core started")

	select {
	case errRun := <-errCh:
		return errRun
	case sig := <-shutdownCh:
		a.log.Info(ctx, "shutting down application", "signal", sig.String())
		return nil
	}
}

func (a *App) close(ctx context.Context) {
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Warn(ctx, "failed to gracefully close http server", "error", err.Error())
		}
	}

	// Stop the cadence before tearing down its stores.
	if a.syncWorker != nil {
		a.syncWorker.Stop()
	}
	if a.dispatchSvc != nil {
		a.dispatchSvc.Close()
	}
	if a.connections != nil {
		a.connections.Close()
	}

	if a.rabbitMQ != nil {
		if err := a.rabbitMQ.Close(ctx); err != nil {
			a.log.Warn(ctx, "failed to close rabbitmq", "error", err.Error())
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn(ctx, "failed to close redis", "error", err.Error())
		}
	}
	if a.postgresDB != nil && a.postgresDB.Pool != nil {
		a.postgresDB.Pool.Close()
	}
}
