package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
)

// Probe checks one dependency. Wired at startup (postgres, redis, rabbit).
type Probe func(ctx context.Context) error

type Health struct {
	serviceName string
	probes      map[string]Probe
	log         logger.Logger
}

func NewHealth(serviceName string, probes map[string]Probe, log logger.Logger) *Health {
	return &Health{
		serviceName: serviceName,
		probes:      probes,
		log:         log,
	}
}

// HealthCheck godoc
// @Summary      Health Check
// @Description  Returns the health status of the service and its dependencies
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      503  {object}  map[string]any
// @Router       /health [get]
func (a *Health) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := wrap.WithAction(r.Context(), "health_check")
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(a.probes))
	for name, probe := range a.probes {
		if err := probe(ctx); err != nil {
			a.log.Warn(ctx, "dependency probe failed", "dependency", name, "err", err.Error())
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "available"
	}

	overall := "available"
	if status != http.StatusOK {
		overall = "degraded"
	}

	response := envelope{
		"status":       overall,
		"dependencies": deps,
		"system_info": map[string]string{
			"service-name": a.serviceName,
		},
	}

	if err := writeJSON(w, status, response, nil); err != nil {
		a.log.Error(ctx, "healthcheck", err)
		return
	}
}
