package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/temirbekov/mealdesk-backend/api/controllers"
	"github.com/temirbekov/mealdesk-backend/api/middleware"
	"github.com/temirbekov/mealdesk-backend/pkg/config"
	"github.com/temirbekov/mealdesk-backend/pkg/db"
	"github.com/temirbekov/mealdesk-backend/pkg/logger"
	"github.com/temirbekov/mealdesk-backend/pkg/redis"
)

// NewRouter wires the operational surface of the service. Domain operations
// are consumed as Go services by the callers that embed this module, so the
// router only exposes health and metrics.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return r
}
