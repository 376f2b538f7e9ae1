package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veriline/veriline-backend/api/controllers"
	"github.com/veriline/veriline-backend/api/middleware"
	"github.com/veriline/veriline-backend/internal/orchestrator"
	"github.com/veriline/veriline-backend/internal/pipeline"
	"github.com/veriline/veriline-backend/pkg/config"
	"github.com/veriline/veriline-backend/pkg/logger"
	pkgredis "github.com/veriline/veriline-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers. Nil entries are
// tolerated; the affected handlers answer with an internal error instead of
// panicking at mount time.
type Deps struct {
	Pipeline     pipeline.Service
	Orchestrator orchestrator.Service
	Events       controllers.EventDriver
	Catalog      controllers.Suggester
	Idempotency  pkgredis.IdempotencyStore
	Readiness    map[string]controllers.Pinger
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Get("/healthz", controllers.HealthLive(cfg))
	r.Get("/readyz", controllers.HealthReady(cfg, logg, deps.Readiness))
	r.Get("/ping", controllers.PublicPing())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.Route("/line-items", func(r chi.Router) {
			r.Post("/validate", controllers.ValidateLineItem(deps.Pipeline, logg))
			r.Post("/validate/batch", controllers.ValidateLineItemBatch(deps.Pipeline, logg))
			r.Route("/{lineItemId}", func(r chi.Router) {
				r.Get("/status", controllers.LineItemStatus(deps.Orchestrator, logg))
				r.Patch("/status", controllers.OverrideLineItemStatus(deps.Orchestrator, logg))
				r.Post("/decision", controllers.LineItemDecision(deps.Orchestrator, logg))
			})
		})

		r.Post("/events", controllers.IngestDomainEvent(deps.Events, logg))
		r.Get("/catalog/suggestions", controllers.CatalogSuggestions(deps.Catalog, logg))
	})

	return r
}
