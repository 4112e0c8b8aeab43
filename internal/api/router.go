package api

import (
	"net/http"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/api/handler"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/api/middleware"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/api/spec"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/config"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Router wires the draft pipeline behind the HTTP surface.
type Router struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *pgxpool.Pool
	redis    redis.Cmdable
	pipeline *service.Pipeline
	archive  handler.SubmissionHistory
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redis redis.Cmdable, pipeline *service.Pipeline, archive handler.SubmissionHistory) *Router {
	return &Router{cfg: cfg, logger: logger, db: db, redis: redis, pipeline: pipeline, archive: archive}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	draftHandler := handler.NewDraftHandler(api.pipeline)
	historyHandler := handler.NewHistoryHandler(api.archive)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/healthz/live", healthHandler.Live)
		r.Get("/healthz/ready", healthHandler.Ready)
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Draft lifecycle
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Post("/v1/drafts", draftHandler.CreateDraft)
		r.Route("/v1/drafts/{id}", func(r chi.Router) {
			r.Get("/", draftHandler.GetDraft)
			r.Patch("/", draftHandler.UpdateFields)
			r.Delete("/", draftHandler.Discard)
			r.Put("/currency", draftHandler.ChangeCurrency)
			r.Put("/bank-code", draftHandler.EnterBankCode)
			r.Get("/validation", draftHandler.Validation)
			r.Get("/rate", draftHandler.Rate)
			r.Post("/attachments", draftHandler.Attach)
			r.Post("/submit", draftHandler.Submit)
			r.Post("/retry", draftHandler.Retry)
			r.Post("/dismiss", draftHandler.Dismiss)
			r.Get("/submissions", historyHandler.ListByDraft)
		})
		r.Get("/v1/submissions/{reference}", historyHandler.GetByReference)
	})

	return r
}
