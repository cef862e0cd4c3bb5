package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/repairdesk-backend/api/controllers"
	customercontrollers "github.com/angelmondragon/repairdesk-backend/api/controllers/customer"
	invoicecontrollers "github.com/angelmondragon/repairdesk-backend/api/controllers/invoices"
	outboxcontrollers "github.com/angelmondragon/repairdesk-backend/api/controllers/outbox"
	requestcontrollers "github.com/angelmondragon/repairdesk-backend/api/controllers/requests"
	"github.com/angelmondragon/repairdesk-backend/api/middleware"
	"github.com/angelmondragon/repairdesk-backend/internal/assignments"
	"github.com/angelmondragon/repairdesk-backend/internal/history"
	"github.com/angelmondragon/repairdesk-backend/internal/invoices"
	"github.com/angelmondragon/repairdesk-backend/internal/requests"
	"github.com/angelmondragon/repairdesk-backend/internal/workflow"
	"github.com/angelmondragon/repairdesk-backend/pkg/config"
	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	"github.com/angelmondragon/repairdesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/repairdesk-backend/pkg/redis"
)

// Dependencies are the services and infrastructure the HTTP surface is built from.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Redis controllers.Pinger

	Idempotency pkgredis.IdempotencyStore
	RateLimiter middleware.RateLimiter
	// Metrics serves /metrics; nil falls back to the default registry.
	Metrics http.Handler

	Requests    requests.Service
	Workflow    workflow.Service
	History     history.Service
	Assignments assignments.Service
	Invoices    invoices.Service
	// DeadLetters backs the admin view of outbox rows the relay gave up on.
	DeadLetters outboxcontrollers.DLQReader
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}, logg))
	})

	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.JWT, logg),
			middleware.RateLimit(deps.RateLimiter, cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow, logg),
			middleware.Idempotency(deps.Idempotency, cfg.Idempotency.TTL, logg),
		)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleStaff, enums.UserRoleAdmin))

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", requestcontrollers.Create(deps.Requests, logg))
				r.Get("/", requestcontrollers.List(deps.Requests, logg))
				r.Get("/ticket/{ticketCode}", requestcontrollers.GetByTicketCode(deps.Requests, logg))

				r.Route("/{requestId}", func(r chi.Router) {
					r.Get("/", requestcontrollers.Get(deps.Requests, logg))
					r.Get("/history", requestcontrollers.History(deps.History, logg))
					r.Get("/assignments", requestcontrollers.Assignments(deps.Assignments, logg))
					r.Post("/assign", requestcontrollers.Assign(deps.Assignments, logg))
					r.Patch("/device", requestcontrollers.UpdateDeviceDetails(deps.Requests, logg))
					r.Post("/notes", requestcontrollers.AddNote(deps.Requests, logg))
					r.Get("/actions", requestcontrollers.AvailableActions(deps.Workflow, logg))
					r.Post("/actions/{action}", requestcontrollers.ApplyAction(deps.Workflow, logg))

					r.Route("/invoice", func(r chi.Router) {
						r.Get("/", invoicecontrollers.GetForRequest(deps.Invoices, logg))
						r.Post("/", invoicecontrollers.Ensure(deps.Invoices, logg))
						r.Post("/quote", invoicecontrollers.GenerateQuote(deps.Invoices, logg))
						r.Post("/quote/approve", invoicecontrollers.ApproveQuote(deps.Invoices, logg))
						r.Post("/quote/reject", invoicecontrollers.RejectQuote(deps.Invoices, logg))
						r.Post("/finalize", invoicecontrollers.Finalize(deps.Invoices, logg))
					})
				})
			})

			r.Route("/invoices/{invoiceId}", func(r chi.Router) {
				r.Get("/", invoicecontrollers.Get(deps.Invoices, logg))
				r.Post("/items", invoicecontrollers.AddLineItem(deps.Invoices, logg))
				r.Post("/payment", invoicecontrollers.RecordPayment(deps.Invoices, logg))
			})

			r.Get("/assignments/me", requestcontrollers.MyAssignments(deps.Assignments, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Get("/dashboard", requestcontrollers.Dashboard(deps.Requests, logg))
			r.Get("/outbox/dlq", outboxcontrollers.DeadLetters(deps.DeadLetters, logg))
		})

		customer := customercontrollers.Services{
			Requests: deps.Requests,
			History:  deps.History,
			Invoices: deps.Invoices,
		}
		r.Route("/customer/requests", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleCustomer))

			r.Get("/", customercontrollers.List(customer, logg))
			r.Post("/", customercontrollers.Create(customer, logg))
			r.Route("/{requestId}", func(r chi.Router) {
				r.Get("/", customercontrollers.Get(customer, logg))
				r.Get("/history", customercontrollers.History(customer, logg))
				r.Get("/invoice", customercontrollers.Invoice(customer, logg))
				r.Post("/cancel", customercontrollers.Cancel(customer, logg))
				r.Post("/quote/approve", customercontrollers.ApproveQuote(customer, logg))
				r.Post("/quote/reject", customercontrollers.RejectQuote(customer, logg))
			})
		})
	})

	return r
}
