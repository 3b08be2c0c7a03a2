package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/mstgnz/monopay/handler"
	"github.com/mstgnz/monopay/infra/middle"
	"github.com/mstgnz/monopay/infra/response"
	"github.com/mstgnz/monopay/provider"
	v1 "github.com/mstgnz/monopay/router/v1"
)

// Options holds everything the HTTP surface is built from
type Options struct {
	APIKey      string
	RateLimiter *middle.RateLimiter
	Health      *handler.HealthHandler
	Invoices    *handler.InvoiceHandler
	Webhooks    *handler.WebhookHandler
	Settings    *handler.SettingsHandler
}

// New builds the root router with the global middleware chain
func New(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middle.RequestLoggingMiddleware())
	r.Use(middle.PanicRecoveryMiddleware())
	r.Use(middle.SecurityHeadersMiddleware())
	if opts.RateLimiter != nil {
		r.Use(middle.RateLimitMiddleware(opts.RateLimiter))
	}
	r.Use(middle.RequestValidationMiddleware(provider.CallbackPath))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middle.RequestIDHeader},
		ExposedHeaders: []string{middle.RequestIDHeader},
		MaxAge:         300,
	}))

	Routes(r, opts)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "Not Found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
	})

	return r
}

// Routes registers the public routes and mounts the authenticated API under /v1
func Routes(r chi.Router, opts Options) {
	r.Get("/health", opts.Health.CheckHealth)

	// no auth: the provider signs the body instead
	r.Post(provider.CallbackPath, opts.Webhooks.HandleCallback)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middle.AuthMiddleware(opts.APIKey))
		v1.Routes(r, opts.Invoices, opts.Settings)
	})
}
