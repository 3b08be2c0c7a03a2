package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/monopay/handler"
)

// Routes registers the authenticated API routes
func Routes(r chi.Router, invoices *handler.InvoiceHandler, settings *handler.SettingsHandler) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/", invoices.CreateInvoice)
		r.Get("/{invoiceID}", invoices.GetInvoiceStatus)
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", settings.GetSettings)
		r.Put("/", settings.UpdateSettings)
	})
}
