// Package handler provides the HTTP handlers of the monopay gateway.
//
//   - InvoiceHandler: issues invoices and reports invoice status
//   - WebhookHandler: receives provider callbacks
//   - SettingsHandler: reads and updates the monopay settings
//   - HealthHandler: liveness and dependency checks
//
// Handlers answer with the infra/response envelope. Service errors are
// mapped to status codes with errors.Is against the provider sentinels, so
// 400 means the caller sent something invalid, 404 an unknown payment
// request and 502 a failure reported by the provider.
package handler
