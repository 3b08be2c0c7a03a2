// Package provider implements the invoice lifecycle between a host order
// system and the Monobank acquiring API.
//
// # Core Concepts
//
//   - Gateway: the provider API surface (invoice create, merchant public key, invoice status)
//   - WebhookVerifier: authenticates callback bodies against the X-Sign header
//   - PaymentService: issues invoices and settles them from callbacks
//   - InvoiceCache: the pending invoiceId to payment request mapping
//   - GatewayRegistry: gateway registration and discovery
//
// # Issuing an invoice
//
//	svc := provider.NewPaymentService(provider.ServiceConfig{
//	    Gateway:    gw,
//	    Verifier:   verifier,
//	    Repository: repo,
//	    Cache:      provider.NewMemoryInvoiceCache(24 * time.Hour),
//	    URLs:       provider.StaticURLBuilder("https://shop.example.com"),
//	})
//
//	pageURL, err := svc.CreatePaymentInvoice(ctx, provider.PaymentInvoiceRequest{
//	    OrderID:  "PR-001",
//	    Amount:   decimal.RequireFromString("5.00"),
//	    Currency: "USD",
//	})
//
// The amount is given in major units and must be greater than 1. It is
// converted to minor units with decimal arithmetic, so 19.99 becomes 1999.
//
// # Settling
//
// The provider posts status updates to CallbackPath. HandleCallback verifies
// the signature, and on status success claims the mapping with
// CompareAndDelete before marking the payment request paid. Duplicate
// deliveries therefore settle once. When MarkPaid fails the mapping is put
// back so the provider's retry can settle it.
//
// # Errors
//
// Validation and callback failures wrap the sentinels ErrUnsupportedCurrency,
// ErrInvalidAmount, ErrInvalidSignature and ErrMalformedPayload. Gateway and
// repository errors are returned unchanged and match ErrProviderError or
// ErrUnresolvedOrder through errors.Is.
package provider
