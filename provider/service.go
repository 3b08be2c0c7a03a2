package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mstgnz/monopay/infra/logger"
	"github.com/mstgnz/monopay/infra/opensearch"
)

const (
	providerName   = "monopay"
	restoreTimeout = 5 * time.Second
)

// ServiceConfig wires the collaborators of PaymentService
type ServiceConfig struct {
	Gateway    Gateway
	Verifier   WebhookVerifier
	Repository PaymentRequestRepository
	Cache      InvoiceCache
	URLs       URLBuilder
	Overrides  URLOverrides
	Events     PaymentEventLogger
	// Diagnostics fetches and logs the invoice status on every verified callback
	Diagnostics bool
}

// PaymentService issues invoices and settles them from provider callbacks
type PaymentService struct {
	gateway     Gateway
	verifier    WebhookVerifier
	repo        PaymentRequestRepository
	cache       InvoiceCache
	urls        URLBuilder
	overrides   URLOverrides
	events      PaymentEventLogger
	diagnostics bool
}

// NewPaymentService creates a new payment service
func NewPaymentService(cfg ServiceConfig) *PaymentService {
	return &PaymentService{
		gateway:     cfg.Gateway,
		verifier:    cfg.Verifier,
		repo:        cfg.Repository,
		cache:       cfg.Cache,
		urls:        cfg.URLs,
		overrides:   cfg.Overrides,
		events:      cfg.Events,
		diagnostics: cfg.Diagnostics,
	}
}

// CreatePaymentInvoice creates a provider invoice for a payment request and
// returns the payer-facing page URL.
func (s *PaymentService) CreatePaymentInvoice(ctx context.Context, req PaymentInvoiceRequest) (string, error) {
	startTime := time.Now()

	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	title := req.Title
	if title == "" {
		title = DefaultTitle
	}

	ccy, err := CurrencyCode(currency)
	if err != nil {
		return "", err
	}
	if err := ValidateAmount(req.Amount); err != nil {
		return "", err
	}
	minor, err := ToMinorUnits(req.Amount)
	if err != nil {
		return "", err
	}

	pr, err := s.repo.Get(ctx, req.OrderID)
	if err != nil {
		return "", err
	}

	invoiceReq := InvoiceRequest{
		Amount:      minor,
		Ccy:         ccy,
		WebHookURL:  s.webhookURL(),
		RedirectURL: s.redirectURL(pr.ReferenceName),
		MerchantPaymInfo: &MerchantPaymInfo{
			Reference:   pr.ID,
			Destination: title,
			Comment:     req.Description,
		},
	}
	if req.ProductName != "" {
		invoiceReq.MerchantPaymInfo.BasketOrder = []BasketItem{{
			Name: req.ProductName,
			Qty:  1,
			Sum:  minor,
			Icon: req.ProductURL,
		}}
	}

	invoice, err := s.gateway.CreateInvoice(ctx, invoiceReq)
	if err != nil {
		logger.Error("Invoice creation failed", err, logger.LogContext{
			Provider: providerName,
			Fields: map[string]any{
				"payment_request_id": pr.ID,
				"amount":             minor,
				"ccy":                ccy,
			},
		})
		s.logEvent(ctx, opensearch.PaymentEvent{
			Type:             opensearch.EventInvoiceFailed,
			PaymentRequestID: pr.ID,
			Amount:           minor,
			Currency:         ccy,
			Error:            err.Error(),
			ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		})
		return "", err
	}

	if err := s.cache.Set(ctx, invoice.InvoiceID, pr.ID); err != nil {
		// the invoice exists at the provider but its callback could never settle
		return "", fmt.Errorf("failed to store invoice mapping %s: %w", invoice.InvoiceID, err)
	}

	logger.Info("Invoice created", logger.LogContext{
		Provider: providerName,
		Fields: map[string]any{
			"invoice_id":         invoice.InvoiceID,
			"payment_request_id": pr.ID,
			"amount":             minor,
			"ccy":                ccy,
		},
	})
	s.logEvent(ctx, opensearch.PaymentEvent{
		Type:             opensearch.EventInvoiceIssued,
		InvoiceID:        invoice.InvoiceID,
		PaymentRequestID: pr.ID,
		Status:           string(StatusCreated),
		Amount:           minor,
		Currency:         ccy,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	})

	return invoice.PageURL, nil
}

// HandleCallback authenticates a provider callback and settles the payment
// request on success. Unknown invoices and non-success statuses return nil.
func (s *PaymentService) HandleCallback(ctx context.Context, body []byte, signature string) error {
	startTime := time.Now()

	if err := s.verifier.Verify(ctx, body, signature); err != nil {
		logger.Warn("Webhook rejected", logger.LogContext{
			Provider: providerName,
			Fields:   map[string]any{"error": err.Error()},
		})
		if errors.Is(err, ErrInvalidSignature) {
			s.logEvent(ctx, opensearch.PaymentEvent{Type: opensearch.EventWebhookRejected, Error: err.Error()})
		}
		return err
	}

	event, err := ParseWebhook(body)
	if err != nil {
		s.logEvent(ctx, opensearch.PaymentEvent{Type: opensearch.EventWebhookRejected, Error: err.Error()})
		return err
	}

	logCtx := logger.LogContext{
		Provider: providerName,
		Fields: map[string]any{
			"invoice_id": event.InvoiceID,
			"status":     string(event.Status),
		},
	}

	if s.diagnostics {
		s.logInvoiceStatus(ctx, event.InvoiceID)
	}

	if event.Status != StatusSuccess {
		logger.Info("Webhook status does not settle", logCtx)
		s.logEvent(ctx, opensearch.PaymentEvent{
			Type:      opensearch.EventWebhookIgnored,
			InvoiceID: event.InvoiceID,
			Status:    string(event.Status),
			Amount:    event.Amount,
			Currency:  event.Ccy,
		})
		return nil
	}

	prID, found, err := s.cache.Get(ctx, event.InvoiceID)
	if err != nil {
		return fmt.Errorf("failed to read invoice mapping %s: %w", event.InvoiceID, err)
	}
	if !found {
		logger.Warn("No pending payment request for invoice", logCtx)
		s.logEvent(ctx, opensearch.PaymentEvent{
			Type:      opensearch.EventWebhookUnmatched,
			InvoiceID: event.InvoiceID,
			Status:    string(event.Status),
		})
		return nil
	}

	claimed, err := s.cache.CompareAndDelete(ctx, event.InvoiceID, prID)
	if err != nil {
		return fmt.Errorf("failed to claim invoice mapping %s: %w", event.InvoiceID, err)
	}
	if !claimed {
		logger.Info("Invoice already claimed by a concurrent delivery", logCtx)
		return nil
	}

	if err := s.repo.MarkPaid(ctx, prID); err != nil {
		// the request context may be the reason MarkPaid failed
		restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
		restoreErr := s.cache.Set(restoreCtx, event.InvoiceID, prID)
		cancel()
		if restoreErr != nil {
			logger.Error("Failed to restore invoice mapping", restoreErr, logCtx)
		}
		logger.Error("Failed to mark payment request as paid", err, logCtx)
		return fmt.Errorf("failed to settle payment request %s: %w", prID, err)
	}

	logCtx.Fields["payment_request_id"] = prID
	logger.Info("Payment request set as paid", logCtx)
	s.logEvent(ctx, opensearch.PaymentEvent{
		Type:             opensearch.EventWebhookSettled,
		InvoiceID:        event.InvoiceID,
		PaymentRequestID: prID,
		Status:           string(event.Status),
		Amount:           event.Amount,
		Currency:         event.Ccy,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	})

	return nil
}

// ErrNotReady is returned by Ready when a collaborator is missing
var ErrNotReady = errors.New("payment service not ready")

// Ready reports whether every collaborator the invoice and callback paths need is wired
func (s *PaymentService) Ready() error {
	var missing []string
	if s.gateway == nil {
		missing = append(missing, "gateway")
	}
	if s.verifier == nil {
		missing = append(missing, "verifier")
	}
	if s.repo == nil {
		missing = append(missing, "repository")
	}
	if s.cache == nil {
		missing = append(missing, "cache")
	}
	if s.urls == nil {
		missing = append(missing, "url builder")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotReady, strings.Join(missing, ", "))
	}
	return nil
}

// InvoiceStatus returns the provider's current view of an invoice
func (s *PaymentService) InvoiceStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error) {
	return s.gateway.InvoiceStatus(ctx, invoiceID)
}

// ParseWebhook decodes a callback body and checks the fields settlement relies on
func ParseWebhook(body []byte) (*InvoiceStatus, error) {
	var event InvoiceStatus
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if event.InvoiceID == "" {
		return nil, fmt.Errorf("%w: invoiceId is missing", ErrMalformedPayload)
	}
	if event.Status == "" {
		return nil, fmt.Errorf("%w: status is missing", ErrMalformedPayload)
	}
	return &event, nil
}

func (s *PaymentService) webhookURL() string {
	if s.overrides != nil {
		if base := s.overrides.WebhookOverride(); base != "" {
			return strings.TrimRight(base, "/") + CallbackPath
		}
	}
	return s.urls.URL(CallbackPath)
}

func (s *PaymentService) redirectURL(referenceName string) string {
	if s.overrides != nil {
		if redirect := s.overrides.RedirectOverride(); redirect != "" {
			return redirect
		}
	}
	return s.urls.URL("/orders/" + referenceName)
}

func (s *PaymentService) logInvoiceStatus(ctx context.Context, invoiceID string) {
	status, err := s.gateway.InvoiceStatus(ctx, invoiceID)
	if err != nil {
		logger.Debug("Invoice status lookup failed", logger.LogContext{
			Provider: providerName,
			Fields:   map[string]any{"invoice_id": invoiceID, "error": err.Error()},
		})
		return
	}

	logger.Info("Invoice status", logger.LogContext{
		Provider: providerName,
		Fields: map[string]any{
			"invoice_id":     status.InvoiceID,
			"status":         string(status.Status),
			"amount":         status.Amount,
			"final_amount":   status.FinalAmount,
			"failure_reason": status.FailureReason,
		},
	})
}

func (s *PaymentService) logEvent(ctx context.Context, event opensearch.PaymentEvent) {
	if s.events == nil {
		return
	}
	event.Provider = providerName
	if err := s.events.LogPaymentEvent(ctx, event); err != nil {
		logger.Warn("Failed to record payment event", logger.LogContext{
			Provider: providerName,
			Fields:   map[string]any{"type": event.Type, "error": err.Error()},
		})
	}
}

// StaticURLBuilder joins paths onto a fixed host base URL
type StaticURLBuilder string

// URL returns base + path
func (b StaticURLBuilder) URL(path string) string {
	base := strings.TrimRight(string(b), "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
