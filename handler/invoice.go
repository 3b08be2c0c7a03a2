package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/monopay/infra/logger"
	"github.com/mstgnz/monopay/infra/middle"
	"github.com/mstgnz/monopay/infra/response"
	"github.com/mstgnz/monopay/infra/validate"
	"github.com/mstgnz/monopay/provider"
)

const requestTimeout = 30 * time.Second

// PaymentServiceInterface defines the invoice operations used by the handlers
type PaymentServiceInterface interface {
	CreatePaymentInvoice(ctx context.Context, req provider.PaymentInvoiceRequest) (string, error)
	InvoiceStatus(ctx context.Context, invoiceID string) (*provider.InvoiceStatus, error)
}

// InvoiceResponse is the data of a successful invoice creation
type InvoiceResponse struct {
	PaymentURL string `json:"paymentUrl"`
}

// InvoiceHandler handles invoice related HTTP requests
type InvoiceHandler struct {
	paymentService PaymentServiceInterface
	validate       *validator.Validate
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(paymentService PaymentServiceInterface, validate *validator.Validate) *InvoiceHandler {
	return &InvoiceHandler{
		paymentService: paymentService,
		validate:       validate,
	}
}

// CreateInvoice issues a provider invoice for a payment request
func (h *InvoiceHandler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req provider.PaymentInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", errors.New(validate.Messages(err)))
		return
	}

	pageURL, err := h.paymentService.CreatePaymentInvoice(ctx, req)
	if err != nil {
		status, message := invoiceErrorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("Invoice request failed", err, logger.LogContext{
				Provider:  "monopay",
				RequestID: middle.GetRequestID(r.Context()),
				Fields:    map[string]any{"order_id": req.OrderID},
			})
		}
		response.Error(w, status, message, err)
		return
	}

	response.Success(w, http.StatusCreated, "Invoice created", InvoiceResponse{PaymentURL: pageURL})
}

// GetInvoiceStatus returns the provider's view of an invoice
func (h *InvoiceHandler) GetInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	invoiceID := chi.URLParam(r, "invoiceID")
	if !validate.IsInvoiceID(invoiceID) {
		response.Error(w, http.StatusBadRequest, "Invalid invoice ID", nil)
		return
	}

	status, err := h.paymentService.InvoiceStatus(ctx, invoiceID)
	if err != nil {
		code, message := invoiceErrorStatus(err)
		response.Error(w, code, message, err)
		return
	}

	response.Success(w, http.StatusOK, "Invoice status", status)
}

func invoiceErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, provider.ErrUnsupportedCurrency), errors.Is(err, provider.ErrInvalidAmount):
		return http.StatusBadRequest, "Validation error"
	case errors.Is(err, provider.ErrUnresolvedOrder):
		return http.StatusNotFound, "Payment request not found"
	case errors.Is(err, provider.ErrProviderError):
		return http.StatusBadGateway, "Payment provider error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Payment provider timeout"
	default:
		return http.StatusInternalServerError, "Invoice request failed"
	}
}
