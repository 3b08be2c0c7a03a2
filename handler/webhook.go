package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/mstgnz/monopay/infra/logger"
	"github.com/mstgnz/monopay/infra/middle"
	"github.com/mstgnz/monopay/infra/response"
	"github.com/mstgnz/monopay/provider"
)

// SignatureHeader carries the provider's signature of the raw body
const SignatureHeader = "X-Sign"

// CallbackServiceInterface settles provider callbacks
type CallbackServiceInterface interface {
	HandleCallback(ctx context.Context, body []byte, signature string) error
}

// WebhookHandler handles provider callbacks
type WebhookHandler struct {
	callbackService CallbackServiceInterface
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(callbackService CallbackServiceInterface) *WebhookHandler {
	return &WebhookHandler{callbackService: callbackService}
}

// HandleCallback verifies and settles one callback. Non-2xx answers make the provider retry.
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	// the signature covers these exact bytes
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return
		}
		response.Error(w, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	err = h.callbackService.HandleCallback(ctx, body, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		response.Success(w, http.StatusOK, "Callback accepted", nil)
	case errors.Is(err, provider.ErrInvalidSignature):
		response.Error(w, http.StatusBadRequest, "Invalid signature", nil)
	case errors.Is(err, provider.ErrMalformedPayload):
		response.Error(w, http.StatusBadRequest, "Malformed payload", err)
	default:
		logger.Error("Callback processing failed", err, logger.LogContext{
			Provider:  "monopay",
			RequestID: middle.GetRequestID(r.Context()),
		})
		response.Error(w, http.StatusInternalServerError, "Callback processing failed", nil)
	}
}
