package provider

import "errors"

var (
	ErrUnsupportedCurrency = errors.New("unsupported currency provided")
	ErrInvalidAmount       = errors.New("invalid transaction amount")
	ErrUnresolvedOrder     = errors.New("payment request not found")
	ErrProviderError       = errors.New("payment provider error")
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrMalformedPayload    = errors.New("malformed webhook payload")
)
