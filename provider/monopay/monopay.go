package monopay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mstgnz/monopay/provider"
)

const (
	// API URLs
	apiURL = "https://api.monobank.ua"

	// API Endpoints
	endpointInvoiceCreate = "/api/merchant/invoice/create"
	endpointInvoiceStatus = "/api/merchant/invoice/status"
	endpointPubKey        = "/api/merchant/pubkey"

	headerToken    = "X-Token"
	defaultTimeout = 30 * time.Second
)

// APIError is a non-2xx answer from the acquiring API
type APIError struct {
	StatusCode int    `json:"-"`
	ErrCode    string `json:"errCode"`
	ErrText    string `json:"errText"`
}

func (e *APIError) Error() string {
	if e.ErrCode == "" {
		return fmt.Sprintf("monopay: HTTP %d: %s", e.StatusCode, e.ErrText)
	}
	return fmt.Sprintf("monopay: HTTP %d: %s: %s", e.StatusCode, e.ErrCode, e.ErrText)
}

// Is lets errors.Is(err, provider.ErrProviderError) match API errors
func (e *APIError) Is(target error) bool {
	return target == provider.ErrProviderError
}

type pubKeyResponse struct {
	Key string `json:"key"`
}

// Gateway talks to the Monobank acquiring API
type Gateway struct {
	token      func() (string, error)
	httpClient *provider.ProviderHTTPClient
}

// NewGateway creates a gateway. cfg.Token is resolved on every call.
func NewGateway(cfg provider.GatewayConfig) (*Gateway, error) {
	if cfg.Token == nil {
		return nil, errors.New("monopay: token source is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = apiURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Gateway{
		token:      cfg.Token,
		httpClient: provider.NewProviderHTTPClient(provider.CreateHTTPClientConfig(baseURL, timeout)),
	}, nil
}

// CreateInvoice creates an invoice and returns its id and payment page
func (g *Gateway) CreateInvoice(ctx context.Context, req provider.InvoiceRequest) (*provider.Invoice, error) {
	var invoice provider.Invoice
	if err := g.do(ctx, http.MethodPost, endpointInvoiceCreate, nil, req, &invoice); err != nil {
		return nil, err
	}

	if invoice.InvoiceID == "" || invoice.PageURL == "" {
		return nil, fmt.Errorf("%w: invoice create returned no invoiceId or pageUrl", provider.ErrProviderError)
	}

	return &invoice, nil
}

// MerchantPubKey returns the webhook signing key as base64-encoded PEM
func (g *Gateway) MerchantPubKey(ctx context.Context) (string, error) {
	var resp pubKeyResponse
	if err := g.do(ctx, http.MethodGet, endpointPubKey, nil, nil, &resp); err != nil {
		return "", err
	}

	if resp.Key == "" {
		return "", fmt.Errorf("%w: empty merchant public key", provider.ErrProviderError)
	}

	return resp.Key, nil
}

// InvoiceStatus returns the current state of an invoice
func (g *Gateway) InvoiceStatus(ctx context.Context, invoiceID string) (*provider.InvoiceStatus, error) {
	var status provider.InvoiceStatus
	query := map[string]string{"invoiceId": invoiceID}
	if err := g.do(ctx, http.MethodGet, endpointInvoiceStatus, query, nil, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// do sends one authenticated request and decodes the answer into out
func (g *Gateway) do(ctx context.Context, method, endpoint string, query map[string]string, body, out any) error {
	token, err := g.token()
	if err != nil {
		return fmt.Errorf("monopay: failed to resolve API token: %w", err)
	}
	if token == "" {
		return errors.New("monopay: API token is not configured")
	}

	resp, err := g.httpClient.SendJSON(ctx, &provider.HTTPRequest{
		Method:      method,
		Endpoint:    endpoint,
		Headers:     map[string]string{headerToken: token},
		Body:        body,
		QueryParams: query,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", provider.ErrProviderError, err)
	}

	if !resp.IsSuccess() {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(resp.Body, apiErr); jsonErr != nil || apiErr.ErrText == "" {
			apiErr.ErrText = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := g.httpClient.ParseJSONResponse(resp, out); err != nil {
		return fmt.Errorf("%w: invalid response from %s: %v", provider.ErrProviderError, endpoint, err)
	}

	return nil
}
