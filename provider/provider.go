package provider

import (
	"context"
	"time"

	"github.com/mstgnz/monopay/infra/opensearch"
	"github.com/shopspring/decimal"
)

// CallbackPath is where the provider posts invoice status updates. The
// path is part of every invoice already issued so it must not change.
const CallbackPath = "/api/method/monopay_app.monopay_app.doctype.monopay_settings.monopay_settings.callback_handler"

// Defaults applied to optional invoice fields
const (
	DefaultTitle    = "Default Title"
	DefaultCurrency = "UAH"
)

// InvoiceStatusName is the provider's invoice lifecycle state
type InvoiceStatusName string

const (
	StatusCreated    InvoiceStatusName = "created"
	StatusProcessing InvoiceStatusName = "processing"
	StatusHold       InvoiceStatusName = "hold"
	StatusSuccess    InvoiceStatusName = "success"
	StatusFailure    InvoiceStatusName = "failure"
	StatusReversed   InvoiceStatusName = "reversed"
	StatusExpired    InvoiceStatusName = "expired"
)

// PaymentInvoiceRequest is the caller's request for a payer-facing payment page
type PaymentInvoiceRequest struct {
	OrderID     string          `json:"orderId" validate:"required,doc_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Title       string          `json:"title,omitempty" validate:"max=280"`
	Description string          `json:"description,omitempty" validate:"max=280"`
	ProductName string          `json:"productName,omitempty" validate:"max=280"`
	ProductURL  string          `json:"productUrl,omitempty" validate:"omitempty,url"`
}

// BasketItem is one line of merchantPaymInfo.basketOrder
type BasketItem struct {
	Name string `json:"name"`
	Qty  int    `json:"qty"`
	Sum  int64  `json:"sum"`
	Icon string `json:"icon,omitempty"`
}

// MerchantPaymInfo carries merchant-side details shown to the payer
type MerchantPaymInfo struct {
	Reference   string       `json:"reference,omitempty"`
	Destination string       `json:"destination,omitempty"`
	Comment     string       `json:"comment,omitempty"`
	BasketOrder []BasketItem `json:"basketOrder,omitempty"`
}

// InvoiceRequest is the body sent to the provider's invoice create endpoint
type InvoiceRequest struct {
	Amount           int64             `json:"amount"`
	Ccy              int               `json:"ccy"`
	MerchantPaymInfo *MerchantPaymInfo `json:"merchantPaymInfo,omitempty"`
	RedirectURL      string            `json:"redirectUrl,omitempty"`
	WebHookURL       string            `json:"webHookUrl,omitempty"`
	Validity         int64             `json:"validity,omitempty"`
}

// Invoice is the provider's answer to invoice create
type Invoice struct {
	InvoiceID string `json:"invoiceId"`
	PageURL   string `json:"pageUrl"`
}

// InvoiceStatus is both the invoice status response and the webhook body
type InvoiceStatus struct {
	InvoiceID     string            `json:"invoiceId"`
	Status        InvoiceStatusName `json:"status"`
	FailureReason string            `json:"failureReason,omitempty"`
	ErrCode       string            `json:"errCode,omitempty"`
	Amount        int64             `json:"amount"`
	Ccy           int               `json:"ccy"`
	FinalAmount   int64             `json:"finalAmount,omitempty"`
	CreatedDate   string            `json:"createdDate,omitempty"`
	ModifiedDate  string            `json:"modifiedDate,omitempty"`
	Reference     string            `json:"reference,omitempty"`
	Destination   string            `json:"destination,omitempty"`
}

// PaymentRequest is the host record an invoice settles
type PaymentRequest struct {
	ID            string
	ReferenceName string
	GrandTotal    decimal.Decimal
	Currency      string
	Status        string
	PaidAt        *time.Time
}

// Gateway is the provider API surface the service needs
type Gateway interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	MerchantPubKey(ctx context.Context) (string, error)
	InvoiceStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error)
}

// WebhookVerifier authenticates a raw callback body against its X-Sign header
type WebhookVerifier interface {
	Verify(ctx context.Context, body []byte, signature string) error
}

// PaymentRequestRepository reads and settles host payment requests
type PaymentRequestRepository interface {
	Get(ctx context.Context, id string) (*PaymentRequest, error)
	MarkPaid(ctx context.Context, id string) error
}

// InvoiceCache holds the pending invoiceId -> paymentRequestId mapping
type InvoiceCache interface {
	Set(ctx context.Context, invoiceID, paymentRequestID string) error
	Get(ctx context.Context, invoiceID string) (string, bool, error)
	Delete(ctx context.Context, invoiceID string) error
	// CompareAndDelete removes the mapping only if it still points at paymentRequestID
	CompareAndDelete(ctx context.Context, invoiceID, paymentRequestID string) (bool, error)
}

// URLBuilder builds absolute host URLs from a path
type URLBuilder interface {
	URL(path string) string
}

// URLOverrides are optional settings that replace the host-derived URLs
type URLOverrides interface {
	WebhookOverride() string
	RedirectOverride() string
}

// PaymentEventLogger records invoice lifecycle events for audit
type PaymentEventLogger interface {
	LogPaymentEvent(ctx context.Context, event opensearch.PaymentEvent) error
}
