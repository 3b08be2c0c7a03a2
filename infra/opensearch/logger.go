package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// Payment event types
const (
	EventInvoiceIssued    = "invoice_issued"
	EventInvoiceFailed    = "invoice_failed"
	EventWebhookRejected  = "webhook_rejected"
	EventWebhookIgnored   = "webhook_ignored"
	EventWebhookSettled   = "webhook_settled"
	EventWebhookUnmatched = "webhook_unmatched"
)

// PaymentEvent is one audit record of the invoice lifecycle
type PaymentEvent struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	Type             string    `json:"type"`
	Provider         string    `json:"provider"`
	InvoiceID        string    `json:"invoice_id,omitempty"`
	PaymentRequestID string    `json:"payment_request_id,omitempty"`
	Status           string    `json:"status,omitempty"`
	Amount           int64     `json:"amount,omitempty"`
	Currency         int       `json:"ccy,omitempty"`
	Error            string    `json:"error,omitempty"`
	ProcessingTimeMs int64     `json:"processing_time_ms,omitempty"`
}

// Logger handles OpenSearch logging operations
type Logger struct {
	client *Client
}

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	return &Logger{
		client: client,
	}
}

// LogPaymentEvent indexes a payment event into the monthly events index
func (l *Logger) LogPaymentEvent(ctx context.Context, event PaymentEvent) error {
	if !l.client.IsEnabled() {
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	return l.index(ctx, l.client.EventIndexName(event.Timestamp), event.ID, event)
}

// LogSystemEvent logs a system event to OpenSearch
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	if !l.client.IsEnabled() {
		return nil
	}

	return l.index(ctx, systemLogIndex, "", entry)
}

func (l *Logger) index(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	req := opensearchapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return &ResponseError{Status: res.StatusCode, Body: res.String()}
	}

	return nil
}

var sensitivePatterns = func() []*regexp.Regexp {
	fields := []string{"token", "X-Token", "apiKey", "api_key", "password", "Authorization"}
	patterns := make([]*regexp.Regexp, 0, len(fields))
	for _, field := range fields {
		patterns = append(patterns, regexp.MustCompile(`(?i)"`+regexp.QuoteMeta(field)+`"\s*:\s*"[^"]*"`))
	}
	return patterns
}()

// SanitizeForLog redacts credentials from a JSON fragment before it is logged
func SanitizeForLog(data string) string {
	result := data
	for _, re := range sensitivePatterns {
		result = re.ReplaceAllStringFunc(result, func(match string) string {
			return match[:strings.Index(match, ":")] + `:"***REDACTED***"`
		})
	}
	return result
}
