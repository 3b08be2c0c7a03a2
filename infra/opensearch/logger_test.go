package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mstgnz/monopay/infra/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexedDoc struct {
	Method string
	Path   string
	Body   map[string]any
}

func newTestCluster(t *testing.T, status int) (*httptest.Server, func() []indexedDoc) {
	t.Helper()
	var (
		mu   sync.Mutex
		docs []indexedDoc
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		doc := indexedDoc{Method: r.Method, Path: r.URL.Path}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &doc.Body)
		}
		mu.Lock()
		docs = append(docs, doc)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	t.Cleanup(srv.Close)

	return srv, func() []indexedDoc {
		mu.Lock()
		defer mu.Unlock()
		return append([]indexedDoc(nil), docs...)
	}
}

func newTestLogger(t *testing.T, url string, enabled bool) *Logger {
	t.Helper()
	client, err := NewClient(&config.AppConfig{
		OpenSearchURL: url,
		EnableLogging: enabled,
		Environment:   "test",
	})
	require.NoError(t, err)
	return NewLogger(client)
}

func TestLogger_LogPaymentEvent(t *testing.T) {
	srv, docs := newTestCluster(t, http.StatusCreated)
	l := newTestLogger(t, srv.URL, true)

	ts := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
	err := l.LogPaymentEvent(context.Background(), PaymentEvent{
		ID:               "evt-1",
		Timestamp:        ts,
		Type:             EventInvoiceIssued,
		Provider:         "monopay",
		InvoiceID:        "inv_123",
		PaymentRequestID: "PR-001",
		Amount:           500,
		Currency:         840,
	})
	require.NoError(t, err)

	got := docs()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].Method)
	assert.Equal(t, "/monopay-events-2026.10/_doc/evt-1", got[0].Path)
	assert.Equal(t, "inv_123", got[0].Body["invoice_id"])
	assert.Equal(t, float64(840), got[0].Body["ccy"])
}

func TestLogger_GeneratesEventID(t *testing.T) {
	srv, docs := newTestCluster(t, http.StatusCreated)
	l := newTestLogger(t, srv.URL, true)

	require.NoError(t, l.LogPaymentEvent(context.Background(), PaymentEvent{Type: EventWebhookSettled}))

	got := docs()
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0].Path, "/monopay-events-"))
	assert.NotEmpty(t, got[0].Body["id"])
}

func TestLogger_Disabled(t *testing.T) {
	srv, docs := newTestCluster(t, http.StatusCreated)
	l := newTestLogger(t, srv.URL, false)

	require.NoError(t, l.LogPaymentEvent(context.Background(), PaymentEvent{Type: EventWebhookSettled}))
	require.NoError(t, l.LogSystemEvent(context.Background(), map[string]string{"message": "hello"}))
	assert.Empty(t, docs())
}

func TestLogger_ErrorResponse(t *testing.T) {
	srv, _ := newTestCluster(t, http.StatusBadRequest)
	l := newTestLogger(t, srv.URL, true)

	err := l.LogSystemEvent(context.Background(), map[string]string{"message": "hello"})
	require.Error(t, err)

	var respErr *ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusBadRequest, respErr.Status)
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		absent   string
	}{
		{"token field", `{"token":"abc123","amount":500}`, `"token":"***REDACTED***"`, "abc123"},
		{"x-token header", `{"X-Token":"secret"}`, `"X-Token":"***REDACTED***"`, "secret"},
		{"authorization", `{"authorization": "Bearer key"}`, `"authorization":"***REDACTED***"`, "Bearer key"},
		{"untouched", `{"invoiceId":"inv_1"}`, `"invoiceId":"inv_1"`, "REDACTED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SanitizeForLog(tt.input)
			assert.Contains(t, out, tt.contains)
			assert.NotContains(t, out, tt.absent)
		})
	}
}

func TestClient_IsEnabled(t *testing.T) {
	var nilClient *Client
	assert.False(t, nilClient.IsEnabled())

	c := &Client{enabled: true}
	assert.True(t, c.IsEnabled())
	assert.Equal(t, "monopay-events-2026.01", c.EventIndexName(time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)))
}
