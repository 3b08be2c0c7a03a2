package provider

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mstgnz/monopay/infra/opensearch"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	createInvoiceFunc func(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	invoiceStatusFunc func(ctx context.Context, invoiceID string) (*InvoiceStatus, error)
	createCalls       atomic.Int32
	lastRequest       InvoiceRequest
	mu                sync.Mutex
}

func (m *mockGateway) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	m.createCalls.Add(1)
	m.mu.Lock()
	m.lastRequest = req
	m.mu.Unlock()
	if m.createInvoiceFunc != nil {
		return m.createInvoiceFunc(ctx, req)
	}
	return &Invoice{InvoiceID: "inv_123", PageURL: "https://pay.mbnk.biz/inv_123"}, nil
}

func (m *mockGateway) MerchantPubKey(context.Context) (string, error) {
	return "", errors.New("not used")
}

func (m *mockGateway) InvoiceStatus(ctx context.Context, invoiceID string) (*InvoiceStatus, error) {
	if m.invoiceStatusFunc != nil {
		return m.invoiceStatusFunc(ctx, invoiceID)
	}
	return &InvoiceStatus{InvoiceID: invoiceID, Status: StatusSuccess}, nil
}

type verifierFunc func(ctx context.Context, body []byte, signature string) error

func (f verifierFunc) Verify(ctx context.Context, body []byte, signature string) error {
	return f(ctx, body, signature)
}

func acceptAll() WebhookVerifier {
	return verifierFunc(func(context.Context, []byte, string) error { return nil })
}

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Get(ctx context.Context, id string) (*PaymentRequest, error) {
	args := m.Called(ctx, id)
	pr, _ := args.Get(0).(*PaymentRequest)
	return pr, args.Error(1)
}

func (m *mockRepository) MarkPaid(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type staticOverrides struct {
	webhook  string
	redirect string
}

func (o staticOverrides) WebhookOverride() string  { return o.webhook }
func (o staticOverrides) RedirectOverride() string { return o.redirect }

type recordingEvents struct {
	mu     sync.Mutex
	events []opensearch.PaymentEvent
}

func (r *recordingEvents) LogPaymentEvent(_ context.Context, e opensearch.PaymentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type testService struct {
	svc     *PaymentService
	gateway *mockGateway
	repo    *mockRepository
	cache   *MemoryInvoiceCache
	events  *recordingEvents
}

func newTestService(t *testing.T, overrides URLOverrides, verifier WebhookVerifier) *testService {
	t.Helper()
	ts := &testService{
		gateway: &mockGateway{},
		repo:    &mockRepository{},
		cache:   NewMemoryInvoiceCache(0),
		events:  &recordingEvents{},
	}
	if verifier == nil {
		verifier = acceptAll()
	}
	ts.svc = NewPaymentService(ServiceConfig{
		Gateway:    ts.gateway,
		Verifier:   verifier,
		Repository: ts.repo,
		Cache:      ts.cache,
		URLs:       StaticURLBuilder("https://shop.example.com"),
		Overrides:  overrides,
		Events:     ts.events,
	})
	return ts
}

func paymentRequest(id, ref string) *PaymentRequest {
	return &PaymentRequest{ID: id, ReferenceName: ref, Status: "Initiated"}
}

func TestCreatePaymentInvoice(t *testing.T) {
	ts := newTestService(t, nil, nil)
	ts.repo.On("Get", mock.Anything, "PR-001").Return(paymentRequest("PR-001", "SO-0001"), nil)

	pageURL, err := ts.svc.CreatePaymentInvoice(context.Background(), PaymentInvoiceRequest{
		OrderID:  "PR-001",
		Amount:   decimal.RequireFromString("5.00"),
		Currency: "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.mbnk.biz/inv_123", pageURL)

	req := ts.gateway.lastRequest
	assert.Equal(t, int64(500), req.Amount)
	assert.Equal(t, 840, req.Ccy)
	assert.Equal(t, "https://shop.example.com"+CallbackPath, req.WebHookURL)
	assert.Equal(t, "https://shop.example.com/orders/SO-0001", req.RedirectURL)
	require.NotNil(t, req.MerchantPaymInfo)
	assert.Equal(t, "PR-001", req.MerchantPaymInfo.Reference)
	assert.Equal(t, DefaultTitle, req.MerchantPaymInfo.Destination)
	assert.Empty(t, req.MerchantPaymInfo.BasketOrder)

	prID, found, err := ts.cache.Get(context.Background(), "inv_123")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "PR-001", prID)

	assert.Equal(t, []string{opensearch.EventInvoiceIssued}, ts.events.types())
	ts.repo.AssertExpectations(t)
}

func TestCreatePaymentInvoice_Defaults(t *testing.T) {
	ts := newTestService(t, nil, nil)
	ts.repo.On("Get", mock.Anything, "PR-002").Return(paymentRequest("PR-002", "SO-2"), nil)

	_, err := ts.svc.CreatePaymentInvoice(context.Background(), PaymentInvoiceRequest{
		OrderID: "PR-002",
		Amount:  decimal.RequireFromString("19.99"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1999), ts.gateway.lastRequest.Amount)
	assert.Equal(t, 980, ts.gateway.lastRequest.Ccy, "currency defaults to UAH")
}

func TestCreatePaymentInvoice_ProductDetails(t *testing.T) {
	ts := newTestService(t, nil, nil)
	ts.repo.On("Get", mock.Anything, "PR-003").Return(paymentRequest("PR-003", "SO-3"), nil)

	_, err := ts.svc.CreatePaymentInvoice(context.Background(), PaymentInvoiceRequest{
		OrderID:     "PR-003",
		Amount:      decimal.RequireFromString("250"),
		Currency:    "EUR",
		Title:       "Order SO-3",
		Description: "Two mugs",
		ProductName: "Mug",
		ProductURL:  "https://shop.example.com/mug.png",
	})
	require.NoError(t, err)

	info := ts.gateway.lastRequest.MerchantPaymInfo
	assert.Equal(t, "Order SO-3", info.Destination)
	assert.Equal(t, "Two mugs", info.Comment)
	require.Len(t, info.BasketOrder, 1)
	assert.Equal(t, BasketItem{Name: "Mug", Qty: 1, Sum: 25000, Icon: "https://shop.example.com/mug.png"}, info.BasketOrder[0])
	assert.Equal(t, 978, ts.gateway.lastRequest.Ccy)
}

func TestCreatePaymentInvoice_Overrides(t *testing.T) {
	ts := newTestService(t, staticOverrides{
		webhook:  "https://hooks.example.com/",
		redirect: "https://shop.example.com/thanks",
	}, nil)
	ts.repo.On("Get", mock.Anything, "PR-004").Return(paymentRequest("PR-004", "SO-4"), nil)

	_, err := ts.svc.CreatePaymentInvoice(context.Background(), PaymentInvoiceRequest{
		OrderID: "PR-004",
		Amount:  decimal.RequireFromString("10"),
	})
	require.NoError(t, err)

	assert.Equal(t, "https://hooks.example.com"+CallbackPath, ts.gateway.lastRequest.WebHookURL)
	assert.Equal(t, "https://shop.example.com/thanks", ts.gateway.lastRequest.RedirectURL)
}

func TestCreatePaymentInvoice_ValidationNeverReachesProvider(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		wantErr  error
		message  string
	}{
		{"unsupported currency", "5.00", "GBP", ErrUnsupportedCurrency, "unsupported currency provided, GBP is not supported. Possible values: [UAH USD EUR]"},
		{"amount equal to minimum", "1", "UAH", ErrInvalidAmount, "invalid transaction amount. Minimum is 1, current: 1"},
		{"amount below minimum", "0.99", "USD", ErrInvalidAmount, "invalid transaction amount. Minimum is 1, current: 0.99"},
		{"negative amount", "-10", "EUR", ErrInvalidAmount, "invalid transaction amount. Minimum is 1, current: -10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestService(t, nil, nil)

			_, err := ts.svc.CreatePaymentInvoice(context.Background(), PaymentInvoiceRequest{
				OrderID:  "PR-001",
				Amount:   decimal.RequireFromString(tt.amount),
				Currency: tt.currency,
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.EqualError(t, err, tt.message)
			assert.Zero(t, ts.gateway.createCalls.Load())
			assert.Zero(t, ts.cache.Size())
			ts.repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
		})
	}
}

func TestCreatePaymentInvoice_UnresolvedOrder(t *testing.T) {
	ts := newTestService(t, nil, nil)
	lookupErr := errors.New("payment request PR-404 not found")
	ts.repo.On("Get", mock.Anything, "PR-404").Return(nil, lookupErr)

	_, err := ts.svc.CreatePaymentInvoice(context.Background(), PaymentInvoiceRequest{
		OrderID: "PR-404",
		Amount:  decimal.RequireFromString("5"),
	})
	assert.Same(t, lookupErr, err, "lookup error must propagate unchanged")
	assert.Zero(t, ts.gateway.createCalls.Load())
	assert.Zero(t, ts.cache.Size())
}

func TestCreatePaymentInvoice_ProviderError(t *testing.T) {
	ts := newTestService(t, nil, nil)
	ts.repo.On("Get", mock.Anything, "PR-001").Return(paymentRequest("PR-001", "SO-1"), nil)
	providerErr := errors.New("HTTP 403: forbidden")
	ts.gateway.createInvoiceFunc = func(context.Context, InvoiceRequest) (*Invoice, error) {
		return nil, providerErr
	}

	_, err := ts.svc.CreatePaymentInvoice(context.Background(), PaymentInvoiceRequest{
		OrderID: "PR-001",
		Amount:  decimal.RequireFromString("5"),
	})
	assert.Same(t, providerErr, err)
	assert.Zero(t, ts.cache.Size(), "no mapping for a failed invoice")
	assert.Equal(t, []string{opensearch.EventInvoiceFailed}, ts.events.types())
}

func TestHandleCallback_Success(t *testing.T) {
	ts := newTestService(t, nil, nil)
	require.NoError(t, ts.cache.Set(context.Background(), "inv_123", "PR-001"))
	ts.repo.On("MarkPaid", mock.Anything, "PR-001").Return(nil).Once()

	err := ts.svc.HandleCallback(context.Background(), []byte(`{"invoiceId":"inv_123","status":"success","amount":500,"ccy":840}`), "sig")
	require.NoError(t, err)

	assert.Zero(t, ts.cache.Size(), "mapping removed after settlement")
	assert.Equal(t, []string{opensearch.EventWebhookSettled}, ts.events.types())
	ts.repo.AssertExpectations(t)
}

func TestHandleCallback_InvalidSignature(t *testing.T) {
	reject := verifierFunc(func(context.Context, []byte, string) error {
		return ErrInvalidSignature
	})
	ts := newTestService(t, nil, reject)
	require.NoError(t, ts.cache.Set(context.Background(), "inv_123", "PR-001"))

	err := ts.svc.HandleCallback(context.Background(), []byte(`{"invoiceId":"inv_123","status":"success"}`), "forged")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.Equal(t, 1, ts.cache.Size(), "no state mutation on rejected callback")
	ts.repo.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
	assert.Equal(t, []string{opensearch.EventWebhookRejected}, ts.events.types())
}

func TestHandleCallback_KeyFetchFailure(t *testing.T) {
	fetchErr := errors.New("pubkey: connection refused")
	ts := newTestService(t, nil, verifierFunc(func(context.Context, []byte, string) error { return fetchErr }))

	err := ts.svc.HandleCallback(context.Background(), []byte(`{}`), "sig")
	assert.Same(t, fetchErr, err)
	assert.Empty(t, ts.events.types())
}

func TestHandleCallback_MalformedPayload(t *testing.T) {
	bodies := map[string]string{
		"not json":       `{invoiceId`,
		"missing id":     `{"status":"success"}`,
		"missing status": `{"invoiceId":"inv_123"}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			ts := newTestService(t, nil, nil)
			require.NoError(t, ts.cache.Set(context.Background(), "inv_123", "PR-001"))

			err := ts.svc.HandleCallback(context.Background(), []byte(body), "sig")
			assert.ErrorIs(t, err, ErrMalformedPayload)
			assert.Equal(t, 1, ts.cache.Size())
			ts.repo.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleCallback_NonSuccessKeepsPending(t *testing.T) {
	for _, status := range []string{"created", "processing", "hold", "failure", "reversed", "expired"} {
		t.Run(status, func(t *testing.T) {
			ts := newTestService(t, nil, nil)
			require.NoError(t, ts.cache.Set(context.Background(), "inv_123", "PR-001"))

			err := ts.svc.HandleCallback(context.Background(), []byte(`{"invoiceId":"inv_123","status":"`+status+`"}`), "sig")
			require.NoError(t, err)

			prID, found, _ := ts.cache.Get(context.Background(), "inv_123")
			assert.True(t, found)
			assert.Equal(t, "PR-001", prID)
			ts.repo.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
			assert.Equal(t, []string{opensearch.EventWebhookIgnored}, ts.events.types())
		})
	}
}

func TestHandleCallback_UnknownInvoice(t *testing.T) {
	ts := newTestService(t, nil, nil)

	err := ts.svc.HandleCallback(context.Background(), []byte(`{"invoiceId":"inv_unknown","status":"success"}`), "sig")
	require.NoError(t, err)

	ts.repo.AssertNotCalled(t, "MarkPaid", mock.Anything, mock.Anything)
	assert.Equal(t, []string{opensearch.EventWebhookUnmatched}, ts.events.types())
}

func TestHandleCallback_ReplayAfterSettlement(t *testing.T) {
	ts := newTestService(t, nil, nil)
	require.NoError(t, ts.cache.Set(context.Background(), "inv_123", "PR-001"))
	ts.repo.On("MarkPaid", mock.Anything, "PR-001").Return(nil).Once()

	body := []byte(`{"invoiceId":"inv_123","status":"success"}`)
	require.NoError(t, ts.svc.HandleCallback(context.Background(), body, "sig"))
	require.NoError(t, ts.svc.HandleCallback(context.Background(), body, "sig"))

	ts.repo.AssertNumberOfCalls(t, "MarkPaid", 1)
}

func TestHandleCallback_ConcurrentDuplicatesSettleOnce(t *testing.T) {
	ts := newTestService(t, nil, nil)
	require.NoError(t, ts.cache.Set(context.Background(), "inv_123", "PR-001"))
	ts.repo.On("MarkPaid", mock.Anything, "PR-001").Return(nil)

	body := []byte(`{"invoiceId":"inv_123","status":"success"}`)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, ts.svc.HandleCallback(context.Background(), body, "sig"))
		}()
	}
	wg.Wait()

	ts.repo.AssertNumberOfCalls(t, "MarkPaid", 1)
}

func TestHandleCallback_MarkPaidFailureRestoresMapping(t *testing.T) {
	ts := newTestService(t, nil, nil)
	require.NoError(t, ts.cache.Set(context.Background(), "inv_123", "PR-001"))
	dbErr := errors.New("connection reset")
	ts.repo.On("MarkPaid", mock.Anything, "PR-001").Return(dbErr).Once()
	ts.repo.On("MarkPaid", mock.Anything, "PR-001").Return(nil).Once()

	body := []byte(`{"invoiceId":"inv_123","status":"success"}`)
	err := ts.svc.HandleCallback(context.Background(), body, "sig")
	assert.ErrorIs(t, err, dbErr)

	prID, found, _ := ts.cache.Get(context.Background(), "inv_123")
	assert.True(t, found, "mapping restored so the retry can settle")
	assert.Equal(t, "PR-001", prID)

	require.NoError(t, ts.svc.HandleCallback(context.Background(), body, "sig"))
	assert.Zero(t, ts.cache.Size())
	ts.repo.AssertNumberOfCalls(t, "MarkPaid", 2)
}

// ctxAwareCache rejects writes on a done context like a database-backed cache
type ctxAwareCache struct {
	*MemoryInvoiceCache
}

func (c ctxAwareCache) Set(ctx context.Context, invoiceID, paymentRequestID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryInvoiceCache.Set(ctx, invoiceID, paymentRequestID)
}

func TestHandleCallback_RestoreSurvivesRequestDeadline(t *testing.T) {
	mem := NewMemoryInvoiceCache(0)
	require.NoError(t, mem.Set(context.Background(), "inv_123", "PR-001"))

	repo := &mockRepository{}
	ctx, cancel := context.WithCancel(context.Background())
	repo.On("MarkPaid", mock.Anything, "PR-001").Run(func(mock.Arguments) { cancel() }).Return(context.Canceled).Once()

	svc := NewPaymentService(ServiceConfig{
		Verifier:   acceptAll(),
		Repository: repo,
		Cache:      ctxAwareCache{mem},
		URLs:       StaticURLBuilder("https://erp.example.com"),
	})

	err := svc.HandleCallback(ctx, []byte(`{"invoiceId":"inv_123","status":"success"}`), "sig")
	assert.ErrorIs(t, err, context.Canceled)

	prID, found, _ := mem.Get(context.Background(), "inv_123")
	assert.True(t, found)
	assert.Equal(t, "PR-001", prID)
}

func TestHandleCallback_Diagnostics(t *testing.T) {
	ts := newTestService(t, nil, nil)
	ts.svc.diagnostics = true

	var looked atomic.Int32
	ts.gateway.invoiceStatusFunc = func(_ context.Context, id string) (*InvoiceStatus, error) {
		looked.Add(1)
		assert.Equal(t, "inv_123", id)
		return nil, errors.New("status endpoint down")
	}

	err := ts.svc.HandleCallback(context.Background(), []byte(`{"invoiceId":"inv_123","status":"processing"}`), "sig")
	require.NoError(t, err, "diagnostic failures are ignored")
	assert.Equal(t, int32(1), looked.Load())
}

func TestParseWebhook(t *testing.T) {
	event, err := ParseWebhook([]byte(`{"invoiceId":"inv_1","status":"success","amount":500,"ccy":980,"reference":"PR-001"}`))
	require.NoError(t, err)
	assert.Equal(t, "inv_1", event.InvoiceID)
	assert.Equal(t, StatusSuccess, event.Status)
	assert.Equal(t, int64(500), event.Amount)
	assert.Equal(t, "PR-001", event.Reference)
}

func TestPaymentService_Ready(t *testing.T) {
	ts := newTestService(t, nil, nil)
	assert.NoError(t, ts.svc.Ready())

	err := NewPaymentService(ServiceConfig{Gateway: ts.gateway}).Ready()
	require.ErrorIs(t, err, ErrNotReady)
	assert.Contains(t, err.Error(), "verifier, repository, cache, url builder")
}
