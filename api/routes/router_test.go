package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/craftconnect/marketplace-backend/internal/commission"
	"github.com/craftconnect/marketplace-backend/internal/ledger"
	"github.com/craftconnect/marketplace-backend/internal/orders"
	"github.com/craftconnect/marketplace-backend/internal/reporting"
	"github.com/craftconnect/marketplace-backend/internal/webhooks/payments"
	pkgAuth "github.com/craftconnect/marketplace-backend/pkg/auth"
	"github.com/craftconnect/marketplace-backend/pkg/config"
	"github.com/craftconnect/marketplace-backend/pkg/db"
	"github.com/craftconnect/marketplace-backend/pkg/db/dbtest"
	"github.com/craftconnect/marketplace-backend/pkg/enums"
	"github.com/craftconnect/marketplace-backend/pkg/logger"
)

const callbackSecret = "cb-secret"

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "cc:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:     config.AppConfig{Env: "test"},
		JWT:     config.JWTConfig{Secret: "secret", Issuer: "craftconnect", ExpirationMinutes: 30},
		Gateway: config.GatewayConfig{CallbackSecret: callbackSecret},
	}
}

func newRouter(t *testing.T, params RouterParams) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "routes-test", Output: io.Discard})
	return NewRouter(testConfig(), logg, params)
}

func wiredParams(t *testing.T) (RouterParams, *gorm.DB) {
	t.Helper()
	gdb := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "routes-test", Output: io.Discard})

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Transactions:      ledger.NewRepository(gdb),
		Balances:          ledger.NewBalanceRepository(gdb),
		Orders:            orders.NewRepository(gdb),
		TransactionRunner: db.NewFromConn(gdb),
		Logger:            logg,
		Retry:             ledger.RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond},
	})
	require.NoError(t, err)

	reports, err := reporting.NewService(reporting.NewRepository(gdb))
	require.NoError(t, err)

	paymentsSvc, err := payments.NewService(payments.ServiceParams{
		Ledger: ledgerSvc,
		Rates:  commission.StaticRateSource{Rate: commission.MustRate("0.02")},
		Logger: logg,
	})
	require.NoError(t, err)

	store := newMemoryStore()
	guard, err := payments.NewIdempotencyGuard(store, time.Hour, "payments-callback")
	require.NoError(t, err)

	return RouterParams{
		DB:            stubPinger{},
		Redis:         stubPinger{},
		Idempotency:   store,
		Ledger:        ledgerSvc,
		Reports:       reports,
		Payments:      paymentsSvc,
		CallbackGuard: guard,
	}, gdb
}

func token(t *testing.T, role enums.ActorRole, sellerID *uuid.UUID) string {
	t.Helper()
	signed, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID:   uuid.New(),
		Role:     role,
		SellerID: sellerID,
	})
	require.NoError(t, err)
	return signed
}

func do(handler http.Handler, method, path, bearer string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	require.NoError(t, json.Unmarshal(envelope.Data, dest))
}

func TestHealthRoutes(t *testing.T) {
	handler := newRouter(t, RouterParams{DB: stubPinger{}, Redis: stubPinger{}})

	rec := do(handler, http.MethodGet, "/health/live", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-CraftConnect-Env"))

	rec = do(handler, http.MethodGet, "/health/ready", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newRouter(t, RouterParams{DB: stubPinger{}, Redis: stubPinger{err: errors.New("connection refused")}})
	rec = do(down, http.MethodGet, "/health/ready", "", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"down"`)
}

func TestMetricsRoute(t *testing.T) {
	handler := newRouter(t, RouterParams{})
	rec := do(handler, http.MethodGet, "/metrics", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	handler := newRouter(t, RouterParams{})

	rec := do(handler, http.MethodGet, "/api/admin/v1/ping", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	sellerID := uuid.New()
	rec = do(handler, http.MethodGet, "/api/admin/v1/ping", token(t, enums.ActorRoleSeller, &sellerID), nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(handler, http.MethodGet, "/api/admin/v1/ping", token(t, enums.ActorRoleAdmin, nil), nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(handler, http.MethodGet, "/api/v1/seller/ping", token(t, enums.ActorRoleAdmin, nil), nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStripeRouteAbsentWithoutClient(t *testing.T) {
	handler := newRouter(t, RouterParams{})
	rec := do(handler, http.MethodPost, "/api/v1/webhooks/stripe", "", []byte(`{}`), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettlementRefundAndReportsFlow(t *testing.T) {
	params, gdb := wiredParams(t)
	handler := newRouter(t, params)
	admin := token(t, enums.ActorRoleAdmin, nil)

	sellerID := uuid.New()
	order := dbtest.CreateOrder(t, gdb, dbtest.Item{SellerID: sellerID, Category: "weaving", UnitPriceCents: 25000, Quantity: 2})

	callback := []byte(fmt.Sprintf(`{"event_id":"evt_flow","order_id":%q,"amount_minor_units":50000,"external_payment_reference":"pay_flow","status":"succeeded","payment_method":"gcash"}`, order.ID))
	signed := map[string]string{payments.SignatureHeader: payments.Sign(callbackSecret, callback)}

	rec := do(handler, http.MethodPost, "/api/v1/webhooks/payments", "", callback, signed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ack struct {
		Outcome       string `json:"outcome"`
		TransactionID string `json:"transaction_id"`
	}
	decodeData(t, rec, &ack)
	assert.Equal(t, "created", ack.Outcome)

	rec = do(handler, http.MethodPost, "/api/v1/webhooks/payments", "", callback, signed)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &ack)
	assert.Equal(t, "already_processed", ack.Outcome)

	var balance struct {
		AvailableBalanceCents int64 `json:"available_balance_cents"`
	}
	rec = do(handler, http.MethodGet, "/api/v1/seller/balance", token(t, enums.ActorRoleSeller, &sellerID), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &balance)
	assert.Equal(t, int64(49000), balance.AvailableBalanceCents)

	refundPath := "/api/admin/v1/transactions/" + ack.TransactionID + "/refunds"
	refundBody := []byte(`{"amount_minor_units":20000,"reason":"damaged in transit"}`)

	rec = do(handler, http.MethodPost, refundPath, admin, refundBody, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "Idempotency-Key is required")

	keyed := map[string]string{"Idempotency-Key": "refund-1"}
	rec = do(handler, http.MethodPost, refundPath, admin, refundBody, keyed)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var refund struct {
		Outcome string `json:"outcome"`
		Refund  struct {
			GrossAmountCents  int64 `json:"gross_amount_cents"`
			AdminFeeCents     int64 `json:"admin_fee_cents"`
			SellerAmountCents int64 `json:"seller_amount_cents"`
		} `json:"refund"`
	}
	decodeData(t, rec, &refund)
	assert.Equal(t, int64(-20000), refund.Refund.GrossAmountCents)
	assert.Equal(t, int64(-400), refund.Refund.AdminFeeCents)
	assert.Equal(t, int64(-19600), refund.Refund.SellerAmountCents)

	replay := do(handler, http.MethodPost, refundPath, admin, refundBody, keyed)
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, strings.TrimSpace(rec.Body.String()), strings.TrimSpace(replay.Body.String()))
	assert.Equal(t, int64(29400), dbtest.AvailableBalance(t, gdb, sellerID))

	rec = do(handler, http.MethodGet, "/api/admin/v1/transactions/"+ack.TransactionID, admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail struct {
		ID      string `json:"id"`
		Refunds []struct {
			GrossAmountCents int64 `json:"gross_amount_cents"`
		} `json:"refunds"`
	}
	decodeData(t, rec, &detail)
	assert.Equal(t, ack.TransactionID, detail.ID)
	require.Len(t, detail.Refunds, 1)
	assert.Equal(t, int64(-20000), detail.Refunds[0].GrossAmountCents)

	rec = do(handler, http.MethodGet, "/api/admin/v1/sellers/"+sellerID.String()+"/balance", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &balance)
	assert.Equal(t, int64(29400), balance.AvailableBalanceCents)

	var dashboard reporting.Dashboard
	rec = do(handler, http.MethodGet, "/api/admin/v1/reports/dashboard", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &dashboard)
	assert.Equal(t, int64(30000), dashboard.Totals.GrossCents)
	assert.Equal(t, int64(600), dashboard.Totals.AdminFeeCents)
	assert.Equal(t, int64(29400), dashboard.Totals.SellerCents)

	var page struct {
		Transactions []struct {
			ID string `json:"id"`
		} `json:"transactions"`
		NextCursor string `json:"next_cursor"`
	}
	rec = do(handler, http.MethodGet, "/api/admin/v1/transactions?limit=1", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &page)
	assert.Len(t, page.Transactions, 1)
	assert.NotEmpty(t, page.NextCursor)

	rec = do(handler, http.MethodGet, "/api/admin/v1/transactions?status=bogus", admin, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(handler, http.MethodGet, "/api/admin/v1/orders/"+order.ID.String()+"/transactions", admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	decodeData(t, rec, &history)
	assert.Len(t, history.Transactions, 2)

	rec = do(handler, http.MethodGet, "/api/admin/v1/reports/sellers?from=2020-01-01&to=not-a-date", admin, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefundOverdraftMapsToConflict(t *testing.T) {
	params, gdb := wiredParams(t)
	handler := newRouter(t, params)
	admin := token(t, enums.ActorRoleAdmin, nil)

	sellerID := uuid.New()
	order := dbtest.CreateOrder(t, gdb, dbtest.Item{SellerID: sellerID, Category: "pottery", UnitPriceCents: 10000, Quantity: 1})
	callback := []byte(fmt.Sprintf(`{"event_id":"evt_over","order_id":%q,"amount_minor_units":10000,"external_payment_reference":"pay_over","status":"succeeded"}`, order.ID))
	rec := do(handler, http.MethodPost, "/api/v1/webhooks/payments", "", callback, map[string]string{payments.SignatureHeader: payments.Sign(callbackSecret, callback)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ack struct {
		TransactionID string `json:"transaction_id"`
	}
	decodeData(t, rec, &ack)

	require.NoError(t, gdb.Exec("UPDATE seller_balances SET available_balance_cents = 0 WHERE seller_id = ?", sellerID).Error)

	rec = do(handler, http.MethodPost, "/api/admin/v1/transactions/"+ack.TransactionID+"/refunds", admin, []byte(`{}`), map[string]string{"Idempotency-Key": "over-1"})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "INSUFFICIENT_BALANCE")
}
