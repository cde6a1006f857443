package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"nexus-settlement/internal/pkg/redis"
	"nexus-settlement/internal/service/order/application"
	"nexus-settlement/internal/service/order/domain"
	"nexus-settlement/internal/service/order/infrastructure"
	"nexus-settlement/internal/service/order/infrastructure/adapter"
	"nexus-settlement/internal/service/order/infrastructure/rule"
)

// unreliableOrders fails Update while broken is set.
type unreliableOrders struct {
	domain.OrderRepository
	broken atomic.Bool
}

func (u *unreliableOrders) Update(ctx context.Context, o *domain.Order) error {
	if u.broken.Load() {
		return errors.Wrap(domain.ErrPersistence, "deadlock found")
	}
	return u.OrderRepository.Update(ctx, o)
}

type testServer struct {
	url     string
	store   *infrastructure.MemoryStore
	orders  *unreliableOrders
	returns *application.ReturnApplicationService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	tracer := noop.NewTracerProvider().Tracer("test")

	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	idem, err := adapter.NewIdempotencyRedisAdapter(ctx, client, time.Minute, time.Hour)
	require.NoError(t, err)
	rules, err := rule.NewCELRuleEngine()
	require.NoError(t, err)

	store := infrastructure.NewMemoryStore()
	store.SeedProfile(domain.Profile{ID: "u-1", Email: "u1@example.com", Points: 500, Tier: domain.TierArgent})
	store.SeedCoupon(domain.Coupon{Code: "BIENVENUE10", DiscountPercent: 10, ExpiresAt: time.Now().AddDate(1, 0, 0)})
	store.SeedCoupon(domain.Coupon{Code: "NOEL", DiscountPercent: 30, ExpiresAt: time.Now().AddDate(-1, 0, 0)})
	orders := &unreliableOrders{OrderRepository: store.Orders()}

	settings := func() domain.Settings {
		return domain.Settings{
			Shipping: domain.ShippingRates{
				Table: map[domain.Zone]map[domain.Method]int64{
					domain.ZoneLocal:    {domain.MethodStandard: 1500, domain.MethodExpress: 3000},
					domain.ZoneNational: {domain.MethodStandard: 2500},
				},
				FreeThreshold: 50000,
			},
			Loyalty: domain.LoyaltyRates{EarningRate: 1000, RedemptionRate: 10},
		}
	}
	repos := application.Repositories{
		Orders:   orders,
		Returns:  store.Returns(),
		Profiles: store.Profiles(),
		Coupons:  store.Coupons(),
		Settings: infrastructure.StaticSettingsRepository{Settings: settings},
		Tx:       store,
	}
	ledger := application.NewLoyaltyLedger(store.Profiles(), tracer, 3)
	orderSvc := application.NewOrderApplicationService(repos, 5*time.Second, tracer, rules, ledger, adapter.LogNotifier{}, idem)
	returnSvc := application.NewReturnApplicationService(store.Returns(), orders, adapter.NewMemoryLocker(), adapter.LogNotifier{}, adapter.LogScheduler{}, tracer,
		application.CascadePolicy{Attempts: 2, Backoff: time.Millisecond, MaxScheduled: 2})

	r := chi.NewRouter()
	NewOrderHandler(orderSvc, returnSvc, ledger).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, store: store, orders: orders, returns: returnSvc}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header map[string]string, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, s.url+path, &buf)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func orderBody() map[string]any {
	return map[string]any{
		"user_id":    "u-1",
		"user_email": "u1@example.com",
		"items": []map[string]any{
			{"product_id": "robe-lin", "name": "Robe en lin", "size": "M", "unit_price": 20000, "quantity": 2},
		},
		"shipping_address": map[string]any{
			"email": "u1@example.com", "first_name": "Awa", "last_name": "Diallo",
			"address": "12 rue Carnot", "city": "Dakar", "phone": "770000000",
		},
		"shipping":       map[string]any{"zone": "local", "method": "standard"},
		"payment_method": "wave",
	}
}

func TestPlaceOrder_ReplayReturnsSameOrder(t *testing.T) {
	s := newTestServer(t)
	key := map[string]string{HeaderIdempotencyKey: "chk-1"}

	var first PlaceOrderResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/orders", orderBody(), key, &first))
	assert.False(t, first.Replayed)
	assert.Equal(t, int64(41500), first.Order.Total)
	assert.Equal(t, first.Breakdown.GrandTotal, first.Order.Total)
	assert.Equal(t, domain.StatusInProgress, first.Order.Status)
	assert.Len(t, first.Order.Items, 1)

	var second PlaceOrderResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/orders", orderBody(), key, &second))
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	var list []OrderResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/orders?user_id=u-1", nil, nil, &list))
	assert.Len(t, list, 1)
}

func TestPlaceOrder_Errors(t *testing.T) {
	s := newTestServer(t)

	t.Run("validation", func(t *testing.T) {
		body := orderBody()
		body["user_email"] = ""
		body["payment_method"] = ""
		var resp ErrorResponse
		require.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPost, "/orders", body, nil, &resp))
		assert.Equal(t, "validation_failed", resp.Code)
		assert.Contains(t, resp.Fields, "user_email")
		assert.Contains(t, resp.Fields, "payment_method")
	})

	t.Run("malformed", func(t *testing.T) {
		var resp ErrorResponse
		require.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPost, "/orders", "{", nil, &resp))
		assert.Contains(t, resp.Fields, "body")
	})

	t.Run("empty cart", func(t *testing.T) {
		body := orderBody()
		body["items"] = []any{}
		var resp ErrorResponse
		require.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPost, "/orders", body, nil, &resp))
		assert.Equal(t, "empty_cart", resp.Code)
	})

	t.Run("price mismatch", func(t *testing.T) {
		body := orderBody()
		body["total"] = 40000
		var resp ErrorResponse
		require.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/orders", body, nil, &resp))
		assert.Equal(t, "price_mismatch", resp.Code)
	})

	var list []OrderResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/orders?user_id=u-1", nil, nil, &list))
	assert.Empty(t, list, "rejected submissions leave nothing behind")
}

func TestQuote_ReportsCouponProblem(t *testing.T) {
	s := newTestServer(t)
	body := map[string]any{
		"items":       orderBody()["items"],
		"coupon_code": "noel",
		"shipping":    map[string]any{"zone": "national", "method": "standard"},
	}
	var q QuoteResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/quote", body, nil, &q))
	assert.NotEmpty(t, q.CouponError)
	assert.Zero(t, q.CouponDiscount)
	assert.Equal(t, int64(42500), q.GrandTotal)

	body["coupon_code"] = "bienvenue10"
	q = QuoteResponse{}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/quote", body, nil, &q))
	assert.Empty(t, q.CouponError)
	assert.Equal(t, int64(4000), q.CouponDiscount)
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t)
	var placed PlaceOrderResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/orders", orderBody(), nil, &placed))
	id := placed.Order.ID

	var resp ErrorResponse
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/orders/missing", nil, nil, &resp))
	assert.Equal(t, "order_not_found", resp.Code)
	require.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodGet, "/orders", nil, nil, &resp))

	require.Equal(t, http.StatusUnprocessableEntity, s.do(t, http.MethodPatch, "/orders/"+id, map[string]any{"status": "En attente"}, nil, &resp))

	var updated OrderResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPatch, "/orders/"+id,
		map[string]any{"status": "Expédié", "tracking_number": "LP123"}, nil, &updated))
	assert.Equal(t, domain.StatusShipped, updated.Status)

	var tracking application.TrackingView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/orders/"+id+"/tracking", nil, nil, &tracking))
	assert.Equal(t, "LP123", tracking.TrackingNumber)
	assert.Equal(t, domain.TrackingStep(domain.StatusShipped), tracking.Step)

	var loyalty application.LoyaltyView
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/profiles/u-1/loyalty", nil, nil, &loyalty))
	assert.Equal(t, int64(500)+placed.Order.PointsEarned, loyalty.Points)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/orders/"+id, nil, nil, nil))
	require.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/orders/"+id, nil, nil, &resp))
}

func TestReturns_CascadePendingThenRepair(t *testing.T) {
	s := newTestServer(t)
	var placed PlaceOrderResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/orders", orderBody(), nil, &placed))
	orderID := placed.Order.ID

	var resp ErrorResponse
	require.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/returns",
		map[string]any{"order_id": orderID, "user_id": "u-2", "reason": "pas à moi"}, nil, &resp))
	assert.Equal(t, "return_not_owned", resp.Code)

	var ret ReturnResponse
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/returns",
		map[string]any{"order_id": orderID, "user_id": "u-1", "reason": "Taille trop petite"}, nil, &ret))
	assert.Equal(t, domain.ReturnPending, ret.Status)

	require.Equal(t, http.StatusConflict, s.do(t, http.MethodPost, "/returns",
		map[string]any{"order_id": orderID, "user_id": "u-1", "reason": "encore"}, nil, &resp))
	assert.Equal(t, "duplicate_return", resp.Code)

	s.orders.broken.Store(true)
	var resolved ReturnResponse
	require.Equal(t, http.StatusAccepted, s.do(t, http.MethodPatch, "/returns/"+ret.ID,
		map[string]any{"status": "Remboursé"}, nil, &resolved))
	assert.True(t, resolved.CascadePending)
	assert.Equal(t, domain.ReturnRefunded, resolved.Status)

	var drifts []domain.Drift
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/reconciliation/returns", nil, nil, &drifts))
	require.Len(t, drifts, 1)
	assert.Equal(t, orderID, drifts[0].OrderID)
	assert.Equal(t, domain.StatusInProgress, drifts[0].OrderStatus)

	s.orders.broken.Store(false)
	var report application.RepairReport
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/reconciliation/returns/repair", nil, nil, &report))
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Repaired)
	assert.Empty(t, report.Failed)

	var order OrderResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/orders/"+orderID, nil, nil, &order))
	assert.Equal(t, domain.StatusRefunded, order.Status)

	require.Equal(t, http.StatusConflict, s.do(t, http.MethodPatch, "/returns/"+ret.ID,
		map[string]any{"status": "Rejeté"}, nil, &resp))
	assert.Equal(t, "return_already_resolved", resp.Code)
}

func TestCascadeHandler(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	s.store.SeedOrder(&domain.Order{ID: "o-1", UserID: "u-1", Status: domain.StatusDelivered})
	require.NoError(t, s.store.Returns().Create(ctx, &domain.ReturnRequest{ID: "r-1", OrderID: "o-1", UserID: "u-1", Status: domain.ReturnRefunded}))

	h := NewCascadeHandler(s.returns)
	assert.Error(t, h.Handle(ctx, kafka.Message{Value: []byte("{")}))

	payload, err := json.Marshal(domain.ReturnCascadeRequested{ReturnID: "r-1", OrderID: "o-1", Attempt: 1})
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, kafka.Message{Key: []byte("o-1"), Value: payload}))

	o, err := s.store.Orders().FindByID(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, o.Status)

	assert.NoError(t, LogDeadLetter(ctx, kafka.Message{Value: payload}))
}
