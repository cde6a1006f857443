package interfaces

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nexus-settlement/internal/service/order/application"
	"nexus-settlement/internal/service/order/domain"
)

// HeaderIdempotencyKey carries the checkout submission key.
const HeaderIdempotencyKey = "Idempotency-Key"

// OrderHandler exposes the settlement use cases over HTTP.
type OrderHandler struct {
	orders  *application.OrderApplicationService
	returns *application.ReturnApplicationService
	ledger  *application.LoyaltyLedger
}

func NewOrderHandler(orders *application.OrderApplicationService, returns *application.ReturnApplicationService, ledger *application.LoyaltyLedger) *OrderHandler {
	return &OrderHandler{orders: orders, returns: returns, ledger: ledger}
}

// RegisterRoutes mounts every route on r.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/quote", h.quote)
	r.Get("/settings", h.settings)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.placeOrder)
		r.Get("/", h.listOrders)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Patch("/", h.updateOrder)
			r.Delete("/", h.deleteOrder)
			r.Get("/tracking", h.tracking)
		})
	})

	r.Route("/returns", func(r chi.Router) {
		r.Post("/", h.createReturn)
		r.Patch("/{returnID}", h.resolveReturn)
	})

	r.Get("/profiles/{userID}/loyalty", h.loyalty)

	r.Route("/reconciliation/returns", func(r chi.Router) {
		r.Get("/", h.reconcile)
		r.Post("/repair", h.repair)
	})
}

func (h *OrderHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	key := r.Header.Get(HeaderIdempotencyKey)
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("checkout.idempotency_key", key))

	res, err := h.orders.PlaceOrder(r.Context(), body.request(key))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, PlaceOrderResponse{Order: toOrderResponse(res.Order), Breakdown: res.Breakdown, Replayed: res.Replayed})
}

func (h *OrderHandler) quote(w http.ResponseWriter, r *http.Request) {
	var body quoteBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.orders.Quote(r.Context(), &application.QuoteRequest{
		UserID:     body.UserID,
		Items:      body.Items,
		CouponCode: body.CouponCode,
		Redemption: body.Redemption,
		Shipping:   body.Shipping,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := QuoteResponse{PriceBreakdown: b}
	if b.CouponIssue != nil {
		resp.CouponError = b.CouponIssue.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) settings(w http.ResponseWriter, r *http.Request) {
	s, err := h.orders.Settings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var body updateOrderBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.UpdateOrder(r.Context(), chi.URLParam(r, "orderID"), &application.UpdateOrderRequest{
		Status:         body.Status,
		TrackingNumber: body.TrackingNumber,
		TrackingURL:    body.TrackingURL,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.DeleteOrder(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandler) tracking(w http.ResponseWriter, r *http.Request) {
	v, err := h.orders.Track(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrderHandler) createReturn(w http.ResponseWriter, r *http.Request) {
	var body createReturnBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	ret, err := h.returns.CreateReturn(r.Context(), &application.CreateReturnRequest{
		OrderID: body.OrderID,
		UserID:  body.UserID,
		Reason:  body.Reason,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReturnResponse(ret))
}

// resolveReturn answers 202 when the return is refunded but the order has not
// followed yet.
func (h *OrderHandler) resolveReturn(w http.ResponseWriter, r *http.Request) {
	var body resolveReturnBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.returns.ResolveReturn(r.Context(), chi.URLParam(r, "returnID"), &application.ResolveReturnRequest{
		Status:  body.Status,
		OrderID: body.OrderID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := toReturnResponse(res.Return)
	resp.CascadePending = res.CascadePending
	status := http.StatusOK
	if res.CascadePending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func (h *OrderHandler) loyalty(w http.ResponseWriter, r *http.Request) {
	v, err := h.ledger.Balance(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrderHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := h.returns.Reconcile(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if drifts == nil {
		drifts = []domain.Drift{}
	}
	writeJSON(w, http.StatusOK, drifts)
}

func (h *OrderHandler) repair(w http.ResponseWriter, r *http.Request) {
	report, err := h.returns.Repair(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
