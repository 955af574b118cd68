package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/toastysunday/api/internal/money"
	"github.com/toastysunday/api/internal/order"
	"github.com/toastysunday/api/internal/service"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	Create(ctx context.Context, username string, sel order.Selection) (*service.Order, error)
	Edit(ctx context.Context, username string, sel order.Selection) (*service.Order, error)
	Delete(ctx context.Context, username string) error
	Get(ctx context.Context, username string) (*service.Order, error)
	Quote(sel order.Selection) (order.Items, money.Money, error)
	ListAll(ctx context.Context) ([]service.Order, error)
	ListPage(ctx context.Context, page, limit int) (*service.OrderPage, error)
	Summary(ctx context.Context) (*service.Summary, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc OrderServicer
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// RegisterRoutes registers per-user order endpoints. Expected to be mounted
// at /orders/{username} behind owner-or-admin middleware.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Post("/", h.Create)
	r.Put("/", h.Edit)
	r.Delete("/", h.Delete)
}

// RegisterAdminRoutes registers the admin listings. Expected to be mounted
// at /admin behind admin middleware.
func (h *OrderHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Get("/summary", h.Summary)
}

// --- Response types ---

type quoteResponse struct {
	Cost money.Money `json:"cost"`
	order.Items
}

// --- Handlers ---

// Get handles GET /orders/{username}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	o, err := h.svc.Get(r.Context(), username)
	if err != nil {
		writeServiceError(w, requestLog(r).WithField("username", username), err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Create handles POST /orders/{username}.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var sel order.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.svc.Create(r.Context(), username, sel)
	if err != nil {
		writeServiceError(w, requestLog(r).WithField("username", username), err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// Edit handles PUT /orders/{username}.
func (h *OrderHandler) Edit(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var sel order.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.svc.Edit(r.Context(), username, sel)
	if err != nil {
		writeServiceError(w, requestLog(r).WithField("username", username), err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// Delete handles DELETE /orders/{username}.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if err := h.svc.Delete(r.Context(), username); err != nil {
		writeServiceError(w, requestLog(r).WithField("username", username), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Quote handles POST /orders/quote. Nothing is persisted.
func (h *OrderHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var sel order.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	items, cost, err := h.svc.Quote(sel)
	if err != nil {
		writeServiceError(w, requestLog(r), err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Cost: cost, Items: items.Normalize()})
}

// List handles GET /admin/orders. Without page or limit every order is
// returned as a bare array.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("page") == "" && q.Get("limit") == "" {
		orders, err := h.svc.ListAll(r.Context())
		if err != nil {
			writeServiceError(w, requestLog(r), err)
			return
		}
		if orders == nil {
			orders = []service.Order{}
		}
		writeJSON(w, http.StatusOK, orders)
		return
	}

	page, err := queryInt(q.Get("page"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	result, err := h.svc.ListPage(r.Context(), page, limit)
	if err != nil {
		writeServiceError(w, requestLog(r), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Summary handles GET /admin/summary.
func (h *OrderHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context())
	if err != nil {
		writeServiceError(w, requestLog(r), err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// queryInt parses an optional integer query value; empty means 0.
func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
