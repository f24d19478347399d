package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rmarques/storefront-checkout/internal/auth"
	"github.com/rmarques/storefront-checkout/internal/checkout"
	"github.com/rmarques/storefront-checkout/internal/domain"
)

// CheckoutRunner is the checkout service as the handler sees it.
type CheckoutRunner interface {
	Checkout(ctx context.Context, userID, key string, req domain.CheckoutRequest) (*checkout.Result, error)
}

// OrderReader is the read side: detail, history, reporting.
type OrderReader interface {
	GetByID(ctx context.Context, orderID, userID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	DailyRevenue(ctx context.Context) ([]RevenueDay, error)
}

type Handler struct {
	service CheckoutRunner
	reader  OrderReader
	logger  *slog.Logger
}

func NewHandler(service CheckoutRunner, reader OrderReader, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		reader:  reader,
		logger:  logger,
	}
}

type checkoutResponse struct {
	Message string `json:"message"`
	OrderID string `json:"orderId"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	var req domain.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	key := r.Header.Get("Idempotency-Key")

	result, err := h.service.Checkout(r.Context(), userID, key, req)
	if err != nil {
		var verr *checkout.ValidationError
		switch {
		case errors.As(err, &verr):
			h.writeError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, checkout.ErrInProgress):
			h.writeError(w, http.StatusConflict, "checkout already in progress, retry shortly")
		default:
			h.logger.Error("checkout failed", "error", err, "user_id", userID)
			h.writeError(w, http.StatusInternalServerError, "failed to process order")
		}
		return
	}

	message := "order created successfully"
	if result.Replayed {
		message = "order already created"
	}

	h.writeJSON(w, http.StatusCreated, checkoutResponse{Message: message, OrderID: result.OrderID})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	orderID := r.PathValue("orderId")
	if orderID == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.reader.GetByID(r.Context(), orderID, userID)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "failed to get order details")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "missing authenticated user")
		return
	}

	orders, err := h.reader.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "failed to get order history")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleDailyRevenue(w http.ResponseWriter, r *http.Request) {
	days, err := h.reader.DailyRevenue(r.Context())
	if err != nil {
		h.logger.Error("failed to compute daily revenue", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get daily revenue")
		return
	}

	h.writeJSON(w, http.StatusOK, days)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
