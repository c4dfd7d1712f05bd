package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/beststore-system/internal/middleware"
	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/repository"
	"github.com/mmeshcher/beststore-system/internal/service"
	"github.com/mmeshcher/beststore-system/internal/settlement"
)

// idempotencyKeyHeader — заголовок с клиентским ключом идемпотентности заказа.
const idempotencyKeyHeader = "Idempotency-Key"

type walletResponse struct {
	Balance float64 `json:"balance"`
	Points  int64   `json:"points"`
}

// GetWallet возвращает баланс и баллы текущего пользователя.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get wallet error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, walletResponse{
		Balance: wallet.Balance.Decimal(),
		Points:  int64(wallet.Points),
	})
}

type topUpRequest struct {
	CardNumber string `json:"card_number"`
	CVV        string `json:"cvv"`
	ExpiryDate string `json:"expiry_date"`
}

// TopUpWallet пополняет кошелёк текущего пользователя после проверки карты.
func (h *Handler) TopUpWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req topUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	wallet, err := h.service.TopUpWallet(r.Context(), userID, req.CardNumber, req.CVV, req.ExpiryDate)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCard):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, settlement.ErrUserNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, settlement.ErrConcurrentModification):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("top up wallet error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, walletResponse{
		Balance: wallet.Balance.Decimal(),
		Points:  int64(wallet.Points),
	})
}

type placeOrderRequest struct {
	ProductID       int64  `json:"product_id"`
	DeliveryAddress string `json:"delivery_address"`
	PaymentMethod   string `json:"payment_method"`
}

type orderReceiptResponse struct {
	OrderNumber   string  `json:"order_number"`
	WalletBalance float64 `json:"wallet_balance"`
	PointsEarned  int64   `json:"points_earned"`
	PointsBalance int64   `json:"points_balance"`
}

// PlaceOrder проводит заказ текущего пользователя.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	receipt, err := h.service.PlaceOrder(r.Context(), settlement.PlaceOrderRequest{
		UserID:          userID,
		ProductID:       req.ProductID,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		switch {
		case errors.Is(err, settlement.ErrUserNotFound), errors.Is(err, settlement.ErrProductNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, settlement.ErrProductUnavailable):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, settlement.ErrInsufficientFunds):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		case errors.Is(err, settlement.ErrConcurrentModification):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, settlement.ErrTimeout):
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		default:
			h.logger.Error("place order error", zap.Error(err),
				zap.Int64("userID", userID), zap.Int64("productID", req.ProductID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, orderReceiptResponse{
		OrderNumber:   receipt.OrderNumber,
		WalletBalance: receipt.WalletBalanceAfter.Decimal(),
		PointsEarned:  int64(receipt.PointsEarned),
		PointsBalance: int64(receipt.PointsBalanceAfter),
	})
}

type orderResponse struct {
	OrderNumber     string  `json:"order_number"`
	UserID          int64   `json:"user_id"`
	ProductID       int64   `json:"product_id"`
	TotalAmount     float64 `json:"total_amount"`
	DeliveryAddress string  `json:"delivery_address"`
	PaymentMethod   string  `json:"payment_method"`
	Status          string  `json:"status"`
	PointsEarned    int64   `json:"points_earned"`
	CreatedAt       string  `json:"created_at"`
}

func toOrderResponse(o *model.Order) orderResponse {
	return orderResponse{
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		ProductID:       o.ProductID,
		TotalAmount:     o.TotalAmount.Decimal(),
		DeliveryAddress: o.DeliveryAddress,
		PaymentMethod:   o.PaymentMethod,
		Status:          string(o.Status),
		PointsEarned:    int64(o.PointsEarned),
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}
}

// GetOrder возвращает заказ по номеру. Пользователь видит только свои
// заказы, администратор — любые.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orderNumber := chi.URLParam(r, "orderNumber")

	o, err := h.service.GetOrderByNumber(r.Context(), orderNumber)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get order error", zap.Error(err), zap.String("order", orderNumber))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	role, _ := middleware.GetRoleFromContext(r.Context())
	if o.UserID != userID && role != model.RoleAdmin {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// GetOrders возвращает заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	orders, err := h.service.GetOrdersByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get orders error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListOrders возвращает все заказы. Доступно только администратору.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context())
	if err != nil {
		h.logger.Error("list orders error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, toOrderResponse(&orders[i]))
	}

	writeJSON(w, http.StatusOK, resp)
}

type updateOrderRequest struct {
	DeliveryAddress string `json:"delivery_address"`
	PaymentMethod   string `json:"payment_method"`
	Status          string `json:"status"`
}

// UpdateOrder обновляет адрес доставки, способ оплаты и статус заказа.
// Доступно только администратору.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Status == "" {
		req.Status = string(model.OrderStatusNew)
	}

	o, err := h.service.UpdateOrder(r.Context(), orderNumber, req.DeliveryAddress, req.PaymentMethod, model.OrderStatus(req.Status))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrInvalidOrderStatus):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("update order error", zap.Error(err), zap.String("order", orderNumber))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// DeleteOrder удаляет заказ. Доступно только администратору.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	if err := h.service.DeleteOrder(r.Context(), orderNumber); err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("delete order error", zap.Error(err), zap.String("order", orderNumber))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
