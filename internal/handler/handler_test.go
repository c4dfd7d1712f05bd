package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/beststore-system/internal/middleware"
	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/money"
	"github.com/mmeshcher/beststore-system/internal/repository"
	"github.com/mmeshcher/beststore-system/internal/service"
	"github.com/mmeshcher/beststore-system/internal/settlement"
)

type stubService struct {
	registerUser *model.User
	registerErr  error

	authUser *model.User
	authErr  error

	wallet    *model.Wallet
	walletErr error

	placedReq  settlement.PlaceOrderRequest
	receipt    *model.OrderReceipt
	receiptErr error

	order    *model.Order
	orderErr error

	ordersResp []model.Order
	ordersErr  error

	coupon    *model.Coupon
	couponErr error
}

func (s *stubService) RegisterUser(ctx context.Context, email, password, firstName, lastName, address string) (*model.User, error) {
	return s.registerUser, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) UpdateProfile(ctx context.Context, userID int64, firstName, lastName, address string) error {
	return nil
}

func (s *stubService) UpdatePassword(ctx context.Context, userID int64, password string) error {
	return nil
}

func (s *stubService) ForgotPassword(ctx context.Context, email string) error { return nil }

func (s *stubService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	return nil
}

func (s *stubService) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.wallet, s.walletErr
}

func (s *stubService) TopUpWallet(ctx context.Context, userID int64, cardNumber, cvv, expiry string) (*model.Wallet, error) {
	return s.wallet, s.walletErr
}

func (s *stubService) PlaceOrder(ctx context.Context, req settlement.PlaceOrderRequest) (*model.OrderReceipt, error) {
	s.placedReq = req
	return s.receipt, s.receiptErr
}

func (s *stubService) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) ListOrders(ctx context.Context) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) UpdateOrder(ctx context.Context, orderNumber, deliveryAddress, paymentMethod string, status model.OrderStatus) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) DeleteOrder(ctx context.Context, orderNumber string) error { return s.orderErr }

func (s *stubService) CreateProduct(ctx context.Context, in service.ProductInput) (int64, error) {
	return 1, nil
}

func (s *stubService) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return &model.Product{ID: id}, nil
}

func (s *stubService) ListProducts(ctx context.Context) ([]model.Product, error) { return nil, nil }

func (s *stubService) UpdateProduct(ctx context.Context, id int64, in service.ProductInput) error {
	return nil
}

func (s *stubService) SetStock(ctx context.Context, productID, stock int64) error { return nil }

func (s *stubService) DeleteProduct(ctx context.Context, id int64) error { return nil }

func (s *stubService) CreateCategory(ctx context.Context, c *model.Category) (int64, error) {
	return 1, nil
}

func (s *stubService) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	return &model.Category{ID: id}, nil
}

func (s *stubService) ListCategories(ctx context.Context) ([]model.Category, error) {
	return nil, nil
}

func (s *stubService) UpdateCategory(ctx context.Context, c *model.Category) error { return nil }

func (s *stubService) DeleteCategory(ctx context.Context, id int64) error { return nil }

func (s *stubService) CreateCoupon(ctx context.Context, userID int64, discount float64, expiry time.Time) (*model.Coupon, error) {
	return s.coupon, s.couponErr
}

func (s *stubService) ListCoupons(ctx context.Context) ([]model.Coupon, error) { return nil, nil }

func (s *stubService) DeleteCoupon(ctx context.Context, id int64) error { return nil }

func (s *stubService) ApplyCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	return s.coupon, s.couponErr
}

func (s *stubService) ListUsers(ctx context.Context) ([]model.User, error) { return nil, nil }

func (s *stubService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) DeleteUser(ctx context.Context, id int64) error { return nil }

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authCookie(t *testing.T, h *Handler, userID int64, role model.Role) *http.Cookie {
	t.Helper()

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, userID, role)
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no auth cookie set")
	}
	return cookies[0]
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUser: &model.User{ID: 42, Email: "user@shop.ru", Role: model.RoleClient},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(registerRequest{
		Email:    "user@shop.ru",
		Password: "password1",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/account/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie not set after register")
	}

	var resp userProfileResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 42 || resp.Role != string(model.RoleClient) {
		t.Fatalf("unexpected profile: %+v", resp)
	}
}

func TestLogin_UnauthorizedOnBadCredentials(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(loginRequest{
		Email:    "user@shop.ru",
		Password: "wrong",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/account/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestPlaceOrder_PassesIdempotencyKey(t *testing.T) {
	svc := &stubService{
		receipt: &model.OrderReceipt{
			OrderNumber:        "order-1",
			WalletBalanceAfter: money.Money(80000),
			PointsEarned:       10,
			PointsBalanceAfter: 10,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(placeOrderRequest{ProductID: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
	req.Header.Set(idempotencyKeyHeader, "client-key-1")
	req.AddCookie(authCookie(t, h, 1, model.RoleClient))

	rec := httptest.NewRecorder()
	h.authMiddleware.Middleware(http.HandlerFunc(h.PlaceOrder)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.placedReq.IdempotencyKey != "client-key-1" {
		t.Fatalf("idempotency key = %q, want client-key-1", svc.placedReq.IdempotencyKey)
	}
	if svc.placedReq.UserID != 1 {
		t.Fatalf("user id = %d, want 1 from cookie", svc.placedReq.UserID)
	}

	var resp orderReceiptResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.WalletBalance != 800 || resp.PointsEarned != 10 {
		t.Fatalf("unexpected receipt: %+v", resp)
	}
}

func TestPlaceOrder_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "product not found", err: settlement.ErrProductNotFound, want: http.StatusNotFound},
		{name: "unavailable", err: settlement.ErrProductUnavailable, want: http.StatusBadRequest},
		{name: "insufficient funds", err: settlement.ErrInsufficientFunds, want: http.StatusPaymentRequired},
		{name: "concurrent modification", err: settlement.ErrConcurrentModification, want: http.StatusConflict},
		{name: "timeout", err: settlement.ErrTimeout, want: http.StatusServiceUnavailable},
		{name: "internal", err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{receiptErr: tt.err}
			h := newTestHandler(t, svc)

			body, _ := json.Marshal(placeOrderRequest{ProductID: 1})
			req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader(body))
			req.AddCookie(authCookie(t, h, 1, model.RoleClient))

			rec := httptest.NewRecorder()
			h.authMiddleware.Middleware(http.HandlerFunc(h.PlaceOrder)).ServeHTTP(rec, req)

			if rec.Result().StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", rec.Result().StatusCode, tt.want)
			}
		})
	}
}

func TestGetOrders_NoContent(t *testing.T) {
	svc := &stubService{
		ordersResp: []model.Order{},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(authCookie(t, h, 1, model.RoleClient))

	rec := httptest.NewRecorder()
	h.authMiddleware.Middleware(http.HandlerFunc(h.GetOrders)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestGetWallet_JSONResponse(t *testing.T) {
	svc := &stubService{
		wallet: &model.Wallet{UserID: 1, Balance: money.Money(100000), Points: 5},
	}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	req.AddCookie(authCookie(t, h, 1, model.RoleClient))

	rec := httptest.NewRecorder()
	h.authMiddleware.Middleware(http.HandlerFunc(h.GetWallet)).ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp walletResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Balance != 1000 || resp.Points != 5 {
		t.Fatalf("unexpected wallet: %+v", resp)
	}
}

func TestGetOrder_HiddenFromOtherUser(t *testing.T) {
	svc := &stubService{
		order: &model.Order{OrderNumber: "order-1", UserID: 2},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/orders/order-1", nil)
	req.AddCookie(authCookie(t, h, 1, model.RoleClient))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d for foreign order", rec.Result().StatusCode, http.StatusNotFound)
	}
}

func TestGetOrder_VisibleToAdmin(t *testing.T) {
	svc := &stubService{
		order: &model.Order{OrderNumber: "order-1", UserID: 2, Status: model.OrderStatusNew},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/orders/order-1", nil)
	req.AddCookie(authCookie(t, h, 1, model.RoleAdmin))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d for admin", rec.Result().StatusCode, http.StatusOK)
	}
}

func TestAdminRoutes_ForbiddenForClient(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	req.AddCookie(authCookie(t, h, 1, model.RoleClient))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
	}
}

func TestProtectedRoutes_UnauthorizedWithoutCookie(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/wallet", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestApplyCoupon_InvalidCode(t *testing.T) {
	svc := &stubService{
		couponErr: repository.ErrCouponNotFound,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(applyCouponRequest{Code: "nope"})
	req := httptest.NewRequest(http.MethodPost, "/api/coupons/apply", bytes.NewReader(body))
	req.AddCookie(authCookie(t, h, 1, model.RoleClient))

	rec := httptest.NewRecorder()
	h.authMiddleware.Middleware(http.HandlerFunc(h.ApplyCoupon)).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}
