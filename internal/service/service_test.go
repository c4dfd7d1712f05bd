package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/money"
	"github.com/mmeshcher/beststore-system/internal/notification"
	"github.com/mmeshcher/beststore-system/internal/repository"
	"github.com/mmeshcher/beststore-system/internal/settlement"
)

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user@shop.ru", "password1")
	b := hashPassword("user@shop.ru", "password1")
	c := hashPassword("user@shop.ru", "password2")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

type stubRepo struct {
	createUserID  int64
	createUserErr error

	getUser    *model.User
	getUserErr error

	wallet    *model.Wallet
	walletErr error

	savedTokenHash    []byte
	consumedTokenHash []byte
	consumeErr        error
	updatedPassword   []byte

	unnotified    []model.Order
	notifiedMarks []string
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	return s.createUserID, s.createUserErr
}

func (s *stubRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.getUser, s.getUserErr
}

func (s *stubRepo) ListUsers(ctx context.Context) ([]model.User, error) { return nil, nil }

func (s *stubRepo) UpdateProfile(ctx context.Context, id int64, firstName, lastName, address string) error {
	return nil
}

func (s *stubRepo) UpdatePassword(ctx context.Context, id int64, passwordHash []byte) error {
	s.updatedPassword = passwordHash
	return nil
}

func (s *stubRepo) DeleteUser(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.wallet, s.walletErr
}

func (s *stubRepo) SaveResetToken(ctx context.Context, userID int64, tokenHash []byte, expiresAt time.Time) error {
	s.savedTokenHash = tokenHash
	return nil
}

func (s *stubRepo) ConsumeResetToken(ctx context.Context, userID int64, tokenHash []byte) error {
	s.consumedTokenHash = tokenHash
	return s.consumeErr
}

func (s *stubRepo) CreateCategory(ctx context.Context, c *model.Category) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	return nil, nil
}

func (s *stubRepo) ListCategories(ctx context.Context) ([]model.Category, error) { return nil, nil }

func (s *stubRepo) UpdateCategory(ctx context.Context, c *model.Category) error { return nil }

func (s *stubRepo) DeleteCategory(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) CreateProduct(ctx context.Context, p *model.Product, categoryIDs []int64) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return nil, nil
}

func (s *stubRepo) ListProducts(ctx context.Context) ([]model.Product, error) { return nil, nil }

func (s *stubRepo) UpdateProduct(ctx context.Context, p *model.Product) error { return nil }

func (s *stubRepo) SetStock(ctx context.Context, productID, stock int64) error { return nil }

func (s *stubRepo) DeleteProduct(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) CreateCoupon(ctx context.Context, c *model.Coupon) (int64, error) { return 1, nil }

func (s *stubRepo) ListCoupons(ctx context.Context) ([]model.Coupon, error) { return nil, nil }

func (s *stubRepo) DeleteCoupon(ctx context.Context, id int64) error { return nil }

func (s *stubRepo) ApplyCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	return nil, nil
}

func (s *stubRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	return nil, nil
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) ListOrders(ctx context.Context) ([]model.Order, error) { return nil, nil }

func (s *stubRepo) UpdateOrder(ctx context.Context, orderNumber, deliveryAddress, paymentMethod string, status model.OrderStatus) (*model.Order, error) {
	return &model.Order{OrderNumber: orderNumber, Status: status}, nil
}

func (s *stubRepo) DeleteOrder(ctx context.Context, orderNumber string) error { return nil }

func (s *stubRepo) UnnotifiedOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return s.unnotified, nil
}

func (s *stubRepo) MarkOrderNotified(ctx context.Context, orderNumber string) error {
	s.notifiedMarks = append(s.notifiedMarks, orderNumber)
	return nil
}

type stubEngine struct {
	creditCalls  int
	creditAmount money.Money
	wallet       *model.Wallet
	receipt      *model.OrderReceipt
	err          error
}

func (e *stubEngine) PlaceOrder(ctx context.Context, req settlement.PlaceOrderRequest) (*model.OrderReceipt, error) {
	return e.receipt, e.err
}

func (e *stubEngine) CreditWallet(ctx context.Context, userID int64, amount money.Money) (*model.Wallet, error) {
	e.creditCalls++
	e.creditAmount = amount
	return e.wallet, e.err
}

type stubNotifier struct {
	orderCalls []notification.OrderCreated
	resetCalls []notification.PasswordReset
	err        error
}

func (n *stubNotifier) SendOrderCreated(ctx context.Context, msg notification.OrderCreated) error {
	n.orderCalls = append(n.orderCalls, msg)
	return n.err
}

func (n *stubNotifier) SendPasswordReset(ctx context.Context, msg notification.PasswordReset) error {
	n.resetCalls = append(n.resetCalls, msg)
	return n.err
}

func TestRegisterUser_PropagatesDuplicateError(t *testing.T) {
	repo := &stubRepo{
		createUserErr: repository.ErrUserExists,
	}
	svc := NewService(repo, nil, nil)

	_, err := svc.RegisterUser(context.Background(), "user@shop.ru", "password1", "", "", "")
	if !errors.Is(err, repository.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegisterUser_WeakPassword(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	_, err := svc.RegisterUser(context.Background(), "user@shop.ru", "short", "", "", "")
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegisterUser_AssignsClientRole(t *testing.T) {
	repo := &stubRepo{createUserID: 5}
	svc := NewService(repo, nil, nil)

	u, err := svc.RegisterUser(context.Background(), "admin@shop.ru", "password1", "", "", "")
	if err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}
	if u.Role != model.RoleClient {
		t.Fatalf("role = %s, want %s regardless of email", u.Role, model.RoleClient)
	}
	if u.ID != 5 {
		t.Fatalf("id = %d, want 5", u.ID)
	}
}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hashed := hashPassword("user@shop.ru", "correct-pass")
	repo := &stubRepo{
		getUser: &model.User{
			ID:           1,
			Email:        "user@shop.ru",
			PasswordHash: hashed,
		},
	}

	svc := NewService(repo, nil, nil)

	_, err := svc.AuthenticateUser(context.Background(), "user@shop.ru", "wrong-pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestTopUpWallet_InvalidCardSkipsEngine(t *testing.T) {
	engine := &stubEngine{}
	svc := NewService(&stubRepo{}, engine, nil)

	_, err := svc.TopUpWallet(context.Background(), 1, "1234", "12", "bad")
	if !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("expected ErrInvalidCard, got %v", err)
	}
	if engine.creditCalls != 0 {
		t.Fatalf("engine must not be called for invalid card")
	}
}

func TestTopUpWallet_CreditsPromoAmount(t *testing.T) {
	engine := &stubEngine{
		wallet: &model.Wallet{UserID: 1, Balance: money.Money(150000)},
	}
	svc := NewService(&stubRepo{}, engine, nil)

	w, err := svc.TopUpWallet(context.Background(), 1, "4561261212345467", "123", "12/30")
	if err != nil {
		t.Fatalf("TopUpWallet error: %v", err)
	}
	if engine.creditCalls != 1 {
		t.Fatalf("engine calls = %d, want 1", engine.creditCalls)
	}
	if engine.creditAmount != defaultTopUpAmount {
		t.Fatalf("credited amount = %d, want %d", engine.creditAmount, defaultTopUpAmount)
	}
	if w.Balance != money.Money(150000) {
		t.Fatalf("balance = %d, want 150000", w.Balance)
	}
}

func TestUpdateOrder_InvalidStatus(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	_, err := svc.UpdateOrder(context.Background(), "abc", "", "", model.OrderStatus("UNKNOWN"))
	if !errors.Is(err, ErrInvalidOrderStatus) {
		t.Fatalf("expected ErrInvalidOrderStatus, got %v", err)
	}
}

func TestCreateCoupon_Validation(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	_, err := svc.CreateCoupon(context.Background(), 1, -5, time.Now().Add(time.Hour))
	if !errors.Is(err, ErrInvalidCoupon) {
		t.Fatalf("expected ErrInvalidCoupon for negative discount, got %v", err)
	}

	_, err = svc.CreateCoupon(context.Background(), 1, 10, time.Now().Add(-time.Hour))
	if !errors.Is(err, ErrInvalidCoupon) {
		t.Fatalf("expected ErrInvalidCoupon for past expiry, got %v", err)
	}
}

func TestCreateCoupon_GeneratesShortCode(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil)

	c, err := svc.CreateCoupon(context.Background(), 1, 10, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateCoupon error: %v", err)
	}
	if len(c.Code) != 10 {
		t.Fatalf("code length = %d, want 10", len(c.Code))
	}
	if c.DiscountAmount != money.Money(1000) {
		t.Fatalf("discount = %d cents, want 1000", c.DiscountAmount)
	}
}

func TestForgotPassword_StoresHashNotToken(t *testing.T) {
	repo := &stubRepo{
		getUser: &model.User{ID: 1, Email: "user@shop.ru"},
	}
	notifier := &stubNotifier{}
	svc := NewService(repo, nil, notifier)

	if err := svc.ForgotPassword(context.Background(), "user@shop.ru"); err != nil {
		t.Fatalf("ForgotPassword error: %v", err)
	}

	if len(notifier.resetCalls) != 1 {
		t.Fatalf("reset notifications = %d, want 1", len(notifier.resetCalls))
	}
	token := notifier.resetCalls[0].Token
	if token == "" {
		t.Fatalf("empty token sent to user")
	}
	if string(repo.savedTokenHash) == token {
		t.Fatalf("plaintext token must not be stored")
	}
	if string(repo.savedTokenHash) != string(hashToken(token)) {
		t.Fatalf("stored hash does not match sent token")
	}
}

func TestResetPassword_ConsumesTokenBeforeUpdate(t *testing.T) {
	repo := &stubRepo{
		getUser: &model.User{ID: 1, Email: "user@shop.ru"},
	}
	svc := NewService(repo, nil, nil)

	err := svc.ResetPassword(context.Background(), "user@shop.ru", "token-value", "newpassword1")
	if err != nil {
		t.Fatalf("ResetPassword error: %v", err)
	}
	if string(repo.consumedTokenHash) != string(hashToken("token-value")) {
		t.Fatalf("token hash was not consumed")
	}
	if string(repo.updatedPassword) != string(hashPassword("user@shop.ru", "newpassword1")) {
		t.Fatalf("password hash was not updated")
	}
}

func TestResetPassword_InvalidToken(t *testing.T) {
	repo := &stubRepo{
		getUser:    &model.User{ID: 1, Email: "user@shop.ru"},
		consumeErr: repository.ErrResetTokenInvalid,
	}
	svc := NewService(repo, nil, nil)

	err := svc.ResetPassword(context.Background(), "user@shop.ru", "bad-token", "newpassword1")
	if !errors.Is(err, repository.ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}
	if repo.updatedPassword != nil {
		t.Fatalf("password must not change for invalid token")
	}
}

func TestDispatchNotificationBatch_MarksNotified(t *testing.T) {
	repo := &stubRepo{
		getUser: &model.User{ID: 1, Email: "user@shop.ru"},
		unnotified: []model.Order{
			{OrderNumber: "order-1", UserID: 1, TotalAmount: money.Money(20000)},
		},
	}
	notifier := &stubNotifier{}
	svc := NewService(repo, nil, notifier)

	svc.dispatchNotificationBatch(context.Background())

	if len(notifier.orderCalls) != 1 {
		t.Fatalf("order notifications = %d, want 1", len(notifier.orderCalls))
	}
	if notifier.orderCalls[0].OrderNumber != "order-1" {
		t.Fatalf("unexpected notification: %+v", notifier.orderCalls[0])
	}
	if len(repo.notifiedMarks) != 1 || repo.notifiedMarks[0] != "order-1" {
		t.Fatalf("order was not marked notified: %+v", repo.notifiedMarks)
	}
}

func TestDispatchNotificationBatch_KeepsUnnotifiedOnError(t *testing.T) {
	repo := &stubRepo{
		getUser: &model.User{ID: 1, Email: "user@shop.ru"},
		unnotified: []model.Order{
			{OrderNumber: "order-1", UserID: 1},
		},
	}
	notifier := &stubNotifier{err: errors.New("notify failed")}
	svc := NewService(repo, nil, notifier)

	svc.dispatchNotificationBatch(context.Background())

	if len(repo.notifiedMarks) != 0 {
		t.Fatalf("order must stay unnotified after send failure")
	}
}

func TestStartNotificationDispatch_NoClient(t *testing.T) {
	svc := &Service{}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	go func() {
		svc.StartNotificationDispatch(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("StartNotificationDispatch did not return without client")
	}
}
