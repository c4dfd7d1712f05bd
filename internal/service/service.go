// Package service реализует бизнес-логику магазина.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/money"
	"github.com/mmeshcher/beststore-system/internal/notification"
	"github.com/mmeshcher/beststore-system/internal/settlement"
	"github.com/mmeshcher/beststore-system/internal/validation"
)

// Сумма промо-пополнения кошелька по умолчанию.
const defaultTopUpAmount = money.Money(50000)

const resetTokenTTL = 1 * time.Hour

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidCard возвращается при некорректных данных карты пополнения.
	ErrInvalidCard = errors.New("invalid card details")
	// ErrWeakPassword возвращается, если пароль не проходит минимальные требования.
	ErrWeakPassword = errors.New("password does not meet requirements")
	// ErrInvalidProduct возвращается при некорректных данных карточки товара.
	ErrInvalidProduct = errors.New("invalid product data")
	// ErrInvalidCoupon возвращается при некорректных параметрах купона.
	ErrInvalidCoupon = errors.New("invalid coupon data")
	// ErrInvalidOrderStatus возвращается при неизвестном статусе заказа.
	ErrInvalidOrderStatus = errors.New("invalid order status")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u *model.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpdateProfile(ctx context.Context, id int64, firstName, lastName, address string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash []byte) error
	DeleteUser(ctx context.Context, id int64) error
	GetWallet(ctx context.Context, userID int64) (*model.Wallet, error)
	SaveResetToken(ctx context.Context, userID int64, tokenHash []byte, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, userID int64, tokenHash []byte) error

	CreateCategory(ctx context.Context, c *model.Category) (int64, error)
	GetCategory(ctx context.Context, id int64) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	UpdateCategory(ctx context.Context, c *model.Category) error
	DeleteCategory(ctx context.Context, id int64) error

	CreateProduct(ctx context.Context, p *model.Product, categoryIDs []int64) (int64, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	UpdateProduct(ctx context.Context, p *model.Product) error
	SetStock(ctx context.Context, productID, stock int64) error
	DeleteProduct(ctx context.Context, id int64) error

	CreateCoupon(ctx context.Context, c *model.Coupon) (int64, error)
	ListCoupons(ctx context.Context) ([]model.Coupon, error)
	DeleteCoupon(ctx context.Context, id int64) error
	ApplyCoupon(ctx context.Context, code string) (*model.Coupon, error)

	GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)
	UpdateOrder(ctx context.Context, orderNumber, deliveryAddress, paymentMethod string, status model.OrderStatus) (*model.Order, error)
	DeleteOrder(ctx context.Context, orderNumber string) error
	UnnotifiedOrders(ctx context.Context, limit int) ([]model.Order, error)
	MarkOrderNotified(ctx context.Context, orderNumber string) error
}

// Engine описывает контракт движка проведения заказов.
type Engine interface {
	PlaceOrder(ctx context.Context, req settlement.PlaceOrderRequest) (*model.OrderReceipt, error)
	CreditWallet(ctx context.Context, userID int64, amount money.Money) (*model.Wallet, error)
}

// Notifier описывает контракт клиента сервиса уведомлений.
type Notifier interface {
	SendOrderCreated(ctx context.Context, n notification.OrderCreated) error
	SendPasswordReset(ctx context.Context, n notification.PasswordReset) error
}

// Service содержит бизнес-логику магазина.
type Service struct {
	repo     Repository
	engine   Engine
	notifier Notifier
}

// NewService создаёт новый сервис поверх репозитория, движка проведения и
// клиента уведомлений. Клиент уведомлений может быть nil.
func NewService(repo Repository, engine Engine, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		engine:   engine,
		notifier: notifier,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя с ролью client.
func (s *Service) RegisterUser(ctx context.Context, email, password, firstName, lastName, address string) (*model.User, error) {
	if !validation.IsValidPassword(password) {
		return nil, ErrWeakPassword
	}

	u := &model.User{
		Email:        email,
		PasswordHash: hashPassword(email, password),
		FirstName:    firstName,
		LastName:     lastName,
		Address:      address,
		Role:         model.RoleClient,
	}

	id, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	u.ID = id

	return u, nil
}

// AuthenticateUser проверяет email и пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	hashed := hashPassword(email, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// GetProfile возвращает профиль пользователя.
func (s *Service) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// UpdateProfile обновляет профильные поля пользователя.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, firstName, lastName, address string) error {
	return s.repo.UpdateProfile(ctx, userID, firstName, lastName, address)
}

// UpdatePassword меняет пароль аутентифицированного пользователя.
func (s *Service) UpdatePassword(ctx context.Context, userID int64, password string) error {
	if !validation.IsValidPassword(password) {
		return ErrWeakPassword
	}

	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	return s.repo.UpdatePassword(ctx, userID, hashPassword(u.Email, password))
}

// ForgotPassword создаёт одноразовый токен сброса пароля и отправляет его
// пользователю через сервис уведомлений. В хранилище попадает только хэш токена.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(buf)

	if err := s.repo.SaveResetToken(ctx, u.ID, hashToken(token), time.Now().Add(resetTokenTTL)); err != nil {
		return err
	}

	if s.notifier == nil {
		return fmt.Errorf("notification service not configured")
	}

	return s.notifier.SendPasswordReset(ctx, notification.PasswordReset{
		Email: u.Email,
		Token: token,
	})
}

// ResetPassword меняет пароль по токену сброса.
func (s *Service) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	if !validation.IsValidPassword(newPassword) {
		return ErrWeakPassword
	}

	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	if err := s.repo.ConsumeResetToken(ctx, u.ID, hashToken(token)); err != nil {
		return err
	}

	return s.repo.UpdatePassword(ctx, u.ID, hashPassword(u.Email, newPassword))
}

func hashToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// GetWallet возвращает текущее состояние кошелька пользователя.
func (s *Service) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.repo.GetWallet(ctx, userID)
}

// TopUpWallet пополняет кошелёк на промо-сумму после проверки данных карты.
// Реальное списание с карты не выполняется.
func (s *Service) TopUpWallet(ctx context.Context, userID int64, cardNumber, cvv, expiry string) (*model.Wallet, error) {
	if !validation.IsValidCardNumber(cardNumber) ||
		!validation.IsValidCVV(cvv) ||
		!validation.IsValidExpiry(expiry, time.Now()) {
		return nil, ErrInvalidCard
	}

	return s.engine.CreditWallet(ctx, userID, defaultTopUpAmount)
}

// PlaceOrder проводит заказ через движок проведения.
func (s *Service) PlaceOrder(ctx context.Context, req settlement.PlaceOrderRequest) (*model.OrderReceipt, error) {
	return s.engine.PlaceOrder(ctx, req)
}

// GetOrderByNumber возвращает заказ по номеру.
func (s *Service) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	return s.repo.GetOrderByNumber(ctx, orderNumber)
}

// GetOrdersByUser возвращает заказы пользователя.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// ListOrders возвращает все заказы магазина.
func (s *Service) ListOrders(ctx context.Context) ([]model.Order, error) {
	return s.repo.ListOrders(ctx)
}

// UpdateOrder обновляет административные поля заказа.
func (s *Service) UpdateOrder(ctx context.Context, orderNumber, deliveryAddress, paymentMethod string, status model.OrderStatus) (*model.Order, error) {
	switch status {
	case model.OrderStatusNew, model.OrderStatusShipped, model.OrderStatusDelivered:
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrderStatus, status)
	}
	return s.repo.UpdateOrder(ctx, orderNumber, deliveryAddress, paymentMethod, status)
}

// DeleteOrder удаляет заказ.
func (s *Service) DeleteOrder(ctx context.Context, orderNumber string) error {
	return s.repo.DeleteOrder(ctx, orderNumber)
}

// ProductInput содержит данные карточки товара с границы API.
type ProductInput struct {
	Name             string
	Brand            string
	Price            float64
	Description      string
	StockQuantity    int64
	IsAvailable      bool
	PointsPercentage float64
	MaxPoints        int64
	CategoryIDs      []int64
}

func (in ProductInput) toModel() (*model.Product, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if in.StockQuantity < 0 {
		return nil, fmt.Errorf("%w: negative stock", ErrInvalidProduct)
	}
	if in.MaxPoints < 0 {
		return nil, fmt.Errorf("%w: negative max points", ErrInvalidProduct)
	}

	price, err := money.FromDecimal(in.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProduct, err)
	}

	pct, err := money.PercentToBasisPoints(in.PointsPercentage)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProduct, err)
	}

	return &model.Product{
		Name:             in.Name,
		Brand:            in.Brand,
		Price:            price,
		Description:      in.Description,
		StockQuantity:    in.StockQuantity,
		IsAvailable:      in.IsAvailable,
		PointsPercentage: pct,
		MaxPoints:        money.Points(in.MaxPoints),
	}, nil
}

// CreateProduct создаёт товар каталога.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (int64, error) {
	p, err := in.toModel()
	if err != nil {
		return 0, err
	}
	return s.repo.CreateProduct(ctx, p, in.CategoryIDs)
}

// UpdateProduct обновляет карточку товара.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) error {
	p, err := in.toModel()
	if err != nil {
		return err
	}
	p.ID = id
	return s.repo.UpdateProduct(ctx, p)
}

// SetStock выставляет остаток товара.
func (s *Service) SetStock(ctx context.Context, productID, stock int64) error {
	if stock < 0 {
		return fmt.Errorf("%w: negative stock", ErrInvalidProduct)
	}
	return s.repo.SetStock(ctx, productID, stock)
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// ListProducts возвращает все товары.
func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.repo.ListProducts(ctx)
}

// DeleteProduct удаляет товар.
func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	return s.repo.DeleteProduct(ctx, id)
}

// CreateCategory создаёт категорию.
func (s *Service) CreateCategory(ctx context.Context, c *model.Category) (int64, error) {
	if c.Name == "" || c.URL == "" {
		return 0, fmt.Errorf("%w: name and url are required", ErrInvalidProduct)
	}
	return s.repo.CreateCategory(ctx, c)
}

// GetCategory возвращает категорию по идентификатору.
func (s *Service) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	return s.repo.GetCategory(ctx, id)
}

// ListCategories возвращает все категории.
func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListCategories(ctx)
}

// UpdateCategory обновляет категорию.
func (s *Service) UpdateCategory(ctx context.Context, c *model.Category) error {
	if c.Name == "" || c.URL == "" {
		return fmt.Errorf("%w: name and url are required", ErrInvalidProduct)
	}
	return s.repo.UpdateCategory(ctx, c)
}

// DeleteCategory удаляет категорию.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.repo.DeleteCategory(ctx, id)
}

// CreateCoupon создаёт купон с сгенерированным кодом для пользователя.
func (s *Service) CreateCoupon(ctx context.Context, userID int64, discount float64, expiry time.Time) (*model.Coupon, error) {
	amount, err := money.FromDecimal(discount)
	if err != nil || amount == 0 {
		return nil, fmt.Errorf("%w: discount must be positive", ErrInvalidCoupon)
	}
	if !expiry.After(time.Now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", ErrInvalidCoupon)
	}

	c := &model.Coupon{
		Code:           uuid.NewString()[:10],
		DiscountAmount: amount,
		ExpiryDate:     expiry,
		UserID:         userID,
	}

	id, err := s.repo.CreateCoupon(ctx, c)
	if err != nil {
		return nil, err
	}
	c.ID = id

	return c, nil
}

// ListCoupons возвращает все купоны.
func (s *Service) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	return s.repo.ListCoupons(ctx)
}

// DeleteCoupon удаляет купон.
func (s *Service) DeleteCoupon(ctx context.Context, id int64) error {
	return s.repo.DeleteCoupon(ctx, id)
}

// ApplyCoupon применяет купон по коду.
func (s *Service) ApplyCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	return s.repo.ApplyCoupon(ctx, code)
}

// ListUsers возвращает всех пользователей.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// DeleteUser удаляет пользователя.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.DeleteUser(ctx, id)
}

// StartNotificationDispatch выполняет фоновую отправку уведомлений о заказах
// до отмены контекста. Блокирует вызывающую горутину.
func (s *Service) StartNotificationDispatch(ctx context.Context) {
	if s.notifier == nil {
		return
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchNotificationBatch(ctx)
		}
	}
}

func (s *Service) dispatchNotificationBatch(ctx context.Context) {
	orders, err := s.repo.UnnotifiedOrders(ctx, 100)
	if err != nil {
		return
	}

	for _, o := range orders {
		u, err := s.repo.GetUserByID(ctx, o.UserID)
		if err != nil {
			continue
		}

		err = s.notifier.SendOrderCreated(ctx, notification.OrderCreated{
			OrderNumber: o.OrderNumber,
			Email:       u.Email,
			TotalAmount: o.TotalAmount.Decimal(),
			CreatedAt:   o.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			continue
		}

		_ = s.repo.MarkOrderNotified(ctx, o.OrderNumber)
	}
}
