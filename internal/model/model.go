// Package model содержит доменные сущности магазина.
package model

import (
	"time"

	"github.com/mmeshcher/beststore-system/internal/money"
)

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// User представляет зарегистрированного пользователя магазина.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
	Address      string
	Role         Role
	CreatedAt    time.Time
}

// Wallet содержит баланс кошелька и баллы пользователя.
// Version увеличивается при каждом изменении и служит для
// оптимистической блокировки конкурирующих списаний и пополнений.
type Wallet struct {
	UserID  int64
	Balance money.Money
	Points  money.Points
	Version int64
}

// Category представляет категорию каталога.
type Category struct {
	ID   int64
	Name string
	URL  string
	Tags string
}

// Product представляет товар каталога.
// Version защищает остаток на складе от конкурентных изменений.
type Product struct {
	ID               int64
	Name             string
	Brand            string
	Price            money.Money
	Description      string
	StockQuantity    int64
	IsAvailable      bool
	PointsPercentage money.BasisPoints
	MaxPoints        money.Points
	Version          int64
	CreatedAt        time.Time
	Categories       []Category
}

// Coupon представляет скидочный купон пользователя.
type Coupon struct {
	ID             int64
	Code           string
	DiscountAmount money.Money
	ExpiryDate     time.Time
	IsUsed         bool
	UserID         int64
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
)

// Order описывает оформленный заказ. Создаётся ровно один раз на успешное
// проведение оплаты; после создания меняются только адрес доставки, способ
// оплаты и статус.
type Order struct {
	ID              int64
	OrderNumber     string
	UserID          int64
	ProductID       int64
	TotalAmount     money.Money
	DeliveryAddress string
	PaymentMethod   string
	Status          OrderStatus
	IdempotencyKey  string
	PointsEarned    money.Points
	BalanceAfter    money.Money
	PointsAfter     money.Points
	CreatedAt       time.Time
}

// Receipt возвращает чек проведённого заказа. Значения берутся из
// сохранённых колонок заказа, поэтому повтор по ключу идемпотентности
// отдаёт идентичный чек.
func (o *Order) Receipt() *OrderReceipt {
	return &OrderReceipt{
		OrderNumber:        o.OrderNumber,
		WalletBalanceAfter: o.BalanceAfter,
		PointsEarned:       o.PointsEarned,
		PointsBalanceAfter: o.PointsAfter,
	}
}

// OrderReceipt — результат успешного проведения заказа.
type OrderReceipt struct {
	OrderNumber        string
	WalletBalanceAfter money.Money
	PointsEarned       money.Points
	PointsBalanceAfter money.Points
}
