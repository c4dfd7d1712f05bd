// Package settlement реализует атомарное проведение заказа: списание с
// кошелька, начисление баллов, уменьшение остатка и создание записи заказа
// либо происходят вместе, либо не происходят вовсе.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/money"
)

// Tx — единица работы над хранилищем в рамках одного проведения.
// Все изменения становятся видимыми только после Commit.
type Tx interface {
	// Wallet возвращает кошелёк пользователя или ErrUserNotFound.
	Wallet(ctx context.Context, userID int64) (*model.Wallet, error)
	// Product возвращает товар или ErrProductNotFound.
	Product(ctx context.Context, productID int64) (*model.Product, error)
	// UpdateWallet записывает новый баланс и баллы при совпадении версии,
	// иначе возвращает ErrVersionConflict.
	UpdateWallet(ctx context.Context, userID, expectedVersion int64, balance money.Money, points money.Points) error
	// UpdateStock записывает новый остаток при совпадении версии,
	// иначе возвращает ErrVersionConflict.
	UpdateStock(ctx context.Context, productID, expectedVersion, newStock int64) error
	// InsertOrder добавляет запись заказа. Возвращает ErrDuplicateOrderNumber
	// при коллизии номера и ErrDuplicateIdempotencyKey, если ключ
	// идемпотентности уже занят другим заказом пользователя.
	InsertOrder(ctx context.Context, order *model.Order) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store описывает контракт хранилища, используемый движком проведения.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	// OrderByIdempotencyKey возвращает ранее проведённый заказ с этим ключом
	// или nil, если ключ ещё не использовался.
	OrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*model.Order, error)
}

// PlaceOrderRequest описывает намерение покупки.
type PlaceOrderRequest struct {
	UserID          int64
	ProductID       int64
	IdempotencyKey  string
	DeliveryAddress string
	PaymentMethod   string
}

// Engine проводит заказы и пополнения кошелька.
type Engine struct {
	store  Store
	logger *zap.Logger

	attemptTimeout time.Duration
	maxRetries     uint64
	retryDelay     time.Duration

	now            func() time.Time
	newOrderNumber func() string
}

// NewEngine создаёт движок проведения заказов поверх хранилища.
func NewEngine(store Store, logger *zap.Logger) *Engine {
	return &Engine{
		store:          store,
		logger:         logger,
		attemptTimeout: 5 * time.Second,
		maxRetries:     2, // всего до трёх попыток
		retryDelay:     20 * time.Millisecond,
		now:            time.Now,
		newOrderNumber: uuid.NewString,
	}
}

// PlaceOrder атомарно проводит заказ и возвращает чек. Повторный вызов с тем
// же ключом идемпотентности возвращает чек первого проведения без повторного
// списания. Конфликты версий повторяются ограниченное число раз, после чего
// возвращается ErrConcurrentModification.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*model.OrderReceipt, error) {
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	// Быстрый путь: ключ уже проведён — отдаём сохранённый чек.
	existing, err := e.store.OrderByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if existing != nil {
		return existing.Receipt(), nil
	}

	var receipt *model.OrderReceipt
	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewConstant(e.retryDelay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		r, err := e.attempt(ctx, req)
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				e.logger.Info("settlement conflict, retrying",
					zap.Int64("userID", req.UserID),
					zap.Int64("productID", req.ProductID),
				)
				return retry.RetryableError(err)
			}
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("%w: retries exhausted: %w", ErrConcurrentModification, err)
		}
		return nil, err
	}

	return receipt, nil
}

// attempt выполняет одно проведение в собственной транзакции с таймаутом.
func (e *Engine) attempt(ctx context.Context, req PlaceOrderRequest) (*model.OrderReceipt, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	receipt, err := e.settle(attemptCtx, req)
	if err != nil {
		// Таймаут попытки отличаем от отмены вызывающего запроса:
		// отмену отдаём как есть, чтобы откат не выглядел ошибкой хранилища.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, err
	}
	return receipt, nil
}

func (e *Engine) settle(ctx context.Context, req PlaceOrderRequest) (*model.OrderReceipt, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin settlement: %w", err)
	}
	defer tx.Rollback(ctx)

	wallet, err := tx.Wallet(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	product, err := tx.Product(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	if !product.IsAvailable || product.StockQuantity <= 0 {
		return nil, ErrProductUnavailable
	}

	newBalance, err := wallet.Balance.Sub(product.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: balance %d, price %d", ErrInsufficientFunds, wallet.Balance, product.Price)
	}

	earned := ComputePointsEarned(product.Price, product.PointsPercentage, product.MaxPoints)
	newPoints := wallet.Points + earned

	if err := tx.UpdateWallet(ctx, req.UserID, wallet.Version, newBalance, newPoints); err != nil {
		return nil, err
	}

	if err := tx.UpdateStock(ctx, req.ProductID, product.Version, product.StockQuantity-1); err != nil {
		return nil, err
	}

	order := &model.Order{
		UserID:          req.UserID,
		ProductID:       req.ProductID,
		TotalAmount:     product.Price,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		Status:          model.OrderStatusNew,
		IdempotencyKey:  req.IdempotencyKey,
		PointsEarned:    earned,
		BalanceAfter:    newBalance,
		PointsAfter:     newPoints,
		CreatedAt:       e.now(),
	}

	if err := e.insertOrder(ctx, tx, order); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			// Параллельный запрос с тем же ключом успел раньше:
			// откатываемся и отдаём его чек.
			_ = tx.Rollback(ctx)
			return e.replayReceipt(ctx, req.UserID, req.IdempotencyKey)
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}

	return order.Receipt(), nil
}

// insertOrder вставляет заказ, перегенерируя номер при коллизии.
func (e *Engine) insertOrder(ctx context.Context, tx Tx, order *model.Order) error {
	var err error
	for i := 0; i < 3; i++ {
		order.OrderNumber = e.newOrderNumber()
		err = tx.InsertOrder(ctx, order)
		if !errors.Is(err, ErrDuplicateOrderNumber) {
			return err
		}
	}
	return fmt.Errorf("generate order number: %w", err)
}

func (e *Engine) replayReceipt(ctx context.Context, userID int64, key string) (*model.OrderReceipt, error) {
	existing, err := e.store.OrderByIdempotencyKey(ctx, userID, key)
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: order vanished after duplicate key", ErrDuplicateIdempotencyKey)
	}
	return existing.Receipt(), nil
}

// CreditWallet пополняет кошелёк пользователя. Пополнение проходит через ту
// же версионную запись кошелька, что и списание, поэтому конкурирующие
// операции над одним кошельком строго упорядочены.
func (e *Engine) CreditWallet(ctx context.Context, userID int64, amount money.Money) (*model.Wallet, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	var updated *model.Wallet
	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewConstant(e.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		w, err := e.credit(ctx, userID, amount)
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		updated = w
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("%w: retries exhausted: %w", ErrConcurrentModification, err)
		}
		return nil, err
	}

	return updated, nil
}

// credit выполняет одну попытку пополнения в собственной транзакции с
// таймаутом, так же как attempt для проведения заказа.
func (e *Engine) credit(ctx context.Context, userID int64, amount money.Money) (*model.Wallet, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()

	wallet, err := e.creditOnce(attemptCtx, userID, amount)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, err
	}
	return wallet, nil
}

func (e *Engine) creditOnce(ctx context.Context, userID int64, amount money.Money) (*model.Wallet, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin credit: %w", err)
	}
	defer tx.Rollback(ctx)

	wallet, err := tx.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	newBalance := wallet.Balance + amount
	if err := tx.UpdateWallet(ctx, userID, wallet.Version, newBalance, wallet.Points); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit credit: %w", err)
	}

	return &model.Wallet{
		UserID:  userID,
		Balance: newBalance,
		Points:  wallet.Points,
		Version: wallet.Version + 1,
	}, nil
}
