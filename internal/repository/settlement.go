package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/money"
	"github.com/mmeshcher/beststore-system/internal/settlement"
)

// Begin открывает транзакцию проведения заказа.
func (r *PostgresRepository) Begin(ctx context.Context) (settlement.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &settlementTx{tx: tx}, nil
}

// OrderByIdempotencyKey возвращает проведённый заказ по ключу идемпотентности
// или nil, если ключ ещё не использовался.
func (r *PostgresRepository) OrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 AND idempotency_key = $2`,
		userID, key,
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by idempotency key: %w", err)
	}
	return o, nil
}

// settlementTx реализует единицу работы движка проведения поверх pgx-транзакции.
type settlementTx struct {
	tx pgx.Tx
}

func (s *settlementTx) Wallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	var w model.Wallet
	var balance, points int64
	err := s.tx.QueryRow(ctx,
		`SELECT id, wallet_balance, points, wallet_version FROM users WHERE id = $1`,
		userID,
	).Scan(&w.UserID, &balance, &points, &w.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrUserNotFound
		}
		return nil, fmt.Errorf("select wallet: %w", err)
	}
	w.Balance = money.Money(balance)
	w.Points = money.Points(points)
	return &w, nil
}

func (s *settlementTx) Product(ctx context.Context, productID int64) (*model.Product, error) {
	var p model.Product
	var price, pctBP, maxPoints int64
	err := s.tx.QueryRow(ctx,
		`SELECT id, name, brand, price, description, stock_quantity, is_available,
		        points_percentage_bp, max_points, version, created_at
		 FROM products WHERE id = $1`,
		productID,
	).Scan(&p.ID, &p.Name, &p.Brand, &price, &p.Description, &p.StockQuantity,
		&p.IsAvailable, &pctBP, &maxPoints, &p.Version, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settlement.ErrProductNotFound
		}
		return nil, fmt.Errorf("select product: %w", err)
	}
	p.Price = money.Money(price)
	p.PointsPercentage = money.BasisPoints(pctBP)
	p.MaxPoints = money.Points(maxPoints)
	return &p, nil
}

func (s *settlementTx) UpdateWallet(ctx context.Context, userID, expectedVersion int64, balance money.Money, points money.Points) error {
	cmdTag, err := s.tx.Exec(ctx,
		`UPDATE users
		 SET wallet_balance = $3, points = $4, wallet_version = wallet_version + 1
		 WHERE id = $1 AND wallet_version = $2`,
		userID, expectedVersion, balance.Cents(), int64(points),
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: wallet of user %d", settlement.ErrVersionConflict, userID)
	}
	return nil
}

func (s *settlementTx) UpdateStock(ctx context.Context, productID, expectedVersion, newStock int64) error {
	cmdTag, err := s.tx.Exec(ctx,
		`UPDATE products
		 SET stock_quantity = $3, version = version + 1
		 WHERE id = $1 AND version = $2`,
		productID, expectedVersion, newStock,
	)
	if err != nil {
		return fmt.Errorf("update stock: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: stock of product %d", settlement.ErrVersionConflict, productID)
	}
	return nil
}

func (s *settlementTx) InsertOrder(ctx context.Context, order *model.Order) error {
	err := s.tx.QueryRow(ctx,
		`INSERT INTO orders (order_number, user_id, product_id, total_amount, delivery_address,
		                     payment_method, status, idempotency_key, points_earned, balance_after,
		                     points_after, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		order.OrderNumber, order.UserID, order.ProductID, order.TotalAmount.Cents(),
		order.DeliveryAddress, order.PaymentMethod, string(order.Status), order.IdempotencyKey,
		int64(order.PointsEarned), order.BalanceAfter.Cents(), int64(order.PointsAfter), order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			if conflict := orderInsertConflict(pgErr, order); conflict != nil {
				return conflict
			}
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// orderInsertConflict сопоставляет нарушение уникальности при вставке заказа
// с ошибкой движка проведения. Неизвестные ограничения не классифицируются и
// остаются обычной ошибкой хранилища.
func orderInsertConflict(pgErr *pgconn.PgError, order *model.Order) error {
	switch pgErr.ConstraintName {
	case "orders_user_idempotency_idx":
		return fmt.Errorf("%w: %s", settlement.ErrDuplicateIdempotencyKey, order.IdempotencyKey)
	case "orders_order_number_idx":
		return fmt.Errorf("%w: %s", settlement.ErrDuplicateOrderNumber, order.OrderNumber)
	}
	return nil
}

func (s *settlementTx) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *settlementTx) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
