package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/money"
)

const orderColumns = `id, order_number, user_id, product_id, total_amount, delivery_address,
	payment_method, status, idempotency_key, points_earned, balance_after, points_after, created_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var total, earned, balanceAfter, pointsAfter int64
	var status string
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.ProductID, &total, &o.DeliveryAddress,
		&o.PaymentMethod, &status, &o.IdempotencyKey, &earned, &balanceAfter, &pointsAfter, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.TotalAmount = money.Money(total)
	o.Status = model.OrderStatus(status)
	o.PointsEarned = money.Points(earned)
	o.BalanceAfter = money.Money(balanceAfter)
	o.PointsAfter = money.Points(pointsAfter)
	return &o, nil
}

// GetOrderByNumber возвращает заказ по его номеру.
func (r *PostgresRepository) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`,
		orderNumber,
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrdersByUser возвращает заказы пользователя от новых к старым.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ListOrders возвращает все заказы магазина.
func (r *PostgresRepository) ListOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateOrder обновляет административные поля заказа: адрес доставки,
// способ оплаты и статус. Финансовые поля заказа неизменяемы.
func (r *PostgresRepository) UpdateOrder(ctx context.Context, orderNumber, deliveryAddress, paymentMethod string, status model.OrderStatus) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders
		 SET delivery_address = $2, payment_method = $3, status = $4
		 WHERE order_number = $1
		 RETURNING `+orderColumns,
		orderNumber, deliveryAddress, paymentMethod, string(status),
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update order: %w", err)
	}
	return o, nil
}

// DeleteOrder удаляет заказ. Административная операция, средства не возвращает.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, orderNumber string) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE order_number = $1`, orderNumber)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UnnotifiedOrders возвращает заказы, по которым ещё не отправлено уведомление.
func (r *PostgresRepository) UnnotifiedOrders(ctx context.Context, limit int) ([]model.Order, error) {
	var res []model.Order
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+orderColumns+`
			 FROM orders
			 WHERE notified_at IS NULL
			 ORDER BY created_at
			 LIMIT $1`,
			limit,
		)
		if err != nil {
			return fmt.Errorf("select unnotified orders: %w", err)
		}
		defer rows.Close()

		res, err = collectOrders(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// MarkOrderNotified фиксирует время отправки уведомления по заказу.
func (r *PostgresRepository) MarkOrderNotified(ctx context.Context, orderNumber string) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE orders SET notified_at = now() WHERE order_number = $1`,
			orderNumber,
		)
		if err != nil {
			return fmt.Errorf("mark order notified: %w", err)
		}
		return nil
	})
}
