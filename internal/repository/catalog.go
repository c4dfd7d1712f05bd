package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/money"
)

// CreateCategory создаёт категорию каталога.
func (r *PostgresRepository) CreateCategory(ctx context.Context, c *model.Category) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (name, url, tags) VALUES ($1, $2, $3) RETURNING id`,
		c.Name, c.URL, c.Tags,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create category: %w", err)
	}
	return id, nil
}

// GetCategory возвращает категорию по идентификатору.
func (r *PostgresRepository) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	var c model.Category
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, url, tags FROM categories WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.URL, &c.Tags)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return &c, nil
}

// ListCategories возвращает все категории.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, url, tags FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var res []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.URL, &c.Tags); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateCategory обновляет поля категории.
func (r *PostgresRepository) UpdateCategory(ctx context.Context, c *model.Category) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE categories SET name = $2, url = $3, tags = $4 WHERE id = $1`,
		c.ID, c.Name, c.URL, c.Tags,
	)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// DeleteCategory удаляет категорию.
func (r *PostgresRepository) DeleteCategory(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

// CreateProduct создаёт товар и привязывает его к категориям.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p *model.Product, categoryIDs []int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO products (name, brand, price, description, stock_quantity, is_available, points_percentage_bp, max_points)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		p.Name, p.Brand, p.Price.Cents(), p.Description, p.StockQuantity, p.IsAvailable,
		int64(p.PointsPercentage), int64(p.MaxPoints),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}

	for _, catID := range categoryIDs {
		cmdTag, err := tx.Exec(ctx,
			`INSERT INTO product_categories (product_id, category_id)
			 SELECT $1, id FROM categories WHERE id = $2`,
			id, catID,
		)
		if err != nil {
			return 0, fmt.Errorf("link category: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return 0, fmt.Errorf("%w: %d", ErrCategoryNotFound, catID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetProduct возвращает товар вместе с категориями.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	var price, pctBP, maxPoints int64
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, brand, price, description, stock_quantity, is_available,
		        points_percentage_bp, max_points, version, created_at
		 FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.Brand, &price, &p.Description, &p.StockQuantity,
		&p.IsAvailable, &pctBP, &maxPoints, &p.Version, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	p.Price = money.Money(price)
	p.PointsPercentage = money.BasisPoints(pctBP)
	p.MaxPoints = money.Points(maxPoints)

	cats, err := r.productCategories(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Categories = cats

	return &p, nil
}

func (r *PostgresRepository) productCategories(ctx context.Context, productID int64) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.name, c.url, c.tags
		 FROM categories c
		 JOIN product_categories pc ON pc.category_id = c.id
		 WHERE pc.product_id = $1
		 ORDER BY c.id`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("select product categories: %w", err)
	}
	defer rows.Close()

	var res []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.URL, &c.Tags); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ListProducts возвращает все товары без категорий.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, brand, price, description, stock_quantity, is_available,
		        points_percentage_bp, max_points, version, created_at
		 FROM products
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var res []model.Product
	for rows.Next() {
		var p model.Product
		var price, pctBP, maxPoints int64
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &price, &p.Description, &p.StockQuantity,
			&p.IsAvailable, &pctBP, &maxPoints, &p.Version, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Price = money.Money(price)
		p.PointsPercentage = money.BasisPoints(pctBP)
		p.MaxPoints = money.Points(maxPoints)
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// UpdateProduct обновляет карточку товара, не трогая остаток и версию.
func (r *PostgresRepository) UpdateProduct(ctx context.Context, p *model.Product) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE products
		 SET name = $2, brand = $3, price = $4, description = $5, is_available = $6,
		     points_percentage_bp = $7, max_points = $8
		 WHERE id = $1`,
		p.ID, p.Name, p.Brand, p.Price.Cents(), p.Description, p.IsAvailable,
		int64(p.PointsPercentage), int64(p.MaxPoints),
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// SetStock выставляет остаток товара. Версия строки увеличивается, чтобы
// конкурирующее проведение заказа перечитало остаток.
func (r *PostgresRepository) SetStock(ctx context.Context, productID, stock int64) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE products SET stock_quantity = $2, version = version + 1 WHERE id = $1`,
		productID, stock,
	)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProduct удаляет товар.
func (r *PostgresRepository) DeleteProduct(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// CreateCoupon создаёт купон для пользователя.
func (r *PostgresRepository) CreateCoupon(ctx context.Context, c *model.Coupon) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO coupons (code, discount_amount, expiry_date, user_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		c.Code, c.DiscountAmount.Cents(), c.ExpiryDate, c.UserID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create coupon: %w", err)
	}
	return id, nil
}

// ListCoupons возвращает все купоны.
func (r *PostgresRepository) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, discount_amount, expiry_date, is_used, user_id
		 FROM coupons
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select coupons: %w", err)
	}
	defer rows.Close()

	var res []model.Coupon
	for rows.Next() {
		var c model.Coupon
		var discount int64
		if err := rows.Scan(&c.ID, &c.Code, &discount, &c.ExpiryDate, &c.IsUsed, &c.UserID); err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		c.DiscountAmount = money.Money(discount)
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteCoupon удаляет купон.
func (r *PostgresRepository) DeleteCoupon(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete coupon: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrCouponNotFound
	}
	return nil
}

// ApplyCoupon помечает купон использованным. Условное обновление гарантирует,
// что каждый купон применяется не более одного раза даже при гонке.
func (r *PostgresRepository) ApplyCoupon(ctx context.Context, code string) (*model.Coupon, error) {
	var c model.Coupon
	var discount int64
	err := r.pool.QueryRow(ctx,
		`UPDATE coupons
		 SET is_used = TRUE
		 WHERE code = $1 AND NOT is_used AND expiry_date > now()
		 RETURNING id, code, discount_amount, expiry_date, is_used, user_id`,
		code,
	).Scan(&c.ID, &c.Code, &discount, &c.ExpiryDate, &c.IsUsed, &c.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCouponNotFound
		}
		return nil, fmt.Errorf("apply coupon: %w", err)
	}
	c.DiscountAmount = money.Money(discount)
	return &c, nil
}
