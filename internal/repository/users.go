package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/money"
)

// CreateUser создаёт нового пользователя с кошельком по умолчанию.
func (r *PostgresRepository) CreateUser(ctx context.Context, u *model.User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, first_name, last_name, address, role)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Address, string(u.Role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, u.Email)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *PostgresRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, address, role, created_at
		 FROM users WHERE email = $1`,
		email,
	)
	return scanUser(row)
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, first_name, last_name, address, role, created_at
		 FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Address, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)
	return &u, nil
}

// ListUsers возвращает всех пользователей.
func (r *PostgresRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, password_hash, first_name, last_name, address, role, created_at
		 FROM users
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		var role string
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Address, &role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = model.Role(role)
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return users, nil
}

// UpdateProfile обновляет профильные поля пользователя.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id int64, firstName, lastName, address string) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET first_name = $2, last_name = $3, address = $4 WHERE id = $1`,
		id, firstName, lastName, address,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword сохраняет новый хэш пароля пользователя.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, passwordHash []byte) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteUser удаляет пользователя.
func (r *PostgresRepository) DeleteUser(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetWallet возвращает текущее состояние кошелька пользователя.
func (r *PostgresRepository) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	var w model.Wallet
	var balance, points int64
	err := r.pool.QueryRow(ctx,
		`SELECT id, wallet_balance, points, wallet_version FROM users WHERE id = $1`,
		userID,
	).Scan(&w.UserID, &balance, &points, &w.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	w.Balance = money.Money(balance)
	w.Points = money.Points(points)
	return &w, nil
}

// SaveResetToken сохраняет хэш токена сброса пароля, заменяя предыдущий.
func (r *PostgresRepository) SaveResetToken(ctx context.Context, userID int64, tokenHash []byte, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reset_tokens (user_id, token_hash, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET token_hash = $2, expires_at = $3`,
		userID, tokenHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken проверяет и удаляет токен сброса пароля пользователя.
// Токен одноразовый: повторное использование вернёт ErrResetTokenInvalid.
func (r *PostgresRepository) ConsumeResetToken(ctx context.Context, userID int64, tokenHash []byte) error {
	cmdTag, err := r.pool.Exec(ctx,
		`DELETE FROM reset_tokens
		 WHERE user_id = $1 AND token_hash = $2 AND expires_at > now()`,
		userID, tokenHash,
	)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrResetTokenInvalid
	}
	return nil
}
