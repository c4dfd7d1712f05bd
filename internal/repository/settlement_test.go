package repository

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/beststore-system/internal/model"
	"github.com/mmeshcher/beststore-system/internal/settlement"
)

func TestOrderInsertConflict(t *testing.T) {
	order := &model.Order{OrderNumber: "7f2c", IdempotencyKey: "key-1"}

	tests := []struct {
		name       string
		constraint string
		want       error
	}{
		{
			name:       "idempotency key already used",
			constraint: "orders_user_idempotency_idx",
			want:       settlement.ErrDuplicateIdempotencyKey,
		},
		{
			name:       "order number collision",
			constraint: "orders_order_number_idx",
			want:       settlement.ErrDuplicateOrderNumber,
		},
		{
			name:       "unrelated unique constraint",
			constraint: "users_email_key",
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: tt.constraint}

			got := orderInsertConflict(pgErr, order)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected no classification, got %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
