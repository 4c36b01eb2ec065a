package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
)

// UserRepository implements ports.UserRepository on pgx
type UserRepository struct {
	db ports.DBPort
}

// NewUserRepository creates a new user repository
func NewUserRepository(db ports.DBPort) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// GetByID retrieves the billing view of a user
func (r *UserRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.User, error) {
	query := `SELECT id, email, name, balance, created_at FROM users WHERE id = $1`

	var user domain.User
	err := r.executor(db).QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.Balance, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// CreditBalance adds credits to the balance and appends the matching ledger
// entry. The entry's used amount is negative: the ledger counts consumption,
// and a top-up is consumption in reverse.
func (r *UserRepository) CreditBalance(ctx context.Context, tx ports.DBTX, userID string, credits int, comment string) error {
	ex := r.executor(tx)

	tag, err := ex.Exec(ctx, `UPDATE users SET balance = balance + $2 WHERE id = $1`, userID, credits)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}

	_, err = ex.Exec(ctx,
		`INSERT INTO balance_ledger (user_id, used_amount, comment, created_at) VALUES ($1, $2, $3, now())`,
		userID, -credits, comment,
	)
	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}

	return nil
}

// ZeroBalance clears the user's balance on suspension
func (r *UserRepository) ZeroBalance(ctx context.Context, tx ports.DBTX, userID string) error {
	tag, err := r.executor(tx).Exec(ctx, `UPDATE users SET balance = 0 WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("zero balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
