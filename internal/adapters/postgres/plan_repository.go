package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
)

// PlanRepository implements ports.PlanRepository on pgx
type PlanRepository struct {
	db ports.DBPort
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db ports.DBPort) *PlanRepository {
	return &PlanRepository{db: db}
}

func (r *PlanRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// GetByID retrieves a plan from the catalog
func (r *PlanRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Plan, error) {
	query := `SELECT id, name, price, check_credits, duration_days FROM plans WHERE id = $1`

	var plan domain.Plan
	var price pgtype.Numeric
	err := r.executor(db).QueryRow(ctx, query, id).Scan(
		&plan.ID, &plan.Name, &price, &plan.CheckCredits, &plan.DurationDays,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}

	plan.Price, err = numericToDecimal(price)
	if err != nil {
		return nil, fmt.Errorf("convert plan price: %w", err)
	}

	return &plan, nil
}

// numericToDecimal converts a pgtype.Numeric into a decimal.Decimal
func numericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	if n.NaN {
		return decimal.Zero, fmt.Errorf("numeric is NaN")
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}
