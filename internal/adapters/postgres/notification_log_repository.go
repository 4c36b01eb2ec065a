package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
)

// NotificationLogRepository implements ports.NotificationLogRepository on pgx.
// The table is append-only; rows are never updated or deleted.
type NotificationLogRepository struct {
	db ports.DBPort
}

// NewNotificationLogRepository creates a new notification log repository
func NewNotificationLogRepository(db ports.DBPort) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

func (r *NotificationLogRepository) executor(db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return r.db.GetDB()
}

// Exists reports whether a (user, kind, expiry-snapshot) notification was
// already sent
func (r *NotificationLogRepository) Exists(ctx context.Context, db ports.DBTX, userID string, kind domain.NotificationKind, expiresAt time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM notification_log
			WHERE user_id = $1 AND kind = $2 AND expires_at_snapshot = $3
		)`

	var exists bool
	err := r.executor(db).QueryRow(ctx, query, userID, kind, expiresAt).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification log: %w", err)
	}
	return exists, nil
}

// Insert appends a sent-notification record
func (r *NotificationLogRepository) Insert(ctx context.Context, tx ports.DBTX, rec *domain.NotificationRecord) error {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal notification metadata: %w", err)
	}

	query := `
		INSERT INTO notification_log (user_id, kind, expires_at_snapshot, metadata, sent_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = r.executor(tx).Exec(ctx, query,
		rec.UserID, rec.Kind, rec.ExpiresAtSnapshot, metadata, rec.SentAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification log: %w", err)
	}
	return nil
}
