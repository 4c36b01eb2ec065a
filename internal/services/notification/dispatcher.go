package notification

import (
	"context"
	"time"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
	"github.com/lim5max/checkly-billing/pkg/observability"
	"github.com/lim5max/checkly-billing/pkg/timeutil"
)

// Context carries the template data for one lifecycle notification
type Context struct {
	PlanName        string
	ExpiresAt       time.Time
	AmountRubles    string
	Credits         int
	NextRetryInDays int
}

// Dispatcher sends lifecycle emails exactly once per
// (user, kind, expiry-snapshot) triple. Send failures are logged and
// swallowed: a lost email must never roll back a charge or a suspension.
type Dispatcher struct {
	logRepo ports.NotificationLogRepository
	mailer  ports.Mailer
	logger  ports.Logger
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(logRepo ports.NotificationLogRepository, mailer ports.Mailer, logger ports.Logger) *Dispatcher {
	return &Dispatcher{
		logRepo: logRepo,
		mailer:  mailer,
		logger:  logger,
	}
}

// Notify renders and sends the message for kind, deduplicating against the
// notification log. The log entry is written only after a successful send,
// so a failed send may be retried by a later orchestrator run.
func (d *Dispatcher) Notify(ctx context.Context, kind domain.NotificationKind, user *domain.User, nc Context) {
	sent, err := d.logRepo.Exists(ctx, nil, user.ID, kind, nc.ExpiresAt)
	if err != nil {
		d.logger.Error("notification dedupe check failed",
			ports.String("user_id", user.ID),
			ports.String("kind", string(kind)),
			ports.Err(err))
		return
	}
	if sent {
		observability.RecordNotification(string(kind), "deduped")
		d.logger.Debug("notification already sent, skipping",
			ports.String("user_id", user.ID),
			ports.String("kind", string(kind)))
		return
	}

	msg := renderMessage(kind, user, nc)
	if err := d.mailer.Send(msg); err != nil {
		observability.RecordNotification(string(kind), "failed")
		d.logger.Error("notification send failed",
			ports.String("user_id", user.ID),
			ports.String("kind", string(kind)),
			ports.Err(err))
		return
	}

	rec := &domain.NotificationRecord{
		UserID:            user.ID,
		Kind:              kind,
		ExpiresAtSnapshot: nc.ExpiresAt,
		Metadata: map[string]string{
			"plan": nc.PlanName,
		},
		SentAt: timeutil.Now(),
	}
	if err := d.logRepo.Insert(ctx, nil, rec); err != nil {
		// The email went out but the log insert failed; the next run may
		// send a duplicate. Preferable to the reverse.
		d.logger.Error("notification log insert failed",
			ports.String("user_id", user.ID),
			ports.String("kind", string(kind)),
			ports.Err(err))
	}

	observability.RecordNotification(string(kind), "sent")
	d.logger.Info("notification sent",
		ports.String("user_id", user.ID),
		ports.String("kind", string(kind)))
}
