package notification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
	"github.com/lim5max/checkly-billing/internal/services/notification"
)

// MockNotificationLogRepository mocks the notification log repository
type MockNotificationLogRepository struct {
	mock.Mock
}

func (m *MockNotificationLogRepository) Exists(ctx context.Context, db ports.DBTX, userID string, kind domain.NotificationKind, expiresAt time.Time) (bool, error) {
	args := m.Called(ctx, db, userID, kind, expiresAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockNotificationLogRepository) Insert(ctx context.Context, tx ports.DBTX, rec *domain.NotificationRecord) error {
	args := m.Called(ctx, tx, rec)
	return args.Error(0)
}

// MockMailer mocks the mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(msg ports.Message) error {
	args := m.Called(msg)
	return args.Error(0)
}

// noopLogger satisfies ports.Logger for tests that do not assert on logging
type noopLogger struct{}

func (noopLogger) Info(string, ...ports.Field)  {}
func (noopLogger) Error(string, ...ports.Field) {}
func (noopLogger) Warn(string, ...ports.Field)  {}
func (noopLogger) Debug(string, ...ports.Field) {}

func testUser() *domain.User {
	return &domain.User{ID: "user-1", Email: "user@example.com", Name: "Иван"}
}

func TestDispatcher_Notify_SendsAndLogs(t *testing.T) {
	logRepo := new(MockNotificationLogRepository)
	mailer := new(MockMailer)
	d := notification.NewDispatcher(logRepo, mailer, noopLogger{})

	expiresAt := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	logRepo.On("Exists", mock.Anything, mock.Anything, "user-1", domain.NotificationRenewalSuccess, expiresAt).
		Return(false, nil)
	mailer.On("Send", mock.MatchedBy(func(msg ports.Message) bool {
		return msg.To == "user@example.com" && msg.Subject != ""
	})).Return(nil)
	logRepo.On("Insert", mock.Anything, mock.Anything, mock.MatchedBy(func(rec *domain.NotificationRecord) bool {
		return rec.UserID == "user-1" &&
			rec.Kind == domain.NotificationRenewalSuccess &&
			rec.ExpiresAtSnapshot.Equal(expiresAt)
	})).Return(nil)

	d.Notify(context.Background(), domain.NotificationRenewalSuccess, testUser(), notification.Context{
		PlanName:     "Про",
		ExpiresAt:    expiresAt,
		AmountRubles: "990.00",
		Credits:      100,
	})

	mailer.AssertExpectations(t)
	logRepo.AssertExpectations(t)
}

func TestDispatcher_Notify_DeduplicatesByExpirySnapshot(t *testing.T) {
	logRepo := new(MockNotificationLogRepository)
	mailer := new(MockMailer)
	d := notification.NewDispatcher(logRepo, mailer, noopLogger{})

	expiresAt := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	logRepo.On("Exists", mock.Anything, mock.Anything, "user-1", domain.NotificationPaymentRetry, expiresAt).
		Return(true, nil)

	d.Notify(context.Background(), domain.NotificationPaymentRetry, testUser(), notification.Context{
		PlanName:  "Про",
		ExpiresAt: expiresAt,
	})

	mailer.AssertNotCalled(t, "Send", mock.Anything)
	logRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_Notify_SendFailureIsSwallowed(t *testing.T) {
	logRepo := new(MockNotificationLogRepository)
	mailer := new(MockMailer)
	d := notification.NewDispatcher(logRepo, mailer, noopLogger{})

	logRepo.On("Exists", mock.Anything, mock.Anything, "user-1", mock.Anything, mock.Anything).
		Return(false, nil)
	mailer.On("Send", mock.Anything).Return(errors.New("smtp connection refused"))

	// Must not panic and must not write the log entry, so the next run
	// can retry the send
	d.Notify(context.Background(), domain.NotificationSuspended, testUser(), notification.Context{
		PlanName:  "Про",
		ExpiresAt: time.Now().UTC(),
	})

	logRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestDispatcher_Notify_DedupeCheckFailureSkipsSend(t *testing.T) {
	logRepo := new(MockNotificationLogRepository)
	mailer := new(MockMailer)
	d := notification.NewDispatcher(logRepo, mailer, noopLogger{})

	logRepo.On("Exists", mock.Anything, mock.Anything, "user-1", mock.Anything, mock.Anything).
		Return(false, errors.New("database unavailable"))

	d.Notify(context.Background(), domain.NotificationRenewalSuccess, testUser(), notification.Context{
		ExpiresAt: time.Now().UTC(),
	})

	// Without a working dedupe check nothing is sent: a duplicate email is
	// worse than a late one
	mailer.AssertNotCalled(t, "Send", mock.Anything)
}

func TestDispatcher_Notify_LogInsertFailureStillCountsAsSent(t *testing.T) {
	logRepo := new(MockNotificationLogRepository)
	mailer := new(MockMailer)
	d := notification.NewDispatcher(logRepo, mailer, noopLogger{})

	logRepo.On("Exists", mock.Anything, mock.Anything, "user-1", mock.Anything, mock.Anything).
		Return(false, nil)
	mailer.On("Send", mock.Anything).Return(nil)
	logRepo.On("Insert", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("unique violation"))

	// The email went out; the insert failure is logged and swallowed
	d.Notify(context.Background(), domain.NotificationRenewalSuccess, testUser(), notification.Context{
		ExpiresAt: time.Now().UTC(),
	})

	mailer.AssertExpectations(t)
}
