package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lim5max/checkly-billing/internal/domain"
	"github.com/lim5max/checkly-billing/internal/domain/ports"
	"github.com/lim5max/checkly-billing/internal/services/billing"
	"github.com/lim5max/checkly-billing/internal/services/notification"
	apperrors "github.com/lim5max/checkly-billing/pkg/errors"
	"github.com/lim5max/checkly-billing/pkg/resilience"
)

// MockDBPort mocks the database port
type MockDBPort struct {
	mock.Mock
	txErr error
}

func (m *MockDBPort) GetDB() *pgxpool.Pool {
	return nil
}

func (m *MockDBPort) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	// Execute the function with a nil transaction for testing
	return fn(ctx, nil)
}

// MockSubscriptionRepository mocks the subscription repository
type MockSubscriptionRepository struct {
	mock.Mock
}

func (m *MockSubscriptionRepository) GetByUserID(ctx context.Context, db ports.DBTX, userID string) (*domain.Subscription, error) {
	args := m.Called(ctx, db, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *MockSubscriptionRepository) Update(ctx context.Context, tx ports.DBTX, sub *domain.Subscription) error {
	args := m.Called(ctx, tx, sub)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) UpdateWithRetryGuard(ctx context.Context, tx ports.DBTX, sub *domain.Subscription, expectedRetryCount int) error {
	args := m.Called(ctx, tx, sub, expectedRetryCount)
	return args.Error(0)
}

func (m *MockSubscriptionRepository) ListDueForRenewal(ctx context.Context, db ports.DBTX, asOf time.Time, limit int32) ([]*domain.Subscription, error) {
	args := m.Called(ctx, db, asOf, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Subscription), args.Error(1)
}

// MockOrderRepository mocks the order repository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, tx ports.DBTX, order *domain.PaymentOrder) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByOrderID(ctx context.Context, db ports.DBTX, orderID string) (*domain.PaymentOrder, error) {
	args := m.Called(ctx, db, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentOrder), args.Error(1)
}

func (m *MockOrderRepository) Update(ctx context.Context, tx ports.DBTX, order *domain.PaymentOrder) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

// MockPlanRepository mocks the plan repository
type MockPlanRepository struct {
	mock.Mock
}

func (m *MockPlanRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.Plan, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Plan), args.Error(1)
}

// MockUserRepository mocks the user repository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, db ports.DBTX, id string) (*domain.User, error) {
	args := m.Called(ctx, db, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) CreditBalance(ctx context.Context, tx ports.DBTX, userID string, credits int, comment string) error {
	args := m.Called(ctx, tx, userID, credits, comment)
	return args.Error(0)
}

func (m *MockUserRepository) ZeroBalance(ctx context.Context, tx ports.DBTX, userID string) error {
	args := m.Called(ctx, tx, userID)
	return args.Error(0)
}

// MockPaymentGateway mocks the payment gateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) InitPayment(ctx context.Context, req ports.InitPaymentRequest) (*ports.InitPaymentResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.InitPaymentResult), args.Error(1)
}

func (m *MockPaymentGateway) ChargeRecurring(ctx context.Context, rebillID, orderID string, amountKopecks int64, description string) (*ports.ChargeResult, error) {
	args := m.Called(ctx, rebillID, orderID, amountKopecks, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.ChargeResult), args.Error(1)
}

func (m *MockPaymentGateway) VerifyNotificationToken(payload map[string]interface{}) bool {
	args := m.Called(payload)
	return args.Bool(0)
}

// MockNotifier records dispatched notifications
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, kind domain.NotificationKind, user *domain.User, nc notification.Context) {
	m.Called(ctx, kind, user, nc)
}

// MockLogger mocks the logger
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Info(msg string, fields ...ports.Field)  { m.Called(msg, fields) }
func (m *MockLogger) Error(msg string, fields ...ports.Field) { m.Called(msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...ports.Field)  { m.Called(msg, fields) }
func (m *MockLogger) Debug(msg string, fields ...ports.Field) { m.Called(msg, fields) }

func newMockLogger() *MockLogger {
	l := new(MockLogger)
	l.On("Info", mock.Anything, mock.Anything).Return().Maybe()
	l.On("Error", mock.Anything, mock.Anything).Return().Maybe()
	l.On("Warn", mock.Anything, mock.Anything).Return().Maybe()
	l.On("Debug", mock.Anything, mock.Anything).Return().Maybe()
	return l
}

type testHarness struct {
	db       *MockDBPort
	subs     *MockSubscriptionRepository
	orders   *MockOrderRepository
	plans    *MockPlanRepository
	users    *MockUserRepository
	gateway  *MockPaymentGateway
	notifier *MockNotifier
	svc      *billing.Orchestrator
}

func newHarness() *testHarness {
	h := &testHarness{
		db:       new(MockDBPort),
		subs:     new(MockSubscriptionRepository),
		orders:   new(MockOrderRepository),
		plans:    new(MockPlanRepository),
		users:    new(MockUserRepository),
		gateway:  new(MockPaymentGateway),
		notifier: new(MockNotifier),
	}
	h.svc = billing.NewOrchestrator(
		h.db, h.subs, h.orders, h.plans, h.users, h.gateway, h.notifier,
		domain.TwoStrikePolicy, resilience.TestTimeoutConfig(), newMockLogger())
	return h
}

func strPtr(s string) *string { return &s }

func activeSubscription(userID string, retryCount int) *domain.Subscription {
	return &domain.Subscription{
		UserID:     userID,
		PlanID:     "pro",
		Status:     domain.SubscriptionStatusActive,
		AutoRenew:  true,
		RebillID:   strPtr("rebill-123"),
		ExpiresAt:  time.Now().UTC().Add(-time.Hour),
		RetryCount: retryCount,
	}
}

func proPlan() *domain.Plan {
	return &domain.Plan{
		ID:           "pro",
		Name:         "Про",
		Price:        decimal.NewFromInt(990),
		CheckCredits: 100,
		DurationDays: 30,
	}
}

func testUser(id string) *domain.User {
	return &domain.User{ID: id, Email: "user@example.com", Name: "Тест", Balance: 7}
}

func TestOrchestrator_ChargeSubscription_Success(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := activeSubscription("user-1", 0)
	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, "pro").Return(proPlan(), nil)

	h.orders.On("Create", ctx, mock.Anything, mock.AnythingOfType("*domain.PaymentOrder")).Return(nil)
	h.gateway.On("ChargeRecurring", mock.Anything, "rebill-123", mock.Anything, int64(99000), mock.Anything).
		Return(&ports.ChargeResult{PaymentID: "pay-777", Status: "CONFIRMED"}, nil)

	h.orders.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(o *domain.PaymentOrder) bool {
		return o.Status == domain.OrderStatusPaid && o.PaymentID == "pay-777"
	})).Return(nil)
	h.subs.On("UpdateWithRetryGuard", mock.Anything, mock.Anything, sub, 0).Return(nil)
	h.users.On("CreditBalance", mock.Anything, mock.Anything, "user-1", 100, mock.Anything).Return(nil)

	h.notifier.On("Notify", mock.Anything, domain.NotificationRenewalSuccess, mock.Anything,
		mock.AnythingOfType("notification.Context")).Return()

	outcome, err := h.svc.ChargeSubscription(ctx, "user-1")

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "pay-777", outcome.PaymentID)
	assert.NotEmpty(t, outcome.OrderID)

	// Expiry extends from now (the stored expiry is already past), failure
	// bookkeeping resets.
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 30), outcome.NewExpiresAt, time.Minute)
	assert.Equal(t, 0, sub.RetryCount)
	assert.Nil(t, sub.FailedPaymentAt)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)

	h.gateway.AssertExpectations(t)
	h.subs.AssertExpectations(t)
	h.users.AssertExpectations(t)
	h.notifier.AssertExpectations(t)
}

func TestOrchestrator_ChargeSubscription_SuccessExtendsFromFutureExpiry(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	future := time.Now().UTC().Add(72 * time.Hour)
	sub := activeSubscription("user-1", 0)
	sub.ExpiresAt = future

	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, "pro").Return(proPlan(), nil)
	h.orders.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)
	h.gateway.On("ChargeRecurring", mock.Anything, "rebill-123", mock.Anything, int64(99000), mock.Anything).
		Return(&ports.ChargeResult{PaymentID: "pay-1"}, nil)
	h.orders.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.subs.On("UpdateWithRetryGuard", mock.Anything, mock.Anything, sub, 0).Return(nil)
	h.users.On("CreditBalance", mock.Anything, mock.Anything, "user-1", 100, mock.Anything).Return(nil)
	h.notifier.On("Notify", mock.Anything, domain.NotificationRenewalSuccess, mock.Anything, mock.Anything).Return()

	outcome, err := h.svc.ChargeSubscription(ctx, "user-1")

	require.NoError(t, err)
	// Remaining paid time is kept: the new expiry stacks on the future one.
	assert.Equal(t, future.AddDate(0, 0, 30), outcome.NewExpiresAt)
}

func TestOrchestrator_ChargeSubscription_SuccessResetsRetryCount(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := activeSubscription("user-1", 1)
	failedAt := time.Now().UTC().Add(-72 * time.Hour)
	sub.FailedPaymentAt = &failedAt

	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, "pro").Return(proPlan(), nil)
	h.orders.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)
	h.gateway.On("ChargeRecurring", mock.Anything, "rebill-123", mock.Anything, int64(99000), mock.Anything).
		Return(&ports.ChargeResult{PaymentID: "pay-2"}, nil)
	h.orders.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	// The guard checks against the count read before the charge, here 1.
	h.subs.On("UpdateWithRetryGuard", mock.Anything, mock.Anything, sub, 1).Return(nil)
	h.users.On("CreditBalance", mock.Anything, mock.Anything, "user-1", 100, mock.Anything).Return(nil)
	h.notifier.On("Notify", mock.Anything, domain.NotificationRenewalSuccess, mock.Anything, mock.Anything).Return()

	_, err := h.svc.ChargeSubscription(ctx, "user-1")

	require.NoError(t, err)
	assert.Equal(t, 0, sub.RetryCount)
	assert.Nil(t, sub.FailedPaymentAt)
	h.subs.AssertExpectations(t)
}

func TestOrchestrator_ChargeSubscription_FirstFailureSchedulesRetry(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := activeSubscription("user-1", 0)
	gwErr := apperrors.NewGatewayError("CHARGE_DECLINED", "charge declined", apperrors.CategoryDeclined, false)

	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, "pro").Return(proPlan(), nil)
	h.orders.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)
	h.gateway.On("ChargeRecurring", mock.Anything, "rebill-123", mock.Anything, int64(99000), mock.Anything).
		Return(nil, gwErr)

	h.orders.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(o *domain.PaymentOrder) bool {
		return o.Status == domain.OrderStatusFailed
	})).Return(nil)
	h.subs.On("UpdateWithRetryGuard", mock.Anything, mock.Anything, sub, 0).Return(nil)

	h.notifier.On("Notify", mock.Anything, domain.NotificationPaymentRetry, mock.Anything,
		mock.MatchedBy(func(nc notification.Context) bool {
			return nc.NextRetryInDays == 3
		})).Return()

	outcome, err := h.svc.ChargeSubscription(ctx, "user-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, gwErr)
	assert.False(t, outcome.Success)
	require.NotNil(t, outcome.Escalation)
	assert.Equal(t, domain.EscalationRetry, outcome.Escalation.Action)
	assert.Equal(t, 3, outcome.Escalation.NextRetryInDays)

	assert.Equal(t, 1, sub.RetryCount)
	assert.NotNil(t, sub.FailedPaymentAt)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "pro", sub.PlanID)

	h.users.AssertNotCalled(t, "ZeroBalance", mock.Anything, mock.Anything, mock.Anything)
	h.notifier.AssertExpectations(t)
}

func TestOrchestrator_ChargeSubscription_SecondFailureSuspends(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := activeSubscription("user-1", 1)
	gwErr := apperrors.NewGatewayError("CHARGE_DECLINED", "charge declined", apperrors.CategoryDeclined, false)

	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, "pro").Return(proPlan(), nil)
	h.orders.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)
	h.gateway.On("ChargeRecurring", mock.Anything, "rebill-123", mock.Anything, int64(99000), mock.Anything).
		Return(nil, gwErr)
	h.orders.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.subs.On("UpdateWithRetryGuard", mock.Anything, mock.Anything, sub, 1).Return(nil)
	h.users.On("ZeroBalance", mock.Anything, mock.Anything, "user-1").Return(nil)
	h.notifier.On("Notify", mock.Anything, domain.NotificationSuspended, mock.Anything, mock.Anything).Return()

	outcome, err := h.svc.ChargeSubscription(ctx, "user-1")

	require.Error(t, err)
	require.NotNil(t, outcome.Escalation)
	assert.Equal(t, domain.EscalationSuspend, outcome.Escalation.Action)

	assert.Equal(t, domain.SubscriptionStatusSuspended, sub.Status)
	assert.Equal(t, domain.FreePlanID, sub.PlanID)
	assert.Equal(t, 2, sub.RetryCount)

	h.users.AssertExpectations(t)
	h.notifier.AssertExpectations(t)
}

func TestOrchestrator_ChargeSubscription_AutoRenewDisabled(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := activeSubscription("user-1", 0)
	sub.AutoRenew = false

	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, "pro").Return(proPlan(), nil)

	outcome, err := h.svc.ChargeSubscription(ctx, "user-1")

	assert.ErrorIs(t, err, domain.ErrAutoRenewDisabled)
	assert.Nil(t, outcome)

	// A precondition rejection never reaches the gateway or writes an order
	h.gateway.AssertNotCalled(t, "ChargeRecurring",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	h.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	h.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_ChargeSubscription_NoCardOnFile(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := activeSubscription("user-1", 0)
	sub.RebillID = nil

	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, "pro").Return(proPlan(), nil)

	_, err := h.svc.ChargeSubscription(ctx, "user-1")

	assert.ErrorIs(t, err, domain.ErrNoCardOnFile)
	h.gateway.AssertNotCalled(t, "ChargeRecurring",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_ChargeSubscription_Suspended(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := activeSubscription("user-1", 2)
	sub.Status = domain.SubscriptionStatusSuspended

	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, "pro").Return(proPlan(), nil)

	_, err := h.svc.ChargeSubscription(ctx, "user-1")

	assert.ErrorIs(t, err, domain.ErrSubscriptionSuspended)
}

func TestOrchestrator_ChargeSubscription_FreePlan(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := activeSubscription("user-1", 0)
	sub.PlanID = domain.FreePlanID

	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, domain.FreePlanID).
		Return(&domain.Plan{ID: domain.FreePlanID, Name: "Бесплатный", Price: decimal.Zero}, nil)

	_, err := h.svc.ChargeSubscription(ctx, "user-1")

	assert.ErrorIs(t, err, domain.ErrFreePlan)
}

func TestOrchestrator_ChargeSubscription_PersistenceFailureAfterSuccessStillSucceeds(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := activeSubscription("user-1", 0)
	h.db.txErr = errors.New("connection reset")

	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, "pro").Return(proPlan(), nil)
	h.orders.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)
	h.gateway.On("ChargeRecurring", mock.Anything, "rebill-123", mock.Anything, int64(99000), mock.Anything).
		Return(&ports.ChargeResult{PaymentID: "pay-9"}, nil)
	h.notifier.On("Notify", mock.Anything, domain.NotificationRenewalSuccess, mock.Anything, mock.Anything).Return()

	// The money was taken: the caller must not see a failure, or the
	// scheduler would charge again.
	outcome, err := h.svc.ChargeSubscription(ctx, "user-1")

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "pay-9", outcome.PaymentID)
}

func TestOrchestrator_ChargeSubscription_FailurePersistenceLosesRetryGuard(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	sub := activeSubscription("user-1", 0)
	gwErr := apperrors.NewGatewayError("NETWORK_ERROR", "connection timed out", apperrors.CategoryNetworkError, true)

	h.subs.On("GetByUserID", ctx, mock.Anything, "user-1").Return(sub, nil)
	h.users.On("GetByID", ctx, mock.Anything, "user-1").Return(testUser("user-1"), nil)
	h.plans.On("GetByID", ctx, mock.Anything, "pro").Return(proPlan(), nil)
	h.orders.On("Create", ctx, mock.Anything, mock.Anything).Return(nil)
	h.gateway.On("ChargeRecurring", mock.Anything, "rebill-123", mock.Anything, int64(99000), mock.Anything).
		Return(nil, gwErr)
	h.orders.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.subs.On("UpdateWithRetryGuard", mock.Anything, mock.Anything, sub, 0).
		Return(domain.ErrStaleSubscription)

	outcome, err := h.svc.ChargeSubscription(ctx, "user-1")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStaleSubscription)
	assert.Nil(t, outcome)
	// No notification goes out when the failure could not be recorded
	h.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_ProcessDueRenewals_CountsOutcomes(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	asOf := time.Now().UTC()

	okSub := activeSubscription("user-ok", 0)
	declinedSub := activeSubscription("user-declined", 0)
	declinedSub.RebillID = strPtr("rebill-declined")
	optOutSub := activeSubscription("user-optout", 0)
	optOutSub.AutoRenew = false

	h.subs.On("ListDueForRenewal", ctx, mock.Anything, asOf, int32(50)).
		Return([]*domain.Subscription{okSub, declinedSub, optOutSub}, nil)

	for _, sub := range []*domain.Subscription{okSub, declinedSub, optOutSub} {
		h.subs.On("GetByUserID", mock.Anything, mock.Anything, sub.UserID).Return(sub, nil)
		h.users.On("GetByID", mock.Anything, mock.Anything, sub.UserID).Return(testUser(sub.UserID), nil)
	}
	h.plans.On("GetByID", mock.Anything, mock.Anything, "pro").Return(proPlan(), nil)
	h.orders.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.orders.On("Update", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	h.subs.On("UpdateWithRetryGuard", mock.Anything, mock.Anything, mock.Anything, 0).Return(nil)
	h.users.On("CreditBalance", mock.Anything, mock.Anything, "user-ok", 100, mock.Anything).Return(nil)
	h.notifier.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()

	h.gateway.On("ChargeRecurring", mock.Anything, "rebill-123", mock.Anything, int64(99000), mock.Anything).
		Return(&ports.ChargeResult{PaymentID: "pay-ok"}, nil)
	h.gateway.On("ChargeRecurring", mock.Anything, "rebill-declined", mock.Anything, int64(99000), mock.Anything).
		Return(nil, apperrors.NewGatewayError("CHARGE_DECLINED", "insufficient funds", apperrors.CategoryDeclined, false))

	result, err := h.svc.ProcessDueRenewals(ctx, asOf, 50)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Rejected)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "user-declined", result.Errors[0].UserID)
}

func TestOrchestrator_ProcessDueRenewals_ListError(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	asOf := time.Now().UTC()

	h.subs.On("ListDueForRenewal", ctx, mock.Anything, asOf, int32(10)).
		Return(nil, errors.New("database unavailable"))

	result, err := h.svc.ProcessDueRenewals(ctx, asOf, 10)

	require.Error(t, err)
	assert.Nil(t, result)
}
