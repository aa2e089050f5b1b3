package tribute

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"tribute-gateway/app/models"
	"tribute-gateway/app/repository"
	"tribute-gateway/internal/pkg/notify"
	"tribute-gateway/internal/pkg/referral"
	"tribute-gateway/internal/pkg/reminder"
	"tribute-gateway/internal/pkg/subscription"
)

type fakeUserRepo struct {
	users map[int64]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int64]*models.User{}}
}

func (r *fakeUserRepo) Create(user *models.User) error {
	r.users[user.TelegramID] = user
	return nil
}

func (r *fakeUserRepo) GetByTelegramID(telegramID int64) (*models.User, error) {
	u, ok := r.users[telegramID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetOrCreateByTelegramID(telegramID int64, defaults models.User) (*models.User, bool, error) {
	if u, ok := r.users[telegramID]; ok {
		return u, false, nil
	}
	u := defaults
	u.TelegramID = telegramID
	r.users[telegramID] = &u
	return &u, true, nil
}

func (r *fakeUserRepo) Update(user *models.User) error {
	r.users[user.TelegramID] = user
	return nil
}

type fakePaymentRepo struct {
	payments map[string]*models.Payment
	statuses map[uint]string
	nextID   uint
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{
		payments: map[string]*models.Payment{},
		statuses: map[uint]string{},
		nextID:   1,
	}
}

func (r *fakePaymentRepo) key(provider, providerPaymentID string) string {
	return provider + "|" + providerPaymentID
}

func (r *fakePaymentRepo) GetByProviderPaymentID(provider, providerPaymentID string) (*models.Payment, error) {
	p, ok := r.payments[r.key(provider, providerPaymentID)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (r *fakePaymentRepo) CreateIfNotExists(payment *models.Payment) (bool, *models.Payment, error) {
	k := r.key(payment.Provider, payment.ProviderPaymentID)
	if existing, ok := r.payments[k]; ok {
		return false, existing, nil
	}
	payment.ID = r.nextID
	r.nextID++
	r.payments[k] = payment
	r.statuses[payment.ID] = payment.Status
	return true, payment, nil
}

func (r *fakePaymentRepo) UpdateStatus(tx *gorm.DB, paymentID uint, status string) error {
	r.statuses[paymentID] = status
	return nil
}

func (r *fakePaymentRepo) ListByUserID(userID int64, offset, limit int) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeSubRepo struct{}

func (fakeSubRepo) GetByUserID(tx *gorm.DB, userID int64) (*models.Subscription, error) {
	return nil, gorm.ErrRecordNotFound
}
func (fakeSubRepo) Save(tx *gorm.DB, sub *models.Subscription) error { return nil }

type fakeActivator struct {
	calls  int
	inputs []subscription.ActivationInput
	result *subscription.ActivationResult
	err    error
}

func (a *fakeActivator) ActivateSubscription(tx *gorm.DB, in subscription.ActivationInput) (*subscription.ActivationResult, error) {
	a.calls++
	a.inputs = append(a.inputs, in)
	if a.err != nil {
		return nil, a.err
	}
	if a.result != nil {
		return a.result, nil
	}
	return &subscription.ActivationResult{
		Activated:     true,
		EndDate:       time.Now().AddDate(0, in.Months, 0),
		PanelUserUUID: "9f1c2e4a-0000-0000-0000-000000000001",
	}, nil
}

type fakeBonusApplier struct {
	calls int
	bonus *referral.Bonus
	err   error
}

func (b *fakeBonusApplier) ApplyBonusesForPayment(tx *gorm.DB, userID int64, months int, paymentID uint) (*referral.Bonus, error) {
	b.calls++
	return b.bonus, b.err
}

type fakeNotifier struct {
	userNotices  []notify.PaymentNotice
	adminNotices []notify.PaymentNotice
}

func (n *fakeNotifier) NotifyPaymentSuccess(ctx context.Context, notice notify.PaymentNotice) error {
	n.userNotices = append(n.userNotices, notice)
	return nil
}

func (n *fakeNotifier) NotifyAdmins(ctx context.Context, notice notify.PaymentNotice) error {
	n.adminNotices = append(n.adminNotices, notice)
	return nil
}

type fakeReminders struct {
	jobs []reminder.Job
}

func (r *fakeReminders) Schedule(job reminder.Job) error {
	r.jobs = append(r.jobs, job)
	return nil
}

type serviceFixture struct {
	svc       *Service
	users     *fakeUserRepo
	payments  *fakePaymentRepo
	activator *fakeActivator
	bonuses   *fakeBonusApplier
	notifier  *fakeNotifier
	reminders *fakeReminders
}

func newServiceFixture(cfg *Config, opts ...Option) *serviceFixture {
	f := &serviceFixture{
		users:     newFakeUserRepo(),
		payments:  newFakePaymentRepo(),
		activator: &fakeActivator{},
		bonuses:   &fakeBonusApplier{},
		notifier:  &fakeNotifier{},
		reminders: &fakeReminders{},
	}
	repos := &repository.Repositories{
		User:         f.users,
		Payment:      f.payments,
		Subscription: fakeSubRepo{},
	}
	all := append([]Option{
		WithNotifier(f.notifier),
		WithReminderScheduler(f.reminders),
	}, opts...)
	f.svc = NewService(cfg, nil, repos, f.activator, f.bonuses, all...)
	return f
}

func testConfig() *Config {
	return &Config{
		Enabled:             true,
		APIKey:              "secret",
		Links:               map[int]string{1: "https://t.me/tribute/app?startapp=p10"},
		MinorUnitCurrencies: map[string]struct{}{"USD": {}, "EUR": {}},
		DefaultLanguage:     "en",
		DefaultCurrency:     "USD",
	}
}

func productEvent(amount int64, currency string) *WebhookEvent {
	return &WebhookEvent{
		Name:      "new_digital_product",
		CreatedAt: "2025-03-01T10:00:00Z",
		Payload: EventPayload{
			TelegramUserID: 42,
			ProductID:      10,
			Amount:         FlexInt64(amount),
			Currency:       currency,
			UserID:         7,
		},
	}
}

func subscriptionEvent(period string) *WebhookEvent {
	return &WebhookEvent{
		Name:      "newSubscription",
		CreatedAt: "2025-03-01T10:00:00Z",
		Payload: EventPayload{
			TelegramUserID: 42,
			Amount:         1200,
			Currency:       "EUR",
			UserID:         7,
			SubscriptionID: 9001,
			Period:         period,
			PeriodID:       555,
		},
	}
}

func TestHandleEvent_ProductPurchase(t *testing.T) {
	f := newServiceFixture(testConfig())

	outcome, err := f.svc.HandleEvent(context.Background(), productEvent(500, "EUR"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, outcome.Code)

	// User is auto-created from the payment event.
	user, err := f.users.GetByTelegramID(42)
	require.NoError(t, err)
	assert.Equal(t, models.PlaceholderFirstName, user.FirstName)

	stored, err := f.payments.GetByProviderPaymentID(models.PaymentProviderTribute, "tribute:product:10:7:2025-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.UserID)
	assert.Equal(t, 5.00, stored.Amount)
	assert.Equal(t, "EUR", stored.Currency)
	assert.Equal(t, 1, stored.SubscriptionDurationMonths)
	assert.Equal(t, models.PaymentStatusSucceeded, f.payments.statuses[stored.ID])

	require.Equal(t, 1, f.activator.calls)
	assert.Equal(t, 1, f.activator.inputs[0].Months)
	require.Len(t, f.notifier.userNotices, 1)
	require.Len(t, f.notifier.adminNotices, 1)
}

func TestHandleEvent_DuplicateRedelivery(t *testing.T) {
	f := newServiceFixture(testConfig())
	ev := productEvent(500, "EUR")

	first, err := f.svc.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, first.Code)

	second, err := f.svc.HandleEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second.Code)

	// Exactly one payment row and one activation across both deliveries.
	assert.Len(t, f.payments.payments, 1)
	assert.Equal(t, 1, f.activator.calls)
	assert.Len(t, f.notifier.userNotices, 1)
}

func TestHandleEvent_SubscriptionPeriods(t *testing.T) {
	tests := []struct {
		period     string
		wantMonths int
	}{
		{period: "monthly", wantMonths: 1},
		{period: "quarterly", wantMonths: 3},
		{period: "half-yearly", wantMonths: 6},
		{period: "yearly", wantMonths: 12},
		{period: "unheard-of", wantMonths: 1},
	}
	for _, tt := range tests {
		f := newServiceFixture(testConfig())
		ev := subscriptionEvent(tt.period)

		outcome, err := f.svc.HandleEvent(context.Background(), ev)
		require.NoError(t, err, tt.period)
		assert.Equal(t, OutcomeOK, outcome.Code, tt.period)
		require.Equal(t, 1, f.activator.calls, tt.period)
		assert.Equal(t, tt.wantMonths, f.activator.inputs[0].Months, tt.period)
	}
}

func TestHandleEvent_SubscriptionStartsPending(t *testing.T) {
	f := newServiceFixture(testConfig())

	outcome, err := f.svc.HandleEvent(context.Background(), subscriptionEvent("monthly"))
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome.Code)

	stored, err := f.payments.GetByProviderPaymentID(models.PaymentProviderTribute, "tribute:sub:9001:7:555")
	require.NoError(t, err)
	// Recorded pending, reconciled to succeeded after activation.
	assert.Equal(t, models.PaymentStatusPending, stored.Status)
	assert.Equal(t, models.PaymentStatusSucceeded, f.payments.statuses[stored.ID])
}

func TestHandleEvent_MissingTelegramUserID(t *testing.T) {
	f := newServiceFixture(testConfig())
	ev := productEvent(500, "EUR")
	ev.Payload.TelegramUserID = 0

	_, err := f.svc.HandleEvent(context.Background(), ev)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "missing_telegram_user_id", verr.Reason)
	assert.Empty(t, f.payments.payments)
	assert.Equal(t, 0, f.activator.calls)
}

func TestHandleEvent_IgnoredKinds(t *testing.T) {
	for _, name := range []string{"digitalProductRefund", "cancelledSubscription", "somethingNew"} {
		f := newServiceFixture(testConfig())
		ev := productEvent(500, "EUR")
		ev.Name = name

		outcome, err := f.svc.HandleEvent(context.Background(), ev)
		require.NoError(t, err, name)
		assert.Equal(t, OutcomeIgnored, outcome.Code, name)
		assert.Empty(t, f.payments.payments, name)
		assert.Equal(t, 0, f.activator.calls, name)
	}
}

func TestHandleEvent_ActivationFailureMarksPaymentFailed(t *testing.T) {
	f := newServiceFixture(testConfig())
	f.activator.result = &subscription.ActivationResult{
		Activated:  false,
		MessageKey: "activation_invalid_duration",
	}

	outcome, err := f.svc.HandleEvent(context.Background(), productEvent(500, "EUR"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeActivationFailed, outcome.Code)
	assert.Equal(t, models.PaymentStatusFailed, f.payments.statuses[outcome.PaymentID])
	assert.Empty(t, f.notifier.userNotices)
}

func TestHandleEvent_BonusFailureFailsRequest(t *testing.T) {
	f := newServiceFixture(testConfig())
	f.bonuses.err = errors.New("inviter row locked")

	_, err := f.svc.HandleEvent(context.Background(), productEvent(500, "EUR"))
	require.Error(t, err)
	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
	// Activation and bonus share one unit of work; the status never reaches
	// succeeded when the bonus write fails.
	for _, p := range f.payments.payments {
		assert.NotEqual(t, models.PaymentStatusSucceeded, f.payments.statuses[p.ID])
	}
	assert.Empty(t, f.notifier.userNotices)
}

func TestHandleEvent_ReferralBonusInNotification(t *testing.T) {
	f := newServiceFixture(testConfig())

	inviterID := int64(100)
	f.users.users[inviterID] = &models.User{TelegramID: inviterID, FirstName: "Alex"}
	f.users.users[42] = &models.User{TelegramID: 42, FirstName: "Sam", ReferredByID: &inviterID}

	bonusEnd := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	f.bonuses.bonus = &referral.Bonus{RefereeNewEndDate: bonusEnd, RefereeBonusAppliedDays: 7}

	outcome, err := f.svc.HandleEvent(context.Background(), productEvent(500, "EUR"))
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome.Code)

	require.Len(t, f.notifier.userNotices, 1)
	notice := f.notifier.userNotices[0]
	assert.Equal(t, 7, notice.BonusDays)
	assert.Equal(t, bonusEnd, notice.FinalEndDate)
	require.NotNil(t, notice.Inviter)
	assert.Equal(t, "Alex", notice.Inviter.FirstName)
}

func TestHandleEvent_TrafficSaleMode(t *testing.T) {
	cfg := testConfig()
	cfg.TrafficSaleMode = true
	f := newServiceFixture(cfg)

	outcome, err := f.svc.HandleEvent(context.Background(), productEvent(500, "EUR"))
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome.Code)

	require.Equal(t, 1, f.activator.calls)
	in := f.activator.inputs[0]
	assert.Equal(t, SaleModeTraffic, in.SaleMode)
	assert.Equal(t, 1, in.TrafficGB)
	assert.Equal(t, 0, in.Months)
	// Referral bonuses only apply to time-denominated purchases.
	assert.Equal(t, 0, f.bonuses.calls)
}

func TestHandleEvent_FirstTimeActivationSchedulesReminder(t *testing.T) {
	f := newServiceFixture(testConfig())
	f.activator.result = &subscription.ActivationResult{
		Activated:       true,
		EndDate:         time.Now().AddDate(0, 1, 0),
		PanelUserUUID:   "9f1c2e4a-0000-0000-0000-000000000001",
		SubscriptionURL: "https://panel.example.com/sub/9f1c2e4a-0000-0000-0000-000000000001",
		FirstTime:       true,
	}

	_, err := f.svc.HandleEvent(context.Background(), productEvent(500, "EUR"))
	require.NoError(t, err)

	require.Len(t, f.reminders.jobs, 1)
	job := f.reminders.jobs[0]
	assert.Equal(t, int64(42), job.UserID)
	assert.Equal(t, "9f1c2e4a-0000-0000-0000-000000000001", job.PanelUserUUID)
	assert.Equal(t, f.activator.result.SubscriptionURL, job.ConnectURL)
}

func TestHandleEvent_RepeatActivationSkipsReminder(t *testing.T) {
	f := newServiceFixture(testConfig())
	f.activator.result = &subscription.ActivationResult{
		Activated:     true,
		EndDate:       time.Now().AddDate(0, 1, 0),
		PanelUserUUID: "9f1c2e4a-0000-0000-0000-000000000001",
		FirstTime:     false,
	}

	_, err := f.svc.HandleEvent(context.Background(), productEvent(500, "EUR"))
	require.NoError(t, err)
	assert.Empty(t, f.reminders.jobs)
}

func TestHandleEvent_DefaultCurrencyApplied(t *testing.T) {
	f := newServiceFixture(testConfig())

	outcome, err := f.svc.HandleEvent(context.Background(), productEvent(500, ""))
	require.NoError(t, err)
	require.Equal(t, OutcomeOK, outcome.Code)

	var stored *models.Payment
	for _, p := range f.payments.payments {
		stored = p
	}
	require.NotNil(t, stored)
	assert.Equal(t, "USD", stored.Currency)
	assert.Equal(t, 5.00, stored.Amount) // USD is minor-unit by default
}

func TestHandleEvent_ActivatorErrorPropagates(t *testing.T) {
	f := newServiceFixture(testConfig())
	f.activator.err = fmt.Errorf("panel unavailable")

	_, err := f.svc.HandleEvent(context.Background(), productEvent(500, "EUR"))
	require.Error(t, err)
	assert.Empty(t, f.notifier.userNotices)
}
