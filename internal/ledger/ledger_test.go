package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dverano/channelpass-bot/internal/access"
	"github.com/dverano/channelpass-bot/internal/catalog"
	"github.com/dverano/channelpass-bot/store"
	"github.com/dverano/channelpass-bot/types"
)

// memStore mirrors the Postgres store contract in memory: payments are
// deduplicated by transaction id and an active subscription extends from its
// current expiry.
type memStore struct {
	now      func() time.Time
	payments map[string]bool
	subs     map[int64]*types.Subscription
	activity []recordedActivity
	touched  []int64

	activateErr error
	listErr     error
	reminderErr error
}

type recordedActivity struct {
	userID int64
	action types.Action
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:      now,
		payments: map[string]bool{},
		subs:     map[int64]*types.Subscription{},
	}
}

func (m *memStore) ActivateOrExtendSubscription(ctx context.Context, userID int64, plan string, duration time.Duration, transactionID string, amount float64, currency string) (*types.Subscription, error) {
	if m.activateErr != nil {
		return nil, m.activateErr
	}
	if transactionID != "" {
		if m.payments[transactionID] {
			return nil, store.ErrAlreadyProcessed
		}
		m.payments[transactionID] = true
	}
	now := m.now()
	existing := m.subs[userID]
	sub := &types.Subscription{
		UserID:          userID,
		Plan:            plan,
		PaymentAmount:   amount,
		PaymentCurrency: currency,
	}
	if existing != nil && existing.ExpiresAt.After(now) {
		sub.StartDate = existing.StartDate
		sub.ExpiresAt = existing.ExpiresAt.Add(duration)
	} else {
		sub.StartDate = now
		sub.ExpiresAt = now.Add(duration)
	}
	m.subs[userID] = sub
	return sub, nil
}

func (m *memStore) ListExpiredNeedingRevoke(ctx context.Context) ([]types.ExpiredSubscription, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	now := m.now()
	var out []types.ExpiredSubscription
	for _, s := range m.subs {
		if !s.ExpiresAt.After(now) && !m.hasNewerRevoke(s) {
			out = append(out, types.ExpiredSubscription{UserID: s.UserID, Plan: s.Plan, ExpiresAt: s.ExpiresAt})
		}
	}
	return out, nil
}

func (m *memStore) hasNewerRevoke(s *types.Subscription) bool {
	for _, a := range m.activity {
		if a.userID == s.UserID && a.action == types.ActionAccessRevoked {
			return true
		}
	}
	return false
}

func (m *memStore) ListReminderDue(ctx context.Context, window time.Duration) ([]types.ReminderDue, error) {
	now := m.now()
	var out []types.ReminderDue
	for _, s := range m.subs {
		if s.ExpiresAt.After(now) && !s.ExpiresAt.After(now.Add(window)) && !s.ReminderSent {
			out = append(out, types.ReminderDue{UserID: s.UserID, Plan: s.Plan, ExpiresAt: s.ExpiresAt})
		}
	}
	return out, nil
}

func (m *memStore) MarkReminderSent(ctx context.Context, userID int64) error {
	if m.reminderErr != nil {
		return m.reminderErr
	}
	if s := m.subs[userID]; s != nil {
		s.ReminderSent = true
	}
	return nil
}

func (m *memStore) GetAllSubscribers(ctx context.Context) ([]types.SubscriberSummary, error) {
	return nil, nil
}

func (m *memStore) AppendActivity(ctx context.Context, userID int64, action types.Action, details map[string]any) error {
	m.activity = append(m.activity, recordedActivity{userID: userID, action: action})
	return nil
}

func (m *memStore) TouchUser(ctx context.Context, userID int64, language string) error {
	m.touched = append(m.touched, userID)
	return nil
}

type fakeGranter struct {
	store     *memStore
	grants    []int64
	revokes   []int64
	revokeErr map[int64]error
	failAll   bool
}

func (f *fakeGranter) Grant(ctx context.Context, userID int64, plan catalog.Plan) access.GrantResult {
	f.grants = append(f.grants, userID)
	if f.failAll {
		return access.GrantResult{Failed: plan.ChannelKeys}
	}
	return access.GrantResult{Granted: plan.ChannelKeys}
}

func (f *fakeGranter) Revoke(ctx context.Context, userID int64) ([]string, error) {
	if err := f.revokeErr[userID]; err != nil {
		return nil, err
	}
	f.revokes = append(f.revokes, userID)
	if f.store != nil {
		_ = f.store.AppendActivity(ctx, userID, types.ActionAccessRevoked, nil)
	}
	return []string{"channel_1"}, nil
}

type fakeNotifier struct {
	sent    []int64
	sendErr map[int64]error
}

func (f *fakeNotifier) SendRenewalReminder(ctx context.Context, userID int64, plan string, expiresAt time.Time) error {
	if err := f.sendErr[userID]; err != nil {
		return err
	}
	f.sent = append(f.sent, userID)
	return nil
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(
		[]catalog.Channel{
			{Key: "channel_1", ID: -101, Name: "One"},
			{Key: "channel_2", ID: -102, Name: "Two"},
		},
		[]catalog.Plan{
			{ID: "monthly", Name: "Cloudy Month", PriceUSD: 24.99, DurationDays: 30, ChannelKeys: []string{"channel_1", "channel_2"}},
		},
	)
	require.NoError(t, err)
	return c
}

type fixture struct {
	clock    time.Time
	store    *memStore
	granter  *fakeGranter
	notifier *fakeNotifier
	ledger   *Ledger
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{clock: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	f.store = newMemStore(func() time.Time { return f.clock })
	f.granter = &fakeGranter{store: f.store}
	f.notifier = &fakeNotifier{}
	f.ledger = New(f.store, f.granter, f.notifier, testCatalog(t), 3*24*time.Hour, zerolog.Nop())
	return f
}

func TestAddSubscriberFreshPayment(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, ""))

	sub := f.store.subs[1]
	require.NotNil(t, sub)
	assert.Equal(t, f.clock.Add(30*24*time.Hour), sub.ExpiresAt)
	assert.Equal(t, []int64{1}, f.granter.grants)
	assert.Equal(t, types.ActionSubscriptionCreated, f.store.activity[0].action)
	assert.Equal(t, []int64{1}, f.store.touched)
}

func TestAddSubscriberExtendsBeforeExpiry(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock

	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, ""))

	// second payment ten days in, well before expiry
	f.clock = t0.Add(10 * 24 * time.Hour)
	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-2", 0, ""))

	// extended from the original expiry, not from the second payment time
	assert.Equal(t, t0.Add(60*24*time.Hour), f.store.subs[1].ExpiresAt)
}

func TestAddSubscriberDuplicateTransactionIgnored(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, ""))
	expiry := f.store.subs[1].ExpiresAt

	outcome := f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, "")
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, expiry, f.store.subs[1].ExpiresAt, "duplicate delivery must not re-extend")
	assert.Equal(t, []int64{1}, f.granter.grants, "no second grant for duplicate")
}

func TestAddSubscriberUnknownPlan(t *testing.T) {
	f := newFixture(t)

	outcome := f.ledger.AddSubscriber(context.Background(), 1, "No Such Plan", "tx-1", 0, "")
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Empty(t, f.store.subs)
	assert.Empty(t, f.granter.grants)
	require.Len(t, f.store.activity, 1)
	assert.Equal(t, types.ActionSubscriptionFailed, f.store.activity[0].action)
}

func TestAddSubscriberStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.activateErr = errors.New("connection reset")

	outcome := f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, "")
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Empty(t, f.granter.grants)
	require.Len(t, f.store.activity, 1)
	assert.Equal(t, types.ActionSubscriptionError, f.store.activity[0].action)

	// a failed activation leaves no dedup record, so the provider's
	// redelivery of the same transaction applies normally
	f.store.activateErr = nil
	f.store.activity = nil
	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, ""))
	require.NotNil(t, f.store.subs[1])
}

func TestAddSubscriberDefaultsAmountFromPlan(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, ""))
	assert.Equal(t, 24.99, f.store.subs[1].PaymentAmount)
	assert.Equal(t, "USD", f.store.subs[1].PaymentCurrency)
}

func TestResubscribeAfterExpiry(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock

	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, ""))

	// subscription runs out, reconciliation revokes
	f.clock = t0.Add(31 * 24 * time.Hour)
	processed, err := f.ledger.CheckExpiredSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, processed)

	// paying again starts a fresh term at payment time
	payTime := f.clock
	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-2", 0, ""))
	assert.Equal(t, payTime, f.store.subs[1].StartDate)
	assert.Equal(t, payTime.Add(30*24*time.Hour), f.store.subs[1].ExpiresAt)
	assert.Equal(t, []int64{1, 1}, f.granter.grants)
}

func TestCheckExpiredIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock

	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, ""))
	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 2, "Cloudy Month", "tx-2", 0, ""))
	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 3, "Cloudy Month", "tx-3", 0, ""))

	f.clock = t0.Add(31 * 24 * time.Hour)
	f.granter.revokeErr = map[int64]error{2: errors.New("boom")}

	processed, err := f.ledger.CheckExpiredSubscriptions(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, processed)
}

func TestCheckExpiredSkipsAlreadyRevoked(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock

	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, ""))
	f.clock = t0.Add(31 * 24 * time.Hour)

	first, err := f.ledger.CheckExpiredSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, first)

	// next tick: revoke log is newer than expiry, nothing to do
	second, err := f.ledger.CheckExpiredSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestRenewalRemindersAtLeastOnce(t *testing.T) {
	f := newFixture(t)
	t0 := f.clock

	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, ""))
	require.Equal(t, OutcomeApplied, f.ledger.AddSubscriber(context.Background(), 2, "Cloudy Month", "tx-2", 0, ""))

	// two days before expiry, inside the 3-day window
	f.clock = t0.Add(28 * 24 * time.Hour)
	f.notifier.sendErr = map[int64]error{2: errors.New("network")}

	reminded, err := f.ledger.CheckRenewalReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, reminded)
	assert.True(t, f.store.subs[1].ReminderSent)
	assert.False(t, f.store.subs[2].ReminderSent, "failed send keeps flag unset for retry")

	// next tick retries only the failed user
	f.notifier.sendErr = nil
	reminded, err = f.ledger.CheckRenewalReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, reminded)
}

func TestNoRemindersOutsideWindow(t *testing.T) {
	f := newFixture(t)

	// far from expiry: no reminders due
	reminded, err := f.ledger.CheckRenewalReminders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reminded)
}

func TestGrantFailureDoesNotFailLedger(t *testing.T) {
	f := newFixture(t)
	f.granter.failAll = true

	outcome := f.ledger.AddSubscriber(context.Background(), 1, "Cloudy Month", "tx-1", 0, "")
	assert.Equal(t, OutcomeApplied, outcome, "subscription state is authoritative even when grants fail")
	require.NotNil(t, f.store.subs[1])
}
