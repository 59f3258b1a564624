package webhook

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dverano/channelpass-bot/internal/catalog"
	"github.com/dverano/channelpass-bot/internal/ledger"
	"github.com/dverano/channelpass-bot/types"
)

type fakeLedger struct {
	mu      sync.Mutex
	calls   []ledgerCall
	outcome ledger.AddOutcome
	done    chan struct{}
}

type ledgerCall struct {
	userID   int64
	planName string
	txID     string
	amount   float64
}

func (f *fakeLedger) AddSubscriber(ctx context.Context, userID int64, planName, transactionID string, amount float64, currency string) ledger.AddOutcome {
	f.mu.Lock()
	f.calls = append(f.calls, ledgerCall{userID: userID, planName: planName, txID: transactionID, amount: amount})
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return f.outcome
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeNotifier struct {
	mu          sync.Mutex
	confirmed   []int64
	failed      []int64
	adminAlerts []string
}

func (f *fakeNotifier) SendPaymentConfirmed(ctx context.Context, userID int64, plan string, amount float64, currency string, durationDays int, transactionID string) {
	f.mu.Lock()
	f.confirmed = append(f.confirmed, userID)
	f.mu.Unlock()
}

func (f *fakeNotifier) SendProcessingError(ctx context.Context, userID int64, transactionID string) {
	f.mu.Lock()
	f.failed = append(f.failed, userID)
	f.mu.Unlock()
}

func (f *fakeNotifier) NotifyAdminsPaymentError(ctx context.Context, userID int64, transactionID, reason string) {
	f.mu.Lock()
	f.adminAlerts = append(f.adminAlerts, transactionID)
	f.mu.Unlock()
}

type fakeStats struct{ err error }

func (f *fakeStats) Snapshot(ctx context.Context) (*types.Stats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.Stats{TotalUsers: 7, ActiveSubs: 3}, nil
}

type fakeDirectory struct{}

func (fakeDirectory) GetUsers(ctx context.Context, language string, statuses []types.SubStatus) ([]types.UserSummary, error) {
	return []types.UserSummary{{UserID: 1, Language: "en", Status: types.StatusActive}}, nil
}

func (fakeDirectory) GetAllSubscribers(ctx context.Context) ([]types.SubscriberSummary, error) {
	return nil, nil
}

type denyLimiter struct{ allow bool }

func (d denyLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	return d.allow, nil
}

func newTestServer(t *testing.T, ledger *fakeLedger, limiter RateLimiter, opts Options) (*Server, *fakeNotifier) {
	t.Helper()
	cat, err := catalog.Default(nil)
	require.NoError(t, err)
	notifier := &fakeNotifier{}
	srv := NewServer(ledger, notifier, &fakeStats{}, fakeDirectory{}, limiter, cat, opts, zerolog.Nop())
	return srv, notifier
}

func postWebhook(t *testing.T, srv *Server, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

const completedBody = `{"id":"tx-1","status":"completed","amount":24.99,"currency":"USD","metadata":{"user_id":"42","plan_id":"monthly"}}`

func TestWebhookCompletedPaymentProcessed(t *testing.T) {
	led := &fakeLedger{outcome: ledger.OutcomeApplied, done: make(chan struct{})}
	srv, notifier := newTestServer(t, led, denyLimiter{allow: true}, Options{})

	rec := postWebhook(t, srv, completedBody, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-led.done:
	case <-time.After(time.Second):
		t.Fatal("ledger never called")
	}

	led.mu.Lock()
	call := led.calls[0]
	led.mu.Unlock()
	assert.EqualValues(t, 42, call.userID)
	assert.Equal(t, "tx-1", call.txID)
	assert.Equal(t, 24.99, call.amount)
	assert.NotEqual(t, "monthly", call.planName, "plan id must resolve to display name")

	// confirmation follows the ledger call on the same goroutine
	deadline := time.Now().Add(time.Second)
	for {
		notifier.mu.Lock()
		n := len(notifier.confirmed)
		notifier.mu.Unlock()
		if n == 1 || time.Now().After(deadline) {
			assert.Equal(t, 1, n)
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebhookFailedPaymentNotifies(t *testing.T) {
	led := &fakeLedger{outcome: ledger.OutcomeFailed, done: make(chan struct{})}
	srv, notifier := newTestServer(t, led, denyLimiter{allow: true}, Options{})

	rec := postWebhook(t, srv, completedBody, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "provider still gets a 200, retries would not help")

	select {
	case <-led.done:
	case <-time.After(time.Second):
		t.Fatal("ledger never called")
	}

	// the payer and the admins both hear about it, confirmation does not fire
	deadline := time.Now().Add(time.Second)
	for {
		notifier.mu.Lock()
		failed, alerts := len(notifier.failed), len(notifier.adminAlerts)
		notifier.mu.Unlock()
		if (failed == 1 && alerts == 1) || time.Now().After(deadline) {
			require.Equal(t, 1, failed)
			require.Equal(t, 1, alerts)
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []int64{42}, notifier.failed)
	assert.Equal(t, []string{"tx-1"}, notifier.adminAlerts)
	assert.Empty(t, notifier.confirmed)
}

func TestWebhookDuplicateDeliverySilent(t *testing.T) {
	led := &fakeLedger{outcome: ledger.OutcomeDuplicate, done: make(chan struct{})}
	srv, notifier := newTestServer(t, led, denyLimiter{allow: true}, Options{})

	rec := postWebhook(t, srv, completedBody, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-led.done:
	case <-time.After(time.Second):
		t.Fatal("ledger never called")
	}
	time.Sleep(20 * time.Millisecond)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Empty(t, notifier.confirmed, "no second confirmation for a redelivery")
	assert.Empty(t, notifier.failed)
	assert.Empty(t, notifier.adminAlerts)
}

func TestWebhookPendingIgnored(t *testing.T) {
	led := &fakeLedger{outcome: ledger.OutcomeApplied}
	srv, _ := newTestServer(t, led, denyLimiter{allow: true}, Options{})

	body := `{"id":"tx-2","status":"pending","metadata":{"user_id":"42","plan_id":"monthly"}}`
	rec := postWebhook(t, srv, body, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
	assert.Zero(t, led.callCount())
}

func TestWebhookInvalidPayloadRejected(t *testing.T) {
	led := &fakeLedger{outcome: ledger.OutcomeApplied}
	srv, _ := newTestServer(t, led, denyLimiter{allow: true}, Options{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"missing transaction id", `{"status":"completed","metadata":{"user_id":"42","plan_id":"monthly"}}`},
		{"bad user id", `{"id":"tx","status":"completed","metadata":{"user_id":"abc","plan_id":"monthly"}}`},
		{"missing plan", `{"id":"tx","status":"completed","metadata":{"user_id":"42"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postWebhook(t, srv, tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Zero(t, led.callCount())
}

func TestWebhookSignatureEnforced(t *testing.T) {
	led := &fakeLedger{outcome: ledger.OutcomeApplied}
	secret := "hook-secret"
	srv, _ := newTestServer(t, led, denyLimiter{allow: true}, Options{Secret: secret, RequireSig: true})

	t.Run("missing signature", func(t *testing.T) {
		rec := postWebhook(t, srv, completedBody, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong signature", func(t *testing.T) {
		rec := postWebhook(t, srv, completedBody, map[string]string{"X-Bold-Signature": "sha256=deadbeef"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid signature", func(t *testing.T) {
		led.done = make(chan struct{})
		rec := postWebhook(t, srv, completedBody, map[string]string{
			"X-Bold-Signature": "sha256=" + sign(secret, []byte(completedBody)),
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		select {
		case <-led.done:
		case <-time.After(time.Second):
			t.Fatal("ledger never called")
		}
	})

	t.Run("fallback header accepted", func(t *testing.T) {
		body := `{"id":"tx-3","status":"pending","metadata":{"user_id":"42","plan_id":"monthly"}}`
		rec := postWebhook(t, srv, body, map[string]string{
			"X-Signature": sign(secret, []byte(body)),
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestWebhookRateLimited(t *testing.T) {
	led := &fakeLedger{outcome: ledger.OutcomeApplied}
	srv, _ := newTestServer(t, led, denyLimiter{allow: false}, Options{})

	rec := postWebhook(t, srv, completedBody, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Zero(t, led.callCount())
}

func TestHealthAndStatsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLedger{}, denyLimiter{allow: true}, Options{})

	for path, want := range map[string]int{
		"/health":          http.StatusOK,
		"/api/stats":       http.StatusOK,
		"/api/users":       http.StatusOK,
		"/api/subscribers": http.StatusOK,
		"/":                http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, path)
	}
}

func TestUsersEndpointRejectsUnknownStatus(t *testing.T) {
	srv, _ := newTestServer(t, &fakeLedger{}, denyLimiter{allow: true}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/users?status=bogus", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
