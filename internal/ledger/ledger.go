package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/dverano/channelpass-bot/internal/access"
	"github.com/dverano/channelpass-bot/internal/catalog"
	"github.com/dverano/channelpass-bot/store"
	"github.com/dverano/channelpass-bot/types"
)

// Granter is the channel access controller seen from the ledger.
type Granter interface {
	Grant(ctx context.Context, userID int64, plan catalog.Plan) access.GrantResult
	Revoke(ctx context.Context, userID int64) ([]string, error)
}

// Notifier delivers renewal reminders. Dispatch must be confirmed before the
// reminder flag is set, so a failed send retries on the next tick.
type Notifier interface {
	SendRenewalReminder(ctx context.Context, userID int64, plan string, expiresAt time.Time) error
}

type Store interface {
	types.SubscriberStore
	types.ActivityStore
	TouchUser(ctx context.Context, userID int64, language string) error
}

// Ledger is the single authoritative entry point for turning validated
// payments into subscription state and channel entitlements.
type Ledger struct {
	store    Store
	access   Granter
	notifier Notifier
	catalog  *catalog.Catalog
	window   time.Duration
	log      zerolog.Logger
}

func New(st Store, granter Granter, notifier Notifier, cat *catalog.Catalog, reminderWindow time.Duration, log zerolog.Logger) *Ledger {
	if reminderWindow <= 0 {
		reminderWindow = 3 * 24 * time.Hour
	}
	return &Ledger{
		store:    st,
		access:   granter,
		notifier: notifier,
		catalog:  cat,
		window:   reminderWindow,
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

// AddOutcome reports what a payment delivery did, so callers can pick the
// right user-facing response: a duplicate must stay silent while a real
// failure warrants an error notice.
type AddOutcome int

const (
	OutcomeApplied AddOutcome = iota
	OutcomeDuplicate
	OutcomeFailed
)

// AddSubscriber applies one completed payment. Unknown plans and duplicate
// transactions are soft failures: logged, never propagated, so a bad webhook
// payload cannot take down the payment pipeline.
func (l *Ledger) AddSubscriber(ctx context.Context, userID int64, planName, transactionID string, amount float64, currency string) AddOutcome {
	plan, ok := l.catalog.PlanByName(planName)
	if !ok {
		l.log.Error().Int64("user_id", userID).Str("plan", planName).Msg("plan not found")
		l.logActivity(ctx, userID, types.ActionSubscriptionFailed, map[string]any{
			"reason": "plan_not_found",
			"plan":   planName,
		})
		return OutcomeFailed
	}

	if amount <= 0 {
		amount = plan.PriceUSD
	}
	if currency == "" {
		currency = "USD"
	}

	sub, err := l.store.ActivateOrExtendSubscription(ctx, userID, plan.Name, plan.Duration(), transactionID, amount, currency)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyProcessed) {
			// duplicate webhook delivery: the first application already
			// extended the subscription, do nothing further
			l.log.Warn().Int64("user_id", userID).Str("transaction_id", transactionID).Msg("transaction already processed")
			return OutcomeDuplicate
		}
		l.log.Error().Err(err).Int64("user_id", userID).Msg("failed to activate subscription")
		l.logActivity(ctx, userID, types.ActionSubscriptionError, map[string]any{"error": err.Error()})
		return OutcomeFailed
	}

	l.logActivity(ctx, userID, types.ActionSubscriptionCreated, map[string]any{
		"plan":           plan.Name,
		"expires":        sub.ExpiresAt.Format(time.RFC3339),
		"transaction_id": transactionID,
		"amount":         amount,
		"currency":       currency,
	})

	// grants happen only after the subscription row is durable: a crash here
	// leaves a paid-but-ungranted user, which reconciliation can repair
	result := l.access.Grant(ctx, userID, plan)
	if len(result.Failed) > 0 {
		l.log.Warn().Int64("user_id", userID).Strs("failed", result.Failed).Msg("some channel grants failed")
	}

	if err := l.store.TouchUser(ctx, userID, ""); err != nil {
		l.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to touch user")
	}

	l.log.Info().Int64("user_id", userID).Str("plan", plan.Name).Time("expires_at", sub.ExpiresAt).Msg("subscriber added")
	return OutcomeApplied
}

// CheckExpiredSubscriptions revokes channel access for every subscription
// past its expiry that has not already been revoked. One user's failure
// never aborts the batch.
func (l *Ledger) CheckExpiredSubscriptions(ctx context.Context) ([]int64, error) {
	expired, err := l.store.ListExpiredNeedingRevoke(ctx)
	if err != nil {
		return nil, err
	}

	var processed []int64
	for _, e := range expired {
		if _, err := l.access.Revoke(ctx, e.UserID); err != nil {
			l.log.Error().Err(err).Int64("user_id", e.UserID).Msg("failed to revoke expired subscription")
			continue
		}
		processed = append(processed, e.UserID)
		l.log.Info().Int64("user_id", e.UserID).Str("plan", e.Plan).Msg("expired subscription processed")
	}
	return processed, nil
}

// CheckRenewalReminders notifies users whose subscription expires inside the
// look-ahead window. The flag is set only after a confirmed send, so delivery
// is at-least-once: a duplicate reminder is acceptable, a silently missed one
// is not.
func (l *Ledger) CheckRenewalReminders(ctx context.Context) ([]int64, error) {
	due, err := l.store.ListReminderDue(ctx, l.window)
	if err != nil {
		return nil, err
	}

	var reminded []int64
	for _, r := range due {
		if err := l.notifier.SendRenewalReminder(ctx, r.UserID, r.Plan, r.ExpiresAt); err != nil {
			l.log.Warn().Err(err).Int64("user_id", r.UserID).Msg("reminder not delivered, will retry next tick")
			continue
		}
		if err := l.store.MarkReminderSent(ctx, r.UserID); err != nil {
			l.log.Error().Err(err).Int64("user_id", r.UserID).Msg("failed to mark reminder sent")
			continue
		}
		l.logActivity(ctx, r.UserID, types.ActionReminderSent, map[string]any{
			"plan":    r.Plan,
			"expires": r.ExpiresAt.Format(time.RFC3339),
		})
		reminded = append(reminded, r.UserID)
	}
	return reminded, nil
}

func (l *Ledger) logActivity(ctx context.Context, userID int64, action types.Action, details map[string]any) {
	if err := l.store.AppendActivity(ctx, userID, action, details); err != nil {
		l.log.Error().Err(err).Int64("user_id", userID).Str("action", string(action)).Msg("failed to append activity log")
	}
}
