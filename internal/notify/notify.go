// Package notify delivers lifecycle messages to users in their own language.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dverano/channelpass-bot/internal/i18n"
	"github.com/dverano/channelpass-bot/internal/messages"
	"github.com/dverano/channelpass-bot/types"
)

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type StatusReader interface {
	GetUserStatus(ctx context.Context, userID int64) (*types.UserStatus, error)
}

type Notifier struct {
	sender   Sender
	store    StatusReader
	adminIDs []int64
	log      zerolog.Logger
}

func New(sender Sender, store StatusReader, adminIDs []int64, log zerolog.Logger) *Notifier {
	return &Notifier{
		sender:   sender,
		store:    store,
		adminIDs: adminIDs,
		log:      log.With().Str("component", "notify").Logger(),
	}
}

func (n *Notifier) userLang(ctx context.Context, userID int64) i18n.Lang {
	status, err := n.store.GetUserStatus(ctx, userID)
	if err != nil || status == nil {
		return i18n.EN
	}
	return i18n.FromLanguageCode(status.Language)
}

func (n *Notifier) SendRenewalReminder(ctx context.Context, userID int64, plan string, expiresAt time.Time) error {
	lang := n.userLang(ctx, userID)
	if err := n.sender.SendText(ctx, userID, messages.RenewalReminder(lang, plan, expiresAt)); err != nil {
		n.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to send renewal reminder")
		return err
	}
	return nil
}

// SendPaymentConfirmed acknowledges a processed payment. Delivery is best
// effort: the subscription is already recorded by the time this runs.
func (n *Notifier) SendPaymentConfirmed(ctx context.Context, userID int64, plan string, amount float64, currency string, durationDays int, transactionID string) {
	lang := n.userLang(ctx, userID)
	text := messages.PaymentConfirmed(lang, plan, amount, currency, durationDays, transactionID)
	if err := n.sender.SendText(ctx, userID, text); err != nil {
		n.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to send payment confirmation")
	}
}

// SendProcessingError tells the user a payment arrived but could not be
// applied, so they contact support instead of paying twice.
func (n *Notifier) SendProcessingError(ctx context.Context, userID int64, transactionID string) {
	if err := n.sender.SendText(ctx, userID, messages.PaymentProcessingError(transactionID)); err != nil {
		n.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to send processing error notice")
	}
}

// NotifyAdminsPaymentError alerts every configured admin that a completed
// payment could not be applied, with enough detail to resolve it by hand.
func (n *Notifier) NotifyAdminsPaymentError(ctx context.Context, userID int64, transactionID, reason string) {
	text := messages.AdminPaymentError(userID, transactionID, reason)
	for _, adminID := range n.adminIDs {
		if err := n.sender.SendText(ctx, adminID, text); err != nil {
			n.log.Warn().Err(err).Int64("admin_id", adminID).Msg("failed to alert admin")
		}
	}
}
