package access

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dverano/channelpass-bot/internal/catalog"
	"github.com/dverano/channelpass-bot/internal/i18n"
	"github.com/dverano/channelpass-bot/internal/messages"
	"github.com/dverano/channelpass-bot/internal/telegram"
	"github.com/dverano/channelpass-bot/types"
)

// Platform is what the controller needs from the messaging side. Retries are
// the platform layer's business; by the time an error gets here it is final.
type Platform interface {
	SendText(ctx context.Context, chatID int64, text string) error
	CreateInviteLink(ctx context.Context, chatID int64, ttl time.Duration) (string, error)
	KickMember(ctx context.Context, chatID, userID int64) error
}

type Store interface {
	types.AccessStore
	types.ActivityStore
	SetUserBlocked(ctx context.Context, userID int64, blocked bool) error
	GetUserStatus(ctx context.Context, userID int64) (*types.UserStatus, error)
}

const inviteTTL = 24 * time.Hour

type GrantResult struct {
	Granted []string
	Failed  []string
}

// Controller reconciles desired channel membership with actual Telegram
// state: invite links on grant, ban-then-unban on revoke.
type Controller struct {
	platform    Platform
	store       Store
	catalog     *catalog.Catalog
	inviteDelay time.Duration
	log         zerolog.Logger
}

func NewController(platform Platform, store Store, cat *catalog.Catalog, inviteDelay time.Duration, log zerolog.Logger) *Controller {
	return &Controller{
		platform:    platform,
		store:       store,
		catalog:     cat,
		inviteDelay: inviteDelay,
		log:         log.With().Str("component", "access").Logger(),
	}
}

func (c *Controller) userLang(ctx context.Context, userID int64) i18n.Lang {
	st, err := c.store.GetUserStatus(ctx, userID)
	if err != nil || st == nil {
		return i18n.EN
	}
	return i18n.Parse(st.Language)
}

// Grant issues invite links for every channel in the plan, sequentially and
// in plan order. One channel failing never blocks the rest; the per-channel
// delay keeps us under the bot-wide request budget.
func (c *Controller) Grant(ctx context.Context, userID int64, plan catalog.Plan) GrantResult {
	var result GrantResult
	lang := c.userLang(ctx, userID)
	channels := c.catalog.PlanChannels(plan)

	for i, ch := range channels {
		if i > 0 && c.inviteDelay > 0 {
			select {
			case <-time.After(c.inviteDelay):
			case <-ctx.Done():
				result.Failed = append(result.Failed, ch.Name)
				continue
			}
		}

		if err := c.grantOne(ctx, userID, ch, lang); err != nil {
			result.Failed = append(result.Failed, ch.Name)
			c.log.Error().Err(err).Int64("user_id", userID).Int64("channel_id", ch.ID).Msg("grant failed")
			c.handlePermanent(ctx, userID, err)
			continue
		}
		result.Granted = append(result.Granted, ch.Name)
		c.log.Info().Int64("user_id", userID).Str("channel", ch.Name).Msg("access granted")
	}

	if len(result.Granted) > 0 {
		// one summary instead of a message per channel
		if err := c.platform.SendText(ctx, userID, messages.GrantSummary(lang, len(result.Granted), result.Failed)); err != nil {
			c.log.Warn().Err(err).Int64("user_id", userID).Msg("grant summary not delivered")
		}
	}
	return result
}

func (c *Controller) grantOne(ctx context.Context, userID int64, ch catalog.Channel, lang i18n.Lang) error {
	link, err := c.platform.CreateInviteLink(ctx, ch.ID, inviteTTL)
	if err != nil {
		return err
	}
	if err := c.platform.SendText(ctx, userID, messages.ChannelInvite(lang, ch.Name, link)); err != nil {
		return err
	}
	return c.store.UpsertChannelAccess(ctx, types.ChannelAccess{
		UserID:      userID,
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		InviteLink:  link,
	})
}

func (c *Controller) handlePermanent(ctx context.Context, userID int64, err error) {
	if telegram.Classify(err) != telegram.ErrBlocked {
		return
	}
	if err := c.store.SetUserBlocked(ctx, userID, true); err != nil {
		c.log.Error().Err(err).Int64("user_id", userID).Msg("failed to flag blocked user")
	}
}

// Revoke removes the user from every channel they still hold access to.
// Each removal is the ban-then-immediate-unban pair; rows are marked revoked
// in one batched update once the per-channel loop finishes.
func (c *Controller) Revoke(ctx context.Context, userID int64) ([]string, error) {
	rows, err := c.store.ListActiveChannelAccess(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		// no memberships to remove, e.g. every grant failed at purchase; the
		// terminal entry keeps the expired query from re-selecting the user
		// on every tick
		if err := c.store.AppendActivity(ctx, userID, types.ActionAccessRevoked, map[string]any{
			"channels": []string{},
			"reason":   "no_active_access",
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	var revoked []string
	for _, row := range rows {
		if err := c.platform.KickMember(ctx, row.ChannelID, userID); err != nil {
			c.log.Error().Err(err).Int64("user_id", userID).Int64("channel_id", row.ChannelID).Msg("revoke failed")
			continue
		}
		revoked = append(revoked, row.ChannelName)
		c.log.Info().Int64("user_id", userID).Str("channel", row.ChannelName).Msg("access revoked")
	}

	if len(revoked) == 0 {
		return nil, nil
	}

	if err := c.store.MarkChannelAccessRevoked(ctx, userID); err != nil {
		return revoked, err
	}
	if err := c.store.AppendActivity(ctx, userID, types.ActionAccessRevoked, map[string]any{
		"channels": revoked,
		"reason":   "subscription_expired",
	}); err != nil {
		c.log.Error().Err(err).Int64("user_id", userID).Msg("failed to log revocation")
	}

	// courtesy only: state is already consistent if this fails
	lang := c.userLang(ctx, userID)
	if err := c.platform.SendText(ctx, userID, messages.SubscriptionExpired(lang)); err != nil {
		c.log.Warn().Err(err).Int64("user_id", userID).Msg("revocation notice not delivered")
	}
	return revoked, nil
}
