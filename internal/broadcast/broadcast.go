// Package broadcast sends bulk messages to filtered slices of the user base.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dverano/channelpass-bot/types"
)

// Media carries an optional attachment for a broadcast. Kind is one of
// "text", "photo", "video", "animation"; FileID is a Telegram file id
// already known to the bot.
type Media struct {
	Kind   string
	FileID string
}

// Filter narrows the audience. Empty Language means all languages, empty
// Statuses means every status.
type Filter struct {
	Language string
	Statuses []types.SubStatus
}

// Result summarizes a finished broadcast.
type Result struct {
	ID      string
	Sent    int
	Failed  int
	Skipped int
}

type Platform interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhotoID(ctx context.Context, chatID int64, fileID, caption string) error
	SendVideoID(ctx context.Context, chatID int64, fileID, caption string) error
	SendAnimationID(ctx context.Context, chatID int64, fileID, caption string) error
}

type Store interface {
	GetUsers(ctx context.Context, language string, statuses []types.SubStatus) ([]types.UserSummary, error)
	SetUserBlocked(ctx context.Context, userID int64, blocked bool) error
	AppendActivity(ctx context.Context, userID int64, action types.Action, details map[string]any) error
}

// Limiter enforces the per-day broadcast cap.
type Limiter interface {
	IncrDaily(ctx context.Context, name string) (int64, error)
}

// IsBlocked reports whether a send failed because the user blocked the bot.
type IsBlocked func(err error) bool

var ErrDailyLimitReached = fmt.Errorf("broadcast: daily limit reached")

type Broadcaster struct {
	platform  Platform
	store     Store
	limiter   Limiter
	isBlocked IsBlocked
	delay     time.Duration
	maxPerDay int64
	log       zerolog.Logger
}

func New(platform Platform, store Store, limiter Limiter, isBlocked IsBlocked, delay time.Duration, maxPerDay int, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		platform:  platform,
		store:     store,
		limiter:   limiter,
		isBlocked: isBlocked,
		delay:     delay,
		maxPerDay: int64(maxPerDay),
		log:       log.With().Str("component", "broadcast").Logger(),
	}
}

// Send delivers text (with optional media) to every user matching the
// filter. One user's failure never stops the run; users who blocked the bot
// are flagged and skipped from future broadcasts.
func (b *Broadcaster) Send(ctx context.Context, filter Filter, text string, media *Media) (Result, error) {
	res := Result{ID: uuid.New().String()}

	count, err := b.limiter.IncrDaily(ctx, "broadcast")
	if err != nil {
		return res, fmt.Errorf("broadcast: daily counter: %w", err)
	}
	if count > b.maxPerDay {
		b.log.Warn().Int64("count", count).Int64("max", b.maxPerDay).Msg("daily broadcast limit reached")
		return res, ErrDailyLimitReached
	}

	users, err := b.store.GetUsers(ctx, filter.Language, filter.Statuses)
	if err != nil {
		return res, fmt.Errorf("broadcast: list users: %w", err)
	}

	b.log.Info().Str("broadcast_id", res.ID).Int("audience", len(users)).Msg("broadcast started")

	for i, u := range users {
		if i > 0 && b.delay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(b.delay):
			}
		}

		if err := b.sendOne(ctx, u.UserID, text, media); err != nil {
			if b.isBlocked != nil && b.isBlocked(err) {
				if serr := b.store.SetUserBlocked(ctx, u.UserID, true); serr != nil {
					b.log.Warn().Err(serr).Int64("user_id", u.UserID).Msg("failed to flag blocked user")
				}
				res.Skipped++
				continue
			}
			b.log.Warn().Err(err).Int64("user_id", u.UserID).Str("broadcast_id", res.ID).Msg("broadcast send failed")
			res.Failed++
			continue
		}
		res.Sent++
	}

	if err := b.store.AppendActivity(ctx, 0, types.ActionBroadcastSent, map[string]any{
		"broadcast_id": res.ID,
		"sent":         res.Sent,
		"failed":       res.Failed,
		"skipped":      res.Skipped,
	}); err != nil {
		b.log.Warn().Err(err).Str("broadcast_id", res.ID).Msg("failed to log broadcast")
	}

	b.log.Info().Str("broadcast_id", res.ID).Int("sent", res.Sent).Int("failed", res.Failed).Int("skipped", res.Skipped).Msg("broadcast finished")
	return res, nil
}

func (b *Broadcaster) sendOne(ctx context.Context, userID int64, text string, media *Media) error {
	if media == nil || media.Kind == "" || media.Kind == "text" {
		return b.platform.SendText(ctx, userID, text)
	}
	switch media.Kind {
	case "photo":
		return b.platform.SendPhotoID(ctx, userID, media.FileID, text)
	case "video":
		return b.platform.SendVideoID(ctx, userID, media.FileID, text)
	case "animation":
		return b.platform.SendAnimationID(ctx, userID, media.FileID, text)
	default:
		return fmt.Errorf("broadcast: unsupported media kind %q", media.Kind)
	}
}
