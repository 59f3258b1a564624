package telegram

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
)

// API is the subset of *bot.Bot the service talks to. Tests substitute a
// fake; production passes the real bot client.
type API interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendVideo(ctx context.Context, params *bot.SendVideoParams) (*models.Message, error)
	SendAnimation(ctx context.Context, params *bot.SendAnimationParams) (*models.Message, error)
	CreateChatInviteLink(ctx context.Context, params *bot.CreateChatInviteLinkParams) (*models.ChatInviteLink, error)
	BanChatMember(ctx context.Context, params *bot.BanChatMemberParams) (bool, error)
	UnbanChatMember(ctx context.Context, params *bot.UnbanChatMemberParams) (bool, error)
}

// ErrorKind classifies a platform error for retry and user-state decisions.
type ErrorKind int

const (
	ErrTransient ErrorKind = iota // rate limit, timeout: retry
	ErrBlocked                    // user blocked the bot: no retry, flag user
	ErrNotFound                   // chat/user gone: no retry
	ErrOther
)

func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrOther
	case errors.Is(err, bot.ErrorTooManyRequests):
		return ErrTransient
	case errors.Is(err, bot.ErrorForbidden):
		return ErrBlocked
	case errors.Is(err, bot.ErrorNotFound):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTransient
	default:
		return ErrOther
	}
}

// RetryPolicy is the single retry configuration applied to every outbound
// platform call. Only transient errors are retried.
type RetryPolicy struct {
	MaxRetries  uint64
	Base        time.Duration
	MaxInterval time.Duration
}

func DefaultRetryPolicy(maxRetries int) RetryPolicy {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return RetryPolicy{
		MaxRetries:  uint64(maxRetries),
		Base:        500 * time.Millisecond,
		MaxInterval: 15 * time.Second,
	}
}

// Do runs op under the policy. Non-transient errors abort immediately and
// are returned as-is so callers can classify them.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Base
	bo.MaxInterval = p.MaxInterval
	bo.Reset()

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if Classify(err) == ErrTransient {
			return err
		}
		return backoff.Permanent(err)
	}
	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(bo, p.MaxRetries), ctx))
}

// Client wraps the raw API with the retry policy and structured logging.
type Client struct {
	api    API
	policy RetryPolicy
	log    zerolog.Logger
}

func NewClient(api API, policy RetryPolicy, log zerolog.Logger) *Client {
	return &Client{
		api:    api,
		policy: policy,
		log:    log.With().Str("component", "telegram").Logger(),
	}
}

func (c *Client) SendMessage(ctx context.Context, params *bot.SendMessageParams) error {
	return c.policy.Do(ctx, func() error {
		_, err := c.api.SendMessage(ctx, params)
		return err
	})
}

// SendText sends an HTML-formatted direct message.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	return c.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
}

func (c *Client) SendPhoto(ctx context.Context, params *bot.SendPhotoParams) error {
	return c.policy.Do(ctx, func() error {
		_, err := c.api.SendPhoto(ctx, params)
		return err
	})
}

func (c *Client) SendVideo(ctx context.Context, params *bot.SendVideoParams) error {
	return c.policy.Do(ctx, func() error {
		_, err := c.api.SendVideo(ctx, params)
		return err
	})
}

func (c *Client) SendAnimation(ctx context.Context, params *bot.SendAnimationParams) error {
	return c.policy.Do(ctx, func() error {
		_, err := c.api.SendAnimation(ctx, params)
		return err
	})
}

// SendPhotoID sends a photo the bot has already seen, by Telegram file id.
func (c *Client) SendPhotoID(ctx context.Context, chatID int64, fileID, caption string) error {
	return c.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:    chatID,
		Photo:     &models.InputFileString{Data: fileID},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	})
}

func (c *Client) SendVideoID(ctx context.Context, chatID int64, fileID, caption string) error {
	return c.SendVideo(ctx, &bot.SendVideoParams{
		ChatID:    chatID,
		Video:     &models.InputFileString{Data: fileID},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	})
}

func (c *Client) SendAnimationID(ctx context.Context, chatID int64, fileID, caption string) error {
	return c.SendAnimation(ctx, &bot.SendAnimationParams{
		ChatID:    chatID,
		Animation: &models.InputFileString{Data: fileID},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	})
}

// CreateInviteLink requests a single-use invite link that expires after ttl.
func (c *Client) CreateInviteLink(ctx context.Context, chatID int64, ttl time.Duration) (string, error) {
	var link string
	err := c.policy.Do(ctx, func() error {
		res, err := c.api.CreateChatInviteLink(ctx, &bot.CreateChatInviteLinkParams{
			ChatID:      chatID,
			MemberLimit: 1,
			ExpireDate:  int(time.Now().Add(ttl).Unix()),
		})
		if err != nil {
			return err
		}
		link = res.InviteLink
		return nil
	})
	return link, err
}

// KickMember force-removes a member from a broadcast channel with the
// ban-then-immediate-unban sequence. Channels have no direct kick API, and
// skipping the unban would permanently lock the user out of rejoining.
func (c *Client) KickMember(ctx context.Context, chatID, userID int64) error {
	err := c.policy.Do(ctx, func() error {
		_, err := c.api.BanChatMember(ctx, &bot.BanChatMemberParams{
			ChatID: chatID,
			UserID: userID,
		})
		return err
	})
	if err != nil {
		return err
	}
	return c.policy.Do(ctx, func() error {
		_, err := c.api.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
			ChatID:       chatID,
			UserID:       userID,
			OnlyIfBanned: true,
		})
		return err
	})
}
