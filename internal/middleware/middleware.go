package middleware

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/dverano/channelpass-bot/internal/contextkeys"
	"github.com/dverano/channelpass-bot/internal/i18n"
	"github.com/dverano/channelpass-bot/types"
)

type Middlewares struct {
	store   types.UserStore
	isAdmin func(int64) bool
	log     zerolog.Logger
}

func New(store types.UserStore, isAdmin func(int64) bool, log zerolog.Logger) *Middlewares {
	return &Middlewares{
		store:   store,
		isAdmin: isAdmin,
		log:     log.With().Str("component", "middleware").Logger(),
	}
}

// TrackUserMiddleware upserts the sender on every update and injects the
// user id, language and admin flag into the context.
func (m *Middlewares) TrackUserMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		from := senderOf(update)
		if from == nil {
			next(ctx, b, update)
			return
		}

		user := types.User{
			UserID:    from.ID,
			Username:  from.Username,
			FirstName: from.FirstName,
			LastName:  from.LastName,
			Language:  string(i18n.FromLanguageCode(from.LanguageCode)),
		}
		if err := m.store.UpsertUser(ctx, user); err != nil {
			// tracking failure must not eat the update
			m.log.Warn().Err(err).Int64("user_id", from.ID).Msg("failed to upsert user")
		}

		lang := i18n.FromLanguageCode(from.LanguageCode)
		if status, err := m.store.GetUserStatus(ctx, from.ID); err == nil && status != nil && status.Language != "" {
			lang = i18n.FromLanguageCode(status.Language)
		}

		ctx = contextkeys.WithUserID(ctx, from.ID)
		ctx = contextkeys.WithLang(ctx, lang)
		ctx = contextkeys.WithAdmin(ctx, m.isAdmin(from.ID))
		next(ctx, b, update)
	}
}

func senderOf(update *models.Update) *models.User {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From
	default:
		return nil
	}
}
