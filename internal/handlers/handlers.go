package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/dverano/channelpass-bot/internal/broadcast"
	"github.com/dverano/channelpass-bot/internal/catalog"
	"github.com/dverano/channelpass-bot/internal/contextkeys"
	"github.com/dverano/channelpass-bot/internal/i18n"
	"github.com/dverano/channelpass-bot/internal/messages"
	"github.com/dverano/channelpass-bot/internal/stats"
	"github.com/dverano/channelpass-bot/types"
)

type Broadcaster interface {
	Send(ctx context.Context, filter broadcast.Filter, text string, media *broadcast.Media) (broadcast.Result, error)
}

type Handlers struct {
	userStore   types.UserStore
	stats       *stats.Aggregator
	broadcaster Broadcaster
	catalog     *catalog.Catalog
	identityKey string
	log         zerolog.Logger
}

func NewHandlers(userStore types.UserStore, st *stats.Aggregator, broadcaster Broadcaster, cat *catalog.Catalog, identityKey string, log zerolog.Logger) *Handlers {
	return &Handlers{
		userStore:   userStore,
		stats:       st,
		broadcaster: broadcaster,
		catalog:     cat,
		identityKey: identityKey,
		log:         log.With().Str("component", "handlers").Logger(),
	}
}

func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	switch {
	case update.CallbackQuery != nil:
		bh.HandleCallback(ctx, b, update)
	case update.Message != nil && strings.HasPrefix(commandText(update.Message), "/"):
		bh.HandleCommand(ctx, b, update)
	case update.Message != nil:
		bh.sendText(ctx, b, update.Message.Chat.ID, messages.Help(contextkeys.GetLang(ctx)))
	}
}

// commandText lets admins attach media to a broadcast: the command then
// arrives as the caption.
func commandText(msg *models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func (bh *Handlers) sendText(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: messages.ParseModeHTML,
	}); err != nil {
		bh.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (bh *Handlers) sendWithKeyboard(ctx context.Context, b *bot.Bot, chatID int64, text string, kb *models.InlineKeyboardMarkup) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   messages.ParseModeHTML,
		ReplyMarkup: kb,
	}); err != nil {
		bh.log.Warn().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

func (bh *Handlers) userLang(ctx context.Context) i18n.Lang {
	return contextkeys.GetLang(ctx)
}
