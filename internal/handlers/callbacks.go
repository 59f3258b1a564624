package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/dverano/channelpass-bot/internal/contextkeys"
	"github.com/dverano/channelpass-bot/internal/i18n"
	"github.com/dverano/channelpass-bot/internal/messages"
)

const (
	cbAgeConfirm  = "age:confirm"
	cbAgeDeny     = "age:deny"
	cbTermsAccept = "terms:accept"
	cbLangEN      = "lang:en"
	cbLangES      = "lang:es"
)

func (bh *Handlers) HandleCallback(ctx context.Context, b *bot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	chatID := chatIDOfCallback(cq)
	lang := bh.userLang(ctx)

	userID, ok := contextkeys.GetUserID(ctx)
	if !ok || chatID == 0 {
		bh.answerCallback(ctx, b, cq.ID, "")
		return
	}

	switch cq.Data {
	case cbAgeConfirm:
		if err := bh.userStore.SetAgeVerified(ctx, userID); err != nil {
			bh.log.Error().Err(err).Int64("user_id", userID).Msg("failed to set age verified")
			bh.answerCallback(ctx, b, cq.ID, messages.ErrorDefault(lang))
			return
		}
		bh.answerCallback(ctx, b, cq.ID, "")
		bh.sendWithKeyboard(ctx, b, chatID, messages.Terms(lang), termsKeyboard(lang))

	case cbAgeDeny:
		bh.answerCallback(ctx, b, cq.ID, "")
		bh.sendText(ctx, b, chatID, messages.AgeDenied(lang))

	case cbTermsAccept:
		if err := bh.userStore.SetTermsAccepted(ctx, userID); err != nil {
			bh.log.Error().Err(err).Int64("user_id", userID).Msg("failed to set terms accepted")
			bh.answerCallback(ctx, b, cq.ID, messages.ErrorDefault(lang))
			return
		}
		bh.answerCallback(ctx, b, cq.ID, "")
		bh.sendText(ctx, b, chatID, messages.StartWelcome(lang))

	case cbLangEN, cbLangES:
		newLang := i18n.EN
		if cq.Data == cbLangES {
			newLang = i18n.ES
		}
		if err := bh.userStore.TouchUser(ctx, userID, string(newLang)); err != nil {
			bh.log.Error().Err(err).Int64("user_id", userID).Msg("failed to set language")
			bh.answerCallback(ctx, b, cq.ID, messages.ErrorDefault(lang))
			return
		}
		bh.answerCallback(ctx, b, cq.ID, "")
		bh.sendText(ctx, b, chatID, messages.StartWelcome(newLang))

	default:
		bh.answerCallback(ctx, b, cq.ID, "")
	}
}

func (bh *Handlers) answerCallback(ctx context.Context, b *bot.Bot, id, text string) {
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: id,
		Text:            text,
	}); err != nil {
		bh.log.Warn().Err(err).Msg("failed to answer callback query")
	}
}

func chatIDOfCallback(cq *models.CallbackQuery) int64 {
	if cq.Message.Message != nil {
		return cq.Message.Message.Chat.ID
	}
	if cq.Message.InaccessibleMessage != nil {
		return cq.Message.InaccessibleMessage.Chat.ID
	}
	return 0
}

func ageKeyboard(lang i18n.Lang) *models.InlineKeyboardMarkup {
	yes, no := "✅ I am 18+", "❌ No"
	if lang == i18n.ES {
		yes, no = "✅ Soy mayor de 18", "❌ No"
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{{
		{Text: yes, CallbackData: cbAgeConfirm},
		{Text: no, CallbackData: cbAgeDeny},
	}}}
}

func termsKeyboard(lang i18n.Lang) *models.InlineKeyboardMarkup {
	accept := "✅ Accept"
	if lang == i18n.ES {
		accept = "✅ Aceptar"
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{{
		{Text: accept, CallbackData: cbTermsAccept},
	}}}
}

func languageKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{{
		{Text: "🇬🇧 English", CallbackData: cbLangEN},
		{Text: "🇪🇸 Español", CallbackData: cbLangES},
	}}}
}
