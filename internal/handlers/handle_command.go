package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/dverano/channelpass-bot/internal/catalog"
	"github.com/dverano/channelpass-bot/internal/contextkeys"
	"github.com/dverano/channelpass-bot/internal/messages"
	"github.com/dverano/channelpass-bot/types"
)

func (bh *Handlers) HandleCommand(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	lang := bh.userLang(ctx)

	text := commandText(update.Message)
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return
	}
	cmd := fields[0]
	if strings.Contains(cmd, "@") {
		cmd = strings.SplitN(cmd, "@", 2)[0]
	}
	args := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))

	switch cmd {
	case "/start":
		bh.handleStart(ctx, b, update)
	case "/plans":
		bh.handlePlans(ctx, b, update)
	case "/status":
		bh.handleStatus(ctx, b, update)
	case "/help":
		bh.sendText(ctx, b, chatID, messages.Help(lang))
	case "/lang":
		bh.sendWithKeyboard(ctx, b, chatID, messages.ChooseLanguage(), languageKeyboard())
	case "/admin", "/stats", "/broadcast", "/broadcast_active", "/broadcast_churned":
		if !contextkeys.IsAdmin(ctx) {
			bh.sendText(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
			return
		}
		bh.HandleAdminCommand(ctx, b, update, cmd, args)
	default:
		bh.sendText(ctx, b, chatID, messages.ErrorUnknownCommand(lang))
	}
}

func (bh *Handlers) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	lang := bh.userLang(ctx)

	userID, ok := contextkeys.GetUserID(ctx)
	if !ok {
		bh.sendText(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}

	status, err := bh.userStore.GetUserStatus(ctx, userID)
	if err != nil {
		bh.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load user status")
		bh.sendText(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}

	switch {
	case !status.AgeVerified:
		bh.sendWithKeyboard(ctx, b, chatID, messages.AgeGate(lang), ageKeyboard(lang))
	case !status.TermsAccepted:
		bh.sendWithKeyboard(ctx, b, chatID, messages.Terms(lang), termsKeyboard(lang))
	default:
		bh.sendText(ctx, b, chatID, messages.StartWelcome(lang))
	}
}

func (bh *Handlers) handlePlans(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	lang := bh.userLang(ctx)

	userID, ok := contextkeys.GetUserID(ctx)
	if !ok {
		bh.sendText(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}

	var lines []string
	var rows [][]models.InlineKeyboardButton
	for _, plan := range bh.catalog.Plans() {
		lines = append(lines, messages.PlanLine(lang, plan.Name, plan.PriceUSD, plan.DurationDays, len(plan.ChannelKeys)))
		rows = append(rows, []models.InlineKeyboardButton{{
			Text: fmt.Sprintf("%s — $%.2f", plan.Name, plan.PriceUSD),
			URL:  catalog.PaymentLink(bh.identityKey, plan, userID),
		}})
	}

	bh.sendWithKeyboard(ctx, b, chatID, strings.Join(lines, "\n\n"), &models.InlineKeyboardMarkup{
		InlineKeyboard: rows,
	})
}

func (bh *Handlers) handleStatus(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	lang := bh.userLang(ctx)

	userID, ok := contextkeys.GetUserID(ctx)
	if !ok {
		bh.sendText(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}

	status, err := bh.userStore.GetUserStatus(ctx, userID)
	if err != nil {
		bh.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load user status")
		bh.sendText(ctx, b, chatID, messages.ErrorDefault(lang))
		return
	}

	if status.Status == types.StatusActive && status.ExpiresAt != nil {
		bh.sendText(ctx, b, chatID, messages.StatusActive(lang, status.Plan, *status.ExpiresAt))
		return
	}
	bh.sendText(ctx, b, chatID, messages.StatusInactive(lang))
}
