package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/dverano/channelpass-bot/internal/broadcast"
	"github.com/dverano/channelpass-bot/internal/messages"
	"github.com/dverano/channelpass-bot/internal/stats"
	"github.com/dverano/channelpass-bot/types"
)

const adminHelp = `🛠 <b>Admin commands</b>
/stats — business metrics
/broadcast &lt;text&gt; — message every user
/broadcast_active &lt;text&gt; — active subscribers only
/broadcast_churned &lt;text&gt; — churned subscribers only

Attach a photo, video or GIF by sending it with the command as caption.`

func (bh *Handlers) HandleAdminCommand(ctx context.Context, b *bot.Bot, update *models.Update, cmd, args string) {
	chatID := update.Message.Chat.ID

	switch cmd {
	case "/admin":
		bh.sendText(ctx, b, chatID, adminHelp)

	case "/stats":
		snap, err := bh.stats.Snapshot(ctx)
		if err != nil {
			bh.log.Error().Err(err).Msg("failed to load stats")
			bh.sendText(ctx, b, chatID, messages.ErrorDefault(bh.userLang(ctx)))
			return
		}
		bh.sendText(ctx, b, chatID, stats.FormatHTML(snap, bh.userLang(ctx)))

	case "/broadcast":
		bh.runBroadcast(ctx, b, update, broadcast.Filter{}, args)
	case "/broadcast_active":
		bh.runBroadcast(ctx, b, update, broadcast.Filter{Statuses: []types.SubStatus{types.StatusActive}}, args)
	case "/broadcast_churned":
		bh.runBroadcast(ctx, b, update, broadcast.Filter{Statuses: []types.SubStatus{types.StatusChurned}}, args)
	}
}

func (bh *Handlers) runBroadcast(ctx context.Context, b *bot.Bot, update *models.Update, filter broadcast.Filter, text string) {
	chatID := update.Message.Chat.ID

	media := mediaOf(update.Message)
	if text == "" && media == nil {
		bh.sendText(ctx, b, chatID, "Usage: /broadcast &lt;text&gt;")
		return
	}

	res, err := bh.broadcaster.Send(ctx, filter, text, media)
	if err != nil {
		if errors.Is(err, broadcast.ErrDailyLimitReached) {
			bh.sendText(ctx, b, chatID, "🚫 Daily broadcast limit reached, try again tomorrow.")
			return
		}
		bh.log.Error().Err(err).Msg("broadcast failed")
		bh.sendText(ctx, b, chatID, messages.ErrorDefault(bh.userLang(ctx)))
		return
	}

	bh.sendText(ctx, b, chatID, fmt.Sprintf(
		"📣 <b>Broadcast %s</b>\n✅ sent: %d\n⚠️ failed: %d\n🚫 skipped: %d",
		res.ID[:8], res.Sent, res.Failed, res.Skipped,
	))
}

func mediaOf(msg *models.Message) *broadcast.Media {
	switch {
	case len(msg.Photo) > 0:
		return &broadcast.Media{Kind: "photo", FileID: msg.Photo[len(msg.Photo)-1].FileID}
	case msg.Video != nil:
		return &broadcast.Media{Kind: "video", FileID: msg.Video.FileID}
	case msg.Animation != nil:
		return &broadcast.Media{Kind: "animation", FileID: msg.Animation.FileID}
	default:
		return nil
	}
}
