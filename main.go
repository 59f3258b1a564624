package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"

	"github.com/dverano/channelpass-bot/internal/access"
	"github.com/dverano/channelpass-bot/internal/broadcast"
	"github.com/dverano/channelpass-bot/internal/catalog"
	"github.com/dverano/channelpass-bot/internal/config"
	"github.com/dverano/channelpass-bot/internal/handlers"
	"github.com/dverano/channelpass-bot/internal/ledger"
	"github.com/dverano/channelpass-bot/internal/middleware"
	"github.com/dverano/channelpass-bot/internal/notify"
	"github.com/dverano/channelpass-bot/internal/scheduler"
	"github.com/dverano/channelpass-bot/internal/stats"
	"github.com/dverano/channelpass-bot/internal/telegram"
	"github.com/dverano/channelpass-bot/internal/webhook"
	"github.com/dverano/channelpass-bot/store"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load("config.env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if !cfg.IsProduction() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cat, err := catalog.Default(cfg.ChannelIDs)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid plan catalog")
	}

	rdb, err := store.NewRedisClient(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB, "channelpass")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rdb.Close()
	limiter := store.NewRedisLimiter(rdb)

	pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pgStore.Close()

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	b, err := bot.New(cfg.BotToken, bot.WithHTTPClient(50*time.Second, httpClient))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create bot")
	}

	tg := telegram.NewClient(b, telegram.DefaultRetryPolicy(cfg.MaxRetries), log)

	accessCtl := access.NewController(tg, pgStore, cat, cfg.InviteDelay, log)
	notifier := notify.New(tg, pgStore, cfg.AdminIDs, log)
	ldg := ledger.New(pgStore, accessCtl, notifier, cat, cfg.ReminderWindow(), log)
	aggregator := stats.New(pgStore)

	isBlocked := func(err error) bool { return telegram.Classify(err) == telegram.ErrBlocked }
	caster := broadcast.New(tg, pgStore, limiter, isBlocked, cfg.BroadcastDelay, cfg.MaxBroadcastPerDay, log)

	sched := scheduler.NewScheduler(ldg, scheduler.Config{
		Interval:     cfg.ReconcileInterval,
		ErrorBackoff: cfg.ErrorBackoff,
	}, log)
	sched.Start()
	defer sched.Stop()

	srv := webhook.NewServer(ldg, notifier, aggregator, pgStore, limiter, cat, webhook.Options{
		Secret:       cfg.WebhookSecret,
		RequireSig:   cfg.RequireSig,
		RateWindow:   cfg.WebhookRateWindow,
		RateMaxCalls: cfg.WebhookRateMaxCalls,
		Production:   cfg.IsProduction(),
	}, log)
	go func() {
		if err := srv.Run(ctx, cfg.HTTPAddr()); err != nil {
			log.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	h := handlers.NewHandlers(pgStore, aggregator, caster, cat, cfg.BoldIdentityKey, log)
	mw := middleware.New(pgStore, cfg.IsAdmin, log)

	handlerChain := mw.TrackUserMiddleware(h.MainHandler)

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, handlerChain)
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, handlerChain)

	log.Info().Str("env", cfg.Environment).Msg("bot started")
	b.Start(ctx)
}
