// Package webhook hosts the payment webhook and the read-only admin API.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dverano/channelpass-bot/internal/catalog"
	"github.com/dverano/channelpass-bot/internal/ledger"
	"github.com/dverano/channelpass-bot/types"
)

type Ledger interface {
	AddSubscriber(ctx context.Context, userID int64, planName, transactionID string, amount float64, currency string) ledger.AddOutcome
}

type Notifier interface {
	SendPaymentConfirmed(ctx context.Context, userID int64, plan string, amount float64, currency string, durationDays int, transactionID string)
	SendProcessingError(ctx context.Context, userID int64, transactionID string)
	NotifyAdminsPaymentError(ctx context.Context, userID int64, transactionID, reason string)
}

type Stats interface {
	Snapshot(ctx context.Context) (*types.Stats, error)
}

type Directory interface {
	GetUsers(ctx context.Context, language string, statuses []types.SubStatus) ([]types.UserSummary, error)
	GetAllSubscribers(ctx context.Context) ([]types.SubscriberSummary, error)
}

// RateLimiter is the per-IP fixed window gate in front of the webhook.
type RateLimiter interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (bool, error)
}

type Options struct {
	Secret       string
	RequireSig   bool
	RateWindow   time.Duration
	RateMaxCalls int
	Production   bool
}

type Server struct {
	ledger   Ledger
	notifier Notifier
	stats    Stats
	dir      Directory
	limiter  RateLimiter
	catalog  *catalog.Catalog
	opts     Options
	log      zerolog.Logger

	engine *gin.Engine
	http   *http.Server
}

func NewServer(ledger Ledger, notifier Notifier, stats Stats, dir Directory, limiter RateLimiter, cat *catalog.Catalog, opts Options, log zerolog.Logger) *Server {
	if opts.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		ledger:   ledger,
		notifier: notifier,
		stats:    stats,
		dir:      dir,
		limiter:  limiter,
		catalog:  cat,
		opts:     opts,
		log:      log.With().Str("component", "webhook").Logger(),
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.POST("/webhook", s.rateLimit(), s.handlePayment)
	engine.GET("/health", s.handleHealth)
	engine.GET("/api/stats", s.handleStats)
	engine.GET("/api/users", s.handleUsers)
	engine.GET("/api/subscribers", s.handleSubscribers)
	engine.GET("/", s.handleDashboard)

	s.engine = engine
	return s
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.log.Info().Str("addr", addr).Msg("http server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		ok, err := s.limiter.Allow(c.Request.Context(), "webhook:"+c.ClientIP(), s.opts.RateWindow, s.opts.RateMaxCalls)
		if err != nil {
			// Redis being down must not drop payments
			s.log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) handlePayment(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	sig := c.GetHeader("X-Bold-Signature")
	if sig == "" {
		sig = c.GetHeader("X-Signature")
	}
	if !VerifySignature(s.opts.Secret, body, sig, s.opts.RequireSig) {
		s.log.Warn().Str("ip", c.ClientIP()).Msg("webhook signature rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := event.Validate(); err != nil {
		s.log.Warn().Err(err).Str("transaction_id", event.ID).Msg("invalid webhook payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if event.Status != StatusCompleted {
		s.log.Info().Str("transaction_id", event.ID).Str("status", event.Status).Msg("ignoring non-completed payment")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	userID, _ := event.UserID()

	// respond before processing: Bold retries on slow responses and a retry
	// storm is worse than a short activation delay
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})

	go s.process(userID, event)
}

func (s *Server) process(userID int64, event PaymentEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	planName := event.Metadata.PlanID
	var durationDays int
	if plan, ok := s.catalog.PlanByID(event.Metadata.PlanID); ok {
		planName = plan.Name
		durationDays = plan.DurationDays
	}

	switch s.ledger.AddSubscriber(ctx, userID, planName, event.ID, event.Amount, event.Currency) {
	case ledger.OutcomeApplied:
		s.notifier.SendPaymentConfirmed(ctx, userID, planName, event.Amount, event.Currency, durationDays, event.ID)
	case ledger.OutcomeDuplicate:
		// redelivery of an applied payment; the user hears nothing extra
		s.log.Warn().Int64("user_id", userID).Str("transaction_id", event.ID).Msg("duplicate payment delivery ignored")
	case ledger.OutcomeFailed:
		s.log.Error().Int64("user_id", userID).Str("transaction_id", event.ID).Msg("payment could not be applied")
		s.notifier.SendProcessingError(ctx, userID, event.ID)
		s.notifier.NotifyAdminsPaymentError(ctx, userID, event.ID, "completed payment could not be applied")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if _, err := s.stats.Snapshot(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleStats(c *gin.Context) {
	snap, err := s.stats.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleUsers(c *gin.Context) {
	var statuses []types.SubStatus
	for _, raw := range c.QueryArray("status") {
		st, ok := types.ParseSubStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + raw})
			return
		}
		statuses = append(statuses, st)
	}

	users, err := s.dir.GetUsers(c.Request.Context(), c.Query("language"), statuses)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func (s *Server) handleSubscribers(c *gin.Context) {
	subs, err := s.dir.GetAllSubscribers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribers": subs, "count": len(subs)})
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>ChannelPass</title>
<style>
body { font-family: sans-serif; margin: 2rem; background: #111; color: #eee; }
.card { display: inline-block; margin: .5rem; padding: 1rem 2rem; background: #1d1d1d; border-radius: 8px; }
.card b { font-size: 1.6rem; display: block; }
</style>
</head>
<body>
<h1>ChannelPass</h1>
<div id="cards">loading…</div>
<script>
async function refresh() {
  const r = await fetch('/api/stats');
  if (!r.ok) return;
  const s = await r.json();
  document.getElementById('cards').innerHTML =
    '<div class="card"><b>' + s.total_users + '</b>users</div>' +
    '<div class="card"><b>' + s.active_subscribers + '</b>active</div>' +
    '<div class="card"><b>' + s.churned_subscribers + '</b>churned</div>' +
    '<div class="card"><b>$' + s.revenue_total.toFixed(2) + '</b>revenue</div>';
}
refresh();
setInterval(refresh, 30000);
</script>
</body>
</html>`

func (s *Server) handleDashboard(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(dashboardHTML))
}
