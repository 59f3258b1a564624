package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is loaded once at startup from the environment. Defaults mirror
// production behavior; only BOT_TOKEN and BOLD_IDENTITY_KEY are mandatory.
type Config struct {
	BotToken        string  `envconfig:"BOT_TOKEN" required:"true"`
	AdminIDs        []int64 `envconfig:"ADMIN_IDS"`
	CustomerChatID  int64   `envconfig:"CUSTOMER_SERVICE_CHAT_ID"`
	BoldIdentityKey string  `envconfig:"BOLD_IDENTITY_KEY" required:"true"`
	WebhookSecret   string  `envconfig:"BOLD_WEBHOOK_SECRET"`
	RequireSig      bool    `envconfig:"REQUIRE_WEBHOOK_SIGNATURE"`

	DatabaseURL string `envconfig:"DATABASE_URL"`

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     string `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB"`

	HTTPHost string `envconfig:"ADMIN_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"PORT" default:"8000"`

	ReminderDays       int           `envconfig:"REMINDER_DAYS_BEFORE_EXPIRY" default:"3"`
	ReconcileInterval  time.Duration `envconfig:"RECONCILE_INTERVAL" default:"1h"`
	ErrorBackoff       time.Duration `envconfig:"RECONCILE_ERROR_BACKOFF" default:"5m"`
	InviteDelay        time.Duration `envconfig:"INVITE_DELAY" default:"100ms"`
	BroadcastDelay     time.Duration `envconfig:"BROADCAST_DELAY" default:"50ms"`
	MaxRetries         int           `envconfig:"MAX_RETRIES" default:"3"`
	MaxBroadcastPerDay int           `envconfig:"MAX_BROADCAST_PER_DAY" default:"12"`

	WebhookRateWindow   time.Duration `envconfig:"WEBHOOK_RATE_WINDOW" default:"1m"`
	WebhookRateMaxCalls int           `envconfig:"WEBHOOK_RATE_MAX_CALLS" default:"100"`

	// ChannelIDs overrides catalog channel chat ids, e.g.
	// CHANNEL_IDS="channel_1:-1002068120499,channel_2:-1001234567890".
	ChannelIDs map[string]int64 `envconfig:"CHANNEL_IDS"`

	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// Load reads an optional .env file, then the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.ReminderDays <= 0 {
		cfg.ReminderDays = 3
	}
	return &cfg, nil
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}

func (c *Config) ReminderWindow() time.Duration {
	return time.Duration(c.ReminderDays) * 24 * time.Hour
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
