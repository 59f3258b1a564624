package types

import (
	"context"
	"time"
)

type User struct {
	UserID          int64
	Username        string
	FirstName       string
	LastName        string
	Language        string
	AgeVerified     bool
	TermsAccepted   bool
	TermsAcceptedAt *time.Time
	LastSeen        time.Time
	IsBlocked       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Subscription struct {
	UserID          int64
	Plan            string
	StartDate       time.Time
	ExpiresAt       time.Time
	TransactionID   *string
	PaymentAmount   float64
	PaymentCurrency string
	ReminderSent    bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ChannelAccess struct {
	UserID      int64
	ChannelID   int64
	ChannelName string
	GrantedAt   time.Time
	RevokedAt   *time.Time
	InviteLink  string
	AccessCount int
}

// UserStatus is the read model consumed by bot dialogs and the admin API.
type UserStatus struct {
	UserID        int64      `json:"user_id"`
	Language      string     `json:"language"`
	AgeVerified   bool       `json:"age_verified"`
	TermsAccepted bool       `json:"terms_accepted"`
	IsBlocked     bool       `json:"is_blocked"`
	Status        SubStatus  `json:"status"`
	Plan          string     `json:"plan,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

type UserSummary struct {
	UserID   int64     `json:"user_id"`
	Language string    `json:"language"`
	Status   SubStatus `json:"status"`
}

type SubscriberSummary struct {
	UserID    int64     `json:"user_id"`
	Plan      string    `json:"plan"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ExpiredSubscription struct {
	UserID    int64
	Plan      string
	ExpiresAt time.Time
}

type ReminderDue struct {
	UserID    int64
	Plan      string
	ExpiresAt time.Time
}

type Stats struct {
	TotalUsers    int64              `json:"total_users"`
	TotalSubs     int64              `json:"total_subscribers"`
	ActiveSubs    int64              `json:"active_subscribers"`
	ChurnedSubs   int64              `json:"churned_subscribers"`
	NeverSubbed   int64              `json:"never_subscribed"`
	RevenueTotal  float64            `json:"revenue_total"`
	RevenueByPlan map[string]float64 `json:"revenue_by_plan"`
	RevenueByLang map[string]float64 `json:"revenue_by_language"`
	GeneratedAt   time.Time          `json:"generated_at"`
}

type UserStore interface {
	UpsertUser(ctx context.Context, user User) error
	TouchUser(ctx context.Context, userID int64, language string) error
	SetUserBlocked(ctx context.Context, userID int64, blocked bool) error
	SetAgeVerified(ctx context.Context, userID int64) error
	SetTermsAccepted(ctx context.Context, userID int64) error
	GetUserStatus(ctx context.Context, userID int64) (*UserStatus, error)
	GetUsers(ctx context.Context, language string, statuses []SubStatus) ([]UserSummary, error)
}

// SubscriberStore is the write surface owned by the subscription ledger.
// No other component mutates expires_at.
type SubscriberStore interface {
	ActivateOrExtendSubscription(ctx context.Context, userID int64, plan string, duration time.Duration, transactionID string, amount float64, currency string) (*Subscription, error)
	ListExpiredNeedingRevoke(ctx context.Context) ([]ExpiredSubscription, error)
	ListReminderDue(ctx context.Context, window time.Duration) ([]ReminderDue, error)
	MarkReminderSent(ctx context.Context, userID int64) error
	GetAllSubscribers(ctx context.Context) ([]SubscriberSummary, error)
}

// AccessStore is the write surface owned by the channel access controller.
type AccessStore interface {
	UpsertChannelAccess(ctx context.Context, access ChannelAccess) error
	ListActiveChannelAccess(ctx context.Context, userID int64) ([]ChannelAccess, error)
	MarkChannelAccessRevoked(ctx context.Context, userID int64) error
}

type ActivityStore interface {
	AppendActivity(ctx context.Context, userID int64, action Action, details map[string]any) error
}

type StatsStore interface {
	GetStats(ctx context.Context) (*Stats, error)
}
