package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dverano/channelpass-bot/types"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

// ErrAlreadyProcessed marks a payment whose transaction id was seen before.
// Callers treat it as a successful no-op, not a failure.
var ErrAlreadyProcessed = errors.New("payment already processed")

const uniqueViolation = "23505"

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = buildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func buildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "channelpass"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "channelpass"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

func (s *PostgresStore) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDB(*s.pool.Config().ConnConfig)
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ---- users ----

func (s *PostgresStore) UpsertUser(ctx context.Context, user types.User) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO users (user_id, username, first_name, last_name, language, last_seen)
VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'en'), NOW())
ON CONFLICT (user_id) DO UPDATE SET
  username = EXCLUDED.username,
  first_name = EXCLUDED.first_name,
  last_name = EXCLUDED.last_name,
  language = COALESCE(NULLIF(users.language, ''), EXCLUDED.language),
  last_seen = NOW(),
  updated_at = NOW();
`, user.UserID, strings.TrimSpace(user.Username), strings.TrimSpace(user.FirstName), strings.TrimSpace(user.LastName), strings.TrimSpace(user.Language))
	return err
}

func (s *PostgresStore) TouchUser(ctx context.Context, userID int64, language string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO users (user_id, language, last_seen)
VALUES ($1, COALESCE(NULLIF($2, ''), 'en'), NOW())
ON CONFLICT (user_id) DO UPDATE SET
  language = COALESCE(NULLIF($2, ''), users.language),
  last_seen = NOW(),
  updated_at = NOW();
`, userID, strings.TrimSpace(language))
	return err
}

func (s *PostgresStore) SetUserBlocked(ctx context.Context, userID int64, blocked bool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
UPDATE users SET is_blocked = $2, updated_at = NOW() WHERE user_id = $1;
`, userID, blocked)
	return err
}

func (s *PostgresStore) SetAgeVerified(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
UPDATE users SET age_verified = TRUE, updated_at = NOW() WHERE user_id = $1;
`, userID)
	return err
}

func (s *PostgresStore) SetTermsAccepted(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
UPDATE users SET terms_accepted = TRUE, terms_accepted_at = NOW(), updated_at = NOW() WHERE user_id = $1;
`, userID)
	return err
}

func (s *PostgresStore) GetUserStatus(ctx context.Context, userID int64) (*types.UserStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var st types.UserStatus
	var plan *string
	var expiresAt *time.Time
	err := s.pool.QueryRow(ctx, `
SELECT u.user_id, u.language, u.age_verified, u.terms_accepted, u.is_blocked,
       s.plan, s.expires_at,
       CASE
         WHEN s.expires_at IS NULL THEN 'never'
         WHEN s.expires_at > NOW() THEN 'active'
         ELSE 'churned'
       END
FROM users u
LEFT JOIN subscribers s ON u.user_id = s.user_id
WHERE u.user_id = $1
`, userID).Scan(&st.UserID, &st.Language, &st.AgeVerified, &st.TermsAccepted, &st.IsBlocked, &plan, &expiresAt, &st.Status)
	if err != nil {
		return nil, err
	}
	if plan != nil {
		st.Plan = *plan
	}
	st.ExpiresAt = expiresAt
	return &st, nil
}

func (s *PostgresStore) GetUsers(ctx context.Context, language string, statuses []types.SubStatus) ([]types.UserSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `
SELECT u.user_id, u.language,
       CASE
         WHEN s.expires_at IS NULL THEN 'never'
         WHEN s.expires_at > NOW() THEN 'active'
         ELSE 'churned'
       END AS status
FROM users u
LEFT JOIN subscribers s ON u.user_id = s.user_id
WHERE NOT u.is_blocked`
	args := []any{}
	if language = strings.TrimSpace(language); language != "" {
		args = append(args, language)
		query += fmt.Sprintf(" AND u.language = $%d", len(args))
	}
	if len(statuses) > 0 {
		in := make([]string, 0, len(statuses))
		for _, st := range statuses {
			args = append(args, string(st))
			in = append(in, fmt.Sprintf("$%d", len(args)))
		}
		query += fmt.Sprintf(` AND (CASE
         WHEN s.expires_at IS NULL THEN 'never'
         WHEN s.expires_at > NOW() THEN 'active'
         ELSE 'churned'
       END) IN (%s)`, strings.Join(in, ", "))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.UserSummary
	for rows.Next() {
		var u types.UserSummary
		if err := rows.Scan(&u.UserID, &u.Language, &u.Status); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ---- subscriptions ----

// nextExpiry decides what a payment does to the expiry clock: an active row
// extends from its current expiry so no paid-for time is lost, anything else
// starts fresh from now.
func nextExpiry(now time.Time, current *time.Time, d time.Duration) (expiry time.Time, extended bool) {
	if current != nil && current.After(now) {
		return current.Add(d), true
	}
	return now.Add(d), false
}

// ActivateOrExtendSubscription applies one payment to the subscriber row in a
// single transaction. The row lock serializes concurrent payments for the
// same user, and the payments insert rides the same transaction so a failed
// activation leaves no dedup record behind: the processor's redelivery gets
// a clean retry instead of an "already processed" swallow.
func (s *PostgresStore) ActivateOrExtendSubscription(ctx context.Context, userID int64, plan string, duration time.Duration, transactionID string, amount float64, currency string) (*types.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	var txID *string
	if transactionID = strings.TrimSpace(transactionID); transactionID != "" {
		txID = &transactionID
	}

	if txID != nil {
		tag, err := tx.Exec(ctx, `
INSERT INTO payments (user_id, transaction_id, plan, amount, currency)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (transaction_id) DO NOTHING
`, userID, *txID, plan, amount, strings.TrimSpace(currency))
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 0 {
			return nil, ErrAlreadyProcessed
		}
	}

	var currentExpires *time.Time
	var currentStart *time.Time
	err = tx.QueryRow(ctx, `
SELECT start_date, expires_at
FROM subscribers
WHERE user_id = $1
FOR UPDATE
`, userID).Scan(&currentStart, &currentExpires)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	sub := &types.Subscription{
		UserID:          userID,
		Plan:            plan,
		TransactionID:   txID,
		PaymentAmount:   amount,
		PaymentCurrency: currency,
		UpdatedAt:       now,
	}

	newExpires, extended := nextExpiry(now, currentExpires, duration)
	if extended {
		// reminder re-arms on every extension so a renewed user is eligible
		// for the next reminder cycle
		_, err = tx.Exec(ctx, `
UPDATE subscribers SET
  plan = $2,
  expires_at = $3,
  transaction_id = COALESCE($4, transaction_id),
  payment_amount = $5,
  payment_currency = $6,
  reminder_sent = FALSE,
  updated_at = NOW()
WHERE user_id = $1
`, userID, plan, newExpires, txID, amount, currency)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrAlreadyProcessed
			}
			return nil, err
		}
		sub.StartDate = *currentStart
		sub.ExpiresAt = newExpires
	} else {
		_, err = tx.Exec(ctx, `
INSERT INTO subscribers (user_id, plan, start_date, expires_at, transaction_id, payment_amount, payment_currency, reminder_sent)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
ON CONFLICT (user_id) DO UPDATE SET
  plan = EXCLUDED.plan,
  start_date = EXCLUDED.start_date,
  expires_at = EXCLUDED.expires_at,
  transaction_id = EXCLUDED.transaction_id,
  payment_amount = EXCLUDED.payment_amount,
  payment_currency = EXCLUDED.payment_currency,
  reminder_sent = FALSE,
  updated_at = NOW()
`, userID, plan, now, newExpires, txID, amount, currency)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrAlreadyProcessed
			}
			return nil, err
		}
		sub.StartDate = now
		sub.ExpiresAt = newExpires
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sub, nil
}

// ListExpiredNeedingRevoke returns expired subscribers that do not yet have
// an access_revoked log entry newer than their expiry, so reconciliation
// does not re-process the same user every tick.
func (s *PostgresStore) ListExpiredNeedingRevoke(ctx context.Context) ([]types.ExpiredSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT s.user_id, s.plan, s.expires_at
FROM subscribers s
WHERE s.expires_at <= NOW()
  AND NOT EXISTS (
    SELECT 1 FROM activity_logs al
    WHERE al.user_id = s.user_id
      AND al.action = 'access_revoked'
      AND al.timestamp > s.expires_at
  )
ORDER BY s.expires_at
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ExpiredSubscription
	for rows.Next() {
		var e types.ExpiredSubscription
		if err := rows.Scan(&e.UserID, &e.Plan, &e.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListReminderDue(ctx context.Context, window time.Duration) ([]types.ReminderDue, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	until := time.Now().UTC().Add(window)
	rows, err := s.pool.Query(ctx, `
SELECT user_id, plan, expires_at
FROM subscribers
WHERE expires_at > NOW()
  AND expires_at <= $1
  AND reminder_sent = FALSE
ORDER BY expires_at
`, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ReminderDue
	for rows.Next() {
		var r types.ReminderDue
		if err := rows.Scan(&r.UserID, &r.Plan, &r.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkReminderSent(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
UPDATE subscribers SET reminder_sent = TRUE, updated_at = NOW() WHERE user_id = $1;
`, userID)
	return err
}

func (s *PostgresStore) GetAllSubscribers(ctx context.Context) ([]types.SubscriberSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `SELECT user_id, plan, expires_at FROM subscribers ORDER BY expires_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.SubscriberSummary
	for rows.Next() {
		var sub types.SubscriberSummary
		if err := rows.Scan(&sub.UserID, &sub.Plan, &sub.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ---- channel access ----

func (s *PostgresStore) UpsertChannelAccess(ctx context.Context, access types.ChannelAccess) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
INSERT INTO channel_access (user_id, channel_id, channel_name, granted_at, invite_link, access_count)
VALUES ($1, $2, $3, NOW(), $4, 1)
ON CONFLICT (user_id, channel_id) DO UPDATE SET
  granted_at = NOW(),
  revoked_at = NULL,
  channel_name = EXCLUDED.channel_name,
  invite_link = EXCLUDED.invite_link,
  access_count = channel_access.access_count + 1;
`, access.UserID, access.ChannelID, strings.TrimSpace(access.ChannelName), strings.TrimSpace(access.InviteLink))
	return err
}

func (s *PostgresStore) ListActiveChannelAccess(ctx context.Context, userID int64) ([]types.ChannelAccess, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := s.pool.Query(ctx, `
SELECT user_id, channel_id, channel_name, granted_at, invite_link, access_count
FROM channel_access
WHERE user_id = $1 AND revoked_at IS NULL
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.ChannelAccess
	for rows.Next() {
		var a types.ChannelAccess
		if err := rows.Scan(&a.UserID, &a.ChannelID, &a.ChannelName, &a.GrantedAt, &a.InviteLink, &a.AccessCount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkChannelAccessRevoked(ctx context.Context, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
UPDATE channel_access SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL;
`, userID)
	return err
}

// ---- activity log ----

func (s *PostgresStore) AppendActivity(ctx context.Context, userID int64, action types.Action, details map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var payload []byte
	if details != nil {
		var err error
		payload, err = json.Marshal(details)
		if err != nil {
			return err
		}
	}
	// system-level entries (broadcast summaries) carry no user
	var uid any
	if userID != 0 {
		uid = userID
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO activity_logs (user_id, action, details)
VALUES ($1, $2, $3);
`, uid, string(action), payload)
	return err
}

// ---- stats ----

func (s *PostgresStore) GetStats(ctx context.Context) (*types.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st := &types.Stats{
		RevenueByPlan: map[string]float64{},
		RevenueByLang: map[string]float64{},
		GeneratedAt:   time.Now().UTC(),
	}

	err := s.pool.QueryRow(ctx, `
SELECT
  (SELECT COUNT(*) FROM users),
  (SELECT COUNT(*) FROM subscribers),
  (SELECT COUNT(*) FROM subscribers WHERE expires_at > NOW()),
  (SELECT COUNT(*) FROM subscribers WHERE expires_at <= NOW()),
  (SELECT COUNT(*) FROM users u WHERE NOT EXISTS (SELECT 1 FROM subscribers s WHERE s.user_id = u.user_id)),
  (SELECT COALESCE(SUM(amount), 0) FROM payments)
`).Scan(&st.TotalUsers, &st.TotalSubs, &st.ActiveSubs, &st.ChurnedSubs, &st.NeverSubbed, &st.RevenueTotal)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
SELECT plan, COALESCE(SUM(amount), 0) FROM payments GROUP BY plan
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var plan string
		var sum float64
		if err := rows.Scan(&plan, &sum); err != nil {
			return nil, err
		}
		st.RevenueByPlan[plan] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	langRows, err := s.pool.Query(ctx, `
SELECT COALESCE(u.language, 'en'), COALESCE(SUM(p.amount), 0)
FROM payments p
LEFT JOIN users u ON u.user_id = p.user_id
GROUP BY u.language
`)
	if err != nil {
		return nil, err
	}
	defer langRows.Close()
	for langRows.Next() {
		var lang string
		var sum float64
		if err := langRows.Scan(&lang, &sum); err != nil {
			return nil, err
		}
		st.RevenueByLang[lang] = sum
	}
	return st, langRows.Err()
}
