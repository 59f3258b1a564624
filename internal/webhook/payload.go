package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
)

// PaymentEvent is the payload Bold.co posts on checkout completion. Metadata
// round-trips the values baked into the payment link.
type PaymentEvent struct {
	ID       string          `json:"id"`
	Status   string          `json:"status"`
	Amount   float64         `json:"amount"`
	Currency string          `json:"currency"`
	Metadata PaymentMetadata `json:"metadata"`
}

type PaymentMetadata struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
}

const StatusCompleted = "completed"

var (
	ErrMissingID     = errors.New("webhook: missing transaction id")
	ErrMissingStatus = errors.New("webhook: missing status")
	ErrBadUserID     = errors.New("webhook: metadata.user_id is not an integer")
	ErrMissingPlanID = errors.New("webhook: missing metadata.plan_id")
)

// Validate checks the fields needed to apply a payment. Status filtering is
// the caller's concern; an incomplete event is still a valid event.
func (e *PaymentEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(e.Status) == "" {
		return ErrMissingStatus
	}
	if _, err := e.UserID(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Metadata.PlanID) == "" {
		return ErrMissingPlanID
	}
	return nil
}

func (e *PaymentEvent) UserID() (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(e.Metadata.UserID), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrBadUserID
	}
	return id, nil
}

// VerifySignature checks the HMAC-SHA256 of the raw body against the header
// value, tolerating an optional "sha256=" prefix. With no secret configured
// the check passes unless require is set.
func VerifySignature(secret string, body []byte, header string, require bool) bool {
	if secret == "" {
		return !require
	}
	sig := strings.TrimPrefix(strings.TrimSpace(header), "sha256=")
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sig)))
}
