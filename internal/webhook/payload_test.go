package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"tx-1"}`)
	secret := "topsecret"
	good := sign(secret, body)

	tests := []struct {
		name    string
		secret  string
		header  string
		require bool
		want    bool
	}{
		{"valid", secret, good, true, true},
		{"valid with prefix", secret, "sha256=" + good, true, true},
		{"wrong signature", secret, sign("other", body), true, false},
		{"empty header", secret, "", true, false},
		{"no secret, not required", "", "", false, true},
		{"no secret, required", "", "", true, false},
		{"uppercase prefix rejected", secret, "SHA256=" + good, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifySignature(tt.secret, body, tt.header, tt.require))
		})
	}
}

func TestPaymentEventValidate(t *testing.T) {
	valid := func() PaymentEvent {
		return PaymentEvent{
			ID:       "tx-1",
			Status:   "completed",
			Amount:   24.99,
			Currency: "USD",
			Metadata: PaymentMetadata{UserID: "12345", PlanID: "monthly"},
		}
	}

	t.Run("valid", func(t *testing.T) {
		e := valid()
		require.NoError(t, e.Validate())
		id, err := e.UserID()
		require.NoError(t, err)
		assert.EqualValues(t, 12345, id)
	})

	t.Run("missing id", func(t *testing.T) {
		e := valid()
		e.ID = "  "
		assert.ErrorIs(t, e.Validate(), ErrMissingID)
	})

	t.Run("missing status", func(t *testing.T) {
		e := valid()
		e.Status = ""
		assert.ErrorIs(t, e.Validate(), ErrMissingStatus)
	})

	t.Run("non-numeric user id", func(t *testing.T) {
		e := valid()
		e.Metadata.UserID = "abc"
		assert.ErrorIs(t, e.Validate(), ErrBadUserID)
	})

	t.Run("negative user id", func(t *testing.T) {
		e := valid()
		e.Metadata.UserID = "-5"
		assert.ErrorIs(t, e.Validate(), ErrBadUserID)
	})

	t.Run("missing plan id", func(t *testing.T) {
		e := valid()
		e.Metadata.PlanID = ""
		assert.ErrorIs(t, e.Validate(), ErrMissingPlanID)
	})
}
