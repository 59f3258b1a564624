package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(retries uint64) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, Base: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrTransient, Classify(bot.ErrorTooManyRequests))
	assert.Equal(t, ErrTransient, Classify(context.DeadlineExceeded))
	assert.Equal(t, ErrBlocked, Classify(bot.ErrorForbidden))
	assert.Equal(t, ErrNotFound, Classify(bot.ErrorNotFound))
	assert.Equal(t, ErrOther, Classify(errors.New("something else")))
}

func TestRetryPolicyRetriesTransient(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return bot.ErrorTooManyRequests
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyBoundedAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy(2).Do(context.Background(), func() error {
		calls++
		return bot.ErrorTooManyRequests
	})
	require.Error(t, err)
	// initial attempt plus two retries
	assert.Equal(t, 3, calls)
}

func TestRetryPolicyPermanentNotRetried(t *testing.T) {
	calls := 0
	err := fastPolicy(3).Do(context.Background(), func() error {
		calls++
		return bot.ErrorForbidden
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, bot.ErrorForbidden))
	assert.Equal(t, 1, calls)
}
