package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTemporary = errors.New("temporary")

func TestPolicy_Delay(t *testing.T) {
	linear := Policy{BaseDelay: 2 * time.Second, Growth: Linear}
	assert.Equal(t, 2*time.Second, linear.Delay(1))
	assert.Equal(t, 6*time.Second, linear.Delay(3))

	exp := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, Growth: Exponential}
	assert.Equal(t, 2*time.Second, exp.Delay(1))
	assert.Equal(t, 4*time.Second, exp.Delay(2))
	assert.Equal(t, 30*time.Second, exp.Delay(10))
	assert.Equal(t, 30*time.Second, exp.Delay(100))
}

func TestPolicy_RetryThenSuccess(t *testing.T) {
	var calls, notified int
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Growth:      Linear,
		OnRetry: func(err error, next time.Duration) {
			notified++
			assert.ErrorIs(t, err, errTemporary)
			assert.Greater(t, next, time.Duration(0))
		},
	}

	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errTemporary
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, notified)
}

func TestPolicy_ExhaustsAttempts(t *testing.T) {
	var calls int
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Growth: Exponential}

	err := p.Do(context.Background(), func() error {
		calls++
		return errTemporary
	})

	assert.ErrorIs(t, err, errTemporary)
	assert.Equal(t, 3, calls, "first call plus two retries")
}

func TestPolicy_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	var calls int
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(err error) bool { return errors.Is(err, errTemporary) },
	}

	err := p.Do(context.Background(), func() error {
		calls++
		return fatal
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond}
	err := p.Do(ctx, func() error { return errTemporary })
	assert.ErrorIs(t, err, context.Canceled)
}
