package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// GrowthFunc 根据第几次重试(从 1 开始)计算原始等待时间
type GrowthFunc func(base time.Duration, attempt int) time.Duration

// Linear attempt * base
func Linear(base time.Duration, attempt int) time.Duration {
	return time.Duration(attempt) * base
}

// Exponential base * 2^attempt
func Exponential(base time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	return base << uint(attempt)
}

// Policy 统一的重试策略，gateway / holder / transaction 拉取共用
type Policy struct {
	MaxAttempts int                        // 最多重试次数(不含首次调用)
	BaseDelay   time.Duration              // 基础等待
	MaxDelay    time.Duration              // 单次等待上限，0 表示不设上限
	Growth      GrowthFunc                 // 等待时间增长方式
	Retryable   func(error) bool           // 为 nil 时所有错误都重试
	OnRetry     func(error, time.Duration) // 每次重试前回调，用于打日志
}

// Delay 第 attempt 次重试前的等待时间
func (p Policy) Delay(attempt int) time.Duration {
	growth := p.Growth
	if growth == nil {
		growth = Exponential
	}
	d := growth(p.BaseDelay, attempt)
	if d < 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		return p.MaxDelay
	}
	return d
}

func (p Policy) shouldRetry(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// Do 执行 fn，按策略重试；不可重试的错误立即返回
func (p Policy) Do(ctx context.Context, fn func() error) error {
	op := func() error {
		err := fn()
		if err != nil && !p.shouldRetry(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var b backoff.BackOff = &policyBackOff{policy: p}
	if p.MaxAttempts >= 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts))
	}
	b = backoff.WithContext(b, ctx)

	notify := func(err error, next time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(err, next)
		}
	}

	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// policyBackOff 把 Policy 适配为 backoff.BackOff
type policyBackOff struct {
	policy  Policy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.policy.Delay(b.attempt)
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}
