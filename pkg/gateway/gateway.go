package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"token-analyzer/pkg/httpclient"
	"token-analyzer/pkg/retry"
)

// ErrThrottled 上游持续限流，超过重试上限
var ErrThrottled = errors.New("upstream throttled")

// Config 网关节流参数
type Config struct {
	BaseDelay          time.Duration // 两次请求的最小间隔
	MaxDelay           time.Duration // 间隔随连续错误翻倍后的上限
	ThrottleMaxDelay   time.Duration // 429/503 退避上限
	MaxThrottleRetries int           // 同一请求的限流重试次数
}

// Request 一次排队的出站调用
type Request func(ctx context.Context) error

type pending struct {
	ctx  context.Context
	fn   Request
	done chan error
}

// Gateway 串行化出站请求：FIFO，同一时刻只有一个请求在途
type Gateway struct {
	cfg    Config
	logger *zap.Logger

	pace     retry.Policy
	throttle retry.Policy

	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
	isThrottled func(error) bool
	onThrottle  func(attempt int, d time.Duration)

	mu                sync.Mutex
	queue             []*pending
	draining          bool
	lastRequest       time.Time
	consecutiveErrors int
}

type Option func(*Gateway)

// WithSleep 替换等待函数，测试用
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.sleep = fn }
}

func WithClock(fn func() time.Time) Option {
	return func(g *Gateway) { g.now = fn }
}

// WithThrottleCheck 自定义哪些错误视为限流，默认 429/503
func WithThrottleCheck(fn func(error) bool) Option {
	return func(g *Gateway) { g.isThrottled = fn }
}

// WithThrottleHook 每次限流退避前回调
func WithThrottleHook(fn func(attempt int, d time.Duration)) Option {
	return func(g *Gateway) { g.onThrottle = fn }
}

func New(cfg Config, logger *zap.Logger, opts ...Option) *Gateway {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.ThrottleMaxDelay <= 0 {
		cfg.ThrottleMaxDelay = 30 * time.Second
	}
	if cfg.MaxThrottleRetries <= 0 {
		cfg.MaxThrottleRetries = 5
	}

	g := &Gateway{
		cfg:         cfg,
		logger:      logger,
		pace:        retry.Policy{BaseDelay: cfg.BaseDelay, MaxDelay: cfg.MaxDelay, Growth: retry.Exponential},
		throttle:    retry.Policy{BaseDelay: cfg.BaseDelay, MaxDelay: cfg.ThrottleMaxDelay, Growth: retry.Exponential, MaxAttempts: cfg.MaxThrottleRetries},
		sleep:       sleepContext,
		now:         time.Now,
		isThrottled: httpclient.IsThrottled,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Do 入队并等待结果；队列空闲时启动 drain 协程
func (g *Gateway) Do(ctx context.Context, fn Request) error {
	p := &pending{ctx: ctx, fn: fn, done: make(chan error, 1)}

	g.mu.Lock()
	g.queue = append(g.queue, p)
	if !g.draining {
		g.draining = true
		go g.drain()
	}
	g.mu.Unlock()

	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending 排队中(含在途)的请求数
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

// ConsecutiveErrors 当前连续限流次数
func (g *Gateway) ConsecutiveErrors() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.consecutiveErrors
}

func (g *Gateway) drain() {
	for {
		g.mu.Lock()
		if len(g.queue) == 0 {
			g.draining = false
			g.mu.Unlock()
			return
		}
		head := g.queue[0]
		g.mu.Unlock()

		head.done <- g.execute(head)

		g.mu.Lock()
		g.queue = g.queue[1:]
		g.mu.Unlock()
	}
}

func (g *Gateway) execute(p *pending) error {
	throttled := 0
	for {
		if err := p.ctx.Err(); err != nil {
			return err
		}

		g.mu.Lock()
		wait := g.pace.Delay(g.consecutiveErrors) - g.now().Sub(g.lastRequest)
		g.mu.Unlock()
		if wait > 0 {
			if err := g.sleep(p.ctx, wait); err != nil {
				return err
			}
		}

		g.mu.Lock()
		g.lastRequest = g.now()
		g.mu.Unlock()

		err := p.fn(p.ctx)
		if err == nil {
			g.mu.Lock()
			g.consecutiveErrors = 0
			g.mu.Unlock()
			return nil
		}
		if !g.isThrottled(err) {
			return err
		}

		throttled++
		g.mu.Lock()
		g.consecutiveErrors++
		backoff := g.throttle.Delay(g.consecutiveErrors)
		g.mu.Unlock()

		if throttled > g.throttle.MaxAttempts {
			g.logger.Warn("Throttle retries exhausted", zap.Int("attempts", throttled), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrThrottled, err)
		}

		g.logger.Warn("Upstream throttled, backing off",
			zap.Int("attempt", throttled),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if g.onThrottle != nil {
			g.onThrottle(throttled, backoff)
		}
		if err := g.sleep(p.ctx, backoff); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
