package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/pkg/gateway"
	"token-analyzer/pkg/httpclient"
	"token-analyzer/pkg/mirrornode"
)

// throttledGetter 每次请求都返回 429
type throttledGetter struct {
	calls int32
}

func (g *throttledGetter) Get(ctx context.Context, url string, queryParams map[string]string, headers map[string]string, out interface{}) error {
	atomic.AddInt32(&g.calls, 1)
	return &httpclient.HTTPError{Code: 429, Message: "Too Many Requests"}
}

func newThrottledMirror(getter *throttledGetter, throttleRetries int) *mirrornode.Client {
	gw := gateway.New(gateway.Config{BaseDelay: time.Millisecond, MaxThrottleRetries: throttleRetries}, zap.NewNop(),
		gateway.WithSleep(func(ctx context.Context, d time.Duration) error { return nil }))
	return mirrornode.NewClient(mirrornode.Config{BaseURL: "http://mirror.local/api/v1"}, getter, gw, zap.NewNop())
}

func TestFetchAccountTransactions_GatewayOwnsThrottleRetries(t *testing.T) {
	getter := &throttledGetter{}
	f := NewTransactionFetcher(newThrottledMirror(getter, 5),
		TransactionFetcherConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, zap.NewNop())

	_, err := f.FetchAccountTransactions(context.Background(), "0.0.42", "0.0.1234", sauce, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstreamTransient)
	assert.ErrorIs(t, err, gateway.ErrThrottled)
	// 首次调用 + 网关 5 次限流重试，拉取层不再叠加
	assert.Equal(t, int32(6), atomic.LoadInt32(&getter.calls))
}

func TestFetchAllHolders_GatewayOwnsThrottleRetries(t *testing.T) {
	getter := &throttledGetter{}
	f := NewHolderFetcher(newThrottledMirror(getter, 5),
		HolderFetcherConfig{MaxRetries: 3, RetryStep: time.Millisecond}, zap.NewNop())

	_, err := f.FetchAllHolders(context.Background(), "0.0.1234", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrThrottled)
	assert.Equal(t, int32(6), atomic.LoadInt32(&getter.calls))
}
