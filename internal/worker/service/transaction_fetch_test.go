package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/pkg/httpclient"
	"token-analyzer/pkg/mirrornode"
)

func receiveTx(ts, id string, amount int64) mirrornode.Transaction {
	return mirrornode.Transaction{
		ConsensusTimestamp: ts,
		TransactionID:      id,
		TokenTransfers: []mirrornode.TokenTransfer{
			transfer("0.0.1234", "0.0.7", -amount),
			transfer("0.0.1234", "0.0.42", amount),
		},
	}
}

func newTxFetcher(m MirrorNode) *TransactionFetcher {
	return NewTransactionFetcher(m, TransactionFetcherConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, zap.NewNop())
}

func TestFetchAccountTransactions_PaginatesUntilWindow(t *testing.T) {
	const windowStart = int64(1700000000)
	mirror := &fakeMirror{txPages: map[string][]*mirrornode.TransactionsResponse{
		"0.0.42": {
			{Transactions: []mirrornode.Transaction{
				receiveTx("1700000300.000000001", "tx-3", 30),
				receiveTx("1700000200.000000001", "tx-2", 20),
			}},
			{Transactions: []mirrornode.Transaction{
				receiveTx("1700000100.000000001", "tx-1", 10),
				receiveTx("1700000000.000000000", "tx-0", 5), // 恰好在窗口起点，丢弃并停止
			}},
			{Transactions: []mirrornode.Transaction{
				receiveTx("1699999999.000000001", "tx-old", 1),
			}},
		},
	}}

	records, err := newTxFetcher(mirror).FetchAccountTransactions(context.Background(), "0.0.42", "0.0.1234", sauce, windowStart)
	require.NoError(t, err)

	var ids []string
	for _, r := range records {
		ids = append(ids, r.TransactionID)
	}
	assert.Equal(t, []string{"tx-3", "tx-2", "tx-1"}, ids)

	require.Len(t, mirror.txQueries, 2)
	assert.Equal(t, "", mirror.txQueries[0].Before)
	assert.Equal(t, windowStart, mirror.txQueries[0].After)
	assert.Equal(t, "1700000200.000000001", mirror.txQueries[1].Before)
}

func TestFetchAccountTransactions_KeepsSubSecondTransfersAtWindowStart(t *testing.T) {
	const windowStart = int64(1700000000)
	mirror := &fakeMirror{txPages: map[string][]*mirrornode.TransactionsResponse{
		"0.0.42": {
			{Transactions: []mirrornode.Transaction{
				receiveTx("1700000000.500000000", "tx-same-second", 7),
				receiveTx("1700000000.000000000", "tx-boundary", 3),
			}},
		},
	}}

	records, err := newTxFetcher(mirror).FetchAccountTransactions(context.Background(), "0.0.42", "0.0.1234", sauce, windowStart)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "tx-same-second", records[0].TransactionID)
	assert.Len(t, mirror.txQueries, 1)
}

func TestFetchAccountTransactions_EmptyAccount(t *testing.T) {
	mirror := &fakeMirror{txPages: map[string][]*mirrornode.TransactionsResponse{}}
	records, err := newTxFetcher(mirror).FetchAccountTransactions(context.Background(), "0.0.77", "0.0.1234", sauce, 0)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestFetchAccountTransactions_RetriesThrottling(t *testing.T) {
	mirror := &fakeMirror{
		txPages: map[string][]*mirrornode.TransactionsResponse{
			"0.0.42": {{Transactions: []mirrornode.Transaction{receiveTx("1700000300.000000001", "tx-3", 30)}}},
		},
		txErrs: map[string][]error{
			"0.0.42": {&httpclient.HTTPError{Code: 429}, &httpclient.HTTPError{Code: 503}},
		},
	}
	records, err := newTxFetcher(mirror).FetchAccountTransactions(context.Background(), "0.0.42", "0.0.1234", sauce, 1700000000)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	// 两次限流 + 一页数据 + 一个空页
	assert.Len(t, mirror.txQueries, 4)
}

func TestFetchAccountTransactions_OtherErrorsNotRetried(t *testing.T) {
	mirror := &fakeMirror{
		txErrs: map[string][]error{"0.0.42": {&httpclient.HTTPError{Code: 400}}},
	}
	_, err := newTxFetcher(mirror).FetchAccountTransactions(context.Background(), "0.0.42", "0.0.1234", sauce, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstreamFatal)
	assert.Len(t, mirror.txQueries, 1)
}

func TestFetchAccountTransactions_ThrottleRetriesExhausted(t *testing.T) {
	throttled := &httpclient.HTTPError{Code: 429}
	mirror := &fakeMirror{
		txErrs: map[string][]error{"0.0.42": {throttled, throttled, throttled, throttled, throttled}},
	}
	_, err := newTxFetcher(mirror).FetchAccountTransactions(context.Background(), "0.0.42", "0.0.1234", sauce, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUpstreamTransient)
	assert.True(t, errors.Is(err, throttled) || httpclient.IsThrottled(err))
	assert.Len(t, mirror.txQueries, 4)
}
