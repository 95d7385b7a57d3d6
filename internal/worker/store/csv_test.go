package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/model"
)

func rec(id, ts string, amount int64) model.TransferRecord {
	return model.TransferRecord{
		Timestamp:       ts,
		TransactionID:   id,
		SenderAccount:   "0.0.7",
		SenderAmount:    decimal.NewFromInt(amount),
		ReceiverAccount: "0.0.42",
		ReceiverAmount:  decimal.NewFromInt(amount),
		TokenSymbol:     "SAUCE",
		Memo:            "hi, there",
		FeeHbar:         decimal.RequireFromString("0.00084"),
	}
}

func TestCSVStore_HoldersRoundTrip(t *testing.T) {
	s := NewCSVStore(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	_, err := s.LoadHolders(ctx, "0.0.1234")
	assert.ErrorIs(t, err, apperr.ErrDataNotFound)

	holders := []model.Holder{
		{Account: "0.0.1", Balance: "150", FormattedBalance: decimal.RequireFromString("1.5")},
		{Account: "0.0.2", Balance: "100000000000000000000", FormattedBalance: decimal.RequireFromString("1000000000000000000")},
	}
	require.NoError(t, s.SaveHolders(ctx, "0.0.1234", holders))

	data, err := os.ReadFile(filepath.Join(s.TokenDir("0.0.1234"), "0.0.1234_holders.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Account,Balance\n0.0.1,1.5\n0.0.2,1000000000000000000\n", string(data))

	loaded, err := s.LoadHolders(ctx, "0.0.1234")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.True(t, loaded[1].IsTreasury)
	assert.True(t, loaded[0].FormattedBalance.Equal(decimal.RequireFromString("1.5")))
}

func TestCSVStore_AppendDeduplicates(t *testing.T) {
	s := NewCSVStore(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	n, err := s.SaveTransfers(ctx, "0.0.1234", []model.TransferRecord{
		rec("tx-1", "2024-01-01T00:00:00.000Z", 1),
		rec("tx-2", "2024-01-02T00:00:00.000Z", 2),
		rec("tx-2", "2024-01-02T00:00:00.000Z", 2),
	}, ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.SaveTransfers(ctx, "0.0.1234", []model.TransferRecord{
		rec("tx-2", "2024-01-02T00:00:00.000Z", 2),
		rec("tx-3", "2024-01-03T00:00:00.000Z", 3),
	}, ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	loaded, err := s.LoadTransfers(ctx, "0.0.1234")
	require.NoError(t, err)
	var ids []string
	for _, r := range loaded {
		ids = append(ids, r.TransactionID)
	}
	assert.Equal(t, []string{"tx-1", "tx-2", "tx-3"}, ids)
	assert.Equal(t, "hi, there", loaded[0].Memo)
	assert.Equal(t, "0.00084", loaded[0].FeeHbar.String())

	latest, ok, err := s.LatestTransferTime(ctx, "0.0.1234")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-03T00:00:00Z", latest.Format("2006-01-02T15:04:05Z07:00"))
}

func TestCSVStore_RewriteReplaces(t *testing.T) {
	s := NewCSVStore(t.TempDir(), zap.NewNop())
	ctx := context.Background()

	_, err := s.SaveTransfers(ctx, "0.0.1234", []model.TransferRecord{rec("tx-1", "2024-01-01T00:00:00.000Z", 1)}, ModeRewrite)
	require.NoError(t, err)
	n, err := s.SaveTransfers(ctx, "0.0.1234", []model.TransferRecord{
		rec("tx-5", "2024-01-05T00:00:00.000Z", 5),
		rec("tx-6", "2024-01-06T00:00:00.000Z", 6),
	}, ModeRewrite)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	loaded, err := s.LoadTransfers(ctx, "0.0.1234")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "tx-5", loaded[0].TransactionID)

	data, err := os.ReadFile(s.TransfersPath("0.0.1234"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Timestamp,Transaction ID,Sender Account,Total Sent Amount,Receiver Account,Receiver Amount,Token Symbol,Memo,Fee (HBAR)\n")
}

func TestCSVStore_NoTransfersYet(t *testing.T) {
	s := NewCSVStore(t.TempDir(), zap.NewNop())
	_, ok, err := s.LatestTransferTime(context.Background(), "0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.LoadTransfers(context.Background(), "0.0.1")
	assert.ErrorIs(t, err, apperr.ErrDataNotFound)
	assert.Contains(t, err.Error(), "Please analyze the token first.")
}

func TestCSVStore_TokenInfo(t *testing.T) {
	s := NewCSVStore(t.TempDir(), zap.NewNop())
	ctx := context.Background()
	info := model.TokenInfo{TokenID: "0.0.1234", Name: "Sauce", Symbol: "SAUCE", Decimals: 6, TotalSupply: "1000"}
	require.NoError(t, s.SaveTokenInfo(ctx, info, nil))

	loaded, err := s.LoadTokenInfo(ctx, "0.0.1234")
	require.NoError(t, err)
	assert.Equal(t, info, *loaded)
}

func TestParseWriteMode(t *testing.T) {
	assert.Equal(t, ModeRewrite, ParseWriteMode("rewrite"))
	assert.Equal(t, ModeAppend, ParseWriteMode("append"))
	assert.Equal(t, ModeAppend, ParseWriteMode(""))
}
