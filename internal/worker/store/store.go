package store

import (
	"context"
	"time"

	"token-analyzer/internal/worker/model"
)

// WriteMode 转账表写入方式
type WriteMode string

const (
	// ModeAppend 只追加未出现过的 transaction id
	ModeAppend WriteMode = "append"
	// ModeRewrite 整表覆盖
	ModeRewrite WriteMode = "rewrite"
)

func ParseWriteMode(s string) WriteMode {
	if WriteMode(s) == ModeRewrite {
		return ModeRewrite
	}
	return ModeAppend
}

// Store 分析结果的持久化接口，CSV 与数据库两种实现。
// 数据不存在时 Load* 返回 apperr.ErrDataNotFound，写入失败返回 apperr.ErrPersistence。
type Store interface {
	SaveTokenInfo(ctx context.Context, info model.TokenInfo, raw []byte) error
	LoadTokenInfo(ctx context.Context, tokenID string) (*model.TokenInfo, error)

	SaveHolders(ctx context.Context, tokenID string, holders []model.Holder) error
	LoadHolders(ctx context.Context, tokenID string) ([]model.Holder, error)

	// SaveTransfers 返回实际写入的记录数
	SaveTransfers(ctx context.Context, tokenID string, records []model.TransferRecord, mode WriteMode) (int, error)
	LoadTransfers(ctx context.Context, tokenID string) ([]model.TransferRecord, error)
	// LatestTransferTime 已落盘转账中最新的时间，没有数据时 ok 为 false
	LatestTransferTime(ctx context.Context, tokenID string) (t time.Time, ok bool, err error)

	Close() error
}

// dedupByTransactionID 去掉 seen 中已有的和 records 内部重复的 transaction id，并把新 id 记入 seen
func dedupByTransactionID(records []model.TransferRecord, seen map[string]struct{}) []model.TransferRecord {
	out := make([]model.TransferRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.TransactionID]; ok {
			continue
		}
		seen[r.TransactionID] = struct{}{}
		out = append(out, r)
	}
	return out
}
