package job

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TransferPruner 数据库存储实现了它，CSV 存储没有保留期
type TransferPruner interface {
	DeleteTransfersBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TransactionCleanup 定时清理超过保留期的转账记录
type TransactionCleanup struct {
	store     TransferPruner
	retention time.Duration
	tl        *zap.Logger
	now       func() time.Time
}

// NewTransactionCleanup 创建交易清理任务
func NewTransactionCleanup(store TransferPruner, retention time.Duration, logger *zap.Logger) *TransactionCleanup {
	return &TransactionCleanup{
		store:     store,
		retention: retention,
		tl:        logger,
		now:       time.Now,
	}
}

// Run 执行清理任务
func (j *TransactionCleanup) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	j.tl.Info("Deleting transfers older than retention",
		zap.Duration("retention", j.retention),
		zap.Time("cutoff", cutoff))

	rows, err := j.store.DeleteTransfersBefore(ctx, cutoff)
	if err != nil {
		j.tl.Warn("Failed to cleanup old transfers", zap.Error(err), zap.Time("cutoff", cutoff))
		return err
	}

	j.tl.Info("Transfer cleanup completed successfully",
		zap.Int64("deleted_rows", rows),
		zap.Time("cutoff", cutoff))
	return nil
}
