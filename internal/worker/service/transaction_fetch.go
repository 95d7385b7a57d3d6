package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/model"
	"token-analyzer/pkg/mirrornode"
	"token-analyzer/pkg/retry"
	"token-analyzer/pkg/utils"
)

type TransactionFetcherConfig struct {
	MaxRetries int
	BaseDelay  time.Duration // 指数退避的基数
	MaxDelay   time.Duration // 单次退避上限
}

// TransactionFetcher 在时间窗口内倒序回溯账户交易，并提取目标代币的转账
type TransactionFetcher struct {
	mirror MirrorNode
	cfg    TransactionFetcherConfig
	logger *zap.Logger
}

func NewTransactionFetcher(mirror MirrorNode, cfg TransactionFetcherConfig, logger *zap.Logger) *TransactionFetcher {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &TransactionFetcher{mirror: mirror, cfg: cfg, logger: logger}
}

func (f *TransactionFetcher) policy(accountID string) retry.Policy {
	return retry.Policy{
		MaxAttempts: f.cfg.MaxRetries,
		BaseDelay:   f.cfg.BaseDelay,
		MaxDelay:    f.cfg.MaxDelay,
		Growth:      retry.Exponential,
		Retryable:   apperr.Retryable,
		OnRetry: func(err error, next time.Duration) {
			f.logger.Warn("Rate limit hit fetching transactions, backing off",
				zap.String("account", accountID),
				zap.Duration("wait", next),
				zap.Error(err),
			)
		},
	}
}

// FetchAccountTransactions 拉取 accountID 在 windowStart(秒) 之后收到的 tokenID 转账。
// 首页用 timestamp=gt:windowStart，之后每页用上一页最后一条的 lt: 游标。
func (f *TransactionFetcher) FetchAccountTransactions(ctx context.Context, accountID, tokenID string, info model.TokenInfo, windowStart int64) ([]model.TransferRecord, error) {
	records := []model.TransferRecord{}
	before := ""

	for page := 1; ; page++ {
		var resp *mirrornode.TransactionsResponse
		query := mirrornode.TxPageQuery{Account: accountID, After: windowStart, Before: before}
		err := f.policy(accountID).Do(ctx, func() error {
			var err error
			resp, err = f.mirror.GetTransactionsPage(ctx, query)
			return err
		})
		if err != nil {
			return records, apperr.Upstream("fetch transactions for "+accountID, err)
		}
		if len(resp.Transactions) == 0 {
			break
		}

		for _, tx := range resp.Transactions {
			inWindow, err := utils.ConsensusAfter(tx.ConsensusTimestamp, windowStart)
			if err != nil || !inWindow {
				continue
			}
			records = append(records, MatchTransfers(tx, accountID, tokenID, info)...)
		}

		oldest := resp.Transactions[len(resp.Transactions)-1].ConsensusTimestamp
		inWindow, err := utils.ConsensusAfter(oldest, windowStart)
		if err != nil || !inWindow {
			break
		}
		if oldest == before {
			f.logger.Warn("Transaction cursor did not advance", zap.String("account", accountID), zap.String("cursor", before))
			break
		}
		before = oldest
	}

	f.logger.Debug("Fetched account transactions",
		zap.String("account", accountID),
		zap.Int("records", len(records)),
	)
	return records, nil
}
