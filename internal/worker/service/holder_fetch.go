package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/model"
	"token-analyzer/pkg/mirrornode"
	"token-analyzer/pkg/retry"
	"token-analyzer/pkg/utils"
)

type HolderFetcherConfig struct {
	MaxRetries int           // 单页最多重试次数
	RetryStep  time.Duration // 第 n 次重试等待 n * RetryStep
	Strict     bool          // 严格模式下任何一页失败都直接返回错误
}

// HolderFetcher 按 links.next 游标拉取代币的全部持有者
type HolderFetcher struct {
	mirror MirrorNode
	cfg    HolderFetcherConfig
	logger *zap.Logger
}

func NewHolderFetcher(mirror MirrorNode, cfg HolderFetcherConfig, logger *zap.Logger) *HolderFetcher {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryStep <= 0 {
		cfg.RetryStep = 2 * time.Second
	}
	return &HolderFetcher{mirror: mirror, cfg: cfg, logger: logger}
}

func (f *HolderFetcher) policy(tokenID string, page int) retry.Policy {
	return retry.Policy{
		MaxAttempts: f.cfg.MaxRetries,
		BaseDelay:   f.cfg.RetryStep,
		Growth:      retry.Linear,
		Retryable:   func(err error) bool { return !apperr.GatewayExhausted(err) },
		OnRetry: func(err error, next time.Duration) {
			f.logger.Warn("Error fetching holders, retrying",
				zap.String("token_id", tokenID),
				zap.Int("page", page),
				zap.Duration("wait", next),
				zap.Error(err),
			)
		},
	}
}

// FetchAllHolders 返回服务端顺序的全部持有者，余额已按 decimals 格式化，并标记 treasury。
// 非严格模式下中途失败会返回已拿到的持有者和一个 apperr.ErrPartialResult 错误。
func (f *HolderFetcher) FetchAllHolders(ctx context.Context, tokenID string, decimals uint32) ([]model.Holder, error) {
	var holders []model.Holder
	cursor := ""

	for page := 1; ; page++ {
		var resp *mirrornode.BalancesResponse
		err := f.policy(tokenID, page).Do(ctx, func() error {
			var err error
			resp, err = f.mirror.GetBalancesPage(ctx, tokenID, cursor)
			return err
		})
		if err != nil {
			if f.cfg.Strict || len(holders) == 0 {
				return nil, apperr.Upstream("fetch holders", err)
			}
			f.logger.Error("Failed to fetch all holders, keeping partial result",
				zap.String("token_id", tokenID),
				zap.Int("fetched", len(holders)),
				zap.Error(err),
			)
			MarkTreasuryByMaxBalance(holders)
			return holders, apperr.Partial(apperr.Upstream("fetch holders", err))
		}

		for _, b := range resp.Balances {
			raw := b.Balance.String()
			holders = append(holders, model.Holder{
				Account:          b.Account,
				Balance:          raw,
				FormattedBalance: utils.FormatAmount(raw, decimals),
			})
		}
		f.logger.Debug("Fetched holders page",
			zap.String("token_id", tokenID),
			zap.Int("page", page),
			zap.Int("total", len(holders)),
		)

		cursor = mirrornode.NextCursor(resp.Links.Next)
		if cursor == "" {
			break
		}
	}

	MarkTreasuryByMaxBalance(holders)
	return holders, nil
}

// MarkTreasuryByMaxBalance 原始余额最大的持有者视为 treasury，余额相同时先出现者优先。
// 返回 treasury 下标，没有持有者时返回 -1。
func MarkTreasuryByMaxBalance(holders []model.Holder) int {
	idx := -1
	var maxBal decimal.Decimal
	for i := range holders {
		holders[i].IsTreasury = false
		bal, err := decimal.NewFromString(holders[i].Balance)
		if err != nil {
			continue
		}
		if idx < 0 || bal.GreaterThan(maxBal) {
			idx = i
			maxBal = bal
		}
	}
	if idx >= 0 {
		holders[idx].IsTreasury = true
	}
	return idx
}
