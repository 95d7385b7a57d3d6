package job

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Starter RunManager 的启动子集
type Starter interface {
	StartOrAttach(tokenID string) (RunSnapshot, error)
}

// Refresh 定时对配置中的代币重新分析，已有运行时直接跳过
type Refresh struct {
	runs   Starter
	tokens []string
	logger *zap.Logger
}

func NewRefresh(runs Starter, tokens []string, logger *zap.Logger) *Refresh {
	return &Refresh{runs: runs, tokens: tokens, logger: logger}
}

func (r *Refresh) Run(ctx context.Context) error {
	var errs []error
	for _, tokenID := range r.tokens {
		if err := ctx.Err(); err != nil {
			return err
		}
		snap, err := r.runs.StartOrAttach(tokenID)
		if err != nil {
			r.logger.Warn("Skip scheduled token", zap.String("token_id", tokenID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		r.logger.Info("Scheduled analysis", zap.String("token_id", tokenID), zap.String("status", string(snap.Status)))
	}
	return errors.Join(errs...)
}
