package main

import (
	"errors"

	"github.com/spf13/cobra"

	"token-analyzer/internal/worker"
	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/repository"
	"token-analyzer/internal/worker/service"
	"token-analyzer/pkg/utils"
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize <tokenId>",
	Short: "Print the holder/transfer graph of an analyzed token as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runVisualize,
}

func runVisualize(cmd *cobra.Command, args []string) error {
	tokenID := args[0]
	if !utils.IsValidEntityID(tokenID) {
		return apperr.InvalidTokenID(tokenID)
	}
	ctx := cmd.Context()

	cfg, tl, err := setup(ctx, "visualize")
	if err != nil {
		return err
	}
	// 只读已落盘数据，不需要消息队列与索引
	cfg.Kafka.Enable = false
	cfg.Elasticsearch.Enable = false
	cfg.Redis.Enable = false

	repo, err := repository.New(cfg, tl)
	if err != nil {
		return err
	}
	defer repo.Close()

	pipeline, err := worker.NewPipeline(cfg, repo, tl)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	holders, err := pipeline.Store.LoadHolders(ctx, tokenID)
	if err != nil {
		return err
	}
	transfers, err := pipeline.Store.LoadTransfers(ctx, tokenID)
	if err != nil {
		return err
	}
	treasury := ""
	if info, err := pipeline.Store.LoadTokenInfo(ctx, tokenID); err == nil {
		treasury = info.TreasuryAccountID
	} else if !errors.Is(err, apperr.ErrDataNotFound) {
		return err
	}

	return printJSON(cmd, service.BuildGraph(holders, transfers, treasury))
}
