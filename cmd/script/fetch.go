package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"token-analyzer/internal/worker"
	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/job"
	"token-analyzer/internal/worker/repository"
	"token-analyzer/internal/worker/stats"
	"token-analyzer/pkg/logger"
	"token-analyzer/pkg/utils"
)

var (
	fetchWindowDays int
	fetchMode       string
	fetchStrict     bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <tokenId>",
	Short: "Run one analysis and print the holder diff and final stats",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().IntVar(&fetchWindowDays, "window-days", 0, "override analysis.window_days")
	fetchCmd.Flags().StringVar(&fetchMode, "mode", "", "transaction write mode: append or rewrite")
	fetchCmd.Flags().BoolVar(&fetchStrict, "strict", false, "fail the run when any holder page fails")
}

type fetchOutput struct {
	TokenID       string          `json:"tokenId"`
	Symbol        string          `json:"symbol"`
	Diff          job.DiffSummary `json:"diff"`
	Transactions  int             `json:"transactions"`
	Persisted     int             `json:"persisted"`
	WindowStart   time.Time       `json:"windowStart"`
	Partial       bool            `json:"partial,omitempty"`
	PartialReason string          `json:"partialReason,omitempty"`
	Stats         stats.Progress  `json:"stats"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	tokenID := args[0]
	if !utils.IsValidEntityID(tokenID) {
		return apperr.InvalidTokenID(tokenID)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, tl, err := setup(ctx, "fetch")
	if err != nil {
		return err
	}
	if fetchWindowDays > 0 {
		cfg.Analysis.WindowDays = fetchWindowDays
	}
	if fetchMode != "" {
		cfg.Analysis.TransactionWriteMode = fetchMode
	}
	if fetchStrict {
		cfg.Analysis.StrictHolders = true
	}

	repo, err := repository.New(cfg, tl)
	if err != nil {
		return err
	}
	defer repo.Close()

	pipeline, err := worker.NewPipeline(cfg, repo, tl)
	if err != nil {
		return err
	}
	pipeline.Start(context.Background())
	defer pipeline.Close()

	ctx, span := logger.StartSpan(ctx, "script", "fetch")
	defer span.End()

	start := time.Now()
	st := stats.NewAnalysisStats()
	result, err := pipeline.Analyzer.Run(ctx, tokenID, st, func(tokenID string, p stats.Progress) {
		tl.Info("Progress",
			zap.String("phase", p.Phase),
			zap.Int("batch", p.Batches.Current),
			zap.Int("total_batches", p.Batches.Total),
			zap.Int("unique_transactions", p.Transactions.Unique),
		)
	})
	if err != nil {
		tl.Error("Analysis failed", zap.String("token_id", tokenID), zap.Error(err))
		return err
	}
	tl.Info("Analysis completed", zap.String("token_id", tokenID), zap.Duration("taken_time", time.Since(start)))

	return printJSON(cmd, fetchOutput{
		TokenID:       result.TokenID,
		Symbol:        result.Token.Symbol,
		Diff:          result.Diff,
		Transactions:  result.Transactions,
		Persisted:     result.Persisted,
		WindowStart:   result.WindowStart,
		Partial:       result.Partial,
		PartialReason: result.PartialReason,
		Stats:         result.Progress,
	})
}
