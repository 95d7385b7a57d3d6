package job

import (
	"context"
	"errors"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/model"
	"token-analyzer/internal/worker/monitor"
	"token-analyzer/internal/worker/service"
	"token-analyzer/internal/worker/stats"
	"token-analyzer/internal/worker/store"
	"token-analyzer/pkg/logger"
	"token-analyzer/pkg/utils"
)

// 分析运行的阶段
const (
	PhaseIdle              = "Idle"
	PhaseFetchingTokenInfo = "FetchingTokenInfo"
	PhaseFetchingHolders   = "FetchingHolders"
	PhaseProcessingBatches = "ProcessingBatches"
	PhaseCompleted         = "Completed"
	PhaseFailed            = "Failed"
)

type AnalyzerConfig struct {
	BatchSize       int
	ProcessingDelay time.Duration
	WindowDays      int
	// Incremental 只在追加模式下生效：窗口起点取已落盘的最新转账时间
	Incremental bool
	WriteMode   store.WriteMode
}

// Sink 分析结果的旁路输出，例如搜索索引或消息队列
type Sink interface {
	OnHolders(tokenID string, holders []model.Holder, at time.Time)
	OnTransfers(tokenID string, records []model.TransferRecord, treasury string, at time.Time)
}

// ProgressFunc 每个阶段与每个批次结束时回调
type ProgressFunc func(tokenID string, p stats.Progress)

type DiffSummary struct {
	New       int `json:"new"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
}

// Result 一次成功(含部分成功)运行的汇总
type Result struct {
	TokenID       string          `json:"tokenId"`
	Token         model.TokenInfo `json:"token"`
	Holders       int             `json:"holders"`
	Diff          DiffSummary     `json:"diff"`
	Transactions  int             `json:"transactions"`
	Persisted     int             `json:"persisted"`
	WindowStart   time.Time       `json:"windowStart"`
	Partial       bool            `json:"partial,omitempty"`
	PartialReason string          `json:"partialReason,omitempty"`
	Progress      stats.Progress  `json:"progress"`
}

// Analyzer 一次分析的编排：token 信息 → 全量持有者 → 按批拉取交易并落盘
type Analyzer struct {
	mirror  service.MirrorNode
	holders *service.HolderFetcher
	txs     *service.TransactionFetcher
	store   store.Store
	sinks   []Sink
	cfg     AnalyzerConfig
	logger  *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type AnalyzerOption func(*Analyzer)

func WithSinks(sinks ...Sink) AnalyzerOption {
	return func(a *Analyzer) { a.sinks = append(a.sinks, sinks...) }
}

func WithAnalyzerClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

func WithAnalyzerSleep(fn func(ctx context.Context, d time.Duration) error) AnalyzerOption {
	return func(a *Analyzer) { a.sleep = fn }
}

func NewAnalyzer(mirror service.MirrorNode, holders *service.HolderFetcher, txs *service.TransactionFetcher,
	st store.Store, cfg AnalyzerConfig, logger *zap.Logger, opts ...AnalyzerOption) *Analyzer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 180
	}
	if cfg.WriteMode == "" {
		cfg.WriteMode = store.ModeAppend
	}
	a := &Analyzer{
		mirror:  mirror,
		holders: holders,
		txs:     txs,
		store:   st,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run 执行完整分析。持有者部分失败时返回 Partial=true 的结果而不是错误。
func (a *Analyzer) Run(ctx context.Context, tokenID string, st *stats.AnalysisStats, onProgress ProgressFunc) (*Result, error) {
	if !utils.IsValidEntityID(tokenID) {
		return nil, apperr.InvalidTokenID(tokenID)
	}
	log := logger.WithRun(ctx, a.logger, tokenID, RunIDFromContext(ctx))
	report := func() {
		if onProgress != nil {
			onProgress(tokenID, st.Snapshot())
		}
	}
	fail := func(err error) (*Result, error) {
		st.SetPhase(PhaseFailed)
		report()
		return nil, err
	}

	// FetchingTokenInfo
	st.SetPhase(PhaseFetchingTokenInfo)
	report()
	resp, err := a.mirror.GetTokenInfo(ctx, tokenID)
	if err != nil {
		return fail(apperr.Upstream("fetch token info", err))
	}
	info := model.TokenInfo{
		TokenID:           tokenID,
		Name:              resp.Name,
		Symbol:            resp.Symbol,
		Decimals:          uint32(resp.Decimals),
		TotalSupply:       resp.TotalSupply,
		TreasuryAccountID: resp.TreasuryAccountID,
	}
	if err := a.store.SaveTokenInfo(ctx, info, resp.Raw); err != nil {
		return fail(err)
	}
	log.Info("Token info loaded",
		zap.String("symbol", info.Symbol),
		zap.Uint32("decimals", info.Decimals),
	)

	// FetchingHolders
	st.SetPhase(PhaseFetchingHolders)
	report()
	result := &Result{TokenID: tokenID, Token: info}

	previous, err := a.store.LoadHolders(ctx, tokenID)
	if err != nil && !errors.Is(err, apperr.ErrDataNotFound) {
		log.Warn("Failed to load previous holders, treating all as new", zap.Error(err))
	}

	holders, err := a.holders.FetchAllHolders(ctx, tokenID, info.Decimals)
	if err != nil {
		if !errors.Is(err, apperr.ErrPartialResult) {
			return fail(err)
		}
		result.Partial = true
		result.PartialReason = err.Error()
	}
	st.UpdateHolders(len(holders))

	diff := service.DiffHolders(holders, service.HolderBalances(previous))
	result.Holders = len(holders)
	result.Diff = DiffSummary{New: len(diff.New), Changed: len(diff.Changed), Unchanged: len(diff.Unchanged)}
	log.Info("Holders fetched",
		zap.Int("total", len(holders)),
		zap.Int("new", result.Diff.New),
		zap.Int("changed", result.Diff.Changed),
		zap.Int("unchanged", result.Diff.Unchanged),
		zap.Bool("partial", result.Partial),
	)

	if err := a.store.SaveHolders(ctx, tokenID, holders); err != nil {
		return fail(err)
	}
	at := a.now()
	for _, s := range a.sinks {
		s.OnHolders(tokenID, holders, at)
	}

	treasury := info.TreasuryAccountID
	if treasury == "" {
		for _, h := range holders {
			if h.IsTreasury {
				treasury = h.Account
				break
			}
		}
	}

	// ProcessingBatches
	windowStart := a.windowStart(ctx, log, tokenID)
	result.WindowStart = time.Unix(windowStart, 0).UTC()
	st.SetPhase(PhaseProcessingBatches)

	totalBatches := (len(holders) + a.cfg.BatchSize - 1) / a.cfg.BatchSize
	st.SetBatchProgress(0, totalBatches)
	report()

	if totalBatches == 0 {
		// 没有持有者时也落一张空的转账表
		if _, err := a.store.SaveTransfers(ctx, tokenID, nil, a.cfg.WriteMode); err != nil {
			return fail(err)
		}
	}

	var accumulated []model.TransferRecord
	for b := 0; b < totalBatches; b++ {
		start := b * a.cfg.BatchSize
		end := min(start+a.cfg.BatchSize, len(holders))
		batch := holders[start:end]

		records := a.processBatch(ctx, log, tokenID, info, batch, windowStart, st)

		fresh := make([]model.TransferRecord, 0, len(records))
		for _, r := range records {
			if st.AddTransaction(r.TransactionID) {
				fresh = append(fresh, r)
			}
		}
		accumulated = append(accumulated, fresh...)
		monitor.AnalysisTransfers.Add(float64(len(fresh)))

		var written int
		if a.cfg.WriteMode == store.ModeRewrite {
			written, err = a.store.SaveTransfers(ctx, tokenID, accumulated, store.ModeRewrite)
		} else {
			written, err = a.store.SaveTransfers(ctx, tokenID, fresh, store.ModeAppend)
		}
		if err != nil {
			return fail(err)
		}
		if a.cfg.WriteMode == store.ModeRewrite {
			result.Persisted = written
		} else {
			result.Persisted += written
		}

		if len(fresh) > 0 {
			at := a.now()
			for _, s := range a.sinks {
				s.OnTransfers(tokenID, fresh, treasury, at)
			}
		}

		st.SetBatchProgress(b+1, totalBatches)
		monitor.AnalysisBatches.Inc()
		report()
		log.Info("Batch processed",
			zap.Int("batch", b+1),
			zap.Int("total_batches", totalBatches),
			zap.Int("new_transfers", len(fresh)),
		)

		if b+1 < totalBatches {
			if err := a.sleep(ctx, a.cfg.ProcessingDelay); err != nil {
				return fail(err)
			}
		}
	}

	st.SetPhase(PhaseCompleted)
	result.Progress = st.Snapshot()
	result.Transactions = result.Progress.Transactions.Unique
	report()
	return result, nil
}

// processBatch 批内并发拉取，单个持有者失败只记录日志
func (a *Analyzer) processBatch(ctx context.Context, log *zap.Logger, tokenID string, info model.TokenInfo,
	batch []model.Holder, windowStart int64, st *stats.AnalysisStats) []model.TransferRecord {
	results := make([][]model.TransferRecord, len(batch))
	p := pool.New().WithMaxGoroutines(len(batch))
	for i, h := range batch {
		p.Go(func() {
			records, err := a.txs.FetchAccountTransactions(ctx, h.Account, tokenID, info, windowStart)
			st.IncrementProcessedHolders()
			if err != nil {
				monitor.AnalysisHolders.WithLabelValues("failed").Inc()
				monitor.MirrorPageErrors.WithLabelValues("transactions").Inc()
				log.Warn("Failed to fetch holder transactions",
					zap.String("account", h.Account),
					zap.String("kind", string(apperr.Classify(err))),
					zap.Error(err),
				)
			} else {
				monitor.AnalysisHolders.WithLabelValues("ok").Inc()
			}
			if len(records) > 0 {
				st.IncrementHoldersWithTransactions()
			}
			results[i] = records
		})
	}
	p.Wait()

	var out []model.TransferRecord
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

// windowStart 回溯窗口起点(秒)；追加模式下不早于已落盘的最新转账
func (a *Analyzer) windowStart(ctx context.Context, log *zap.Logger, tokenID string) int64 {
	start := a.now().Add(-time.Duration(a.cfg.WindowDays) * 24 * time.Hour).Unix()
	if !a.cfg.Incremental || a.cfg.WriteMode == store.ModeRewrite {
		return start
	}
	latest, ok, err := a.store.LatestTransferTime(ctx, tokenID)
	if err != nil {
		log.Warn("Failed to read latest persisted transfer, using full window", zap.Error(err))
		return start
	}
	if ok && latest.Unix() > start {
		log.Info("Incremental window", zap.Time("since", latest))
		return latest.Unix()
	}
	return start
}

type runIDKey struct{}

// ContextWithRunID 让日志带上运行标识
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
