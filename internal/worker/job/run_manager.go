package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/monitor"
	"token-analyzer/internal/worker/stats"
	"token-analyzer/pkg/logger"
	"token-analyzer/pkg/utils"
)

// Status 对外暴露的运行状态
type Status string

const (
	StatusStarted    Status = "started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusNotFound   Status = "not_found"
)

// RunSnapshot 某个 token 的运行状态，状态接口与进度存储共用
type RunSnapshot struct {
	TokenID    string          `json:"tokenId"`
	RunID      string          `json:"runId,omitempty"`
	Status     Status          `json:"status"`
	Progress   *stats.Progress `json:"progress,omitempty"`
	Error      string          `json:"error,omitempty"`
	Partial    bool            `json:"partial,omitempty"`
	Result     *Result         `json:"result,omitempty"`
	StartedAt  *time.Time      `json:"startedAt,omitempty"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// Runner 执行一次分析，*Analyzer 实现了它
type Runner interface {
	Run(ctx context.Context, tokenID string, st *stats.AnalysisStats, onProgress ProgressFunc) (*Result, error)
}

// ProgressStore 跨进程共享进度，例如 CLI 运行时服务端也能查询
type ProgressStore interface {
	Save(ctx context.Context, snap RunSnapshot) error
	Load(ctx context.Context, tokenID string) (*RunSnapshot, error)
}

type RunManagerConfig struct {
	StatusTTL time.Duration // 结束后的状态保留时间
}

type activeRun struct {
	id        string
	tokenID   string
	stats     *stats.AnalysisStats
	startedAt time.Time
	done      chan struct{}
}

// RunManager 每个 token 同时只允许一个分析运行
type RunManager struct {
	runner   Runner
	progress ProgressStore
	logger   *zap.Logger
	baseCtx  context.Context
	now      func() time.Time
	newID    func() string

	mu       sync.Mutex
	active   map[string]*activeRun
	finished *cache.Cache
	wg       sync.WaitGroup
}

type RunManagerOption func(*RunManager)

func WithProgressStore(ps ProgressStore) RunManagerOption {
	return func(m *RunManager) { m.progress = ps }
}

func WithRunClock(now func() time.Time) RunManagerOption {
	return func(m *RunManager) { m.now = now }
}

// NewRunManager ctx 为所有运行的父 context，取消它会终止进行中的运行
func NewRunManager(ctx context.Context, runner Runner, cfg RunManagerConfig, logger *zap.Logger, opts ...RunManagerOption) *RunManager {
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 30 * time.Minute
	}
	m := &RunManager{
		runner:   runner,
		logger:   logger,
		baseCtx:  ctx,
		now:      time.Now,
		newID:    uuid.NewString,
		active:   make(map[string]*activeRun),
		finished: cache.New(cfg.StatusTTL, cfg.StatusTTL),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartOrAttach 没有运行时启动新运行并返回 started，否则返回进行中运行的进度
func (m *RunManager) StartOrAttach(tokenID string) (RunSnapshot, error) {
	if !utils.IsValidEntityID(tokenID) {
		return RunSnapshot{}, apperr.InvalidTokenID(tokenID)
	}

	m.mu.Lock()
	if r, ok := m.active[tokenID]; ok {
		m.mu.Unlock()
		return r.snapshot(StatusInProgress), nil
	}
	r := &activeRun{
		id:        m.newID(),
		tokenID:   tokenID,
		stats:     stats.NewAnalysisStatsWithClock(m.now),
		startedAt: m.now(),
		done:      make(chan struct{}),
	}
	r.stats.SetPhase(PhaseIdle)
	m.active[tokenID] = r
	m.wg.Add(1)
	m.mu.Unlock()

	monitor.AnalysisActiveRuns.Inc()
	go m.execute(r)
	return r.snapshot(StatusStarted), nil
}

func (m *RunManager) execute(r *activeRun) {
	defer m.wg.Done()

	ctx, span := logger.StartSpan(m.baseCtx, "analyzer", "analyze_token",
		attribute.String("token_id", r.tokenID),
		attribute.String("run_id", r.id),
	)
	defer span.End()
	ctx = ContextWithRunID(ctx, r.id)
	log := logger.WithRun(ctx, m.logger, r.tokenID, r.id)
	log.Info("Analysis started")

	result, err := m.runner.Run(ctx, r.tokenID, r.stats, m.publish(r))

	finishedAt := m.now()
	snap := r.snapshot(StatusCompleted)
	snap.FinishedAt = &finishedAt
	if err != nil {
		snap.Status = StatusFailed
		snap.Error = err.Error()
		span.RecordError(err)
		log.Error("Analysis failed", zap.String("kind", string(apperr.Classify(err))), zap.Error(err))
	} else {
		snap.Result = result
		snap.Partial = result.Partial
		log.Info("Analysis completed",
			zap.Int("holders", result.Holders),
			zap.Int("transactions", result.Transactions),
			zap.Bool("partial", result.Partial),
			zap.Duration("elapsed", r.stats.Elapsed()),
		)
	}

	m.mu.Lock()
	delete(m.active, r.tokenID)
	m.finished.Set(r.tokenID, snap, cache.DefaultExpiration)
	m.mu.Unlock()

	monitor.AnalysisActiveRuns.Dec()
	monitor.AnalysisRuns.WithLabelValues(string(snap.Status)).Inc()
	monitor.AnalysisDuration.Observe(r.stats.Elapsed().Seconds())
	m.save(snap)
	close(r.done)
}

func (m *RunManager) publish(r *activeRun) ProgressFunc {
	return func(tokenID string, p stats.Progress) {
		snap := r.snapshot(StatusInProgress)
		snap.Progress = &p
		m.save(snap)
	}
}

func (m *RunManager) save(snap RunSnapshot) {
	if m.progress == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.progress.Save(ctx, snap); err != nil {
		m.logger.Warn("Failed to publish progress", zap.String("token_id", snap.TokenID), zap.Error(err))
	}
}

// Status 依次查询进行中、最近结束、共享进度存储
func (m *RunManager) Status(ctx context.Context, tokenID string) (RunSnapshot, error) {
	if !utils.IsValidEntityID(tokenID) {
		return RunSnapshot{}, apperr.InvalidTokenID(tokenID)
	}

	m.mu.Lock()
	if r, ok := m.active[tokenID]; ok {
		m.mu.Unlock()
		return r.snapshot(StatusInProgress), nil
	}
	if v, ok := m.finished.Get(tokenID); ok {
		m.mu.Unlock()
		return v.(RunSnapshot), nil
	}
	m.mu.Unlock()

	if m.progress != nil {
		snap, err := m.progress.Load(ctx, tokenID)
		if err != nil {
			m.logger.Warn("Failed to load shared progress", zap.String("token_id", tokenID), zap.Error(err))
		} else if snap != nil {
			return *snap, nil
		}
	}
	return RunSnapshot{TokenID: tokenID, Status: StatusNotFound}, nil
}

// Ongoing 当前进程内所有进行中的运行，按 token id 排序
func (m *RunManager) Ongoing() []RunSnapshot {
	m.mu.Lock()
	out := make([]RunSnapshot, 0, len(m.active))
	for _, r := range m.active {
		out = append(out, r.snapshot(StatusInProgress))
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TokenID < out[j].TokenID })
	return out
}

// Done 返回运行结束信号；没有进行中的运行时 ok 为 false
func (m *RunManager) Done(tokenID string) (<-chan struct{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.active[tokenID]
	if !ok {
		return nil, false
	}
	return r.done, true
}

// Wait 等待所有运行结束或 ctx 到期
func (m *RunManager) Wait(ctx context.Context) error {
	ch := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("runs still in progress"), ctx.Err())
	}
}

func (r *activeRun) snapshot(status Status) RunSnapshot {
	p := r.stats.Snapshot()
	started := r.startedAt
	return RunSnapshot{
		TokenID:   r.tokenID,
		RunID:     r.id,
		Status:    status,
		Progress:  &p,
		StartedAt: &started,
	}
}
