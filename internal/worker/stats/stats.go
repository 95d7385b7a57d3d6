package stats

import (
	"math"
	"sync"
	"time"
)

type HolderProgress struct {
	Total            int     `json:"total"`
	Processed        int     `json:"processed"`
	WithTransactions int     `json:"withTransactions"`
	Progress         float64 `json:"progress"` // 百分比，两位小数
}

type TransactionProgress struct {
	Total  int `json:"total"`
	Unique int `json:"unique"`
}

type BatchProgress struct {
	Current  int     `json:"current"`
	Total    int     `json:"total"`
	Progress float64 `json:"progress"`
}

// Progress AnalysisStats 的只读快照，status 接口与 redis 共用这个结构
type Progress struct {
	Phase        string              `json:"phase,omitempty"`
	Holders      HolderProgress      `json:"holders"`
	Transactions TransactionProgress `json:"transactions"`
	Batches      BatchProgress       `json:"batches"`
	ElapsedTime  float64             `json:"elapsedTime"` // 秒
}

// AnalysisStats 一次分析运行的实时统计，可被状态查询随时读取
type AnalysisStats struct {
	mu sync.RWMutex

	startTime time.Time
	now       func() time.Time

	phase            string
	holdersTotal     int
	holdersProcessed int
	holdersWithTx    int
	txTotal          int
	txUnique         map[string]struct{}
	currentBatch     int
	totalBatches     int
}

func NewAnalysisStats() *AnalysisStats {
	return NewAnalysisStatsWithClock(time.Now)
}

func NewAnalysisStatsWithClock(now func() time.Time) *AnalysisStats {
	return &AnalysisStats{
		startTime: now(),
		now:       now,
		txUnique:  make(map[string]struct{}),
	}
}

func (s *AnalysisStats) SetPhase(phase string) {
	s.mu.Lock()
	s.phase = phase
	s.mu.Unlock()
}

func (s *AnalysisStats) UpdateHolders(total int) {
	s.mu.Lock()
	s.holdersTotal = total
	s.mu.Unlock()
}

func (s *AnalysisStats) IncrementProcessedHolders() {
	s.mu.Lock()
	s.holdersProcessed++
	s.mu.Unlock()
}

func (s *AnalysisStats) IncrementHoldersWithTransactions() {
	s.mu.Lock()
	s.holdersWithTx++
	s.mu.Unlock()
}

// AddTransaction 返回 true 表示是首次出现的交易 id
func (s *AnalysisStats) AddTransaction(txID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txUnique[txID]; ok {
		return false
	}
	s.txUnique[txID] = struct{}{}
	s.txTotal++
	return true
}

func (s *AnalysisStats) SetBatchProgress(current, total int) {
	s.mu.Lock()
	s.currentBatch = current
	s.totalBatches = total
	s.mu.Unlock()
}

func (s *AnalysisStats) Elapsed() time.Duration {
	return s.now().Sub(s.startTime)
}

func (s *AnalysisStats) Snapshot() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Progress{
		Phase: s.phase,
		Holders: HolderProgress{
			Total:            s.holdersTotal,
			Processed:        s.holdersProcessed,
			WithTransactions: s.holdersWithTx,
			Progress:         percent(s.holdersProcessed, s.holdersTotal),
		},
		Transactions: TransactionProgress{
			Total:  s.txTotal,
			Unique: len(s.txUnique),
		},
		Batches: BatchProgress{
			Current:  s.currentBatch,
			Total:    s.totalBatches,
			Progress: percent(s.currentBatch, s.totalBatches),
		},
		ElapsedTime: round2(s.Elapsed().Seconds()),
	}
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
