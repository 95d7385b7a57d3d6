package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAnalysisStats_Snapshot(t *testing.T) {
	start := time.Unix(1700000000, 0)
	now := start
	s := NewAnalysisStatsWithClock(func() time.Time { return now })

	s.SetPhase("processing_batches")
	s.UpdateHolders(3)
	s.IncrementProcessedHolders()
	s.IncrementHoldersWithTransactions()
	assert.True(t, s.AddTransaction("0.0.1-1-1"))
	assert.False(t, s.AddTransaction("0.0.1-1-1"))
	assert.True(t, s.AddTransaction("0.0.1-1-2"))
	s.SetBatchProgress(1, 4)
	now = start.Add(1500 * time.Millisecond)

	p := s.Snapshot()
	assert.Equal(t, "processing_batches", p.Phase)
	assert.Equal(t, 3, p.Holders.Total)
	assert.Equal(t, 1, p.Holders.Processed)
	assert.Equal(t, 33.33, p.Holders.Progress)
	assert.Equal(t, 2, p.Transactions.Total)
	assert.Equal(t, 2, p.Transactions.Unique)
	assert.Equal(t, 25.0, p.Batches.Progress)
	assert.Equal(t, 1.5, p.ElapsedTime)
}

func TestAnalysisStats_ZeroTotals(t *testing.T) {
	p := NewAnalysisStats().Snapshot()
	assert.Equal(t, 0.0, p.Holders.Progress)
	assert.Equal(t, 0.0, p.Batches.Progress)
}

func TestAnalysisStats_ConcurrentAdds(t *testing.T) {
	s := NewAnalysisStats()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddTransaction("same")
			s.IncrementProcessedHolders()
			_ = s.Snapshot()
		}()
	}
	wg.Wait()

	p := s.Snapshot()
	assert.Equal(t, 1, p.Transactions.Unique)
	assert.Equal(t, 50, p.Holders.Processed)
}
