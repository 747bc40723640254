package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Observe(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func TestAggregator_SnapshotIdempotent(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.RecordCollaboration(time.Millisecond, false)
	a.RecordConflict("resource_competition", false, 10*time.Millisecond)

	first := a.Snapshot()
	second := a.Snapshot()
	assert.Equal(t, first, second)

	// 修改快照不影响聚合器
	first.ConflictHistory["resource_competition"] = ConflictTypeStats{Observed: 99}
	assert.Equal(t, int64(1), a.Snapshot().ConflictHistory["resource_competition"].Observed)
}

func TestAggregator_SuccessRateAndAverages(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	a.RecordConflict("priority_disagreement", false, 10*time.Millisecond)
	a.RecordConflict("priority_disagreement", true, 30*time.Millisecond)
	a.RecordNegotiation("agreement", true, 2, time.Millisecond)
	a.RecordNegotiation("deadlock", false, 3, time.Millisecond)

	s := a.Snapshot()
	assert.Equal(t, int64(2), s.ConflictsResolved)
	assert.Equal(t, int64(1), s.ConflictsEscalated)
	assert.Equal(t, int64(2), s.NegotiationsCompleted)
	assert.Equal(t, int64(1), s.NegotiationAgreements)
	assert.InDelta(t, 0.5, s.AverageSuccessRate, 1e-9)
	assert.Equal(t, 20*time.Millisecond, s.AverageConflictResolutionTime)
}

func TestAggregator_HistoricalRate(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	_, ok := a.HistoricalRate("methodology_disagreement")
	assert.False(t, ok)

	// 处理记录（包括升级）不产生历史成功率
	a.RecordConflict("methodology_disagreement", false, 0)
	a.RecordConflict("methodology_disagreement", true, 0)
	_, ok = a.HistoricalRate("methodology_disagreement")
	assert.False(t, ok)

	a.RecordConflictOutcome("methodology_disagreement", false)
	a.RecordConflictOutcome("methodology_disagreement", true)
	a.RecordConflictOutcome("methodology_disagreement", true)

	rate, ok := a.HistoricalRate("methodology_disagreement")
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, rate, 1e-9)

	stats := a.Snapshot().ConflictHistory["methodology_disagreement"]
	assert.Equal(t, ConflictTypeStats{Observed: 2, Total: 3, Successful: 2, Rate: 2.0 / 3.0}, stats)
}

func TestAggregator_SinksReceiveEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	a := NewAggregator()
	a.AddSink(sink)
	a.AddSink(nil)

	a.RecordBroadcast(time.Millisecond, 4, 3, 1)
	a.RecordCoordination(time.Millisecond)

	require.Len(t, sink.events, 2)
	assert.Equal(t, OpBroadcast, sink.events[0].Operation)
	assert.Equal(t, "partial", sink.events[0].Status)
	assert.Equal(t, 1, sink.events[0].Failed)
	assert.Equal(t, OpTaskCoordination, sink.events[1].Operation)

	s := a.Snapshot()
	assert.Equal(t, int64(4), s.DeliveriesSucceeded)
	assert.Equal(t, int64(1), s.ComplexTasksCoordinated)
}

func TestAggregator_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	a := NewAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.RecordCollaboration(time.Microsecond, true)
			a.RecordConflict("resource_competition", false, time.Microsecond)
			_ = a.Snapshot()
		}()
	}
	wg.Wait()

	s := a.Snapshot()
	assert.Equal(t, int64(50), s.CollaborationsFacilitated)
	assert.Equal(t, int64(50), s.ConflictHistory["resource_competition"].Observed)
	assert.Zero(t, s.ConflictHistory["resource_competition"].Total)
}
