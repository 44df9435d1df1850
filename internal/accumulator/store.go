package accumulator

import (
	"hash/fnv"
	"sync"
	"time"

	"carbonledger/internal/models"
)

const (
	// shardCount spreads per-device locks so unrelated devices never contend.
	// Power of two, masked against the fnv hash of the device id.
	shardCount = 64

	// maxIssueAttempts bounds how many times a window may re-arm after a
	// failed ledger write before it is abandoned to manual reconciliation.
	maxIssueAttempts = 3
)

// accumulator is the live per-device window state. Only ever touched under
// its shard lock; callers receive snapshots.
type accumulator struct {
	totalCo2         float64
	totalEnergy      float64
	sampleCount      int
	windowStart      time.Time
	thresholdReached bool
	issueAttempts    int
}

type shard struct {
	mu   sync.Mutex
	accs map[string]*accumulator
}

// Store holds windowed totals for every reporting device. State is
// process-local and rebuildable: it derives entirely from persisted readings
// since windowStart, so a restart only widens one window per device.
type Store struct {
	shards [shardCount]*shard
}

func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i] = &shard{accs: make(map[string]*accumulator)}
	}
	return s
}

func (s *Store) shardFor(deviceID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return s.shards[h.Sum32()&(shardCount-1)]
}

// ApplyResult reports the accumulator state after one reading, and whether
// this call observed the window's single false→true threshold transition.
type ApplyResult struct {
	Snapshot models.AccumulatorSnapshot
	Crossed  bool
}

// Apply folds one reading into the device's accumulator and evaluates the
// threshold policy inside the same critical section. The window resets
// whenever now-windowStart has reached the configured time window; once the
// thresholdReached flag is set, evaluation stays off for the rest of the
// window, so at most one caller per window sees Crossed=true.
func (s *Store) Apply(deviceID string, r models.Reading, th models.Threshold, now time.Time) ApplyResult {
	sh := s.shardFor(deviceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, ok := sh.accs[deviceID]
	if !ok || now.Sub(acc.windowStart) >= th.TimeWindow() {
		acc = &accumulator{windowStart: now.UTC()}
		sh.accs[deviceID] = acc
	}

	acc.totalCo2 += r.Co2Value
	acc.totalEnergy += r.EnergyValue
	acc.sampleCount++

	crossed := false
	if !acc.thresholdReached &&
		acc.totalCo2 >= th.Co2Threshold &&
		acc.totalEnergy >= th.EnergyThreshold {
		acc.thresholdReached = true
		crossed = true
	}

	return ApplyResult{Snapshot: snapshotOf(deviceID, acc), Crossed: crossed}
}

// Release re-arms a window after a failed ledger issuance so a later reading
// can retry, up to maxIssueAttempts per window. It reports whether the window
// was re-armed. A stale windowStart (the window already rolled over) is a
// no-op: the new window evaluates on its own terms.
func (s *Store) Release(deviceID string, windowStart time.Time) bool {
	sh := s.shardFor(deviceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, ok := sh.accs[deviceID]
	if !ok || !acc.windowStart.Equal(windowStart) || !acc.thresholdReached {
		return false
	}
	acc.issueAttempts++
	if acc.issueAttempts >= maxIssueAttempts {
		return false
	}
	acc.thresholdReached = false
	return true
}

// Snapshot returns the current window state for a device, if any.
func (s *Store) Snapshot(deviceID string) (models.AccumulatorSnapshot, bool) {
	sh := s.shardFor(deviceID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	acc, ok := sh.accs[deviceID]
	if !ok {
		return models.AccumulatorSnapshot{}, false
	}
	return snapshotOf(deviceID, acc), true
}

func snapshotOf(deviceID string, acc *accumulator) models.AccumulatorSnapshot {
	return models.AccumulatorSnapshot{
		DeviceID:         deviceID,
		TotalCo2:         acc.totalCo2,
		TotalEnergy:      acc.totalEnergy,
		SampleCount:      acc.sampleCount,
		WindowStart:      acc.windowStart,
		ThresholdReached: acc.thresholdReached,
	}
}
