package fees

import (
	"sync"

	"casa-relay/lib/relayerr"
)

// Metrics tracks fee collection outcomes
type Metrics struct {
	mu sync.RWMutex

	Scheduled  int64
	Collected  int64
	FailedKind map[string]int64
}

type MetricsSnapshot struct {
	Scheduled  int64            `json:"scheduled"`
	Collected  int64            `json:"collected"`
	FailedKind map[string]int64 `json:"failed"`
}

func NewMetrics() *Metrics {
	return &Metrics{FailedKind: make(map[string]int64)}
}

func (m *Metrics) IncrementScheduled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Scheduled++
}

func (m *Metrics) IncrementCollected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Collected++
}

func (m *Metrics) RecordFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailedKind[relayerr.Kind(err)]++
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	failed := make(map[string]int64, len(m.FailedKind))
	for k, v := range m.FailedKind {
		failed[k] = v
	}
	return MetricsSnapshot{
		Scheduled:  m.Scheduled,
		Collected:  m.Collected,
		FailedKind: failed,
	}
}
