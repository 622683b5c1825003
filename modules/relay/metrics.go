package relay

import (
	"sync"

	"casa-relay/lib/relayerr"
)

// Metrics counts relay outcomes for the status endpoint.
type Metrics struct {
	mu sync.RWMutex

	Requests   int64
	Submitted  int64
	Deployed   int64
	FailedKind map[string]int64
}

type MetricsSnapshot struct {
	Requests   int64            `json:"requests"`
	Submitted  int64            `json:"submitted"`
	Deployed   int64            `json:"deployed"`
	FailedKind map[string]int64 `json:"failed"`
}

func NewMetrics() *Metrics {
	return &Metrics{FailedKind: make(map[string]int64)}
}

func (m *Metrics) IncrementRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests++
}

// RecordSubmitted counts a broadcast; deployed is set when the broadcast
// also creates the wallet.
func (m *Metrics) RecordSubmitted(deployed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Submitted++
	if deployed {
		m.Deployed++
	}
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
		Requests:   m.Requests,
		Submitted:  m.Submitted,
		Deployed:   m.Deployed,
		FailedKind: failed,
	}
}
