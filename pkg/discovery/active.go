package discovery

import (
	"sync"
	"time"

	"github.com/gaecan04/krusty-club/pkg/packet"
)

// ActiveFlood tracks one flood round an initiator started: the responses
// are ingested into the caller's topology.Graph as soon as each one
// arrives (spec.md §9 resolves the open question on batching this way —
// immediate ingestion, not held until the round's timeout), while the
// round itself stays "active" only to bound how long a caller waits
// before deciding discovery is as complete as it will get.
type ActiveFlood struct {
	ID      packet.FloodID
	Started time.Time
	Timeout time.Duration

	mu        sync.Mutex
	responses int
}

// NewActiveFlood starts tracking a flood initiated with id.
func NewActiveFlood(id packet.FloodID) *ActiveFlood {
	return &ActiveFlood{ID: id, Started: timeNow(), Timeout: DefaultTimeout}
}

// timeNow is a seam so tests can avoid depending on wall-clock time.
var timeNow = time.Now

// RecordResponse increments the count of FloodResponses seen for this
// round. The caller is responsible for separately ingesting the response's
// PathTrace into its topology.Graph — ActiveFlood only counts arrivals.
func (a *ActiveFlood) RecordResponse() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses++
}

// ResponseCount returns how many FloodResponses have arrived so far.
func (a *ActiveFlood) ResponseCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.responses
}

// Deadline returns the instant after which this round should be
// considered finished.
func (a *ActiveFlood) Deadline() time.Time {
	return a.Started.Add(a.Timeout)
}

// Expired reports whether the round's timeout has elapsed.
func (a *ActiveFlood) Expired() bool {
	return timeNow().After(a.Deadline())
}
