package tracker

import (
	"fmt"
	"sync"
	"time"
)

// Status classifies how a sub-computation's value was obtained.
type Status string

const (
	// StatusComputed means the value was genuinely computed from input data.
	StatusComputed Status = "computed"
	// StatusSimulated means a fallback or simulated path produced the value.
	StatusSimulated Status = "simulated"
	// StatusCached means the value was served from a cache.
	StatusCached Status = "cached"
)

// Record is one entry in the per-run computation ledger.
type Record struct {
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Summary aggregates record counts per status.
type Summary struct {
	Computed  int `json:"computed"`
	Simulated int `json:"simulated"`
	Cached    int `json:"cached"`
}

// Total returns the number of tracked sub-computations.
func (s Summary) Total() int { return s.Computed + s.Simulated + s.Cached }

// SimulationViolationError reports a simulated value recorded while strict
// enforcement is active.
type SimulationViolationError struct {
	Name   string
	Reason string
}

func (e *SimulationViolationError) Error() string {
	msg := fmt.Sprintf("computation %q is simulated but strict mode requires computed values", e.Name)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Tracker is the per-run ledger of computation statuses. Recording the same
// name twice overwrites the earlier entry. A Tracker tolerates concurrent
// recorders; aggregation is append-safe under an internal lock.
type Tracker struct {
	mu      sync.Mutex
	strict  bool
	records map[string]Record
	order   []string
}

// New returns an empty ledger. With strict enabled, recording a simulated
// status fails immediately instead of letting the pipeline continue with a
// silently degraded result.
func New(strict bool) *Tracker {
	return &Tracker{strict: strict, records: make(map[string]Record)}
}

// Strict reports whether strict enforcement is active.
func (t *Tracker) Strict() bool { return t.strict }

// Record stores or overwrites the entry for name. Under strict mode a
// simulated status is recorded for audit and then rejected with
// SimulationViolationError; the error is meant to propagate to the top of
// the active run, not to be retried here.
func (t *Tracker) Record(name string, status Status, reason string) error {
	t.mu.Lock()
	if _, seen := t.records[name]; !seen {
		t.order = append(t.order, name)
	}
	t.records[name] = Record{
		Name:       name,
		Status:     status,
		Reason:     reason,
		RecordedAt: time.Now().UTC(),
	}
	t.mu.Unlock()

	if t.strict && status == StatusSimulated {
		return &SimulationViolationError{Name: name, Reason: reason}
	}
	return nil
}

// Summary returns aggregate counts per status.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Summary
	for _, r := range t.records {
		switch r.Status {
		case StatusComputed:
			s.Computed++
		case StatusSimulated:
			s.Simulated++
		case StatusCached:
			s.Cached++
		}
	}
	return s
}

// Records returns the ledger entries in first-recorded order.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.records[name])
	}
	return out
}
