package run

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/rotisserie/eris"

	"github.com/sells-group/repro-cli/internal/ids"
	"github.com/sells-group/repro-cli/internal/tracker"
)

// Status is the lifecycle state of a run. Transitions are
// none -> running -> success|failure and are driven only by the Manager.
type Status string

const (
	StatusNone    Status = "none"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Config is the caller-supplied identity input for a run. Params is the
// opaque experiment configuration; together with Seed it determines the
// experiment id, so two runs with equal seed and params group together.
type Config struct {
	Seed   *int64         `json:"seed,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Run is one execution instance. It is created when a scope opens, mutated
// only by the owning Manager, and exclusively owned by the goroutine that
// opened the scope for its entire lifetime.
type Run struct {
	RunID        string            `json:"run_id"`
	ExperimentID string            `json:"experiment_id"`
	RunNonce     string            `json:"run_nonce"`
	Seed         *int64            `json:"seed,omitempty"`
	Config       map[string]any    `json:"config,omitempty"`
	Status       Status            `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	EndedAt      time.Time         `json:"ended_at,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
	GitCommit    string            `json:"git_commit"`
	Command      string            `json:"command"`

	// Tracker is the run's computation-status ledger.
	Tracker *tracker.Tracker `json:"-"`
	// IDs is a deterministic per-run id factory, nil for unseeded runs.
	IDs *ids.Factory `json:"-"`

	callbacks []func()
}

// OnClose registers a zero-argument hook executed when the scope closes,
// after the status is finalized. Hooks run in registration order; a failing
// hook is logged and does not stop the remaining hooks.
func (r *Run) OnClose(fn func()) {
	r.callbacks = append(r.callbacks, fn)
}

// NestedRunError reports an attempt to open a run scope while one is already
// active on the same execution path.
type NestedRunError struct {
	ActiveRunID string
}

func (e *NestedRunError) Error() string {
	return fmt.Sprintf("run %s is already active in this scope; nested runs are not allowed", e.ActiveRunID)
}

// ExperimentID derives the deterministic grouping id for (seed, params).
// The params map is canonicalized with RFC 8785 JCS before hashing, so two
// semantically equal configs hash identically regardless of key order or
// serialization quirks.
func ExperimentID(seed *int64, params map[string]any) (string, error) {
	raw, err := json.Marshal(map[string]any{"seed": seed, "config": params})
	if err != nil {
		return "", eris.Wrap(err, "experiment id: marshal config")
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", eris.Wrap(err, "experiment id: canonicalize config")
	}
	sum := sha256.Sum256(canon)
	return "exp-" + hex.EncodeToString(sum[:6]), nil
}

// snapshotEnvironment captures the execution environment at scope open.
func snapshotEnvironment() map[string]string {
	host, _ := os.Hostname()
	return map[string]string{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"hostname":   host,
		"num_cpu":    strconv.Itoa(runtime.NumCPU()),
		"pid":        strconv.Itoa(os.Getpid()),
	}
}
