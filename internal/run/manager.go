package run

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/repro-cli/internal/ids"
	"github.com/sells-group/repro-cli/internal/randomness"
	"github.com/sells-group/repro-cli/internal/tracker"
)

type runKey struct{}

// Manager owns run lifecycles. The active run travels in the context, so
// each goroutine's chain of calls sees exactly one run and concurrent
// goroutines never observe each other's.
type Manager struct {
	gov       *randomness.Governor
	strict    bool
	gitCommit string
	command   string
}

// NewManager returns a manager wired to the governor. strict is the
// process-level "require computed" policy handed to each run's tracker.
func NewManager(gov *randomness.Governor, strict bool) *Manager {
	return &Manager{
		gov:       gov,
		strict:    strict,
		gitCommit: resolveGitCommit(),
		command:   strings.Join(os.Args, " "),
	}
}

// FromContext returns the active run in ctx, if any.
func FromContext(ctx context.Context) (*Run, bool) {
	r, ok := ctx.Value(runKey{}).(*Run)
	return r, ok
}

// Current returns the active run for ctx, or a contextless placeholder
// (run id "none", current UTC timestamp) when no scope is open. Collaborators
// outside a managed scope degrade to unattributed provenance instead of
// failing.
func (m *Manager) Current(ctx context.Context) *Run {
	if r, ok := FromContext(ctx); ok {
		return r
	}
	return &Run{
		RunID:        "none",
		ExperimentID: "none",
		Status:       StatusNone,
		StartedAt:    time.Now().UTC(),
		GitCommit:    m.gitCommit,
		Command:      m.command,
		Tracker:      tracker.New(m.strict),
	}
}

// RegisterCallback attaches a completion hook to the active run. It reports
// false when no run is active, in which case the hook is dropped.
func (m *Manager) RegisterCallback(ctx context.Context, fn func()) bool {
	r, ok := FromContext(ctx)
	if !ok {
		zap.L().Warn("run callback registered outside an active run scope; dropped")
		return false
	}
	r.OnClose(fn)
	return true
}

// ActiveRun opens a run scope, invokes fn with the derived context and the
// run, and finalizes the run on every exit path. On a nil return from fn the
// status becomes success; on error or panic it becomes failure, callbacks
// still execute, and the original error or panic propagates unchanged.
// Opening a scope inside an existing one fails with NestedRunError.
func (m *Manager) ActiveRun(ctx context.Context, cfg Config, fn func(context.Context, *Run) error) error {
	if active, ok := FromContext(ctx); ok {
		return &NestedRunError{ActiveRunID: active.RunID}
	}

	r, err := m.newRun(cfg)
	if err != nil {
		return err
	}

	rctx := context.WithValue(ctx, runKey{}, r)
	if cfg.Seed != nil && m.gov != nil {
		rctx = m.gov.WithMode(rctx, randomness.ModeSeeded)
		rctx, err = m.gov.RegisterSeed(rctx, *cfg.Seed, "run "+r.RunID)
		if err != nil {
			return err
		}
	}

	zap.L().Info("run started",
		zap.String("run_id", r.RunID),
		zap.String("experiment_id", r.ExperimentID),
		zap.Bool("seeded", cfg.Seed != nil),
	)

	finalized := false
	finalize := func(status Status) {
		if finalized {
			return
		}
		finalized = true
		r.Status = status
		r.EndedAt = time.Now().UTC()
		m.runCallbacks(r)
		s := r.Tracker.Summary()
		zap.L().Info("run finished",
			zap.String("run_id", r.RunID),
			zap.String("status", string(status)),
			zap.Duration("elapsed", r.EndedAt.Sub(r.StartedAt)),
			zap.Int("computed", s.Computed),
			zap.Int("simulated", s.Simulated),
			zap.Int("cached", s.Cached),
		)
	}
	defer func() {
		if p := recover(); p != nil {
			finalize(StatusFailure)
			panic(p)
		}
	}()

	if err := fn(rctx, r); err != nil {
		finalize(StatusFailure)
		return err
	}
	finalize(StatusSuccess)
	return nil
}

// newRun allocates identity for a fresh run. Seeded runs derive the run id
// stem from a deterministic factory; the nonce keeps repeated same-seed
// invocations from ever colliding on disk.
func (m *Manager) newRun(cfg Config) (*Run, error) {
	expID, err := ExperimentID(cfg.Seed, cfg.Params)
	if err != nil {
		return nil, err
	}
	nonce := strings.SplitN(uuid.NewString(), "-", 2)[0]

	var runID string
	var fac *ids.Factory
	if cfg.Seed != nil {
		fac = ids.New(*cfg.Seed, "run")
		runID = fac.NextID() + "." + nonce
	} else {
		runID = uuid.NewString()
	}

	return &Run{
		RunID:        runID,
		ExperimentID: expID,
		RunNonce:     nonce,
		Seed:         cfg.Seed,
		Config:       cfg.Params,
		Status:       StatusRunning,
		StartedAt:    time.Now().UTC(),
		Environment:  snapshotEnvironment(),
		GitCommit:    m.gitCommit,
		Command:      m.command,
		Tracker:      tracker.New(m.strict),
		IDs:          fac,
	}, nil
}

// runCallbacks executes completion hooks in order. A panicking hook is
// logged and must not prevent later hooks or scope teardown.
func (m *Manager) runCallbacks(r *Run) {
	for i, fn := range r.callbacks {
		func() {
			defer func() {
				if p := recover(); p != nil {
					zap.L().Error("run callback failed",
						zap.String("run_id", r.RunID),
						zap.Int("callback", i),
						zap.Any("panic", p),
					)
				}
			}()
			fn()
		}()
	}
}

// resolveGitCommit captures the commit the process is running from. The
// REPRO_GIT_COMMIT override wins so containerized deployments without a work
// tree stay attributable.
func resolveGitCommit() string {
	if c := os.Getenv("REPRO_GIT_COMMIT"); c != "" {
		return c
	}
	out, err := exec.Command("git", "rev-parse", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}
