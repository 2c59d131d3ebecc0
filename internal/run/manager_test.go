package run

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/repro-cli/internal/randomness"
	"github.com/sells-group/repro-cli/internal/tracker"
)

func int64Ptr(v int64) *int64 { return &v }

func newTestManager() *Manager {
	return NewManager(randomness.New(randomness.ModeForbidden), false)
}

func TestManager_SuccessfulRun(t *testing.T) {
	m := newTestManager()

	var captured *Run
	err := m.ActiveRun(context.Background(), Config{Seed: int64Ptr(7)}, func(ctx context.Context, r *Run) error {
		captured = r
		assert.Equal(t, StatusRunning, r.Status)
		assert.NotEmpty(t, r.RunID)
		assert.NotEmpty(t, r.ExperimentID)
		assert.NotEmpty(t, r.RunNonce)
		assert.NotEmpty(t, r.Environment["go_version"])

		got := m.Current(ctx)
		assert.Same(t, r, got)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, captured.Status)
	assert.False(t, captured.EndedAt.IsZero(), "ended_at must be set on exit")
}

func TestManager_FailedRunMarkedFailure(t *testing.T) {
	m := newTestManager()
	boom := errors.New("stage blew up")

	var captured *Run
	err := m.ActiveRun(context.Background(), Config{}, func(ctx context.Context, r *Run) error {
		captured = r
		return boom
	})
	require.ErrorIs(t, err, boom, "the original error must propagate unchanged")
	assert.Equal(t, StatusFailure, captured.Status)
	assert.False(t, captured.EndedAt.IsZero())
}

func TestManager_PanicMarksFailureAndRepanics(t *testing.T) {
	m := newTestManager()

	var captured *Run
	assert.Panics(t, func() {
		_ = m.ActiveRun(context.Background(), Config{}, func(ctx context.Context, r *Run) error {
			captured = r
			panic("mid-run panic")
		})
	})
	assert.Equal(t, StatusFailure, captured.Status)
	assert.False(t, captured.EndedAt.IsZero())
}

func TestManager_NestedRunRejected(t *testing.T) {
	m := newTestManager()

	err := m.ActiveRun(context.Background(), Config{}, func(ctx context.Context, outer *Run) error {
		inner := m.ActiveRun(ctx, Config{}, func(context.Context, *Run) error { return nil })
		var nested *NestedRunError
		require.ErrorAs(t, inner, &nested)
		assert.Equal(t, outer.RunID, nested.ActiveRunID)
		return nil
	})
	require.NoError(t, err)
}

func TestManager_ConcurrentRunsOnSeparateGoroutines(t *testing.T) {
	m := newTestManager()

	var wg sync.WaitGroup
	runIDs := make([]string, 8)
	for i := range runIDs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := m.ActiveRun(context.Background(), Config{Seed: int64Ptr(7)}, func(ctx context.Context, r *Run) error {
				runIDs[i] = r.RunID
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range runIDs {
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "run ids must never collide, even with a shared seed")
		seen[id] = true
	}
}

func TestManager_CallbacksRunInOrderAndSurvivePanics(t *testing.T) {
	m := newTestManager()

	var order []string
	err := m.ActiveRun(context.Background(), Config{}, func(ctx context.Context, r *Run) error {
		ok := m.RegisterCallback(ctx, func() { order = append(order, "first") })
		assert.True(t, ok)
		r.OnClose(func() { panic("callback panic") })
		r.OnClose(func() { order = append(order, "third") })
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestManager_RegisterCallbackOutsideScope(t *testing.T) {
	m := newTestManager()
	assert.False(t, m.RegisterCallback(context.Background(), func() {}))
}

func TestManager_CurrentWithoutRunIsPlaceholder(t *testing.T) {
	m := newTestManager()

	r := m.Current(context.Background())
	assert.Equal(t, "none", r.RunID)
	assert.Equal(t, StatusNone, r.Status)
	assert.Nil(t, r.Seed)
	assert.False(t, r.StartedAt.IsZero())
	assert.Equal(t, time.UTC, r.StartedAt.Location(), "placeholder timestamp must be UTC")
}

func TestManager_SeededRunRegistersSeedWithGovernor(t *testing.T) {
	gov := randomness.New(randomness.ModeForbidden)
	m := NewManager(gov, false)

	err := m.ActiveRun(context.Background(), Config{Seed: int64Ptr(42)}, func(ctx context.Context, r *Run) error {
		seed, ok := gov.CurrentSeed(ctx)
		require.True(t, ok, "the run's seed must be registered for the scope")
		assert.Equal(t, int64(42), seed)

		_, err := gov.Draw(ctx, randomness.Request{})
		return err
	})
	require.NoError(t, err)
	require.Len(t, gov.SeedLog(), 1)
	assert.Equal(t, int64(42), gov.SeedLog()[0].Seed)
}

func TestManager_StrictPolicyReachesTracker(t *testing.T) {
	m := NewManager(randomness.New(randomness.ModeForbidden), true)

	var captured *Run
	err := m.ActiveRun(context.Background(), Config{}, func(ctx context.Context, r *Run) error {
		captured = r
		return r.Tracker.Record("metric", tracker.StatusSimulated, "fallback")
	})
	var viol *tracker.SimulationViolationError
	require.ErrorAs(t, err, &viol)
	assert.Equal(t, StatusFailure, captured.Status, "a strict violation must also mark the run failed")
}

func TestExperimentID_StableAcrossKeyOrder(t *testing.T) {
	seed := int64Ptr(7)

	a, err := ExperimentID(seed, map[string]any{"k": 1, "nested": map[string]any{"x": 1.5, "y": "z"}})
	require.NoError(t, err)
	b, err := ExperimentID(seed, map[string]any{"nested": map[string]any{"y": "z", "x": 1.5}, "k": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b, "semantically equal configs must hash identically")

	c, err := ExperimentID(int64Ptr(8), map[string]any{"k": 1, "nested": map[string]any{"x": 1.5, "y": "z"}})
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "changing the seed must change the experiment id")

	d, err := ExperimentID(seed, map[string]any{"k": 2})
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}

func TestManager_SameSeedConfigSameExperimentDifferentRun(t *testing.T) {
	m := newTestManager()
	cfg := Config{Seed: int64Ptr(7), Params: map[string]any{"k": 1}}

	var first, second *Run
	require.NoError(t, m.ActiveRun(context.Background(), cfg, func(ctx context.Context, r *Run) error {
		first = r
		return nil
	}))
	require.NoError(t, m.ActiveRun(context.Background(), cfg, func(ctx context.Context, r *Run) error {
		second = r
		return nil
	}))

	assert.Equal(t, first.ExperimentID, second.ExperimentID)
	assert.NotEqual(t, first.RunID, second.RunID, "the nonce must keep repeated invocations distinct")
}
