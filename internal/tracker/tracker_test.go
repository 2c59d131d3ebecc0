package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_RecordAndSummary(t *testing.T) {
	tr := New(false)

	require.NoError(t, tr.Record("stress.mean", StatusComputed, ""))
	require.NoError(t, tr.Record("stress.ci", StatusSimulated, "insufficient samples"))
	require.NoError(t, tr.Record("lattice.score", StatusCached, ""))

	s := tr.Summary()
	assert.Equal(t, 1, s.Computed)
	assert.Equal(t, 1, s.Simulated)
	assert.Equal(t, 1, s.Cached)
	assert.Equal(t, 3, s.Total())
}

func TestTracker_StrictRejectsSimulated(t *testing.T) {
	tr := New(true)
	assert.True(t, tr.Strict())

	err := tr.Record("stress.mean", StatusSimulated, "fallback path")
	var viol *SimulationViolationError
	require.ErrorAs(t, err, &viol)
	assert.Equal(t, "stress.mean", viol.Name)

	// The violation is still visible in the ledger for post-mortem audit.
	assert.Equal(t, 1, tr.Summary().Simulated)
}

func TestTracker_StrictAllowsComputedAndCached(t *testing.T) {
	tr := New(true)

	require.NoError(t, tr.Record("a", StatusComputed, ""))
	require.NoError(t, tr.Record("b", StatusCached, ""))
}

func TestTracker_OverwriteKeepsOrder(t *testing.T) {
	tr := New(false)

	require.NoError(t, tr.Record("a", StatusSimulated, "first pass"))
	require.NoError(t, tr.Record("b", StatusComputed, ""))
	require.NoError(t, tr.Record("a", StatusComputed, "recomputed"))

	recs := tr.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].Name)
	assert.Equal(t, StatusComputed, recs[0].Status)
	assert.Equal(t, "recomputed", recs[0].Reason)

	s := tr.Summary()
	assert.Equal(t, 2, s.Computed)
	assert.Zero(t, s.Simulated)
}
