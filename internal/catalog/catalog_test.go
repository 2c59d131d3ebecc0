package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/repro-cli/internal/artifact"
	"github.com/sells-group/repro-cli/internal/randomness"
	"github.com/sells-group/repro-cli/internal/tracker"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck
	require.NoError(t, c.Migrate(context.Background()))
	return c
}

func writeRecord(runID, logical string, at time.Time) artifact.WriteRecord {
	return artifact.WriteRecord{
		RunID:        runID,
		ExperimentID: "exp-abc",
		LogicalPath:  logical,
		SnapshotPath: "artifacts/" + logical,
		Bytes:        128,
		WrittenAt:    at,
	}
}

func TestCatalog_RecordAndListArtifacts(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, c.RecordArtifact(ctx, writeRecord("r1", "stress/mean.json", now.Add(-time.Minute))))
	require.NoError(t, c.RecordArtifact(ctx, writeRecord("r1", "stress/ci.json", now)))
	require.NoError(t, c.RecordArtifact(ctx, writeRecord("r2", "lattice/score.json", now)))

	all, err := c.ListArtifacts(ctx, ArtifactFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	r1, err := c.ListArtifacts(ctx, ArtifactFilter{RunID: "r1"})
	require.NoError(t, err)
	require.Len(t, r1, 2)
	assert.Equal(t, "stress/ci.json", r1[0].LogicalPath, "most recent first")

	limited, err := c.ListArtifacts(ctx, ArtifactFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCatalog_RunActivityAggregation(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, c.RecordArtifact(ctx, writeRecord("r1", "stress/mean.json", now.Add(-2*time.Minute))))
	require.NoError(t, c.RecordArtifact(ctx, writeRecord("r1", "stress/ci.json", now.Add(-time.Minute))))
	require.NoError(t, c.RecordArtifact(ctx, writeRecord("r2", "lattice/score.json", now)))
	require.NoError(t, c.RecordSummary(ctx, "r1", tracker.Summary{Computed: 3, Simulated: 1}))

	activity, err := c.ListRunActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, activity, 2)

	assert.Equal(t, "r2", activity[0].RunID, "most recent activity first")
	assert.Equal(t, "r1", activity[1].RunID)
	assert.Equal(t, 2, activity[1].Artifacts)
	assert.Equal(t, 1, activity[1].Simulated)
	assert.True(t, activity[1].FirstWrite.Before(activity[1].LastWrite))
}

func TestCatalog_RecordSeeds(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	entries := []randomness.SeedLogEntry{
		{Seed: 7, Origin: "run r1", RegisteredAt: time.Now().UTC()},
		{Seed: 8, Origin: "run r2", RegisteredAt: time.Now().UTC()},
	}
	require.NoError(t, c.RecordSeeds(ctx, entries))
	require.NoError(t, c.RecordSeeds(ctx, nil))
}
