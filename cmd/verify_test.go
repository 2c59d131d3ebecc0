package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/repro-cli/internal/artifact"
	"github.com/sells-group/repro-cli/internal/randomness"
	"github.com/sells-group/repro-cli/internal/run"
)

func writeArtifacts(t *testing.T) (string, *run.Manager) {
	t.Helper()
	root := t.TempDir()
	mgr := run.NewManager(randomness.New(randomness.ModeForbidden), false)
	w := artifact.NewWriter(root, mgr)

	err := mgr.ActiveRun(context.Background(), run.Config{}, func(ctx context.Context, r *run.Run) error {
		if _, err := w.SaveResults(ctx, map[string]any{"a": 1}, "stress/mean.json"); err != nil {
			return err
		}
		_, err := w.SaveResults(ctx, map[string]any{"b": 2}, "lattice/score.json")
		return err
	})
	require.NoError(t, err)
	return root, mgr
}

func TestVerifyTree_CleanTree(t *testing.T) {
	root, _ := writeArtifacts(t)

	report, err := verifyTree(context.Background(), root, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Checked, "two latest pointers plus two snapshots")
	assert.Empty(t, report.Violations)
}

func TestVerifyTree_FlagsTamperedEnvelope(t *testing.T) {
	root, _ := writeArtifacts(t)

	tampered := filepath.Join(root, "stress", "mean.json")
	require.NoError(t, os.WriteFile(tampered, []byte(`{"results": {"a": 1}}`), 0o644))

	report, err := verifyTree(context.Background(), root, 2)
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Contains(t, report.Violations[0].Problem, "run_id")
}

func TestVerifyTree_FlagsMissingSnapshot(t *testing.T) {
	root, _ := writeArtifacts(t)

	byRun, err := os.ReadDir(filepath.Join(root, "stress", "by_run"))
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	require.NoError(t, os.Remove(filepath.Join(root, "stress", "by_run", byRun[0].Name())))

	report, err := verifyTree(context.Background(), root, 2)
	require.NoError(t, err)
	require.Len(t, report.Violations, 1)
	assert.Contains(t, report.Violations[0].Problem, "no run-scoped snapshot")
}
