package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/repro-cli/internal/artifact"
)

var (
	verifyRoot    string
	verifyWorkers int
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Audit an artifact tree",
	Long:  "Validates every artifact envelope and checks that each latest pointer has its permanent run-scoped snapshot. Exits non-zero on any violation.",
	RunE: func(cmd *cobra.Command, args []string) error {
		root := verifyRoot
		if root == "" {
			root = cfg.Artifacts.Root
		}

		report, err := verifyTree(cmd.Context(), root, verifyWorkers)
		if err != nil {
			return err
		}

		zap.L().Info("verify finished",
			zap.Int("artifacts", report.Checked),
			zap.Int("violations", len(report.Violations)),
		)
		if len(report.Violations) > 0 {
			for _, v := range report.Violations {
				fmt.Fprintf(os.Stderr, "%s: %s\n", v.Path, v.Problem)
			}
			return eris.Errorf("%d of %d artifacts failed verification", len(report.Violations), report.Checked)
		}
		fmt.Printf("ok: %d artifacts verified\n", report.Checked)
		return nil
	},
}

type verifyViolation struct {
	Path    string
	Problem string
}

type verifyReport struct {
	Checked    int
	Violations []verifyViolation
}

// verifyTree walks root, validating every JSON artifact concurrently. Latest
// pointers additionally must have a by_run snapshot matching their run id.
func verifyTree(ctx context.Context, root string, workers int) (*verifyReport, error) {
	if workers <= 0 {
		workers = 4
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "verify: walk %s", root)
	}

	report := &verifyReport{Checked: len(paths)}
	var mu sync.Mutex
	flag := func(path, problem string) {
		mu.Lock()
		report.Violations = append(report.Violations, verifyViolation{Path: path, Problem: problem})
		mu.Unlock()
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range paths {
		g.Go(func() error {
			env, err := artifact.ReadEnvelope(path)
			if err != nil {
				flag(path, err.Error())
				return nil
			}
			if err := env.Validate(); err != nil {
				flag(path, err.Error())
				return nil
			}
			if !isSnapshot(path) {
				if problem := checkSnapshotExists(path, env.Provenance.RunID); problem != "" {
					flag(path, problem)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

func isSnapshot(path string) bool {
	return filepath.Base(filepath.Dir(path)) == "by_run"
}

// checkSnapshotExists confirms the permanent copy backing a latest pointer.
func checkSnapshotExists(path, runID string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, ".json")
	snapshot := filepath.Join(dir, "by_run", fmt.Sprintf("%s.%s.json", stem, runID))
	if _, err := os.Stat(snapshot); err != nil {
		return fmt.Sprintf("latest pointer has no run-scoped snapshot for run %s", runID)
	}
	return ""
}

func init() {
	verifyCmd.Flags().StringVar(&verifyRoot, "root", "", "artifact root to verify (defaults to configured artifact root)")
	verifyCmd.Flags().IntVar(&verifyWorkers, "workers", 4, "concurrent verifiers")
	rootCmd.AddCommand(verifyCmd)
}
