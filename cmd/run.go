package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/repro-cli/internal/analysis"
	"github.com/sells-group/repro-cli/internal/artifact"
	"github.com/sells-group/repro-cli/internal/catalog"
	"github.com/sells-group/repro-cli/internal/run"
)

var (
	runSeed       int64
	runConfigPath string
	runDataPath   string
	runMetric     string
	runOut        string
	runParallel   int
	runIterations int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bootstrap analysis inside a managed run scope",
	Long:  "Opens a run scope, registers the seed with the randomness governor, executes the bootstrap analysis, and persists the provenance-wrapped result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cat, err := initCatalog(cmd)
		if err != nil {
			return err
		}
		defer cat.Close() //nolint:errcheck

		gov := initGovernor()
		mgr := run.NewManager(gov, cfg.Computation.Strict)
		writer := artifact.NewWriter(cfg.Artifacts.Root, mgr, artifact.WithRecorder(cat))

		iterations := cfg.Analysis.Iterations
		if runIterations > 0 {
			iterations = runIterations
		}
		analyzer := analysis.New(gov, analysis.Config{
			MinSamples: cfg.Analysis.MinSamples,
			Iterations: iterations,
		})

		params, err := loadParams(runConfigPath)
		if err != nil {
			return err
		}
		samples, err := loadSamples(runDataPath)
		if err != nil {
			return err
		}

		var results []*analysis.Result
		if runParallel <= 1 {
			res, err := runOnce(ctx, mgr, cat, analyzer, writer, runSeed, params, samples, runOut)
			if err != nil {
				return err
			}
			results = append(results, res)
		} else {
			// Each worker gets its own seed and run scope; the governor keeps
			// their sequences isolated per scope.
			results = make([]*analysis.Result, runParallel)
			g, gctx := errgroup.WithContext(ctx)
			for i := 0; i < runParallel; i++ {
				g.Go(func() error {
					out := workerOut(runOut, i)
					res, err := runOnce(gctx, mgr, cat, analyzer, writer, runSeed+int64(i), params, samples, out)
					if err != nil {
						return err
					}
					results[i] = res
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
		}

		if err := cat.RecordSeeds(ctx, gov.SeedLog()); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

// runOnce executes one analysis inside its own run scope and persists the
// result. The completion callback flushes the computation summary to the
// catalog even when the run fails.
func runOnce(
	ctx context.Context,
	mgr *run.Manager,
	cat *catalog.Catalog,
	analyzer *analysis.Analyzer,
	writer *artifact.Writer,
	seed int64,
	params map[string]any,
	samples []float64,
	out string,
) (*analysis.Result, error) {
	var result *analysis.Result
	err := mgr.ActiveRun(ctx, run.Config{Seed: &seed, Params: params}, func(rctx context.Context, r *run.Run) error {
		mgr.RegisterCallback(rctx, func() {
			if err := cat.RecordSummary(context.Background(), r.RunID, r.Tracker.Summary()); err != nil {
				zap.L().Warn("flush computation summary failed",
					zap.String("run_id", r.RunID),
					zap.Error(err),
				)
			}
		})

		res, err := analyzer.BootstrapSummary(rctx, r.Tracker, runMetric, samples)
		if err != nil {
			return err
		}
		result = res

		_, err = writer.SaveResults(rctx, res, out)
		return err
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("analysis complete",
		zap.String("metric", result.Metric),
		zap.Int("n", result.N),
		zap.Float64("mean", result.Mean),
		zap.Bool("simulated", result.Simulated),
	)
	return result, nil
}

// workerOut derives a per-worker logical path: stress/summary.json becomes
// stress/summary_3.json for worker 3.
func workerOut(out string, worker int) string {
	if ext := ".json"; strings.HasSuffix(out, ext) {
		return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(out, ext), worker, ext)
	}
	return fmt.Sprintf("%s_%d", out, worker)
}

// loadParams reads the experiment configuration map; key order in the file
// is irrelevant to the resulting experiment id.
func loadParams(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read experiment config %s", path)
	}
	var params map[string]any
	if err := yaml.Unmarshal(raw, &params); err != nil {
		return nil, eris.Wrapf(err, "parse experiment config %s", path)
	}
	return params, nil
}

// loadSamples reads one float per line, skipping blanks and # comments.
func loadSamples(path string) ([]float64, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read samples %s", path)
	}
	var out []float64
	for i, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "parse sample on line %d of %s", i+1, path)
		}
		out = append(out, v)
	}
	return out, nil
}

func init() {
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "seed for deterministic randomness and id generation (required)")
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "experiment config YAML; determines the experiment id together with the seed")
	runCmd.Flags().StringVar(&runDataPath, "data", "", "input samples, one float per line; omit to exercise the simulated fallback")
	runCmd.Flags().StringVar(&runMetric, "metric", "stress.mean", "metric name recorded in the computation ledger")
	runCmd.Flags().StringVar(&runOut, "out", "stress/summary.json", "logical artifact path under the artifact root")
	runCmd.Flags().IntVar(&runParallel, "parallel", 1, "number of concurrent run scopes, seeded seed..seed+n-1")
	runCmd.Flags().IntVar(&runIterations, "iterations", 0, "bootstrap iterations (overrides config)")
	_ = runCmd.MarkFlagRequired("seed")
	rootCmd.AddCommand(runCmd)
}
