package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/repro-cli/internal/run"
)

// Provenance is the metadata wrapper attached to every persisted result.
type Provenance struct {
	RunID        string    `json:"run_id"`
	GitCommit    string    `json:"git_commit"`
	Timestamp    time.Time `json:"timestamp"`
	Seed         *int64    `json:"seed"`
	ExperimentID string    `json:"experiment_id"`
	Command      string    `json:"command"`
}

// Envelope is the persisted artifact: a provenance block plus the caller's
// result payload.
type Envelope struct {
	Provenance Provenance `json:"provenance"`
	Results    any        `json:"results"`
}

// SerializationError reports a results payload that could not be serialized,
// naming the offending key path when determinable.
type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("results not serializable at %q: %v", e.Path, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// WriteRecord describes one completed artifact write, for audit indexing.
type WriteRecord struct {
	RunID        string    `json:"run_id"`
	ExperimentID string    `json:"experiment_id"`
	LogicalPath  string    `json:"logical_path"`
	SnapshotPath string    `json:"snapshot_path"`
	Bytes        int       `json:"bytes"`
	WrittenAt    time.Time `json:"written_at"`
}

// Recorder indexes completed writes. The catalog implements it.
type Recorder interface {
	RecordArtifact(ctx context.Context, rec WriteRecord) error
}

// Writer is the sole sanctioned path for persisting result payloads. Every
// write produces an immutable run-scoped snapshot under by_run/ plus an
// always-overwritten latest pointer at the logical path.
type Writer struct {
	root string
	mgr  *run.Manager
	rec  Recorder
}

// Option configures a Writer.
type Option func(*Writer)

// WithRecorder attaches an audit index that is updated after each write.
func WithRecorder(rec Recorder) Option {
	return func(w *Writer) { w.rec = rec }
}

// NewWriter returns a writer rooted at root, sourcing provenance from mgr.
func NewWriter(root string, mgr *run.Manager, opts ...Option) *Writer {
	w := &Writer{root: root, mgr: mgr}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SaveResults serializes results inside a provenance envelope and writes
// both artifact copies for the logical path (e.g. "stress/summary.json").
// Outside an active run the provenance degrades to the contextless
// placeholder rather than failing. Neither filesystem failure is retried;
// the caller decides.
func (w *Writer) SaveResults(ctx context.Context, results any, logicalPath string) (*WriteRecord, error) {
	if err := validateLogicalPath(logicalPath); err != nil {
		return nil, err
	}
	if m, ok := results.(map[string]any); ok {
		if _, clash := m["status"]; clash {
			return nil, &SerializationError{
				Path: "status",
				Err:  eris.New("run status is mutable and lives in the run registry; it must not be baked into results"),
			}
		}
	}

	cur := w.mgr.Current(ctx)
	env := Envelope{
		Provenance: Provenance{
			RunID:        cur.RunID,
			GitCommit:    cur.GitCommit,
			Timestamp:    time.Now().UTC(),
			Seed:         cur.Seed,
			ExperimentID: cur.ExperimentID,
			Command:      cur.Command,
		},
		Results: results,
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, &SerializationError{Path: offendingPath(results, "results"), Err: err}
	}
	data = append(data, '\n')

	latest := filepath.Join(w.root, filepath.FromSlash(logicalPath))
	dir := filepath.Dir(latest)
	base := filepath.Base(latest)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	snapshot := filepath.Join(dir, "by_run", fmt.Sprintf("%s.%s%s", stem, cur.RunID, ext))

	if err := os.MkdirAll(filepath.Dir(snapshot), 0o755); err != nil {
		return nil, eris.Wrapf(err, "artifact: mkdir %s", filepath.Dir(snapshot))
	}
	// Snapshot first: the permanent copy must exist before the pointer moves.
	if err := os.WriteFile(snapshot, data, 0o644); err != nil {
		return nil, eris.Wrapf(err, "artifact: write snapshot %s", snapshot)
	}
	if err := os.WriteFile(latest, data, 0o644); err != nil {
		return nil, eris.Wrapf(err, "artifact: write latest pointer %s", latest)
	}

	rec := &WriteRecord{
		RunID:        cur.RunID,
		ExperimentID: cur.ExperimentID,
		LogicalPath:  logicalPath,
		SnapshotPath: snapshot,
		Bytes:        len(data),
		WrittenAt:    env.Provenance.Timestamp,
	}
	zap.L().Debug("artifact written",
		zap.String("run_id", rec.RunID),
		zap.String("logical_path", rec.LogicalPath),
		zap.Int("bytes", rec.Bytes),
	)

	if w.rec != nil {
		if err := w.rec.RecordArtifact(ctx, *rec); err != nil {
			return rec, eris.Wrapf(err, "artifact: index write for %s", logicalPath)
		}
	}
	return rec, nil
}

func validateLogicalPath(p string) error {
	if p == "" {
		return eris.New("artifact: empty logical path")
	}
	if filepath.IsAbs(p) || strings.Contains(p, "..") {
		return eris.Errorf("artifact: logical path %q must be relative and inside the artifact root", p)
	}
	return nil
}

// offendingPath walks a JSON-shaped payload to name the first value that
// fails to serialize. For opaque values it returns the path of the value
// itself.
func offendingPath(v any, path string) string {
	if _, err := json.Marshal(v); err == nil {
		return ""
	}
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if p := offendingPath(val, path+"."+k); p != "" {
				return p
			}
		}
	case []any:
		for i, val := range t {
			if p := offendingPath(val, fmt.Sprintf("%s[%d]", path, i)); p != "" {
				return p
			}
		}
	}
	return path
}
