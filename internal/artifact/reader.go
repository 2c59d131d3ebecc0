package artifact

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// ReadEnvelope loads and decodes a persisted artifact.
func ReadEnvelope(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", path)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, eris.Wrapf(err, "artifact: decode %s", path)
	}
	return &env, nil
}

// Validate checks that the envelope carries a complete provenance block.
func (e *Envelope) Validate() error {
	switch {
	case e.Provenance.RunID == "":
		return eris.New("artifact: envelope missing run_id")
	case e.Provenance.Timestamp.IsZero():
		return eris.New("artifact: envelope missing timestamp")
	case e.Provenance.ExperimentID == "":
		return eris.New("artifact: envelope missing experiment_id")
	}
	if m, ok := e.Results.(map[string]any); ok {
		if _, clash := m["status"]; clash {
			return eris.New("artifact: results embed a mutable status field")
		}
	}
	return nil
}
