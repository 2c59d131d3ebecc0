package randomness

import (
	"context"
	"math/rand/v2"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Kind selects the distribution a Request draws from.
type Kind string

const (
	// KindUniform draws from [0, 1). Zero value of Request.
	KindUniform Kind = "uniform"
	// KindNormal draws from a normal distribution with Mean and Sigma.
	KindNormal Kind = "normal"
	// KindInt draws an integer from [0, N).
	KindInt Kind = "int"
)

// Request describes a single randomness draw.
type Request struct {
	Kind  Kind
	N     int64   // upper bound for KindInt
	Mean  float64 // KindNormal
	Sigma float64 // KindNormal
}

// Draw is the single chokepoint for randomness. Under ModeForbidden it
// always fails; under ModeSeeded it fails unless a seed is registered in
// ctx, and otherwise serves the deterministic sequence for that seed; under
// ModeUnrestricted it serves an unseeded value and counts it.
func (g *Governor) Draw(ctx context.Context, req Request) (float64, error) {
	switch mode := g.Mode(ctx); mode {
	case ModeForbidden:
		return 0, &ViolationError{Mode: mode, Requirement: "draws are forbidden in this scope"}

	case ModeSeeded:
		s := scopeFrom(ctx)
		if s == nil || s.seed == nil {
			return 0, &ViolationError{Mode: mode, Requirement: "a registered seed"}
		}
		return sample(s.seed.rng, req)

	case ModeUnrestricted:
		g.mu.Lock()
		g.unseededDraws++
		n := g.unseededDraws
		g.mu.Unlock()
		zap.L().Debug("unseeded randomness draw", zap.Uint64("total_unseeded", n))
		return sample(nil, req)

	default:
		return 0, eris.Errorf("unknown randomness mode %q", mode)
	}
}

// DrawInt draws an integer from [0, n) through the same chokepoint.
func (g *Governor) DrawInt(ctx context.Context, n int64) (int64, error) {
	v, err := g.Draw(ctx, Request{Kind: KindInt, N: n})
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

// sample draws from rng, or from the process-global unseeded source when rng
// is nil.
func sample(rng *rand.Rand, req Request) (float64, error) {
	switch req.Kind {
	case KindUniform, "":
		if rng == nil {
			return rand.Float64(), nil
		}
		return rng.Float64(), nil

	case KindNormal:
		var z float64
		if rng == nil {
			z = rand.NormFloat64()
		} else {
			z = rng.NormFloat64()
		}
		return req.Mean + req.Sigma*z, nil

	case KindInt:
		if req.N <= 0 {
			return 0, eris.Errorf("int draw requires N > 0, got %d", req.N)
		}
		if rng == nil {
			return float64(rand.Int64N(req.N)), nil
		}
		return float64(rng.Int64N(req.N)), nil

	default:
		return 0, eris.Errorf("unknown distribution kind %q", req.Kind)
	}
}
