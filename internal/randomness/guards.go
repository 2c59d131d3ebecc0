package randomness

import "context"

// NoRandomness wraps fn so that every draw inside it fails, regardless of
// the surrounding mode. The surrounding scope is untouched.
func (g *Governor) NoRandomness(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return fn(g.WithMode(ctx, ModeForbidden))
	}
}

// RequiresSeed wraps fn so that it fails before executing when no seed is
// registered in the calling context.
func (g *Governor) RequiresSeed(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, ok := g.CurrentSeed(ctx); !ok {
			return &ViolationError{Mode: g.Mode(ctx), Requirement: "a registered seed before entry"}
		}
		return fn(ctx)
	}
}
