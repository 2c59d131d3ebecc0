package randomness

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Mode controls whether, and how, randomness may be drawn.
type Mode string

const (
	// ModeForbidden rejects every draw. This is the process default.
	ModeForbidden Mode = "forbidden"
	// ModeSeeded permits draws only from an explicitly registered seed;
	// given the same seed and call order the sequence is identical.
	ModeSeeded Mode = "seeded"
	// ModeUnrestricted permits unseeded draws. Compatibility mode for
	// legacy call sites; every draw is still counted and logged.
	ModeUnrestricted Mode = "unrestricted"
)

// SeedLogEntry is one registration in the governor's audit log.
type SeedLogEntry struct {
	Seed         int64     `json:"seed"`
	Origin       string    `json:"origin"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Governor is the single arbiter for randomness in the process. The
// process-wide default mode can be switched explicitly; per-goroutine
// overrides and registered seeds travel in the context, so concurrent
// analyses under different constraints never contaminate each other.
// The only cross-goroutine shared state is the append-only seed log.
type Governor struct {
	mu            sync.Mutex
	defaultMode   Mode
	seedLog       []SeedLogEntry
	unseededDraws uint64
}

// New returns a governor with the given process default mode. An empty mode
// falls back to ModeForbidden, the most restrictive.
func New(defaultMode Mode) *Governor {
	if defaultMode == "" {
		defaultMode = ModeForbidden
	}
	return &Governor{defaultMode: defaultMode}
}

type scopeKey struct{}

// scope is the per-context view of the governor. A scope is owned by the
// goroutine that derived it and must not be shared for concurrent draws.
type scope struct {
	mode    Mode
	hasMode bool
	seed    *seedState
}

type seedState struct {
	seed int64
	rng  *rand.Rand
}

func scopeFrom(ctx context.Context) *scope {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return s
	}
	return nil
}

// SetMode switches the process default mode. Scoped overrides already in
// flight are unaffected. The switch is logged.
func (g *Governor) SetMode(mode Mode) {
	g.mu.Lock()
	prev := g.defaultMode
	g.defaultMode = mode
	g.mu.Unlock()

	zap.L().Info("randomness mode switched",
		zap.String("from", string(prev)),
		zap.String("to", string(mode)),
	)
}

// Mode returns the effective mode for ctx: the innermost scoped override if
// one exists, otherwise the process default.
func (g *Governor) Mode(ctx context.Context) Mode {
	if s := scopeFrom(ctx); s != nil && s.hasMode {
		return s.mode
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.defaultMode
}

// WithMode derives a context whose effective mode is mode. The previous mode
// applies again as soon as the caller returns to the parent context, whether
// or not the scoped work failed. A registered seed is carried into the new
// scope so SEEDED sections can be re-entered.
func (g *Governor) WithMode(ctx context.Context, mode Mode) context.Context {
	next := &scope{mode: mode, hasMode: true}
	if s := scopeFrom(ctx); s != nil {
		next.seed = s.seed
	}
	return context.WithValue(ctx, scopeKey{}, next)
}

// RegisterSeed appends an entry to the audit log and derives a context whose
// draws are deterministically generated from seed. Valid only under
// ModeSeeded.
func (g *Governor) RegisterSeed(ctx context.Context, seed int64, origin string) (context.Context, error) {
	mode := g.Mode(ctx)
	if mode != ModeSeeded {
		return ctx, &ModeError{Op: "register seed", Mode: mode, Want: ModeSeeded}
	}

	g.mu.Lock()
	g.seedLog = append(g.seedLog, SeedLogEntry{
		Seed:         seed,
		Origin:       origin,
		RegisteredAt: time.Now().UTC(),
	})
	g.mu.Unlock()

	next := &scope{
		mode:    ModeSeeded,
		hasMode: true,
		seed: &seedState{
			seed: seed,
			rng:  rand.New(rand.NewPCG(uint64(seed), 0)), //nolint:gosec // deterministic by design requirement
		},
	}
	return context.WithValue(ctx, scopeKey{}, next), nil
}

// CurrentSeed reports the seed registered in ctx's scope, if any.
func (g *Governor) CurrentSeed(ctx context.Context) (int64, bool) {
	if s := scopeFrom(ctx); s != nil && s.seed != nil {
		return s.seed.seed, true
	}
	return 0, false
}

// SeedLog returns a copy of the audit log in registration order.
func (g *Governor) SeedLog() []SeedLogEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]SeedLogEntry, len(g.seedLog))
	copy(out, g.seedLog)
	return out
}

// UnseededDraws returns how many draws were served under ModeUnrestricted.
func (g *Governor) UnseededDraws() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.unseededDraws
}
