// Package suppress marks local side effects that are replays of remote
// instructions so they are not reported back to the authority.
//
// A Guard belongs to one client and is used from the frame loop only.
package suppress

import "context"

type Guard struct {
	held map[string]int
}

func NewGuard() *Guard {
	return &Guard{held: map[string]int{}}
}

// Suppress holds the guard for category until release is called. Holds nest;
// release is idempotent.
func (g *Guard) Suppress(category string) (release func()) {
	g.held[category]++
	released := false
	return func() {
		if released {
			return
		}
		released = true
		if g.held[category] <= 1 {
			delete(g.held, category)
			return
		}
		g.held[category]--
	}
}

// Do runs fn while holding category. The hold is released however fn exits,
// panics included.
func (g *Guard) Do(category string, fn func() error) error {
	release := g.Suppress(category)
	defer release()
	return fn()
}

func (g *Guard) IsSuppressed(category string) bool {
	if g == nil {
		return false
	}
	return g.held[category] > 0
}

// Depth reports how many nested holds category has.
func (g *Guard) Depth(category string) int { return g.held[category] }

type ctxKey struct{}

func WithGuard(ctx context.Context, g *Guard) context.Context {
	return context.WithValue(ctx, ctxKey{}, g)
}

// FromContext returns the guard carried by ctx, or nil.
func FromContext(ctx context.Context) *Guard {
	g, _ := ctx.Value(ctxKey{}).(*Guard)
	return g
}

// IsSuppressed checks the guard carried by ctx.
func IsSuppressed(ctx context.Context, category string) bool {
	return FromContext(ctx).IsSuppressed(category)
}
