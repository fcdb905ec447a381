package suppress

import (
	"context"
	"errors"
	"testing"
)

func TestSuppressNests(t *testing.T) {
	g := NewGuard()
	if g.IsSuppressed("A") {
		t.Fatalf("fresh guard should hold nothing")
	}
	outer := g.Suppress("A")
	inner := g.Suppress("A")
	if !g.IsSuppressed("A") || g.Depth("A") != 2 {
		t.Fatalf("expected depth 2, got %d", g.Depth("A"))
	}
	if g.IsSuppressed("B") {
		t.Fatalf("categories must be independent")
	}
	inner()
	inner()
	if !g.IsSuppressed("A") {
		t.Fatalf("double release of inner hold released the outer one")
	}
	outer()
	if g.IsSuppressed("A") {
		t.Fatalf("expected A released")
	}
}

func TestDoReleasesOnError(t *testing.T) {
	g := NewGuard()
	boom := errors.New("boom")
	err := g.Do("A", func() error {
		if !g.IsSuppressed("A") {
			t.Fatalf("expected A held inside Do")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected error passthrough, got %v", err)
	}
	if g.IsSuppressed("A") {
		t.Fatalf("expected release after error")
	}
}

func TestDoReleasesOnPanic(t *testing.T) {
	g := NewGuard()
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = g.Do("A", func() error { panic("boom") })
	}()
	if g.IsSuppressed("A") {
		t.Fatalf("expected release after panic")
	}
}

func TestContextGuard(t *testing.T) {
	if IsSuppressed(context.Background(), "A") {
		t.Fatalf("no guard in context means nothing is suppressed")
	}
	g := NewGuard()
	ctx := WithGuard(context.Background(), g)
	if FromContext(ctx) != g {
		t.Fatalf("expected guard from context")
	}
	release := g.Suppress("A")
	if !IsSuppressed(ctx, "A") {
		t.Fatalf("expected suppression visible through context")
	}
	release()
	if IsSuppressed(ctx, "A") {
		t.Fatalf("expected release visible through context")
	}
}
