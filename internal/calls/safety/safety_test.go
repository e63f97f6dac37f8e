package safety

import (
	"testing"

	"garagecall_backend/platform/apperr"
)

func newGate(cfg Config) *Gate {
	return New(cfg, nil)
}

func TestResolveDemoOffPassesThrough(t *testing.T) {
	gate := newGate(Config{DemoMode: false})

	got, err := gate.Resolve("(415) 555-2671")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+14155552671" {
		t.Fatalf("expected normalized pass-through, got %q", got)
	}
}

func TestResolveAllowListedUnchanged(t *testing.T) {
	gate := newGate(Config{
		DemoMode:  true,
		AllowList: []string{"+14155550100"},
		Strategy:  StrategyFirst,
		Strict:    true,
	})

	got, err := gate.Resolve("415-555-0100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+14155550100" {
		t.Fatalf("expected allow-listed number unchanged, got %q", got)
	}
}

func TestResolveStrictRejectsNonAllowListed(t *testing.T) {
	gate := newGate(Config{
		DemoMode:  true,
		AllowList: []string{"+14155550100"},
		Strategy:  StrategyFirst,
		Strict:    true,
	})

	_, err := gate.Resolve("+14155552671")
	if err == nil {
		t.Fatalf("expected safety violation")
	}
	if !apperr.Is(err, apperr.KindSafetyViolation) {
		t.Fatalf("expected KindSafetyViolation, got %v", err)
	}
}

func TestResolveSubstitutesFirst(t *testing.T) {
	gate := newGate(Config{
		DemoMode:  true,
		AllowList: []string{"+14155550100", "+14155550101"},
		Strategy:  StrategyFirst,
	})

	got, err := gate.Resolve("+14155552671")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "+14155550100" {
		t.Fatalf("expected first allow-list entry, got %q", got)
	}
}

func TestResolveRoundRobinStaysInsideAllowList(t *testing.T) {
	gate := newGate(Config{
		DemoMode:  true,
		AllowList: []string{"+14155550100", "+14155550101", "+14155550102"},
		Strategy:  StrategyRoundRobin,
	})

	allowed := map[string]bool{
		"+14155550100": true,
		"+14155550101": true,
		"+14155550102": true,
	}
	for i := 0; i < 50; i++ {
		got, err := gate.Resolve("+14155552671")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed[got] {
			t.Fatalf("substitution %q escaped the allow-list", got)
		}
	}
}

// The safety invariant: with demo mode and strict scoping on, Resolve either
// returns an allow-list member or rejects. Never anything else.
func TestSafetyInvariantStrictMode(t *testing.T) {
	allowList := []string{"+14155550100", "+14155550101"}
	gate := newGate(Config{
		DemoMode:  true,
		AllowList: allowList,
		Strategy:  StrategyRoundRobin,
		Strict:    true,
	})

	allowed := map[string]bool{}
	for _, n := range allowList {
		allowed[n] = true
	}

	inputs := []string{
		"+14155550100", "+14155550101", "+14155552671",
		"415-555-0100", "not-a-number", "", "+31201234567",
	}
	for _, input := range inputs {
		got, err := gate.Resolve(input)
		if err != nil {
			continue // rejection satisfies the invariant
		}
		if !allowed[got] {
			t.Fatalf("Resolve(%q) leaked non-allow-listed %q", input, got)
		}
	}
}
