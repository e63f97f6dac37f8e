// Package safety implements the destination safety gate: the policy function
// standing between a requested shop phone number and the number the voice
// platform is actually told to dial. In demo mode no number outside the
// configured allow-list may leave this package unless strict scoping is off,
// in which case an allow-list member is substituted instead.
//
// The gate is pure with respect to policy: it never talks to the telephony
// platform, so the invariant is testable without network access.
package safety

import (
	"fmt"
	"math/rand"

	"garagecall_backend/platform/apperr"
	"garagecall_backend/platform/logger"
	"garagecall_backend/platform/phone"
)

// Strategy selects how a non-allow-listed number is substituted.
type Strategy string

const (
	// StrategyRoundRobin picks a pseudo-random allow-list member.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyFirst always picks the first allow-list entry.
	StrategyFirst Strategy = "first"
)

// Config is the immutable policy the gate enforces. It is captured at
// construction time; the gate never reads ambient global state.
type Config struct {
	DemoMode  bool
	AllowList []string
	Strategy  Strategy
	Strict    bool // reject rather than substitute
}

// Gate resolves requested destinations against the demo-mode policy.
type Gate struct {
	cfg   Config
	allow map[string]bool
	log   *logger.Logger
	pick  func(n int) int
}

// New creates a Gate from the given policy. Allow-list entries are
// normalized to E.164 so membership checks are format-insensitive.
func New(cfg Config, log *logger.Logger) *Gate {
	normalized := make([]string, 0, len(cfg.AllowList))
	allow := make(map[string]bool, len(cfg.AllowList))
	for _, number := range cfg.AllowList {
		e164 := phone.NormalizeE164(number)
		normalized = append(normalized, e164)
		allow[e164] = true
	}
	cfg.AllowList = normalized

	return &Gate{
		cfg:   cfg,
		allow: allow,
		log:   log,
		pick:  rand.Intn,
	}
}

// Resolve maps a requested destination to the number that may actually be
// dialed. On rejection the returned error is a typed safety violation and
// the caller must not proceed to dial.
func (g *Gate) Resolve(requested string) (string, error) {
	normalized := phone.NormalizeE164(requested)

	if !g.cfg.DemoMode {
		return normalized, nil
	}

	if g.allow[normalized] {
		return normalized, nil
	}

	if g.cfg.Strict {
		if g.log != nil {
			g.log.SafetyViolation("rejected", requested, "")
		}
		return "", apperr.SafetyViolation(
			fmt.Sprintf("destination %s is not in the demo allow-list", normalized))
	}

	actual := g.substitute()
	if g.log != nil {
		g.log.SafetyViolation("substituted", requested, actual)
	}
	return actual, nil
}

func (g *Gate) substitute() string {
	if len(g.cfg.AllowList) == 0 {
		return ""
	}
	switch g.cfg.Strategy {
	case StrategyFirst:
		return g.cfg.AllowList[0]
	default:
		return g.cfg.AllowList[g.pick(len(g.cfg.AllowList))]
	}
}
