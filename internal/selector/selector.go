// Package selector implements the Account Selector (spec.md §4.4): it
// picks which account's Runtime should receive a task, under one of
// four configurable global policies.
package selector

import (
	"errors"
	"math/rand"
	"sync"

	"github.com/mjproxy/core/internal/model"
)

// ErrNoAvailableAccount is returned when no enabled, accepting account
// passes the filter (spec.md §7 "Selection with no candidate").
var ErrNoAvailableAccount = errors.New("selector: no available account")

// Policy is one of the four selection strategies from spec.md §4.4.
type Policy string

const (
	PolicyBestWaitIdle Policy = "best-wait-idle"
	PolicyRandom       Policy = "random"
	PolicyWeight       Policy = "weight"
	PolicyPolling      Policy = "polling"
)

// Filter constrains which accounts are eligible for a task (spec.md
// §4.4 "AccountFilter").
type Filter struct {
	BotType        model.BotType
	Mode           model.Mode // zero value means unpinned
	RequireRemixOn bool
	InstanceID     string // pins to one account's channel id, if set
}

// Candidate is the read-only view of an account's runtime state the
// Selector needs. Implemented by *account.Runtime (kept decoupled here
// to avoid an import cycle: selector is a leaf the registry wires up).
type Candidate interface {
	AccountID() string
	InstanceID() string
	Weight() int
	InFlightCount() int
	CoreSize() int
	QueueLength() int
	IsAcceptingNewTasks() bool
	AllowsMode(model.Mode) bool
	AllowsBotType(model.BotType) bool
	RemixOn() bool
}

// Selector chooses among a set of Candidates.
type Selector struct {
	mu     sync.Mutex
	policy Policy

	// pollCursor is keyed by bot type for the polling policy.
	pollCursor map[model.BotType]int
	rng        *rand.Rand
}

// New builds a Selector running the given policy.
func New(policy Policy) *Selector {
	return &Selector{
		policy:     policy,
		pollCursor: make(map[model.BotType]int),
		rng:        rand.New(rand.NewSource(1)),
	}
}

// Select picks one candidate from the pool honoring the filter, or
// ErrNoAvailableAccount if none qualify.
func (s *Selector) Select(pool []Candidate, f Filter) (Candidate, error) {
	eligible := filterPool(pool, f)
	if len(eligible) == 0 {
		return nil, ErrNoAvailableAccount
	}

	switch s.policy {
	case PolicyRandom:
		return eligible[s.rng.Intn(len(eligible))], nil
	case PolicyWeight:
		return s.selectWeighted(eligible), nil
	case PolicyPolling:
		return s.selectPolling(eligible, f.BotType), nil
	default:
		return s.selectBestWaitIdle(eligible), nil
	}
}

func filterPool(pool []Candidate, f Filter) []Candidate {
	out := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if !c.IsAcceptingNewTasks() {
			continue
		}
		if f.InstanceID != "" && c.InstanceID() != f.InstanceID {
			continue
		}
		if f.BotType != "" && !c.AllowsBotType(f.BotType) {
			continue
		}
		if f.Mode != "" && !c.AllowsMode(f.Mode) {
			continue
		}
		if f.RequireRemixOn && !c.RemixOn() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// selectBestWaitIdle is spec.md §4.4's default policy: prefer an idle
// account (in_flight < core_size) with the smallest in_flight, tying on
// smallest queue_length; fall back to smallest queue_length overall,
// tying on highest weight. The tie-break order (queue_length then
// weight) is the open question spec.md §9 calls out — documented here
// and in DESIGN.md as the chosen, explicit order.
func (s *Selector) selectBestWaitIdle(pool []Candidate) Candidate {
	var idle []Candidate
	for _, c := range pool {
		if c.InFlightCount() < c.CoreSize() {
			idle = append(idle, c)
		}
	}

	if len(idle) > 0 {
		best := idle[0]
		for _, c := range idle[1:] {
			if c.InFlightCount() < best.InFlightCount() {
				best = c
				continue
			}
			if c.InFlightCount() == best.InFlightCount() && c.QueueLength() < best.QueueLength() {
				best = c
			}
		}
		return best
	}

	best := pool[0]
	for _, c := range pool[1:] {
		if c.QueueLength() < best.QueueLength() {
			best = c
			continue
		}
		if c.QueueLength() == best.QueueLength() && c.Weight() > best.Weight() {
			best = c
		}
	}
	return best
}

func (s *Selector) selectWeighted(pool []Candidate) Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, c := range pool {
		total += effectiveWeight(c)
	}
	if total <= 0 {
		return pool[s.rng.Intn(len(pool))]
	}
	pick := s.rng.Intn(total)
	for _, c := range pool {
		pick -= effectiveWeight(c)
		if pick < 0 {
			return c
		}
	}
	return pool[len(pool)-1]
}

// effectiveWeight treats weight 0 as weight 1 so every account remains
// reachable under the weighted policy (spec.md §4.4).
func effectiveWeight(c Candidate) int {
	if c.Weight() <= 0 {
		return 1
	}
	return c.Weight()
}

func (s *Selector) selectPolling(pool []Candidate, bot model.BotType) Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	cursor := s.pollCursor[bot]
	chosen := pool[cursor%len(pool)]
	s.pollCursor[bot] = cursor + 1
	return chosen
}
