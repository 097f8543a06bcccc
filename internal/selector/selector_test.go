package selector

import (
	"testing"

	"github.com/mjproxy/core/internal/model"
)

type fakeCandidate struct {
	id         string
	instanceID string
	weight     int
	coreSize   int
	inFlight   int
	queueLen   int
	accepting  bool
	remixOn    bool
}

func (f *fakeCandidate) AccountID() string          { return f.id }
func (f *fakeCandidate) InstanceID() string         { return f.instanceID }
func (f *fakeCandidate) Weight() int                { return f.weight }
func (f *fakeCandidate) InFlightCount() int         { return f.inFlight }
func (f *fakeCandidate) CoreSize() int              { return f.coreSize }
func (f *fakeCandidate) QueueLength() int           { return f.queueLen }
func (f *fakeCandidate) IsAcceptingNewTasks() bool  { return f.accepting }
func (f *fakeCandidate) AllowsMode(model.Mode) bool { return true }
func (f *fakeCandidate) AllowsBotType(model.BotType) bool {
	return true
}
func (f *fakeCandidate) RemixOn() bool { return f.remixOn }

func TestSelectBestWaitIdlePrefersIdleLowestInFlight(t *testing.T) {
	pool := []Candidate{
		&fakeCandidate{id: "a", coreSize: 2, inFlight: 2, queueLen: 1, accepting: true},
		&fakeCandidate{id: "b", coreSize: 2, inFlight: 1, queueLen: 3, accepting: true},
		&fakeCandidate{id: "c", coreSize: 2, inFlight: 1, queueLen: 0, accepting: true},
	}
	s := New(PolicyBestWaitIdle)
	chosen, err := s.Select(pool, Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen.AccountID() != "c" {
		t.Fatalf("expected c, got %s", chosen.AccountID())
	}
}

func TestSelectBestWaitIdleFallsBackWhenAllSaturated(t *testing.T) {
	pool := []Candidate{
		&fakeCandidate{id: "a", coreSize: 2, inFlight: 2, queueLen: 2, weight: 1, accepting: true},
		&fakeCandidate{id: "b", coreSize: 2, inFlight: 2, queueLen: 1, weight: 5, accepting: true},
	}
	s := New(PolicyBestWaitIdle)
	chosen, err := s.Select(pool, Filter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen.AccountID() != "b" {
		t.Fatalf("expected b (lowest queue), got %s", chosen.AccountID())
	}
}

func TestSelectNoAvailableAccount(t *testing.T) {
	pool := []Candidate{
		&fakeCandidate{id: "a", accepting: false},
	}
	s := New(PolicyBestWaitIdle)
	_, err := s.Select(pool, Filter{})
	if err != ErrNoAvailableAccount {
		t.Fatalf("expected ErrNoAvailableAccount, got %v", err)
	}
}

func TestSelectPollingRoundRobins(t *testing.T) {
	pool := []Candidate{
		&fakeCandidate{id: "a", accepting: true},
		&fakeCandidate{id: "b", accepting: true},
	}
	s := New(PolicyPolling)
	first, _ := s.Select(pool, Filter{})
	second, _ := s.Select(pool, Filter{})
	third, _ := s.Select(pool, Filter{})
	if first.AccountID() != "a" || second.AccountID() != "b" || third.AccountID() != "a" {
		t.Fatalf("expected a,b,a got %s,%s,%s", first.AccountID(), second.AccountID(), third.AccountID())
	}
}

func TestSelectRequireRemixOnFilters(t *testing.T) {
	pool := []Candidate{
		&fakeCandidate{id: "a", accepting: true, remixOn: false},
		&fakeCandidate{id: "b", accepting: true, remixOn: true},
	}
	s := New(PolicyRandom)
	chosen, err := s.Select(pool, Filter{RequireRemixOn: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen.AccountID() != "b" {
		t.Fatalf("expected b, got %s", chosen.AccountID())
	}
}

func TestSelectInstancePins(t *testing.T) {
	pool := []Candidate{
		&fakeCandidate{id: "a", instanceID: "chan-1", accepting: true},
		&fakeCandidate{id: "b", instanceID: "chan-2", accepting: true},
	}
	s := New(PolicyRandom)
	chosen, err := s.Select(pool, Filter{InstanceID: "chan-2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen.AccountID() != "b" {
		t.Fatalf("expected b, got %s", chosen.AccountID())
	}
}
