package model

import (
	"testing"
	"time"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusSuccess, StatusFailure, StatusCancel}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	nonTerminal := []Status{StatusNotStarted, StatusSubmitted, StatusModal, StatusInProgress}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("expected %s not to be terminal", s)
		}
	}
}

func TestDoneClosesOnMarkTerminal(t *testing.T) {
	tk := NewTask("t1")
	select {
	case <-tk.Done():
		t.Fatal("expected Done channel open before MarkTerminal")
	default:
	}

	tk.Status = StatusSuccess
	tk.MarkTerminal()
	select {
	case <-tk.Done():
	default:
		t.Fatal("expected Done channel closed after MarkTerminal")
	}

	// Idempotent: calling again must not panic.
	tk.MarkTerminal()
}

func TestDoneLazilyClosedForAlreadyTerminalDecodedTask(t *testing.T) {
	tk := &Task{ID: "t2", Status: StatusFailure}
	select {
	case <-tk.Done():
	default:
		t.Fatal("expected a decoded terminal task to report Done immediately")
	}
}

func TestNowMillis(t *testing.T) {
	got := NowMillis(time.Unix(1, 0))
	if got != 1000 {
		t.Fatalf("expected 1000ms, got %d", got)
	}
}
