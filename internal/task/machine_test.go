package task

import (
	"errors"
	"testing"

	"github.com/mjproxy/core/internal/model"
)

func TestLifecycleHappyPath(t *testing.T) {
	tk := model.NewTask("t1")
	m := NewMachine(tk)

	m.Dispatching()
	if tk.Status != model.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", tk.Status)
	}

	m.InteractionSucceeded()
	if tk.Status != model.StatusInProgress {
		t.Fatalf("expected in-progress, got %s", tk.Status)
	}

	moved := m.MessageUpdated("msg-1", "https://cdn/final.png", "done", []model.Component{
		{CustomID: "MJ::JOB::upsample::1::abc"},
	})
	if !moved {
		t.Fatal("expected MessageUpdated to report a move to success")
	}
	if tk.Status != model.StatusSuccess {
		t.Fatalf("expected success, got %s", tk.Status)
	}
	if tk.ImageURL != "https://cdn/final.png" {
		t.Fatalf("unexpected image url: %s", tk.ImageURL)
	}
}

func TestEnterModalOnlyFromSubmitted(t *testing.T) {
	tk := model.NewTask("t2")
	m := NewMachine(tk)

	m.EnterModal("modal-msg")
	if tk.Status != model.StatusNotStarted {
		t.Fatalf("expected modal to be a no-op before submitted, got %s", tk.Status)
	}

	m.Dispatching()
	m.EnterModal("modal-msg")
	if tk.Status != model.StatusModal {
		t.Fatalf("expected modal, got %s", tk.Status)
	}
}

func TestFailIsTerminalAndIdempotent(t *testing.T) {
	tk := model.NewTask("t3")
	m := NewMachine(tk)
	m.Dispatching()

	m.Fail("Banned prompt detected")
	if tk.Status != model.StatusFailure || tk.FailReason != "Banned prompt detected" {
		t.Fatalf("unexpected state after Fail: %+v", tk)
	}
	if !IsBannedOrDenied(tk.FailReason) {
		t.Fatal("expected banned prompt reason to be classified as banned")
	}

	m.Fail("some other reason")
	if tk.FailReason != "Banned prompt detected" {
		t.Fatalf("expected terminal Fail to be a no-op, got reason %q", tk.FailReason)
	}
}

func TestCancelRunsAttemptAndReturnsItsError(t *testing.T) {
	tk := model.NewTask("t4")
	m := NewMachine(tk)
	m.Dispatching()

	wantErr := errors.New("discord unreachable")
	err := m.Cancel(func() error { return wantErr })
	if err != wantErr {
		t.Fatalf("expected cancel attempt error to surface, got %v", err)
	}
	if tk.Status != model.StatusCancel {
		t.Fatalf("expected cancel, got %s", tk.Status)
	}

	if err := m.Cancel(nil); err == nil {
		t.Fatal("expected error cancelling an already-terminal task")
	}
}

func TestReclassifyShowOnUpscaleButtons(t *testing.T) {
	tk := model.NewTask("t5")
	tk.Action = model.ActionShow
	m := NewMachine(tk)
	m.Dispatching()
	m.InteractionSucceeded()

	m.MessageUpdated("msg-1", "https://cdn/x.png", "done", []model.Component{
		{CustomID: "MJ::Inpaint::abc"},
	})
	if tk.Action != model.ActionUpscale {
		t.Fatalf("expected reclassified action upscale, got %s", tk.Action)
	}
}
