package notify

import (
	"testing"

	"github.com/mjproxy/core/internal/model"
)

func TestNewEmailNotifierNilWhenUnconfigured(t *testing.T) {
	if n := NewEmailNotifier(EmailConfig{}); n != nil {
		t.Fatalf("expected nil notifier for empty config")
	}
}

func TestNewSlackNotifierNilWhenUnconfigured(t *testing.T) {
	if n := NewSlackNotifier("", ""); n != nil {
		t.Fatalf("expected nil notifier for empty config")
	}
}

func TestMultiSkipsNilNotifiersWithoutPanicking(t *testing.T) {
	m := NewMulti(NewEmailNotifier(EmailConfig{}), NewSlackNotifier("", ""))
	acc := &model.Account{ID: "acc-1", ChannelID: "chan-1"}
	// Must not panic even though both wrapped notifiers are nil.
	m.AccountDisabled(acc, "too many failures")
}
