package account

import (
	"testing"
	"time"

	"github.com/mjproxy/core/internal/model"
	"github.com/mjproxy/core/internal/task"
)

func TestCorrelationResolvesThroughFullChain(t *testing.T) {
	idx := newCorrelationIndex()
	m := task.NewMachine(model.NewTask("t1"))
	idx.register("nonce-1", m, time.Minute)

	got := idx.resolve(Event{Kind: EventInteractionCreate, Nonce: "nonce-1", InteractionMetadataID: "im-1"})
	if got != m {
		t.Fatal("expected INTERACTION_CREATE to resolve by nonce")
	}

	got = idx.resolve(Event{Kind: EventMessageCreate, InteractionMetadataID: "im-1", MessageID: "msg-1"})
	if got != m {
		t.Fatal("expected MESSAGE_CREATE to resolve by interaction id")
	}

	got = idx.resolve(Event{Kind: EventMessageUpdate, MessageID: "msg-1"})
	if got != m {
		t.Fatal("expected MESSAGE_UPDATE to resolve by message id")
	}
}

func TestCorrelationResolveMissReturnsNil(t *testing.T) {
	idx := newCorrelationIndex()
	if got := idx.resolve(Event{Kind: EventMessageUpdate, MessageID: "unknown"}); got != nil {
		t.Fatal("expected no match for an untracked message id")
	}
}

func TestCorrelationForgetRemovesAllKeys(t *testing.T) {
	idx := newCorrelationIndex()
	tk := model.NewTask("t2")
	m := task.NewMachine(tk)
	idx.register("nonce-2", m, time.Minute)
	idx.resolve(Event{Kind: EventInteractionCreate, Nonce: "nonce-2", InteractionMetadataID: "im-2"})
	m.InteractionCreated("im-2")
	idx.resolve(Event{Kind: EventMessageCreate, InteractionMetadataID: "im-2", MessageID: "msg-2"})
	m.MessageSeen("msg-2", "", "", nil)

	idx.forget("nonce-2")

	if got := idx.resolve(Event{Kind: EventMessageUpdate, MessageID: "msg-2"}); got != nil {
		t.Fatal("expected message id correlation to be gone after forget")
	}
	if got := idx.resolve(Event{Kind: EventInteractionSuccess, InteractionMetadataID: "im-2"}); got != nil {
		t.Fatal("expected interaction id correlation to be gone after forget")
	}
}

func TestCorrelationExpired(t *testing.T) {
	idx := newCorrelationIndex()
	m := task.NewMachine(model.NewTask("t3"))
	idx.register("nonce-3", m, -time.Second)

	expired := idx.expired(time.Now())
	if len(expired) != 1 || expired[0] != m {
		t.Fatalf("expected exactly the one already-past-deadline machine, got %d", len(expired))
	}
}
