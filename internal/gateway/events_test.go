package gateway

import (
	"encoding/json"
	"testing"

	"github.com/mjproxy/core/internal/model"
)

func TestDecodeDispatchInteractionCreate(t *testing.T) {
	data, _ := json.Marshal(interactionCreatePayload{Nonce: "n1", ID: "i1", InteractionMetadataID: "im1"})
	ev, ok := decodeDispatch("acc1", Frame{Type: "INTERACTION_CREATE", Data: data})
	if !ok {
		t.Fatal("expected INTERACTION_CREATE to decode")
	}
	if ev.Kind != EventInteractionCreate || ev.Nonce != "n1" || ev.InteractionMetadataID != "im1" {
		t.Fatalf("unexpected event: %#v", ev)
	}
	if ev.AccountID != "acc1" {
		t.Fatalf("expected account id tagged onto the event, got %q", ev.AccountID)
	}
}

func TestDecodeDispatchMessageUpdateCarriesImageAndComponents(t *testing.T) {
	data, _ := json.Marshal(messagePayload{
		ID:        "msg1",
		ChannelID: "chan1",
		Content:   "a cat",
		Interaction: &messageInteraction{ID: "im1"},
		Components: []rawComponentRow{
			{Components: []rawComponentCol{{CustomID: "MJ::JOB::upsample::1::abc", Label: "U1"}}},
		},
		Attachments: []messageAttachment{{URL: "http://cdn/a.png"}},
	})
	ev, ok := decodeDispatch("acc1", Frame{Type: "MESSAGE_UPDATE", Data: data})
	if !ok {
		t.Fatal("expected MESSAGE_UPDATE to decode")
	}
	if ev.Kind != EventMessageUpdate {
		t.Fatalf("expected EventMessageUpdate, got %v", ev.Kind)
	}
	if ev.ImageURL != "http://cdn/a.png" {
		t.Fatalf("expected the first attachment url, got %q", ev.ImageURL)
	}
	if ev.InteractionMetadataID != "im1" {
		t.Fatalf("expected interaction id pulled from the message's interaction field, got %q", ev.InteractionMetadataID)
	}
	if len(ev.Components) != 1 || ev.Components[0].CustomID != "MJ::JOB::upsample::1::abc" {
		t.Fatalf("expected flattened components, got %#v", ev.Components)
	}
}

func TestDecodeDispatchMessageDelete(t *testing.T) {
	data, _ := json.Marshal(messageDeletePayload{ID: "msg1", ChannelID: "chan1"})
	ev, ok := decodeDispatch("acc1", Frame{Type: "MESSAGE_DELETE", Data: data})
	if !ok {
		t.Fatal("expected MESSAGE_DELETE to decode")
	}
	if ev.Kind != EventMessageDelete || ev.MessageID != "msg1" {
		t.Fatalf("unexpected event: %#v", ev)
	}
}

func TestDecodeDispatchUnknownTypeIsIgnored(t *testing.T) {
	_, ok := decodeDispatch("acc1", Frame{Type: "PRESENCE_UPDATE", Data: json.RawMessage(`{}`)})
	if ok {
		t.Fatal("expected an unhandled dispatch type to be ignored")
	}
}

func TestFlattenComponentsCollectsOptionsAndEmoji(t *testing.T) {
	rows := []rawComponentRow{
		{Components: []rawComponentCol{
			{
				CustomID: "MJ::Settings::Remix",
				Label:    "Remix mode",
				Emoji:    &rawEmoji{Name: "🔀"},
				Options:  []rawComponentOption{{Label: "Fast", Value: "fast"}},
			},
		}},
	}
	got := flattenComponents(rows)
	if len(got) != 1 {
		t.Fatalf("expected 1 flattened component, got %d", len(got))
	}
	c := got[0]
	if c.Emoji != "🔀" {
		t.Fatalf("expected emoji name carried over, got %q", c.Emoji)
	}
	if len(c.Options) != 1 || c.Options[0] != (model.ComponentOption{Label: "Fast", Value: "fast"}) {
		t.Fatalf("expected one option carried over, got %#v", c.Options)
	}
}
