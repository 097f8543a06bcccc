package account

import "github.com/mjproxy/core/internal/gateway"

// Event is the Account Runtime's view of a gateway dispatch event; it
// is the same shape the Gateway Client emits (internal/gateway) so the
// Registry can wire one account's gateway.Client.Signals.OnDispatch
// directly into Runtime.HandleEvent.
type Event = gateway.DispatchEvent

// Event kinds, re-exported for readability at call sites within this
// package (spec.md §4.1 correlation order).
const (
	EventInteractionCreate  = gateway.EventInteractionCreate
	EventInteractionSuccess = gateway.EventInteractionSuccess
	EventMessageCreate      = gateway.EventMessageCreate
	EventMessageUpdate      = gateway.EventMessageUpdate
	EventMessageDelete      = gateway.EventMessageDelete
)
