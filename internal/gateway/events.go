package gateway

import (
	"encoding/json"

	"github.com/mjproxy/core/internal/model"
)

// EventKind distinguishes the dispatch events the Account Runtime
// correlates against in-flight tasks (spec.md §4.2).
type EventKind string

const (
	EventInteractionCreate  EventKind = "INTERACTION_CREATE"
	EventInteractionSuccess EventKind = "INTERACTION_SUCCESS"
	EventMessageCreate      EventKind = "MESSAGE_CREATE"
	EventMessageUpdate      EventKind = "MESSAGE_UPDATE"
	EventMessageDelete      EventKind = "MESSAGE_DELETE"
)

// DispatchEvent is the decoded, account-tagged event handed from the
// Gateway Client to the Account Runtime's process-wide dispatch queue
// (spec.md §4.1/§9). It is a flat struct rather than the raw Discord
// envelope so the runtime never has to re-parse JSON per correlation
// attempt.
type DispatchEvent struct {
	AccountID string
	Kind      EventKind

	Nonce                 string
	InteractionMetadataID string
	MessageID             string
	ChannelID             string
	Content               string
	Components            []model.Component
	ImageURL              string
}

// decodeDispatch converts a raw gateway Frame with op=Dispatch into a
// DispatchEvent the runtime understands. Returns ok=false for dispatch
// types this client does not forward (spec §4.1: "Otherwise enqueue").
func decodeDispatch(accountID string, f Frame) (DispatchEvent, bool) {
	switch f.Type {
	case "INTERACTION_CREATE":
		var p interactionCreatePayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return DispatchEvent{}, false
		}
		return DispatchEvent{
			AccountID:             accountID,
			Kind:                  EventInteractionCreate,
			Nonce:                 p.Nonce,
			InteractionMetadataID: p.InteractionMetadataID,
		}, true

	case "INTERACTION_SUCCESS":
		var p interactionSuccessPayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return DispatchEvent{}, false
		}
		return DispatchEvent{
			AccountID:             accountID,
			Kind:                  EventInteractionSuccess,
			Nonce:                 p.Nonce,
			InteractionMetadataID: p.InteractionMetadataID,
		}, true

	case "MESSAGE_CREATE", "MESSAGE_UPDATE":
		var p messagePayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return DispatchEvent{}, false
		}
		ev := DispatchEvent{
			AccountID:  accountID,
			Kind:       EventMessageCreate,
			MessageID:  p.ID,
			ChannelID:  p.ChannelID,
			Content:    p.Content,
			Components: flattenComponents(p.Components),
		}
		if f.Type == "MESSAGE_UPDATE" {
			ev.Kind = EventMessageUpdate
		}
		if p.Interaction != nil {
			ev.InteractionMetadataID = p.Interaction.ID
		}
		if len(p.Attachments) > 0 {
			ev.ImageURL = p.Attachments[0].URL
		}
		return ev, true

	case "MESSAGE_DELETE":
		var p messageDeletePayload
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return DispatchEvent{}, false
		}
		return DispatchEvent{
			AccountID: accountID,
			Kind:      EventMessageDelete,
			MessageID: p.ID,
			ChannelID: p.ChannelID,
		}, true
	}

	return DispatchEvent{}, false
}

func flattenComponents(rows []rawComponentRow) []model.Component {
	var out []model.Component
	for _, row := range rows {
		for _, col := range row.Components {
			c := model.Component{
				CustomID: col.CustomID,
				Label:    col.Label,
				Style:    col.Style,
				Type:     col.Type,
			}
			if col.Emoji != nil {
				c.Emoji = col.Emoji.Name
			}
			for _, opt := range col.Options {
				c.Options = append(c.Options, model.ComponentOption{Label: opt.Label, Value: opt.Value})
			}
			out = append(out, c)
		}
	}
	return out
}
