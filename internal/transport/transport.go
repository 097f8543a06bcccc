// Package transport is the reference command transport collaborator
// (spec.md §6 "Outbound to Discord"): it turns a dispatch request into
// a Discord application-command interaction HTTP POST, built on
// bwmarrin/discordgo. The core treats this package as opaque — it only
// depends on the account.CommandTransport interface.
package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/vincent-petithory/dataurl"

	"github.com/mjproxy/core/internal/model"
	"github.com/mjproxy/core/internal/task"
)

// mjApplicationID is Midjourney's well-known bot application id on
// Discord, used to address slash-command interactions.
const mjApplicationID = "936929561302675456"

// actionCommand maps a task action to the Midjourney slash command name
// the interaction payload addresses (spec.md §6: "imagine with prompt,
// upscale/variation button press by custom-id, ... describe with
// attachment, blend with attachment list, show by job-id").
var actionCommand = map[model.Action]string{
	model.ActionImagine:       "imagine",
	model.ActionDescribe:      "describe",
	model.ActionBlend:         "blend",
	model.ActionShow:          "show",
	model.ActionShorten:       "shorten",
	model.ActionSwapFace:      "swap-face",
	model.ActionSwapVideoFace: "swap-video-face",
}

// Session is the subset of *discordgo.Session this transport calls,
// narrowed so tests can substitute a fake (spec.md pattern mirrored
// from the pack's own discordgo session abstraction).
type Session interface {
	RequestWithBucketID(method, urlStr string, data interface{}, bucketID string, options ...discordgo.RequestOption) ([]byte, error)
}

// Transport sends dispatch requests as Discord interaction HTTP
// payloads addressed at the task's instance channel. The session token
// is read from the task's "botToken" property, not from the account.
type Transport struct {
	newSession func(botToken string) (Session, error)
}

// New builds a Transport. newSession is normally discordgo session
// construction; tests inject a stub.
func New(newSession func(botToken string) (Session, error)) *Transport {
	return &Transport{newSession: newSession}
}

// NewDiscordGo builds a Transport backed by real discordgo sessions.
func NewDiscordGo() *Transport {
	return New(func(botToken string) (Session, error) {
		sess, err := discordgo.New("Bot " + botToken)
		if err != nil {
			return nil, err
		}
		return sess, nil
	})
}

type interactionPayload struct {
	Type          int                    `json:"type"`
	ApplicationID string                 `json:"application_id"`
	ChannelID     string                 `json:"channel_id"`
	GuildID       string                 `json:"guild_id,omitempty"`
	SessionID     string                 `json:"session_id,omitempty"`
	Nonce         string                 `json:"nonce"`
	Data          map[string]interface{} `json:"data"`
}

// Dispatch builds and sends the interaction POST for one task (spec.md
// §6 "command transport"). It is the only non-test implementation of
// account.CommandTransport in this repository.
func (t *Transport) Dispatch(ctx context.Context, req task.DispatchRequest) error {
	tk := req.Task
	command, ok := actionCommand[tk.Action]
	if !ok {
		command = buttonCommand(tk)
	}

	sess, err := t.newSession(tk.Properties["botToken"])
	if err != nil {
		return fmt.Errorf("transport: build session: %w", err)
	}

	data := commandData(command, tk)
	attachments, err := decodeInlineAttachments(tk)
	if err != nil {
		return err
	}
	if len(attachments) > 0 {
		data["attachments"] = attachments
	}

	payload := interactionPayload{
		Type:          2, // APPLICATION_COMMAND
		ApplicationID: mjApplicationID,
		ChannelID:     tk.InstanceID,
		GuildID:       tk.Properties["discordGuildId"],
		SessionID:     tk.Properties["sessionId"],
		Nonce:         req.Nonce,
		Data:          data,
	}

	route := "/interactions"
	if _, err := sess.RequestWithBucketID("POST", route, payload, route); err != nil {
		return fmt.Errorf("transport: dispatch %s interaction: %w", command, err)
	}
	return nil
}

// buttonCommand names the command for actions that have no entry in
// actionCommand (upscale/variation/reroll/pan/zoom/outpaint/inpaint/
// action): it returns the action name itself. Dispatch sends these as
// application-command payloads like every other action; no
// message-component interaction or button custom id is built.
func buttonCommand(tk *model.Task) string {
	return string(tk.Action)
}

// imageProperty is the task.Properties key (or key prefix, for the
// multi-image blend case: image0, image1, ...) carrying inline image
// data as a data: URL, for the describe/blend/swap-face actions
// spec.md §6 says take "an attachment"/"an attachment list".
const imageProperty = "image"

// decodeInlineAttachments pulls every imageProperty-prefixed entry off
// the task and decodes it from a data: URL into the attachment
// descriptor Discord's interaction payload expects.
func decodeInlineAttachments(tk *model.Task) ([]map[string]interface{}, error) {
	var out []map[string]interface{}
	for key, raw := range tk.Properties {
		if key != imageProperty && !strings.HasPrefix(key, imageProperty) {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(key, imageProperty)); key != imageProperty && err != nil {
			continue
		}
		u, err := dataurl.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("transport: decode %s as data url: %w", key, err)
		}
		out = append(out, map[string]interface{}{
			"id":           len(out),
			"filename":     key + "." + strings.TrimPrefix(u.ContentType(), "image/"),
			"content_type": u.ContentType(),
			"size":         len(u.Data),
		})
	}
	return out, nil
}

func commandData(command string, tk *model.Task) map[string]interface{} {
	data := map[string]interface{}{"name": command}
	if tk.PromptFull != "" {
		data["options"] = []map[string]interface{}{{"name": "prompt", "type": 3, "value": tk.PromptFull}}
	}
	if tk.ParentID != "" {
		data["parent_id"] = tk.ParentID
	}
	return data
}
