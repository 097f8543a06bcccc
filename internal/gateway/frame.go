package gateway

import "encoding/json"

// Opcode values from the Discord gateway protocol, as handled by
// spec.md §4.1.
type Opcode int

const (
	OpDispatch            Opcode = 0
	OpHeartbeat           Opcode = 1
	OpIdentify            Opcode = 2
	OpResume              Opcode = 6
	OpReconnect           Opcode = 7
	OpInvalidSession      Opcode = 9
	OpHello               Opcode = 10
	OpHeartbeatAck        Opcode = 11
)

// Close codes with protocol meaning to the reconnect policy (spec §4.1).
const (
	CloseCodeResumeMarker = 2001
	CloseCodeException    = 1011
)

// Frame is the envelope every inbound gateway message is decoded into.
type Frame struct {
	Op       Opcode          `json:"op"`
	Sequence *int64          `json:"s"`
	Type     string          `json:"t"`
	Data     json.RawMessage `json:"d"`
}

// outboundFrame is the envelope for everything we send.
type outboundFrame struct {
	Op   Opcode      `json:"op"`
	Data interface{} `json:"d"`
}

// helloPayload is the Op 10 body.
type helloPayload struct {
	HeartbeatIntervalMs int64 `json:"heartbeat_interval"`
}

// identifyProperties describes the client the way Discord expects,
// with the OS, browser and device that ParseUserAgent derives from the
// account's user-agent string. The browser version is not sent.
type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyPayload struct {
	Token        string             `json:"token"`
	Capabilities int                `json:"capabilities"`
	Properties   identifyProperties `json:"properties"`
	Presence     identifyPresence   `json:"presence"`
	ClientState  struct{}           `json:"client_state"`
}

type identifyPresence struct {
	Status string `json:"status"`
}

type resumePayload struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// readyPayload is the subset of READY this client cares about.
type readyPayload struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

// interactionCreatePayload correlates to a task by nonce.
type interactionCreatePayload struct {
	Nonce                 string `json:"nonce"`
	ID                    string `json:"id"`
	InteractionMetadataID string `json:"interaction_metadata_id"`
}

// interactionSuccessPayload confirms an interaction dispatched earlier.
type interactionSuccessPayload struct {
	Nonce                 string `json:"nonce"`
	InteractionMetadataID string `json:"interaction_metadata_id"`
}

// messagePayload is the subset of MESSAGE_CREATE/MESSAGE_UPDATE this
// client cares about.
type messagePayload struct {
	ID            string            `json:"id"`
	ChannelID     string            `json:"channel_id"`
	Content       string            `json:"content"`
	Interaction   *messageInteraction `json:"interaction"`
	Components    []rawComponentRow `json:"components"`
	Attachments   []messageAttachment `json:"attachments"`
}

type messageInteraction struct {
	ID string `json:"id"`
}

type messageAttachment struct {
	URL string `json:"url"`
}

type rawComponentRow struct {
	Type       int               `json:"type"`
	Components []rawComponentCol `json:"components"`
}

type rawComponentCol struct {
	Type     int                 `json:"type"`
	CustomID string              `json:"custom_id"`
	Label    string              `json:"label"`
	Style    int                 `json:"style"`
	Emoji    *rawEmoji           `json:"emoji"`
	Options  []rawComponentOption `json:"options"`
}

type rawEmoji struct {
	Name string `json:"name"`
}

type rawComponentOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// messageDeletePayload is MESSAGE_DELETE.
type messageDeletePayload struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}
