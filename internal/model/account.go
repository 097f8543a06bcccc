// Package model holds the data records shared across the proxy core:
// accounts, tasks, UI components and the small value types that compose
// them. Each record is a standalone struct carrying both json and
// msgpack tags so it can cross the HTTP boundary, the persistence
// adapter and the redis snapshot cache without a translation layer.
package model

import (
	"strings"
	"sync"
	"time"
)

// Mode is one of the three Midjourney rendering modes an account can run
// jobs under.
type Mode string

// Known modes, ordered relax (cheapest) to turbo (most expensive).
const (
	ModeRelax Mode = "relax"
	ModeFast  Mode = "fast"
	ModeTurbo Mode = "turbo"
)

// BotType distinguishes which Discord bot family a task targets.
type BotType string

const (
	BotTypeMidjourney BotType = "mj"
	BotTypeNiji       BotType = "niji"
	BotTypeInsightFace BotType = "insight-face"
)

// TimeWindow is one [start, end] daily interval, both ends included, in
// minutes since midnight local time. End < Start denotes a window
// crossing midnight.
type TimeWindow struct {
	Start int `json:"start" msgpack:"start"`
	End   int `json:"end" msgpack:"end"`
}

// Contains reports whether the minute-of-day t falls inside the window.
// A window with Start==End==0 contains only minute 0; the TimeWindows
// helpers below treat only an empty list specially.
func (w TimeWindow) Contains(t int) bool {
	if w.Start <= w.End {
		return t >= w.Start && t <= w.End
	}
	// Crosses midnight: in-window iff now >= start OR now <= end.
	return t >= w.Start || t <= w.End
}

// TimeWindows is an ordered list of daily windows.
type TimeWindows []TimeWindow

// InWorkTime reports whether minute-of-day t is within any configured
// work window. An empty list means "always within work hours" (spec
// §4.2).
func (ws TimeWindows) InWorkTime(t int) bool {
	if len(ws) == 0 {
		return true
	}
	for _, w := range ws {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// InFishingTime reports whether minute-of-day t is within any fishing
// window. An empty list means "never fishing" (spec §4.2).
func (ws TimeWindows) InFishingTime(t int) bool {
	if len(ws) == 0 {
		return false
	}
	for _, w := range ws {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

// Component is a Discord UI control (button or select menu option)
// attached to a message.
type Component struct {
	CustomID string            `json:"custom_id" msgpack:"custom_id"`
	Label    string            `json:"label" msgpack:"label"`
	Style    int               `json:"style" msgpack:"style"`
	Emoji    string            `json:"emoji,omitempty" msgpack:"emoji,omitempty"`
	Type     int               `json:"type" msgpack:"type"`
	Options  []ComponentOption `json:"options,omitempty" msgpack:"options,omitempty"`
}

// ComponentOption is one entry of a select-menu Component.
type ComponentOption struct {
	Label string `json:"label" msgpack:"label"`
	Value string `json:"value" msgpack:"value"`
}

// Account is one configured Discord identity capable of driving
// Midjourney. Mutable fields are only ever written by the owning
// Account Runtime's single-writer loop (internal/account) or, for admin
// fields, under the embedded sync.RWMutex — see internal/account's
// "account actor" note.
type Account struct {
	sync.RWMutex `json:"-" msgpack:"-" gorm:"-"`

	ID        string `json:"id" msgpack:"id"`
	ChannelID string `json:"channel_id" msgpack:"channel_id"`
	GuildID   string `json:"guild_id" msgpack:"guild_id"`

	PrivateChannelIDs []string `json:"private_channel_ids" msgpack:"private_channel_ids"`

	UserToken string `json:"user_token" msgpack:"user_token"`
	BotToken  string `json:"bot_token,omitempty" msgpack:"bot_token,omitempty"`
	UserAgent string `json:"user_agent" msgpack:"user_agent"`

	Enable         bool `json:"enable" msgpack:"enable"`
	EnableMJ       bool `json:"enable_mj" msgpack:"enable_mj"`
	EnableNiji     bool `json:"enable_niji" msgpack:"enable_niji"`
	EnableBlend    bool `json:"enable_blend" msgpack:"enable_blend"`
	EnableDescribe bool `json:"enable_describe" msgpack:"enable_describe"`
	EnableShorten  bool `json:"enable_shorten" msgpack:"enable_shorten"`

	EnableFastToRelax bool `json:"enable_fast_to_relax" msgpack:"enable_fast_to_relax"`
	EnableRelaxToFast bool `json:"enable_relax_to_fast" msgpack:"enable_relax_to_fast"`

	CoreSize        int `json:"core_size" msgpack:"core_size"`
	QueueSize       int `json:"queue_size" msgpack:"queue_size"`
	MaxQueueSize    int `json:"max_queue_size" msgpack:"max_queue_size"`
	TimeoutMinutes  int `json:"timeout_minutes" msgpack:"timeout_minutes"`
	IntervalSeconds int `json:"interval" msgpack:"interval"`

	AfterIntervalMin int `json:"after_interval_min" msgpack:"after_interval_min"`
	AfterIntervalMax int `json:"after_interval_max" msgpack:"after_interval_max"`

	DayDrawLimit int `json:"day_draw_limit" msgpack:"day_draw_limit"`
	DayDrawCount int `json:"day_draw_count" msgpack:"day_draw_count"`

	Weight int `json:"weight" msgpack:"weight"`
	Sort   int `json:"sort" msgpack:"sort"`

	WorkTime    TimeWindows `json:"work_time" msgpack:"work_time"`
	FishingTime TimeWindows `json:"fishing_time" msgpack:"fishing_time"`

	Mode        Mode   `json:"mode" msgpack:"mode"`
	AllowModes  []Mode `json:"allow_modes" msgpack:"allow_modes"`
	FastExhausted bool `json:"fast_exhausted" msgpack:"fast_exhausted"`

	SubChannels   []string          `json:"sub_channels" msgpack:"sub_channels"`
	SubChannelMap map[string]string `json:"-" msgpack:"-"`

	ComponentsMJ   []Component `json:"components_mj" msgpack:"components_mj"`
	ComponentsNiji []Component `json:"components_niji" msgpack:"components_niji"`

	Locked bool `json:"locked" msgpack:"locked"`

	DisabledReason string `json:"disabled_reason,omitempty" msgpack:"disabled_reason,omitempty"`

	SessionID        string `json:"-" msgpack:"-"`
	ResumeGatewayURL string `json:"-" msgpack:"-"`

	CreatedAt time.Time `json:"created_at" msgpack:"created_at"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

// Clamp enforces the invariants from spec.md §3 in place. Call on load
// and whenever admin configuration is applied.
func (a *Account) Clamp() {
	if a.CoreSize < 1 {
		a.CoreSize = 1
	}
	if a.QueueSize > a.MaxQueueSize {
		a.QueueSize = a.MaxQueueSize
	}
	if a.TimeoutMinutes < 5 {
		a.TimeoutMinutes = 5
	}
	if a.TimeoutMinutes > 30 {
		a.TimeoutMinutes = 30
	}
	if a.IntervalSeconds > 180 {
		a.IntervalSeconds = 180
	}
	if a.AfterIntervalMin > 180 {
		a.AfterIntervalMin = 180
	}
	if a.AfterIntervalMax > 180 {
		a.AfterIntervalMax = 180
	}
	if a.AfterIntervalMax < a.AfterIntervalMin {
		a.AfterIntervalMax = a.AfterIntervalMin
	}
}

// discordChannelsPrefix is the canonical URL prefix sub-channel entries
// must start with to be considered valid (spec.md §4.2).
const discordChannelsPrefix = "https://discord.com/channels/"

// ParseSubChannels parses a comma-joined list of (possibly noisy)
// sub-channel URLs into a {channel_id -> guild_id} map, keeping only
// entries that start with the canonical Discord channel URL prefix.
func ParseSubChannels(raw []string) map[string]string {
	out := make(map[string]string)
	for _, entry := range raw {
		for _, piece := range strings.Split(entry, ",") {
			piece = strings.TrimSpace(piece)
			if !strings.HasPrefix(piece, discordChannelsPrefix) {
				continue
			}
			rest := strings.TrimPrefix(piece, discordChannelsPrefix)
			parts := strings.SplitN(rest, "/", 2)
			if len(parts) < 2 {
				continue
			}
			guildID := parts[0]
			channelID := parts[1]
			if idx := strings.IndexAny(channelID, " \t\n"); idx >= 0 {
				channelID = channelID[:idx]
			}
			if guildID == "" || channelID == "" {
				continue
			}
			out[channelID] = guildID
		}
	}
	return out
}

// RemixOn is a pure function of the cached MJ components: true if any
// button's custom id is the remix toggle and its label reads "Remix
// mode".
func RemixOn(components []Component) bool {
	for _, c := range components {
		if strings.Contains(c.CustomID, "MJ::Settings::Remix") && strings.Contains(c.Label, "Remix mode") {
			return true
		}
	}
	return false
}

// FastModeOn is a pure function of the cached components: true if the
// fast-mode toggle button is present and currently showing as active.
func FastModeOn(components []Component) bool {
	for _, c := range components {
		if strings.Contains(c.CustomID, "MJ::Settings::FastMode") {
			return c.Style == 3 // success style == currently active
		}
	}
	return false
}
