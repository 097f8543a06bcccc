// Package task implements the per-submission state machine described in
// spec.md §4.3: the explicit not-started -> submitted -> in-progress ->
// {success, failure, cancel} lifecycle, with modal as an intermediate
// variant of submitted. Transitions are strictly monotonic; anything
// that would move backwards or repeat a terminal state is ignored.
package task

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/mjproxy/core/internal/model"
)

// DispatchRequest is what the Account Runtime hands to the command
// transport collaborator (spec.md §6) to actually send a Discord
// interaction. The core treats the wire encoding as opaque.
type DispatchRequest struct {
	Task  *model.Task
	Nonce string
}

// Machine wraps one Task with the transition rules from spec.md §4.3.
// All exported methods lock internally and are safe to call from the
// Account Runtime's single-writer goroutine or from sweepers.
type Machine struct {
	mu sync.Mutex
	t  *model.Task
}

// NewMachine wraps an existing task (already assigned a uuid,
// action, bot type, etc.) for lifecycle management.
func NewMachine(t *model.Task) *Machine {
	return &Machine{t: t}
}

// Task returns the underlying record. Callers must not mutate fields
// that the Machine itself owns (Status and the timestamps) outside of
// its methods.
func (m *Machine) Task() *model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Dispatching transitions not-started -> submitted (spec.md §4.3 row 1).
func (m *Machine) Dispatching() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t.Status != model.StatusNotStarted {
		return
	}
	m.t.Status = model.StatusSubmitted
	m.t.StartTime = model.NowMillis(time.Now())
	m.t.Progress = "0%"
}

// InteractionCreated records the interaction_metadata_id Discord
// assigned once the command lands (spec.md §4.1 correlation step (i)).
// It is a correlation update, not a status transition.
func (m *Machine) InteractionCreated(interactionMetadataID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t.Status.Terminal() {
		return
	}
	if interactionMetadataID != "" {
		m.t.InteractionMetadataID = interactionMetadataID
	}
}

// EnterModal transitions submitted -> modal, for actions that require a
// Discord modal confirmation before Midjourney picks up the job
// (spec.md §4.3 row 2, e.g. remix prompt confirmation).
func (m *Machine) EnterModal(modalMessageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t.Status != model.StatusSubmitted {
		return
	}
	m.t.Status = model.StatusModal
	m.t.MessageID = modalMessageID
}

// InteractionSucceeded transitions submitted (or modal) -> in-progress
// (spec.md §4.3 row 3).
func (m *Machine) InteractionSucceeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t.Status != model.StatusSubmitted && m.t.Status != model.StatusModal {
		return
	}
	m.t.Status = model.StatusInProgress
	m.t.Progress = "0%"
}

var progressRe = regexp.MustCompile(`(\d{1,3})%`)

// MessageSeen handles MESSAGE_CREATE: stores the message id, appends it
// to the task's message history, and picks up any progress/image
// preview already present (spec.md §4.1 correlation step (iii)).
func (m *Machine) MessageSeen(messageID, imageURL, content string, components []model.Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t.Status.Terminal() {
		return
	}
	if m.t.MessageID == "" {
		m.t.MessageID = messageID
	}
	m.appendMessageID(messageID)
	m.applyContent(imageURL, content, components)
}

// MessageUpdated handles MESSAGE_UPDATE: advances progress, and
// transitions to success when the update is terminal (no progress
// marker, completed buttons present). Returns true when it moved the
// task to success (spec.md §4.3 rows 4 and 5).
func (m *Machine) MessageUpdated(messageID, imageURL, content string, components []model.Component) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t.Status != model.StatusInProgress {
		return false
	}
	m.appendMessageID(messageID)

	matches := progressRe.FindStringSubmatch(content)
	if matches == nil && hasCompletionButtons(components) {
		m.t.Status = model.StatusSuccess
		m.t.Progress = "100%"
		m.t.FinishTime = model.NowMillis(time.Now())
		m.t.ImageURL = imageURL
		m.t.Buttons = toButtons(components)
		reclassifyShow(m.t, components)
		m.t.MarkTerminal()
		return true
	}

	m.applyContent(imageURL, content, components)
	return false
}

func (m *Machine) appendMessageID(id string) {
	if id == "" {
		return
	}
	for _, existing := range m.t.MessageIDs {
		if existing == id {
			return
		}
	}
	m.t.MessageIDs = append(m.t.MessageIDs, id)
}

func (m *Machine) applyContent(imageURL, content string, components []model.Component) {
	if matches := progressRe.FindStringSubmatch(content); matches != nil {
		m.t.Progress = matches[1] + "%"
	}
	if imageURL != "" {
		m.t.ImageURL = imageURL
		m.t.ThumbnailURL = imageURL
	}
	if len(components) > 0 {
		m.t.Buttons = toButtons(components)
	}
}

func toButtons(components []model.Component) []model.Button {
	out := make([]model.Button, 0, len(components))
	for _, c := range components {
		out = append(out, model.Button{CustomID: c.CustomID, Label: c.Label, Style: c.Style, Emoji: c.Emoji})
	}
	return out
}

func hasCompletionButtons(components []model.Component) bool {
	for _, c := range components {
		if strings.HasPrefix(c.CustomID, "MJ::") {
			return true
		}
	}
	return false
}

// reclassifyShow is spec.md §9's open question, implemented as
// specified: a SHOW task's persisted action is rewritten based on the
// button set Discord returns on the fetched message.
func reclassifyShow(t *model.Task, components []model.Component) {
	if t.Action != model.ActionShow {
		return
	}
	for _, c := range components {
		switch {
		case strings.Contains(c.CustomID, "MJ::JOB::upsample::1"):
			t.Action = model.ActionImagine
			return
		case strings.Contains(c.CustomID, "MJ::Inpaint::"):
			t.Action = model.ActionUpscale
			return
		case strings.Contains(c.CustomID, "MJ::Job::PicReader"):
			t.Action = model.ActionDescribe
			return
		}
	}
}

// Fail transitions any non-terminal state to failure (spec.md §4.3 row
// "any non-terminal -> failure"). The reason is surfaced as-is; callers
// checking for banned-prompt/image-denied phrasing to bump ban counters
// should inspect the reason after calling this.
func (m *Machine) Fail(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t.Status.Terminal() {
		return
	}
	m.t.Status = model.StatusFailure
	m.t.FailReason = reason
	m.t.FinishTime = model.NowMillis(time.Now())
	m.t.Progress = ""
	m.t.MarkTerminal()
}

// Cancel transitions any non-terminal state to cancel (spec.md §4.3 row
// "any non-terminal -> cancel"). cancelAttempt is invoked best-effort
// before the state flips; its error is logged by the caller, not
// treated as fatal — cancellation is always best-effort.
func (m *Machine) Cancel(cancelAttempt func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t.Status.Terminal() {
		return fmt.Errorf("task: already terminal (%s)", m.t.Status)
	}
	var attemptErr error
	if cancelAttempt != nil {
		attemptErr = cancelAttempt()
	}
	m.t.Status = model.StatusCancel
	m.t.FinishTime = model.NowMillis(time.Now())
	m.t.MarkTerminal()
	return attemptErr
}

// IsBannedOrDenied reports whether a fail reason should bump the
// per-user/per-ip ban counters (spec.md §7 TaskValidation / §8 scenario
// 6).
func IsBannedOrDenied(reason string) bool {
	return strings.Contains(reason, "Banned prompt detected") || strings.Contains(reason, "image denied")
}
