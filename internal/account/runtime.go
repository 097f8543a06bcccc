// Package account implements the Account Runtime: the single-writer
// actor that owns one Discord account's waiting queue, in-flight set,
// pacing and daily quota (spec.md §4.2, §9 "account actor"). The
// queue and in-flight set are guarded by the runtime's mutex and are
// changed by the runner loop as well as by Submit, Cancel and event
// handling.
package account

import (
	"container/list"
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mjproxy/core/internal/model"
	"github.com/mjproxy/core/internal/task"
)

// SubmitResult is the outcome of Submit (spec.md §4.2).
type SubmitResult int

const (
	Accepted SubmitResult = iota
	RejectedQueueFull
	RejectedNotAcceptingNewTasks
	RejectedBotDisabled
)

func (r SubmitResult) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedQueueFull:
		return "queue_full"
	case RejectedNotAcceptingNewTasks:
		return "not_accepting"
	case RejectedBotDisabled:
		return "bot_disabled"
	default:
		return "unknown"
	}
}

// CommandTransport is the narrow outbound seam spec.md §6 calls the
// "command transport": given a dispatch request it produces the actual
// Discord HTTP interaction. The core never inspects its wire form.
type CommandTransport interface {
	Dispatch(ctx context.Context, req task.DispatchRequest) error
}

// Persister is the subset of the persistence adapter (spec.md §6) the
// runtime needs directly: terminal writes and day-counter bookkeeping.
type Persister interface {
	SaveTask(ctx context.Context, t *model.Task) error
	SaveAccountFields(ctx context.Context, accountID string, fields map[string]interface{}) error
	IncrementBanCounters(ctx context.Context, userID, clientIP string) error
}

// Notifier receives a callback record for every terminal transition
// (spec.md §4.5).
type Notifier interface {
	Enqueue(t *model.Task)
}

// Runtime owns one account's mutable scheduling state.
type Runtime struct {
	Account *model.Account

	transport CommandTransport
	store     Persister
	notify    Notifier
	log       zerolog.Logger

	mu        sync.Mutex // guards queue/inFlight/lastDispatch below
	queue     *list.List // FIFO of *model.Task
	inFlight  map[string]*task.Machine // by task id
	correlate *correlationIndex

	lastDispatch time.Time

	wake chan struct{}

	cancel context.CancelFunc
}

// New builds a Runtime for an account. Call Start to begin the runner.
func New(acc *model.Account, transport CommandTransport, store Persister, notify Notifier, log zerolog.Logger) *Runtime {
	return &Runtime{
		Account:   acc,
		transport: transport,
		store:     store,
		notify:    notify,
		log:       log.With().Str("account", acc.ID).Logger(),
		queue:     list.New(),
		inFlight:  make(map[string]*task.Machine),
		correlate: newCorrelationIndex(),
		wake:      make(chan struct{}, 1),
	}
}

// Start launches the single cooperative runner loop (spec.md §4.2).
// Timeouts are swept by SweepTimeouts, which the caller schedules. It
// returns immediately; use the context to shut down.
func (r *Runtime) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.runLoop(ctx)
}

// Stop cancels the runner loop.
func (r *Runtime) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Submit enforces the gating in spec.md §4.2 and, if accepted, appends
// the task to the FIFO waiting queue.
func (r *Runtime) Submit(t *model.Task) SubmitResult {
	r.Account.RLock()
	enabled := r.Account.Enable && !r.Account.Locked
	botOK := r.botAllowed(t)
	dayLimit := r.Account.DayDrawLimit
	dayCount := r.Account.DayDrawCount
	workTime := r.Account.WorkTime
	fishingTime := r.Account.FishingTime
	maxQueue := r.Account.MaxQueueSize
	r.Account.RUnlock()

	if !enabled {
		return RejectedBotDisabled
	}
	if !botOK {
		return RejectedBotDisabled
	}
	if dayLimit >= 0 && dayCount >= dayLimit {
		return RejectedNotAcceptingNewTasks
	}

	nowMinute := minuteOfDay(time.Now())
	if !workTime.InWorkTime(nowMinute) || fishingTime.InFishingTime(nowMinute) {
		return RejectedNotAcceptingNewTasks
	}

	r.mu.Lock()
	if r.queue.Len()+len(r.inFlight) >= maxQueue {
		r.mu.Unlock()
		return RejectedQueueFull
	}
	r.queue.PushBack(t)
	r.mu.Unlock()

	r.saveNonTerminal(t)
	r.signalWake()
	return Accepted
}

// saveNonTerminal best-effort persists a task that hasn't reached a
// terminal state yet, so get_task/list_tasks can observe it through the
// queued/submitted/in-progress window (spec.md §7: non-terminal writes
// are retriable/best-effort). Terminal transitions persist through
// finishTask instead.
func (r *Runtime) saveNonTerminal(t *model.Task) {
	if t.Status.Terminal() {
		return
	}
	if err := r.store.SaveTask(context.Background(), t); err != nil {
		r.log.Warn().Err(err).Str("task", t.ID).Msg("failed to persist in-flight task")
	}
}

func (r *Runtime) botAllowed(t *model.Task) bool {
	switch t.BotType {
	case model.BotTypeNiji:
		return r.Account.EnableNiji
	case model.BotTypeMidjourney:
		return r.Account.EnableMJ
	default:
		return true
	}
}

// QueueLength returns waiting+in-flight count, the figure the Selector
// compares across accounts (spec.md §4.4).
func (r *Runtime) QueueLength() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queue.Len() + len(r.inFlight)
}

// InFlightCount returns the current in-flight count.
func (r *Runtime) InFlightCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inFlight)
}

// IsAcceptingNewTasks mirrors the gating predicate in Submit without the
// side effect, for the Selector (spec.md §4.4).
func (r *Runtime) IsAcceptingNewTasks() bool {
	r.Account.RLock()
	defer r.Account.RUnlock()
	if !r.Account.Enable || r.Account.Locked {
		return false
	}
	if r.Account.DayDrawLimit >= 0 && r.Account.DayDrawCount >= r.Account.DayDrawLimit {
		return false
	}
	nowMinute := minuteOfDay(time.Now())
	if !r.Account.WorkTime.InWorkTime(nowMinute) || r.Account.FishingTime.InFishingTime(nowMinute) {
		return false
	}
	r.mu.Lock()
	full := r.queue.Len()+len(r.inFlight) >= r.Account.MaxQueueSize
	r.mu.Unlock()
	return !full
}

func (r *Runtime) signalWake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// runLoop is the single cooperative runner per spec.md §4.2: dequeue
// while under core_size, pace dispatches by interval, then
// after_interval jitter before considering the next one.
func (r *Runtime) runLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-ticker.C:
		}
		r.drainQueue(ctx)
	}
}

func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		r.Account.RLock()
		coreSize := r.Account.CoreSize
		interval := time.Duration(r.Account.IntervalSeconds) * time.Second
		afterMin := r.Account.AfterIntervalMin
		afterMax := r.Account.AfterIntervalMax
		r.Account.RUnlock()

		r.mu.Lock()
		if len(r.inFlight) >= coreSize || r.queue.Len() == 0 {
			r.mu.Unlock()
			return
		}
		elem := r.queue.Front()
		r.queue.Remove(elem)
		r.mu.Unlock()

		t := elem.Value.(*model.Task)

		if wait := interval - time.Since(r.lastDispatch); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		if err := r.dispatch(ctx, t); err != nil {
			r.log.Error().Err(err).Str("task", t.ID).Msg("dispatch failed")
			continue
		}
		r.lastDispatch = time.Now()

		jitterSeconds := afterMin
		if afterMax > afterMin {
			jitterSeconds += rand.Intn(afterMax - afterMin + 1)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(jitterSeconds) * time.Second):
		}
	}
}

func (r *Runtime) dispatch(ctx context.Context, t *model.Task) error {
	m := task.NewMachine(t)
	m.Dispatching()

	t.InstanceID = r.Account.ChannelID
	if t.SubInstanceID != "" {
		// Route through the sub-channel fanout map: the transport
		// reads InstanceID/SubInstanceID off the task to pick the
		// channel/guild pair to address (spec.md §4.2 "Sub-channel
		// fanout").
		r.Account.RLock()
		if guildID, ok := r.Account.SubChannelMap[t.SubInstanceID]; ok {
			t.Properties = mergeProperty(t.Properties, "discordGuildId", guildID)
		}
		r.Account.RUnlock()
	}

	deadline := time.Duration(r.Account.TimeoutMinutes) * time.Minute
	req := task.DispatchRequest{Task: t, Nonce: t.Nonce}

	r.mu.Lock()
	r.inFlight[t.ID] = m
	r.correlate.register(t.Nonce, m, deadline)
	r.mu.Unlock()

	r.saveNonTerminal(t)

	if err := r.transport.Dispatch(ctx, req); err != nil {
		r.failTask(m, fmt.Sprintf("dispatch rejected: %v", err))
		return err
	}
	return nil
}

// HandleEvent feeds one gateway dispatch event into this account's
// correlation index, advancing whichever task it matches (spec.md
// §4.1 correlation order (i)-(vi)).
func (r *Runtime) HandleEvent(ev Event) {
	m := r.correlate.resolve(ev)
	if m == nil {
		return
	}
	r.applyEvent(m, ev)
}

func (r *Runtime) applyEvent(m *task.Machine, ev Event) {
	switch ev.Kind {
	case EventInteractionCreate:
		m.InteractionCreated(ev.InteractionMetadataID)
	case EventInteractionSuccess:
		m.InteractionSucceeded()
		r.bumpDailyCounter()
	case EventMessageCreate:
		m.MessageSeen(ev.MessageID, ev.ImageURL, ev.Content, ev.Components)
	case EventMessageUpdate:
		terminal := m.MessageUpdated(ev.MessageID, ev.ImageURL, ev.Content, ev.Components)
		if terminal {
			r.finishTask(m)
		}
	case EventMessageDelete:
		r.failTask(m, "deleted by moderation")
	}
	r.saveNonTerminal(m.Task())
}

func (r *Runtime) finishTask(m *task.Machine) {
	r.removeInFlight(m.Task().ID, m.Task().Nonce)
	if err := r.store.SaveTask(context.Background(), m.Task()); err != nil {
		r.log.Error().Err(err).Str("task", m.Task().ID).Msg("failed to persist terminal task")
	}
	r.notify.Enqueue(m.Task())
}

func (r *Runtime) failTask(m *task.Machine, reason string) {
	m.Fail(reason)
	if task.IsBannedOrDenied(reason) {
		t := m.Task()
		if err := r.store.IncrementBanCounters(context.Background(), t.UserID, t.ClientIP); err != nil {
			r.log.Warn().Err(err).Str("task", t.ID).Msg("failed to bump ban counters")
		}
	}
	r.finishTask(m)
}

// Wait locates taskID among this account's in-flight or waiting tasks
// and blocks until it reaches a terminal state, ctx is done, or timeout
// elapses, returning the live task (spec.md §9: "external waiters await
// that signal with a timeout"). ok is false if the task isn't tracked
// here anymore (already finished and handed off, or never submitted to
// this account), in which case the caller should fall back to the
// persisted record.
func (r *Runtime) Wait(ctx context.Context, taskID string, timeout time.Duration) (t *model.Task, ok bool) {
	r.mu.Lock()
	if m, found := r.inFlight[taskID]; found {
		t = m.Task()
	} else {
		for e := r.queue.Front(); e != nil; e = e.Next() {
			if qt := e.Value.(*model.Task); qt.ID == taskID {
				t = qt
				break
			}
		}
	}
	r.mu.Unlock()
	if t == nil {
		return nil, false
	}

	select {
	case <-t.Done():
	case <-time.After(timeout):
	case <-ctx.Done():
	}
	return t, true
}

func (r *Runtime) removeInFlight(taskID, nonce string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, taskID)
	r.correlate.forget(nonce)
}

// SweepTimeouts cancels any in-flight task past start_time+timeout
// (spec.md §4.2 "Timeout").
func (r *Runtime) SweepTimeouts() {
	r.Account.RLock()
	timeout := time.Duration(r.Account.TimeoutMinutes) * time.Minute
	r.Account.RUnlock()

	r.mu.Lock()
	var expired []*task.Machine
	now := time.Now()
	for _, m := range r.inFlight {
		t := m.Task()
		if t.StartTime == 0 {
			continue
		}
		start := time.UnixMilli(t.StartTime)
		if now.Sub(start) > timeout {
			expired = append(expired, m)
		}
	}
	r.mu.Unlock()

	for _, m := range expired {
		r.failTask(m, "timeout")
	}
}

// ResetDailyCounter zeroes day_draw_count. Safe to call repeatedly
// (spec.md §4.2: "idempotent" 5-minute heartbeat plus local midnight).
func (r *Runtime) ResetDailyCounter(ctx context.Context) {
	r.Account.Lock()
	r.Account.DayDrawCount = 0
	r.Account.Unlock()
	_ = r.store.SaveAccountFields(ctx, r.Account.ID, map[string]interface{}{"day_draw_count": 0})
}

func (r *Runtime) bumpDailyCounter() {
	r.Account.Lock()
	r.Account.DayDrawCount++
	count := r.Account.DayDrawCount
	r.Account.Unlock()
	_ = r.store.SaveAccountFields(context.Background(), r.Account.ID, map[string]interface{}{"day_draw_count": count})
}

// AccountID, InstanceID, Weight, CoreSize, AllowsMode, AllowsBotType and
// RemixOn satisfy selector.Candidate (spec.md §4.4): the Selector only
// ever sees this narrow read-only view of a Runtime.
func (r *Runtime) AccountID() string {
	return r.Account.ID
}

func (r *Runtime) InstanceID() string {
	r.Account.RLock()
	defer r.Account.RUnlock()
	return r.Account.ChannelID
}

func (r *Runtime) Weight() int {
	r.Account.RLock()
	defer r.Account.RUnlock()
	return r.Account.Weight
}

func (r *Runtime) CoreSize() int {
	r.Account.RLock()
	defer r.Account.RUnlock()
	return r.Account.CoreSize
}

func (r *Runtime) AllowsMode(mode model.Mode) bool {
	r.Account.RLock()
	defer r.Account.RUnlock()
	if len(r.Account.AllowModes) == 0 {
		return true
	}
	for _, m := range r.Account.AllowModes {
		if m == mode {
			return true
		}
	}
	return false
}

func (r *Runtime) AllowsBotType(bot model.BotType) bool {
	switch bot {
	case model.BotTypeNiji:
		r.Account.RLock()
		defer r.Account.RUnlock()
		return r.Account.EnableNiji
	case model.BotTypeMidjourney:
		r.Account.RLock()
		defer r.Account.RUnlock()
		return r.Account.EnableMJ
	default:
		return true
	}
}

func (r *Runtime) RemixOn() bool {
	r.Account.RLock()
	defer r.Account.RUnlock()
	return model.RemixOn(r.Account.ComponentsMJ)
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func mergeProperty(props map[string]string, key, value string) map[string]string {
	if props == nil {
		props = make(map[string]string)
	}
	props[key] = value
	return props
}

// Cancel best-effort cancels an in-flight or still-waiting task owned
// by this account (spec.md §4.3 "any non-terminal -> cancel" and §6
// cancel_task). Returns false if the task is unknown to this runtime.
func (r *Runtime) Cancel(taskID string, cancelAttempt func() error) bool {
	r.mu.Lock()
	m, ok := r.inFlight[taskID]
	if !ok {
		// Maybe still waiting in queue; remove it there instead.
		for e := r.queue.Front(); e != nil; e = e.Next() {
			if t := e.Value.(*model.Task); t.ID == taskID {
				r.queue.Remove(e)
				r.mu.Unlock()
				mm := task.NewMachine(t)
				mm.Cancel(nil)
				r.finishTask(mm)
				return true
			}
		}
		r.mu.Unlock()
		return false
	}
	r.mu.Unlock()

	if err := m.Cancel(cancelAttempt); err != nil {
		r.log.Debug().Err(err).Str("task", taskID).Msg("cancel attempt failed or task already terminal")
	}
	r.finishTask(m)
	return true
}
