// Package registry implements the Process-wide Registry (spec.md §2.7,
// §3 "Ownership"): discovers accounts from persisted configuration at
// startup, supervises one Account Runtime plus one Gateway Client per
// account, and exposes the Selector over the live account set.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mjproxy/core/internal/account"
	"github.com/mjproxy/core/internal/gateway"
	"github.com/mjproxy/core/internal/model"
	"github.com/mjproxy/core/internal/selector"
	"github.com/mjproxy/core/internal/store"
	"github.com/mjproxy/core/internal/sweep"
)

// Notifier is the disabled-account alert collaborator (spec.md §4.1
// "disables the account ... and notifies (email collaborator)").
type Notifier interface {
	AccountDisabled(acc *model.Account, reason string)
}

// Registry supervises every account's Runtime + Gateway Client pair and
// owns the process-wide Selector.
type Registry struct {
	mu       sync.RWMutex
	runtimes map[string]*account.Runtime
	clients  map[string]*gateway.Client

	st        store.Store
	cache     store.AccountCache
	transport account.CommandTransport
	callback  account.Notifier
	notifier  Notifier
	sel       *selector.Selector
	log       zerolog.Logger

	scheduler *sweep.Scheduler
	cancel    context.CancelFunc
}

// New builds an empty Registry. Call Load to populate it from the
// store, then Start. cache may be nil, in which case account mutations
// skip snapshot invalidation entirely (no redis configured).
func New(st store.Store, cache store.AccountCache, transport account.CommandTransport, callback account.Notifier, notifier Notifier, policy selector.Policy, log zerolog.Logger) *Registry {
	return &Registry{
		runtimes:  make(map[string]*account.Runtime),
		clients:   make(map[string]*gateway.Client),
		st:        st,
		cache:     cache,
		transport: transport,
		callback:  callback,
		notifier:  notifier,
		sel:       selector.New(policy),
		log:       log.With().Str("component", "registry").Logger(),
		scheduler: sweep.New(log),
	}
}

// Load discovers every account from the store and wires a Runtime and
// Gateway Client for each (spec.md §2.7 "Discovers accounts from
// persisted configuration at startup").
func (r *Registry) Load(ctx context.Context) error {
	accs, err := r.st.Accounts().Find(ctx, store.Predicate{})
	if err != nil {
		return fmt.Errorf("registry: load accounts: %w", err)
	}
	for _, acc := range accs {
		r.addAccount(acc)
	}
	return nil
}

func (r *Registry) addAccount(acc *model.Account) {
	acc.Clamp()

	persister := store.RuntimeAdapter{Store: r.st, Cache: r.cache}
	rt := account.New(acc, r.transport, persister, r.callback, r.log)

	client := gateway.New(gateway.Config{
		AccountID:   acc.ID,
		UserToken:   acc.UserToken,
		UserAgent:   acc.UserAgent,
		GatewayBase: "wss://gateway.discord.gg",
		Logger:      r.log,
		Signals: gateway.Signals{
			OnReady: func() {
				r.log.Info().Str("account", acc.ID).Msg("gateway ready")
			},
			OnDisconnected: func(reason string) {
				r.log.Warn().Str("account", acc.ID).Str("reason", reason).Msg("gateway disconnected")
			},
			OnDispatch: func(ev gateway.DispatchEvent) {
				rt.HandleEvent(ev)
			},
			OnDisabled: func(reason string) {
				r.disableAccount(acc, reason)
			},
		},
	})

	r.mu.Lock()
	r.runtimes[acc.ID] = rt
	r.clients[acc.ID] = client
	r.mu.Unlock()
}

func (r *Registry) disableAccount(acc *model.Account, reason string) {
	acc.Lock()
	acc.Enable = false
	acc.DisabledReason = reason
	acc.Unlock()

	ctx := context.Background()
	_ = r.st.Accounts().UpdateFields(ctx, acc.ID, map[string]interface{}{
		"enable":          false,
		"disabled_reason": reason,
	})
	if r.cache != nil {
		_ = r.cache.InvalidateAccount(ctx, acc.ID)
	}
	if r.notifier != nil {
		r.notifier.AccountDisabled(acc, reason)
	}
}

// Start launches every account's Runtime and Gateway Client, plus the
// periodic sweeps (timeout and daily-counter reset) the spec assigns
// to the Account Runtime but which need a process-wide clock (spec.md
// §4.2 "Timeout", "Daily counter").
func (r *Registry) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, rt := range r.runtimes {
		rt.Start(ctx)
		client := r.clients[id]
		go func(c *gateway.Client) {
			if err := c.Start(ctx, false); err != nil {
				r.log.Error().Err(err).Msg("gateway client stopped")
			}
		}(client)
	}

	if err := r.scheduler.AddPeriodic("@every 30s", "timeout-sweep", r.sweepTimeouts); err != nil {
		return fmt.Errorf("registry: schedule timeout sweep: %w", err)
	}
	if err := r.scheduler.AddPeriodic("@every 5m", "daily-reset-heartbeat", r.heartbeatDailyReset); err != nil {
		return fmt.Errorf("registry: schedule daily reset heartbeat: %w", err)
	}
	r.scheduler.Start()
	return nil
}

// Stop cancels every Runtime and Gateway Client and stops the cron
// scheduler.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.scheduler.Stop()

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.runtimes {
		rt.Stop()
	}
}

func (r *Registry) sweepTimeouts() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.runtimes {
		rt.SweepTimeouts()
	}
}

// heartbeatDailyReset runs every 5 minutes and, when it runs within the
// first five minutes after local midnight (00:00-00:04), resets every
// account's daily counter; no per-account last-reset time is kept
// (spec.md §4.2 "Daily counter").
func (r *Registry) heartbeatDailyReset() {
	now := time.Now()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.runtimes {
		rt.Account.RLock()
		shouldReset := now.Hour() == 0 && now.Minute() < 5
		rt.Account.RUnlock()
		if shouldReset {
			rt.ResetDailyCounter(context.Background())
		}
	}
}

// Select exposes the Selector over the live runtime pool (spec.md
// §4.4). The caller gets back the chosen account's id, not the Runtime
// itself, keeping selection decoupled from submission: use Submit to
// actually enqueue.
func (r *Registry) Select(f selector.Filter) (string, error) {
	r.mu.RLock()
	pool := make([]selector.Candidate, 0, len(r.runtimes))
	for _, rt := range r.runtimes {
		pool = append(pool, rt)
	}
	r.mu.RUnlock()

	chosen, err := r.sel.Select(pool, f)
	if err != nil {
		return "", err
	}
	return chosen.AccountID(), nil
}

// Submit enqueues a task on the named account's Runtime.
func (r *Registry) Submit(accountID string, t *model.Task) (account.SubmitResult, error) {
	r.mu.RLock()
	rt, ok := r.runtimes[accountID]
	r.mu.RUnlock()
	if !ok {
		return account.RejectedBotDisabled, fmt.Errorf("registry: unknown account %s", accountID)
	}
	return rt.Submit(t), nil
}

// Cancel routes a cancel_task call to whichever account owns the task.
// accountID is matched against the account ids first and then against
// each runtime's instance (channel) id, so callers may pass the task's
// model.Task.InstanceID.
func (r *Registry) Cancel(accountID, taskID string, cancelAttempt func() error) bool {
	r.mu.RLock()
	rt, ok := r.runtimes[accountID]
	for _, cand := range r.runtimes {
		if !ok && cand.InstanceID() == accountID {
			rt, ok = cand, true
		}
	}
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return rt.Cancel(taskID, cancelAttempt)
}

// Wait blocks until taskID reaches a terminal state, the context ends,
// or timeout elapses, returning the live task tracked by accountID's
// runtime (matched like Cancel: account id, then instance id). ok is
// false when the account or task isn't tracked live anymore, in which
// case the caller should read the persisted record.
func (r *Registry) Wait(ctx context.Context, accountID, taskID string, timeout time.Duration) (*model.Task, bool) {
	r.mu.RLock()
	rt, ok := r.runtimes[accountID]
	for _, cand := range r.runtimes {
		if !ok && cand.InstanceID() == accountID {
			rt, ok = cand, true
		}
	}
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return rt.Wait(ctx, taskID, timeout)
}

// Runtime returns the Runtime for an account, for callers (e.g. the
// HTTP surface) that need direct queue/in-flight introspection.
func (r *Registry) Runtime(accountID string) (*account.Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.runtimes[accountID]
	return rt, ok
}
