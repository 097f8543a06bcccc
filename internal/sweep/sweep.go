// Package sweep runs the periodic jobs the Account Runtime depends on
// but that need a process-wide clock rather than a per-account timer:
// in-flight task timeout sweeps and the daily-counter reset heartbeat
// (spec.md §4.2 "Timeout", "Daily counter").
package sweep

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler wraps robfig/cron/v3 with the logging and panic-recovery
// conventions the rest of this codebase uses.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New builds a Scheduler. Jobs run with cron's built-in recoverer so a
// panicking job doesn't take down the whole process.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		log:  log.With().Str("component", "sweep").Logger(),
	}
}

// AddPeriodic schedules fn on a cron spec (e.g. "@every 30s"). Returns
// an error if the spec doesn't parse.
func (s *Scheduler) AddPeriodic(spec string, name string, fn func()) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.log.Debug().Str("job", name).Msg("running scheduled sweep")
		fn()
	})
	return err
}

// Start launches the scheduler's own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
