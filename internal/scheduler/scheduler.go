// Package scheduler decides when analysis runs fire. Around a calendar
// announcement it switches into critical mode with a short cooldown; the rest
// of the time it fires a single standard run at the configured daily hour.
package scheduler

import (
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/fedpulse/fedpulse/config"
	"github.com/fedpulse/fedpulse/models"
)

// State is the scheduler's entire memory between ticks. It is passed by
// value; Evaluate returns the updated copy and callers persist it only after
// a successful run.
type State struct {
	LastCriticalRun time.Time
	LastDailyRun    time.Time
}

// Decision is the outcome of one tick evaluation.
type Decision struct {
	Fire           bool
	Critical       bool
	Context        string    // general / pre_announcement / post_announcement
	AnnouncementAt time.Time // zero outside critical mode
	Next           State     // state to adopt if the run succeeds
}

// Scheduler evaluates the announcement calendar against the clock.
type Scheduler struct {
	calendar     []time.Time
	windowBefore time.Duration
	windowAfter  time.Duration
	cooldown     time.Duration
	daily        *cronexpr.Expression
}

// New builds a scheduler from config. The daily cron expression must already
// be validated by config normalization; a parse failure here panics the same
// way bad config does at load time.
func New(cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		calendar:     cfg.Calendar,
		windowBefore: cfg.CriticalWindowBefore,
		windowAfter:  cfg.CriticalWindowAfter,
		cooldown:     cfg.CriticalCooldown,
		daily:        cronexpr.MustParse(cfg.DailyCron),
	}
}

// activeEvent returns the calendar event whose critical window contains now,
// preferring the event nearest to now; ties go to the earlier event.
func (s *Scheduler) activeEvent(now time.Time) (time.Time, bool) {
	var best time.Time
	var bestDist time.Duration
	found := false
	for _, event := range s.calendar {
		if now.Before(event.Add(-s.windowBefore)) || now.After(event.Add(s.windowAfter)) {
			continue
		}
		dist := now.Sub(event)
		if dist < 0 {
			dist = -dist
		}
		if !found || dist < bestDist || (dist == bestDist && event.Before(best)) {
			best, bestDist, found = event, dist, true
		}
	}
	return best, found
}

// sameDate reports whether two instants fall on the same UTC calendar date.
func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// Evaluate decides whether a run fires at now given the prior state. In
// critical mode a fire also stamps the daily obligation so the standard run
// does not double up later the same day.
func (s *Scheduler) Evaluate(now time.Time, state State) Decision {
	if event, ok := s.activeEvent(now); ok {
		d := Decision{Critical: true, AnnouncementAt: event, Next: state}
		if now.Before(event) {
			d.Context = models.ContextPreAnnouncement
		} else {
			d.Context = models.ContextPostAnnouncement
		}
		if state.LastCriticalRun.IsZero() || now.Sub(state.LastCriticalRun) >= s.cooldown {
			d.Fire = true
			d.Next.LastCriticalRun = now
			d.Next.LastDailyRun = now
		}
		return d
	}

	// The daily run fires on the first tick at or after the due time, at
	// most once per date: a process that starts late or spends the morning
	// in a critical window catches up instead of skipping the day.
	d := Decision{Context: models.ContextGeneral, Next: state}
	y, m, day := now.UTC().Date()
	dayStart := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	due := s.daily.Next(dayStart.Add(-time.Second))
	alreadyRan := !state.LastDailyRun.IsZero() && sameDate(state.LastDailyRun, now)
	if sameDate(due, now) && !due.After(now) && !alreadyRan {
		d.Fire = true
		d.Next.LastDailyRun = now
	}
	return d
}

// NextRun reports when the scheduler expects to fire next. In critical mode
// that is cooldown past the last critical run; a scheduler that has never run
// critically is due immediately.
func (s *Scheduler) NextRun(now time.Time, state State, critical bool) time.Time {
	if critical {
		if state.LastCriticalRun.IsZero() {
			return now
		}
		return state.LastCriticalRun.Add(s.cooldown)
	}
	return s.daily.Next(now)
}
