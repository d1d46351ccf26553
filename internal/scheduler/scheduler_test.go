package scheduler

import (
	"testing"
	"time"

	"github.com/fedpulse/fedpulse/config"
	"github.com/fedpulse/fedpulse/models"
)

func newTestScheduler(events ...time.Time) *Scheduler {
	cfg := config.SchedulerConfig{Calendar: events}.Normalize()
	return New(cfg)
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCriticalFirstFireInsideWindow(t *testing.T) {
	event := ts("2025-12-18T14:00:00Z")
	s := newTestScheduler(event)

	now := ts("2025-12-18T13:00:00Z")
	d := s.Evaluate(now, State{})

	if !d.Critical || !d.Fire {
		t.Fatalf("expected critical fire, got %+v", d)
	}
	if d.Context != models.ContextPreAnnouncement {
		t.Fatalf("expected pre_announcement context, got %q", d.Context)
	}
	if !d.AnnouncementAt.Equal(event) {
		t.Fatalf("expected announcement %v, got %v", event, d.AnnouncementAt)
	}
	if !d.Next.LastCriticalRun.Equal(now) || !d.Next.LastDailyRun.Equal(now) {
		t.Fatalf("expected both timestamps stamped at %v, got %+v", now, d.Next)
	}
}

func TestCriticalCooldownSuppression(t *testing.T) {
	event := ts("2025-12-18T14:00:00Z")
	s := newTestScheduler(event)

	t1 := ts("2025-12-18T13:00:00Z")
	d1 := s.Evaluate(t1, State{})
	if !d1.Fire {
		t.Fatalf("expected first fire")
	}

	d2 := s.Evaluate(t1.Add(2*time.Hour), d1.Next)
	if d2.Fire {
		t.Fatalf("expected suppression inside cooldown")
	}
	if !d2.Critical {
		t.Fatalf("still inside window, expected critical mode")
	}

	d3 := s.Evaluate(t1.Add(3*time.Hour), d1.Next)
	if !d3.Fire {
		t.Fatalf("expected fire after cooldown elapsed")
	}
}

func TestPostAnnouncementContext(t *testing.T) {
	event := ts("2025-12-18T14:00:00Z")
	s := newTestScheduler(event)

	d := s.Evaluate(ts("2025-12-18T16:30:00Z"), State{})
	if d.Context != models.ContextPostAnnouncement {
		t.Fatalf("expected post_announcement context, got %q", d.Context)
	}
}

func TestStandardModeOutsideWindow(t *testing.T) {
	event := ts("2025-12-18T14:00:00Z")
	s := newTestScheduler(event)

	// 25h after the announcement the window has closed; the daily run is due
	// because the critical stamp is from the previous date.
	state := State{LastCriticalRun: ts("2025-12-18T13:00:00Z"), LastDailyRun: ts("2025-12-18T13:00:00Z")}
	d := s.Evaluate(ts("2025-12-19T15:00:00Z"), state)
	if d.Critical {
		t.Fatalf("expected standard mode outside window")
	}
	if d.Context != models.ContextGeneral {
		t.Fatalf("expected general context, got %q", d.Context)
	}
	if !d.Fire {
		t.Fatalf("expected daily fire")
	}
}

func TestStandardOncePerDate(t *testing.T) {
	s := newTestScheduler()

	first := ts("2026-01-05T08:30:00Z")
	d1 := s.Evaluate(first, State{})
	if d1.Critical || !d1.Fire {
		t.Fatalf("expected standard fire, got %+v", d1)
	}

	d2 := s.Evaluate(ts("2026-01-05T09:30:00Z"), d1.Next)
	if d2.Fire {
		t.Fatalf("daily run must fire at most once per date")
	}

	d3 := s.Evaluate(ts("2026-01-06T08:05:00Z"), d1.Next)
	if !d3.Fire {
		t.Fatalf("expected fire on the next date")
	}
}

func TestStandardBeforeDailyHour(t *testing.T) {
	s := newTestScheduler()
	d := s.Evaluate(ts("2026-01-05T07:00:00Z"), State{})
	if d.Fire {
		t.Fatalf("daily hour not reached, expected no fire")
	}
}

func TestCriticalFireStampsDailyObligation(t *testing.T) {
	event := ts("2026-01-05T05:00:00Z")
	s := newTestScheduler(event)

	// A critical fire early in the day covers the daily obligation too.
	d1 := s.Evaluate(ts("2026-01-05T04:30:00Z"), State{})
	if !d1.Fire || !d1.Critical {
		t.Fatalf("expected critical fire, got %+v", d1)
	}
	if d1.Next.LastDailyRun.IsZero() {
		t.Fatalf("critical fire must stamp the daily run")
	}
}

func TestOverlapPrefersNearestEvent(t *testing.T) {
	a := ts("2025-12-18T12:00:00Z")
	b := ts("2025-12-18T18:00:00Z")
	s := newTestScheduler(a, b)

	d := s.Evaluate(ts("2025-12-18T16:00:00Z"), State{})
	if !d.AnnouncementAt.Equal(b) {
		t.Fatalf("expected nearest event %v, got %v", b, d.AnnouncementAt)
	}

	// Equidistant: the earlier event wins.
	d = s.Evaluate(ts("2025-12-18T15:00:00Z"), State{})
	if !d.AnnouncementAt.Equal(a) {
		t.Fatalf("expected earlier event %v on tie, got %v", a, d.AnnouncementAt)
	}
}

func TestEvaluateDoesNotMutateState(t *testing.T) {
	event := ts("2025-12-18T14:00:00Z")
	s := newTestScheduler(event)

	state := State{}
	now := ts("2025-12-18T13:00:00Z")
	_ = s.Evaluate(now, state)
	if !state.LastCriticalRun.IsZero() || !state.LastDailyRun.IsZero() {
		t.Fatalf("Evaluate must not mutate the caller's state")
	}

	// A failed run keeps the old state; the next due tick fires again.
	d := s.Evaluate(now.Add(time.Minute), state)
	if !d.Fire {
		t.Fatalf("expected refire with unadvanced state")
	}
}

func TestNextRun(t *testing.T) {
	event := ts("2025-12-18T14:00:00Z")
	s := newTestScheduler(event)

	now := ts("2025-12-18T13:00:00Z")
	if got := s.NextRun(now, State{}, true); !got.Equal(now) {
		t.Fatalf("never ran critically: next run should be now, got %v", got)
	}

	state := State{LastCriticalRun: now}
	if got := s.NextRun(now, state, true); !got.Equal(now.Add(3*time.Hour)) {
		t.Fatalf("expected cooldown-based next run, got %v", got)
	}

	got := s.NextRun(ts("2026-01-05T09:00:00Z"), state, false)
	want := ts("2026-01-06T08:00:00Z")
	if !got.Equal(want) {
		t.Fatalf("expected next daily occurrence %v, got %v", want, got)
	}
}
