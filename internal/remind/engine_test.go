package remind

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"notlarim/internal/model"
	"notlarim/pkg/logx"
)

func testLogger() logx.Logger { return logx.Nop() }

func fakeClockAt(t time.Time) clock.FakeClock {
	clk := clock.NewFake()
	clk.Set(t)
	return clk
}

func TestEngineTickDispatchesDueReminders(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	src := newFakeSource()
	src.targets["u1"] = "token-1"
	src.events["u1"] = []model.CalendarEvent{
		{
			ID:      "ev1",
			UserID:  "u1",
			Title:   "Toplantı",
			StartAt: tp(now.Add(17 * time.Minute)),
			ReminderRules: []model.ReminderRule{
				{Value: 15, Unit: "minute"},
			},
		},
		{
			ID:      "ev2",
			UserID:  "u1",
			Title:   "Akşam yemeği",
			StartAt: tp(now.Add(3 * time.Hour)),
			ReminderRules: []model.ReminderRule{
				{Value: 15, Unit: "minute"},
			},
		},
	}
	pusher := newFakePusher()

	eng := NewEngine(Config{Horizon: 5 * time.Minute}, src, pusher, nil, fakeClockAt(now), testLogger())

	stats, err := eng.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick() err: %v", err)
	}
	if stats.Users != 1 || stats.Fired != 1 || stats.Sent != 1 {
		t.Fatalf("stats = %+v, want 1 user / 1 fired / 1 sent", stats)
	}
	if pusher.sentCount() != 1 {
		t.Fatalf("sent %d messages, want 1", pusher.sentCount())
	}
	if pusher.sent[0].Title != "Yaklaşan etkinlik: Toplantı" {
		t.Fatalf("title = %q", pusher.sent[0].Title)
	}
}

func TestEngineTickIsolatesUserFailures(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	src := newFakeSource()
	src.eventsErr["broken"] = errors.New("document decode failed")
	src.events["broken"] = nil
	src.targets["ok"] = "token-ok"
	src.events["ok"] = []model.CalendarEvent{
		{
			ID:      "ev1",
			UserID:  "ok",
			Title:   "Spor",
			StartAt: tp(now.Add(time.Hour)),
			ReminderRules: []model.ReminderRule{
				{Value: 1, Unit: "hour"},
			},
		},
	}
	pusher := newFakePusher()

	eng := NewEngine(Config{Horizon: 5 * time.Minute, Workers: 1}, src, pusher, nil, fakeClockAt(now), testLogger())

	stats, err := eng.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick() err: %v", err)
	}
	if stats.ScanErrors != 1 {
		t.Fatalf("scan errors = %d, want 1", stats.ScanErrors)
	}
	if stats.Sent != 1 {
		t.Fatalf("sent = %d, want 1 (healthy user must still be served)", stats.Sent)
	}
}

func TestEngineTickSkipsMalformedEvents(t *testing.T) {
	t.Parallel()

	// A not-yet-ready event (no start time) sits next to a valid one;
	// only the valid one may dispatch, and nothing errors.
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	src := newFakeSource()
	src.targets["u1"] = "token-1"
	src.events["u1"] = []model.CalendarEvent{
		{
			ID:     "broken",
			UserID: "u1",
			Title:  "Taslak",
			ReminderRules: []model.ReminderRule{
				{Value: 15, Unit: "minute"},
			},
		},
		{
			ID:      "ok",
			UserID:  "u1",
			Title:   "Doktor",
			StartAt: tp(now.Add(17 * time.Minute)),
			ReminderRules: []model.ReminderRule{
				{Value: 15, Unit: "minute"},
			},
		},
	}
	pusher := newFakePusher()

	eng := NewEngine(Config{Horizon: 5 * time.Minute}, src, pusher, nil, fakeClockAt(now), testLogger())

	stats, err := eng.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick() err: %v", err)
	}
	if stats.Fired != 1 || stats.Sent != 1 || stats.ScanErrors != 0 {
		t.Fatalf("stats = %+v, want fired=1 sent=1 scan_errors=0", stats)
	}
	if pusher.sentCount() != 1 {
		t.Fatalf("sent %d messages, want 1", pusher.sentCount())
	}
	if pusher.sent[0].Data["eventId"] != "ok" {
		t.Fatalf("dispatched event = %q, want %q", pusher.sent[0].Data["eventId"], "ok")
	}
}

func TestEngineTickIsolatesSendFailures(t *testing.T) {
	t.Parallel()

	// One user's push send fails; the other user's notification in the
	// same tick must still go out.
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	src := newFakeSource()
	src.targets["a"] = "token-a"
	src.targets["b"] = "token-b"
	for _, uid := range []string{"a", "b"} {
		src.events[uid] = []model.CalendarEvent{
			{
				ID:      "ev-" + uid,
				UserID:  uid,
				Title:   "Ders",
				StartAt: tp(now.Add(15 * time.Minute)),
				ReminderRules: []model.ReminderRule{
					{Value: 15, Unit: "minute"},
				},
			},
		}
	}
	pusher := newFakePusher()
	pusher.failFor["token-a"] = errors.New("fcm unavailable")

	eng := NewEngine(Config{Horizon: 5 * time.Minute, Workers: 1}, src, pusher, nil, fakeClockAt(now), testLogger())

	stats, err := eng.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick() err: %v", err)
	}
	if stats.Fired != 2 || stats.Sent != 1 || stats.DispatchErrors != 1 {
		t.Fatalf("stats = %+v, want fired=2 sent=1 dispatch_errors=1", stats)
	}
	if pusher.byTgt["token-b"] != 1 || pusher.byTgt["token-a"] != 0 {
		t.Fatalf("per-target sends = %v, want only token-b", pusher.byTgt)
	}
}

func TestEngineTickCountsMissingTargets(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	src := newFakeSource()
	src.events["u1"] = []model.CalendarEvent{
		{
			ID:      "ev1",
			UserID:  "u1",
			StartAt: tp(now.Add(15 * time.Minute)),
			ReminderRules: []model.ReminderRule{
				{Value: 15, Unit: "minute"},
			},
		},
	}
	pusher := newFakePusher()

	eng := NewEngine(Config{Horizon: 5 * time.Minute}, src, pusher, nil, fakeClockAt(now), testLogger())

	stats, err := eng.RunTick(context.Background())
	if err != nil {
		t.Fatalf("RunTick() err: %v", err)
	}
	if stats.Fired != 1 || stats.NoTarget != 1 || stats.Sent != 0 {
		t.Fatalf("stats = %+v, want fired=1 no_target=1 sent=0", stats)
	}
	if pusher.sentCount() != 0 {
		t.Fatalf("sent %d messages, want 0", pusher.sentCount())
	}
}

func TestEngineTickIsIdempotentWithDedup(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	src := newFakeSource()
	src.targets["u1"] = "token-1"
	src.events["u1"] = []model.CalendarEvent{
		{
			ID:      "ev1",
			UserID:  "u1",
			Title:   "Kontrol",
			StartAt: tp(now.Add(15 * time.Minute)),
			ReminderRules: []model.ReminderRule{
				{Value: 15, Unit: "minute"},
			},
		},
	}
	pusher := newFakePusher()
	dedup := newFakeDedup()

	eng := NewEngine(Config{Horizon: 5 * time.Minute, Dedup: true}, src, pusher, dedup, fakeClockAt(now), testLogger())

	// Same window twice: the re-run must not re-send.
	if _, err := eng.RunTick(context.Background()); err != nil {
		t.Fatalf("first RunTick() err: %v", err)
	}
	stats, err := eng.RunTick(context.Background())
	if err != nil {
		t.Fatalf("second RunTick() err: %v", err)
	}
	if stats.Deduped != 1 || stats.Sent != 0 {
		t.Fatalf("stats = %+v, want deduped=1 sent=0", stats)
	}
	if pusher.sentCount() != 1 {
		t.Fatalf("sent %d messages total, want 1", pusher.sentCount())
	}
}

func TestEngineTickListError(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.listErr = errors.New("store offline")
	eng := NewEngine(Config{}, src, newFakePusher(), nil, nil, testLogger())

	if _, err := eng.RunTick(context.Background()); err == nil {
		t.Fatal("RunTick() expected error when user listing fails")
	}
}

func TestEngineTickStateless(t *testing.T) {
	t.Parallel()

	// Contiguous windows split a rule set between ticks without overlap
	// or gaps: each fire time lands in exactly one window.
	base := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	src := newFakeSource()
	src.targets["u1"] = "token-1"
	src.events["u1"] = []model.CalendarEvent{
		{
			ID:      "ev1",
			UserID:  "u1",
			Title:   "Sunum",
			StartAt: tp(base.Add(20 * time.Minute)),
			ReminderRules: []model.ReminderRule{
				{Value: 18, Unit: "minute"}, // fires in window 1
				{Value: 13, Unit: "minute"}, // fires in window 2
			},
		},
	}
	pusher := newFakePusher()
	clk := fakeClockAt(base)

	eng := NewEngine(Config{Horizon: 5 * time.Minute}, src, pusher, nil, clk, testLogger())

	s1, err := eng.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick 1 err: %v", err)
	}
	clk.Set(base.Add(5 * time.Minute))
	s2, err := eng.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick 2 err: %v", err)
	}

	if s1.Sent != 1 || s2.Sent != 1 {
		t.Fatalf("sent = %d/%d, want 1/1", s1.Sent, s2.Sent)
	}
	if pusher.sentCount() != 2 {
		t.Fatalf("sent %d messages total, want 2", pusher.sentCount())
	}
}
