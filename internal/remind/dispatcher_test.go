package remind

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"notlarim/internal/model"
	"notlarim/internal/push"
	"notlarim/pkg/logx"
)

// fakeSource is an in-memory UserSource keyed by user ID.
type fakeSource struct {
	mu      sync.Mutex
	targets map[string]string
	events  map[string][]model.CalendarEvent

	listErr   error
	eventsErr map[string]error
	targetErr map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		targets:   map[string]string{},
		events:    map[string][]model.CalendarEvent{},
		eventsErr: map[string]error{},
		targetErr: map[string]error{},
	}
}

func (f *fakeSource) ListUserIDs(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := make([]string, 0, len(f.events))
	for id := range f.events {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeSource) EventsFrom(_ context.Context, userID string, from time.Time) ([]model.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.eventsErr[userID]; err != nil {
		return nil, err
	}
	var out []model.CalendarEvent
	for _, ev := range f.events[userID] {
		if ev.StartAt != nil && ev.StartAt.Before(from) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeSource) DeliveryTarget(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.targetErr[userID]; err != nil {
		return "", err
	}
	return f.targets[userID], nil
}

// fakePusher records sends and can fail on demand, globally or for a
// single target.
type fakePusher struct {
	mu      sync.Mutex
	sent    []push.Message
	fail    error
	failFor map[string]error
	byTgt   map[string]int
}

func newFakePusher() *fakePusher {
	return &fakePusher{failFor: map[string]error{}, byTgt: map[string]int{}}
}

func (p *fakePusher) Send(_ context.Context, target string, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failFor[target]; err != nil {
		return err
	}
	if p.fail != nil {
		return p.fail
	}
	p.sent = append(p.sent, msg)
	p.byTgt[target]++
	return nil
}

func (p *fakePusher) Close() error { return nil }

func (p *fakePusher) sentCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

// fakeDedup is an in-memory DedupStore.
type fakeDedup struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func newFakeDedup() *fakeDedup { return &fakeDedup{keys: map[string]time.Time{}} }

func (d *fakeDedup) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	until, ok := d.keys[key]
	return until, ok, nil
}

func (d *fakeDedup) PutDedup(_ context.Context, key string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = until
	return nil
}

func testDue() Due {
	return Due{
		UserID:     "u1",
		EventID:    "ev1",
		EventTitle: "Diş randevusu",
		Rule:       Rule{Value: 15, Unit: UnitMinute},
		RuleIndex:  0,
		FireAt:     time.Date(2026, 3, 14, 10, 2, 0, 0, time.UTC),
	}
}

func TestDispatchSends(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.targets["u1"] = "token-1"
	pusher := newFakePusher()
	d := NewDispatcher(src, pusher, nil, 0, logx.Nop())

	win := NewWindow(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), 5*time.Minute)
	if got := d.Dispatch(context.Background(), testDue(), win); got != OutcomeSent {
		t.Fatalf("Dispatch() = %v, want OutcomeSent", got)
	}
	if pusher.sentCount() != 1 {
		t.Fatalf("sent %d messages, want 1", pusher.sentCount())
	}

	msg := pusher.sent[0]
	if msg.Title != "Yaklaşan etkinlik: Diş randevusu" {
		t.Fatalf("title = %q", msg.Title)
	}
	if msg.Body != "15 dakika sonra başlayacak" {
		t.Fatalf("body = %q", msg.Body)
	}
	if msg.Data["eventId"] != "ev1" || msg.Data["type"] != "calendar_event" {
		t.Fatalf("data = %v", msg.Data)
	}
}

func TestDispatchNoTargetIsSilent(t *testing.T) {
	t.Parallel()

	src := newFakeSource() // u1 has no target registered
	pusher := newFakePusher()
	d := NewDispatcher(src, pusher, nil, 0, logx.Nop())

	win := NewWindow(time.Now(), 5*time.Minute)
	if got := d.Dispatch(context.Background(), testDue(), win); got != OutcomeNoTarget {
		t.Fatalf("Dispatch() = %v, want OutcomeNoTarget", got)
	}
	if pusher.sentCount() != 0 {
		t.Fatalf("sent %d messages, want 0", pusher.sentCount())
	}
}

func TestDispatchDedup(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.targets["u1"] = "token-1"
	pusher := newFakePusher()
	dedup := newFakeDedup()
	d := NewDispatcher(src, pusher, dedup, 0, logx.Nop())

	win := NewWindow(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), 5*time.Minute)
	due := testDue()

	if got := d.Dispatch(context.Background(), due, win); got != OutcomeSent {
		t.Fatalf("first Dispatch() = %v, want OutcomeSent", got)
	}
	if got := d.Dispatch(context.Background(), due, win); got != OutcomeDeduped {
		t.Fatalf("second Dispatch() = %v, want OutcomeDeduped", got)
	}
	if pusher.sentCount() != 1 {
		t.Fatalf("sent %d messages, want 1", pusher.sentCount())
	}

	// A later window is a fresh key.
	win2 := NewWindow(win.Hi, 5*time.Minute)
	if got := d.Dispatch(context.Background(), due, win2); got != OutcomeSent {
		t.Fatalf("new-window Dispatch() = %v, want OutcomeSent", got)
	}
}

func TestDispatchSendFailure(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.targets["u1"] = "token-1"
	pusher := newFakePusher()
	pusher.fail = errors.New("fcm unavailable")
	dedup := newFakeDedup()
	d := NewDispatcher(src, pusher, dedup, 0, logx.Nop())

	win := NewWindow(time.Now(), 5*time.Minute)
	if got := d.Dispatch(context.Background(), testDue(), win); got != OutcomeFailed {
		t.Fatalf("Dispatch() = %v, want OutcomeFailed", got)
	}
	// Failed sends must not burn the idempotency key.
	if len(dedup.keys) != 0 {
		t.Fatalf("dedup keys written on failure: %v", dedup.keys)
	}
}

func TestDispatchBadTarget(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.targets["u1"] = "stale-token"
	pusher := newFakePusher()
	pusher.fail = push.ErrBadTarget
	d := NewDispatcher(src, pusher, nil, 0, logx.Nop())

	win := NewWindow(time.Now(), 5*time.Minute)
	if got := d.Dispatch(context.Background(), testDue(), win); got != OutcomeFailed {
		t.Fatalf("Dispatch() = %v, want OutcomeFailed", got)
	}
}

func TestFormatNotificationUnits(t *testing.T) {
	t.Parallel()

	cases := []struct {
		rule Rule
		body string
	}{
		{Rule{Value: 15, Unit: UnitMinute}, "15 dakika sonra başlayacak"},
		{Rule{Value: 2, Unit: UnitHour}, "2 saat sonra başlayacak"},
		{Rule{Value: 1, Unit: UnitDay}, "1 gün sonra başlayacak"},
	}
	for _, tc := range cases {
		due := testDue()
		due.Rule = tc.rule
		if got := formatNotification(due).Body; got != tc.body {
			t.Fatalf("body = %q, want %q", got, tc.body)
		}
	}
}
