package remind

import (
	"context"

	"notlarim/pkg/logx"
)

// Scanner produces the per-user notification batch for one window.
type Scanner struct {
	src UserSource
	log logx.Logger
}

func NewScanner(src UserSource, log logx.Logger) *Scanner {
	return &Scanner{src: src, log: log}
}

// ScanUser queries the user's upcoming events (start >= window lower
// bound; past events are never scanned) and resolves each one against
// the window. A malformed event skips itself, never the batch.
func (s *Scanner) ScanUser(ctx context.Context, userID string, win Window) ([]Due, error) {
	events, err := s.src.EventsFrom(ctx, userID, win.Lo)
	if err != nil {
		return nil, err
	}

	var batch []Due
	for _, ev := range events {
		for _, f := range Resolve(ev, win) {
			batch = append(batch, Due{
				UserID:     userID,
				EventID:    ev.ID,
				EventTitle: ev.Title,
				Rule:       f.Rule,
				RuleIndex:  f.RuleIndex,
				FireAt:     f.At,
			})
		}
	}
	if len(batch) > 0 {
		s.log.Debug("user scan fired reminders",
			logx.String("user", userID), logx.Int("due", len(batch)), logx.Int("events", len(events)))
	}
	return batch, nil
}
