package remind

import "time"

// Window is the half-open interval [Lo, Hi) one scheduler tick is
// responsible for. Keeping Hi exclusive means contiguous windows never
// double-fire a boundary instant.
type Window struct {
	Lo time.Time
	Hi time.Time
}

// NewWindow returns the window starting at now with the given horizon.
func NewWindow(now time.Time, horizon time.Duration) Window {
	return Window{Lo: now, Hi: now.Add(horizon)}
}

// Contains reports whether t lies in [Lo, Hi).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Lo) && t.Before(w.Hi)
}

func (w Window) String() string {
	return "[" + w.Lo.Format(time.RFC3339) + ", " + w.Hi.Format(time.RFC3339) + ")"
}
