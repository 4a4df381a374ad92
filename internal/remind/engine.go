package remind

import (
	"context"
	"sync"

	"github.com/jmhodges/clock"

	"notlarim/internal/push"
	"notlarim/pkg/logx"
)

// Engine runs one fleet-wide reminder scan per tick. A tick is a pure
// function of (store contents, window); the engine keeps no cursor
// between ticks, so a missed or repeated trigger only affects its own
// window.
type Engine struct {
	cfg        Config
	src        UserSource
	scanner    *Scanner
	dispatcher *Dispatcher
	clk        clock.Clock
	log        logx.Logger
}

func NewEngine(cfg Config, src UserSource, pusher push.Pusher, dedup DedupStore, clk clock.Clock, log logx.Logger) *Engine {
	cfg = cfg.withDefaults()
	if clk == nil {
		clk = clock.New()
	}
	if !cfg.Dedup {
		dedup = nil
	}
	return &Engine{
		cfg:        cfg,
		src:        src,
		scanner:    NewScanner(src, log),
		dispatcher: NewDispatcher(src, pusher, dedup, cfg.RatePerSec, log),
		clk:        clk,
		log:        log,
	}
}

// SetRate forwards a runtime rate-limit change to the dispatcher.
func (e *Engine) SetRate(perSec int) bool { return e.dispatcher.SetRate(perSec) }

// RunTick scans every user against the window [now, now+horizon) and
// dispatches whatever fired. One user's scan failure is counted and
// skipped; it never aborts the fleet. The returned error covers only
// the user listing itself.
func (e *Engine) RunTick(ctx context.Context) (TickStats, error) {
	start := e.clk.Now()
	win := NewWindow(start, e.cfg.Horizon)

	userIDs, err := e.src.ListUserIDs(ctx)
	if err != nil {
		return TickStats{Window: win}, err
	}

	stats := TickStats{Window: win, Users: len(userIDs)}

	ids := make(chan string)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for uid := range ids {
				batch, err := e.scanner.ScanUser(ctx, uid, win)
				if err != nil {
					e.log.Warn("user scan failed", logx.String("user", uid), logx.Err(err))
					mu.Lock()
					stats.ScanErrors++
					mu.Unlock()
					continue
				}
				var sent, noTarget, deduped, failed int
				for _, due := range batch {
					switch e.dispatcher.Dispatch(ctx, due, win) {
					case OutcomeSent:
						sent++
					case OutcomeNoTarget:
						noTarget++
					case OutcomeDeduped:
						deduped++
					case OutcomeFailed:
						failed++
					}
				}
				mu.Lock()
				stats.Fired += len(batch)
				stats.Sent += sent
				stats.NoTarget += noTarget
				stats.Deduped += deduped
				stats.DispatchErrors += failed
				mu.Unlock()
			}
		}()
	}

feed:
	for _, uid := range userIDs {
		select {
		case ids <- uid:
		case <-ctx.Done():
			break feed
		}
	}
	close(ids)
	wg.Wait()

	stats.Took = e.clk.Now().Sub(start)
	e.log.Info("reminder tick finished",
		logx.String("window", win.String()),
		logx.Int("users", stats.Users),
		logx.Int("fired", stats.Fired),
		logx.Int("sent", stats.Sent),
		logx.Int("no_target", stats.NoTarget),
		logx.Int("deduped", stats.Deduped),
		logx.Int("scan_errors", stats.ScanErrors),
		logx.Int("dispatch_errors", stats.DispatchErrors),
		logx.Duration("took", stats.Took))
	return stats, ctx.Err()
}
