package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"notlarim/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Workers     int
	QueueSize   int
	HistorySize int
	Timezone    string // IANA TZ, e.g. "Europe/Istanbul"
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 50
	}
	return c
}

// OverlapPolicy decides what happens when a job fires while its
// previous run is still executing.
type OverlapPolicy int

const (
	OverlapSkip OverlapPolicy = iota
	OverlapAllow
)

type runState struct {
	mu      sync.Mutex
	running bool
}

type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type task struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	overlap OverlapPolicy
	state   *runState
}

type jobDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     func(ctx context.Context) error
	overlap OverlapPolicy
	state   *runState
}

// Service owns a cron trigger and a bounded worker pool. Cron entries
// only enqueue; workers execute with a per-job timeout, so a slow job
// never stalls the cron goroutine.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config

	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	queue    chan task
	stopCh   chan struct{}
	workerWG sync.WaitGroup

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// AddInterval registers a recurring job with an @every cadence.
// Registration is allowed before and after Start.
func (s *Service) AddInterval(name string, every, timeout time.Duration, overlap OverlapPolicy, job func(ctx context.Context) error) error {
	if every <= 0 {
		return fmt.Errorf("interval for %q must be positive", name)
	}
	return s.add(jobDef{
		name:    name,
		spec:    "@every " + every.String(),
		timeout: timeout,
		job:     job,
		overlap: overlap,
		state:   &runState{},
	})
}

// AddCron registers a recurring job with a five-field cron spec
// evaluated in the scheduler timezone.
func (s *Service) AddCron(name, spec string, timeout time.Duration, overlap OverlapPolicy, job func(ctx context.Context) error) error {
	if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("cron spec for %q: %w", name, err)
	}
	return s.add(jobDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		overlap: overlap,
		state:   &runState{},
	})
}

func (s *Service) add(d jobDef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append(s.defs, d)
	if s.c != nil {
		return s.registerLocked(d)
	}
	return nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return errors.New("scheduler already started")
	}
	s.stopCh = make(chan struct{})
	s.queue = make(chan task, s.cfg.QueueSize)

	loc := s.loadLocation()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for _, d := range s.defs {
		if err := s.registerLocked(d); err != nil {
			return err
		}
	}

	for i := 0; i < s.cfg.Workers; i++ {
		s.workerWG.Add(1)
		go s.worker(ctx)
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("workers", s.cfg.Workers),
		logx.Int("jobs", len(s.defs)),
		logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.workerWG.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Service) registerLocked(d jobDef) error {
	_, err := s.c.AddFunc(d.spec, func() {
		s.enqueue(task{name: d.name, timeout: d.timeout, run: d.job, overlap: d.overlap, state: d.state})
	})
	return err
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) enqueue(t task) {
	select {
	case s.queue <- t:
	default:
		s.log.Warn("scheduler queue full, dropping run", logx.String("job", t.name))
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.workerWG.Done()

	s.mu.Lock()
	stopCh := s.stopCh
	queue := s.queue
	s.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	if t.overlap == OverlapSkip {
		t.state.mu.Lock()
		if t.state.running {
			t.state.mu.Unlock()
			s.log.Debug("previous run still active, skipping", logx.String("job", t.name))
			return
		}
		t.state.running = true
		t.state.mu.Unlock()
		defer func() {
			t.state.mu.Lock()
			t.state.running = false
			t.state.mu.Unlock()
		}()
	}

	start := time.Now()
	runCtx := ctx
	var cancel context.CancelFunc
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	err := t.run(runCtx)

	item := HistoryItem{Name: t.name, Started: start, Duration: time.Since(start)}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("job failed",
			logx.String("job", t.name), logx.Duration("took", item.Duration), logx.Err(err))
	} else {
		s.log.Debug("job ok",
			logx.String("job", t.name), logx.Duration("took", item.Duration))
	}

	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[len(s.history)-s.cfg.HistorySize:]
	}
	s.hmu.Unlock()
}

// History returns the most recent job runs, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]HistoryItem, len(s.history))
	copy(out, s.history)
	return out
}
