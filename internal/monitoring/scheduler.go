package monitoring

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SchedulerState is the lifecycle state of a Scheduler.
type SchedulerState int32

const (
	StateIdle SchedulerState = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// TickFunc is the unit of work the scheduler drives.
type TickFunc func(ctx context.Context) error

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Interval           time.Duration
	StopGracePeriod    time.Duration
	ImmediateFirstTick bool

	// OnSkip is called whenever a due tick is skipped.
	OnSkip func()
}

// SchedulerStats is a point-in-time view of scheduler counters.
type SchedulerStats struct {
	State            string        `json:"state"`
	Interval         time.Duration `json:"interval"`
	TicksRun         uint64        `json:"ticks_run"`
	TicksSkipped     uint64        `json:"ticks_skipped"`
	TickErrors       uint64        `json:"tick_errors"`
	LastTickAt       time.Time     `json:"last_tick_at"`
	LastTickDuration time.Duration `json:"last_tick_duration"`
}

// Scheduler runs a TickFunc on a fixed interval with at most one tick in
// flight. A tick that falls due while another runs is skipped.
type Scheduler struct {
	logger *zap.Logger
	config SchedulerConfig
	tick   TickFunc

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once

	// baseCtx parents every tick; cancelling it aborts in-flight work.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	state    atomic.Int32
	inFlight atomic.Bool
	loopWG   sync.WaitGroup
	tickWG   sync.WaitGroup

	ticksRun     atomic.Uint64
	ticksSkipped atomic.Uint64
	tickErrors   atomic.Uint64
	lastTickAt   atomic.Int64
	lastDuration atomic.Int64
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger *zap.Logger, config SchedulerConfig, tick TickFunc) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.StopGracePeriod <= 0 {
		config.StopGracePeriod = DefaultStopGracePeriod
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:     logger,
		config:     config,
		tick:       tick,
		stopCh:     make(chan struct{}),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
}

// Start validates the configuration and begins ticking. Cancelling ctx has
// the same effect as Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return configError("collection interval must be positive, got %s", s.config.Interval)
	}
	if s.tick == nil {
		return configError("scheduler has no tick function")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.loopWG.Add(1)
	go s.loop()

	go func() {
		select {
		case <-ctx.Done():
			s.stopOnce.Do(s.shutdown)
		case <-s.stopCh:
		}
	}()

	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Bool("immediate_first_tick", s.config.ImmediateFirstTick),
	)
	return nil
}

// Stop stops scheduling, waits up to the grace period for the in-flight tick
// and then cancels it. No tick starts after Stop returns.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	if !started {
		return ErrNotStarted
	}
	s.stopOnce.Do(s.shutdown)
	return nil
}

func (s *Scheduler) shutdown() {
	s.mu.Lock()
	s.state.Store(int32(StateStopping))
	close(s.stopCh)
	s.mu.Unlock()

	s.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		s.tickWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.config.StopGracePeriod):
		s.logger.Warn("In-flight tick exceeded stop grace period, cancelling",
			zap.Duration("grace_period", s.config.StopGracePeriod),
		)
		s.baseCancel()
		<-done
	}
	s.baseCancel()

	s.state.Store(int32(StateStopped))
	s.logger.Info("Scheduler stopped",
		zap.Uint64("ticks_run", s.ticksRun.Load()),
		zap.Uint64("ticks_skipped", s.ticksSkipped.Load()),
	)
}

func (s *Scheduler) loop() {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.ImmediateFirstTick {
		s.fire()
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.fire()
		}
	}
}

// fire starts a tick in the background unless one is already in flight.
func (s *Scheduler) fire() {
	if !s.inFlight.CompareAndSwap(false, true) {
		skipped := s.ticksSkipped.Add(1)
		s.logger.Warn("Tick skipped, previous tick still running",
			zap.Uint64("skipped_total", skipped),
		)
		if s.config.OnSkip != nil {
			s.config.OnSkip()
		}
		return
	}

	s.tickWG.Add(1)
	go func() {
		defer s.tickWG.Done()
		s.run(s.baseCtx)
	}()
}

// TriggerNow runs one tick synchronously on the caller's goroutine.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	s.mu.Lock()
	switch SchedulerState(s.state.Load()) {
	case StateStopping, StateStopped:
		s.mu.Unlock()
		return ErrStopped
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return ErrTickInProgress
	}
	s.tickWG.Add(1)
	s.mu.Unlock()
	defer s.tickWG.Done()

	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	return s.run(tickCtx)
}

// run executes the tick; the caller must hold the in-flight flag.
func (s *Scheduler) run(ctx context.Context) error {
	defer s.inFlight.Store(false)

	s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning))
	defer s.state.CompareAndSwap(int32(StateRunning), int32(StateIdle))

	start := time.Now()
	err := s.tick(ctx)
	elapsed := time.Since(start)

	s.ticksRun.Add(1)
	s.lastTickAt.Store(start.UnixNano())
	s.lastDuration.Store(int64(elapsed))

	if err != nil {
		s.tickErrors.Add(1)
		s.logger.Error("Tick failed", zap.Error(err), zap.Duration("duration", elapsed))
	} else if elapsed > s.config.Interval && s.config.Interval > 0 {
		s.logger.Warn("Tick overran collection interval",
			zap.Duration("duration", elapsed),
			zap.Duration("interval", s.config.Interval),
		)
	}
	return err
}

// State returns the current lifecycle state.
func (s *Scheduler) State() SchedulerState {
	return SchedulerState(s.state.Load())
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	stats := SchedulerStats{
		State:            s.State().String(),
		Interval:         s.config.Interval,
		TicksRun:         s.ticksRun.Load(),
		TicksSkipped:     s.ticksSkipped.Load(),
		TickErrors:       s.tickErrors.Load(),
		LastTickDuration: time.Duration(s.lastDuration.Load()),
	}
	if ns := s.lastTickAt.Load(); ns != 0 {
		stats.LastTickAt = time.Unix(0, ns)
	}
	return stats
}
