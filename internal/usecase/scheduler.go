package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"FxPulse/internal/domain/models"
	"FxPulse/internal/domain/repository"
	"FxPulse/pkg/keylock"
	"FxPulse/pkg/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

var (
	// ErrCycleRunning is returned when a cycle is requested while one is in flight.
	ErrCycleRunning = errors.New("cycle already running")
	// ErrSchedulerClosed is returned after Shutdown.
	ErrSchedulerClosed = errors.New("scheduler is shut down")
)

// SchedulerConfig holds the cycle shape.
type SchedulerConfig struct {
	Interval   time.Duration
	Workers    int
	Pairs      []string
	Timeframes []models.Timeframe
}

// SchedulerOption configures Scheduler.
type SchedulerOption func(*Scheduler)

// WithSnapshotStore persists position snapshots at the end of every cycle.
func WithSnapshotStore(st repository.SnapshotStore) SchedulerOption {
	return func(s *Scheduler) {
		s.snapshots = st
	}
}

// WithSchedulerEvents publishes cycle reports.
func WithSchedulerEvents(p repository.EventPublisher) SchedulerOption {
	return func(s *Scheduler) {
		s.events = p
	}
}

// WithSchedulerMetrics sets the metrics recorder.
func WithSchedulerMetrics(m repository.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(l *logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithSchedulerClock overrides the time source.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler drives monitoring cycles. At most one cycle runs at a time.
type Scheduler struct {
	cfg         SchedulerConfig
	signals     *SignalMonitor
	positions   *PositionMonitor
	notifier    *Notifier
	subscribers repository.SubscriberStore
	open        repository.PositionStore
	snapshots   repository.SnapshotStore
	events      repository.EventPublisher
	metrics     repository.Metrics
	log         *logger.Logger
	now         func() time.Time
	locks       *keylock.Locker

	mu           sync.Mutex
	state        models.CycleState
	running      bool
	closed       bool
	last         *models.CycleReport
	nextRun      *time.Time
	idle         chan struct{} // closed when the running cycle ends
	driverCancel context.CancelFunc
	stopping     chan struct{}
	inflight     sync.WaitGroup
}

// NewScheduler creates an idle scheduler.
func NewScheduler(
	cfg SchedulerConfig,
	signals *SignalMonitor,
	positions *PositionMonitor,
	notifier *Notifier,
	subscribers repository.SubscriberStore,
	open repository.PositionStore,
	opts ...SchedulerOption,
) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	s := &Scheduler{
		cfg:         cfg,
		signals:     signals,
		positions:   positions,
		notifier:    notifier,
		subscribers: subscribers,
		open:        open,
		log:         logger.Nop(),
		now:         time.Now,
		locks:       keylock.New(),
		state:       models.CycleIdle,
		stopping:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type cycle struct {
	id      string
	started time.Time
}

type unit struct {
	kind models.UnitKind
	key  string
	sig  models.SignalKey
	pos  models.Position
}

type unitResult struct {
	unit       unit
	err        error
	candidates int
	snapshot   *models.PositionSnapshot
}

// RunCycle runs one cycle to completion and returns its report. It returns
// ErrCycleRunning without waiting when another cycle is in flight. Cancelling
// ctx stops scheduling new units; units already started finish.
func (s *Scheduler) RunCycle(ctx context.Context) (models.CycleReport, error) {
	c, err := s.begin()
	if err != nil {
		return models.CycleReport{}, err
	}
	return s.run(ctx, c), nil
}

// Trigger starts a cycle in the background and returns its id.
func (s *Scheduler) Trigger() (string, error) {
	c, err := s.begin()
	if err != nil {
		return "", err
	}
	go s.run(context.Background(), c)
	return c.id, nil
}

func (s *Scheduler) begin() (cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return cycle{}, ErrSchedulerClosed
	}
	if s.running {
		return cycle{}, ErrCycleRunning
	}
	s.running = true
	s.state = models.CycleRunning
	s.idle = make(chan struct{})
	s.inflight.Add(1)
	return cycle{id: uuid.NewString(), started: s.now()}, nil
}

func (s *Scheduler) run(ctx context.Context, c cycle) models.CycleReport {
	defer s.inflight.Done()

	finished := make(chan struct{})
	defer close(finished)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-s.stopping:
		case <-finished:
		}
		close(stop)
	}()
	unitCtx := context.WithoutCancel(ctx)

	report := models.CycleReport{CycleID: c.id, StartedAt: c.started, State: models.CycleRunning}
	s.log.Info("cycle started", logger.String("cycle_id", c.id))

	units, audience, profiles, inputFailures := s.plan(unitCtx)
	report.Failures = append(report.Failures, inputFailures...)

	results := make(chan unitResult, len(units))
	jobs := make(chan unit)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				results <- s.runUnit(unitCtx, u, audience, profiles, stop)
			}
		}()
	}

	aborted := false
feed:
	for _, u := range units {
		select {
		case <-stop:
			aborted = true
			break feed
		default:
		}
		select {
		case <-stop:
			aborted = true
			break feed
		case jobs <- u:
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	var snaps []models.PositionSnapshot
	for r := range results {
		report.Attempted++
		report.Candidates += r.candidates
		if r.snapshot != nil {
			snaps = append(snaps, *r.snapshot)
		}
		if r.err == nil {
			report.Succeeded++
			s.recordUnit(r.unit.kind, "succeeded")
			continue
		}
		report.Failed++
		kind := models.KindOf(r.err)
		skipped := r.unit.kind == models.UnitPosition
		if skipped {
			report.Skipped++
		}
		report.Failures = append(report.Failures, models.UnitFailure{
			Unit:    r.unit.key,
			Kind:    kind,
			Message: r.err.Error(),
			Skipped: skipped,
		})
		s.recordUnit(r.unit.kind, "failed")
		if s.metrics != nil {
			s.metrics.RecordError(string(kind))
		}
		if kind == models.FailureInvalidInput {
			s.log.Error("unit misconfigured",
				logger.String("cycle_id", c.id),
				logger.String("unit", r.unit.key),
				logger.Error(r.err))
		} else {
			s.log.Warn("unit failed",
				logger.String("cycle_id", c.id),
				logger.String("unit", r.unit.key),
				logger.String("kind", string(kind)),
				logger.Error(r.err))
		}
	}
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Unit < report.Failures[j].Unit })

	if s.snapshots != nil && len(snaps) > 0 {
		if err := s.snapshots.AppendSnapshots(unitCtx, snaps); err != nil {
			s.log.Error("persist snapshots failed", logger.String("cycle_id", c.id), logger.Error(err))
			if s.metrics != nil {
				s.metrics.RecordError("snapshot_store")
			}
		}
	}

	select {
	case <-stop:
		if report.Attempted < len(units) {
			aborted = true
		}
	default:
	}
	report.State = models.CycleCompleted
	if aborted {
		report.State = models.CycleAborted
	}
	report.Duration = s.now().Sub(c.started)

	s.mu.Lock()
	s.running = false
	close(s.idle)
	s.state = report.State
	last := report
	s.last = &last
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordCycle(string(report.State), report.Duration.Seconds())
	}
	if s.events != nil {
		ectx, cancel := context.WithTimeout(unitCtx, 5*time.Second)
		if err := s.events.PublishCycleReport(ectx, report); err != nil {
			s.log.Warn("publish cycle report failed", logger.String("cycle_id", c.id), logger.Error(err))
		}
		cancel()
	}
	s.log.Info("cycle finished",
		logger.String("cycle_id", c.id),
		logger.String("state", string(report.State)),
		logger.Int("attempted", report.Attempted),
		logger.Int("succeeded", report.Succeeded),
		logger.Int("failed", report.Failed),
		logger.Int("candidates", report.Candidates),
		logger.Duration("duration", report.Duration))
	return report
}

// plan snapshots subscriber profiles and open positions and builds the unit list.
// When subscribers cannot be listed no unit runs, so transitions are not consumed unseen.
func (s *Scheduler) plan(ctx context.Context) ([]unit, []string, map[string]models.SubscriberProfile, []models.UnitFailure) {
	var failures []models.UnitFailure

	subs, err := s.subscribers.ListSubscribers(ctx)
	if err != nil {
		s.log.Error("list subscribers failed", logger.Error(err))
		failures = append(failures, models.UnitFailure{Unit: "subscribers", Kind: models.KindOf(err), Message: err.Error()})
		return nil, nil, nil, failures
	}
	profiles := lo.SliceToMap(subs, func(p models.SubscriberProfile) (string, models.SubscriberProfile) {
		return p.ID, p
	})
	audience := lo.Map(subs, func(p models.SubscriberProfile, _ int) string { return p.ID })

	units := lo.FlatMap(s.cfg.Pairs, func(pair string, _ int) []unit {
		return lo.Map(s.cfg.Timeframes, func(tf models.Timeframe, _ int) unit {
			key := models.SignalKey{Pair: pair, Timeframe: tf}
			return unit{kind: models.UnitSignal, key: "signal:" + key.String(), sig: key}
		})
	})

	if s.open != nil && s.positions != nil {
		positions, err := s.open.OpenPositions(ctx)
		if err != nil {
			s.log.Error("list open positions failed", logger.Error(err))
			failures = append(failures, models.UnitFailure{Unit: "positions", Kind: models.KindOf(err), Message: err.Error()})
		}
		positions = lo.UniqBy(positions, func(p models.Position) string { return p.ID })
		for _, p := range positions {
			units = append(units, unit{kind: models.UnitPosition, key: "position:" + p.ID, pos: p})
		}
	}
	return units, audience, profiles, failures
}

func (s *Scheduler) runUnit(ctx context.Context, u unit, audience []string, profiles map[string]models.SubscriberProfile, stop <-chan struct{}) (res unitResult) {
	res.unit = u
	unlock := s.locks.Lock(u.key)
	defer unlock()
	defer func() {
		if r := recover(); r != nil {
			res.err = models.Failuref(models.FailureInternal, u.key, "panic: %v", r)
			s.log.Error("unit panicked", logger.String("unit", u.key), logger.Any("panic", r))
		}
	}()

	start := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.RecordLatency(string(u.kind)+"_unit", s.now().Sub(start).Seconds())
		}
	}()

	switch u.kind {
	case models.UnitSignal:
		c, err := s.signals.Evaluate(ctx, u.sig, stop)
		if err != nil {
			res.err = err
			return res
		}
		if c != nil {
			c.SubscriberIDs = audience
			res.candidates = 1
			s.notify(ctx, *c, profiles)
		}
	case models.UnitPosition:
		snap, c, err := s.positions.Evaluate(ctx, u.pos, stop)
		if err != nil {
			res.err = err
			return res
		}
		res.snapshot = &snap
		if c != nil {
			res.candidates = 1
			s.notify(ctx, *c, profiles)
		}
	default:
		res.err = fmt.Errorf("unknown unit kind %q", u.kind)
	}
	return res
}

func (s *Scheduler) notify(ctx context.Context, c models.NotificationCandidate, profiles map[string]models.SubscriberProfile) {
	out := s.notifier.Notify(ctx, c, profiles)
	s.log.Info("candidate processed",
		logger.String("candidate_id", c.ID),
		logger.String("kind", string(c.Kind)),
		logger.String("pair", c.Pair),
		logger.Int("admitted", out.Admitted),
		logger.Int("suppressed", out.Suppressed),
		logger.Int("delivered", out.Delivered),
		logger.Int("failed", out.Failed))
}

func (s *Scheduler) recordUnit(kind models.UnitKind, result string) {
	if s.metrics != nil {
		s.metrics.RecordUnit(string(kind), result)
	}
}

// Start launches the periodic driver. The first cycle runs immediately and
// each next one is armed one interval after the previous cycle started. A
// periodic cycle that finds another cycle running waits for it to finish and
// then runs.
// Calling Start while the driver runs is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	if s.driverCancel != nil {
		return nil
	}
	dctx, cancel := context.WithCancel(ctx)
	s.driverCancel = cancel
	next := s.now()
	s.nextRun = &next
	go s.drive(dctx)
	s.log.Info("scheduler started", logger.Duration("interval", s.cfg.Interval))
	return nil
}

func (s *Scheduler) drive(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		start := s.now()
		_, err := s.RunCycle(context.WithoutCancel(ctx))
		switch {
		case errors.Is(err, ErrSchedulerClosed):
			return
		case errors.Is(err, ErrCycleRunning):
			s.log.Info("periodic cycle deferred, another cycle is running")
			if idle := s.idleSignal(); idle != nil {
				select {
				case <-ctx.Done():
					return
				case <-idle:
				}
			}
			timer.Reset(0)
			continue
		}

		next := start.Add(s.cfg.Interval)
		s.mu.Lock()
		if ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		s.nextRun = &next
		s.mu.Unlock()

		wait := next.Sub(s.now())
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// idleSignal returns a channel closed when the running cycle ends, or nil
// when no cycle runs.
func (s *Scheduler) idleSignal() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	return s.idle
}

// Stop halts the periodic driver. A cycle in flight runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.driverCancel
	s.driverCancel = nil
	s.nextRun = nil
	if cancel != nil {
		cancel()
	}
	s.mu.Unlock()
	if cancel != nil {
		s.log.Info("scheduler stopped")
	}
}

// Shutdown stops the driver, stops scheduling units of the current cycle and
// waits for in-flight units until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.stopping)
	}
	s.mu.Unlock()
	s.Stop()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

// Status reports the scheduler state.
func (s *Scheduler) Status() models.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := models.SchedulerStatus{
		State:    s.state,
		Periodic: s.driverCancel != nil,
		Interval: s.cfg.Interval.String(),
	}
	if s.nextRun != nil {
		next := *s.nextRun
		st.NextRunAt = &next
	}
	if s.last != nil {
		last := *s.last
		st.LastReport = &last
	}
	return st
}
