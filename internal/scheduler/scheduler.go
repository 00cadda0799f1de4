package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vyrodovalexey/vaultbackend/internal/observability"
)

// ErrInvalidTask is returned for a task without an id or a function.
var ErrInvalidTask = errors.New("scheduler: task requires an id and a function")

// TaskFunc is the body of a task. ctx ends when the run times out or the
// registration context is done.
type TaskFunc func(ctx context.Context) error

// TaskInvocation is a task to register.
type TaskInvocation struct {
	ID string
	Fn TaskFunc
}

// TaskRunner registers recurring tasks.
type TaskRunner interface {
	// Run registers task and returns without waiting for it to run.
	Run(ctx context.Context, task TaskInvocation) error
}

// Scheduler runs registered tasks on one cron instance. Task ids are unique:
// registering an id again replaces the earlier registration.
type Scheduler struct {
	cron    *cron.Cron
	logger  observability.Logger
	metrics *Metrics
	now     func() time.Time

	mu      sync.Mutex
	tasks   map[string]*registration
	started bool
}

type registration struct {
	entryID cron.EntryID
	stop    func() bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = metrics
	}
}

// New creates a scheduler. The cron loop starts with the first task.
func New(logger observability.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger = logger.With(observability.String("component", "scheduler"))

	adapter := cronLogger{logger: logger}
	s := &Scheduler{
		cron: cron.New(
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
			cron.WithLogger(adapter),
		),
		logger: logger,
		now:    time.Now,
		tasks:  make(map[string]*registration),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	return s
}

// CreateScheduledTaskRunner returns a runner that registers tasks on schedule.
func (s *Scheduler) CreateScheduledTaskRunner(schedule Schedule) TaskRunner {
	return &scheduledRunner{scheduler: s, schedule: schedule}
}

type scheduledRunner struct {
	scheduler *Scheduler
	schedule  Schedule
}

// Schedule returns the schedule tasks are registered with.
func (r *scheduledRunner) Schedule() Schedule {
	return r.schedule
}

// Run implements TaskRunner.
func (r *scheduledRunner) Run(ctx context.Context, task TaskInvocation) error {
	return r.scheduler.register(ctx, r.schedule, task)
}

func (s *Scheduler) register(ctx context.Context, schedule Schedule, task TaskInvocation) error {
	if task.ID == "" || task.Fn == nil {
		return ErrInvalidTask
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cronSched, err := schedule.cronSchedule(s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[task.ID]; ok {
		old.stop()
		s.cron.Remove(old.entryID)
		s.logger.Warn("replacing scheduled task", observability.String("task", task.ID))
	}

	reg := &registration{}
	reg.entryID = s.cron.Schedule(cronSched, cron.FuncJob(func() {
		s.runTask(ctx, schedule.timeout(), task)
	}))
	// The task is dropped once the context it was registered with is done.
	reg.stop = context.AfterFunc(ctx, func() {
		s.unregister(task.ID, reg)
	})
	s.tasks[task.ID] = reg

	if !s.started {
		s.cron.Start()
		s.started = true
	}

	s.logger.Info("scheduled task",
		observability.String("task", task.ID),
		observability.String("schedule", schedule.String()),
	)
	return nil
}

func (s *Scheduler) unregister(id string, reg *registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tasks[id] != reg {
		return
	}
	s.cron.Remove(reg.entryID)
	delete(s.tasks, id)
	s.logger.Debug("unscheduled task", observability.String("task", id))
}

func (s *Scheduler) runTask(parent context.Context, timeout time.Duration, task TaskInvocation) {
	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := time.Now()
	err := task.Fn(ctx)
	duration := time.Since(start)

	if err != nil {
		s.metrics.RecordRun(task.ID, "error", duration)
		s.logger.Error("scheduled task failed",
			observability.String("task", task.ID),
			observability.Duration("duration", duration),
			observability.Error(err),
		)
		return
	}

	s.metrics.RecordRun(task.ID, "success", duration)
	s.logger.Debug("scheduled task completed",
		observability.String("task", task.ID),
		observability.Duration("duration", duration),
	)
}

// Tasks returns the registered task ids in order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NextRun returns when the task runs next.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	reg, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	entry := s.cron.Entry(reg.entryID)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Next, true
}

// Stop stops the cron loop and waits for running tasks to return, or for ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	for id, reg := range s.tasks {
		reg.stop()
		s.cron.Remove(reg.entryID)
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
