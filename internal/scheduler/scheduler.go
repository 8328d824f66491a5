// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jobboard-notifier/internal/common/errors"
	"jobboard-notifier/internal/common/logger"
	"jobboard-notifier/internal/common/metrics"
	"jobboard-notifier/internal/common/observability"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultTimezone = "Europe/Istanbul"
	defaultTimeout  = 10 * time.Minute
)

// TaskFunc is the body of a scheduled task.
type TaskFunc func(ctx context.Context) error

type task struct {
	name    string
	spec    string
	fn      TaskFunc
	timeout time.Duration
	entryID cron.EntryID

	mu      sync.Mutex
	lastRun time.Time
	lastErr string
	runs    int64
}

// TaskStatus describes one registered task.
type TaskStatus struct {
	Name      string     `json:"name"`
	Spec      string     `json:"spec"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastError string     `json:"lastError,omitempty"`
	Runs      int64      `json:"runs"`
}

type Status struct {
	Running   bool         `json:"running"`
	Timezone  string       `json:"timezone"`
	Tasks     []string     `json:"tasks"`
	TaskCount int          `json:"taskCount"`
	Uptime    string       `json:"uptime"`
	Details   []TaskStatus `json:"details"`
}

// Scheduler runs named tasks on cron schedules. Scheduled runs of a task
// never overlap; a run still in flight causes the next one to be skipped.
type Scheduler struct {
	loc    *time.Location
	log    logger.Logger
	obs    *observability.Observability
	parser cron.Parser

	mu        sync.Mutex
	cron      *cron.Cron
	tasks     map[string]*task
	running   bool
	startedAt time.Time
}

// New builds a stopped scheduler in the given timezone. An empty timezone
// means Europe/Istanbul.
func New(timezone string, obs *observability.Observability, log logger.Logger) (*Scheduler, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	s := &Scheduler{
		loc:    loc,
		log:    log.WithFields(map[string]interface{}{"component": "scheduler"}),
		obs:    obs,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		tasks:  make(map[string]*task),
	}
	s.cron = s.newCron()
	return s, nil
}

func (s *Scheduler) newCron() *cron.Cron {
	cl := &cronLogger{log: s.log}
	return cron.New(
		cron.WithLocation(s.loc),
		cron.WithParser(s.parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
}

// AddTask registers a task. If the scheduler is running the task is
// scheduled immediately. timeout <= 0 uses the default.
func (s *Scheduler) AddTask(name, spec string, fn TaskFunc, timeout time.Duration) error {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return errors.NewInvalidScheduleError(spec, err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return errors.NewTaskAlreadyExistsError(name)
	}

	t := &task{name: name, spec: spec, fn: fn, timeout: timeout}
	s.tasks[name] = t
	if s.running {
		t.entryID = s.schedule(t, schedule)
	}

	s.log.Info("task registered", map[string]interface{}{"task": name, "spec": spec})
	return nil
}

// RemoveTask unschedules and forgets a task. It reports whether the task
// existed.
func (s *Scheduler) RemoveTask(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[name]
	if !ok {
		return false
	}
	if s.running {
		s.cron.Remove(t.entryID)
	}
	delete(s.tasks, name)
	s.log.Info("task removed", map[string]interface{}{"task": name})
	return true
}

func (s *Scheduler) schedule(t *task, schedule cron.Schedule) cron.EntryID {
	job := cron.NewChain(cron.SkipIfStillRunning(&cronLogger{log: s.log})).Then(cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		_ = s.run(ctx, t)
	}))
	return s.cron.Schedule(schedule, job)
}

// Start schedules every registered task. Calling Start on a running
// scheduler does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	s.cron = s.newCron()
	for _, t := range s.tasks {
		schedule, _ := s.parser.Parse(t.spec)
		t.entryID = s.schedule(t, schedule)
	}
	s.cron.Start()
	s.running = true
	s.startedAt = time.Now()

	s.log.Info("scheduler started", map[string]interface{}{
		"timezone":  s.loc.String(),
		"taskCount": len(s.tasks),
	})
}

// Stop unschedules every task and waits for running tasks to return or
// for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	for _, t := range s.tasks {
		s.cron.Remove(t.entryID)
		t.entryID = 0
	}
	done := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.log.Info("scheduler stopped", nil)
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out waiting for running tasks", nil)
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Trigger runs a task now, synchronously, outside its schedule.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return errors.NewTaskNotFoundError(name)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return s.run(ctx, t)
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:  s.running,
		Timezone: s.loc.String(),
		Tasks:    make([]string, 0, len(s.tasks)),
		Uptime:   "0s",
	}
	if s.running {
		st.Uptime = time.Since(s.startedAt).Round(time.Second).String()
	}

	for name := range s.tasks {
		st.Tasks = append(st.Tasks, name)
	}
	sort.Strings(st.Tasks)
	st.TaskCount = len(st.Tasks)

	for _, name := range st.Tasks {
		t := s.tasks[name]
		ts := TaskStatus{Name: name, Spec: t.spec}
		if s.running {
			if next := s.cron.Entry(t.entryID).Next; !next.IsZero() {
				ts.NextRun = &next
			}
		}
		t.mu.Lock()
		if !t.lastRun.IsZero() {
			last := t.lastRun
			ts.LastRun = &last
		}
		ts.LastError = t.lastErr
		ts.Runs = t.runs
		t.mu.Unlock()
		st.Details = append(st.Details, ts)
	}
	return st
}

// run executes one task invocation with metrics, tracing and panic
// recovery. Scheduled and triggered runs both go through here.
func (s *Scheduler) run(ctx context.Context, t *task) (err error) {
	runID := uuid.NewString()
	log := s.log.WithFields(map[string]interface{}{"task": t.name, "runId": runID})
	start := time.Now()

	metrics.TasksActive.WithLabelValues(t.name).Inc()
	defer metrics.TasksActive.WithLabelValues(t.name).Dec()

	ctx, end := s.startSpan(ctx, t.name, runID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}

		status := "success"
		lastErr := ""
		if err != nil {
			status = "failure"
			lastErr = err.Error()
			log.Error("task failed", map[string]interface{}{"error": lastErr, "duration": time.Since(start).String()})
		} else {
			log.Info("task completed", map[string]interface{}{"duration": time.Since(start).String()})
		}
		metrics.TaskRuns.WithLabelValues(t.name, status).Inc()
		metrics.TaskDuration.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
		end(err)

		t.mu.Lock()
		t.lastRun = start
		t.lastErr = lastErr
		t.runs++
		t.mu.Unlock()
	}()

	log.Info("task started", nil)
	return t.fn(ctx)
}

func (s *Scheduler) startSpan(ctx context.Context, name, runID string) (context.Context, func(error)) {
	if s.obs == nil {
		return ctx, func(error) {}
	}
	ctx, span := s.obs.StartSpan(ctx, "scheduler.task",
		attribute.String("task", name),
		attribute.String("run_id", runID),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (c *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron: "+msg, kvFields(keysAndValues))
}

func (c *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := kvFields(keysAndValues)
	fields["error"] = err.Error()
	c.log.Error("cron: "+msg, fields)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2+1)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
