// Package jobs runs the periodic maintenance sweeps on a gocron scheduler.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// Task is one periodic unit of work.  now is the instant the run was
// triggered; tasks compare against it instead of reading the clock.
type Task func(ctx context.Context, now time.Time) error

type entry struct {
	job    gocron.Job
	cancel context.CancelFunc
}

// Runner owns a set of named periodic tasks.  Each task gets its own
// context, cancelled by Stop or Shutdown, and never overlaps with itself:
// a run that is still going when the next tick fires makes that tick skip.
type Runner struct {
	sched  gocron.Scheduler
	parent context.Context
	now    func() time.Time

	mu    sync.Mutex
	tasks map[string]entry
}

// NewRunner returns a Runner whose task contexts derive from ctx.
func NewRunner(ctx context.Context) (*Runner, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	return &Runner{
		sched:  s,
		parent: ctx,
		now:    func() time.Time { return time.Now().UTC() },
		tasks:  map[string]entry{},
	}, nil
}

// Add registers task under name to run every interval once the runner is
// started.
func (r *Runner) Add(name string, every time.Duration, task Task) error {
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}

	ctx, cancel := context.WithCancel(r.parent)
	j, err := r.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() { r.run(ctx, name, task) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("job %s: %w", name, err)
	}
	r.tasks[name] = entry{job: j, cancel: cancel}
	log.Info().Str("job", name).Dur("every", every).Msg("jobs: registered")
	return nil
}

func (r *Runner) run(ctx context.Context, name string, task Task) {
	if ctx.Err() != nil {
		return
	}
	now := r.now()
	start := time.Now()
	if err := task(ctx, now); err != nil {
		log.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("jobs: run failed")
		return
	}
	log.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("jobs: run finished")
}

// Start begins scheduling.  The first run of each task happens one
// interval after Start.
func (r *Runner) Start() {
	r.sched.Start()
}

// RunNow triggers an immediate run of the named task.
func (r *Runner) RunNow(name string) error {
	r.mu.Lock()
	e, ok := r.tasks[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	return e.job.RunNow()
}

// Stop cancels the named task's context and removes it from the schedule.
func (r *Runner) Stop(name string) error {
	r.mu.Lock()
	e, ok := r.tasks[name]
	delete(r.tasks, name)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	e.cancel()
	return r.sched.RemoveJob(e.job.ID())
}

// Shutdown cancels every task and waits for running ones to return.
func (r *Runner) Shutdown() error {
	r.mu.Lock()
	for _, e := range r.tasks {
		e.cancel()
	}
	r.tasks = map[string]entry{}
	r.mu.Unlock()
	return r.sched.Shutdown()
}
