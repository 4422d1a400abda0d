// Package scheduler runs periodic maintenance jobs in the worker. Each run
// happens under a lease lock so that only one worker instance executes a
// given job at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kinship-crm/kinship/pkg/leaselock"
	"github.com/kinship-crm/kinship/pkg/logger"
)

// Locker is satisfied by *leaselock.Locker.
type Locker interface {
	Do(ctx context.Context, key string, opts leaselock.Options, fn func(ctx context.Context) error) error
}

// Job is a named unit of periodic work. Schedule accepts standard cron
// expressions and descriptors such as "@every 15m".
type Job struct {
	Name     string
	Schedule string
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	cron   *cron.Cron
	locker Locker
	owner  string

	mu   sync.Mutex
	ctx  context.Context
	jobs map[string]Job
}

// New returns a scheduler. A nil locker runs jobs without coordination,
// which is only safe with a single worker.
func New(locker Locker, owner string) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		locker: locker,
		owner:  owner,
		ctx:    context.Background(),
		jobs:   make(map[string]Job),
	}
}

// Add registers job. It fails on a duplicate name or an invalid schedule.
func (s *Scheduler) Add(job Job) error {
	schedule, err := cron.ParseStandard(job.Schedule)
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule: %w", job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	s.jobs[job.Name] = job
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if err := s.RunNow(ctx, job.Name); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("[Scheduler] job failed", "job", job.Name, "err", err)
		}
	}))
	logger.Debug("[Scheduler] job registered", "job", job.Name, "schedule", job.Schedule)
	return nil
}

// Start begins firing jobs. Runs started after ctx ends see a canceled
// context.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	logger.Info("[Scheduler] started", "jobs", len(s.jobs))
}

// Stop stops firing and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	logger.Info("[Scheduler] stopped")
}

// RunNow executes the named job immediately under its lease. A job already
// running elsewhere is skipped without error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	var err error
	if s.locker == nil {
		err = job.Run(ctx)
	} else {
		err = s.locker.Do(ctx, "job:"+name, leaselock.Options{TTL: timeout, Owner: s.owner}, job.Run)
	}
	if errors.Is(err, leaselock.ErrBusy) {
		logger.Debug("[Scheduler] job running elsewhere", "job", name)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("[Scheduler] job done", "job", name, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
