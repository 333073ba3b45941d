package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/arka/cart-service/lock"
	"go.uber.org/zap"
)

// Job is one unit of periodic background work.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

type entry struct {
	name     string
	interval time.Duration
	job      Job
}

// Scheduler runs registered jobs on their own intervals. Each run holds a
// lease named after the job, so with a shared locker only one instance runs
// a job at a time; an instance that cannot get the lease skips that tick.
type Scheduler struct {
	leases lock.Locker
	logger *zap.Logger

	mu      sync.Mutex
	entries []entry
	started bool
	wg      sync.WaitGroup
}

func NewScheduler(leases lock.Locker, logger *zap.Logger) *Scheduler {
	return &Scheduler{leases: leases, logger: logger}
}

// Register adds a job. It must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started, cannot register %s", name)
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	s.entries = append(s.entries, entry{name: name, interval: interval, job: job})
	return nil
}

// Start launches one loop per job. Loops stop when ctx is cancelled; Wait
// blocks until they have.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	defer s.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	s.logger.Info("Job scheduled", zap.String("job", e.name), zap.Duration("interval", e.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Job stopping", zap.String("job", e.name))
			return
		case <-ticker.C:
			_, _ = s.runOnce(ctx, e)
		}
	}
}

// RunNow runs the named job once, under its lease, outside the ticker. It
// reports whether the job ran.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	var found *entry
	for i := range s.entries {
		if s.entries[i].name == name {
			found = &s.entries[i]
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return false, fmt.Errorf("unknown job %s", name)
	}
	return s.runOnce(ctx, *found)
}

func (s *Scheduler) runOnce(ctx context.Context, e entry) (bool, error) {
	release, err := s.leases.TryLock(ctx, "job:"+e.name)
	if errors.Is(err, lock.ErrNotAcquired) {
		s.logger.Debug("Job lease held elsewhere, skipping", zap.String("job", e.name))
		return false, nil
	}
	if err != nil {
		s.logger.Warn("Job lease unavailable", zap.String("job", e.name), zap.Error(err))
		return false, err
	}
	defer release()

	start := time.Now()
	err = e.job.Run(ctx)
	if err != nil {
		s.logger.Error("Job failed",
			zap.String("job", e.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return true, err
	}
	s.logger.Debug("Job finished", zap.String("job", e.name), zap.Duration("duration", time.Since(start)))
	return true, nil
}
