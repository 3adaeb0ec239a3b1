// Package maintenance runs periodic housekeeping: purging expired password
// reset tokens and dropping stale rate-limit partitions.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fitcoach/internal/logging"
	"github.com/robfig/cron/v3"
)

// Job is one unit of housekeeping.
type Job func(ctx context.Context) error

type entry struct {
	name string
	job  Job
}

// Scheduler runs Jobs on cron specs ("@every 10m", "0 3 * * *").
type Scheduler struct {
	cron   *cron.Cron
	logger logging.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries []entry
}

func NewScheduler(l logging.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: l.With("module", "maintenance"),
		ctx:    context.Background(),
	}
}

// Add registers job under spec. It must be called before Run.
func (s *Scheduler) Add(name, spec string, job Job) error {
	e := entry{name: name, job: job}
	if _, err := s.cron.AddFunc(spec, func() { s.run(e) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

// Run starts the cron loop and blocks until ctx is done. Jobs still running
// at that point are waited for.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info(ctx, "Scheduler started", "jobs", len(s.entries))

	<-ctx.Done()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.logger.Info(ctx, "Scheduler stopped")
}

// RunNow runs every registered job once, synchronously.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.mu.Lock()
	entries := append([]entry(nil), s.entries...)
	s.mu.Unlock()

	for _, e := range entries {
		s.exec(ctx, e)
	}
}

func (s *Scheduler) run(e entry) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	s.exec(ctx, e)
}

func (s *Scheduler) exec(ctx context.Context, e entry) {
	start := time.Now()
	if err := e.job(ctx); err != nil {
		s.logger.Error(ctx, "job failed", "job", e.name, "error", err)
		return
	}
	s.logger.Debug(ctx, "job done", "job", e.name, "duration_ms", time.Since(start).Milliseconds())
}
