// Package retention prunes checkpoint history on a cron schedule so long
// event logs do not accumulate unbounded snapshots. The event log itself
// is never touched: it stays append-only and complete.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/weftworks/loom/store"
	"github.com/weftworks/loom/workflow"
)

// cronParser supports standard 5-field cron and descriptors like "@every 1h".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = l }
}

// WithKeep sets how many checkpoints survive per workflow.
func WithKeep(n int) Option {
	return func(s *Sweeper) { s.keep = n }
}

// WithPageSize sets how many workflows each sweep batch loads at once.
func WithPageSize(n int) Option {
	return func(s *Sweeper) { s.pageSize = n }
}

// Sweeper walks all workflows on a schedule and trims each one's
// checkpoint history down to the newest N.
type Sweeper struct {
	store    store.Store
	schedule cronlib.Schedule
	keep     int
	pageSize int
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Sweeper firing on the given cron expression
// (e.g. "0 3 * * *" or "@every 6h").
func New(st store.Store, expr string, opts ...Option) (*Sweeper, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, fmt.Errorf("retention: parse schedule %q: %w", expr, err)
	}

	s := &Sweeper{
		store:    st,
		schedule: sched,
		keep:     5,
		pageSize: 100,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the sweep loop.
func (s *Sweeper) Start(_ context.Context) error {
	s.wg.Add(1)
	go s.loop()
	s.logger.Info("retention sweeper started",
		slog.Int("keep", s.keep),
		slog.Time("next_sweep", s.schedule.Next(time.Now())),
	)
	return nil
}

// Stop signals the loop to stop and waits for it to finish.
func (s *Sweeper) Stop(_ context.Context) error {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("retention sweeper stopped")
	return nil
}

// loop sleeps until the schedule's next firing, sweeps, and repeats.
func (s *Sweeper) loop() {
	defer s.wg.Done()

	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if err := s.Sweep(context.Background()); err != nil {
				s.logger.Error("retention sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep prunes every workflow's checkpoints in one pass. It is safe to
// call concurrently with live coordinators: pruning only ever removes
// older snapshots, and replay works from any surviving checkpoint.
func (s *Sweeper) Sweep(ctx context.Context) error {
	start := time.Now()
	pruned := 0

	for offset := 0; ; offset += s.pageSize {
		page, err := s.store.ListWorkflows(ctx, workflow.ListOpts{
			Limit:  s.pageSize,
			Offset: offset,
		})
		if err != nil {
			return fmt.Errorf("retention: list workflows: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, wf := range page {
			if err := s.store.PruneCheckpoints(ctx, wf.ID, s.keep); err != nil {
				s.logger.Warn("checkpoint prune failed",
					slog.String("workflow_id", wf.ID.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			pruned++
		}

		if len(page) < s.pageSize {
			break
		}
	}

	s.logger.Info("retention sweep complete",
		slog.Int("workflows", pruned),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
