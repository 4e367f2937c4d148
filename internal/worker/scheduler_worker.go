package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ricirt/newsdigest/internal/domain"
	"github.com/ricirt/newsdigest/internal/service"
)

// Runner executes one digest run.
type Runner interface {
	Run(ctx context.Context) (*service.Report, error)
}

// ParseSchedule parses a standard five-field cron expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return s, nil
}

// SchedulerWorker runs the digest pipeline at every activation of a cron
// schedule, and on demand through Trigger.
//
// At most one run is in flight: runs share a single mail session, so an
// activation that arrives while a run is still going is skipped rather than
// queued.
type SchedulerWorker struct {
	runner   Runner
	schedule cron.Schedule
	logger   *zap.Logger

	running sync.Mutex // held for the duration of a run
	wg      sync.WaitGroup

	mu   sync.Mutex
	ctx  context.Context
	last *service.Report
}

func NewSchedulerWorker(runner Runner, schedule cron.Schedule, logger *zap.Logger) *SchedulerWorker {
	return &SchedulerWorker{runner: runner, schedule: schedule, logger: logger}
}

// Start launches the schedule loop. Cancelling ctx stops the loop and any
// run it started; call Wait afterwards.
func (sw *SchedulerWorker) Start(ctx context.Context) {
	sw.mu.Lock()
	sw.ctx = ctx
	sw.mu.Unlock()

	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		sw.loop(ctx)
	}()
}

// Wait blocks until the loop and every triggered run have returned.
func (sw *SchedulerWorker) Wait() {
	sw.wg.Wait()
}

// LastReport returns the report of the most recently finished run.
func (sw *SchedulerWorker) LastReport() (*service.Report, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.last == nil {
		return nil, domain.ErrNoRunYet
	}
	return sw.last, nil
}

// Trigger starts an out-of-schedule run in the background.
// It returns domain.ErrRunInProgress when a run is already going.
func (sw *SchedulerWorker) Trigger() error {
	if !sw.running.TryLock() {
		return domain.ErrRunInProgress
	}

	sw.mu.Lock()
	ctx := sw.ctx
	sw.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		defer sw.running.Unlock()
		sw.execute(ctx, "manual")
	}()
	return nil
}

func (sw *SchedulerWorker) loop(ctx context.Context) {
	sw.logger.Info("scheduler worker started",
		zap.Time("next_run", sw.schedule.Next(time.Now())))

	for {
		timer := time.NewTimer(time.Until(sw.schedule.Next(time.Now())))

		select {
		case <-ctx.Done():
			timer.Stop()
			sw.logger.Info("scheduler worker stopping")
			return
		case <-timer.C:
			if !sw.running.TryLock() {
				sw.logger.Warn("previous run still in progress, skipping activation")
				continue
			}
			sw.execute(ctx, "schedule")
			sw.running.Unlock()
		}
	}
}

func (sw *SchedulerWorker) execute(ctx context.Context, trigger string) {
	report, err := sw.runner.Run(ctx)
	if report != nil {
		sw.mu.Lock()
		sw.last = report
		sw.mu.Unlock()
	}

	fields := []zap.Field{zap.String("trigger", trigger)}
	if report != nil {
		fields = append(fields,
			zap.String("run_id", report.RunID),
			zap.String("state", string(report.State)),
			zap.Duration("duration", report.Duration),
		)
	}
	if err != nil {
		sw.logger.Error("digest run failed", append(fields, zap.Error(err))...)
		return
	}
	sw.logger.Info("digest run finished", fields...)
}
