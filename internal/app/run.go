package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/vk/asyncgridgo/internal/builder"
	"github.com/vk/asyncgridgo/internal/ctxlog"
	"github.com/vk/asyncgridgo/internal/loader"
	"github.com/vk/asyncgridgo/internal/metrics"
)

// Run executes the loaded grid on an asynchronous job loader.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	runID := uuid.NewString()
	a.logger.Debug("App.Run started.", "run_id", runID)

	if a.config.HealthcheckPort > 0 {
		go a.startHealthcheckServer(a.config.HealthcheckPort)
	}

	jobs, err := builder.Build(ctx, a.model, a.registry)
	if err != nil {
		return fmt.Errorf("failed to build grid jobs: %w", err)
	}
	if len(jobs) == 0 {
		a.logger.Warn("No jobs found in grid, nothing to execute.")
		return nil
	}

	var totalThreads, activeThreads metrics.Gauge
	ld := loader.New(&totalThreads, &activeThreads, a.config.Workers, true)
	ld.SetLogger(a.logger)

	task := loader.NewTask(ld, jobs)
	if err := task.Schedule(); err != nil {
		return fmt.Errorf("failed to schedule grid: %w", err)
	}

	a.logger.Info("🚀 Starting concurrent execution...", "run_id", runID, "jobs", len(jobs), "workers", a.config.Workers)
	started := time.Now()
	ld.Start()

	// Cancel the pending remainder when the caller's context dies; jobs
	// already executing run to completion.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Warn("Context canceled, removing pending jobs.")
			task.Remove()
		case <-done:
		}
	}()

	ld.Wait()
	close(done)
	ld.Stop()

	elapsed := time.Since(started)
	ok, failed, canceled := 0, 0, 0
	for _, j := range jobs {
		switch j.Status() {
		case loader.StatusOK:
			ok++
		case loader.StatusFailed:
			failed++
			if err := j.Wait(); err != nil {
				a.logger.Error("Job failed.", "job", j.Name, "error", err)
			}
		case loader.StatusCanceled:
			canceled++
		}
	}
	task.Detach()

	a.logger.Info("🏁 Execution finished.",
		"run_id", runID,
		"ok", humanize.Comma(int64(ok)),
		"failed", failed,
		"canceled", canceled,
		"elapsed", elapsed.Round(time.Millisecond).String(),
	)

	if failed > 0 || canceled > 0 {
		return fmt.Errorf("%d of %d jobs did not finish OK", failed+canceled, len(jobs))
	}
	return nil
}
