package run

import (
	"context"
	"log/slog"
	"time"
)

// poll fetches the run log every poll interval while the run is in flight.
// The timer is re-armed only after a fetch completes, so fetches never overlap.
func (o *Orchestrator) poll(ctx context.Context, runID string) {
	defer o.wg.Done()

	timer := time.NewTimer(o.config.PollInterval)
	defer timer.Stop()

	o.logger.Debug("Log polling started",
		slog.String("run_id", runID),
		slog.Duration("interval", o.config.PollInterval),
	)

	for {
		select {
		case <-ctx.Done():
			o.logger.Debug("Log polling stopped", slog.String("run_id", runID))
			return
		case <-timer.C:
		}

		if !o.inFlight(runID) {
			return
		}

		o.fetchLog(ctx, runID, runID)
		timer.Reset(o.config.PollInterval)
	}
}

func (o *Orchestrator) inFlight(runID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current.ID == runID && o.current.Status.InFlight()
}

// fetchLog reads the log stored under logID and applies it to the run with
// runID while that run is still in flight. Errors are logged and dropped.
func (o *Orchestrator) fetchLog(ctx context.Context, runID, logID string) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	text, ok, err := o.service.FetchLog(ctx, logID)
	o.metrics.RecordLogFetch(err == nil && ok, time.Since(start).Seconds())

	if err != nil {
		o.logger.Debug("Log fetch failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current.ID != runID || !o.current.Status.InFlight() || o.current.LogText == text {
		return
	}
	o.current.LogText = text
	o.publishLocked()
}
