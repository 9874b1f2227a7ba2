package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/storyreel/internal/attachment"
	"github.com/skypro1111/storyreel/internal/metrics"
	"github.com/skypro1111/storyreel/internal/pipeline"
)

const (
	// DefaultPollInterval is the log polling period
	DefaultPollInterval = 2 * time.Second

	cancelledMessage = "Run cancelled before the pipeline service answered."
	malformedMessage = "The pipeline service returned an unexpected response."
)

// Service is the remote generation service
type Service interface {
	Generate(ctx context.Context, sub *pipeline.Submission) (*pipeline.GenerateResponse, error)
	FetchLog(ctx context.Context, runID string) (string, bool, error)
}

// Recorder persists finished runs
type Recorder interface {
	Record(ctx context.Context, r Run) error
}

// Config contains orchestrator configuration
type Config struct {
	PollInterval time.Duration
}

// Orchestrator owns the current generation run. It submits runs to the
// service and polls the run log while the service is working.
type Orchestrator struct {
	service  Service
	recorder Recorder
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics

	current     Run
	stopPolling context.CancelFunc
	subscribers []chan Run
	closed      bool
	mu          sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now   func() time.Time
	newID func(time.Time) string
}

// NewOrchestrator creates an orchestrator. recorder and m may be nil.
func NewOrchestrator(service Service, config Config, logger *slog.Logger, m *metrics.Metrics, recorder Recorder) *Orchestrator {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		service:  service,
		recorder: recorder,
		config:   config,
		logger:   logger,
		metrics:  m,
		current:  Run{Status: StatusIdle},
		ctx:      ctx,
		cancel:   cancel,
		now:      time.Now,
		newID:    NewRunID,
	}
}

// NewRunID returns an identifier in the service's own format,
// run_YYYYmmdd_HHMMSS_<6 hex>.
func NewRunID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("run_%s_%s", t.Format("20060102_150405"), suffix)
}

// Submit sends the attachments to the service and blocks until the run
// reaches a terminal status. The log is polled in the background meanwhile.
// When the attachments are not submittable or a run is already in flight,
// Submit changes nothing and returns the current snapshot with an error.
func (o *Orchestrator) Submit(ctx context.Context, attachments attachment.Snapshot, style string, sceneCount int) (Run, error) {
	o.mu.Lock()
	if o.closed {
		snap := o.current.clone()
		o.mu.Unlock()
		return snap, ErrClosed
	}
	if o.current.Status.InFlight() {
		snap := o.current.clone()
		o.mu.Unlock()
		return snap, ErrRunInFlight
	}
	if !attachments.IsSubmittable() {
		snap := o.current.clone()
		o.mu.Unlock()
		return snap, ErrNotSubmittable
	}
	if sceneCount < 0 {
		sceneCount = 0
	}

	started := o.now()
	o.current = Run{
		ID:         o.newID(started),
		Status:     StatusSubmitting,
		Style:      style,
		SceneCount: sceneCount,
		StartedAt:  started,
	}
	runID := o.current.ID

	pollCtx, stopPolling := context.WithCancel(o.ctx)
	o.stopPolling = stopPolling
	o.wg.Add(1)
	go o.poll(pollCtx, runID)

	o.publishLocked()
	o.mu.Unlock()

	o.metrics.RecordRunSubmitted()
	o.logger.Info("Run submitted",
		slog.String("run_id", runID),
		slog.String("style", style),
		slog.Int("scene_count", sceneCount),
	)

	reqCtx, cancelReq := context.WithCancel(ctx)
	defer cancelReq()
	stopAfter := context.AfterFunc(o.ctx, cancelReq)
	defer stopAfter()

	resp, err := o.service.Generate(reqCtx, buildSubmission(runID, attachments, style, sceneCount))
	if err != nil {
		desc := describe(reqCtx, err)
		o.logger.Warn("Run failed",
			slog.String("run_id", runID),
			slog.String("kind", string(desc.Kind)),
			slog.String("error", err.Error()),
		)
		return o.finish(runID, StatusFailed, "", desc), nil
	}

	o.transition(runID, StatusInProgress)

	// One last log read so the final log is visible; failures are not fatal.
	logID := resp.RunID
	if logID == "" {
		logID = runID
	}
	o.fetchLog(reqCtx, runID, logID)

	o.logger.Info("Run succeeded",
		slog.String("run_id", runID),
		slog.String("video_url", resp.VideoURL),
	)
	return o.finish(runID, StatusSucceeded, resp.VideoURL, nil), nil
}

// Snapshot returns the current run
func (o *Orchestrator) Snapshot() Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current.clone()
}

// Subscribe returns a channel that receives a snapshot after every change.
// Slow readers only see the latest snapshot. The channel is closed by Close.
func (o *Orchestrator) Subscribe() <-chan Run {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Run, 1)
	if o.closed {
		close(ch)
		return ch
	}
	ch <- o.current.clone()
	o.subscribers = append(o.subscribers, ch)
	return ch
}

// Close stops polling, aborts an outstanding submission and closes all
// subscriptions. No log fetch is issued after Close returns.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.cancel()
	for _, ch := range o.subscribers {
		close(ch)
	}
	o.subscribers = nil
	o.mu.Unlock()

	o.wg.Wait()
}

func (o *Orchestrator) transition(runID string, status Status) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current.ID != runID || !o.current.Status.InFlight() {
		return
	}
	o.current.Status = status
	o.publishLocked()
}

func (o *Orchestrator) finish(runID string, status Status, resultURL string, desc *ErrorDescriptor) Run {
	o.mu.Lock()
	if o.current.ID != runID {
		o.mu.Unlock()
		return Run{}
	}
	o.current.Status = status
	o.current.ResultURL = resultURL
	o.current.Error = desc
	o.current.FinishedAt = o.now()
	if o.stopPolling != nil {
		o.stopPolling()
		o.stopPolling = nil
	}
	o.publishLocked()
	final := o.current.clone()
	o.mu.Unlock()

	seconds := final.Duration().Seconds()
	if status == StatusSucceeded {
		o.metrics.RecordRunSucceeded(seconds)
	} else if desc != nil {
		o.metrics.RecordRunFailed(string(desc.Kind), seconds)
	}

	if o.recorder != nil {
		if err := o.recorder.Record(context.Background(), final); err != nil {
			o.logger.Warn("Failed to record run history",
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		}
	}

	return final
}

// publishLocked sends the current run to every subscriber, replacing any
// snapshot a subscriber has not read yet.
func (o *Orchestrator) publishLocked() {
	snap := o.current.clone()
	for _, ch := range o.subscribers {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func buildSubmission(runID string, a attachment.Snapshot, style string, sceneCount int) *pipeline.Submission {
	return &pipeline.Submission{
		RunID:      runID,
		Text:       a.Text,
		SourceFile: a.SourceFile,
		Photo:      a.Photo,
		Voice:      a.Voice,
		Style:      style,
		SceneCount: sceneCount,
	}
}

func describe(ctx context.Context, err error) *ErrorDescriptor {
	var pe *pipeline.PipelineError
	switch {
	case errors.As(err, &pe):
		return &ErrorDescriptor{Kind: KindPipeline, Message: pe.Message()}
	case errors.Is(err, pipeline.ErrMalformedResponse):
		return &ErrorDescriptor{Kind: KindMalformedResponse, Message: malformedMessage}
	case ctx.Err() != nil:
		return &ErrorDescriptor{Kind: KindNetwork, Message: cancelledMessage}
	case errors.Is(err, pipeline.ErrNetwork):
		return &ErrorDescriptor{Kind: KindNetwork, Message: pipeline.UnreachableMessage}
	default:
		return &ErrorDescriptor{Kind: KindPipeline, Message: err.Error()}
	}
}
