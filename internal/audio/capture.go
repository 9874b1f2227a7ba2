package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/storyreel/internal/metrics"
)

// WAVMimeType is the MIME type of recordings produced by the controller
const WAVMimeType = "audio/wav"

// State represents the recorder state
type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Asset is a finalized, named audio file
type Asset struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Recording is the output of a finalized capture session
type Recording struct {
	Asset      Asset
	Handle     *Handle // nil when the controller has no handle store
	SampleRate int
	Samples    int
	Duration   time.Duration
	Level      Level
}

// CaptureConfig contains recorder configuration
type CaptureConfig struct {
	FramesPerBuffer int    // samples per tap frame
	QueueSize       int     // frames buffered between the tap and the drain goroutine
	NamePrefix      string  // file name prefix for finalized assets
	VoiceThreshold  float64 // frame RMS counted as voiced, 0 for the default
}

// Controller owns the capture device and the recording state machine.
// Callers must call Close when abandoning the controller so that device
// resources and preview handles are released.
type Controller struct {
	device  Device
	handles HandleStore
	config  CaptureConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	state     State
	stream    Stream
	tap       *frameTap
	buffer    *SampleBuffer
	meter     *LevelMeter
	drained   chan struct{}
	startedAt time.Time
	preview   *Handle

	mu sync.Mutex
}

// NewController creates a recorder for device. handles and m may be nil.
func NewController(device Device, handles HandleStore, config CaptureConfig, logger *slog.Logger, m *metrics.Metrics) *Controller {
	if config.FramesPerBuffer <= 0 {
		config.FramesPerBuffer = 4096
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.NamePrefix == "" {
		config.NamePrefix = "voice-recording"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		device:  device,
		handles: handles,
		config:  config,
		logger:  logger,
		metrics: m,
		state:   StateIdle,
	}
}

// Start acquires the device and begins buffering frames into a fresh buffer
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidState, c.state)
	}

	// A new session discards the previous preview
	c.revokePreviewLocked()

	frames := make(chan []float32, c.config.QueueSize)
	tap := &frameTap{frames: frames}

	// The drain runs before the device opens so early frames never block the tap
	buffer := NewSampleBuffer(0)
	meter := NewLevelMeter(c.config.VoiceThreshold)
	drained := make(chan struct{})
	go c.drain(frames, buffer, meter, drained)

	abort := func() {
		tap.close()
		<-drained
		c.metrics.RecordDeviceError()
	}

	stream, err := c.device.Open(c.config.FramesPerBuffer, tap.deliver)
	if err != nil {
		abort()
		if !errors.Is(err, ErrDeviceAccess) {
			err = fmt.Errorf("%w: %w", ErrDeviceAccess, err)
		}
		return err
	}

	rate := stream.SampleRate()
	if rate <= 0 {
		stream.Close()
		abort()
		return fmt.Errorf("%w: device reported sample rate %d", ErrDeviceAccess, rate)
	}
	buffer.setSampleRate(rate)

	c.stream = stream
	c.tap = tap
	c.buffer = buffer
	c.meter = meter
	c.drained = drained
	c.startedAt = time.Now()
	c.state = StateRecording

	c.metrics.RecordRecordingStarted()
	c.logger.Info("Recording started",
		slog.Int("sample_rate", rate),
		slog.Int("frames_per_buffer", c.config.FramesPerBuffer),
	)

	return nil
}

// drain is the single writer of buffer
func (c *Controller) drain(frames <-chan []float32, buffer *SampleBuffer, meter *LevelMeter, done chan<- struct{}) {
	defer close(done)
	for frame := range frames {
		meter.Observe(frame)
		buffer.appendOwned(frame)
		c.metrics.RecordFrame()
	}
}

// Stop releases the device, encodes everything captured so far and returns
// the finalized recording. Stop on an idle controller returns nil, nil.
func (c *Controller) Stop() (*Recording, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRecording {
		return nil, nil
	}

	c.state = StateFinalizing
	defer func() { c.state = StateIdle }()

	c.releaseLocked()

	buffer := c.buffer
	c.buffer = nil
	level := c.meter.Level()
	c.meter = nil

	samples := buffer.Concat()
	rate := buffer.SampleRate()

	data, err := EncodeWAV(samples, rate)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recording: %w", err)
	}

	rec := &Recording{
		Asset: Asset{
			Name:     fmt.Sprintf("%s-%s.wav", c.config.NamePrefix, c.startedAt.Format("20060102-150405")),
			MIMEType: WAVMimeType,
			Data:     data,
		},
		SampleRate: rate,
		Samples:    len(samples),
		Duration:   buffer.Duration(),
		Level:      level,
	}

	if c.handles != nil {
		h, err := c.handles.Create(rec.Asset)
		if err != nil {
			c.logger.Warn("Failed to create recording preview", slog.String("error", err.Error()))
		} else {
			c.revokePreviewLocked()
			c.preview = h
			rec.Handle = h
		}
	}

	c.metrics.RecordRecordingCompleted(rec.Duration.Seconds(), len(data))
	c.logger.Info("Recording finalized",
		slog.String("name", rec.Asset.Name),
		slog.Int("samples", rec.Samples),
		slog.Int("bytes", len(data)),
		slog.Duration("duration", rec.Duration),
		slog.Float64("voiced_ratio", level.VoicedRatio),
	)

	return rec, nil
}

// Cancel releases the device and discards the captured audio. It is a no-op
// when no recording is active.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

func (c *Controller) cancelLocked() {
	if c.state != StateRecording {
		return
	}

	c.state = StateCancelled
	c.releaseLocked()

	samples := c.buffer.Len()
	c.buffer.Reset()
	c.buffer = nil
	c.meter = nil
	c.state = StateIdle

	c.metrics.RecordRecordingCancelled()
	c.logger.Info("Recording cancelled", slog.Int("discarded_samples", samples))
}

// Close cancels any active recording and revokes the last preview handle
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelLocked()
	c.revokePreviewLocked()
}

// releaseLocked stops the device, closes the tap and waits until every
// delivered frame has been appended. Safe to call more than once.
func (c *Controller) releaseLocked() {
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			c.logger.Warn("Failed to close capture stream", slog.String("error", err.Error()))
		}
		c.stream = nil
	}
	if c.tap != nil {
		c.tap.close()
		c.tap = nil
	}
	if c.drained != nil {
		<-c.drained
		c.drained = nil
	}
}

func (c *Controller) revokePreviewLocked() {
	if c.preview == nil || c.handles == nil {
		return
	}
	if err := c.handles.Revoke(c.preview); err != nil {
		c.logger.Warn("Failed to revoke recording preview", slog.String("error", err.Error()))
	}
	c.preview = nil
}

// State returns the current recorder state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SampleRate returns the device rate of the active session, or 0 when idle
func (c *Controller) SampleRate() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffer == nil {
		return 0
	}
	return c.buffer.SampleRate()
}

// Buffered returns the number of samples captured in the active session
func (c *Controller) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffer == nil {
		return 0
	}
	return c.buffer.Len()
}

// Level returns the input level of the active session
func (c *Controller) Level() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meter == nil {
		return Level{}
	}
	return c.meter.Level()
}

// Elapsed returns how long the active session has been recording
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateRecording {
		return 0
	}
	return time.Since(c.startedAt)
}

// Preview returns the handle of the last finalized recording, if any
func (c *Controller) Preview() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

// frameTap turns device callbacks into an ordered stream of frame copies.
// Frames delivered after close are dropped.
type frameTap struct {
	frames chan []float32
	closed bool
	mu     sync.Mutex
}

func (t *frameTap) deliver(frame []float32) {
	snapshot := make([]float32, len(frame))
	copy(snapshot, frame)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.frames <- snapshot
}

func (t *frameTap) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.frames)
}
