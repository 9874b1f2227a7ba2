package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDevice captures from the system default input device through PortAudio
type PortAudioDevice struct {
	logger *slog.Logger
}

// NewPortAudioDevice creates a device backed by the default PortAudio input
func NewPortAudioDevice(logger *slog.Logger) *PortAudioDevice {
	return &PortAudioDevice{logger: logger}
}

// Open initializes PortAudio and starts a mono input stream at the device's default rate
func (d *PortAudioDevice) Open(framesPerBuffer int, tap FrameFunc) (Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialize portaudio: %w", ErrDeviceAccess, err)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: no default input device: %w", ErrDeviceAccess, err)
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.FramesPerBuffer = framesPerBuffer

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		tap(in)
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: open input stream on %q: %w", ErrDeviceAccess, dev.Name, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: start input stream on %q: %w", ErrDeviceAccess, dev.Name, err)
	}

	d.logger.Debug("Capture stream opened",
		slog.String("device", dev.Name),
		slog.Float64("sample_rate", params.SampleRate),
		slog.Int("frames_per_buffer", framesPerBuffer),
	)

	return &portAudioStream{
		stream:     stream,
		sampleRate: int(params.SampleRate),
	}, nil
}

type portAudioStream struct {
	stream     *portaudio.Stream
	sampleRate int

	once sync.Once
	err  error
}

func (s *portAudioStream) SampleRate() int {
	return s.sampleRate
}

func (s *portAudioStream) Close() error {
	s.once.Do(func() {
		if err := s.stream.Stop(); err != nil {
			s.err = fmt.Errorf("stop input stream: %w", err)
		}
		if err := s.stream.Close(); err != nil && s.err == nil {
			s.err = fmt.Errorf("close input stream: %w", err)
		}
		if err := portaudio.Terminate(); err != nil && s.err == nil {
			s.err = fmt.Errorf("terminate portaudio: %w", err)
		}
	})
	return s.err
}
