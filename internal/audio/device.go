package audio

import "errors"

var (
	// ErrDeviceAccess is returned when the capture device is missing or access is denied
	ErrDeviceAccess = errors.New("audio capture device unavailable")

	// ErrInvalidState is returned when a recorder operation is not valid in the current state
	ErrInvalidState = errors.New("invalid recorder state")
)

// FrameFunc receives one frame of mono samples from the capture device. The
// slice is only valid for the duration of the call.
type FrameFunc func(frame []float32)

// Device opens capture streams on an audio input device
type Device interface {
	// Open acquires the device and starts delivering frames of framesPerBuffer
	// samples to tap at the device's native sample rate.
	Open(framesPerBuffer int, tap FrameFunc) (Stream, error)
}

// Stream is a running capture stream
type Stream interface {
	SampleRate() int

	// Close stops frame delivery before returning and releases the device.
	// Closing an already closed stream is a no-op.
	Close() error
}
