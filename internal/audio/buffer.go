package audio

import (
	"sync"
	"time"
)

// SampleBuffer is an append-only, ordered collection of captured audio chunks.
// Each chunk is a private copy of one processing tick; insertion order is
// temporal order.
type SampleBuffer struct {
	sampleRate int

	chunks     [][]float32
	total      int
	lastUpdate time.Time

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	SampleRate int           `json:"sample_rate"`
	Chunks     int           `json:"chunks"`
	Samples    int           `json:"samples"`
	Duration   time.Duration `json:"duration"`
}

// NewSampleBuffer creates an empty buffer for audio at the given sample rate
func NewSampleBuffer(sampleRate int) *SampleBuffer {
	return &SampleBuffer{
		sampleRate: sampleRate,
		chunks:     make([][]float32, 0, 64),
		lastUpdate: time.Now(),
	}
}

// Append stores a copy of chunk at the end of the buffer
func (b *SampleBuffer) Append(chunk []float32) {
	snapshot := make([]float32, len(chunk))
	copy(snapshot, chunk)

	b.appendOwned(snapshot)
}

// appendOwned stores chunk without copying; the caller must not retain it
func (b *SampleBuffer) appendOwned(chunk []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = append(b.chunks, chunk)
	b.total += len(chunk)
	b.lastUpdate = time.Now()
}

// Concat returns all buffered samples as one contiguous slice
func (b *SampleBuffer) Concat() []float32 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]float32, 0, b.total)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Reset drops all buffered chunks
func (b *SampleBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = nil
	b.total = 0
	b.lastUpdate = time.Now()
}

// Len returns the total number of samples across all chunks
func (b *SampleBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// ChunkCount returns the number of appended chunks
func (b *SampleBuffer) ChunkCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chunks)
}

// SampleRate returns the sample rate of the buffered audio
func (b *SampleBuffer) SampleRate() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sampleRate
}

func (b *SampleBuffer) setSampleRate(rate int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sampleRate = rate
}

// Duration returns the playback length of the buffered audio
func (b *SampleBuffer) Duration() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.durationLocked()
}

func (b *SampleBuffer) durationLocked() time.Duration {
	if b.sampleRate <= 0 {
		return 0
	}
	return time.Duration(b.total) * time.Second / time.Duration(b.sampleRate)
}

// GetLastUpdate returns the time of the last buffer update
func (b *SampleBuffer) GetLastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// GetStats returns current buffer statistics
func (b *SampleBuffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		SampleRate: b.sampleRate,
		Chunks:     len(b.chunks),
		Samples:    b.total,
		Duration:   b.durationLocked(),
	}
}
