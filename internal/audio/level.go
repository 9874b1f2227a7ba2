package audio

import (
	"math"
	"sync"
)

const (
	// DefaultVoiceThreshold is the frame RMS (full scale 1.0) above which a
	// frame counts as voiced, roughly -40 dBFS
	DefaultVoiceThreshold = 0.01

	levelFloorDB = -60.0
	levelSmooth  = 0.3
)

// Level summarizes the input level of a capture session
type Level struct {
	Current     float64 `json:"current"`      // smoothed meter position, 0.0 - 1.0
	Peak        float64 `json:"peak"`         // highest absolute sample seen
	Frames      uint64  `json:"frames"`       // frames measured
	VoicedRatio float64 `json:"voiced_ratio"` // share of frames above the voice threshold
}

// LevelMeter tracks frame energy to drive an input meter and to flag
// recordings that are mostly silence
type LevelMeter struct {
	threshold float64

	current float64
	peak    float64
	frames  uint64
	voiced  uint64

	mu sync.Mutex
}

// NewLevelMeter creates a meter. A non-positive threshold selects
// DefaultVoiceThreshold.
func NewLevelMeter(threshold float64) *LevelMeter {
	if threshold <= 0 {
		threshold = DefaultVoiceThreshold
	}
	return &LevelMeter{threshold: threshold}
}

// Observe measures one frame
func (m *LevelMeter) Observe(frame []float32) {
	if len(frame) == 0 {
		return
	}

	var energy, peak float64
	for _, s := range frame {
		v := float64(s)
		if math.IsNaN(v) {
			continue
		}
		energy += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	rms := math.Sqrt(energy / float64(len(frame)))

	m.mu.Lock()
	defer m.mu.Unlock()

	pos := meterPosition(rms)
	if m.frames == 0 {
		m.current = pos
	} else {
		m.current = levelSmooth*pos + (1-levelSmooth)*m.current
	}
	if peak > m.peak {
		m.peak = math.Min(peak, 1)
	}
	m.frames++
	if rms >= m.threshold {
		m.voiced++
	}
}

// Level returns the current measurements
func (m *LevelMeter) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := Level{Current: m.current, Peak: m.peak, Frames: m.frames}
	if m.frames > 0 {
		l.VoicedRatio = float64(m.voiced) / float64(m.frames)
	}
	return l
}

// Reset clears all measurements
func (m *LevelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current, m.peak, m.frames, m.voiced = 0, 0, 0, 0
}

// meterPosition maps an RMS value onto 0..1 over a 60 dB range
func meterPosition(rms float64) float64 {
	if rms <= 0 {
		return 0
	}
	db := 20 * math.Log10(rms)
	if db <= levelFloorDB {
		return 0
	}
	if db >= 0 {
		return 1
	}
	return (db - levelFloorDB) / -levelFloorDB
}
