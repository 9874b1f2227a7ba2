package audio

import (
	"math"
	"testing"
)

func constantFrame(n int, v float32) []float32 {
	frame := make([]float32, n)
	for i := range frame {
		frame[i] = v
	}
	return frame
}

func TestMeterPosition(t *testing.T) {
	tests := []struct {
		name string
		rms  float64
		want float64
	}{
		{"silence", 0, 0},
		{"below floor", 0.0001, 0},
		{"full scale", 1, 1},
		{"clipped", 2, 1},
		{"minus 30 dB", math.Pow(10, -30.0/20), 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := meterPosition(tt.rms)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("meterPosition(%v) = %v, want %v", tt.rms, got, tt.want)
			}
		})
	}
}

func TestLevelMeterVoicedRatio(t *testing.T) {
	m := NewLevelMeter(0)

	m.Observe(constantFrame(256, 0.5))
	m.Observe(constantFrame(256, 0))
	m.Observe(constantFrame(256, 0.001))
	m.Observe(constantFrame(256, -0.25))
	m.Observe(nil)

	l := m.Level()
	if l.Frames != 4 {
		t.Errorf("Expected 4 frames, got %d", l.Frames)
	}
	if l.VoicedRatio != 0.5 {
		t.Errorf("Expected voiced ratio 0.5, got %v", l.VoicedRatio)
	}
	if l.Peak != 0.5 {
		t.Errorf("Expected peak 0.5, got %v", l.Peak)
	}
	if l.Current <= 0 || l.Current >= 1 {
		t.Errorf("Expected smoothed level inside (0,1), got %v", l.Current)
	}

	m.Reset()
	if l := m.Level(); l.Frames != 0 || l.VoicedRatio != 0 || l.Current != 0 {
		t.Errorf("Expected empty level after reset, got %+v", l)
	}
}

func TestLevelMeterIgnoresNaN(t *testing.T) {
	m := NewLevelMeter(0.1)
	frame := constantFrame(4, 0.5)
	frame[0] = float32(math.NaN())

	m.Observe(frame)

	l := m.Level()
	if math.IsNaN(l.Current) || math.IsNaN(l.Peak) {
		t.Fatalf("NaN leaked into level: %+v", l)
	}
	if l.VoicedRatio != 1 {
		t.Errorf("Expected frame to count as voiced, got %v", l.VoicedRatio)
	}
}
