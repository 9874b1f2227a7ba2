package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	// 440Hz sine wave for 0.1 seconds at 48kHz
	sampleRate := 48000
	numSamples := sampleRate / 10
	samples := make([]float32, numSamples)
	for i := range samples {
		ts := float64(i) / float64(sampleRate)
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*ts))
	}

	wavData, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := WAVHeaderSize + numSamples*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}
	if math.Abs(info.Duration-0.1) > 0.001 {
		t.Errorf("Expected duration 0.100, got %.3f", info.Duration)
	}
}

func TestEncodeWAVHeaderLayout(t *testing.T) {
	samples := []float32{0, 0.5, -0.5}
	sampleRate := 44100

	data, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	le := binary.LittleEndian
	dataBytes := uint32(len(samples) * 2)

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"chunk id", string(data[0:4]), "RIFF"},
		{"chunk size", le.Uint32(data[4:8]), 36 + dataBytes},
		{"format", string(data[8:12]), "WAVE"},
		{"fmt id", string(data[12:16]), "fmt "},
		{"fmt size", le.Uint32(data[16:20]), uint32(16)},
		{"audio format", le.Uint16(data[20:22]), uint16(1)},
		{"channels", le.Uint16(data[22:24]), uint16(1)},
		{"sample rate", le.Uint32(data[24:28]), uint32(sampleRate)},
		{"byte rate", le.Uint32(data[28:32]), uint32(sampleRate * 2)},
		{"block align", le.Uint16(data[32:34]), uint16(2)},
		{"bits per sample", le.Uint16(data[34:36]), uint16(16)},
		{"data id", string(data[36:40]), "data"},
		{"data size", le.Uint32(data[40:44]), dataBytes},
		{"sample 0", int16(le.Uint16(data[44:46])), int16(0)},
		{"sample 1", int16(le.Uint16(data[46:48])), int16(16383)},
		{"sample 2", int16(le.Uint16(data[48:50])), int16(-16384)},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestEncodeWAVEmpty(t *testing.T) {
	data, err := EncodeWAV(nil, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed for empty samples: %v", err)
	}

	if len(data) != WAVHeaderSize {
		t.Errorf("Expected %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if size := binary.LittleEndian.Uint32(data[40:44]); size != 0 {
		t.Errorf("Expected data size 0, got %d", size)
	}
	if size := binary.LittleEndian.Uint32(data[4:8]); size != 36 {
		t.Errorf("Expected chunk size 36, got %d", size)
	}

	samples, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV failed for empty container: %v", err)
	}
	if len(samples) != 0 || rate != 16000 {
		t.Errorf("Expected 0 samples at 16000 Hz, got %d at %d", len(samples), rate)
	}
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}

	if _, err := EncodeWAV(samples, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}

	if _, err := EncodeWAV(samples, -1000); err == nil {
		t.Error("Expected error for negative sample rate")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := []float32{-1, -0.75, -0.3333, -1e-6, 0, 1e-6, 0.25, 0.5, 0.999, 1}
	sampleRates := []int{8000, 16000, 44100, 48000, 96000}

	for _, rate := range sampleRates {
		data, err := EncodeWAV(samples, rate)
		if err != nil {
			t.Fatalf("EncodeWAV(%d) failed: %v", rate, err)
		}

		pcm, decodedRate, err := DecodeWAV(data)
		if err != nil {
			t.Fatalf("DecodeWAV(%d) failed: %v", rate, err)
		}

		if decodedRate != rate {
			t.Errorf("Expected sample rate %d, got %d", rate, decodedRate)
		}

		decoded := PCMToFloat(pcm)
		if len(decoded) != len(samples) {
			t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
		}

		for i := range samples {
			if diff := math.Abs(float64(decoded[i] - samples[i])); diff > 1.0/32767 {
				t.Errorf("rate %d sample %d: expected %f, got %f (diff %g)", rate, i, samples[i], decoded[i], diff)
			}
		}
	}
}

func TestQuantizeClamping(t *testing.T) {
	tests := []struct {
		in   float32
		want int16
	}{
		{1, 32767},
		{1.5, 32767},
		{100, 32767},
		{float32(math.Inf(1)), 32767},
		{-1, -32768},
		{-1.01, -32768},
		{float32(math.Inf(-1)), -32768},
		{0, 0},
		{float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		got := FloatToPCM([]float32{tt.in})[0]
		if got != tt.want {
			t.Errorf("quantize(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}

	// Clamping is idempotent: out-of-range values match their boundary
	for _, v := range []float32{1.2, 3, -1.2, -7} {
		boundary := float32(1)
		if v < 0 {
			boundary = -1
		}
		if FloatToPCM([]float32{v})[0] != FloatToPCM([]float32{boundary})[0] {
			t.Errorf("value %v did not clamp to boundary %v", v, boundary)
		}
	}
}

func TestValidateWAV(t *testing.T) {
	if err := ValidateWAV([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for too short WAV data")
	}

	invalidWAV := make([]byte, 50)
	copy(invalidWAV[0:4], []byte("FAKE"))
	if err := ValidateWAV(invalidWAV); err == nil {
		t.Error("Expected error for invalid RIFF header")
	}
}

func TestDecodeWAVTruncated(t *testing.T) {
	data, err := EncodeWAV([]float32{0.1, 0.2, 0.3, 0.4}, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	if _, _, err := DecodeWAV(data[:len(data)-3]); err == nil {
		t.Error("Expected error for truncated data chunk")
	}
}

func TestGetWAVDuration(t *testing.T) {
	sampleRate := 8000
	samples := make([]float32, sampleRate) // 1 second
	for i := range samples {
		samples[i] = float32(i%1000) / 1000
	}

	wavData, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err := GetWAVDuration(wavData)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}

	if math.Abs(duration-1.0) > 0.001 {
		t.Errorf("Expected duration 1.000, got %.3f", duration)
	}
}
