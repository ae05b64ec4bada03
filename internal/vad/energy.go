package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Aggressiveness modes map to RMS thresholds on a full-scale-normalized
// signal. Higher modes demand more energy before a frame counts as speech,
// mirroring the 0-3 ordinal scale of WebRTC-style detectors.
var modeThresholds = [4]float64{0.010, 0.017, 0.025, 0.040}

// EnergyClassifier is a pure-Go frame classifier based on RMS energy.
// Consecutive-frame hysteresis in the engine suppresses flicker, so the
// classifier itself applies no smoothing: each frame is judged on its own.
type EnergyClassifier struct {
	mode       int
	threshold  float64
	frameBytes int
	sampleRate int

	// Statistics
	totalFrames   uint64
	speechFrames  uint64
	lastRMS       float64
	lastProcessed time.Time

	mu sync.RWMutex
}

// EnergyClassifierStats reports classifier counters for monitoring.
type EnergyClassifierStats struct {
	Mode             int       `json:"mode"`
	Threshold        float64   `json:"threshold"`
	TotalFrames      uint64    `json:"total_frames"`
	SpeechFrames     uint64    `json:"speech_frames"`
	SpeechPercentage float64   `json:"speech_percentage"`
	LastRMS          float64   `json:"last_rms"`
	LastProcessed    time.Time `json:"last_processed"`
}

// NewEnergyClassifier creates a classifier for frames of frameSamples
// samples at the given rate. Mode selects the aggressiveness (0-3).
func NewEnergyClassifier(mode, sampleRate, frameSamples int) (*EnergyClassifier, error) {
	if mode < 0 || mode > 3 {
		return nil, fmt.Errorf("aggressiveness mode must be between 0 and 3, got %d", mode)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if frameSamples <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d samples", frameSamples)
	}

	return &EnergyClassifier{
		mode:       mode,
		threshold:  modeThresholds[mode],
		frameBytes: frameSamples * 2,
		sampleRate: sampleRate,
	}, nil
}

// Classify reports whether the frame's RMS energy crosses the mode
// threshold. The frame must be PCM16-LE of exactly the configured length.
func (c *EnergyClassifier) Classify(frame []byte, sampleRate int) (bool, error) {
	if len(frame) != c.frameBytes {
		return false, fmt.Errorf("expected %d-byte frame, got %d", c.frameBytes, len(frame))
	}

	if sampleRate != c.sampleRate {
		return false, fmt.Errorf("expected sample rate %d, got %d", c.sampleRate, sampleRate)
	}

	rms := frameRMS(frame)
	isSpeech := rms >= c.threshold

	c.mu.Lock()
	c.totalFrames++
	if isSpeech {
		c.speechFrames++
	}
	c.lastRMS = rms
	c.lastProcessed = time.Now()
	c.mu.Unlock()

	return isSpeech, nil
}

// Mode returns the configured aggressiveness (0-3).
func (c *EnergyClassifier) Mode() int {
	return c.mode
}

// GetStats returns current classifier statistics.
func (c *EnergyClassifier) GetStats() EnergyClassifierStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	speechPercentage := float64(0)
	if c.totalFrames > 0 {
		speechPercentage = float64(c.speechFrames) / float64(c.totalFrames) * 100
	}

	return EnergyClassifierStats{
		Mode:             c.mode,
		Threshold:        c.threshold,
		TotalFrames:      c.totalFrames,
		SpeechFrames:     c.speechFrames,
		SpeechPercentage: speechPercentage,
		LastRMS:          c.lastRMS,
		LastProcessed:    c.lastProcessed,
	}
}

// Reset clears the statistics.
func (c *EnergyClassifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalFrames = 0
	c.speechFrames = 0
	c.lastRMS = 0
	c.lastProcessed = time.Time{}
}

// frameRMS computes the RMS level of a PCM16-LE frame, normalized to [0, 1].
func frameRMS(frame []byte) float64 {
	numSamples := len(frame) / 2
	if numSamples == 0 {
		return 0
	}

	var energy float64
	for i := 0; i < numSamples; i++ {
		s := float64(int16(frame[i*2]) | int16(frame[i*2+1])<<8)
		energy += s * s
	}

	return math.Sqrt(energy/float64(numSamples)) / 32768.0
}
