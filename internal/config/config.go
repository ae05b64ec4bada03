package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/andrii-vasyliev/vad-segmenter/internal/queue"
)

// Config represents the complete service configuration
type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	VAD       VADConfig       `yaml:"vad"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Queue     QueueConfig     `yaml:"queue"`
	Output    OutputConfig    `yaml:"output"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// AudioConfig contains capture and audio format parameters
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	Channels        int `yaml:"channels"`
	BitDepth        int `yaml:"bit_depth"`
	BlockDurationMs int `yaml:"block_duration_ms"` // capture block length
}

// VADConfig contains voice activity classifier configuration
type VADConfig struct {
	Aggressiveness int `yaml:"aggressiveness"` // 0 (permissive) to 3 (strict)
}

// SegmenterConfig contains the activity gate parameters
type SegmenterConfig struct {
	FrameDurationMs      int     `yaml:"frame_duration_ms"`
	StartConsecutive     int     `yaml:"start_consecutive"`
	EndConsecutive       int     `yaml:"end_consecutive"`
	MaxUtteranceDuration float64 `yaml:"max_utterance_duration"` // seconds, 0 disables
	PollIntervalMs       int     `yaml:"poll_interval_ms"`       // 0 uses the engine default
}

// QueueConfig contains the sample queue sizing and overflow policy
type QueueConfig struct {
	Policy     string `yaml:"policy"`
	Capacity   int    `yaml:"capacity"`
	PushWaitMs int    `yaml:"push_wait_ms"` // block policy only
}

// OutputConfig controls saving finished utterances to disk
type OutputConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Directory   string  `yaml:"directory"`
	MinDuration float64 `yaml:"min_duration"` // seconds, shorter clips are skipped
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Segmenter.Validate(); err != nil {
		return fmt.Errorf("segmenter config: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.Output.Validate(); err != nil {
		return fmt.Errorf("output config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	// Cross-section check: the classification frame must contain a whole
	// number of samples.
	if (c.Audio.SampleRate*c.Segmenter.FrameDurationMs)%1000 != 0 {
		return fmt.Errorf("sample_rate %d and frame_duration_ms %d do not yield a whole frame size",
			c.Audio.SampleRate, c.Segmenter.FrameDurationMs)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.BlockDurationMs < 1 {
		return fmt.Errorf("block_duration_ms must be at least 1, got %d", a.BlockDurationMs)
	}

	return nil
}

// Validate validates classifier configuration
func (v *VADConfig) Validate() error {
	if v.Aggressiveness < 0 || v.Aggressiveness > 3 {
		return fmt.Errorf("aggressiveness must be between 0 and 3, got %d", v.Aggressiveness)
	}

	return nil
}

// Validate validates segmenter configuration
func (s *SegmenterConfig) Validate() error {
	if s.FrameDurationMs < 1 {
		return fmt.Errorf("frame_duration_ms must be at least 1, got %d", s.FrameDurationMs)
	}

	if s.StartConsecutive < 1 {
		return fmt.Errorf("start_consecutive must be at least 1, got %d", s.StartConsecutive)
	}

	if s.EndConsecutive < 1 {
		return fmt.Errorf("end_consecutive must be at least 1, got %d", s.EndConsecutive)
	}

	if s.MaxUtteranceDuration < 0 {
		return fmt.Errorf("max_utterance_duration cannot be negative, got %f", s.MaxUtteranceDuration)
	}

	if s.PollIntervalMs < 0 {
		return fmt.Errorf("poll_interval_ms cannot be negative, got %d", s.PollIntervalMs)
	}

	return nil
}

// Validate validates queue configuration
func (q *QueueConfig) Validate() error {
	switch queue.Policy(q.Policy) {
	case queue.PolicyUnbounded:
	case queue.PolicyDropOldest, queue.PolicyDropNewest:
		if q.Capacity < 1 {
			return fmt.Errorf("capacity must be at least 1 for policy '%s', got %d", q.Policy, q.Capacity)
		}
	case queue.PolicyBlock:
		if q.Capacity < 1 {
			return fmt.Errorf("capacity must be at least 1 for policy '%s', got %d", q.Policy, q.Capacity)
		}
		if q.PushWaitMs < 1 {
			return fmt.Errorf("push_wait_ms must be at least 1 for policy '%s', got %d", q.Policy, q.PushWaitMs)
		}
	default:
		return fmt.Errorf("policy must be one of [unbounded, drop-oldest, drop-newest, block], got '%s'", q.Policy)
	}

	return nil
}

// Validate validates output configuration
func (o *OutputConfig) Validate() error {
	if o.Enabled && o.Directory == "" {
		return fmt.Errorf("directory cannot be empty when output is enabled")
	}

	if o.MinDuration < 0 {
		return fmt.Errorf("min_duration cannot be negative, got %f", o.MinDuration)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetBlockDuration returns the capture block length as a time.Duration
func (a *AudioConfig) GetBlockDuration() time.Duration {
	return time.Duration(a.BlockDurationMs) * time.Millisecond
}

// BlockSamples returns the number of samples in one capture block
func (a *AudioConfig) BlockSamples() int {
	return a.SampleRate * a.BlockDurationMs / 1000
}

// GetFrameDuration returns the classification frame length as a time.Duration
func (s *SegmenterConfig) GetFrameDuration() time.Duration {
	return time.Duration(s.FrameDurationMs) * time.Millisecond
}

// GetMaxUtteranceDuration returns the utterance cap as a time.Duration
func (s *SegmenterConfig) GetMaxUtteranceDuration() time.Duration {
	return time.Duration(s.MaxUtteranceDuration * float64(time.Second))
}

// GetPollInterval returns the queue poll interval as a time.Duration
func (s *SegmenterConfig) GetPollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// GetPushWait returns the block-policy push timeout as a time.Duration
func (q *QueueConfig) GetPushWait() time.Duration {
	return time.Duration(q.PushWaitMs) * time.Millisecond
}

// GetMinDuration returns the save filter threshold as a time.Duration
func (o *OutputConfig) GetMinDuration() time.Duration {
	return time.Duration(o.MinDuration * float64(time.Second))
}
