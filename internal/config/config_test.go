package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Audio: AudioConfig{
			SampleRate:      16000,
			Channels:        1,
			BitDepth:        16,
			BlockDurationMs: 10,
		},
		VAD: VADConfig{
			Aggressiveness: 2,
		},
		Segmenter: SegmenterConfig{
			FrameDurationMs:      30,
			StartConsecutive:     3,
			EndConsecutive:       10,
			MaxUtteranceDuration: 60.0,
			PollIntervalMs:       100,
		},
		Queue: QueueConfig{
			Policy:   "drop-oldest",
			Capacity: 256,
		},
		Output: OutputConfig{
			Enabled:     true,
			Directory:   "./segments",
			MinDuration: 1.0,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			mutate:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "sample rate too low",
			mutate:      func(c *Config) { c.Audio.SampleRate = 4000 },
			expectError: true,
			errorMsg:    "sample_rate must be between 8000 and 48000",
		},
		{
			name:        "stereo capture",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
			errorMsg:    "channels must be 1",
		},
		{
			name:        "wrong bit depth",
			mutate:      func(c *Config) { c.Audio.BitDepth = 24 },
			expectError: true,
			errorMsg:    "bit_depth must be 16",
		},
		{
			name:        "aggressiveness out of range",
			mutate:      func(c *Config) { c.VAD.Aggressiveness = 4 },
			expectError: true,
			errorMsg:    "aggressiveness must be between 0 and 3",
		},
		{
			name:        "zero start consecutive",
			mutate:      func(c *Config) { c.Segmenter.StartConsecutive = 0 },
			expectError: true,
			errorMsg:    "start_consecutive must be at least 1",
		},
		{
			name:        "zero end consecutive",
			mutate:      func(c *Config) { c.Segmenter.EndConsecutive = 0 },
			expectError: true,
			errorMsg:    "end_consecutive must be at least 1",
		},
		{
			name:        "negative max utterance",
			mutate:      func(c *Config) { c.Segmenter.MaxUtteranceDuration = -1 },
			expectError: true,
			errorMsg:    "max_utterance_duration cannot be negative",
		},
		{
			name:        "unknown queue policy",
			mutate:      func(c *Config) { c.Queue.Policy = "ring" },
			expectError: true,
			errorMsg:    "policy must be one of",
		},
		{
			name:        "bounded policy without capacity",
			mutate:      func(c *Config) { c.Queue.Capacity = 0 },
			expectError: true,
			errorMsg:    "capacity must be at least 1",
		},
		{
			name: "block policy without push wait",
			mutate: func(c *Config) {
				c.Queue.Policy = "block"
				c.Queue.PushWaitMs = 0
			},
			expectError: true,
			errorMsg:    "push_wait_ms must be at least 1",
		},
		{
			name: "unbounded policy needs no capacity",
			mutate: func(c *Config) {
				c.Queue.Policy = "unbounded"
				c.Queue.Capacity = 0
			},
			expectError: false,
		},
		{
			name: "output enabled without directory",
			mutate: func(c *Config) {
				c.Output.Directory = ""
			},
			expectError: true,
			errorMsg:    "directory cannot be empty",
		},
		{
			name:        "invalid http port",
			mutate:      func(c *Config) { c.HTTP.Port = 70000 },
			expectError: true,
			errorMsg:    "http port must be between 1 and 65535",
		},
		{
			name: "http disabled skips port check",
			mutate: func(c *Config) {
				c.HTTP.Enabled = false
				c.HTTP.Port = 0
			},
			expectError: false,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
			errorMsg:    "format must be 'json' or 'text'",
		},
		{
			name: "fractional frame size",
			mutate: func(c *Config) {
				c.Audio.SampleRate = 22050
				c.Segmenter.FrameDurationMs = 10
			},
			expectError: true,
			errorMsg:    "whole frame size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  block_duration_ms: 10
vad:
  aggressiveness: 2
segmenter:
  frame_duration_ms: 30
  start_consecutive: 3
  end_consecutive: 10
  max_utterance_duration: 60.0
queue:
  policy: "drop-oldest"
  capacity: 256
output:
  enabled: true
  directory: "./segments"
  min_duration: 1.0
http:
  enabled: true
  address: "0.0.0.0"
  port: 8080
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
audio:
  sample_rate: not_a_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
audio:
  sample_rate: 16000
  # missing channels and bit depth
`,
			expectError: true,
			errorMsg:    "channels must be 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}

			config, err := Load(configPath)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Fatalf("Expected no error but got: %v", err)
				}
				if config.Audio.SampleRate != 16000 {
					t.Errorf("Expected sample_rate 16000, got %d", config.Audio.SampleRate)
				}
				if config.Segmenter.EndConsecutive != 10 {
					t.Errorf("Expected end_consecutive 10, got %d", config.Segmenter.EndConsecutive)
				}
			}
		})
	}
}

func TestConfigLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestDurationHelpers(t *testing.T) {
	config := validConfig()

	if got := config.Audio.GetBlockDuration(); got != 10*time.Millisecond {
		t.Errorf("Expected block duration 10ms, got %v", got)
	}

	if got := config.Audio.BlockSamples(); got != 160 {
		t.Errorf("Expected 160 samples per block, got %d", got)
	}

	if got := config.Segmenter.GetFrameDuration(); got != 30*time.Millisecond {
		t.Errorf("Expected frame duration 30ms, got %v", got)
	}

	if got := config.Segmenter.GetMaxUtteranceDuration(); got != time.Minute {
		t.Errorf("Expected max utterance 1m, got %v", got)
	}

	if got := config.Output.GetMinDuration(); got != time.Second {
		t.Errorf("Expected min duration 1s, got %v", got)
	}
}
