package segmenter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/andrii-vasyliev/vad-segmenter/internal/audio"
	"github.com/andrii-vasyliev/vad-segmenter/internal/capture"
	"github.com/andrii-vasyliev/vad-segmenter/internal/metrics"
	"github.com/andrii-vasyliev/vad-segmenter/internal/queue"
	"github.com/andrii-vasyliev/vad-segmenter/internal/vad"
)

const defaultPollInterval = 100 * time.Millisecond

// Config holds the engine parameters, fixed at construction.
type Config struct {
	// SampleRate is the capture rate in Hz.
	SampleRate int

	// FrameDuration is the length of one classification frame. The frame
	// sample count sample_rate * frame_duration must come out whole.
	FrameDuration time.Duration

	// StartConsecutive is the number of consecutive speech frames required
	// to confirm speech-start.
	StartConsecutive int

	// EndConsecutive is the number of consecutive silence frames required
	// to confirm speech-end.
	EndConsecutive int

	// MaxUtterance force-finalizes a segment that grows past this length.
	// Zero disables the safety valve.
	MaxUtterance time.Duration

	// PollInterval bounds how long the processing goroutine waits on the
	// queue before re-checking shutdown. Defaults to 100ms.
	PollInterval time.Duration

	// QueuePolicy, QueueCapacity, and QueuePushWait configure the sample
	// queue between the capture thread and the processing goroutine.
	QueuePolicy   queue.Policy
	QueueCapacity int
	QueuePushWait time.Duration
}

// Validate checks the configuration, failing fast before any goroutine
// starts.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}

	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive, got %v", c.FrameDuration)
	}

	frameMs := c.FrameDuration.Milliseconds()
	if frameMs == 0 || (int64(c.SampleRate)*frameMs)%1000 != 0 {
		return fmt.Errorf("sample_rate %d and frame_duration %v do not yield a whole frame size",
			c.SampleRate, c.FrameDuration)
	}

	if c.StartConsecutive < 1 {
		return fmt.Errorf("start_consecutive must be at least 1, got %d", c.StartConsecutive)
	}

	if c.EndConsecutive < 1 {
		return fmt.Errorf("end_consecutive must be at least 1, got %d", c.EndConsecutive)
	}

	if c.MaxUtterance < 0 {
		return fmt.Errorf("max_utterance cannot be negative, got %v", c.MaxUtterance)
	}

	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval cannot be negative, got %v", c.PollInterval)
	}

	return nil
}

// FrameSamples returns the number of samples per classification frame.
func (c *Config) FrameSamples() int {
	return int(int64(c.SampleRate) * c.FrameDuration.Milliseconds() / 1000)
}

// Callbacks are invoked on the processing goroutine, exactly once per
// utterance and in utterance order. A panicking callback is recovered and
// logged; processing continues with the next frame.
type Callbacks struct {
	// OnSpeechStart fires when a speech start is confirmed, before any of
	// the utterance's audio is available.
	OnSpeechStart func()

	// OnSpeechEnd fires when a speech end is confirmed, carrying the
	// complete WAV container and its duration in seconds.
	OnSpeechEnd func(wavData []byte, durationSeconds float64)
}

// Engine runs the capture-to-utterance pipeline. The capture thread only
// converts and enqueues blocks; frame assembly, classification, state
// transitions, and callbacks all happen on one processing goroutine, so
// none of that state needs locking. The queue is the only synchronized
// hand-off.
//
// Lifecycle is New, Start, Stop. Stop discards any in-progress segment.
// No state except configuration survives a Stop/Start cycle.
type Engine struct {
	cfg        Config
	classifier vad.Classifier
	source     capture.Source
	callbacks  Callbacks
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	running bool
	q       *queue.Queue
	gate    *Gate
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// EngineStats is a point-in-time snapshot for monitoring.
type EngineStats struct {
	Running bool        `json:"running"`
	Queue   queue.Stats `json:"queue"`
	Gate    GateStats   `json:"gate"`
}

// New creates an engine. The classifier and capture source are external
// collaborators; m may be nil to disable metrics.
func New(cfg Config, classifier vad.Classifier, source capture.Source, callbacks Callbacks,
	logger *slog.Logger, m *metrics.Metrics) (*Engine, error) {

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}

	if source == nil {
		return nil, fmt.Errorf("capture source is required")
	}

	if cfg.PollInterval == 0 {
		cfg.PollInterval = defaultPollInterval
	}

	return &Engine{
		cfg:        cfg,
		classifier: classifier,
		source:     source,
		callbacks:  callbacks,
		logger:     logger,
		metrics:    m,
	}, nil
}

// Start begins capture and processing. It returns an error if the engine
// is already running; it never double-starts the pipeline.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return fmt.Errorf("engine already started")
	}

	q, err := queue.New(e.cfg.QueuePolicy, e.cfg.QueueCapacity, e.cfg.QueuePushWait)
	if err != nil {
		return fmt.Errorf("sample queue: %w", err)
	}

	maxSegmentBytes := 0
	if e.cfg.MaxUtterance > 0 {
		maxSegmentBytes = int(e.cfg.MaxUtterance.Seconds() * float64(e.cfg.SampleRate) * audio.BytesPerSample)
	}

	e.q = q
	e.gate = NewGate(e.classifier, e.cfg.SampleRate, e.cfg.StartConsecutive, e.cfg.EndConsecutive,
		maxSegmentBytes, e.logger, e.metrics)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go e.processingLoop(ctx)

	if err := e.source.Start(e.onBlock, e.onCaptureError); err != nil {
		cancel()
		q.Close()
		e.wg.Wait()
		return fmt.Errorf("failed to start capture: %w", err)
	}

	e.running = true

	e.logger.Info("Engine started",
		slog.Int("sample_rate", e.cfg.SampleRate),
		slog.Duration("frame_duration", e.cfg.FrameDuration),
		slog.Int("frame_samples", e.cfg.FrameSamples()),
		slog.Int("start_consecutive", e.cfg.StartConsecutive),
		slog.Int("end_consecutive", e.cfg.EndConsecutive),
		slog.String("queue_policy", string(e.cfg.QueuePolicy)),
	)

	return nil
}

// Stop signals shutdown, detaches capture, and waits for the processing
// goroutine to exit. Any in-progress segment is discarded, not emitted.
// Stop is idempotent; a second call is a no-op.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false

	e.cancel()
	captureErr := e.source.Stop()
	e.q.Close()
	e.wg.Wait()

	stats := e.gate.GetStats()
	e.gate.Reset()

	e.logger.Info("Engine stopped",
		slog.Uint64("frames_processed", stats.FramesProcessed),
		slog.Uint64("utterances_emitted", stats.UtterancesEmitted),
		slog.Uint64("classifier_errors", stats.ClassifierErrors),
		slog.Uint64("blocks_dropped", e.q.GetStats().Dropped),
	)

	if captureErr != nil {
		return fmt.Errorf("failed to stop capture: %w", captureErr)
	}
	return nil
}

// Running reports whether the engine is started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// GetStats returns a monitoring snapshot. Safe to call from any goroutine.
func (e *Engine) GetStats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := EngineStats{Running: e.running}
	if e.q != nil {
		stats.Queue = e.q.GetStats()
	}
	if e.gate != nil {
		stats.Gate = e.gate.GetStats()
	}
	return stats
}

// onBlock runs on the capture thread. Nothing but the enqueue happens
// here: a stall would risk a device underrun.
func (e *Engine) onBlock(block []byte) {
	if e.q.Push(block) {
		if e.metrics != nil {
			e.metrics.RecordBlockCaptured(e.q.Len())
		}
		return
	}

	if e.metrics != nil {
		e.metrics.RecordBlockDropped()
	}
}

// onCaptureError surfaces a fatal device error as an engine stop. The stop
// must run on its own goroutine: the capture thread invoking us is the one
// Stop waits for.
func (e *Engine) onCaptureError(err error) {
	e.logger.Error("Capture failed, stopping engine", slog.String("error", err.Error()))

	go func() {
		if stopErr := e.Stop(); stopErr != nil {
			e.logger.Error("Error during capture-failure stop", slog.String("error", stopErr.Error()))
		}
	}()
}

// processingLoop is the single consumer: it drains the queue, assembles
// fixed-length frames, runs them through the gate in strict arrival order,
// and delivers callbacks. It re-checks shutdown every poll interval so
// Stop completes promptly.
func (e *Engine) processingLoop(ctx context.Context) {
	defer e.wg.Done()

	asm, err := audio.NewAssembler(e.cfg.FrameSamples())
	if err != nil {
		// Unreachable after Validate; guard anyway.
		e.logger.Error("Failed to create frame assembler", slog.String("error", err.Error()))
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		block, ok := e.q.Pop(e.cfg.PollInterval)
		if !ok {
			continue
		}

		for _, frame := range asm.Push(block) {
			result := e.gate.ProcessFrame(frame)

			if result.Started {
				e.invokeSpeechStart()
			}

			if result.Utterance != nil {
				e.invokeSpeechEnd(result.Utterance)
			}
		}
	}
}

// invokeSpeechStart delivers the start callback, recovering any panic so a
// misbehaving caller cannot kill the processing goroutine.
func (e *Engine) invokeSpeechStart() {
	if e.callbacks.OnSpeechStart == nil {
		return
	}

	defer e.recoverCallback("on_speech_start")
	e.callbacks.OnSpeechStart()
}

// invokeSpeechEnd delivers the end callback with the same panic isolation.
func (e *Engine) invokeSpeechEnd(u *Utterance) {
	if e.callbacks.OnSpeechEnd == nil {
		return
	}

	defer e.recoverCallback("on_speech_end")
	e.callbacks.OnSpeechEnd(u.Audio, u.Duration)
}

// recoverCallback logs and counts a recovered callback panic.
func (e *Engine) recoverCallback(name string) {
	if r := recover(); r != nil {
		e.logger.Error("Callback panicked",
			slog.String("callback", name),
			slog.Any("panic", r),
		)
		if e.metrics != nil {
			e.metrics.RecordCallbackPanic()
		}
	}
}
