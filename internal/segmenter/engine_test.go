package segmenter

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/andrii-vasyliev/vad-segmenter/internal/audio"
	"github.com/andrii-vasyliev/vad-segmenter/internal/queue"
	"github.com/andrii-vasyliev/vad-segmenter/internal/vad"
)

// fakeSource is a scriptable capture source: tests drive it by calling
// emit and fail the way a device thread would.
type fakeSource struct {
	mu       sync.Mutex
	onBlock  func(block []byte)
	onError  func(err error)
	starts   int
	stops    int
	startErr error
}

func (f *fakeSource) Start(onBlock func(block []byte), onError func(err error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.onBlock = onBlock
	f.onError = onError
	f.starts++
	return nil
}

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeSource) emit(block []byte) {
	f.mu.Lock()
	onBlock := f.onBlock
	f.mu.Unlock()
	onBlock(block)
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	onError := f.onError
	f.mu.Unlock()
	onError(err)
}

// contentClassifier labels a frame as speech when it carries any nonzero
// sample, so tests script activity through the frame bytes themselves.
func contentClassifier() vad.Classifier {
	return vad.ClassifierFunc(func(frame []byte, sampleRate int) (bool, error) {
		for _, b := range frame {
			if b != 0 {
				return true, nil
			}
		}
		return false, nil
	})
}

func speechFrame() []byte {
	frame := make([]byte, gateFrameBytes)
	for i := range frame {
		frame[i] = 1
	}
	return frame
}

func silenceFrame() []byte {
	return make([]byte, gateFrameBytes)
}

type emittedUtterance struct {
	wav      []byte
	duration float64
}

type engineFixture struct {
	engine *Engine
	source *fakeSource
	starts chan struct{}
	ends   chan emittedUtterance
}

func engineConfig() Config {
	return Config{
		SampleRate:       gateSampleRate,
		FrameDuration:    30 * time.Millisecond,
		StartConsecutive: 3,
		EndConsecutive:   5,
		PollInterval:     2 * time.Millisecond,
		QueuePolicy:      queue.PolicyUnbounded,
	}
}

func newEngineFixture(t *testing.T, cfg Config) *engineFixture {
	t.Helper()

	f := &engineFixture{
		source: &fakeSource{},
		starts: make(chan struct{}, 8),
		ends:   make(chan emittedUtterance, 8),
	}

	cb := Callbacks{
		OnSpeechStart: func() { f.starts <- struct{}{} },
		OnSpeechEnd: func(wavData []byte, durationSeconds float64) {
			f.ends <- emittedUtterance{wav: wavData, duration: durationSeconds}
		},
	}

	engine, err := New(cfg, contentClassifier(), f.source, cb, testLogger(), nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	f.engine = engine
	return f
}

func (f *engineFixture) awaitStart(t *testing.T) {
	t.Helper()
	select {
	case <-f.starts:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for speech start")
	}
}

func (f *engineFixture) awaitEnd(t *testing.T) emittedUtterance {
	t.Helper()
	select {
	case u := <-f.ends:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for speech end")
	}
	return emittedUtterance{}
}

func (f *engineFixture) expectNoEnd(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case <-f.ends:
		t.Fatal("Unexpected speech end")
	case <-time.After(wait):
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"zero sample rate", func(c *Config) { c.SampleRate = 0 }, true},
		{"negative frame duration", func(c *Config) { c.FrameDuration = -time.Millisecond }, true},
		{"fractional frame size", func(c *Config) { c.SampleRate = 22050; c.FrameDuration = 10 * time.Millisecond }, true},
		{"sub-millisecond frame", func(c *Config) { c.FrameDuration = 100 * time.Microsecond }, true},
		{"zero start consecutive", func(c *Config) { c.StartConsecutive = 0 }, true},
		{"zero end consecutive", func(c *Config) { c.EndConsecutive = 0 }, true},
		{"negative max utterance", func(c *Config) { c.MaxUtterance = -time.Second }, true},
		{"negative poll interval", func(c *Config) { c.PollInterval = -time.Millisecond }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := engineConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigFrameSamples(t *testing.T) {
	cfg := engineConfig()
	if got := cfg.FrameSamples(); got != 480 {
		t.Errorf("Expected 480 samples per frame, got %d", got)
	}

	cfg = Config{SampleRate: 8000, FrameDuration: 20 * time.Millisecond}
	if got := cfg.FrameSamples(); got != 160 {
		t.Errorf("Expected 160 samples per frame, got %d", got)
	}
}

func TestNewRejectsMissingCollaborators(t *testing.T) {
	cfg := engineConfig()

	if _, err := New(cfg, nil, &fakeSource{}, Callbacks{}, testLogger(), nil); err == nil {
		t.Error("Expected error for nil classifier")
	}

	if _, err := New(cfg, contentClassifier(), nil, Callbacks{}, testLogger(), nil); err == nil {
		t.Error("Expected error for nil capture source")
	}
}

func TestEngineEmitsUtterance(t *testing.T) {
	f := newEngineFixture(t, engineConfig())

	if err := f.engine.Start(); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}
	defer f.engine.Stop()

	// Deliver the speech as a single oversized block so frame assembly is
	// exercised, then the confirming silence frame by frame.
	var burst []byte
	for i := 0; i < 3; i++ {
		burst = append(burst, speechFrame()...)
	}
	f.source.emit(burst)

	f.awaitStart(t)

	for i := 0; i < 5; i++ {
		f.source.emit(silenceFrame())
	}

	u := f.awaitEnd(t)

	// 3 speech frames plus the 5-frame silence tail.
	wantDuration := 8 * 0.030
	if diff := u.duration - wantDuration; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Expected duration %f, got %f", wantDuration, u.duration)
	}

	pcm, rate, err := audio.DecodeWAV(u.wav)
	if err != nil {
		t.Fatalf("Emitted WAV does not decode: %v", err)
	}
	if rate != gateSampleRate {
		t.Errorf("Expected sample rate %d, got %d", gateSampleRate, rate)
	}
	if len(pcm) != 8*gateFrameBytes {
		t.Errorf("Expected %d PCM bytes, got %d", 8*gateFrameBytes, len(pcm))
	}
}

func TestEngineStopDiscardsPartialSegment(t *testing.T) {
	f := newEngineFixture(t, engineConfig())

	if err := f.engine.Start(); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}

	for i := 0; i < 3; i++ {
		f.source.emit(speechFrame())
	}
	f.awaitStart(t)

	if err := f.engine.Stop(); err != nil {
		t.Fatalf("Failed to stop engine: %v", err)
	}

	f.expectNoEnd(t, 100*time.Millisecond)

	if f.engine.Running() {
		t.Error("Engine still reports running after Stop")
	}
}

func TestEngineStopIdempotent(t *testing.T) {
	f := newEngineFixture(t, engineConfig())

	if err := f.engine.Start(); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}

	if err := f.engine.Stop(); err != nil {
		t.Fatalf("First stop failed: %v", err)
	}
	if err := f.engine.Stop(); err != nil {
		t.Fatalf("Second stop failed: %v", err)
	}

	f.source.mu.Lock()
	stops := f.source.stops
	f.source.mu.Unlock()
	if stops != 1 {
		t.Errorf("Expected capture stopped once, got %d", stops)
	}
}

func TestEngineDoubleStartFails(t *testing.T) {
	f := newEngineFixture(t, engineConfig())

	if err := f.engine.Start(); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}
	defer f.engine.Stop()

	if err := f.engine.Start(); err == nil {
		t.Error("Expected error on second start")
	}
}

func TestEngineStartFailsWhenCaptureFails(t *testing.T) {
	f := newEngineFixture(t, engineConfig())
	f.source.startErr = fmt.Errorf("device busy")

	if err := f.engine.Start(); err == nil {
		t.Fatal("Expected start to fail when the capture source fails")
	}

	if f.engine.Running() {
		t.Error("Engine reports running after failed start")
	}
}

func TestEngineCallbackPanicRecovered(t *testing.T) {
	f := newEngineFixture(t, engineConfig())

	callbacks := Callbacks{
		OnSpeechStart: func() { panic("listener bug") },
		OnSpeechEnd: func(wavData []byte, durationSeconds float64) {
			f.ends <- emittedUtterance{wav: wavData, duration: durationSeconds}
		},
	}
	f.engine.callbacks = callbacks

	if err := f.engine.Start(); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}
	defer f.engine.Stop()

	for i := 0; i < 3; i++ {
		f.source.emit(speechFrame())
	}
	for i := 0; i < 5; i++ {
		f.source.emit(silenceFrame())
	}

	// The panicking start callback must not take the pipeline down; the
	// matching end still arrives.
	u := f.awaitEnd(t)
	if len(u.wav) == 0 {
		t.Error("Expected utterance audio after recovered panic")
	}
}

func TestEngineCaptureErrorStopsEngine(t *testing.T) {
	f := newEngineFixture(t, engineConfig())

	if err := f.engine.Start(); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}

	f.source.fail(fmt.Errorf("device disconnected"))

	deadline := time.Now().Add(2 * time.Second)
	for f.engine.Running() {
		if time.Now().After(deadline) {
			t.Fatal("Engine did not stop after capture failure")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngineRestartHasFreshState(t *testing.T) {
	f := newEngineFixture(t, engineConfig())

	if err := f.engine.Start(); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}

	for i := 0; i < 3; i++ {
		f.source.emit(speechFrame())
	}
	for i := 0; i < 5; i++ {
		f.source.emit(silenceFrame())
	}
	f.awaitStart(t)
	f.awaitEnd(t)

	if err := f.engine.Stop(); err != nil {
		t.Fatalf("Failed to stop engine: %v", err)
	}

	if err := f.engine.Start(); err != nil {
		t.Fatalf("Failed to restart engine: %v", err)
	}
	defer f.engine.Stop()

	stats := f.engine.GetStats()
	if stats.Gate.FramesProcessed != 0 {
		t.Errorf("Expected fresh gate stats after restart, got %d frames", stats.Gate.FramesProcessed)
	}
	if stats.Queue.Pushed != 0 {
		t.Errorf("Expected fresh queue stats after restart, got %d pushed", stats.Queue.Pushed)
	}
}
