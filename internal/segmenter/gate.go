package segmenter

import (
	"log/slog"
	"sync"

	"github.com/andrii-vasyliev/vad-segmenter/internal/audio"
	"github.com/andrii-vasyliev/vad-segmenter/internal/metrics"
	"github.com/andrii-vasyliev/vad-segmenter/internal/vad"
)

// State is the activity state of the gate.
type State int

const (
	StateIdle State = iota
	StateSpeaking
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// Utterance is one finished speech interval: the WAV-encoded audio and its
// duration. Ownership transfers to the caller on emission; the gate retains
// no reference.
type Utterance struct {
	ID         string
	Audio      []byte // complete WAV container
	Duration   float64
	Frames     int
	SampleRate int
}

// FrameResult reports what a single frame did to the gate: whether it
// confirmed a speech start, and whether it completed an utterance.
type FrameResult struct {
	Started   bool
	Utterance *Utterance
}

// Gate is the debounced speech/silence state machine. Each frame is
// classified, the consecutive-run counters are updated, and transitions
// are committed only after start_consecutive speech frames (Idle to
// Speaking) or end_consecutive silence frames (Speaking to Idle).
//
// Frames counted toward the start threshold are held in a pre-roll buffer
// so the confirmed segment begins with the audio that triggered it. While
// Speaking, every frame is appended to the segment, including the silent
// hysteresis tail that eventually ends it; the reported duration therefore
// includes end_consecutive frames of trailing silence.
//
// ProcessFrame must be called from a single goroutine. The internal mutex
// only protects the monitoring read path (GetStats).
type Gate struct {
	sampleRate       int
	startConsecutive int
	endConsecutive   int
	maxSegmentBytes  int // 0 means no limit

	classifier vad.Classifier
	logger     *slog.Logger
	metrics    *metrics.Metrics

	state      State
	startCount int
	endCount   int
	preroll    [][]byte
	segment    *audio.Segment

	// Statistics
	framesProcessed   uint64
	speechFrames      uint64
	classifierErrors  uint64
	utterancesStarted uint64
	utterancesEmitted uint64

	mu sync.RWMutex
}

// GateStats reports gate state and counters for monitoring.
type GateStats struct {
	State              string `json:"state"`
	FramesProcessed    uint64 `json:"frames_processed"`
	SpeechFrames       uint64 `json:"speech_frames"`
	ClassifierErrors   uint64 `json:"classifier_errors"`
	UtterancesStarted  uint64 `json:"utterances_started"`
	UtterancesEmitted  uint64 `json:"utterances_emitted"`
	ActiveSegmentBytes int    `json:"active_segment_bytes"`
}

// NewGate creates a gate. maxSegmentBytes caps the active segment as a
// safety valve; 0 disables the cap. m may be nil.
func NewGate(classifier vad.Classifier, sampleRate, startConsecutive, endConsecutive, maxSegmentBytes int,
	logger *slog.Logger, m *metrics.Metrics) *Gate {

	return &Gate{
		sampleRate:       sampleRate,
		startConsecutive: startConsecutive,
		endConsecutive:   endConsecutive,
		maxSegmentBytes:  maxSegmentBytes,
		classifier:       classifier,
		logger:           logger,
		metrics:          m,
		state:            StateIdle,
	}
}

// ProcessFrame classifies one fixed-length frame and advances the state
// machine. A classifier failure is treated as non-speech and never
// propagates: per-frame faults must not take down the pipeline.
func (g *Gate) ProcessFrame(frame []byte) FrameResult {
	isSpeech, err := g.classifier.Classify(frame, g.sampleRate)
	if err != nil {
		isSpeech = false
		g.logger.Warn("Classifier failed, treating frame as non-speech",
			slog.String("error", err.Error()),
		)
		if g.metrics != nil {
			g.metrics.RecordClassifierError()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.framesProcessed++
	if err != nil {
		g.classifierErrors++
	}
	if isSpeech {
		g.speechFrames++
		g.startCount++
		g.endCount = 0
	} else {
		g.endCount++
		g.startCount = 0
	}
	if g.metrics != nil {
		g.metrics.RecordFrame(isSpeech)
	}

	if g.state == StateIdle {
		return g.processIdle(frame, isSpeech)
	}
	return g.processSpeaking(frame)
}

// processIdle accumulates the pre-roll and commits the start transition
// once enough consecutive speech frames arrive.
func (g *Gate) processIdle(frame []byte, isSpeech bool) FrameResult {
	if !isSpeech {
		g.preroll = g.preroll[:0]
		return FrameResult{}
	}

	g.preroll = append(g.preroll, frame)
	if g.startCount < g.startConsecutive {
		return FrameResult{}
	}

	// Confirmed start: seed the segment with the frames that triggered it.
	g.startCount = 0
	g.state = StateSpeaking
	g.segment = audio.NewSegment(g.sampleRate)
	for _, f := range g.preroll {
		g.segment.AppendFrame(f)
	}
	g.preroll = g.preroll[:0]

	g.utterancesStarted++
	if g.metrics != nil {
		g.metrics.RecordUtteranceStarted()
	}

	g.logger.Debug("Speech started",
		slog.String("segment_id", g.segment.ID()),
		slog.Int("preroll_frames", g.segment.Frames()),
	)

	return FrameResult{Started: true}
}

// processSpeaking appends the frame and commits the end transition once
// enough consecutive silence frames arrive, or force-finalizes when the
// segment hits the safety cap.
func (g *Gate) processSpeaking(frame []byte) FrameResult {
	g.segment.AppendFrame(frame)

	if g.endCount >= g.endConsecutive {
		g.endCount = 0
		return FrameResult{Utterance: g.finalize("silence")}
	}

	if g.maxSegmentBytes > 0 && g.segment.Len() >= g.maxSegmentBytes {
		g.startCount = 0
		g.endCount = 0
		return FrameResult{Utterance: g.finalize("max_duration")}
	}

	return FrameResult{}
}

// finalize encodes the active segment into an utterance and returns the
// gate to Idle. Returns nil if encoding fails; the segment is discarded
// either way.
func (g *Gate) finalize(reason string) *Utterance {
	segment := g.segment
	g.segment = nil
	g.state = StateIdle

	wavData, err := audio.EncodeWAV(segment.Bytes(), g.sampleRate)
	if err != nil {
		g.logger.Error("Failed to encode utterance",
			slog.String("segment_id", segment.ID()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	utterance := &Utterance{
		ID:         segment.ID(),
		Audio:      wavData,
		Duration:   segment.Duration(),
		Frames:     segment.Frames(),
		SampleRate: g.sampleRate,
	}

	g.utterancesEmitted++
	if g.metrics != nil {
		g.metrics.RecordUtteranceEmitted(utterance.Duration, len(wavData))
	}

	g.logger.Info("Speech ended",
		slog.String("segment_id", utterance.ID),
		slog.String("reason", reason),
		slog.Float64("duration", utterance.Duration),
		slog.Int("frames", utterance.Frames),
		slog.Int("wav_bytes", len(wavData)),
	)

	return utterance
}

// Reset discards any in-progress segment and returns the gate to Idle
// with cleared counters. Used at engine shutdown: a partial utterance is
// dropped, never emitted.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.segment != nil {
		g.logger.Debug("Discarding in-progress segment",
			slog.String("segment_id", g.segment.ID()),
			slog.Int("bytes", g.segment.Len()),
		)
	}

	g.state = StateIdle
	g.startCount = 0
	g.endCount = 0
	g.preroll = g.preroll[:0]
	g.segment = nil
}

// State returns the current activity state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// GetStats returns current gate statistics.
func (g *Gate) GetStats() GateStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	activeBytes := 0
	if g.segment != nil {
		activeBytes = g.segment.Len()
	}

	return GateStats{
		State:              g.state.String(),
		FramesProcessed:    g.framesProcessed,
		SpeechFrames:       g.speechFrames,
		ClassifierErrors:   g.classifierErrors,
		UtterancesStarted:  g.utterancesStarted,
		UtterancesEmitted:  g.utterancesEmitted,
		ActiveSegmentBytes: activeBytes,
	}
}
