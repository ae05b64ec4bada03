package audio

import (
	"time"

	"github.com/google/uuid"
)

// Segment is the append-only sample buffer for one utterance. It is created
// at speech-start, grown frame by frame on the processing goroutine, and
// handed off at speech-end. It is never shared between goroutines.
type Segment struct {
	id         string
	sampleRate int
	data       []byte
	frames     int
	startedAt  time.Time
}

// NewSegment creates an empty segment for the given sample rate.
func NewSegment(sampleRate int) *Segment {
	return &Segment{
		id:         uuid.NewString(),
		sampleRate: sampleRate,
		data:       make([]byte, 0, sampleRate*BytesPerSample), // room for ~1s
		startedAt:  time.Now(),
	}
}

// ID returns the segment's unique identifier, used to correlate logs and
// output files for the same utterance.
func (s *Segment) ID() string {
	return s.id
}

// AppendFrame appends one frame of PCM16-LE bytes to the segment.
func (s *Segment) AppendFrame(frame []byte) {
	s.data = append(s.data, frame...)
	s.frames++
}

// Bytes returns the accumulated raw PCM data. The caller must not retain
// the slice past the segment's lifetime.
func (s *Segment) Bytes() []byte {
	return s.data
}

// Len returns the accumulated size in bytes.
func (s *Segment) Len() int {
	return len(s.data)
}

// Frames returns the number of frames appended so far.
func (s *Segment) Frames() int {
	return s.frames
}

// StartedAt returns when the segment was created.
func (s *Segment) StartedAt() time.Time {
	return s.startedAt
}

// Duration returns the audio length in seconds: bytes / (rate * 2).
func (s *Segment) Duration() float64 {
	return float64(len(s.data)) / float64(s.sampleRate*BytesPerSample)
}
