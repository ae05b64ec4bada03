package audio

import "fmt"

// Assembler re-chunks arbitrarily sized PCM blocks into fixed-length frames.
// Incoming blocks are appended to an internal carry buffer; complete frames
// are cut from the front and any remainder is held back until the next block.
// Frame emission is purely data-driven: no resampling, no gap filling, no
// sample ever dropped or duplicated.
//
// An Assembler is not safe for concurrent use. The engine calls it only from
// the single processing goroutine.
type Assembler struct {
	frameBytes int
	carry      []byte

	// Statistics
	blocksIn  uint64
	framesOut uint64
}

// NewAssembler creates an assembler producing frames of frameSamples
// PCM16 samples each.
func NewAssembler(frameSamples int) (*Assembler, error) {
	if frameSamples <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d samples", frameSamples)
	}

	return &Assembler{
		frameBytes: frameSamples * BytesPerSample,
		carry:      make([]byte, 0, frameSamples*BytesPerSample*4),
	}, nil
}

// Push appends a block of PCM16-LE bytes and returns every complete frame
// now available, in order. Each returned frame is an independent copy of
// exactly the configured frame length. A short or empty block may return
// no frames; the bytes stay in the carry buffer.
func (a *Assembler) Push(block []byte) [][]byte {
	a.blocksIn++
	a.carry = append(a.carry, block...)

	if len(a.carry) < a.frameBytes {
		return nil
	}

	frames := make([][]byte, 0, len(a.carry)/a.frameBytes)
	for len(a.carry) >= a.frameBytes {
		frame := make([]byte, a.frameBytes)
		copy(frame, a.carry[:a.frameBytes])
		frames = append(frames, frame)
		a.carry = append(a.carry[:0], a.carry[a.frameBytes:]...)
	}

	a.framesOut += uint64(len(frames))
	return frames
}

// Pending returns the number of carried-over bytes waiting for the next block.
func (a *Assembler) Pending() int {
	return len(a.carry)
}

// FrameBytes returns the frame length in bytes.
func (a *Assembler) FrameBytes() int {
	return a.frameBytes
}

// Reset discards the carry buffer. Used when the engine restarts so no
// samples leak across capture sessions.
func (a *Assembler) Reset() {
	a.carry = a.carry[:0]
}

// AssemblerStats reports assembler counters for monitoring.
type AssemblerStats struct {
	BlocksIn     uint64 `json:"blocks_in"`
	FramesOut    uint64 `json:"frames_out"`
	PendingBytes int    `json:"pending_bytes"`
}

// GetStats returns current assembler statistics.
func (a *Assembler) GetStats() AssemblerStats {
	return AssemblerStats{
		BlocksIn:     a.blocksIn,
		FramesOut:    a.framesOut,
		PendingBytes: len(a.carry),
	}
}
