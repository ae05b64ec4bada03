// Package segmenter turns a continuous PCM stream into discrete utterance
// events. The Gate applies consecutive-frame hysteresis over a per-frame
// speech classifier; the Engine wires capture, queueing, frame assembly,
// the gate, and callback delivery into a two-goroutine pipeline.
package segmenter
