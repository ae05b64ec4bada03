// Package audio provides the PCM plumbing for the segmentation engine:
// frame assembly from variable-size capture blocks, per-utterance sample
// accumulation, and WAV container encoding/decoding.
package audio
