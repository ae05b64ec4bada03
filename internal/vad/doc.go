// Package vad defines the frame-level speech classifier consumed by the
// segmentation engine, plus a built-in energy-based implementation with
// WebRTC-style aggressiveness modes (0 = least, 3 = most aggressive).
package vad
