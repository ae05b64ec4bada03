// Package queue implements the hand-off channel between the capture
// callback and the processing goroutine. It is the only synchronized
// resource in the pipeline; everything downstream is single-goroutine.
package queue
