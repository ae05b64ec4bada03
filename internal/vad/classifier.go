package vad

// Classifier decides whether a single audio frame contains speech.
//
// Classify receives a frame of PCM16-LE bytes of exactly the engine's
// configured frame length at the given sample rate. Implementations must
// either be stateless across calls or manage their own internal state;
// aggressiveness and thresholds are construction-time parameters, never
// per-call. Classify is called from the single processing goroutine only.
type Classifier interface {
	Classify(frame []byte, sampleRate int) (bool, error)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(frame []byte, sampleRate int) (bool, error)

// Classify calls f.
func (f ClassifierFunc) Classify(frame []byte, sampleRate int) (bool, error) {
	return f(frame, sampleRate)
}
