// Package capture abstracts the audio input device. The engine consumes a
// narrow Source interface; the PortAudio implementation delivers fixed-size
// microphone blocks on the device's real-time callback thread.
package capture
