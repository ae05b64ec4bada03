package audio

import "fmt"

// BytesPerSample is the sample width of the PCM format used throughout
// the engine (signed 16-bit little-endian, mono).
const BytesPerSample = 2

// SamplesToBytes converts int16 samples to PCM16-LE bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// BytesToSamples converts PCM16-LE bytes back to int16 samples.
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf("PCM data length must be even, got %d bytes", len(data))
	}

	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples, nil
}
