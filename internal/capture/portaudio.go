package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/andrii-vasyliev/vad-segmenter/internal/audio"
)

// PortAudioSource captures mono PCM16 audio from the default input device.
// The caller is responsible for portaudio.Initialize/Terminate around the
// source's lifetime.
type PortAudioSource struct {
	sampleRate int
	blockSize  int

	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []int16
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewPortAudioSource creates a source reading blocks of blockSize samples
// at the given rate from the default input device.
func NewPortAudioSource(sampleRate, blockSize int) (*PortAudioSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}

	return &PortAudioSource{
		sampleRate: sampleRate,
		blockSize:  blockSize,
	}, nil
}

// Start opens the default capture stream and begins delivering blocks.
func (s *PortAudioSource) Start(onBlock func(block []byte), onError func(err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("capture already started")
	}

	s.buf = make([]int16, s.blockSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(s.sampleRate), s.blockSize, s.buf)
	if err != nil {
		return fmt.Errorf("failed to open capture stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("failed to start capture stream: %w", err)
	}

	s.stream = stream
	s.running = true
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.readLoop(onBlock, onError)

	return nil
}

// readLoop pulls full device blocks and hands them to onBlock. It does no
// work beyond the int16-to-bytes conversion; classification and buffering
// belong to the processing goroutine.
func (s *PortAudioSource) readLoop(onBlock func(block []byte), onError func(err error)) {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			select {
			case <-s.done:
				// Stop aborted the read; not a device failure.
			default:
				onError(fmt.Errorf("capture read failed: %w", err))
			}
			return
		}

		onBlock(audio.SamplesToBytes(s.buf))
	}
}

// Stop halts capture and closes the device stream. Safe to call repeatedly
// and without a prior Start.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.done)

	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	s.wg.Wait()
	s.stream = nil

	if stopErr != nil {
		return fmt.Errorf("failed to stop capture stream: %w", stopErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close capture stream: %w", closeErr)
	}
	return nil
}
