package encoder

import (
	"fmt"
	"io"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type WavEncoder struct {
	enc         *wav.Encoder
	totalFrames uint64
	mu          sync.Mutex
}

func NewWav(w io.WriteSeeker) *WavEncoder {
	return &WavEncoder{enc: wav.NewEncoder(w, SampleRate, BitsPerSample, Channels, 1)}
}

func (e *WavEncoder) EncodeBlock(block []int16) error {
	if len(block) == 0 {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
		Data:           make([]int, len(block)),
		SourceBitDepth: BitsPerSample,
	}
	for i, s := range block {
		buf.Data[i] = int(s)
	}
	if err := e.enc.Write(buf); err != nil {
		return fmt.Errorf("writing wav block: %w", err)
	}
	e.totalFrames += uint64(len(block))
	return nil
}

// Close patches the header sizes. An encoder that never saw a block still
// produces a valid, empty WAV.
func (e *WavEncoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.totalFrames == 0 {
		empty := &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: Channels, SampleRate: SampleRate},
			SourceBitDepth: BitsPerSample,
		}
		if err := e.enc.Write(empty); err != nil {
			return fmt.Errorf("writing wav header: %w", err)
		}
	}
	return e.enc.Close()
}

func (e *WavEncoder) TotalFrames() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.totalFrames
}
