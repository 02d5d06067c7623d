package encoder

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	BlockSize     = 4096
)

// Formats lists the artifact formats accepted by New.
var Formats = []string{"wav", "flac"}

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	TotalFrames() uint64
}

// New returns an encoder writing format to w. WAV needs to seek back to
// patch its header, hence the io.WriteSeeker.
func New(format string, w io.WriteSeeker) (Encoder, error) {
	switch format {
	case "wav", "":
		return NewWav(w), nil
	case "flac":
		return NewFlac(w)
	default:
		return nil, fmt.Errorf("unknown format: %s", format)
	}
}

// Ext returns the file extension for format.
func Ext(format string) string {
	if format == "" {
		return "wav"
	}
	return format
}

// Samples decodes little-endian 16-bit PCM. A trailing odd byte is dropped.
func Samples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// PCM is the inverse of Samples.
func PCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// EncodeAll feeds samples to enc in BlockSize pieces and closes it.
func EncodeAll(enc Encoder, samples []int16) error {
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			return err
		}
	}
	return enc.Close()
}
