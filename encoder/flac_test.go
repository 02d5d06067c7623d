package encoder

import (
	"bytes"
	"io"
	"testing"

	"github.com/mewkiz/flac"
)

func sineBlock(n int) []int16 {
	block := make([]int16, n)
	for i := range block {
		block[i] = int16((i % 200) * 100)
	}
	return block
}

func TestFlacEncoderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewFlac(&buf)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	samples := sineBlock(BlockSize + BlockSize/2)
	if err := EncodeAll(enc, samples); err != nil {
		t.Fatalf("EncodeAll: %v", err)
	}
	if enc.TotalFrames() != uint64(len(samples)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(samples))
	}

	data := buf.Bytes()
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}

	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("flac.New: %v", err)
	}
	defer stream.Close()
	if stream.Info.SampleRate != SampleRate {
		t.Errorf("SampleRate = %d, want %d", stream.Info.SampleRate, SampleRate)
	}

	var decoded []int16
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ParseNext: %v", err)
		}
		for _, s := range f.Subframes[0].Samples {
			decoded = append(decoded, int16(s))
		}
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(samples))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, decoded[i], samples[i])
		}
	}
}

func TestFlacEncoderEmpty(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewFlac(&buf)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close on empty encoder: %v", err)
	}
	if enc.TotalFrames() != 0 {
		t.Errorf("TotalFrames = %d, want 0", enc.TotalFrames())
	}
	if buf.Len() == 0 {
		t.Error("expected non-empty FLAC output (at least header)")
	}
}

func TestFlacEncoderPartialBlock(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewFlac(&buf)
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	partial := sineBlock(BlockSize / 4)
	if err := enc.EncodeBlock(partial); err != nil {
		t.Fatalf("EncodeBlock partial: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if enc.TotalFrames() != uint64(len(partial)) {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), len(partial))
	}
}
