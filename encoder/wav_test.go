package encoder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func writeWav(t *testing.T, samples []int16) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc, err := New("wav", f)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := EncodeAll(enc, samples); err != nil {
		t.Fatalf("EncodeAll: %v", err)
	}
	return path
}

func TestWavEncoderRoundTrip(t *testing.T) {
	samples := sineBlock(BlockSize*2 + 17)
	path := writeWav(t, samples)

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("decoder rejected the file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("FullPCMBuffer: %v", err)
	}
	if buf.Format.SampleRate != SampleRate {
		t.Errorf("SampleRate = %d, want %d", buf.Format.SampleRate, SampleRate)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
	for i := range samples {
		if int16(buf.Data[i]) != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], samples[i])
		}
	}
}

func TestWavEncoderEmpty(t *testing.T) {
	path := writeWav(t, nil)
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if !wav.NewDecoder(f).IsValidFile() {
		t.Error("empty recording should still be a valid WAV")
	}
}

func TestNewUnknownFormat(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "x"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := New("ogg", f); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestSamplesPCMRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768}
	out := Samples(PCM(in))
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], in[i])
		}
	}
	if got := len(Samples([]byte{1, 2, 3})); got != 1 {
		t.Errorf("odd trailing byte: got %d samples, want 1", got)
	}
}
