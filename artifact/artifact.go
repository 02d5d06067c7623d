// Package artifact turns captured PCM chunks into a playable audio file and
// back.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"talkback/encoder"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/mewkiz/flac"
)

const filePrefix = "recording-"

var ErrUnsupported = errors.New("unsupported audio reference")

// Clip is a decoded recording.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Store writes recordings into one directory.
type Store struct {
	dir    string
	format string
}

func NewStore(dir, format string) (*Store, error) {
	ok := false
	for _, f := range encoder.Formats {
		ok = ok || f == format
	}
	if !ok && format != "" {
		return nil, fmt.Errorf("artifact format %q: %w", format, ErrUnsupported)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Store{dir: abs, format: format}, nil
}

func (s *Store) Dir() string { return s.dir }

// Write encodes chunks, in order, into a new recording file and returns its
// file:// reference.
func (s *Store) Write(chunks [][]byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create recordings dir: %w", err)
	}

	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	pcm := make([]byte, 0, size)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}

	path := filepath.Join(s.dir, filePrefix+uuid.NewString()+"."+encoder.Ext(s.format))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create recording: %w", err)
	}

	enc, err := encoder.New(s.format, f)
	if err == nil {
		err = encoder.EncodeAll(enc, encoder.Samples(pcm))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encode recording: %w", err)
	}
	return Ref(path), nil
}

// Discard deletes a recording this store wrote. References outside the
// store are left alone.
func (s *Store) Discard(ref string) error {
	if ref == "" {
		return nil
	}
	path, err := Path(ref)
	if err != nil {
		return err
	}
	if filepath.Dir(path) != s.dir || !strings.HasPrefix(filepath.Base(path), filePrefix) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard recording: %w", err)
	}
	return nil
}

func Ref(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// Path resolves a file:// reference (or a bare path) to a local path.
func Path(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	switch u.Scheme {
	case "file":
		return filepath.FromSlash(u.Path), nil
	case "":
		return ref, nil
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
	}
}

// Open decodes the recording behind ref.
func Open(ref string) (*Clip, error) {
	path, err := Path(ref)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return openWav(path)
	case ".flac":
		return openFlac(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
}

func openWav(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav file %s", ErrUnsupported, path)
	}
	if d.BitDepth != encoder.BitsPerSample {
		return nil, fmt.Errorf("%w: %d-bit wav", ErrUnsupported, d.BitDepth)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("reading wav: %w", err)
	}

	clip := &Clip{SampleRate: int(d.SampleRate), Channels: int(d.NumChans)}
	if d.PCMSize == 0 {
		return clip, nil
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading wav: %w", err)
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	clip.setSamples(samples)
	return clip, nil
}

func openFlac(path string) (*Clip, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading flac: %w", err)
	}
	defer stream.Close()

	if stream.Info.BitsPerSample != encoder.BitsPerSample {
		return nil, fmt.Errorf("%w: %d-bit flac", ErrUnsupported, stream.Info.BitsPerSample)
	}

	var samples []int16
	for {
		fr, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading flac frame: %w", err)
		}
		// Recordings are mono.
		for _, s := range fr.Subframes[0].Samples {
			samples = append(samples, int16(s))
		}
	}

	clip := &Clip{SampleRate: int(stream.Info.SampleRate), Channels: 1}
	clip.setSamples(samples)
	return clip, nil
}

func (c *Clip) setSamples(samples []int16) {
	if c.Channels > 1 {
		mono := make([]int16, len(samples)/c.Channels)
		for i := range mono {
			mono[i] = samples[i*c.Channels]
		}
		samples = mono
		c.Channels = 1
	}
	c.PCM = encoder.PCM(samples)
	if c.SampleRate > 0 {
		c.Duration = time.Duration(int64(len(samples)) * int64(time.Second) / int64(c.SampleRate))
	}
}
