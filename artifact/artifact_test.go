package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"talkback/encoder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(n int, start int16) []byte {
	s := make([]int16, n)
	for i := range s {
		s[i] = start + int16(i%500)
	}
	return encoder.PCM(s)
}

func TestWriteOpenRoundTrip(t *testing.T) {
	for _, format := range encoder.Formats {
		t.Run(format, func(t *testing.T) {
			st, err := NewStore(t.TempDir(), format)
			require.NoError(t, err)

			chunks := [][]byte{ramp(1000, 0), ramp(7000, 100), ramp(3, -50)}
			ref, err := st.Write(chunks)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(ref, "file://"), ref)
			assert.True(t, strings.HasSuffix(ref, "."+format), ref)

			clip, err := Open(ref)
			require.NoError(t, err)
			want := append(append(append([]byte{}, chunks[0]...), chunks[1]...), chunks[2]...)
			assert.Equal(t, want, clip.PCM)
			assert.Equal(t, encoder.SampleRate, clip.SampleRate)
			assert.Equal(t, 1, clip.Channels)
			assert.Equal(t, 8003*time.Second/encoder.SampleRate, clip.Duration)
		})
	}
}

func TestWriteEmptySession(t *testing.T) {
	for _, format := range encoder.Formats {
		t.Run(format, func(t *testing.T) {
			st, err := NewStore(t.TempDir(), format)
			require.NoError(t, err)
			ref, err := st.Write(nil)
			require.NoError(t, err)

			clip, err := Open(ref)
			require.NoError(t, err)
			assert.Empty(t, clip.PCM)
			assert.Zero(t, clip.Duration)
		})
	}
}

func TestWriteUniqueNames(t *testing.T) {
	st, err := NewStore(t.TempDir(), "wav")
	require.NoError(t, err)
	a, err := st.Write([][]byte{ramp(10, 0)})
	require.NoError(t, err)
	b, err := st.Write([][]byte{ramp(10, 0)})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDiscard(t *testing.T) {
	dir := t.TempDir()
	st, err := NewStore(dir, "wav")
	require.NoError(t, err)

	ref, err := st.Write([][]byte{ramp(10, 0)})
	require.NoError(t, err)
	path, err := Path(ref)
	require.NoError(t, err)

	require.NoError(t, st.Discard(ref))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Already gone and empty references are no-ops.
	assert.NoError(t, st.Discard(ref))
	assert.NoError(t, st.Discard(""))
}

func TestDiscardLeavesForeignFiles(t *testing.T) {
	st, err := NewStore(t.TempDir(), "wav")
	require.NoError(t, err)

	other := filepath.Join(t.TempDir(), "recording-keep.wav")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0644))
	require.NoError(t, st.Discard(Ref(other)))
	_, err = os.Stat(other)
	assert.NoError(t, err)
}

func TestOpenUnsupported(t *testing.T) {
	for _, ref := range []string{
		"https://example.com/a.wav",
		"file:///tmp/a.ogg",
	} {
		_, err := Open(ref)
		assert.ErrorIs(t, err, ErrUnsupported, ref)
	}
}

func TestNewStoreRejectsUnknownFormat(t *testing.T) {
	_, err := NewStore(t.TempDir(), "mp3")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPathBare(t *testing.T) {
	p, err := Path("/tmp/x.wav")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.wav", p)
}
