package playback

import (
	"errors"
	"sync"
	"testing"
	"time"

	"talkback/artifact"
	"talkback/audio"
	"talkback/encoder"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu      sync.Mutex
	paused  bool
	loaded  []byte
	playErr error
	plays   int
	onTime  func(current, duration time.Duration)
	onEnded func()
}

func newFakeEngine() *fakeEngine { return &fakeEngine{paused: true} }

func (e *fakeEngine) Load(pcm []byte, _ int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = pcm
	e.paused = true
	return nil
}

func (e *fakeEngine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playErr != nil {
		return e.playErr
	}
	e.plays++
	e.paused = false
	return nil
}

func (e *fakeEngine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

func (e *fakeEngine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *fakeEngine) Position() time.Duration { return 0 }
func (e *fakeEngine) Duration() time.Duration { return 0 }

func (e *fakeEngine) OnTimeUpdate(fn func(current, duration time.Duration)) { e.onTime = fn }
func (e *fakeEngine) OnEnded(fn func())                                    { e.onEnded = fn }

func clipOf(d time.Duration) func(string) (*artifact.Clip, error) {
	return func(string) (*artifact.Clip, error) {
		return &artifact.Clip{PCM: []byte{1, 0, 2, 0}, SampleRate: encoder.SampleRate, Channels: 1, Duration: d}, nil
	}
}

func newTestController(d time.Duration) (*Controller, *fakeEngine) {
	e := newFakeEngine()
	c := New(e)
	c.open = clipOf(d)
	return c, e
}

func TestProgress(t *testing.T) {
	for _, tt := range []struct {
		name              string
		current, duration time.Duration
		want              float64
	}{
		{"unknown duration", 3 * time.Second, 0, 0},
		{"negative duration", time.Second, -time.Second, 0},
		{"start", 0, 10 * time.Second, 0},
		{"half", 5 * time.Second, 10 * time.Second, 0.5},
		{"end", 10 * time.Second, 10 * time.Second, 1},
		{"past end", 11 * time.Second, 10 * time.Second, 1},
		{"negative position", -time.Second, 10 * time.Second, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Progress(tt.current, tt.duration), 1e-9)
		})
	}
}

func TestFormatProgress(t *testing.T) {
	assert.Equal(t, "0.0%", FormatProgress(0))
	assert.Equal(t, "33.3%", FormatProgress(1.0/3))
	assert.Equal(t, "100.0%", FormatProgress(1))
}

func TestToggleWithoutRecording(t *testing.T) {
	c, e := newTestController(time.Second)
	_, err := c.TogglePlayPause()
	assert.ErrorIs(t, err, ErrNoRecording)
	assert.Zero(t, e.plays)
	assert.False(t, c.Status().Loaded())
}

func TestTogglePlayPause(t *testing.T) {
	c, e := newTestController(2 * time.Second)
	require.NoError(t, c.Load("file:///tmp/a.wav"))
	assert.Equal(t, []byte{1, 0, 2, 0}, e.loaded)

	playing, err := c.TogglePlayPause()
	require.NoError(t, err)
	assert.True(t, playing)
	assert.True(t, c.Status().Playing)

	playing, err = c.TogglePlayPause()
	require.NoError(t, err)
	assert.False(t, playing)
	assert.False(t, c.Status().Playing)
	assert.Equal(t, 1, e.plays)
}

func TestPlayFailure(t *testing.T) {
	c, e := newTestController(time.Second)
	require.NoError(t, c.Load("file:///tmp/a.wav"))
	e.playErr = errors.New("device busy")
	playing, err := c.TogglePlayPause()
	assert.Error(t, err)
	assert.False(t, playing)
}

func TestTimeUpdatesDriveProgress(t *testing.T) {
	c, e := newTestController(4 * time.Second)
	var seen []Status
	c.OnChange(func(s Status) { seen = append(seen, s) })
	require.NoError(t, c.Load("file:///tmp/a.wav"))

	e.onTime(time.Second, 4*time.Second)
	assert.InDelta(t, 0.25, c.Status().Progress, 1e-9)
	assert.Equal(t, "25.0%", FormatProgress(c.Status().Progress))

	e.onEnded()
	assert.InDelta(t, 1.0, c.Status().Progress, 1e-9)
	assert.Len(t, seen, 3)
}

func TestUnknownDurationReportsZero(t *testing.T) {
	c, e := newTestController(0)
	require.NoError(t, c.Load("file:///tmp/a.wav"))
	e.onTime(time.Second, 0)
	assert.Zero(t, c.Status().Progress)
}

func TestUnloadIgnoresLateUpdates(t *testing.T) {
	c, e := newTestController(time.Second)
	require.NoError(t, c.Load("file:///tmp/a.wav"))
	require.NoError(t, c.Load(""))
	e.onTime(500*time.Millisecond, time.Second)
	assert.Equal(t, Status{}, c.Status())
	_, err := c.TogglePlayPause()
	assert.ErrorIs(t, err, ErrNoRecording)
}

func TestLoadMissingFile(t *testing.T) {
	c := New(newFakeEngine())
	err := c.Load("file:///definitely/not/here.wav")
	assert.Error(t, err)
	assert.False(t, c.Status().Loaded())
}

// TestWithPlayer plays a real recording through audio.Player on a fake
// output device.
func TestWithPlayer(t *testing.T) {
	st, err := artifact.NewStore(t.TempDir(), "wav")
	require.NoError(t, err)
	samples := make([]int16, encoder.SampleRate) // one second
	for i := range samples {
		samples[i] = int16(i)
	}
	ref, err := st.Write([][]byte{encoder.PCM(samples)})
	require.NoError(t, err)

	fctx := audio.NewFakeContextPCM(nil)
	player := audio.NewPlayer(fctx)
	defer player.Close()
	c := New(player)

	var mu sync.Mutex
	var last Status
	c.OnChange(func(s Status) { mu.Lock(); last = s; mu.Unlock() })

	require.NoError(t, c.Load(ref))
	assert.Equal(t, time.Second, c.Status().Duration)

	playing, err := c.TogglePlayPause()
	require.NoError(t, err)
	require.True(t, playing)

	out := fctx.LastOutput()
	require.NotNil(t, out)
	out.Pull(encoder.SampleRate / 2)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last.Current == 500*time.Millisecond
	}, time.Second, 5*time.Millisecond)
	assert.InDelta(t, 0.5, c.Status().Progress, 1e-9)

	out.Pull(encoder.SampleRate)
	require.Eventually(t, func() bool { return c.Status().Progress == 1 && !c.Status().Playing }, time.Second, 5*time.Millisecond)

	// Playing after the end starts over.
	playing, err = c.TogglePlayPause()
	require.NoError(t, err)
	assert.True(t, playing)
	assert.Equal(t, time.Duration(0), player.Position())
}
