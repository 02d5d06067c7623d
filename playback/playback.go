// Package playback plays back the last recording and reports progress.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"talkback/artifact"
	"talkback/log"
)

var ErrNoRecording = errors.New("no recording to play")

// Engine is a playback engine such as audio.Player.
type Engine interface {
	Load(pcm []byte, sampleRate int) error
	Play() error
	Pause()
	Paused() bool
	Position() time.Duration
	Duration() time.Duration
	OnTimeUpdate(fn func(current, duration time.Duration))
	OnEnded(fn func())
}

type Status struct {
	Ref      string
	Playing  bool
	Current  time.Duration
	Duration time.Duration
	Progress float64
}

func (s Status) Loaded() bool { return s.Ref != "" }

// Progress returns current/duration clamped to [0,1], or 0 when the
// duration is unknown.
func Progress(current, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	p := float64(current) / float64(duration)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// FormatProgress renders a ratio as a percentage with one decimal.
func FormatProgress(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

type Controller struct {
	engine Engine
	open   func(ref string) (*artifact.Clip, error)

	mu       sync.Mutex
	ref      string
	current  time.Duration
	duration time.Duration
	onChange func(Status)
}

func New(engine Engine) *Controller {
	c := &Controller{engine: engine, open: artifact.Open}
	engine.OnTimeUpdate(c.timeUpdate)
	engine.OnEnded(c.ended)
	return c
}

// OnChange registers fn to be called after every status change.
func (c *Controller) OnChange(fn func(Status)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Load makes ref the current recording. An empty ref unloads.
func (c *Controller) Load(ref string) error {
	if ref == "" {
		c.Unload()
		return nil
	}
	clip, err := c.open(ref)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	c.engine.Pause()
	if err := c.engine.Load(clip.PCM, clip.SampleRate); err != nil {
		return fmt.Errorf("load recording: %w", err)
	}

	c.mu.Lock()
	c.ref = ref
	c.current = 0
	c.duration = clip.Duration
	c.mu.Unlock()
	c.changed()
	return nil
}

func (c *Controller) Unload() {
	c.mu.Lock()
	had := c.ref != ""
	c.ref = ""
	c.current, c.duration = 0, 0
	c.mu.Unlock()
	if had {
		c.engine.Pause()
		c.changed()
	}
}

// TogglePlayPause plays when paused and pauses when playing. It reports
// whether playback is now running.
func (c *Controller) TogglePlayPause() (bool, error) {
	c.mu.Lock()
	loaded := c.ref != ""
	c.mu.Unlock()
	if !loaded {
		return false, ErrNoRecording
	}

	if c.engine.Paused() {
		if err := c.engine.Play(); err != nil {
			return false, fmt.Errorf("play: %w", err)
		}
		log.Playback("play", c.engine.Position(), c.engine.Duration())
		c.changed()
		return true, nil
	}
	c.engine.Pause()
	log.Playback("pause", c.engine.Position(), c.engine.Duration())
	c.changed()
	return false, nil
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status()
}

func (c *Controller) status() Status {
	if c.ref == "" {
		return Status{}
	}
	return Status{
		Ref:      c.ref,
		Playing:  !c.engine.Paused(),
		Current:  c.current,
		Duration: c.duration,
		Progress: Progress(c.current, c.duration),
	}
}

func (c *Controller) timeUpdate(current, duration time.Duration) {
	c.mu.Lock()
	if c.ref == "" {
		c.mu.Unlock()
		return
	}
	c.current = current
	if duration > 0 {
		c.duration = duration
	}
	c.mu.Unlock()
	c.changed()
}

func (c *Controller) ended() {
	c.mu.Lock()
	if c.ref == "" {
		c.mu.Unlock()
		return
	}
	c.current = c.duration
	d := c.duration
	c.mu.Unlock()
	log.Playback("ended", d, d)
	c.changed()
}

func (c *Controller) changed() {
	c.mu.Lock()
	fn := c.onChange
	st := c.status()
	c.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}
