// Package beep plays short record start/stop cues on an audio output.
package beep

import (
	"math"
	"sync"
	"time"

	"talkback/audio"
	"talkback/log"
)

const (
	sampleRate = 16000

	// Start: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30

	// Outputs stay open a little past the cue so the device buffer drains.
	drainTail = 150 * time.Millisecond
)

var (
	startSamples []int16
	endSamples   []int16
	errorSamples []int16
	soundOnce    sync.Once
)

func initSound() {
	startSamples = generateTick(startFreq, 0.08, startVolume, startDecay)
	endSamples = generateTick(endFreq, 0.1, endVolume, endDecay)
	errorSamples = generateDoubleBeep(errorFreq, 0.08, 0.05, errorVolume, errorDecay)
}

func generateTick(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

func generateDoubleBeep(freq, beepDur, gapDur, volume, decay float64) []int16 {
	tick := generateTick(freq, beepDur, volume, decay)
	gap := make([]int16, int(sampleRate*gapDur))
	result := make([]int16, 0, len(tick)*2+len(gap))
	result = append(result, tick...)
	result = append(result, gap...)
	return append(result, tick...)
}

// Cues plays the cue sounds. A nil *Cues is silent.
type Cues struct {
	actx audio.Context

	mu       sync.Mutex
	disabled bool
}

func New(actx audio.Context) *Cues {
	return &Cues{actx: actx}
}

func (c *Cues) Disable() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.disabled = true
	c.mu.Unlock()
}

func (c *Cues) PlayStart() { c.play(func() []int16 { return startSamples }) }
func (c *Cues) PlayEnd()   { c.play(func() []int16 { return endSamples }) }
func (c *Cues) PlayError() { c.play(func() []int16 { return errorSamples }) }

func (c *Cues) play(samples func() []int16) {
	if c == nil || c.actx == nil {
		return
	}
	c.mu.Lock()
	disabled := c.disabled
	c.mu.Unlock()
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	if err := playSamples(c.actx, samples()); err != nil {
		log.Warnf("cue playback: %v", err)
	}
}

// playSamples starts an output for samples and closes it once they have
// been pulled.
func playSamples(actx audio.Context, samples []int16) error {
	var mu sync.Mutex
	pos := 0
	done := make(chan struct{})
	fill := func(buf []int16) {
		mu.Lock()
		defer mu.Unlock()
		n := copy(buf, samples[min(pos, len(samples)):])
		clear(buf[n:])
		pos += n
		if pos >= len(samples) && n < len(buf) {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	}

	out, err := actx.NewOutput(sampleRate, fill)
	if err != nil {
		return err
	}
	if err := out.Start(); err != nil {
		out.Close()
		return err
	}
	go func() {
		<-done
		time.Sleep(drainTail)
		out.Close()
	}()
	return nil
}
